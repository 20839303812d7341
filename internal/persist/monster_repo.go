package persist

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/duskmud/server/internal/model"
	"github.com/duskmud/server/internal/mud"
)

type MonsterRepo struct {
	db *DB
}

func NewMonsterRepo(db *DB) *MonsterRepo {
	return &MonsterRepo{db: db}
}

const monsterCols = `id, template_id, name_en, name_ko, stats, monster_type, behavior,
	current_room_id, aggro_range, roaming_range, drop_items, gold_reward,
	exp_reward, respawn_time, alive, merchant`

func (r *MonsterRepo) GetByID(ctx context.Context, id int64) (*model.Monster, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+monsterCols+` FROM monsters WHERE id = $1`, id)
	m, err := scanMonster(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, mud.E(mud.NotFound, "no_such_monster", "monster %d not found", id)
	}
	return m, err
}

func (r *MonsterRepo) List(ctx context.Context) ([]*model.Monster, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+monsterCols+` FROM monsters ORDER BY id`)
	if err != nil {
		return nil, storageErr(err, "list monsters")
	}
	return collectMonsters(rows)
}

func (r *MonsterRepo) ListByRoom(ctx context.Context, roomID string) ([]*model.Monster, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+monsterCols+` FROM monsters WHERE current_room_id = $1 ORDER BY id`, roomID)
	if err != nil {
		return nil, storageErr(err, "list monsters by room")
	}
	return collectMonsters(rows)
}

func collectMonsters(rows pgx.Rows) ([]*model.Monster, error) {
	defer rows.Close()
	var out []*model.Monster
	for rows.Next() {
		m, err := scanMonster(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "scan monsters")
	}
	return out, nil
}

func scanMonster(row pgx.Row) (*model.Monster, error) {
	var (
		m                  model.Monster
		nameEN, nameKO     string
		statsRaw, dropsRaw []byte
		mtype, behavior    string
	)
	err := row.Scan(&m.ID, &m.TemplateID, &nameEN, &nameKO, &statsRaw, &mtype, &behavior,
		&m.CurrentRoomID, &m.AggroRange, &m.RoamingRange, &dropsRaw, &m.GoldReward,
		&m.ExpReward, &m.RespawnSec, &m.Alive, &m.IsMerchant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, storageErr(err, "load monster")
	}
	m.Name = model.Loc(nameEN, nameKO)
	m.Type = model.MonsterType(mtype)
	m.Behavior = model.Behavior(behavior)
	if err := json.Unmarshal(statsRaw, &m.Stats); err != nil {
		return nil, mud.Wrap(err, mud.Storage, "db_error", "decode monster stats")
	}
	if err := json.Unmarshal(dropsRaw, &m.DropItems); err != nil {
		return nil, mud.Wrap(err, mud.Storage, "db_error", "decode monster drops")
	}
	return &m, nil
}

func (r *MonsterRepo) Create(ctx context.Context, m *model.Monster) (*model.Monster, error) {
	statsRaw, dropsRaw, err := encodeMonster(m)
	if err != nil {
		return nil, err
	}
	out := m.Clone()
	err = r.db.Pool.QueryRow(ctx,
		`INSERT INTO monsters
		   (template_id, name_en, name_ko, stats, monster_type, behavior,
		    current_room_id, aggro_range, roaming_range, drop_items,
		    gold_reward, exp_reward, respawn_time, alive, merchant)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING id`,
		m.TemplateID, m.Name["en"], m.Name["ko"], statsRaw, string(m.Type), string(m.Behavior),
		m.CurrentRoomID, m.AggroRange, m.RoamingRange, dropsRaw,
		m.GoldReward, m.ExpReward, m.RespawnSec, m.Alive, m.IsMerchant,
	).Scan(&out.ID)
	if err != nil {
		return nil, storageErr(err, "create monster")
	}
	return out, nil
}

func (r *MonsterRepo) Update(ctx context.Context, m *model.Monster) error {
	statsRaw, dropsRaw, err := encodeMonster(m)
	if err != nil {
		return err
	}
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE monsters SET
		   template_id = $2, name_en = $3, name_ko = $4, stats = $5,
		   monster_type = $6, behavior = $7, current_room_id = $8,
		   aggro_range = $9, roaming_range = $10, drop_items = $11,
		   gold_reward = $12, exp_reward = $13, respawn_time = $14,
		   alive = $15, merchant = $16
		 WHERE id = $1`,
		m.ID, m.TemplateID, m.Name["en"], m.Name["ko"], statsRaw,
		string(m.Type), string(m.Behavior), m.CurrentRoomID,
		m.AggroRange, m.RoamingRange, dropsRaw,
		m.GoldReward, m.ExpReward, m.RespawnSec, m.Alive, m.IsMerchant,
	)
	if err != nil {
		return storageErr(err, "update monster")
	}
	if tag.RowsAffected() == 0 {
		return mud.E(mud.NotFound, "no_such_monster", "monster %d not found", m.ID)
	}
	return nil
}

func (r *MonsterRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM monsters WHERE id = $1`, id)
	if err != nil {
		return storageErr(err, "delete monster")
	}
	if tag.RowsAffected() == 0 {
		return mud.E(mud.NotFound, "no_such_monster", "monster %d not found", id)
	}
	return nil
}

func (r *MonsterRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM monsters`).Scan(&n); err != nil {
		return 0, storageErr(err, "count monsters")
	}
	return n, nil
}

func encodeMonster(m *model.Monster) (stats, drops []byte, err error) {
	stats, err = json.Marshal(m.Stats)
	if err != nil {
		return nil, nil, mud.Wrap(err, mud.Storage, "db_error", "encode monster stats")
	}
	dr := m.DropItems
	if dr == nil {
		dr = []model.DropItem{}
	}
	drops, err = json.Marshal(dr)
	if err != nil {
		return nil, nil, mud.Wrap(err, mud.Storage, "db_error", "encode monster drops")
	}
	return stats, drops, nil
}
