package persist

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/duskmud/server/internal/model"
	"github.com/duskmud/server/internal/mud"
)

type PlayerRepo struct {
	db *DB
}

func NewPlayerRepo(db *DB) *PlayerRepo {
	return &PlayerRepo{db: db}
}

const playerCols = `id, username, password_hash, is_admin, preferred_locale,
	created_at, last_login, current_room_id, stats, inventory, gold, experience, level`

func (r *PlayerRepo) GetByID(ctx context.Context, id int64) (*model.Player, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+playerCols+` FROM players WHERE id = $1`, id)
	return scanPlayer(row)
}

func (r *PlayerRepo) GetByUsername(ctx context.Context, username string) (*model.Player, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+playerCols+` FROM players WHERE username = $1`, username)
	return scanPlayer(row)
}

func scanPlayer(row pgx.Row) (*model.Player, error) {
	var (
		p         model.Player
		lastLogin *time.Time
		statsRaw  []byte
		invRaw    []byte
	)
	err := row.Scan(
		&p.ID, &p.Username, &p.PasswordHash, &p.IsAdmin, &p.PreferredLocale,
		&p.CreatedAt, &lastLogin, &p.CurrentRoomID, &statsRaw, &invRaw,
		&p.Gold, &p.Experience, &p.Level,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, mud.E(mud.NotFound, "no_such_player", "player not found")
	}
	if err != nil {
		return nil, storageErr(err, "load player")
	}
	if lastLogin != nil {
		p.LastLogin = *lastLogin
	}
	if err := json.Unmarshal(statsRaw, &p.Stats); err != nil {
		return nil, mud.Wrap(err, mud.Storage, "db_error", "decode player stats")
	}
	if err := json.Unmarshal(invRaw, &p.Inventory); err != nil {
		return nil, mud.Wrap(err, mud.Storage, "db_error", "decode player inventory")
	}
	// Derived values are recomputed from primaries on every load.
	p.Stats.Derive(p.Level)
	return &p, nil
}

func (r *PlayerRepo) Create(ctx context.Context, p *model.Player) (*model.Player, error) {
	statsRaw, err := json.Marshal(p.Stats)
	if err != nil {
		return nil, mud.Wrap(err, mud.Storage, "db_error", "encode player stats")
	}
	invRaw, err := json.Marshal(p.Inventory)
	if err != nil {
		return nil, mud.Wrap(err, mud.Storage, "db_error", "encode player inventory")
	}

	out := p.Clone()
	err = r.db.Pool.QueryRow(ctx,
		`INSERT INTO players
		   (username, password_hash, is_admin, preferred_locale, last_login,
		    current_room_id, stats, inventory, gold, experience, level)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at`,
		p.Username, p.PasswordHash, p.IsAdmin, p.PreferredLocale, nullableTime(p.LastLogin),
		p.CurrentRoomID, statsRaw, invRaw, p.Gold, p.Experience, p.Level,
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, storageErr(err, "create player")
	}
	return out, nil
}

func (r *PlayerRepo) Update(ctx context.Context, p *model.Player) error {
	statsRaw, err := json.Marshal(p.Stats)
	if err != nil {
		return mud.Wrap(err, mud.Storage, "db_error", "encode player stats")
	}
	invRaw, err := json.Marshal(p.Inventory)
	if err != nil {
		return mud.Wrap(err, mud.Storage, "db_error", "encode player inventory")
	}

	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE players SET
		   username = $2, password_hash = $3, is_admin = $4, preferred_locale = $5,
		   last_login = $6, current_room_id = $7, stats = $8, inventory = $9,
		   gold = $10, experience = $11, level = $12
		 WHERE id = $1`,
		p.ID, p.Username, p.PasswordHash, p.IsAdmin, p.PreferredLocale,
		nullableTime(p.LastLogin), p.CurrentRoomID, statsRaw, invRaw,
		p.Gold, p.Experience, p.Level,
	)
	if err != nil {
		return storageErr(err, "update player")
	}
	if tag.RowsAffected() == 0 {
		return mud.E(mud.NotFound, "no_such_player", "player %d not found", p.ID)
	}
	return nil
}

func (r *PlayerRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM players WHERE id = $1`, id)
	if err != nil {
		return storageErr(err, "delete player")
	}
	if tag.RowsAffected() == 0 {
		return mud.E(mud.NotFound, "no_such_player", "player %d not found", id)
	}
	return nil
}

func (r *PlayerRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM players`).Scan(&n); err != nil {
		return 0, storageErr(err, "count players")
	}
	return n, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
