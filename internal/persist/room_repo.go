package persist

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/duskmud/server/internal/model"
	"github.com/duskmud/server/internal/mud"
)

type RoomRepo struct {
	db *DB
}

func NewRoomRepo(db *DB) *RoomRepo {
	return &RoomRepo{db: db}
}

const roomCols = `id, name_en, name_ko, description_en, description_ko, exits, spawn_points`

func (r *RoomRepo) GetByID(ctx context.Context, id string) (*model.Room, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+roomCols+` FROM rooms WHERE id = $1`, id)
	room, err := scanRoom(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, mud.E(mud.NotFound, "no_such_room", "room %q not found", id)
	}
	return room, err
}

func (r *RoomRepo) List(ctx context.Context) ([]*model.Room, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+roomCols+` FROM rooms ORDER BY id`)
	if err != nil {
		return nil, storageErr(err, "list rooms")
	}
	defer rows.Close()

	var out []*model.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, room)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "list rooms")
	}
	return out, nil
}

func scanRoom(row pgx.Row) (*model.Room, error) {
	var (
		room                model.Room
		nameEN, nameKO      string
		descEN, descKO      string
		exitsRaw, spawnsRaw []byte
	)
	err := row.Scan(&room.ID, &nameEN, &nameKO, &descEN, &descKO, &exitsRaw, &spawnsRaw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, storageErr(err, "load room")
	}
	room.Name = model.Loc(nameEN, nameKO)
	room.Description = model.Loc(descEN, descKO)
	if err := json.Unmarshal(exitsRaw, &room.Exits); err != nil {
		return nil, mud.Wrap(err, mud.Storage, "db_error", "decode room exits")
	}
	if err := json.Unmarshal(spawnsRaw, &room.SpawnPoints); err != nil {
		return nil, mud.Wrap(err, mud.Storage, "db_error", "decode room spawn points")
	}
	return &room, nil
}

func (r *RoomRepo) Create(ctx context.Context, room *model.Room) error {
	exitsRaw, spawnsRaw, err := encodeRoom(room)
	if err != nil {
		return err
	}
	_, err = r.db.Pool.Exec(ctx,
		`INSERT INTO rooms (id, name_en, name_ko, description_en, description_ko, exits, spawn_points)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		room.ID, room.Name["en"], room.Name["ko"],
		room.Description["en"], room.Description["ko"], exitsRaw, spawnsRaw,
	)
	if err != nil {
		return storageErr(err, "create room")
	}
	return nil
}

func (r *RoomRepo) Update(ctx context.Context, room *model.Room) error {
	exitsRaw, spawnsRaw, err := encodeRoom(room)
	if err != nil {
		return err
	}
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE rooms SET
		   name_en = $2, name_ko = $3, description_en = $4, description_ko = $5,
		   exits = $6, spawn_points = $7
		 WHERE id = $1`,
		room.ID, room.Name["en"], room.Name["ko"],
		room.Description["en"], room.Description["ko"], exitsRaw, spawnsRaw,
	)
	if err != nil {
		return storageErr(err, "update room")
	}
	if tag.RowsAffected() == 0 {
		return mud.E(mud.NotFound, "no_such_room", "room %q not found", room.ID)
	}
	return nil
}

func (r *RoomRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return storageErr(err, "delete room")
	}
	if tag.RowsAffected() == 0 {
		return mud.E(mud.NotFound, "no_such_room", "room %q not found", id)
	}
	return nil
}

func (r *RoomRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&n); err != nil {
		return 0, storageErr(err, "count rooms")
	}
	return n, nil
}

func encodeRoom(room *model.Room) (exits, spawns []byte, err error) {
	ex := room.Exits
	if ex == nil {
		ex = map[model.Direction]string{}
	}
	exits, err = json.Marshal(ex)
	if err != nil {
		return nil, nil, mud.Wrap(err, mud.Storage, "db_error", "encode room exits")
	}
	sp := room.SpawnPoints
	if sp == nil {
		sp = []model.SpawnPoint{}
	}
	spawns, err = json.Marshal(sp)
	if err != nil {
		return nil, nil, mud.Wrap(err, mud.Storage, "db_error", "encode room spawn points")
	}
	return exits, spawns, nil
}
