package persist

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/duskmud/server/internal/model"
	"github.com/duskmud/server/internal/mud"
)

type ObjectRepo struct {
	db *DB
}

func NewObjectRepo(db *DB) *ObjectRepo {
	return &ObjectRepo{db: db}
}

const objectCols = `id, name_en, name_ko, description_en, description_ko,
	object_type, category, weight, stackable, max_stack, properties, location_kind, location_id`

func (r *ObjectRepo) GetByID(ctx context.Context, id string) (*model.GameObject, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+objectCols+` FROM game_objects WHERE id = $1`, id)
	obj, err := scanObject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, mud.E(mud.NotFound, "no_such_object", "object %q not found", id)
	}
	return obj, err
}

func (r *ObjectRepo) List(ctx context.Context) ([]*model.GameObject, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+objectCols+` FROM game_objects ORDER BY id`)
	if err != nil {
		return nil, storageErr(err, "list objects")
	}
	return collectObjects(rows)
}

func (r *ObjectRepo) ListByLocation(ctx context.Context, loc model.Location) ([]*model.GameObject, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+objectCols+` FROM game_objects
		 WHERE location_kind = $1 AND location_id = $2 ORDER BY id`,
		string(loc.Kind), loc.ID)
	if err != nil {
		return nil, storageErr(err, "list objects by location")
	}
	return collectObjects(rows)
}

func collectObjects(rows pgx.Rows) ([]*model.GameObject, error) {
	defer rows.Close()
	var out []*model.GameObject
	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "scan objects")
	}
	return out, nil
}

func scanObject(row pgx.Row) (*model.GameObject, error) {
	var (
		o              model.GameObject
		nameEN, nameKO string
		descEN, descKO string
		propsRaw       []byte
		kind           string
	)
	err := row.Scan(&o.ID, &nameEN, &nameKO, &descEN, &descKO,
		&o.ObjectType, &o.Category, &o.Weight, &o.Stackable, &o.MaxStack,
		&propsRaw, &kind, &o.Location.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, storageErr(err, "load object")
	}
	o.Name = model.Loc(nameEN, nameKO)
	o.Description = model.Loc(descEN, descKO)
	o.Location.Kind = model.LocationKind(kind)
	if err := json.Unmarshal(propsRaw, &o.Properties); err != nil {
		return nil, mud.Wrap(err, mud.Storage, "db_error", "decode object properties")
	}
	return &o, nil
}

func (r *ObjectRepo) Create(ctx context.Context, o *model.GameObject) error {
	propsRaw, err := encodeProps(o.Properties)
	if err != nil {
		return err
	}
	_, err = r.db.Pool.Exec(ctx,
		`INSERT INTO game_objects
		   (id, name_en, name_ko, description_en, description_ko,
		    object_type, category, weight, stackable, max_stack,
		    properties, location_kind, location_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		o.ID, o.Name["en"], o.Name["ko"], o.Description["en"], o.Description["ko"],
		o.ObjectType, o.Category, o.Weight, o.Stackable, o.MaxStack,
		propsRaw, string(o.Location.Kind), o.Location.ID,
	)
	if err != nil {
		return storageErr(err, "create object")
	}
	return nil
}

func (r *ObjectRepo) Update(ctx context.Context, o *model.GameObject) error {
	propsRaw, err := encodeProps(o.Properties)
	if err != nil {
		return err
	}
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE game_objects SET
		   name_en = $2, name_ko = $3, description_en = $4, description_ko = $5,
		   object_type = $6, category = $7, weight = $8, stackable = $9,
		   max_stack = $10, properties = $11, location_kind = $12, location_id = $13
		 WHERE id = $1`,
		o.ID, o.Name["en"], o.Name["ko"], o.Description["en"], o.Description["ko"],
		o.ObjectType, o.Category, o.Weight, o.Stackable, o.MaxStack,
		propsRaw, string(o.Location.Kind), o.Location.ID,
	)
	if err != nil {
		return storageErr(err, "update object")
	}
	if tag.RowsAffected() == 0 {
		return mud.E(mud.NotFound, "no_such_object", "object %q not found", o.ID)
	}
	return nil
}

func (r *ObjectRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM game_objects WHERE id = $1`, id)
	if err != nil {
		return storageErr(err, "delete object")
	}
	if tag.RowsAffected() == 0 {
		return mud.E(mud.NotFound, "no_such_object", "object %q not found", id)
	}
	return nil
}

func (r *ObjectRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM game_objects`).Scan(&n); err != nil {
		return 0, storageErr(err, "count objects")
	}
	return n, nil
}

func encodeProps(props map[string]any) ([]byte, error) {
	if props == nil {
		props = map[string]any{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return nil, mud.Wrap(err, mud.Storage, "db_error", "encode object properties")
	}
	return raw, nil
}
