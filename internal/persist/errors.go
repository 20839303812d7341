package persist

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/duskmud/server/internal/mud"
)

const uniqueViolation = "23505"

// storageErr maps a pgx failure onto the shared taxonomy: unique-key
// collisions become Conflict, everything else Storage.
func storageErr(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return mud.Wrap(err, mud.Conflict, "duplicate_key", op+": already exists")
	}
	return mud.Wrap(err, mud.Storage, "db_error", op+" failed")
}
