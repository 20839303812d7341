package persist

import (
	"context"
	"time"
)

// SessionHistoryRepo records one row per authenticated session.
type SessionHistoryRepo struct {
	db *DB
}

func NewSessionHistoryRepo(db *DB) *SessionHistoryRepo {
	return &SessionHistoryRepo{db: db}
}

func (r *SessionHistoryRepo) Open(ctx context.Context, rec *SessionRecord) error {
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO sessions_history (session_id, player_id, transport, remote_addr, started_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		rec.SessionID, rec.PlayerID, rec.Transport, rec.RemoteAddr, rec.StartedAt,
	).Scan(&rec.ID)
	if err != nil {
		return storageErr(err, "open session history")
	}
	return nil
}

func (r *SessionHistoryRepo) Close(ctx context.Context, sessionID string, endedAt time.Time) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE sessions_history SET ended_at = $2
		 WHERE session_id = $1 AND ended_at IS NULL`,
		sessionID, endedAt,
	)
	if err != nil {
		return storageErr(err, "close session history")
	}
	return nil
}
