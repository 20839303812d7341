package persist

import (
	"context"
	"time"

	"github.com/duskmud/server/internal/model"
)

// Store contracts shared by the PostgreSQL repositories and the
// in-memory store. Managers depend on these, never on pgx directly.
//
// Error contract: GetByID/Update/Delete on a missing id return NotFound;
// Create on a duplicate key returns Conflict; transport failures return
// Storage. Create returns the entity with server-assigned fields filled.

type PlayerStore interface {
	GetByID(ctx context.Context, id int64) (*model.Player, error)
	GetByUsername(ctx context.Context, username string) (*model.Player, error)
	Create(ctx context.Context, p *model.Player) (*model.Player, error)
	Update(ctx context.Context, p *model.Player) error
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

type RoomStore interface {
	GetByID(ctx context.Context, id string) (*model.Room, error)
	List(ctx context.Context) ([]*model.Room, error)
	Create(ctx context.Context, r *model.Room) error
	Update(ctx context.Context, r *model.Room) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type ObjectStore interface {
	GetByID(ctx context.Context, id string) (*model.GameObject, error)
	List(ctx context.Context) ([]*model.GameObject, error)
	ListByLocation(ctx context.Context, loc model.Location) ([]*model.GameObject, error)
	Create(ctx context.Context, o *model.GameObject) error
	Update(ctx context.Context, o *model.GameObject) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type MonsterStore interface {
	GetByID(ctx context.Context, id int64) (*model.Monster, error)
	List(ctx context.Context) ([]*model.Monster, error)
	ListByRoom(ctx context.Context, roomID string) ([]*model.Monster, error)
	Create(ctx context.Context, m *model.Monster) (*model.Monster, error)
	Update(ctx context.Context, m *model.Monster) error
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

// SessionRecord is one row of login history.
type SessionRecord struct {
	ID         int64
	SessionID  string
	PlayerID   int64
	Transport  string
	RemoteAddr string
	StartedAt  time.Time
	EndedAt    *time.Time
}

type SessionHistoryStore interface {
	Open(ctx context.Context, rec *SessionRecord) error
	Close(ctx context.Context, sessionID string, endedAt time.Time) error
}

// Stores bundles every store for constructor wiring.
type Stores struct {
	Players  PlayerStore
	Rooms    RoomStore
	Objects  ObjectStore
	Monsters MonsterStore
	History  SessionHistoryStore
}
