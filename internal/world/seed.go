package world

import (
	"context"

	"go.uber.org/zap"

	"github.com/duskmud/server/internal/data"
)

// Seed loads a world file into the manager and its store. Rooms and
// objects whose ids already exist are left alone, so seeding an already
// populated world is safe and reports zero creations.
func (m *Manager) Seed(ctx context.Context, wf *data.WorldFile) (roomsCreated, objectsCreated int, err error) {
	rooms, err := wf.BuildRooms()
	if err != nil {
		return 0, 0, err
	}
	for _, r := range rooms {
		created, err := m.CreateRoom(ctx, r)
		if err != nil {
			return roomsCreated, objectsCreated, err
		}
		if created {
			roomsCreated++
		}
	}

	objects, err := wf.BuildObjects(m.items)
	if err != nil {
		return roomsCreated, objectsCreated, err
	}
	for _, o := range objects {
		created, err := m.CreateObject(ctx, o)
		if err != nil {
			return roomsCreated, objectsCreated, err
		}
		if created {
			objectsCreated++
		}
	}

	m.log.Info("world seeded",
		zap.Int("rooms_created", roomsCreated),
		zap.Int("objects_created", objectsCreated),
		zap.Int("rooms_total", m.RoomCount()),
		zap.Int("objects_total", m.ObjectCount()))
	return roomsCreated, objectsCreated, nil
}
