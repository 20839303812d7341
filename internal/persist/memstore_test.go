package persist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskmud/server/internal/model"
	"github.com/duskmud/server/internal/mud"
)

func newPlayer(name string) *model.Player {
	p := &model.Player{
		Username:        name,
		PasswordHash:    "$2a$10$x",
		PreferredLocale: "en",
		CurrentRoomID:   "town_square",
		Level:           1,
		Stats:           model.StatBlock{Str: 10, Dex: 10, Con: 10, Int: 10, Wis: 10, Cha: 10},
	}
	p.DeriveStats()
	return p
}

func TestPlayerCreateThenGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemPlayerStore()

	created, err := s.Create(ctx, newPlayer("alice"))
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.False(t, created.CreatedAt.IsZero())

	got, err := s.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	byName, err := s.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)
}

func TestPlayerUsernameConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemPlayerStore()

	_, err := s.Create(ctx, newPlayer("alice"))
	require.NoError(t, err)

	_, err = s.Create(ctx, newPlayer("alice"))
	require.Error(t, err)
	assert.Equal(t, mud.Conflict, mud.KindOf(err))
}

func TestPlayerNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemPlayerStore()

	_, err := s.GetByID(ctx, 42)
	assert.Equal(t, mud.NotFound, mud.KindOf(err))

	err = s.Update(ctx, &model.Player{ID: 42, Username: "ghost"})
	assert.Equal(t, mud.NotFound, mud.KindOf(err))

	err = s.Delete(ctx, 42)
	assert.Equal(t, mud.NotFound, mud.KindOf(err))
}

func TestPlayerUpdateIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemPlayerStore()

	created, err := s.Create(ctx, newPlayer("bob"))
	require.NoError(t, err)

	created.Gold = 100
	require.NoError(t, s.Update(ctx, created))

	// mutating the caller's copy afterwards must not leak into the store
	created.Gold = 999

	got, err := s.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Gold)
}

func TestRoomCreateThenGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemRoomStore()

	room := &model.Room{
		ID:          "town_square",
		Name:        model.Loc("Town Square", "마을 광장"),
		Description: model.Loc("The heart of town.", "마을의 중심."),
		Exits:       map[model.Direction]string{model.East: "market"},
		SpawnPoints: []model.SpawnPoint{{RoomID: "town_square", TemplateID: "rat", Count: 1, RespawnSec: 10}},
	}
	require.NoError(t, s.Create(ctx, room))

	got, err := s.GetByID(ctx, "town_square")
	require.NoError(t, err)
	assert.Equal(t, room, got)

	require.Error(t, s.Create(ctx, room), "duplicate id must conflict")

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestObjectListByLocation(t *testing.T) {
	ctx := context.Background()
	s := NewMemObjectStore()

	inRoom := model.Location{Kind: model.InRoom, ID: "town_square"}
	carried := model.Location{Kind: model.InPlayerInventory, ID: "1"}

	for id, loc := range map[string]model.Location{
		"sword":  inRoom,
		"apple":  inRoom,
		"shield": carried,
	} {
		require.NoError(t, s.Create(ctx, &model.GameObject{
			ID: id, Name: model.Loc(id, ""), Description: model.Loc(id, ""),
			ObjectType: "misc", Location: loc,
		}))
	}

	roomObjs, err := s.ListByLocation(ctx, inRoom)
	require.NoError(t, err)
	require.Len(t, roomObjs, 2)
	assert.Equal(t, "apple", roomObjs[0].ID, "listings are sorted by id")
	assert.Equal(t, "sword", roomObjs[1].ID)

	carriedObjs, err := s.ListByLocation(ctx, carried)
	require.NoError(t, err)
	require.Len(t, carriedObjs, 1)
	assert.Equal(t, "shield", carriedObjs[0].ID)
}

func TestMonsterLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemMonsterStore()

	m := &model.Monster{
		TemplateID: "goblin", Name: model.Loc("Goblin", "고블린"),
		Stats:         model.StatBlock{Str: 8, Dex: 12, Con: 6, Int: 4, Wis: 4, Cha: 3, HP: 10, MaxHP: 10, Speed: 12},
		Type:          model.Aggressive,
		Behavior:      model.Roaming,
		CurrentRoomID: "forest_1",
		DropItems:     []model.DropItem{{TemplateID: "dagger", Chance: 0.5, MinQty: 1, MaxQty: 1}},
		Alive:         true,
	}
	created, err := s.Create(ctx, m)
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	got, err := s.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
	assert.Equal(t, m.DropItems, got.DropItems)

	byRoom, err := s.ListByRoom(ctx, "forest_1")
	require.NoError(t, err)
	assert.Len(t, byRoom, 1)

	created.Alive = false
	require.NoError(t, s.Update(ctx, created))
	got, _ = s.GetByID(ctx, created.ID)
	assert.False(t, got.Alive)

	require.NoError(t, s.Delete(ctx, created.ID))
	_, err = s.GetByID(ctx, created.ID)
	assert.Equal(t, mud.NotFound, mud.KindOf(err))
}

func TestHistoryOpenClose(t *testing.T) {
	ctx := context.Background()
	s := NewMemHistoryStore()

	rec := &SessionRecord{
		SessionID: "sess-1", PlayerID: 7, Transport: "tcp",
		RemoteAddr: "10.0.0.1:5555", StartedAt: time.Now(),
	}
	require.NoError(t, s.Open(ctx, rec))
	require.NotZero(t, rec.ID)

	stored, ok := s.Record("sess-1")
	require.True(t, ok)
	assert.Nil(t, stored.EndedAt)

	end := time.Now().Add(time.Minute)
	require.NoError(t, s.Close(ctx, "sess-1", end))

	stored, _ = s.Record("sess-1")
	require.NotNil(t, stored.EndedAt)
	assert.True(t, stored.EndedAt.Equal(end))

	// closing twice is harmless
	require.NoError(t, s.Close(ctx, "sess-1", end))
}
