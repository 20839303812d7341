package world

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/duskmud/server/internal/core/event"
	"github.com/duskmud/server/internal/data"
	"github.com/duskmud/server/internal/model"
	"github.com/duskmud/server/internal/mud"
	"github.com/duskmud/server/internal/persist"
)

func testTables() (*data.MonsterTable, *data.ItemTable) {
	monsters := data.NewMonsterTable([]data.MonsterTemplate{
		{
			ID:         "goblin",
			Name:       model.Loc("goblin", "고블린"),
			Stats:      model.StatBlock{HP: 10, MaxHP: 10, Attack: 3, Defense: 0, Speed: 5},
			Type:       model.Aggressive,
			Behavior:   model.Roaming,
			AggroRange: 1,
			RoamRange:  1,
			DropItems:  []model.DropItem{{TemplateID: "rusty_dagger", Chance: 1.0, MinQty: 1, MaxQty: 1}},
			GoldReward: 5,
			RespawnSec: 30,
		},
		{
			ID:       "shopkeeper",
			Name:     model.Loc("shopkeeper", "상인"),
			Stats:    model.StatBlock{HP: 50, MaxHP: 50},
			Type:     model.Neutral,
			Behavior: model.Stationary,
			Merchant: true,
			ShopItems: []string{
				"health_potion",
			},
		},
	})
	items := data.NewItemTable([]data.ItemTemplate{
		{ID: "rusty_dagger", Name: model.Loc("rusty dagger", "녹슨 단검"), ObjectType: "weapon", Weight: 2, Properties: map[string]any{"price": 10}},
		{ID: "health_potion", Name: model.Loc("health potion", "회복 물약"), ObjectType: "consumable", Weight: 1, Stackable: true, MaxStack: 10, Properties: map[string]any{"price": 25, "heal": 20}},
	})
	return monsters, items
}

func room(id string, exits map[model.Direction]string, spawns ...model.SpawnPoint) *model.Room {
	return &model.Room{
		ID:          id,
		Name:        model.Loc(id, id),
		Description: model.Loc("a test room", "시험용 방"),
		Exits:       exits,
		SpawnPoints: spawns,
	}
}

func newTestManager(t *testing.T) (*Manager, *persist.Stores) {
	t.Helper()
	stores := persist.NewMemStores()
	monsters, items := testTables()
	bus := event.NewBus(zap.NewNop())
	m := NewManager(stores, bus, monsters, items, rand.New(rand.NewSource(1)), zap.NewNop())

	ctx := context.Background()
	_, err := m.CreateRoom(ctx, room("town_square", map[model.Direction]string{model.North: "forest"}))
	require.NoError(t, err)
	_, err = m.CreateRoom(ctx, room("forest", map[model.Direction]string{model.South: "town_square", model.North: "cave"},
		model.SpawnPoint{RoomID: "forest", TemplateID: "goblin", Count: 2, RespawnSec: 30, Roaming: true}))
	require.NoError(t, err)
	_, err = m.CreateRoom(ctx, room("cave", map[model.Direction]string{model.South: "forest"}))
	require.NoError(t, err)
	return m, stores
}

func TestCreateRoomIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	created, err := m.CreateRoom(ctx, room("town_square", nil))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 3, m.RoomCount())
}

func TestDeleteRoomRefusesOccupied(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.PlacePlayer(7, "cave"))
	err := m.DeleteRoom(ctx, "cave")
	require.Error(t, err)
	assert.Equal(t, mud.State, mud.KindOf(err))

	m.RemovePlayer(7)
	require.NoError(t, m.DeleteRoom(ctx, "cave"))
	assert.False(t, m.HasRoom("cave"))
}

func TestSetExitTargetsMustExist(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	err := m.SetExit(ctx, "town_square", model.East, "nowhere")
	assert.Equal(t, mud.NotFound, mud.KindOf(err))

	require.NoError(t, m.SetExit(ctx, "town_square", model.East, "cave"))
	r, err := m.Room("town_square")
	require.NoError(t, err)
	assert.Equal(t, "cave", r.Exits[model.East])
}

func TestMoveObjectUpdatesIndexAndEmits(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	var moved []event.ObjectMoved
	event.Subscribe(m.bus, func(ev event.ObjectMoved) { moved = append(moved, ev) })

	obj := &model.GameObject{
		ID:       "sword_1",
		Name:     model.Loc("iron sword", "철검"),
		Weight:   5,
		Location: RoomLocation("town_square"),
	}
	created, err := m.CreateObject(ctx, obj)
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, m.MoveObject(ctx, "sword_1", PlayerLocation(42)))

	assert.Empty(t, m.RoomObjects("town_square"))
	inv := m.InventoryObjects(42)
	require.Len(t, inv, 1)
	assert.Equal(t, "sword_1", inv[0].ID)
	assert.Equal(t, 5, m.CarriedWeight(42))
	assert.Equal(t, []string{"sword_1"}, m.InventoryIDs(42))

	require.Len(t, moved, 1)
	assert.Equal(t, "room", moved[0].FromKind)
	assert.Equal(t, "player_inventory", moved[0].ToKind)

	// Moving to the current location is a no-op and emits nothing.
	require.NoError(t, m.MoveObject(ctx, "sword_1", PlayerLocation(42)))
	assert.Len(t, moved, 1)
}

type failingObjectStore struct {
	persist.ObjectStore
	failUpdate bool
}

func (s *failingObjectStore) Update(ctx context.Context, o *model.GameObject) error {
	if s.failUpdate {
		return mud.E(mud.Storage, "storage_error", "synthetic failure")
	}
	return s.ObjectStore.Update(ctx, o)
}

func TestMoveObjectRollsBackOnStorageFailure(t *testing.T) {
	stores := persist.NewMemStores()
	failing := &failingObjectStore{ObjectStore: stores.Objects}
	stores.Objects = failing
	monsters, items := testTables()
	m := NewManager(stores, event.NewBus(zap.NewNop()), monsters, items, rand.New(rand.NewSource(1)), zap.NewNop())
	ctx := context.Background()

	_, err := m.CreateRoom(ctx, room("town_square", nil))
	require.NoError(t, err)
	_, err = m.CreateObject(ctx, &model.GameObject{
		ID:       "sword_1",
		Name:     model.Loc("iron sword", "철검"),
		Location: RoomLocation("town_square"),
	})
	require.NoError(t, err)

	failing.failUpdate = true
	err = m.MoveObject(ctx, "sword_1", PlayerLocation(42))
	require.Error(t, err)
	assert.Equal(t, mud.Storage, mud.KindOf(err))

	// The in-memory move was undone.
	assert.Len(t, m.RoomObjects("town_square"), 1)
	assert.Empty(t, m.InventoryObjects(42))
}

func TestFindRoomObjectByLocalizedName(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateObject(ctx, &model.GameObject{
		ID:       "dagger_1",
		Name:     model.Loc("rusty dagger", "녹슨 단검"),
		Location: RoomLocation("town_square"),
	})
	require.NoError(t, err)

	byEnglish, err := m.FindRoomObject("town_square", "Rusty Dagger", "ko")
	require.NoError(t, err)
	assert.Equal(t, "dagger_1", byEnglish.ID)

	byKorean, err := m.FindRoomObject("town_square", "녹슨 단검", "ko")
	require.NoError(t, err)
	assert.Equal(t, "dagger_1", byKorean.ID)

	_, err = m.FindRoomObject("town_square", "golden crown", "en")
	assert.Equal(t, mud.NotFound, mud.KindOf(err))
}

func TestSpawnAllRoomsRespectsCap(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	n, err := m.SpawnAllRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, m.MonstersInRoom("forest"), 2)

	// Re-running tops up nothing while everyone is alive.
	n, err = m.SpawnAllRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, m.MonstersInRoom("forest"), 2)
}

func TestKillAndRespawn(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.SpawnAllRooms(ctx)
	require.NoError(t, err)
	victim := m.MonstersInRoom("forest")[0]

	now := time.Now()
	require.NoError(t, m.KillMonster(ctx, victim.ID, now))
	assert.Len(t, m.MonstersInRoom("forest"), 1)
	assert.Equal(t, 1, m.PendingRespawns())

	// Not due yet.
	revived, err := m.RespawnDue(ctx, now.Add(10*time.Second))
	require.NoError(t, err)
	assert.Empty(t, revived)

	revived, err = m.RespawnDue(ctx, now.Add(31*time.Second))
	require.NoError(t, err)
	require.Len(t, revived, 1)
	assert.Equal(t, victim.ID, revived[0].ID)
	assert.True(t, revived[0].Alive)
	assert.Equal(t, revived[0].Stats.MaxHP, revived[0].Stats.HP)
	assert.Len(t, m.MonstersInRoom("forest"), 2)
	assert.Equal(t, 0, m.PendingRespawns())
}

func TestKillMonsterTwiceIsNoop(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	mon, err := m.SpawnMonster(ctx, "goblin", "cave")
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, m.KillMonster(ctx, mon.ID, now))
	require.NoError(t, m.KillMonster(ctx, mon.ID, now))
	assert.Equal(t, 1, m.PendingRespawns())
}

func TestDropLootUsesDropTable(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	mon, err := m.SpawnMonster(ctx, "goblin", "forest")
	require.NoError(t, err)

	dropped, err := m.DropLoot(ctx, mon)
	require.NoError(t, err)
	require.Len(t, dropped, 1) // goblin dagger drops at chance 1.0
	assert.Equal(t, "rusty dagger", dropped[0].Name.Pick("en"))

	inRoom := m.RoomObjects("forest")
	require.Len(t, inRoom, 1)
	assert.Equal(t, dropped[0].ID, inRoom[0].ID)
}

func TestMerchantSpawnsWithStock(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	mon, err := m.SpawnMonster(ctx, "shopkeeper", "town_square")
	require.NoError(t, err)
	require.True(t, mon.Merchant())

	merchant, ok := m.MerchantInRoom("town_square")
	require.True(t, ok)
	assert.Equal(t, mon.ID, merchant.ID)

	stock := m.NPCInventory(mon.ID)
	require.Len(t, stock, 1)
	assert.Equal(t, "health potion", stock[0].Name.Pick("en"))
	assert.Equal(t, 25, stock[0].Price())
}

func TestMovePlayerTracksRooms(t *testing.T) {
	m, _ := newTestManager(t)

	require.NoError(t, m.PlacePlayer(1, "town_square"))
	require.NoError(t, m.PlacePlayer(2, "town_square"))
	assert.Equal(t, []int64{1, 2}, m.PlayersInRoom("town_square"))
	assert.Equal(t, 2, m.PlacedPlayers())

	from, err := m.MovePlayer(1, "forest")
	require.NoError(t, err)
	assert.Equal(t, "town_square", from)
	assert.Equal(t, []int64{2}, m.PlayersInRoom("town_square"))
	assert.Equal(t, []int64{1}, m.PlayersInRoom("forest"))

	got, ok := m.PlayerRoom(1)
	require.True(t, ok)
	assert.Equal(t, "forest", got)

	// Moving into the current room keeps the indices intact.
	from, err = m.MovePlayer(1, "forest")
	require.NoError(t, err)
	assert.Equal(t, "forest", from)
	assert.Equal(t, []int64{1}, m.PlayersInRoom("forest"))

	m.RemovePlayer(1)
	assert.Empty(t, m.PlayersInRoom("forest"))
	assert.Equal(t, 1, m.PlacedPlayers())
}

func TestPlanRoamStepsStaysInsideArea(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	// Goblin homed in town_square with roam range 1: forest is allowed,
	// cave (two steps away) is not.
	mon, err := m.SpawnMonster(ctx, "goblin", "town_square")
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		plans := m.PlanRoamSteps(nil)
		for _, p := range plans {
			if p.MonsterID != mon.ID {
				continue
			}
			assert.Contains(t, []string{"town_square", "forest"}, p.ToRoom)
			require.NoError(t, m.MoveMonster(ctx, p.MonsterID, p.ToRoom))
		}
	}
	got, err := m.Monster(mon.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "cave", got.CurrentRoomID)
}

func TestPlanRoamStepsSkipsBusyMonsters(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	mon, err := m.SpawnMonster(ctx, "goblin", "forest")
	require.NoError(t, err)

	plans := m.PlanRoamSteps(func(id int64) bool { return id == mon.ID })
	for _, p := range plans {
		assert.NotEqual(t, mon.ID, p.MonsterID)
	}
}

func TestHydrateRebuildsIndices(t *testing.T) {
	m, stores := newTestManager(t)
	ctx := context.Background()

	_, err := m.SpawnAllRooms(ctx)
	require.NoError(t, err)
	_, err = m.CreateObject(ctx, &model.GameObject{
		ID:       "sword_1",
		Name:     model.Loc("iron sword", "철검"),
		Location: RoomLocation("forest"),
	})
	require.NoError(t, err)

	// A second manager over the same store sees the same world.
	monsters, items := testTables()
	fresh := NewManager(stores, event.NewBus(zap.NewNop()), monsters, items, rand.New(rand.NewSource(1)), zap.NewNop())
	require.NoError(t, fresh.Hydrate(ctx))

	assert.Equal(t, 3, fresh.RoomCount())
	assert.Len(t, fresh.MonstersInRoom("forest"), 2)
	assert.Len(t, fresh.RoomObjects("forest"), 1)
}

func TestSeedIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	wf := &data.WorldFile{
		Rooms: []data.RoomSeed{
			{
				ID:          "temple",
				Name:        map[string]string{"en": "Temple", "ko": "신전"},
				Description: map[string]string{"en": "A quiet temple.", "ko": "조용한 신전."},
				Exits:       map[string]string{"south": "town_square"},
			},
			{
				ID:          "town_square", // already exists, skipped
				Name:        map[string]string{"en": "Town Square", "ko": "마을 광장"},
				Description: map[string]string{"en": "The square.", "ko": "광장."},
			},
		},
		Objects: []data.ObjectSeed{
			{ID: "potion_1", Template: "health_potion", Kind: "room", HolderID: "temple"},
		},
	}

	rooms, objects, err := m.Seed(ctx, wf)
	require.NoError(t, err)
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 1, objects)

	rooms, objects, err = m.Seed(ctx, wf)
	require.NoError(t, err)
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 0, objects)
}
