// Package world owns the in-memory game state: rooms, objects, monsters,
// and the per-room player index. Repositories hydrate it once at startup;
// afterwards every read is served from memory and every write goes through
// the Manager, which mirrors it to the store.
//
// Locking model: the registry mutex guards the index maps and is held only
// for map access, never across a store call. Per-room locks serialize
// compound operations (object moves, spawning, player placement);
// operations touching two rooms take both locks in room-id order. Mirror
// writes happen after the in-memory commit, and a failed write rolls the
// memory change back; spawning alone holds its room token across the
// store create so the per-room cap stays exact.
package world

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/duskmud/server/internal/core/event"
	"github.com/duskmud/server/internal/data"
	"github.com/duskmud/server/internal/model"
	"github.com/duskmud/server/internal/mud"
	"github.com/duskmud/server/internal/persist"
)

type respawnEntry struct {
	monsterID int64
	roomID    string // spawn room the monster returns to
	at        time.Time
}

// Manager is the world state owner. Construct one per engine.
type Manager struct {
	stores   *persist.Stores
	bus      *event.Bus
	monsters *data.MonsterTable
	items    *data.ItemTable
	log      *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	mu             sync.RWMutex
	roomsByID      map[string]*model.Room
	objectsByID    map[string]*model.GameObject
	monstersByID   map[int64]*model.Monster
	objectsByLoc   map[model.Location]map[string]bool
	monstersByRoom map[string]map[int64]bool // alive monsters only
	playersByRoom  map[string]map[int64]bool
	playerRoom     map[int64]string
	roomLocks      map[string]*sync.Mutex
	roamHome       map[int64]string          // monster id → spawn room
	roamArea       map[int64]map[string]bool // monster id → rooms within roaming range
	respawns       []respawnEntry
}

func NewManager(stores *persist.Stores, bus *event.Bus, monsters *data.MonsterTable, items *data.ItemTable, rng *rand.Rand, log *zap.Logger) *Manager {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Manager{
		stores:         stores,
		bus:            bus,
		monsters:       monsters,
		items:          items,
		log:            log,
		rng:            rng,
		roomsByID:      make(map[string]*model.Room),
		objectsByID:    make(map[string]*model.GameObject),
		monstersByID:   make(map[int64]*model.Monster),
		objectsByLoc:   make(map[model.Location]map[string]bool),
		monstersByRoom: make(map[string]map[int64]bool),
		playersByRoom:  make(map[string]map[int64]bool),
		playerRoom:     make(map[int64]string),
		roomLocks:      make(map[string]*sync.Mutex),
		roamHome:       make(map[int64]string),
		roamArea:       make(map[int64]map[string]bool),
	}
}

// Hydrate loads every room, object, and monster from the store into the
// in-memory indices. Call once before the first command is served.
func (m *Manager) Hydrate(ctx context.Context) error {
	rooms, err := m.stores.Rooms.List(ctx)
	if err != nil {
		return err
	}
	objects, err := m.stores.Objects.List(ctx)
	if err != nil {
		return err
	}
	monsters, err := m.stores.Monsters.List(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rooms {
		m.roomsByID[r.ID] = r
		m.roomLocks[r.ID] = &sync.Mutex{}
	}
	for _, o := range objects {
		m.objectsByID[o.ID] = o
		m.indexObjectLocked(o)
	}
	now := time.Now()
	for _, mon := range monsters {
		m.monstersByID[mon.ID] = mon
		m.roamHome[mon.ID] = mon.CurrentRoomID
		m.buildRoamAreaLocked(mon)
		if mon.Alive {
			m.indexMonsterLocked(mon)
		} else {
			// Killed before the last shutdown: due immediately.
			m.respawns = append(m.respawns, respawnEntry{monsterID: mon.ID, roomID: mon.CurrentRoomID, at: now})
		}
	}
	return nil
}

// indexObjectLocked adds o to the location index. Registry mutex held.
func (m *Manager) indexObjectLocked(o *model.GameObject) {
	set := m.objectsByLoc[o.Location]
	if set == nil {
		set = make(map[string]bool)
		m.objectsByLoc[o.Location] = set
	}
	set[o.ID] = true
}

func (m *Manager) unindexObjectLocked(o *model.GameObject) {
	if set := m.objectsByLoc[o.Location]; set != nil {
		delete(set, o.ID)
		if len(set) == 0 {
			delete(m.objectsByLoc, o.Location)
		}
	}
}

func (m *Manager) indexMonsterLocked(mon *model.Monster) {
	set := m.monstersByRoom[mon.CurrentRoomID]
	if set == nil {
		set = make(map[int64]bool)
		m.monstersByRoom[mon.CurrentRoomID] = set
	}
	set[mon.ID] = true
}

func (m *Manager) unindexMonsterLocked(mon *model.Monster) {
	if set := m.monstersByRoom[mon.CurrentRoomID]; set != nil {
		delete(set, mon.ID)
		if len(set) == 0 {
			delete(m.monstersByRoom, mon.CurrentRoomID)
		}
	}
}

// roomLock returns the per-room token, creating it for new rooms.
func (m *Manager) roomLock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lk, ok := m.roomLocks[id]
	if !ok {
		lk = &sync.Mutex{}
		m.roomLocks[id] = lk
	}
	return lk
}

// lockRooms acquires the locks for the given room ids in id order and
// returns the unlock function. Duplicate ids are collapsed.
func (m *Manager) lockRooms(ids ...string) func() {
	uniq := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			uniq = append(uniq, id)
		}
	}
	sort.Strings(uniq)
	locks := make([]*sync.Mutex, len(uniq))
	for i, id := range uniq {
		locks[i] = m.roomLock(id)
		locks[i].Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

// --- rooms ---

func (m *Manager) Room(id string) (*model.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.roomsByID[id]
	if !ok {
		return nil, mud.E(mud.NotFound, "no_such_room", "room %q does not exist", id)
	}
	return r.Clone(), nil
}

// HasRoom is the presence probe used on hot paths (exit validation).
func (m *Manager) HasRoom(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.roomsByID[id]
	return ok
}

// Rooms returns every room sorted by id.
func (m *Manager) Rooms() []*model.Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.roomsByID))
	for id := range m.roomsByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*model.Room, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.roomsByID[id].Clone())
	}
	return out
}

// CreateRoom adds a room. Seeding an id that already exists is a no-op
// success (created=false).
func (m *Manager) CreateRoom(ctx context.Context, r *model.Room) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, err
	}
	unlock := m.lockRooms(r.ID)
	defer unlock()

	m.mu.Lock()
	if _, exists := m.roomsByID[r.ID]; exists {
		m.mu.Unlock()
		return false, nil
	}
	m.roomsByID[r.ID] = r.Clone()
	m.mu.Unlock()

	if err := m.stores.Rooms.Create(ctx, r); err != nil && mud.KindOf(err) != mud.Conflict {
		m.mu.Lock()
		delete(m.roomsByID, r.ID)
		m.mu.Unlock()
		return false, err
	}
	event.Emit(m.bus, event.RoomUpdated{RoomID: r.ID})
	return true, nil
}

func (m *Manager) UpdateRoom(ctx context.Context, r *model.Room) error {
	if err := r.Validate(); err != nil {
		return err
	}
	unlock := m.lockRooms(r.ID)
	defer unlock()

	m.mu.Lock()
	old, ok := m.roomsByID[r.ID]
	if !ok {
		m.mu.Unlock()
		return mud.E(mud.NotFound, "no_such_room", "room %q does not exist", r.ID)
	}
	m.roomsByID[r.ID] = r.Clone()
	m.mu.Unlock()

	if err := m.stores.Rooms.Update(ctx, r); err != nil {
		m.mu.Lock()
		m.roomsByID[r.ID] = old
		m.mu.Unlock()
		return err
	}
	event.Emit(m.bus, event.RoomUpdated{RoomID: r.ID})
	return nil
}

// DeleteRoom removes an empty room. Rooms holding players or monsters
// refuse deletion; exits pointing at the room elsewhere become dangling
// and are the admin's cleanup to do.
func (m *Manager) DeleteRoom(ctx context.Context, id string) error {
	unlock := m.lockRooms(id)
	defer unlock()

	m.mu.Lock()
	old, ok := m.roomsByID[id]
	if !ok {
		m.mu.Unlock()
		return mud.E(mud.NotFound, "no_such_room", "room %q does not exist", id)
	}
	if len(m.playersByRoom[id]) > 0 {
		m.mu.Unlock()
		return mud.E(mud.State, "room_occupied", "room %q still has players in it", id)
	}
	if len(m.monstersByRoom[id]) > 0 {
		m.mu.Unlock()
		return mud.E(mud.State, "room_occupied", "room %q still has monsters in it", id)
	}
	delete(m.roomsByID, id)
	delete(m.roomLocks, id)
	m.mu.Unlock()

	if err := m.stores.Rooms.Delete(ctx, id); err != nil && mud.KindOf(err) != mud.NotFound {
		m.mu.Lock()
		m.roomsByID[id] = old
		m.roomLocks[id] = &sync.Mutex{}
		m.mu.Unlock()
		return err
	}
	event.Emit(m.bus, event.RoomUpdated{RoomID: id})
	return nil
}

// SetExit wires rooms[from].exits[dir] = to. Both rooms must exist.
func (m *Manager) SetExit(ctx context.Context, from string, dir model.Direction, to string) error {
	if !dir.Valid() {
		return mud.E(mud.Input, "bad_direction", "%q is not a direction", dir)
	}
	if !m.HasRoom(to) {
		return mud.E(mud.NotFound, "no_such_room", "room %q does not exist", to)
	}
	room, err := m.Room(from)
	if err != nil {
		return err
	}
	if room.Exits == nil {
		room.Exits = make(map[model.Direction]string)
	}
	room.Exits[dir] = to
	return m.UpdateRoom(ctx, room)
}

// --- objects ---

func (m *Manager) Object(id string) (*model.GameObject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objectsByID[id]
	if !ok {
		return nil, mud.E(mud.NotFound, "no_such_object", "object %q does not exist", id)
	}
	return o.Clone(), nil
}

// CreateObject adds an object at its location. Idempotent for seeds.
func (m *Manager) CreateObject(ctx context.Context, o *model.GameObject) (bool, error) {
	if err := o.Validate(); err != nil {
		return false, err
	}
	if o.Location.Kind == model.InRoom && !m.HasRoom(o.Location.ID) {
		return false, mud.E(mud.NotFound, "no_such_room", "room %q does not exist", o.Location.ID)
	}

	m.mu.Lock()
	if _, exists := m.objectsByID[o.ID]; exists {
		m.mu.Unlock()
		return false, nil
	}
	cp := o.Clone()
	m.objectsByID[o.ID] = cp
	m.indexObjectLocked(cp)
	m.mu.Unlock()

	if err := m.stores.Objects.Create(ctx, o); err != nil && mud.KindOf(err) != mud.Conflict {
		m.mu.Lock()
		m.unindexObjectLocked(cp)
		delete(m.objectsByID, o.ID)
		m.mu.Unlock()
		return false, err
	}
	return true, nil
}

// MoveObject relocates an object, updating both sides of the move
// atomically and emitting ObjectMoved. Holder rooms are locked in id
// order; inventory locations take no room lock since inventories are
// serialized by the owning session.
func (m *Manager) MoveObject(ctx context.Context, objID string, to model.Location) error {
	if !to.Kind.Valid() || to.ID == "" {
		return mud.E(mud.Input, "bad_location", "object destination is malformed")
	}
	if to.Kind == model.InRoom && !m.HasRoom(to.ID) {
		return mud.E(mud.NotFound, "no_such_room", "room %q does not exist", to.ID)
	}

	// Take the room tokens for any room endpoints of the move.
	m.mu.RLock()
	cur, ok := m.objectsByID[objID]
	var fromLoc model.Location
	if ok {
		fromLoc = cur.Location
	}
	m.mu.RUnlock()
	if !ok {
		return mud.E(mud.NotFound, "no_such_object", "object %q does not exist", objID)
	}
	var roomIDs []string
	if fromLoc.Kind == model.InRoom {
		roomIDs = append(roomIDs, fromLoc.ID)
	}
	if to.Kind == model.InRoom {
		roomIDs = append(roomIDs, to.ID)
	}
	unlock := m.lockRooms(roomIDs...)
	defer unlock()

	m.mu.Lock()
	obj, ok := m.objectsByID[objID]
	if !ok {
		m.mu.Unlock()
		return mud.E(mud.NotFound, "no_such_object", "object %q does not exist", objID)
	}
	from := obj.Location
	if from == to {
		m.mu.Unlock()
		return nil
	}
	m.unindexObjectLocked(obj)
	obj.Location = to
	m.indexObjectLocked(obj)
	snapshot := obj.Clone()
	m.mu.Unlock()

	if err := m.stores.Objects.Update(ctx, snapshot); err != nil {
		m.mu.Lock()
		if cur, ok := m.objectsByID[objID]; ok {
			m.unindexObjectLocked(cur)
			cur.Location = from
			m.indexObjectLocked(cur)
		}
		m.mu.Unlock()
		return err
	}

	event.Emit(m.bus, event.ObjectMoved{
		ObjectID: objID,
		FromKind: string(from.Kind), FromID: from.ID,
		ToKind: string(to.Kind), ToID: to.ID,
	})
	return nil
}

// DeleteObject removes an object outright (admin cleanup, consumed items).
func (m *Manager) DeleteObject(ctx context.Context, id string) error {
	m.mu.Lock()
	obj, ok := m.objectsByID[id]
	if !ok {
		m.mu.Unlock()
		return mud.E(mud.NotFound, "no_such_object", "object %q does not exist", id)
	}
	m.unindexObjectLocked(obj)
	delete(m.objectsByID, id)
	m.mu.Unlock()

	if err := m.stores.Objects.Delete(ctx, id); err != nil && mud.KindOf(err) != mud.NotFound {
		m.mu.Lock()
		m.objectsByID[id] = obj
		m.indexObjectLocked(obj)
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Manager) objectsAt(loc model.Location) []*model.GameObject {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.objectsByLoc[loc]))
	for id := range m.objectsByLoc[loc] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*model.GameObject, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.objectsByID[id].Clone())
	}
	return out
}

func (m *Manager) RoomObjects(roomID string) []*model.GameObject {
	return m.objectsAt(model.Location{Kind: model.InRoom, ID: roomID})
}

func (m *Manager) InventoryObjects(playerID int64) []*model.GameObject {
	return m.objectsAt(model.Location{Kind: model.InPlayerInventory, ID: playerKey(playerID)})
}

func (m *Manager) NPCInventory(npcID int64) []*model.GameObject {
	return m.objectsAt(model.Location{Kind: model.InNPCInventory, ID: npcKey(npcID)})
}

// InventoryIDs returns the object ids a player carries, for persistence.
func (m *Manager) InventoryIDs(playerID int64) []string {
	objs := m.InventoryObjects(playerID)
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = o.ID
	}
	return out
}

// CarriedWeight sums the weight of a player's inventory.
func (m *Manager) CarriedWeight(playerID int64) int {
	total := 0
	for _, o := range m.InventoryObjects(playerID) {
		total += o.Weight
	}
	return total
}

// findObject matches query against id, then localized then English names,
// case-insensitively.
func findObject(objs []*model.GameObject, query, loc string) *model.GameObject {
	q := strings.ToLower(strings.TrimSpace(query))
	for _, o := range objs {
		if strings.ToLower(o.ID) == q {
			return o
		}
	}
	for _, o := range objs {
		if strings.ToLower(o.Name.Pick(loc)) == q || strings.ToLower(o.Name.Pick("en")) == q {
			return o
		}
	}
	return nil
}

func (m *Manager) FindRoomObject(roomID, query, loc string) (*model.GameObject, error) {
	if o := findObject(m.RoomObjects(roomID), query, loc); o != nil {
		return o, nil
	}
	return nil, mud.E(mud.NotFound, "no_such_object_here", "there is no %q here", query)
}

func (m *Manager) FindInventoryObject(playerID int64, query, loc string) (*model.GameObject, error) {
	if o := findObject(m.InventoryObjects(playerID), query, loc); o != nil {
		return o, nil
	}
	return nil, mud.E(mud.NotFound, "not_carrying", "you are not carrying %q", query)
}

func (m *Manager) FindNPCObject(npcID int64, query, loc string) (*model.GameObject, error) {
	if o := findObject(m.NPCInventory(npcID), query, loc); o != nil {
		return o, nil
	}
	return nil, mud.E(mud.NotFound, "not_in_stock", "%q is not in stock", query)
}

// PlayerLocation is the inventory location key for a player id.
func PlayerLocation(playerID int64) model.Location {
	return model.Location{Kind: model.InPlayerInventory, ID: playerKey(playerID)}
}

// NPCLocation is the inventory location key for a monster id.
func NPCLocation(npcID int64) model.Location {
	return model.Location{Kind: model.InNPCInventory, ID: npcKey(npcID)}
}

// RoomLocation is the object location key for a room id.
func RoomLocation(roomID string) model.Location {
	return model.Location{Kind: model.InRoom, ID: roomID}
}

// --- monsters ---

func (m *Manager) Monster(id int64) (*model.Monster, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mon, ok := m.monstersByID[id]
	if !ok {
		return nil, mud.E(mud.NotFound, "no_such_monster", "monster %d does not exist", id)
	}
	return mon.Clone(), nil
}

// MonstersInRoom returns the alive monsters in a room sorted by id.
func (m *Manager) MonstersInRoom(roomID string) []*model.Monster {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int64, 0, len(m.monstersByRoom[roomID]))
	for id := range m.monstersByRoom[roomID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*model.Monster, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.monstersByID[id].Clone())
	}
	return out
}

// MerchantInRoom returns the first merchant NPC in the room, if any.
func (m *Manager) MerchantInRoom(roomID string) (*model.Monster, bool) {
	for _, mon := range m.MonstersInRoom(roomID) {
		if mon.Merchant() {
			return mon, true
		}
	}
	return nil, false
}

// FindMonsterInRoom matches an alive monster by template id or name.
func (m *Manager) FindMonsterInRoom(roomID, query, loc string) (*model.Monster, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	monsters := m.MonstersInRoom(roomID)
	for _, mon := range monsters {
		if strings.ToLower(mon.TemplateID) == q {
			return mon, nil
		}
	}
	for _, mon := range monsters {
		if strings.ToLower(mon.Name.Pick(loc)) == q || strings.ToLower(mon.Name.Pick("en")) == q {
			return mon, nil
		}
	}
	return nil, mud.E(mud.NotFound, "no_such_monster_here", "there is no %q here", query)
}

// SpawnMonster stamps a live monster from a template into a room. The
// room token is held across the cap check and the store create so
// concurrent spawns cannot overshoot.
func (m *Manager) SpawnMonster(ctx context.Context, templateID, roomID string) (*model.Monster, error) {
	tmpl := m.monsters.Get(templateID)
	if tmpl == nil {
		return nil, mud.E(mud.NotFound, "no_such_template", "monster template %q does not exist", templateID)
	}
	if !m.HasRoom(roomID) {
		return nil, mud.E(mud.NotFound, "no_such_room", "room %q does not exist", roomID)
	}

	unlock := m.lockRooms(roomID)
	defer unlock()
	return m.spawnLocked(ctx, tmpl, roomID)
}

// spawnLocked creates the monster. Caller holds the room token.
func (m *Manager) spawnLocked(ctx context.Context, tmpl *data.MonsterTemplate, roomID string) (*model.Monster, error) {
	mon := tmpl.NewMonster(roomID)
	created, err := m.stores.Monsters.Create(ctx, mon)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.monstersByID[created.ID] = created.Clone()
	m.indexMonsterLocked(created)
	m.roamHome[created.ID] = roomID
	m.buildRoamAreaLocked(created)
	m.mu.Unlock()

	// Merchants carry their shop stock as npc_inventory objects.
	if created.Merchant() && m.items != nil {
		m.stockMerchant(ctx, created, tmpl.ShopItems)
	}

	event.Emit(m.bus, event.RoomUpdated{RoomID: roomID})
	return created.Clone(), nil
}

// stockMerchant instantiates a merchant's shop items, skipping ids that
// already exist so respawns do not duplicate stock.
func (m *Manager) stockMerchant(ctx context.Context, mon *model.Monster, shopItems []string) {
	for _, itemID := range shopItems {
		tmpl := m.items.Get(itemID)
		if tmpl == nil {
			m.log.Warn("merchant stocks unknown item template",
				zap.String("template", mon.TemplateID),
				zap.String("item", itemID))
			continue
		}
		objID := mon.TemplateID + "_" + itemID
		obj := tmpl.NewObject(objID, NPCLocation(mon.ID))
		if _, err := m.CreateObject(ctx, obj); err != nil {
			m.log.Error("stock merchant item", zap.String("object", objID), zap.Error(err))
		}
	}
}

// buildRoamAreaLocked precomputes the rooms a roaming monster may enter:
// everything reachable from its home room within RoamingRange steps.
// Registry mutex held.
func (m *Manager) buildRoamAreaLocked(mon *model.Monster) {
	if mon.Behavior == model.Stationary || mon.RoamingRange <= 0 {
		return
	}
	home := m.roamHome[mon.ID]
	area := map[string]bool{home: true}
	frontier := []string{home}
	for step := 0; step < mon.RoamingRange && len(frontier) > 0; step++ {
		var next []string
		for _, id := range frontier {
			room, ok := m.roomsByID[id]
			if !ok {
				continue
			}
			for _, target := range room.Exits {
				if !area[target] {
					if _, exists := m.roomsByID[target]; exists {
						area[target] = true
						next = append(next, target)
					}
				}
			}
		}
		frontier = next
	}
	m.roamArea[mon.ID] = area
}

// DespawnMonster removes a monster entirely (admin/cleanup path).
func (m *Manager) DespawnMonster(ctx context.Context, id int64) error {
	m.mu.Lock()
	mon, ok := m.monstersByID[id]
	if !ok {
		m.mu.Unlock()
		return mud.E(mud.NotFound, "no_such_monster", "monster %d does not exist", id)
	}
	if mon.Alive {
		m.unindexMonsterLocked(mon)
	}
	delete(m.monstersByID, id)
	delete(m.roamHome, id)
	delete(m.roamArea, id)
	roomID := mon.CurrentRoomID
	m.mu.Unlock()

	if err := m.stores.Monsters.Delete(ctx, id); err != nil && mud.KindOf(err) != mud.NotFound {
		m.mu.Lock()
		m.monstersByID[id] = mon
		if mon.Alive {
			m.indexMonsterLocked(mon)
		}
		m.mu.Unlock()
		return err
	}
	event.Emit(m.bus, event.RoomUpdated{RoomID: roomID})
	return nil
}

// SpawnAllRooms walks every spawn point and tops the room up to its cap.
// Existing alive monsters of the template count against the cap, so
// re-running is idempotent.
func (m *Manager) SpawnAllRooms(ctx context.Context) (int, error) {
	spawned := 0
	for _, room := range m.Rooms() {
		if len(room.SpawnPoints) == 0 {
			continue
		}
		unlock := m.lockRooms(room.ID)
		for _, sp := range room.SpawnPoints {
			alive := m.aliveOfTemplate(room.ID, sp.TemplateID)
			for i := alive; i < sp.Count; i++ {
				tmpl := m.monsters.Get(sp.TemplateID)
				if tmpl == nil {
					m.log.Warn("spawn point names unknown template",
						zap.String("room", room.ID),
						zap.String("template", sp.TemplateID))
					break
				}
				if _, err := m.spawnLocked(ctx, tmpl, room.ID); err != nil {
					unlock()
					return spawned, err
				}
				spawned++
			}
		}
		unlock()
	}
	return spawned, nil
}

func (m *Manager) aliveOfTemplate(roomID, templateID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for id := range m.monstersByRoom[roomID] {
		if mon := m.monstersByID[id]; mon != nil && mon.TemplateID == templateID {
			n++
		}
	}
	return n
}

// UpdateMonster writes combat results (HP) back to a live monster.
func (m *Manager) UpdateMonsterHP(ctx context.Context, id int64, hp int) error {
	m.mu.Lock()
	mon, ok := m.monstersByID[id]
	if !ok {
		m.mu.Unlock()
		return mud.E(mud.NotFound, "no_such_monster", "monster %d does not exist", id)
	}
	old := mon.Stats.HP
	if hp > mon.Stats.MaxHP {
		hp = mon.Stats.MaxHP
	}
	mon.Stats.HP = hp
	snapshot := mon.Clone()
	m.mu.Unlock()

	if err := m.stores.Monsters.Update(ctx, snapshot); err != nil {
		m.mu.Lock()
		if cur, ok := m.monstersByID[id]; ok {
			cur.Stats.HP = old
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

// KillMonster marks a monster dead, removes it from the room index, and
// queues its respawn at now + respawn_time back at its spawn room.
func (m *Manager) KillMonster(ctx context.Context, id int64, now time.Time) error {
	m.mu.Lock()
	mon, ok := m.monstersByID[id]
	if !ok {
		m.mu.Unlock()
		return mud.E(mud.NotFound, "no_such_monster", "monster %d does not exist", id)
	}
	if !mon.Alive {
		m.mu.Unlock()
		return nil
	}
	m.unindexMonsterLocked(mon)
	mon.Alive = false
	mon.Stats.HP = 0
	home := m.roamHome[id]
	if home == "" {
		home = mon.CurrentRoomID
	}
	m.respawns = append(m.respawns, respawnEntry{monsterID: id, roomID: home, at: now.Add(mon.RespawnAfter())})
	roomID := mon.CurrentRoomID
	snapshot := mon.Clone()
	m.mu.Unlock()

	if err := m.stores.Monsters.Update(ctx, snapshot); err != nil {
		m.log.Error("persist monster death", zap.Int64("monster", id), zap.Error(err))
	}
	event.Emit(m.bus, event.RoomUpdated{RoomID: roomID})
	return nil
}

// DropLoot rolls a dead monster's drop table and places the results in
// its room. Returns the dropped objects.
func (m *Manager) DropLoot(ctx context.Context, mon *model.Monster) ([]*model.GameObject, error) {
	if m.items == nil {
		return nil, nil
	}
	var dropped []*model.GameObject
	for _, d := range mon.DropItems {
		m.rngMu.Lock()
		roll := m.rng.Float64()
		qty := d.MinQty
		if d.MaxQty > d.MinQty {
			qty += m.rng.Intn(d.MaxQty - d.MinQty + 1)
		}
		m.rngMu.Unlock()
		if roll >= d.Chance {
			continue
		}
		tmpl := m.items.Get(d.TemplateID)
		if tmpl == nil {
			m.log.Warn("drop table names unknown item", zap.String("item", d.TemplateID))
			continue
		}
		for i := 0; i < qty; i++ {
			objID := newDropID(d.TemplateID, mon.ID, i)
			obj := tmpl.NewObject(objID, RoomLocation(mon.CurrentRoomID))
			created, err := m.CreateObject(ctx, obj)
			if err != nil {
				return dropped, err
			}
			if created {
				dropped = append(dropped, obj)
			}
		}
	}
	return dropped, nil
}

var dropSeq int64
var dropSeqMu sync.Mutex

func newDropID(templateID string, monsterID int64, n int) string {
	dropSeqMu.Lock()
	dropSeq++
	seq := dropSeq
	dropSeqMu.Unlock()
	return "drop_" + templateID + "_" + itoa(monsterID) + "_" + itoa(seq) + "_" + itoa(int64(n))
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var b [20]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return string(b[i:])
}

// RespawnDue revives every queued monster whose timer expired: full HP,
// alive, back at its spawn room. Returns the revived monsters.
func (m *Manager) RespawnDue(ctx context.Context, now time.Time) ([]*model.Monster, error) {
	m.mu.Lock()
	var due []respawnEntry
	var rest []respawnEntry
	for _, e := range m.respawns {
		if !e.at.After(now) {
			due = append(due, e)
		} else {
			rest = append(rest, e)
		}
	}
	m.respawns = rest
	m.mu.Unlock()

	var revived []*model.Monster
	for _, e := range due {
		unlock := m.lockRooms(e.roomID)

		m.mu.Lock()
		mon, ok := m.monstersByID[e.monsterID]
		if !ok || mon.Alive {
			m.mu.Unlock()
			unlock()
			continue
		}
		mon.CurrentRoomID = e.roomID
		mon.Alive = true
		mon.Stats.HP = mon.Stats.MaxHP
		m.indexMonsterLocked(mon)
		snapshot := mon.Clone()
		m.mu.Unlock()
		unlock()

		if err := m.stores.Monsters.Update(ctx, snapshot); err != nil {
			m.log.Error("persist monster respawn", zap.Int64("monster", e.monsterID), zap.Error(err))
		}
		event.Emit(m.bus, event.RoomUpdated{RoomID: e.roomID})
		revived = append(revived, snapshot)
	}
	return revived, nil
}

// PendingRespawns reports the queue length (admin scheduler info).
func (m *Manager) PendingRespawns() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.respawns)
}

// MoveMonster relocates an alive monster between rooms.
func (m *Manager) MoveMonster(ctx context.Context, id int64, toRoom string) error {
	if !m.HasRoom(toRoom) {
		return mud.E(mud.NotFound, "no_such_room", "room %q does not exist", toRoom)
	}
	m.mu.RLock()
	mon, ok := m.monstersByID[id]
	var fromRoom string
	if ok {
		fromRoom = mon.CurrentRoomID
	}
	m.mu.RUnlock()
	if !ok {
		return mud.E(mud.NotFound, "no_such_monster", "monster %d does not exist", id)
	}
	if fromRoom == toRoom {
		return nil
	}

	unlock := m.lockRooms(fromRoom, toRoom)
	defer unlock()

	m.mu.Lock()
	mon, ok = m.monstersByID[id]
	if !ok || !mon.Alive {
		m.mu.Unlock()
		return mud.E(mud.State, "monster_dead", "monster %d is not alive", id)
	}
	old := mon.CurrentRoomID
	m.unindexMonsterLocked(mon)
	mon.CurrentRoomID = toRoom
	m.indexMonsterLocked(mon)
	snapshot := mon.Clone()
	m.mu.Unlock()

	if err := m.stores.Monsters.Update(ctx, snapshot); err != nil {
		m.mu.Lock()
		if cur, ok := m.monstersByID[id]; ok {
			m.unindexMonsterLocked(cur)
			cur.CurrentRoomID = old
			m.indexMonsterLocked(cur)
		}
		m.mu.Unlock()
		return err
	}
	event.Emit(m.bus, event.RoomUpdated{RoomID: old})
	event.Emit(m.bus, event.RoomUpdated{RoomID: toRoom})
	return nil
}

// RoamingCandidate describes one monster roam decision.
type RoamingCandidate struct {
	MonsterID int64
	FromRoom  string
	ToRoom    string
}

// PlanRoamSteps picks the next step for every alive roaming or patrolling
// monster that is not excluded (monsters in combat are). Roamers pick a
// random exit inside their precomputed area; patrollers take the first
// allowed exit in canonical direction order, preferring not to backtrack.
func (m *Manager) PlanRoamSteps(inCombat func(int64) bool) []RoamingCandidate {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0, len(m.monstersByID))
	for id := range m.monstersByID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var plans []RoamingCandidate
	for _, id := range ids {
		mon := m.monstersByID[id]
		if !mon.Alive || mon.Behavior == model.Stationary {
			continue
		}
		if inCombat != nil && inCombat(id) {
			continue
		}
		room, ok := m.roomsByID[mon.CurrentRoomID]
		if !ok || len(room.Exits) == 0 {
			continue
		}
		area := m.roamArea[id]
		var targets []string
		for _, d := range model.AllDirections {
			t, ok := room.Exits[d]
			if !ok {
				continue
			}
			if area != nil && !area[t] {
				continue
			}
			targets = append(targets, t)
		}
		if len(targets) == 0 {
			continue
		}
		var to string
		if mon.Behavior == model.Patrolling {
			to = targets[0]
		} else {
			m.rngMu.Lock()
			to = targets[m.rng.Intn(len(targets))]
			m.rngMu.Unlock()
		}
		plans = append(plans, RoamingCandidate{MonsterID: id, FromRoom: mon.CurrentRoomID, ToRoom: to})
	}
	return plans
}

// --- players ---

func playerKey(id int64) string { return itoa(id) }
func npcKey(id int64) string    { return itoa(id) }

// PlacePlayer puts a player into a room (login, respawn).
func (m *Manager) PlacePlayer(playerID int64, roomID string) error {
	if !m.HasRoom(roomID) {
		return mud.E(mud.NotFound, "no_such_room", "room %q does not exist", roomID)
	}
	unlock := m.lockRooms(roomID)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.playerRoom[playerID]; ok {
		if set := m.playersByRoom[cur]; set != nil {
			delete(set, playerID)
			if len(set) == 0 {
				delete(m.playersByRoom, cur)
			}
		}
	}
	set := m.playersByRoom[roomID]
	if set == nil {
		set = make(map[int64]bool)
		m.playersByRoom[roomID] = set
	}
	set[playerID] = true
	m.playerRoom[playerID] = roomID
	return nil
}

// RemovePlayer drops a player from the indices (logout, disconnect).
func (m *Manager) RemovePlayer(playerID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.playerRoom[playerID]
	if !ok {
		return
	}
	if set := m.playersByRoom[cur]; set != nil {
		delete(set, playerID)
		if len(set) == 0 {
			delete(m.playersByRoom, cur)
		}
	}
	delete(m.playerRoom, playerID)
}

// MovePlayer switches a player's room, returning the room they left.
// Moving to the current room is a no-op.
func (m *Manager) MovePlayer(playerID int64, toRoom string) (string, error) {
	if !m.HasRoom(toRoom) {
		return "", mud.E(mud.NotFound, "no_such_room", "room %q does not exist", toRoom)
	}
	m.mu.RLock()
	from, ok := m.playerRoom[playerID]
	m.mu.RUnlock()
	if !ok {
		return "", mud.E(mud.State, "not_in_world", "player %d is not placed in the world", playerID)
	}
	if from == toRoom {
		return from, nil
	}

	unlock := m.lockRooms(from, toRoom)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.playerRoom[playerID]
	if set := m.playersByRoom[cur]; set != nil {
		delete(set, playerID)
		if len(set) == 0 {
			delete(m.playersByRoom, cur)
		}
	}
	set := m.playersByRoom[toRoom]
	if set == nil {
		set = make(map[int64]bool)
		m.playersByRoom[toRoom] = set
	}
	set[playerID] = true
	m.playerRoom[playerID] = toRoom
	return cur, nil
}

// PlayersInRoom returns the player ids present in a room, sorted.
func (m *Manager) PlayersInRoom(roomID string) []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int64, 0, len(m.playersByRoom[roomID]))
	for id := range m.playersByRoom[roomID] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Manager) PlayerRoom(playerID int64) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.playerRoom[playerID]
	return id, ok
}

// PlacedPlayers counts players currently placed in the world. Must equal
// the number of authenticated sessions.
func (m *Manager) PlacedPlayers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.playerRoom)
}

// --- counts (startup banner, tests) ---

func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.roomsByID)
}

func (m *Manager) ObjectCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objectsByID)
}

func (m *Manager) MonsterCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.monstersByID)
}
