package persist

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/duskmud/server/internal/model"
	"github.com/duskmud/server/internal/mud"
)

// NewMemStores builds a store set backed by process memory. It serves
// the test suite and DATABASE_URL=memory deployments; it honors the
// same error contract as the PostgreSQL repositories.
func NewMemStores() *Stores {
	return &Stores{
		Players:  NewMemPlayerStore(),
		Rooms:    NewMemRoomStore(),
		Objects:  NewMemObjectStore(),
		Monsters: NewMemMonsterStore(),
		History:  NewMemHistoryStore(),
	}
}

// --- players ---

type MemPlayerStore struct {
	mu     sync.RWMutex
	byID   map[int64]*model.Player
	byName map[string]int64
	nextID int64
}

func NewMemPlayerStore() *MemPlayerStore {
	return &MemPlayerStore{byID: make(map[int64]*model.Player), byName: make(map[string]int64)}
}

func (s *MemPlayerStore) GetByID(_ context.Context, id int64) (*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, mud.E(mud.NotFound, "no_such_player", "player not found")
	}
	out := p.Clone()
	out.Stats.Derive(out.Level)
	return out, nil
}

func (s *MemPlayerStore) GetByUsername(_ context.Context, username string) (*model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[username]
	if !ok {
		return nil, mud.E(mud.NotFound, "no_such_player", "player not found")
	}
	out := s.byID[id].Clone()
	out.Stats.Derive(out.Level)
	return out, nil
}

func (s *MemPlayerStore) Create(_ context.Context, p *model.Player) (*model.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byName[p.Username]; taken {
		return nil, mud.E(mud.Conflict, "duplicate_key", "username %q already exists", p.Username)
	}
	s.nextID++
	stored := p.Clone()
	stored.ID = s.nextID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.byID[stored.ID] = stored
	s.byName[stored.Username] = stored.ID
	return stored.Clone(), nil
}

func (s *MemPlayerStore) Update(_ context.Context, p *model.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.byID[p.ID]
	if !ok {
		return mud.E(mud.NotFound, "no_such_player", "player %d not found", p.ID)
	}
	if old.Username != p.Username {
		if _, taken := s.byName[p.Username]; taken {
			return mud.E(mud.Conflict, "duplicate_key", "username %q already exists", p.Username)
		}
		delete(s.byName, old.Username)
		s.byName[p.Username] = p.ID
	}
	s.byID[p.ID] = p.Clone()
	return nil
}

func (s *MemPlayerStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return mud.E(mud.NotFound, "no_such_player", "player %d not found", id)
	}
	delete(s.byName, p.Username)
	delete(s.byID, id)
	return nil
}

func (s *MemPlayerStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

// --- rooms ---

type MemRoomStore struct {
	mu   sync.RWMutex
	byID map[string]*model.Room
}

func NewMemRoomStore() *MemRoomStore {
	return &MemRoomStore{byID: make(map[string]*model.Room)}
}

func (s *MemRoomStore) GetByID(_ context.Context, id string) (*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return nil, mud.E(mud.NotFound, "no_such_room", "room %q not found", id)
	}
	return r.Clone(), nil
}

func (s *MemRoomStore) List(context.Context) ([]*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*model.Room, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.byID[id].Clone())
	}
	return out, nil
}

func (s *MemRoomStore) Create(_ context.Context, r *model.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[r.ID]; exists {
		return mud.E(mud.Conflict, "duplicate_key", "room %q already exists", r.ID)
	}
	s.byID[r.ID] = r.Clone()
	return nil
}

func (s *MemRoomStore) Update(_ context.Context, r *model.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[r.ID]; !ok {
		return mud.E(mud.NotFound, "no_such_room", "room %q not found", r.ID)
	}
	s.byID[r.ID] = r.Clone()
	return nil
}

func (s *MemRoomStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return mud.E(mud.NotFound, "no_such_room", "room %q not found", id)
	}
	delete(s.byID, id)
	return nil
}

func (s *MemRoomStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

// --- objects ---

type MemObjectStore struct {
	mu   sync.RWMutex
	byID map[string]*model.GameObject
}

func NewMemObjectStore() *MemObjectStore {
	return &MemObjectStore{byID: make(map[string]*model.GameObject)}
}

func (s *MemObjectStore) GetByID(_ context.Context, id string) (*model.GameObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.byID[id]
	if !ok {
		return nil, mud.E(mud.NotFound, "no_such_object", "object %q not found", id)
	}
	return o.Clone(), nil
}

func (s *MemObjectStore) List(context.Context) ([]*model.GameObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(*model.GameObject) bool { return true }), nil
}

func (s *MemObjectStore) ListByLocation(_ context.Context, loc model.Location) ([]*model.GameObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(o *model.GameObject) bool { return o.Location == loc }), nil
}

// collect is called with the read lock held.
func (s *MemObjectStore) collect(keep func(*model.GameObject) bool) []*model.GameObject {
	ids := make([]string, 0, len(s.byID))
	for id, o := range s.byID {
		if keep(o) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	out := make([]*model.GameObject, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

func (s *MemObjectStore) Create(_ context.Context, o *model.GameObject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[o.ID]; exists {
		return mud.E(mud.Conflict, "duplicate_key", "object %q already exists", o.ID)
	}
	s.byID[o.ID] = o.Clone()
	return nil
}

func (s *MemObjectStore) Update(_ context.Context, o *model.GameObject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[o.ID]; !ok {
		return mud.E(mud.NotFound, "no_such_object", "object %q not found", o.ID)
	}
	s.byID[o.ID] = o.Clone()
	return nil
}

func (s *MemObjectStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return mud.E(mud.NotFound, "no_such_object", "object %q not found", id)
	}
	delete(s.byID, id)
	return nil
}

func (s *MemObjectStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

// --- monsters ---

type MemMonsterStore struct {
	mu     sync.RWMutex
	byID   map[int64]*model.Monster
	nextID int64
}

func NewMemMonsterStore() *MemMonsterStore {
	return &MemMonsterStore{byID: make(map[int64]*model.Monster)}
}

func (s *MemMonsterStore) GetByID(_ context.Context, id int64) (*model.Monster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, mud.E(mud.NotFound, "no_such_monster", "monster %d not found", id)
	}
	return m.Clone(), nil
}

func (s *MemMonsterStore) List(context.Context) ([]*model.Monster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(*model.Monster) bool { return true }), nil
}

func (s *MemMonsterStore) ListByRoom(_ context.Context, roomID string) ([]*model.Monster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(m *model.Monster) bool { return m.CurrentRoomID == roomID }), nil
}

// collect is called with the read lock held.
func (s *MemMonsterStore) collect(keep func(*model.Monster) bool) []*model.Monster {
	ids := make([]int64, 0, len(s.byID))
	for id, m := range s.byID {
		if keep(m) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*model.Monster, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

func (s *MemMonsterStore) Create(_ context.Context, m *model.Monster) (*model.Monster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	stored := m.Clone()
	stored.ID = s.nextID
	s.byID[stored.ID] = stored
	return stored.Clone(), nil
}

func (s *MemMonsterStore) Update(_ context.Context, m *model.Monster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[m.ID]; !ok {
		return mud.E(mud.NotFound, "no_such_monster", "monster %d not found", m.ID)
	}
	s.byID[m.ID] = m.Clone()
	return nil
}

func (s *MemMonsterStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return mud.E(mud.NotFound, "no_such_monster", "monster %d not found", id)
	}
	delete(s.byID, id)
	return nil
}

func (s *MemMonsterStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

// --- session history ---

type MemHistoryStore struct {
	mu     sync.Mutex
	byID   map[int64]*SessionRecord
	open   map[string]int64 // session id → open record
	nextID int64
}

func NewMemHistoryStore() *MemHistoryStore {
	return &MemHistoryStore{byID: make(map[int64]*SessionRecord), open: make(map[string]int64)}
}

func (s *MemHistoryStore) Open(_ context.Context, rec *SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	cp := *rec
	s.byID[rec.ID] = &cp
	s.open[rec.SessionID] = rec.ID
	return nil
}

func (s *MemHistoryStore) Close(_ context.Context, sessionID string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.open[sessionID]
	if !ok {
		return nil // no open row; same as the SQL no-op
	}
	end := endedAt
	s.byID[id].EndedAt = &end
	delete(s.open, sessionID)
	return nil
}

// Record returns the most recent history row for a session id.
func (s *MemHistoryStore) Record(sessionID string) (SessionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *SessionRecord
	for _, rec := range s.byID {
		if rec.SessionID == sessionID && (best == nil || rec.ID > best.ID) {
			best = rec
		}
	}
	if best == nil {
		return SessionRecord{}, false
	}
	return *best, true
}
