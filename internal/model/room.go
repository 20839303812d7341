package model

import (
	"sort"
	"time"

	"github.com/duskmud/server/internal/mud"
)

// Room is a node of the world graph. Exits are one-way edges; reciprocal
// links are conventional, not required.
type Room struct {
	ID          string               `json:"id"`
	Name        LocMap               `json:"name"`
	Description LocMap               `json:"description"`
	Exits       map[Direction]string `json:"exits"`
	SpawnPoints []SpawnPoint         `json:"spawn_points,omitempty"`
}

// SpawnPoint governs monster (re)creation inside one room.
type SpawnPoint struct {
	RoomID     string `json:"room_id"`
	TemplateID string `json:"template_id"`
	Count      int    `json:"count"`
	RespawnSec int    `json:"respawn_time"`
	Roaming    bool   `json:"roaming_enabled"`
}

// RespawnAfter is the delay before a killed monster of this point returns.
func (p SpawnPoint) RespawnAfter() time.Duration {
	return time.Duration(p.RespawnSec) * time.Second
}

// Exit returns the target room id for a direction, if the exit exists.
func (r *Room) Exit(d Direction) (string, bool) {
	id, ok := r.Exits[d]
	return id, ok
}

// ExitDirections lists the room's exits in the canonical direction order.
func (r *Room) ExitDirections() []Direction {
	out := make([]Direction, 0, len(r.Exits))
	for _, d := range AllDirections {
		if _, ok := r.Exits[d]; ok {
			out = append(out, d)
		}
	}
	return out
}

func (r *Room) Validate() error {
	if r.ID == "" {
		return mud.E(mud.Input, "invalid_room", "room id must not be empty")
	}
	if err := r.Name.Validate(); err != nil {
		return err
	}
	if err := r.Description.Validate(); err != nil {
		return err
	}
	for d := range r.Exits {
		if !d.Valid() {
			return mud.E(mud.Input, "invalid_room", "room %s has unknown exit direction %q", r.ID, d)
		}
	}
	for _, sp := range r.SpawnPoints {
		if sp.TemplateID == "" || sp.Count < 1 {
			return mud.E(mud.Input, "invalid_room", "room %s has a malformed spawn point", r.ID)
		}
	}
	return nil
}

// Clone deep-copies the room so manager internals never alias caller maps.
func (r *Room) Clone() *Room {
	cp := *r
	cp.Name = cloneLocMap(r.Name)
	cp.Description = cloneLocMap(r.Description)
	if r.Exits != nil {
		cp.Exits = make(map[Direction]string, len(r.Exits))
		for d, id := range r.Exits {
			cp.Exits[d] = id
		}
	}
	cp.SpawnPoints = append([]SpawnPoint(nil), r.SpawnPoints...)
	return &cp
}

func cloneLocMap(m LocMap) LocMap {
	if m == nil {
		return nil
	}
	cp := make(LocMap, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// SortedRoomIDs is the fixed global lock order for multi-room operations.
func SortedRoomIDs(ids ...string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}
