package combat

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type instState int

const (
	stateActive instState = iota
	stateEnded
)

// Instance is one room-bound encounter. All mutation happens under mu;
// the engine holds it across a full action resolution so a fight is
// internally serial.
type Instance struct {
	ID     string
	RoomID string

	mu         sync.Mutex
	combatants map[string]*Combatant
	turnOrder  []string
	turnIdx    int
	turnNumber int
	state      instState
	startedAt  time.Time
	lastAction time.Time
	forcedWait bool // a timeout sweep already skipped the current turn

	// combatant ids removed since the last cleanup (fled, disconnected)
	removed []string
}

func newInstance(roomID string, now time.Time) *Instance {
	return &Instance{
		ID:         uuid.NewString(),
		RoomID:     roomID,
		combatants: make(map[string]*Combatant),
		turnNumber: 1,
		startedAt:  now,
		lastAction: now,
	}
}

// add registers a combatant at the end of the insertion order.
func (inst *Instance) add(c *Combatant) {
	inst.combatants[c.ID] = c
	inst.turnOrder = append(inst.turnOrder, c.ID)
}

// orderTurns sorts the turn order by descending speed, ties keeping
// insertion order. Called once before the first turn.
func (inst *Instance) orderTurns() {
	sort.SliceStable(inst.turnOrder, func(i, j int) bool {
		return inst.combatants[inst.turnOrder[i]].Speed > inst.combatants[inst.turnOrder[j]].Speed
	})
	inst.turnIdx = 0
}

// current returns the combatant whose turn it is, nil when empty.
func (inst *Instance) current() *Combatant {
	if inst.turnIdx < 0 || inst.turnIdx >= len(inst.turnOrder) {
		return nil
	}
	return inst.combatants[inst.turnOrder[inst.turnIdx]]
}

// advance moves to the next alive combatant, bumping turn_number on
// wrap. With nobody alive it leaves the index in place; the end check
// owns that case.
func (inst *Instance) advance() {
	for i := 0; i < len(inst.turnOrder); i++ {
		inst.turnIdx++
		if inst.turnIdx >= len(inst.turnOrder) {
			inst.turnIdx = 0
			inst.turnNumber++
		}
		if cur := inst.current(); cur != nil && cur.Alive {
			return
		}
	}
}

// ensureCurrentAlive repositions onto an alive combatant after a removal
// without consuming anyone's turn.
func (inst *Instance) ensureCurrentAlive() {
	if cur := inst.current(); cur == nil || !cur.Alive {
		inst.advance()
	}
}

// remove deletes a combatant entirely (flee, disconnect). When the
// removed slot is before the current index the index shifts back so the
// current combatant keeps its turn; removing the current combatant
// leaves the index on whoever was next.
func (inst *Instance) remove(id string) {
	idx := -1
	for i, cid := range inst.turnOrder {
		if cid == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}
	inst.turnOrder = append(inst.turnOrder[:idx], inst.turnOrder[idx+1:]...)
	delete(inst.combatants, id)
	inst.removed = append(inst.removed, id)

	if idx < inst.turnIdx {
		inst.turnIdx--
	}
	if inst.turnIdx >= len(inst.turnOrder) {
		inst.turnIdx = 0
		if len(inst.turnOrder) > 0 {
			inst.turnNumber++
		}
	}
}

// takeRemoved drains the pending removals for registry cleanup.
func (inst *Instance) takeRemoved() []string {
	out := inst.removed
	inst.removed = nil
	return out
}

func (inst *Instance) alivePlayers() []*Combatant {
	return inst.aliveOf(KindPlayer)
}

func (inst *Instance) aliveMonsters() []*Combatant {
	return inst.aliveOf(KindMonster)
}

func (inst *Instance) aliveOf(kind Kind) []*Combatant {
	var out []*Combatant
	for _, id := range inst.turnOrder {
		c := inst.combatants[id]
		if c.Kind == kind && c.Alive {
			out = append(out, c)
		}
	}
	return out
}

// players returns every player combatant still in the instance, dead or
// alive, in turn order.
func (inst *Instance) players() []*Combatant {
	var out []*Combatant
	for _, id := range inst.turnOrder {
		if c := inst.combatants[id]; c.Kind == KindPlayer {
			out = append(out, c)
		}
	}
	return out
}

func (inst *Instance) monsters() []*Combatant {
	var out []*Combatant
	for _, id := range inst.turnOrder {
		if c := inst.combatants[id]; c.Kind == KindMonster {
			out = append(out, c)
		}
	}
	return out
}

// findMonsterTarget resolves a player's attack target: empty picks the
// first alive monster, otherwise match combatant id, then name
// (case-insensitive).
func (inst *Instance) findMonsterTarget(query string) *Combatant {
	alive := inst.aliveMonsters()
	if len(alive) == 0 {
		return nil
	}
	if query == "" {
		return alive[0]
	}
	for _, c := range alive {
		if c.ID == query {
			return c
		}
	}
	for _, c := range alive {
		if strings.EqualFold(c.Name, query) {
			return c
		}
	}
	return nil
}
