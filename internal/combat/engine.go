// Package combat owns turn-based encounter instances: creation on aggro
// or player attack, turn order, action resolution, scripted monster
// policy, timeouts, and result write-back. It talks to sessions only
// through the Hook so the game engine stays the single owner of session
// state.
package combat

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/duskmud/server/internal/core/event"
	"github.com/duskmud/server/internal/locale"
	"github.com/duskmud/server/internal/model"
	"github.com/duskmud/server/internal/mud"
	"github.com/duskmud/server/internal/net"
	"github.com/duskmud/server/internal/scripting"
	"github.com/duskmud/server/internal/world"
)

// Hook is what combat needs from the game engine.
type Hook interface {
	// NotifyPlayer enqueues a message to the player's session, if any.
	NotifyPlayer(playerID int64, msg net.Msg)
	// BroadcastRoom fans a message out to every session in the room.
	BroadcastRoom(roomID string, msg net.Msg, excludeSession string)
	// ApplyCombatResult writes a fight's outcome back to the player:
	// final HP plus accumulated gold and experience.
	ApplyCombatResult(ctx context.Context, playerID int64, hp, goldDelta, expDelta int)
	// FleeTeleport moves a fleeing player to a safe adjacent room.
	// Returns the destination and whether a move happened.
	FleeTeleport(ctx context.Context, playerID int64, fromRoom string) (string, bool)
	// OnPlayerDeath applies the minimal death handling after write-back.
	OnPlayerDeath(ctx context.Context, playerID int64)
}

// Action is one player combat decision.
type Action struct {
	Kind   string // attack, defend, flee, wait
	Target string // combatant id or display name; empty picks the first alive monster
}

// Engine tracks every active instance and resolves all combat actions.
type Engine struct {
	world   *world.Manager
	hook    Hook
	ai      *scripting.Engine
	catalog *locale.Catalog
	bus     *event.Bus
	timeout time.Duration
	log     *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	mu        sync.Mutex
	instances map[string]*Instance
	byPlayer  map[int64]string
	byMonster map[int64]string
}

func New(w *world.Manager, hook Hook, ai *scripting.Engine, catalog *locale.Catalog, bus *event.Bus, timeout time.Duration, rng *rand.Rand, log *zap.Logger) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Engine{
		world:     w,
		hook:      hook,
		ai:        ai,
		catalog:   catalog,
		bus:       bus,
		timeout:   timeout,
		log:       log,
		rng:       rng,
		instances: make(map[string]*Instance),
		byPlayer:  make(map[int64]string),
		byMonster: make(map[int64]string),
	}
}

// InCombat reports whether the player is inside an active instance.
func (e *Engine) InCombat(playerID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.byPlayer[playerID]
	return ok
}

// MonsterBusy reports whether the monster is inside an active instance.
// The roam planner uses it to keep fighting monsters in place.
func (e *Engine) MonsterBusy(monsterID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.byMonster[monsterID]
	return ok
}

// ActiveCount is the number of live instances (admin info).
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.instances)
}

func (e *Engine) instanceFor(playerID int64) *Instance {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.byPlayer[playerID]
	if !ok {
		return nil
	}
	return e.instances[id]
}

// EngageOnEntry runs the aggro check after a player enters a room:
// every alive aggressive monster not already fighting joins one new
// instance against the player. Reports whether combat started.
func (e *Engine) EngageOnEntry(ctx context.Context, ref PlayerRef, roomID string) bool {
	e.mu.Lock()
	if _, busy := e.byPlayer[ref.ID]; busy {
		e.mu.Unlock()
		return false
	}
	var hostiles []*model.Monster
	for _, mon := range e.world.MonstersInRoom(roomID) {
		if mon.Type != model.Aggressive {
			continue
		}
		if _, fighting := e.byMonster[mon.ID]; fighting {
			continue
		}
		hostiles = append(hostiles, mon)
	}
	if len(hostiles) == 0 {
		e.mu.Unlock()
		return false
	}
	inst := e.buildInstance(ref, roomID, hostiles)
	e.mu.Unlock()

	e.announceStart(ctx, inst, hostiles[0], true)
	return true
}

// StartAttack is the player-initiated path: attack a specific monster
// while not already in combat. Merchants never fight back and cannot be
// attacked.
func (e *Engine) StartAttack(ctx context.Context, ref PlayerRef, roomID string, monsterID int64) error {
	mon, err := e.world.Monster(monsterID)
	if err != nil {
		return err
	}
	if !mon.Alive || mon.CurrentRoomID != roomID {
		return mud.E(mud.NotFound, "no_such_monster_here", "there is no such monster here")
	}
	if mon.Merchant() {
		return mud.E(mud.Input, "cannot_attack_merchant", "%s is not interested in fighting", mon.Name.Pick("en"))
	}

	e.mu.Lock()
	if _, busy := e.byPlayer[ref.ID]; busy {
		e.mu.Unlock()
		return mud.E(mud.State, "already_in_combat", "you are already fighting")
	}
	if _, fighting := e.byMonster[mon.ID]; fighting {
		e.mu.Unlock()
		return mud.E(mud.State, "monster_busy", "%s is already fighting someone else", mon.Name.Pick("en"))
	}
	inst := e.buildInstance(ref, roomID, []*model.Monster{mon})
	e.mu.Unlock()

	e.announceStart(ctx, inst, mon, false)
	return nil
}

// buildInstance creates and registers an instance. Caller holds e.mu.
func (e *Engine) buildInstance(ref PlayerRef, roomID string, monsters []*model.Monster) *Instance {
	inst := newInstance(roomID, time.Now())
	inst.add(newPlayerCombatant(ref))
	for _, mon := range monsters {
		inst.add(newMonsterCombatant(mon))
	}
	inst.orderTurns()

	e.instances[inst.ID] = inst
	e.byPlayer[ref.ID] = inst.ID
	for _, mon := range monsters {
		e.byMonster[mon.ID] = inst.ID
	}
	return inst
}

// announceStart sends the aggro/start/turn envelopes and, when the first
// turn belongs to a monster, resolves monster turns immediately.
func (e *Engine) announceStart(ctx context.Context, inst *Instance, lead *model.Monster, aggro bool) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.state != stateActive {
		return
	}

	playerIDs, monsterIDs := inst.refIDs()

	if aggro {
		e.notifyPlayers(inst, func(p *Combatant) net.Msg {
			return net.NewMsg(net.TypeMonsterAggro).
				With("monster_id", lead.ID).
				With("name", lead.Name.Pick(p.Locale)).
				With("message", e.catalog.T(p.Locale, "combat.aggro", lead.Name.Pick(p.Locale)))
		})
	}

	order := append([]string(nil), inst.turnOrder...)
	views := inst.combatantViews()
	e.notifyPlayers(inst, func(p *Combatant) net.Msg {
		return net.NewMsg(net.TypeCombatStart).
			With("instance_id", inst.ID).
			With("room_id", inst.RoomID).
			With("combatants", views).
			With("turn_order", order).
			With("message", e.catalog.T(p.Locale, "combat.start"))
	})
	for _, p := range inst.players() {
		e.hook.BroadcastRoom(inst.RoomID, net.NewMsg(net.TypeRoomMessage).
			With("message", e.catalog.T("en", "combat.room_start", p.Name, lead.Name.Pick("en"))),
			p.SessionID)
	}

	event.Emit(e.bus, event.CombatStarted{
		InstanceID: inst.ID,
		RoomID:     inst.RoomID,
		PlayerIDs:  playerIDs,
		MonsterIDs: monsterIDs,
	})

	e.startTurn(ctx, inst)
	e.runMonsterTurns(ctx, inst)
	e.finishMutation(ctx, inst)
}

// Submit resolves one player action. It is an error to act outside an
// instance or out of turn; those do not consume the turn.
func (e *Engine) Submit(ctx context.Context, playerID int64, act Action) error {
	inst := e.instanceFor(playerID)
	if inst == nil {
		return mud.E(mud.State, "not_in_combat", "you are not in combat")
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.state != stateActive {
		return mud.E(mud.State, "not_in_combat", "you are not in combat")
	}
	cur := inst.current()
	cid := playerCombatantID(playerID)
	if cur == nil || cur.ID != cid {
		return mud.E(mud.State, "not_your_turn", "it is not your turn")
	}

	advanced, err := e.resolvePlayerAction(ctx, inst, cur, act)
	if err != nil {
		return err
	}

	inst.lastAction = time.Now()
	inst.forcedWait = false

	if !e.checkEnd(ctx, inst) {
		if advanced {
			inst.ensureCurrentAlive()
		} else {
			inst.advance()
		}
		e.startTurn(ctx, inst)
		e.runMonsterTurns(ctx, inst)
	}
	e.finishMutation(ctx, inst)
	return nil
}

// StatusFor renders the combat_status envelope for the player's fight.
func (e *Engine) StatusFor(playerID int64) (net.Msg, error) {
	inst := e.instanceFor(playerID)
	if inst == nil {
		return nil, mud.E(mud.State, "not_in_combat", "you are not in combat")
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.state != stateActive {
		return nil, mud.E(mud.State, "not_in_combat", "you are not in combat")
	}
	msg := net.NewMsg(net.TypeCombatStatus).
		With("instance_id", inst.ID).
		With("room_id", inst.RoomID).
		With("turn_number", inst.turnNumber).
		With("combatants", inst.combatantViews())
	if cur := inst.current(); cur != nil {
		msg.With("current_turn", cur.ID).With("current_name", cur.Name)
	}
	return msg, nil
}

// RemovePlayer unwinds a disconnecting player from their fight: write
// back results, drop the combatant, end the instance if it empties.
func (e *Engine) RemovePlayer(ctx context.Context, playerID int64) {
	inst := e.instanceFor(playerID)
	if inst == nil {
		return
	}
	inst.mu.Lock()
	if inst.state != stateActive {
		inst.mu.Unlock()
		return
	}
	cid := playerCombatantID(playerID)
	c, ok := inst.combatants[cid]
	wasCurrent := false
	if ok {
		e.hook.ApplyCombatResult(ctx, c.RefID, c.HP, c.GoldEarned, c.ExpEarned)
		wasCurrent = inst.current() == c
		inst.remove(cid)
		if wasCurrent {
			inst.ensureCurrentAlive()
		}
		e.notifyPlayers(inst, func(p *Combatant) net.Msg {
			return e.combatLine(inst, "leave", e.catalog.T(p.Locale, "combat.left", c.Name)).
				With("combatant_id", cid)
		})
	}
	if !e.checkEnd(ctx, inst) && wasCurrent {
		e.startTurn(ctx, inst)
		e.runMonsterTurns(ctx, inst)
	}
	e.finishMutation(ctx, inst)
	inst.mu.Unlock()
}

// SweepTimeouts is the scheduler hook. An instance with no player action
// for the timeout gets its current turn forced to wait; if a full
// further window passes with still no action it is force-ended.
func (e *Engine) SweepTimeouts(ctx context.Context, now time.Time) {
	e.mu.Lock()
	insts := make([]*Instance, 0, len(e.instances))
	for _, inst := range e.instances {
		insts = append(insts, inst)
	}
	e.mu.Unlock()

	for _, inst := range insts {
		inst.mu.Lock()
		if inst.state != stateActive || now.Sub(inst.lastAction) < e.timeout {
			inst.mu.Unlock()
			continue
		}
		if inst.forcedWait {
			e.log.Info("combat instance timed out", zap.String("instance", inst.ID))
			e.endInstance(ctx, inst, "aborted")
		} else {
			inst.forcedWait = true
			inst.lastAction = now
			if cur := inst.current(); cur != nil {
				cur.Defending = false
				e.notifyPlayers(inst, func(p *Combatant) net.Msg {
					return e.combatLine(inst, "skip", e.catalog.T(p.Locale, "combat.skip", cur.Name))
				})
			}
			if !e.checkEnd(ctx, inst) {
				inst.advance()
				e.startTurn(ctx, inst)
				e.runMonsterTurns(ctx, inst)
			}
		}
		e.finishMutation(ctx, inst)
		inst.mu.Unlock()
	}
}

// finishMutation runs registry cleanup for removals and endings produced
// by the mutation the caller just performed. inst.mu must be held.
func (e *Engine) finishMutation(ctx context.Context, inst *Instance) {
	removed := inst.takeRemoved()
	ended := inst.state == stateEnded
	if len(removed) == 0 && !ended {
		return
	}
	e.mu.Lock()
	for _, cid := range removed {
		e.dropRef(cid, inst.ID)
	}
	if ended {
		for cid := range inst.combatants {
			e.dropRef(cid, inst.ID)
		}
		delete(e.instances, inst.ID)
	}
	e.mu.Unlock()
}

// dropRef unindexes a combatant id if it still points at this instance.
func (e *Engine) dropRef(cid, instID string) {
	kind, refID, ok := parseCombatantID(cid)
	if !ok {
		return
	}
	switch kind {
	case KindPlayer:
		if e.byPlayer[refID] == instID {
			delete(e.byPlayer, refID)
		}
	case KindMonster:
		if e.byMonster[refID] == instID {
			delete(e.byMonster, refID)
		}
	}
}

// refIDs lists player and monster ref ids in the instance.
func (inst *Instance) refIDs() (players, monsters []int64) {
	for _, id := range inst.turnOrder {
		c := inst.combatants[id]
		if c.Kind == KindPlayer {
			players = append(players, c.RefID)
		} else {
			monsters = append(monsters, c.RefID)
		}
	}
	return
}

func (inst *Instance) combatantViews() []map[string]any {
	views := make([]map[string]any, 0, len(inst.turnOrder))
	for _, id := range inst.turnOrder {
		views = append(views, inst.combatants[id].statusView())
	}
	return views
}
