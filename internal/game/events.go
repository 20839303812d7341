package game

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/duskmud/server/internal/core/sched"
	"github.com/duskmud/server/internal/net"
)

// registerEvents wires the engine's periodic work into the shared
// scheduler. The names are what admins see in scheduler list.
func (e *Engine) registerEvents() error {
	events := []struct {
		name   string
		phases []int
		fn     sched.Func
	}{
		{"monster_respawn", []int{0, 15, 30, 45}, e.respawnSweep},
		{"monster_roam", []int{15, 45}, e.roamStep},
		{"combat_timeout", []int{0, 15, 30, 45}, e.combatSweep},
		{"idle_cleanup", []int{0, 30}, e.idleSweep},
		{"autosave", []int{0}, e.autosave},
	}
	for _, ev := range events {
		if err := e.sched.Register(ev.name, ev.phases, ev.fn); err != nil {
			return err
		}
	}
	return nil
}

// respawnSweep revives monsters whose timers expired and announces them
// in their spawn rooms.
func (e *Engine) respawnSweep(ctx context.Context, _ int) error {
	revived, err := e.world.RespawnDue(ctx, time.Now())
	if err != nil {
		return err
	}
	for _, mon := range revived {
		e.BroadcastRoom(mon.CurrentRoomID, net.NewMsg(net.TypeRoomMessage).
			With("room_id", mon.CurrentRoomID).
			With("message", e.catalog.T("en", "world.monster_respawn", mon.Name.Pick("en"))), "")
	}
	return nil
}

// roamStep advances every roaming and patrolling monster one room.
// Monsters locked in a fight are excluded by the planner.
func (e *Engine) roamStep(ctx context.Context, _ int) error {
	for _, step := range e.world.PlanRoamSteps(e.combat.MonsterBusy) {
		mon, err := e.world.Monster(step.MonsterID)
		if err != nil {
			continue
		}
		if err := e.world.MoveMonster(ctx, step.MonsterID, step.ToRoom); err != nil {
			e.log.Debug("roam step skipped",
				zap.Int64("monster", step.MonsterID),
				zap.Error(err))
			continue
		}
		name := mon.Name.Pick("en")
		e.BroadcastRoom(step.FromRoom, net.NewMsg(net.TypeRoomMessage).
			With("room_id", step.FromRoom).
			With("message", e.catalog.T("en", "world.monster_leaves", name)), "")
		e.BroadcastRoom(step.ToRoom, net.NewMsg(net.TypeRoomMessage).
			With("room_id", step.ToRoom).
			With("message", e.catalog.T("en", "world.monster_arrives", name)), "")
	}
	return nil
}

// combatSweep force-advances stalled turns and ends instances idle past
// the combat timeout.
func (e *Engine) combatSweep(ctx context.Context, _ int) error {
	e.combat.SweepTimeouts(ctx, time.Now())
	return nil
}

// idleSweep disconnects sessions that have sent nothing for longer than
// the configured idle window.
func (e *Engine) idleSweep(ctx context.Context, _ int) error {
	limit := e.cfg.Server.IdleTimeout
	if limit <= 0 {
		return nil
	}
	now := time.Now()
	for _, sess := range e.allSessions() {
		if sess.State() == net.StateClosing || sess.IsClosed() {
			continue
		}
		if now.Sub(sess.IdleSince()) <= limit {
			continue
		}
		sess.Send(net.System(e.catalog.T(sess.LocaleCode(), "system.idle_timeout")))
		sess.SetState(net.StateClosing)
		go sess.CloseGracefully(e.cfg.Server.ShutdownGrace)
		e.log.Info("idle session closed",
			zap.String("session", sess.ID),
			zap.String("username", sess.Username()))
	}
	return nil
}

// autosave flushes dirty players on the minute.
func (e *Engine) autosave(ctx context.Context, _ int) error {
	if n := e.saveDirty(ctx); n > 0 {
		e.log.Debug("autosave", zap.Int("players", n))
	}
	return nil
}
