package combat

import (
	"context"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/duskmud/server/internal/core/event"
	"github.com/duskmud/server/internal/mud"
	"github.com/duskmud/server/internal/net"
	"github.com/duskmud/server/internal/scripting"
)

// uniform returns a sample from [lo, hi).
func (e *Engine) uniform(lo, hi float64) float64 {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return lo + e.rng.Float64()*(hi-lo)
}

// chance rolls a probability in [0,1].
func (e *Engine) chance(p float64) bool {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Float64() < p
}

func (e *Engine) intn(n int) int {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Intn(n)
}

// notifyPlayers sends a per-recipient message to every player combatant
// still in the instance, dead ones included. inst.mu must be held.
func (e *Engine) notifyPlayers(inst *Instance, build func(p *Combatant) net.Msg) {
	for _, p := range inst.players() {
		e.hook.NotifyPlayer(p.RefID, build(p))
	}
}

// combatLine is the common combat_message envelope.
func (e *Engine) combatLine(inst *Instance, action, text string) net.Msg {
	return net.NewMsg(net.TypeCombatMessage).
		With("instance_id", inst.ID).
		With("action", action).
		With("message", text)
}

// startTurn clears the new current combatant's guard and announces the
// turn. inst.mu must be held.
func (e *Engine) startTurn(ctx context.Context, inst *Instance) {
	cur := inst.current()
	if cur == nil || inst.state != stateActive {
		return
	}
	cur.Defending = false
	e.notifyPlayers(inst, func(p *Combatant) net.Msg {
		var text string
		if p.ID == cur.ID {
			text = e.catalog.T(p.Locale, "combat.your_turn")
		} else {
			text = e.catalog.T(p.Locale, "combat.turn", cur.Name)
		}
		return net.NewMsg(net.TypeTurnStart).
			With("instance_id", inst.ID).
			With("turn_number", inst.turnNumber).
			With("combatant_id", cur.ID).
			With("name", cur.Name).
			With("message", text)
	})
}

// runMonsterTurns resolves consecutive monster turns until a player's
// turn comes up or the instance ends. inst.mu must be held. Monster
// actions never refresh lastAction, so an all-monster stall still trips
// the timeout sweep.
func (e *Engine) runMonsterTurns(ctx context.Context, inst *Instance) {
	for i := 0; i < len(inst.turnOrder)*2+2; i++ {
		if inst.state != stateActive {
			return
		}
		cur := inst.current()
		if cur == nil || cur.Kind != KindMonster {
			return
		}
		e.resolveMonsterAction(ctx, inst, cur)
		if e.checkEnd(ctx, inst) {
			return
		}
		inst.advance()
		e.startTurn(ctx, inst)
	}
}

// resolvePlayerAction applies one player action. Input errors leave the
// turn unconsumed. advanced reports that the action already repositioned
// the turn index (flee success removes the combatant).
func (e *Engine) resolvePlayerAction(ctx context.Context, inst *Instance, cur *Combatant, act Action) (advanced bool, err error) {
	switch act.Kind {
	case "attack":
		target := inst.findMonsterTarget(act.Target)
		if target == nil {
			return false, mud.E(mud.NotFound, "no_target", "there is nothing to attack")
		}
		e.strike(ctx, inst, cur, target)
		return false, nil

	case "defend":
		cur.Defending = true
		e.notifyPlayers(inst, func(p *Combatant) net.Msg {
			return e.combatLine(inst, "defend", e.catalog.T(p.Locale, "combat.defend", cur.Name)).
				With("combatant_id", cur.ID)
		})
		return false, nil

	case "flee":
		if e.chance(0.5) {
			e.hook.ApplyCombatResult(ctx, cur.RefID, cur.HP, cur.GoldEarned, cur.ExpEarned)
			e.notifyPlayers(inst, func(p *Combatant) net.Msg {
				return e.combatLine(inst, "flee", e.catalog.T(p.Locale, "combat.flee_ok", cur.Name)).
					With("combatant_id", cur.ID).With("success", true)
			})
			inst.remove(cur.ID)
			e.hook.FleeTeleport(ctx, cur.RefID, inst.RoomID)
			return true, nil
		}
		e.notifyPlayers(inst, func(p *Combatant) net.Msg {
			return e.combatLine(inst, "flee", e.catalog.T(p.Locale, "combat.flee_fail", cur.Name)).
				With("combatant_id", cur.ID).With("success", false)
		})
		return false, nil

	case "wait":
		cur.Defending = false
		e.notifyPlayers(inst, func(p *Combatant) net.Msg {
			return e.combatLine(inst, "wait", e.catalog.T(p.Locale, "combat.wait", cur.Name)).
				With("combatant_id", cur.ID)
		})
		return false, nil
	}
	return false, mud.E(mud.Input, "invalid_action", "unknown combat action %q", act.Kind)
}

// resolveMonsterAction runs the scripted policy for one monster turn and
// falls back to attacking a random alive player. inst.mu must be held.
func (e *Engine) resolveMonsterAction(ctx context.Context, inst *Instance, cur *Combatant) {
	players := inst.aliveOf(KindPlayer)
	if len(players) == 0 {
		return
	}

	var target *Combatant
	if act, ok := e.ai.PickAction(e.aiContext(inst, cur, players)); ok {
		switch act.Kind {
		case "defend":
			cur.Defending = true
			e.notifyPlayers(inst, func(p *Combatant) net.Msg {
				return e.combatLine(inst, "defend", e.catalog.T(p.Locale, "combat.defend", cur.Name)).
					With("combatant_id", cur.ID)
			})
			return
		case "wait":
			cur.Defending = false
			e.notifyPlayers(inst, func(p *Combatant) net.Msg {
				return e.combatLine(inst, "wait", e.catalog.T(p.Locale, "combat.wait", cur.Name)).
					With("combatant_id", cur.ID)
			})
			return
		case "attack":
			target = findPlayerTarget(players, act.Target)
		}
	}
	if target == nil {
		target = players[e.intn(len(players))]
	}
	e.strike(ctx, inst, cur, target)
}

func (e *Engine) aiContext(inst *Instance, cur *Combatant, players []*Combatant) scripting.AIContext {
	view := func(c *Combatant) scripting.Fighter {
		return scripting.Fighter{
			ID:        c.ID,
			Name:      c.Name,
			HP:        c.HP,
			MaxHP:     c.MaxHP,
			Attack:    c.Attack,
			Defense:   c.Defense,
			Speed:     c.Speed,
			Defending: c.Defending,
		}
	}
	ctx := scripting.AIContext{Turn: inst.turnNumber, Self: view(cur)}
	for _, p := range players {
		ctx.Players = append(ctx.Players, view(p))
	}
	return ctx
}

func findPlayerTarget(players []*Combatant, query string) *Combatant {
	if query == "" {
		return nil
	}
	for _, p := range players {
		if p.ID == query || strings.EqualFold(p.Name, query) {
			return p
		}
	}
	return nil
}

// strike applies one attack. Damage is the attacker's attack times a
// uniform 0.8..1.2 roll minus half the target's defense; a 10% critical
// multiplies by 1.5; a defending target takes half and loses the guard;
// every hit lands for at least 1.
func (e *Engine) strike(ctx context.Context, inst *Instance, attacker, target *Combatant) {
	base := float64(attacker.Attack)*e.uniform(0.8, 1.2) - float64(target.Defense)/2
	crit := e.chance(0.10)
	if crit {
		base *= 1.5
	}
	if target.Defending {
		base /= 2
		target.Defending = false
	}
	dmg := int(math.Round(base))
	if dmg < 1 {
		dmg = 1
	}
	target.HP -= dmg
	if target.HP <= 0 {
		target.HP = 0
		target.Alive = false
	}

	key := "combat.hit"
	if crit {
		key = "combat.crit"
	}
	e.notifyPlayers(inst, func(p *Combatant) net.Msg {
		return e.combatLine(inst, "attack", e.catalog.T(p.Locale, key, attacker.Name, target.Name, dmg)).
			With("attacker", attacker.ID).
			With("target", target.ID).
			With("damage", dmg).
			With("critical", crit).
			With("target_hp", target.HP).
			With("target_max_hp", target.MaxHP)
	})

	if target.Alive {
		return
	}
	if target.Kind == KindMonster {
		e.killMonster(ctx, inst, attacker, target)
		return
	}
	e.notifyPlayers(inst, func(p *Combatant) net.Msg {
		return e.combatLine(inst, "death", e.catalog.T(p.Locale, "combat.death", target.Name)).
			With("combatant_id", target.ID)
	})
}

// killMonster handles a monster death: reward the killer, queue respawn,
// roll the drop table. inst.mu must be held.
func (e *Engine) killMonster(ctx context.Context, inst *Instance, killer, target *Combatant) {
	mon, merr := e.world.Monster(target.RefID)
	if err := e.world.KillMonster(ctx, target.RefID, time.Now()); err != nil {
		e.log.Error("kill write-back", zap.Int64("monster", target.RefID), zap.Error(err))
	}

	var killerID int64
	if killer.Kind == KindPlayer {
		killer.GoldEarned += target.GoldReward
		killer.ExpEarned += target.ExpReward
		killerID = killer.RefID
	}

	e.notifyPlayers(inst, func(p *Combatant) net.Msg {
		return e.combatLine(inst, "kill", e.catalog.T(p.Locale, "combat.kill", target.Name)).
			With("combatant_id", target.ID).
			With("gold", target.GoldReward).
			With("experience", target.ExpReward)
	})

	templateID := ""
	if merr == nil {
		templateID = mon.TemplateID
	}
	event.Emit(e.bus, event.MonsterKilled{
		MonsterID:  target.RefID,
		TemplateID: templateID,
		RoomID:     inst.RoomID,
		KillerID:   killerID,
		Gold:       target.GoldReward,
		Experience: target.ExpReward,
	})

	if merr != nil {
		return
	}
	drops, err := e.world.DropLoot(ctx, mon)
	if err != nil {
		e.log.Error("drop loot", zap.Int64("monster", target.RefID), zap.Error(err))
		return
	}
	for _, obj := range drops {
		o := obj
		e.notifyPlayers(inst, func(p *Combatant) net.Msg {
			return e.combatLine(inst, "loot", e.catalog.T(p.Locale, "combat.loot", target.Name, o.Name.Pick(p.Locale))).
				With("object_id", o.ID)
		})
	}
}

// checkEnd ends the instance when either side is empty. Returns true if
// it ended. inst.mu must be held.
func (e *Engine) checkEnd(ctx context.Context, inst *Instance) bool {
	if inst.state != stateActive {
		return true
	}
	alivePlayers := len(inst.aliveOf(KindPlayer))
	aliveMonsters := len(inst.aliveOf(KindMonster))
	if alivePlayers > 0 && aliveMonsters > 0 {
		return false
	}
	victor := "aborted"
	switch {
	case alivePlayers > 0:
		victor = "players"
	case aliveMonsters > 0:
		victor = "monsters"
	}
	e.endInstance(ctx, inst, victor)
	return true
}

// endInstance writes results back and tears the fight down. Remaining
// alive monsters keep their damaged HP in the world; dead players get the
// death handling after their write-back. inst.mu must be held; registry
// cleanup is the caller's finishMutation.
func (e *Engine) endInstance(ctx context.Context, inst *Instance, victor string) {
	inst.state = stateEnded

	var deadPlayers []int64
	for _, id := range inst.turnOrder {
		c := inst.combatants[id]
		switch c.Kind {
		case KindPlayer:
			e.hook.ApplyCombatResult(ctx, c.RefID, c.HP, c.GoldEarned, c.ExpEarned)
			if !c.Alive {
				deadPlayers = append(deadPlayers, c.RefID)
			}
		case KindMonster:
			if c.Alive {
				if err := e.world.UpdateMonsterHP(ctx, c.RefID, c.HP); err != nil {
					e.log.Error("monster hp write-back", zap.Int64("monster", c.RefID), zap.Error(err))
				}
			}
		}
	}

	e.notifyPlayers(inst, func(p *Combatant) net.Msg {
		key := "combat.end_aborted"
		switch victor {
		case "players":
			key = "combat.end_victory"
		case "monsters":
			key = "combat.end_defeat"
		}
		msg := net.NewMsg(net.TypeCombatEnd).
			With("instance_id", inst.ID).
			With("victor", victor).
			With("turns", inst.turnNumber).
			With("message", e.catalog.T(p.Locale, key))
		if p.GoldEarned > 0 || p.ExpEarned > 0 {
			msg.With("gold_earned", p.GoldEarned).
				With("exp_earned", p.ExpEarned).
				With("reward_message", e.catalog.T(p.Locale, "combat.reward", p.GoldEarned, p.ExpEarned))
		}
		return msg
	})
	e.hook.BroadcastRoom(inst.RoomID, net.NewMsg(net.TypeRoomMessage).
		With("message", e.catalog.T("en", "combat.room_end")), "")

	for _, pid := range deadPlayers {
		e.hook.OnPlayerDeath(ctx, pid)
	}

	event.Emit(e.bus, event.CombatEnded{
		InstanceID: inst.ID,
		RoomID:     inst.RoomID,
		Victor:     victor,
		Turns:      inst.turnNumber,
	})
	e.log.Info("combat ended",
		zap.String("instance", inst.ID),
		zap.String("victor", victor),
		zap.Int("turns", inst.turnNumber))
}
