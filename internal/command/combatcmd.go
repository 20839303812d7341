package command

import (
	"context"

	"github.com/duskmud/server/internal/combat"
	"github.com/duskmud/server/internal/mud"
	"github.com/duskmud/server/internal/net"
)

type attackCmd struct{ base }

func newAttackCmd() Command {
	return &attackCmd{base{
		name:    "attack",
		aliases: []string{"kill", "공격"},
		usage:   "attack [target]",
	}}
}

func (c *attackCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
	p, err := player(sess)
	if err != nil {
		return Fail(err)
	}
	query := joinArgs(args)

	// inside a fight the word is a turn action
	if eng.Combat().InCombat(p.ID) {
		if err := eng.Combat().Submit(ctx, p.ID, combat.Action{Kind: "attack", Target: query}); err != nil {
			return Fail(err)
		}
		return Silent()
	}

	if query == "" {
		return Fail(mud.E(mud.Input, "no_target", "attack what?"))
	}
	roomID, ok := eng.World().PlayerRoom(p.ID)
	if !ok {
		return Fail(mud.E(mud.State, "not_in_world", "you are nowhere"))
	}
	mon, err := eng.World().FindMonsterInRoom(roomID, query, sess.LocaleCode())
	if err != nil {
		return Fail(err)
	}
	ref := combat.PlayerRef{
		ID:        p.ID,
		SessionID: sess.ID,
		Username:  p.Username,
		Locale:    sess.LocaleCode(),
		Stats:     p.Stats,
	}
	if err := eng.Combat().StartAttack(ctx, ref, roomID, mon.ID); err != nil {
		return Fail(err)
	}
	return Silent()
}

type defendCmd struct{ base }

func newDefendCmd() Command {
	return &defendCmd{base{
		name:    "defend",
		aliases: []string{"방어"},
		usage:   "defend",
	}}
}

func (c *defendCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
	p, err := player(sess)
	if err != nil {
		return Fail(err)
	}
	if err := eng.Combat().Submit(ctx, p.ID, combat.Action{Kind: "defend"}); err != nil {
		return Fail(err)
	}
	return Silent()
}

type fleeCmd struct{ base }

func newFleeCmd() Command {
	return &fleeCmd{base{
		name:    "flee",
		aliases: []string{"run", "도망"},
		usage:   "flee",
	}}
}

func (c *fleeCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
	p, err := player(sess)
	if err != nil {
		return Fail(err)
	}
	if err := eng.Combat().Submit(ctx, p.ID, combat.Action{Kind: "flee"}); err != nil {
		return Fail(err)
	}
	return Silent()
}

type combatCmd struct{ base }

func newCombatCmd() Command {
	return &combatCmd{base{
		name:    "combat",
		aliases: []string{"cs"},
		usage:   "combat",
	}}
}

func (c *combatCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
	p, err := player(sess)
	if err != nil {
		return Fail(err)
	}
	msg, err := eng.Combat().StatusFor(p.ID)
	if err != nil {
		return Fail(err)
	}
	sess.Send(msg)
	return Silent()
}
