package command

import (
	"context"

	"github.com/duskmud/server/internal/mud"
	"github.com/duskmud/server/internal/net"
)

type lookCmd struct{ base }

func newLookCmd() Command {
	return &lookCmd{base{
		name:    "look",
		aliases: []string{"l", "봐"},
		usage:   "look [object]",
	}}
}

func (c *lookCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
	p, err := player(sess)
	if err != nil {
		return Fail(err)
	}
	if len(args) == 0 {
		view, err := eng.RoomView(sess)
		if err != nil {
			return Fail(err)
		}
		sess.Send(view)
		return Silent()
	}

	// look <object>: search the floor first, then the pack
	roomID, _ := eng.World().PlayerRoom(p.ID)
	query := joinArgs(args)
	loc := sess.LocaleCode()
	obj, err := eng.World().FindRoomObject(roomID, query, loc)
	if err != nil {
		obj, err = eng.World().FindInventoryObject(p.ID, query, loc)
	}
	if err != nil {
		return Fail(mud.E(mud.NotFound, "no_such_object_here", "you see no %q here", query))
	}
	return OK(obj.Description.Pick(loc), map[string]any{
		"object_id": obj.ID,
		"name":      obj.Name.Pick(loc),
		"type":      obj.ObjectType,
		"weight":    obj.Weight,
	})
}

type statsCmd struct{ base }

func newStatsCmd() Command {
	return &statsCmd{base{
		name:    "stats",
		aliases: []string{"st"},
		usage:   "stats",
	}}
}

func (c *statsCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
	p, err := player(sess)
	if err != nil {
		return Fail(err)
	}
	loc := sess.LocaleCode()
	msg := net.NewMsg(net.TypeStats).
		With("username", p.Username).
		With("level", p.Level).
		With("experience", p.Experience).
		With("gold", p.Gold).
		With("hp", p.Stats.HP).
		With("max_hp", p.Stats.MaxHP).
		With("attack", p.Stats.Attack).
		With("defense", p.Stats.Defense).
		With("speed", p.Stats.Speed).
		With("carried_weight", eng.World().CarriedWeight(p.ID)).
		With("max_carry_weight", p.MaxCarryWeight()).
		With("message", eng.Catalog().T(loc, "stats.self", p.Username, p.Level))
	sess.Send(msg)
	return Silent()
}

type inventoryCmd struct{ base }

func newInventoryCmd() Command {
	return &inventoryCmd{base{
		name:    "inventory",
		aliases: []string{"i", "inv"},
		usage:   "inventory",
	}}
}

func (c *inventoryCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
	p, err := player(sess)
	if err != nil {
		return Fail(err)
	}
	loc := sess.LocaleCode()
	objs := eng.World().InventoryObjects(p.ID)
	items := make([]map[string]any, 0, len(objs))
	for _, o := range objs {
		items = append(items, map[string]any{
			"id":     o.ID,
			"name":   o.Name.Pick(loc),
			"type":   o.ObjectType,
			"weight": o.Weight,
		})
	}
	text := eng.Catalog().T(loc, "inventory.count", len(items))
	if len(items) == 0 {
		text = eng.Catalog().T(loc, "inventory.empty")
	}
	sess.Send(net.NewMsg(net.TypeInventory).
		With("items", items).
		With("carried_weight", eng.World().CarriedWeight(p.ID)).
		With("max_carry_weight", p.MaxCarryWeight()).
		With("message", text))
	return Silent()
}

type whoCmd struct{ base }

func newWhoCmd() Command {
	return &whoCmd{base{
		name:  "who",
		usage: "who",
	}}
}

func (c *whoCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
	if _, err := player(sess); err != nil {
		return Fail(err)
	}
	online := eng.Online()
	players := make([]map[string]any, 0, len(online))
	for _, w := range online {
		players = append(players, map[string]any{
			"username": w.Username,
			"room":     w.RoomName,
			"level":    w.Level,
		})
	}
	return OK(
		eng.Catalog().T(sess.LocaleCode(), "who.count", len(online)),
		map[string]any{"players": players, "count": len(online)},
	)
}

type helpCmd struct {
	base
	reg *Registry
}

func newHelpCmd(reg *Registry) Command {
	return &helpCmd{
		base: base{name: "help", aliases: []string{"?", "도움말"}, usage: "help"},
		reg:  reg,
	}
}

func (c *helpCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
	cmds := c.reg.Commands(sess.IsAdmin())
	listing := make([]map[string]any, 0, len(cmds))
	for _, cmd := range cmds {
		listing = append(listing, map[string]any{
			"name":  cmd.Name(),
			"usage": cmd.Usage(),
			"admin": cmd.AdminOnly(),
		})
	}
	return OK(
		eng.Catalog().T(sess.LocaleCode(), "help.intro", len(cmds)),
		map[string]any{"commands": listing},
	)
}
