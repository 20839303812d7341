package command

import (
	"context"

	"github.com/duskmud/server/internal/mud"
	"github.com/duskmud/server/internal/net"
	"github.com/duskmud/server/internal/world"
)

type getCmd struct{ base }

func newGetCmd() Command {
	return &getCmd{base{
		name:    "get",
		aliases: []string{"take", "pickup", "주워"},
		usage:   "get <object>",
	}}
}

func (c *getCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
	p, err := player(sess)
	if err != nil {
		return Fail(err)
	}
	if len(args) == 0 {
		return Fail(usageErr(c))
	}
	roomID, ok := eng.World().PlayerRoom(p.ID)
	if !ok {
		return Fail(mud.E(mud.State, "not_in_world", "you are nowhere"))
	}
	loc := sess.LocaleCode()
	obj, err := eng.World().FindRoomObject(roomID, joinArgs(args), loc)
	if err != nil {
		return Fail(err)
	}
	carried := eng.World().CarriedWeight(p.ID)
	if carried+obj.Weight > p.MaxCarryWeight() {
		return Fail(mud.E(mud.Input, "too_heavy", "%s is too heavy to carry", obj.Name.Pick(loc)))
	}
	if err := eng.World().MoveObject(ctx, obj.ID, world.PlayerLocation(p.ID)); err != nil {
		return Fail(err)
	}
	name := obj.Name.Pick(loc)
	eng.BroadcastRoom(roomID, net.NewMsg(net.TypeRoomMessage).
		With("message", eng.Catalog().T("en", "item.taken_room", p.Username, obj.Name.Pick("en"))),
		sess.ID)
	res := OK(eng.Catalog().T(loc, "item.taken", name), map[string]any{
		"object_id": obj.ID,
		"name":      name,
	})
	res.UIUpdate = map[string]any{"carried_weight": carried + obj.Weight}
	return res
}

type dropCmd struct{ base }

func newDropCmd() Command {
	return &dropCmd{base{
		name:    "drop",
		aliases: []string{"버려"},
		usage:   "drop <object>",
	}}
}

func (c *dropCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
	p, err := player(sess)
	if err != nil {
		return Fail(err)
	}
	if len(args) == 0 {
		return Fail(usageErr(c))
	}
	roomID, ok := eng.World().PlayerRoom(p.ID)
	if !ok {
		return Fail(mud.E(mud.State, "not_in_world", "you are nowhere"))
	}
	loc := sess.LocaleCode()
	obj, err := eng.World().FindInventoryObject(p.ID, joinArgs(args), loc)
	if err != nil {
		return Fail(err)
	}
	if err := eng.World().MoveObject(ctx, obj.ID, world.RoomLocation(roomID)); err != nil {
		return Fail(err)
	}
	name := obj.Name.Pick(loc)
	eng.BroadcastRoom(roomID, net.NewMsg(net.TypeRoomMessage).
		With("message", eng.Catalog().T("en", "item.dropped_room", p.Username, obj.Name.Pick("en"))),
		sess.ID)
	res := OK(eng.Catalog().T(loc, "item.dropped", name), map[string]any{
		"object_id": obj.ID,
		"name":      name,
	})
	res.UIUpdate = map[string]any{"carried_weight": eng.World().CarriedWeight(p.ID)}
	return res
}
