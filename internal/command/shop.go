package command

import (
	"context"

	"github.com/duskmud/server/internal/model"
	"github.com/duskmud/server/internal/mud"
	"github.com/duskmud/server/internal/net"
	"github.com/duskmud/server/internal/world"
)

// merchantFor resolves the trade partner: a named NPC when given,
// otherwise the only merchant in the room.
func merchantFor(eng Engine, sess *net.Session, roomID, npcQuery string) (*model.Monster, error) {
	if npcQuery != "" {
		mon, err := eng.World().FindMonsterInRoom(roomID, npcQuery, sess.LocaleCode())
		if err != nil {
			return nil, err
		}
		if !mon.Merchant() {
			return nil, mud.E(mud.Input, "not_a_merchant", "%s does not trade", mon.Name.Pick(sess.LocaleCode()))
		}
		return mon, nil
	}
	mon, ok := eng.World().MerchantInRoom(roomID)
	if !ok {
		return nil, mud.E(mud.NotFound, "no_merchant_here", "there is no merchant here")
	}
	return mon, nil
}

type talkCmd struct{ base }

func newTalkCmd() Command {
	return &talkCmd{base{
		name:  "talk",
		usage: "talk <npc>",
	}}
}

func (c *talkCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
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
	mon, err := eng.World().FindMonsterInRoom(roomID, joinArgs(args), loc)
	if err != nil {
		return Fail(err)
	}
	name := mon.Name.Pick(loc)
	key := "npc.no_interest"
	if mon.Merchant() {
		key = "shop.greeting"
	}
	sess.Send(net.NewMsg(net.TypeNPCDialogue).
		With("npc_id", mon.ID).
		With("name", name).
		With("merchant", mon.Merchant()).
		With("message", eng.Catalog().T(loc, key, name)))
	return Silent()
}

type shopCmd struct{ base }

func newShopCmd() Command {
	return &shopCmd{base{
		name:    "shop",
		aliases: []string{"list", "상점"},
		usage:   "shop [npc]",
	}}
}

func (c *shopCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
	p, err := player(sess)
	if err != nil {
		return Fail(err)
	}
	roomID, ok := eng.World().PlayerRoom(p.ID)
	if !ok {
		return Fail(mud.E(mud.State, "not_in_world", "you are nowhere"))
	}
	mon, err := merchantFor(eng, sess, roomID, joinArgs(args))
	if err != nil {
		return Fail(err)
	}
	loc := sess.LocaleCode()
	stock := eng.World().NPCInventory(mon.ID)
	items := make([]map[string]any, 0, len(stock))
	for _, o := range stock {
		items = append(items, map[string]any{
			"id":     o.ID,
			"name":   o.Name.Pick(loc),
			"price":  o.Price(),
			"weight": o.Weight,
		})
	}
	sess.Send(net.NewMsg(net.TypeShopList).
		With("npc_id", mon.ID).
		With("name", mon.Name.Pick(loc)).
		With("items", items).
		With("gold", p.Gold).
		With("message", eng.Catalog().T(loc, "shop.listing", mon.Name.Pick(loc), len(items))))
	return Silent()
}

type buyCmd struct{ base }

func newBuyCmd() Command {
	return &buyCmd{base{
		name:    "buy",
		aliases: []string{"구매"},
		usage:   "buy <item> [npc]",
	}}
}

func (c *buyCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
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
	itemQuery := args[0]
	npcQuery := joinArgs(args[1:])
	mon, err := merchantFor(eng, sess, roomID, npcQuery)
	if err != nil {
		return Fail(err)
	}
	loc := sess.LocaleCode()
	obj, err := eng.World().FindNPCObject(mon.ID, itemQuery, loc)
	if err != nil {
		return Fail(err)
	}
	price := obj.Price()
	if price <= 0 {
		return Fail(mud.E(mud.Input, "not_for_sale", "%s is not for sale", obj.Name.Pick(loc)))
	}
	if p.Gold < price {
		return Fail(mud.E(mud.Input, "insufficient_gold", "you cannot afford %s", obj.Name.Pick(loc)))
	}
	if eng.World().CarriedWeight(p.ID)+obj.Weight > p.MaxCarryWeight() {
		return Fail(mud.E(mud.Input, "too_heavy", "%s is too heavy to carry", obj.Name.Pick(loc)))
	}
	if err := eng.World().MoveObject(ctx, obj.ID, world.PlayerLocation(p.ID)); err != nil {
		return Fail(err)
	}
	updated, err := eng.MutatePlayer(ctx, sess, func(pl *model.Player) {
		pl.Gold -= price
	})
	if err != nil {
		return Fail(err)
	}
	name := obj.Name.Pick(loc)
	sess.Send(net.Result(net.TypeTransactionResult, "buy",
		eng.Catalog().T(loc, "shop.bought", name, price),
		map[string]any{
			"object_id": obj.ID,
			"name":      name,
			"price":     price,
			"gold":      updated.Gold,
		}))
	return Silent()
}

type sellCmd struct{ base }

func newSellCmd() Command {
	return &sellCmd{base{
		name:    "sell",
		aliases: []string{"판매"},
		usage:   "sell <item> [npc]",
	}}
}

func (c *sellCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
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
	mon, err := merchantFor(eng, sess, roomID, joinArgs(args[1:]))
	if err != nil {
		return Fail(err)
	}
	loc := sess.LocaleCode()
	obj, err := eng.World().FindInventoryObject(p.ID, args[0], loc)
	if err != nil {
		return Fail(err)
	}
	// merchants pay half the listed price
	price := obj.Price() / 2
	if price <= 0 {
		return Fail(mud.E(mud.Input, "not_sellable", "%s has no trade value", obj.Name.Pick(loc)))
	}
	if err := eng.World().MoveObject(ctx, obj.ID, world.NPCLocation(mon.ID)); err != nil {
		return Fail(err)
	}
	updated, err := eng.MutatePlayer(ctx, sess, func(pl *model.Player) {
		pl.Gold += price
	})
	if err != nil {
		return Fail(err)
	}
	name := obj.Name.Pick(loc)
	sess.Send(net.Result(net.TypeTransactionResult, "sell",
		eng.Catalog().T(loc, "shop.sold", name, price),
		map[string]any{
			"object_id": obj.ID,
			"name":      name,
			"price":     price,
			"gold":      updated.Gold,
		}))
	return Silent()
}
