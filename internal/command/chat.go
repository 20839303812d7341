package command

import (
	"context"

	"github.com/duskmud/server/internal/mud"
	"github.com/duskmud/server/internal/net"
)

type sayCmd struct{ base }

func newSayCmd() Command {
	return &sayCmd{base{
		name:    "say",
		aliases: []string{"'", "말"},
		usage:   "say <text>",
	}}
}

func (c *sayCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
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
	eng.BroadcastRoom(roomID, net.NewMsg(net.TypeChatMessage).
		With("from", p.Username).
		With("room_id", roomID).
		With("message", joinArgs(args)), "")
	return Silent()
}

type tellCmd struct{ base }

func newTellCmd() Command {
	return &tellCmd{base{
		name:    "tell",
		aliases: []string{"whisper", "귓속말"},
		usage:   "tell <user> <text>",
	}}
}

func (c *tellCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
	p, err := player(sess)
	if err != nil {
		return Fail(err)
	}
	if len(args) < 2 {
		return Fail(usageErr(c))
	}
	target, ok := eng.FindSession(args[0])
	if !ok || target.State() != net.StatePlaying {
		return Fail(mud.E(mud.NotFound, "player_not_online", "%s is not online", args[0]))
	}
	text := joinArgs(args[1:])
	target.Send(net.NewMsg(net.TypePrivateMessage).
		With("from", p.Username).
		With("message", text))
	return OK(
		eng.Catalog().T(sess.LocaleCode(), "chat.tell_sent", target.Username()),
		map[string]any{"to": target.Username()},
	)
}

type emoteCmd struct{ base }

func newEmoteCmd() Command {
	return &emoteCmd{base{
		name:    "emote",
		aliases: []string{"me"},
		usage:   "emote <text>",
	}}
}

func (c *emoteCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
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
	eng.BroadcastRoom(roomID, net.NewMsg(net.TypeRoomMessage).
		With("from", p.Username).
		With("emote", true).
		With("message", p.Username+" "+joinArgs(args)), "")
	return Silent()
}
