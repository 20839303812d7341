package command

import (
	"context"
	"strconv"

	"github.com/duskmud/server/internal/model"
	"github.com/duskmud/server/internal/mud"
	"github.com/duskmud/server/internal/net"
	"github.com/duskmud/server/internal/world"
)

type gotoCmd struct{ base }

func newGotoCmd() Command {
	return &gotoCmd{base{
		name:  "goto",
		admin: true,
		usage: "goto <room_id>",
	}}
}

func (c *gotoCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
	if _, err := player(sess); err != nil {
		return Fail(err)
	}
	if len(args) != 1 {
		return Fail(usageErr(c))
	}
	if err := eng.Teleport(ctx, sess, args[0], "teleport"); err != nil {
		return Fail(err)
	}
	return Silent()
}

type createRoomCmd struct{ base }

func newCreateRoomCmd() Command {
	return &createRoomCmd{base{
		name:  "createroom",
		admin: true,
		usage: "createroom <id> <name> [description]",
	}}
}

func (c *createRoomCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
	if _, err := player(sess); err != nil {
		return Fail(err)
	}
	if len(args) < 2 {
		return Fail(usageErr(c))
	}
	desc := "An unremarkable place."
	if len(args) > 2 {
		desc = joinArgs(args[2:])
	}
	room := &model.Room{
		ID:          args[0],
		Name:        model.LocMap{"en": args[1]},
		Description: model.LocMap{"en": desc},
		Exits:       map[model.Direction]string{},
	}
	created, err := eng.World().CreateRoom(ctx, room)
	if err != nil {
		return Fail(err)
	}
	return OK(
		eng.Catalog().T(sess.LocaleCode(), "admin.room_created", args[0]),
		map[string]any{"room_id": args[0], "created": created},
	)
}

type editRoomCmd struct{ base }

func newEditRoomCmd() Command {
	return &editRoomCmd{base{
		name:  "editroom",
		admin: true,
		usage: "editroom <id> name|description <value>",
	}}
}

func (c *editRoomCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
	if _, err := player(sess); err != nil {
		return Fail(err)
	}
	if len(args) < 3 {
		return Fail(usageErr(c))
	}
	room, err := eng.World().Room(args[0])
	if err != nil {
		return Fail(err)
	}
	value := joinArgs(args[2:])
	switch args[1] {
	case "name":
		room.Name["en"] = value
	case "description":
		room.Description["en"] = value
	default:
		return Fail(mud.E(mud.Input, "unknown_property", "editable properties: name, description"))
	}
	if err := eng.World().UpdateRoom(ctx, room); err != nil {
		return Fail(err)
	}
	return OK(
		eng.Catalog().T(sess.LocaleCode(), "admin.room_updated", args[0]),
		map[string]any{"room_id": args[0], "property": args[1]},
	)
}

type createExitCmd struct{ base }

func newCreateExitCmd() Command {
	return &createExitCmd{base{
		name:  "createexit",
		admin: true,
		usage: "createexit <from> <direction> <to>",
	}}
}

func (c *createExitCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
	if _, err := player(sess); err != nil {
		return Fail(err)
	}
	if len(args) != 3 {
		return Fail(usageErr(c))
	}
	dir, err := model.ParseDirection(args[1])
	if err != nil {
		return Fail(err)
	}
	if err := eng.World().SetExit(ctx, args[0], dir, args[2]); err != nil {
		return Fail(err)
	}
	return OK(
		eng.Catalog().T(sess.LocaleCode(), "admin.exit_created", args[0], string(dir), args[2]),
		map[string]any{"from": args[0], "direction": string(dir), "to": args[2]},
	)
}

type createObjectCmd struct{ base }

func newCreateObjectCmd() Command {
	return &createObjectCmd{base{
		name:  "createobject",
		admin: true,
		usage: "createobject <id> <name> <type> [room_id]",
	}}
}

func (c *createObjectCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
	p, err := player(sess)
	if err != nil {
		return Fail(err)
	}
	if len(args) < 3 {
		return Fail(usageErr(c))
	}
	roomID := ""
	if len(args) > 3 {
		roomID = args[3]
	} else if cur, ok := eng.World().PlayerRoom(p.ID); ok {
		roomID = cur
	}
	if roomID == "" {
		return Fail(mud.E(mud.Input, "no_location", "no room to place the object in"))
	}
	obj := &model.GameObject{
		ID:         args[0],
		Name:       model.LocMap{"en": args[1]},
		ObjectType: args[2],
		Weight:     1,
		Location:   world.RoomLocation(roomID),
	}
	created, err := eng.World().CreateObject(ctx, obj)
	if err != nil {
		return Fail(err)
	}
	return OK(
		eng.Catalog().T(sess.LocaleCode(), "admin.object_created", args[0], roomID),
		map[string]any{"object_id": args[0], "room_id": roomID, "created": created},
	)
}

type kickCmd struct{ base }

func newKickCmd() Command {
	return &kickCmd{base{
		name:  "kick",
		admin: true,
		usage: "kick <user> [reason]",
	}}
}

func (c *kickCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
	if _, err := player(sess); err != nil {
		return Fail(err)
	}
	if len(args) == 0 {
		return Fail(usageErr(c))
	}
	reason := "kicked by an admin"
	if len(args) > 1 {
		reason = joinArgs(args[1:])
	}
	if !eng.Kick(ctx, args[0], reason) {
		return Fail(mud.E(mud.NotFound, "player_not_online", "%s is not online", args[0]))
	}
	return OK(
		eng.Catalog().T(sess.LocaleCode(), "admin.kicked", args[0]),
		map[string]any{"username": args[0]},
	)
}

type schedulerCmd struct{ base }

func newSchedulerCmd() Command {
	return &schedulerCmd{base{
		name:  "scheduler",
		admin: true,
		usage: "scheduler list|info|enable|disable <name>",
	}}
}

func (c *schedulerCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
	if _, err := player(sess); err != nil {
		return Fail(err)
	}
	if len(args) == 0 {
		return Fail(usageErr(c))
	}
	sch := eng.Sched()
	switch args[0] {
	case "list":
		infos := sch.List()
		events := make([]map[string]any, 0, len(infos))
		for _, in := range infos {
			events = append(events, schedInfoView(in.Name, in.Phases, in.Enabled, in.RunCount, in.ErrorCount))
		}
		return OK(
			eng.Catalog().T(sess.LocaleCode(), "admin.sched_list", len(infos)),
			map[string]any{"events": events},
		)
	case "info":
		if len(args) != 2 {
			return Fail(usageErr(c))
		}
		in, err := sch.Describe(args[1])
		if err != nil {
			return Fail(err)
		}
		data := schedInfoView(in.Name, in.Phases, in.Enabled, in.RunCount, in.ErrorCount)
		if !in.LastRun.IsZero() {
			data["last_run"] = in.LastRun.UTC().Format("2006-01-02T15:04:05Z")
		}
		return OK(in.Name, data)
	case "enable", "disable":
		if len(args) != 2 {
			return Fail(usageErr(c))
		}
		if err := sch.SetEnabled(args[1], args[0] == "enable"); err != nil {
			return Fail(err)
		}
		return OK(
			eng.Catalog().T(sess.LocaleCode(), "admin.sched_set", args[1], args[0]+"d"),
			map[string]any{"event": args[1], "enabled": args[0] == "enable"},
		)
	}
	return Fail(usageErr(c))
}

func schedInfoView(name string, phases []int, enabled bool, runs, errs int64) map[string]any {
	ps := make([]string, len(phases))
	for i, p := range phases {
		ps[i] = strconv.Itoa(p)
	}
	return map[string]any{
		"name":        name,
		"phases":      ps,
		"enabled":     enabled,
		"run_count":   runs,
		"error_count": errs,
	}
}
