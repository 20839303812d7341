package game

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/duskmud/server/internal/core/event"
	"github.com/duskmud/server/internal/model"
	"github.com/duskmud/server/internal/mud"
	"github.com/duskmud/server/internal/net"
)

// moveOpts tunes one relocation. Moves initiated from inside the combat
// engine (flee, death respawn) run under the instance lock and must not
// re-enter combat, so they leave followers and aggro off.
type moveOpts struct {
	reason    string
	followers bool
	aggro     bool
	visited   map[string]bool // session ids already moved in this follow chain
}

// Walk moves the player through an exit of their current room. Fighting
// players have to flee instead.
func (e *Engine) Walk(ctx context.Context, sess *net.Session, dir model.Direction) error {
	p := sess.Player()
	if p == nil {
		return mud.E(mud.Auth, "not_logged_in", "you are not logged in")
	}
	if e.combat.InCombat(p.ID) {
		return mud.E(mud.State, "in_combat", "you are in combat; flee first")
	}
	roomID, ok := e.world.PlayerRoom(p.ID)
	if !ok {
		return mud.E(mud.State, "not_in_world", "player %d is not placed in the world", p.ID)
	}
	room, err := e.world.Room(roomID)
	if err != nil {
		return err
	}
	to, ok := room.Exit(dir)
	if !ok {
		return mud.E(mud.NotFound, "no_such_exit", "there is no exit %s", dir)
	}
	return e.move(ctx, sess, to, moveOpts{
		reason:    "walk",
		followers: true,
		aggro:     true,
		visited:   map[string]bool{sess.ID: true},
	})
}

// Teleport drops the player into an arbitrary room, exits or not (admin
// goto, scripted effects). An active fight is abandoned first so the
// instance does not keep a combatant that is no longer in its room.
func (e *Engine) Teleport(ctx context.Context, sess *net.Session, roomID, reason string) error {
	p := sess.Player()
	if p == nil {
		return mud.E(mud.Auth, "not_logged_in", "you are not logged in")
	}
	if !e.world.HasRoom(roomID) {
		return mud.E(mud.NotFound, "no_such_room", "room %q does not exist", roomID)
	}
	if e.combat.InCombat(p.ID) {
		e.combat.RemovePlayer(ctx, p.ID)
	}
	if reason == "" {
		reason = "teleport"
	}
	return e.move(ctx, sess, roomID, moveOpts{
		reason:    reason,
		followers: true,
		aggro:     true,
		visited:   map[string]bool{sess.ID: true},
	})
}

// move is the one relocation path: world index, then the session's player
// copy, then departure/arrival broadcasts, the mover's fresh room view,
// and finally followers and aggro when asked for. Moving to the current
// room is a no-op that emits nothing.
func (e *Engine) move(ctx context.Context, sess *net.Session, toRoom string, opts moveOpts) error {
	p := sess.Player()
	if p == nil {
		return mud.E(mud.Auth, "not_logged_in", "you are not logged in")
	}
	fromRoom, err := e.world.MovePlayer(p.ID, toRoom)
	if err != nil {
		return err
	}
	if fromRoom == toRoom {
		return nil
	}
	if updated := sess.UpdatePlayer(func(pl *model.Player) { pl.CurrentRoomID = toRoom }); updated != nil {
		p = updated
	}
	e.markDirty(p.ID)

	departure := net.NewMsg(net.TypePlayerMoved).
		With("username", p.Username).
		With("from_room", fromRoom).
		With("to_room", toRoom).
		With("reason", opts.reason).
		With("message", e.catalog.T("en", "world.player_leaves", p.Username))
	e.BroadcastRoom(fromRoom, departure, sess.ID)

	arrival := net.NewMsg(net.TypePlayerMoved).
		With("username", p.Username).
		With("from_room", fromRoom).
		With("to_room", toRoom).
		With("reason", opts.reason).
		With("message", e.catalog.T("en", "world.player_arrives", p.Username))
	e.BroadcastRoom(toRoom, arrival, sess.ID)

	event.Emit(e.bus, event.PlayerMoved{
		PlayerID: p.ID,
		Username: p.Username,
		FromRoom: fromRoom,
		ToRoom:   toRoom,
		Reason:   opts.reason,
	})

	if view, err := e.RoomView(sess); err == nil {
		sess.Send(view)
	}

	if opts.followers {
		e.moveFollowers(ctx, sess, toRoom, opts.visited)
	}
	if opts.aggro {
		e.checkAggro(ctx, sess, toRoom)
	}
	return nil
}

// moveFollowers drags everyone following the leader into the room. A
// follower that cannot come along (fighting, failed move, follow cycle)
// has its follow flag cleared and is told so; the leader's move stands.
func (e *Engine) moveFollowers(ctx context.Context, lead *net.Session, toRoom string, visited map[string]bool) {
	for _, f := range e.followersOf(lead) {
		if visited[f.ID] {
			e.breakFollow(f)
			continue
		}
		visited[f.ID] = true
		fp := f.Player()
		if fp == nil {
			continue
		}
		if e.combat.InCombat(fp.ID) {
			e.breakFollow(f)
			continue
		}
		err := e.move(ctx, f, toRoom, moveOpts{
			reason:    "follow",
			followers: true,
			aggro:     true,
			visited:   visited,
		})
		if err != nil {
			e.breakFollow(f)
		}
	}
}

func (e *Engine) breakFollow(f *net.Session) {
	f.SetFollowTarget("")
	f.Send(net.System(e.catalog.T(f.LocaleCode(), "follow.broken")))
}

// RoomView builds the room_info payload for the session's current room:
// localized name and description, exits, other players, alive monsters,
// and objects on the ground. The same payload serves look, login, and
// post-move refreshes.
func (e *Engine) RoomView(sess *net.Session) (net.Msg, error) {
	p := sess.Player()
	if p == nil {
		return nil, mud.E(mud.Auth, "not_logged_in", "you are not logged in")
	}
	roomID, ok := e.world.PlayerRoom(p.ID)
	if !ok {
		return nil, mud.E(mud.State, "not_in_world", "player %d is not placed in the world", p.ID)
	}
	room, err := e.world.Room(roomID)
	if err != nil {
		return nil, err
	}
	loc := sess.LocaleCode()

	dirs := room.ExitDirections()
	exits := make([]string, 0, len(dirs))
	for _, d := range dirs {
		exits = append(exits, string(d))
	}

	players := make([]string, 0)
	for _, pid := range e.world.PlayersInRoom(roomID) {
		if pid == p.ID {
			continue
		}
		if s, ok := e.sessionByPlayer(pid); ok && s.State() == net.StatePlaying {
			players = append(players, s.Username())
		}
	}

	monsters := make([]map[string]any, 0)
	for _, mon := range e.world.MonstersInRoom(roomID) {
		if !mon.Alive {
			continue
		}
		entry := map[string]any{
			"id":     mon.ID,
			"name":   mon.Name.Pick(loc),
			"type":   string(mon.Type),
			"hp":     mon.Stats.HP,
			"max_hp": mon.Stats.MaxHP,
		}
		if mon.Merchant() {
			entry["merchant"] = true
		}
		monsters = append(monsters, entry)
	}

	objects := make([]map[string]any, 0)
	for _, obj := range e.world.RoomObjects(roomID) {
		objects = append(objects, map[string]any{
			"id":   obj.ID,
			"name": obj.Name.Pick(loc),
		})
	}

	exitLine := e.catalog.T(loc, "room.no_exits")
	if len(exits) > 0 {
		exitLine = e.catalog.T(loc, "room.exits", strings.Join(exits, ", "))
	}
	text := fmt.Sprintf("%s. %s %s", room.Name.Pick(loc), room.Description.Pick(loc), exitLine)

	return net.NewMsg(net.TypeRoomInfo).
		With("room_id", room.ID).
		With("name", room.Name.Pick(loc)).
		With("description", room.Description.Pick(loc)).
		With("exits", exits).
		With("players", players).
		With("monsters", monsters).
		With("objects", objects).
		With("message", text), nil
}

// FleeTeleport implements combat.Hook: after a successful flee, shift the
// player to the first adjacent room without alive aggressive monsters, in
// canonical direction order. No safe neighbor means they stay put. Runs
// under the combat instance lock, so the move skips followers and aggro.
func (e *Engine) FleeTeleport(ctx context.Context, playerID int64, fromRoom string) (string, bool) {
	sess, ok := e.sessionByPlayer(playerID)
	if !ok {
		return "", false
	}
	room, err := e.world.Room(fromRoom)
	if err != nil {
		return "", false
	}
	var dest string
	for _, d := range model.AllDirections {
		to, ok := room.Exit(d)
		if !ok || !e.safeRoom(to) {
			continue
		}
		dest = to
		break
	}
	if dest == "" {
		return "", false
	}
	if err := e.move(ctx, sess, dest, moveOpts{reason: "flee", visited: map[string]bool{sess.ID: true}}); err != nil {
		e.log.Warn("flee teleport failed",
			zap.Int64("player", playerID),
			zap.String("to", dest),
			zap.Error(err))
		return "", false
	}
	return dest, true
}

// safeRoom reports whether a room holds no alive aggressive monsters.
func (e *Engine) safeRoom(roomID string) bool {
	for _, mon := range e.world.MonstersInRoom(roomID) {
		if mon.Alive && mon.Type == model.Aggressive {
			return false
		}
	}
	return true
}

// OnPlayerDeath implements combat.Hook: revive the defeated player at the
// start room with full health. The combat engine has already written back
// hp 0 and sent the defeat messages; this is only the respawn. Runs under
// the combat instance lock, so the move skips followers and aggro.
func (e *Engine) OnPlayerDeath(ctx context.Context, playerID int64) {
	sess, ok := e.sessionByPlayer(playerID)
	if !ok {
		return
	}
	p, err := e.MutatePlayer(ctx, sess, func(pl *model.Player) {
		pl.Stats.HP = pl.Stats.MaxHP
	})
	if err != nil {
		return
	}
	sess.Send(net.System(e.catalog.T(sess.LocaleCode(), "world.respawn")))

	start := e.cfg.Game.StartRoom
	if cur, ok := e.world.PlayerRoom(playerID); ok && cur == start {
		// died where they respawn; still show the room
		if view, err := e.RoomView(sess); err == nil {
			sess.Send(view)
		}
	} else {
		if err := e.move(ctx, sess, start, moveOpts{reason: "respawn", visited: map[string]bool{sess.ID: true}}); err != nil {
			e.log.Error("death respawn move failed",
				zap.Int64("player", playerID),
				zap.Error(err))
		}
	}

	if err := e.persistPlayer(ctx, p); err == nil {
		sess.Send(net.NewMsg(net.TypeStats).
			With("hp", p.Stats.HP).
			With("max_hp", p.Stats.MaxHP).
			With("gold", p.Gold).
			With("experience", p.Experience))
	}
}
