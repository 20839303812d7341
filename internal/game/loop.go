package game

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/duskmud/server/internal/core/event"
	"github.com/duskmud/server/internal/model"
	"github.com/duskmud/server/internal/mud"
	"github.com/duskmud/server/internal/net"
	"github.com/duskmud/server/internal/persist"
)

// Pre-login phases. The coarse session state (auth/playing/closing)
// lives on the session; this fine-grained flow lives in the loop.
type loginPhase int

const (
	phaseGreeting loginPhase = iota
	phaseMenu
	phaseAuthUser
	phaseAuthPass
	phaseRegisterUser
	phaseRegisterPass
)

// maxAuthFailures returns the session to the menu with a warning.
const maxAuthFailures = 3

// runSession drives one connection from greeting to detach. It is the
// session's only reader; commands run strictly in arrival order.
func (e *Engine) runSession(ctx context.Context, sess *net.Session) {
	e.register(sess)
	defer e.detach(sess)

	sess.SendText(e.catalog.T(sess.LocaleCode(), "auth.greeting"))

	if !e.authLoop(ctx, sess) {
		return
	}
	e.playLoop(ctx, sess)
}

// authLoop runs the pre-login state machine. It returns true once a
// player is attached and the session is playing; false means the
// connection ended first.
func (e *Engine) authLoop(ctx context.Context, sess *net.Session) bool {
	phase := phaseGreeting
	failures := 0
	var pendingUser string

	for {
		line, err := sess.ReadLine()
		if err != nil {
			return false
		}
		line = strings.TrimSpace(line)
		loc := sess.LocaleCode()

		switch phase {
		case phaseGreeting:
			e.showMenu(sess)
			phase = phaseMenu

		case phaseMenu:
			switch line {
			case "1":
				sess.SendText(e.catalog.T(loc, "auth.user_prompt"))
				phase = phaseAuthUser
			case "2":
				sess.SendText(e.catalog.T(loc, "auth.user_prompt"))
				phase = phaseRegisterUser
			case "3":
				sess.SendText(e.catalog.T(loc, "auth.bye"))
				sess.CloseGracefully(e.cfg.Server.ShutdownGrace)
				return false
			default:
				e.showMenu(sess)
			}

		case phaseAuthUser:
			if line == "" {
				sess.SendText(e.catalog.T(loc, "auth.user_prompt"))
				continue
			}
			pendingUser = line
			sess.SendText(e.catalog.T(loc, "auth.pass_prompt"))
			phase = phaseAuthPass

		case phaseAuthPass:
			err := e.login(ctx, sess, pendingUser, line)
			if err == nil {
				return true
			}
			sess.SendText(e.catalog.ErrorText(loc, err))
			if mud.KindOf(err) == mud.Auth {
				failures++
				if failures >= maxAuthFailures {
					sess.SendText(e.catalog.T(loc, "auth.too_many"))
					failures = 0
				}
			}
			e.showMenu(sess)
			phase = phaseMenu

		case phaseRegisterUser:
			if err := model.ValidateUsername(line); err != nil {
				sess.SendText(e.catalog.ErrorText(loc, err))
				e.showMenu(sess)
				phase = phaseMenu
				continue
			}
			pendingUser = line
			sess.SendText(e.catalog.T(loc, "auth.pass_prompt"))
			phase = phaseRegisterPass

		case phaseRegisterPass:
			err := e.registerPlayer(ctx, sess, pendingUser, line)
			if err == nil {
				return true
			}
			sess.SendText(e.catalog.ErrorText(loc, err))
			e.showMenu(sess)
			phase = phaseMenu
		}
	}
}

func (e *Engine) showMenu(sess *net.Session) {
	sess.SendText(e.catalog.T(sess.LocaleCode(), "auth.menu"))
}

// playLoop reads and dispatches commands until the session closes. The
// next line is not read before the previous handler returned.
func (e *Engine) playLoop(ctx context.Context, sess *net.Session) {
	for {
		line, err := sess.ReadLine()
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		e.dispatchLine(ctx, sess, line)
		if sess.State() == net.StateClosing || sess.IsClosed() {
			return
		}
	}
}

// dispatchLine runs one command and converts its Result into envelopes.
// Handlers that already sent their own output return a silent success.
func (e *Engine) dispatchLine(ctx context.Context, sess *net.Session, line string) {
	res := e.reg.Dispatch(ctx, sess, e, line)
	if !res.Success {
		e.sendCommandError(sess, res.Err)
		return
	}
	if res.Message == "" && res.Data == nil && res.UIUpdate == nil {
		return
	}
	sess.SendSuccess(e.actionFor(line), res.Message, res.Data)
	if res.UIUpdate != nil {
		sess.Send(net.NewMsg(net.TypeUIUpdate).With("data", res.UIUpdate))
	}
}

// actionFor labels the action_result envelope with the canonical command
// name so aliases and prefixes report the same action.
func (e *Engine) actionFor(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	if _, err := model.ParseDirection(fields[0]); err == nil {
		return "go"
	}
	token := strings.ToLower(fields[0])
	if cmd, err := e.reg.Resolve(token); err == nil {
		return cmd.Name()
	}
	return token
}

// sendCommandError localizes a classified error. Internal causes are
// logged under a correlation id and never shown verbatim.
func (e *Engine) sendCommandError(sess *net.Session, err error) {
	if err == nil {
		err = mud.E(mud.Internal, "internal", "command failed")
	}
	loc := sess.LocaleCode()
	if mud.KindOf(err) == mud.Internal {
		corr := correlationID()
		e.log.Error("internal error",
			zap.String("correlation", corr),
			zap.String("session", sess.ID[:8]),
			zap.Error(err))
		sess.SendError("internal", e.catalog.T(loc, "error.internal", corr))
		return
	}
	sess.SendError(mud.CodeOf(err), e.catalog.ErrorText(loc, err))
}

// detach unwinds everything a session owns: combat, follows, world
// placement, the final save, and the history row. It runs on a fresh
// context because the server one may already be canceled at shutdown.
func (e *Engine) detach(sess *net.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if p := sess.Player(); p != nil {
		e.combat.RemovePlayer(ctx, p.ID)
		p = sess.Player() // combat write-back may have touched hp and rewards

		e.releaseFollowers(sess)

		roomID, placed := e.world.PlayerRoom(p.ID)
		e.world.RemovePlayer(p.ID)
		if placed {
			e.BroadcastRoom(roomID, net.NewMsg(net.TypePlayerLeft).
				With("username", p.Username).
				With("room_id", roomID).
				With("message", e.catalog.T("en", "world.player_left", p.Username)), sess.ID)
		}
		event.Emit(e.bus, event.PlayerLeft{
			PlayerID:  p.ID,
			Username:  p.Username,
			SessionID: sess.ID,
			RoomID:    roomID,
		})

		e.persistPlayer(ctx, p)
		if err := e.stores.History.Close(ctx, sess.ID, time.Now().UTC()); err != nil {
			e.log.Error("close session history", zap.Error(err))
		}
		e.log.Info("player detached",
			zap.String("username", p.Username),
			zap.String("session", sess.ID[:8]))
	}

	e.unregister(sess)
	sess.Close()
}

// releaseFollowers clears every follow aimed at the leaving session and
// tells each follower.
func (e *Engine) releaseFollowers(sess *net.Session) {
	for _, f := range e.followersOf(sess) {
		f.SetFollowTarget("")
		f.Send(net.System(e.catalog.T(f.LocaleCode(), "follow.stopped")))
	}
	sess.SetFollowTarget("")
}

// openHistory records the login in sessions_history. Failure is logged,
// not fatal: history must never block play.
func (e *Engine) openHistory(ctx context.Context, sess *net.Session, playerID int64) {
	rec := &persist.SessionRecord{
		SessionID:  sess.ID,
		PlayerID:   playerID,
		Transport:  sess.Transport,
		RemoteAddr: sess.RemoteAddr(),
		StartedAt:  time.Now().UTC(),
	}
	if err := e.stores.History.Open(ctx, rec); err != nil {
		e.log.Error("open session history", zap.Error(err))
	}
}
