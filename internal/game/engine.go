// Package game is the composition root: it owns the session registry,
// drives the login state machine and the per-session command loop, and
// wires world, combat, scheduler, and persistence together. Other
// packages hold ids and interfaces; the arenas live here.
package game

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/duskmud/server/internal/combat"
	"github.com/duskmud/server/internal/command"
	"github.com/duskmud/server/internal/config"
	"github.com/duskmud/server/internal/core/event"
	"github.com/duskmud/server/internal/core/sched"
	"github.com/duskmud/server/internal/data"
	"github.com/duskmud/server/internal/locale"
	"github.com/duskmud/server/internal/model"
	"github.com/duskmud/server/internal/mud"
	"github.com/duskmud/server/internal/net"
	"github.com/duskmud/server/internal/persist"
	"github.com/duskmud/server/internal/scripting"
	"github.com/duskmud/server/internal/world"
)

// Deps bundles everything the engine is built from.
type Deps struct {
	Cfg     *config.Config
	Log     *zap.Logger
	Stores  persist.Stores
	Bus     *event.Bus
	World   *world.Manager
	Catalog *locale.Catalog
	Items   *data.ItemTable
	Scripts *scripting.Engine
	Sched   *sched.Scheduler
	RNG     *rand.Rand // nil seeds from the clock
}

// Engine implements command.Engine and combat.Hook. It is the only
// component that touches sessions and the only one that persists
// players.
type Engine struct {
	cfg     *config.Config
	log     *zap.Logger
	stores  persist.Stores
	bus     *event.Bus
	world   *world.Manager
	combat  *combat.Engine
	catalog *locale.Catalog
	items   *data.ItemTable
	sched   *sched.Scheduler
	reg     *command.Registry

	mu       sync.Mutex
	sessions map[string]*net.Session // session id -> session
	byPlayer map[int64]string        // player id -> session id
	byName   map[string]string       // lower(username) -> session id
	dirty    map[int64]struct{}      // players awaiting autosave

	wg      sync.WaitGroup
	stopped chan struct{}
	stop    sync.Once
}

// NewEngine wires the full game stack. The combat engine is constructed
// here because the game engine is its Hook.
func NewEngine(d Deps) (*Engine, error) {
	reg := command.NewRegistry()
	if err := command.RegisterAll(reg); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:      d.Cfg,
		log:      d.Log,
		stores:   d.Stores,
		bus:      d.Bus,
		world:    d.World,
		catalog:  d.Catalog,
		items:    d.Items,
		sched:    d.Sched,
		reg:      reg,
		sessions: make(map[string]*net.Session),
		byPlayer: make(map[int64]string),
		byName:   make(map[string]string),
		dirty:    make(map[int64]struct{}),
		stopped:  make(chan struct{}),
	}
	e.combat = combat.New(d.World, e, d.Scripts, d.Catalog, d.Bus,
		d.Cfg.Game.CombatTimeout, d.RNG, d.Log.Named("combat"))
	if d.Sched != nil {
		if err := e.registerEvents(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// --- command.Engine accessors ---

func (e *Engine) World() *world.Manager    { return e.world }
func (e *Engine) Combat() *combat.Engine   { return e.combat }
func (e *Engine) Catalog() *locale.Catalog { return e.catalog }
func (e *Engine) Items() *data.ItemTable   { return e.items }
func (e *Engine) Sched() *sched.Scheduler  { return e.sched }
func (e *Engine) Log() *zap.Logger         { return e.log }

// Run consumes freshly accepted sessions from the gate until ctx ends.
// Each session gets its own goroutine; Shutdown waits for them.
func (e *Engine) Run(ctx context.Context, gate *net.Gate) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.stopped:
			return nil
		case sess := <-gate.Sessions():
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				e.runSession(ctx, sess)
			}()
		}
	}
}

// Shutdown notifies every session, gives them the grace window to flush,
// then waits for the session goroutines and saves whatever is dirty.
func (e *Engine) Shutdown(ctx context.Context) {
	e.stop.Do(func() { close(e.stopped) })

	e.mu.Lock()
	sessions := make([]*net.Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()

	for _, s := range sessions {
		s.Send(net.System(e.catalog.T(s.LocaleCode(), "system.shutdown")))
		go s.CloseGracefully(e.cfg.Server.ShutdownGrace)
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		e.log.Warn("shutdown grace expired with sessions still closing")
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	e.saveDirty(saveCtx)
}

// --- session registry ---

func (e *Engine) register(sess *net.Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions[sess.ID] = sess
}

// bind indexes an authenticated session by player id and username.
func (e *Engine) bind(sess *net.Session, p *model.Player) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byPlayer[p.ID] = sess.ID
	e.byName[strings.ToLower(p.Username)] = sess.ID
}

// unbindPlayer drops the player indexes without touching the session
// map (failed attach unwind).
func (e *Engine) unbindPlayer(p *model.Player, sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.byPlayer[p.ID] == sessionID {
		delete(e.byPlayer, p.ID)
	}
	if name := strings.ToLower(p.Username); e.byName[name] == sessionID {
		delete(e.byName, name)
	}
}

func (e *Engine) unregister(sess *net.Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, sess.ID)
	if pid := sess.PlayerID(); pid != 0 && e.byPlayer[pid] == sess.ID {
		delete(e.byPlayer, pid)
	}
	if name := strings.ToLower(sess.Username()); name != "" && e.byName[name] == sess.ID {
		delete(e.byName, name)
	}
}

// FindSession resolves a username (case-insensitive) to its live session.
func (e *Engine) FindSession(username string) (*net.Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.byName[strings.ToLower(username)]
	if !ok {
		return nil, false
	}
	s, ok := e.sessions[id]
	return s, ok
}

func (e *Engine) sessionByPlayer(playerID int64) (*net.Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.byPlayer[playerID]
	if !ok {
		return nil, false
	}
	s, ok := e.sessions[id]
	return s, ok
}

// allSessions snapshots the registry so callers never hold e.mu while
// sending.
func (e *Engine) allSessions() []*net.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*net.Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s)
	}
	return out
}

// SessionCount reports live sessions (admin who, tests).
func (e *Engine) SessionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// Online lists authenticated players for the who command, sorted by name.
func (e *Engine) Online() []command.WhoEntry {
	var out []command.WhoEntry
	for _, s := range e.allSessions() {
		if s.State() != net.StatePlaying {
			continue
		}
		p := s.Player()
		if p == nil {
			continue
		}
		entry := command.WhoEntry{Username: p.Username, Level: p.Level}
		if roomID, ok := e.world.PlayerRoom(p.ID); ok {
			entry.RoomID = roomID
			if room, err := e.world.Room(roomID); err == nil {
				entry.RoomName = room.Name.Pick(s.LocaleCode())
			}
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// --- broadcasting ---

// BroadcastRoom fans one message out to every playing session whose
// player stands in the room. Recipients are snapshotted from the room
// index so per-room delivery order matches issue order.
func (e *Engine) BroadcastRoom(roomID string, msg net.Msg, excludeSession string) {
	for _, pid := range e.world.PlayersInRoom(roomID) {
		sess, ok := e.sessionByPlayer(pid)
		if !ok || sess.ID == excludeSession || sess.State() != net.StatePlaying {
			continue
		}
		sess.Send(msg)
	}
}

// BroadcastGlobal sends to every playing session.
func (e *Engine) BroadcastGlobal(msg net.Msg, excludeSession string) {
	for _, sess := range e.allSessions() {
		if sess.ID == excludeSession || sess.State() != net.StatePlaying {
			continue
		}
		sess.Send(msg)
	}
}

// NotifyPlayer implements combat.Hook: deliver to the player's session
// if one is still attached.
func (e *Engine) NotifyPlayer(playerID int64, msg net.Msg) {
	if sess, ok := e.sessionByPlayer(playerID); ok {
		sess.Send(msg)
	}
}

// --- player mutation and persistence ---

// MutatePlayer applies fn to the session's player copy-on-write and
// marks the player dirty for the next autosave.
func (e *Engine) MutatePlayer(ctx context.Context, sess *net.Session, fn func(*model.Player)) (*model.Player, error) {
	p := sess.UpdatePlayer(fn)
	if p == nil {
		return nil, mud.E(mud.Auth, "not_logged_in", "you are not logged in")
	}
	e.markDirty(p.ID)
	return p, nil
}

func (e *Engine) markDirty(playerID int64) {
	e.mu.Lock()
	e.dirty[playerID] = struct{}{}
	e.mu.Unlock()
}

// persistPlayer writes one player through and clears the dirty flag. A
// Storage failure keeps the flag so the next sweep retries.
func (e *Engine) persistPlayer(ctx context.Context, p *model.Player) error {
	if err := e.stores.Players.Update(ctx, p); err != nil {
		e.log.Error("persist player", zap.String("username", p.Username), zap.Error(err))
		return err
	}
	e.mu.Lock()
	delete(e.dirty, p.ID)
	e.mu.Unlock()
	return nil
}

// saveDirty flushes every dirty player that still has a session. Players
// without a session were already saved by their detach path.
func (e *Engine) saveDirty(ctx context.Context) int {
	e.mu.Lock()
	ids := make([]int64, 0, len(e.dirty))
	for id := range e.dirty {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	saved := 0
	for _, id := range ids {
		sess, ok := e.sessionByPlayer(id)
		if !ok {
			e.mu.Lock()
			delete(e.dirty, id)
			e.mu.Unlock()
			continue
		}
		p := sess.Player()
		if p == nil {
			continue
		}
		if err := e.persistPlayer(ctx, p); err == nil {
			saved++
		}
	}
	return saved
}

// ApplyCombatResult implements combat.Hook: write a fight's outcome back
// to the player and persist immediately so a crash cannot lose rewards.
func (e *Engine) ApplyCombatResult(ctx context.Context, playerID int64, hp, goldDelta, expDelta int) {
	sess, ok := e.sessionByPlayer(playerID)
	if !ok {
		return
	}
	p := sess.UpdatePlayer(func(p *model.Player) {
		if hp > p.Stats.MaxHP {
			hp = p.Stats.MaxHP
		}
		if hp < 0 {
			hp = 0
		}
		p.Stats.HP = hp
		p.Gold += goldDelta
		p.Experience += expDelta
	})
	if p == nil {
		return
	}
	e.markDirty(p.ID)
	if err := e.persistPlayer(ctx, p); err == nil {
		sess.Send(net.NewMsg(net.TypeStats).
			With("hp", p.Stats.HP).
			With("max_hp", p.Stats.MaxHP).
			With("gold", p.Gold).
			With("experience", p.Experience))
	}
}

// SetLocale re-matches the requested locale against the supported set,
// adopts it on the session, and persists the player's preference.
func (e *Engine) SetLocale(ctx context.Context, sess *net.Session, code string) (string, error) {
	if sess.Player() == nil {
		return "", mud.E(mud.Auth, "not_logged_in", "you are not logged in")
	}
	matched := e.catalog.Match(code)
	sess.SetLocaleCode(matched)
	p, err := e.MutatePlayer(ctx, sess, func(p *model.Player) {
		p.PreferredLocale = matched
	})
	if err != nil {
		return "", err
	}
	e.log.Debug("locale changed",
		zap.String("username", p.Username),
		zap.String("locale", matched))
	return matched, nil
}

// --- follow ---

// Follow points this session at another player's session. Self-follows
// and offline targets are rejected; an existing follow is replaced.
func (e *Engine) Follow(sess *net.Session, target string) error {
	ts, ok := e.FindSession(target)
	if !ok || ts.State() != net.StatePlaying {
		return mud.E(mud.NotFound, "player_not_online", "%s is not online", target)
	}
	if ts.ID == sess.ID {
		return mud.E(mud.Input, "bad_args", "you cannot follow yourself")
	}
	sess.SetFollowTarget(ts.ID)
	return nil
}

// Unfollow clears the follow flag, reporting whether one was set.
func (e *Engine) Unfollow(sess *net.Session) bool {
	if sess.FollowTarget() == "" {
		return false
	}
	sess.SetFollowTarget("")
	return true
}

// followersOf snapshots the sessions currently following sess.
func (e *Engine) followersOf(sess *net.Session) []*net.Session {
	var out []*net.Session
	for _, s := range e.allSessions() {
		if s.FollowTarget() == sess.ID && s.State() == net.StatePlaying {
			out = append(out, s)
		}
	}
	return out
}

// --- kick / quit ---

// Kick force-disconnects a player by name. The reason reaches the victim
// as a system message before the close.
func (e *Engine) Kick(ctx context.Context, username, reason string) bool {
	sess, ok := e.FindSession(username)
	if !ok {
		return false
	}
	text := e.catalog.T(sess.LocaleCode(), "system.kicked")
	if reason != "" {
		text += ": " + reason
	}
	sess.Send(net.System(text))
	sess.SetState(net.StateClosing)
	go sess.CloseGracefully(e.cfg.Server.ShutdownGrace)
	e.log.Info("player kicked",
		zap.String("username", username),
		zap.String("reason", reason))
	return true
}

// Quit starts a graceful close; the session goroutine runs the detach.
func (e *Engine) Quit(sess *net.Session) {
	sess.SetState(net.StateClosing)
	go sess.CloseGracefully(e.cfg.Server.ShutdownGrace)
}

// --- misc helpers ---

// correlationID tags internal errors in logs and user output.
func correlationID() string {
	return uuid.NewString()[:8]
}
