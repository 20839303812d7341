// Package command parses player input lines and dispatches them to
// handlers. Handlers talk to the world, combat, and game engine through
// the Engine interface; they never touch repositories.
package command

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/duskmud/server/internal/combat"
	"github.com/duskmud/server/internal/core/sched"
	"github.com/duskmud/server/internal/data"
	"github.com/duskmud/server/internal/locale"
	"github.com/duskmud/server/internal/model"
	"github.com/duskmud/server/internal/mud"
	"github.com/duskmud/server/internal/net"
	"github.com/duskmud/server/internal/world"
)

// WhoEntry is one row of the who listing.
type WhoEntry struct {
	Username string
	RoomID   string
	RoomName string
	Level    int
}

// Engine is the game surface handlers run against. internal/game
// implements it; tests substitute fakes.
type Engine interface {
	World() *world.Manager
	Combat() *combat.Engine
	Catalog() *locale.Catalog
	Items() *data.ItemTable
	Sched() *sched.Scheduler
	Log() *zap.Logger

	// Walk validates the exit and moves the player, with broadcasts,
	// follower propagation, and the aggro check. Teleport skips the
	// exit requirement (admin goto, flee, death respawn).
	Walk(ctx context.Context, sess *net.Session, dir model.Direction) error
	Teleport(ctx context.Context, sess *net.Session, roomID, reason string) error
	// RoomView renders the session's current room as a room_info message.
	RoomView(sess *net.Session) (net.Msg, error)

	BroadcastRoom(roomID string, msg net.Msg, excludeSession string)
	BroadcastGlobal(msg net.Msg, excludeSession string)
	FindSession(username string) (*net.Session, bool)
	Online() []WhoEntry

	Follow(sess *net.Session, target string) error
	Unfollow(sess *net.Session) bool

	// MutatePlayer applies fn to the session's player and marks it dirty
	// for the next autosave.
	MutatePlayer(ctx context.Context, sess *net.Session, fn func(*model.Player)) (*model.Player, error)
	SetLocale(ctx context.Context, sess *net.Session, code string) (string, error)

	Kick(ctx context.Context, username, reason string) bool
	Quit(sess *net.Session)
}

// Result is what a handler hands back to the dispatcher. An empty
// successful result means the handler already sent its own envelopes.
type Result struct {
	Success  bool
	Message  string
	Data     map[string]any
	UIUpdate map[string]any
	Err      error
}

// OK builds a success result the dispatcher turns into an action_result.
func OK(message string, data map[string]any) Result {
	return Result{Success: true, Message: message, Data: data}
}

// Silent reports success with nothing left to send.
func Silent() Result { return Result{Success: true} }

// Fail wraps a classified error for the dispatcher to localize.
func Fail(err error) Result { return Result{Success: false, Err: err} }

// Command is one dispatchable verb.
type Command interface {
	Name() string
	Aliases() []string
	AdminOnly() bool
	Usage() string
	Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result
}

// Registry resolves input tokens to commands: exact name, then exact
// alias, then unique prefix of a name. Aliases are matched as whole
// strings so multi-byte forms like 공격 stay intact.
type Registry struct {
	byName  map[string]Command
	byAlias map[string]string
	names   []string
}

func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]Command),
		byAlias: make(map[string]string),
	}
}

func (r *Registry) Register(cmd Command) error {
	name := cmd.Name()
	if _, dup := r.byName[name]; dup {
		return mud.E(mud.Conflict, "duplicate_command", "command %q registered twice", name)
	}
	r.byName[name] = cmd
	r.names = append(r.names, name)
	sort.Strings(r.names)
	for _, a := range cmd.Aliases() {
		if _, dup := r.byAlias[a]; dup {
			return mud.E(mud.Conflict, "duplicate_alias", "alias %q registered twice", a)
		}
		r.byAlias[a] = name
	}
	return nil
}

// Resolve maps one token to a command.
func (r *Registry) Resolve(token string) (Command, error) {
	if cmd, ok := r.byName[token]; ok {
		return cmd, nil
	}
	if name, ok := r.byAlias[token]; ok {
		return r.byName[name], nil
	}
	var hits []string
	for _, name := range r.names {
		if strings.HasPrefix(name, token) {
			hits = append(hits, name)
		}
	}
	switch len(hits) {
	case 0:
		return nil, mud.E(mud.NotFound, "unknown_command", "unknown command %q", token)
	case 1:
		return r.byName[hits[0]], nil
	}
	return nil, mud.E(mud.Input, "ambiguous_command", "%q matches: %s", token, strings.Join(hits, ", "))
}

// Commands lists registered commands sorted by name. Admin commands are
// included only when withAdmin is set.
func (r *Registry) Commands(withAdmin bool) []Command {
	out := make([]Command, 0, len(r.names))
	for _, name := range r.names {
		cmd := r.byName[name]
		if cmd.AdminOnly() && !withAdmin {
			continue
		}
		out = append(out, cmd)
	}
	return out
}

// Dispatch parses one input line and runs the matching handler. Bare
// direction tokens (north, n, 북) run as movement. The command word is
// case-insensitive; arguments keep their case.
func (r *Registry) Dispatch(ctx context.Context, sess *net.Session, eng Engine, line string) Result {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Silent()
	}
	token := strings.ToLower(fields[0])
	args := fields[1:]

	if _, err := model.ParseDirection(fields[0]); err == nil {
		if cmd, ok := r.byName["go"]; ok {
			return runGuarded(ctx, cmd, sess, eng, []string{fields[0]})
		}
	}

	cmd, err := r.Resolve(token)
	if err != nil {
		return Fail(err)
	}
	if cmd.AdminOnly() && !sess.IsAdmin() {
		return Fail(mud.E(mud.Authz, "admin_only", "the %s command requires admin rights", cmd.Name()))
	}
	return runGuarded(ctx, cmd, sess, eng, args)
}

// runGuarded keeps a handler panic from killing the session goroutine.
func runGuarded(ctx context.Context, cmd Command, sess *net.Session, eng Engine, args []string) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			eng.Log().Error("command handler panic",
				zap.String("command", cmd.Name()),
				zap.Any("panic", rec))
			res = Fail(mud.E(mud.Internal, "internal", "command failed"))
		}
	}()
	return cmd.Execute(ctx, sess, eng, args)
}

// base carries the boilerplate every command shares.
type base struct {
	name    string
	aliases []string
	admin   bool
	usage   string
}

func (b base) Name() string      { return b.name }
func (b base) Aliases() []string { return b.aliases }
func (b base) AdminOnly() bool   { return b.admin }
func (b base) Usage() string     { return b.usage }

// player returns the attached player or a localized-ready error.
func player(sess *net.Session) (*model.Player, error) {
	p := sess.Player()
	if p == nil {
		return nil, mud.E(mud.Auth, "not_logged_in", "you are not logged in")
	}
	return p, nil
}

// usageErr is the standard bad-arguments failure.
func usageErr(cmd Command) error {
	return mud.E(mud.Input, "usage", "usage: %s", cmd.Usage())
}

// joinArgs rebuilds free text from pre-split fields.
func joinArgs(args []string) string {
	return strings.Join(args, " ")
}

// RegisterAll wires every command into the registry.
func RegisterAll(reg *Registry) error {
	cmds := []Command{
		newLookCmd(),
		newGoCmd(),
		newGetCmd(),
		newDropCmd(),
		newInventoryCmd(),
		newStatsCmd(),
		newWhoCmd(),
		newHelpCmd(reg),
		newSayCmd(),
		newTellCmd(),
		newEmoteCmd(),
		newFollowCmd(),
		newUnfollowCmd(),
		newAttackCmd(),
		newDefendCmd(),
		newFleeCmd(),
		newCombatCmd(),
		newTalkCmd(),
		newBuyCmd(),
		newSellCmd(),
		newShopCmd(),
		newModeCmd(),
		newLocaleCmd(),
		newQuitCmd(),

		newGotoCmd(),
		newCreateRoomCmd(),
		newEditRoomCmd(),
		newCreateExitCmd(),
		newCreateObjectCmd(),
		newKickCmd(),
		newSchedulerCmd(),
	}
	for _, c := range cmds {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
