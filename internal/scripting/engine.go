// Package scripting runs the Lua monster combat policy. Combat asks the
// script which action a monster takes on its turn; every failure mode
// (missing directory, missing function, runtime error, malformed result)
// reports not-ok so the caller falls back to its built-in policy.
package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Fighter is the combatant view handed to the script.
type Fighter struct {
	ID        string
	Name      string
	HP        int
	MaxHP     int
	Attack    int
	Defense   int
	Speed     int
	Defending bool
}

// AIContext is everything a policy may consider for one decision.
type AIContext struct {
	Turn    int
	Self    Fighter
	Players []Fighter // alive opposing players
}

// Action is the script's decision.
type Action struct {
	Kind   string // attack, defend, wait
	Target string // combatant id, only for attack
}

// Engine wraps a single gopher-lua VM. The VM is not goroutine-safe, so
// every call is serialized behind the mutex.
type Engine struct {
	mu  sync.Mutex
	vm  *lua.LState // nil when running without scripts
	log *zap.Logger

	warnOnce sync.Once
}

// NewEngine loads every .lua file under scriptsDir/ai. A missing or empty
// directory is not an error: the engine starts in fallback mode.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	e := &Engine{log: log}
	if scriptsDir == "" {
		log.Info("no scripts directory configured, using built-in monster policy")
		return e, nil
	}

	vm := lua.NewState()
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	loaded, err := loadDir(vm, filepath.Join(scriptsDir, "ai"), log)
	if err != nil {
		vm.Close()
		return nil, err
	}
	if loaded == 0 {
		vm.Close()
		log.Info("no ai scripts found, using built-in monster policy",
			zap.String("dir", scriptsDir))
		return e, nil
	}
	if vm.GetGlobal("pick_action") == lua.LNil {
		vm.Close()
		log.Warn("ai scripts define no pick_action function, using built-in monster policy",
			zap.String("dir", scriptsDir))
		return e, nil
	}

	e.vm = vm
	log.Info("monster ai scripts loaded", zap.String("dir", scriptsDir), zap.Int("files", loaded))
	return e, nil
}

// loadDir runs all .lua files in a directory, returning how many loaded.
func loadDir(vm *lua.LState, dir string, log *zap.Logger) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read scripts dir %s: %w", dir, err)
	}
	n := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := vm.DoFile(path); err != nil {
			return n, fmt.Errorf("load %s: %w", path, err)
		}
		log.Debug("loaded lua script", zap.String("file", path))
		n++
	}
	return n, nil
}

// Scripted reports whether a policy script is active.
func (e *Engine) Scripted() bool {
	return e != nil && e.vm != nil
}

// PickAction asks the script for the monster's action. ok=false on any
// failure; the caller then applies its built-in policy.
func (e *Engine) PickAction(ctx AIContext) (Action, bool) {
	if !e.Scripted() {
		return Action{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	fn := e.vm.GetGlobal("pick_action")
	if fn == lua.LNil {
		e.warnFallback("pick_action missing", nil)
		return Action{}, false
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, e.contextTable(ctx)); err != nil {
		e.warnFallback("pick_action error", err)
		return Action{}, false
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		e.warnFallback("pick_action returned non-table", nil)
		return Action{}, false
	}

	act := Action{
		Kind:   lua.LVAsString(rt.RawGetString("action")),
		Target: lua.LVAsString(rt.RawGetString("target")),
	}
	switch act.Kind {
	case "attack", "defend", "wait":
		return act, true
	default:
		e.warnFallback("pick_action returned unknown action "+act.Kind, nil)
		return Action{}, false
	}
}

// warnFallback logs the first script failure; later ones are silent so a
// broken script cannot flood the log from every monster turn.
func (e *Engine) warnFallback(reason string, err error) {
	e.warnOnce.Do(func() {
		e.log.Warn("monster ai script failed, using built-in policy",
			zap.String("reason", reason),
			zap.Error(err))
	})
}

func (e *Engine) contextTable(ctx AIContext) *lua.LTable {
	t := e.vm.NewTable()
	t.RawSetString("turn", lua.LNumber(ctx.Turn))
	t.RawSetString("self", e.fighterTable(ctx.Self))

	players := e.vm.NewTable()
	for i, p := range ctx.Players {
		players.RawSetInt(i+1, e.fighterTable(p))
	}
	t.RawSetString("players", players)
	return t
}

func (e *Engine) fighterTable(f Fighter) *lua.LTable {
	t := e.vm.NewTable()
	t.RawSetString("id", lua.LString(f.ID))
	t.RawSetString("name", lua.LString(f.Name))
	t.RawSetString("hp", lua.LNumber(f.HP))
	t.RawSetString("max_hp", lua.LNumber(f.MaxHP))
	t.RawSetString("attack", lua.LNumber(f.Attack))
	t.RawSetString("defense", lua.LNumber(f.Defense))
	t.RawSetString("speed", lua.LNumber(f.Speed))
	t.RawSetString("defending", lua.LBool(f.Defending))
	return t
}

// Close releases the VM.
func (e *Engine) Close() {
	if e.vm != nil {
		e.vm.Close()
		e.vm = nil
	}
}
