package scripting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	aiDir := filepath.Join(dir, "ai")
	require.NoError(t, os.MkdirAll(aiDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(aiDir, "monster.lua"), []byte(body), 0o644))
	return dir
}

func sampleContext() AIContext {
	return AIContext{
		Turn: 3,
		Self: Fighter{ID: "m:1", Name: "goblin", HP: 10, MaxHP: 10, Attack: 3, Speed: 5},
		Players: []Fighter{
			{ID: "p:7", Name: "alice", HP: 30, MaxHP: 30, Attack: 10, Speed: 12},
			{ID: "p:9", Name: "bob", HP: 12, MaxHP: 28, Attack: 8, Speed: 9},
		},
	}
}

func TestPickActionFromScript(t *testing.T) {
	dir := writeScript(t, `
function pick_action(ctx)
  -- always hit the weakest player
  local target = ctx.players[1]
  for _, p in ipairs(ctx.players) do
    if p.hp < target.hp then target = p end
  end
  return { action = "attack", target = target.id }
end
`)
	e, err := NewEngine(dir, zap.NewNop())
	require.NoError(t, err)
	defer e.Close()
	require.True(t, e.Scripted())

	act, ok := e.PickAction(sampleContext())
	require.True(t, ok)
	assert.Equal(t, "attack", act.Kind)
	assert.Equal(t, "p:9", act.Target)
}

func TestPickActionDefend(t *testing.T) {
	dir := writeScript(t, `
function pick_action(ctx)
  if ctx.self.hp * 4 < ctx.self.max_hp then
    return { action = "defend" }
  end
  return { action = "attack", target = ctx.players[1].id }
end
`)
	e, err := NewEngine(dir, zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	ctx := sampleContext()
	ctx.Self.HP = 2
	act, ok := e.PickAction(ctx)
	require.True(t, ok)
	assert.Equal(t, "defend", act.Kind)
	assert.Empty(t, act.Target)
}

func TestMissingDirFallsBack(t *testing.T) {
	e, err := NewEngine(filepath.Join(t.TempDir(), "nope"), zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	assert.False(t, e.Scripted())
	_, ok := e.PickAction(sampleContext())
	assert.False(t, ok)
}

func TestEmptyDirConfigFallsBack(t *testing.T) {
	e, err := NewEngine("", zap.NewNop())
	require.NoError(t, err)
	defer e.Close()
	assert.False(t, e.Scripted())
}

func TestMissingFunctionFallsBack(t *testing.T) {
	dir := writeScript(t, `helper = 42`)
	e, err := NewEngine(dir, zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	assert.False(t, e.Scripted())
}

func TestBrokenScriptFailsLoad(t *testing.T) {
	dir := writeScript(t, `function pick_action( -- syntax error`)
	_, err := NewEngine(dir, zap.NewNop())
	assert.Error(t, err)
}

func TestRuntimeErrorFallsBack(t *testing.T) {
	dir := writeScript(t, `
function pick_action(ctx)
  error("boom")
end
`)
	e, err := NewEngine(dir, zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	_, ok := e.PickAction(sampleContext())
	assert.False(t, ok)
}

func TestUnknownActionFallsBack(t *testing.T) {
	dir := writeScript(t, `
function pick_action(ctx)
  return { action = "dance" }
end
`)
	e, err := NewEngine(dir, zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	_, ok := e.PickAction(sampleContext())
	assert.False(t, ok)
}
