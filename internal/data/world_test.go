package data

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskmud/server/internal/model"
)

const worldYAML = `
rooms:
  - id: gate
    name:
      en: Gate
      ko: 문
    description:
      en: The town gate.
    exits:
      n: yard
      south: cellar
  - id: yard
    name:
      en: Yard
    description:
      en: A muddy yard.
    exits:
      south: gate
    spawn_points:
      - template_id: rat
        count: 2
        respawn_time: 30
        roaming_enabled: true
  - id: cellar
    name:
      en: Cellar
    description:
      en: Cool and dark.
    exits:
      north: gate

objects:
  - id: gate_torch
    template: torch
    location_kind: room
    location_id: gate
`

func TestLoadWorldBuildsRooms(t *testing.T) {
	path := writeFile(t, "world.yaml", worldYAML)
	w, err := LoadWorld(path)
	require.NoError(t, err)

	rooms, err := w.BuildRooms()
	require.NoError(t, err)
	require.Len(t, rooms, 3)

	gate := rooms[0]
	assert.Equal(t, "gate", gate.ID)
	assert.Equal(t, "문", gate.Name.Pick("ko"))
	// short direction forms in the seed resolve to canonical ones
	assert.Equal(t, "yard", gate.Exits[model.North])
	assert.Equal(t, "cellar", gate.Exits[model.South])

	yard := rooms[1]
	require.Len(t, yard.SpawnPoints, 1)
	sp := yard.SpawnPoints[0]
	assert.Equal(t, "yard", sp.RoomID)
	assert.Equal(t, "rat", sp.TemplateID)
	assert.Equal(t, 2, sp.Count)
	assert.Equal(t, 30, sp.RespawnSec)
	assert.True(t, sp.Roaming)
}

func TestBuildRoomsRejectsUnknownExitTarget(t *testing.T) {
	path := writeFile(t, "world.yaml", `
rooms:
  - id: gate
    name:
      en: Gate
    description:
      en: The gate.
    exits:
      north: nowhere
`)
	w, err := LoadWorld(path)
	require.NoError(t, err)

	_, err = w.BuildRooms()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nowhere")
}

func TestBuildRoomsRejectsBadDirection(t *testing.T) {
	path := writeFile(t, "world.yaml", `
rooms:
  - id: gate
    name:
      en: Gate
    description:
      en: The gate.
    exits:
      sideways: gate
`)
	w, err := LoadWorld(path)
	require.NoError(t, err)

	_, err = w.BuildRooms()
	assert.Error(t, err)
}

func TestBuildObjects(t *testing.T) {
	items := NewItemTable([]ItemTemplate{
		{ID: "torch", Name: model.Loc("torch", ""), ObjectType: "tool", Category: "gear", Weight: 1},
	})

	path := writeFile(t, "world.yaml", worldYAML)
	w, err := LoadWorld(path)
	require.NoError(t, err)

	objs, err := w.BuildObjects(items)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, "gate_torch", objs[0].ID)
	assert.Equal(t, model.InRoom, objs[0].Location.Kind)
	assert.Equal(t, "gate", objs[0].Location.ID)
}

func TestBuildObjectsRejectsUnknownTemplate(t *testing.T) {
	path := writeFile(t, "world.yaml", worldYAML)
	w, err := LoadWorld(path)
	require.NoError(t, err)

	_, err = w.BuildObjects(NewItemTable(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "torch")
}

func TestBuildObjectsRejectsBadLocationKind(t *testing.T) {
	items := NewItemTable([]ItemTemplate{
		{ID: "torch", Name: model.Loc("torch", ""), ObjectType: "tool", Category: "gear", Weight: 1},
	})
	path := writeFile(t, "world.yaml", `
rooms:
  - id: gate
    name:
      en: Gate
    description:
      en: The gate.
objects:
  - id: gate_torch
    template: torch
    location_kind: orbit
    location_id: gate
`)
	w, err := LoadWorld(path)
	require.NoError(t, err)

	_, err = w.BuildObjects(items)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orbit")
}

// TestBundledDataCoherent loads the data files shipped in the repo and
// checks that every cross-reference in them resolves.
func TestBundledDataCoherent(t *testing.T) {
	dir := filepath.Join("..", "..", "data")

	monsters, err := LoadMonsterTable(filepath.Join(dir, "monsters.json"))
	require.NoError(t, err)
	items, err := LoadItemTable(filepath.Join(dir, "items.json"))
	require.NoError(t, err)
	w, err := LoadWorld(filepath.Join(dir, "world.yaml"))
	require.NoError(t, err)

	rooms, err := w.BuildRooms()
	require.NoError(t, err)
	assert.NotEmpty(t, rooms)

	_, err = w.BuildObjects(items)
	require.NoError(t, err)

	for _, room := range rooms {
		for _, sp := range room.SpawnPoints {
			assert.NotNilf(t, monsters.Get(sp.TemplateID),
				"room %s spawns unknown template %q", room.ID, sp.TemplateID)
		}
	}
	for id, tmpl := range monsters.templates {
		for _, drop := range tmpl.DropItems {
			assert.NotNilf(t, items.Get(drop.TemplateID),
				"monster %s drops unknown item %q", id, drop.TemplateID)
		}
		for _, shopItem := range tmpl.ShopItems {
			assert.NotNilf(t, items.Get(shopItem),
				"monster %s stocks unknown item %q", id, shopItem)
		}
	}
}
