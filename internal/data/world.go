package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/duskmud/server/internal/model"
)

// WorldFile is the YAML seed describing the initial world layout.
type WorldFile struct {
	Rooms   []RoomSeed   `yaml:"rooms"`
	Objects []ObjectSeed `yaml:"objects"`
}

type RoomSeed struct {
	ID          string            `yaml:"id"`
	Name        map[string]string `yaml:"name"`
	Description map[string]string `yaml:"description"`
	Exits       map[string]string `yaml:"exits"`
	SpawnPoints []SpawnSeed       `yaml:"spawn_points"`
}

type SpawnSeed struct {
	TemplateID string `yaml:"template_id"`
	Count      int    `yaml:"count"`
	RespawnSec int    `yaml:"respawn_time"`
	Roaming    bool   `yaml:"roaming_enabled"`
}

type ObjectSeed struct {
	ID       string `yaml:"id"`
	Template string `yaml:"template"`
	Kind     string `yaml:"location_kind"`
	HolderID string `yaml:"location_id"`
}

// LoadWorld reads the world seed file.
func LoadWorld(path string) (*WorldFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read world seed: %w", err)
	}
	var w WorldFile
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("parse world seed: %w", err)
	}
	return &w, nil
}

// BuildRooms converts seeds to validated rooms. Exit targets are checked
// against the seed set itself so a broken seed fails fast.
func (w *WorldFile) BuildRooms() ([]*model.Room, error) {
	known := make(map[string]bool, len(w.Rooms))
	for _, rs := range w.Rooms {
		known[rs.ID] = true
	}

	out := make([]*model.Room, 0, len(w.Rooms))
	for _, rs := range w.Rooms {
		room := &model.Room{
			ID:          rs.ID,
			Name:        model.LocMap(rs.Name),
			Description: model.LocMap(rs.Description),
			Exits:       make(map[model.Direction]string, len(rs.Exits)),
		}
		for dir, target := range rs.Exits {
			d, err := model.ParseDirection(dir)
			if err != nil {
				return nil, fmt.Errorf("room %s: %w", rs.ID, err)
			}
			if !known[target] {
				return nil, fmt.Errorf("room %s: exit %s leads to unknown room %q", rs.ID, d, target)
			}
			room.Exits[d] = target
		}
		for _, sp := range rs.SpawnPoints {
			room.SpawnPoints = append(room.SpawnPoints, model.SpawnPoint{
				RoomID:     rs.ID,
				TemplateID: sp.TemplateID,
				Count:      sp.Count,
				RespawnSec: sp.RespawnSec,
				Roaming:    sp.Roaming,
			})
		}
		if err := room.Validate(); err != nil {
			return nil, fmt.Errorf("room %s: %w", rs.ID, err)
		}
		out = append(out, room)
	}
	return out, nil
}

// BuildObjects instantiates seeded objects from item templates.
func (w *WorldFile) BuildObjects(items *ItemTable) ([]*model.GameObject, error) {
	out := make([]*model.GameObject, 0, len(w.Objects))
	for _, seed := range w.Objects {
		tmpl := items.Get(seed.Template)
		if tmpl == nil {
			return nil, fmt.Errorf("object %s: unknown item template %q", seed.ID, seed.Template)
		}
		kind := model.LocationKind(seed.Kind)
		if !kind.Valid() {
			return nil, fmt.Errorf("object %s: unknown location kind %q", seed.ID, seed.Kind)
		}
		obj := tmpl.NewObject(seed.ID, model.Location{Kind: kind, ID: seed.HolderID})
		if err := obj.Validate(); err != nil {
			return nil, fmt.Errorf("object %s: %w", seed.ID, err)
		}
		out = append(out, obj)
	}
	return out, nil
}
