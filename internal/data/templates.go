// Package data loads the static game data shipped with the server:
// JSON templates for monsters and items, and the YAML world seed.
package data

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/duskmud/server/internal/model"
)

// MonsterTemplate is the static definition a live monster is stamped
// from. Stats are explicit; they are not re-derived from primaries.
type MonsterTemplate struct {
	ID          string            `json:"id"`
	Name        model.LocMap      `json:"name"`
	Description model.LocMap      `json:"description"`
	Stats       model.StatBlock   `json:"stats"`
	Type        model.MonsterType `json:"monster_type"`
	Behavior    model.Behavior    `json:"behavior"`
	AggroRange  int               `json:"aggro_range"`
	RoamRange   int               `json:"roaming_range"`
	DropItems   []model.DropItem  `json:"drop_items"`
	GoldReward  int               `json:"gold_reward"`
	ExpReward   int               `json:"exp_reward"`
	RespawnSec  int               `json:"respawn_time"`
	Merchant    bool              `json:"merchant"`
	ShopItems   []string          `json:"shop_items"` // item template ids a merchant stocks
}

// NewMonster stamps a live monster into a room. The store assigns its id.
func (t *MonsterTemplate) NewMonster(roomID string) *model.Monster {
	stats := t.Stats
	if stats.HP == 0 {
		stats.HP = stats.MaxHP
	}
	return &model.Monster{
		TemplateID:    t.ID,
		Name:          t.Name,
		Stats:         stats,
		Type:          t.Type,
		Behavior:      t.Behavior,
		CurrentRoomID: roomID,
		AggroRange:    t.AggroRange,
		RoamingRange:  t.RoamRange,
		DropItems:     append([]model.DropItem(nil), t.DropItems...),
		GoldReward:    t.GoldReward,
		ExpReward:     t.ExpReward,
		RespawnSec:    t.RespawnSec,
		Alive:         true,
		IsMerchant:    t.Merchant,
	}
}

type monsterFile struct {
	Monsters []MonsterTemplate `json:"monsters"`
}

// MonsterTable holds all monster templates indexed by id.
type MonsterTable struct {
	templates map[string]*MonsterTemplate
}

// LoadMonsterTable loads monster templates from a JSON file.
func LoadMonsterTable(path string) (*MonsterTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read monster templates: %w", err)
	}
	var f monsterFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse monster templates: %w", err)
	}
	t := &MonsterTable{templates: make(map[string]*MonsterTemplate, len(f.Monsters))}
	for i := range f.Monsters {
		tmpl := &f.Monsters[i]
		if tmpl.ID == "" {
			return nil, fmt.Errorf("monster template #%d has no id", i)
		}
		t.templates[tmpl.ID] = tmpl
	}
	return t, nil
}

// NewMonsterTable builds a table from templates already in memory.
func NewMonsterTable(templates []MonsterTemplate) *MonsterTable {
	t := &MonsterTable{templates: make(map[string]*MonsterTemplate, len(templates))}
	for i := range templates {
		t.templates[templates[i].ID] = &templates[i]
	}
	return t
}

// Get returns a monster template by id, or nil if not found.
func (t *MonsterTable) Get(id string) *MonsterTemplate {
	return t.templates[id]
}

func (t *MonsterTable) Count() int {
	return len(t.templates)
}

// ItemTemplate is the static definition objects are stamped from.
type ItemTemplate struct {
	ID          string         `json:"id"`
	Name        model.LocMap   `json:"name"`
	Description model.LocMap   `json:"description"`
	ObjectType  string         `json:"object_type"`
	Category    string         `json:"category"`
	Weight      int            `json:"weight"`
	Stackable   bool           `json:"stackable"`
	MaxStack    int            `json:"max_stack"`
	Properties  map[string]any `json:"properties"`
}

// NewObject stamps an object instance with the given id and location.
func (t *ItemTemplate) NewObject(id string, loc model.Location) *model.GameObject {
	props := make(map[string]any, len(t.Properties))
	for k, v := range t.Properties {
		props[k] = v
	}
	return &model.GameObject{
		ID:          id,
		Name:        t.Name,
		Description: t.Description,
		ObjectType:  t.ObjectType,
		Category:    t.Category,
		Weight:      t.Weight,
		Stackable:   t.Stackable,
		MaxStack:    t.MaxStack,
		Properties:  props,
		Location:    loc,
	}
}

type itemFile struct {
	Items []ItemTemplate `json:"items"`
}

// ItemTable holds all item templates indexed by id.
type ItemTable struct {
	templates map[string]*ItemTemplate
}

// LoadItemTable loads item templates from a JSON file.
func LoadItemTable(path string) (*ItemTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read item templates: %w", err)
	}
	var f itemFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse item templates: %w", err)
	}
	t := &ItemTable{templates: make(map[string]*ItemTemplate, len(f.Items))}
	for i := range f.Items {
		tmpl := &f.Items[i]
		if tmpl.ID == "" {
			return nil, fmt.Errorf("item template #%d has no id", i)
		}
		t.templates[tmpl.ID] = tmpl
	}
	return t, nil
}

// NewItemTable builds a table from templates already in memory.
func NewItemTable(templates []ItemTemplate) *ItemTable {
	t := &ItemTable{templates: make(map[string]*ItemTemplate, len(templates))}
	for i := range templates {
		t.templates[templates[i].ID] = &templates[i]
	}
	return t
}

// Get returns an item template by id, or nil if not found.
func (t *ItemTable) Get(id string) *ItemTemplate {
	return t.templates[id]
}

func (t *ItemTable) Count() int {
	return len(t.templates)
}
