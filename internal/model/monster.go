package model

import (
	"time"

	"github.com/duskmud/server/internal/mud"
)

type MonsterType string

const (
	Aggressive MonsterType = "aggressive"
	Passive    MonsterType = "passive"
	Neutral    MonsterType = "neutral"
)

type Behavior string

const (
	Stationary Behavior = "stationary"
	Roaming    Behavior = "roaming"
	Patrolling Behavior = "patrolling"
)

// DropItem is one entry of a monster's loot table.
type DropItem struct {
	TemplateID string  `json:"template_id"`
	Chance     float64 `json:"chance"`
	MinQty     int     `json:"min_qty"`
	MaxQty     int     `json:"max_qty"`
}

// Monster is a live monster instance. Stats come from the template at
// spawn time and are not re-derived.
type Monster struct {
	ID            int64       `json:"id"`
	TemplateID    string      `json:"template_id"`
	Name          LocMap      `json:"name"`
	Stats         StatBlock   `json:"stats"`
	Type          MonsterType `json:"monster_type"`
	Behavior      Behavior    `json:"behavior"`
	CurrentRoomID string      `json:"current_room_id"`
	AggroRange    int         `json:"aggro_range"`
	RoamingRange  int         `json:"roaming_range"`
	DropItems     []DropItem  `json:"drop_items"`
	GoldReward    int         `json:"gold_reward"`
	ExpReward     int         `json:"exp_reward"`
	RespawnSec    int         `json:"respawn_time"`
	Alive         bool        `json:"alive"`
	IsMerchant    bool        `json:"merchant,omitempty"`
}

func (m *Monster) RespawnAfter() time.Duration {
	return time.Duration(m.RespawnSec) * time.Second
}

// Merchant reports whether this monster trades with players. Merchants
// are neutral stationary NPCs marked in their template.
func (m *Monster) Merchant() bool {
	return m.IsMerchant && m.Type == Neutral && m.Behavior == Stationary
}

func (m *Monster) Validate() error {
	if m.TemplateID == "" {
		return mud.E(mud.Input, "invalid_monster", "monster %d has no template id", m.ID)
	}
	if err := m.Name.Validate(); err != nil {
		return err
	}
	switch m.Type {
	case Aggressive, Passive, Neutral:
	default:
		return mud.E(mud.Input, "invalid_monster", "monster %d has unknown type %q", m.ID, m.Type)
	}
	switch m.Behavior {
	case Stationary, Roaming, Patrolling:
	default:
		return mud.E(mud.Input, "invalid_monster", "monster %d has unknown behavior %q", m.ID, m.Behavior)
	}
	if m.CurrentRoomID == "" {
		return mud.E(mud.Input, "invalid_monster", "monster %d has no room", m.ID)
	}
	if m.Stats.HP > m.Stats.MaxHP || m.Stats.HP < 0 {
		return mud.E(mud.Input, "invalid_monster", "monster %d hp %d outside 0..%d", m.ID, m.Stats.HP, m.Stats.MaxHP)
	}
	for _, d := range m.DropItems {
		if d.TemplateID == "" || d.Chance < 0 || d.Chance > 1 {
			return mud.E(mud.Input, "invalid_monster", "monster %d has a malformed drop entry", m.ID)
		}
	}
	return nil
}

func (m *Monster) Clone() *Monster {
	cp := *m
	cp.Name = cloneLocMap(m.Name)
	cp.DropItems = append([]DropItem(nil), m.DropItems...)
	return &cp
}
