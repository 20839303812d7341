package combat

import (
	"strconv"

	"github.com/duskmud/server/internal/model"
)

// Kind distinguishes player and monster combatants.
type Kind string

const (
	KindPlayer  Kind = "player"
	KindMonster Kind = "monster"
)

// PlayerRef carries the session-side identity combat needs about a
// player. The combat engine never touches sessions directly.
type PlayerRef struct {
	ID        int64
	SessionID string
	Username  string
	Locale    string
	Stats     model.StatBlock
}

// Combatant is one participant's in-fight snapshot. Damage applies here;
// results are written back to the owning entity when the fight ends or
// the combatant leaves.
type Combatant struct {
	ID        string // "p:<id>" or "m:<id>"
	Kind      Kind
	RefID     int64
	SessionID string // players only
	Name      string // display name (en)
	Locale    string // players only
	HP        int
	MaxHP     int
	Attack    int
	Defense   int
	Speed     int
	Defending bool
	Alive     bool

	// rewards accumulated by a player during the fight
	GoldEarned int
	ExpEarned  int

	// reward granted by a monster when it dies
	GoldReward int
	ExpReward  int
}

func playerCombatantID(id int64) string  { return "p:" + strconv.FormatInt(id, 10) }
func monsterCombatantID(id int64) string { return "m:" + strconv.FormatInt(id, 10) }

// parseCombatantID splits "p:<id>"/"m:<id>" back into kind and ref id.
func parseCombatantID(cid string) (Kind, int64, bool) {
	if len(cid) < 3 || cid[1] != ':' {
		return "", 0, false
	}
	id, err := strconv.ParseInt(cid[2:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	switch cid[0] {
	case 'p':
		return KindPlayer, id, true
	case 'm':
		return KindMonster, id, true
	}
	return "", 0, false
}

func newPlayerCombatant(ref PlayerRef) *Combatant {
	return &Combatant{
		ID:        playerCombatantID(ref.ID),
		Kind:      KindPlayer,
		RefID:     ref.ID,
		SessionID: ref.SessionID,
		Name:      ref.Username,
		Locale:    ref.Locale,
		HP:        ref.Stats.HP,
		MaxHP:     ref.Stats.MaxHP,
		Attack:    ref.Stats.Attack,
		Defense:   ref.Stats.Defense,
		Speed:     ref.Stats.Speed,
		Alive:     ref.Stats.HP > 0,
	}
}

func newMonsterCombatant(m *model.Monster) *Combatant {
	return &Combatant{
		ID:         monsterCombatantID(m.ID),
		Kind:       KindMonster,
		RefID:      m.ID,
		Name:       m.Name.Pick("en"),
		HP:         m.Stats.HP,
		MaxHP:      m.Stats.MaxHP,
		Attack:     m.Stats.Attack,
		Defense:    m.Stats.Defense,
		Speed:      m.Stats.Speed,
		Alive:      m.Alive && m.Stats.HP > 0,
		GoldReward: m.GoldReward,
		ExpReward:  m.ExpReward,
	}
}

// statusView is the wire shape of one combatant in combat_status.
func (c *Combatant) statusView() map[string]any {
	return map[string]any{
		"id":        c.ID,
		"kind":      string(c.Kind),
		"name":      c.Name,
		"hp":        c.HP,
		"max_hp":    c.MaxHP,
		"speed":     c.Speed,
		"defending": c.Defending,
		"alive":     c.Alive,
	}
}
