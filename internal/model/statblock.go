package model

import "github.com/duskmud/server/internal/mud"

// StatBlock holds the six primary stats and the values derived from
// them. Players re-derive on load and on any primary mutation; monster
// templates ship explicit derived values and are not re-derived.
type StatBlock struct {
	Str int `json:"str"`
	Dex int `json:"dex"`
	Con int `json:"con"`
	Int int `json:"int"`
	Wis int `json:"wis"`
	Cha int `json:"cha"`

	HP          int `json:"hp"`
	MaxHP       int `json:"max_hp"`
	MP          int `json:"mp"`
	MaxMP       int `json:"max_mp"`
	Attack      int `json:"attack"`
	Defense     int `json:"defense"`
	Speed       int `json:"speed"`
	CarryWeight int `json:"carry_weight"`
}

const (
	StatMin = 1
	StatMax = 30

	LevelMin = 1
	LevelMax = 100
)

// Derive recomputes every derived value from the primaries and level,
// clamping HP/MP into the new bounds. Full bars on first derivation.
func (s *StatBlock) Derive(level int) {
	firstTime := s.MaxHP == 0

	s.MaxHP = 20 + s.Con*4 + level*6
	s.MaxMP = 10 + s.Int*3 + s.Wis*2 + level*2
	s.Attack = s.Str*2 + level
	s.Defense = s.Con + s.Dex/2
	s.Speed = s.Dex + level/2
	s.CarryWeight = MaxCarryWeight(s.Str)

	if firstTime {
		s.HP = s.MaxHP
		s.MP = s.MaxMP
	}
	if s.HP > s.MaxHP {
		s.HP = s.MaxHP
	}
	if s.MP > s.MaxMP {
		s.MP = s.MaxMP
	}
}

// MaxCarryWeight derives carrying capacity from strength. Consumers use
// this accessor rather than reading Str.
func MaxCarryWeight(str int) int { return 50 + str*10 }

func (s *StatBlock) Validate() error {
	for _, p := range []struct {
		name string
		val  int
	}{
		{"str", s.Str}, {"dex", s.Dex}, {"con", s.Con},
		{"int", s.Int}, {"wis", s.Wis}, {"cha", s.Cha},
	} {
		if p.val < StatMin || p.val > StatMax {
			return mud.E(mud.Input, "stat_out_of_range", "%s %d outside %d..%d", p.name, p.val, StatMin, StatMax)
		}
	}
	if s.MaxHP < 0 || s.HP < 0 || s.HP > s.MaxHP {
		return mud.E(mud.Input, "hp_out_of_range", "hp %d outside 0..%d", s.HP, s.MaxHP)
	}
	if s.MaxMP < 0 || s.MP < 0 || s.MP > s.MaxMP {
		return mud.E(mud.Input, "mp_out_of_range", "mp %d outside 0..%d", s.MP, s.MaxMP)
	}
	return nil
}
