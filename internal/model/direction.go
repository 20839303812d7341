package model

import (
	"strings"

	"github.com/duskmud/server/internal/mud"
)

// Direction is a room exit direction. The set is closed; parsers accept
// long names, short forms, and Korean forms.
type Direction string

const (
	North     Direction = "north"
	South     Direction = "south"
	East      Direction = "east"
	West      Direction = "west"
	Up        Direction = "up"
	Down      Direction = "down"
	Northeast Direction = "northeast"
	Northwest Direction = "northwest"
	Southeast Direction = "southeast"
	Southwest Direction = "southwest"
)

// AllDirections lists every direction in a stable order (used for menus
// and deterministic exit listings).
var AllDirections = []Direction{
	North, South, East, West, Up, Down,
	Northeast, Northwest, Southeast, Southwest,
}

var directionAliases = map[string]Direction{
	"north": North, "n": North, "북": North,
	"south": South, "s": South, "남": South,
	"east": East, "e": East, "동": East,
	"west": West, "w": West, "서": West,
	"up": Up, "u": Up, "위": Up,
	"down": Down, "d": Down, "아래": Down,
	"northeast": Northeast, "ne": Northeast, "북동": Northeast,
	"northwest": Northwest, "nw": Northwest, "북서": Northwest,
	"southeast": Southeast, "se": Southeast, "남동": Southeast,
	"southwest": Southwest, "sw": Southwest, "남서": Southwest,
}

var opposites = map[Direction]Direction{
	North: South, South: North, East: West, West: East,
	Up: Down, Down: Up,
	Northeast: Southwest, Southwest: Northeast,
	Northwest: Southeast, Southeast: Northwest,
}

// ParseDirection resolves user input to a Direction.
func ParseDirection(s string) (Direction, error) {
	d, ok := directionAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", mud.E(mud.Input, "bad_direction", "%q is not a direction", s)
	}
	return d, nil
}

// IsDirection reports whether input names a direction without allocating
// an error for the common dispatch probe.
func IsDirection(s string) bool {
	_, ok := directionAliases[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

func (d Direction) Opposite() Direction { return opposites[d] }

func (d Direction) Valid() bool { return opposites[d] != "" }
