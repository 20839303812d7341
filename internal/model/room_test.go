package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		room Room
	}{
		{
			"no exits",
			Room{
				ID:          "void",
				Name:        Loc("The Void", "공허"),
				Description: Loc("Nothing here.", "아무것도 없다."),
				Exits:       map[Direction]string{},
			},
		},
		{
			"all exits and spawns",
			Room{
				ID:          "crossroads",
				Name:        Loc("Crossroads", "교차로"),
				Description: Loc("Paths lead everywhere.", "길이 사방으로 나 있다."),
				Exits: map[Direction]string{
					North: "r_n", South: "r_s", East: "r_e", West: "r_w",
					Up: "r_u", Down: "r_d",
					Northeast: "r_ne", Northwest: "r_nw",
					Southeast: "r_se", Southwest: "r_sw",
				},
				SpawnPoints: []SpawnPoint{
					{RoomID: "crossroads", TemplateID: "goblin", Count: 2, RespawnSec: 30, Roaming: true},
				},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(&tt.room)
			require.NoError(t, err)

			var got Room
			require.NoError(t, json.Unmarshal(raw, &got))
			assert.Equal(t, tt.room, got)
		})
	}
}

func TestRoomValidate(t *testing.T) {
	ok := Room{ID: "r1", Name: Loc("Room", ""), Description: Loc("A room.", "")}
	require.NoError(t, ok.Validate())

	noEN := Room{ID: "r1", Name: LocMap{"ko": "방"}, Description: Loc("x", "")}
	assert.Error(t, noEN.Validate())

	badExit := ok
	badExit.Exits = map[Direction]string{"upward": "r2"}
	assert.Error(t, badExit.Validate())

	badSpawn := ok
	badSpawn.SpawnPoints = []SpawnPoint{{TemplateID: "", Count: 1}}
	assert.Error(t, badSpawn.Validate())
}

func TestExitDirectionsStableOrder(t *testing.T) {
	r := Room{
		ID: "r", Name: Loc("r", ""), Description: Loc("r", ""),
		Exits: map[Direction]string{West: "a", North: "b", Down: "c"},
	}
	assert.Equal(t, []Direction{North, West, Down}, r.ExitDirections())
}

func TestRoomCloneIsDeep(t *testing.T) {
	r := Room{
		ID: "r", Name: Loc("Room", "방"), Description: Loc("d", ""),
		Exits: map[Direction]string{North: "r2"},
	}
	cp := r.Clone()
	cp.Exits[South] = "r3"
	cp.Name["en"] = "Changed"

	assert.NotContains(t, r.Exits, South)
	assert.Equal(t, "Room", r.Name["en"])
}
