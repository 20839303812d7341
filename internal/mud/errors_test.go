package mud

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"direct", E(NotFound, "no_such_room", "room %q does not exist", "r9"), NotFound},
		{"wrapped once", fmt.Errorf("move: %w", E(State, "no_such_exit", "no exit that way")), State},
		{"wrap helper", Wrap(errors.New("conn refused"), Storage, "db_unavailable", "the action failed"), Storage},
		{"plain error", errors.New("boom"), Internal},
		{"nil chain tail", E(Authz, "admin_only", "admin only"), Authz},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestCodeAndMessage(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", E(Input, "bad_args", "usage: go <direction>"))
	assert.Equal(t, "bad_args", CodeOf(err))
	assert.Equal(t, "usage: go <direction>", MessageOf(err))

	assert.Equal(t, "internal", CodeOf(errors.New("raw")))
	assert.Equal(t, "", MessageOf(errors.New("raw")))
}

func TestUnwrapChain(t *testing.T) {
	cause := errors.New("unique violation")
	err := Wrap(cause, Conflict, "name_taken", "that name is taken")

	require.ErrorIs(t, err, cause)

	var me *Error
	require.ErrorAs(t, fmt.Errorf("outer: %w", err), &me)
	assert.Equal(t, Conflict, me.Kind)
}

func TestIsKind(t *testing.T) {
	inner := E(Timeout, "combat_timeout", "combat timed out")
	outer := Wrap(inner, Transport, "send_failed", "send failed")

	assert.True(t, IsKind(outer, Transport))
	assert.True(t, IsKind(outer, Timeout))
	assert.False(t, IsKind(outer, Auth))
}

func TestErrorString(t *testing.T) {
	err := E(NotFound, "no_such_player", "player not found")
	assert.Equal(t, "no_such_player (not_found): player not found", err.Error())

	wrapped := Wrap(errors.New("pg: 0 rows"), NotFound, "no_such_player", "player not found")
	assert.Contains(t, wrapped.Error(), "pg: 0 rows")
}
