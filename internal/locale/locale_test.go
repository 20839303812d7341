package locale

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskmud/server/internal/mud"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := New(map[string]map[string]string{
		"en": {
			"welcome":            "Welcome, {0}!",
			"room.exits":         "Exits: {0}",
			"error.no_such_exit": "There is no exit that way.",
			"error.internal":     "an internal error occurred (code: {0})",
		},
		"ko": {
			"welcome": "{0}님, 환영합니다!",
		},
	})
	require.NoError(t, err)
	return c
}

func TestTSubstitutionAndFallback(t *testing.T) {
	c := testCatalog(t)

	assert.Equal(t, "Welcome, alice!", c.T("en", "welcome", "alice"))
	assert.Equal(t, "alice님, 환영합니다!", c.T("ko", "welcome", "alice"))

	// ko misses room.exits → en fallback
	assert.Equal(t, "Exits: north, east", c.T("ko", "room.exits", "north, east"))

	// missing everywhere → key marker
	assert.Equal(t, "no.such.key", c.T("en", "no.such.key"))
}

func TestMatch(t *testing.T) {
	c := testCatalog(t)

	tests := []struct {
		in   string
		want string
	}{
		{"en", "en"},
		{"ko", "ko"},
		{"ko-KR", "ko"},
		{"en-US", "en"},
		{"fr", "en"},
		{"garbage!!", "en"},
		{"", "en"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Match(tt.in), "Match(%q)", tt.in)
	}
}

func TestRequiresEnglish(t *testing.T) {
	_, err := New(map[string]map[string]string{"ko": {"welcome": "환영"}})
	assert.Error(t, err)
}

func TestErrorText(t *testing.T) {
	c := testCatalog(t)

	// catalog line wins
	err := mud.E(mud.State, "no_such_exit", "no exit")
	assert.Equal(t, "There is no exit that way.", c.ErrorText("en", err))

	// no catalog line → safe message from the error
	err = mud.E(mud.Input, "bad_args", "usage: go <direction>")
	assert.Equal(t, "usage: go <direction>", c.ErrorText("en", err))

	// unclassified → generic internal line
	got := c.ErrorText("en", errors.New("pg: connection reset"))
	assert.NotContains(t, got, "connection reset")
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.json"),
		[]byte(`{"welcome": "Welcome, {0}!"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ko.json"),
		[]byte(`{"welcome": "{0}님, 환영합니다!"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"),
		[]byte("ignored"), 0o644))

	c, err := LoadDir(dir)
	require.NoError(t, err)
	assert.True(t, c.Supported("ko"))
	assert.Equal(t, "Welcome, bob!", c.T("en", "welcome", "bob"))
}

func TestLoadDirErrors(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.json"), []byte("{broken"), 0o644))
	_, err = LoadDir(dir)
	assert.Error(t, err)
}

func TestBundledCatalogsComplete(t *testing.T) {
	c, err := LoadDir("../../translations")
	require.NoError(t, err)
	require.True(t, c.Supported("en"))
	require.True(t, c.Supported("ko"))

	for key := range c.tables["en"] {
		assert.Contains(t, c.tables["ko"], key, "ko catalog is missing %q", key)
	}
	for key := range c.tables["ko"] {
		assert.Contains(t, c.tables["en"], key, "ko catalog has an orphan line %q", key)
	}
}
