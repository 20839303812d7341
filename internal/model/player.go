package model

import (
	"regexp"
	"time"

	"github.com/duskmud/server/internal/mud"
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

const PasswordMinLen = 6

// Player is the persisted account plus game state. PasswordHash never
// leaves the persistence and auth layers.
type Player struct {
	ID              int64     `json:"id"`
	Username        string    `json:"username"`
	PasswordHash    string    `json:"-"`
	IsAdmin         bool      `json:"is_admin"`
	PreferredLocale string    `json:"preferred_locale"`
	CreatedAt       time.Time `json:"created_at"`
	LastLogin       time.Time `json:"last_login"`

	CurrentRoomID string    `json:"current_room_id"`
	Stats         StatBlock `json:"stats"`
	Inventory     []string  `json:"inventory"`
	Gold          int       `json:"gold"`
	Experience    int       `json:"experience"`
	Level         int       `json:"level"`
}

// ValidateUsername enforces the account-name rules (3–20 chars of
// [A-Za-z0-9_]). Usernames are case-preserving; uniqueness is enforced
// by the store.
func ValidateUsername(name string) error {
	if !usernameRe.MatchString(name) {
		return mud.E(mud.Input, "bad_username", "username must be 3-20 letters, digits, or underscores")
	}
	return nil
}

func ValidatePassword(pw string) error {
	if len(pw) < PasswordMinLen {
		return mud.E(mud.Input, "bad_password", "password must be at least %d characters", PasswordMinLen)
	}
	return nil
}

// MaxCarryWeight is the typed accessor for carrying capacity.
func (p *Player) MaxCarryWeight() int { return MaxCarryWeight(p.Stats.Str) }

// DeriveStats recomputes derived stats for the player's level.
func (p *Player) DeriveStats() { p.Stats.Derive(p.Level) }

func (p *Player) Validate() error {
	if err := ValidateUsername(p.Username); err != nil {
		return err
	}
	if p.Level < LevelMin || p.Level > LevelMax {
		return mud.E(mud.Input, "invalid_player", "level %d outside %d..%d", p.Level, LevelMin, LevelMax)
	}
	if p.CurrentRoomID == "" {
		return mud.E(mud.Input, "invalid_player", "player %s has no room", p.Username)
	}
	if p.Gold < 0 || p.Experience < 0 {
		return mud.E(mud.Input, "invalid_player", "player %s has negative gold or experience", p.Username)
	}
	return p.Stats.Validate()
}

func (p *Player) Clone() *Player {
	cp := *p
	cp.Inventory = append([]string(nil), p.Inventory...)
	return &cp
}
