package model

import (
	"strings"
	"testing"
)

func TestValidateUsernameBoundaries(t *testing.T) {
	tests := []struct {
		name string
		in   string
		ok   bool
	}{
		{"min length", "abc", true},
		{"max length", strings.Repeat("a", 20), true},
		{"one under", "ab", false},
		{"one over", strings.Repeat("a", 21), false},
		{"underscore and digits", "player_01", true},
		{"space", "bad name", false},
		{"hyphen", "bad-name", false},
		{"hangul", "용사", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.in)
			if tt.ok && err != nil {
				t.Errorf("ValidateUsername(%q) = %v, want ok", tt.in, err)
			}
			if !tt.ok && err == nil {
				t.Errorf("ValidateUsername(%q) = nil, want error", tt.in)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("hunter2"); err != nil {
		t.Fatalf("valid password rejected: %v", err)
	}
	if err := ValidatePassword("12345"); err == nil {
		t.Fatal("five-char password accepted")
	}
}

func TestPlayerValidate(t *testing.T) {
	p := Player{
		Username:        "alice",
		PreferredLocale: "en",
		CurrentRoomID:   "town_square",
		Level:           1,
		Stats:           StatBlock{Str: 10, Dex: 10, Con: 10, Int: 10, Wis: 10, Cha: 10},
	}
	p.DeriveStats()
	if err := p.Validate(); err != nil {
		t.Fatalf("valid player rejected: %v", err)
	}

	bad := p
	bad.Level = 0
	if err := bad.Validate(); err == nil {
		t.Error("level 0 accepted")
	}

	bad = p
	bad.Gold = -1
	if err := bad.Validate(); err == nil {
		t.Error("negative gold accepted")
	}
}

func TestPlayerCloneIsolatesInventory(t *testing.T) {
	p := Player{Username: "bob", Inventory: []string{"sword"}}
	cp := p.Clone()
	cp.Inventory = append(cp.Inventory, "shield")
	if len(p.Inventory) != 1 {
		t.Errorf("clone mutated the source inventory: %v", p.Inventory)
	}
}
