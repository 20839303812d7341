package model

import "github.com/duskmud/server/internal/mud"

// LocMap maps a locale code to a translated string. Every LocMap carries
// an "en" entry; other locales fall back to it.
type LocMap map[string]string

// Pick returns the string for locale, falling back to English.
func (m LocMap) Pick(locale string) string {
	if s, ok := m[locale]; ok && s != "" {
		return s
	}
	return m["en"]
}

func (m LocMap) Validate() error {
	if m["en"] == "" {
		return mud.E(mud.Input, "missing_en", "localized text requires an en entry")
	}
	return nil
}

// Loc builds a LocMap from English and Korean strings; ko may be empty.
func Loc(en, ko string) LocMap {
	m := LocMap{"en": en}
	if ko != "" {
		m["ko"] = ko
	}
	return m
}
