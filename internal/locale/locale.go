// Package locale loads per-language message catalogs and resolves which
// supported locale a client gets. Entity-level localized fields live in
// the model package; this package covers server prose (prompts, errors,
// combat lines).
package locale

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/language"

	"github.com/duskmud/server/internal/mud"
)

// Catalog maps locale code → key → template. Templates use positional
// {0}, {1}, ... substitution.
type Catalog struct {
	tables  map[string]map[string]string
	codes   []string
	matcher language.Matcher
}

// New builds a catalog from in-memory tables. The "en" table is
// mandatory; it is the fallback for every miss.
func New(tables map[string]map[string]string) (*Catalog, error) {
	if tables["en"] == nil {
		return nil, mud.E(mud.Input, "missing_en", "catalog requires an en table")
	}
	c := &Catalog{tables: tables}

	// en first so the matcher falls back to it.
	c.codes = append(c.codes, "en")
	tags := []language.Tag{language.English}
	for code := range tables {
		if code == "en" {
			continue
		}
		tag, err := language.Parse(code)
		if err != nil {
			return nil, mud.Wrap(err, mud.Input, "bad_locale", fmt.Sprintf("catalog locale %q", code))
		}
		c.codes = append(c.codes, code)
		tags = append(tags, tag)
	}
	c.matcher = language.NewMatcher(tags)
	return c, nil
}

// LoadDir reads every <locale>.json file in dir into one catalog.
func LoadDir(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, mud.Wrap(err, mud.Storage, "translations_unreadable", "cannot read translations directory")
	}
	tables := make(map[string]map[string]string)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		code := strings.TrimSuffix(name, ".json")
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, mud.Wrap(err, mud.Storage, "translations_unreadable", "cannot read "+name)
		}
		var table map[string]string
		if err := json.Unmarshal(data, &table); err != nil {
			return nil, mud.Wrap(err, mud.Storage, "translations_malformed", "cannot parse "+name)
		}
		tables[code] = table
	}
	return New(tables)
}

// Match resolves a requested locale (possibly a full BCP 47 tag like
// "ko-KR") to a supported catalog code. Unknown input matches "en".
func (c *Catalog) Match(requested string) string {
	tag, err := language.Parse(requested)
	if err != nil {
		return "en"
	}
	_, idx, _ := c.matcher.Match(tag)
	return c.codes[idx]
}

// Supported reports whether code is an exact catalog locale.
func (c *Catalog) Supported(code string) bool {
	_, ok := c.tables[code]
	return ok
}

// T renders the template for key in the given locale, falling back to en.
// A key missing from every table renders as the key itself, which keeps
// untranslated output greppable.
func (c *Catalog) T(loc, key string, args ...any) string {
	tmpl, ok := c.tables[loc][key]
	if !ok || tmpl == "" {
		tmpl, ok = c.tables["en"][key]
		if !ok || tmpl == "" {
			return key
		}
	}
	for i, a := range args {
		tmpl = strings.ReplaceAll(tmpl, fmt.Sprintf("{%d}", i), fmt.Sprint(a))
	}
	return tmpl
}

// ErrorText renders the user-facing line for a classified error, keyed
// by "error.<code>" with the raw safe message as the last resort.
func (c *Catalog) ErrorText(loc string, err error) string {
	code := mud.CodeOf(err)
	key := "error." + code
	if tmpl, ok := c.tables[loc][key]; ok && tmpl != "" {
		return tmpl
	}
	if tmpl, ok := c.tables["en"][key]; ok && tmpl != "" {
		return tmpl
	}
	if msg := mud.MessageOf(err); msg != "" {
		return msg
	}
	return c.T(loc, "error.internal")
}
