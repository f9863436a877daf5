// Package locale holds the language-keyed text tables.
package locale

import (
	"embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed lang/*.json
var langFS embed.FS

// Fallback is the language served when a requested one is unavailable.
const Fallback = "EN"

// Table maps language code -> text key -> template.
type Table struct {
	texts map[string]map[string]string
}

// Load parses every embedded language file. A missing or malformed table is a
// startup error; the process must not run without its texts.
func Load() (*Table, error) {
	entries, err := langFS.ReadDir("lang")
	if err != nil {
		return nil, fmt.Errorf("read language dir: %w", err)
	}
	t := &Table{texts: make(map[string]map[string]string)}
	for _, e := range entries {
		raw, err := langFS.ReadFile("lang/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read language file %s: %w", e.Name(), err)
		}
		var texts map[string]string
		if err := json.Unmarshal(raw, &texts); err != nil {
			return nil, fmt.Errorf("parse language file %s: %w", e.Name(), err)
		}
		code := strings.ToUpper(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
		t.texts[code] = texts
	}
	if _, ok := t.texts[Fallback]; !ok {
		return nil, fmt.Errorf("fallback language %s missing", Fallback)
	}
	return t, nil
}

// Normalize reduces a locale tag like "en-US" to a supported language code,
// falling back when the language is unknown.
func (t *Table) Normalize(lang string) string {
	code := strings.ToUpper(lang)
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	if t.Has(code) {
		return code
	}
	return Fallback
}

// Has reports whether a language table is loaded.
func (t *Table) Has(lang string) bool {
	_, ok := t.texts[strings.ToUpper(lang)]
	return ok
}

// Languages lists the loaded language codes, sorted.
func (t *Table) Languages() []string {
	out := make([]string, 0, len(t.texts))
	for code := range t.texts {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Text looks a key up in lang, falling back to the fallback language and
// finally to the key itself so a missing entry never produces an empty
// message.
func (t *Table) Text(lang, key string) string {
	if texts, ok := t.texts[strings.ToUpper(lang)]; ok {
		if s, ok := texts[key]; ok {
			return s
		}
	}
	if s, ok := t.texts[Fallback][key]; ok {
		return s
	}
	return key
}

// Textf is Text with fmt.Sprintf expansion.
func (t *Table) Textf(lang, key string, args ...interface{}) string {
	return fmt.Sprintf(t.Text(lang, key), args...)
}
