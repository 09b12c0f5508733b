package enrich

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
	"mrsync/pkg/config"
	"mrsync/pkg/errors"
)

// DefaultUnknownMarker is appended to names missing from the dictionary
const DefaultUnknownMarker = "*"

// Name is the outcome of a dictionary lookup
type Name struct {
	Value string
	Known bool
}

// Dictionary maps raw GitLab display names to canonical names
type Dictionary struct {
	exact  map[string]string
	folded map[string]string
	marker string
}

// NewDictionary builds a dictionary from raw -> canonical entries
func NewDictionary(entries map[string]string, marker string) *Dictionary {
	d := &Dictionary{
		exact:  make(map[string]string, len(entries)),
		folded: make(map[string]string, len(entries)),
		marker: marker,
	}
	for raw, canonical := range entries {
		d.exact[raw] = canonical
		d.folded[fold(raw)] = canonical
	}
	return d
}

// LoadDictionary merges the dictionary file with inline entries; inline wins
func LoadDictionary(cfg config.UsersConfig) (*Dictionary, error) {
	entries := make(map[string]string)

	if cfg.DictionaryFile != "" {
		data, err := os.ReadFile(cfg.DictionaryFile)
		if err != nil {
			return nil, errors.Configf("failed to read user dictionary %s: %v", cfg.DictionaryFile, err)
		}
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, errors.Configf("failed to parse user dictionary %s: %v", cfg.DictionaryFile, err)
		}
	}
	for raw, canonical := range cfg.Dictionary {
		entries[raw] = canonical
	}

	marker := cfg.UnknownMarker
	if marker == "" {
		marker = DefaultUnknownMarker
	}
	return NewDictionary(entries, marker), nil
}

// Len returns the number of entries
func (d *Dictionary) Len() int {
	return len(d.exact)
}

// Normalize looks raw up exactly, then trimmed and case-insensitively.
// Unknown names come back as raw plus the unknown marker.
func (d *Dictionary) Normalize(raw string) Name {
	if canonical, ok := d.exact[raw]; ok && canonical != "" {
		return Name{Value: canonical, Known: true}
	}
	if canonical, ok := d.folded[fold(raw)]; ok && canonical != "" {
		return Name{Value: canonical, Known: true}
	}
	return Name{Value: raw + d.marker, Known: false}
}

func fold(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
