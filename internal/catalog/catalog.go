// Package catalog loads the voice command catalog from YAML.
package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"solarcore/internal/domain"
)

//go:embed default.yaml
var defaultCatalog []byte

type file struct {
	Commands []domain.CatalogCommand `yaml:"commands"`
}

// Catalog is a read-only command list. Order is preserved because the
// interpreter breaks score ties by first-seen.
type Catalog struct {
	commands []domain.CatalogCommand
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file. An empty path yields the built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	for i, c := range f.Commands {
		if c.Action == "" {
			return nil, fmt.Errorf("command %d (%q): missing action", i, c.Name)
		}
		if len(c.Phrases) == 0 {
			return nil, fmt.Errorf("command %d (%q): no phrases", i, c.Name)
		}
		for _, phrase := range c.Phrases {
			if !hasWords(phrase) {
				return nil, fmt.Errorf("command %d (%q): phrase %q has no words besides placeholders", i, c.Name, phrase)
			}
		}
	}
	return &Catalog{commands: f.Commands}, nil
}

// Commands returns a copy of the commands in file order.
func (c *Catalog) Commands(_ context.Context) ([]domain.CatalogCommand, error) {
	out := make([]domain.CatalogCommand, len(c.commands))
	copy(out, c.commands)
	return out, nil
}

// Len is the number of commands.
func (c *Catalog) Len() int {
	return len(c.commands)
}

// hasWords reports whether phrase keeps a letter or digit once its
// placeholders are removed. A bare placeholder would match every utterance.
func hasWords(phrase string) bool {
	stripped := strings.NewReplacer(domain.PlaceholderRoom, "", domain.PlaceholderDevice, "").Replace(strings.ToLower(phrase))
	return strings.IndexFunc(stripped, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}
