// Package cocktail defines the named model rosters consumed by the scheduler.
//
// A cocktail pairs an ordered list of primary model IDs with a positional
// fallback list: fallbacks[i] is the sole backup for primaries[i]. Rosters are
// read-only after process start.
package cocktail

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Roster is one named cocktail.
type Roster struct {
	Name      string   `yaml:"name"`
	Primaries []string `yaml:"primaries"`
	Fallbacks []string `yaml:"fallbacks"`
}

// Catalog maps cocktail names to rosters.
type Catalog struct {
	rosters map[string]Roster
}

// Names are the five supported cocktails.
var Names = []string{"LUXE", "PREMIUM", "SPEEDY", "BUDGET", "DEPTH"}

// Default returns the built-in catalog. Primary lists follow the production
// roster; each fallback is the positional backup for its primary.
func Default() *Catalog {
	rosters := []Roster{
		{
			Name: "LUXE",
			Primaries: []string{
				"anthropic/claude-3.7-sonnet",
				"openai/o1",
				"google/gemini-2.0-flash-thinking-exp:free",
				"x-ai/grok-4",
			},
			Fallbacks: []string{
				"anthropic/claude-3.5-haiku",
				"openai/gpt-4o",
				"google/gemini-2.0-flash-001",
				"x-ai/grok-4-fast",
			},
		},
		{
			Name: "PREMIUM",
			Primaries: []string{
				"openai/gpt-4o",
				"x-ai/grok-4",
				"meta-llama/llama-4-maverick",
				"deepseek/deepseek-r1",
			},
			Fallbacks: []string{
				"openai/gpt-4o-mini",
				"x-ai/grok-4-fast",
				"meta-llama/llama-3.3-70b-instruct",
				"deepseek/deepseek-chat",
			},
		},
		{
			Name: "SPEEDY",
			Primaries: []string{
				"openai/gpt-4o-mini",
				"x-ai/grok-4-fast",
				"meta-llama/llama-3.3-70b-instruct",
			},
			Fallbacks: []string{
				"openai/gpt-3.5-turbo",
				"x-ai/grok-4-fast:free",
				"mistralai/mistral-small",
			},
		},
		{
			Name: "BUDGET",
			Primaries: []string{
				"openai/gpt-3.5-turbo",
				"mistralai/mistral-large",
				"x-ai/grok-4-fast:free",
			},
			Fallbacks: []string{
				"openai/gpt-4o-mini",
				"mistralai/mistral-small",
				"meta-llama/llama-3.3-70b-instruct",
			},
		},
		{
			Name: "DEPTH",
			Primaries: []string{
				"anthropic/claude-3.7-sonnet",
				"openai/gpt-4o",
				"x-ai/grok-4",
				"deepseek/deepseek-r1",
			},
			Fallbacks: []string{
				"anthropic/claude-3.5-haiku",
				"openai/gpt-4o-mini",
				"x-ai/grok-4-fast",
				"deepseek/deepseek-chat",
			},
		},
	}
	c := &Catalog{rosters: make(map[string]Roster, len(rosters))}
	for _, r := range rosters {
		c.rosters[r.Name] = r
	}
	return c
}

// LoadFile reads a YAML roster file and returns a validated catalog. The file
// holds a list of rosters under a top-level "cocktails" key.
func LoadFile(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Cocktails []Roster `yaml:"cocktails"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse cocktail file %s: %w", path, err)
	}
	if len(doc.Cocktails) == 0 {
		return nil, fmt.Errorf("cocktail file %s defines no cocktails", path)
	}
	c := &Catalog{rosters: make(map[string]Roster, len(doc.Cocktails))}
	for _, r := range doc.Cocktails {
		r.Name = strings.ToUpper(strings.TrimSpace(r.Name))
		if err := validateRoster(r); err != nil {
			return nil, fmt.Errorf("cocktail file %s: %w", path, err)
		}
		c.rosters[r.Name] = r
	}
	return c, nil
}

func validateRoster(r Roster) error {
	if r.Name == "" {
		return fmt.Errorf("cocktail with empty name")
	}
	if len(r.Primaries) < 3 {
		return fmt.Errorf("cocktail %s: need at least 3 primaries, got %d", r.Name, len(r.Primaries))
	}
	if len(r.Fallbacks) != len(r.Primaries) {
		return fmt.Errorf("cocktail %s: fallbacks length %d != primaries length %d",
			r.Name, len(r.Fallbacks), len(r.Primaries))
	}
	for i, m := range r.Primaries {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("cocktail %s: empty primary at index %d", r.Name, i)
		}
	}
	for i, m := range r.Fallbacks {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("cocktail %s: empty fallback at index %d", r.Name, i)
		}
	}
	return nil
}

// Get returns the roster for name (case-insensitive).
func (c *Catalog) Get(name string) (Roster, bool) {
	r, ok := c.rosters[strings.ToUpper(strings.TrimSpace(name))]
	return r, ok
}

// Names returns the catalog's cocktail names, sorted.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.rosters))
	for name := range c.rosters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Validate checks every roster in the catalog.
func (c *Catalog) Validate() error {
	for _, r := range c.rosters {
		if err := validateRoster(r); err != nil {
			return err
		}
	}
	return nil
}
