// Package namecheck vets player names before they reach a scoreboard.
package namecheck

import (
	"strings"

	goaway "github.com/TwiN/go-away"
)

// Filter decides whether a name is acceptable.
type Filter interface {
	IsProfane(name string) bool
}

// NameCfg configures the filter ("names" section).
type NameCfg struct {
	ExtraWords []string `mapstructure:"extraWords"`
	MaxLength  int      `mapstructure:"maxLength"`
}

// GetName implements config.Config.
func (c *NameCfg) GetName() string {
	return "names"
}

// Validate implements config.Config.
func (c *NameCfg) Validate() error {
	return nil
}

// ProfanityFilter wraps go-away's detector with the default dictionary plus
// configured words. Names longer than MaxLength are rejected as well.
type ProfanityFilter struct {
	detector  *goaway.ProfanityDetector
	maxLength int
}

// NewProfanityFilter builds a filter; cfg may be nil.
func NewProfanityFilter(cfg *NameCfg) *ProfanityFilter {
	if cfg == nil {
		cfg = &NameCfg{}
	}
	words := append([]string(nil), goaway.DefaultProfanities...)
	for _, w := range cfg.ExtraWords {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			words = append(words, w)
		}
	}
	return &ProfanityFilter{
		detector: goaway.NewProfanityDetector().
			WithCustomDictionary(words, goaway.DefaultFalsePositives, goaway.DefaultFalseNegatives),
		maxLength: cfg.MaxLength,
	}
}

func (f *ProfanityFilter) IsProfane(name string) bool {
	if f.maxLength > 0 && len([]rune(name)) > f.maxLength {
		return true
	}
	return f.detector.IsProfane(name)
}
