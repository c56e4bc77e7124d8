// Package policy loads feature policies from a YAML seed file.
package policy

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/inaiurai/jobmeter/internal/models"
)

type file struct {
	Features []entry `yaml:"features"`
}

type entry struct {
	Flag          string          `yaml:"flag"`
	Enabled       bool            `yaml:"enabled"`
	ComingSoon    bool            `yaml:"coming_soon"`
	Cost          any             `yaml:"cost"`
	RequiredPlans []string        `yaml:"required_plans"`
	Overrides     map[string]bool `yaml:"overrides"`
}

// LoadFile reads policies from path.
func LoadFile(path string, log *slog.Logger) ([]*models.FeaturePolicy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f, log)
}

// Load decodes a policy document. A cost that is missing or not a number is
// stored unset so the default cost applies.
func Load(r io.Reader, log *slog.Logger) ([]*models.FeaturePolicy, error) {
	if log == nil {
		log = slog.Default()
	}
	var doc file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode policies: %w", err)
	}

	seen := make(map[string]bool, len(doc.Features))
	out := make([]*models.FeaturePolicy, 0, len(doc.Features))
	for i, e := range doc.Features {
		flag := strings.TrimSpace(e.Flag)
		if flag == "" {
			return nil, fmt.Errorf("feature %d: flag is required", i)
		}
		if seen[flag] {
			return nil, fmt.Errorf("feature %q: duplicate flag", flag)
		}
		seen[flag] = true

		p := &models.FeaturePolicy{
			FlagName:         flag,
			IsEnabled:        e.Enabled,
			IsComingSoon:     e.ComingSoon,
			RequiredPlanKeys: e.RequiredPlans,
		}
		cost, ok := ParseCost(e.Cost)
		if !ok && e.Cost != nil {
			log.Warn("non-numeric cost, using default", "feature_key", flag, "cost", e.Cost)
		}
		p.Cost = cost

		if len(e.Overrides) > 0 {
			p.UserOverrides = make(map[uuid.UUID]bool, len(e.Overrides))
			for k, v := range e.Overrides {
				id, err := uuid.Parse(k)
				if err != nil {
					return nil, fmt.Errorf("feature %q: override key %q: %w", flag, k, err)
				}
				p.UserOverrides[id] = v
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// ParseCost converts a YAML scalar to a cost. ok is false when v is absent or
// not numeric.
func ParseCost(v any) (decimal.NullDecimal, bool) {
	switch c := v.(type) {
	case int:
		return decimal.NewNullDecimal(decimal.NewFromInt(int64(c))), true
	case int64:
		return decimal.NewNullDecimal(decimal.NewFromInt(c)), true
	case float64:
		return decimal.NewNullDecimal(decimal.NewFromFloat(c)), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(c))
		if err != nil {
			return decimal.NullDecimal{}, false
		}
		return decimal.NewNullDecimal(d), true
	default:
		return decimal.NullDecimal{}, false
	}
}
