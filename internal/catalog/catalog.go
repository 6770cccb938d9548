// Package catalog loads the YAML seed of actions, levels, titles, badges,
// roles, context multipliers and missions, and applies it to the store.
package catalog

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/degentalk/progression/internal/apperrors"
	"github.com/degentalk/progression/internal/models"
)

// Catalog is the parsed seed file.
type Catalog struct {
	Titles             []Title             `yaml:"titles"`
	Badges             []Badge             `yaml:"badges"`
	Roles              []Role              `yaml:"roles"`
	ContextMultipliers []ContextMultiplier `yaml:"context_multipliers"`
	Actions            []Action            `yaml:"actions"`
	Levels             []Level             `yaml:"levels"`
	Missions           []Mission           `yaml:"missions"`
}

// Title is a title definition.
type Title struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Rarity string `yaml:"rarity"`
}

// Badge is a badge definition. Levels and missions refer to badges by name.
type Badge struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Icon        string `yaml:"icon"`
	Rarity      string `yaml:"rarity"`
}

// Role is a role with its XP multiplier.
type Role struct {
	Name         string  `yaml:"name"`
	XPMultiplier float64 `yaml:"xp_multiplier"`
}

// ContextMultiplier boosts XP earned inside one context.
type ContextMultiplier struct {
	ContextID  string  `yaml:"context_id"`
	Multiplier float64 `yaml:"multiplier"`
}

// Action is an action definition. Enabled defaults to true.
type Action struct {
	Key             string `yaml:"key"`
	BaseValue       int64  `yaml:"base_value"`
	DailyCap        *int   `yaml:"daily_cap"`
	CooldownSeconds *int   `yaml:"cooldown_seconds"`
	Enabled         *bool  `yaml:"enabled"`
	Description     string `yaml:"description"`
}

// Level is a row of the level table.
type Level struct {
	Level          int                    `yaml:"level"`
	MinXP          int64                  `yaml:"min_xp"`
	Name           string                 `yaml:"name"`
	Rarity         string                 `yaml:"rarity"`
	RewardCurrency int64                  `yaml:"reward_currency"`
	RewardTitle    string                 `yaml:"reward_title"`
	RewardBadge    string                 `yaml:"reward_badge"`
	Unlocks        map[string]interface{} `yaml:"unlocks"`
}

// MissionRewards is what claiming a mission pays out.
type MissionRewards struct {
	XP       int64  `yaml:"xp"`
	Currency int64  `yaml:"currency"`
	Badge    string `yaml:"badge"`
}

// Mission is a mission definition. IsActive defaults to true and Cadence
// to none.
type Mission struct {
	ID            string         `yaml:"id"`
	Title         string         `yaml:"title"`
	Description   string         `yaml:"description"`
	ActionType    string         `yaml:"action_type"`
	RequiredCount int            `yaml:"required_count"`
	Rewards       MissionRewards `yaml:"rewards"`
	Cadence       models.Cadence `yaml:"cadence"`
	MinLevel      int            `yaml:"min_level"`
	ExpiresAt     *time.Time     `yaml:"expires_at"`
	IsActive      *bool          `yaml:"is_active"`
}

// Load reads and validates a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the catalog for internal consistency. Every problem is
// reported, not only the first.
func (c *Catalog) Validate() error {
	var errs []error
	fail := func(field, format string, args ...interface{}) {
		errs = append(errs, apperrors.Invalid(field, format, args...))
	}

	titles := make(map[string]bool, len(c.Titles))
	for i, t := range c.Titles {
		if strings.TrimSpace(t.ID) == "" {
			fail(fmt.Sprintf("titles[%d].id", i), "required")
		}
		titles[t.ID] = true
	}

	badges := make(map[string]bool, len(c.Badges))
	for i, b := range c.Badges {
		if strings.TrimSpace(b.Name) == "" {
			fail(fmt.Sprintf("badges[%d].name", i), "required")
		}
		badges[b.Name] = true
	}

	for i, r := range c.Roles {
		if strings.TrimSpace(r.Name) == "" {
			fail(fmt.Sprintf("roles[%d].name", i), "required")
		}
		if r.XPMultiplier < 0 || math.IsNaN(r.XPMultiplier) || math.IsInf(r.XPMultiplier, 0) {
			fail(fmt.Sprintf("roles[%d].xp_multiplier", i), "must be a finite non-negative number")
		}
	}

	for i, m := range c.ContextMultipliers {
		if strings.TrimSpace(m.ContextID) == "" {
			fail(fmt.Sprintf("context_multipliers[%d].context_id", i), "required")
		}
		if m.Multiplier <= 0 || math.IsNaN(m.Multiplier) || math.IsInf(m.Multiplier, 0) {
			fail(fmt.Sprintf("context_multipliers[%d].multiplier", i), "must be a finite positive number")
		}
	}

	keys := make(map[string]bool, len(c.Actions))
	for i, a := range c.Actions {
		field := fmt.Sprintf("actions[%d]", i)
		switch {
		case strings.TrimSpace(a.Key) == "":
			fail(field+".key", "required")
		case keys[a.Key]:
			fail(field+".key", "duplicate action %q", a.Key)
		}
		keys[a.Key] = true
		if a.BaseValue < 0 {
			fail(field+".base_value", "must not be negative")
		}
		if a.BaseValue > models.MaxBaseValue {
			fail(field+".base_value", "must not exceed %d", models.MaxBaseValue)
		}
		if a.DailyCap != nil && *a.DailyCap < 0 {
			fail(field+".daily_cap", "must not be negative")
		}
		if a.CooldownSeconds != nil && *a.CooldownSeconds < 0 {
			fail(field+".cooldown_seconds", "must not be negative")
		}
	}

	errs = append(errs, c.validateLevels(titles, badges)...)

	for i, m := range c.Missions {
		field := fmt.Sprintf("missions[%d]", i)
		if strings.TrimSpace(m.Title) == "" {
			fail(field+".title", "required")
		}
		if strings.TrimSpace(m.ActionType) == "" {
			fail(field+".action_type", "required")
		}
		if m.RequiredCount <= 0 {
			fail(field+".required_count", "must be positive")
		}
		switch m.Cadence {
		case "", models.CadenceNone, models.CadenceDaily, models.CadenceWeekly:
		default:
			fail(field+".cadence", "unknown cadence %q", m.Cadence)
		}
		if m.Rewards.XP < 0 || m.Rewards.Currency < 0 {
			fail(field+".rewards", "must not be negative")
		}
		if m.Rewards.Badge != "" && !badges[m.Rewards.Badge] {
			fail(field+".rewards.badge", "unknown badge %q", m.Rewards.Badge)
		}
	}

	return errors.Join(errs...)
}

func (c *Catalog) validateLevels(titles, badges map[string]bool) []error {
	if len(c.Levels) == 0 {
		return nil
	}
	var errs []error

	sorted := make([]Level, len(c.Levels))
	copy(sorted, c.Levels)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })

	if sorted[0].Level != 1 || sorted[0].MinXP != 0 {
		errs = append(errs, apperrors.Invalid("levels", "level 1 must exist with min_xp 0"))
	}
	for i, l := range sorted {
		field := fmt.Sprintf("levels[level=%d]", l.Level)
		if i > 0 {
			prev := sorted[i-1]
			if l.Level == prev.Level {
				errs = append(errs, apperrors.Invalid(field, "duplicate level"))
			} else if l.MinXP <= prev.MinXP {
				errs = append(errs, apperrors.Invalid(field+".min_xp", "must be greater than level %d (%d)", prev.Level, prev.MinXP))
			}
		}
		if strings.TrimSpace(l.Name) == "" {
			errs = append(errs, apperrors.Invalid(field+".name", "required"))
		}
		if l.RewardCurrency < 0 {
			errs = append(errs, apperrors.Invalid(field+".reward_currency", "must not be negative"))
		}
		if l.RewardTitle != "" && !titles[l.RewardTitle] {
			errs = append(errs, apperrors.Invalid(field+".reward_title", "unknown title %q", l.RewardTitle))
		}
		if l.RewardBadge != "" && !badges[l.RewardBadge] {
			errs = append(errs, apperrors.Invalid(field+".reward_badge", "unknown badge %q", l.RewardBadge))
		}
	}
	return errs
}
