// Package multiplier combines role and context multipliers into the single
// factor applied to an action's base XP.
package multiplier

import (
	"context"
	"fmt"
	"math"

	"github.com/degentalk/progression/internal/metrics"
	"github.com/degentalk/progression/internal/models"
	"github.com/degentalk/progression/internal/repository"
	"github.com/degentalk/progression/pkg/logger"
)

// Violation reasons recorded when a value is sanitized or clamped.
const (
	ViolationNonFinite      = "non_finite"
	ViolationNonPositive    = "non_positive"
	ViolationAboveMax       = "above_max"
	ViolationInvalidContext = "invalid_context"
)

// RoleSource lists a user's roles.
type RoleSource interface {
	GetRoles(ctx context.Context, userID string) ([]models.Role, error)
}

// ContextSource looks up a context multiplier.
type ContextSource interface {
	Get(ctx context.Context, contextID string) (float64, bool, error)
}

// Result is a resolved multiplier. Value is what the engine applies.
type Result struct {
	Value      float64  `json:"value"`
	Role       float64  `json:"role"`
	Context    float64  `json:"context"`
	WasCapped  bool     `json:"was_capped"`
	Violations []string `json:"violations,omitempty"`
}

// Resolver resolves multipliers for a user and optional context.
type Resolver struct {
	roles    RoleSource
	contexts ContextSource
	max      float64
	log      *logger.Logger
}

// NewResolver creates a resolver over the repositories.
func NewResolver(users *repository.UserRepository, contexts *repository.ContextMultiplierRepository, maxMultiplier float64, log *logger.Logger) *Resolver {
	return NewResolverWithInterfaces(users, contexts, maxMultiplier, log)
}

// NewResolverWithInterfaces creates a resolver with interface dependencies (useful for testing).
func NewResolverWithInterfaces(roles RoleSource, contexts ContextSource, maxMultiplier float64, log *logger.Logger) *Resolver {
	return &Resolver{
		roles:    roles,
		contexts: contexts,
		max:      maxMultiplier,
		log:      log.Component("multiplier"),
	}
}

// Resolve returns role multiplier x context multiplier after sanitizing.
// The role multiplier is the largest positive multiplier among the user's
// roles, 1 if none. A missing context multiplier counts as 1.
func (r *Resolver) Resolve(ctx context.Context, userID string, contextID *string) (Result, error) {
	roles, err := r.roles.GetRoles(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to resolve role multiplier: %w", err)
	}

	res := Result{Role: 1, Context: 1}
	best := 0.0
	for _, role := range roles {
		m := role.XPMultiplier
		if math.IsNaN(m) || math.IsInf(m, 0) {
			continue
		}
		if m > best {
			best = m
		}
	}
	if best > 0 {
		res.Role = best
	}

	if contextID != nil && *contextID != "" && r.contexts != nil {
		v, ok, err := r.contexts.Get(ctx, *contextID)
		if err != nil {
			return Result{}, fmt.Errorf("failed to resolve context multiplier: %w", err)
		}
		if ok {
			if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
				res.Violations = append(res.Violations, ViolationInvalidContext)
			} else {
				res.Context = v
			}
		}
	}

	value, violations := Sanitize(res.Role*res.Context, r.max)
	res.Value = value
	res.Violations = append(res.Violations, violations...)
	res.WasCapped = len(res.Violations) > 0

	for _, v := range res.Violations {
		metrics.RecordMultiplierCap(v)
	}
	if res.WasCapped {
		r.log.Debug().
			Str("user_id", userID).
			Float64("role", res.Role).
			Float64("context", res.Context).
			Float64("value", res.Value).
			Strs("violations", res.Violations).
			Msg("Multiplier sanitized")
	}

	return res, nil
}

// Sanitize maps non-finite and non-positive values to 1 and clamps to max.
// A non-positive max disables the ceiling.
func Sanitize(v, max float64) (float64, []string) {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return 1, []string{ViolationNonFinite}
	case v <= 0:
		return 1, []string{ViolationNonPositive}
	case max > 0 && v > max:
		return max, []string{ViolationAboveMax}
	default:
		return v, nil
	}
}

// Apply returns floor(base * multiplier), saturating at math.MaxInt64. A
// tiny epsilon absorbs binary rounding so that e.g. 100 * 1.15 yields 115.
func Apply(base int64, multiplier float64) int64 {
	v := math.Floor(float64(base)*multiplier + 1e-9)
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
