// Package actions owns the action configuration registry.
package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/degentalk/progression/internal/apperrors"
	"github.com/degentalk/progression/internal/cache"
	"github.com/degentalk/progression/internal/models"
	"github.com/degentalk/progression/internal/repository"
	"github.com/degentalk/progression/pkg/logger"
)

// Store persists action configuration.
type Store interface {
	List(ctx context.Context) ([]models.ActionConfig, error)
	Upsert(ctx context.Context, action *models.ActionConfig) error
}

// Publisher announces invalidations to other processes.
type Publisher interface {
	Publish(ctx context.Context, topic string) error
}

// Registry serves action configuration from an in-memory snapshot.
// Invalidate is the single entry point for dropping it.
type Registry struct {
	store     Store
	publisher Publisher
	snapshot  *cache.Snapshot[map[string]models.ActionConfig]
	log       *logger.Logger
}

// NewRegistry creates a registry backed by the action repository.
func NewRegistry(store *repository.ActionRepository, publisher Publisher, log *logger.Logger) *Registry {
	return NewRegistryWithInterfaces(store, publisher, log)
}

// NewRegistryWithInterfaces creates a registry with interface dependencies (useful for testing).
// publisher may be nil when Redis is not configured.
func NewRegistryWithInterfaces(store Store, publisher Publisher, log *logger.Logger) *Registry {
	r := &Registry{
		store:     store,
		publisher: publisher,
		log:       log.Component("actions"),
	}
	r.snapshot = cache.NewSnapshot("actions", r.load)
	return r
}

func (r *Registry) load(ctx context.Context) (map[string]models.ActionConfig, error) {
	list, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load actions: %w", err)
	}
	byKey := make(map[string]models.ActionConfig, len(list))
	for _, a := range list {
		byKey[a.ActionKey] = a
	}
	r.log.Debug().Int("count", len(byKey)).Msg("Loaded action registry")
	return byKey, nil
}

// Get returns the configuration of an action, or ErrNotFound.
func (r *Registry) Get(ctx context.Context, key string) (*models.ActionConfig, error) {
	byKey, err := r.snapshot.Get(ctx)
	if err != nil {
		return nil, err
	}
	cfg, ok := byKey[key]
	if !ok {
		return nil, apperrors.NotFound("action", key)
	}
	return &cfg, nil
}

// List returns every configured action.
func (r *Registry) List(ctx context.Context) ([]models.ActionConfig, error) {
	byKey, err := r.snapshot.Get(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.ActionConfig, 0, len(byKey))
	for _, a := range byKey {
		out = append(out, a)
	}
	return out, nil
}

// Invalidate drops the snapshot here and in every subscribed process.
// Call it after any persisted configuration change.
func (r *Registry) Invalidate(ctx context.Context) {
	gen := r.snapshot.Invalidate()
	r.log.Debug().Uint64("generation", gen).Msg("Action registry invalidated")
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, cache.TopicActions); err != nil {
		r.log.Warn().Err(err).Msg("Failed to publish action invalidation")
	}
}

// Refresh invalidates and reloads immediately.
func (r *Registry) Refresh(ctx context.Context) error {
	r.Invalidate(ctx)
	_, err := r.snapshot.Get(ctx)
	return err
}

// OnInvalidation handles invalidations received from other processes.
func (r *Registry) OnInvalidation(topic string) {
	if topic == cache.TopicActions {
		r.snapshot.Invalidate()
	}
}

// UpsertAction validates and persists an action, then invalidates.
func (r *Registry) UpsertAction(ctx context.Context, action *models.ActionConfig) error {
	action.ActionKey = strings.TrimSpace(action.ActionKey)
	if action.ActionKey == "" {
		return apperrors.Invalid("action_key", "required")
	}
	if action.BaseValue < 0 {
		return apperrors.Invalid("base_value", "must not be negative")
	}
	if action.BaseValue > models.MaxBaseValue {
		return apperrors.Invalid("base_value", "must not exceed %d", models.MaxBaseValue)
	}
	if action.DailyCap != nil && *action.DailyCap < 0 {
		return apperrors.Invalid("daily_cap", "must not be negative")
	}
	if action.CooldownSeconds != nil && *action.CooldownSeconds < 0 {
		return apperrors.Invalid("cooldown_seconds", "must not be negative")
	}

	if err := r.store.Upsert(ctx, action); err != nil {
		return err
	}
	r.Invalidate(ctx)

	r.log.Info().
		Str("action", action.ActionKey).
		Int64("base_value", action.BaseValue).
		Bool("enabled", action.Enabled).
		Msg("Action configuration updated")
	return nil
}
