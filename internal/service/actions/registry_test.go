package actions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/degentalk/progression/internal/apperrors"
	"github.com/degentalk/progression/internal/cache"
	"github.com/degentalk/progression/internal/models"
	"github.com/degentalk/progression/pkg/logger"
)

// mockStore is a shared in-memory action table.
type mockStore struct {
	mu      sync.Mutex
	actions map[string]models.ActionConfig
	lists   int
}

func newMockStore(actions ...models.ActionConfig) *mockStore {
	s := &mockStore{actions: make(map[string]models.ActionConfig)}
	for _, a := range actions {
		s.actions[a.ActionKey] = a
	}
	return s
}

func (s *mockStore) List(context.Context) ([]models.ActionConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	out := make([]models.ActionConfig, 0, len(s.actions))
	for _, a := range s.actions {
		out = append(out, a)
	}
	return out, nil
}

func (s *mockStore) Upsert(_ context.Context, a *models.ActionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[a.ActionKey] = *a
	return nil
}

func (s *mockStore) listCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists
}

type recordingPublisher struct {
	topics []string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string) error {
	p.topics = append(p.topics, topic)
	return p.err
}

func TestRegistry_GetCachesUntilInvalidated(t *testing.T) {
	store := newMockStore(models.ActionConfig{ActionKey: "post_created", BaseValue: 5, Enabled: true})
	reg := NewRegistryWithInterfaces(store, nil, logger.Nop())
	ctx := context.Background()

	cfg, err := reg.Get(ctx, "post_created")
	require.NoError(t, err)
	assert.Equal(t, int64(5), cfg.BaseValue)

	// A write that bypasses the registry is invisible until Invalidate.
	require.NoError(t, store.Upsert(ctx, &models.ActionConfig{ActionKey: "post_created", BaseValue: 9, Enabled: true}))
	cfg, err = reg.Get(ctx, "post_created")
	require.NoError(t, err)
	assert.Equal(t, int64(5), cfg.BaseValue)
	assert.Equal(t, 1, store.listCalls())

	reg.Invalidate(ctx)
	cfg, err = reg.Get(ctx, "post_created")
	require.NoError(t, err)
	assert.Equal(t, int64(9), cfg.BaseValue)
}

func TestRegistry_UnknownAction(t *testing.T) {
	reg := NewRegistryWithInterfaces(newMockStore(), nil, logger.Nop())

	_, err := reg.Get(context.Background(), "nope")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRegistry_ReturnedConfigIsACopy(t *testing.T) {
	store := newMockStore(models.ActionConfig{ActionKey: "a", BaseValue: 5, Enabled: true})
	reg := NewRegistryWithInterfaces(store, nil, logger.Nop())
	ctx := context.Background()

	cfg, err := reg.Get(ctx, "a")
	require.NoError(t, err)
	cfg.BaseValue = 1000

	again, err := reg.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(5), again.BaseValue)
}

func TestRegistry_UpsertActionPersistsAndPublishes(t *testing.T) {
	store := newMockStore()
	pub := &recordingPublisher{}
	reg := NewRegistryWithInterfaces(store, pub, logger.Nop())
	ctx := context.Background()

	require.NoError(t, reg.UpsertAction(ctx, &models.ActionConfig{ActionKey: " thread_created ", BaseValue: 10, Enabled: true}))

	cfg, err := reg.Get(ctx, "thread_created")
	require.NoError(t, err)
	assert.Equal(t, int64(10), cfg.BaseValue)
	assert.Equal(t, []string{cache.TopicActions}, pub.topics)
}

func TestRegistry_UpsertActionValidation(t *testing.T) {
	reg := NewRegistryWithInterfaces(newMockStore(), nil, logger.Nop())
	negative := -1

	tests := []struct {
		name   string
		action models.ActionConfig
		field  string
	}{
		{"empty key", models.ActionConfig{ActionKey: "  "}, "action_key"},
		{"negative base", models.ActionConfig{ActionKey: "a", BaseValue: -5}, "base_value"},
		{"base too large", models.ActionConfig{ActionKey: "a", BaseValue: models.MaxBaseValue + 1}, "base_value"},
		{"negative cap", models.ActionConfig{ActionKey: "a", DailyCap: &negative}, "daily_cap"},
		{"negative cooldown", models.ActionConfig{ActionKey: "a", CooldownSeconds: &negative}, "cooldown_seconds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action := tt.action
			err := reg.UpsertAction(context.Background(), &action)
			var ve *apperrors.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestRegistry_PublishFailureDoesNotFailUpsert(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("redis down")}
	reg := NewRegistryWithInterfaces(newMockStore(), pub, logger.Nop())

	err := reg.UpsertAction(context.Background(), &models.ActionConfig{ActionKey: "a", BaseValue: 1, Enabled: true})
	assert.NoError(t, err)
}

func TestRegistry_InvalidationAcrossProcesses(t *testing.T) {
	mr := miniredis.RunT(t)
	store := newMockStore(models.ActionConfig{ActionKey: "post_created", BaseValue: 5, Enabled: true})

	newInstance := func() (*Registry, *cache.RedisCache) {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		c := cache.NewRedisCacheWithClient(client, "test:invalidate", logger.Nop())
		return NewRegistryWithInterfaces(store, c, logger.Nop()), c
	}
	regA, _ := newInstance()
	regB, cacheB := newInstance()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, cacheB.Subscribe(ctx, regB.OnInvalidation))

	cfg, err := regB.Get(ctx, "post_created")
	require.NoError(t, err)
	require.Equal(t, int64(5), cfg.BaseValue)

	require.NoError(t, regA.UpsertAction(ctx, &models.ActionConfig{ActionKey: "post_created", BaseValue: 7, Enabled: true}))

	assert.Eventually(t, func() bool {
		cfg, err := regB.Get(ctx, "post_created")
		return err == nil && cfg.BaseValue == 7
	}, 2*time.Second, 10*time.Millisecond)
}
