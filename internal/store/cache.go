package store

import (
	"context"

	"github.com/wonny/aegis-risk/internal/scenario"
	"github.com/wonny/aegis-risk/pkg/logger"
	"github.com/wonny/aegis-risk/pkg/redis"
)

// CachedScenarioRepository reads scenarios by id through Redis and
// invalidates the entry on every write. Other queries go straight to the store.
type CachedScenarioRepository struct {
	ScenarioStore
	cache *redis.Cache
	log   *logger.Logger
}

// NewCachedScenarioRepository wraps next with a read-through cache
func NewCachedScenarioRepository(next ScenarioStore, client *redis.Client, log *logger.Logger) *CachedScenarioRepository {
	return &CachedScenarioRepository{
		ScenarioStore: next,
		cache:         redis.NewCache(client, "aegis-risk"),
		log:           log.Component("scenario_cache"),
	}
}

// FindByID serves from cache when possible
func (r *CachedScenarioRepository) FindByID(ctx context.Context, id string) (scenario.RiskScenario, error) {
	var s scenario.RiskScenario
	err := r.cache.GetOrSet(ctx, redis.ScenarioKey(id), &s, redis.TTLLong, func() (interface{}, error) {
		return r.ScenarioStore.FindByID(ctx, id)
	})
	return s, err
}

// Save writes through and drops the cached copy
func (r *CachedScenarioRepository) Save(ctx context.Context, s scenario.RiskScenario) error {
	if err := r.ScenarioStore.Save(ctx, s); err != nil {
		return err
	}
	r.invalidate(ctx, s.ID)
	return nil
}

// Delete removes the scenario and its cached copy
func (r *CachedScenarioRepository) Delete(ctx context.Context, id string) error {
	if err := r.ScenarioStore.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

func (r *CachedScenarioRepository) invalidate(ctx context.Context, id string) {
	if err := r.cache.Delete(ctx, redis.ScenarioKey(id)); err != nil {
		r.log.WithError(err).WithField("scenario_id", id).Warn("Failed to invalidate cached scenario")
	}
}
