package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/chatarbor/arbor/internal/profile"
	"github.com/chatarbor/arbor/store/cache"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
	metrics *Metrics

	// Cache settings
	cacheConfig cache.Config

	// Caches
	conversationCache *cache.Cache // cache for conversations keyed by id
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	cacheConfig := cache.Config{
		DefaultTTL:      profile.ConversationCacheTTL,
		CleanupInterval: 5 * time.Minute,
		MaxItems:        profile.ConversationCacheSize,
		OnEviction:      nil,
	}

	return &Store{
		driver:            driver,
		profile:           profile,
		metrics:           newMetrics(),
		cacheConfig:       cacheConfig,
		conversationCache: cache.New(cacheConfig),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

// Metrics exposes the store's Prometheus metrics for scraping.
func (s *Store) Metrics() *Metrics {
	return s.metrics
}

func (s *Store) Close() error {
	s.conversationCache.Close()
	return s.driver.Close()
}

// Migrate materializes the schema if the database has not been initialized
// yet. It is safe to call on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check database state")
	}
	if initialized {
		return nil
	}
	if err := s.driver.Migrate(ctx); err != nil {
		return errors.Wrap(err, "failed to migrate database")
	}
	return nil
}

// record times a driver call and feeds the result into the store metrics.
// All facade methods funnel their driver delegation through it.
func record[T any](s *Store, entity, op string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	s.metrics.record(entity, op, start, err)
	return v, err
}
