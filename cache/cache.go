package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/openclaw/go-common/logger"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultTTL is the default time-to-live used when Set is called with ttl <= 0.
const DefaultTTL = 5 * time.Minute

// DefaultMaxSize is the default capacity bound of a Store.
const DefaultMaxSize = 1000

// DefaultSweepInterval is the default interval of the background sweeper that
// physically removes expired entries. The sweeper only bounds memory; reads
// check TTL themselves.
const DefaultSweepInterval = 30 * time.Second

// config holds the resolved configuration for a Store.
type config struct {
	defaultTTL    time.Duration
	maxSize       int
	sweepInterval time.Duration
	log           logger.Logger
}

// Option configures a Store.
type Option func(*config)

func defaultConfig() config {
	return config{
		defaultTTL:    DefaultTTL,
		maxSize:       DefaultMaxSize,
		sweepInterval: DefaultSweepInterval,
	}
}

func applyOptions(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithDefaultTTL sets the TTL used when Set is called with ttl <= 0.
// Defaults to DefaultTTL (5 minutes).
func WithDefaultTTL(d time.Duration) Option {
	return func(c *config) { c.defaultTTL = d }
}

// WithMaxSize sets the capacity bound. Inserting into a full store evicts the
// least-recently-accessed ~10% of entries first. Defaults to DefaultMaxSize.
func WithMaxSize(n int) Option {
	return func(c *config) { c.maxSize = n }
}

// WithSweepInterval sets the interval for background expired entry cleanup.
// Defaults to DefaultSweepInterval (30 seconds).
func WithSweepInterval(d time.Duration) Option {
	return func(c *config) { c.sweepInterval = d }
}

// WithLogger sets the logger used by the background sweeper.
func WithLogger(log logger.Logger) Option {
	return func(c *config) { c.log = log }
}

// Stats is a point-in-time snapshot of store counters.
type Stats struct {
	Size       int           `json:"size"`
	MaxSize    int           `json:"max_size"`
	Hits       uint64        `json:"hits"`
	Misses     uint64        `json:"misses"`
	HitRate    float64       `json:"hit_rate"`
	DefaultTTL time.Duration `json:"default_ttl"`
}

// Factory produces a value for GetOrSet on a cache miss. It may perform I/O;
// the context is the one passed to GetOrSet.
type Factory func(ctx context.Context) (any, error)

// GetAs retrieves a typed value from the store. It performs a direct type
// assertion first and falls back to msgpack deserialization when the stored
// value is a []byte produced by a serializing writer.
func GetAs[T any](s *Store, key string) (bool, T, error) {
	val, found := s.Get(key)
	if !found {
		var zero T
		return false, zero, nil
	}
	if typed, ok := val.(T); ok {
		return true, typed, nil
	}
	if data, ok := val.([]byte); ok {
		var result T
		if err := msgpack.Unmarshal(data, &result); err != nil {
			var zero T
			return false, zero, fmt.Errorf("cache: failed to unmarshal value: %w", err)
		}
		return true, result, nil
	}
	var zero T
	return false, zero, fmt.Errorf("cache: cannot convert value of type %T to %T", val, *new(T))
}

// Fetch is a typed read-through helper over Store.GetOrSet.
func Fetch[T any](ctx context.Context, s *Store, key string, ttl time.Duration, factory func(ctx context.Context) (T, error)) (T, error) {
	val, err := s.GetOrSet(ctx, key, ttl, func(ctx context.Context) (any, error) {
		return factory(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := val.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache: cannot convert value of type %T to %T", val, zero)
	}
	return typed, nil
}
