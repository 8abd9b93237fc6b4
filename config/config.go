package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"

	"github.com/openclaw/go-common/cache"
	"github.com/openclaw/go-common/compress"
	"github.com/openclaw/go-common/queue"
	"github.com/openclaw/go-common/vmcache"
)

// envPrefix is the prefix of every environment override.
const envPrefix = "OPENCLAW_"

// Duration is a time.Duration that unmarshals from YAML strings like "30s",
// "5m" or "1d".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := str2duration.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// QueueConfig configures the task queue and its idempotency registry.
type QueueConfig struct {
	Workers      int      `yaml:"workers"`
	MaxRetries   int      `yaml:"max_retries"`
	PollInterval Duration `yaml:"poll_interval"`
	SeenLimit    int      `yaml:"seen_limit"`
}

// CacheConfig configures the general-purpose cache store.
type CacheConfig struct {
	DefaultTTL    Duration `yaml:"default_ttl"`
	MaxSize       int      `yaml:"max_size"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

// StatusConfig configures the machine status cache.
type StatusConfig struct {
	DefaultTTL Duration            `yaml:"default_ttl"`
	MaxSize    int                 `yaml:"max_size"`
	TTLs       map[string]Duration `yaml:"ttls,omitempty"`
}

// ScreenshotConfig configures the screenshot cache.
type ScreenshotConfig struct {
	TTL                  Duration         `yaml:"ttl"`
	MaxSize              int              `yaml:"max_size"`
	CompressionThreshold int              `yaml:"compression_threshold"`
	Quality              compress.Quality `yaml:"quality"`
}

// Config is the full configuration for the queue and cache subsystems.
type Config struct {
	Queue      QueueConfig      `yaml:"queue"`
	Cache      CacheConfig      `yaml:"cache"`
	Status     StatusConfig     `yaml:"status"`
	Screenshot ScreenshotConfig `yaml:"screenshot"`
}

// Default returns the configuration matching each package's own defaults.
func Default() Config {
	return Config{
		Queue: QueueConfig{
			Workers:      queue.DefaultWorkers,
			MaxRetries:   queue.DefaultMaxRetries,
			PollInterval: Duration(queue.DefaultPollInterval),
			SeenLimit:    queue.DefaultSeenLimit,
		},
		Cache: CacheConfig{
			DefaultTTL:    Duration(cache.DefaultTTL),
			MaxSize:       cache.DefaultMaxSize,
			SweepInterval: Duration(cache.DefaultSweepInterval),
		},
		Status: StatusConfig{
			DefaultTTL: Duration(vmcache.DefaultStatusTTL),
			MaxSize:    vmcache.DefaultStatusMaxSize,
		},
		Screenshot: ScreenshotConfig{
			TTL:                  Duration(vmcache.DefaultScreenshotTTL),
			MaxSize:              vmcache.DefaultScreenshotMaxSize,
			CompressionThreshold: vmcache.DefaultCompressionThreshold,
			Quality:              compress.QualityMedium,
		},
	}
}

// Load reads a YAML file over the defaults and then applies environment
// overrides. A missing file is not an error; the defaults still apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays OPENCLAW_* environment variables onto the config.
func (c *Config) applyEnv() error {
	overrides := []struct {
		key   string
		apply func(val string) error
	}{
		{"QUEUE_WORKERS", intVar(&c.Queue.Workers)},
		{"QUEUE_MAX_RETRIES", intVar(&c.Queue.MaxRetries)},
		{"QUEUE_POLL_INTERVAL", durationVar(&c.Queue.PollInterval)},
		{"QUEUE_SEEN_LIMIT", intVar(&c.Queue.SeenLimit)},
		{"CACHE_DEFAULT_TTL", durationVar(&c.Cache.DefaultTTL)},
		{"CACHE_MAX_SIZE", intVar(&c.Cache.MaxSize)},
		{"CACHE_SWEEP_INTERVAL", durationVar(&c.Cache.SweepInterval)},
		{"STATUS_DEFAULT_TTL", durationVar(&c.Status.DefaultTTL)},
		{"STATUS_MAX_SIZE", intVar(&c.Status.MaxSize)},
		{"SCREENSHOT_TTL", durationVar(&c.Screenshot.TTL)},
		{"SCREENSHOT_MAX_SIZE", intVar(&c.Screenshot.MaxSize)},
		{"SCREENSHOT_COMPRESSION_THRESHOLD", intVar(&c.Screenshot.CompressionThreshold)},
	}
	for _, o := range overrides {
		val, ok := os.LookupEnv(envPrefix + o.key)
		if !ok || val == "" {
			continue
		}
		if err := o.apply(val); err != nil {
			return fmt.Errorf("config: %s%s: %w", envPrefix, o.key, err)
		}
	}
	if val, ok := os.LookupEnv(envPrefix + "SCREENSHOT_QUALITY"); ok && val != "" {
		c.Screenshot.Quality = compress.Quality(val)
	}
	return nil
}

func intVar(dst *int) func(string) error {
	return func(val string) error {
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func durationVar(dst *Duration) func(string) error {
	return func(val string) error {
		d, err := str2duration.ParseDuration(val)
		if err != nil {
			return err
		}
		*dst = Duration(d)
		return nil
	}
}

// QueueOptions translates the queue section into queue options.
func (c Config) QueueOptions() []queue.Option {
	return []queue.Option{
		queue.WithWorkers(c.Queue.Workers),
		queue.WithMaxRetries(c.Queue.MaxRetries),
		queue.WithPollInterval(c.Queue.PollInterval.Std()),
	}
}

// IdempotentOptions translates the queue section into idempotent queue
// options.
func (c Config) IdempotentOptions() []queue.IdempotentOption {
	return []queue.IdempotentOption{
		queue.WithSeenLimit(c.Queue.SeenLimit),
	}
}

// CacheOptions translates the cache section into cache store options.
func (c Config) CacheOptions() []cache.Option {
	return []cache.Option{
		cache.WithDefaultTTL(c.Cache.DefaultTTL.Std()),
		cache.WithMaxSize(c.Cache.MaxSize),
		cache.WithSweepInterval(c.Cache.SweepInterval.Std()),
	}
}

// StatusOptions translates the status section into status cache options.
func (c Config) StatusOptions() []vmcache.StatusOption {
	opts := []vmcache.StatusOption{
		vmcache.WithStatusDefaultTTL(c.Status.DefaultTTL.Std()),
		vmcache.WithStatusMaxSize(c.Status.MaxSize),
	}
	if len(c.Status.TTLs) > 0 {
		ttls := make(map[string]time.Duration, len(c.Status.TTLs))
		for status, d := range c.Status.TTLs {
			ttls[status] = d.Std()
		}
		opts = append(opts, vmcache.WithStatusTTLs(ttls))
	}
	return opts
}

// ScreenshotOptions translates the screenshot section into screenshot cache
// options.
func (c Config) ScreenshotOptions() []vmcache.ScreenshotOption {
	return []vmcache.ScreenshotOption{
		vmcache.WithScreenshotTTL(c.Screenshot.TTL.Std()),
		vmcache.WithScreenshotMaxSize(c.Screenshot.MaxSize),
		vmcache.WithCompressionThreshold(c.Screenshot.CompressionThreshold),
	}
}
