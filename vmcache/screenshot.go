package vmcache

import (
	"context"
	"math"
	"time"

	"github.com/openclaw/go-common/cache"
	"github.com/openclaw/go-common/compress"
	"github.com/openclaw/go-common/logger"
)

// DefaultScreenshotTTL keeps screenshots fresh enough for live views.
const DefaultScreenshotTTL = 3 * time.Second

// DefaultScreenshotMaxSize bounds the screenshot cache.
const DefaultScreenshotMaxSize = 200

// DefaultCompressionThreshold is the payload size, in bytes, at or above
// which screenshots are re-encoded before caching.
const DefaultCompressionThreshold = 100 * 1024

// Screenshot is a cached screenshot, possibly re-encoded to a smaller JPEG.
type Screenshot struct {
	VMID         string           `json:"vm_id" msgpack:"vm_id"`
	Data         []byte           `json:"data" msgpack:"data"`
	Quality      compress.Quality `json:"quality" msgpack:"quality"`
	OriginalSize int              `json:"original_size" msgpack:"original_size"`
	StoredSize   int              `json:"stored_size" msgpack:"stored_size"`
}

// ScreenshotStats extends the store counters with compression totals.
type ScreenshotStats struct {
	cache.Stats
	OriginalBytes    int     `json:"original_bytes"`
	StoredBytes      int     `json:"stored_bytes"`
	BytesSaved       int     `json:"bytes_saved"`
	CompressionRatio float64 `json:"compression_ratio"`
}

// ScreenshotOption configures a ScreenshotCache.
type ScreenshotOption func(*ScreenshotCache)

// WithScreenshotTTL sets the TTL applied to cached screenshots.
func WithScreenshotTTL(d time.Duration) ScreenshotOption {
	return func(c *ScreenshotCache) { c.ttl = d }
}

// WithScreenshotMaxSize sets the capacity bound of the underlying store.
func WithScreenshotMaxSize(n int) ScreenshotOption {
	return func(c *ScreenshotCache) { c.maxSize = n }
}

// WithCompressionThreshold sets the size at or above which screenshots are
// re-encoded. A threshold <= 0 disables compression.
func WithCompressionThreshold(n int) ScreenshotOption {
	return func(c *ScreenshotCache) { c.threshold = n }
}

// WithScreenshotLogger sets the logger used for compression diagnostics and
// the underlying store.
func WithScreenshotLogger(log logger.Logger) ScreenshotOption {
	return func(c *ScreenshotCache) { c.log = log }
}

// ScreenshotCache caches machine screenshots with a short TTL, re-encoding
// large payloads to a smaller JPEG before storing them. Compression is best
// effort: if re-encoding fails or does not shrink the payload, the original
// bytes are cached unchanged.
type ScreenshotCache struct {
	*cache.Store

	ttl       time.Duration
	maxSize   int
	threshold int
	log       logger.Logger
}

// NewScreenshotCache returns a started ScreenshotCache. Close it during
// shutdown.
func NewScreenshotCache(parent context.Context, opts ...ScreenshotOption) *ScreenshotCache {
	c := &ScreenshotCache{
		ttl:       DefaultScreenshotTTL,
		maxSize:   DefaultScreenshotMaxSize,
		threshold: DefaultCompressionThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	storeOpts := []cache.Option{
		cache.WithDefaultTTL(c.ttl),
		cache.WithMaxSize(c.maxSize),
	}
	if c.log != nil {
		storeOpts = append(storeOpts, cache.WithLogger(c.log))
	}
	c.Store = cache.New(parent, storeOpts...)
	return c
}

// Put caches a screenshot for vmID, re-encoding it at the given quality if it
// meets the compression threshold. It returns the stored screenshot, whose
// Data holds the bytes subsequent reads will see.
func (c *ScreenshotCache) Put(vmID string, data []byte, quality compress.Quality) Screenshot {
	shot := Screenshot{
		VMID:         vmID,
		Data:         data,
		Quality:      quality,
		OriginalSize: len(data),
		StoredSize:   len(data),
	}
	if c.threshold > 0 && len(data) >= c.threshold {
		out, err := compress.ReencodeImage(data, quality)
		switch {
		case err != nil:
			if c.log != nil {
				c.log.Warn("screenshot re-encode failed for %s, caching original: %v", vmID, err)
			}
		case len(out) < len(data):
			shot.Data = out
			shot.StoredSize = len(out)
		}
	}
	c.Set(screenshotKey(vmID), shot, c.ttl)
	return shot
}

// GetScreenshot returns the cached screenshot for vmID, if fresh.
func (c *ScreenshotCache) GetScreenshot(vmID string) (Screenshot, bool) {
	val, found := c.Get(screenshotKey(vmID))
	if !found {
		return Screenshot{}, false
	}
	shot, ok := val.(Screenshot)
	if !ok {
		return Screenshot{}, false
	}
	return shot, true
}

// Invalidate drops the cached screenshot for vmID.
func (c *ScreenshotCache) Invalidate(vmID string) bool {
	return c.Delete(screenshotKey(vmID))
}

// ScreenshotStats aggregates compression totals over the live entries on top
// of the store counters. The ratio is the percentage of original bytes saved,
// rounded to two decimal places.
func (c *ScreenshotCache) ScreenshotStats() ScreenshotStats {
	stats := ScreenshotStats{Stats: c.Stats()}
	c.Range(func(_ string, value any) bool {
		if shot, ok := value.(Screenshot); ok {
			stats.OriginalBytes += shot.OriginalSize
			stats.StoredBytes += shot.StoredSize
		}
		return true
	})
	stats.BytesSaved = stats.OriginalBytes - stats.StoredBytes
	if stats.OriginalBytes > 0 {
		ratio := (1 - float64(stats.StoredBytes)/float64(stats.OriginalBytes)) * 100
		stats.CompressionRatio = math.Round(ratio*100) / 100
	}
	return stats
}

func screenshotKey(vmID string) string {
	return "vm_screenshot:" + vmID
}
