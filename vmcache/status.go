package vmcache

import (
	"context"
	"time"

	"github.com/openclaw/go-common/cache"
	"github.com/openclaw/go-common/logger"
)

// DefaultStatusTTL is the TTL for statuses not covered by the TTL table.
const DefaultStatusTTL = 10 * time.Second

// DefaultStatusMaxSize bounds the status cache.
const DefaultStatusMaxSize = 500

// defaultStatusTTLs maps a machine status to how long its cached document
// stays fresh. Settled states change rarely and keep a long TTL; transitional
// states must be re-validated quickly.
func defaultStatusTTLs() map[string]time.Duration {
	return map[string]time.Duration{
		"running":  15 * time.Second,
		"stopped":  60 * time.Second,
		"creating": 5 * time.Second,
		"starting": 5 * time.Second,
		"stopping": 5 * time.Second,
		"error":    30 * time.Second,
		"unknown":  5 * time.Second,
	}
}

// VMStatus is the provider-reported status document for one machine.
type VMStatus struct {
	VMID   string         `json:"vm_id" msgpack:"vm_id"`
	Status string         `json:"status" msgpack:"status"`
	Detail map[string]any `json:"detail,omitempty" msgpack:"detail,omitempty"`
}

// StatusOption configures a StatusCache.
type StatusOption func(*StatusCache)

// WithStatusTTLs replaces the status→TTL table.
func WithStatusTTLs(ttls map[string]time.Duration) StatusOption {
	return func(c *StatusCache) { c.ttls = ttls }
}

// WithStatusDefaultTTL sets the TTL for statuses missing from the table.
func WithStatusDefaultTTL(d time.Duration) StatusOption {
	return func(c *StatusCache) { c.defaultTTL = d }
}

// WithStatusMaxSize sets the capacity bound of the underlying store.
func WithStatusMaxSize(n int) StatusOption {
	return func(c *StatusCache) { c.maxSize = n }
}

// WithStatusLogger sets the logger passed to the underlying store.
func WithStatusLogger(log logger.Logger) StatusOption {
	return func(c *StatusCache) { c.log = log }
}

// StatusCache caches machine status documents with a TTL picked from the
// document's own status field, so rapidly-changing states are re-validated
// sooner than stable ones.
type StatusCache struct {
	*cache.Store

	ttls       map[string]time.Duration
	defaultTTL time.Duration
	maxSize    int
	log        logger.Logger
}

// NewStatusCache returns a started StatusCache. Close it during shutdown.
func NewStatusCache(parent context.Context, opts ...StatusOption) *StatusCache {
	c := &StatusCache{
		ttls:       defaultStatusTTLs(),
		defaultTTL: DefaultStatusTTL,
		maxSize:    DefaultStatusMaxSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	storeOpts := []cache.Option{
		cache.WithDefaultTTL(c.defaultTTL),
		cache.WithMaxSize(c.maxSize),
	}
	if c.log != nil {
		storeOpts = append(storeOpts, cache.WithLogger(c.log))
	}
	c.Store = cache.New(parent, storeOpts...)
	return c
}

// TTLFor returns the TTL the table assigns to status.
func (c *StatusCache) TTLFor(status string) time.Duration {
	if ttl, ok := c.ttls[status]; ok {
		return ttl
	}
	return c.defaultTTL
}

// SetStatus caches a status document under the machine's id with the TTL the
// table assigns to the document's status.
func (c *StatusCache) SetStatus(status VMStatus) {
	c.Set(statusKey(status.VMID), status, c.TTLFor(status.Status))
}

// GetStatus returns the cached status document for vmID, if fresh.
func (c *StatusCache) GetStatus(vmID string) (VMStatus, bool) {
	val, found := c.Get(statusKey(vmID))
	if !found {
		return VMStatus{}, false
	}
	status, ok := val.(VMStatus)
	if !ok {
		return VMStatus{}, false
	}
	return status, true
}

// Invalidate drops the cached status for vmID, typically after an operation
// that is known to change the machine's state.
func (c *StatusCache) Invalidate(vmID string) bool {
	return c.Delete(statusKey(vmID))
}

func statusKey(vmID string) string {
	return "vm_status:" + vmID
}
