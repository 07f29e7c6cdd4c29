package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/m-mizutani/dashchat/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

const (
	DefaultTTL     = time.Hour
	DefaultMaxSize = 1000
)

// punctuation is removed from keys so that queries differing only by
// trailing marks hit the same entry.
const punctuation = "?!.,;:'\"()[]{}<>~`" + "？！。，、；：“”‘’（）【】《》～…"

type entry[V any] struct {
	value     V
	createdAt time.Time
}

type Stats struct {
	Size    int           `json:"size"`
	MaxSize int           `json:"max_size"`
	TTL     time.Duration `json:"ttl"`
}

// Cache memoizes results by normalized query. Entries expire after the TTL
// and, when full, the entry written longest ago is evicted. Reading an entry
// does not refresh it.
type Cache[V any] struct {
	mu      sync.RWMutex
	lru     *simplelru.LRU[string, entry[V]]
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	stopMu sync.Mutex
	stop   context.CancelFunc
	done   chan struct{}
}

type Option func(*options)

type options struct {
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

func WithMaxSize(n int) Option {
	return func(o *options) { o.maxSize = n }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func New[V any](opts ...Option) (*Cache[V], error) {
	o := options{ttl: DefaultTTL, maxSize: DefaultMaxSize, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ttl <= 0 {
		return nil, goerr.New("cache ttl must be positive", goerr.V("ttl", o.ttl))
	}
	if o.maxSize <= 0 {
		return nil, goerr.New("cache size must be positive", goerr.V("max_size", o.maxSize))
	}

	l, err := simplelru.NewLRU[string, entry[V]](o.maxSize, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create lru", goerr.V("max_size", o.maxSize))
	}

	return &Cache[V]{
		lru:     l,
		ttl:     o.ttl,
		maxSize: o.maxSize,
		now:     o.now,
	}, nil
}

// Key returns the normalized form of query used for lookups.
func Key(query string) string {
	stripped := strings.Map(func(r rune) rune {
		if strings.ContainsRune(punctuation, r) {
			return -1
		}
		return r
	}, strings.ToLower(query))
	return strings.Join(strings.Fields(stripped), " ")
}

func (c *Cache[V]) Get(query string) (V, bool) {
	var zero V
	key := Key(query)

	c.mu.RLock()
	ent, ok := c.lru.Peek(key)
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if !c.expired(ent) {
		return ent.value, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another writer may have refreshed the entry in between.
	if ent, ok := c.lru.Peek(key); ok {
		if !c.expired(ent) {
			return ent.value, true
		}
		c.lru.Remove(key)
	}
	return zero, false
}

func (c *Cache[V]) Set(query string, value V) {
	key := Key(query)
	c.mu.Lock()
	defer c.mu.Unlock()
	// Remove first so that overwriting counts as a fresh write.
	c.lru.Remove(key)
	c.lru.Add(key, entry[V]{value: value, createdAt: c.now()})
}

// Cleanup removes every expired entry and returns how many were removed.
func (c *Cache[V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.lru.Keys() {
		ent, ok := c.lru.Peek(key)
		if ok && c.expired(ent) {
			c.lru.Remove(key)
			removed++
		}
	}
	return removed
}

func (c *Cache[V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Size:    c.lru.Len(),
		MaxSize: c.maxSize,
		TTL:     c.ttl,
	}
}

// Start runs Cleanup every interval until Stop is called or ctx is done.
// Calling Start on a running cache is a no-op.
func (c *Cache[V]) Start(ctx context.Context, interval time.Duration) {
	c.stopMu.Lock()
	defer c.stopMu.Unlock()
	if c.stop != nil {
		return
	}
	if interval <= 0 {
		interval = c.ttl
	}

	ctx, cancel := context.WithCancel(ctx)
	c.stop = cancel
	c.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.Cleanup(); n > 0 {
					logging.From(ctx).Debug("expired cache entries removed", "count", n)
				}
			}
		}
	}(c.done)
}

// Stop halts the cleanup loop started by Start and waits for it to exit.
func (c *Cache[V]) Stop() {
	c.stopMu.Lock()
	defer c.stopMu.Unlock()
	if c.stop == nil {
		return
	}
	c.stop()
	<-c.done
	c.stop = nil
	c.done = nil
}

func (c *Cache[V]) expired(ent entry[V]) bool {
	return c.now().Sub(ent.createdAt) > c.ttl
}
