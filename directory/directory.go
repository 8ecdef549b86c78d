// Package directory implements the actor directory: a name service
// mapping an Address to an opaque location string, fronted by a TTL-aware
// LRU cache, with change subscriptions and hit/miss metrics.
package directory

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"go.fergus.london/actorkit/address"
)

// Entry is the source-of-truth record for one registered address.
type Entry struct {
	Address      address.Address
	Location     string
	RegisteredAt time.Time
	LastAccessed time.Time
	TTL          time.Duration
}

// ChangeType discriminates a ChangeEvent.
type ChangeType string

const (
	Registered   ChangeType = "registered"
	Unregistered ChangeType = "unregistered"
)

// ChangeEvent is published on register/unregister.
type ChangeEvent struct {
	Type      ChangeType
	Address   address.Address
	Location  string
	Timestamp time.Time
}

type cacheEntry struct {
	entry    Entry
	cachedAt time.Time
}

// Metrics is the directory's read-side performance snapshot.
type Metrics struct {
	Hits    uint64
	Misses  uint64
	HitRate float64
	Size    int
}

// Directory is the name service. Construct with New.
type Directory struct {
	defaultTTL time.Duration

	mu      sync.RWMutex
	source  map[string]Entry
	changed []func(ChangeEvent)

	cache *lru.Cache

	hits   uint64
	misses uint64

	stopCleanup chan struct{}
	cleanupOnce sync.Once
}

// Option configures a Directory.
type Option func(*Directory)

// WithDefaultTTL sets the TTL applied to entries registered without an
// explicit one. Default 30s.
func WithDefaultTTL(d time.Duration) Option {
	return func(dir *Directory) { dir.defaultTTL = d }
}

// New constructs a Directory with the given maxCacheSize (LRU eviction
// bound) and options.
func New(maxCacheSize int, opts ...Option) *Directory {
	if maxCacheSize <= 0 {
		maxCacheSize = 1024
	}
	cache, err := lru.New(maxCacheSize)
	if err != nil {
		// Only returns an error for size <= 0, already guarded above.
		panic(err)
	}

	d := &Directory{
		defaultTTL: 30 * time.Second,
		source:     make(map[string]Entry),
		cache:      cache,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds or overwrites the entry for addr, emitting a `registered`
// change event. A zero ttl uses the directory's default.
func (d *Directory) Register(addr address.Address, location string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = d.defaultTTL
	}
	now := time.Now()
	entry := Entry{Address: addr, Location: location, RegisteredAt: now, LastAccessed: now, TTL: ttl}

	d.mu.Lock()
	d.source[addr.Path()] = entry
	d.cache.Add(addr.Path(), cacheEntry{entry: entry, cachedAt: now})
	listeners := append([]func(ChangeEvent){}, d.changed...)
	d.mu.Unlock()

	d.publish(listeners, ChangeEvent{Type: Registered, Address: addr, Location: location, Timestamp: now})
}

// Unregister removes addr's entry, emitting an `unregistered` change event.
func (d *Directory) Unregister(addr address.Address) {
	d.mu.Lock()
	delete(d.source, addr.Path())
	d.cache.Remove(addr.Path())
	listeners := append([]func(ChangeEvent){}, d.changed...)
	d.mu.Unlock()

	d.publish(listeners, ChangeEvent{Type: Unregistered, Address: addr, Timestamp: time.Now()})
}

func (d *Directory) publish(listeners []func(ChangeEvent), evt ChangeEvent) {
	for _, l := range listeners {
		l(evt)
	}
}

// Lookup returns the location for addr, consulting the TTL cache first and
// falling back to (and repopulating from) the source of truth on a miss or
// expiry.
func (d *Directory) Lookup(addr address.Address) (string, bool) {
	path := addr.Path()

	if v, ok := d.cache.Get(path); ok {
		ce := v.(cacheEntry)
		if time.Since(ce.cachedAt) <= ce.entry.TTL {
			atomic.AddUint64(&d.hits, 1)
			d.touch(path)
			return ce.entry.Location, true
		}
		d.cache.Remove(path)
	}

	atomic.AddUint64(&d.misses, 1)

	d.mu.RLock()
	entry, ok := d.source[path]
	d.mu.RUnlock()
	if !ok {
		return "", false
	}

	d.cache.Add(path, cacheEntry{entry: entry, cachedAt: time.Now()})
	d.touch(path)
	return entry.Location, true
}

func (d *Directory) touch(path string) {
	d.mu.Lock()
	if entry, ok := d.source[path]; ok {
		entry.LastAccessed = time.Now()
		d.source[path] = entry
	}
	d.mu.Unlock()
}

// ListByType returns every currently registered address of the given type.
func (d *Directory) ListByType(typ string) []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Entry
	for _, e := range d.source {
		if e.Address.Type() == typ {
			out = append(out, e)
		}
	}
	return out
}

// GetAll returns every currently registered entry.
func (d *Directory) GetAll() []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Entry, 0, len(d.source))
	for _, e := range d.source {
		out = append(out, e)
	}
	return out
}

// SubscribeToChanges registers a listener for register/unregister events.
func (d *Directory) SubscribeToChanges(listener func(ChangeEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.changed = append(d.changed, listener)
}

// Metrics returns a snapshot of cache performance.
func (d *Directory) Metrics() Metrics {
	hits := atomic.LoadUint64(&d.hits)
	misses := atomic.LoadUint64(&d.misses)
	total := hits + misses

	var rate float64
	if total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Metrics{Hits: hits, Misses: misses, HitRate: rate, Size: d.cache.Len()}
}

// StartCleanup launches a background sweep that purges expired cache
// entries every interval, returning a stop function. Source-of-truth
// entries are never swept, only the cache is, since a swept entry simply
// repopulates from source on the next Lookup.
func (d *Directory) StartCleanup(interval time.Duration) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.sweepExpired()
			case <-stop:
				return
			}
		}
	}()
	return func() {
		d.cleanupOnce.Do(func() { close(stop) })
	}
}

func (d *Directory) sweepExpired() {
	for _, key := range d.cache.Keys() {
		v, ok := d.cache.Peek(key)
		if !ok {
			continue
		}
		ce := v.(cacheEntry)
		if time.Since(ce.cachedAt) > ce.entry.TTL {
			d.cache.Remove(key)
		}
	}
}
