// Package cache implements an object-storage cache with reference-counted
// handles and capacity-driven eviction: an LRU (a map plus a
// container/list recency list) over whole materialized files instead of SST
// blocks.
package cache

import (
	"container/list"
	"fmt"
	"sync"
)

// FilesystemAccessor is an opaque handle threaded through cache calls by the
// caller; the cache never interprets it, only forwards it to a materializer.
type FilesystemAccessor interface{}

// Materializer fetches fileID/path into a local filesystem path, given an
// accessor. It is the seam between the cache and real remote storage; the
// default materializer used by New treats path as already-local.
type Materializer interface {
	Materialize(fileID uint64, path string, accessor FilesystemAccessor) (localPath string, size int64, err error)
}

// LocalMaterializer treats every path as already resident on the local
// filesystem, suitable for tests and for callers that only ever compact
// local files.
type LocalMaterializer struct {
	// Stat, when set, is used to size entries for eviction accounting.
	// If nil, every entry is accounted with size 1.
	Stat func(path string) (int64, error)
}

func (m LocalMaterializer) Materialize(_ uint64, path string, _ FilesystemAccessor) (string, int64, error) {
	if m.Stat == nil {
		return path, 1, nil
	}
	size, err := m.Stat(path)
	if err != nil {
		return "", 0, err
	}
	return path, size, nil
}

// Handle is a reference-counted lease on a locally materialized file.
type Handle struct {
	owner *Cache
	entry *entry
}

// CacheFilepath returns the local path backing this handle.
func (h *Handle) CacheFilepath() string {
	return h.entry.path
}

// Unreference releases the lease. Releasing does not evict anything, so
// the returned slice is always nil.
func (h *Handle) Unreference() []string {
	return h.owner.release(h.entry)
}

type entry struct {
	fileID uint64
	path   string
	size   int64
	refs   int
	elem   *list.Element
}

// Cache is a capacity-bounded, reference-counted cache of materialized
// files, keyed by file id.
type Cache struct {
	mu           sync.Mutex
	capacity     int64
	usage        int64
	materializer Materializer
	table        map[uint64]*entry
	lru          *list.List // least-recently-unpinned-to-zero at front
}

// New returns a Cache with the given byte capacity, using m to materialize
// cache misses. A zero capacity disables eviction (unbounded cache).
func New(capacity int64, m Materializer) *Cache {
	return &Cache{
		capacity:     capacity,
		materializer: m,
		table:        make(map[uint64]*entry),
		lru:          list.New(),
	}
}

// GetCacheEntry resolves fileID to a local path, pinning it. It returns a
// Handle and the list of paths evicted to make room; callers that don't
// wire a cache at all fall back to opening path directly.
func (c *Cache) GetCacheEntry(fileID uint64, path string, accessor FilesystemAccessor) (*Handle, []string, error) {
	c.mu.Lock()
	if e, ok := c.table[fileID]; ok {
		if e.elem != nil {
			c.lru.Remove(e.elem)
			e.elem = nil
		}
		e.refs++
		c.mu.Unlock()
		return &Handle{owner: c, entry: e}, nil, nil
	}
	c.mu.Unlock()

	localPath, size, err := c.materializer.Materialize(fileID, path, accessor)
	if err != nil {
		return nil, nil, fmt.Errorf("cache: materialize file %d: %w", fileID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var evicted []string
	if c.capacity > 0 {
		for c.usage+size > c.capacity {
			victim := c.evictOneLocked()
			if victim == "" {
				break
			}
			evicted = append(evicted, victim)
		}
	}

	e := &entry{fileID: fileID, path: localPath, size: size, refs: 1}
	c.table[fileID] = e
	c.usage += size
	return &Handle{owner: c, entry: e}, evicted, nil
}

// release drops one reference on e; once refs reaches zero the entry
// becomes eligible for eviction but stays resident until capacity pressure
// reclaims it. It returns paths evicted as an immediate side effect of this
// release (there are none unless release itself triggers a shrink, which it
// does not — eviction only happens on insert).
func (c *Cache) release(e *entry) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	e.refs--
	if e.refs <= 0 && e.elem == nil {
		e.elem = c.lru.PushBack(e)
	}
	return nil
}

// evictOneLocked evicts the least-recently-released unpinned entry, if any,
// and returns its path. Caller must hold c.mu.
func (c *Cache) evictOneLocked() string {
	front := c.lru.Front()
	if front == nil {
		return ""
	}
	e := front.Value.(*entry)
	c.lru.Remove(front)
	delete(c.table, e.fileID)
	c.usage -= e.size
	return e.path
}

// Usage returns current accounted byte usage.
func (c *Cache) Usage() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}
