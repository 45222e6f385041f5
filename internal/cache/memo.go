// Package cache provides the materialization memo: a bounded, time-limited
// record of paths observed as physically materialized. The memo is a
// performance hint only. The filesystem stays the source of truth, so every
// consumer re-verifies a remembered path against the store before acting on
// it, and absence from the memo never implies virtuality.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/blueprintfs/blueprintfs/pkg/types"
)

// MemoConfig bounds the memo.
type MemoConfig struct {
	// MaxEntries caps the number of remembered paths; the least recently
	// touched entry is evicted first. Zero means the default.
	MaxEntries int

	// TTL expires entries that have not been recorded again within the
	// window. Zero means entries never expire.
	TTL time.Duration
}

// DefaultMemoConfig returns the standard bounds.
func DefaultMemoConfig() MemoConfig {
	return MemoConfig{
		MaxEntries: 10000,
		TTL:        5 * time.Minute,
	}
}

// Memo implements types.Memo as an LRU map with per-entry expiry. Expired
// entries are dropped lazily on lookup, so the memo needs no background
// goroutine.
type Memo struct {
	mu      sync.Mutex
	config  MemoConfig
	entries map[string]*list.Element
	order   *list.List // front is most recently touched

	hits      uint64
	misses    uint64
	evictions uint64

	now func() time.Time
}

type memoEntry struct {
	path       string
	recordedAt time.Time
}

// NewMemo returns an empty memo with the given bounds.
func NewMemo(config MemoConfig) *Memo {
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultMemoConfig().MaxEntries
	}
	return &Memo{
		config:  config,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// Seen reports whether path was recorded as materialized and is still within
// its window. A hit refreshes recency but not the recording time.
func (m *Memo) Seen(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.entries[path]
	if !ok {
		m.misses++
		return false
	}
	if m.isExpired(elem.Value.(*memoEntry)) {
		m.removeElement(elem)
		m.misses++
		return false
	}
	m.order.MoveToFront(elem)
	m.hits++
	return true
}

// Record marks path as observed materialized, refreshing any existing entry.
func (m *Memo) Record(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.entries[path]; ok {
		elem.Value.(*memoEntry).recordedAt = m.now()
		m.order.MoveToFront(elem)
		return
	}
	elem := m.order.PushFront(&memoEntry{path: path, recordedAt: m.now()})
	m.entries[path] = elem
	for len(m.entries) > m.config.MaxEntries {
		m.evictOldest()
	}
}

// Forget drops the entry for path. Callers use it when the store reveals a
// remembered path is gone.
func (m *Memo) Forget(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.entries[path]; ok {
		m.removeElement(elem)
	}
}

// Len returns the number of live entries.
func (m *Memo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Stats reports hit/miss counters for monitoring.
func (m *Memo) Stats() types.MemoStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return types.MemoStats{
		Hits:      m.hits,
		Misses:    m.misses,
		Entries:   len(m.entries),
		Evictions: m.evictions,
	}
}

func (m *Memo) isExpired(entry *memoEntry) bool {
	if m.config.TTL <= 0 {
		return false
	}
	return m.now().Sub(entry.recordedAt) > m.config.TTL
}

func (m *Memo) evictOldest() {
	if elem := m.order.Back(); elem != nil {
		m.removeElement(elem)
		m.evictions++
	}
}

func (m *Memo) removeElement(elem *list.Element) {
	m.order.Remove(elem)
	delete(m.entries, elem.Value.(*memoEntry).path)
}
