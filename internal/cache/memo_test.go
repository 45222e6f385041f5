package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestMemoSeenAndRecord(t *testing.T) {
	t.Parallel()

	m := NewMemo(DefaultMemoConfig())

	if m.Seen("projects/alpha/finance") {
		t.Errorf("Seen() on empty memo = true")
	}
	m.Record("projects/alpha/finance")
	if !m.Seen("projects/alpha/finance") {
		t.Errorf("Seen() after Record = false")
	}

	stats := m.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Stats() = %+v, want 1 hit and 1 miss", stats)
	}
	if stats.Entries != 1 {
		t.Errorf("Stats().Entries = %d, want 1", stats.Entries)
	}
}

func TestMemoForget(t *testing.T) {
	t.Parallel()

	m := NewMemo(DefaultMemoConfig())
	m.Record("projects/alpha/finance")
	m.Forget("projects/alpha/finance")

	if m.Seen("projects/alpha/finance") {
		t.Errorf("Seen() after Forget = true")
	}
	// Forgetting an absent path is harmless.
	m.Forget("projects/alpha/missing")
}

func TestMemoEviction(t *testing.T) {
	t.Parallel()

	m := NewMemo(MemoConfig{MaxEntries: 3})
	for i := 0; i < 3; i++ {
		m.Record(fmt.Sprintf("path-%d", i))
	}
	// Touch path-0 so path-1 becomes the eviction candidate.
	if !m.Seen("path-0") {
		t.Fatalf("Seen(path-0) = false")
	}
	m.Record("path-3")

	if m.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", m.Len())
	}
	if m.Seen("path-1") {
		t.Errorf("least recently used entry survived eviction")
	}
	if !m.Seen("path-0") || !m.Seen("path-3") {
		t.Errorf("recently used entries were evicted")
	}
	if got := m.Stats().Evictions; got != 1 {
		t.Errorf("Stats().Evictions = %d, want 1", got)
	}
}

func TestMemoExpiry(t *testing.T) {
	t.Parallel()

	m := NewMemo(MemoConfig{MaxEntries: 10, TTL: time.Minute})
	current := time.Unix(1000, 0)
	m.now = func() time.Time { return current }

	m.Record("projects/alpha/finance")
	if !m.Seen("projects/alpha/finance") {
		t.Fatalf("Seen() within TTL = false")
	}

	current = current.Add(2 * time.Minute)
	if m.Seen("projects/alpha/finance") {
		t.Errorf("Seen() after TTL = true")
	}
	if m.Len() != 0 {
		t.Errorf("expired entry still resident, Len() = %d", m.Len())
	}

	// Recording again restarts the window.
	m.Record("projects/alpha/finance")
	current = current.Add(30 * time.Second)
	if !m.Seen("projects/alpha/finance") {
		t.Errorf("Seen() after re-record = false")
	}
}

func TestMemoZeroTTLNeverExpires(t *testing.T) {
	t.Parallel()

	m := NewMemo(MemoConfig{MaxEntries: 10})
	current := time.Unix(1000, 0)
	m.now = func() time.Time { return current }

	m.Record("projects/alpha")
	current = current.Add(24 * time.Hour)
	if !m.Seen("projects/alpha") {
		t.Errorf("Seen() with zero TTL expired")
	}
}

func TestMemoConcurrentAccess(t *testing.T) {
	t.Parallel()

	m := NewMemo(MemoConfig{MaxEntries: 64})
	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 200; i++ {
				path := fmt.Sprintf("path-%d", (g+i)%100)
				m.Record(path)
				m.Seen(path)
				if i%10 == 0 {
					m.Forget(path)
				}
			}
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}
	if m.Len() > 64 {
		t.Errorf("Len() = %d exceeds the configured bound", m.Len())
	}
}
