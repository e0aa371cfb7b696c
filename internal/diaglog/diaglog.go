// Package diaglog keeps a bounded in-memory log of recent request failures
// for diagnostics. Entries age out through an LRU cache instead of growing
// without limit.
package diaglog

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Entry is one recorded failure.
type Entry struct {
	Time    time.Time
	Name    string
	Message string
	URL     string
}

// Buffer is a fixed-capacity failure log. A nil Buffer discards entries.
type Buffer struct {
	mu    sync.Mutex
	cache *lru.Cache[uint64, Entry]
	seq   uint64
}

// New creates a Buffer holding at most size entries.
func New(size int) (*Buffer, error) {
	cache, err := lru.New[uint64, Entry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	return &Buffer{cache: cache}, nil
}

// Add records an entry, evicting the oldest one when the buffer is full.
func (b *Buffer) Add(e Entry) {
	if b == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.Lock()
	b.seq++
	b.cache.Add(b.seq, e)
	b.mu.Unlock()
}

// Entries returns the recorded failures, oldest first.
func (b *Buffer) Entries() []Entry {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	keys := b.cache.Keys()
	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		if e, ok := b.cache.Peek(k); ok {
			entries = append(entries, e)
		}
	}
	return entries
}

// Clear drops all recorded entries.
func (b *Buffer) Clear() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.cache.Purge()
	b.mu.Unlock()
}

// Len returns the number of recorded entries.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cache.Len()
}
