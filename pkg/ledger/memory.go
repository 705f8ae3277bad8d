package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryLedger is an in-process Ledger.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[Key]Entry
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		entries: make(map[Key]Entry),
	}
}

// Satisfied reports whether key has been recorded.
func (l *MemoryLedger) Satisfied(_ context.Context, key Key) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.entries[key]
	return ok, nil
}

// Mark records entry unless its key is already present.
func (l *MemoryLedger) Mark(_ context.Context, entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[entry.Key]; ok {
		return nil
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	l.entries[entry.Key] = entry
	return nil
}

// Entries lists every recorded entry, oldest first.
func (l *MemoryLedger) Entries(_ context.Context) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]Entry, 0, len(l.entries))
	for _, entry := range l.entries {
		entries = append(entries, entry)
	}
	sortEntries(entries)
	return entries, nil
}

// Close is a no-op.
func (l *MemoryLedger) Close() error {
	return nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.RecordedAt.Equal(b.RecordedAt) {
			return a.RecordedAt.Before(b.RecordedAt)
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Name < b.Name
	})
}
