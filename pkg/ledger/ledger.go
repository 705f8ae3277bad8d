package ledger

import (
	"context"
	"time"
)

// CategoryRequirement is the category under which built projects are recorded.
const CategoryRequirement = "requirement"

// Key identifies a ledger entry.
type Key struct {
	Category string `json:"category"`
	Name     string `json:"name"`
}

// Requirement returns the key recording that project name has been built.
func Requirement(name string) Key {
	return Key{Category: CategoryRequirement, Name: name}
}

// String renders the key as category/name.
func (k Key) String() string {
	return k.Category + "/" + k.Name
}

// Entry is a satisfied key together with the run that recorded it.
type Entry struct {
	Key
	RunID      string    `json:"run_id,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Ledger is a persistent record of satisfied keys.
type Ledger interface {
	// Satisfied reports whether key has been recorded.
	Satisfied(ctx context.Context, key Key) (bool, error)

	// Mark records entry. Marking an already recorded key is a no-op and keeps
	// the original entry.
	Mark(ctx context.Context, entry Entry) error

	// Entries lists every recorded entry, oldest first.
	Entries(ctx context.Context) ([]Entry, error)

	// Close releases the ledger's resources.
	Close() error
}
