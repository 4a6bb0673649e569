// Package response keeps the most recent detailed command rendering and
// answers filtered queries against it.
package response

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonchun/gitguard/output"
)

// StoredCommandOutput is the single captured rendering held by a Store.
type StoredCommandOutput struct {
	ID            string
	CommandArgs   []string
	FormattedText string
	Raw           output.CommandResult
	CapturedAt    time.Time
}

// Store holds exactly one StoredCommandOutput. Put always overwrites, so
// concurrent writers race and the last one wins.
type Store struct {
	mu    sync.RWMutex
	entry *StoredCommandOutput
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{now: time.Now}
}

// Put replaces the stored value and returns a copy of what was stored.
func (s *Store) Put(commandArgs []string, formattedText string, raw output.CommandResult) StoredCommandOutput {
	entry := &StoredCommandOutput{
		ID:            uuid.NewString(),
		CommandArgs:   append([]string(nil), commandArgs...),
		FormattedText: formattedText,
		Raw:           raw,
		CapturedAt:    s.clock()(),
	}

	s.mu.Lock()
	s.entry = entry
	s.mu.Unlock()

	return cloneEntry(entry)
}

// Get returns the stored value, if any.
func (s *Store) Get() (StoredCommandOutput, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.entry == nil {
		return StoredCommandOutput{}, false
	}
	return cloneEntry(s.entry), true
}

func (s *Store) clock() func() time.Time {
	if s.now == nil {
		return time.Now
	}
	return s.now
}

func cloneEntry(e *StoredCommandOutput) StoredCommandOutput {
	out := *e
	out.CommandArgs = append([]string(nil), e.CommandArgs...)
	return out
}
