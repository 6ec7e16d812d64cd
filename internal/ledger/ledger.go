// Package ledger holds the ordered history of prompts submitted to the bot.
package ledger

import (
	"errors"
	"strings"
	"sync"
)

// ErrEmptyPrompt is returned when appending an empty or whitespace-only prompt
var ErrEmptyPrompt = errors.New("ledger: prompt is empty")

// Ledger is an append-only, in-memory prompt history.
// It is safe for concurrent use.
type Ledger struct {
	mu      sync.RWMutex
	prompts []string
}

// New creates an empty ledger
func New() *Ledger {
	return &Ledger{}
}

// Append records a prompt at the end of the history.
// The prompt is stored verbatim.
func (l *Ledger) Append(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}

	l.mu.Lock()
	l.prompts = append(l.prompts, prompt)
	l.mu.Unlock()

	return nil
}

// Snapshot returns a copy of the history in insertion order.
// Later appends never show up in a returned snapshot.
func (l *Ledger) Snapshot() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, len(l.prompts))
	copy(out, l.prompts)
	return out
}

// Len returns the number of recorded prompts
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.prompts)
}
