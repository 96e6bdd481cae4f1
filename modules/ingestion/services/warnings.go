package services

import (
	"fmt"
	"sync"
)

// Warnings collects non-fatal problems of one run. Only the first limit are
// kept; the rest are counted.
type Warnings struct {
	mu      sync.Mutex
	limit   int
	items   []string
	dropped int
}

func NewWarnings(limit int) *Warnings {
	return &Warnings{limit: limit}
}

// Add is safe on a nil receiver, which discards the warning.
func (w *Warnings) Add(format string, args ...any) {
	if w == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.items) >= w.limit {
		w.dropped++
		return
	}
	w.items = append(w.items, msg)
}

// Len is the number of warnings raised, including dropped ones.
func (w *Warnings) Len() int {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items) + w.dropped
}

// List returns the kept warnings, followed by a summary line when some were dropped.
func (w *Warnings) List() []string {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	out := append([]string(nil), w.items...)
	if w.dropped > 0 {
		out = append(out, fmt.Sprintf("... and %d more", w.dropped))
	}
	return out
}
