// Package multi fans one write out to several destinations at once, so a
// single upload pass can land a file on every storage that needs a copy.
package multi

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Mode selects how destination failures are handled.
type Mode int

const (
	// FailFast fails the write as soon as any destination fails.
	FailFast Mode = iota

	// BestEffort keeps writing to the surviving destinations and reports
	// the collected failures on Close.
	BestEffort
)

// Writer is an io.WriteCloser that duplicates everything written to it
// onto each destination writer. Destinations see writes in the same order.
type Writer struct {
	mode    Mode
	targets []io.WriteCloser
	failed  []error
	closed  bool
	mu      sync.Mutex
}

// NewWriter wraps the destination writers. At least one is required; the
// caller keeps ownership of none, Close closes them all.
func NewWriter(mode Mode, targets ...io.WriteCloser) (*Writer, error) {
	live := make([]io.WriteCloser, 0, len(targets))
	for _, t := range targets {
		if t != nil {
			live = append(live, t)
		}
	}
	if len(live) == 0 {
		return nil, errors.New("multi: at least one destination writer is required")
	}
	return &Writer{mode: mode, targets: live}, nil
}

// Write copies p to every live destination. In FailFast mode the first
// failure stops the write; in BestEffort mode the failing destination is
// dropped and the rest keep receiving data.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, io.ErrClosedPipe
	}

	live := w.targets[:0]
	for _, t := range w.targets {
		if _, err := t.Write(p); err != nil {
			if w.mode == FailFast {
				return 0, fmt.Errorf("multi: destination write: %w", err)
			}
			w.failed = append(w.failed, err)
			_ = t.Close()
			continue
		}
		live = append(live, t)
	}
	w.targets = live

	if len(w.targets) == 0 {
		return 0, fmt.Errorf("multi: every destination failed: %w", errors.Join(w.failed...))
	}
	return len(p), nil
}

// Close closes every live destination and reports the failures
// accumulated over the writer's lifetime.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	errs := w.failed
	for _, t := range w.targets {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Live returns the number of destinations still receiving writes.
func (w *Writer) Live() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.targets)
}
