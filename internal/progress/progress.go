// Package progress tracks byte counters for in-flight transfers and reflects
// percentage completion onto a status message.
package progress

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Direction tells which leg of a transfer a sample belongs to.
type Direction string

const (
	Download Direction = "down"
	Upload   Direction = "up"
)

func (d Direction) label() string {
	if d == Upload {
		return "Uploaded"
	}

	return "Downloaded"
}

// Sample is a point-in-time view of a transfer's byte counters.
type Sample struct {
	Done  int64
	Total int64
}

// Percent returns completion as 0-100. Unknown totals report 0.
func (s Sample) Percent() float64 {
	if s.Total <= 0 {
		return 0
	}

	return float64(s.Done) * 100 / float64(s.Total)
}

// Tracker holds the live byte counters for one transfer leg. Updates are
// last-write-wins; the sample is discarded once the leg reaches a terminal
// state via Finish.
type Tracker struct {
	transferID string
	direction  Direction

	done     atomic.Int64
	total    atomic.Int64
	started  atomic.Bool
	finished atomic.Bool
}

// NewTracker creates a tracker for one leg of the given transfer.
func NewTracker(transferID string, direction Direction) *Tracker {
	return &Tracker{transferID: transferID, direction: direction}
}

// NewTransferID mints an identifier keying a transfer's staging artifacts.
func NewTransferID() string {
	return uuid.NewString()
}

func (t *Tracker) TransferID() string {
	return t.transferID
}

func (t *Tracker) Direction() Direction {
	return t.direction
}

// Update records the latest byte counters.
func (t *Tracker) Update(done, total int64) {
	t.done.Store(done)
	t.total.Store(total)
	t.started.Store(true)
}

// Callback adapts the tracker to the transport's progress hook signature.
func (t *Tracker) Callback() func(done, total int64) {
	return t.Update
}

// Finish marks the leg terminal. Watchers observe this and stop within one
// polling interval.
func (t *Tracker) Finish() {
	t.finished.Store(true)
}

// Sample returns the current counters. ok is false before the first update
// and after Finish.
func (t *Tracker) Sample() (Sample, bool) {
	if t.finished.Load() || !t.started.Load() {
		return Sample{}, false
	}

	return Sample{Done: t.done.Load(), Total: t.total.Load()}, true
}
