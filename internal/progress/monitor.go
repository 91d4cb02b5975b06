package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/restricted_saver/internal/flood"
	"github.com/italolelis/restricted_saver/internal/logctx"
)

const defaultInterval = 10 * time.Second

// Monitor periodically reflects a tracker's completion percentage onto an
// observer-visible status message.
type Monitor struct {
	guard    *flood.Guard
	interval time.Duration
}

func NewMonitor(guard *flood.Guard, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = defaultInterval
	}

	return &Monitor{guard: guard, interval: interval}
}

// Watch polls the tracker at the configured cadence and edits the status via
// edit until the tracker reaches a terminal state or ctx is cancelled. It is
// meant to run as a detached goroutine; it terminates itself by observing the
// absence of progress data, never outliving the transfer by more than one
// polling interval.
func (m *Monitor) Watch(ctx context.Context, t *Tracker, edit func(ctx context.Context, text string) error) {
	logger := logctx.LoggerFromContext(ctx).With("transfer_id", t.TransferID(), "direction", string(t.Direction()))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample, ok := t.Sample()
			if !ok {
				if t.finished.Load() {
					return
				}

				// Not started yet; keep waiting.
				continue
			}

			text := fmt.Sprintf("%s: %s%%", t.Direction().label(), humanize.FtoaWithDigits(sample.Percent(), 1))

			err := m.guard.Do(ctx, func(ctx context.Context) error {
				return edit(ctx, text)
			})
			if err != nil {
				logger.Debug("failed to edit status message", "err", err)
			}
		}
	}
}
