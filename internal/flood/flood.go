// Package flood applies the rate-limit retry policy to outbound calls.
package flood

import (
	"context"
	"fmt"
	"time"

	"github.com/italolelis/restricted_saver/internal/logctx"
	"github.com/italolelis/restricted_saver/internal/telegram"
	"github.com/italolelis/restricted_saver/internal/telemetry"
)

// Guard wraps outbound network calls. On a flood-wait signal it suspends the
// caller for the server-specified duration and retries the call exactly once.
// Every other failure propagates untouched.
type Guard struct {
	// Sleep is the suspension primitive, replaceable in tests. Defaults to a
	// ctx-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// Tel, when set, counts observed rate-limit suspensions.
	Tel *telemetry.Telemetry
}

func NewGuard() *Guard {
	return &Guard{Sleep: sleep}
}

// Do invokes op; on a flood wait it suspends and retries once. A second
// flood-wait signal propagates untouched so the caller can surface it.
func (g *Guard) Do(ctx context.Context, op func(ctx context.Context) error) error {
	err := op(ctx)

	fw, ok := telegram.AsFloodWait(err)
	if !ok {
		return err
	}

	if err := g.wait(ctx, fw.RetryAfter); err != nil {
		return err
	}

	return op(ctx)
}

// DoFinal is the bulk fan-out variant: on a flood wait it suspends and
// retries once, and the retry's outcome is final either way. A flood wait on
// the retry is flattened into a plain failure instead of carrying the
// rate-limit signal further, so the fan-out tally counts it as failed.
func (g *Guard) DoFinal(ctx context.Context, op func(ctx context.Context) error) error {
	err := op(ctx)

	fw, ok := telegram.AsFloodWait(err)
	if !ok {
		return err
	}

	if err := g.wait(ctx, fw.RetryAfter); err != nil {
		return err
	}

	err = op(ctx)
	if _, ok := telegram.AsFloodWait(err); ok {
		return fmt.Errorf("flood wait persisted after retry: %v", err)
	}

	return err
}

func (g *Guard) wait(ctx context.Context, d time.Duration) error {
	logctx.LoggerFromContext(ctx).Warn("rate limited, suspending", "retry_after", d.String())

	if g.Tel != nil {
		g.Tel.RecordFloodWait(ctx)
	}

	if g.Sleep != nil {
		return g.Sleep(ctx, d)
	}

	return sleep(ctx, d)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
