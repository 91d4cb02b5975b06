// Package broadcast replays one message to every registered requester,
// pruning recipients that can no longer be reached.
package broadcast

import (
	"context"
	"errors"
	"time"

	"github.com/italolelis/restricted_saver/internal/flood"
	"github.com/italolelis/restricted_saver/internal/logctx"
	"github.com/italolelis/restricted_saver/internal/storage"
	"github.com/italolelis/restricted_saver/internal/telegram"
	"github.com/italolelis/restricted_saver/internal/telemetry"
)

// progressEvery is the recipient cadence at which in-flight progress is
// reported back to the invoker.
const progressEvery = 20

// Tally is the running and final accounting of one fan-out. The invariant
// Succeeded+Blocked+Deactivated+Failed == Attempted holds at every report.
type Tally struct {
	Total       int64
	Attempted   int
	Succeeded   int
	Blocked     int
	Deactivated int
	Failed      int
	Elapsed     time.Duration
}

// Broadcaster fans one message out to the full current recipient set. The
// operation is not restartable; every invocation starts from scratch.
type Broadcaster struct {
	store storage.CredentialStore
	guard *flood.Guard
	tel   *telemetry.Telemetry
}

func NewBroadcaster(store storage.CredentialStore, guard *flood.Guard, tel *telemetry.Telemetry) *Broadcaster {
	return &Broadcaster{store: store, guard: guard, tel: tel}
}

// Broadcast delivers via send to every known recipient. report, when non-nil,
// receives the running tally every 20 recipients and once at completion.
func (b *Broadcaster) Broadcast(
	ctx context.Context,
	send func(ctx context.Context, chatID int64) error,
	report func(ctx context.Context, t Tally),
) (Tally, error) {
	logger := logctx.LoggerFromContext(ctx)
	started := time.Now()

	users, err := b.store.ListAll()
	if err != nil {
		return Tally{}, err
	}

	tally := Tally{Total: int64(len(users))}

	for _, user := range users {
		if ctx.Err() != nil {
			break
		}

		tally.Attempted++

		outcome := b.deliverOne(ctx, send, user.ID)

		switch outcome {
		case "succeeded":
			tally.Succeeded++
		case "blocked":
			tally.Blocked++
		case "deactivated":
			tally.Deactivated++
		default:
			tally.Failed++
		}

		if b.tel != nil {
			b.tel.RecordBroadcast(ctx, outcome)
		}

		if report != nil && tally.Attempted%progressEvery == 0 {
			tally.Elapsed = time.Since(started)
			report(ctx, tally)
		}
	}

	tally.Elapsed = time.Since(started)

	if report != nil {
		report(ctx, tally)
	}

	logger.Info("broadcast completed",
		"attempted", tally.Attempted,
		"succeeded", tally.Succeeded,
		"blocked", tally.Blocked,
		"deactivated", tally.Deactivated,
		"failed", tally.Failed,
		"elapsed", tally.Elapsed.String(),
	)

	return tally, nil
}

// deliverOne sends to a single recipient and classifies the failure. On a
// rate-limit signal the delivery is retried once and the retry's outcome is
// final. Recipient-state failures prune the record.
func (b *Broadcaster) deliverOne(ctx context.Context, send func(ctx context.Context, chatID int64) error, chatID int64) string {
	logger := logctx.LoggerFromContext(ctx).With("recipient_id", chatID)

	err := b.guard.DoFinal(ctx, func(ctx context.Context) error {
		return send(ctx, chatID)
	})
	if err == nil {
		return "succeeded"
	}

	switch {
	case errors.Is(err, telegram.ErrUserBlocked):
		b.prune(ctx, chatID)

		return "blocked"
	case errors.Is(err, telegram.ErrUserDeactivated):
		b.prune(ctx, chatID)

		return "deactivated"
	case errors.Is(err, telegram.ErrPeerInvalid):
		// Unreachable peer: prune, but count as failed.
		b.prune(ctx, chatID)

		return "failed"
	default:
		logger.Warn("broadcast delivery failed", "err", err)

		return "failed"
	}
}

func (b *Broadcaster) prune(ctx context.Context, chatID int64) {
	if err := b.store.Delete(chatID); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to prune recipient", "recipient_id", chatID, "err", err)
	}
}
