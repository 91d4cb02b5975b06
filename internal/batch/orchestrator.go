// Package batch walks a contiguous range of content locators for one
// requester, with cancellation and serialization guarantees.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/italolelis/restricted_saver/internal/flood"
	"github.com/italolelis/restricted_saver/internal/locator"
	"github.com/italolelis/restricted_saver/internal/logctx"
	"github.com/italolelis/restricted_saver/internal/pipeline"
	"github.com/italolelis/restricted_saver/internal/storage"
	"github.com/italolelis/restricted_saver/internal/telegram"
	"github.com/italolelis/restricted_saver/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrBatchRunning is returned when a requester already has an active batch.
	ErrBatchRunning = errors.New("batch: a batch is already running for this requester")

	// ErrNotLoggedIn is returned when the login system is on and the
	// requester has no stored session.
	ErrNotLoggedIn = errors.New("batch: requester has no session")

	// ErrNoOperatorSession is returned when the login system is off and no
	// shared operator identity is configured.
	ErrNoOperatorSession = errors.New("batch: no operator session configured")
)

// Run is one batch request.
type Run struct {
	RequesterID      int64
	RequesterChatID  int64
	CommandMessageID int64
	Locator          locator.Locator
}

// Result tallies a finished (or cancelled) batch.
type Result struct {
	Attempted int
	Delivered int
	Skipped   int
	Failed    int
	Cancelled bool
}

// ItemFailure is emitted on the event channel for ops alerting.
type ItemFailure struct {
	RequesterID int64
	ItemID      int64
}

// Orchestrator serializes batches per requester and drives the per-item
// pipeline across the locator range.
type Orchestrator struct {
	states  *StateTable
	store   storage.CredentialStore
	dialer  telegram.Dialer
	bot     telegram.Messenger
	pipe    *pipeline.Pipeline
	guard   *flood.Guard
	tel     *telemetry.Telemetry
	shared  telegram.Performer // operator identity; nil when login system is on
	loginOn bool
	pacing  time.Duration
	relayTo int64

	// OnItemFailed receives per-item failures. Sends never block; events are
	// dropped when no consumer keeps up.
	OnItemFailed chan ItemFailure
}

func NewOrchestrator(
	store storage.CredentialStore,
	dialer telegram.Dialer,
	bot telegram.Messenger,
	pipe *pipeline.Pipeline,
	guard *flood.Guard,
	tel *telemetry.Telemetry,
	shared telegram.Performer,
	loginOn bool,
	pacing time.Duration,
	relayTo int64,
) *Orchestrator {
	return &Orchestrator{
		states:       NewStateTable(),
		store:        store,
		dialer:       dialer,
		bot:          bot,
		pipe:         pipe,
		guard:        guard,
		tel:          tel,
		shared:       shared,
		loginOn:      loginOn,
		pacing:       pacing,
		relayTo:      relayTo,
		OnItemFailed: make(chan ItemFailure, 64),
	}
}

// Cancel requests cancellation of the requester's running batch. The item in
// flight completes; no new items start.
func (o *Orchestrator) Cancel(requesterID int64) bool {
	return o.states.RequestCancel(requesterID)
}

// State exposes the requester's batch state.
func (o *Orchestrator) State(requesterID int64) State {
	return o.states.Get(requesterID)
}

// Execute runs one batch. A second start for the same requester while one is
// running is rejected without altering the existing run's state.
func (o *Orchestrator) Execute(ctx context.Context, run Run) (Result, error) {
	ctx = logctx.With(ctx, "requester_id", run.RequesterID,
		"from_id", run.Locator.StartID, "to_id", run.Locator.EndID)
	logger := logctx.LoggerFromContext(ctx)

	ctx, span := o.tel.StartSpan(ctx, "batch.execute",
		attribute.Int64("requester_id", run.RequesterID),
		attribute.Int64("from_id", run.Locator.StartID),
		attribute.Int64("to_id", run.Locator.EndID),
	)
	defer span.End()

	if !o.states.Begin(run.RequesterID) {
		o.say(ctx, run, "One task is already processing. Wait for it to complete, or cancel it with /cancel.")

		return Result{}, ErrBatchRunning
	}

	// State returns to Idle however the loop exits.
	defer o.states.Finish(run.RequesterID)

	performer, owned, err := o.resolvePerformer(ctx, run)
	if err != nil {
		return Result{}, err
	}

	if owned {
		defer func() {
			if err := performer.Close(); err != nil {
				logger.Warn("failed to close performing identity", "err", err)
			}
		}()
	}

	if o.tel != nil {
		o.tel.BatchStarted(ctx)
		defer o.tel.BatchFinished(ctx)
	}

	logger.Info("batch started", "source_kind", run.Locator.Peer.Kind, "items", run.Locator.Count())

	result := o.iterate(ctx, run, performer)

	logger.Info("batch finished",
		"attempted", result.Attempted,
		"delivered", result.Delivered,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"cancelled", result.Cancelled,
	)

	return result, nil
}

// resolvePerformer opens the identity used to reach the source. With the
// login system on it dials a fresh connection from the requester's stored
// session; otherwise it reuses the shared operator identity.
func (o *Orchestrator) resolvePerformer(ctx context.Context, run Run) (telegram.Performer, bool, error) {
	if !o.loginOn {
		if o.shared == nil {
			o.say(ctx, run, "Operator session is not configured.")

			return nil, false, ErrNoOperatorSession
		}

		return o.shared, false, nil
	}

	session, ok, err := o.store.GetSession(run.RequesterID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read session: %w", err)
	}

	if !ok {
		o.say(ctx, run, "For downloading restricted content you have to /login first.")

		return nil, false, ErrNotLoggedIn
	}

	apiID, apiHash, _, err := o.store.GetKeyPair(run.RequesterID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read key pair: %w", err)
	}

	performer, err := o.dialer.DialSession(ctx, apiID, apiHash, session)
	if err != nil {
		o.say(ctx, run, "Your login session expired. /logout first, then login again with /login.")

		return nil, false, fmt.Errorf("%w: %v", telegram.ErrSessionExpired, err)
	}

	return performer, true, nil
}

// iterate walks item ids from start to end inclusive, in strictly increasing
// order, checking for cancellation before each item.
func (o *Orchestrator) iterate(ctx context.Context, run Run, performer telegram.Performer) Result {
	var result Result

	for itemID := run.Locator.StartID; itemID <= run.Locator.EndID; itemID++ {
		if o.states.Cancelled(run.RequesterID) || ctx.Err() != nil {
			result.Cancelled = true

			break
		}

		result.Attempted++

		outcome, stop := o.processItem(ctx, run, performer, itemID)

		switch outcome {
		case pipeline.OutcomeDelivered:
			result.Delivered++
		case pipeline.OutcomeSkipped:
			result.Skipped++
		case pipeline.OutcomeFailed:
			result.Failed++
			o.emitFailure(run.RequesterID, itemID)
		}

		if o.tel != nil {
			o.tel.RecordBatchItem(ctx, outcomeLabel(outcome))
		}

		if stop {
			break
		}

		if itemID < run.Locator.EndID {
			if err := o.pace(ctx); err != nil {
				result.Cancelled = true

				break
			}
		}
	}

	return result
}

// processItem dispatches one item. The returned stop flag aborts the
// remaining range (nonexistent public handle).
func (o *Orchestrator) processItem(ctx context.Context, run Run, performer telegram.Performer, itemID int64) (pipeline.Outcome, bool) {
	logger := logctx.LoggerFromContext(ctx).With("item_id", itemID)

	req := pipeline.Request{
		Performer:        performer,
		Peer:             run.Locator.Peer,
		ItemID:           itemID,
		RequesterChatID:  run.RequesterChatID,
		CommandMessageID: run.CommandMessageID,
	}

	if run.Locator.Peer.Kind == telegram.PeerPublic {
		// Cheap path: a public source the bot can read is relayed directly,
		// without re-encoding.
		err := o.guard.Do(ctx, func(ctx context.Context) error {
			return o.bot.CopyMessage(ctx, o.deliveryChat(run), run.Locator.Peer, itemID, run.CommandMessageID)
		})
		if err == nil {
			return pipeline.OutcomeDelivered, false
		}

		if errors.Is(err, telegram.ErrUsernameNotOccupied) {
			o.say(ctx, run, "The username is not occupied by anyone.")

			return pipeline.OutcomeFailed, true
		}

		logger.Debug("direct relay failed, falling back to transfer pipeline", "err", err)
	}

	_, outcome := o.pipe.Process(ctx, req)

	return outcome, false
}

func (o *Orchestrator) deliveryChat(run Run) int64 {
	if o.relayTo != 0 {
		return o.relayTo
	}

	return run.RequesterChatID
}

// pace waits the fixed inter-item delay, honoring cancellation.
func (o *Orchestrator) pace(ctx context.Context) error {
	if o.pacing <= 0 {
		return nil
	}

	timer := time.NewTimer(o.pacing)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (o *Orchestrator) emitFailure(requesterID, itemID int64) {
	select {
	case o.OnItemFailed <- ItemFailure{RequesterID: requesterID, ItemID: itemID}:
	default:
	}
}

func (o *Orchestrator) say(ctx context.Context, run Run, text string) {
	err := o.guard.Do(ctx, func(ctx context.Context) error {
		_, err := o.bot.SendText(ctx, run.RequesterChatID, text, nil, run.CommandMessageID)

		return err
	})
	if err != nil {
		logctx.LoggerFromContext(ctx).Debug("failed to send status to requester", "err", err)
	}
}

func outcomeLabel(outcome pipeline.Outcome) string {
	switch outcome {
	case pipeline.OutcomeDelivered:
		return "delivered"
	case pipeline.OutcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}
