// Package pipeline executes the per-item transfer: classify, fetch through
// the performing identity, deliver through the bot identity, clean up.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/italolelis/restricted_saver/internal/classify"
	"github.com/italolelis/restricted_saver/internal/flood"
	"github.com/italolelis/restricted_saver/internal/logctx"
	"github.com/italolelis/restricted_saver/internal/progress"
	"github.com/italolelis/restricted_saver/internal/telegram"
	"github.com/italolelis/restricted_saver/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Status is the lifecycle state of one transfer item.
type Status int

const (
	Pending Status = iota
	Fetching
	Fetched
	Delivering
	Delivered
	Failed
)

func (s Status) String() string {
	switch s {
	case Fetching:
		return "fetching"
	case Fetched:
		return "fetched"
	case Delivering:
		return "delivering"
	case Delivered:
		return "delivered"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

// Outcome is what the pipeline reports back to the orchestrator per item.
type Outcome int

const (
	OutcomeDelivered Outcome = iota
	OutcomeSkipped
	OutcomeFailed
)

// Item tracks one transfer through the pipeline. The staging path is owned
// exclusively by the pipeline instance processing it.
type Item struct {
	TransferID  string
	ItemID      int64
	Kind        classify.Kind
	StagingPath string
	ThumbPath   string
	Status      Status
}

// Request identifies one item to transfer plus the requester context it
// reports into.
type Request struct {
	Performer        telegram.Performer
	Peer             telegram.Peer
	ItemID           int64
	RequesterChatID  int64
	CommandMessageID int64
}

// Pipeline performs classify → fetch → deliver → cleanup for single items.
type Pipeline struct {
	bot     telegram.Messenger
	guard   *flood.Guard
	monitor *progress.Monitor
	tel     *telemetry.Telemetry

	stagingDir   string
	relayChatID  int64 // when set, deliveries go to the relay instead of the requester
	reportErrors bool
}

func New(
	bot telegram.Messenger,
	guard *flood.Guard,
	monitor *progress.Monitor,
	tel *telemetry.Telemetry,
	stagingDir string,
	relayChatID int64,
	reportErrors bool,
) *Pipeline {
	return &Pipeline{
		bot:          bot,
		guard:        guard,
		monitor:      monitor,
		tel:          tel,
		stagingDir:   stagingDir,
		relayChatID:  relayChatID,
		reportErrors: reportErrors,
	}
}

// destination resolves where deliveries go: the configured relay channel if
// any, otherwise the requester's own chat.
func (p *Pipeline) destination(req Request) int64 {
	if p.relayChatID != 0 {
		return p.relayChatID
	}

	return req.RequesterChatID
}

// Process transfers one item. Failures never propagate past this boundary
// except through the returned outcome; the orchestrator decides whether the
// batch continues.
func (p *Pipeline) Process(ctx context.Context, req Request) (*Item, Outcome) {
	item := &Item{
		TransferID: progress.NewTransferID(),
		ItemID:     req.ItemID,
	}

	ctx = logctx.With(ctx, "transfer_id", item.TransferID, "item_id", req.ItemID)
	logger := logctx.LoggerFromContext(ctx)

	ctx, span := p.tel.StartSpan(ctx, "pipeline.process",
		attribute.Int64("item_id", req.ItemID))
	defer span.End()

	started := time.Now()

	outcome := p.process(ctx, req, item)

	span.SetAttributes(attribute.String("kind", item.Kind.String()))

	if p.tel != nil {
		status := "delivered"

		switch outcome {
		case OutcomeSkipped:
			status = "skipped"
		case OutcomeFailed:
			status = "failed"
		}

		p.tel.RecordTransfer(ctx, item.Kind.String(), status, time.Since(started))
	}

	logger.Debug("item processed", "kind", item.Kind.String(), "status", item.Status.String())

	return item, outcome
}

func (p *Pipeline) process(ctx context.Context, req Request, item *Item) Outcome {
	logger := logctx.LoggerFromContext(ctx)

	var msg *telegram.Message

	err := p.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		msg, err = req.Performer.GetMessage(ctx, req.Peer, req.ItemID)

		return err
	})
	if err != nil {
		p.reportError(ctx, req, fmt.Errorf("failed to resolve item: %w", err))
		item.Status = Failed

		return OutcomeFailed
	}

	// An empty resolution is a silent skip, logged but never reported.
	if msg.IsEmpty() {
		logger.Warn("empty item, skipping")

		return OutcomeSkipped
	}

	item.Kind = classify.Classify(msg)
	if item.Kind == classify.Unrecognized {
		logger.Warn("unrecognized item kind, skipping")

		return OutcomeSkipped
	}

	if item.Kind == classify.Text {
		return p.deliverText(ctx, req, item, msg)
	}

	return p.transferBinary(ctx, req, item, msg)
}

// deliverText re-emits the text with its original rich-text entities. No
// staging file is involved.
func (p *Pipeline) deliverText(ctx context.Context, req Request, item *Item, msg *telegram.Message) Outcome {
	item.Status = Delivering

	err := p.guard.Do(ctx, func(ctx context.Context) error {
		_, err := p.bot.SendText(ctx, p.destination(req), msg.Text, msg.Entities, req.CommandMessageID)

		return err
	})
	if err != nil {
		p.reportError(ctx, req, fmt.Errorf("failed to deliver text: %w", err))
		item.Status = Failed

		return OutcomeFailed
	}

	item.Status = Delivered

	return OutcomeDelivered
}

func (p *Pipeline) transferBinary(ctx context.Context, req Request, item *Item, msg *telegram.Message) Outcome {
	logger := logctx.LoggerFromContext(ctx)

	statusMsg, err := p.sendStatus(ctx, req, "Downloading...")
	if err != nil {
		logger.Warn("failed to send status message", "err", err)
	}

	defer p.deleteStatus(ctx, req, statusMsg)

	// Staging and thumbnail files are removed on every exit path.
	defer p.cleanupFiles(ctx, item)

	if !p.fetch(ctx, req, item, msg, statusMsg) {
		return OutcomeFailed
	}

	p.fetchThumb(ctx, req, item, msg)

	if !p.deliver(ctx, req, item, msg, statusMsg) {
		return OutcomeFailed
	}

	item.Status = Delivered

	return OutcomeDelivered
}

// fetch downloads the payload into the staging directory while a monitor
// task reflects download progress onto the status message.
func (p *Pipeline) fetch(ctx context.Context, req Request, item *Item, msg *telegram.Message, statusMsg *telegram.Message) bool {
	item.Status = Fetching

	tracker := progress.NewTracker(item.TransferID, progress.Download)
	defer tracker.Finish()

	p.watchStatus(ctx, req, tracker, statusMsg)

	err := p.guard.Do(ctx, func(ctx context.Context) error {
		path, err := req.Performer.DownloadMedia(ctx, msg, p.stagingDir, tracker.Callback())
		if err != nil {
			return err
		}

		item.StagingPath = path

		return nil
	})
	if err != nil {
		p.reportError(ctx, req, fmt.Errorf("download error: %w", err))
		item.Status = Failed

		return false
	}

	if p.tel != nil {
		if info, err := os.Stat(item.StagingPath); err == nil {
			p.tel.RecordStagedBytes(ctx, info.Size())
		}
	}

	item.Status = Fetched

	return true
}

// fetchThumb acquires the source thumbnail when the kind carries one.
// Failure is non-fatal; the item is delivered without a thumbnail.
func (p *Pipeline) fetchThumb(ctx context.Context, req Request, item *Item, msg *telegram.Message) {
	media := classify.Media(msg, item.Kind)
	if media == nil || media.ThumbFileID == "" {
		return
	}

	path, err := req.Performer.DownloadFile(ctx, media.ThumbFileID, p.stagingDir)
	if err != nil {
		logctx.LoggerFromContext(ctx).Warn("failed to fetch thumbnail", "err", err)

		return
	}

	item.ThumbPath = path
}

// deliver uploads the staged payload with the kind-appropriate transport,
// while a second monitor task tracks the upload leg.
func (p *Pipeline) deliver(ctx context.Context, req Request, item *Item, msg *telegram.Message, statusMsg *telegram.Message) bool {
	item.Status = Delivering

	tracker := progress.NewTracker(item.TransferID, progress.Upload)
	defer tracker.Finish()

	p.watchStatus(ctx, req, tracker, statusMsg)

	up := telegram.Upload{
		Path:      item.StagingPath,
		ThumbPath: item.ThumbPath,
		Caption:   msg.Caption,
		Entities:  msg.Entities,
		ReplyTo:   req.CommandMessageID,
		Progress:  tracker.Callback(),
	}

	if item.Kind == classify.Video && msg.Video != nil {
		up.Duration = msg.Video.Duration
		up.Width = msg.Video.Width
		up.Height = msg.Video.Height
	}

	dest := p.destination(req)

	err := p.guard.Do(ctx, func(ctx context.Context) error {
		return p.send(ctx, dest, item.Kind, up)
	})
	if err != nil {
		p.reportError(ctx, req, fmt.Errorf("upload error: %w", err))
		item.Status = Failed

		return false
	}

	return true
}

func (p *Pipeline) send(ctx context.Context, chatID int64, kind classify.Kind, up telegram.Upload) error {
	var err error

	switch kind {
	case classify.Document:
		_, err = p.bot.SendDocument(ctx, chatID, up)
	case classify.Video:
		_, err = p.bot.SendVideo(ctx, chatID, up)
	case classify.Animation:
		_, err = p.bot.SendAnimation(ctx, chatID, up)
	case classify.Sticker:
		_, err = p.bot.SendSticker(ctx, chatID, up)
	case classify.Voice:
		_, err = p.bot.SendVoice(ctx, chatID, up)
	case classify.Audio:
		_, err = p.bot.SendAudio(ctx, chatID, up)
	case classify.Photo:
		_, err = p.bot.SendPhoto(ctx, chatID, up)
	default:
		err = fmt.Errorf("no transport for kind %s", kind)
	}

	return err
}

func (p *Pipeline) watchStatus(ctx context.Context, req Request, tracker *progress.Tracker, statusMsg *telegram.Message) {
	if statusMsg == nil {
		return
	}

	go p.monitor.Watch(ctx, tracker, func(ctx context.Context, text string) error {
		return p.bot.EditText(ctx, req.RequesterChatID, statusMsg.ID, text)
	})
}

func (p *Pipeline) sendStatus(ctx context.Context, req Request, text string) (*telegram.Message, error) {
	var msg *telegram.Message

	err := p.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		msg, err = p.bot.SendText(ctx, req.RequesterChatID, text, nil, req.CommandMessageID)

		return err
	})

	return msg, err
}

func (p *Pipeline) deleteStatus(ctx context.Context, req Request, statusMsg *telegram.Message) {
	if statusMsg == nil {
		return
	}

	if err := p.bot.DeleteMessages(ctx, req.RequesterChatID, statusMsg.ID); err != nil {
		logctx.LoggerFromContext(ctx).Debug("failed to delete status message", "err", err)
	}
}

// cleanupFiles removes the staging file and any thumbnail, on both success
// and failure paths.
func (p *Pipeline) cleanupFiles(ctx context.Context, item *Item) {
	logger := logctx.LoggerFromContext(ctx)

	for _, path := range []string{item.StagingPath, item.ThumbPath} {
		if path == "" {
			continue
		}

		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove staging file", "file", path, "err", err)
		}
	}

	item.StagingPath = ""
	item.ThumbPath = ""
}

// reportError surfaces a per-item failure to the requester when error
// reporting is enabled. It always lands in the requester's chat, never the
// relay.
func (p *Pipeline) reportError(ctx context.Context, req Request, err error) {
	logctx.LoggerFromContext(ctx).Error("item transfer failed", "err", err)

	if !p.reportErrors {
		return
	}

	sendErr := p.guard.Do(ctx, func(ctx context.Context) error {
		_, err := p.bot.SendText(ctx, req.RequesterChatID, fmt.Sprintf("Error: %v", err), nil, req.CommandMessageID)

		return err
	})
	if sendErr != nil {
		logctx.LoggerFromContext(ctx).Debug("failed to report error to requester", "err", sendErr)
	}
}
