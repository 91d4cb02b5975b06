// Package bot dispatches incoming updates to commands and the transfer
// orchestration core. It is thin glue: parsing, bookkeeping, and replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/italolelis/restricted_saver/internal/batch"
	"github.com/italolelis/restricted_saver/internal/broadcast"
	"github.com/italolelis/restricted_saver/internal/flood"
	"github.com/italolelis/restricted_saver/internal/locator"
	"github.com/italolelis/restricted_saver/internal/logctx"
	"github.com/italolelis/restricted_saver/internal/session"
	"github.com/italolelis/restricted_saver/internal/storage"
	"github.com/italolelis/restricted_saver/internal/telegram"
)

const helpText = `Help

FOR PRIVATE CHATS
First send the invite link of the chat (not needed if the performing account is already a member), then send the post link.

FOR BOT CHATS
Send the link with '/b/', the bot's username and the message id:
https://t.me/b/botusername/4321

MULTI POSTS
Send the post link with a "from - to" range to save multiple messages:
https://t.me/xxxx/1001-1010
https://t.me/c/xxxx/101 - 120

Whitespace around the range separator doesn't matter.`

const startText = `Hi %s,

I am a save-restricted-content bot. I can send you restricted content by its post link.

For downloading restricted content /login first.

Learn how to use the bot with /help`

// Handler wires commands to the orchestration core.
type Handler struct {
	bot    telegram.Messenger
	store  storage.CredentialStore
	broker *session.Broker
	orch   *batch.Orchestrator
	bcast  *broadcast.Broadcaster
	guard  *flood.Guard
	hub    *promptHub

	shared  telegram.Performer // operator identity; nil when login system is on
	loginOn bool
	admins  map[int64]struct{}
}

func NewHandler(
	messenger telegram.Messenger,
	store storage.CredentialStore,
	broker *session.Broker,
	orch *batch.Orchestrator,
	bcast *broadcast.Broadcaster,
	guard *flood.Guard,
	shared telegram.Performer,
	loginOn bool,
	adminIDs []int64,
) *Handler {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}

	return &Handler{
		bot:     messenger,
		store:   store,
		broker:  broker,
		orch:    orch,
		bcast:   bcast,
		guard:   guard,
		hub:     newPromptHub(),
		shared:  shared,
		loginOn: loginOn,
		admins:  admins,
	}
}

// HandleUpdate processes one update. Independent requesters may be handled
// concurrently; the orchestration core enforces per-requester serialization.
func (h *Handler) HandleUpdate(ctx context.Context, upd telegram.Update) {
	if upd.Message == nil {
		return
	}

	requesterID := upd.Message.SenderID
	ctx = logctx.With(ctx, "requester_id", requesterID)
	logger := logctx.LoggerFromContext(ctx)

	h.registerUser(ctx, requesterID, upd.SenderName)

	text := strings.TrimSpace(upd.Message.Text)

	// An interactive flow waiting on this requester consumes the message,
	// unless it is a command other than the flow's own tokens.
	if !strings.HasPrefix(text, "/") || text == "/cancel" || text == "/skip" {
		if h.hub.deliver(requesterID, text) {
			return
		}
	}

	switch command(text) {
	case "/start":
		h.reply(ctx, upd, fmt.Sprintf(startText, upd.SenderName))
	case "/help":
		h.reply(ctx, upd, helpText)
	case "/cancel":
		h.handleCancel(ctx, upd)
	case "/login":
		h.handleLogin(ctx, upd)
	case "/logout":
		h.handleLogout(ctx, upd)
	case "/broadcast":
		h.handleBroadcast(ctx, upd)
	case "/stats":
		h.handleStats(ctx, upd)
	default:
		switch {
		case locator.IsJoinLink(text):
			h.handleJoinLink(ctx, upd, text)
		case locator.IsLink(text):
			h.handleBatchLink(ctx, upd, text)
		default:
			logger.Debug("ignoring message", "text_len", len(text))
		}
	}
}

func (h *Handler) registerUser(ctx context.Context, requesterID int64, name string) {
	logger := logctx.LoggerFromContext(ctx)

	exists, err := h.store.Exists(requesterID)
	if err != nil {
		logger.Error("failed to check user existence", "err", err)

		return
	}

	if !exists {
		if err := h.store.AddUser(requesterID, name); err != nil {
			logger.Error("failed to register user", "err", err)
		}

		return
	}

	if err := h.store.TouchActivity(requesterID); err != nil {
		logger.Error("failed to touch user activity", "err", err)
	}
}

func (h *Handler) handleCancel(ctx context.Context, upd telegram.Update) {
	if h.orch.Cancel(upd.Message.SenderID) {
		h.reply(ctx, upd, "Batch successfully cancelled.")

		return
	}

	h.reply(ctx, upd, "No batch is running.")
}

func (h *Handler) handleLogin(ctx context.Context, upd telegram.Update) {
	// One interactive flow per requester; a second /login would steal the
	// first dialogue's replies.
	if !h.hub.begin(upd.Message.SenderID) {
		h.reply(ctx, upd, "A login flow is already in progress. Send /cancel to abort it.")

		return
	}
	defer h.hub.end(upd.Message.SenderID)

	prompter := &chatPrompter{
		bot:         h.bot,
		guard:       h.guard,
		hub:         h.hub,
		requesterID: upd.Message.SenderID,
		chatID:      upd.Message.ChatID,
	}

	if err := h.broker.Login(ctx, upd.Message.SenderID, prompter); err != nil {
		logctx.LoggerFromContext(ctx).Info("login flow ended", "err", err)
	}
}

func (h *Handler) handleLogout(ctx context.Context, upd telegram.Update) {
	err := h.broker.Logout(ctx, upd.Message.SenderID)

	switch {
	case errors.Is(err, session.ErrNotLoggedIn):
		h.reply(ctx, upd, "You are not logged in.")
	case err != nil:
		h.reply(ctx, upd, "Error during logout. Please try again.")
	default:
		h.reply(ctx, upd, "Logged out successfully.")
	}
}

func (h *Handler) handleBroadcast(ctx context.Context, upd telegram.Update) {
	if !h.isAdmin(upd.Message.SenderID) {
		h.reply(ctx, upd, "You are not authorized to use this command.")

		return
	}

	if upd.ReplyTo == nil {
		h.reply(ctx, upd, "Reply to the message you want to broadcast.")

		return
	}

	status, err := h.bot.SendText(ctx, upd.Message.ChatID, "Broadcasting your message...", nil, upd.Message.ID)
	if err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to send broadcast status", "err", err)
	}

	source := upd.ReplyTo

	report := func(ctx context.Context, t broadcast.Tally) {
		if status == nil {
			return
		}

		text := fmt.Sprintf(
			"Broadcast progress:\n\nTotal users: %d\nCompleted: %d / %d\nSuccess: %d\nBlocked: %d\nDeactivated: %d\nFailed: %d",
			t.Total, t.Attempted, t.Total, t.Succeeded, t.Blocked, t.Deactivated, t.Failed,
		)

		if err := h.bot.EditText(ctx, upd.Message.ChatID, status.ID, text); err != nil {
			logctx.LoggerFromContext(ctx).Debug("failed to edit broadcast status", "err", err)
		}
	}

	tally, err := h.bcast.Broadcast(ctx, func(ctx context.Context, chatID int64) error {
		return h.bot.CopyTo(ctx, source.ChatID, source.ID, chatID)
	}, report)
	if err != nil {
		h.reply(ctx, upd, fmt.Sprintf("Broadcast error: %v", err))

		return
	}

	if status != nil {
		final := fmt.Sprintf(
			"Broadcast completed in %s.\n\nTotal users: %d\nCompleted: %d / %d\nSuccess: %d\nBlocked: %d\nDeactivated: %d\nFailed: %d",
			tally.Elapsed.Round(1e9), tally.Total, tally.Attempted, tally.Total,
			tally.Succeeded, tally.Blocked, tally.Deactivated, tally.Failed,
		)

		if err := h.bot.EditText(ctx, upd.Message.ChatID, status.ID, final); err != nil {
			logctx.LoggerFromContext(ctx).Debug("failed to edit broadcast status", "err", err)
		}
	}
}

func (h *Handler) handleStats(ctx context.Context, upd telegram.Update) {
	if !h.isAdmin(upd.Message.SenderID) {
		return
	}

	count, err := h.store.CountUsers()
	if err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to count users", "err", err)

		return
	}

	h.reply(ctx, upd, fmt.Sprintf("Bot statistics\n\nTotal users: %d", count))
}

// handleJoinLink joins a private chat through the shared operator identity so
// later batches can reach it. Only meaningful when the login system is off.
func (h *Handler) handleJoinLink(ctx context.Context, upd telegram.Update, link string) {
	if h.loginOn || h.shared == nil {
		h.reply(ctx, upd, "Operator session is not set.")

		return
	}

	err := h.guard.Do(ctx, func(ctx context.Context) error {
		return h.shared.JoinChat(ctx, link)
	})

	switch {
	case err == nil:
		h.reply(ctx, upd, "Chat joined.")
	case errors.Is(err, telegram.ErrAlreadyParticipant):
		h.reply(ctx, upd, "Chat already joined.")
	case errors.Is(err, telegram.ErrInviteExpired):
		h.reply(ctx, upd, "Invalid link.")
	default:
		h.reply(ctx, upd, fmt.Sprintf("Error: %v", err))
	}
}

func (h *Handler) handleBatchLink(ctx context.Context, upd telegram.Update, text string) {
	loc, err := locator.Parse(text)
	if err != nil {
		// Input errors are reported before any network call.
		h.reply(ctx, upd, "Invalid link format.")

		return
	}

	run := batch.Run{
		RequesterID:      upd.Message.SenderID,
		RequesterChatID:  upd.Message.ChatID,
		CommandMessageID: upd.Message.ID,
		Locator:          loc,
	}

	if _, err := h.orch.Execute(ctx, run); err != nil {
		logctx.LoggerFromContext(ctx).Info("batch ended with error", "err", err)
	}
}

func (h *Handler) isAdmin(id int64) bool {
	_, ok := h.admins[id]

	return ok
}

func (h *Handler) reply(ctx context.Context, upd telegram.Update, text string) {
	err := h.guard.Do(ctx, func(ctx context.Context) error {
		_, err := h.bot.SendText(ctx, upd.Message.ChatID, text, nil, upd.Message.ID)

		return err
	})
	if err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to reply", "err", err)
	}
}

func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}

	return fields[0]
}
