// Package session runs the interactive authentication dialogue that mints a
// reusable session credential for a requester-controlled identity.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/italolelis/restricted_saver/internal/logctx"
	"github.com/italolelis/restricted_saver/internal/storage"
	"github.com/italolelis/restricted_saver/internal/telegram"
	"github.com/italolelis/restricted_saver/internal/telemetry"
)

const (
	cancelToken = "/cancel"
	skipToken   = "/skip"
)

var (
	// ErrCancelled is returned when the requester aborts the flow.
	ErrCancelled = errors.New("session: login cancelled")

	// ErrAlreadyLoggedIn is returned when a session credential already exists.
	ErrAlreadyLoggedIn = errors.New("session: already logged in")

	// ErrNotLoggedIn is returned by Logout when no credential is stored.
	ErrNotLoggedIn = errors.New("session: not logged in")

	// ErrInvalidInput is returned for malformed requester input; the flow
	// must be restarted from the beginning.
	ErrInvalidInput = errors.New("session: invalid input")

	// ErrAuthFailed is returned when the transport rejects the credentials.
	ErrAuthFailed = errors.New("session: authentication failed")

	// ErrShortSession is returned when the exported credential fails the
	// minimum-length sanity check. Nothing is persisted.
	ErrShortSession = errors.New("session: exported credential too short")
)

// Broker drives the login state machine. Each prompt waits on one requester
// reply with a bounded timeout; any reply equal to the cancel token aborts
// the flow and releases the in-progress network handle.
type Broker struct {
	store  storage.CredentialStore
	dialer telegram.Dialer
	tel    *telemetry.Telemetry

	defaultAPIID   int
	defaultAPIHash string

	minSessionLen int
	promptTimeout time.Duration
	codeTimeout   time.Duration
}

func NewBroker(
	store storage.CredentialStore,
	dialer telegram.Dialer,
	tel *telemetry.Telemetry,
	defaultAPIID int,
	defaultAPIHash string,
	minSessionLen int,
	promptTimeout, codeTimeout time.Duration,
) *Broker {
	return &Broker{
		store:          store,
		dialer:         dialer,
		tel:            tel,
		defaultAPIID:   defaultAPIID,
		defaultAPIHash: defaultAPIHash,
		minSessionLen:  minSessionLen,
		promptTimeout:  promptTimeout,
		codeTimeout:    codeTimeout,
	}
}

// Login runs the full interactive flow for one requester. On success the
// session credential and key pair are persisted; on any abort nothing is.
func (b *Broker) Login(ctx context.Context, requesterID int64, prompter telegram.Prompter) error {
	ctx = logctx.With(ctx, "requester_id", requesterID)

	err := b.login(ctx, requesterID, prompter)

	if b.tel != nil {
		outcome := "succeeded"
		if err != nil {
			outcome = "failed"

			if errors.Is(err, ErrCancelled) {
				outcome = "cancelled"
			}
		}

		b.tel.RecordLogin(ctx, outcome)
	}

	return err
}

func (b *Broker) login(ctx context.Context, requesterID int64, prompter telegram.Prompter) error {
	if _, ok, err := b.store.GetSession(requesterID); err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	} else if ok {
		b.say(ctx, prompter, "You are already logged in. /logout your old session first, then login again.")

		return ErrAlreadyLoggedIn
	}

	apiID, apiHash, err := b.askKeyPair(ctx, prompter)
	if err != nil {
		return err
	}

	phone, err := b.ask(ctx, prompter,
		"Please send your phone number including country code.\nExample: +13124562345",
		b.promptTimeout)
	if err != nil {
		return b.abort(ctx, prompter, err)
	}

	// One network identity is created for the dialogue and torn down before
	// the flow ends; only the verified credential is retained.
	auth, err := b.dialer.Dial(ctx, apiID, apiHash)
	if err != nil {
		b.say(ctx, prompter, fmt.Sprintf("Error: %v", err))

		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	defer auth.Close()

	exported, err := b.authenticate(ctx, prompter, auth, phone)
	if err != nil {
		return err
	}

	// Guards against a truncated or corrupt export.
	if len(exported) < b.minSessionLen {
		b.say(ctx, prompter, "Invalid session string.")

		return ErrShortSession
	}

	// Round-trip the credential through a fresh connection before trusting it.
	if err := b.verify(ctx, apiID, apiHash, exported); err != nil {
		b.say(ctx, prompter, fmt.Sprintf("Error in login: %v", err))

		return fmt.Errorf("%w: verification failed: %v", ErrAuthFailed, err)
	}

	if err := b.persist(requesterID, apiID, apiHash, exported); err != nil {
		return err
	}

	b.say(ctx, prompter, "Account logged in successfully.\n\nIf you get any auth key related error, /logout first and /login again.")

	return nil
}

// askKeyPair collects the API key pair, or falls back to the shared default
// pair when the requester skips.
func (b *Broker) askKeyPair(ctx context.Context, prompter telegram.Prompter) (int, string, error) {
	reply, err := b.ask(ctx, prompter,
		"Send your API ID.\n\nClick /skip to use the shared default key pair.",
		b.promptTimeout)
	if err != nil {
		return 0, "", b.abort(ctx, prompter, err)
	}

	if reply == skipToken {
		return b.defaultAPIID, b.defaultAPIHash, nil
	}

	apiID, err := strconv.Atoi(reply)
	if err != nil {
		b.say(ctx, prompter, "API ID must be an integer. Start again with /login.")

		return 0, "", fmt.Errorf("%w: api id %q is not an integer", ErrInvalidInput, reply)
	}

	apiHash, err := b.ask(ctx, prompter, "Now send your API HASH.", b.promptTimeout)
	if err != nil {
		return 0, "", b.abort(ctx, prompter, err)
	}

	return apiID, apiHash, nil
}

// authenticate walks the code/password exchange and exports the credential.
func (b *Broker) authenticate(ctx context.Context, prompter telegram.Prompter, auth telegram.Authenticator, phone string) (string, error) {
	b.say(ctx, prompter, "Sending OTP...")

	codeHash, err := auth.SendCode(ctx, phone)
	if err != nil {
		if errors.Is(err, telegram.ErrPhoneNumberInvalid) {
			b.say(ctx, prompter, "Phone number is invalid.")
		} else {
			b.say(ctx, prompter, fmt.Sprintf("Error: %v", err))
		}

		return "", fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	code, err := b.ask(ctx, prompter,
		"Check your official Telegram account for an OTP and send it here.\n\n"+
			"If the OTP is 12345, send it as 1 2 3 4 5.\n\nSend /cancel to abort.",
		b.codeTimeout)
	if err != nil {
		return "", b.abort(ctx, prompter, err)
	}

	err = auth.SignIn(ctx, phone, codeHash, stripFiller(code))

	switch {
	case errors.Is(err, telegram.ErrTwoStepRequired):
		if err := b.checkPassword(ctx, prompter, auth); err != nil {
			return "", err
		}
	case errors.Is(err, telegram.ErrCodeInvalid):
		b.say(ctx, prompter, "OTP is invalid.")

		return "", fmt.Errorf("%w: %v", ErrAuthFailed, err)
	case errors.Is(err, telegram.ErrCodeExpired):
		b.say(ctx, prompter, "OTP is expired.")

		return "", fmt.Errorf("%w: %v", ErrAuthFailed, err)
	case err != nil:
		b.say(ctx, prompter, fmt.Sprintf("Error: %v", err))

		return "", fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	exported, err := auth.ExportSession(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to export session: %w", err)
	}

	return exported, nil
}

func (b *Broker) checkPassword(ctx context.Context, prompter telegram.Prompter, auth telegram.Authenticator) error {
	password, err := b.ask(ctx, prompter,
		"Your account has two-step verification enabled. Please provide the password.\n\nSend /cancel to abort.",
		b.promptTimeout)
	if err != nil {
		return b.abort(ctx, prompter, err)
	}

	if err := auth.CheckPassword(ctx, password); err != nil {
		if errors.Is(err, telegram.ErrPasswordInvalid) {
			b.say(ctx, prompter, "Invalid password provided.")
		} else {
			b.say(ctx, prompter, fmt.Sprintf("Error: %v", err))
		}

		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	return nil
}

// verify opens a fresh connection with the exported credential to confirm it
// authenticates before anything is persisted.
func (b *Broker) verify(ctx context.Context, apiID int, apiHash, session string) error {
	performer, err := b.dialer.DialSession(ctx, apiID, apiHash, session)
	if err != nil {
		return err
	}

	return performer.Close()
}

func (b *Broker) persist(requesterID int64, apiID int, apiHash, session string) error {
	if err := b.store.SetSession(requesterID, session); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	if err := b.store.SetKeyPair(requesterID, apiID, apiHash); err != nil {
		return fmt.Errorf("failed to persist key pair: %w", err)
	}

	return nil
}

// Logout clears the stored session credential. The key pair is retained.
func (b *Broker) Logout(ctx context.Context, requesterID int64) error {
	_, ok, err := b.store.GetSession(requesterID)
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}

	if !ok {
		return ErrNotLoggedIn
	}

	if err := b.store.SetSession(requesterID, ""); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	logctx.LoggerFromContext(ctx).Info("session cleared", "requester_id", requesterID)

	return nil
}

// ask runs one prompt exchange, translating the cancel token and timeouts
// into flow-level errors.
func (b *Broker) ask(ctx context.Context, prompter telegram.Prompter, prompt string, timeout time.Duration) (string, error) {
	reply, err := prompter.Ask(ctx, prompt, timeout)
	if err != nil {
		return "", err
	}

	reply = strings.TrimSpace(reply)
	if reply == cancelToken {
		return "", ErrCancelled
	}

	return reply, nil
}

// abort reports the abort reason to the requester and normalizes the error.
func (b *Broker) abort(ctx context.Context, prompter telegram.Prompter, err error) error {
	switch {
	case errors.Is(err, ErrCancelled):
		b.say(ctx, prompter, "Process cancelled.")
	case errors.Is(err, context.DeadlineExceeded):
		b.say(ctx, prompter, "Process timed out. Please try again.")
	default:
		b.say(ctx, prompter, fmt.Sprintf("Error: %v", err))
	}

	return err
}

func (b *Broker) say(ctx context.Context, prompter telegram.Prompter, text string) {
	if err := prompter.Say(ctx, text); err != nil {
		logctx.LoggerFromContext(ctx).Debug("failed to send prompt", "err", err)
	}
}

// stripFiller drops everything but digits from a one-time code, accepting
// the conventional "1 2 3 4 5" format.
func stripFiller(code string) string {
	var sb strings.Builder

	for _, r := range code {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}

	return sb.String()
}
