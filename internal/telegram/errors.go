package telegram

import (
	"errors"
	"fmt"
	"time"
)

// Closed error-kind set for the transport boundary. Adapters translate the
// underlying protocol's failures into exactly these; the orchestration core
// never inspects anything else.
var (
	ErrUserBlocked         = errors.New("telegram: user blocked the bot")
	ErrUserDeactivated     = errors.New("telegram: user account deactivated")
	ErrPeerInvalid         = errors.New("telegram: peer unreachable")
	ErrUsernameNotOccupied = errors.New("telegram: username not occupied")
	ErrSessionExpired      = errors.New("telegram: session expired or revoked")
	ErrPhoneNumberInvalid  = errors.New("telegram: phone number invalid")
	ErrCodeInvalid         = errors.New("telegram: one-time code invalid")
	ErrCodeExpired         = errors.New("telegram: one-time code expired")
	ErrTwoStepRequired     = errors.New("telegram: two-step verification required")
	ErrPasswordInvalid     = errors.New("telegram: two-step password invalid")
	ErrAlreadyParticipant  = errors.New("telegram: already a participant")
	ErrInviteExpired       = errors.New("telegram: invite link expired")
)

// FloodWaitError is the server's "retry after N" rate-limit signal.
type FloodWaitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("telegram: flood wait, retry after %s", e.RetryAfter)
}

func (e *FloodWaitError) Unwrap() error {
	return e.Err
}

// AsFloodWait extracts a FloodWaitError from an error chain.
func AsFloodWait(err error) (*FloodWaitError, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw, true
	}

	return nil, false
}
