package mtproto

import (
	"fmt"

	"github.com/gotd/td/tgerr"
	"github.com/italolelis/restricted_saver/internal/telegram"
)

// RPC error types mapped onto the boundary's closed error set. Anything not
// listed here passes through untouched.
var errTypes = []struct {
	sentinel error
	types    []string
}{
	{telegram.ErrPhoneNumberInvalid, []string{"PHONE_NUMBER_INVALID", "PHONE_NUMBER_BANNED"}},
	{telegram.ErrCodeInvalid, []string{"PHONE_CODE_INVALID", "PHONE_CODE_EMPTY"}},
	{telegram.ErrCodeExpired, []string{"PHONE_CODE_EXPIRED"}},
	{telegram.ErrTwoStepRequired, []string{"SESSION_PASSWORD_NEEDED"}},
	{telegram.ErrPasswordInvalid, []string{"PASSWORD_HASH_INVALID"}},
	{telegram.ErrSessionExpired, []string{"AUTH_KEY_UNREGISTERED", "AUTH_KEY_INVALID", "SESSION_REVOKED", "SESSION_EXPIRED", "USER_DEACTIVATED"}},
	{telegram.ErrUsernameNotOccupied, []string{"USERNAME_NOT_OCCUPIED", "USERNAME_INVALID"}},
	{telegram.ErrAlreadyParticipant, []string{"USER_ALREADY_PARTICIPANT"}},
	{telegram.ErrInviteExpired, []string{"INVITE_HASH_EXPIRED", "INVITE_HASH_INVALID"}},
	{telegram.ErrPeerInvalid, []string{"PEER_ID_INVALID", "CHANNEL_INVALID", "CHANNEL_PRIVATE"}},
}

func translate(err error) error {
	if err == nil {
		return nil
	}

	if d, ok := tgerr.AsFloodWait(err); ok {
		return &telegram.FloodWaitError{RetryAfter: d, Err: err}
	}

	for _, m := range errTypes {
		if tgerr.Is(err, m.types...) {
			return fmt.Errorf("%w: %v", m.sentinel, err)
		}
	}

	return err
}
