package mtproto

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotd/contrib/bg"
	"github.com/gotd/td/session"
	tdclient "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/italolelis/restricted_saver/internal/telegram"
)

// authConn is the pre-auth connection driving the code/password exchange.
type authConn struct {
	client *tdclient.Client
	store  *session.StorageMemory
	stop   bg.StopFunc
}

var _ telegram.Authenticator = (*authConn)(nil)

func (a *authConn) SendCode(ctx context.Context, phoneNumber string) (string, error) {
	sent, err := a.client.Auth().SendCode(ctx, phoneNumber, auth.SendCodeOptions{})
	if err != nil {
		return "", translate(err)
	}

	code, ok := sent.(*tg.AuthSentCode)
	if !ok {
		return "", fmt.Errorf("mtproto: unexpected sent code %T", sent)
	}

	return code.PhoneCodeHash, nil
}

func (a *authConn) SignIn(ctx context.Context, phoneNumber, codeHash, code string) error {
	_, err := a.client.Auth().SignIn(ctx, phoneNumber, code, codeHash)
	if errors.Is(err, auth.ErrPasswordAuthNeeded) {
		return fmt.Errorf("%w: %v", telegram.ErrTwoStepRequired, err)
	}

	return translate(err)
}

func (a *authConn) CheckPassword(ctx context.Context, password string) error {
	_, err := a.client.Auth().Password(ctx, password)

	return translate(err)
}

func (a *authConn) ExportSession(ctx context.Context) (string, error) {
	return exportSession(ctx, a.store)
}

func (a *authConn) Close() error {
	return a.stop()
}
