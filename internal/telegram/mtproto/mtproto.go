// Package mtproto implements the session-layer driver on top of the gotd
// MTProto client. Importing it registers the "mtproto" driver:
//
//	import _ "github.com/italolelis/restricted_saver/internal/telegram/mtproto"
package mtproto

import (
	"context"

	"github.com/gotd/contrib/bg"
	"github.com/gotd/td/session"
	tdclient "github.com/gotd/td/telegram"
	"github.com/italolelis/restricted_saver/internal/telegram"
)

const driverName = "mtproto"

func init() {
	telegram.RegisterDialer(driverName, &Dialer{})
}

// Dialer opens gotd-backed network identities.
type Dialer struct{}

var _ telegram.Dialer = (*Dialer)(nil)

// Dial opens a pre-auth connection for the interactive login flow.
func (d *Dialer) Dial(ctx context.Context, apiID int, apiHash string) (telegram.Authenticator, error) {
	store := &session.StorageMemory{}
	client := tdclient.NewClient(apiID, apiHash, tdclient.Options{SessionStorage: store})

	stop, err := bg.Connect(client)
	if err != nil {
		return nil, translate(err)
	}

	return &authConn{client: client, store: store, stop: stop}, nil
}

// DialSession opens a Performer from a stored session credential. The
// connection is rejected when the credential no longer authorizes.
func (d *Dialer) DialSession(ctx context.Context, apiID int, apiHash, sessionStr string) (telegram.Performer, error) {
	store, err := restoreSession(ctx, sessionStr)
	if err != nil {
		return nil, err
	}

	client := tdclient.NewClient(apiID, apiHash, tdclient.Options{SessionStorage: store})

	stop, err := bg.Connect(client)
	if err != nil {
		return nil, translate(err)
	}

	status, err := client.Auth().Status(ctx)
	if err != nil {
		_ = stop()

		return nil, translate(err)
	}

	if !status.Authorized {
		_ = stop()

		return nil, telegram.ErrSessionExpired
	}

	return newConn(client, stop), nil
}
