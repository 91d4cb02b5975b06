package mtproto

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gotd/td/session"
	"github.com/italolelis/restricted_saver/internal/telegram"
)

// Session strings are the base64url form of the serialized session payload.
// The format round-trips through the credential store untouched.

func restoreSession(ctx context.Context, s string) (*session.StorageMemory, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed session string", telegram.ErrSessionExpired)
	}

	store := &session.StorageMemory{}
	if err := store.StoreSession(ctx, raw); err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	return store, nil
}

func exportSession(ctx context.Context, store *session.StorageMemory) (string, error) {
	raw, err := store.LoadSession(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read session payload: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(raw), nil
}
