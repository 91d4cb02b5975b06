package storage

import (
	"errors"
	"time"
)

// ErrUserNotFound is returned when a lookup targets an unregistered user.
var ErrUserNotFound = errors.New("storage: user not found")

// UserRecord represents one registered requester.
type UserRecord struct {
	ID         int64
	Name       string
	Session    string // empty when not logged in
	APIID      int    // 0 when no key pair stored
	APIHash    string
	CreatedAt  time.Time
	LastActive time.Time
}

// CredentialStore is the durable mapping from requester identity to session
// credential, API key pair and activity timestamps. Every operation is
// idempotent and individually atomic; callers must not assume cross-call
// transactions.
type CredentialStore interface {
	AddUser(id int64, name string) error
	Exists(id int64) (bool, error)

	GetSession(id int64) (string, bool, error)
	SetSession(id int64, session string) error // empty string clears

	GetKeyPair(id int64) (apiID int, apiHash string, ok bool, err error)
	SetKeyPair(id int64, apiID int, apiHash string) error

	ListAll() ([]UserRecord, error)
	Delete(id int64) error
	TouchActivity(id int64) error
	CountUsers() (int64, error)
}
