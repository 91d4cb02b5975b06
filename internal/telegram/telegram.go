// Package telegram defines the boundary between the orchestration core and
// the underlying Telegram transport. The wire protocol itself lives behind
// the interfaces below; adapters must translate transport failures into the
// closed error set in errors.go.
package telegram

import (
	"context"
	"time"
)

// PeerKind discriminates how a source chat is addressed.
type PeerKind int

const (
	PeerPublic PeerKind = iota // public @username channel/group
	PeerPrivate                // private chat addressed by numeric id
	PeerBot                    // bot chat addressed by bot username
)

// Peer identifies a source chat. Exactly one of Username/ChatID is set,
// depending on Kind.
type Peer struct {
	Kind     PeerKind
	Username string
	ChatID   int64
}

// EntityKind is a rich-text entity type (bold, link, mention, ...).
type EntityKind string

// Entity is a rich-text span attached to a message text or caption.
type Entity struct {
	Kind   EntityKind
	Offset int
	Length int
	URL    string
}

// FileMeta describes one media payload of a message.
type FileMeta struct {
	FileID      string
	FileName    string
	Size        int64
	MimeType    string
	ThumbFileID string

	// Video/animation attributes; zero for other kinds.
	Duration int
	Width    int
	Height   int
}

// Message is the transport-neutral view of a fetched message. Media kinds are
// optional attributes; classify.Classify decides which one wins.
type Message struct {
	ID       int64
	ChatID   int64
	SenderID int64
	Text     string
	Caption  string
	Entities []Entity

	Document  *FileMeta
	Video     *FileMeta
	Animation *FileMeta
	Sticker   *FileMeta
	Voice     *FileMeta
	Audio     *FileMeta
	Photo     *FileMeta
}

// IsEmpty reports whether the message resolved to nothing (deleted or
// inaccessible item id).
func (m *Message) IsEmpty() bool {
	return m == nil || (m.ID == 0 && m.Text == "" && m.Caption == "" &&
		m.Document == nil && m.Video == nil && m.Animation == nil &&
		m.Sticker == nil && m.Voice == nil && m.Audio == nil && m.Photo == nil)
}

// Upload carries everything needed to deliver one item to a destination chat.
type Upload struct {
	Path      string
	ThumbPath string
	Caption   string
	Entities  []Entity
	ReplyTo   int64

	// Video metadata, carried through for Kind == Video.
	Duration int
	Width    int
	Height   int

	// Progress is invoked with (done, total) bytes as the upload advances.
	Progress func(done, total int64)
}

// Messenger is the requester-facing identity (the bot account). All calls are
// suspension points and honor ctx cancellation.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, entities []Entity, replyTo int64) (*Message, error)
	SendDocument(ctx context.Context, chatID int64, up Upload) (*Message, error)
	SendVideo(ctx context.Context, chatID int64, up Upload) (*Message, error)
	SendAnimation(ctx context.Context, chatID int64, up Upload) (*Message, error)
	SendSticker(ctx context.Context, chatID int64, up Upload) (*Message, error)
	SendVoice(ctx context.Context, chatID int64, up Upload) (*Message, error)
	SendAudio(ctx context.Context, chatID int64, up Upload) (*Message, error)
	SendPhoto(ctx context.Context, chatID int64, up Upload) (*Message, error)

	EditText(ctx context.Context, chatID, messageID int64, text string) error
	DeleteMessages(ctx context.Context, chatID int64, messageIDs ...int64) error

	// CopyMessage relays a message the bot itself can read, without
	// re-encoding. Used for the public-source cheap path.
	CopyMessage(ctx context.Context, toChatID int64, from Peer, messageID int64, replyTo int64) error

	// CopyTo re-sends an existing bot-visible message to another chat.
	// Used by the fan-out broadcaster.
	CopyTo(ctx context.Context, fromChatID, messageID, toChatID int64) error
}

// Performer is an open network session acting as the identity that can reach
// restricted sources. Close releases the underlying connection.
type Performer interface {
	GetMessage(ctx context.Context, peer Peer, messageID int64) (*Message, error)

	// DownloadMedia streams the message's payload into dir and returns the
	// staging path. Progress is invoked with (done, total) bytes.
	DownloadMedia(ctx context.Context, msg *Message, dir string, progress func(done, total int64)) (string, error)

	// DownloadFile fetches a bare file id (thumbnails) into dir.
	DownloadFile(ctx context.Context, fileID, dir string) (string, error)

	JoinChat(ctx context.Context, inviteLink string) error

	Close() error
}

// Authenticator is a short-lived connection used only during the interactive
// login flow, before any session credential exists.
type Authenticator interface {
	SendCode(ctx context.Context, phoneNumber string) (codeHash string, err error)

	// SignIn returns ErrTwoStepRequired when the account has 2FA enabled.
	SignIn(ctx context.Context, phoneNumber, codeHash, code string) error
	CheckPassword(ctx context.Context, password string) error

	ExportSession(ctx context.Context) (string, error)
	Close() error
}

// Dialer opens network identities. Dial creates a pre-auth connection for
// the login flow; DialSession opens a Performer from a stored credential.
type Dialer interface {
	Dial(ctx context.Context, apiID int, apiHash string) (Authenticator, error)
	DialSession(ctx context.Context, apiID int, apiHash, session string) (Performer, error)
}

// Prompter runs one interactive question/answer exchange with a requester.
// Ask blocks until a reply arrives or the timeout expires.
type Prompter interface {
	Ask(ctx context.Context, prompt string, timeout time.Duration) (string, error)
	Say(ctx context.Context, text string) error
}

// Update is one incoming event from the requester-facing surface.
type Update struct {
	Message    *Message
	SenderName string
	ReplyTo    *Message
}

// UpdateSource streams incoming updates. The returned channel is closed when
// ctx is cancelled or the stream breaks permanently.
type UpdateSource interface {
	Updates(ctx context.Context) (<-chan Update, error)
}
