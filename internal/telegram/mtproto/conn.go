package mtproto

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gotd/contrib/bg"
	tdclient "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"
	"github.com/italolelis/restricted_saver/internal/classify"
	"github.com/italolelis/restricted_saver/internal/telegram"
)

// Marshaled private channel ids carry a -100 prefix on top of the bare id.
const channelIDOffset = 1000000000000

// conn is an authorized session acting as the performing identity. File ids
// handed out in fetched messages are connection-scoped handles into the media
// table; they are only meaningful for downloads on the same conn.
type conn struct {
	client *tdclient.Client
	api    *tg.Client
	stop   bg.StopFunc
	dl     *downloader.Downloader

	mu    sync.Mutex
	seq   uint64
	media map[string]mediaRef
}

type mediaRef struct {
	loc  tg.InputFileLocationClass
	size int64
}

var _ telegram.Performer = (*conn)(nil)

func newConn(client *tdclient.Client, stop bg.StopFunc) *conn {
	return &conn{
		client: client,
		api:    client.API(),
		stop:   stop,
		dl:     downloader.NewDownloader(),
		media:  make(map[string]mediaRef),
	}
}

func (c *conn) GetMessage(ctx context.Context, peer telegram.Peer, messageID int64) (*telegram.Message, error) {
	ids := []tg.InputMessageClass{&tg.InputMessageID{ID: int(messageID)}}

	var (
		res tg.MessagesMessagesClass
		err error
	)

	if peer.Kind == telegram.PeerBot {
		// Bot chats are plain dialogs of the performing account.
		res, err = c.api.MessagesGetMessages(ctx, ids)
	} else {
		var ch tg.InputChannelClass

		ch, err = c.resolveChannel(ctx, peer)
		if err != nil {
			return nil, err
		}

		res, err = c.api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
			Channel: ch,
			ID:      ids,
		})
	}

	if err != nil {
		return nil, translate(err)
	}

	raw, ok := firstMessage(res)
	if !ok {
		// Deleted or inaccessible item: empty resolution, not an error.
		return &telegram.Message{}, nil
	}

	return c.convert(raw), nil
}

// resolveChannel turns a peer into an input channel, filling the access hash
// from the server.
func (c *conn) resolveChannel(ctx context.Context, peer telegram.Peer) (tg.InputChannelClass, error) {
	if peer.Kind == telegram.PeerPrivate {
		id := peer.ChatID
		if id < 0 {
			id = -id
		}
		if id > channelIDOffset {
			id -= channelIDOffset
		}

		res, err := c.api.ChannelsGetChannels(ctx, []tg.InputChannelClass{&tg.InputChannel{ChannelID: id}})
		if err != nil {
			return nil, translate(err)
		}

		if ch, ok := firstChannel(chatList(res)); ok {
			return &tg.InputChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}, nil
		}

		return nil, fmt.Errorf("%w: chat %d", telegram.ErrPeerInvalid, peer.ChatID)
	}

	res, err := c.api.ContactsResolveUsername(ctx, peer.Username)
	if err != nil {
		return nil, translate(err)
	}

	if ch, ok := firstChannel(res.Chats); ok {
		return &tg.InputChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}, nil
	}

	return nil, fmt.Errorf("%w: %q is not a channel", telegram.ErrPeerInvalid, peer.Username)
}

func (c *conn) DownloadMedia(ctx context.Context, msg *telegram.Message, dir string, progress func(done, total int64)) (string, error) {
	meta := classify.Media(msg, classify.Classify(msg))
	if meta == nil {
		return "", fmt.Errorf("mtproto: message %d carries no media", msg.ID)
	}

	return c.download(ctx, meta.FileID, meta.FileName, dir, progress)
}

func (c *conn) DownloadFile(ctx context.Context, fileID, dir string) (string, error) {
	return c.download(ctx, fileID, "thumb.jpg", dir, nil)
}

func (c *conn) download(ctx context.Context, fileID, name, dir string, progress func(done, total int64)) (string, error) {
	ref, ok := c.lookup(fileID)
	if !ok {
		return "", fmt.Errorf("mtproto: unknown file id %q", fileID)
	}

	if name == "" {
		name = "payload.bin"
	}

	// File ids are unique per connection, which keeps staging names from
	// colliding across concurrent items.
	path := filepath.Join(dir, fileID+"_"+filepath.Base(name))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create staging file: %w", err)
	}
	defer f.Close()

	w := io.Writer(f)
	if progress != nil {
		w = &progressWriter{w: f, total: ref.size, fn: progress}
	}

	if _, err := c.dl.Download(c.api, ref.loc).Stream(ctx, w); err != nil {
		os.Remove(path)

		return "", translate(err)
	}

	return path, nil
}

func (c *conn) JoinChat(ctx context.Context, inviteLink string) error {
	hash := inviteHash(inviteLink)
	if hash == "" {
		return fmt.Errorf("%w: not an invite link", telegram.ErrInviteExpired)
	}

	_, err := c.api.MessagesImportChatInvite(ctx, hash)

	return translate(err)
}

func (c *conn) Close() error {
	return c.stop()
}

func (c *conn) register(loc tg.InputFileLocationClass, size int64) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	id := strconv.FormatUint(c.seq, 10)
	c.media[id] = mediaRef{loc: loc, size: size}

	return id
}

func (c *conn) lookup(fileID string) (mediaRef, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ref, ok := c.media[fileID]

	return ref, ok
}

// progressWriter reports cumulative bytes written through the wrapped writer.
type progressWriter struct {
	w     io.Writer
	done  int64
	total int64
	fn    func(done, total int64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.done += int64(n)
	p.fn(p.done, p.total)

	return n, err
}

func inviteHash(link string) string {
	link = strings.TrimSpace(link)

	for _, marker := range []string{"/joinchat/", "/+"} {
		if i := strings.Index(link, marker); i >= 0 {
			return strings.TrimSpace(link[i+len(marker):])
		}
	}

	return ""
}

func firstMessage(res tg.MessagesMessagesClass) (*tg.Message, bool) {
	var list []tg.MessageClass

	switch v := res.(type) {
	case *tg.MessagesMessages:
		list = v.Messages
	case *tg.MessagesMessagesSlice:
		list = v.Messages
	case *tg.MessagesChannelMessages:
		list = v.Messages
	default:
		return nil, false
	}

	if len(list) == 0 {
		return nil, false
	}

	m, ok := list[0].(*tg.Message)

	return m, ok
}

func chatList(res tg.MessagesChatsClass) []tg.ChatClass {
	switch v := res.(type) {
	case *tg.MessagesChats:
		return v.Chats
	case *tg.MessagesChatsSlice:
		return v.Chats
	default:
		return nil
	}
}

func firstChannel(chats []tg.ChatClass) (*tg.Channel, bool) {
	for _, chat := range chats {
		if ch, ok := chat.(*tg.Channel); ok {
			return ch, true
		}
	}

	return nil, false
}
