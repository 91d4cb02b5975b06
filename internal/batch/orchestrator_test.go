package batch_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/italolelis/restricted_saver/internal/batch"
	"github.com/italolelis/restricted_saver/internal/flood"
	"github.com/italolelis/restricted_saver/internal/locator"
	"github.com/italolelis/restricted_saver/internal/pipeline"
	"github.com/italolelis/restricted_saver/internal/progress"
	"github.com/italolelis/restricted_saver/internal/storage"
	"github.com/italolelis/restricted_saver/internal/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockMessenger struct {
	mu        sync.Mutex
	sentTexts []string
	copied    []int64
	copyFn    func(from telegram.Peer, messageID int64) error
}

func (m *mockMessenger) SendText(ctx context.Context, chatID int64, text string, entities []telegram.Entity, replyTo int64) (*telegram.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentTexts = append(m.sentTexts, text)

	return &telegram.Message{ID: int64(len(m.sentTexts)), ChatID: chatID, Text: text}, nil
}

func (m *mockMessenger) SendDocument(ctx context.Context, chatID int64, up telegram.Upload) (*telegram.Message, error) {
	return &telegram.Message{}, nil
}

func (m *mockMessenger) SendVideo(ctx context.Context, chatID int64, up telegram.Upload) (*telegram.Message, error) {
	return &telegram.Message{}, nil
}

func (m *mockMessenger) SendAnimation(ctx context.Context, chatID int64, up telegram.Upload) (*telegram.Message, error) {
	return &telegram.Message{}, nil
}

func (m *mockMessenger) SendSticker(ctx context.Context, chatID int64, up telegram.Upload) (*telegram.Message, error) {
	return &telegram.Message{}, nil
}

func (m *mockMessenger) SendVoice(ctx context.Context, chatID int64, up telegram.Upload) (*telegram.Message, error) {
	return &telegram.Message{}, nil
}

func (m *mockMessenger) SendAudio(ctx context.Context, chatID int64, up telegram.Upload) (*telegram.Message, error) {
	return &telegram.Message{}, nil
}

func (m *mockMessenger) SendPhoto(ctx context.Context, chatID int64, up telegram.Upload) (*telegram.Message, error) {
	return &telegram.Message{}, nil
}

func (m *mockMessenger) EditText(ctx context.Context, chatID, messageID int64, text string) error {
	return nil
}

func (m *mockMessenger) DeleteMessages(ctx context.Context, chatID int64, messageIDs ...int64) error {
	return nil
}

func (m *mockMessenger) CopyMessage(ctx context.Context, toChatID int64, from telegram.Peer, messageID int64, replyTo int64) error {
	if m.copyFn != nil {
		return m.copyFn(from, messageID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.copied = append(m.copied, messageID)

	return nil
}

func (m *mockMessenger) CopyTo(ctx context.Context, fromChatID, messageID, toChatID int64) error {
	return nil
}

func (m *mockMessenger) texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.sentTexts...)
}

type mockPerformer struct {
	mu      sync.Mutex
	fetched []int64
	getFn   func(itemID int64) (*telegram.Message, error)
	closed  bool
}

func (m *mockPerformer) GetMessage(ctx context.Context, peer telegram.Peer, messageID int64) (*telegram.Message, error) {
	m.mu.Lock()
	m.fetched = append(m.fetched, messageID)
	m.mu.Unlock()

	if m.getFn != nil {
		return m.getFn(messageID)
	}

	return &telegram.Message{ID: messageID, Text: fmt.Sprintf("item %d", messageID)}, nil
}

func (m *mockPerformer) DownloadMedia(ctx context.Context, msg *telegram.Message, dir string, progressFn func(done, total int64)) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("item-%d", msg.ID))

	return path, os.WriteFile(path, []byte("payload"), 0o644)
}

func (m *mockPerformer) DownloadFile(ctx context.Context, fileID, dir string) (string, error) {
	path := filepath.Join(dir, fileID)

	return path, os.WriteFile(path, []byte("thumb"), 0o644)
}

func (m *mockPerformer) JoinChat(ctx context.Context, inviteLink string) error {
	return nil
}

func (m *mockPerformer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true

	return nil
}

func (m *mockPerformer) fetchedIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]int64(nil), m.fetched...)
}

type mockDialer struct {
	performer *mockPerformer
	err       error
}

func (d *mockDialer) Dial(ctx context.Context, apiID int, apiHash string) (telegram.Authenticator, error) {
	return nil, errors.New("not implemented")
}

func (d *mockDialer) DialSession(ctx context.Context, apiID int, apiHash, session string) (telegram.Performer, error) {
	if d.err != nil {
		return nil, d.err
	}

	return d.performer, nil
}

type mockStore struct {
	mu       sync.Mutex
	sessions map[int64]string
}

func (s *mockStore) AddUser(id int64, name string) error { return nil }
func (s *mockStore) Exists(id int64) (bool, error)       { return true, nil }

func (s *mockStore) GetSession(id int64) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]

	return session, ok && session != "", nil
}

func (s *mockStore) SetSession(id int64, session string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessions == nil {
		s.sessions = make(map[int64]string)
	}

	s.sessions[id] = session

	return nil
}

func (s *mockStore) GetKeyPair(id int64) (int, string, bool, error) { return 1, "hash", true, nil }
func (s *mockStore) SetKeyPair(id int64, apiID int, apiHash string) error {
	return nil
}
func (s *mockStore) ListAll() ([]storage.UserRecord, error) { return nil, nil }
func (s *mockStore) Delete(id int64) error                  { return nil }
func (s *mockStore) TouchActivity(id int64) error           { return nil }
func (s *mockStore) CountUsers() (int64, error)             { return 0, nil }

func newTestOrchestrator(t *testing.T, bot *mockMessenger, performer *mockPerformer) *batch.Orchestrator {
	t.Helper()

	guard := flood.NewGuard()
	monitor := progress.NewMonitor(guard, time.Hour)
	pipe := pipeline.New(bot, guard, monitor, nil, t.TempDir(), 0, false)

	return batch.NewOrchestrator(&mockStore{}, &mockDialer{performer: performer},
		bot, pipe, guard, nil, performer, false, 0, 0)
}

func privateRun(requesterID, start, end int64) batch.Run {
	return batch.Run{
		RequesterID:     requesterID,
		RequesterChatID: requesterID,
		Locator: locator.Locator{
			Peer:    telegram.Peer{Kind: telegram.PeerPrivate, ChatID: -100123},
			StartID: start,
			EndID:   end,
		},
	}
}

func TestExecute_WalksRangeInOrder(t *testing.T) {
	bot := &mockMessenger{}
	performer := &mockPerformer{}
	orch := newTestOrchestrator(t, bot, performer)

	result, err := orch.Execute(context.Background(), privateRun(7, 10, 12))
	require.NoError(t, err)

	assert.Equal(t, 3, result.Attempted)
	assert.Equal(t, 3, result.Delivered)
	assert.False(t, result.Cancelled)
	assert.Equal(t, []int64{10, 11, 12}, performer.fetchedIDs(), "items must be visited in strictly increasing order")
	assert.Equal(t, batch.Idle, orch.State(7), "state returns to Idle after the run")
}

func TestExecute_RejectsSecondStart(t *testing.T) {
	bot := &mockMessenger{}

	started := make(chan struct{})
	release := make(chan struct{})

	var once sync.Once

	performer := &mockPerformer{
		getFn: func(itemID int64) (*telegram.Message, error) {
			once.Do(func() { close(started) })
			<-release

			return &telegram.Message{ID: itemID, Text: "x"}, nil
		},
	}

	orch := newTestOrchestrator(t, bot, performer)

	done := make(chan struct{})

	go func() {
		_, _ = orch.Execute(context.Background(), privateRun(7, 1, 1))
		close(done)
	}()

	<-started

	_, err := orch.Execute(context.Background(), privateRun(7, 2, 2))
	assert.ErrorIs(t, err, batch.ErrBatchRunning)
	assert.Contains(t, bot.texts()[0], "already processing")

	close(release)
	<-done
}

func TestExecute_CancelStopsAtItemBoundary(t *testing.T) {
	bot := &mockMessenger{}

	var orch *batch.Orchestrator

	performer := &mockPerformer{}
	performer.getFn = func(itemID int64) (*telegram.Message, error) {
		if itemID == 10 {
			// Request cancellation while the first item is in flight; it must
			// still complete.
			require.True(t, orch.Cancel(7))
		}

		return &telegram.Message{ID: itemID, Text: "x"}, nil
	}

	orch = newTestOrchestrator(t, bot, performer)

	result, err := orch.Execute(context.Background(), privateRun(7, 10, 12))
	require.NoError(t, err)

	assert.True(t, result.Cancelled)
	assert.Equal(t, 1, result.Attempted, "items after the boundary stay unattempted")
	assert.Equal(t, 1, result.Delivered, "the in-flight item completes")
	assert.Equal(t, []int64{10}, performer.fetchedIDs())
}

func TestCancel_WithoutRunningBatch(t *testing.T) {
	orch := newTestOrchestrator(t, &mockMessenger{}, &mockPerformer{})
	assert.False(t, orch.Cancel(7))
}

func TestExecute_PublicPeerUsesCheapRelay(t *testing.T) {
	bot := &mockMessenger{}
	performer := &mockPerformer{}
	orch := newTestOrchestrator(t, bot, performer)

	run := privateRun(7, 5, 6)
	run.Locator.Peer = telegram.Peer{Kind: telegram.PeerPublic, Username: "somechannel"}

	result, err := orch.Execute(context.Background(), run)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Delivered)
	assert.Equal(t, []int64{5, 6}, bot.copied)
	assert.Empty(t, performer.fetchedIDs(), "relayed items never touch the performing identity")
}

func TestExecute_NonexistentHandleStopsRange(t *testing.T) {
	bot := &mockMessenger{
		copyFn: func(from telegram.Peer, messageID int64) error {
			return fmt.Errorf("%w: somechannel", telegram.ErrUsernameNotOccupied)
		},
	}
	performer := &mockPerformer{}
	orch := newTestOrchestrator(t, bot, performer)

	run := privateRun(7, 5, 9)
	run.Locator.Peer = telegram.Peer{Kind: telegram.PeerPublic, Username: "somechannel"}

	result, err := orch.Execute(context.Background(), run)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Attempted, "remaining range is abandoned")
	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, bot.texts(), "The username is not occupied by anyone.")
}

func TestExecute_PublicRelayFallsBackToPipeline(t *testing.T) {
	bot := &mockMessenger{
		copyFn: func(from telegram.Peer, messageID int64) error {
			return errors.New("bot is not a member")
		},
	}
	performer := &mockPerformer{}
	orch := newTestOrchestrator(t, bot, performer)

	run := privateRun(7, 5, 5)
	run.Locator.Peer = telegram.Peer{Kind: telegram.PeerPublic, Username: "somechannel"}

	result, err := orch.Execute(context.Background(), run)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Delivered)
	assert.Equal(t, []int64{5}, performer.fetchedIDs(), "fallback goes through the transfer pipeline")
}

func TestExecute_FailureEmitsEvent(t *testing.T) {
	bot := &mockMessenger{}
	performer := &mockPerformer{
		getFn: func(itemID int64) (*telegram.Message, error) {
			return nil, errors.New("unreachable")
		},
	}
	orch := newTestOrchestrator(t, bot, performer)

	result, err := orch.Execute(context.Background(), privateRun(7, 3, 3))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	select {
	case event := <-orch.OnItemFailed:
		assert.Equal(t, int64(7), event.RequesterID)
		assert.Equal(t, int64(3), event.ItemID)
	default:
		t.Fatal("expected a failure event")
	}
}

func TestExecute_LoginRequired(t *testing.T) {
	guard := flood.NewGuard()
	bot := &mockMessenger{}
	monitor := progress.NewMonitor(guard, time.Hour)
	pipe := pipeline.New(bot, guard, monitor, nil, t.TempDir(), 0, false)

	store := &mockStore{}
	orch := batch.NewOrchestrator(store, &mockDialer{performer: &mockPerformer{}},
		bot, pipe, guard, nil, nil, true, 0, 0)

	_, err := orch.Execute(context.Background(), privateRun(7, 1, 1))
	assert.ErrorIs(t, err, batch.ErrNotLoggedIn)
	assert.Contains(t, bot.texts()[0], "/login")
}

func TestExecute_ExpiredSessionClosesCleanly(t *testing.T) {
	guard := flood.NewGuard()
	bot := &mockMessenger{}
	monitor := progress.NewMonitor(guard, time.Hour)
	pipe := pipeline.New(bot, guard, monitor, nil, t.TempDir(), 0, false)

	store := &mockStore{sessions: map[int64]string{7: "stored-session"}}
	dialer := &mockDialer{err: errors.New("auth key unregistered")}

	orch := batch.NewOrchestrator(store, dialer, bot, pipe, guard, nil, nil, true, 0, 0)

	_, err := orch.Execute(context.Background(), privateRun(7, 1, 1))
	assert.ErrorIs(t, err, telegram.ErrSessionExpired)
	assert.Contains(t, bot.texts()[0], "session expired")
}

func TestExecute_OwnedPerformerIsReleased(t *testing.T) {
	guard := flood.NewGuard()
	bot := &mockMessenger{}
	monitor := progress.NewMonitor(guard, time.Hour)
	pipe := pipeline.New(bot, guard, monitor, nil, t.TempDir(), 0, false)

	performer := &mockPerformer{}
	store := &mockStore{sessions: map[int64]string{7: "stored-session"}}

	orch := batch.NewOrchestrator(store, &mockDialer{performer: performer},
		bot, pipe, guard, nil, nil, true, 0, 0)

	_, err := orch.Execute(context.Background(), privateRun(7, 1, 1))
	require.NoError(t, err)

	performer.mu.Lock()
	defer performer.mu.Unlock()
	assert.True(t, performer.closed, "dialed identity must be released when the batch ends")
}
