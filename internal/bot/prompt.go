package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/italolelis/restricted_saver/internal/flood"
	"github.com/italolelis/restricted_saver/internal/telegram"
)

// errPromptBusy is returned when a second flow tries to wait on a requester
// that already has a pending prompt.
var errPromptBusy = errors.New("bot: an interactive flow is already waiting on this requester")

// promptHub routes a requester's next message to whichever flow is waiting
// on it, so interactive dialogues can run over the same update stream as
// commands. At most one flow per requester may be active at a time.
type promptHub struct {
	mu      sync.Mutex
	waiting map[int64]chan string
	active  map[int64]struct{}
}

func newPromptHub() *promptHub {
	return &promptHub{
		waiting: make(map[int64]chan string),
		active:  make(map[int64]struct{}),
	}
}

// begin claims the requester's interactive-flow slot. Returns false when a
// flow is already running for them.
func (h *promptHub) begin(requesterID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.active[requesterID]; ok {
		return false
	}

	h.active[requesterID] = struct{}{}

	return true
}

// end releases the requester's interactive-flow slot.
func (h *promptHub) end(requesterID int64) {
	h.mu.Lock()
	delete(h.active, requesterID)
	h.mu.Unlock()
}

// deliver hands an incoming message to a pending prompt. Returns false when
// nobody is waiting for this requester.
func (h *promptHub) deliver(requesterID int64, text string) bool {
	h.mu.Lock()
	ch, ok := h.waiting[requesterID]
	if ok {
		delete(h.waiting, requesterID)
	}
	h.mu.Unlock()

	if !ok {
		return false
	}

	ch <- text

	return true
}

// wait blocks until the requester's next message arrives or the timeout
// expires.
func (h *promptHub) wait(ctx context.Context, requesterID int64, timeout time.Duration) (string, error) {
	ch := make(chan string, 1)

	h.mu.Lock()
	if _, exists := h.waiting[requesterID]; exists {
		h.mu.Unlock()

		return "", errPromptBusy
	}
	h.waiting[requesterID] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		if h.waiting[requesterID] == ch {
			delete(h.waiting, requesterID)
		}
		h.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case reply := <-ch:
		return reply, nil
	}
}

// chatPrompter adapts one requester chat into a telegram.Prompter.
type chatPrompter struct {
	bot         telegram.Messenger
	guard       *flood.Guard
	hub         *promptHub
	requesterID int64
	chatID      int64
}

func (p *chatPrompter) Ask(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	err := p.guard.Do(ctx, func(ctx context.Context) error {
		_, err := p.bot.SendText(ctx, p.chatID, prompt, nil, 0)

		return err
	})
	if err != nil {
		return "", err
	}

	return p.hub.wait(ctx, p.requesterID, timeout)
}

func (p *chatPrompter) Say(ctx context.Context, text string) error {
	return p.guard.Do(ctx, func(ctx context.Context) error {
		_, err := p.bot.SendText(ctx, p.chatID, text, nil, 0)

		return err
	})
}
