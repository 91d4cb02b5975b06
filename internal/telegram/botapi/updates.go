package botapi

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/italolelis/restricted_saver/internal/logctx"
	"github.com/italolelis/restricted_saver/internal/telegram"
)

const (
	// pollTimeout is the long-poll hold time requested from the server.
	pollTimeout = 50 * time.Second

	// pollBackoff is the pause after a failed poll before trying again.
	pollBackoff = 3 * time.Second
)

// Updates starts long-polling for incoming messages. The returned channel is
// closed when ctx is cancelled.
func (c *Client) Updates(ctx context.Context) (<-chan telegram.Update, error) {
	out := make(chan telegram.Update)

	go c.poll(ctx, out)

	return out, nil
}

func (c *Client) poll(ctx context.Context, out chan<- telegram.Update) {
	defer close(out)

	logger := logctx.LoggerFromContext(ctx)

	var offset int64

	for ctx.Err() == nil {
		params := url.Values{}
		params.Set("timeout", strconv.Itoa(int(pollTimeout.Seconds())))
		params.Set("allowed_updates", `["message"]`)

		if offset != 0 {
			params.Set("offset", strconv.FormatInt(offset, 10))
		}

		var updates []wireUpdate

		if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
			if ctx.Err() != nil {
				return
			}

			logger.Warn("failed to fetch updates", "err", err)

			if !sleepCtx(ctx, pollBackoff) {
				return
			}

			continue
		}

		for _, wu := range updates {
			if wu.UpdateID >= offset {
				offset = wu.UpdateID + 1
			}

			if wu.Message == nil {
				continue
			}

			upd := telegram.Update{
				Message:    wu.Message.toMessage(),
				SenderName: wu.Message.From.name(),
				ReplyTo:    wu.Message.ReplyTo.toMessage(),
			}

			select {
			case out <- upd:
			case <-ctx.Done():
				return
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
