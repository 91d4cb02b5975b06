package telegram_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/italolelis/restricted_saver/internal/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloodWaitError_Unwrap(t *testing.T) {
	cause := errors.New("too many requests")
	err := &telegram.FloodWaitError{RetryAfter: 30 * time.Second, Err: cause}

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "30s")
}

func TestAsFloodWait(t *testing.T) {
	fw := &telegram.FloodWaitError{RetryAfter: 5 * time.Second}
	wrapped := fmt.Errorf("sending failed: %w", fw)

	got, ok := telegram.AsFloodWait(wrapped)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, got.RetryAfter)

	_, ok = telegram.AsFloodWait(errors.New("plain"))
	assert.False(t, ok)

	_, ok = telegram.AsFloodWait(nil)
	assert.False(t, ok)
}

func TestMessage_IsEmpty(t *testing.T) {
	var nilMsg *telegram.Message
	assert.True(t, nilMsg.IsEmpty())
	assert.True(t, (&telegram.Message{}).IsEmpty())
	assert.False(t, (&telegram.Message{ID: 1, Text: "x"}).IsEmpty())
	assert.False(t, (&telegram.Message{ID: 1, Photo: &telegram.FileMeta{}}).IsEmpty())
}
