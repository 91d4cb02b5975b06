package locator_test

import (
	"errors"
	"testing"

	"github.com/italolelis/restricted_saver/internal/locator"
	"github.com/italolelis/restricted_saver/internal/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantPeer  telegram.Peer
		wantStart int64
		wantEnd   int64
	}{
		{
			"public single",
			"https://t.me/somechannel/1234",
			telegram.Peer{Kind: telegram.PeerPublic, Username: "somechannel"},
			1234, 1234,
		},
		{
			"public range",
			"https://t.me/somechannel/1001-1010",
			telegram.Peer{Kind: telegram.PeerPublic, Username: "somechannel"},
			1001, 1010,
		},
		{
			"range with whitespace around separator",
			"https://t.me/c/1234567/101 - 120",
			telegram.Peer{Kind: telegram.PeerPrivate, ChatID: -1001234567},
			101, 120,
		},
		{
			"private single",
			"https://t.me/c/1234567/500",
			telegram.Peer{Kind: telegram.PeerPrivate, ChatID: -1001234567},
			500, 500,
		},
		{
			"bot chat",
			"https://t.me/b/somebot/4321",
			telegram.Peer{Kind: telegram.PeerBot, Username: "somebot"},
			4321, 4321,
		},
		{
			"single media suffix stripped",
			"https://t.me/somechannel/77?single",
			telegram.Peer{Kind: telegram.PeerPublic, Username: "somechannel"},
			77, 77,
		},
		{
			"link embedded in surrounding text",
			"save this https://t.me/somechannel/9-11",
			telegram.Peer{Kind: telegram.PeerPublic, Username: "somechannel"},
			9, 11,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := locator.Parse(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPeer, loc.Peer)
			assert.Equal(t, tt.wantStart, loc.StartID)
			assert.Equal(t, tt.wantEnd, loc.EndID)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr error
	}{
		{"not a link", "hello there", locator.ErrNotALink},
		{"missing item id", "https://t.me/somechannel", locator.ErrInvalidFormat},
		{"non-numeric id", "https://t.me/somechannel/abc", locator.ErrInvalidFormat},
		{"reversed range", "https://t.me/somechannel/50-45", locator.ErrReversedRange},
		{"reversed range with whitespace", "https://t.me/somechannel/50 - 45", locator.ErrReversedRange},
		{"private link missing chat id", "https://t.me/c/500", locator.ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := locator.Parse(tt.text)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
		})
	}
}

func TestCount(t *testing.T) {
	loc, err := locator.Parse("https://t.me/somechannel/10-12")
	require.NoError(t, err)
	assert.Equal(t, int64(3), loc.Count())
}

func TestIsJoinLink(t *testing.T) {
	assert.True(t, locator.IsJoinLink("https://t.me/+AbCdEf123"))
	assert.True(t, locator.IsJoinLink("https://t.me/joinchat/AbCdEf123"))
	assert.False(t, locator.IsJoinLink("https://t.me/somechannel/1"))
}

func TestIsLink(t *testing.T) {
	assert.True(t, locator.IsLink("https://t.me/somechannel/1"))
	assert.False(t, locator.IsLink("/start"))
}
