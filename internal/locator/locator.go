// Package locator parses requester-supplied message links into a source peer
// plus an inclusive item-id range.
package locator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/italolelis/restricted_saver/internal/telegram"
)

var (
	// ErrNotALink is returned for text that does not contain a message link.
	ErrNotALink = errors.New("locator: not a message link")

	// ErrInvalidFormat is returned for links missing segments or carrying a
	// non-numeric item id.
	ErrInvalidFormat = errors.New("locator: invalid link format")

	// ErrReversedRange is returned when the range end precedes the start.
	// The range is never auto-corrected.
	ErrReversedRange = errors.New("locator: range end precedes start")
)

const linkPrefix = "https://t.me/"

// Locator is a parsed reference to a source chat plus an inclusive item-id
// range. Immutable once parsed.
type Locator struct {
	Peer    telegram.Peer
	StartID int64
	EndID   int64
}

// Count returns the number of items the range spans.
func (l Locator) Count() int64 {
	return l.EndID - l.StartID + 1
}

// IsLink reports whether the text looks like a message link.
func IsLink(text string) bool {
	return strings.Contains(text, linkPrefix)
}

// IsJoinLink reports whether the text is a chat invite link rather than a
// message link.
func IsJoinLink(text string) bool {
	return strings.Contains(text, linkPrefix+"+") || strings.Contains(text, linkPrefix+"joinchat/")
}

// Parse extracts a Locator from a line of text containing a t.me message
// link. Ranges are written as "start-end" or a single id; whitespace around
// the separator is insignificant.
func Parse(text string) (Locator, error) {
	idx := strings.Index(text, linkPrefix)
	if idx < 0 {
		return Locator{}, ErrNotALink
	}

	segments := strings.Split(strings.TrimSpace(text[idx:]), "/")
	// segments: ["https:", "", "t.me", ...path]
	if len(segments) < 5 {
		return Locator{}, fmt.Errorf("%w: missing path segments", ErrInvalidFormat)
	}

	path := segments[3:]

	start, end, err := parseRange(path[len(path)-1])
	if err != nil {
		return Locator{}, err
	}

	loc := Locator{StartID: start, EndID: end}

	switch path[0] {
	case "c":
		if len(path) < 3 {
			return Locator{}, fmt.Errorf("%w: private link missing chat id", ErrInvalidFormat)
		}

		chatID, err := strconv.ParseInt("-100"+path[1], 10, 64)
		if err != nil {
			return Locator{}, fmt.Errorf("%w: non-numeric chat id %q", ErrInvalidFormat, path[1])
		}

		loc.Peer = telegram.Peer{Kind: telegram.PeerPrivate, ChatID: chatID}
	case "b":
		if len(path) < 3 || path[1] == "" {
			return Locator{}, fmt.Errorf("%w: bot link missing username", ErrInvalidFormat)
		}

		loc.Peer = telegram.Peer{Kind: telegram.PeerBot, Username: path[1]}
	default:
		if path[0] == "" {
			return Locator{}, fmt.Errorf("%w: missing username", ErrInvalidFormat)
		}

		loc.Peer = telegram.Peer{Kind: telegram.PeerPublic, Username: path[0]}
	}

	return loc, nil
}

func parseRange(raw string) (int64, int64, error) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, "?single", ""))

	parts := strings.SplitN(raw, "-", 2)

	start, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: non-numeric item id %q", ErrInvalidFormat, parts[0])
	}

	end := start

	if len(parts) == 2 {
		end, err = strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: non-numeric item id %q", ErrInvalidFormat, parts[1])
		}
	}

	if end < start {
		return 0, 0, fmt.Errorf("%w: %d-%d", ErrReversedRange, start, end)
	}

	return start, end, nil
}
