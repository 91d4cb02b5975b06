// Package classify decides the payload kind of a fetched message once, as a
// closed tagged variant the rest of the pipeline switches on.
package classify

import "github.com/italolelis/restricted_saver/internal/telegram"

// Kind is the payload kind of one message.
type Kind int

const (
	Unrecognized Kind = iota
	Text
	Document
	Video
	Animation
	Sticker
	Voice
	Audio
	Photo
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Document:
		return "document"
	case Video:
		return "video"
	case Animation:
		return "animation"
	case Sticker:
		return "sticker"
	case Voice:
		return "voice"
	case Audio:
		return "audio"
	case Photo:
		return "photo"
	default:
		return "unrecognized"
	}
}

// IsBinary reports whether the kind requires a staging file.
func (k Kind) IsBinary() bool {
	return k != Text && k != Unrecognized
}

// Classify inspects one message and returns its kind. When an item matches
// multiple predicates the first match in declaration order wins.
func Classify(msg *telegram.Message) Kind {
	if msg == nil {
		return Unrecognized
	}

	switch {
	case msg.Document != nil:
		return Document
	case msg.Video != nil:
		return Video
	case msg.Animation != nil:
		return Animation
	case msg.Sticker != nil:
		return Sticker
	case msg.Voice != nil:
		return Voice
	case msg.Audio != nil:
		return Audio
	case msg.Photo != nil:
		return Photo
	case msg.Text != "":
		return Text
	default:
		return Unrecognized
	}
}

// Media returns the winning media attribute for binary kinds, nil otherwise.
func Media(msg *telegram.Message, kind Kind) *telegram.FileMeta {
	switch kind {
	case Document:
		return msg.Document
	case Video:
		return msg.Video
	case Animation:
		return msg.Animation
	case Sticker:
		return msg.Sticker
	case Voice:
		return msg.Voice
	case Audio:
		return msg.Audio
	case Photo:
		return msg.Photo
	default:
		return nil
	}
}
