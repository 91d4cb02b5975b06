package botapi

import (
	"encoding/json"

	"github.com/italolelis/restricted_saver/internal/telegram"
)

// Incoming JSON shapes, reduced to the fields the core consumes.

type wireUpdate struct {
	UpdateID int64        `json:"update_id"`
	Message  *wireMessage `json:"message"`
}

type wireMessage struct {
	MessageID       int64           `json:"message_id"`
	From            *wireUser       `json:"from"`
	Chat            wireChat        `json:"chat"`
	Text            string          `json:"text"`
	Caption         string          `json:"caption"`
	Entities        []wireEntity    `json:"entities"`
	CaptionEntities []wireEntity    `json:"caption_entities"`
	ReplyTo         *wireMessage    `json:"reply_to_message"`
	Document        *wireDocument   `json:"document"`
	Video           *wireVideo      `json:"video"`
	Animation       *wireVideo      `json:"animation"`
	Sticker         *wireSticker    `json:"sticker"`
	Voice           *wireAudio      `json:"voice"`
	Audio           *wireAudio      `json:"audio"`
	Photo           []wirePhotoSize `json:"photo"`
}

type wireUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

func (u *wireUser) name() string {
	if u == nil {
		return ""
	}

	if u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}

	return u.FirstName
}

type wireChat struct {
	ID int64 `json:"id"`
}

type wireEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	URL    string `json:"url,omitempty"`
}

type wireThumb struct {
	FileID string `json:"file_id"`
}

type wireDocument struct {
	FileID    string     `json:"file_id"`
	FileName  string     `json:"file_name"`
	FileSize  int64      `json:"file_size"`
	MimeType  string     `json:"mime_type"`
	Thumbnail *wireThumb `json:"thumbnail"`
}

type wireVideo struct {
	FileID    string     `json:"file_id"`
	FileName  string     `json:"file_name"`
	FileSize  int64      `json:"file_size"`
	MimeType  string     `json:"mime_type"`
	Duration  int        `json:"duration"`
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	Thumbnail *wireThumb `json:"thumbnail"`
}

type wireSticker struct {
	FileID    string     `json:"file_id"`
	FileSize  int64      `json:"file_size"`
	Thumbnail *wireThumb `json:"thumbnail"`
}

type wireAudio struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	MimeType string `json:"mime_type"`
	Duration int    `json:"duration"`
}

type wirePhotoSize struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

func (m *wireMessage) toMessage() *telegram.Message {
	if m == nil {
		return nil
	}

	msg := &telegram.Message{
		ID:      m.MessageID,
		ChatID:  m.Chat.ID,
		Text:    m.Text,
		Caption: m.Caption,
	}

	if m.From != nil {
		msg.SenderID = m.From.ID
	}

	entities := m.Entities
	if len(entities) == 0 {
		entities = m.CaptionEntities
	}

	for _, e := range entities {
		msg.Entities = append(msg.Entities, telegram.Entity{
			Kind:   telegram.EntityKind(e.Type),
			Offset: e.Offset,
			Length: e.Length,
			URL:    e.URL,
		})
	}

	if m.Document != nil {
		msg.Document = &telegram.FileMeta{
			FileID:      m.Document.FileID,
			FileName:    m.Document.FileName,
			Size:        m.Document.FileSize,
			MimeType:    m.Document.MimeType,
			ThumbFileID: thumbID(m.Document.Thumbnail),
		}
	}

	if m.Video != nil {
		msg.Video = videoMeta(m.Video)
	}

	if m.Animation != nil {
		msg.Animation = videoMeta(m.Animation)
	}

	if m.Sticker != nil {
		msg.Sticker = &telegram.FileMeta{
			FileID:      m.Sticker.FileID,
			Size:        m.Sticker.FileSize,
			ThumbFileID: thumbID(m.Sticker.Thumbnail),
		}
	}

	if m.Voice != nil {
		msg.Voice = audioMeta(m.Voice)
	}

	if m.Audio != nil {
		msg.Audio = audioMeta(m.Audio)
	}

	// Photos arrive as a size ladder; the last entry is the largest.
	if len(m.Photo) > 0 {
		largest := m.Photo[len(m.Photo)-1]
		msg.Photo = &telegram.FileMeta{
			FileID: largest.FileID,
			Size:   largest.FileSize,
			Width:  largest.Width,
			Height: largest.Height,
		}
	}

	return msg
}

func videoMeta(v *wireVideo) *telegram.FileMeta {
	return &telegram.FileMeta{
		FileID:      v.FileID,
		FileName:    v.FileName,
		Size:        v.FileSize,
		MimeType:    v.MimeType,
		ThumbFileID: thumbID(v.Thumbnail),
		Duration:    v.Duration,
		Width:       v.Width,
		Height:      v.Height,
	}
}

func audioMeta(a *wireAudio) *telegram.FileMeta {
	return &telegram.FileMeta{
		FileID:   a.FileID,
		FileName: a.FileName,
		Size:     a.FileSize,
		MimeType: a.MimeType,
		Duration: a.Duration,
	}
}

func thumbID(t *wireThumb) string {
	if t == nil {
		return ""
	}

	return t.FileID
}

// encodeEntities serializes rich-text entities into the API's JSON form.
func encodeEntities(entities []telegram.Entity) string {
	out := make([]wireEntity, 0, len(entities))

	for _, e := range entities {
		out = append(out, wireEntity{
			Type:   string(e.Kind),
			Offset: e.Offset,
			Length: e.Length,
			URL:    e.URL,
		})
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return ""
	}

	return string(encoded)
}
