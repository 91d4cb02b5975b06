package mtproto

import (
	"bytes"
	"testing"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tdclient "github.com/gotd/td/telegram"
)

func newTestConn(t *testing.T) *conn {
	t.Helper()

	return newConn(tdclient.NewClient(1, "hash", tdclient.Options{}), func() error { return nil })
}

func mediaMessage(id int, caption string, media tg.MessageMediaClass) *tg.Message {
	m := &tg.Message{ID: id, Message: caption}
	m.SetMedia(media)

	return m
}

func TestConvert_TextWithEntities(t *testing.T) {
	c := newTestConn(t)

	m := &tg.Message{
		ID:      5,
		Message: "hello",
		Entities: []tg.MessageEntityClass{
			&tg.MessageEntityBold{Offset: 0, Length: 5},
			&tg.MessageEntityTextURL{Offset: 0, Length: 5, URL: "https://example.com"},
			&tg.MessageEntityBankCard{Offset: 0, Length: 5}, // no counterpart, dropped
		},
	}

	out := c.convert(m)

	assert.Equal(t, int64(5), out.ID)
	assert.Equal(t, "hello", out.Text)
	require.Len(t, out.Entities, 2)
	assert.EqualValues(t, "bold", out.Entities[0].Kind)
	assert.EqualValues(t, "text_link", out.Entities[1].Kind)
	assert.Equal(t, "https://example.com", out.Entities[1].URL)
}

func TestConvert_VideoDocument(t *testing.T) {
	c := newTestConn(t)

	doc := &tg.Document{
		ID:            11,
		AccessHash:    22,
		FileReference: []byte{1, 2},
		Size:          2048,
		MimeType:      "video/mp4",
		Attributes: []tg.DocumentAttributeClass{
			&tg.DocumentAttributeFilename{FileName: "clip.mp4"},
			&tg.DocumentAttributeVideo{Duration: 9, W: 640, H: 360},
		},
	}

	md := &tg.MessageMediaDocument{}
	md.SetDocument(doc)

	out := c.convert(mediaMessage(7, "the caption", md))

	require.NotNil(t, out.Video)
	assert.Nil(t, out.Document)
	assert.Equal(t, "the caption", out.Caption)
	assert.Empty(t, out.Text)
	assert.Equal(t, "clip.mp4", out.Video.FileName)
	assert.Equal(t, int64(2048), out.Video.Size)
	assert.Equal(t, 9, out.Video.Duration)
	assert.Equal(t, 640, out.Video.Width)
	assert.Equal(t, 360, out.Video.Height)

	// The payload is downloadable through the registered handle.
	ref, ok := c.lookup(out.Video.FileID)
	require.True(t, ok)
	assert.Equal(t, int64(2048), ref.size)
}

func TestConvert_StickerWinsOverVideoAttributes(t *testing.T) {
	c := newTestConn(t)

	doc := &tg.Document{
		ID:   12,
		Size: 64,
		Attributes: []tg.DocumentAttributeClass{
			&tg.DocumentAttributeVideo{Duration: 3, W: 512, H: 512},
			&tg.DocumentAttributeSticker{},
		},
	}

	md := &tg.MessageMediaDocument{}
	md.SetDocument(doc)

	out := c.convert(mediaMessage(8, "", md))

	assert.NotNil(t, out.Sticker)
	assert.Nil(t, out.Video)
}

func TestConvert_PhotoTakesLargestSize(t *testing.T) {
	c := newTestConn(t)

	photo := &tg.Photo{
		ID:            3,
		AccessHash:    4,
		FileReference: []byte{9},
		Sizes: []tg.PhotoSizeClass{
			&tg.PhotoSize{Type: "m", Size: 100},
			&tg.PhotoSize{Type: "x", Size: 500},
		},
	}

	mp := &tg.MessageMediaPhoto{}
	mp.SetPhoto(photo)

	out := c.convert(mediaMessage(9, "pic", mp))

	require.NotNil(t, out.Photo)
	assert.Equal(t, int64(500), out.Photo.Size)
	assert.Equal(t, "pic", out.Caption)

	ref, ok := c.lookup(out.Photo.FileID)
	require.True(t, ok)
	assert.Equal(t, int64(500), ref.size)
}

func TestProgressWriter_ReportsCumulativeBytes(t *testing.T) {
	var buf bytes.Buffer

	type sample struct{ done, total int64 }
	var samples []sample

	w := &progressWriter{w: &buf, total: 10, fn: func(done, total int64) {
		samples = append(samples, sample{done, total})
	}}

	_, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	_, err = w.Write([]byte("world"))
	require.NoError(t, err)

	require.Len(t, samples, 2)
	assert.Equal(t, sample{5, 10}, samples[0])
	assert.Equal(t, sample{10, 10}, samples[1])
	assert.Equal(t, "helloworld", buf.String())
}
