package mtproto

import (
	"github.com/gotd/td/tg"
	"github.com/italolelis/restricted_saver/internal/telegram"
)

// convert projects a raw MTProto message onto the boundary's neutral view,
// registering every media payload in the connection's media table.
func (c *conn) convert(m *tg.Message) *telegram.Message {
	out := &telegram.Message{
		ID:       int64(m.ID),
		Entities: convertEntities(m.Entities),
	}

	media, ok := m.GetMedia()
	if !ok {
		out.Text = m.Message

		return out
	}

	switch md := media.(type) {
	case *tg.MessageMediaDocument:
		docClass, ok := md.GetDocument()
		if !ok {
			out.Text = m.Message

			return out
		}

		doc, ok := docClass.AsNotEmpty()
		if !ok {
			out.Text = m.Message

			return out
		}

		out.Caption = m.Message
		c.assignDocument(out, doc)
	case *tg.MessageMediaPhoto:
		photoClass, ok := md.GetPhoto()
		if !ok {
			out.Text = m.Message

			return out
		}

		photo, ok := photoClass.AsNotEmpty()
		if !ok {
			out.Text = m.Message

			return out
		}

		out.Caption = m.Message
		out.Photo = c.photoMeta(photo)
	default:
		out.Text = m.Message
	}

	return out
}

// assignDocument classifies a document by its attributes and fills the
// matching media slot.
func (c *conn) assignDocument(out *telegram.Message, doc *tg.Document) {
	meta := &telegram.FileMeta{
		FileID:   c.register(docLocation(doc, ""), doc.Size),
		Size:     doc.Size,
		MimeType: doc.MimeType,
	}

	if thumbType, thumbSize, ok := thumbOf(doc); ok {
		meta.ThumbFileID = c.register(docLocation(doc, thumbType), thumbSize)
	}

	var (
		video, animated, sticker, voice, audio bool
	)

	for _, attr := range doc.Attributes {
		switch a := attr.(type) {
		case *tg.DocumentAttributeFilename:
			meta.FileName = a.FileName
		case *tg.DocumentAttributeVideo:
			video = true
			meta.Duration = int(a.Duration)
			meta.Width = a.W
			meta.Height = a.H
		case *tg.DocumentAttributeAnimated:
			animated = true
		case *tg.DocumentAttributeSticker:
			sticker = true
		case *tg.DocumentAttributeAudio:
			if a.Voice {
				voice = true
			} else {
				audio = true
			}

			meta.Duration = int(a.Duration)
		}
	}

	switch {
	case sticker:
		out.Sticker = meta
	case animated:
		out.Animation = meta
	case video:
		out.Video = meta
	case voice:
		out.Voice = meta
	case audio:
		out.Audio = meta
	default:
		out.Document = meta
	}
}

func (c *conn) photoMeta(photo *tg.Photo) *telegram.FileMeta {
	var (
		sizeType string
		size     int64
	)

	// The last listed size is the largest rendition.
	for _, s := range photo.Sizes {
		switch ps := s.(type) {
		case *tg.PhotoSize:
			sizeType = ps.Type
			size = int64(ps.Size)
		case *tg.PhotoSizeProgressive:
			sizeType = ps.Type
			if len(ps.Sizes) > 0 {
				size = int64(ps.Sizes[len(ps.Sizes)-1])
			}
		}
	}

	loc := &tg.InputPhotoFileLocation{
		ID:            photo.ID,
		AccessHash:    photo.AccessHash,
		FileReference: photo.FileReference,
		ThumbSize:     sizeType,
	}

	return &telegram.FileMeta{
		FileID:   c.register(loc, size),
		Size:     size,
		MimeType: "image/jpeg",
	}
}

func docLocation(doc *tg.Document, thumbSize string) *tg.InputDocumentFileLocation {
	return &tg.InputDocumentFileLocation{
		ID:            doc.ID,
		AccessHash:    doc.AccessHash,
		FileReference: doc.FileReference,
		ThumbSize:     thumbSize,
	}
}

func thumbOf(doc *tg.Document) (string, int64, bool) {
	thumbs, ok := doc.GetThumbs()
	if !ok {
		return "", 0, false
	}

	for _, t := range thumbs {
		if ps, ok := t.(*tg.PhotoSize); ok {
			return ps.Type, int64(ps.Size), true
		}
	}

	return "", 0, false
}

// convertEntities maps MTProto rich-text entities onto the kind names the
// requester-facing surface uses, dropping kinds with no counterpart.
func convertEntities(entities []tg.MessageEntityClass) []telegram.Entity {
	if len(entities) == 0 {
		return nil
	}

	out := make([]telegram.Entity, 0, len(entities))

	for _, e := range entities {
		var ent telegram.Entity

		switch v := e.(type) {
		case *tg.MessageEntityBold:
			ent = telegram.Entity{Kind: "bold", Offset: v.Offset, Length: v.Length}
		case *tg.MessageEntityItalic:
			ent = telegram.Entity{Kind: "italic", Offset: v.Offset, Length: v.Length}
		case *tg.MessageEntityUnderline:
			ent = telegram.Entity{Kind: "underline", Offset: v.Offset, Length: v.Length}
		case *tg.MessageEntityStrike:
			ent = telegram.Entity{Kind: "strikethrough", Offset: v.Offset, Length: v.Length}
		case *tg.MessageEntitySpoiler:
			ent = telegram.Entity{Kind: "spoiler", Offset: v.Offset, Length: v.Length}
		case *tg.MessageEntityCode:
			ent = telegram.Entity{Kind: "code", Offset: v.Offset, Length: v.Length}
		case *tg.MessageEntityPre:
			ent = telegram.Entity{Kind: "pre", Offset: v.Offset, Length: v.Length}
		case *tg.MessageEntityURL:
			ent = telegram.Entity{Kind: "url", Offset: v.Offset, Length: v.Length}
		case *tg.MessageEntityTextURL:
			ent = telegram.Entity{Kind: "text_link", Offset: v.Offset, Length: v.Length, URL: v.URL}
		case *tg.MessageEntityMention:
			ent = telegram.Entity{Kind: "mention", Offset: v.Offset, Length: v.Length}
		default:
			continue
		}

		out = append(out, ent)
	}

	if len(out) == 0 {
		return nil
	}

	return out
}
