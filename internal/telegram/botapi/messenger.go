package botapi

import (
	"context"
	"net/url"
	"strconv"

	"github.com/italolelis/restricted_saver/internal/classify"
	"github.com/italolelis/restricted_saver/internal/telegram"
)

func (c *Client) SendText(ctx context.Context, chatID int64, text string, entities []telegram.Entity, replyTo int64) (*telegram.Message, error) {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("text", text)

	if replyTo != 0 {
		params.Set("reply_to_message_id", strconv.FormatInt(replyTo, 10))
	}

	if len(entities) > 0 {
		params.Set("entities", encodeEntities(entities))
	}

	var msg wireMessage
	if err := c.call(ctx, "sendMessage", params, &msg); err != nil {
		return nil, err
	}

	return msg.toMessage(), nil
}

func (c *Client) SendDocument(ctx context.Context, chatID int64, up telegram.Upload) (*telegram.Message, error) {
	return c.sendFile(ctx, chatID, classify.Document, up)
}

func (c *Client) SendVideo(ctx context.Context, chatID int64, up telegram.Upload) (*telegram.Message, error) {
	return c.sendFile(ctx, chatID, classify.Video, up)
}

func (c *Client) SendAnimation(ctx context.Context, chatID int64, up telegram.Upload) (*telegram.Message, error) {
	return c.sendFile(ctx, chatID, classify.Animation, up)
}

func (c *Client) SendSticker(ctx context.Context, chatID int64, up telegram.Upload) (*telegram.Message, error) {
	return c.sendFile(ctx, chatID, classify.Sticker, up)
}

func (c *Client) SendVoice(ctx context.Context, chatID int64, up telegram.Upload) (*telegram.Message, error) {
	return c.sendFile(ctx, chatID, classify.Voice, up)
}

func (c *Client) SendAudio(ctx context.Context, chatID int64, up telegram.Upload) (*telegram.Message, error) {
	return c.sendFile(ctx, chatID, classify.Audio, up)
}

func (c *Client) SendPhoto(ctx context.Context, chatID int64, up telegram.Upload) (*telegram.Message, error) {
	return c.sendFile(ctx, chatID, classify.Photo, up)
}

// uploadMethods maps a content kind to its API method and file field.
var uploadMethods = map[classify.Kind][2]string{
	classify.Document:  {"sendDocument", "document"},
	classify.Video:     {"sendVideo", "video"},
	classify.Animation: {"sendAnimation", "animation"},
	classify.Sticker:   {"sendSticker", "sticker"},
	classify.Voice:     {"sendVoice", "voice"},
	classify.Audio:     {"sendAudio", "audio"},
	classify.Photo:     {"sendPhoto", "photo"},
}

func (c *Client) sendFile(ctx context.Context, chatID int64, kind classify.Kind, up telegram.Upload) (*telegram.Message, error) {
	method := uploadMethods[kind]

	fields := url.Values{}
	fields.Set("chat_id", strconv.FormatInt(chatID, 10))

	if up.ReplyTo != 0 {
		fields.Set("reply_to_message_id", strconv.FormatInt(up.ReplyTo, 10))
	}

	// Stickers carry no caption on this surface.
	if up.Caption != "" && kind != classify.Sticker {
		fields.Set("caption", up.Caption)

		if len(up.Entities) > 0 {
			fields.Set("caption_entities", encodeEntities(up.Entities))
		}
	}

	if kind == classify.Video || kind == classify.Animation {
		if up.Duration > 0 {
			fields.Set("duration", strconv.Itoa(up.Duration))
		}

		if up.Width > 0 {
			fields.Set("width", strconv.Itoa(up.Width))
		}

		if up.Height > 0 {
			fields.Set("height", strconv.Itoa(up.Height))
		}

		fields.Set("supports_streaming", "true")
	}

	files := []filePart{{field: method[1], path: up.Path, progress: up.Progress}}

	if up.ThumbPath != "" {
		files = append(files, filePart{field: "thumbnail", path: up.ThumbPath})
	}

	var msg wireMessage
	if err := c.upload(ctx, method[0], fields, files, &msg); err != nil {
		return nil, err
	}

	return msg.toMessage(), nil
}

func (c *Client) EditText(ctx context.Context, chatID, messageID int64, text string) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("message_id", strconv.FormatInt(messageID, 10))
	params.Set("text", text)

	return c.call(ctx, "editMessageText", params, nil)
}

func (c *Client) DeleteMessages(ctx context.Context, chatID int64, messageIDs ...int64) error {
	for _, id := range messageIDs {
		params := url.Values{}
		params.Set("chat_id", strconv.FormatInt(chatID, 10))
		params.Set("message_id", strconv.FormatInt(id, 10))

		if err := c.call(ctx, "deleteMessage", params, nil); err != nil {
			return err
		}
	}

	return nil
}

func (c *Client) CopyMessage(ctx context.Context, toChatID int64, from telegram.Peer, messageID int64, replyTo int64) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(toChatID, 10))
	params.Set("from_chat_id", peerValue(from))
	params.Set("message_id", strconv.FormatInt(messageID, 10))

	if replyTo != 0 {
		params.Set("reply_to_message_id", strconv.FormatInt(replyTo, 10))
	}

	return c.call(ctx, "copyMessage", params, nil)
}

func (c *Client) CopyTo(ctx context.Context, fromChatID, messageID, toChatID int64) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(toChatID, 10))
	params.Set("from_chat_id", strconv.FormatInt(fromChatID, 10))
	params.Set("message_id", strconv.FormatInt(messageID, 10))

	return c.call(ctx, "copyMessage", params, nil)
}

func peerValue(p telegram.Peer) string {
	if p.Kind == telegram.PeerPrivate {
		return strconv.FormatInt(p.ChatID, 10)
	}

	return "@" + p.Username
}
