package botapi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/italolelis/restricted_saver/internal/telegram"
	"github.com/italolelis/restricted_saver/internal/telegram/botapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedCall struct {
	method string
	form   map[string]string
}

// apiServer fakes the bot API: one canned response per method.
type apiServer struct {
	mu        sync.Mutex
	calls     []capturedCall
	responses map[string]string
}

func (s *apiServer) handler(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	method := parts[len(parts)-1]

	_ = r.ParseMultipartForm(1 << 20)
	_ = r.ParseForm()

	form := make(map[string]string)
	for key, values := range r.Form {
		if len(values) > 0 {
			form[key] = values[0]
		}
	}

	if r.MultipartForm != nil {
		for key, values := range r.MultipartForm.Value {
			if len(values) > 0 {
				form[key] = values[0]
			}
		}
	}

	s.mu.Lock()
	s.calls = append(s.calls, capturedCall{method: method, form: form})
	response, ok := s.responses[method]
	s.mu.Unlock()

	if !ok {
		response = `{"ok":true,"result":{}}`
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, response)
}

func (s *apiServer) lastCall() capturedCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[len(s.calls)-1]
}

func newTestClient(t *testing.T, responses map[string]string) (*botapi.Client, *apiServer) {
	t.Helper()

	srv := &apiServer{responses: responses}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	t.Cleanup(ts.Close)

	return botapi.NewClient(ts.URL, "test-token"), srv
}

func TestSendText(t *testing.T) {
	client, srv := newTestClient(t, map[string]string{
		"sendMessage": `{"ok":true,"result":{"message_id":55,"chat":{"id":7},"text":"hello"}}`,
	})

	msg, err := client.SendText(context.Background(), 7, "hello", nil, 99)
	require.NoError(t, err)

	assert.Equal(t, int64(55), msg.ID)
	assert.Equal(t, int64(7), msg.ChatID)

	call := srv.lastCall()
	assert.Equal(t, "sendMessage", call.method)
	assert.Equal(t, "7", call.form["chat_id"])
	assert.Equal(t, "hello", call.form["text"])
	assert.Equal(t, "99", call.form["reply_to_message_id"])
}

func TestSendText_EncodesEntities(t *testing.T) {
	client, srv := newTestClient(t, nil)

	entities := []telegram.Entity{{Kind: "bold", Offset: 0, Length: 5}}

	_, err := client.SendText(context.Background(), 7, "hello", entities, 0)
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(srv.lastCall().form["entities"]), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "bold", decoded[0]["type"])
}

func TestErrorTranslation(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     error
	}{
		{
			"blocked",
			`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`,
			telegram.ErrUserBlocked,
		},
		{
			"deactivated",
			`{"ok":false,"error_code":403,"description":"Forbidden: user is deactivated"}`,
			telegram.ErrUserDeactivated,
		},
		{
			"chat not found",
			`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`,
			telegram.ErrPeerInvalid,
		},
		{
			"username not occupied",
			`{"ok":false,"error_code":400,"description":"Bad Request: USERNAME_NOT_OCCUPIED"}`,
			telegram.ErrUsernameNotOccupied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, map[string]string{"sendMessage": tt.response})

			_, err := client.SendText(context.Background(), 7, "x", nil, 0)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestErrorTranslation_FloodWait(t *testing.T) {
	client, _ := newTestClient(t, map[string]string{
		"sendMessage": `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 31","parameters":{"retry_after":31}}`,
	})

	_, err := client.SendText(context.Background(), 7, "x", nil, 0)

	fw, ok := telegram.AsFloodWait(err)
	require.True(t, ok)
	assert.Equal(t, 31*time.Second, fw.RetryAfter)
}

func TestErrorTranslation_UnknownStaysAPIError(t *testing.T) {
	client, _ := newTestClient(t, map[string]string{
		"sendMessage": `{"ok":false,"error_code":400,"description":"Bad Request: message is too long"}`,
	})

	_, err := client.SendText(context.Background(), 7, "x", nil, 0)
	require.Error(t, err)

	var apiErr *botapi.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Code)
}

func TestSendDocument_Multipart(t *testing.T) {
	client, srv := newTestClient(t, nil)

	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	var (
		mu      sync.Mutex
		samples []int64
	)

	_, err := client.SendDocument(context.Background(), 7, telegram.Upload{
		Path:    path,
		Caption: "a file",
		Progress: func(done, total int64) {
			mu.Lock()
			samples = append(samples, done)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	call := srv.lastCall()
	assert.Equal(t, "sendDocument", call.method)
	assert.Equal(t, "a file", call.form["caption"])

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, samples, "upload progress must be reported")
	assert.Equal(t, int64(10), samples[len(samples)-1])
}

func TestSendVideo_CarriesMetadata(t *testing.T) {
	client, srv := newTestClient(t, nil)

	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("video"), 0o644))

	_, err := client.SendVideo(context.Background(), 7, telegram.Upload{
		Path:     path,
		Duration: 30,
		Width:    1280,
		Height:   720,
	})
	require.NoError(t, err)

	call := srv.lastCall()
	assert.Equal(t, "sendVideo", call.method)
	assert.Equal(t, "30", call.form["duration"])
	assert.Equal(t, "1280", call.form["width"])
	assert.Equal(t, "720", call.form["height"])
}

func TestCopyMessage_PeerAddressing(t *testing.T) {
	client, srv := newTestClient(t, nil)

	err := client.CopyMessage(context.Background(), 7,
		telegram.Peer{Kind: telegram.PeerPublic, Username: "somechannel"}, 1234, 0)
	require.NoError(t, err)

	call := srv.lastCall()
	assert.Equal(t, "copyMessage", call.method)
	assert.Equal(t, "@somechannel", call.form["from_chat_id"])
	assert.Equal(t, "1234", call.form["message_id"])

	err = client.CopyMessage(context.Background(), 7,
		telegram.Peer{Kind: telegram.PeerPrivate, ChatID: -100123}, 1234, 0)
	require.NoError(t, err)

	assert.Equal(t, "-100123", srv.lastCall().form["from_chat_id"])
}

func TestUpdates_MapsIncomingMessages(t *testing.T) {
	response := `{"ok":true,"result":[
		{"update_id":1,"message":{
			"message_id":10,
			"from":{"id":7,"first_name":"Alice","last_name":"A"},
			"chat":{"id":7},
			"text":"https://t.me/somechannel/5",
			"reply_to_message":{"message_id":9,"chat":{"id":7},"text":"earlier"}
		}},
		{"update_id":2,"message":{
			"message_id":11,
			"from":{"id":8,"first_name":"Bob"},
			"chat":{"id":8},
			"video":{"file_id":"v1","duration":12,"width":640,"height":480}
		}}
	]}`

	client, _ := newTestClient(t, map[string]string{"getUpdates": response})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, err := client.Updates(ctx)
	require.NoError(t, err)

	first := <-updates
	require.NotNil(t, first.Message)
	assert.Equal(t, int64(10), first.Message.ID)
	assert.Equal(t, int64(7), first.Message.SenderID)
	assert.Equal(t, "Alice A", first.SenderName)
	require.NotNil(t, first.ReplyTo)
	assert.Equal(t, int64(9), first.ReplyTo.ID)

	second := <-updates
	require.NotNil(t, second.Message)
	require.NotNil(t, second.Message.Video)
	assert.Equal(t, 12, second.Message.Video.Duration)
	assert.Equal(t, "Bob", second.SenderName)
}
