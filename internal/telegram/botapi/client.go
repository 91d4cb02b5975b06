// Package botapi implements the requester-facing surface (Messenger and
// UpdateSource) over the Telegram HTTP bot API. The session layer that
// reaches restricted sources speaks a different protocol and is provided by
// a separate driver; see telegram.RegisterDialer.
//
// Every API failure is translated into the closed error set of the telegram
// package before it leaves this package.
package botapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/italolelis/restricted_saver/internal/telegram"
)

// DefaultBaseURL is the public bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// Client talks to one bot identity. Safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		// No global timeout; getUpdates long-polls. Per-call deadlines come
		// from ctx.
		httpClient: &http.Client{},
	}
}

var (
	_ telegram.Messenger    = (*Client)(nil)
	_ telegram.UpdateSource = (*Client)(nil)
)

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// APIError is a bot API failure that maps to none of the closed error kinds.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("botapi: %d %s", e.Code, e.Description)
}

// call invokes one form-encoded API method and decodes its result into out.
func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.methodURL(method), strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req, out)
}

// upload invokes one multipart API method, streaming the given files.
func (c *Client) upload(ctx context.Context, method string, fields url.Values, files []filePart, out any) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeMultipart(mw, fields, files))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), pr)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if !apiResp.OK {
		retryAfter := 0
		if apiResp.Parameters != nil {
			retryAfter = apiResp.Parameters.RetryAfter
		}

		return translate(apiResp.ErrorCode, apiResp.Description, retryAfter)
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(apiResp.Result, out); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}

	return nil
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

// translate maps a bot API failure onto the closed error set. Anything
// unrecognized stays an *APIError.
func translate(code int, desc string, retryAfter int) error {
	base := &APIError{Code: code, Description: desc}
	lower := strings.ToLower(desc)

	switch {
	case code == http.StatusTooManyRequests:
		return &telegram.FloodWaitError{
			RetryAfter: time.Duration(retryAfter) * time.Second,
			Err:        base,
		}
	case strings.Contains(lower, "bot was blocked by the user"):
		return fmt.Errorf("%w: %s", telegram.ErrUserBlocked, desc)
	case strings.Contains(lower, "user is deactivated"):
		return fmt.Errorf("%w: %s", telegram.ErrUserDeactivated, desc)
	case strings.Contains(lower, "username_not_occupied"),
		strings.Contains(lower, "username not occupied"):
		return fmt.Errorf("%w: %s", telegram.ErrUsernameNotOccupied, desc)
	case strings.Contains(lower, "chat not found"),
		strings.Contains(lower, "user not found"),
		strings.Contains(lower, "peer_id_invalid"):
		return fmt.Errorf("%w: %s", telegram.ErrPeerInvalid, desc)
	case strings.Contains(lower, "user_already_participant"):
		return fmt.Errorf("%w: %s", telegram.ErrAlreadyParticipant, desc)
	case strings.Contains(lower, "invite_hash_expired"):
		return fmt.Errorf("%w: %s", telegram.ErrInviteExpired, desc)
	default:
		return base
	}
}

// filePart is one file attached to a multipart upload.
type filePart struct {
	field    string
	path     string
	progress func(done, total int64)
}

func writeMultipart(mw *multipart.Writer, fields url.Values, files []filePart) error {
	defer mw.Close()

	for key := range fields {
		if err := mw.WriteField(key, fields.Get(key)); err != nil {
			return err
		}
	}

	for _, file := range files {
		if err := writeFilePart(mw, file); err != nil {
			return err
		}
	}

	return nil
}

func writeFilePart(mw *multipart.Writer, file filePart) error {
	f, err := os.Open(file.path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	part, err := mw.CreateFormFile(file.field, filepath.Base(file.path))
	if err != nil {
		return err
	}

	_, err = io.Copy(part, &progressReader{
		reader:   f,
		total:    info.Size(),
		progress: file.progress,
	})

	return err
}

// progressReader reports cumulative bytes read to a callback.
type progressReader struct {
	reader   io.Reader
	total    int64
	done     int64
	progress func(done, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.reader.Read(b)
	if n > 0 {
		p.done += int64(n)

		if p.progress != nil {
			p.progress(p.done, p.total)
		}
	}

	return n, err
}
