// Package orchestrator is the HTTP client for the loan orchestrator service.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/comigor/loanchat-go/internal/apperr"
	"github.com/comigor/loanchat-go/internal/config"
	"github.com/comigor/loanchat-go/internal/logger"
	"github.com/comigor/loanchat-go/internal/metrics"
)

// maxErrorBody bounds how much of a failed response is kept for the error message.
const maxErrorBody = 64 << 10

// TokenFunc returns the bearer token to attach, or "" for anonymous calls.
type TokenFunc func() string

// Client talks to the orchestrator REST API.
type Client struct {
	baseURL string
	client  *http.Client
	token   TokenFunc
}

// New creates a Client. token may be nil.
func New(cfg config.APIConfig, token TokenFunc) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if token == nil {
		token = func() string { return "" }
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		token:   token,
	}
}

// Chat sends one user message.
func (c *Client) Chat(ctx context.Context, in ChatRequest) (*ChatResponse, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/chat", in)
	if err != nil {
		return nil, &apperr.TransportError{Op: "chat", Err: err}
	}
	c.authorize(req, c.token())

	var out ChatResponse
	if err := c.do(req, "chat", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History retrieves the server-side transcript of a conversation.
func (c *Client) History(ctx context.Context, conversationID string) (*History, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/chat/history/"+url.PathEscape(conversationID), nil)
	if err != nil {
		return nil, &apperr.TransportError{Op: "history", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req, c.token())

	var out History
	if err := c.do(req, "history", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadSalarySlip posts the document as multipart form data.
func (c *Client) UploadSalarySlip(ctx context.Context, applicationID, filename, mediaType string, body io.Reader) (*UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("application_id", applicationID); err != nil {
		return nil, &apperr.TransportError{Op: "upload", Err: err}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", mediaType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, &apperr.TransportError{Op: "upload", Err: err}
	}
	if _, err := io.Copy(part, body); err != nil {
		return nil, &apperr.TransportError{Op: "upload", Err: fmt.Errorf("read file: %w", err)}
	}
	if err := mw.Close(); err != nil {
		return nil, &apperr.TransportError{Op: "upload", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/underwrite/upload-salary", &buf)
	if err != nil {
		return nil, &apperr.TransportError{Op: "upload", Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	c.authorize(req, c.token())

	var out UploadResponse
	if err := c.do(req, "upload", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges credentials for an access token (OAuth2 password form).
func (c *Client) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &apperr.TransportError{Op: "login", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var out TokenResponse
	if err := c.do(req, "login", &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, &apperr.TransportError{Op: "login", Err: errors.New("response carried no access_token")}
	}
	return &out, nil
}

// Me fetches the identity behind token.
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/me", nil)
	if err != nil {
		return nil, &apperr.TransportError{Op: "me", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req, token)

	var out User
	if err := c.do(req, "me", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Signup registers a new account. It does not log in.
func (c *Client) Signup(ctx context.Context, in SignupRequest) (*User, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/auth/signup", in)
	if err != nil {
		return nil, &apperr.TransportError{Op: "signup", Err: err}
	}
	var out User
	if err := c.do(req, "signup", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, v any) (*http.Request, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) authorize(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// do executes req and decodes a 2xx JSON body into out. Every failure is
// reported as *apperr.TransportError.
func (c *Client) do(req *http.Request, op string, out any) error {
	ctx := req.Context()
	if id := logger.RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	log := logger.FromContext(ctx)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		metrics.ObserveRequest(op, "error", time.Since(start))
		log.Warn("orchestrator request failed", "op", op, "error", err)
		return &apperr.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	metrics.ObserveRequest(op, strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Warn("orchestrator returned error", "op", op, "status", resp.StatusCode)
		return &apperr.TransportError{Op: op, Status: resp.StatusCode, Body: detail(raw)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &apperr.TransportError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	log.Debug("orchestrator request ok", "op", op, "status", resp.StatusCode, "elapsed", time.Since(start))
	return nil
}

// detail extracts the human readable part of an error body. The server sends
// {"detail": "..."} or, for validation failures, {"detail": [{"msg": ...}]}.
func detail(raw []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
		return strings.TrimSpace(string(raw))
	}
	var s string
	if json.Unmarshal(body.Detail, &s) == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(body.Detail, &items) == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	return string(body.Detail)
}
