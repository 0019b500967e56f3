package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// HTTPClient makes REST calls to the backend. Every call yields either
// the decoded payload or one of ValidationError, APIError, NetworkError
// or DecodeError.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) { c.client = hc }
}

// WithHTTPLogger sets the diagnostics logger.
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(c *HTTPClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewHTTPClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:8000").
func NewHTTPClient(baseURL string, timeout time.Duration, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register sends POST /register/.
func (c *HTTPClient) Register(ctx context.Context, username, password string) (*MessageResponse, error) {
	if err := require(field{"username", username}, field{"password", password}); err != nil {
		return nil, err
	}
	var out MessageResponse
	if err := c.do(ctx, http.MethodPost, "/register/", Credentials{Username: username, Password: password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login sends POST /login/. It does not record the session; callers do
// that with the result.
func (c *HTTPClient) Login(ctx context.Context, username, password string) (*MessageResponse, error) {
	if err := require(field{"username", username}, field{"password", password}); err != nil {
		return nil, err
	}
	var out MessageResponse
	if err := c.do(ctx, http.MethodPost, "/login/", Credentials{Username: username, Password: password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUserInfo fetches /user/{username}/.
func (c *HTTPClient) GetUserInfo(ctx context.Context, username string) (*UserInfo, error) {
	if err := require(field{"username", username}); err != nil {
		return nil, err
	}
	var out UserInfo
	if err := c.do(ctx, http.MethodGet, userPath(username), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateUserPassword sends PUT /user/{username}/.
func (c *HTTPClient) UpdateUserPassword(ctx context.Context, username, newPassword string) (*MessageResponse, error) {
	if err := require(field{"username", username}, field{"new password", newPassword}); err != nil {
		return nil, err
	}
	var out MessageResponse
	if err := c.do(ctx, http.MethodPut, userPath(username), PasswordUpdate{Password: newPassword}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AskLLM sends POST /llm/generate on behalf of username.
func (c *HTTPClient) AskLLM(ctx context.Context, username, prompt string) (*LLMResponse, error) {
	if err := require(field{"username", username}, field{"prompt", prompt}); err != nil {
		return nil, err
	}
	var out LLMResponse
	if err := c.do(ctx, http.MethodPost, "/llm/generate", PromptRequest{Username: username, Prompt: prompt}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Call issues one request and returns the JSON response body. The body
// is decoded whatever the status; a non-2xx status becomes an APIError.
func (c *HTTPClient) Call(ctx context.Context, method, endpoint string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, endpoint, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, &NetworkError{Method: method, Endpoint: endpoint, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("api call failed", "method", method, "endpoint", endpoint, "request_id", reqID, "error", err)
		return nil, &NetworkError{Method: method, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Method: method, Endpoint: endpoint, Err: err}
	}
	c.logger.Debug("api call", "method", method, "endpoint", endpoint, "request_id", reqID,
		"status", resp.StatusCode, "duration", time.Since(start))

	isJSON := json.Valid(raw)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			Method:   method,
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Message:  errorMessage(resp, raw, isJSON),
		}
	}
	if !isJSON {
		return nil, &DecodeError{Method: method, Endpoint: endpoint, Status: resp.StatusCode, Err: fmt.Errorf("body is not JSON")}
	}
	return json.RawMessage(raw), nil
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, body, out any) error {
	raw, err := c.Call(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &DecodeError{Method: method, Endpoint: endpoint, Status: http.StatusOK, Err: err}
	}
	return nil
}

// errorMessage picks the backend detail, then the status text, then a
// generic message.
func errorMessage(resp *http.Response, raw []byte, isJSON bool) string {
	if isJSON {
		var body struct {
			Detail json.RawMessage `json:"detail"`
		}
		if json.Unmarshal(raw, &body) == nil && len(body.Detail) > 0 && string(body.Detail) != "null" {
			var s string
			if json.Unmarshal(body.Detail, &s) == nil {
				if s != "" {
					return s
				}
			} else {
				var buf bytes.Buffer
				if json.Compact(&buf, body.Detail) == nil {
					return buf.String()
				}
			}
		}
	}
	if text := statusText(resp); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP error %d", resp.StatusCode)
}

// statusText returns the reason phrase of the status line, e.g.
// "Not Found" for "404 Not Found".
func statusText(resp *http.Response) string {
	text := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))
	return strings.TrimSpace(text)
}

func userPath(username string) string {
	return "/user/" + url.PathEscape(username) + "/"
}
