package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	requirex "github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestServer(t *testing.T, handler http.HandlerFunc) (*HTTPClient, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, 5*time.Second), &calls
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func TestCallErrorMessage(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail wins", http.StatusUnauthorized, `{"detail":"Invalid username or password"}`, "Invalid username or password"},
		{"detail with markup", http.StatusBadRequest, `{"detail":"<b>X</b>"}`, "<b>X</b>"},
		{"structured detail", http.StatusUnprocessableEntity, `{"detail": [{"loc": ["body","username"]}]}`, `[{"loc":["body","username"]}]`},
		{"no detail", http.StatusNotFound, `{"error":"missing"}`, "Not Found"},
		{"empty detail", http.StatusNotFound, `{"detail":""}`, "Not Found"},
		{"null detail", http.StatusConflict, `{"detail":null}`, "Conflict"},
		{"non-json body", http.StatusInternalServerError, `oops`, "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			_, err := c.Call(context.Background(), http.MethodGet, "/thing", nil)

			var apiErr *APIError
			requirex.ErrorAs(t, err, &apiErr)
			requirex.Equal(t, tt.status, apiErr.Status)
			requirex.Equal(t, tt.want, apiErr.Message)
			requirex.Equal(t, tt.want, err.Error())
		})
	}
}

func TestCallGenericErrorWithoutStatusText(t *testing.T) {
	hc := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: 599,
			Status:     "599",
			Body:       io.NopCloser(strings.NewReader(`{}`)),
			Header:     make(http.Header),
			Request:    r,
		}, nil
	})}
	c := NewHTTPClient("http://backend.invalid", time.Second, WithHTTPClient(hc))

	_, err := c.Call(context.Background(), http.MethodGet, "/x", nil)
	requirex.EqualError(t, err, "HTTP error 599")
}

func TestCallSuccess(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/register/", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var creds Credentials
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, Credentials{Username: "alice", Password: "pw"}, creds)
		writeJSON(w, http.StatusOK, `{"status":"success","message":"User 'alice' registered"}`)
	})

	resp, err := c.Register(context.Background(), "alice", "pw")
	requirex.NoError(t, err)
	requirex.Equal(t, "User 'alice' registered", resp.Message)
}

func TestCallWithoutBodyOmitsContentType(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Content-Type"))
		writeJSON(w, http.StatusOK, `{"username":"a b"}`)
	})
	info, err := c.GetUserInfo(context.Background(), "a b")
	requirex.NoError(t, err)
	requirex.Equal(t, "a b", info.Username)
}

func TestUserPathIsEscaped(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/user/a%2Fb/", r.URL.EscapedPath())
		writeJSON(w, http.StatusOK, `{"message":"ok"}`)
	})
	_, err := c.UpdateUserPassword(context.Background(), "a/b", "new")
	requirex.NoError(t, err)
}

func TestCallSuccessWithNonJSONBody(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "<html>")
	})
	_, err := c.Call(context.Background(), http.MethodGet, "/", nil)

	var decodeErr *DecodeError
	requirex.ErrorAs(t, err, &decodeErr)
	requirex.Equal(t, http.StatusOK, decodeErr.Status)
}

func TestCallNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := NewHTTPClient(srv.URL, time.Second)

	_, err := c.Login(context.Background(), "alice", "pw")

	var netErr *NetworkError
	requirex.ErrorAs(t, err, &netErr)
	requirex.Equal(t, http.MethodPost, netErr.Method)
	requirex.Equal(t, "/login/", netErr.Endpoint)
	requirex.Contains(t, err.Error(), "POST /login/")
}

func TestCallCancelledContext(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{}`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Call(ctx, http.MethodGet, "/", nil)
	var netErr *NetworkError
	requirex.ErrorAs(t, err, &netErr)
	requirex.True(t, errors.Is(err, context.Canceled))
}

func TestValidationSkipsNetwork(t *testing.T) {
	c, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{}`)
	})
	ctx := context.Background()

	tests := []struct {
		name   string
		call   func() error
		fields []string
	}{
		{"register no password", func() error { _, err := c.Register(ctx, "alice", ""); return err }, []string{"password"}},
		{"register empty", func() error { _, err := c.Register(ctx, "", ""); return err }, []string{"username", "password"}},
		{"login no username", func() error { _, err := c.Login(ctx, "", "pw"); return err }, []string{"username"}},
		{"get user", func() error { _, err := c.GetUserInfo(ctx, ""); return err }, []string{"username"}},
		{"update password", func() error { _, err := c.UpdateUserPassword(ctx, "alice", ""); return err }, []string{"new password"}},
		{"ask llm", func() error { _, err := c.AskLLM(ctx, "alice", ""); return err }, []string{"prompt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var vErr *ValidationError
			requirex.ErrorAs(t, err, &vErr)
			requirex.Equal(t, tt.fields, vErr.Fields)
		})
	}
	requirex.Zero(t, atomic.LoadInt32(calls))
}

func TestWhitespaceIsNotEmpty(t *testing.T) {
	c, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"message":"ok"}`)
	})

	_, err := c.Register(context.Background(), " ", " ")
	requirex.NoError(t, err)
	requirex.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestValidationErrorMessage(t *testing.T) {
	requirex.Equal(t, "Please enter username and password.", (&ValidationError{Fields: []string{"username", "password"}}).Error())
	requirex.Equal(t, "Please log in first.", (&ValidationError{Message: "Please log in first."}).Error())
}

func TestAskLLM(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/llm/generate", r.URL.Path)
		var req PromptRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, PromptRequest{Username: "alice", Prompt: "hi"}, req)
		writeJSON(w, http.StatusOK, `{"text":"hello"}`)
	})
	resp, err := c.AskLLM(context.Background(), "alice", "hi")
	requirex.NoError(t, err)
	requirex.Equal(t, "hello", resp.Text)
}
