package mockserver

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	s := NewServer(opts)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Hub().Close()
		srv.Close()
	})
	return s, srv
}

// subscribe connects to /ws/logs and waits until the hub has registered
// the subscriber.
func subscribe(t *testing.T, s *Server, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	before := s.Hub().Count()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/logs"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for s.Hub().Count() <= before {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for subscriber registration")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readRecord(t *testing.T, conn *websocket.Conn) (Record, []byte) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return rec, data
}

func send(t *testing.T, srv *httptest.Server, method, path, body string, header http.Header) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, out
}

func TestRegisterAndLogin(t *testing.T) {
	_, srv := newTestServer(t, Options{})

	tests := []struct {
		name       string
		path, body string
		wantStatus int
		wantField  string
		wantValue  string
	}{
		{"register", "/register/", `{"username":"alice","password":"pw"}`, 200, "message", "User 'alice' registered"},
		{"register duplicate", "/register/", `{"username":"alice","password":"x"}`, 400, "detail", "Username already registered"},
		{"login wrong password", "/login/", `{"username":"alice","password":"nope"}`, 401, "detail", "Invalid username or password"},
		{"login unknown user", "/login/", `{"username":"bob","password":"pw"}`, 401, "detail", "Invalid username or password"},
		{"login", "/login/", `{"username":"alice","password":"pw"}`, 200, "message", "User 'alice' logged in"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := send(t, srv, http.MethodPost, tt.path, tt.body, nil)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if body[tt.wantField] != tt.wantValue {
				t.Errorf("%s = %v, want %q", tt.wantField, body[tt.wantField], tt.wantValue)
			}
		})
	}
}

func TestUserRoutes(t *testing.T) {
	_, srv := newTestServer(t, Options{})

	status, body := send(t, srv, http.MethodGet, "/user/a%20b%2Fc/", "", nil)
	if status != 404 || body["detail"] != "User not found" {
		t.Fatalf("get missing user = %d %v", status, body)
	}

	send(t, srv, http.MethodPost, "/register/", `{"username":"a b/c","password":"old"}`, nil)

	status, body = send(t, srv, http.MethodGet, "/user/a%20b%2Fc/", "", nil)
	if status != 200 || body["username"] != "a b/c" {
		t.Fatalf("get user = %d %v", status, body)
	}

	status, body = send(t, srv, http.MethodPut, "/user/a%20b%2Fc/", `{"password":"new"}`, nil)
	if status != 200 || body["message"] != "Password for user 'a b/c' updated" {
		t.Fatalf("update = %d %v", status, body)
	}

	status, _ = send(t, srv, http.MethodPost, "/login/", `{"username":"a b/c","password":"new"}`, nil)
	if status != 200 {
		t.Errorf("login with new password = %d, want 200", status)
	}

	status, body = send(t, srv, http.MethodPut, "/user/ghost/", `{"password":"x"}`, nil)
	if status != 404 || body["detail"] != "User not found" {
		t.Errorf("update missing user = %d %v", status, body)
	}
}

func TestValidationErrors(t *testing.T) {
	_, srv := newTestServer(t, Options{})

	status, body := send(t, srv, http.MethodPost, "/register/", `{"username":"x"}`, nil)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", status)
	}
	list, ok := body["detail"].([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("detail = %#v, want one field error", body["detail"])
	}
	entry := list[0].(map[string]any)
	if entry["msg"] != "Field required" {
		t.Errorf("msg = %v", entry["msg"])
	}

	status, _ = send(t, srv, http.MethodPost, "/login/", `not json`, nil)
	if status != http.StatusUnprocessableEntity {
		t.Errorf("malformed body status = %d, want 422", status)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	_, srv := newTestServer(t, Options{})
	resp, err := http.Get(srv.URL + "/register/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestPreflight(t *testing.T) {
	_, srv := newTestServer(t, Options{})
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/login/", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight = %d %v", resp.StatusCode, resp.Header)
	}
}

func TestGenerateEcho(t *testing.T) {
	_, srv := newTestServer(t, Options{})

	status, body := send(t, srv, http.MethodPost, "/llm/generate", `{"username":"alice","prompt":"hi"}`, nil)
	if status != 401 || body["detail"] != "User not found or not authenticated" {
		t.Fatalf("unknown user = %d %v", status, body)
	}

	send(t, srv, http.MethodPost, "/register/", `{"username":"alice","password":"pw"}`, nil)
	status, body = send(t, srv, http.MethodPost, "/llm/generate", `{"username":"alice","prompt":"hi"}`, nil)
	if status != 200 || body["text"] != "Echo: hi" {
		t.Errorf("echo = %d %v", status, body)
	}
}

func TestBroadcastsExchange(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 30, 15, 123456000, time.Local)
	s, srv := newTestServer(t, Options{Now: func() time.Time { return fixed }})
	conn := subscribe(t, s, srv)

	send(t, srv, http.MethodPost, "/register/", `{"username":"alice","password":"hunter2"}`,
		http.Header{"X-Request-Id": {"req-1234567890"}})

	req, raw := readRecord(t, conn)
	if req.Source != SourceClientRequest || req.Method != "POST" || req.URL != "/register/" {
		t.Errorf("request record = %+v", req)
	}
	if req.RequestID != "req-1234567890" {
		t.Errorf("request_id = %q", req.RequestID)
	}
	if req.Timestamp != "2026-03-01T09:30:15.123456" {
		t.Errorf("timestamp = %q", req.Timestamp)
	}
	if bytes.Contains(raw, []byte("hunter2")) {
		t.Error("password must not be broadcast")
	}
	if bytes.Contains(raw, []byte(`"status"`)) {
		t.Error("request record should omit status")
	}

	resp, raw := readRecord(t, conn)
	if resp.Source != SourceServerResponse || resp.Status != 200 || resp.RequestID != "req-1234567890" {
		t.Errorf("response record = %+v", resp)
	}
	if !bytes.Contains(raw, []byte(`"message":"User 'alice' registered"`)) {
		t.Errorf("response payload missing: %s", raw)
	}
}

func TestBroadcastGeneratesRequestID(t *testing.T) {
	s, srv := newTestServer(t, Options{})
	conn := subscribe(t, s, srv)

	send(t, srv, http.MethodGet, "/user/nobody/", "", nil)
	rec, _ := readRecord(t, conn)
	if len(rec.RequestID) != 36 {
		t.Errorf("request_id = %q, want a generated UUID", rec.RequestID)
	}
}
