package mockserver

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialTestWS creates a test HTTP server that upgrades to WebSocket and returns
// the server-side connection. The caller must close both the server and the
// returned connection.
func dialTestWS(t *testing.T) (*httptest.Server, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- c
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	_ = clientConn.Close()

	select {
	case serverConn := <-connCh:
		return srv, serverConn
	case <-time.After(2 * time.Second):
		srv.Close()
		t.Fatal("timed out waiting for server-side WebSocket connection")
		return nil, nil
	}
}

func quietHub() *Hub {
	return NewHub(log.New(io.Discard, "", 0))
}

// TestWritePumpRemovesSubscriberOnWriteError verifies that a failed write
// unregisters the subscriber.
func TestWritePumpRemovesSubscriberOnWriteError(t *testing.T) {
	srv, serverConn := dialTestWS(t)
	defer srv.Close()

	h := quietHub()
	sub := &subscriber{conn: serverConn, hub: h, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.subs[sub] = true
	h.mu.Unlock()

	serverConn.Close()
	sub.send <- []byte(`{"source":"test"}`)
	go sub.writePump()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.Count() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("subscriber not removed after write error; Count = %d", h.Count())
}

func TestBroadcastDropsSlowSubscriber(t *testing.T) {
	srv, serverConn := dialTestWS(t)
	defer srv.Close()
	defer serverConn.Close()

	h := quietHub()
	// No writer drains this buffer.
	sub := &subscriber{conn: serverConn, hub: h, send: make(chan []byte, 1)}
	h.mu.Lock()
	h.subs[sub] = true
	h.mu.Unlock()

	h.Broadcast(Record{Source: SourceServerResponse})
	if h.Count() != 1 {
		t.Fatal("first record should fit in the buffer")
	}
	h.Broadcast(Record{Source: SourceServerResponse})
	if h.Count() != 0 {
		t.Errorf("slow subscriber should be removed, Count = %d", h.Count())
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	srv, serverConn := dialTestWS(t)
	defer srv.Close()

	h := quietHub()
	sub := h.Add(serverConn)
	h.Remove(sub)
	h.Remove(sub)
	h.Close()
	if h.Count() != 0 {
		t.Errorf("Count = %d, want 0", h.Count())
	}
}

func TestStampUsesNaiveLocalTime(t *testing.T) {
	at := time.Date(2026, 7, 4, 18, 5, 9, 42000, time.Local)
	rec := stamp(Record{Source: SourceClientRequest}, at)
	if rec.Timestamp != "2026-07-04T18:05:09.000042" {
		t.Errorf("Timestamp = %q", rec.Timestamp)
	}
}
