package client

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 60 * time.Second
	writeTimeout        = 10 * time.Second
)

// NewDialer returns a gorilla/websocket Dialer. Connections it opens
// send a ping every pingInterval and treat pongTimeout of silence as a
// failure.
func NewDialer(pingInterval, pongTimeout time.Duration) Dialer {
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	if pongTimeout <= 0 {
		pongTimeout = defaultPongTimeout
	}
	return &wsDialer{
		dialer:       websocket.DefaultDialer,
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
	}
}

type wsDialer struct {
	dialer       *websocket.Dialer
	pingInterval time.Duration
	pongTimeout  time.Duration
}

func (d *wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	ws, _, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	c := &wsConn{ws: ws, done: make(chan struct{}), pongTimeout: d.pongTimeout}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(d.pongTimeout))
	})
	ws.SetReadDeadline(time.Now().Add(d.pongTimeout))
	go c.pingLoop(d.pingInterval)
	return c, nil
}

type wsConn struct {
	ws          *websocket.Conn
	done        chan struct{}
	closeOnce   sync.Once
	pongTimeout time.Duration
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err == nil {
		// Any traffic proves the peer is alive.
		c.ws.SetReadDeadline(time.Now().Add(c.pongTimeout))
	}
	return data, err
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

// pingLoop sends pings until the connection is closed. WriteControl is
// safe to call concurrently with ReadMessage.
func (c *wsConn) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
