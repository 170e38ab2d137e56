// Package feed consumes the upstream change-signal websocket. Signals say
// that some odds changed upstream; they never carry payloads, only the keys
// identifying what changed.
package feed

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval     = 30 * time.Second
	maxReconnectWait = 60 * time.Second
	writeTimeout     = 10 * time.Second
)

// SignalHandler receives change signals and connection-state transitions.
// The stream session implements it.
type SignalHandler interface {
	HandleSignal(keys []string)
	SetConnected(connected bool)
}

// Message is one inbound signal frame.
type Message struct {
	Type      string   `json:"type"`
	Keys      []string `json:"keys"`
	Count     int      `json:"count,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// Consumer maintains one websocket subscription to the signal feed,
// reconnecting with exponential backoff for as long as its context lives.
type Consumer struct {
	url       string
	handler   SignalHandler
	baseDelay time.Duration

	mu        sync.Mutex
	connected bool
}

// NewConsumer creates a consumer for the given feed URL. baseDelay is the
// initial reconnect wait; it doubles per failed attempt up to a cap.
func NewConsumer(url string, handler SignalHandler, baseDelay time.Duration) *Consumer {
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &Consumer{url: url, handler: handler, baseDelay: baseDelay}
}

// Connected reports whether the feed is currently attached.
func (c *Consumer) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Consumer) setConnected(connected bool) {
	c.mu.Lock()
	c.connected = connected
	c.mu.Unlock()
	c.handler.SetConnected(connected)
}

// Run dials and listens until ctx is cancelled. Each successful connection
// resets the backoff.
func (c *Consumer) Run(ctx context.Context) {
	delay := c.baseDelay
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			log.Printf("signal feed dial failed: %v (retrying in %v)", err, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			delay *= 2
			if delay > maxReconnectWait {
				delay = maxReconnectWait
			}
			continue
		}

		log.Printf("signal feed connected: %s", c.url)
		delay = c.baseDelay
		c.setConnected(true)
		c.listen(ctx, conn)
		c.setConnected(false)
		conn.Close()
	}
}

// listen reads frames until the connection breaks or ctx is cancelled. A
// background pinger keeps intermediaries from idling the connection out.
func (c *Consumer) listen(ctx context.Context, conn *websocket.Conn) {
	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go c.ping(pingCtx, conn)

	// Unblock the read loop when ctx is cancelled.
	go func() {
		<-pingCtx.Done()
		conn.Close()
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				log.Printf("signal feed read failed: %v", err)
			}
			return
		}

		if msg.Type != "update" || len(msg.Keys) == 0 {
			continue
		}
		c.handler.HandleSignal(msg.Keys)
	}
}

func (c *Consumer) ping(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(writeTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
