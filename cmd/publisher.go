package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	websocketWriteTimeout = 5 * time.Second
	publishAttempts       = 4
	reconnectDelay        = 500 * time.Millisecond
	maxReconnectDelay     = 4 * time.Second
)

// publisher streams run progress to a results collector over WebSocket.
// A nil publisher drops every message.
type publisher struct {
	serverURL string
	logger    *zap.Logger
	conn      *websocket.Conn
	connMu    sync.Mutex
}

func newPublisher(serverURL string, logger *zap.Logger) *publisher {
	return &publisher{serverURL: serverURL, logger: logger}
}

// connect dials the collector, doubling the delay between attempts.
func (p *publisher) connect(ctx context.Context) error {
	u, err := url.Parse(p.serverURL)
	if err != nil {
		return fmt.Errorf("invalid publish URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid publish URL: scheme must be ws or wss, got %q", u.Scheme)
	}

	delay := reconnectDelay
	var lastErr error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
		if err == nil {
			p.connMu.Lock()
			p.conn = conn
			p.connMu.Unlock()
			p.logger.Info("Connected to collector", zap.String("url", u.String()))
			return nil
		}
		lastErr = err
		if attempt == publishAttempts {
			break
		}
		p.logger.Warn("Collector dial failed",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
	return fmt.Errorf("WebSocket dial failed after %d attempts: %w", publishAttempts, lastErr)
}

func (p *publisher) sendMessage(msg interface{}) error {
	p.connMu.Lock()
	defer p.connMu.Unlock()

	if p.conn == nil {
		return fmt.Errorf("not connected")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	if err := p.conn.SetWriteDeadline(time.Now().Add(websocketWriteTimeout)); err != nil {
		return err
	}
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// publish sends msg and logs instead of failing; the report on stdout is
// the primary output.
func (p *publisher) publish(msg interface{}) {
	if p == nil {
		return
	}
	if err := p.sendMessage(msg); err != nil {
		p.logger.Warn("Failed to publish message", zap.Error(err))
	}
}

func (p *publisher) close() {
	if p == nil {
		return
	}
	p.connMu.Lock()
	defer p.connMu.Unlock()
	if p.conn == nil {
		return
	}
	deadline := time.Now().Add(websocketWriteTimeout)
	_ = p.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run complete"), deadline)
	p.conn.Close()
	p.conn = nil
}
