package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/croncommander/clonebench/internal/protocol"
)

// collector records the type of every text message until the client closes.
type collector struct {
	server *httptest.Server
	done   chan struct{}

	mu    sync.Mutex
	types []string
}

func newCollector(t *testing.T) *collector {
	t.Helper()
	c := &collector{done: make(chan struct{})}
	c.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		defer close(c.done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg protocol.Message
			if json.Unmarshal(data, &msg) == nil {
				c.mu.Lock()
				c.types = append(c.types, msg.Type)
				c.mu.Unlock()
			}
		}
	}))
	t.Cleanup(c.server.Close)
	return c
}

func (c *collector) url() string {
	return "ws" + strings.TrimPrefix(c.server.URL, "http")
}

func (c *collector) received(t *testing.T) []string {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		t.Fatal("collector connection was not closed")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.types...)
}

func TestRun_PublishesToCollector(t *testing.T) {
	c := newCollector(t)

	_, _, err := executeCommand(t, runArgs("--size", "16", "--format", "json", "--publish", c.url())...)
	require.NoError(t, err)

	assert.Equal(t, []string{
		protocol.TypeRunStarted,
		protocol.TypeVariantResult,
		protocol.TypeVariantResult,
		protocol.TypeRunReport,
	}, c.received(t))
}

func TestRun_UnreachableCollectorDoesNotFailRun(t *testing.T) {
	defer func(attempts int, delay time.Duration) {
		publishAttempts, reconnectDelay = attempts, delay
	}(publishAttempts, reconnectDelay)
	publishAttempts = 2
	reconnectDelay = time.Millisecond

	server := httptest.NewServer(http.NotFoundHandler())
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	server.Close()

	stdout, _, err := executeCommand(t, runArgs("--size", "16", "--format", "json", "--publish", wsURL, "--log-level", "info")...)
	require.NoError(t, err)
	assert.Len(t, decodeReport(t, stdout).Variants, 2)
}

func TestPublisher_ConnectRejectsScheme(t *testing.T) {
	p := newPublisher("http://localhost:1", zaptest.NewLogger(t))

	err := p.connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheme must be ws or wss")
}

func TestPublisher_ConnectGivesUp(t *testing.T) {
	defer func(attempts int, delay time.Duration) {
		publishAttempts, reconnectDelay = attempts, delay
	}(publishAttempts, reconnectDelay)
	publishAttempts = 2
	reconnectDelay = time.Millisecond

	server := httptest.NewServer(http.NotFoundHandler())
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	server.Close()

	err := newPublisher(wsURL, zaptest.NewLogger(t)).connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestPublisher_WriteDeadline(t *testing.T) {
	c := newCollector(t)
	p := newPublisher(c.url(), zaptest.NewLogger(t))
	require.NoError(t, p.connect(context.Background()))
	defer p.close()

	msg := protocol.RunStartedMessage{Type: protocol.TypeRunStarted, RunID: "r1"}
	require.NoError(t, p.sendMessage(msg))

	original := websocketWriteTimeout
	defer func() { websocketWriteTimeout = original }()
	websocketWriteTimeout = -1 * time.Second

	err := p.sendMessage(msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "i/o timeout")
}

func TestPublisher_NilIsSafe(t *testing.T) {
	var p *publisher
	assert.NotPanics(t, func() {
		p.publish(protocol.Message{Type: protocol.TypeRunReport})
		p.close()
	})
}
