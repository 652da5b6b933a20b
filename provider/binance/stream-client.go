package binance

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/recws-org/recws"
	"go.uber.org/zap"
)

const (
	handshakeTimeout = 5 * time.Second
	pingDelay        = time.Minute * 9
)

// StreamClient is a reconnecting duplex websocket carrying the text frames
// of a single raw stream.
type StreamClient struct {
	url  string
	conn *recws.RecConn

	frames chan []byte
	errs   chan error

	done      chan struct{}
	closeOnce sync.Once

	log *zap.SugaredLogger
}

func NewStreamClient(url string, log *zap.SugaredLogger) *StreamClient {
	return &StreamClient{
		url:    url,
		frames: make(chan []byte, 64),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
		log:    log,
	}
}

// Connect dials the endpoint and starts the read loop. The underlying
// connection redials on its own after drops.
func (c *StreamClient) Connect() error {
	conn := &recws.RecConn{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
		KeepAliveTimeout: pingDelay,
		NonVerbose:       true,
	}
	conn.Dial(c.url, nil)
	c.conn = conn

	go c.read()
	return nil
}

func (c *StreamClient) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Frames delivers raw inbound text frames in connection order. The channel
// closes on teardown.
func (c *StreamClient) Frames() <-chan []byte {
	return c.frames
}

// Errs surfaces receive failures. The connection keeps redialing after
// one, so a failure here is a notification, not a terminal state.
func (c *StreamClient) Errs() <-chan error {
	return c.errs
}

func (c *StreamClient) SendJSON(v interface{}) error {
	if c.conn == nil {
		return errors.New("stream client is not connected")
	}
	return c.conn.WriteJSON(v)
}

func (c *StreamClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *StreamClient) read() {
	defer close(c.frames)

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}

			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warnw("stream connection dropped", "url", c.url, "err", err)
			}

			select {
			case c.errs <- err:
			default:
			}

			// The connection redials in the background; avoid spinning
			// on ErrNotConnected while it does.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		select {
		case c.frames <- msg:
		case <-c.done:
			return
		}
	}
}
