// Package transport is the duplex message channel between client and
// exchange. It carries opaque frames and does not reconnect.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrClosed is returned by Send and Receive after Close.
var ErrClosed = errors.New("transport closed")

// Transport moves whole frames in both directions.
type Transport interface {
	Send(ctx context.Context, frame []byte) error
	// Receive blocks until the next frame arrives or the transport fails.
	Receive() ([]byte, error)
	Close() error
}

const (
	writeWait    = 10 * time.Second
	pingInterval = 50 * time.Second
)

// WebSocket is a Transport over a gorilla/websocket connection.
type WebSocket struct {
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

type options struct {
	header       http.Header
	logger       *zap.Logger
	pingInterval time.Duration
	dialer       *websocket.Dialer
}

type Option func(*options)

// WithHeader adds handshake headers.
func WithHeader(h http.Header) Option {
	return func(o *options) { o.header = h.Clone() }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPingInterval sets the keepalive period; zero disables pings.
func WithPingInterval(d time.Duration) Option {
	return func(o *options) { o.pingInterval = d }
}

// Dial opens a websocket to url.
func Dial(ctx context.Context, url string, opts ...Option) (*WebSocket, error) {
	o := options{
		logger:       zap.NewNop(),
		pingInterval: pingInterval,
		dialer:       websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(&o)
	}

	conn, resp, err := o.dialer.DialContext(ctx, url, o.header)
	if err != nil {
		if resp != nil {
			o.logger.Error("ws_connect_failed", zap.String("status", resp.Status), zap.Error(err))
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	o.logger.Info("ws_connected", zap.String("url", url))

	ws := &WebSocket{
		conn:   conn,
		logger: o.logger,
		closed: make(chan struct{}),
	}
	if o.pingInterval > 0 {
		go ws.pinger(o.pingInterval)
	}
	return ws, nil
}

// Send writes one text frame. The context deadline, if any, bounds the write.
func (ws *WebSocket) Send(ctx context.Context, frame []byte) error {
	select {
	case <-ws.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeWait)
	}

	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	ws.conn.SetWriteDeadline(deadline)
	if err := ws.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("ws write: %w", err)
	}
	return nil
}

func (ws *WebSocket) Receive() ([]byte, error) {
	for {
		kind, data, err := ws.conn.ReadMessage()
		if err != nil {
			select {
			case <-ws.closed:
				return nil, ErrClosed
			default:
			}
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// Close sends a close frame and tears the connection down. It is safe to
// call more than once.
func (ws *WebSocket) Close() error {
	var err error
	ws.closeOnce.Do(func() {
		close(ws.closed)

		ws.writeMu.Lock()
		ws.conn.SetWriteDeadline(time.Now().Add(time.Second))
		ws.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		ws.writeMu.Unlock()

		err = ws.conn.Close()
		ws.logger.Info("ws_closed")
	})
	return err
}

func (ws *WebSocket) pinger(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ws.closed:
			return
		case <-ticker.C:
			ws.writeMu.Lock()
			err := ws.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			ws.writeMu.Unlock()
			if err != nil {
				ws.logger.Warn("ping_failed", zap.Error(err))
				return
			}
		}
	}
}

// IsClosed reports whether err signals an orderly end of the connection.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
