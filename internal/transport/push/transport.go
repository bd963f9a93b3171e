package push

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the minimal surface the connection manager needs from the
// underlying websocket. Narrowing it to three methods keeps the reconnection
// and keep-alive state machine testable without a network.
type Transport interface {
	// ReadMessage blocks until the next inbound payload or a terminal error.
	// A *websocket.CloseError carries the peer's close code; any other error
	// is treated as an abnormal closure.
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	// Close terminates the transport, announcing the given close code to the
	// peer on a best-effort basis.
	Close(code int, reason string) error
}

// Dialer opens a Transport against the derived endpoint. The context carries
// the connection-open deadline.
type Dialer func(ctx context.Context, endpoint string) (Transport, error)

// Interface guard
var _ Transport = (*wsTransport)(nil)

// wsTransport adapts a gorilla websocket connection.
type wsTransport struct {
	ws *websocket.Conn

	// Gorilla permits at most one concurrent writer; the keep-alive loop and
	// application sends share this lock.
	writeMu sync.Mutex
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.ws.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.ws.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close(code int, reason string) error {
	t.writeMu.Lock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = t.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	t.writeMu.Unlock()
	return t.ws.Close()
}

// DefaultDialer opens a real websocket transport.
func DefaultDialer(ctx context.Context, endpoint string) (Transport, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return &wsTransport{ws: ws}, nil
}
