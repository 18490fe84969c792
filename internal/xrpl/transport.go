package xrpl

import (
	"context"

	"github.com/gorilla/websocket"
)

// Conn is the subset of a WebSocket connection the client uses. A
// *websocket.Conn satisfies it directly.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a WebSocket connection to an endpoint. The supplied context
// carries the dead-connect deadline; a dial still in flight when it expires
// must be abandoned.
type Dialer interface {
	DialContext(ctx context.Context, endpoint string) (Conn, error)
}

type gorillaDialer struct{}

func (gorillaDialer) DialContext(ctx context.Context, endpoint string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
