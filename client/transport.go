package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/VanDung-dev/HieraChain-Simulator/api"
	"github.com/VanDung-dev/HieraChain-Simulator/bridge"
)

// ErrClosed is returned by a transport after Close.
var ErrClosed = errors.New("transport closed")

// Transport carries one encoded request envelope and returns the encoded
// response envelope.
type Transport interface {
	RoundTrip(ctx context.Context, request []byte) ([]byte, error)
	Close() error
}

// InProcess calls a handle directly.
type InProcess struct {
	handle *bridge.Handle
	owned  bool
}

// NewInProcess wraps h. Close does not destroy h.
func NewInProcess(h *bridge.Handle) *InProcess {
	return &InProcess{handle: h}
}

// Create builds a fresh handle from the environment; Close destroys it.
func Create() (*InProcess, error) {
	h, err := bridge.Create()
	if err != nil {
		return nil, err
	}
	return NewOwned(h), nil
}

// NewOwned wraps h and destroys it on Close.
func NewOwned(h *bridge.Handle) *InProcess {
	return &InProcess{handle: h, owned: true}
}

func (t *InProcess) RoundTrip(ctx context.Context, request []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.handle.Execute(request), nil
}

func (t *InProcess) Close() error {
	if t.owned {
		return t.handle.Destroy()
	}
	return nil
}

// Frame speaks the length-prefixed protocol of api.FrameServer over one TCP
// connection. Calls are serialized.
type Frame struct {
	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// DialFrame connects to addr and, when token is non-empty, performs the
// auth handshake.
func DialFrame(ctx context.Context, addr, token string) (*Frame, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	if token != "" {
		if deadline, ok := ctx.Deadline(); ok {
			_ = conn.SetDeadline(deadline)
		}
		if err := api.ClientHandshake(conn, token); err != nil {
			_ = conn.Close()
			return nil, err
		}
		_ = conn.SetDeadline(time.Time{})
	}
	return &Frame{conn: conn}, nil
}

func (t *Frame) RoundTrip(ctx context.Context, request []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetDeadline(deadline)
		defer func() { _ = t.conn.SetDeadline(time.Time{}) }()
	}

	if err := api.WriteMessage(t.conn, request); err != nil {
		return nil, err
	}
	return api.ReadMessage(t.conn)
}

func (t *Frame) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}
