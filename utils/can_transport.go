package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// ErrReaderClosed is returned by ReadFrame once the reader has stopped.
var ErrReaderClosed = errors.New("CAN reader closed")

type CANWriter interface {
	WriteFrame(ctx context.Context, frame can.Frame) error
	Close() error
}

type CANReader interface {
	ReadFrame(ctx context.Context) (can.Frame, error)
	Close() error
}

type SocketCANWriter struct {
	conn net.Conn
	tx   *socketcan.Transmitter
}

// NewSocketCANWriter opens iface (e.g. "vcan0") for transmit.
func NewSocketCANWriter(ctx context.Context, iface string) (*SocketCANWriter, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial %s: %w", iface, err)
	}
	return &SocketCANWriter{
		conn: conn,
		tx:   socketcan.NewTransmitter(conn),
	}, nil
}

func (w *SocketCANWriter) WriteFrame(ctx context.Context, frame can.Frame) error {
	return w.tx.TransmitFrame(ctx, frame)
}

func (w *SocketCANWriter) Close() error {
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

// SocketCANReader receives on a background goroutine so ReadFrame can honour
// context cancellation. The goroutine exits when the socket is closed.
type SocketCANReader struct {
	conn   net.Conn
	frames chan can.Frame
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// NewSocketCANReader opens iface for receive and starts the receive loop.
func NewSocketCANReader(ctx context.Context, iface string) (*SocketCANReader, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial %s: %w", iface, err)
	}
	r := &SocketCANReader{
		conn:   conn,
		frames: make(chan can.Frame, 64),
		done:   make(chan struct{}),
	}
	go r.receive(socketcan.NewReceiver(conn))
	return r, nil
}

func (r *SocketCANReader) receive(recv *socketcan.Receiver) {
	defer close(r.done)
	for recv.Receive() {
		if recv.HasErrorFrame() {
			continue
		}
		select {
		case r.frames <- recv.Frame():
		default:
			// Consumer is behind; drop rather than stall the socket.
		}
	}
	r.mu.Lock()
	r.err = recv.Err()
	r.mu.Unlock()
}

// ReadFrame blocks until a frame arrives, ctx ends, or the socket closes.
func (r *SocketCANReader) ReadFrame(ctx context.Context) (can.Frame, error) {
	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case f := <-r.frames:
		return f, nil
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.err != nil {
			return can.Frame{}, fmt.Errorf("%w: %v", ErrReaderClosed, r.err)
		}
		return can.Frame{}, ErrReaderClosed
	}
}

func (r *SocketCANReader) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
