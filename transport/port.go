package transport

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by operations on a closed Port or Client.
var ErrClosed = errors.New("transport: closed")

// A Port carries serialized widget API envelopes between the widget and its
// host. Send and Receive may be called concurrently with each other.
type Port interface {
	Send(ctx context.Context, frame []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// pipeBuffer is the number of frames a pipe holds per direction before Send
// blocks.
const pipeBuffer = 64

type pipeEnd struct {
	in     <-chan []byte
	out    chan<- []byte
	closed chan struct{}
	once   *sync.Once
}

// Pipe returns two connected in-memory ports. Frames sent on one are received
// on the other, in order. Closing either end closes both.
func Pipe() (Port, Port) {
	a := make(chan []byte, pipeBuffer)
	b := make(chan []byte, pipeBuffer)
	closed := make(chan struct{})
	once := &sync.Once{}
	return &pipeEnd{in: a, out: b, closed: closed, once: once},
		&pipeEnd{in: b, out: a, closed: closed, once: once}
}

func (p *pipeEnd) Send(ctx context.Context, frame []byte) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}
	select {
	case p.out <- append([]byte(nil), frame...):
		return nil
	case <-p.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-p.in:
		return frame, nil
	case <-p.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}
