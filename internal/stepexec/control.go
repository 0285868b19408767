package stepexec

import (
	"context"
	"errors"
	"sync"
)

// ErrControlClosed is returned by channel control endpoints after Close.
var ErrControlClosed = errors.New("stepexec: control channel closed")

// chanControl is one endpoint of an in-process control channel pair.
type chanControl struct {
	send chan<- any
	recv <-chan any
	done chan struct{}
}

// Endpoint is one side of an in-process control channel pair.
type Endpoint interface {
	Control
	Close()
}

var _ Endpoint = (*closableControl)(nil)

// NewControlPair returns two connected in-process control endpoints, one
// for the coordinator and one for the worker. Close either endpoint to
// tear the pair down.
func NewControlPair() (coordinator, worker Endpoint) {
	a := make(chan any)
	b := make(chan any)
	done := make(chan struct{})
	once := &sync.Once{}
	return &closableControl{chanControl{send: a, recv: b, done: done}, once},
		&closableControl{chanControl{send: b, recv: a, done: done}, once}
}

type closableControl struct {
	chanControl
	once *sync.Once
}

func (c *closableControl) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *chanControl) Send(msg any) error {
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrControlClosed
	}
}

func (c *chanControl) Recv(ctx context.Context) (any, error) {
	select {
	case msg := <-c.recv:
		return msg, nil
	case <-c.done:
		return nil, ErrControlClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
