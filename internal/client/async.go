package client

import (
	"context"

	"qstore/internal/store"
)

// AsyncClient is the asynchronous proxy: calls may suspend on I/O
// without blocking the caller's goroutine. Ordering is guaranteed by
// serializing every queued command through a single worker goroutine
// reading from cmds, mirroring the "async mutex" ordering guarantee of
// spec.md §4.G without needing one (Go channels already serialize).
type AsyncClient struct {
	cmds   chan asyncCall
	client *Client
}

type asyncCall struct {
	ops  []store.Request
	done chan error
}

// NewAsync wraps an existing Client with a single-worker command
// queue. The worker goroutine runs until Close is called.
func NewAsync(c *Client) *AsyncClient {
	a := &AsyncClient{cmds: make(chan asyncCall, 64), client: c}
	go a.run()
	return a
}

func (a *AsyncClient) run() {
	for call := range a.cmds {
		var err error
		if len(call.ops) == 1 {
			err = a.client.Do(call.ops[0])
		} else {
			err = a.client.Pipeline(call.ops)
		}
		call.done <- err
	}
}

// Go submits op for execution and returns a future channel that
// receives exactly one error (nil on success) once the response has
// been decoded and applied onto op.
func (a *AsyncClient) Go(op store.Request) <-chan error {
	return a.submit([]store.Request{op})
}

// GoPipeline is the async analogue of Client.Pipeline.
func (a *AsyncClient) GoPipeline(ops []store.Request) <-chan error {
	return a.submit(ops)
}

func (a *AsyncClient) submit(ops []store.Request) <-chan error {
	done := make(chan error, 1)
	a.cmds <- asyncCall{ops: ops, done: done}
	return done
}

// Await blocks until the future resolves or ctx is cancelled. Per
// spec.md §4.G, cancelling ctx abandons waiting for the result but
// does NOT cancel the wire operation: the worker goroutine still
// drains the response on the shared connection, it is simply
// discarded by this call returning early.
func Await(ctx context.Context, future <-chan error) error {
	select {
	case err := <-future:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new calls and closes the underlying
// connection. In-flight calls already queued are still drained.
func (a *AsyncClient) Close() error {
	close(a.cmds)
	return a.client.Close()
}
