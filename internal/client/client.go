// Package client implements the Sync/Async Client Proxy (spec.md
// §4.G): a single TCP_NODELAY connection wrapped with request/response
// correlation, out-of-band notification demultiplexing, and
// pipelining. Grounded on original_source/src/data/async_store_proxy.rs
// and websocket_store_proxy.rs, adapted from Rust's async/await
// suspension points to Go's goroutine-and-channel idiom, and on the
// teacher's sync.Mutex-guarded shared-resource discipline.
package client

import (
	"bufio"
	"fmt"
	"net"
	"sync"

	"qstore/internal/qerr"
	"qstore/internal/notify"
	"qstore/internal/resp"
	"qstore/internal/store"
)

// NotificationHandler receives a demultiplexed server-initiated NOTIFY
// frame. It must not block for long: it is invoked on the goroutine
// of the call currently reading the connection. Frames are read only
// while a call waits for its response.
type NotificationHandler func(notify.Record)

// Client is the synchronous proxy: callers block until their response
// arrives. The connection is protected by a single mutex, so
// concurrent callers serialize at the call site exactly as spec.md
// §4.G's "Sync proxy" describes.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	r       *bufio.Reader
	onNotify NotificationHandler
}

// Dial connects to addr with TCP_NODELAY set, per spec.md §4.G.
func Dial(addr string, onNotify NotificationHandler) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, qerr.InternalErr("dial %s: %v", addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.SetNoDelay(true); err != nil {
			conn.Close()
			return nil, qerr.InternalErr("set TCP_NODELAY: %v", err)
		}
	}
	return &Client{conn: conn, r: bufio.NewReader(conn), onNotify: onNotify}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// Do sends one request and blocks until its matching response is
// decoded and applied back onto op, handing any notification frames
// encountered along the way to the registered handler.
func (c *Client) Do(op store.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmd, err := resp.EncodeCommand(op)
	if err != nil {
		return err
	}
	if err := resp.WriteValue(c.conn, cmd); err != nil {
		return qerr.InternalErr("write command: %v", err)
	}

	v, err := c.readResponseLocked()
	if err != nil {
		return err
	}
	if v.Kind == resp.Error {
		return qerr.InternalErr("%s", v.Str)
	}
	return resp.ApplyResult(op, v)
}

// readResponseLocked reads frames until one is not a NOTIFY frame,
// dispatching every NOTIFY frame it passes over to onNotify. Caller
// must hold c.mu.
func (c *Client) readResponseLocked() (resp.Value, error) {
	for {
		v, err := resp.ReadValue(c.r)
		if err != nil {
			return resp.Value{}, qerr.InternalErr("read frame: %v", err)
		}
		if resp.IsNotification(v) {
			if c.onNotify != nil {
				rec, err := resp.DecodeNotificationRecord(v)
				if err == nil {
					c.onNotify(rec)
				}
			}
			continue
		}
		return v, nil
	}
}

// Pipeline queues N commands, flushes them in a single write, then
// reads N responses in order — still demultiplexing any interleaved
// notifications — applying each onto its originating Request.
func (c *Client) Pipeline(ops []store.Request) error {
	if len(ops) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	buf := make([]byte, 0, 256*len(ops))
	for _, op := range ops {
		cmd, err := resp.EncodeCommand(op)
		if err != nil {
			return err
		}
		buf = resp.Encode(buf, cmd)
	}
	if _, err := c.conn.Write(buf); err != nil {
		return qerr.InternalErr("pipeline write: %v", err)
	}

	for i, op := range ops {
		v, err := c.readResponseLocked()
		if err != nil {
			return fmt.Errorf("pipeline response %d: %w", i, err)
		}
		if v.Kind == resp.Error {
			return qerr.InternalErr("response %d: %s", i, v.Str)
		}
		if err := resp.ApplyResult(op, v); err != nil {
			return fmt.Errorf("pipeline decode %d: %w", i, err)
		}
	}
	return nil
}
