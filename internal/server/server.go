// Package server implements the TCP front end (spec.md §4.F/§4.G
// server side): it decodes RESP commands off a connection, executes
// them against the Store Core, and multiplexes server-initiated
// NOTIFY frames onto the same stream. Grounded on the teacher's
// cmd/server/main.go wiring shape and plain log.Printf diagnostics,
// adapted from an HTTP/Fiber front end to a raw TCP/RESP one.
package server

import (
	"bufio"
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"qstore/internal/config"
	"qstore/internal/intern"
	"qstore/internal/notify"
	"qstore/internal/qerr"
	"qstore/internal/resp"
	"qstore/internal/snapshot"
	"qstore/internal/store"
)

// Server owns the listener and the shared Store/Hub the spec
// describes as process-wide singletons (spec.md §5's "single logical
// writer" applies across every connection, not per-connection).
type Server struct {
	cfg   config.ServerConfig
	store *store.Store

	mu        sync.Mutex
	listener  net.Listener
	closeOnce sync.Once
}

func New(cfg config.ServerConfig, st *store.Store) *Server {
	return &Server{cfg: cfg, store: st}
}

// ListenAndServe binds cfg.ListenAddr and serves connections until the
// listener is closed or accept fails permanently.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return qerr.InternalErr("listen on %s: %v", s.cfg.ListenAddr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	log.Printf("qserver listening on %s", s.cfg.ListenAddr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return qerr.InternalErr("accept: %v", err)
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting new connections. In-flight connections run to
// completion.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	var err error
	s.closeOnce.Do(func() { err = ln.Close() })
	return err
}

// conn is the per-connection state: a single writer mutex serializes
// response frames and server-initiated NOTIFY frames onto the shared
// socket, since both the request/response loop and any notification
// drain goroutines it starts write to the same net.Conn.
type conn struct {
	raw net.Conn
	r   *bufio.Reader

	writeMu sync.Mutex

	subMu sync.Mutex
	subs  map[notify.Token]chan struct{} // closed to stop that token's drain goroutine
}

func (s *Server) handleConn(raw net.Conn) {
	defer raw.Close()
	c := &conn{
		raw:  raw,
		r:    bufio.NewReaderSize(raw, max(s.cfg.ReadBufferBytes, 4096)),
		subs: make(map[notify.Token]chan struct{}),
	}
	defer c.stopAllSubs()

	for {
		cmdFrame, err := resp.ReadValue(c.r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("qserver: connection read error: %v", err)
			}
			return
		}
		s.dispatch(c, cmdFrame)
	}
}

func (c *conn) writeLocked(v resp.Value) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return resp.WriteValue(c.raw, v)
}

func (c *conn) stopAllSubs() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, stop := range c.subs {
		close(stop)
	}
}

// dispatch decodes one command frame and replies on c, special-casing
// the opcodes that are not store.Request operations (PEER_HANDSHAKE,
// TAKE_SNAPSHOT, REGISTER_NOTIFICATION, UNREGISTER_NOTIFICATION).
func (s *Server) dispatch(c *conn, cmdFrame resp.Value) {
	if cmdFrame.Kind != resp.Array || len(cmdFrame.Array) == 0 || cmdFrame.Array[0].Kind != resp.BulkString {
		_ = c.writeLocked(resp.AsError(qerr.ProtocolErr("malformed command frame")))
		return
	}
	opname := string(cmdFrame.Array[0].Bulk)
	args := cmdFrame.Array[1:]

	switch opname {
	case resp.OpPeerHandshake:
		s.handlePeerHandshake(c, args)
	case resp.OpTakeSnapshot:
		s.handleTakeSnapshot(c)
	case resp.OpRegisterNotification:
		s.handleRegister(c, args)
	case resp.OpUnregisterNotify:
		s.handleUnregister(c, args)
	default:
		s.dispatchStoreOp(c, cmdFrame)
	}
}

func (s *Server) dispatchStoreOp(c *conn, cmdFrame resp.Value) {
	op, err := resp.DecodeCommand(cmdFrame)
	if err != nil {
		_ = c.writeLocked(resp.AsError(err))
		return
	}
	batch := store.NewRequests(nil, op)
	if idx, err := s.store.Execute(batch); err != nil {
		_ = idx
		_ = c.writeLocked(resp.AsError(err))
		return
	}
	_ = c.writeLocked(resp.EncodeResult(op))
}

func (s *Server) handlePeerHandshake(c *conn, args []resp.Value) {
	if len(args) != 1 || args[0].Kind != resp.Integer {
		_ = c.writeLocked(resp.AsError(qerr.ProtocolErr("malformed PEER_HANDSHAKE")))
		return
	}
	_ = c.writeLocked(resp.NewInteger(resp.ProtocolVersion))
}

func (s *Server) handleTakeSnapshot(c *conn) {
	snap := s.store.Snapshot()
	blob, err := snapshot.Encode(snap)
	if err != nil {
		_ = c.writeLocked(resp.AsError(err))
		return
	}
	_ = c.writeLocked(resp.NewBulk(blob))
}

func (s *Server) handleRegister(c *conn, args []resp.Value) {
	if len(args) != 4 || args[0].Kind != resp.Integer {
		_ = c.writeLocked(resp.AsError(qerr.ProtocolErr("malformed REGISTER_NOTIFICATION")))
		return
	}
	cfg, err := decodeNotifyConfig(args[3])
	if err != nil {
		_ = c.writeLocked(resp.AsError(err))
		return
	}

	var token notify.Token
	var queue *notify.Queue
	field := intern.FieldType(args[2].Int)
	if args[0].Int == 1 {
		entity, err := resp.DecodeEntityID(args[1])
		if err != nil {
			_ = c.writeLocked(resp.AsError(err))
			return
		}
		token, queue, err = s.store.Notify().RegisterByID(entity, field, cfg)
		if err != nil {
			_ = c.writeLocked(resp.AsError(err))
			return
		}
	} else {
		etype := intern.EntityType(args[1].Int)
		var err error
		token, queue, err = s.store.Notify().RegisterByType(etype, field, cfg)
		if err != nil {
			_ = c.writeLocked(resp.AsError(err))
			return
		}
	}

	stop := make(chan struct{})
	c.subMu.Lock()
	c.subs[token] = stop
	c.subMu.Unlock()
	go drainNotifications(c, queue, stop)

	_ = c.writeLocked(resp.NewBulkString(token.String()))
}

func (s *Server) handleUnregister(c *conn, args []resp.Value) {
	if len(args) != 1 || args[0].Kind != resp.BulkString {
		_ = c.writeLocked(resp.AsError(qerr.ProtocolErr("malformed UNREGISTER_NOTIFICATION")))
		return
	}
	id, err := parseToken(string(args[0].Bulk))
	if err != nil {
		_ = c.writeLocked(resp.AsError(err))
		return
	}
	_ = s.store.Notify().Unregister(id)

	c.subMu.Lock()
	if stop, ok := c.subs[id]; ok {
		close(stop)
		delete(c.subs, id)
	}
	c.subMu.Unlock()

	_ = c.writeLocked(resp.NewSimpleString("OK"))
}

// drainNotifications periodically drains queue and writes each
// delivered Record as a NOTIFY frame, until stop is closed. Grounded
// on the teacher's scheduler goroutines (engine.WorkflowScheduler):
// one goroutine per registration, cooperative polling rather than a
// blocking channel, since notify.Queue is push-then-drain.
func drainNotifications(c *conn, queue *notify.Queue, stop <-chan struct{}) {
	ticker := time.NewTicker(notifyPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			recs, _ := queue.Drain()
			for _, rec := range recs {
				if err := c.writeLocked(resp.EncodeNotificationRecord(rec)); err != nil {
					return
				}
			}
		}
	}
}
