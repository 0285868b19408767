package sigstore

import (
	"context"
	"encoding/gob"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// The wire protocol of the signature-store service: gob-encoded request
// frames on two channels. The push channel carries fire-and-forget writes;
// the req channel carries everything that needs a reply.

type op string

const (
	opGet    op = "get"
	opPut    op = "put"
	opKeys   op = "keys"
	opRemove op = "remove"
	opClear  op = "clear"
	opLock   op = "lock"
	opRenew  op = "renew"
	opUnlock op = "unlock"
)

type request struct {
	Op    op
	Key   string
	Keys  []string
	Owner string
	TTL   time.Duration
	Sig   []byte
}

type response struct {
	Sig      []byte
	Keys     []string
	N        int
	Acquired bool
	NotFound bool
	Err      string
}

// Service exposes a Store over two socket channels so that worker processes
// can share one signature store. It owns neither the listeners nor the
// backing store; the caller closes both after Close returns.
type Service struct {
	store Store
	log   *slog.Logger

	mu        sync.Mutex
	listeners []net.Listener
	conns     map[net.Conn]struct{}
	closed    bool
	wg        sync.WaitGroup
}

// NewService creates a Service for the given store. If logger is nil,
// slog.Default() is used.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store: store,
		log:   logger,
		conns: make(map[net.Conn]struct{}),
	}
}

// Start begins serving on the push (write) and req (read) listeners.
// It returns immediately; use Close to stop.
func (s *Service) Start(pushLn, reqLn net.Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, pushLn, reqLn)
	s.mu.Unlock()

	s.wg.Add(2)
	go s.acceptLoop(pushLn, false)
	go s.acceptLoop(reqLn, true)
}

// Close stops the accept loops, closes open connections, and waits for all
// connection handlers to finish.
func (s *Service) Close() error {
	s.mu.Lock()
	s.closed = true
	for _, ln := range s.listeners {
		_ = ln.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Service) acceptLoop(ln net.Listener, reply bool) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.log.Warn("sigstore accept failed", slog.Any("error", err))
			}
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConn(conn, reply)
	}
}

func (s *Service) handleConn(conn net.Conn, reply bool) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	dec := gob.NewDecoder(conn)
	enc := gob.NewEncoder(conn)

	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.mu.Lock()
				closed := s.closed
				s.mu.Unlock()
				if !closed {
					s.log.Warn("sigstore decode failed", slog.Any("error", err))
				}
			}
			return
		}

		resp := s.handle(req)
		if !reply {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}

func (s *Service) handle(req request) response {
	ctx := context.Background()
	var resp response

	switch req.Op {
	case opGet:
		sig, err := s.store.Get(ctx, req.Key)
		if errors.Is(err, ErrNotFound) {
			resp.NotFound = true
		} else if err != nil {
			resp.Err = err.Error()
		} else {
			resp.Sig = sig
		}
	case opPut:
		if err := s.store.Put(ctx, req.Key, req.Sig); err != nil {
			// Push-channel writes have no reply path; log and move on.
			s.log.Warn("sigstore put failed",
				slog.String("key", req.Key), slog.Any("error", err))
			resp.Err = err.Error()
		}
	case opKeys:
		keys, err := s.store.Keys(ctx)
		if err != nil {
			resp.Err = err.Error()
		}
		resp.Keys = keys
	case opRemove:
		n, err := s.store.Remove(ctx, req.Keys...)
		if err != nil {
			resp.Err = err.Error()
		}
		resp.N = n
	case opClear:
		if err := s.store.Clear(ctx); err != nil {
			resp.Err = err.Error()
		}
	case opLock:
		acquired, err := s.store.TryAcquireLock(ctx, req.Key, req.Owner, req.TTL)
		if err != nil {
			resp.Err = err.Error()
		}
		resp.Acquired = acquired
	case opRenew:
		if err := s.store.RenewLock(ctx, req.Key, req.Owner, req.TTL); err != nil {
			resp.Err = err.Error()
		}
	case opUnlock:
		if err := s.store.ReleaseLock(ctx, req.Key, req.Owner); err != nil {
			resp.Err = err.Error()
		}
	default:
		resp.Err = "unknown op: " + string(req.Op)
	}
	return resp
}
