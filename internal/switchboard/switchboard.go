// Package switchboard implements the TCP switchboard: a hot-swappable
// listener/route/service table that accepts connections, optionally
// terminates TLS, and dispatches to a named TCP service instance without
// dropping connections across config swaps.
package switchboard

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"

	"github.com/switchboard-io/switchboard/internal/core"
)

// eventChannelCapacity is a small multiple of acceptBatchSize, enough to
// absorb a burst of new connections without blocking accept loops.
const (
	acceptBatchSize = 256
	eventChannelCapacity = acceptBatchSize * 4
)

type eventKind int

const (
	eventAccepted eventKind = iota
	eventUpdateRouter
)

type acceptedConn struct {
	fromBind string
	conn net.Conn
	peer net.Addr
}

type event struct {
	kind eventKind
	accepted *acceptedConn
}

type listenerTask struct {
	bind string
	ln net.Listener
	cancel context.CancelFunc
}

// Switchboard is a Halted/Running state machine. The zero value is
// Halted; construct with New.
type Switchboard struct {
	logger hclog.Logger
	registry *ServiceRegistry
	serveCtx context.Context

	mu sync.Mutex
	running bool
	cancel context.CancelFunc
	events chan event
	listeners map[string]*listenerTask
	loopDone chan struct{}

	router atomic.Pointer[RouterTable]
	wg sync.WaitGroup
}

// New returns a Halted Switchboard. serveCtx governs in-flight service
// tasks' lifetime; it is intentionally independent of the Running/Halted
// transitions a single EnsureRunning/Halt pair drives, since Halt drains
// rather than preempts connection ownership.
func New(logger hclog.Logger, registry *ServiceRegistry, serveCtx context.Context) *Switchboard {
	if serveCtx == nil {
		serveCtx = context.Background()
	}
	return &Switchboard{logger: logger, registry: registry, serveCtx: serveCtx}
}

// EnsureRunning transitions Halted -> Running, starting the event loop. A
// Switchboard that is already Running is left untouched.
func (s *Switchboard) EnsureRunning(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.events = make(chan event, eventChannelCapacity)
	s.loopDone = make(chan struct{})
	s.listeners = map[string]*listenerTask{}
	s.running = true

	go s.loop(loopCtx)
	return nil
}

// Halt transitions Running -> Halted: cancels every listener task and
// waits for in-flight service tasks to drain naturally.
func (s *Switchboard) Halt() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	for _, task := range s.listeners {
		task.cancel()
	}
	s.listeners = map[string]*listenerTask{}
	cancel := s.cancel
	s.running = false
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	<-s.loopDone
}

// Router returns the currently active RouterTable, or nil if none has
// been installed yet.
func (s *Switchboard) Router() *RouterTable {
	return s.router.Load()
}

// InstallConfig validates cfg, builds its RouterTable, diffs the listener
// set against the currently bound addresses, and swaps the active router
// atomically. A bind failure on any newly-required listener rolls back
// every listener it had already opened and leaves the previous config
// fully active.
func (s *Switchboard) InstallConfig(ctx context.Context, cfg *core.ServiceConfig) error {
	table, err := BuildRouterTable(cfg, s.registry)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return fmt.Errorf("switchboard: cannot install config while halted")
	}

	var created []*listenerTask
	for bind := range cfg.TCPListeners {
		if _, exists := s.listeners[bind]; exists {
			continue
		}
		task, err := s.startListener(ctx, bind)
		if err != nil {
			for _, t := range created {
				t.cancel()
				delete(s.listeners, t.bind)
			}
			return fmt.Errorf("switchboard: binding %s: %w", bind, err)
		}
		created = append(created, task)
		s.listeners[bind] = task
	}

	for bind, task := range s.listeners {
		if _, stillWanted := cfg.TCPListeners[bind]; !stillWanted {
			task.cancel()
			delete(s.listeners, bind)
		}
	}

	s.updateRouter(table)
	return nil
}

// updateRouter overwrites the atomically-shared router pointer and
// notifies the event loop New accepts dispatched after this call observe table; in-flight
// service tasks keep whatever pointer they already captured.
func (s *Switchboard) updateRouter(table *RouterTable) {
	s.router.Store(table)
	select {
	case s.events <- event{kind: eventUpdateRouter}:
	default:
		s.logger.Warn("switchboard: event channel full, dropping router-update notification")
	}
}

func (s *Switchboard) startListener(ctx context.Context, bind string) (*listenerTask, error) {
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return nil, err
	}
	lctx, cancel := context.WithCancel(ctx)
	// Closing ln is what unblocks a pending Accept, so cancelling the task
	// both cancels lctx and closes the listener.
	task := &listenerTask{bind: bind, ln: ln, cancel: func() {
		cancel()
		ln.Close()
	}}

	s.wg.Add(1)
	go s.acceptLoop(lctx, task)
	return task, nil
}

// acceptLoop is the per-bind listener task: it loops on accept, forwards
// each connection as an event, and exits on cancellation.
func (s *Switchboard) acceptLoop(ctx context.Context, task *listenerTask) {
	defer s.wg.Done()
	defer task.ln.Close()

	for {
		conn, err := task.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			s.logger.Warn("switchboard: accept error", "bind", task.bind, "error", err)
			continue
		}

		select {
		case s.events <- event{kind: eventAccepted, accepted: &acceptedConn{fromBind: task.bind, conn: conn, peer: conn.RemoteAddr()}}:
		case <-ctx.Done():
			conn.Close()
			return
		}
	}
}

// loop is the switchboard's single-consumer event loop: it reads events
// in batches and processes them in order.
func (s *Switchboard) loop(ctx context.Context) {
	defer close(s.loopDone)

	batch := make([]event, 0, acceptBatchSize)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.events:
			if !ok {
				return
			}
			batch = append(batch[:0], ev)
		drain:
			for len(batch) < acceptBatchSize {
				select {
				case ev2, ok := <-s.events:
					if !ok {
						break drain
					}
					batch = append(batch, ev2)
				default:
					break drain
				}
			}
			for _, e := range batch {
				s.handleEvent(e)
			}
		}
	}
}

func (s *Switchboard) handleEvent(e event) {
	switch e.kind {
	case eventAccepted:
		s.handleAccepted(e.accepted)
	case eventUpdateRouter:
		s.logger.Debug("switchboard: router updated")
	}
}

func (s *Switchboard) handleAccepted(ac *acceptedConn) {
	table := s.router.Load()
	if table == nil {
		ac.conn.Close()
		return
	}

	route, ok := table.Lookup(ac.fromBind)
	if !ok {
		ac.conn.Close()
		return
	}

	conn := ac.conn
	if route.TLSName != "" {
		tlsConfig, ok := table.TLS[route.TLSName]
		if !ok {
			s.logger.Warn("switchboard: no tls config for route", "bind", ac.fromBind, "tls", route.TLSName)
			conn.Close()
			return
		}
		conn = tls.Server(conn, tlsConfig)
	}

	svc, ok := table.Services[route.ServiceName]
	if !ok {
		s.logger.Warn("switchboard: no service for route", "bind", ac.fromBind, "service", route.ServiceName)
		conn.Close()
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := svc.Serve(s.serveCtx, conn, ac.peer); err != nil {
			s.logger.Warn("switchboard: service task error", "bind", ac.fromBind, "service", route.ServiceName, "error", err)
		}
	}()
}
