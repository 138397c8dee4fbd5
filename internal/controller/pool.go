package controller

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"

	"github.com/switchboard-io/switchboard/internal/channel"
)

// PoolEntry is one kernel's supervised session: the live *channel.Session
// (nil while redialing) plus the bookkeeping a caller needs to push
// config or read state.
type PoolEntry struct {
	Endpoint KernelEndpoint

	mu sync.Mutex
	session *channel.Session
	seq uint64
}

func (e *PoolEntry) Session() *channel.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

func (e *PoolEntry) nextSeq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	return e.seq
}

func (e *PoolEntry) setSession(s *channel.Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session = s
}

// Pool supervises one Session per discovered kernel, redialing with
// exponential backoff on disconnect and performing the controller side of
// the take-over handshake on every successful dial. It generalizes a
// single reconnecting-client pattern to a pool of many independently
// supervised peers.
type Pool struct {
	ControllerInfo string
	PSK []byte
	MaxFrameSize uint32
	OnState func(kernelID string, msg channel.Message)
	Logger hclog.Logger

	mu sync.Mutex
	entries map[string]*PoolEntry
}

func NewPool(controllerInfo string, psk []byte, logger hclog.Logger) *Pool {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Pool{
		ControllerInfo: controllerInfo,
		PSK: psk,
		MaxFrameSize: channel.DefaultMaxFrameSize,
		Logger: logger.Named("pool"),
		entries: map[string]*PoolEntry{},
	}
}

// Get returns the pool entry for a kernel ID and whether one exists. It
// never creates an entry; Supervise does that.
func (p *Pool) Get(id string) (*PoolEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]
	return e, ok
}

// Remove stops supervising a kernel (called when its discoverer reports
// removal) and closes its live session, if any.
func (p *Pool) Remove(id string) {
	p.mu.Lock()
	e, ok := p.entries[id]
	delete(p.entries, id)
	p.mu.Unlock()
	if ok {
		if sess := e.Session(); sess != nil {
			_ = sess.Close()
		}
	}
}

// Supervise adds endpoint to the pool and runs its redial loop until ctx
// is cancelled. One goroutine per kernel; callers typically run this via
// `go pool.Supervise(ctx, endpoint)` per discovery event.
func (p *Pool) Supervise(ctx context.Context, endpoint KernelEndpoint) {
	entry := &PoolEntry{Endpoint: endpoint}
	p.mu.Lock()
	p.entries[endpoint.ID] = entry
	p.mu.Unlock()

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry forever; only ctx cancellation stops us

	for {
		if ctx.Err() != nil {
			return
		}
		sess, err := p.dialAndTakeOver(ctx, endpoint)
		if err != nil {
			wait := bo.NextBackOff()
			p.Logger.Warn("dial/take-over failed, backing off", "kernel", endpoint.ID, "error", err, "wait", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()
		entry.setSession(sess)
		p.Logger.Info("kernel session established", "kernel", endpoint.ID, "target", endpoint.DialTarget)

		p.readLoop(ctx, entry, sess)
		entry.setSession(nil)
		if ctx.Err() != nil {
			return
		}
	}
}

func (p *Pool) dialAndTakeOver(ctx context.Context, endpoint KernelEndpoint) (*channel.Session, error) {
	d := net.Dialer{}
	network := endpoint.Network
	if network == "" {
		network = "tcp"
	}
	conn, err := d.DialContext(ctx, network, endpoint.DialTarget)
	if err != nil {
		return nil, err
	}
	sess := channel.NewSession(conn, p.MaxFrameSize)
	if err := channel.ControllerTakeOver(sess, p.PSK, p.ControllerInfo); err != nil {
		_ = sess.Close()
		return nil, err
	}
	return sess, nil
}

func (p *Pool) readLoop(ctx context.Context, entry *PoolEntry, sess *channel.Session) {
	for {
		msg, err := sess.Recv()
		if err != nil {
			p.Logger.Debug("session read ended", "kernel", entry.Endpoint.ID, "error", err)
			return
		}
		if p.OnState != nil {
			p.OnState(entry.Endpoint.ID, msg)
		}
		if ctx.Err() != nil {
			return
		}
	}
}
