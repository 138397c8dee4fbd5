package kernel

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/switchboard-io/switchboard/internal/core"
	"github.com/switchboard-io/switchboard/internal/flow"
	"github.com/switchboard-io/switchboard/internal/switchboard"
)

// FlowServiceProvider is the switchboard.ServiceRegistry provider name
// for services whose TCPServiceConfig.Config carries a core.FlowConfig,
//'s K8s Gateway translation output.
const FlowServiceProvider = "http-flow"

// NewFlowServiceConstructor returns the switchboard.ServiceConstructor
// for FlowServiceProvider: decode the service's core.FlowConfig out of
// its serde.Value config, build it against reg, and serve HTTP/1.1 over
// each accepted connection by dispatching requests through the flow.
func NewFlowServiceConstructor(reg *flow.Registry) switchboard.ServiceConstructor {
	return func(cfg core.TCPServiceConfig) (switchboard.Service, error) {
		fc, err := core.FlowConfigFromValue(cfg.Config)
		if err != nil {
			return nil, err
		}
		f, err := flow.Build(&fc, reg)
		if err != nil {
			return nil, err
		}
		return &FlowService{flow: f}, nil
	}
}

// FlowService adapts a built *flow.Flow to switchboard.Service by driving
// an http.Server over a single already-accepted connection. This mirrors
// the api/server.go and profiling/server.go *http.Server
// construction, generalized from "listen and accept" to "serve the one
// connection the switchboard already accepted and, for TLS routes,
// already terminated" — net/http has no public single-connection serve
// entry point, so a one-shot net.Listener stands in for it.
type FlowService struct {
	flow *flow.Flow
}

func (s *FlowService) Serve(ctx context.Context, conn net.Conn, peer net.Addr) error {
	ln := newSingleConnListener(conn)
	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.handle(w, r)
		}),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ln) }()

	select {
	case <-ctx.Done():
		_ = server.Close()
		<-serveErr
		return ctx.Err()
	case <-ln.connClosed:
		// The one connection this service was handed has finished (client
		// disconnect or a non-keep-alive response); nothing left to serve.
		_ = server.Close()
		<-serveErr
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *FlowService) handle(w http.ResponseWriter, r *http.Request) {
	resp, err := s.flow.Dispatch(r)
	if err != nil {
		resp = flow.RenderError(err)
	}
	defer resp.Body.Close()

	for k, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// singleConnListener is a net.Listener that yields exactly one connection
// (the one the switchboard already accepted) and then blocks on Accept
// until the listener itself is closed, so http.Server.Serve can drive it
// without re-accepting from the network. connClosed fires once the one
// connection handed out is itself closed (by the client, or by the
// handler finishing a non-keep-alive response), letting the caller end
// the Serve call without waiting on a second, nonexistent connection.
type singleConnListener struct {
	conn net.Conn
	acceptOnce sync.Once
	closeOnce sync.Once
	listenDone chan struct{}
	connClosed chan struct{}
}

func newSingleConnListener(conn net.Conn) *singleConnListener {
	return &singleConnListener{
		conn: conn,
		listenDone: make(chan struct{}),
		connClosed: make(chan struct{}),
	}
}

func (l *singleConnListener) Accept() (net.Conn, error) {
	var c net.Conn
	l.acceptOnce.Do(func() { c = &notifyCloseConn{Conn: l.conn, notify: l.markConnClosed} })
	if c != nil {
		return c, nil
	}
	<-l.listenDone
	return nil, io.EOF
}

func (l *singleConnListener) markConnClosed() {
	l.closeOnce.Do(func() { close(l.connClosed) })
}

func (l *singleConnListener) Close() error {
	select {
	case <-l.listenDone:
	default:
		close(l.listenDone)
	}
	return nil
}

func (l *singleConnListener) Addr() net.Addr { return l.conn.LocalAddr() }

// notifyCloseConn calls notify exactly once when the wrapped conn is
// closed, so singleConnListener can tell its one connection apart from a
// still-in-progress request.
type notifyCloseConn struct {
	net.Conn
	notify func()
	once sync.Once
}

func (c *notifyCloseConn) Close() error {
	c.once.Do(c.notify)
	return c.Conn.Close()
}
