package flow

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/switchboard-io/switchboard/internal/core"
)

// hopByHopHeaders are stripped before forwarding, per RFC 7230 section
// 6.1, matching the Envoy-config generation treatment of
// connection-scoped headers.
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

type reverseProxyNodeConfig struct {
	Scheme string
	Authority string
	Timeout string // Go duration string, e.g. "5s"
}

type reverseProxyNode struct {
	scheme string
	authority string
	timeout time.Duration
	client *http.Client
}

var sharedProxyTransport = &http.Transport{
	MaxIdleConns: 256,
	MaxIdleConnsPerHost: 64,
	IdleConnTimeout: 90 * time.Second,
}

func newReverseProxyNode(inst core.InstanceData, _ *Flow) (Node, error) {
	var cfg reverseProxyNodeConfig
	if err := decodeConfig(inst.Config, &cfg); err != nil {
		return nil, fmt.Errorf("flow: decoding reverse-proxy config: %w", err)
	}
	if cfg.Authority == "" {
		return nil, fmt.Errorf("flow: reverse-proxy requires an authority")
	}
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "http"
	}

	timeout := 30 * time.Second
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("flow: reverse-proxy timeout: %w", err)
		}
		timeout = d
	}

	return &reverseProxyNode{
		scheme: scheme,
		authority: cfg.Authority,
		timeout: timeout,
		client: &http.Client{Transport: sharedProxyTransport, Timeout: timeout},
	}, nil
}

func (n *reverseProxyNode) Handle(_ *Context, req *http.Request) (*http.Response, error) {
	outReq := req.Clone(req.Context())
	outReq.RequestURI = ""
	outReq.URL.Scheme = n.scheme
	outReq.URL.Host = n.authority
	outReq.Host = n.authority

	for _, h := range hopByHopHeaders {
		outReq.Header.Del(h)
	}

	appendForwardedHeaders(outReq, req)

	ctx, cancel := context.WithTimeout(req.Context(), n.timeout)
	defer cancel()
	outReq = outReq.WithContext(ctx)

	resp, err := n.client.Do(outReq)
	if err != nil {
		return nil, classifyUpstreamError(err)
	}
	return resp, nil
}

func appendForwardedHeaders(outReq *http.Request, inReq *http.Request) {
	host, _, err := net.SplitHostPort(inReq.RemoteAddr)
	if err != nil {
		host = inReq.RemoteAddr
	}
	if prior := outReq.Header.Get("X-Forwarded-For"); prior != "" {
		outReq.Header.Set("X-Forwarded-For", prior+", "+host)
	} else {
		outReq.Header.Set("X-Forwarded-For", host)
	}
	outReq.Header.Set("X-Forwarded-Host", inReq.Host)
	if inReq.TLS != nil {
		outReq.Header.Set("X-Forwarded-Proto", "https")
	} else {
		outReq.Header.Set("X-Forwarded-Proto", "http")
	}

	via := outReq.Header.Get("Via")
	const viaLabel = "1.1 switchboard"
	if via != "" {
		outReq.Header.Set("Via", via+", "+viaLabel)
	} else {
		outReq.Header.Set("Via", viaLabel)
	}
}

// classifyUpstreamError maps a client.Do error to one of the typed
// upstream error kinds the flow engine renders as a distinct status code.
func classifyUpstreamError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &UpstreamTimeoutError{Cause: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && strings.Contains(opErr.Op, "dial") {
		return &UpstreamConnectError{Cause: err}
	}
	return &UpstreamTransportError{Cause: err}
}

// UpstreamTimeoutError is a reverse-proxy request that exceeded its
// configured timeout. Rendered as 504.
type UpstreamTimeoutError struct{ Cause error }

func (e *UpstreamTimeoutError) Error() string { return fmt.Sprintf("flow: upstream timeout: %v", e.Cause) }
func (e *UpstreamTimeoutError) Unwrap() error { return e.Cause }

// UpstreamConnectError is a reverse-proxy dial failure. Rendered as 502
// with a connect-error marker.
type UpstreamConnectError struct{ Cause error }

func (e *UpstreamConnectError) Error() string { return fmt.Sprintf("flow: upstream connect error: %v", e.Cause) }
func (e *UpstreamConnectError) Unwrap() error { return e.Cause }

// UpstreamTransportError is any other transport-level reverse-proxy
// failure. Rendered as 502.
type UpstreamTransportError struct{ Cause error }

func (e *UpstreamTransportError) Error() string {
	return fmt.Sprintf("flow: upstream transport error: %v", e.Cause)
}
func (e *UpstreamTransportError) Unwrap() error { return e.Cause }
