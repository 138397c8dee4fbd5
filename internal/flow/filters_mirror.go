package flow

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/switchboard-io/switchboard/internal/core"
)

type requestMirrorConfig struct {
	Probability float64
	Scheme      string
	Authority   string
	Timeout     string
}

type requestMirrorFilter struct {
	probability float64
	scheme      string
	authority   string
	client      *http.Client
}

func newRequestMirrorFilter(inst core.InstanceData, _ *Flow) (Filter, error) {
	var cfg requestMirrorConfig
	if err := decodeConfig(inst.Config, &cfg); err != nil {
		return nil, fmt.Errorf("flow: decoding request-mirror config: %w", err)
	}
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "http"
	}
	timeout := 10 * time.Second
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("flow: request-mirror timeout: %w", err)
		}
		timeout = d
	}
	return &requestMirrorFilter{
		probability: cfg.Probability,
		scheme:      scheme,
		authority:   cfg.Authority,
		client:      &http.Client{Transport: sharedProxyTransport, Timeout: timeout},
	}, nil
}

// Handle probabilistically clones req's body and dispatches it to the
// mirror target concurrently, in a goroutine whose errors are swallowed;
// the original request continues down the chain unmodified.
func (f *requestMirrorFilter) Handle(_ *Context, req *http.Request, next Next) (*http.Response, error) {
	if f.authority == "" || rand.Float64() >= f.probability {
		return next.Call(req)
	}

	var bodyCopy []byte
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("flow: request-mirror: reading body: %w", err)
		}
		req.Body.Close()
		bodyCopy = data
		req.Body = io.NopCloser(bytes.NewReader(data))
	}

	go f.dispatchMirror(req, bodyCopy)

	return next.Call(req)
}

func (f *requestMirrorFilter) dispatchMirror(original *http.Request, body []byte) {
	mirrorReq, err := http.NewRequest(original.Method, f.scheme+"://"+f.authority+original.URL.RequestURI(), bytes.NewReader(body))
	if err != nil {
		return
	}
	mirrorReq.Header = original.Header.Clone()
	mirrorReq.Host = f.authority

	resp, err := f.client.Do(mirrorReq)
	if err != nil {
		return
	}
	resp.Body.Close()
}
