package flow

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/switchboard-io/switchboard/internal/core"
)

type timeoutConfig struct {
	Duration string
	TimeoutStatus int
	TimeoutBody string
}

type timeoutFilter struct {
	duration time.Duration
	status int
	body string
}

func newTimeoutFilter(inst core.InstanceData, _ *Flow) (Filter, error) {
	var cfg timeoutConfig
	if err := decodeConfig(inst.Config, &cfg); err != nil {
		return nil, fmt.Errorf("flow: decoding timeout config: %w", err)
	}
	if cfg.Duration == "" {
		return nil, fmt.Errorf("flow: timeout filter requires a duration")
	}
	d, err := time.ParseDuration(cfg.Duration)
	if err != nil {
		return nil, fmt.Errorf("flow: timeout duration: %w", err)
	}
	status := cfg.TimeoutStatus
	if status == 0 {
		status = http.StatusGatewayTimeout
	}
	return &timeoutFilter{duration: d, status: status, body: cfg.TimeoutBody}, nil
}

type timeoutResult struct {
	resp *http.Response
	err error
}

// Handle races next against a timer; on timeout it returns the configured
// response immediately. next keeps running in its own goroutine even
// after the timeout fires, matching the pattern of never
// cancelling in-flight upstream work just because the caller stopped
// waiting on it.
func (f *timeoutFilter) Handle(_ *Context, req *http.Request, next Next) (*http.Response, error) {
	done := make(chan timeoutResult, 1)
	go func() {
		resp, err := next.Call(req)
		done <- timeoutResult{resp: resp, err: err}
	}()

	timer := time.NewTimer(f.duration)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-timer.C:
		return &http.Response{
			StatusCode: f.status,
			Status: http.StatusText(f.status),
			Header: http.Header{},
			Body: io.NopCloser(strings.NewReader(f.body)),
			Proto: "HTTP/1.1",
			ProtoMajor: 1,
			ProtoMinor: 1,
			Request: req,
		}, nil
	}
}
