package flow

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/switchboard-io/switchboard/internal/core"
)

type requestRedirectConfig struct {
	StatusCode       int
	LocationTemplate string
}

type requestRedirectFilter struct {
	status   int
	location string
}

func newRequestRedirectFilter(inst core.InstanceData, _ *Flow) (Filter, error) {
	var cfg requestRedirectConfig
	if err := decodeConfig(inst.Config, &cfg); err != nil {
		return nil, fmt.Errorf("flow: decoding request-redirect config: %w", err)
	}
	status := cfg.StatusCode
	if status == 0 {
		status = http.StatusFound
	}
	return &requestRedirectFilter{status: status, location: cfg.LocationTemplate}, nil
}

func (f *requestRedirectFilter) Handle(_ *Context, req *http.Request, _ Next) (*http.Response, error) {
	location := RenderPathTemplate(f.location, Captures(req))
	header := http.Header{}
	header.Set("Location", location)
	return &http.Response{
		StatusCode: f.status,
		Status:     http.StatusText(f.status),
		Header:     header,
		Body:       io.NopCloser(strings.NewReader("")),
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Request:    req,
	}, nil
}
