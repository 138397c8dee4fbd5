package flow

import (
	"fmt"
	"net/http"

	"github.com/switchboard-io/switchboard/internal/core"
)

type urlRewriteConfig struct {
	PathTemplate string
	HostnameTemplate string
}

type urlRewriteFilter struct {
	cfg urlRewriteConfig
}

func newURLRewriteFilter(inst core.InstanceData, _ *Flow) (Filter, error) {
	var cfg urlRewriteConfig
	if err := decodeConfig(inst.Config, &cfg); err != nil {
		return nil, fmt.Errorf("flow: decoding url-rewrite config: %w", err)
	}
	return &urlRewriteFilter{cfg: cfg}, nil
}

// Handle rewrites req's path (and optionally hostname, with the HOST
// header kept in sync) via RenderPathTemplate against the captures the
// router node stashed.
func (f *urlRewriteFilter) Handle(_ *Context, req *http.Request, next Next) (*http.Response, error) {
	captures := Captures(req)

	if f.cfg.PathTemplate != "" {
		req.URL.Path = RenderPathTemplate(f.cfg.PathTemplate, captures)
	}
	if f.cfg.HostnameTemplate != "" {
		host := RenderPathTemplate(f.cfg.HostnameTemplate, captures)
		req.URL.Host = host
		req.Host = host
	}

	return next.Call(req)
}
