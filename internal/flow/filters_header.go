package flow

import (
	"fmt"
	"net/http"

	"github.com/switchboard-io/switchboard/internal/core"
)

// headerModifyConfig describes a set/remove/extend mutation pass over a
// header set, shared by both the request and response variants.
type headerModifyConfig struct {
	Set    map[string]string
	Remove []string
	Add    map[string][]string
}

func applyHeaderModify(header http.Header, cfg headerModifyConfig) {
	for _, name := range cfg.Remove {
		header.Del(name)
	}
	for name, value := range cfg.Set {
		header.Set(name, value)
	}
	for name, values := range cfg.Add {
		for _, v := range values {
			header.Add(name, v)
		}
	}
}

type requestHeaderModifyFilter struct{ cfg headerModifyConfig }

func newRequestHeaderModifyFilter(inst core.InstanceData, _ *Flow) (Filter, error) {
	var cfg headerModifyConfig
	if err := decodeConfig(inst.Config, &cfg); err != nil {
		return nil, fmt.Errorf("flow: decoding request-header-modify config: %w", err)
	}
	return &requestHeaderModifyFilter{cfg: cfg}, nil
}

func (f *requestHeaderModifyFilter) Handle(_ *Context, req *http.Request, next Next) (*http.Response, error) {
	applyHeaderModify(req.Header, f.cfg)
	return next.Call(req)
}

type responseHeaderModifyFilter struct{ cfg headerModifyConfig }

func newResponseHeaderModifyFilter(inst core.InstanceData, _ *Flow) (Filter, error) {
	var cfg headerModifyConfig
	if err := decodeConfig(inst.Config, &cfg); err != nil {
		return nil, fmt.Errorf("flow: decoding response-header-modify config: %w", err)
	}
	return &responseHeaderModifyFilter{cfg: cfg}, nil
}

func (f *responseHeaderModifyFilter) Handle(_ *Context, req *http.Request, next Next) (*http.Response, error) {
	resp, err := next.Call(req)
	if err != nil {
		return nil, err
	}
	applyHeaderModify(resp.Header, f.cfg)
	return resp, nil
}
