package flow

import (
	"io"
	"net/http"
	"strings"

	"github.com/switchboard-io/switchboard/internal/core"
)

type staticResponseNodeConfig struct {
	Status  int
	Headers map[string]string
	Body    string
}

type staticResponseNode struct {
	status  int
	headers map[string]string
	body    string
}

func newStaticResponseNode(inst core.InstanceData, _ *Flow) (Node, error) {
	var cfg staticResponseNodeConfig
	if err := decodeConfig(inst.Config, &cfg); err != nil {
		return nil, err
	}
	status := cfg.Status
	if status == 0 {
		status = http.StatusOK
	}
	return &staticResponseNode{status: status, headers: cfg.Headers, body: cfg.Body}, nil
}

func (n *staticResponseNode) Handle(_ *Context, req *http.Request) (*http.Response, error) {
	header := http.Header{}
	for k, v := range n.headers {
		header.Set(k, v)
	}
	return &http.Response{
		StatusCode: n.status,
		Status:     http.StatusText(n.status),
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(n.body)),
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Request:    req,
	}, nil
}
