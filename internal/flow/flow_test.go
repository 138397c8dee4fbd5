package flow

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/switchboard-io/switchboard/internal/core"
	"github.com/switchboard-io/switchboard/internal/serde"
)

// passthroughNode immediately calls its single "default" output port.
type passthroughNode struct{}

func (passthroughNode) Handle(ctx *Context, req *http.Request) (*http.Response, error) {
	return ctx.Call(req, "default")
}

// echoNode copies the X-Trail request header onto an X-Trail response
// header, so filter-chain ordering can be observed from the outside.
type echoNode struct{}

func (echoNode) Handle(_ *Context, req *http.Request) (*http.Response, error) {
	header := http.Header{}
	header["X-Trail"] = req.Header["X-Trail"]
	return &http.Response{
		StatusCode: http.StatusOK,
		Header: header,
		Body: io.NopCloser(bytes.NewReader(nil)),
		Proto: "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
	}, nil
}

func newTestRegistry() *Registry {
	reg := NewRegistry()
	reg.RegisterNode(core.ClassID{Name: "test-passthrough"}, func(core.InstanceData, *Flow) (Node, error) {
		return passthroughNode{}, nil
	})
	reg.RegisterNode(core.ClassID{Name: "test-echo"}, func(core.InstanceData, *Flow) (Node, error) {
		return echoNode{}, nil
	})
	reg.RegisterFilter(core.ClassID{Name: "request-header-modify"}, newRequestHeaderModifyFilter)
	reg.RegisterFilter(core.ClassID{Name: "response-header-modify"}, newResponseHeaderModifyFilter)
	return reg
}

func addHeaderConfig(values...string) serde.Value {
	seq := make([]serde.Value, len(values))
	for i, v := range values {
		seq[i] = serde.String(v)
	}
	return serde.Map(map[string]serde.Value{
		"Add": serde.Map(map[string]serde.Value{
			"X-Trail": serde.Sequence(seq),
		}),
	})
}

// TestFilterChainOrder exercises scenario 4: a
// request passes through output filters then input filters then the
// target node, and the response unwinds through them in reverse.
func TestFilterChainOrder(t *testing.T) {
	cfg := &core.FlowConfig{
		Entrypoint: core.NodeTarget{ID: "N", Port: core.DefaultPort()},
		Options: core.FlowOptions{MaxLoop: 4},
		Instances: map[core.InstanceID]core.InstanceData{
			"N": {
				Kind: core.InstanceKindNode,
				Class: core.ClassID{Name: "test-passthrough"},
				Interface: core.NodeInterface{
					Inputs: map[string]core.InputPort{"": {}},
					Outputs: map[string]core.NodeOutput{
						"default": {
							Target: core.NodeTarget{ID: "M", Port: core.DefaultPort()},
							Filters: []core.InstanceID{"f1", "f2"},
						},
					},
				},
			},
			"M": {
				Kind: core.InstanceKindNode,
				Class: core.ClassID{Name: "test-echo"},
				Interface: core.NodeInterface{
					Inputs: map[string]core.InputPort{"": {Filters: []core.InstanceID{"g1"}}},
				},
			},
			"f1": {Kind: core.InstanceKindFilter, Class: core.ClassID{Name: "request-header-modify"}, Config: addHeaderConfig("f1")},
			"f2": {Kind: core.InstanceKindFilter, Class: core.ClassID{Name: "request-header-modify"}, Config: addHeaderConfig("f2")},
			"g1": {Kind: core.InstanceKindFilter, Class: core.ClassID{Name: "request-header-modify"}, Config: addHeaderConfig("g1")},
		},
	}

	f, err := Build(cfg, newTestRegistry())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	resp, err := f.Dispatch(req)
	require.NoError(t, err)
	require.Equal(t, []string{"f1", "f2", "g1"}, resp.Header["X-Trail"])
}

func TestFilterChainResponseUnwindOrder(t *testing.T) {
	cfg := &core.FlowConfig{
		Entrypoint: core.NodeTarget{ID: "N", Port: core.DefaultPort()},
		Options: core.FlowOptions{MaxLoop: 4},
		Instances: map[core.InstanceID]core.InstanceData{
			"N": {
				Kind: core.InstanceKindNode,
				Class: core.ClassID{Name: "test-passthrough"},
				Interface: core.NodeInterface{
					Inputs: map[string]core.InputPort{"": {}},
					Outputs: map[string]core.NodeOutput{
						"default": {
							Target: core.NodeTarget{ID: "M", Port: core.DefaultPort()},
							Filters: []core.InstanceID{"f1", "f2"},
						},
					},
				},
			},
			"M": {
				Kind: core.InstanceKindNode,
				Class: core.ClassID{Name: "test-echo"},
				Interface: core.NodeInterface{
					Inputs: map[string]core.InputPort{"": {Filters: []core.InstanceID{"g1"}}},
				},
			},
			"f1": {Kind: core.InstanceKindFilter, Class: core.ClassID{Name: "response-header-modify"}, Config: addHeaderConfig("f1")},
			"f2": {Kind: core.InstanceKindFilter, Class: core.ClassID{Name: "response-header-modify"}, Config: addHeaderConfig("f2")},
			"g1": {Kind: core.InstanceKindFilter, Class: core.ClassID{Name: "response-header-modify"}, Config: addHeaderConfig("g1")},
		},
	}

	f, err := Build(cfg, newTestRegistry())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	resp, err := f.Dispatch(req)
	require.NoError(t, err)
	require.Equal(t, []string{"g1", "f2", "f1"}, resp.Header["X-Trail"])
}

func loopConfig(maxLoop int) *core.FlowConfig {
	return &core.FlowConfig{
		Entrypoint: core.NodeTarget{ID: "N", Port: core.DefaultPort()},
		Options: core.FlowOptions{MaxLoop: maxLoop},
		Instances: map[core.InstanceID]core.InstanceData{
			"N": {
				Kind: core.InstanceKindNode,
				Class: core.ClassID{Name: "test-passthrough"},
				Interface: core.NodeInterface{
					Inputs: map[string]core.InputPort{"": {}},
					Outputs: map[string]core.NodeOutput{
						"default": {Target: core.NodeTarget{ID: "N", Port: core.DefaultPort()}},
					},
				},
			},
		},
	}
}

// TestLoopDetection checks that a self-loop fires LoopDetected once
// max_loop visits are exceeded.
func TestLoopDetection(t *testing.T) {
	f, err := Build(loopConfig(3), newTestRegistry())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	_, err = f.Dispatch(req)

	var loopErr *LoopDetectedError
	require.ErrorAs(t, err, &loopErr)
	require.Equal(t, 3, loopErr.MaxLoop)
	require.Len(t, loopErr.Trace, 4)
}

func TestPathTemplateSubstitution(t *testing.T) {
	captures := map[string]string{"id": "42"}

	require.Equal(t, "/items/42", RenderPathTemplate("/items/{id}", captures))
	require.Equal(t, "/items/default", RenderPathTemplate("/items/{missing=default}", captures))
	require.Equal(t, "/items/", RenderPathTemplate("/items/{missing}", captures))
	require.Equal(t, "/{literal}/42", RenderPathTemplate("/{{literal}}/{id}", captures))
}
