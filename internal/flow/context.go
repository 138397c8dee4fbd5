package flow

import (
	"context"
	"net/http"

	"github.com/switchboard-io/switchboard/internal/core"
)

// captureKey is the context.Context key under which Context stores the
// router's path captures, so downstream filters (url-rewrite) can read
// them.
type captureKey struct{}

// Context carries one request's traversal state through the flow graph:
// the node currently executing, the pending-call trace used for loop
// detection, and the configured loop budget.
type Context struct {
	flow *Flow
	nodeID core.InstanceID
	trace []core.InstanceID
	maxLoop int
}

// Captures returns the path captures stashed on req by a router node, or
// nil if none have been set.
func Captures(req *http.Request) map[string]string {
	v, _ := req.Context().Value(captureKey{}).(map[string]string)
	return v
}

// WithCaptures returns a request carrying captures for downstream filters
// to read via Captures.
func WithCaptures(req *http.Request, captures map[string]string) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), captureKey{}, captures))
}

// Call dispatches req from the node currently executing (ctx.nodeID) out
// through the named output port, resolving the edge, invoking the target
// node, and returning its response up the call chain.
func (ctx *Context) Call(req *http.Request, port string) (*http.Response, error) {
	source, ok := ctx.flow.Config.Instances[ctx.nodeID]
	if !ok {
		return nil, &NodeNotFoundError{ID: ctx.nodeID}
	}
	output, ok := source.Interface.Outputs[port]
	if !ok {
		return nil, &InvalidPortError{NodeID: ctx.nodeID, Port: port}
	}

	visits := 0
	for _, id := range ctx.trace {
		if id == output.Target.ID {
			visits++
		}
	}
	if visits >= ctx.maxLoop {
		full := append(append([]core.InstanceID{}, ctx.trace...), output.Target.ID)
		return nil, &LoopDetectedError{Target: output.Target.ID, MaxLoop: ctx.maxLoop, Trace: full}
	}

	targetInst, ok := ctx.flow.Config.Instances[output.Target.ID]
	if !ok || targetInst.Kind != core.InstanceKindNode {
		return nil, &NodeNotFoundError{ID: output.Target.ID}
	}
	targetNode, ok := ctx.flow.nodes[output.Target.ID]
	if !ok {
		return nil, &NodeNotFoundError{ID: output.Target.ID}
	}

	var inputFilters []core.InstanceID
	inputKey := ""
	if !output.Target.Port.IsDefault {
		inputKey = output.Target.Port.Name
	}
	if input, ok := targetInst.Interface.Inputs[inputKey]; ok {
		inputFilters = input.Filters
	}

	chain := make([]core.InstanceID, 0, len(output.Filters)+len(inputFilters))
	chain = append(chain, output.Filters...)
	chain = append(chain, inputFilters...)

	nextTrace := append(append([]core.InstanceID{}, ctx.trace...), output.Target.ID)
	targetCtx := &Context{flow: ctx.flow, nodeID: output.Target.ID, trace: nextTrace, maxLoop: ctx.maxLoop}

	terminal := next(func(r *http.Request) (*http.Response, error) {
		return targetNode.Handle(targetCtx, r)
	})

	return ctx.buildChain(targetCtx, chain, terminal).Call(req)
}

// buildChain wraps terminal in the flow's filters, in list order, so that
// chain[0] runs first and invokes chain[1] via next, and so on.
func (ctx *Context) buildChain(fctx *Context, chain []core.InstanceID, terminal Next) Next {
	n := terminal
	for i := len(chain) - 1; i >= 0; i-- {
		id := chain[i]
		filter, ok := ctx.flow.filters[id]
		if !ok {
			n = next(func(r *http.Request) (*http.Response, error) {
				return nil, &FilterNotFoundError{ID: id}
			})
			continue
		}
		inner := n
		f := filter
		n = next(func(r *http.Request) (*http.Response, error) {
			return f.Handle(fctx, r, inner)
		})
	}
	return n
}

type next func(req *http.Request) (*http.Response, error)

func (n next) Call(req *http.Request) (*http.Response, error) { return n(req) }
