// Package flow implements the HTTP flow engine: a graph of typed nodes
// and filters through which each request/response traverses.
package flow

import (
	"fmt"
	"net/http"

	"github.com/switchboard-io/switchboard/internal/core"
)

// Node is a flow-graph vertex: routers, balancers, reverse proxies, and
// static responders all implement it.
type Node interface {
	Handle(ctx *Context, req *http.Request) (*http.Response, error)
}

// Next is the continuation a Filter may invoke to proceed down the chain.
type Next interface {
	Call(req *http.Request) (*http.Response, error)
}

// Filter wraps one transition between two nodes. It may short-circuit or
// call next to continue.
type Filter interface {
	Handle(ctx *Context, req *http.Request, next Next) (*http.Response, error)
}

// NodeConstructor builds a Node from its InstanceData config.
type NodeConstructor func(core.InstanceData, *Flow) (Node, error)

// FilterConstructor builds a Filter from its InstanceData config.
type FilterConstructor func(core.InstanceData, *Flow) (Filter, error)

// Flow is a resolved, ready-to-dispatch FlowConfig: every instance has been
// constructed into a live Node or Filter via the class registry.
type Flow struct {
	Config *core.FlowConfig
	nodes map[core.InstanceID]Node
	filters map[core.InstanceID]Filter
}

// Build resolves every instance in cfg against reg, after validating the
// graph's structural invariants.
func Build(cfg *core.FlowConfig, reg *Registry) (*Flow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	f := &Flow{
		Config: cfg,
		nodes: map[core.InstanceID]Node{},
		filters: map[core.InstanceID]Filter{},
	}

	for id, inst := range cfg.Instances {
		switch inst.Kind {
		case core.InstanceKindNode:
			ctor, ok := reg.Node(inst.Class)
			if !ok {
				return nil, fmt.Errorf("flow: node class %q not registered", inst.Class)
			}
			node, err := ctor(inst, f)
			if err != nil {
				return nil, fmt.Errorf("flow: constructing node %q: %w", id, err)
			}
			f.nodes[id] = node
		case core.InstanceKindFilter:
			ctor, ok := reg.Filter(inst.Class)
			if !ok {
				return nil, fmt.Errorf("flow: filter class %q not registered", inst.Class)
			}
			filter, err := ctor(inst, f)
			if err != nil {
				return nil, fmt.Errorf("flow: constructing filter %q: %w", id, err)
			}
			f.filters[id] = filter
		}
	}

	return f, nil
}

// Dispatch runs req through the flow's entrypoint node.
func (f *Flow) Dispatch(req *http.Request) (*http.Response, error) {
	maxLoop := f.Config.Options.MaxLoop
	if maxLoop <= 0 {
		maxLoop = defaultMaxLoop
	}
	ctx := &Context{
		flow: f,
		nodeID: f.Config.Entrypoint.ID,
		maxLoop: maxLoop,
	}
	node, ok := f.nodes[f.Config.Entrypoint.ID]
	if !ok {
		return nil, &NodeNotFoundError{ID: f.Config.Entrypoint.ID}
	}
	return node.Handle(ctx, req)
}

const defaultMaxLoop = 8

// InvalidPortError is returned when a node calls an output port it does
// not declare.
type InvalidPortError struct {
	NodeID core.InstanceID
	Port string
}

func (e *InvalidPortError) Error() string {
	return fmt.Sprintf("flow: node %q has no output port %q", e.NodeID, e.Port)
}

// NodeNotFoundError is returned when a NodeTarget references an instance
// that is not a resolved node.
type NodeNotFoundError struct {
	ID core.InstanceID
}

func (e *NodeNotFoundError) Error() string {
	return fmt.Sprintf("flow: node %q not found", e.ID)
}

// FilterNotFoundError is returned when a filter chain references an
// instance that did not resolve to a constructed Filter.
type FilterNotFoundError struct {
	ID core.InstanceID
}

func (e *FilterNotFoundError) Error() string {
	return fmt.Sprintf("flow: filter %q not found", e.ID)
}

// LoopDetectedError is returned when a target node would be visited more
// than MaxLoop times within one request's pending trace.
type LoopDetectedError struct {
	Target core.InstanceID
	MaxLoop int
	Trace []core.InstanceID
}

func (e *LoopDetectedError) Error() string {
	return fmt.Sprintf("flow: loop detected: node %q visited beyond max_loop=%d (trace=%v)", e.Target, e.MaxLoop, e.Trace)
}
