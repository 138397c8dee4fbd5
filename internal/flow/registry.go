package flow

import "github.com/switchboard-io/switchboard/internal/core"

// Registry maps a ClassID to the constructor that builds a live Node or
// Filter from its InstanceData design note: registry lookups happen once at
// build time, not per request.
type Registry struct {
	nodes map[core.ClassID]NodeConstructor
	filters map[core.ClassID]FilterConstructor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		nodes: map[core.ClassID]NodeConstructor{},
		filters: map[core.ClassID]FilterConstructor{},
	}
}

// NewBuiltinRegistry returns a Registry pre-populated with the built-in
// node and filter classes.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	r.RegisterNode(core.ClassID{Name: "router"}, newRouterNode)
	r.RegisterNode(core.ClassID{Name: "balancer"}, newBalancerNode)
	r.RegisterNode(core.ClassID{Name: "reverse-proxy"}, newReverseProxyNode)
	r.RegisterNode(core.ClassID{Name: "static-response"}, newStaticResponseNode)

	r.RegisterFilter(core.ClassID{Name: "request-header-modify"}, newRequestHeaderModifyFilter)
	r.RegisterFilter(core.ClassID{Name: "response-header-modify"}, newResponseHeaderModifyFilter)
	r.RegisterFilter(core.ClassID{Name: "url-rewrite"}, newURLRewriteFilter)
	r.RegisterFilter(core.ClassID{Name: "request-redirect"}, newRequestRedirectFilter)
	r.RegisterFilter(core.ClassID{Name: "request-mirror"}, newRequestMirrorFilter)
	r.RegisterFilter(core.ClassID{Name: "timeout"}, newTimeoutFilter)
	return r
}

func (r *Registry) RegisterNode(id core.ClassID, ctor NodeConstructor) {
	r.nodes[id] = ctor
}

func (r *Registry) RegisterFilter(id core.ClassID, ctor FilterConstructor) {
	r.filters[id] = ctor
}

func (r *Registry) Node(id core.ClassID) (NodeConstructor, bool) {
	ctor, ok := r.nodes[id]
	return ctor, ok
}

func (r *Registry) Filter(id core.ClassID) (FilterConstructor, bool) {
	ctor, ok := r.filters[id]
	return ctor, ok
}
