package gatewayapi

import (
	"fmt"

	gwv1alpha2 "sigs.k8s.io/gateway-api/apis/v1alpha2"

	"github.com/switchboard-io/switchboard/internal/core"
	"github.com/switchboard-io/switchboard/internal/serde"
)

const defaultBackendPort = 80

// flowBuilder accumulates one Gateway listener's instances as it walks
// the listener's matching HTTPRoutes, assigning each instance a name
// scoped to the service so two listeners' flows never collide.
type flowBuilder struct {
	service string
	instances map[core.InstanceID]core.InstanceData
	routerOutputs map[string]core.NodeOutput
	seq int
}

func newFlowBuilder(service string) *flowBuilder {
	return &flowBuilder{
		service: service,
		instances: map[core.InstanceID]core.InstanceData{},
		routerOutputs: map[string]core.NodeOutput{},
	}
}

func (b *flowBuilder) nextID(prefix string) core.InstanceID {
	b.seq++
	return core.InstanceID(fmt.Sprintf("%s-%s-%d", b.service, prefix, b.seq))
}

func (b *flowBuilder) addNode(id core.InstanceID, class string, config map[string]interface{}, iface core.NodeInterface) {
	b.instances[id] = core.InstanceData{
		Name: string(id),
		Class: core.ParseClassID(class),
		Kind: core.InstanceKindNode,
		Config: serde.FromNative(config),
		Interface: iface,
	}
}

func (b *flowBuilder) addFilter(id core.InstanceID, class string, config map[string]interface{}) core.InstanceID {
	b.instances[id] = core.InstanceData{
		Name: string(id),
		Class: core.ParseClassID(class),
		Kind: core.InstanceKindFilter,
		Config: serde.FromNative(config),
	}
	return id
}

// buildFlowConfig builds the router-rooted flow graph for one Gateway
// listener: a single router node whose host patterns fan out through
// path/rule buckets into one backend subgraph per HTTPRoute rule.
func (t *Translator) buildFlowConfig(serviceName string, listener gwv1alpha2.Listener, routes []gwv1alpha2.HTTPRoute) core.FlowConfig {
	b := newFlowBuilder(serviceName)
	routerID := b.nextID("router")

	var hosts []map[string]interface{}
	for _, route := range routes {
		hostnames := route.Spec.Hostnames
		if len(hostnames) == 0 {
			hostnames = []gwv1alpha2.Hostname{"*"}
		}
		var paths []map[string]interface{}
		for ruleIdx, rule := range route.Spec.Rules {
			outputPort := b.buildRuleOutput(route.Name, ruleIdx, rule)
			paths = append(paths, rulePathConfig(rule, outputPort))
		}
		for _, h := range hostnames {
			hosts = append(hosts, map[string]interface{}{
				"Pattern": string(h),
				"Paths": paths,
			})
		}
	}

	if len(hosts) == 0 {
		// A listener with no matching routes still needs a well-formed
		// flow: fall back to a catch-all host routed straight to an
		// internal 500, the same "zero backends" instance the per-rule
		// backend builder uses.
		outputPort := "no-route"
		b.routerOutputs[outputPort] = core.NodeOutput{Target: b.buildZeroBackendTarget()}
		hosts = append(hosts, map[string]interface{}{
			"Pattern": "*",
			"Paths": []map[string]interface{}{{
				"Fallback": true,
				"Rules": []map[string]interface{}{{"Output": outputPort}},
			}},
		})
	}

	routerConfig := map[string]interface{}{"Hosts": hosts}
	b.addNode(routerID, "router", routerConfig, core.NodeInterface{
		Inputs: map[string]core.InputPort{},
		Outputs: b.routerOutputs,
	})

	return core.FlowConfig{
		Entrypoint: core.NodeTarget{ID: routerID, Port: core.DefaultPort()},
		Instances: b.instances,
		Options: core.FlowOptions{MaxLoop: 8},
	}
}

// buildRuleOutput builds the backend subgraph for one HTTPRoute rule (the
// 0/1/N backend cases), registers it as a new
// output port on the router node, and returns that port's name.
func (b *flowBuilder) buildRuleOutput(routeName string, ruleIdx int, rule gwv1alpha2.HTTPRouteRule) string {
	port := fmt.Sprintf("%s-rule-%d", routeName, ruleIdx)

	filterIDs := b.buildFilterChain(fmt.Sprintf("%s-rule-%d", routeName, ruleIdx), rule.Filters)

	var target core.NodeTarget
	switch len(rule.BackendRefs) {
	case 0:
		target = b.buildZeroBackendTarget()
	case 1:
		// A single backend has no balancer output edge of its own, so its
		// backend-level filters (HTTPBackendRef.Filters) run as part of
		// this same router-output edge, after the rule-level filters.
		target = b.buildSingleBackendTarget(routeName, ruleIdx, rule.BackendRefs[0])
		filterIDs = append(filterIDs, b.buildFilterChain(fmt.Sprintf("%s-rule-%d-backend-0", routeName, ruleIdx), rule.BackendRefs[0].Filters)...)
	default:
		target = b.buildBalancedBackendTarget(routeName, ruleIdx, rule.BackendRefs)
	}

	b.routerOutputs[port] = core.NodeOutput{
		Target: target,
		Filters: filterIDs,
	}
	return port
}

// buildZeroBackendTarget routes to a dedicated internal 500-response
// instance, reused across every rule in this listener with no backends.
func (b *flowBuilder) buildZeroBackendTarget() core.NodeTarget {
	for id, inst := range b.instances {
		if inst.Class.Name == "static-response" && inst.Name == b.service+"-no-backend" {
			return core.NodeTarget{ID: id, Port: core.DefaultPort()}
		}
	}
	id := core.InstanceID(b.service + "-no-backend")
	b.addNode(id, "static-response", map[string]interface{}{
		"Status": 500,
		"Body": "switchboard: no backends configured for this route\n",
		}, core.NodeInterface{Inputs: map[string]core.InputPort{}, Outputs: map[string]core.NodeOutput{}})
	return core.NodeTarget{ID: id, Port: core.DefaultPort()}
}

func (b *flowBuilder) buildSingleBackendTarget(routeName string, ruleIdx int, ref gwv1alpha2.HTTPBackendRef) core.NodeTarget {
	proxyID := b.nextID(fmt.Sprintf("%s-rule-%d-proxy", routeName, ruleIdx))
	b.addNode(proxyID, "reverse-proxy", map[string]interface{}{
		"Scheme": "http",
		"Authority": backendAuthority(ref.BackendRef),
		}, core.NodeInterface{Inputs: map[string]core.InputPort{}, Outputs: map[string]core.NodeOutput{}})
	return core.NodeTarget{ID: proxyID, Port: core.DefaultPort()}
}

func (b *flowBuilder) buildBalancedBackendTarget(routeName string, ruleIdx int, refs []gwv1alpha2.HTTPBackendRef) core.NodeTarget {
	balancerID := b.nextID(fmt.Sprintf("%s-rule-%d-balancer", routeName, ruleIdx))

	var outputs []map[string]interface{}
	balancerOutputs := map[string]core.NodeOutput{}
	for i, ref := range refs {
		host := string(ref.Name)
		portName := fmt.Sprintf("backend-%d-%s", i, host)

		proxyID := b.nextID(fmt.Sprintf("%s-rule-%d-backend-%d", routeName, ruleIdx, i))
		b.addNode(proxyID, "reverse-proxy", map[string]interface{}{
			"Scheme": "http",
			"Authority": backendAuthority(ref.BackendRef),
			}, core.NodeInterface{Inputs: map[string]core.InputPort{}, Outputs: map[string]core.NodeOutput{}})

		weight := 1
		if ref.Weight != nil {
			weight = int(*ref.Weight)
			if weight <= 0 {
				weight = 1
			}
		}

		outputs = append(outputs, map[string]interface{}{"Port": portName, "Weight": weight})
		balancerOutputs[portName] = core.NodeOutput{
			Target: core.NodeTarget{ID: proxyID, Port: core.DefaultPort()},
			Filters: b.buildFilterChain(fmt.Sprintf("%s-rule-%d-backend-%d", routeName, ruleIdx, i), ref.Filters),
		}
	}

	b.addNode(balancerID, "balancer", map[string]interface{}{
		"Strategy": "round-robin",
		"Outputs": outputs,
		}, core.NodeInterface{Inputs: map[string]core.InputPort{}, Outputs: balancerOutputs})

	return core.NodeTarget{ID: balancerID, Port: core.DefaultPort()}
}

func backendAuthority(ref gwv1alpha2.BackendRef) string {
	namespace := "default"
	if ref.Namespace != nil {
		namespace = string(*ref.Namespace)
	}
	port := defaultBackendPort
	if ref.Port != nil {
		port = int(*ref.Port)
	}
	return fmt.Sprintf("%s.%s.svc.cluster.local:%d", ref.Name, namespace, port)
}

// buildFilterChain builds one flow filter instance per HTTPRouteFilter and
// returns their instance IDs in order. RequestHeaderModifier,
// RequestRedirect and URLRewrite (ReplacePrefixMatch paths only) are
// translated; any other filter is skipped.
func (b *flowBuilder) buildFilterChain(namePrefix string, filters []gwv1alpha2.HTTPRouteFilter) []core.InstanceID {
	var ids []core.InstanceID
	for i, filter := range filters {
		id := core.InstanceID(fmt.Sprintf("%s-%s-filter-%d", b.service, namePrefix, i))
		switch filter.Type {
		case gwv1alpha2.HTTPRouteFilterRequestHeaderModifier:
			if filter.RequestHeaderModifier == nil {
				continue
			}
			b.addFilter(id, "request-header-modify", map[string]interface{}{
				"Set": httpHeadersToMap(filter.RequestHeaderModifier.Set),
				"Add": httpHeadersToMultiMap(filter.RequestHeaderModifier.Add),
				"Remove": filter.RequestHeaderModifier.Remove,
			})
			ids = append(ids, id)
		case gwv1alpha2.HTTPRouteFilterRequestRedirect:
			if filter.RequestRedirect == nil {
				continue
			}
			status := 0
			if filter.RequestRedirect.StatusCode != nil {
				status = *filter.RequestRedirect.StatusCode
			}
			b.addFilter(id, "request-redirect", map[string]interface{}{
				"StatusCode": status,
				"LocationTemplate": redirectLocationTemplate(filter.RequestRedirect),
			})
			ids = append(ids, id)
		case gwv1alpha2.HTTPRouteFilterURLRewrite:
			if filter.URLRewrite == nil || filter.URLRewrite.Path == nil ||
			filter.URLRewrite.Path.Type != gwv1alpha2.PrefixMatchHTTPPathModifier ||
			filter.URLRewrite.Path.ReplacePrefixMatch == nil {
				continue
			}
			cfg := map[string]interface{}{
				"PathTemplate": *filter.URLRewrite.Path.ReplacePrefixMatch,
			}
			if filter.URLRewrite.Hostname != nil {
				cfg["HostnameTemplate"] = string(*filter.URLRewrite.Hostname)
			}
			b.addFilter(id, "url-rewrite", cfg)
			ids = append(ids, id)
		}
	}
	return ids
}

func redirectLocationTemplate(redirect *gwv1alpha2.HTTPRequestRedirectFilter) string {
	scheme := "{scheme}"
	if redirect.Scheme != nil {
		scheme = *redirect.Scheme
	}
	host := "{host}"
	if redirect.Hostname != nil {
		host = string(*redirect.Hostname)
	}
	port := ""
	if redirect.Port != nil {
		port = fmt.Sprintf(":%d", *redirect.Port)
	}
	return fmt.Sprintf("%s://%s%s{path}", scheme, host, port)
}

func httpHeadersToMap(headers []gwv1alpha2.HTTPHeader) map[string]string {
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		out[string(h.Name)] = h.Value
	}
	return out
}

func httpHeadersToMultiMap(headers []gwv1alpha2.HTTPHeader) map[string][]string {
	out := make(map[string][]string, len(headers))
	for _, h := range headers {
		out[string(h.Name)] = append(out[string(h.Name)], h.Value)
	}
	return out
}

func rulePathConfig(rule gwv1alpha2.HTTPRouteRule, outputPort string) map[string]interface{} {
	var ruleConfigs []map[string]interface{}
	if len(rule.Matches) == 0 {
		ruleConfigs = append(ruleConfigs, map[string]interface{}{"Output": outputPort})
	}
	for _, match := range rule.Matches {
		ruleConfigs = append(ruleConfigs, map[string]interface{}{
			"Method": httpMethodString(match.Method),
			"Headers": headerMatchConfigs(match.Headers),
			"Queries": queryMatchConfigs(match.QueryParams),
			"Output": outputPort,
		})
	}

	// The matches within one rule share a path match; use the first
	// match's path (Gateway API requires all matches in a rule to target
	// compatible paths in practice) or "/" if the rule has no matches.
	var pathMatch *gwv1alpha2.HTTPPathMatch
	if len(rule.Matches) > 0 {
		pathMatch = rule.Matches[0].Path
	}

	return map[string]interface{}{
		"Regex": pathMatchRegex(pathMatch),
		"Rules": ruleConfigs,
	}
}

func headerMatchConfigs(headers []gwv1alpha2.HTTPHeaderMatch) []map[string]interface{} {
	var out []map[string]interface{}
	for _, h := range headers {
		exact, regex := headerMatchValue(h)
		out = append(out, map[string]interface{}{"Name": string(h.Name), "Exact": exact, "Regex": regex})
	}
	return out
}

func queryMatchConfigs(params []gwv1alpha2.HTTPQueryParamMatch) []map[string]interface{} {
	var out []map[string]interface{}
	for _, q := range params {
		exact, regex := queryMatchValue(q)
		out = append(out, map[string]interface{}{"Name": q.Name, "Exact": exact, "Regex": regex})
	}
	return out
}
