// Package gatewayapi translates Kubernetes Gateway API objects
// (GatewayClass, Gateway, HTTPRoute) into the kernel's own configuration
// model: a core.ServiceConfig carrying a "http-flow" service per Gateway
// listener and one core.FlowConfig per service, targeting the flow graph
// (router/balancer/reverse-proxy/static-response) rather than a
// sidecar's native resources.
package gatewayapi

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	gwv1alpha2 "sigs.k8s.io/gateway-api/apis/v1alpha2"

	"github.com/switchboard-io/switchboard/internal/core"
)

// DefaultControllerName is this project's GatewayClass controller name,
// the value a GatewayClass.Spec.ControllerName must carry for its
// Gateways to be translated.
const DefaultControllerName = "switchboard.io/gateway-controller"

// CertResolver resolves a Gateway listener's TLS certificate reference
// into materialized CertParams. Satisfied by *resolve.Resolver; kept as a
// narrow local interface so this package doesn't need to import resolve
// just to accept one method.
type CertResolver interface {
	ResolveCertParams(ctx context.Context, link core.Link) (core.CertParams, error)
}

// Input is the set of cluster objects to translate. Callers (the
// controller's k8s watch layer) are responsible for listing these
// objects; this package performs no k8s I/O of its own beyond the
// CertResolver call for TLS materials.
type Input struct {
	GatewayClasses []gwv1alpha2.GatewayClass
	Gateways []gwv1alpha2.Gateway
	HTTPRoutes []gwv1alpha2.HTTPRoute
}

// Translator builds a core.ServiceConfig from Gateway API objects.
type Translator struct {
	ControllerName string
	Certs CertResolver
}

// New returns a Translator for controllerName. certs may be nil; listeners
// with a TLS config are then skipped with a translation error instead of
// a cert lookup attempt.
func New(controllerName string, certs CertResolver) *Translator {
	if controllerName == "" {
		controllerName = DefaultControllerName
	}
	return &Translator{ControllerName: controllerName, Certs: certs}
}

// Translate builds the combined ServiceConfig for every Gateway owned by
// a GatewayClass whose ControllerName matches t.ControllerName. Per-object
// translation failures are collected rather than aborting the whole
// translation, so one malformed Gateway doesn't block the rest of the
// cluster's configuration from installing.
func (t *Translator) Translate(ctx context.Context, in Input) (*core.ServiceConfig, error) {
	ownedClasses := map[string]bool{}
	for _, class := range in.GatewayClasses {
		if string(class.Spec.ControllerName) == t.ControllerName {
			ownedClasses[class.Name] = true
		}
	}

	routesByParent := groupRoutesByParent(in.HTTPRoutes)

	cfg := core.NewServiceConfig()
	var result *multierror.Error

	for _, gw := range in.Gateways {
		if !ownedClasses[string(gw.Spec.GatewayClassName)] {
			continue
		}
		if err := t.translateGateway(ctx, cfg, gw, routesByParent); err != nil {
			result = multierror.Append(result, fmt.Errorf("gateway %s/%s: %w", gw.Namespace, gw.Name, err))
		}
	}

	return cfg, result.ErrorOrNil()
}

// gatewayKey identifies a Gateway as an HTTPRoute parentRef target.
type gatewayKey struct {
	namespace string
	name string
}

func groupRoutesByParent(routes []gwv1alpha2.HTTPRoute) map[gatewayKey][]gwv1alpha2.HTTPRoute {
	out := map[gatewayKey][]gwv1alpha2.HTTPRoute{}
	for _, route := range routes {
		for _, parent := range route.Spec.ParentRefs {
			namespace := route.Namespace
			if parent.Namespace != nil {
				namespace = string(*parent.Namespace)
			}
			key := gatewayKey{namespace: namespace, name: string(parent.Name)}
			out[key] = append(out[key], route)
		}
	}
	return out
}

func (t *Translator) translateGateway(ctx context.Context, cfg *core.ServiceConfig, gw gwv1alpha2.Gateway, routesByParent map[gatewayKey][]gwv1alpha2.HTTPRoute) error {
	routes := routesByParent[gatewayKey{namespace: gw.Namespace, name: gw.Name}]

	var result *multierror.Error
	for i, listener := range gw.Spec.Listeners {
		if err := t.translateListener(ctx, cfg, gw, listener, routes); err != nil {
			result = multierror.Append(result, fmt.Errorf("listener[%d] %q: %w", i, listener.Name, err))
		}
	}
	return result.ErrorOrNil()
}

func (t *Translator) translateListener(ctx context.Context, cfg *core.ServiceConfig, gw gwv1alpha2.Gateway, listener gwv1alpha2.Listener, routes []gwv1alpha2.HTTPRoute) error {
	bind := fmt.Sprintf("0.0.0.0:%d", listener.Port)
	serviceName := fmt.Sprintf("%s-%s-%s", gw.Namespace, gw.Name, listener.Name)

	matching := sortedRouteNames(matchingRoutes(listener, gw, routes))
	fc := t.buildFlowConfig(serviceName, listener, matching)

	cfg.TCPServices[serviceName] = core.TCPServiceConfig{
		Provider: "http-flow",
		Name: serviceName,
		Config: core.FlowConfigToValue(fc),
		Description: fmt.Sprintf("gateway %s/%s listener %s", gw.Namespace, gw.Name, listener.Name),
	}

	tlsName := ""
	if listener.TLS != nil {
		var err error
		tlsName, err = t.translateListenerTLS(ctx, cfg, gw, listener)
		if err != nil {
			return err
		}
	}

	cfg.TCPListeners[bind] = core.TCPListenerConfig{
		Bind: bind,
		Description: fmt.Sprintf("gateway %s/%s listener %s", gw.Namespace, gw.Name, listener.Name),
	}
	cfg.TCPRoutes[bind] = core.TCPRouteConfig{
		Bind: bind,
		Service: serviceName,
		TLS: tlsName,
	}
	return nil
}

// matchingRoutes filters routes to those whose parentRef section (if any)
// selects this specific listener by name.
func matchingRoutes(listener gwv1alpha2.Listener, gw gwv1alpha2.Gateway, routes []gwv1alpha2.HTTPRoute) []gwv1alpha2.HTTPRoute {
	var out []gwv1alpha2.HTTPRoute
	for _, route := range routes {
		for _, parent := range route.Spec.ParentRefs {
			if string(parent.Name) != gw.Name {
				continue
			}
			if parent.SectionName != nil && string(*parent.SectionName) != string(listener.Name) {
				continue
			}
			out = append(out, route)
			break
		}
	}
	return out
}

func (t *Translator) translateListenerTLS(ctx context.Context, cfg *core.ServiceConfig, gw gwv1alpha2.Gateway, listener gwv1alpha2.Listener) (string, error) {
	if len(listener.TLS.CertificateRefs) == 0 {
		return "", fmt.Errorf("listener %q: tls set with no certificateRefs", listener.Name)
	}
	if t.Certs == nil {
		return "", fmt.Errorf("listener %q: tls set but no CertResolver configured", listener.Name)
	}

	ref := listener.TLS.CertificateRefs[0]
	namespace := gw.Namespace
	if ref.Namespace != nil {
		namespace = string(*ref.Namespace)
	}

	params, err := t.Certs.ResolveCertParams(ctx, core.K8sResourceLink(namespace, string(ref.Name)))
	if err != nil {
		return "", fmt.Errorf("resolving certificate %s/%s: %w", namespace, ref.Name, err)
	}

	tlsName := fmt.Sprintf("%s-%s-%s", gw.Namespace, gw.Name, listener.Name)
	cfg.TLS[tlsName] = core.TLSConfig{
		Resolver: core.TLSResolverSNI,
		SNI: map[string]core.CertParams{
			hostnamePattern(listener.Hostname): params,
		},
	}
	return tlsName, nil
}

func hostnamePattern(hostname *gwv1alpha2.Hostname) string {
	if hostname == nil || *hostname == "" {
		return "*"
	}
	return string(*hostname)
}

// sortedRouteNames returns route names in a stable order, so translation
// output (and therefore ServiceConfig.Digest) doesn't depend on List
// ordering from the k8s client.
func sortedRouteNames(routes []gwv1alpha2.HTTPRoute) []gwv1alpha2.HTTPRoute {
	out := append([]gwv1alpha2.HTTPRoute(nil), routes...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Namespace != out[j].Namespace {
			return out[i].Namespace < out[j].Namespace
		}
		return out[i].Name < out[j].Name
	})
	return out
}
