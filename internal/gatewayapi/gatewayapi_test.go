package gatewayapi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	gwv1alpha2 "sigs.k8s.io/gateway-api/apis/v1alpha2"

	"github.com/switchboard-io/switchboard/internal/core"
)

func namespacePtr(s string) *gwv1alpha2.Namespace {
	ns := gwv1alpha2.Namespace(s)
	return &ns
}

func sectionNamePtr(s string) *gwv1alpha2.SectionName {
	n := gwv1alpha2.SectionName(s)
	return &n
}

func portNumberPtr(p int32) *gwv1alpha2.PortNumber {
	n := gwv1alpha2.PortNumber(p)
	return &n
}

func gatewayClass(name, controllerName string) gwv1alpha2.GatewayClass {
	return gwv1alpha2.GatewayClass{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Spec:       gwv1alpha2.GatewayClassSpec{ControllerName: gwv1alpha2.GatewayController(controllerName)},
	}
}

func gateway(namespace, name, className string, listeners ...gwv1alpha2.Listener) gwv1alpha2.Gateway {
	return gwv1alpha2.Gateway{
		ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: name},
		Spec: gwv1alpha2.GatewaySpec{
			GatewayClassName: gwv1alpha2.ObjectName(className),
			Listeners:        listeners,
		},
	}
}

func httpRoute(namespace, name, parentGateway string, rules ...gwv1alpha2.HTTPRouteRule) gwv1alpha2.HTTPRoute {
	return gwv1alpha2.HTTPRoute{
		ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: name},
		Spec: gwv1alpha2.HTTPRouteSpec{
			CommonRouteSpec: gwv1alpha2.CommonRouteSpec{
				ParentRefs: []gwv1alpha2.ParentReference{{Name: gwv1alpha2.ObjectName(parentGateway)}},
			},
			Rules: rules,
		},
	}
}

func backendRef(name string, port int32) gwv1alpha2.HTTPBackendRef {
	return gwv1alpha2.HTTPBackendRef{
		BackendRef: gwv1alpha2.BackendRef{
			BackendObjectReference: gwv1alpha2.BackendObjectReference{
				Name: gwv1alpha2.ObjectName(name),
				Port: portNumberPtr(port),
			},
		},
	}
}

func TestTranslateIgnoresGatewaysFromOtherControllers(t *testing.T) {
	in := Input{
		GatewayClasses: []gwv1alpha2.GatewayClass{gatewayClass("other-class", "other.io/controller")},
		Gateways: []gwv1alpha2.Gateway{gateway("default", "gw1", "other-class", gwv1alpha2.Listener{
			Name: "http", Port: 80, Protocol: gwv1alpha2.HTTPProtocolType,
		})},
	}
	tr := New(DefaultControllerName, nil)
	cfg, err := tr.Translate(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, cfg.TCPServices)
	require.Empty(t, cfg.TCPListeners)
}

func TestTranslateSingleBackendBuildsReverseProxyFlow(t *testing.T) {
	in := Input{
		GatewayClasses: []gwv1alpha2.GatewayClass{gatewayClass("switchboard", DefaultControllerName)},
		Gateways: []gwv1alpha2.Gateway{gateway("default", "gw1", "switchboard", gwv1alpha2.Listener{
			Name: "http", Port: 8080, Protocol: gwv1alpha2.HTTPProtocolType,
		})},
		HTTPRoutes: []gwv1alpha2.HTTPRoute{httpRoute("default", "route1", "gw1", gwv1alpha2.HTTPRouteRule{
			BackendRefs: []gwv1alpha2.HTTPBackendRef{backendRef("svc-a", 8000)},
		})},
	}
	tr := New(DefaultControllerName, nil)
	cfg, err := tr.Translate(context.Background(), in)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	svc, ok := cfg.TCPServices["default-gw1-http"]
	require.True(t, ok)
	require.Equal(t, "http-flow", svc.Provider)

	fc, err := core.FlowConfigFromValue(svc.Config)
	require.NoError(t, err)
	require.NoError(t, fc.Validate())

	var sawProxy bool
	for _, inst := range fc.Instances {
		if inst.Class.Name == "reverse-proxy" {
			sawProxy = true
		}
		require.NotEqual(t, "balancer", inst.Class.Name, "single backend must not produce a balancer node")
	}
	require.True(t, sawProxy)

	require.Contains(t, cfg.TCPListeners, "0.0.0.0:8080")
	require.Equal(t, "default-gw1-http", cfg.TCPRoutes["0.0.0.0:8080"].Service)
}

func TestTranslateMultiBackendBuildsBalancerWithWeightedOutputs(t *testing.T) {
	in := Input{
		GatewayClasses: []gwv1alpha2.GatewayClass{gatewayClass("switchboard", DefaultControllerName)},
		Gateways: []gwv1alpha2.Gateway{gateway("default", "gw1", "switchboard", gwv1alpha2.Listener{
			Name: "http", Port: 80, Protocol: gwv1alpha2.HTTPProtocolType,
		})},
		HTTPRoutes: []gwv1alpha2.HTTPRoute{httpRoute("default", "route1", "gw1", gwv1alpha2.HTTPRouteRule{
			BackendRefs: []gwv1alpha2.HTTPBackendRef{
				backendRef("svc-a", 8000),
				backendRef("svc-b", 8000),
			},
		})},
	}
	tr := New(DefaultControllerName, nil)
	cfg, err := tr.Translate(context.Background(), in)
	require.NoError(t, err)

	svc := cfg.TCPServices["default-gw1-http"]
	fc, err := core.FlowConfigFromValue(svc.Config)
	require.NoError(t, err)
	require.NoError(t, fc.Validate())

	var balancer *core.InstanceData
	var proxyCount int
	for id := range fc.Instances {
		inst := fc.Instances[id]
		switch inst.Class.Name {
		case "balancer":
			i := inst
			balancer = &i
		case "reverse-proxy":
			proxyCount++
		}
	}
	require.NotNil(t, balancer)
	require.Equal(t, 2, proxyCount)
	require.Len(t, balancer.Interface.Outputs, 2)
}

func TestTranslateZeroBackendRoutesToInternalErrorResponse(t *testing.T) {
	in := Input{
		GatewayClasses: []gwv1alpha2.GatewayClass{gatewayClass("switchboard", DefaultControllerName)},
		Gateways: []gwv1alpha2.Gateway{gateway("default", "gw1", "switchboard", gwv1alpha2.Listener{
			Name: "http", Port: 80, Protocol: gwv1alpha2.HTTPProtocolType,
		})},
		HTTPRoutes: []gwv1alpha2.HTTPRoute{httpRoute("default", "route1", "gw1", gwv1alpha2.HTTPRouteRule{})},
	}
	tr := New(DefaultControllerName, nil)
	cfg, err := tr.Translate(context.Background(), in)
	require.NoError(t, err)

	svc := cfg.TCPServices["default-gw1-http"]
	fc, err := core.FlowConfigFromValue(svc.Config)
	require.NoError(t, err)
	require.NoError(t, fc.Validate())

	var sawStaticResponse bool
	for _, inst := range fc.Instances {
		if inst.Class.Name == "static-response" {
			sawStaticResponse = true
		}
	}
	require.True(t, sawStaticResponse)
}

func TestTranslateSectionNameRestrictsRouteToMatchingListener(t *testing.T) {
	route := httpRoute("default", "route1", "gw1", gwv1alpha2.HTTPRouteRule{
		BackendRefs: []gwv1alpha2.HTTPBackendRef{backendRef("svc-a", 8000)},
	})
	route.Spec.ParentRefs[0].SectionName = sectionNamePtr("https")

	in := Input{
		GatewayClasses: []gwv1alpha2.GatewayClass{gatewayClass("switchboard", DefaultControllerName)},
		Gateways: []gwv1alpha2.Gateway{gateway("default", "gw1", "switchboard",
			gwv1alpha2.Listener{Name: "http", Port: 80, Protocol: gwv1alpha2.HTTPProtocolType},
			gwv1alpha2.Listener{Name: "https", Port: 443, Protocol: gwv1alpha2.HTTPSProtocolType},
		)},
		HTTPRoutes: []gwv1alpha2.HTTPRoute{route},
	}
	tr := New(DefaultControllerName, nil)
	cfg, err := tr.Translate(context.Background(), in)
	require.NoError(t, err)

	httpFC, err := core.FlowConfigFromValue(cfg.TCPServices["default-gw1-http"].Config)
	require.NoError(t, err)
	httpsFC, err := core.FlowConfigFromValue(cfg.TCPServices["default-gw1-https"].Config)
	require.NoError(t, err)

	require.False(t, hasClass(httpFC, "reverse-proxy"))
	require.True(t, hasClass(httpsFC, "reverse-proxy"))
}

func hasClass(fc core.FlowConfig, class string) bool {
	for _, inst := range fc.Instances {
		if inst.Class.Name == class {
			return true
		}
	}
	return false
}

type stubCertResolver struct {
	params core.CertParams
	err    error
}

func (s stubCertResolver) ResolveCertParams(ctx context.Context, link core.Link) (core.CertParams, error) {
	return s.params, s.err
}

func TestTranslateListenerTLSResolvesCertificateIntoTLSConfig(t *testing.T) {
	certs := stubCertResolver{params: core.CertParams{CertChain: [][]byte{[]byte("der-bytes")}}}
	in := Input{
		GatewayClasses: []gwv1alpha2.GatewayClass{gatewayClass("switchboard", DefaultControllerName)},
		Gateways: []gwv1alpha2.Gateway{gateway("default", "gw1", "switchboard", gwv1alpha2.Listener{
			Name: "https", Port: 443, Protocol: gwv1alpha2.HTTPSProtocolType,
			Hostname: hostnamePtr("example.com"),
			TLS: &gwv1alpha2.GatewayTLSConfig{
				CertificateRefs: []gwv1alpha2.SecretObjectReference{{Name: "example-tls"}},
			},
		})},
		HTTPRoutes: []gwv1alpha2.HTTPRoute{httpRoute("default", "route1", "gw1", gwv1alpha2.HTTPRouteRule{
			BackendRefs: []gwv1alpha2.HTTPBackendRef{backendRef("svc-a", 8000)},
		})},
	}
	tr := New(DefaultControllerName, certs)
	cfg, err := tr.Translate(context.Background(), in)
	require.NoError(t, err)

	route := cfg.TCPRoutes["0.0.0.0:443"]
	require.NotEmpty(t, route.TLS)
	tlsCfg := cfg.TLS[route.TLS]
	require.Equal(t, core.TLSResolverSNI, tlsCfg.Resolver)
	require.Contains(t, tlsCfg.SNI, "example.com")
}

func TestTranslateListenerTLSWithoutResolverFailsTranslation(t *testing.T) {
	in := Input{
		GatewayClasses: []gwv1alpha2.GatewayClass{gatewayClass("switchboard", DefaultControllerName)},
		Gateways: []gwv1alpha2.Gateway{gateway("default", "gw1", "switchboard", gwv1alpha2.Listener{
			Name: "https", Port: 443, Protocol: gwv1alpha2.HTTPSProtocolType,
			TLS: &gwv1alpha2.GatewayTLSConfig{
				CertificateRefs: []gwv1alpha2.SecretObjectReference{{Name: "example-tls"}},
			},
		})},
	}
	tr := New(DefaultControllerName, nil)
	_, err := tr.Translate(context.Background(), in)
	require.Error(t, err)
}

func hostnamePtr(s string) *gwv1alpha2.Hostname {
	h := gwv1alpha2.Hostname(s)
	return &h
}

var _ = corev1.SecretTypeTLS
