package core

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/switchboard-io/switchboard/internal/common"
	"github.com/switchboard-io/switchboard/internal/serde"
)

// TCPServiceConfig describes one named backend service instance.
type TCPServiceConfig struct {
	Provider string
	Name string
	Config serde.Value
	Description string
}

// TCPListenerConfig describes a bind the switchboard must accept on.
type TCPListenerConfig struct {
	Bind string
	Description string
}

// TCPRouteConfig binds a listener's address to a service, optionally
// terminating TLS with the named TLSConfig first.
type TCPRouteConfig struct {
	Bind string
	Service string
	TLS string // empty means no TLS
}

// ServiceConfig is the kernel's complete active configuration: four
// ordered maps plus one TLS map.
type ServiceConfig struct {
	TCPServices map[string]TCPServiceConfig
	TCPListeners map[string]TCPListenerConfig
	TCPRoutes map[string]TCPRouteConfig
	TLS map[string]TLSConfig
}

// NewServiceConfig returns an empty, non-nil ServiceConfig.
func NewServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		TCPServices: map[string]TCPServiceConfig{},
		TCPListeners: map[string]TCPListenerConfig{},
		TCPRoutes: map[string]TCPRouteConfig{},
		TLS: map[string]TLSConfig{},
	}
}

// Validate checks the cross-reference invariants:
//
// - every route's service must exist in tcp_services
// - every route's tls (if set) must exist in tls
// - tcp_listeners keys and tcp_routes keys must match
//
// All violations are collected rather than returning on the first one, so
// a config push failure reports every problem in one ErrorStack.
func (c *ServiceConfig) Validate() error {
	var result *multierror.Error

	for addr, route := range c.TCPRoutes {
		if _, ok := c.TCPServices[route.Service]; !ok {
			result = multierror.Append(result, fmt.Errorf(
				"tcp_routes[%s]: service %q is not defined in tcp_services", addr, route.Service))
		}
		if route.TLS != "" {
			if _, ok := c.TLS[route.TLS]; !ok {
				result = multierror.Append(result, fmt.Errorf(
					"tcp_routes[%s]: tls %q is not defined in tls", addr, route.TLS))
			}
		}
		if _, ok := c.TCPListeners[addr]; !ok {
			result = multierror.Append(result, fmt.Errorf(
				"tcp_routes[%s]: no listener is bound for this address", addr))
		}
	}

	for addr := range c.TCPListeners {
		if _, ok := c.TCPRoutes[addr]; !ok {
			result = multierror.Append(result, fmt.Errorf(
				"tcp_listeners[%s]: no route is bound to this listener", addr))
		}
	}

	for name, tlsCfg := range c.TLS {
		if err := validateTLSOptions(tlsCfg.Options); err != nil {
			result = multierror.Append(result, fmt.Errorf("tls[%s]: %w", name, err))
		}
		if tlsCfg.CertLink != nil {
			result = multierror.Append(result, fmt.Errorf(
				"tls[%s]: cert_link is unresolved; a resolve.Resolver must materialize it before this config is pushed", name))
		}
	}

	return result.ErrorOrNil()
}

// validateTLSOptions checks a TLSConfig's handshake tuning against the
// cipher suites and versions switchboard's TLS listeners actually
// support.
func validateTLSOptions(opts TLSOptions) error {
	var result *multierror.Error

	if opts.MinVersion != "" {
		if _, ok := common.SupportedTLSVersions[opts.MinVersion]; !ok {
			result = multierror.Append(result, fmt.Errorf("unsupported min_version %q", opts.MinVersion))
		}
	}
	if opts.MaxVersion != "" {
		if _, ok := common.SupportedTLSVersions[opts.MaxVersion]; !ok {
			result = multierror.Append(result, fmt.Errorf("unsupported max_version %q", opts.MaxVersion))
		}
	}
	for _, cs := range opts.CipherSuites {
		if !common.SupportedTLSCipherSuite(cs) {
			result = multierror.Append(result, fmt.Errorf("unsupported cipher suite %q", cs))
		}
	}
	if len(opts.CipherSuites) > 0 {
		if _, ok := common.TLSVersionsWithConfigurableCipherSuites[opts.MinVersion]; !ok {
			result = multierror.Append(result, fmt.Errorf(
				"cipher_suites cannot be set with min_version %q", opts.MinVersion))
		}
	}

	return result.ErrorOrNil()
}

// ToValue produces a canonical serde.Value representation of the config,
// used both for wire encoding and for digest computation. Map iteration
// order is irrelevant here because serde's bincode codec sorts map keys on
// encode, which is what makes Digest stable.
func (c *ServiceConfig) ToValue() serde.Value {
	services := make(map[string]serde.Value, len(c.TCPServices))
	for k, v := range c.TCPServices {
		services[k] = serde.Map(map[string]serde.Value{
			"provider": serde.String(v.Provider),
			"name": serde.String(v.Name),
			"config": v.Config,
			"description": serde.String(v.Description),
		})
	}

	listeners := make(map[string]serde.Value, len(c.TCPListeners))
	for k, v := range c.TCPListeners {
		listeners[k] = serde.Map(map[string]serde.Value{
			"bind": serde.String(v.Bind),
			"description": serde.String(v.Description),
		})
	}

	routes := make(map[string]serde.Value, len(c.TCPRoutes))
	for k, v := range c.TCPRoutes {
		routes[k] = serde.Map(map[string]serde.Value{
			"bind": serde.String(v.Bind),
			"service": serde.String(v.Service),
			"tls": serde.String(v.TLS),
		})
	}

	tlsMap := make(map[string]serde.Value, len(c.TLS))
	for k, v := range c.TLS {
		tlsMap[k] = tlsConfigToValue(v)
	}

	return serde.Map(map[string]serde.Value{
		"tcp_services": serde.Map(services),
		"tcp_listeners": serde.Map(listeners),
		"tcp_routes": serde.Map(routes),
		"tls": serde.Map(tlsMap),
	})
}

func tlsConfigToValue(v TLSConfig) serde.Value {
	certParamsValue := func(c CertParams) serde.Value {
		chain := make([]serde.Value, len(c.CertChain))
		for i, der := range c.CertChain {
			chain[i] = serde.Bytes(der)
		}
		return serde.Map(map[string]serde.Value{
			"cert_chain": serde.Sequence(chain),
			"private_key": serde.Bytes(c.PrivateKey),
			"ocsp_response": serde.Bytes(c.OCSPResponse),
		})
	}

	var resolverValue serde.Value
	switch v.Resolver {
	case TLSResolverSNI:
		sni := make(map[string]serde.Value, len(v.SNI))
		for host, cp := range v.SNI {
			sni[host] = certParamsValue(cp)
		}
		resolverValue = serde.Map(map[string]serde.Value{"sni": serde.Map(sni)})
	default:
		resolverValue = serde.Map(map[string]serde.Value{"single": certParamsValue(v.Single)})
	}

	certLinkValue := serde.None()
	if v.CertLink != nil {
		certLinkValue = serde.Some(LinkToValue(*v.CertLink))
	}

	return serde.Map(map[string]serde.Value{
		"resolver": resolverValue,
		"options": serde.Map(map[string]serde.Value{
			"min_version": serde.String(v.Options.MinVersion),
			"max_version": serde.String(v.Options.MaxVersion),
		}),
		"cert_link": certLinkValue,
	})
}

// ServiceConfigFromValue is the inverse of ToValue, used by the kernel to
// decode an incoming config push's payload back into a *ServiceConfig
// before validating and installing it.
func ServiceConfigFromValue(v serde.Value) (*ServiceConfig, error) {
	m, ok := v.AsMap()
	if !ok {
		return nil, fmt.Errorf("core: service config is not a map")
	}
	cfg := NewServiceConfig()

	servicesMap, _ := m["tcp_services"].AsMap()
	for k, sv := range servicesMap {
		sm, ok := sv.AsMap()
		if !ok {
			return nil, fmt.Errorf("core: tcp_services[%s] is not a map", k)
		}
		provider, _ := sm["provider"].AsString()
		name, _ := sm["name"].AsString()
		description, _ := sm["description"].AsString()
		cfg.TCPServices[k] = TCPServiceConfig{
			Provider: provider,
			Name: name,
			Config: sm["config"],
			Description: description,
		}
	}

	listenersMap, _ := m["tcp_listeners"].AsMap()
	for k, lv := range listenersMap {
		lm, ok := lv.AsMap()
		if !ok {
			return nil, fmt.Errorf("core: tcp_listeners[%s] is not a map", k)
		}
		bind, _ := lm["bind"].AsString()
		description, _ := lm["description"].AsString()
		cfg.TCPListeners[k] = TCPListenerConfig{Bind: bind, Description: description}
	}

	routesMap, _ := m["tcp_routes"].AsMap()
	for k, rv := range routesMap {
		rm, ok := rv.AsMap()
		if !ok {
			return nil, fmt.Errorf("core: tcp_routes[%s] is not a map", k)
		}
		bind, _ := rm["bind"].AsString()
		service, _ := rm["service"].AsString()
		tls, _ := rm["tls"].AsString()
		cfg.TCPRoutes[k] = TCPRouteConfig{Bind: bind, Service: service, TLS: tls}
	}

	tlsMap, _ := m["tls"].AsMap()
	for k, tv := range tlsMap {
		tc, err := tlsConfigFromValue(tv)
		if err != nil {
			return nil, fmt.Errorf("core: tls[%s]: %w", k, err)
		}
		cfg.TLS[k] = tc
	}

	return cfg, nil
}

func certParamsFromValue(v serde.Value) CertParams {
	m, ok := v.AsMap()
	if !ok {
		return CertParams{}
	}
	var chain [][]byte
	if seq, ok := m["cert_chain"].AsSequence(); ok {
		chain = make([][]byte, len(seq))
		for i, c := range seq {
			chain[i], _ = c.AsBytes()
		}
	}
	privateKey, _ := m["private_key"].AsBytes()
	ocsp, _ := m["ocsp_response"].AsBytes()
	return CertParams{CertChain: chain, PrivateKey: privateKey, OCSPResponse: ocsp}
}

func tlsConfigFromValue(v serde.Value) (TLSConfig, error) {
	m, ok := v.AsMap()
	if !ok {
		return TLSConfig{}, fmt.Errorf("tls config is not a map")
	}

	resolverMap, ok := m["resolver"].AsMap()
	if !ok {
		return TLSConfig{}, fmt.Errorf("tls config resolver is not a map")
	}

	var cfg TLSConfig
	if sniValue, ok := resolverMap["sni"]; ok {
		cfg.Resolver = TLSResolverSNI
		sniMap, _ := sniValue.AsMap()
		cfg.SNI = make(map[string]CertParams, len(sniMap))
		for host, cp := range sniMap {
			cfg.SNI[host] = certParamsFromValue(cp)
		}
	} else if singleValue, ok := resolverMap["single"]; ok {
		cfg.Resolver = TLSResolverSingle
		cfg.Single = certParamsFromValue(singleValue)
	}

	if optionsMap, ok := m["options"].AsMap(); ok {
		minVersion, _ := optionsMap["min_version"].AsString()
		maxVersion, _ := optionsMap["max_version"].AsString()
		cfg.Options = TLSOptions{MinVersion: minVersion, MaxVersion: maxVersion}
	}

	if inner, present, ok := m["cert_link"].AsOption(); ok && present {
		if link, ok := LinkFromValue(inner); ok {
			cfg.CertLink = &link
		}
	}

	return cfg, nil
}

// Digest computes the config version: base64(SHA-256(canonical bincode
// encoding)).
func (c *ServiceConfig) Digest() (string, error) {
	encoded, err := serde.BincodeCodec{}.EncodeValue(c.ToValue())
	if err != nil {
		return "", fmt.Errorf("core: encoding config for digest: %w", err)
	}
	return digestBytes(encoded), nil
}

func digestBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return base64.StdEncoding.EncodeToString(sum[:])
}
