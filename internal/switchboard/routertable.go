package switchboard

import (
	"crypto/tls"
	"fmt"

	"github.com/switchboard-io/switchboard/internal/core"
)

// RouteEntry is what a bind resolves to: the named service to hand the
// connection to, and an optional TLS config to terminate with first.
type RouteEntry struct {
	ServiceName string
	TLSName string
}

// RouterTable is the switchboard's resolved routing state for one
// installed ServiceConfig: bind address -> RouteEntry, plus the
// constructed services and materialized *tls.Config per TLS name. It is
// immutable once built, so it can be shared via a pointer across service
// tasks without locking.
type RouterTable struct {
	Routes map[string]RouteEntry
	Services map[string]Service
	TLS map[string]*tls.Config
}

// Lookup resolves a bind address to its route, if any.
func (t *RouterTable) Lookup(bind string) (RouteEntry, bool) {
	entry, ok := t.Routes[bind]
	return entry, ok
}

// BuildRouterTable resolves a validated ServiceConfig into a RouterTable:
// every tcp_services entry is constructed via registry, every tls entry
// is materialized into a *tls.Config, and tcp_routes become the bind ->
// RouteEntry map.
func BuildRouterTable(cfg *core.ServiceConfig, registry *ServiceRegistry) (*RouterTable, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	table := &RouterTable{
		Routes: map[string]RouteEntry{},
		Services: map[string]Service{},
		TLS: map[string]*tls.Config{},
	}

	for name, svcCfg := range cfg.TCPServices {
		svc, err := registry.Build(svcCfg)
		if err != nil {
			return nil, fmt.Errorf("switchboard: building service %q: %w", name, err)
		}
		table.Services[name] = svc
	}

	for name, tlsCfg := range cfg.TLS {
		tc, err := BuildTLSConfig(tlsCfg)
		if err != nil {
			return nil, fmt.Errorf("switchboard: building tls config %q: %w", name, err)
		}
		table.TLS[name] = tc
	}

	for addr, route := range cfg.TCPRoutes {
		table.Routes[addr] = RouteEntry{ServiceName: route.Service, TLSName: route.TLS}
	}

	return table, nil
}
