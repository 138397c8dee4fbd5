package switchboard

import (
	"context"
	"fmt"
	"net"

	"github.com/switchboard-io/switchboard/internal/core"
)

// Service is a named TCP service instance: given an accepted connection
// (already TLS-terminated if the route asked for it) and the peer's
// address, it drives that connection to completion.
type Service interface {
	Serve(ctx context.Context, conn net.Conn, peer net.Addr) error
}

// ServiceConstructor builds a Service from its TCPServiceConfig.
type ServiceConstructor func(core.TCPServiceConfig) (Service, error)

// ServiceRegistry maps a TCPServiceConfig.Provider name to the
// constructor that builds it, mirroring the flow package's class
// registry.
type ServiceRegistry struct {
	ctors map[string]ServiceConstructor
}

// NewServiceRegistry returns an empty ServiceRegistry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{ctors: map[string]ServiceConstructor{}}
}

func (r *ServiceRegistry) Register(provider string, ctor ServiceConstructor) {
	r.ctors[provider] = ctor
}

func (r *ServiceRegistry) Build(cfg core.TCPServiceConfig) (Service, error) {
	ctor, ok := r.ctors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("switchboard: service provider %q not registered", cfg.Provider)
	}
	return ctor(cfg)
}
