// Package controller implements the control-plane side of switchboard:
// discovering kernels, maintaining one supervised channel.Session per
// kernel, pushing resolved configuration, and caching the state kernels
// report back.
package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/switchboard-io/switchboard/internal/channel"
	"github.com/switchboard-io/switchboard/internal/core"
)

// CertResolver materializes a TLSConfig.CertLink into CertParams.
// Satisfied by *resolve.Resolver; declared locally so this package
// doesn't need to import resolve just to accept one method.
type CertResolver interface {
	ResolveCertParams(ctx context.Context, link core.Link) (core.CertParams, error)
}

// Controller ties discovery, the connection pool, and the state cache
// together into the single long-running component that
// internal/commands/controller's RunController wires up: construct
// dependencies, then Run blocks until ctx is done.
type Controller struct {
	Discoverers []Discoverer
	Pool *Pool
	States *StateCache
	Pusher *Pusher
	Logger hclog.Logger

	// Resolver materializes any TLSConfig.CertLink left unresolved in a
	// pushed config. Nil means configs carrying a CertLink are rejected by
	// resolveLinks instead of silently pushed with a dangling reference.
	Resolver CertResolver

	PushTimeout time.Duration
}

func New(pool *Pool, states *StateCache, pusher *Pusher, logger hclog.Logger, discoverers...Discoverer) *Controller {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	c := &Controller{
		Discoverers: discoverers,
		Pool: pool,
		States: states,
		Pusher: pusher,
		Logger: logger.Named("controller"),
		PushTimeout: 10 * time.Second,
	}
	pool.OnState = c.handlePoolMessage
	return c
}

// Run starts every discoverer and blocks, dispatching discovered kernels
// into the pool and retiring removed ones, until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	events := make(chan DiscoveryEvent, 64)

	for _, d := range c.Discoverers {
		d := d
		go func() {
			if err := d.Run(ctx, events); err != nil && ctx.Err() == nil {
				c.Logger.Warn("discoverer exited", "error", err)
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			c.handleDiscoveryEvent(ctx, ev)
		}
	}
}

func (c *Controller) handleDiscoveryEvent(ctx context.Context, ev DiscoveryEvent) {
	if ev.Removed {
		c.Logger.Info("kernel endpoint removed", "kernel", ev.Endpoint.ID)
		c.Pool.Remove(ev.Endpoint.ID)
		return
	}
	if _, exists := c.Pool.Get(ev.Endpoint.ID); exists {
		return
	}
	c.Logger.Info("kernel endpoint discovered", "kernel", ev.Endpoint.ID, "target", ev.Endpoint.DialTarget)
	go c.Pool.Supervise(ctx, ev.Endpoint)
}

func (c *Controller) handlePoolMessage(kernelID string, msg channel.Message) {
	switch m := msg.(type) {
	case channel.KernelHeartBeat:
		c.States.Update(kernelID, m.State)
	case channel.BeenTookOver:
		c.Logger.Warn("kernel reports new controller took over", "kernel", kernelID, "new_controller", m.NewControllerInfo)
	}
}

// PushToKernel materializes any unresolved core.Link the config's TLS
// entries carry, then pushes the fully-resolved ServiceConfig to a single
// kernel by ID. Returns an error if the kernel isn't in the pool, has no
// live session, or a CertLink can't be resolved.
func (c *Controller) PushToKernel(ctx context.Context, kernelID string, cfg *core.ServiceConfig) error {
	entry, ok := c.Pool.Get(kernelID)
	if !ok {
		return &UnknownKernelError{KernelID: kernelID}
	}
	if err := c.resolveLinks(ctx, cfg); err != nil {
		return err
	}
	return c.Pusher.Push(entry, cfg, c.PushTimeout)
}

// ResolveAndValidate resolves every TLSConfig.CertLink in cfg in place,
// then runs cfg.Validate. Callers that decode a config off the wire
// (the resource-apply API, a Gateway API translation) should use this
// instead of calling cfg.Validate directly, so a CertLink is always
// materialized before the cross-reference checks run.
func (c *Controller) ResolveAndValidate(ctx context.Context, cfg *core.ServiceConfig) error {
	if err := c.resolveLinks(ctx, cfg); err != nil {
		return err
	}
	return cfg.Validate()
}

// resolveLinks replaces every TLSConfig.CertLink in cfg with its
// materialized Single CertParams, in place.
func (c *Controller) resolveLinks(ctx context.Context, cfg *core.ServiceConfig) error {
	var result *multierror.Error
	for name, tlsCfg := range cfg.TLS {
		if tlsCfg.CertLink == nil {
			continue
		}
		if c.Resolver == nil {
			result = multierror.Append(result, fmt.Errorf("tls[%s]: cert_link set but no resolver configured", name))
			continue
		}
		params, err := c.Resolver.ResolveCertParams(ctx, *tlsCfg.CertLink)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("tls[%s]: resolving cert_link: %w", name, err))
			continue
		}
		tlsCfg.Single = params
		tlsCfg.CertLink = nil
		cfg.TLS[name] = tlsCfg
	}
	return result.ErrorOrNil()
}

// UnknownKernelError is returned when an operation names a kernel ID the
// pool has no entry for.
type UnknownKernelError struct {
	KernelID string
}

func (e *UnknownKernelError) Error() string {
	return "controller: unknown kernel " + e.KernelID
}
