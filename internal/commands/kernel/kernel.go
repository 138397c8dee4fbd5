package kernel

import (
	"context"
	"net"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/switchboard-io/switchboard/internal/flow"
	internalkernel "github.com/switchboard-io/switchboard/internal/kernel"
	"github.com/switchboard-io/switchboard/internal/serde"
	"github.com/switchboard-io/switchboard/internal/switchboard"
)

// Config collects RunKernel's dependencies, keeping the flag-parsing
// concerns in command.go separate from the process body in this file.
type Config struct {
	KernelID string
	Network string
	Listen string
	PSK []byte
	HeartbeatInterval time.Duration
	Logger hclog.Logger
}

// RunKernel builds the switchboard and flow registries, wires the
// http-flow service provider, and blocks serving the control channel
// listener until ctx is done.
func RunKernel(ctx context.Context, cfg Config) int {
	registry := switchboard.NewServiceRegistry()
	flowRegistry := flow.NewBuiltinRegistry()
	registry.Register(internalkernel.FlowServiceProvider, internalkernel.NewFlowServiceConstructor(flowRegistry))
	registry.Register(internalkernel.Socks5ServiceProvider, internalkernel.NewSocks5ServiceConstructor())

	sb := switchboard.New(cfg.Logger.Named("switchboard"), registry, ctx)
	if err := sb.EnsureRunning(ctx); err != nil {
		cfg.Logger.Error("starting switchboard", "error", err)
		return 1
	}

	k := internalkernel.New(cfg.KernelID, cfg.PSK, sb, serde.NewRegistry(), cfg.Logger.Named("kernel"))
	if cfg.HeartbeatInterval > 0 {
		k.HeartbeatInterval = cfg.HeartbeatInterval
	}

	ln, err := net.Listen(cfg.Network, cfg.Listen)
	if err != nil {
		cfg.Logger.Error("listening for controller connections", "network", cfg.Network, "address", cfg.Listen, "error", err)
		return 1
	}
	defer ln.Close()

	cfg.Logger.Info("kernel listening for controller connections", "network", cfg.Network, "address", cfg.Listen)

	err = k.ListenAndServe(ctx, ln)
	sb.Halt()
	if err != nil && err != context.Canceled {
		cfg.Logger.Error("kernel control loop exited", "error", err)
		return 1
	}

	cfg.Logger.Info("kernel shut down")
	return 0
}
