package controller

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-hclog"
	"sigs.k8s.io/controller-runtime/pkg/client/config"
	"k8s.io/client-go/kubernetes"

	internalcontroller "github.com/switchboard-io/switchboard/internal/controller"
	"github.com/switchboard-io/switchboard/internal/controller/objectstore"
	"github.com/switchboard-io/switchboard/internal/resolve"
	"github.com/switchboard-io/switchboard/internal/serde"
)

// Config collects RunController's dependencies, keeping the flag-parsing
// concerns in command.go separate from the process body in this file.
type Config struct {
	ControllerID string
	PSK []byte

	DiscoveryMode string
	SocketDirs []string
	K8sNamespace string
	K8sSelector string
	K8sPort int
	K8sContext string

	APIAddr string

	Logger hclog.Logger
}

// RunController wires the discoverer named by cfg.DiscoveryMode, the
// session pool, the state cache, and the config pusher into an
// internalcontroller.Controller, starts the resource-apply HTTP API, and
// blocks until ctx is done.
func RunController(ctx context.Context, cfg Config) int {
	discoverers, k8sClient, err := buildDiscoverers(cfg)
	if err != nil {
		cfg.Logger.Error("building kernel discoverers", "error", err)
		return 1
	}

	pool := internalcontroller.NewPool(cfg.ControllerID, cfg.PSK, cfg.Logger.Named("pool"))
	states := internalcontroller.NewStateCache()
	pusher := internalcontroller.NewPusher(serde.NewRegistry(), cfg.PSK, cfg.ControllerID)
	ctl := internalcontroller.New(pool, states, pusher, cfg.Logger.Named("controller"), discoverers...)

	var k8sSecrets resolve.K8sSecretFetcher
	if k8sClient != nil {
		k8sSecrets = resolve.NewClientGoSecretFetcher(k8sClient)
	}
	ctl.Resolver = resolve.New(objectstore.NewMemoryStore(), k8sSecrets)

	apiServer := &http.Server{
		Addr: cfg.APIAddr,
		Handler: newAPIHandler(ctl, states, cfg.Logger.Named("api")),
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- apiServer.ListenAndServe() }()

	cfg.Logger.Info("controller started", "discovery", cfg.DiscoveryMode, "api-addr", cfg.APIAddr)

	runErr := make(chan error, 1)
	go func() { runErr <- ctl.Run(ctx) }()

	select {
	case <-ctx.Done():
		_ = apiServer.Close()
		<-serveErr
		<-runErr
	case err := <-runErr:
		_ = apiServer.Close()
		<-serveErr
		if err != nil && err != context.Canceled {
			cfg.Logger.Error("controller exited", "error", err)
			return 1
		}
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			cfg.Logger.Error("resource-apply api exited", "error", err)
			return 1
		}
	}

	cfg.Logger.Info("controller shut down")
	return 0
}

// buildDiscoverers also returns the kubernetes.Interface it built for
// "k8s" discovery mode (nil otherwise), so RunController can reuse the
// same client for Secret-backed TLS cert resolution instead of building a
// second one.
func buildDiscoverers(cfg Config) ([]internalcontroller.Discoverer, kubernetes.Interface, error) {
	switch cfg.DiscoveryMode {
	case "", "fs":
		if len(cfg.SocketDirs) == 0 {
			return nil, nil, fmt.Errorf("-socket-dir is required for -discovery fs")
		}
		discoverers := make([]internalcontroller.Discoverer, 0, len(cfg.SocketDirs))
		for _, dir := range cfg.SocketDirs {
			discoverers = append(discoverers, internalcontroller.NewFSDiscoverer(dir, cfg.Logger))
		}
		return discoverers, nil, nil
	case "k8s":
		restConfig, err := config.GetConfigWithContext(cfg.K8sContext)
		if err != nil {
			return nil, nil, fmt.Errorf("getting kubernetes configuration: %w", err)
		}
		client, err := kubernetes.NewForConfig(restConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("building kubernetes client: %w", err)
		}
		return []internalcontroller.Discoverer{
			internalcontroller.NewK8sDiscoverer(client, cfg.K8sNamespace, cfg.K8sSelector, cfg.K8sPort, cfg.Logger),
		}, client, nil
	default:
		return nil, nil, fmt.Errorf("unknown discovery mode %q", cfg.DiscoveryMode)
	}
}
