package controller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/switchboard-io/switchboard/internal/core"
	"github.com/switchboard-io/switchboard/internal/serde"
)

// staticDiscoverer emits a fixed set of events once, then blocks until ctx
// is cancelled — a test double for the fsnotify/client-go discoverers.
type staticDiscoverer struct {
	events []DiscoveryEvent
}

func (d *staticDiscoverer) Run(ctx context.Context, out chan<- DiscoveryEvent) error {
	for _, ev := range d.events {
		out <- ev
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestControllerRunAddsDiscoveredKernelsToPool(t *testing.T) {
	pool := NewPool("controller-1", []byte("psk"), nil)
	states := NewStateCache()
	pusher := NewPusher(serde.NewRegistry(), []byte("psk"), "controller-1")

	disc := &staticDiscoverer{events: []DiscoveryEvent{
		{Endpoint: KernelEndpoint{ID: "kernel-1", DialTarget: "127.0.0.1:1", Network: "tcp"}},
	}}
	c := New(pool, states, pusher, nil, disc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := pool.Get("kernel-1")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestControllerPushToUnknownKernelFails(t *testing.T) {
	pool := NewPool("controller-1", []byte("psk"), nil)
	states := NewStateCache()
	pusher := NewPusher(serde.NewRegistry(), []byte("psk"), "controller-1")
	c := New(pool, states, pusher, nil)

	err := c.PushToKernel(context.Background(), "ghost", core.NewServiceConfig())
	require.Error(t, err)
	var unknown *UnknownKernelError
	require.ErrorAs(t, err, &unknown)
}
