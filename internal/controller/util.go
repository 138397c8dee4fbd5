package controller

import (
	"context"
	"fmt"
	"time"
)

// k8sPollInterval is how often K8sDiscoverer re-lists pods. Kept short
// relative to a real cluster's pod churn since this package has no
// informer/watch wiring.
const k8sPollInterval = 5 * time.Second

func tickerChan(ctx context.Context) <-chan struct{} {
	out := make(chan struct{})
	go func() {
		t := time.NewTicker(k8sPollInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func podDialTarget(ip string, port int) string {
	return fmt.Sprintf("%s:%d", ip, port)
}
