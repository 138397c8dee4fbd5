package controller

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// KernelEndpoint is a discovered kernel: a stable identifier and the
// address to dial its control channel on.
type KernelEndpoint struct {
	ID string
	DialTarget string
	Network string // "unix" or "tcp"
}

// Discoverer emits KernelEndpoint additions and removals onto out until
// ctx is cancelled. Both travel as a DiscoveryEvent; a removal has its
// Removed field set.
type Discoverer interface {
	Run(ctx context.Context, out chan<- DiscoveryEvent) error
}

// DiscoveryEvent is one add/remove transition for a kernel endpoint.
type DiscoveryEvent struct {
	Endpoint KernelEndpoint
	Removed bool
}

// FSDiscoverer watches a directory of Unix domain sockets. A socket's
// file stem (name without extension) becomes the kernel's identifier.
// Only files ending in ".sock" are considered.
type FSDiscoverer struct {
	Dir string
	Logger hclog.Logger
}

func NewFSDiscoverer(dir string, logger hclog.Logger) *FSDiscoverer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &FSDiscoverer{Dir: dir, Logger: logger.Named("fs-discoverer")}
}

func (d *FSDiscoverer) Run(ctx context.Context, out chan<- DiscoveryEvent) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return err
	}
	if err := watcher.Add(d.Dir); err != nil {
		return err
	}

	if err := d.scan(out); err != nil {
		d.Logger.Warn("initial socket directory scan failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			d.handleEvent(ev, out)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.Logger.Warn("fsnotify watch error", "error", err)
		}
	}
}

func (d *FSDiscoverer) scan(out chan<- DiscoveryEvent) error {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sock") {
			continue
		}
		out <- DiscoveryEvent{Endpoint: socketEndpoint(d.Dir, entry.Name())}
	}
	return nil
}

func (d *FSDiscoverer) handleEvent(ev fsnotify.Event, out chan<- DiscoveryEvent) {
	if !strings.HasSuffix(ev.Name, ".sock") {
		return
	}
	name := filepath.Base(ev.Name)
	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		out <- DiscoveryEvent{Endpoint: socketEndpoint(d.Dir, name)}
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		out <- DiscoveryEvent{Endpoint: socketEndpoint(d.Dir, name), Removed: true}
	}
}

func socketEndpoint(dir, name string) KernelEndpoint {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return KernelEndpoint{ID: stem, DialTarget: filepath.Join(dir, name), Network: "unix"}
}

// K8sDiscoverer enumerates kernel pods by label selector and emits their
// pod IP as a TCP dial target, the cluster-mode counterpart to
// FSDiscoverer's filesystem scan.
type K8sDiscoverer struct {
	Client kubernetes.Interface
	Namespace string
	LabelSelector string
	Port int
	PollInterval func() <-chan struct{} // overridable in tests; nil uses a real ticker
	Logger hclog.Logger
}

func NewK8sDiscoverer(client kubernetes.Interface, namespace, labelSelector string, port int, logger hclog.Logger) *K8sDiscoverer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &K8sDiscoverer{
		Client: client,
		Namespace: namespace,
		LabelSelector: labelSelector,
		Port: port,
		Logger: logger.Named("k8s-discoverer"),
	}
}

func (d *K8sDiscoverer) Run(ctx context.Context, out chan<- DiscoveryEvent) error {
	seen := map[string]bool{}
	var tick <-chan struct{}
	if d.PollInterval != nil {
		tick = d.PollInterval()
	} else {
		tick = tickerChan(ctx)
	}
	for {
		pods, err := d.Client.CoreV1().Pods(d.Namespace).List(ctx, metav1.ListOptions{LabelSelector: d.LabelSelector})
		if err != nil {
			d.Logger.Warn("pod listing failed", "error", err)
		} else {
			d.reconcile(pods.Items, seen, out)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
		}
	}
}

func (d *K8sDiscoverer) reconcile(pods []corev1.Pod, seen map[string]bool, out chan<- DiscoveryEvent) {
	current := map[string]bool{}
	for _, pod := range pods {
		if pod.Status.PodIP == "" {
			continue
		}
		id := pod.Name
		current[id] = true
		if seen[id] {
			continue
		}
		seen[id] = true
		out <- DiscoveryEvent{Endpoint: KernelEndpoint{
			ID: id,
			DialTarget: podDialTarget(pod.Status.PodIP, d.Port),
			Network: "tcp",
		}}
	}
	for id := range seen {
		if !current[id] {
			delete(seen, id)
			out <- DiscoveryEvent{Endpoint: KernelEndpoint{ID: id}, Removed: true}
		}
	}
}
