package controller

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestFSDiscovererScanEmitsExistingSockets(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "kernel-1.sock"))
	require.NoError(t, err)
	f.Close()

	d := NewFSDiscoverer(dir, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan DiscoveryEvent, 8)
	go func() { _ = d.Run(ctx, events) }()

	select {
	case ev := <-events:
		require.Equal(t, "kernel-1", ev.Endpoint.ID)
		require.False(t, ev.Removed)
		require.Equal(t, "unix", ev.Endpoint.Network)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial scan event")
	}
}

func TestFSDiscovererEmitsCreateAndRemoveEvents(t *testing.T) {
	dir := t.TempDir()

	d := NewFSDiscoverer(dir, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan DiscoveryEvent, 8)
	go func() { _ = d.Run(ctx, events) }()

	time.Sleep(100 * time.Millisecond) // let the watcher attach before we write

	sockPath := filepath.Join(dir, "kernel-2.sock")
	f, err := os.Create(sockPath)
	require.NoError(t, err)
	f.Close()

	var created bool
	deadline := time.After(2 * time.Second)
	for !created {
		select {
		case ev := <-events:
			if ev.Endpoint.ID == "kernel-2" && !ev.Removed {
				created = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for create event")
		}
	}

	require.NoError(t, os.Remove(sockPath))

	var removed bool
	deadline = time.After(2 * time.Second)
	for !removed {
		select {
		case ev := <-events:
			if ev.Endpoint.ID == "kernel-2" && ev.Removed {
				removed = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for remove event")
		}
	}
}

func TestK8sDiscovererEmitsAddForRunningPod(t *testing.T) {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "kernel-pod-1",
			Namespace: "default",
			Labels:    map[string]string{"app": "switchboard-kernel"},
		},
		Status: corev1.PodStatus{PodIP: "10.0.0.5"},
	}
	client := fake.NewSimpleClientset(pod)

	d := NewK8sDiscoverer(client, "default", "app=switchboard-kernel", 9443, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan DiscoveryEvent, 8)
	go func() { _ = d.Run(ctx, events) }()

	select {
	case ev := <-events:
		require.Equal(t, "kernel-pod-1", ev.Endpoint.ID)
		require.Equal(t, "10.0.0.5:9443", ev.Endpoint.DialTarget)
		require.Equal(t, "tcp", ev.Endpoint.Network)
		require.False(t, ev.Removed)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for k8s discovery event")
	}
}
