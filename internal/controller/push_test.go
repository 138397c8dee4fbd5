package controller

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/switchboard-io/switchboard/internal/channel"
	"github.com/switchboard-io/switchboard/internal/core"
	"github.com/switchboard-io/switchboard/internal/serde"
)

func newPipedEntry(kernelConn, controllerConn net.Conn) *PoolEntry {
	entry := &PoolEntry{Endpoint: KernelEndpoint{ID: "kernel-1"}}
	entry.setSession(channel.NewSession(controllerConn, channel.DefaultMaxFrameSize))
	_ = kernelConn
	return entry
}

func TestPusherPushSucceedsOnAcceptAndApply(t *testing.T) {
	kernelConn, controllerConn := net.Pipe()
	defer kernelConn.Close()
	defer controllerConn.Close()

	psk := []byte("push-test-psk")
	kernelSess := channel.NewSession(kernelConn, channel.DefaultMaxFrameSize)

	kernelDone := make(chan error, 1)
	go func() {
		msg, err := kernelSess.Recv()
		if err != nil {
			kernelDone <- err
			return
		}
		cmd, ok := msg.(channel.ControlCommand)
		if !ok {
			kernelDone <- errWrongMessageType
			return
		}
		ok2, err := channel.VerifyControlCommand(psk, cmd)
		if err != nil || !ok2 {
			kernelDone <- errSignatureInvalid
			return
		}
		if err := kernelSess.Send(channel.ControlCommandAccepted{Seq: cmd.Seq}); err != nil {
			kernelDone <- err
			return
		}
		kernelDone <- kernelSess.Send(channel.ConfigPushResult{Seq: cmd.Seq, Success: true})
	}()

	entry := newPipedEntry(kernelConn, controllerConn)
	pusher := NewPusher(serde.NewRegistry(), psk, "controller-1")

	err := pusher.Push(entry, core.NewServiceConfig(), 2*time.Second)
	require.NoError(t, err)
	require.NoError(t, <-kernelDone)
}

func TestPusherPushReturnsErrorOnRejection(t *testing.T) {
	kernelConn, controllerConn := net.Pipe()
	defer kernelConn.Close()
	defer controllerConn.Close()

	psk := []byte("push-test-psk")
	kernelSess := channel.NewSession(kernelConn, channel.DefaultMaxFrameSize)

	go func() {
		msg, err := kernelSess.Recv()
		if err != nil {
			return
		}
		cmd, ok := msg.(channel.ControlCommand)
		if !ok {
			return
		}
		_ = kernelSess.Send(channel.ControlCommandRejected{Seq: cmd.Seq, Error: "bad signature"})
	}()

	entry := newPipedEntry(kernelConn, controllerConn)
	pusher := NewPusher(serde.NewRegistry(), psk, "controller-1")

	err := pusher.Push(entry, core.NewServiceConfig(), 2*time.Second)
	require.Error(t, err)
}

func TestPusherPushFailsWithoutLiveSession(t *testing.T) {
	entry := &PoolEntry{Endpoint: KernelEndpoint{ID: "kernel-1"}}
	pusher := NewPusher(serde.NewRegistry(), []byte("psk"), "controller-1")

	err := pusher.Push(entry, core.NewServiceConfig(), time.Second)
	require.Error(t, err)
}

var errWrongMessageType = errString("unexpected message type")
var errSignatureInvalid = errString("signature invalid")

type errString string

func (e errString) Error() string { return string(e) }
