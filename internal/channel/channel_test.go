package channel

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/switchboard-io/switchboard/internal/serde"
)

func TestFrameRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	writer := NewFrameWriter(client, DefaultMaxFrameSize)
	reader := NewFrameReader(server, DefaultMaxFrameSize)

	msg := ControlCommand{
		Seq:        1,
		Ts:         100,
		SignerName: "controller-1",
		Data:       serde.String("payload"),
		Signature:  []byte("sig"),
	}

	done := make(chan error, 1)
	go func() { done <- writer.WriteMessage(msg) }()

	got, err := reader.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, <-done)

	cmd, ok := got.(ControlCommand)
	require.True(t, ok)
	require.Equal(t, uint64(1), cmd.Seq)
	require.Equal(t, "controller-1", cmd.SignerName)
	s, _ := cmd.Data.AsString()
	require.Equal(t, "payload", s)
}

func TestFrameTooLargeRejected(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	// Write just an oversized length header; the reader rejects on the
	// header alone, before attempting to read a body.
	go func() {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], 1000)
		_, _ = client.Write(lenBuf[:])
	}()

	reader := NewFrameReader(server, 4)
	_, err := reader.ReadMessage()
	require.Error(t, err)
	var tooLarge *FrameTooLargeError
	require.ErrorAs(t, err, &tooLarge)
}

func TestFrameWriterRejectsOversizedMessageLocally(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	writer := NewFrameWriter(client, 4)
	err := writer.WriteMessage(HeartBeat{})
	require.Error(t, err)
	var tooLarge *FrameTooLargeError
	require.ErrorAs(t, err, &tooLarge)
}

func TestSignControlCommandVerifies(t *testing.T) {
	psk := []byte("shared-secret")
	data := serde.Map(map[string]serde.Value{"x": serde.Int(1)})

	sig, err := SignControlCommand(psk, 1, 1000, "controller-1", data)
	require.NoError(t, err)

	cmd := ControlCommand{Seq: 1, Ts: 1000, SignerName: "controller-1", Data: data, Signature: sig}
	ok, err := VerifyControlCommand(psk, cmd)
	require.NoError(t, err)
	require.True(t, ok)

	cmd.Seq = 2
	ok, err = VerifyControlCommand(psk, cmd)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReplayGuardRejectsNonIncreasingSeq(t *testing.T) {
	guard := NewReplayGuard()
	require.NoError(t, guard.Check("controller-1", 1))
	require.NoError(t, guard.Check("controller-1", 2))

	err := guard.Check("controller-1", 2)
	require.Error(t, err)
	var replay *ReplaySeqError
	require.ErrorAs(t, err, &replay)

	err = guard.Check("controller-1", 1)
	require.Error(t, err)

	// A different signer has its own independent high-water mark.
	require.NoError(t, guard.Check("controller-2", 1))
}

func TestTakeOverHandshakeSucceedsWithCorrectPSK(t *testing.T) {
	kernelConn, controllerConn := net.Pipe()
	defer kernelConn.Close()
	defer controllerConn.Close()

	psk := []byte("take-over-psk")
	kernelSess := NewSession(kernelConn, DefaultMaxFrameSize)
	controllerSess := NewSession(controllerConn, DefaultMaxFrameSize)

	kernelDone := make(chan error, 1)
	go func() {
		msg, err := kernelSess.Recv()
		if err != nil {
			kernelDone <- err
			return
		}
		if _, ok := msg.(TakeOver); !ok {
			kernelDone <- errWrongType
			return
		}
		kernelDone <- KernelAcceptTakeOver(kernelSess, psk, "kernel-1")
	}()

	err := ControllerTakeOver(controllerSess, psk, "controller-1")
	require.NoError(t, err)
	require.NoError(t, <-kernelDone)
}

func TestTakeOverHandshakeFailsWithWrongPSK(t *testing.T) {
	kernelConn, controllerConn := net.Pipe()
	defer kernelConn.Close()
	defer controllerConn.Close()

	kernelSess := NewSession(kernelConn, DefaultMaxFrameSize)
	controllerSess := NewSession(controllerConn, DefaultMaxFrameSize)

	kernelDone := make(chan error, 1)
	go func() {
		msg, err := kernelSess.Recv()
		if err != nil {
			kernelDone <- err
			return
		}
		if _, ok := msg.(TakeOver); !ok {
			kernelDone <- errWrongType
			return
		}
		kernelDone <- KernelAcceptTakeOver(kernelSess, []byte("kernel-side-psk"), "kernel-1")
	}()

	err := ControllerTakeOver(controllerSess, []byte("attacker-psk"), "controller-1")
	require.NoError(t, err) // the controller side completes; only the kernel rejects

	kernelErr := <-kernelDone
	require.Error(t, kernelErr)
	var mismatch *AuthMismatchError
	require.ErrorAs(t, kernelErr, &mismatch)
}

func TestConfigPushRequestValueRoundTrip(t *testing.T) {
	req := ConfigPushRequest{Format: "json", Config: []byte(`{"a":1}`), Version: "v1"}
	back, err := ConfigPushRequestFromValue(req.ToValue())
	require.NoError(t, err)
	require.Equal(t, req, back)
}

func TestKernelControlHandlerAcksValidCommand(t *testing.T) {
	kernelConn, controllerConn := net.Pipe()
	defer kernelConn.Close()
	defer controllerConn.Close()

	psk := []byte("control-psk")
	kernelSess := NewSession(kernelConn, DefaultMaxFrameSize)
	controllerSess := NewSession(controllerConn, DefaultMaxFrameSize)
	handler := NewKernelControlHandler(kernelSess, psk)

	data := serde.Map(map[string]serde.Value{"hello": serde.String("world")})
	sig, err := SignControlCommand(psk, 1, time.Now().Unix(), "ctrl", data)
	require.NoError(t, err)
	cmd := ControlCommand{Seq: 1, Ts: time.Now().Unix(), SignerName: "ctrl", Data: data, Signature: sig}

	go func() { _ = handler.Handle(cmd) }()

	reply, err := controllerSess.Recv()
	require.NoError(t, err)
	accepted, ok := reply.(ControlCommandAccepted)
	require.True(t, ok)
	require.Equal(t, uint64(1), accepted.Seq)
}

var errWrongType = &UnexpectedMessageError{Expected: "take_over", Got: "?"}
