package kernel

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/switchboard-io/switchboard/internal/channel"
	"github.com/switchboard-io/switchboard/internal/core"
	"github.com/switchboard-io/switchboard/internal/serde"
	"github.com/switchboard-io/switchboard/internal/switchboard"
)

func newTestKernel(t *testing.T) (*Kernel, net.Listener) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	sb := switchboard.New(hclog.NewNullLogger(), switchboard.NewServiceRegistry(), context.Background())
	k := New("kernel-1", []byte("kernel-psk"), sb, serde.NewRegistry(), hclog.NewNullLogger())
	k.HeartbeatInterval = time.Hour // don't let heartbeats interfere with assertions

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = k.ListenAndServe(ctx, ln) }()

	return k, ln
}

func dialAndTakeOver(t *testing.T, addr net.Addr, psk []byte) *channel.Session {
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	sess := channel.NewSession(conn, channel.DefaultMaxFrameSize)
	require.NoError(t, channel.ControllerTakeOver(sess, psk, "controller-1"))
	return sess
}

func pushConfig(t *testing.T, sess *channel.Session, psk []byte, seq uint64, cfg *core.ServiceConfig) {
	codec := serde.BincodeCodec{}
	encoded, err := codec.EncodeValue(cfg.ToValue())
	require.NoError(t, err)
	digest, err := cfg.Digest()
	require.NoError(t, err)

	req := channel.ConfigPushRequest{Format: "bincode", Config: encoded, Version: digest}
	ts := time.Now().Unix()
	sig, err := channel.SignControlCommand(psk, seq, ts, "controller-1", req.ToValue())
	require.NoError(t, err)

	cmd := channel.ControlCommand{Seq: seq, Ts: ts, SignerName: "controller-1", Data: req.ToValue(), Signature: sig}
	require.NoError(t, sess.Send(cmd))
}

func TestKernelAppliesValidConfigPush(t *testing.T) {
	k, ln := newTestKernel(t)
	psk := []byte("kernel-psk")
	sess := dialAndTakeOver(t, ln.Addr(), psk)
	defer sess.Close()

	pushConfig(t, sess, psk, 1, core.NewServiceConfig())

	accepted, err := sess.Recv()
	require.NoError(t, err)
	_, ok := accepted.(channel.ControlCommandAccepted)
	require.True(t, ok)

	result, err := sess.Recv()
	require.NoError(t, err)
	pushResult, ok := result.(channel.ConfigPushResult)
	require.True(t, ok)
	require.True(t, pushResult.Success, "errors: %v", pushResult.Errors)

	require.Eventually(t, func() bool {
		return k.State().Phase == core.PhaseRunning
	}, time.Second, 10*time.Millisecond)
}

func TestKernelRejectsConfigPushWithBadSignature(t *testing.T) {
	_, ln := newTestKernel(t)
	psk := []byte("kernel-psk")
	sess := dialAndTakeOver(t, ln.Addr(), psk)
	defer sess.Close()

	pushConfig(t, sess, []byte("wrong-psk"), 1, core.NewServiceConfig())

	rejected, err := sess.Recv()
	require.NoError(t, err)
	_, ok := rejected.(channel.ControlCommandRejected)
	require.True(t, ok)
}

func TestKernelTakeOverDisplacesPriorController(t *testing.T) {
	_, ln := newTestKernel(t)
	psk := []byte("kernel-psk")

	first := dialAndTakeOver(t, ln.Addr(), psk)
	defer first.Close()

	second := dialAndTakeOver(t, ln.Addr(), psk)
	defer second.Close()

	msg, err := first.Recv()
	require.NoError(t, err)
	_, ok := msg.(channel.BeenTookOver)
	require.True(t, ok)
}
