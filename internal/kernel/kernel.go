// Package kernel implements the data-plane process from section
// 4: it owns one switchboard.Switchboard, accepts exactly one
// authoritative controller session at a time over the control channel
// (internal/channel), applies config pushes to the switchboard, and
// reports its core.KernelState back via periodic heartbeats. This
// mirrors the internal/commands/server.RunServer shape
// (construct dependencies, run a goroutine group, block until ctx is
// done) generalized to a single long-lived control connection instead
// of an HTTP API.
package kernel

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/switchboard-io/switchboard/internal/channel"
	"github.com/switchboard-io/switchboard/internal/core"
	"github.com/switchboard-io/switchboard/internal/serde"
	"github.com/switchboard-io/switchboard/internal/switchboard"
)

const defaultHeartbeatInterval = 5 * time.Second

// Kernel accepts controller connections on a listener (a Unix domain
// socket under the controller's discovery directory, or a TCP bind in
// Kubernetes mode/4.6), drives the take-over
// handshake on each, and keeps exactly one session authoritative:
// accepting a new one displaces whatever session currently holds that
// status, notifying it with channel.BeenTookOver.
type Kernel struct {
	ID string
	PSK []byte
	Switchboard *switchboard.Switchboard
	Codecs *serde.Registry
	Logger hclog.Logger
	HeartbeatInterval time.Duration
	MaxFrameSize uint32

	mu sync.Mutex
	current *channel.Session
	cancel context.CancelFunc

	stateMu sync.Mutex
	state core.KernelState
}

// New returns a Kernel with its state seeded to WaitingConfig.
func New(id string, psk []byte, sb *switchboard.Switchboard, codecs *serde.Registry, logger hclog.Logger) *Kernel {
	return &Kernel{
		ID: id,
		PSK: psk,
		Switchboard: sb,
		Codecs: codecs,
		Logger: logger,
		HeartbeatInterval: defaultHeartbeatInterval,
		MaxFrameSize: channel.DefaultMaxFrameSize,
		state: core.WaitingConfig(time.Now()),
	}
}

// ListenAndServe accepts connections on ln until ctx is done, running
// each through the take-over handshake and, for the ones that win
// authoritative status, the control session loop.
func (k *Kernel) ListenAndServe(ctx context.Context, ln net.Listener) error {
	go k.heartbeatLoop(ctx)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			k.logf("warn", "accept error: %v", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			k.acceptSession(ctx, conn)
		}()
	}
}

func (k *Kernel) acceptSession(ctx context.Context, conn net.Conn) {
	sess := channel.NewSession(conn, k.MaxFrameSize)
	if err := channel.KernelAcceptTakeOver(sess, k.PSK, k.ID); err != nil {
		k.logf("warn", "take-over handshake failed: %v", err)
		sess.Close()
		return
	}

	sessCtx, cancel := context.WithCancel(ctx)
	k.mu.Lock()
	prev, prevCancel := k.current, k.cancel
	k.current, k.cancel = sess, cancel
	k.mu.Unlock()

	if prev != nil {
		_ = prev.Send(channel.BeenTookOver{NewControllerInfo: k.ID})
		prevCancel()
		prev.Close()
	}

	if err := k.controlLoop(sessCtx, sess); err != nil {
		k.logf("debug", "control session ended: %v", err)
	}

	k.mu.Lock()
	if k.current == sess {
		k.current = nil
		k.cancel = nil
	}
	k.mu.Unlock()
}

// controlLoop reads ControlCommands off sess until it errors or ctx is
// cancelled (the session having been displaced by a newer take-over).
func (k *Kernel) controlLoop(ctx context.Context, sess *channel.Session) error {
	handler := channel.NewKernelControlHandler(sess, k.PSK)
	recv := make(chan recvResult, 1)
	go k.recvLoop(sess, recv)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-recv:
			if r.err != nil {
				return r.err
			}
			if err := k.handleMessage(handler, sess, r.msg); err != nil {
				k.logf("warn", "handling message: %v", err)
			}
			go k.recvLoop(sess, recv)
		}
	}
}

type recvResult struct {
	msg channel.Message
	err error
}

func (k *Kernel) recvLoop(sess *channel.Session, out chan<- recvResult) {
	msg, err := sess.Recv()
	out <- recvResult{msg: msg, err: err}
}

func (k *Kernel) handleMessage(handler *channel.KernelControlHandler, sess *channel.Session, msg channel.Message) error {
	cmd, ok := msg.(channel.ControlCommand)
	if !ok {
		// HeartBeat and other controller->kernel variants carry no action.
		return nil
	}

	if err := handler.Handle(cmd); err != nil {
		return fmt.Errorf("kernel: control command rejected: %w", err)
	}

	result := k.applyConfigPush(cmd)
	return sess.Send(result)
}

// applyConfigPush decodes and installs a ConfigPushRequest carried in
// cmd.Data: decode by Format, recompute the
// digest over the decoded config, compare to Version, then install.
func (k *Kernel) applyConfigPush(cmd channel.ControlCommand) channel.ConfigPushResult {
	// stackErrors flattens err into its ErrorStack frames, one
	// "TypeName: Message" entry per frame.
	stackErrors := func(err error) []string {
		frames := core.NewErrorStack(err).Frames
		out := make([]string, len(frames))
		for i, f := range frames {
			out[i] = f.TypeName + ": " + f.Message
		}
		return out
	}

	req, err := channel.ConfigPushRequestFromValue(cmd.Data)
	if err != nil {
		return channel.ConfigPushResult{Seq: cmd.Seq, Success: false, Errors: []string{err.Error()}}
	}

	codec, err := k.Codecs.Lookup(req.Format)
	if err != nil {
		return channel.ConfigPushResult{Seq: cmd.Seq, Success: false, Errors: []string{err.Error()}}
	}

	value, err := codec.DecodeValue(req.Config)
	if err != nil {
		return channel.ConfigPushResult{Seq: cmd.Seq, Success: false, Errors: []string{
			fmt.Sprintf("decoding config: %v", err),
		}}
	}

	cfg, err := core.ServiceConfigFromValue(value)
	if err != nil {
		return channel.ConfigPushResult{Seq: cmd.Seq, Success: false, Errors: []string{err.Error()}}
	}

	if err := cfg.Validate(); err != nil {
		return channel.ConfigPushResult{Seq: cmd.Seq, Success: false, Errors: stackErrors(err)}
	}

	digest, err := cfg.Digest()
	if err != nil {
		return channel.ConfigPushResult{Seq: cmd.Seq, Success: false, Errors: []string{err.Error()}}
	}
	if digest != req.Version {
		return channel.ConfigPushResult{Seq: cmd.Seq, Success: false, Errors: []string{
			fmt.Sprintf("digest mismatch: pushed version %q, computed %q", req.Version, digest),
		}}
	}

	oldVersion := k.currentVersion()
	k.setState(core.Updating(oldVersion, digest, time.Now()))

	if err := k.Switchboard.EnsureRunning(context.Background()); err != nil {
		k.setState(core.WaitingConfig(time.Now()))
		return channel.ConfigPushResult{Seq: cmd.Seq, Success: false, Errors: []string{err.Error()}}
	}

	if err := k.Switchboard.InstallConfig(context.Background(), cfg); err != nil {
		k.setState(core.WaitingConfig(time.Now()))
		return channel.ConfigPushResult{Seq: cmd.Seq, Success: false, Errors: stackErrors(err)}
	}

	k.setState(core.Running(digest, time.Now()))
	return channel.ConfigPushResult{Seq: cmd.Seq, Success: true}
}

func (k *Kernel) currentVersion() string {
	k.stateMu.Lock()
	defer k.stateMu.Unlock()
	switch k.state.Phase {
	case core.PhaseRunning:
		return k.state.Version
	case core.PhaseUpdating:
		return k.state.NewVersion
	default:
		return ""
	}
}

func (k *Kernel) setState(s core.KernelState) {
	k.stateMu.Lock()
	k.state = s
	k.stateMu.Unlock()
}

func (k *Kernel) State() core.KernelState {
	k.stateMu.Lock()
	defer k.stateMu.Unlock()
	return k.state
}

// heartbeatLoop periodically sends the kernel's current state to
// whichever session is authoritative, if any.
func (k *Kernel) heartbeatLoop(ctx context.Context) {
	interval := k.HeartbeatInterval
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.mu.Lock()
			sess := k.current
			k.mu.Unlock()
			if sess == nil {
				continue
			}
			if err := sess.Send(channel.KernelHeartBeat{State: k.State()}); err != nil {
				k.logf("debug", "heartbeat send failed: %v", err)
			}
		}
	}
}

func (k *Kernel) logf(level, format string, args...any) {
	if k.Logger == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	switch level {
	case "warn":
		k.Logger.Warn(msg)
	default:
		k.Logger.Debug(msg)
	}
}
