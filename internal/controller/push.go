package controller

import (
	"fmt"
	"time"

	"github.com/switchboard-io/switchboard/internal/channel"
	"github.com/switchboard-io/switchboard/internal/core"
	"github.com/switchboard-io/switchboard/internal/serde"
)

// Pusher sends a resolved ServiceConfig to one kernel over its pool
// entry's session and translates the typed accept/reject and apply-result
// replies into a single error for the caller
// "Config push".
type Pusher struct {
	Codecs *serde.Registry
	PSK []byte
	Signer string
	Format string
}

func NewPusher(codecs *serde.Registry, psk []byte, signer string) *Pusher {
	if signer == "" {
		signer = "controller"
	}
	return &Pusher{Codecs: codecs, PSK: psk, Signer: signer, Format: "bincode"}
}

// Push encodes cfg with p.Format, computes its digest, and sends it as a
// signed ControlCommand carrying a ConfigPushRequest. It blocks until the
// kernel's ControlCommandAccepted/Rejected ack and, on acceptance, its
// ConfigPushResult arrive, or timeout elapses.
func (p *Pusher) Push(entry *PoolEntry, cfg *core.ServiceConfig, timeout time.Duration) error {
	sess := entry.Session()
	if sess == nil {
		return fmt.Errorf("controller: kernel %s has no live session", entry.Endpoint.ID)
	}

	codec, err := p.Codecs.Lookup(p.Format)
	if err != nil {
		return err
	}
	encoded, err := codec.EncodeValue(cfg.ToValue())
	if err != nil {
		return fmt.Errorf("controller: encoding config: %w", err)
	}
	version, err := cfg.Digest()
	if err != nil {
		return fmt.Errorf("controller: computing digest: %w", err)
	}

	req := channel.ConfigPushRequest{Format: p.Format, Config: encoded, Version: version}
	seq := entry.nextSeq()
	ts := time.Now().Unix()
	sig, err := channel.SignControlCommand(p.PSK, seq, ts, p.Signer, req.ToValue())
	if err != nil {
		return fmt.Errorf("controller: signing command: %w", err)
	}
	cmd := channel.ControlCommand{Seq: seq, Ts: ts, SignerName: p.Signer, Data: req.ToValue(), Signature: sig}

	if err := sess.Send(cmd); err != nil {
		return fmt.Errorf("controller: sending config push: %w", err)
	}

	deadline := time.Now().Add(timeout)
	ack, err := recvUntil(sess, deadline)
	if err != nil {
		return err
	}
	switch m := ack.(type) {
	case channel.ControlCommandRejected:
		return fmt.Errorf("controller: kernel %s rejected config push: %s", entry.Endpoint.ID, m.Error)
	case channel.ControlCommandAccepted:
		// fall through to await the apply result below
	default:
		return fmt.Errorf("controller: kernel %s: unexpected ack %T", entry.Endpoint.ID, m)
	}

	result, err := recvUntil(sess, deadline)
	if err != nil {
		return err
	}
	res, ok := result.(channel.ConfigPushResult)
	if !ok {
		return fmt.Errorf("controller: kernel %s: expected config push result, got %T", entry.Endpoint.ID, result)
	}
	if !res.Success {
		return fmt.Errorf("controller: kernel %s failed to apply config: %v", entry.Endpoint.ID, res.Errors)
	}
	return nil
}

// recvUntil reads one message from sess in a background goroutine and
// returns a timeout error if none arrives before deadline. The underlying
// conn has no deadline set, so on timeout that goroutine's Recv keeps
// running and consumes the next message that arrives.
func recvUntil(sess *channel.Session, deadline time.Time) (channel.Message, error) {
	type result struct {
		msg channel.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := sess.Recv()
		done <- result{msg, err}
	}()

	remaining := time.Until(deadline)
	if remaining < 0 {
		remaining = 0
	}
	select {
	case r := <-done:
		return r.msg, r.err
	case <-time.After(remaining):
		return nil, fmt.Errorf("controller: timed out waiting for kernel reply")
	}
}
