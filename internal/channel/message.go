package channel

import (
	"fmt"

	"github.com/switchboard-io/switchboard/internal/core"
	"github.com/switchboard-io/switchboard/internal/serde"
)

// Message is any of the control channel's wire message variants. Every
// variant round-trips through ToValue/the kind-tagged decode in
// DecodeMessage, mirroring how core.ServiceConfig turns itself into a
// serde.Value for bincode encoding.
type Message interface {
	messageKind() string
	ToValue() serde.Value
}

const kindField = "kind"

// Controller -> kernel variants.

// HeartBeat is the controller's liveness probe; it carries no payload.
type HeartBeat struct{}

func (HeartBeat) messageKind() string { return "heart_beat" }
func (HeartBeat) ToValue() serde.Value {
	return serde.Map(map[string]serde.Value{kindField: serde.String("heart_beat")})
}

// TakeOver is sent by a new controller opening a session to claim a kernel.
type TakeOver struct {
	ControllerInfo string
}

func (TakeOver) messageKind() string { return "take_over" }
func (m TakeOver) ToValue() serde.Value {
	return serde.Map(map[string]serde.Value{
		kindField: serde.String("take_over"),
		"controller_info": serde.String(m.ControllerInfo),
	})
}

// AuthResponse answers a kernel's Auth challenge with an HMAC signature
// over the challenge's random bytes.
type AuthResponse struct {
	Signature []byte
}

func (AuthResponse) messageKind() string { return "auth_response" }
func (m AuthResponse) ToValue() serde.Value {
	return serde.Map(map[string]serde.Value{
		kindField: serde.String("auth_response"),
		"signature": serde.Bytes(m.Signature),
	})
}

// ControlCommand is a signed, replay-protected instruction from the
// controller (config push, etc. are carried as Data's inner payload by
// higher-level code; the channel package only frames and signs).
type ControlCommand struct {
	Seq uint64
	Ts int64
	SignerName string
	Data serde.Value
	Signature []byte
}

func (ControlCommand) messageKind() string { return "control_command" }
func (m ControlCommand) ToValue() serde.Value {
	return serde.Map(map[string]serde.Value{
		kindField: serde.String("control_command"),
		"seq": serde.Uint(m.Seq),
		"ts": serde.Int(m.Ts),
		"signer_name": serde.String(m.SignerName),
		"data": m.Data,
		"signature": serde.Bytes(m.Signature),
	})
}

// Kernel -> controller variants.

// KernelHeartBeat is the kernel's periodic/on-transition state report.
type KernelHeartBeat struct {
	State core.KernelState
}

func (KernelHeartBeat) messageKind() string { return "kernel_heart_beat" }
func (m KernelHeartBeat) ToValue() serde.Value {
	return serde.Map(map[string]serde.Value{
		kindField: serde.String("kernel_heart_beat"),
		"state": kernelStateToValue(m.State),
	})
}

// Auth is the kernel's take-over challenge.
type Auth struct {
	RandomBytes []byte
	KernelInfo string
}

func (Auth) messageKind() string { return "auth" }
func (m Auth) ToValue() serde.Value {
	return serde.Map(map[string]serde.Value{
		kindField: serde.String("auth"),
		"random_bytes": serde.Bytes(m.RandomBytes),
		"kernel_info": serde.String(m.KernelInfo),
	})
}

// ControlCommandAccepted acknowledges a ControlCommand by sequence number.
type ControlCommandAccepted struct {
	Seq uint64
}

func (ControlCommandAccepted) messageKind() string { return "control_command_accepted" }
func (m ControlCommandAccepted) ToValue() serde.Value {
	return serde.Map(map[string]serde.Value{
		kindField: serde.String("control_command_accepted"),
		"seq": serde.Uint(m.Seq),
	})
}

// BeenTookOver notifies a displaced controller that a new one has
// successfully authenticated.
type BeenTookOver struct {
	NewControllerInfo string
}

func (BeenTookOver) messageKind() string { return "been_took_over" }
func (m BeenTookOver) ToValue() serde.Value {
	return serde.Map(map[string]serde.Value{
		kindField: serde.String("been_took_over"),
		"new_controller_info": serde.String(m.NewControllerInfo),
	})
}

// ControlCommandRejected reports that a ControlCommand failed verification
// (bad signature or a replayed seq) and was not accepted. A command that
// passes verification but then fails to apply is reported with
// ConfigPushResult instead.
type ControlCommandRejected struct {
	Seq uint64
	Error string
}

func (ControlCommandRejected) messageKind() string { return "control_command_rejected" }
func (m ControlCommandRejected) ToValue() serde.Value {
	return serde.Map(map[string]serde.Value{
		kindField: serde.String("control_command_rejected"),
		"seq": serde.Uint(m.Seq),
		"error": serde.String(m.Error),
	})
}

func kernelStateToValue(s core.KernelState) serde.Value {
	return serde.Map(map[string]serde.Value{
		"phase": serde.Int(int64(s.Phase)),
		"version": serde.String(s.Version),
		"old_version": serde.String(s.OldVersion),
		"new_version": serde.String(s.NewVersion),
		"since_unix": serde.Int(s.Since.Unix()),
	})
}

func kernelStateFromValue(v serde.Value) (core.KernelState, error) {
	m, ok := v.AsMap()
	if !ok {
		return core.KernelState{}, fmt.Errorf("channel: kernel state is not a map")
	}
	phase, _ := m["phase"].AsInt()
	version, _ := m["version"].AsString()
	oldVersion, _ := m["old_version"].AsString()
	newVersion, _ := m["new_version"].AsString()
	sinceUnix, _ := m["since_unix"].AsInt()
	return core.KernelState{
		Phase: core.KernelPhase(phase),
		Version: version,
		OldVersion: oldVersion,
		NewVersion: newVersion,
		Since: unixToTime(sinceUnix),
	}, nil
}

// DecodeMessage inspects the "kind" tag on an incoming Value and
// reconstructs the matching Message variant.
func DecodeMessage(v serde.Value) (Message, error) {
	m, ok := v.AsMap()
	if !ok {
		return nil, fmt.Errorf("channel: message is not a map")
	}
	kindValue, ok := m[kindField]
	if !ok {
		return nil, fmt.Errorf("channel: message missing %q field", kindField)
	}
	kind, ok := kindValue.AsString()
	if !ok {
		return nil, fmt.Errorf("channel: message %q field is not a string", kindField)
	}

	switch kind {
	case "heart_beat":
		return HeartBeat{}, nil
	case "take_over":
		info, _ := m["controller_info"].AsString()
		return TakeOver{ControllerInfo: info}, nil
	case "auth_response":
		sig, _ := m["signature"].AsBytes()
		return AuthResponse{Signature: sig}, nil
	case "control_command":
		seq, _ := m["seq"].AsUint()
		ts, _ := m["ts"].AsInt()
		signer, _ := m["signer_name"].AsString()
		sig, _ := m["signature"].AsBytes()
		return ControlCommand{Seq: seq, Ts: ts, SignerName: signer, Data: m["data"], Signature: sig}, nil
	case "kernel_heart_beat":
		state, err := kernelStateFromValue(m["state"])
		if err != nil {
			return nil, err
		}
		return KernelHeartBeat{State: state}, nil
	case "auth":
		random, _ := m["random_bytes"].AsBytes()
		info, _ := m["kernel_info"].AsString()
		return Auth{RandomBytes: random, KernelInfo: info}, nil
	case "control_command_accepted":
		seq, _ := m["seq"].AsUint()
		return ControlCommandAccepted{Seq: seq}, nil
	case "been_took_over":
		info, _ := m["new_controller_info"].AsString()
		return BeenTookOver{NewControllerInfo: info}, nil
	case "control_command_rejected":
		seq, _ := m["seq"].AsUint()
		errMsg, _ := m["error"].AsString()
		return ControlCommandRejected{Seq: seq, Error: errMsg}, nil
	case "config_push_result":
		return configPushResultFromMap(m)
	default:
		return nil, &UnknownMessageKindError{Kind: kind}
	}
}
