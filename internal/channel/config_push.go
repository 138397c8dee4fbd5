package channel

import (
	"fmt"

	"github.com/switchboard-io/switchboard/internal/serde"
)

// ConfigPushRequest is the typed payload a controller sends as a
// ControlCommand's Data to push a new config:
// {format, config, version}. The kernel decodes Config via the named
// format, recomputes the digest over the decoded-then-re-encoded
// canonical form, and compares it to Version before installing.
type ConfigPushRequest struct {
	Format string
	Config []byte
	Version string
}

func (r ConfigPushRequest) ToValue() serde.Value {
	return serde.Map(map[string]serde.Value{
		"format": serde.String(r.Format),
		"config": serde.Bytes(r.Config),
		"version": serde.String(r.Version),
	})
}

func ConfigPushRequestFromValue(v serde.Value) (ConfigPushRequest, error) {
	m, ok := v.AsMap()
	if !ok {
		return ConfigPushRequest{}, fmt.Errorf("channel: config push request is not a map")
	}
	format, _ := m["format"].AsString()
	config, _ := m["config"].AsBytes()
	version, _ := m["version"].AsString()
	return ConfigPushRequest{Format: format, Config: config, Version: version}, nil
}

// ConfigPushResult is the kernel's reply to a config push, reported as a
// dedicated kernel -> controller message distinct from the generic
// ControlCommandAccepted/Rejected ack: a push can be accepted (signature
// and replay check pass) yet still fail to apply (digest mismatch or
// invariant violation), and the controller needs that ErrorStack detail.
type ConfigPushResult struct {
	Seq uint64
	Success bool
	Errors []string
}

func (ConfigPushResult) messageKind() string { return "config_push_result" }
func (m ConfigPushResult) ToValue() serde.Value {
	errs := make([]serde.Value, len(m.Errors))
	for i, e := range m.Errors {
		errs[i] = serde.String(e)
	}
	return serde.Map(map[string]serde.Value{
		kindField: serde.String("config_push_result"),
		"seq": serde.Uint(m.Seq),
		"success": serde.Bool(m.Success),
		"errors": serde.Sequence(errs),
	})
}

func configPushResultFromMap(m map[string]serde.Value) (Message, error) {
	seq, _ := m["seq"].AsUint()
	success, _ := m["success"].AsBool()
	seq2, ok := m["errors"].AsSequence()
	if !ok {
		return ConfigPushResult{Seq: seq, Success: success}, nil
	}
	errs := make([]string, len(seq2))
	for i, v := range seq2 {
		errs[i], _ = v.AsString()
	}
	return ConfigPushResult{Seq: seq, Success: success, Errors: errs}, nil
}
