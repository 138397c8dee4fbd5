package core

import (
	"fmt"

	"github.com/switchboard-io/switchboard/internal/serde"
)

// FlowConfigToValue produces a canonical serde.Value representation of a
// FlowConfig, the same way ToValue does for ServiceConfig. This is how a
// FlowConfig travels inside a TCPServiceConfig.Config field for services
// backed by the "http-flow" provider, keeping ServiceConfig.Digest a
// single hash over the kernel's entire active configuration rather than
// needing a second, separate digest for flow graphs.
func FlowConfigToValue(fc FlowConfig) serde.Value {
	instances := make(map[string]serde.Value, len(fc.Instances))
	for id, inst := range fc.Instances {
		instances[string(id)] = instanceDataToValue(inst)
	}

	return serde.Map(map[string]serde.Value{
		"entrypoint": nodeTargetToValue(fc.Entrypoint),
		"instances":  serde.Map(instances),
		"options": serde.Map(map[string]serde.Value{
			"max_loop": serde.Int(int64(fc.Options.MaxLoop)),
		}),
	})
}

func nodeTargetToValue(t NodeTarget) serde.Value {
	return serde.Map(map[string]serde.Value{
		"id":   serde.String(string(t.ID)),
		"port": nodePortToValue(t.Port),
	})
}

func nodePortToValue(p NodePort) serde.Value {
	return serde.Map(map[string]serde.Value{
		"name":       serde.String(p.Name),
		"is_default": serde.Bool(p.IsDefault),
	})
}

func instanceIDsToValue(ids []InstanceID) serde.Value {
	seq := make([]serde.Value, len(ids))
	for i, id := range ids {
		seq[i] = serde.String(string(id))
	}
	return serde.Sequence(seq)
}

func instanceDataToValue(inst InstanceData) serde.Value {
	kind := "node"
	if inst.Kind == InstanceKindFilter {
		kind = "filter"
	}

	inputs := make(map[string]serde.Value, len(inst.Interface.Inputs))
	for port, in := range inst.Interface.Inputs {
		inputs[port] = serde.Map(map[string]serde.Value{
			"filters": instanceIDsToValue(in.Filters),
		})
	}

	outputs := make(map[string]serde.Value, len(inst.Interface.Outputs))
	for port, out := range inst.Interface.Outputs {
		outputs[port] = serde.Map(map[string]serde.Value{
			"target":  nodeTargetToValue(out.Target),
			"filters": instanceIDsToValue(out.Filters),
		})
	}

	return serde.Map(map[string]serde.Value{
		"name":  serde.String(inst.Name),
		"class": serde.String(inst.Class.String()),
		"kind":  serde.String(kind),
		"config": inst.Config,
		"interface": serde.Map(map[string]serde.Value{
			"inputs":  serde.Map(inputs),
			"outputs": serde.Map(outputs),
		}),
	})
}

// FlowConfigFromValue is the inverse of FlowConfigToValue, used by the
// kernel when materializing a TCPServiceConfig's stored config back into a
// FlowConfig to hand to flow.Build.
func FlowConfigFromValue(v serde.Value) (FlowConfig, error) {
	m, ok := v.AsMap()
	if !ok {
		return FlowConfig{}, fmt.Errorf("core: flow config value is not a map")
	}

	entrypoint, err := nodeTargetFromValue(m["entrypoint"])
	if err != nil {
		return FlowConfig{}, fmt.Errorf("core: flow config entrypoint: %w", err)
	}

	instancesValue, _ := m["instances"].AsMap()
	instances := make(map[InstanceID]InstanceData, len(instancesValue))
	for id, iv := range instancesValue {
		inst, err := instanceDataFromValue(iv)
		if err != nil {
			return FlowConfig{}, fmt.Errorf("core: flow config instance %q: %w", id, err)
		}
		instances[InstanceID(id)] = inst
	}

	maxLoop := 0
	if opts, ok := m["options"].AsMap(); ok {
		if n, ok := opts["max_loop"].AsInt(); ok {
			maxLoop = int(n)
		}
	}

	return FlowConfig{
		Entrypoint: entrypoint,
		Instances:  instances,
		Options:    FlowOptions{MaxLoop: maxLoop},
	}, nil
}

func nodeTargetFromValue(v serde.Value) (NodeTarget, error) {
	m, ok := v.AsMap()
	if !ok {
		return NodeTarget{}, fmt.Errorf("node target value is not a map")
	}
	id, _ := m["id"].AsString()
	port, err := nodePortFromValue(m["port"])
	if err != nil {
		return NodeTarget{}, err
	}
	return NodeTarget{ID: InstanceID(id), Port: port}, nil
}

func nodePortFromValue(v serde.Value) (NodePort, error) {
	m, ok := v.AsMap()
	if !ok {
		return NodePort{}, fmt.Errorf("node port value is not a map")
	}
	name, _ := m["name"].AsString()
	isDefault, _ := m["is_default"].AsBool()
	return NodePort{Name: name, IsDefault: isDefault}, nil
}

func instanceIDsFromValue(v serde.Value) []InstanceID {
	seq, _ := v.AsSequence()
	ids := make([]InstanceID, len(seq))
	for i, e := range seq {
		s, _ := e.AsString()
		ids[i] = InstanceID(s)
	}
	return ids
}

func instanceDataFromValue(v serde.Value) (InstanceData, error) {
	m, ok := v.AsMap()
	if !ok {
		return InstanceData{}, fmt.Errorf("instance data value is not a map")
	}

	name, _ := m["name"].AsString()
	classStr, _ := m["class"].AsString()
	kindStr, _ := m["kind"].AsString()

	kind := InstanceKindNode
	if kindStr == "filter" {
		kind = InstanceKindFilter
	}

	iface := NodeInterface{Inputs: map[string]InputPort{}, Outputs: map[string]NodeOutput{}}
	if ifaceValue, ok := m["interface"].AsMap(); ok {
		if inputsValue, ok := ifaceValue["inputs"].AsMap(); ok {
			for port, pv := range inputsValue {
				pm, _ := pv.AsMap()
				iface.Inputs[port] = InputPort{Filters: instanceIDsFromValue(pm["filters"])}
			}
		}
		if outputsValue, ok := ifaceValue["outputs"].AsMap(); ok {
			for port, ov := range outputsValue {
				om, _ := ov.AsMap()
				target, err := nodeTargetFromValue(om["target"])
				if err != nil {
					return InstanceData{}, fmt.Errorf("output %q: %w", port, err)
				}
				iface.Outputs[port] = NodeOutput{Target: target, Filters: instanceIDsFromValue(om["filters"])}
			}
		}
	}

	return InstanceData{
		Name:      name,
		Class:     ParseClassID(classStr),
		Kind:      kind,
		Config:    m["config"],
		Interface: iface,
	}, nil
}
