package core

import "github.com/switchboard-io/switchboard/internal/serde"

// InstanceID names one node or filter instance within a FlowConfig.
type InstanceID string

// NodePort labels an input or output edge on a node: either a named port
// or the node's default port.
type NodePort struct {
	Name string
	IsDefault bool
}

func DefaultPort() NodePort { return NodePort{IsDefault: true} }
func NamedPort(name string) NodePort { return NodePort{Name: name} }

func (p NodePort) String() string {
	if p.IsDefault {
		return "<default>"
	}
	return p.Name
}

// NodeTarget identifies a specific input port on a specific node instance.
type NodeTarget struct {
	ID InstanceID
	Port NodePort
}

// NodeOutput is one output edge: the target it dispatches to, plus the
// filters that run (in order) on the way out of the source node.
type NodeOutput struct {
	Target NodeTarget
	Filters []InstanceID
}

// NodeInterface declares a node instance's input ports (each with its own
// input-filter chain) and output ports (each a NodeOutput).
type NodeInterface struct {
	Inputs map[string]InputPort
	Outputs map[string]NodeOutput
}

// InputPort is an input port's filter chain. The zero value (no filters)
// is a valid, pass-through input port.
type InputPort struct {
	Filters []InstanceID
}

// InstanceKind distinguishes a Node (owns inputs/outputs, participates in
// routing) from a Filter (wraps a single transition between two nodes).
type InstanceKind int

const (
	InstanceKindNode InstanceKind = iota
	InstanceKindFilter
)

// InstanceData is one entry of FlowConfig.Instances: the class that
// implements it, plus its construction-time configuration.
type InstanceData struct {
	Name string
	Class ClassID
	Kind InstanceKind
	Config serde.Value
	// Interface is populated for Kind == InstanceKindNode; it's the
	// node's declared inputs/outputs. Filters have no interface of their
	// own — they're addressed only via the node interfaces that reference
	// them.
	Interface NodeInterface
}

// FlowOptions carries per-flow tuning, currently just the loop budget.
type FlowOptions struct {
	MaxLoop int
}

// FlowConfig is one HTTP service's node/filter graph.
type FlowConfig struct {
	Entrypoint NodeTarget
	Instances map[InstanceID]InstanceData
	Options FlowOptions
}

// Validate checks the flow-graph invariants:
// every NodeTarget resolves to an existing node with a matching input
// port, every filter reference resolves to a Filter instance, and the
// entrypoint is a node with a Default input port.
func (f *FlowConfig) Validate() error {
	var problems []string

	checkTarget := func(context string, t NodeTarget) {
		inst, ok := f.Instances[t.ID]
		if !ok {
			problems = append(problems, context+": instance "+string(t.ID)+" does not exist")
			return
		}
		if inst.Kind != InstanceKindNode {
			problems = append(problems, context+": instance "+string(t.ID)+" is not a node")
			return
		}
		if t.Port.IsDefault {
			return
		}
		if _, ok := inst.Interface.Inputs[t.Port.Name]; !ok {
			problems = append(problems, context+": node "+string(t.ID)+" has no input port "+t.Port.Name)
		}
	}

	checkFilter := func(context string, id InstanceID) {
		inst, ok := f.Instances[id]
		if !ok {
			problems = append(problems, context+": filter "+string(id)+" does not exist")
			return
		}
		if inst.Kind != InstanceKindFilter {
			problems = append(problems, context+": instance "+string(id)+" is not a filter")
		}
	}

	for id, inst := range f.Instances {
		if inst.Kind != InstanceKindNode {
			continue
		}
		for port, input := range inst.Interface.Inputs {
			for _, fid := range input.Filters {
				checkFilter(string(id)+" input "+port, fid)
			}
		}
		for port, output := range inst.Interface.Outputs {
			checkTarget(string(id)+" output "+port, output.Target)
			for _, fid := range output.Filters {
				checkFilter(string(id)+" output "+port, fid)
			}
		}
	}

	checkTarget("entrypoint", f.Entrypoint)
	if !f.Entrypoint.Port.IsDefault {
		problems = append(problems, "entrypoint must target a node's default input port")
	}

	if len(problems) == 0 {
		return nil
	}
	return &FlowValidationError{Problems: problems}
}

// FlowValidationError collects every invariant violation found in one
// FlowConfig.Validate call.
type FlowValidationError struct {
	Problems []string
}

func (e *FlowValidationError) Error() string {
	msg := "flow config invalid:"
	for _, p := range e.Problems {
		msg += "\n - " + p
	}
	return msg
}
