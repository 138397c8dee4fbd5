package core

import (
	"fmt"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
)

func TestClassIDRoundTrip(t *testing.T) {
	cases := []string{"router", "acme.rate-limit", "a.b.c"}
	for _, s := range cases {
		id := ParseClassID(s)
		require.Equal(t, s, id.String())

		text, err := id.MarshalText()
		require.NoError(t, err)

		var decoded ClassID
		require.NoError(t, decoded.UnmarshalText(text))
		require.Equal(t, id, decoded)
	}
}

func TestClassIDBareNameHasNoNamespace(t *testing.T) {
	id := ParseClassID("balancer")
	require.Equal(t, "", id.Namespace)
	require.Equal(t, "balancer", id.Name)
}

func validFlowConfig() *FlowConfig {
	return &FlowConfig{
		Entrypoint: NodeTarget{ID: "router-1", Port: DefaultPort()},
		Instances: map[InstanceID]InstanceData{
			"router-1": {
				Name: "router-1",
				Kind: InstanceKindNode,
				Interface: NodeInterface{
					Inputs: map[string]InputPort{"": {}},
					Outputs: map[string]NodeOutput{
						"default": {Target: NodeTarget{ID: "proxy-1", Port: DefaultPort()}},
					},
				},
			},
			"proxy-1": {
				Name: "proxy-1",
				Kind: InstanceKindNode,
				Interface: NodeInterface{
					Inputs: map[string]InputPort{"": {}},
				},
			},
		},
	}
}

func TestFlowConfigValidateAcceptsWellFormedGraph(t *testing.T) {
	require.NoError(t, validFlowConfig().Validate())
}

func TestFlowConfigValidateCatchesMissingTarget(t *testing.T) {
	f := validFlowConfig()
	f.Entrypoint = NodeTarget{ID: "does-not-exist", Port: DefaultPort()}

	err := f.Validate()
	require.Error(t, err)

	var flowErr *FlowValidationError
	require.ErrorAs(t, err, &flowErr)
	require.Contains(t, flowErr.Error(), "does-not-exist")
}

func TestFlowConfigValidateCatchesNonDefaultEntrypoint(t *testing.T) {
	f := validFlowConfig()
	f.Entrypoint = NodeTarget{ID: "router-1", Port: NamedPort("side")}

	err := f.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "default input port")
}

func TestFlowConfigValidateCatchesDanglingFilter(t *testing.T) {
	f := validFlowConfig()
	router := f.Instances["router-1"]
	router.Interface.Inputs[""] = InputPort{Filters: []InstanceID{"missing-filter"}}
	f.Instances["router-1"] = router

	err := f.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing-filter")
}

func TestFlowConfigValidateCatchesOutputTargetWrongKind(t *testing.T) {
	f := validFlowConfig()
	f.Instances["filter-1"] = InstanceData{Name: "filter-1", Kind: InstanceKindFilter}
	router := f.Instances["router-1"]
	router.Interface.Outputs["default"] = NodeOutput{Target: NodeTarget{ID: "filter-1", Port: DefaultPort()}}
	f.Instances["router-1"] = router

	err := f.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "is not a node")
}

func TestNewErrorStackFlattensMultierror(t *testing.T) {
	var merr *multierror.Error
	merr = multierror.Append(merr, fmt.Errorf("first problem"))
	merr = multierror.Append(merr, fmt.Errorf("second problem"))

	stack := NewErrorStack(merr)
	require.Len(t, stack.Frames, 2)
	require.Equal(t, "first problem", stack.Frames[0].Message)
	require.Equal(t, "second problem", stack.Frames[1].Message)
}

func TestNewErrorStackFlattensFlowValidationError(t *testing.T) {
	flowErr := &FlowValidationError{Problems: []string{"p1", "p2"}}

	stack := NewErrorStack(flowErr)
	require.Len(t, stack.Frames, 2)
	for _, f := range stack.Frames {
		require.Equal(t, "FlowValidationError", f.TypeName)
	}
}

func TestNewErrorStackWrapsPlainError(t *testing.T) {
	stack := NewErrorStack(fmt.Errorf("boom"))
	require.Len(t, stack.Frames, 1)
	require.Equal(t, "boom", stack.Frames[0].Message)
}

func TestNewErrorStackNilIsEmpty(t *testing.T) {
	stack := NewErrorStack(nil)
	require.Empty(t, stack.Frames)
}

func TestKernelStateConstructors(t *testing.T) {
	now := time.Now()

	running := Running("v1", now)
	require.Equal(t, PhaseRunning, running.Phase)
	require.Equal(t, "v1", running.Version)

	updating := Updating("v1", "v2", now)
	require.Equal(t, PhaseUpdating, updating.Phase)
	require.Equal(t, "v1", updating.OldVersion)
	require.Equal(t, "v2", updating.NewVersion)

	require.Equal(t, "Running", PhaseRunning.String())
	require.Equal(t, "Unknown", KernelPhase(99).String())
}
