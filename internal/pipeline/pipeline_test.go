package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// funcNode is a test node driven by a run function.
type funcNode struct {
	name    string
	inputs  []Port
	outputs []string
	run     func(ctx context.Context, in Inputs) (Outputs, error)
}

func (n *funcNode) Name() string        { return n.name }
func (n *funcNode) InputPorts() []Port  { return n.inputs }
func (n *funcNode) OutputPorts() []string { return n.outputs }
func (n *funcNode) Run(ctx context.Context, in Inputs) (Outputs, error) {
	return n.run(ctx, in)
}

func source(name, port string, value any) *funcNode {
	return &funcNode{
		name:    name,
		outputs: []string{port},
		run: func(ctx context.Context, in Inputs) (Outputs, error) {
			return Outputs{port: value}, nil
		},
	}
}

func passthrough(name string) *funcNode {
	return &funcNode{
		name:    name,
		inputs:  []Port{{Name: "in", Required: true}},
		outputs: []string{"out"},
		run: func(ctx context.Context, in Inputs) (Outputs, error) {
			return Outputs{"out": in["in"]}, nil
		},
	}
}

func TestRun_DependencyOrder(t *testing.T) {
	p := New()
	require.NoError(t, p.Add(source("a", "out", "v")))
	require.NoError(t, p.Add(passthrough("b")))
	require.NoError(t, p.Add(passthrough("c")))
	require.NoError(t, p.Connect("a.out", "b.in"))
	require.NoError(t, p.Connect("b.out", "c.in"))

	results, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "v", results["c"]["out"])
	assert.Len(t, results, 3)
}

func TestRun_PartialActivation(t *testing.T) {
	// A router that only fires one of its two output ports; the other
	// branch's node must be skipped without error.
	router := &funcNode{
		name:    "router",
		outputs: []string{"left", "right"},
		run: func(ctx context.Context, in Inputs) (Outputs, error) {
			return Outputs{"left": "go-left"}, nil
		},
	}

	p := New()
	require.NoError(t, p.Add(router))
	require.NoError(t, p.Add(passthrough("lbranch")))
	require.NoError(t, p.Add(passthrough("rbranch")))
	require.NoError(t, p.Connect("router.left", "lbranch.in"))
	require.NoError(t, p.Connect("router.right", "rbranch.in"))

	results, err := p.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, "go-left", results["lbranch"]["out"])
	_, ran := results["rbranch"]
	assert.False(t, ran, "unmatched branch must not execute")
}

func TestRun_InitialInputs(t *testing.T) {
	p := New()
	require.NoError(t, p.Add(passthrough("only")))

	results, err := p.Run(context.Background(), map[string]Inputs{
		"only": {"in": 42},
	})
	require.NoError(t, err)
	assert.Equal(t, 42, results["only"]["out"])
}

func TestRun_NodeErrorAborts(t *testing.T) {
	boom := &funcNode{
		name:    "boom",
		outputs: []string{"out"},
		run: func(ctx context.Context, in Inputs) (Outputs, error) {
			return nil, errors.New("exploded")
		},
	}
	p := New()
	require.NoError(t, p.Add(boom))

	_, err := p.Run(context.Background(), nil)
	require.Error(t, err)
	var ne *NodeError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, "boom", ne.Node)
}

func TestConnect_Validation(t *testing.T) {
	p := New()
	require.NoError(t, p.Add(source("a", "out", 1)))
	require.NoError(t, p.Add(passthrough("b")))

	assert.ErrorIs(t, p.Connect("missing.out", "b.in"), ErrUnknownNode)
	assert.ErrorIs(t, p.Connect("a.nope", "b.in"), ErrUnknownPort)
	assert.ErrorIs(t, p.Connect("a.out", "b.nope"), ErrUnknownPort)
	assert.Error(t, p.Connect("a.out", "noport"))
}

func TestAdd_DuplicateName(t *testing.T) {
	p := New()
	require.NoError(t, p.Add(source("a", "out", 1)))
	assert.ErrorIs(t, p.Add(source("a", "out", 2)), ErrDuplicateNode)
}

func TestValidate_CycleRejected(t *testing.T) {
	loopA := &funcNode{
		name:    "x",
		inputs:  []Port{{Name: "in"}},
		outputs: []string{"out"},
		run: func(ctx context.Context, in Inputs) (Outputs, error) {
			return Outputs{"out": 1}, nil
		},
	}
	loopB := &funcNode{
		name:    "y",
		inputs:  []Port{{Name: "in"}},
		outputs: []string{"out"},
		run: func(ctx context.Context, in Inputs) (Outputs, error) {
			return Outputs{"out": 1}, nil
		},
	}

	p := New()
	require.NoError(t, p.Add(loopA))
	require.NoError(t, p.Add(loopB))
	require.NoError(t, p.Connect("x.out", "y.in"))
	require.NoError(t, p.Connect("y.out", "x.in"))

	_, err := p.Run(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCycleDetected)

	var ce *CycleError
	require.True(t, errors.As(err, &ce))
	assert.NotEmpty(t, ce.Path)
}

func TestRun_OptionalPortDoesNotBlock(t *testing.T) {
	sink := &funcNode{
		name: "sink",
		inputs: []Port{
			{Name: "must", Required: true},
			{Name: "maybe", Required: false},
		},
		outputs: []string{"got"},
		run: func(ctx context.Context, in Inputs) (Outputs, error) {
			_, hasMaybe := in["maybe"]
			return Outputs{"got": hasMaybe}, nil
		},
	}

	p := New()
	require.NoError(t, p.Add(source("a", "out", "x")))
	require.NoError(t, p.Add(sink))
	require.NoError(t, p.Connect("a.out", "sink.must"))

	results, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, false, results["sink"]["got"])
}
