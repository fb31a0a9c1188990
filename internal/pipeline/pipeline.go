// Package pipeline executes an acyclic graph of typed processing nodes
// connected by named ports. A pipeline instance is built fresh per
// request, run once, and discarded; the executor itself performs no
// I/O — nodes are the only I/O boundary.
package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// Port declares one named input of a node. A node becomes eligible to
// run once every required port has been supplied; optional ports may
// stay empty.
type Port struct {
	Name     string
	Required bool
}

// Inputs carries the values supplied to a node's input ports.
type Inputs map[string]any

// Outputs carries the values a node produced on its output ports.
// Ports a node chooses not to populate simply never fire; connections
// from them stay silent (this is how conditional branching works).
type Outputs map[string]any

// Node is the smallest unit of work in a pipeline.
type Node interface {
	// Name identifies the node within its pipeline.
	Name() string

	// InputPorts declares the node's inputs.
	InputPorts() []Port

	// OutputPorts declares the ports Run may populate.
	OutputPorts() []string

	// Run performs the node's single step.
	Run(ctx context.Context, in Inputs) (Outputs, error)
}

type connection struct {
	fromNode, fromPort string
	toNode, toPort     string
}

// Pipeline wires nodes via named output→input connections and executes
// them in dependency order for one request.
type Pipeline struct {
	nodes map[string]Node
	order []string
	conns []connection
}

// New creates an empty pipeline.
func New() *Pipeline {
	return &Pipeline{nodes: make(map[string]Node)}
}

// Add registers a node. Node names must be unique.
func (p *Pipeline) Add(node Node) error {
	name := node.Name()
	if _, exists := p.nodes[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateNode, name)
	}
	p.nodes[name] = node
	p.order = append(p.order, name)
	return nil
}

// Connect wires "srcNode.outPort" to "dstNode.inPort". Both endpoints
// must exist and declare the named ports.
func (p *Pipeline) Connect(from, to string) error {
	fromNode, fromPort, err := splitRef(from)
	if err != nil {
		return err
	}
	toNode, toPort, err := splitRef(to)
	if err != nil {
		return err
	}

	src, ok := p.nodes[fromNode]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, fromNode)
	}
	dst, ok := p.nodes[toNode]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, toNode)
	}
	if !containsString(src.OutputPorts(), fromPort) {
		return fmt.Errorf("%w: %q has no output %q", ErrUnknownPort, fromNode, fromPort)
	}
	if !containsPort(dst.InputPorts(), toPort) {
		return fmt.Errorf("%w: %q has no input %q", ErrUnknownPort, toNode, toPort)
	}

	p.conns = append(p.conns, connection{fromNode, fromPort, toNode, toPort})
	return nil
}

// Validate checks the connection graph for cycles using DFS coloring.
func (p *Pipeline) Validate() error {
	adj := make(map[string][]string)
	for _, c := range p.conns {
		adj[c.fromNode] = append(adj[c.fromNode], c.toNode)
	}

	// 0=unvisited, 1=visiting, 2=done
	colors := make(map[string]int)
	var stack []string

	var dfs func(name string) error
	dfs = func(name string) error {
		if colors[name] == 1 {
			cycleStart := 0
			for i, n := range stack {
				if n == name {
					cycleStart = i
					break
				}
			}
			return &CycleError{Path: append(append([]string{}, stack[cycleStart:]...), name)}
		}
		if colors[name] == 2 {
			return nil
		}
		colors[name] = 1
		stack = append(stack, name)
		for _, next := range adj[name] {
			if err := dfs(next); err != nil {
				return err
			}
		}
		colors[name] = 2
		stack = stack[:len(stack)-1]
		return nil
	}

	for _, name := range p.order {
		if colors[name] == 0 {
			if err := dfs(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// Run executes the pipeline once. initial seeds input ports per node
// before any node runs. Nodes execute in dependency order: a node runs
// once every required input port has been supplied by initial values
// or an upstream output. Nodes on branches whose ports never fire are
// skipped silently (partial activation). Run returns the outputs of
// every node that executed, keyed by node name.
func (p *Pipeline) Run(ctx context.Context, initial map[string]Inputs) (map[string]Outputs, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	buffers := make(map[string]Inputs, len(p.nodes))
	for name := range p.nodes {
		buffers[name] = make(Inputs)
	}
	for name, in := range initial {
		if _, ok := p.nodes[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownNode, name)
		}
		for port, value := range in {
			buffers[name][port] = value
		}
	}

	results := make(map[string]Outputs)
	ran := make(map[string]bool)

	for {
		progressed := false
		for _, name := range p.order {
			if ran[name] {
				continue
			}
			node := p.nodes[name]
			if !eligible(node, buffers[name]) {
				continue
			}

			if err := ctx.Err(); err != nil {
				return results, err
			}

			out, err := node.Run(ctx, buffers[name])
			if err != nil {
				return results, &NodeError{Node: name, Err: err}
			}
			ran[name] = true
			results[name] = out
			progressed = true

			// Propagate populated output ports downstream.
			for _, c := range p.conns {
				if c.fromNode != name {
					continue
				}
				value, fired := out[c.fromPort]
				if !fired {
					continue
				}
				buffers[c.toNode][c.toPort] = value
			}
		}
		if !progressed {
			break
		}
	}

	return results, nil
}

func eligible(node Node, buf Inputs) bool {
	for _, port := range node.InputPorts() {
		if !port.Required {
			continue
		}
		if _, ok := buf[port.Name]; !ok {
			return false
		}
	}
	return true
}

func splitRef(ref string) (node, port string, err error) {
	i := strings.LastIndex(ref, ".")
	if i <= 0 || i == len(ref)-1 {
		return "", "", fmt.Errorf("connection endpoint %q: want \"node.port\"", ref)
	}
	return ref[:i], ref[i+1:], nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsPort(ports []Port, name string) bool {
	for _, p := range ports {
		if p.Name == name {
			return true
		}
	}
	return false
}
