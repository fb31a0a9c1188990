package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCycleDetected is returned when the connection graph contains
	// a cycle.
	ErrCycleDetected = errors.New("pipeline cycle detected")

	// ErrUnknownNode is returned when a connection references a node
	// that was never added.
	ErrUnknownNode = errors.New("unknown node")

	// ErrUnknownPort is returned when a connection references a port
	// the node does not declare.
	ErrUnknownPort = errors.New("unknown port")

	// ErrDuplicateNode is returned when two nodes share a name.
	ErrDuplicateNode = errors.New("duplicate node")
)

// CycleError reports the path of a detected cycle.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("pipeline cycle detected: %s", strings.Join(e.Path, " -> "))
}

// Unwrap returns the base error for errors.Is compatibility.
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}

// ValidationError reports malformed node input. It maps to a
// caller-fixable failure at the request boundary.
type ValidationError struct {
	Node   string
	Port   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("node %q: input %q: %s", e.Node, e.Port, e.Reason)
	}
	return fmt.Sprintf("node %q: %s", e.Node, e.Reason)
}

// NodeError wraps a failure from a node's Run.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q failed: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}
