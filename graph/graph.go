// Package graph is an arena-backed dependency graph with a topological
// scheduler. Nodes are addressed by stable integer indices assigned in
// insertion order.
package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownNode is returned when an edge references a name never added.
	ErrUnknownNode = errors.New("unknown node")

	// ErrDuplicateNode is returned when a name is added twice.
	ErrDuplicateNode = errors.New("duplicate node")

	// ErrCycle is returned by Order when the graph is not acyclic.
	ErrCycle = errors.New("dependency cycle")
)

// CycleError lists the nodes that could not be ordered.
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v involving %s", ErrCycle, strings.Join(e.Nodes, ", "))
}

// Is makes errors.Is(err, ErrCycle) hold.
func (e *CycleError) Is(target error) bool {
	return target == ErrCycle
}

type node[T any] struct {
	name  string
	value T

	// needs holds the indices this node depends on
	needs []int
}

// Graph holds named nodes and "needs" edges between them.
type Graph[T any] struct {
	nodes []node[T]
	index map[string]int
}

// New creates an empty graph.
func New[T any]() *Graph[T] {
	return &Graph[T]{index: make(map[string]int)}
}

// Add inserts a node and returns its index.
func (g *Graph[T]) Add(name string, value T) (int, error) {
	if _, exists := g.index[name]; exists {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateNode, name)
	}
	idx := len(g.nodes)
	g.nodes = append(g.nodes, node[T]{name: name, value: value})
	g.index[name] = idx
	return idx, nil
}

// AddEdge records that from needs to. Repeated edges are ignored.
func (g *Graph[T]) AddEdge(from, to string) error {
	fi, ok := g.index[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, from)
	}
	ti, ok := g.index[to]
	if !ok {
		return fmt.Errorf("%w: %s (needed by %s)", ErrUnknownNode, to, from)
	}
	for _, n := range g.nodes[fi].needs {
		if n == ti {
			return nil
		}
	}
	g.nodes[fi].needs = append(g.nodes[fi].needs, ti)
	return nil
}

// Len returns the number of nodes.
func (g *Graph[T]) Len() int {
	return len(g.nodes)
}

// Index returns the index of name.
func (g *Graph[T]) Index(name string) (int, bool) {
	idx, ok := g.index[name]
	return idx, ok
}

// Name returns the name of node idx.
func (g *Graph[T]) Name(idx int) string {
	return g.nodes[idx].name
}

// Value returns the value of node idx.
func (g *Graph[T]) Value(idx int) T {
	return g.nodes[idx].value
}

// Needs returns the names node idx depends on.
func (g *Graph[T]) Needs(idx int) []string {
	names := make([]string, 0, len(g.nodes[idx].needs))
	for _, n := range g.nodes[idx].needs {
		names = append(names, g.nodes[n].name)
	}
	return names
}

// Order returns every node index such that each node comes after all the
// nodes it needs. Among nodes that are ready at the same time the lower
// index goes first.
func (g *Graph[T]) Order() ([]int, error) {
	// Kahn's algorithm over reversed edges: a node becomes ready once
	// everything it needs has been emitted.
	inDegree := make([]int, len(g.nodes))
	dependents := make([][]int, len(g.nodes))
	for i, n := range g.nodes {
		inDegree[i] = len(n.needs)
		for _, dep := range n.needs {
			dependents[dep] = append(dependents[dep], i)
		}
	}

	ready := make([]int, 0, len(g.nodes))
	for i, d := range inDegree {
		if d == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, len(g.nodes))
	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]
		order = append(order, current)

		for _, dependent := range dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = insertSorted(ready, dependent)
			}
		}
	}

	if len(order) != len(g.nodes) {
		var stuck []string
		for i, d := range inDegree {
			if d > 0 {
				stuck = append(stuck, g.nodes[i].name)
			}
		}
		return nil, &CycleError{Nodes: stuck}
	}

	return order, nil
}

// OrderNames is Order resolved to node names.
func (g *Graph[T]) OrderNames() ([]string, error) {
	order, err := g.Order()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(order))
	for i, idx := range order {
		names[i] = g.nodes[idx].name
	}
	return names, nil
}

func insertSorted(s []int, v int) []int {
	i := len(s)
	for i > 0 && s[i-1] > v {
		i--
	}
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}
