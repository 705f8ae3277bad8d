package build

import (
	"fmt"
	"sort"
	"strings"
)

// Graph is the static dependency graph reachable from a set of roots. It is
// computed from manifests alone; nothing is built.
type Graph struct {
	// Nodes maps project names to their nodes.
	Nodes map[string]*GraphNode

	// Roots are the projects the graph was requested for.
	Roots []string

	// Levels groups projects by build level. Level 0 has no ordinary
	// dependencies; every project's ordinary dependencies sit at lower levels,
	// so the projects of one level could build in parallel.
	Levels [][]string
}

// GraphNode is one project in a Graph.
type GraphNode struct {
	Name  string
	Root  string
	Level int

	// Dependencies are the ordinary dependencies.
	Dependencies []string

	// Preconditions maps non-ordinary kinds to names. They are recorded, not
	// built, and are not nodes of the graph.
	Preconditions map[string][]string

	// Dependents are the projects in the graph that depend on this one.
	Dependents []string
}

// Analyze walks the ordinary dependencies reachable from roots. It fails with
// a circular dependency error when the graph has a cycle, and with the lookup
// error of the first project that cannot be resolved.
func Analyze(catalog Catalog, roots ...string) (*Graph, error) {
	if len(roots) == 0 {
		return nil, NewInvalidArgumentError("at least one root project is required")
	}

	a := &analyzer{
		catalog: catalog,
		nodes:   make(map[string]*GraphNode),
		state:   make(map[string]visitState),
	}
	for _, root := range roots {
		if err := a.visit(root, nil); err != nil {
			return nil, err
		}
	}

	graph := &Graph{
		Nodes: a.nodes,
		Roots: append([]string(nil), roots...),
	}
	graph.link()
	graph.computeLevels()
	return graph, nil
}

type visitState int

const (
	unvisited visitState = iota
	visiting
	visited
)

type analyzer struct {
	catalog Catalog
	nodes   map[string]*GraphNode
	state   map[string]visitState
}

// visit performs a depth-first walk keeping the current path for cycle
// reporting.
func (a *analyzer) visit(name string, path []string) error {
	switch a.state[name] {
	case visited:
		return nil
	case visiting:
		return NewCircularDependencyError(cycleThrough(path, name))
	}

	spec, err := a.catalog.Lookup(name)
	if err != nil {
		return classifyLookupError(name, err)
	}

	a.state[name] = visiting
	path = append(path, name)

	node := &GraphNode{
		Name:          name,
		Root:          spec.Root,
		Preconditions: make(map[string][]string),
	}
	for _, group := range spec.Config.Groups() {
		if group.Ordinary() {
			node.Dependencies = group.Names
			continue
		}
		node.Preconditions[group.Kind] = group.Names
	}
	a.nodes[name] = node

	for _, dep := range node.Dependencies {
		if err := a.visit(dep, path); err != nil {
			return err
		}
	}

	a.state[name] = visited
	return nil
}

// link fills in the Dependents of every node.
func (g *Graph) link() {
	for _, name := range g.sortedNames() {
		for _, dep := range g.Nodes[name].Dependencies {
			g.Nodes[dep].Dependents = append(g.Nodes[dep].Dependents, name)
		}
	}
}

// computeLevels assigns build levels with Kahn's algorithm. The graph is
// known to be acyclic at this point.
func (g *Graph) computeLevels() {
	inDegree := make(map[string]int, len(g.Nodes))
	for name, node := range g.Nodes {
		inDegree[name] = len(node.Dependencies)
	}

	current := make([]string, 0)
	for name, degree := range inDegree {
		if degree == 0 {
			current = append(current, name)
		}
	}

	for level := 0; len(current) > 0; level++ {
		sort.Strings(current)
		g.Levels = append(g.Levels, current)

		next := make([]string, 0)
		for _, name := range current {
			g.Nodes[name].Level = level
			for _, dependent := range g.Nodes[name].Dependents {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}
}

// Order returns every project in a valid build order.
func (g *Graph) Order() []string {
	order := make([]string, 0, len(g.Nodes))
	for _, level := range g.Levels {
		order = append(order, level...)
	}
	return order
}

func (g *Graph) sortedNames() []string {
	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToDOT generates a DOT representation of the graph. Edges point from a
// dependency to its dependent; precondition kinds are drawn dashed.
func (g *Graph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph Dependencies {\n")
	sb.WriteString("  rankdir=BT;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	// Group nodes by level for better visualization
	for level, names := range g.Levels {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")
		for _, name := range names {
			sb.WriteString(fmt.Sprintf("    %q;\n", name))
		}
		sb.WriteString("  }\n\n")
	}

	for _, name := range g.sortedNames() {
		node := g.Nodes[name]
		for _, dep := range node.Dependencies {
			sb.WriteString(fmt.Sprintf("  %q -> %q;\n", dep, name))
		}

		kinds := make([]string, 0, len(node.Preconditions))
		for kind := range node.Preconditions {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			for _, dep := range node.Preconditions[kind] {
				sb.WriteString(fmt.Sprintf("  %q -> %q [style=dashed, label=%q];\n", dep, name, kind))
			}
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// Graph analyzes the dependency graph reachable from roots.
func (b *Build) Graph(roots ...string) (*Graph, error) {
	return Analyze(b.catalog, roots...)
}
