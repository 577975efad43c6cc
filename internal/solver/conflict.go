package solver

import (
	"fmt"
	"strings"
)

// conflictEdge records one failed assignment attempt along the search
// trail: a name the solver could not satisfy, and why.
type conflictEdge struct {
	name   string
	reason string
}

// ConflictReport explains why Solve found no solution, in enough
// detail to reconstruct a tree from the root specs down to the
// specific names and reasons that could not be satisfied.
type ConflictReport struct {
	RootSpecs []string
	Edges     []ConflictEdge
}

// ConflictEdge is the public, ordered view of a failed assignment.
type ConflictEdge struct {
	Name   string
	Reason string
}

func (st *state) conflictReport() *ConflictReport {
	edges := make([]ConflictEdge, 0, len(st.trail))
	seen := make(map[string]bool)
	for _, e := range st.trail {
		if seen[e.name] {
			continue
		}
		seen[e.name] = true
		edges = append(edges, ConflictEdge{Name: e.name, Reason: e.reason})
	}

	roots := make([]string, 0, len(st.rootSpecs))
	for _, s := range st.rootSpecs {
		roots = append(roots, s.Name)
	}

	return &ConflictReport{RootSpecs: roots, Edges: edges}
}

// Tree renders the conflict as an indented root -> edges -> leaves
// tree, per spec §4.G.1.
func (r *ConflictReport) Tree() string {
	var b strings.Builder
	b.WriteString("unsolvable: root specs [" + strings.Join(r.RootSpecs, ", ") + "]\n")
	for _, e := range r.Edges {
		fmt.Fprintf(&b, "  %s: %s\n", e.Name, e.Reason)
	}
	return b.String()
}
