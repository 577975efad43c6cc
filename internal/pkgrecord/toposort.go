package pkgrecord

import "sort"

// TopoSort orders records so that dependencies precede dependents,
// except across whichever edge is chosen to break a cycle. Cycles are
// broken by repeatedly advancing the node with the fewest unresolved
// incoming edges (ties broken by name), per spec §4.C.
//
// Grounded on Kahn's algorithm, generalized with an explicit
// cycle-break step; at most one record per name is expected (the
// solver's output), extra records sharing a name are treated as
// distinct nodes that never satisfy each other's edges.
func TopoSort(records []PackageRecord) []PackageRecord {
	n := len(records)
	if n == 0 {
		return nil
	}

	byName := make(map[string][]int, n)
	for i, r := range records {
		byName[r.Name] = append(byName[r.Name], i)
	}

	// deps[v] = set of node indices v depends on (must precede v).
	deps := make([]map[int]bool, n)
	for i, r := range records {
		deps[i] = make(map[int]bool)
		for _, d := range r.Depends {
			name := extractDepName(d)
			if name == "" || name == r.Name {
				continue
			}
			for _, j := range byName[name] {
				deps[i][j] = true
			}
		}
	}

	inDegree := make([]int, n)
	dependents := make([]map[int]bool, n) // dependents[j] = nodes depending on j
	for i := range dependents {
		dependents[i] = make(map[int]bool)
	}
	for i := 0; i < n; i++ {
		inDegree[i] = len(deps[i])
		for j := range deps[i] {
			dependents[j][i] = true
		}
	}

	remaining := make(map[int]bool, n)
	for i := 0; i < n; i++ {
		remaining[i] = true
	}

	order := make([]PackageRecord, 0, n)
	for len(remaining) > 0 {
		next := pickNext(remaining, inDegree, records)
		order = append(order, records[next])
		delete(remaining, next)
		for dependent := range dependents[next] {
			if remaining[dependent] && deps[dependent][next] {
				inDegree[dependent]--
			}
		}
		// Clear edges pointing at the removed node so a later
		// cycle-break decision doesn't double count it.
		for dependent := range dependents[next] {
			delete(deps[dependent], next)
		}
	}

	return order
}

// pickNext chooses the next node to emit: a node with zero unresolved
// dependencies if one exists (stable lowest-index pick), otherwise the
// node with the fewest incoming edges to break the cycle (ties by name).
func pickNext(remaining map[int]bool, inDegree []int, records []PackageRecord) int {
	candidates := make([]int, 0, len(remaining))
	for i := range remaining {
		candidates = append(candidates, i)
	}
	sort.Slice(candidates, func(a, b int) bool {
		ia, ib := candidates[a], candidates[b]
		return ia < ib
	})

	for _, i := range candidates {
		if inDegree[i] <= 0 {
			return i
		}
	}

	best := candidates[0]
	for _, i := range candidates[1:] {
		if inDegree[i] < inDegree[best] ||
			(inDegree[i] == inDegree[best] && records[i].Name < records[best].Name) {
			best = i
		}
	}
	return best
}

// extractDepName pulls the package name out of a dependency MatchSpec
// string without a full parse: the leading run of characters that isn't
// whitespace or a version/build predicate delimiter.
func extractDepName(spec string) string {
	spec = trimLeadingSpace(spec)
	end := 0
	for end < len(spec) {
		c := spec[end]
		if c == ' ' || c == '<' || c == '>' || c == '=' || c == '!' ||
			c == '~' || c == ',' || c == '|' || c == '[' || c == '(' {
			break
		}
		end++
	}
	name := spec[:end]
	if idx := indexString(name, "::"); idx >= 0 {
		// strip a "channel::" prefix if present.
		name = name[idx+2:]
	}
	return name
}

func trimLeadingSpace(s string) string {
	i := 0
	for i < len(s) && s[i] == ' ' {
		i++
	}
	return s[i:]
}

func indexString(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
