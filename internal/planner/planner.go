// Package planner orders merge-ready lanes so that every lane follows its
// dependencies.
package planner

import (
	"github.com/dongho-jung/lanes/internal/logging"
	"github.com/dongho-jung/lanes/internal/run"
)

// Node is a lane and the lanes it depends on.
type Node struct {
	ID        string
	DependsOn []string
}

// Edge is a dependency From -> To (From depends on To).
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Result is a merge order plus the dependency edges dropped to break cycles.
type Result struct {
	Order       []string
	BrokenEdges []Edge
}

// TopologicalSort orders nodes depth-first so dependencies come first. An
// edge into a node that is still being visited closes a cycle; it is skipped
// and reported in BrokenEdges. Independent nodes keep their input order.
// Dependencies on ids that are not among nodes are ignored.
func TopologicalSort(nodes []Node) Result {
	byID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	res := Result{Order: make([]string, 0, len(nodes))}
	visited := make(map[string]bool, len(nodes))
	visiting := make(map[string]bool)

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visiting[id] = true
		for _, dep := range byID[id].DependsOn {
			if _, ok := byID[dep]; !ok {
				continue
			}
			if visiting[dep] {
				logging.Debug("planner: dropping cycle edge %s -> %s", id, dep)
				res.BrokenEdges = append(res.BrokenEdges, Edge{From: id, To: dep})
				continue
			}
			visit(dep)
		}
		visiting[id] = false
		visited[id] = true
		res.Order = append(res.Order, id)
	}

	for _, n := range nodes {
		visit(n.ID)
	}
	return res
}

// FilterComplete returns a node per complete lane, in plan order, keeping only
// dependencies on other complete lanes of the run.
func FilterComplete(lanes []run.Lane, status *run.Status) []Node {
	complete := make(map[string]bool, len(lanes))
	for _, l := range lanes {
		if status.IsComplete(l.ID) {
			complete[l.ID] = true
		}
	}

	nodes := make([]Node, 0, len(complete))
	for _, l := range lanes {
		if !complete[l.ID] {
			continue
		}
		var deps []string
		for _, d := range l.DependsOn {
			if complete[d] && d != l.ID {
				deps = append(deps, d)
			}
		}
		nodes = append(nodes, Node{ID: l.ID, DependsOn: deps})
	}
	return nodes
}
