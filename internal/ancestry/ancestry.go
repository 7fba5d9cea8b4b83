// Package ancestry computes which lanes already contain each other's work.
//
// A Map is a value computed fresh per query and passed explicitly to the
// conflict classifier; it is never cached or persisted.
package ancestry

import (
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dongho-jung/lanes/internal/constants"
	"github.com/dongho-jung/lanes/internal/git"
	"github.com/dongho-jung/lanes/internal/logging"
)

// Lane is the minimal lane shape the mapper needs.
type Lane struct {
	ID     string
	Branch string
}

// Map records containment: m[a][b] is true when a contains b, i.e. b's tip
// is an ancestor of a's tip. The relation is irreflexive.
type Map map[string]map[string]bool

// Contains reports whether lane a contains lane b.
func (m Map) Contains(a, b string) bool {
	if a == b {
		return false
	}
	return m[a][b]
}

// Related reports whether either lane contains the other.
func (m Map) Related(a, b string) bool {
	return m.Contains(a, b) || m.Contains(b, a)
}

// Contained returns the sorted ids of lanes that a contains.
func (m Map) Contained(a string) []string {
	out := make([]string, 0, len(m[a]))
	for b, ok := range m[a] {
		if ok && b != a {
			out = append(out, b)
		}
	}
	sort.Strings(out)
	return out
}

// Build checks every ordered pair of distinct lanes concurrently. An
// undetermined answer counts as "not an ancestor". Lanes whose branch does
// not exist are left out of every pair.
func Build(client git.Client, repo string, lanes []Lane, concurrency int) Map {
	if concurrency < 1 {
		concurrency = constants.DefaultInspectConcurrency
	}

	present := make([]Lane, 0, len(lanes))
	for _, l := range lanes {
		if client.BranchExists(repo, l.Branch) {
			present = append(present, l)
		} else {
			logging.Debug("ancestry: skipping lane %s, branch %s missing", l.ID, l.Branch)
		}
	}

	m := make(Map, len(present))
	for _, l := range present {
		m[l.ID] = map[string]bool{}
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, a := range present {
		for _, b := range present {
			if a.ID == b.ID {
				continue
			}
			g.Go(func() error {
				res := client.IsAncestor(repo, b.Branch, a.Branch)
				switch res {
				case git.Ancestor:
					mu.Lock()
					m[a.ID][b.ID] = true
					mu.Unlock()
				case git.Undetermined:
					logging.Debug("ancestry: %s -> %s undetermined, treating as not an ancestor", b.ID, a.ID)
				}
				return nil
			})
		}
	}
	_ = g.Wait()
	return m
}
