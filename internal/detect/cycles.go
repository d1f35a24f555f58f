package detect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
)

// cycleSearch carries the state of one cycle-detection pass. The recursion is
// bounded by the max path length, so stack depth never exceeds the cap.
type cycleSearch struct {
	params  Params
	g       *graph.Graph
	seen    map[string]struct{} // canonical keys already decided
	counter int

	cycles []domain.Cycle
	rings  []domain.FraudRing

	path    []string
	visited map[string]struct{}
}

// detectCycles finds directed cycles of bounded length from every start node.
// Distinct rotations of the same cycle collapse onto one canonical key, and a
// ring id is assigned only on first sighting of a key.
func (d *Detector) detectCycles(g *graph.Graph) ([]domain.Cycle, []domain.FraudRing) {
	s := &cycleSearch{
		params: d.params,
		g:      g,
		seen:   make(map[string]struct{}),
	}

	for _, start := range g.Nodes() {
		s.path = s.path[:0]
		s.visited = map[string]struct{}{start: {}}
		s.walk(start, start)
	}

	return s.cycles, s.rings
}

func (s *cycleSearch) walk(node, start string) {
	s.path = append(s.path, node)
	defer func() { s.path = s.path[:len(s.path)-1] }()

	if len(s.path) >= s.params.CycleMinLength && s.g.HasEdge(node, start) {
		s.record(start)
	}

	if len(s.path) >= s.params.CycleMaxLength {
		return
	}
	for _, nb := range s.g.OutNeighbors(node) {
		if _, ok := s.visited[nb]; ok {
			continue
		}
		s.visited[nb] = struct{}{}
		s.walk(nb, start)
		delete(s.visited, nb)
	}
}

// record registers the current path as a closed cycle if its canonical key is
// new and (for the enhanced tier) its leg amounts vary enough to rule out a
// round-trip refund shape.
func (s *cycleSearch) record(start string) {
	key := canonicalKey(s.path)
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}

	closed := make([]string, 0, len(s.path)+1)
	closed = append(closed, s.path...)
	closed = append(closed, start)

	amounts := make([]float64, 0, len(closed)-1)
	total := 0.0
	for i := 0; i < len(closed)-1; i++ {
		e := s.g.Edge(closed[i], closed[i+1])
		if e == nil {
			return
		}
		amounts = append(amounts, e.Amount)
		total += e.Amount
	}

	if s.params.CycleAmountFilter && len(amounts) >= 3 {
		if coefficientOfVariation(amounts, 0) < s.params.CycleCoV {
			// Uniform leg amounts look like a legitimate round trip.
			return
		}
	}

	ringID := fmt.Sprintf("RING_%03d", s.counter)
	s.counter++

	edges := len(closed) - 1
	s.cycles = append(s.cycles, domain.Cycle{
		Accounts:    closed,
		Length:      edges,
		RingID:      ringID,
		TotalAmount: total,
		Pattern:     domain.CyclePattern(edges),
	})
	s.rings = append(s.rings, domain.FraudRing{
		RingID:         ringID,
		MemberAccounts: uniqueMembers(closed),
		PatternType:    "cycle",
	})
}

// canonicalKey is the sorted, deduplicated account set of a cycle path. Any
// rotation or traversal order of the same cycle maps to the same key.
func canonicalKey(path []string) string {
	unique := uniqueMembers(path)
	return strings.Join(unique, "->")
}

func uniqueMembers(path []string) []string {
	set := make(map[string]struct{}, len(path))
	for _, id := range path {
		set[id] = struct{}{}
	}
	members := make([]string, 0, len(set))
	for id := range set {
		members = append(members, id)
	}
	sort.Strings(members)
	return members
}
