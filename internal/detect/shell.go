package detect

import (
	"strings"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
)

// shellSearch enumerates simple directed paths of bounded length. Recursion
// depth is capped by the max node count.
type shellSearch struct {
	params Params
	g      *graph.Graph
	seen   map[string]struct{}

	shells []domain.ShellPath
	path   []string
	onPath map[string]struct{}
}

// detectShells finds layered shell chains: short paths whose intermediate
// accounts are low-traffic pass-throughs (total degree at or below the cap).
func (d *Detector) detectShells(g *graph.Graph) []domain.ShellPath {
	s := &shellSearch{
		params: d.params,
		g:      g,
		seen:   make(map[string]struct{}),
		onPath: make(map[string]struct{}),
	}

	for _, node := range g.Nodes() {
		for nodes := d.params.ShellMinNodes; nodes <= d.params.ShellMaxNodes; nodes++ {
			s.path = append(s.path[:0], node)
			s.onPath = map[string]struct{}{node: {}}
			s.extend(nodes)
		}
	}
	return s.shells
}

func (s *shellSearch) extend(target int) {
	if len(s.path) == target {
		s.evaluate()
		return
	}
	current := s.path[len(s.path)-1]
	for _, nb := range s.g.OutNeighbors(current) {
		if _, ok := s.onPath[nb]; ok {
			continue
		}
		s.path = append(s.path, nb)
		s.onPath[nb] = struct{}{}
		s.extend(target)
		delete(s.onPath, nb)
		s.path = s.path[:len(s.path)-1]
	}
}

func (s *shellSearch) evaluate() {
	key := strings.Join(s.path, "->")
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}

	for _, node := range s.path[1 : len(s.path)-1] {
		if s.g.TotalDegree(node) > s.params.ShellMaxIntermediate {
			return
		}
	}

	total := 0.0
	amounts := make([]float64, 0, len(s.path)-1)
	for i := 0; i < len(s.path)-1; i++ {
		if e := s.g.Edge(s.path[i], s.path[i+1]); e != nil {
			amounts = append(amounts, e.Amount)
			total += e.Amount
		}
	}

	if s.params.ShellAmountFilter {
		// Near-identical hop amounts are the muling signature; anything
		// with real variation is dropped.
		if len(amounts) < 2 {
			return
		}
		if coefficientOfVariation(amounts, 1) >= s.params.ShellMaxCoV {
			return
		}
	}

	path := make([]string, len(s.path))
	copy(path, s.path)
	s.shells = append(s.shells, domain.ShellPath{
		Path:        path,
		Length:      len(path) - 1,
		TotalAmount: total,
	})
}
