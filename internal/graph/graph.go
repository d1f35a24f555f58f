// Package graph builds the directed transaction graph and computes the
// auxiliary metrics (influence, bridge centrality, velocity) used by the
// scoring stage.
package graph

import (
	"github.com/opensource-finance/harrier/internal/domain"
)

// edgeKey identifies a directed aggregated edge.
type edgeKey struct {
	From string
	To   string
}

// Edge aggregates every transaction between one ordered account pair.
type Edge struct {
	From             string
	To               string
	Amount           float64
	TransactionCount int
}

// Graph is a directed transaction graph. Nodes are account ids, edges
// aggregate amount and count per ordered pair. Iteration order over nodes,
// neighbors and edges follows first-appearance order in the input batch, so
// two runs over the same batch traverse identically.
type Graph struct {
	nodes    []string
	nodeSet  map[string]struct{}
	out      map[string][]string
	in       map[string][]string
	edges    map[edgeKey]*Edge
	edgeList []*Edge
}

// Build folds a transaction batch into a directed graph. Empty input yields
// an empty graph; there are no failure modes.
func Build(txs []domain.Transaction) *Graph {
	g := &Graph{
		nodeSet: make(map[string]struct{}),
		out:     make(map[string][]string),
		in:      make(map[string][]string),
		edges:   make(map[edgeKey]*Edge),
	}

	for _, tx := range txs {
		g.addNode(tx.SenderID)
		g.addNode(tx.ReceiverID)

		key := edgeKey{From: tx.SenderID, To: tx.ReceiverID}
		if e, ok := g.edges[key]; ok {
			e.Amount += tx.Amount
			e.TransactionCount++
			continue
		}
		e := &Edge{
			From:             tx.SenderID,
			To:               tx.ReceiverID,
			Amount:           tx.Amount,
			TransactionCount: 1,
		}
		g.edges[key] = e
		g.edgeList = append(g.edgeList, e)
		g.out[tx.SenderID] = append(g.out[tx.SenderID], tx.ReceiverID)
		g.in[tx.ReceiverID] = append(g.in[tx.ReceiverID], tx.SenderID)
	}

	return g
}

func (g *Graph) addNode(id string) {
	if _, ok := g.nodeSet[id]; ok {
		return
	}
	g.nodeSet[id] = struct{}{}
	g.nodes = append(g.nodes, id)
}

// Nodes returns account ids in first-appearance order. The returned slice is
// shared; callers must not mutate it.
func (g *Graph) Nodes() []string {
	return g.nodes
}

// NodeCount returns the number of accounts in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// HasNode reports whether the account appears in the graph.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodeSet[id]
	return ok
}

// OutNeighbors returns the distinct receivers this account sent to, in
// first-edge order.
func (g *Graph) OutNeighbors(id string) []string {
	return g.out[id]
}

// InNeighbors returns the distinct senders this account received from, in
// first-edge order.
func (g *Graph) InNeighbors(id string) []string {
	return g.in[id]
}

// InDegree is the count of distinct incoming edges, not transaction volume.
func (g *Graph) InDegree(id string) int {
	return len(g.in[id])
}

// OutDegree is the count of distinct outgoing edges, not transaction volume.
func (g *Graph) OutDegree(id string) int {
	return len(g.out[id])
}

// TotalDegree is in-degree plus out-degree.
func (g *Graph) TotalDegree(id string) int {
	return len(g.in[id]) + len(g.out[id])
}

// Edge returns the aggregated edge for an ordered pair, or nil.
func (g *Graph) Edge(from, to string) *Edge {
	return g.edges[edgeKey{From: from, To: to}]
}

// HasEdge reports whether a directed edge exists between the pair.
func (g *Graph) HasEdge(from, to string) bool {
	_, ok := g.edges[edgeKey{From: from, To: to}]
	return ok
}

// Edges returns all aggregated edges in first-appearance order. The returned
// slice is shared; callers must not mutate it.
func (g *Graph) Edges() []*Edge {
	return g.edgeList
}

// EdgeCount returns the number of distinct directed edges.
func (g *Graph) EdgeCount() int {
	return len(g.edgeList)
}
