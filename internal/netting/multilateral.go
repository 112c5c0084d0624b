package netting

import (
	"sort"

	"github.com/ksred/klear-settlement/internal/types"
	"github.com/ksred/klear-settlement/pkg/ticks"
	"github.com/rs/zerolog/log"
)

// Node states for the iterative depth-first search.
const (
	unvisited uint8 = iota
	onStack
	done
)

type edge struct {
	to int
	ob int // index into graph.obligations
}

// graph is an index-based adjacency list. Nodes are account ids in ascending
// order and every node's edges are sorted by target, so traversal order and
// therefore the cancelled cycles depend only on the input values.
type graph struct {
	accounts    []types.AccountID
	adj         [][]edge
	weights     []int64
	obligations []types.NetObligation
}

func buildGraph(obligations []types.NetObligation) *graph {
	seen := make(map[types.AccountID]struct{})
	for _, ob := range obligations {
		seen[ob.Pair.Low] = struct{}{}
		seen[ob.Pair.High] = struct{}{}
	}
	accounts := make([]types.AccountID, 0, len(seen))
	for id := range seen {
		accounts = append(accounts, id)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })

	index := make(map[types.AccountID]int, len(accounts))
	for i, id := range accounts {
		index[id] = i
	}

	g := &graph{
		accounts:    accounts,
		adj:         make([][]edge, len(accounts)),
		weights:     make([]int64, len(obligations)),
		obligations: make([]types.NetObligation, len(obligations)),
	}
	for i, ob := range obligations {
		g.obligations[i] = ob.Clone()
		g.weights[i] = ob.Magnitude()
		from := index[ob.Debtor()]
		g.adj[from] = append(g.adj[from], edge{to: index[ob.Creditor()], ob: i})
	}
	for _, edges := range g.adj {
		sort.Slice(edges, func(i, j int) bool {
			if edges[i].to != edges[j].to {
				return edges[i].to < edges[j].to
			}
			return edges[i].ob < edges[j].ob
		})
	}
	return g
}

type frame struct {
	node int
	next int
}

// findCycle returns the obligation indices and node sequence of the first
// cycle reached by an iterative DFS over edges with positive weight, or nil
// when the graph is acyclic. A self-loop is a cycle of one edge.
func (g *graph) findCycle() ([]int, []int) {
	state := make([]uint8, len(g.accounts))

	for root := range g.accounts {
		if state[root] != unvisited {
			continue
		}
		stack := []frame{{node: root}}
		path := []int{} // path[i] is the edge from stack[i] to stack[i+1]
		state[root] = onStack

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next >= len(g.adj[top.node]) {
				state[top.node] = done
				stack = stack[:len(stack)-1]
				if len(path) > 0 {
					path = path[:len(path)-1]
				}
				continue
			}
			e := g.adj[top.node][top.next]
			top.next++
			if g.weights[e.ob] == 0 {
				continue
			}

			switch state[e.to] {
			case onStack:
				start := len(stack) - 1
				for stack[start].node != e.to {
					start--
				}
				edges := append(append([]int(nil), path[start:]...), e.ob)
				nodes := make([]int, 0, len(stack)-start)
				for _, f := range stack[start:] {
					nodes = append(nodes, f.node)
				}
				return edges, nodes
			case unvisited:
				state[e.to] = onStack
				path = append(path, e.ob)
				stack = append(stack, frame{node: e.to})
			}
		}
	}
	return nil, nil
}

// cancel subtracts the cycle's minimum edge weight from every edge on it and
// returns that amount. Positions are prorated by the fraction of value removed.
func (g *graph) cancel(edges []int) int64 {
	minWeight := g.weights[edges[0]]
	for _, i := range edges[1:] {
		minWeight = min(minWeight, g.weights[i])
	}
	for _, i := range edges {
		before := g.weights[i]
		after := before - minWeight
		ob := &g.obligations[i]
		for p := range ob.Positions {
			ob.Positions[p].Quantity -= ticks.MulDiv(ob.Positions[p].Quantity, minWeight, before)
		}
		if ob.Amount < 0 {
			ob.Amount = -after
		} else {
			ob.Amount = after
		}
		g.weights[i] = after
	}
	return minWeight
}

// MultilateralNet removes closed loops of debt from bilateral obligations.
// Every cycle found has its minimum edge subtracted around the loop, which
// lowers gross exposure without changing any account's net position. The
// search repeats until the graph is acyclic; each pass zeroes at least one
// edge, so it terminates after at most len(obligations) cancellations.
func MultilateralNet(obligations []types.NetObligation) *MultilateralResult {
	logger := log.With().
		Str("service", "netting").
		Int("obligations", len(obligations)).
		Logger()

	g := buildGraph(obligations)
	result := &MultilateralResult{
		GrossBefore: GrossValue(obligations),
		Cycles:      []CancelledCycle{},
	}

	for {
		edges, nodes := g.findCycle()
		if edges == nil {
			break
		}
		amount := g.cancel(edges)
		cycle := CancelledCycle{Accounts: make([]types.AccountID, len(nodes)), Amount: amount}
		for i, n := range nodes {
			cycle.Accounts[i] = g.accounts[n]
		}
		result.Cycles = append(result.Cycles, cycle)
		result.CancelledValue = ticks.Add(result.CancelledValue, cycle.Value())

		logger.Debug().
			Interface("accounts", cycle.Accounts).
			Int64("amount", amount).
			Msg("cancelled netting cycle")
	}

	result.Obligations = make([]types.NetObligation, 0, len(g.obligations))
	for i, ob := range g.obligations {
		if g.weights[i] == 0 {
			continue
		}
		positions := ob.Positions[:0]
		for _, p := range ob.Positions {
			if p.Quantity != 0 {
				positions = append(positions, p)
			}
		}
		ob.Positions = positions
		result.Obligations = append(result.Obligations, ob)
	}
	sortObligations(result.Obligations)
	result.GrossAfter = GrossValue(result.Obligations)

	logger.Info().
		Int("cycles", len(result.Cycles)).
		Int("remaining", len(result.Obligations)).
		Int64("gross_before", result.GrossBefore).
		Int64("gross_after", result.GrossAfter).
		Int64("cancelled_value", result.CancelledValue).
		Msg("completed multilateral netting")

	return result
}
