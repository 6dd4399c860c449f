// Package galaxy answers topology questions over the static system graph.
package galaxy

import (
	"sort"

	"stardock/internal/domain"
)

type Graph struct {
	systems map[string]domain.System
	order   []string
	edges   map[string]map[string]int64
}

// New builds an undirected graph; connections are traversable both ways.
func New(systems []domain.System, conns []domain.Connection) *Graph {
	g := &Graph{
		systems: make(map[string]domain.System, len(systems)),
		edges:   make(map[string]map[string]int64, len(systems)),
	}
	for _, s := range systems {
		g.systems[s.ID] = s
		g.order = append(g.order, s.ID)
		g.edges[s.ID] = map[string]int64{}
	}
	for _, c := range conns {
		if g.edges[c.From] == nil || g.edges[c.To] == nil {
			continue
		}
		g.edges[c.From][c.To] = c.TravelTicks
		g.edges[c.To][c.From] = c.TravelTicks
	}
	return g
}

func (g *Graph) System(id string) (domain.System, bool) {
	s, ok := g.systems[id]
	return s, ok
}

// Systems returns every system in catalog order.
func (g *Graph) Systems() []domain.System {
	out := make([]domain.System, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.systems[id])
	}
	return out
}

// Neighbors returns adjacent systems sorted by id.
func (g *Graph) Neighbors(id string) []domain.System {
	ids := make([]string, 0, len(g.edges[id]))
	for n := range g.edges[id] {
		ids = append(ids, n)
	}
	sort.Strings(ids)
	out := make([]domain.System, 0, len(ids))
	for _, n := range ids {
		out = append(out, g.systems[n])
	}
	return out
}

// TravelTicks returns the lane length between adjacent systems.
func (g *Graph) TravelTicks(from, to string) (int64, bool) {
	t, ok := g.edges[from][to]
	return t, ok
}

// Hops returns the BFS distance, or -1 when unreachable.
func (g *Graph) Hops(from, to string) int {
	if from == to {
		if _, ok := g.systems[from]; ok {
			return 0
		}
		return -1
	}
	dist := g.distances(from, -1)
	if d, ok := dist[to]; ok {
		return d
	}
	return -1
}

// Within returns systems 1..maxHops away, nearest first then by id.
func (g *Graph) Within(from string, maxHops int) []string {
	dist := g.distances(from, maxHops)
	var out []string
	for id, d := range dist {
		if d > 0 {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if dist[out[i]] != dist[out[j]] {
			return dist[out[i]] < dist[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

func (g *Graph) distances(from string, limit int) map[string]int {
	dist := map[string]int{}
	if _, ok := g.systems[from]; !ok {
		return dist
	}
	dist[from] = 0
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if limit >= 0 && dist[cur] >= limit {
			continue
		}
		for n := range g.edges[cur] {
			if _, seen := dist[n]; seen {
				continue
			}
			dist[n] = dist[cur] + 1
			queue = append(queue, n)
		}
	}
	return dist
}
