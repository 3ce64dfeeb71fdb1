package session

import (
	"github.com/dudk/console/event"
	"github.com/dudk/console/route"
)

// Sort orders routes so every route is processed after routes feeding
// it, then updates solo propagation and latency alignment. On feedback
// the routes of the loop are processed in creation order and ErrFeedback
// is returned.
func (s *Session) Sort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolveSends()
	return s.sort()
}

// ProcessOrder returns names of routes in the order they are processed.
func (s *Session) ProcessOrder() []string {
	var names []string
	if order := s.order.Load(); order != nil {
		for _, n := range *order {
			names = append(names, n.route.Name())
		}
	}
	return names
}

// sort must be called with mu held.
func (s *Session) sort() error {
	feeds := make([][]bool, len(s.routes))
	for i, a := range s.routes {
		feeds[i] = make([]bool, len(s.routes))
		for j, b := range s.routes {
			feeds[i][j] = i != j && a.Feeds(b)
		}
	}
	order, ok := topoSort(feeds)
	nodes := make([]node, 0, len(order))
	for _, i := range order {
		r := s.routes[i]
		nodes = append(nodes, node{route: r, track: s.tracks[r.ID()]})
	}
	s.order.Store(&nodes)
	s.reach = closure(feeds)
	s.propagateSolo()
	s.align(order, feeds)
	s.ctx.Bus.Emit(event.Message{Kind: event.GraphReordered, Value: float64(len(nodes))})
	if !ok {
		s.logger.Warn("routes feed each other")
		return ErrFeedback
	}
	return nil
}

// resolveSends binds internal sends to returns. It's the point where all
// routes exist and it's legal to connect. Must be called with mu held.
func (s *Session) resolveSends() {
	for _, r := range s.routes {
		if inert := r.ResolveSends(s.lookupReturn); inert > 0 {
			s.logger.WithField("route", r.Name()).Debugf("%d sends without target", inert)
		}
	}
}

// topoSort returns indices in dependency order. Ties are broken by index.
// If graph has a loop, remaining nodes are appended by index and false is
// returned.
func topoSort(feeds [][]bool) ([]int, bool) {
	n := len(feeds)
	indegree := make([]int, n)
	for i := range feeds {
		for j := range feeds[i] {
			if feeds[i][j] {
				indegree[j]++
			}
		}
	}
	order := make([]int, 0, n)
	done := make([]bool, n)
	for len(order) < n {
		next := -1
		for i := 0; i < n; i++ {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			for i := 0; i < n; i++ {
				if !done[i] {
					order = append(order, i)
				}
			}
			return order, false
		}
		done[next] = true
		order = append(order, next)
		for j := range feeds[next] {
			if feeds[next][j] {
				indegree[j]--
			}
		}
	}
	return order, true
}

// closure returns transitive closure of feeds.
func closure(feeds [][]bool) [][]bool {
	n := len(feeds)
	reach := make([][]bool, n)
	for i := range feeds {
		reach[i] = append([]bool(nil), feeds[i]...)
	}
	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			if !reach[i][k] {
				continue
			}
			for j := 0; j < n; j++ {
				if reach[k][j] && i != j {
					reach[i][j] = true
				}
			}
		}
	}
	return reach
}

// SetSolo solos the route and updates routes it feeds or is fed by, so
// the soloed signal path stays audible.
func (s *Session) SetSolo(r *route.Route, v bool) {
	r.SetSolo(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.propagateSolo()
}

// propagateSolo must be called with mu held.
func (s *Session) propagateSolo() {
	for j, r := range s.routes {
		upstream, downstream := 0, 0
		for i, soloed := range s.routes {
			if i == j || !soloed.SelfSoloed() || len(s.reach) <= max(i, j) {
				continue
			}
			if s.reach[i][j] {
				upstream++
			}
			if s.reach[j][i] {
				downstream++
			}
		}
		up, down := r.SoloedBy()
		r.ModSoloedByUpstream(upstream - up)
		r.ModSoloedByDownstream(downstream - down)
	}
}

// align sets alignment delays of routes. Must be called with mu held.
func (s *Session) align(order []int, feeds [][]bool) {
	latency := make([]int, len(s.routes))
	for i, r := range s.routes {
		latency[i] = r.Latency()
	}
	for i, frames := range alignments(latency, feeds, order) {
		if s.routes[i].Alignment() != frames {
			s.routes[i].SetAlignment(frames)
		}
	}
}

// alignments returns delays which make signals of all routes feeding the
// same destination arrive at the same time.
func alignments(latency []int, feeds [][]bool, order []int) []int {
	n := len(latency)
	align := make([]int, n)
	arrival := make([]int, n)
	for iteration := 0; iteration <= n; iteration++ {
		for _, i := range order {
			arrival[i] = 0
			for j := 0; j < n; j++ {
				if feeds[j][i] {
					arrival[i] = max(arrival[i], arrival[j]+latency[j]+align[j])
				}
			}
		}
		// the latest feeder defines when signal is complete at destination
		target := make([]int, n)
		for d := 0; d < n; d++ {
			for j := 0; j < n; j++ {
				if feeds[j][d] {
					target[d] = max(target[d], arrival[j]+latency[j])
				}
			}
		}
		changed := false
		for j := 0; j < n; j++ {
			next := 0
			for d := 0; d < n; d++ {
				if feeds[j][d] {
					next = max(next, target[d]-arrival[j]-latency[j])
				}
			}
			if next != align[j] {
				align[j] = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return align
}
