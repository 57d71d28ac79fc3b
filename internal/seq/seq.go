// Package seq discards out-of-order responses: every request takes a
// ticket and only the holder of the newest ticket may apply its result.
package seq

import "go.uber.org/atomic"

type Ticket uint64

// Guard hands out monotonically increasing tickets. The zero value is ready
// to use.
type Guard struct {
	latest atomic.Uint64
}

// Next issues a ticket newer than every ticket issued before.
func (g *Guard) Next() Ticket {
	return Ticket(g.latest.Inc())
}

// Current reports whether t is still the newest ticket.
func (g *Guard) Current(t Ticket) bool {
	return g.latest.Load() == uint64(t)
}

// Invalidate makes every outstanding ticket stale, e.g. on teardown.
func (g *Guard) Invalidate() {
	g.latest.Inc()
}
