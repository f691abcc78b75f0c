// Package machine holds the simulated hardware the kernel runs on: the
// tick counter and the interrupt controller. It is the contract between
// the scheduler and the (out-of-scope) interrupt harness.
package machine

// Stats is the global time source. One tick is one quantum of simulated
// time; every subsystem reads the same counter.
type Stats struct {
	totalTicks int64
}

// TotalTicks returns the current simulated time.
func (s *Stats) TotalTicks() int64 {
	return s.totalTicks
}

// Advance moves simulated time forward by n ticks.
func (s *Stats) Advance(n int64) {
	s.totalTicks += n
}
