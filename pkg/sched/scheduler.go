package sched

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/ha1tch/minikern/pkg/machine"
)

const (
	// AgingInterval is how often, in ticks, the aging pass runs; the
	// round-robin quantum on L3 is the same interval.
	AgingInterval     = 100
	RoundRobinQuantum = 100

	// agingThreshold is the accumulated wait that earns a promotion of
	// agingBoost priority points.
	agingThreshold = 1500
	agingBoost     = 10
)

// Scheduler dispatches threads from three ready queues: L1 (preemptive
// shortest-job-first), L2 (non-preemptive priority), L3 (round-robin).
// Every operation requires interrupts to be disabled.
type Scheduler struct {
	interrupt *machine.Interrupt
	stats     *machine.Stats

	l1, l2, l3 []*Thread

	current       *Thread
	toBeDestroyed *Thread

	log logrus.FieldLogger
}

// New returns an empty scheduler driven by the given interrupt controller
// and clock.
func New(interrupt *machine.Interrupt, stats *machine.Stats, log logrus.FieldLogger) *Scheduler {
	return &Scheduler{interrupt: interrupt, stats: stats, log: log}
}

// Current returns the running thread.
func (s *Scheduler) Current() *Thread {
	return s.current
}

// Bootstrap installs the initial thread as the running one.
func (s *Scheduler) Bootstrap(t *Thread) {
	t.setStatus(Running)
	t.beginBurst(s.stats.TotalTicks())
	s.current = t
}

// ReadyToRun marks t ready and enqueues it at the tail of the queue its
// priority dictates. If t was running, its finished burst is folded into
// the estimate first. An insertion into L1 checks whether the running
// thread should be preempted.
func (s *Scheduler) ReadyToRun(t *Thread) {
	s.interrupt.AssertOff()

	now := s.stats.TotalTicks()
	t.endBurst(now)
	t.setStatus(Ready)
	s.enqueue(t)
	t.agingInitialTick = now
}

// FindNextToRun removes and returns the next thread to dispatch, choosing
// from the highest non-empty queue: minimum burst estimate on L1, maximum
// priority on L2, the head on L3. Ties keep the earliest-inserted thread.
// Returns nil when every queue is empty.
func (s *Scheduler) FindNextToRun() *Thread {
	s.interrupt.AssertOff()

	switch {
	case len(s.l1) > 0:
		best := 0
		for i, t := range s.l1 {
			if t.ApproxBurstTime() < s.l1[best].ApproxBurstTime() {
				best = i
			}
		}
		return s.dequeue(1, best)
	case len(s.l2) > 0:
		best := 0
		for i, t := range s.l2 {
			if t.Priority() > s.l2[best].Priority() {
				best = i
			}
		}
		return s.dequeue(2, best)
	case len(s.l3) > 0:
		return s.dequeue(3, 0)
	default:
		return nil
	}
}

// Run dispatches next. The caller has already removed next from its ready
// queue. The outgoing thread's user state is saved if it has an address
// space; if finishing, it is parked for destruction once it is off the
// CPU. Any previously parked thread is reclaimed after the switch.
func (s *Scheduler) Run(next *Thread, finishing bool) {
	s.interrupt.AssertOff()

	old := s.current
	if finishing {
		if s.toBeDestroyed != nil {
			panic("scheduler: a finished thread is already awaiting destruction")
		}
		s.toBeDestroyed = old
	}
	if old != nil && old != next && old.space != nil {
		old.space.SaveState()
	}

	s.current = next
	next.setStatus(Running)
	next.beginBurst(s.stats.TotalTicks())

	s.log.WithFields(logrus.Fields{
		"tick": s.stats.TotalTicks(),
		"next": next.Name(),
		"prev": threadName(old),
	}).Debug("context switch")

	// On the simulated uniprocessor the switch completes immediately;
	// clean up the carcass of any thread that finished on its own stack.
	s.reclaim()
	if next.space != nil {
		next.space.RestoreState()
	}
}

// Aging runs one aging pass over every ready queue: waiting time
// accumulates, and a thread that has waited agingThreshold ticks trades
// them for agingBoost priority points, migrating upward when its new
// priority crosses a band boundary.
func (s *Scheduler) Aging() {
	s.interrupt.AssertOff()
	s.agePass(&s.l1, 1)
	s.agePass(&s.l2, 2)
	s.agePass(&s.l3, 3)
}

func (s *Scheduler) agePass(queue *[]*Thread, layer int) {
	now := s.stats.TotalTicks()
	snapshot := append([]*Thread(nil), *queue...)
	for _, t := range snapshot {
		t.UpgradeTotalAgeTick(now)
		if t.TotalAgeTick() < agingThreshold || t.Priority() >= MaxPriority {
			continue
		}
		from := t.Priority()
		t.totalAgeTick -= agingThreshold
		t.SetPriority(from + agingBoost)
		s.log.WithFields(logrus.Fields{
			"tick":   now,
			"thread": t.Name(),
			"from":   from,
			"to":     t.Priority(),
		}).Debug("aging promotion")

		if t.Layer() != layer {
			s.removeThread(queue, t)
			s.enqueue(t)
		}
	}
}

// TimerTick is the 100-tick alarm handler: it runs the aging pass and
// requests a yield from a running L3 thread. The round-robin quantum is the
// alarm interval itself: the yield is requested at every alarm, however
// long the L3 thread has been running.
func (s *Scheduler) TimerTick() {
	s.interrupt.AssertOff()
	s.Aging()
	if s.current != nil && s.current.Layer() == 3 {
		s.interrupt.YieldOnReturn()
	}
}

// Dump prints the ready queues to w.
func (s *Scheduler) Dump(w io.Writer) {
	for layer, queue := range [][]*Thread{s.l1, s.l2, s.l3} {
		fmt.Fprintf(w, "L%d:", layer+1)
		for _, t := range queue {
			fmt.Fprintf(w, " %s(pri=%d burst=%.1f)", t.Name(), t.Priority(), t.ApproxBurstTime())
		}
		fmt.Fprintln(w)
	}
}

// enqueue appends t to the tail of the queue its priority dictates and
// runs the L1 preemption check.
func (s *Scheduler) enqueue(t *Thread) {
	layer := t.Layer()
	switch layer {
	case 1:
		s.l1 = append(s.l1, t)
	case 2:
		s.l2 = append(s.l2, t)
	default:
		s.l3 = append(s.l3, t)
	}
	s.log.WithFields(logrus.Fields{
		"tick":   s.stats.TotalTicks(),
		"thread": t.Name(),
		"layer":  layer,
	}).Debug("thread enqueued")

	if layer == 1 {
		s.preemptCheck(t)
	}
}

// preemptCheck requests a yield on interrupt return when the new L1
// thread should displace the running one: always when the running thread
// sits in a lower band, and on a shorter burst estimate within L1.
func (s *Scheduler) preemptCheck(newThread *Thread) {
	if s.current == nil {
		return
	}
	if s.current.Layer() != 1 || newThread.ApproxBurstTime() < s.current.ApproxBurstTime() {
		s.interrupt.YieldOnReturn()
	}
}

// dequeue removes and returns the thread at index i of the given layer's
// queue, updating its aging counters.
func (s *Scheduler) dequeue(layer, i int) *Thread {
	var t *Thread
	switch layer {
	case 1:
		t = s.l1[i]
		s.l1 = append(s.l1[:i], s.l1[i+1:]...)
	case 2:
		t = s.l2[i]
		s.l2 = append(s.l2[:i], s.l2[i+1:]...)
	default:
		t = s.l3[i]
		s.l3 = append(s.l3[:i], s.l3[i+1:]...)
	}
	now := s.stats.TotalTicks()
	t.UpgradeTotalAgeTick(now)
	s.log.WithFields(logrus.Fields{
		"tick":   now,
		"thread": t.Name(),
		"layer":  layer,
	}).Debug("thread dequeued")
	return t
}

func (s *Scheduler) removeThread(queue *[]*Thread, t *Thread) {
	for i, q := range *queue {
		if q == t {
			*queue = append((*queue)[:i], (*queue)[i+1:]...)
			return
		}
	}
	panic(fmt.Sprintf("scheduler: thread %s not in its expected queue", t.Name()))
}

// reclaim frees the thread parked by a finishing Run.
func (s *Scheduler) reclaim() {
	if s.toBeDestroyed == nil {
		return
	}
	s.log.WithField("thread", s.toBeDestroyed.Name()).Debug("destroying finished thread")
	s.toBeDestroyed = nil
}

func threadName(t *Thread) string {
	if t == nil {
		return "<none>"
	}
	return t.Name()
}
