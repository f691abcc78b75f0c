// Package sched implements the three-queue multi-level feedback scheduler:
// preemptive shortest-job-first on L1, non-preemptive priority on L2,
// round-robin on L3, with periodic aging to keep low-priority threads from
// starving.
package sched

import "fmt"

const (
	MinPriority = 0
	MaxPriority = 149

	// Priority bands. L1 is priority 100 and above, L2 is 50..99, L3 is
	// the rest.
	l1PriorityFloor = 100
	l2PriorityFloor = 50

	// burstAlpha weights the most recent CPU burst in the exponential
	// average.
	burstAlpha = 0.5

	// NumTotalRegs is the size of the saved register context.
	NumTotalRegs = 40
)

// Status is a thread's lifecycle state.
type Status int

const (
	JustCreated Status = iota
	Ready
	Running
	Blocked
	Zombie
)

func (s Status) String() string {
	switch s {
	case JustCreated:
		return "just created"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case Zombie:
		return "zombie"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// AddressSpace is the contract with the user-program loader: state the
// scheduler must save and restore around a context switch.
type AddressSpace interface {
	SaveState()
	RestoreState()
}

// Context is the machine register state saved across a context switch.
type Context struct {
	Registers [NumTotalRegs]int32
}

// Thread is the per-thread control block.
type Thread struct {
	id       int
	name     string
	status   Status
	priority int

	// approxBurst is the exponential average of recent CPU bursts, the
	// SJF key on L1.
	approxBurst float64

	// execStartTick is the tick the current burst began, or -1 while the
	// thread is off the CPU.
	execStartTick int64

	agingInitialTick int64
	totalAgeTick     int64

	context Context
	space   AddressSpace
}

// NewThread returns a thread in the JustCreated state.
func NewThread(id int, name string, priority int) *Thread {
	return &Thread{
		id:            id,
		name:          name,
		status:        JustCreated,
		priority:      clampPriority(priority),
		execStartTick: -1,
	}
}

func (t *Thread) ID() int        { return t.id }
func (t *Thread) Name() string   { return t.name }
func (t *Thread) Status() Status { return t.status }

func (t *Thread) setStatus(s Status) { t.status = s }

// SetStatus records a lifecycle transition made outside the scheduler
// (blocking, finishing).
func (t *Thread) SetStatus(s Status) { t.status = s }

// Priority returns the current priority.
func (t *Thread) Priority() int { return t.priority }

// SetPriority sets the priority, clamped to [MinPriority, MaxPriority].
func (t *Thread) SetPriority(p int) { t.priority = clampPriority(p) }

// Layer returns the ready-queue band the thread's priority dictates.
func (t *Thread) Layer() int {
	switch {
	case t.priority >= l1PriorityFloor:
		return 1
	case t.priority >= l2PriorityFloor:
		return 2
	default:
		return 3
	}
}

// ApproxBurstTime returns the current burst estimate.
func (t *Thread) ApproxBurstTime() float64 { return t.approxBurst }

// SetApproxBurstTime seeds the burst estimate, used when admitting a
// thread whose behavior is known.
func (t *Thread) SetApproxBurstTime(est float64) { t.approxBurst = est }

// beginBurst marks the start of a CPU burst.
func (t *Thread) beginBurst(now int64) {
	t.execStartTick = now
}

// endBurst folds the finished burst into the estimate:
// est' = alpha*last + (1-alpha)*est. A no-op if no burst is in progress.
func (t *Thread) endBurst(now int64) {
	if t.execStartTick < 0 {
		return
	}
	last := float64(now - t.execStartTick)
	t.approxBurst = burstAlpha*last + (1-burstAlpha)*t.approxBurst
	t.execStartTick = -1
}

// TotalAgeTick returns the accumulated waiting time.
func (t *Thread) TotalAgeTick() int64 { return t.totalAgeTick }

// UpgradeTotalAgeTick folds the time waited since the last checkpoint into
// the aging counter and restarts the checkpoint.
func (t *Thread) UpgradeTotalAgeTick(now int64) {
	t.totalAgeTick += now - t.agingInitialTick
	t.agingInitialTick = now
}

// Space returns the thread's address space, if it runs a user program.
func (t *Thread) Space() AddressSpace { return t.space }

// SetSpace attaches an address space.
func (t *Thread) SetSpace(space AddressSpace) { t.space = space }

// SaveContext stores the machine context at switch-out.
func (t *Thread) SaveContext(ctx Context) { t.context = ctx }

// SavedContext returns the context to restore at switch-in.
func (t *Thread) SavedContext() Context { return t.context }

func clampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}
