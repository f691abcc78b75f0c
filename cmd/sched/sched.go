// Package sched implements the subcommand that runs a scheduler
// simulation: a YAML-described workload of synthetic threads is admitted
// and driven tick by tick until every thread completes.
package sched

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ha1tch/minikern/cmd/cmdutil"
	"github.com/ha1tch/minikern/pkg/kernel"
	"github.com/ha1tch/minikern/pkg/machine"
	mlfq "github.com/ha1tch/minikern/pkg/sched"
)

// maxTicks bounds a runaway simulation.
const maxTicks = 10_000_000

// New returns the sched command.
func New() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sched",
		Short: "Run the MLFQ scheduler over a synthetic workload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := cmdutil.Logger(cmd)

			cfg := kernel.DefaultConfig()
			if configPath != "" {
				loaded, err := kernel.LoadConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			workload := cfg.Workload
			if len(workload) == 0 {
				workload = defaultWorkload()
			}

			interrupt := machine.NewInterrupt()
			stats := &machine.Stats{}
			s := mlfq.New(interrupt, stats, log)
			return simulate(s, interrupt, stats, workload)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "YAML config with a workload section")
	return cmd
}

// defaultWorkload is the demo mix used when the config names none: two
// long L1 jobs, a short latecomer that preempts them, an L2 job, and a
// starvation-prone L3 job that aging must rescue.
func defaultWorkload() []kernel.WorkloadThread {
	return []kernel.WorkloadThread{
		{Name: "crunch", Priority: 120, Burst: 400, Arrival: 0},
		{Name: "index", Priority: 110, Burst: 250, Arrival: 0},
		{Name: "probe", Priority: 130, Burst: 50, Arrival: 100},
		{Name: "report", Priority: 70, Burst: 300, Arrival: 0},
		{Name: "chore", Priority: 20, Burst: 200, Arrival: 0},
	}
}

// simulate drives the scheduler one tick at a time: admissions at their
// arrival ticks, the 100-tick timer, quantum and SJF preemptions, and
// completion once a thread's burst is spent.
func simulate(s *mlfq.Scheduler, interrupt *machine.Interrupt, stats *machine.Stats, workload []kernel.WorkloadThread) error {
	interrupt.SetLevel(machine.IntOff)

	idle := mlfq.NewThread(0, "idle", mlfq.MinPriority)
	s.Bootstrap(idle)

	pending := append([]kernel.WorkloadThread(nil), workload...)
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].Arrival < pending[j].Arrival })

	remaining := make(map[*mlfq.Thread]int64)
	finished := 0

	for finished < len(workload) {
		stats.Advance(1)
		now := stats.TotalTicks()
		if now > maxTicks {
			return fmt.Errorf("simulation exceeded %d ticks", maxTicks)
		}

		for len(pending) > 0 && pending[0].Arrival <= now {
			w := pending[0]
			pending = pending[1:]
			t := mlfq.NewThread(len(remaining)+1, w.Name, w.Priority)
			t.SetApproxBurstTime(w.Burst)
			remaining[t] = int64(w.Burst)
			s.ReadyToRun(t)
			fmt.Printf("[%6d] admit    %-10s priority=%d burst=%.0f\n", now, w.Name, w.Priority, w.Burst)
		}

		if now%mlfq.AgingInterval == 0 {
			s.TimerTick()
		}

		cur := s.Current()
		if cur != idle {
			remaining[cur]--
			if remaining[cur] <= 0 {
				cur.SetStatus(mlfq.Zombie)
				finished++
				fmt.Printf("[%6d] finish   %-10s\n", now, cur.Name())
				next := s.FindNextToRun()
				if next == nil {
					next = idle
				}
				s.Run(next, true)
				interrupt.ConsumeYield()
				continue
			}
		}

		wantYield := interrupt.ConsumeYield()
		if !wantYield && cur != idle {
			continue
		}
		if wantYield && cur != idle {
			s.ReadyToRun(cur)
		}
		if next := s.FindNextToRun(); next != nil {
			s.Run(next, false)
			fmt.Printf("[%6d] dispatch %-10s priority=%d burst=%.1f\n",
				now, next.Name(), next.Priority(), next.ApproxBurstTime())
		}
	}

	fmt.Printf("[%6d] all %d threads complete\n", stats.TotalTicks(), len(workload))
	return nil
}
