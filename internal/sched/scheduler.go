package sched

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/cap"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/log"
)

// Scheduler owns one CpuScheduler per logical CPU and the goroutine group
// running each CPU's scheduling loop, the simulation's stand-in for
// secondary-CPU bring-up.
type Scheduler struct {
	CPUs     []*CpuScheduler
	Topology CpuTopology
	Mode     EnergyMode

	lg *log.Logger
	g  *errgroup.Group
}

// NewScheduler builds a scheduler with cpuCount per-CPU queues, each
// carrying its own idle thread.
func NewScheduler(cpuCount uint32, lg *log.Logger) *Scheduler {
	s := &Scheduler{lg: lg}
	for i := uint32(0); i < cpuCount; i++ {
		cs := NewCpuScheduler(i)
		// Idle threads are never addressed through a capability, so a
		// zero-value ObjectID placeholder is fine here.
		cs.SetIdleThread(NewThread(cap.ObjectID{}, Idle, 0))
		s.CPUs = append(s.CPUs, cs)
	}
	return s
}

// Run launches one scheduling loop per CPU under a shared errgroup.Group,
// so an error returned by any CPU's loop cancels the shared context for the
// others and is returned from Run. A panic inside a loop is not recovered
// here.
func (s *Scheduler) Run(ctx context.Context, runThread func(ctx context.Context, cpuID uint32, t *Thread)) error {
	g, ctx := errgroup.WithContext(ctx)
	s.g = g
	for _, cs := range s.CPUs {
		cs := cs
		g.Go(func() error {
			return s.loop(ctx, cs, runThread)
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, cs *CpuScheduler, runThread func(ctx context.Context, cpuID uint32, t *Thread)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		t := cs.PickNext()
		if t == nil {
			continue
		}
		cs.mtx.Lock()
		cs.Current = t
		t.State = Running
		cs.mtx.Unlock()

		runThread(ctx, cs.CpuID, t)

		cs.mtx.Lock()
		cs.Current = nil
		cs.mtx.Unlock()
		if t.SchedClass != Idle && t.State == Running {
			t.State = Ready
			cs.Enqueue(t)
		}
	}
}
