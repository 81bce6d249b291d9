package kernel

import (
	"context"
	"time"

	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/log"
)

const (
	maxRestarts   = 8
	restartWindow = 30 * time.Second
	cooldown      = 10 * time.Second
)

// initSupervisor restarts the init process's entry goroutine if it returns
// (crashes), the same restart-with-backoff shape a hosted process manager
// uses for a supervised daemon: too many restarts inside the window and it
// cools down before trying again, rather than spinning hot.
type initSupervisor struct {
	k     *Kernel
	proc  *Process
	entry ThreadEntry
	times []time.Time
}

func newInitSupervisor(k *Kernel, proc *Process, entry ThreadEntry) *initSupervisor {
	return &initSupervisor{k: k, proc: proc, entry: entry}
}

func (s *initSupervisor) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if d := s.shouldSleep(); d > 0 {
			s.k.lg.InfoF("init restarted too many times, cooling down", log.KV("duration", d))
			if slept := sleepOrDone(ctx, d); !slept {
				return
			}
		}
		s.shift()

		done := make(chan struct{})
		th := s.proc.Threads[0]
		go func() {
			defer close(done)
			s.entry(ctx, s.k, s.proc, th)
		}()

		select {
		case <-ctx.Done():
			<-done
			return
		case <-done:
			s.k.lg.InfoF("init process exited, restarting", log.KV("pid", s.proc.PID))
		}
	}
}

func (s *initSupervisor) shift() {
	now := s.times
	s.times = append([]time.Time{nowStamp()}, now...)
	if len(s.times) > maxRestarts {
		s.times = s.times[:maxRestarts]
	}
}

func (s *initSupervisor) shouldSleep() time.Duration {
	if len(s.times) < maxRestarts {
		return 0
	}
	oldest := s.times[len(s.times)-1]
	if nowStamp().Sub(oldest) < restartWindow {
		return cooldown
	}
	return 0
}

// sleepOrDone waits for d or ctx cancellation, reporting whether the sleep
// completed (true) versus was interrupted by cancellation (false).
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// nowStamp is the one place init.go reads wall-clock time, isolated so
// tests can substitute a fixed clock if restart-window behavior ever needs
// deterministic coverage.
func nowStamp() time.Time {
	return time.Now()
}
