// Package kernel assembles the capability registry, shared-memory manager,
// IPC object tables and per-CPU scheduler into one bootable system, and
// supervises the init process the same way a hosted userland process
// manager would supervise a daemon: restart on exit, a cooldown after too
// many restarts in a window, and context cancellation as the only teardown
// on shutdown.
package kernel

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/cap"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/config"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/dispatch"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/log"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/sched"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/shm"
)

var ErrAlreadyRunning = errors.New("kernel already running")
var ErrNotRunning = errors.New("kernel not running")

const framePages = 1 << 16 // 256MiB of simulated physical memory at 4K pages

// Kernel is the fully wired system: the object tables every dispatch.Context
// shares, and the scheduler driving them. Boot order mirrors the dependency
// chain each subsystem has on the last: memory before capabilities (frames
// must exist before regions can be registered against the registry),
// capabilities before IPC (endpoints and rings are themselves capability
// objects), IPC before the scheduler (the scheduler's idle threads are
// harmless without it, but real threads block in it), scheduler before
// secondary CPUs, and secondary CPUs before the init process is spawned
// onto CPU 0.
type Kernel struct {
	mtx sync.Mutex

	Config   *config.BootConfig
	Registry *cap.Registry
	Frames   *shm.FrameAllocator
	Regions  *shm.Manager
	Objects  *dispatch.Objects
	Scheduler *sched.Scheduler

	lg *log.Logger

	processes map[uint64]*Process
	initProc  *Process
	entry     ThreadEntry

	cancel context.CancelFunc
	runErr chan error
}

// New constructs a Kernel from boot configuration without starting it.
func New(cfg *config.BootConfig, lg *log.Logger) (*Kernel, error) {
	if err := cfg.Verify(); err != nil {
		return nil, err
	}
	frames, err := shm.NewFrameAllocator(framePages)
	if err != nil {
		return nil, err
	}
	reg := cap.NewRegistry()

	cpuCount := cfg.Kernel.CPU_Count
	if cpuCount <= 0 {
		cpuCount = runtime.NumCPU()
	}

	k := &Kernel{
		Config:    cfg,
		Registry:  reg,
		Frames:    frames,
		Regions:   shm.NewManager(frames, reg),
		Objects:   dispatch.NewObjects(),
		Scheduler: sched.NewScheduler(uint32(cpuCount), lg),
		lg:        lg,
		processes: make(map[uint64]*Process),
	}
	k.registerSyscalls()
	return k, nil
}

// processByPID looks up a live process by PID, for syscall handlers that
// only have a dispatch.Context's OwnerPID to start from.
func (k *Kernel) processByPID(pid uint64) *Process {
	k.mtx.Lock()
	defer k.mtx.Unlock()
	return k.processes[pid]
}

// Boot brings the system up: it allocates the init process (PID 1, Normal
// class, nice 0), starts its supervised run loop, then launches the
// scheduler across every CPU. Boot blocks until ctx is cancelled or the
// scheduler's errgroup reports a fatal error on any CPU.
func (k *Kernel) Boot(ctx context.Context, initEntry ThreadEntry) error {
	k.mtx.Lock()
	if k.cancel != nil {
		k.mtx.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	k.cancel = cancel
	k.runErr = make(chan error, 1)
	k.entry = initEntry
	k.mtx.Unlock()

	k.lg.InfoF("booting", log.KV("cpus", len(k.Scheduler.CPUs)))

	initProc := NewProcess(k, nil, sched.Normal, 0)
	k.mtx.Lock()
	k.processes[initProc.PID] = initProc
	k.initProc = initProc
	k.mtx.Unlock()

	supervisor := newInitSupervisor(k, initProc, initEntry)
	go supervisor.run(ctx)

	// init's first thread starts on CPU 0; the scheduler migrates it
	// elsewhere later if load balancing decides to.
	if len(k.Scheduler.CPUs) > 0 && len(initProc.Threads) > 0 {
		k.Scheduler.CPUs[0].Enqueue(initProc.Threads[0])
	}

	err := k.Scheduler.Run(ctx, k.runThread)
	k.runErr <- err
	return err
}

// ThreadEntry is the body a scheduled thread executes when picked; it
// returns when the thread should yield, block, or exit.
type ThreadEntry func(ctx context.Context, k *Kernel, proc *Process, th *sched.Thread)

func (k *Kernel) runThread(ctx context.Context, cpuID uint32, th *sched.Thread) {
	k.mtx.Lock()
	proc := k.processOfThread(th.ID)
	entry := k.entry
	k.mtx.Unlock()
	if proc == nil || entry == nil {
		return
	}
	entry(ctx, k, proc, th)
}

func (k *Kernel) processOfThread(tid sched.ThreadID) *Process {
	for _, p := range k.processes {
		if _, ok := p.Context(tid); ok {
			return p
		}
	}
	return nil
}

// Shutdown cancels the running boot context and waits for it to unwind.
func (k *Kernel) Shutdown() error {
	k.mtx.Lock()
	cancel := k.cancel
	runErr := k.runErr
	k.mtx.Unlock()
	if cancel == nil {
		return ErrNotRunning
	}
	cancel()
	err := <-runErr
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Spawn creates a new child process under parent (or a new root process if
// parent is nil) and enqueues its initial thread onto CPU 0.
func (k *Kernel) Spawn(parent *Process, class sched.SchedClass, nice int32) *Process {
	p := NewProcess(k, parent, class, nice)
	k.mtx.Lock()
	k.processes[p.PID] = p
	k.mtx.Unlock()
	if len(k.Scheduler.CPUs) > 0 {
		k.Scheduler.CPUs[0].Enqueue(p.Threads[0])
	}
	return p
}

// Reap removes a zombie process's bookkeeping after its parent has
// observed the exit code via Process.Wait.
func (k *Kernel) Reap(p *Process) {
	k.mtx.Lock()
	defer k.mtx.Unlock()
	p.mtx.Lock()
	p.State = ProcessDead
	p.mtx.Unlock()
	delete(k.processes, p.PID)
	if parent := p.Parent; parent != nil {
		parent.mtx.Lock()
		for i, c := range parent.children {
			if c == p {
				parent.children = append(parent.children[:i], parent.children[i+1:]...)
				break
			}
		}
		parent.mtx.Unlock()
	}
}
