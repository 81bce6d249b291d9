package kernel

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/cap"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/dispatch"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/sched"
)

var nextPID atomic.Uint64

// ErrNoChildren is returned by WaitAny when the calling process has no
// children at all, the PROCESS_WAIT(0) analogue of ECHILD.
var ErrNoChildren = errors.New("kernel: process has no children")

// ProcessState mirrors a thread's lifecycle one level up.
type ProcessState int

const (
	ProcessRunning ProcessState = iota
	ProcessZombie
	ProcessDead
)

// Process is one address space: its own capability table, its threads, and
// an exit status once it has run. Processes never share a CSpace; the only
// way one process's capabilities become visible to another is an explicit
// IPC transfer.
type Process struct {
	mtx sync.Mutex

	PID       uint64
	ObjectID  cap.ObjectID
	CSpace    *cap.CSpace
	Threads   []*sched.Thread
	Contexts  map[sched.ThreadID]*dispatch.Context
	AddrSpace *addrSpace

	State    ProcessState
	ExitCode int
	Parent   *Process
	children []*Process
	waiters  []chan struct{}

	// anyWaiters are callers parked in WaitAny, waiting for *some* child
	// (not a specific one) to exit; a child's Exit wakes its parent's set
	// of these the same way it wakes its own direct waiters.
	anyWaiters []chan struct{}
}

// NewProcess allocates a process object, its capability table and its
// first thread, wiring a dispatch.Context for that thread against the
// kernel-wide object tables.
func NewProcess(k *Kernel, parent *Process, class sched.SchedClass, nice int32) *Process {
	id := k.Registry.Alloc(cap.ObjectProcess)
	p := &Process{
		PID:       nextPID.Add(1),
		ObjectID:  id,
		CSpace:    cap.NewCSpace(k.Registry, uint32(k.Config.Kernel.CSpace_Slots)),
		Contexts:  make(map[sched.ThreadID]*dispatch.Context),
		AddrSpace: newAddrSpace(),
		Parent:    parent,
	}
	p.NewThread(k, class, nice)
	if parent != nil {
		parent.mtx.Lock()
		parent.children = append(parent.children, p)
		parent.mtx.Unlock()
	}
	return p
}

// NewThread adds a thread to the process and registers its dispatch
// context, returning the new thread.
func (p *Process) NewThread(k *Kernel, class sched.SchedClass, nice int32) *sched.Thread {
	tid := k.Registry.Alloc(cap.ObjectThread)
	th := sched.NewThread(tid, class, nice)
	ctx := &dispatch.Context{
		CSpace:   p.CSpace,
		Thread:   th,
		Registry: k.Registry,
		Regions:  k.Regions,
		Objects:  k.Objects,
		OwnerPID: p.PID,
	}
	p.mtx.Lock()
	p.Threads = append(p.Threads, th)
	p.Contexts[th.ID] = ctx
	p.mtx.Unlock()
	return th
}

// Context returns the dispatch.Context for one of this process's threads.
func (p *Process) Context(tid sched.ThreadID) (*dispatch.Context, bool) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	c, ok := p.Contexts[tid]
	return c, ok
}

// thread returns this process's thread with the given ID, or nil.
func (p *Process) thread(tid sched.ThreadID) *sched.Thread {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	for _, t := range p.Threads {
		if t.ID == tid {
			return t
		}
	}
	return nil
}

// child returns this process's direct child with the given PID, or nil.
func (p *Process) child(pid uint64) *Process {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	for _, c := range p.children {
		if c.PID == pid {
			return c
		}
	}
	return nil
}

// Exit marks the process a zombie with the given code, wakes anything
// blocked in this process's own Wait, and wakes its parent's WaitAny
// waiters (if any) so a PROCESS_WAIT(0) call notices.
func (p *Process) Exit(code int) {
	p.mtx.Lock()
	p.State = ProcessZombie
	p.ExitCode = code
	waiters := p.waiters
	p.waiters = nil
	p.mtx.Unlock()
	for _, w := range waiters {
		close(w)
	}

	if parent := p.Parent; parent != nil {
		parent.mtx.Lock()
		anyWaiters := parent.anyWaiters
		parent.anyWaiters = nil
		parent.mtx.Unlock()
		for _, w := range anyWaiters {
			close(w)
		}
	}
}

// Wait blocks the caller (via ch) until this process exits, or returns
// immediately with the exit code if it already has.
func (p *Process) Wait() (exitCode int, alreadyExited bool) {
	p.mtx.Lock()
	if p.State != ProcessRunning {
		code := p.ExitCode
		p.mtx.Unlock()
		return code, true
	}
	ch := make(chan struct{})
	p.waiters = append(p.waiters, ch)
	p.mtx.Unlock()
	<-ch
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.ExitCode, false
}

// WaitAny blocks until any child of p has exited, or returns immediately if
// one already has, returning that child's PID and exit code. It re-scans
// p.children on every wake rather than consuming a single queued signal, so
// a child that exited between two WaitAny calls is never missed.
func (p *Process) WaitAny() (pid uint64, exitCode int, err error) {
	for {
		p.mtx.Lock()
		for _, c := range p.children {
			c.mtx.Lock()
			if c.State != ProcessRunning {
				pid, exitCode = c.PID, c.ExitCode
				c.mtx.Unlock()
				p.mtx.Unlock()
				return pid, exitCode, nil
			}
			c.mtx.Unlock()
		}
		if len(p.children) == 0 {
			p.mtx.Unlock()
			return 0, 0, ErrNoChildren
		}
		ch := make(chan struct{})
		p.anyWaiters = append(p.anyWaiters, ch)
		p.mtx.Unlock()
		<-ch
	}
}
