package dispatch

import (
	"sync"

	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/cap"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/ipc"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/sched"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/shm"
)

// Objects is the process-wide table of live IPC endpoints and rings,
// looked up by the ObjectID a capability slot resolves to. It exists
// because a CSpace only ever stores {ObjectID, Rights, Generation}
// triples, never a live pointer to the object itself.
type Objects struct {
	mtx       sync.RWMutex
	Endpoints map[cap.ObjectID]*ipc.Endpoint
	Rings     map[cap.ObjectID]*ipc.Ring
}

// NewObjects creates an empty object table.
func NewObjects() *Objects {
	return &Objects{
		Endpoints: make(map[cap.ObjectID]*ipc.Endpoint),
		Rings:     make(map[cap.ObjectID]*ipc.Ring),
	}
}

func (o *Objects) Endpoint(id cap.ObjectID) (*ipc.Endpoint, bool) {
	o.mtx.RLock()
	defer o.mtx.RUnlock()
	e, ok := o.Endpoints[id]
	return e, ok
}

func (o *Objects) PutEndpoint(id cap.ObjectID, e *ipc.Endpoint) {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	o.Endpoints[id] = e
}

func (o *Objects) Ring(id cap.ObjectID) (*ipc.Ring, bool) {
	o.mtx.RLock()
	defer o.mtx.RUnlock()
	r, ok := o.Rings[id]
	return r, ok
}

func (o *Objects) PutRing(id cap.ObjectID, r *ipc.Ring) {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	o.Rings[id] = r
}

// Context is everything a handler needs to service one syscall: the
// calling process's capability table, its thread (for sleep/yield/block
// state), and the shared kernel object tables. One Context is constructed
// per thread and reused across that thread's syscalls, since IPC_REPLY
// must be able to find the ReplyToken an earlier IPC_RECV on the same
// thread produced.
type Context struct {
	CSpace   *cap.CSpace
	Thread   *sched.Thread
	Registry *cap.Registry
	Regions  *shm.Manager
	Objects  *Objects

	// OwnerPID identifies the process this context belongs to, for
	// handlers (process/thread/memory lifecycle) that internal/kernel
	// registers and that need to look their owning process back up —
	// this package has no Process type of its own to hold a pointer to.
	OwnerPID uint64

	replyMtx     sync.Mutex
	pendingReply *ipc.ReplyToken
}

// setPendingReply stashes the reply token a RECV produced for a later REPLY.
func (c *Context) setPendingReply(t *ipc.ReplyToken) {
	c.replyMtx.Lock()
	defer c.replyMtx.Unlock()
	c.pendingReply = t
}

// takePendingReply consumes and clears the stashed reply token.
func (c *Context) takePendingReply() *ipc.ReplyToken {
	c.replyMtx.Lock()
	defer c.replyMtx.Unlock()
	t := c.pendingReply
	c.pendingReply = nil
	return t
}
