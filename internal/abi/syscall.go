package abi

// Syscall is a numbered entry point into the dispatch table. Numbers are
// grouped by subsystem in blocks of 16 so new syscalls can be added to a
// group without renumbering its neighbors.
type Syscall uint32

const (
	// Process group.
	SysProcessGetpid  Syscall = 0x00
	SysProcessGetppid Syscall = 0x01
	SysProcessSpawn   Syscall = 0x02
	SysProcessExit    Syscall = 0x03
	SysProcessWait    Syscall = 0x04

	// Thread group.
	SysThreadCreate Syscall = 0x10
	SysThreadExit   Syscall = 0x11
	SysThreadYield  Syscall = 0x12
	SysThreadSleep  Syscall = 0x13
	SysThreadJoin   Syscall = 0x14

	// Memory group.
	SysMemMap     Syscall = 0x20
	SysMemUnmap   Syscall = 0x21
	SysMemProtect Syscall = 0x22
	SysMemAlloc   Syscall = 0x23
	SysMemFree    Syscall = 0x24

	// IPC group.
	SysIpcSend      Syscall = 0x30
	SysIpcRecv      Syscall = 0x31
	SysIpcCall      Syscall = 0x32
	SysIpcReply     Syscall = 0x33
	SysRingSetup    Syscall = 0x34
	SysRingEnter    Syscall = 0x35

	// Capability group.
	SysCapDerive Syscall = 0x40
	SysCapRevoke Syscall = 0x41
	SysCapCopy   Syscall = 0x42
	SysCapDelete Syscall = 0x43

	// Time group.
	SysGetTime Syscall = 0x50
)

// MaxArgs is the number of general-purpose argument registers a syscall
// handler can see, mirroring the six-register x86-64 syscall ABI.
const MaxArgs = 6

// Args is the raw register frame a handler receives. Handlers interpret
// Regs according to their own argument layout.
type Args struct {
	Regs [MaxArgs]uint64
}

// MaxSleepNanos is the upper bound THREAD_SLEEP accepts before failing with
// InvalidArgument: 3600 seconds.
const MaxSleepNanos uint64 = 3600 * 1_000_000_000

// MemProt are the MEM_MAP/MEM_PROTECT protection bits.
type MemProt uint32

const (
	ProtNone  MemProt = 0
	ProtRead  MemProt = 1 << 0
	ProtWrite MemProt = 1 << 1
	ProtExec  MemProt = 1 << 2
	ProtUser  MemProt = 1 << 3
)

// MemFlags are the MEM_MAP allocation flags.
type MemFlags uint32

const (
	MemAnonymous MemFlags = 1 << 0
	MemPrivate   MemFlags = 1 << 1
	MemShared    MemFlags = 1 << 2
	MemFixed     MemFlags = 1 << 3
)
