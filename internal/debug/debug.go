// Package debug provides the userspace analogue of a serial-console panic
// dump: a SIGUSR1 trap that snapshots goroutine stacks and memory/CPU
// profiles, and a recover-at-the-boundary helper used by the syscall
// dispatcher so a faulting handler cannot take the rest of the kernel down
// with it.
package debug

import (
	"bytes"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/log"
)

const (
	cpuProfileSleep = 2 * time.Second
	maxStackSize    = 256 * 1024 * 1024
)

// HandleDumpSignals traps SIGUSR1 and writes a stack/memory/CPU profile
// bundle to a fresh temp directory under name each time it fires.
func HandleDumpSignals(name string, lg *log.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGUSR1)

	for range c {
		dir, err := os.MkdirTemp("", name)
		if err != nil {
			continue
		}
		DumpDebugFiles(dir)
		lg.InfoF("debug dump written", log.KV("dir", dir))
	}
}

// DumpDebugFiles writes a stack trace, heap profile and CPU profile into dir.
func DumpDebugFiles(dir string) {
	generateStackTrace(dir)
	generateMemoryProfile(dir)
	generateCPUProfile(dir)
}

func generateStackTrace(dir string) {
	st, err := os.Create(filepath.Join(dir, "stack"))
	if err != nil {
		return
	}
	defer st.Close()

	size := 1024 * 1024
	var buf []byte
	var n int
	for {
		buf = make([]byte, size)
		n = runtime.Stack(buf, true)
		if n < size {
			break
		}
		size *= 2
		if size >= maxStackSize {
			return
		}
	}
	st.Write(buf[:n])
}

func generateMemoryProfile(dir string) {
	mem, err := os.Create(filepath.Join(dir, "mem.prof"))
	if err != nil {
		return
	}
	defer mem.Close()

	var buf bytes.Buffer
	runtime.GC()
	if err := pprof.WriteHeapProfile(&buf); err == nil {
		mem.Write(buf.Bytes())
	}
}

func generateCPUProfile(dir string) {
	cpu, err := os.Create(filepath.Join(dir, "cpu.prof"))
	if err != nil {
		return
	}
	defer cpu.Close()

	var buf bytes.Buffer
	if err := pprof.StartCPUProfile(&buf); err == nil {
		time.Sleep(cpuProfileSleep)
		pprof.StopCPUProfile()
		cpu.Write(buf.Bytes())
	}
}

// PanicInfo records where and why a syscall handler faulted, standing in
// for the original kernel's PanicInfo::location()/message().
type PanicInfo struct {
	Value interface{}
	File  string
	Line  int
}

func (p PanicInfo) String() string {
	return fmt.Sprintf("%s:%d: %v", p.File, p.Line, p.Value)
}

// Recover should be deferred at the top of every syscall handler goroutine.
// On panic it logs a Critical line with the caller's location and invokes
// onFault (normally: terminate the faulting thread's owning process) instead
// of letting the panic unwind into a subsystem's held lock.
func Recover(lg *log.Logger, onFault func(PanicInfo)) {
	if r := recover(); r != nil {
		_, file, line, _ := runtime.Caller(2)
		pi := PanicInfo{Value: r, File: file, Line: line}
		lg.CriticalF("kernel fault recovered", log.KV("at", pi.String()))
		if onFault != nil {
			onFault(pi)
		}
	}
}
