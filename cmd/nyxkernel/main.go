package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"

	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/config"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/debug"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/kernel"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/log"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/sched"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/version"
)

const defaultConfigLoc = `/etc/nyx/kernel.conf`
const defaultLockPath = `/var/run/nyxkernel.lock`

var (
	configOverride = flag.String("config-file-override", "", "Override location for configuration file")
	lockOverride   = flag.String("lock-file", "", "Override location for the single-instance boot lock")
	ver            = flag.Bool("version", false, "Print the version information and exit")

	confLoc string
	lockLoc string
	lg      *log.Logger
)

func init() {
	flag.Parse()
	if *ver {
		version.PrintVersion(os.Stdout)
		os.Exit(0)
	}
	if *configOverride == "" {
		confLoc = defaultConfigLoc
	} else {
		confLoc = *configOverride
	}
	if *lockOverride == "" {
		lockLoc = defaultLockPath
	} else {
		lockLoc = *lockOverride
	}
	lg = log.New(os.Stderr) // DO NOT close this, it will prevent backtraces from firing
}

func main() {
	fl := flock.New(lockLoc)
	locked, err := fl.TryLock()
	if err != nil {
		lg.Critical("failed to acquire boot lock %s: %v", lockLoc, err)
		os.Exit(1)
	}
	if !locked {
		lg.Critical("another nyxkernel instance already holds %s", lockLoc)
		os.Exit(1)
	}
	defer fl.Unlock()

	var cfg config.BootConfig
	if err := config.LoadConfigFile(&cfg, confLoc); err != nil {
		lg.Info("no config file at %s (%v), booting with defaults", confLoc, err)
	}
	if err := cfg.Verify(); err != nil {
		lg.Critical("invalid boot configuration: %v", err)
		os.Exit(1)
	}
	if len(cfg.Kernel.Log_File) > 0 {
		fout, err := os.OpenFile(cfg.Kernel.Log_File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if err != nil {
			lg.Critical("failed to open log file %s: %v", cfg.Kernel.Log_File, err)
			os.Exit(1)
		}
		if err := lg.AddWriter(fout); err != nil {
			lg.Critical("failed to add log writer: %v", err)
			os.Exit(1)
		}
	}

	go debug.HandleDumpSignals("nyxkernel", lg)

	k, err := kernel.New(&cfg, lg)
	if err != nil {
		lg.Critical("failed to construct kernel: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		lg.Info("shutdown signal received")
		cancel()
	}()

	lg.InfoF("booting nyx microkernel", log.KV("version", version.String()))
	if err := k.Boot(ctx, initThreadEntry); err != nil && ctx.Err() == nil {
		lg.Critical("kernel boot loop exited with error: %v", err)
		os.Exit(1)
	}
	lg.Info("kernel shutdown complete")
}

// initThreadEntry is the body run on the PID-1 thread: in this simulation
// it simply parks until the boot context is cancelled, standing in for
// whatever real init workload a userland image would run.
func initThreadEntry(ctx context.Context, k *kernel.Kernel, proc *kernel.Process, th *sched.Thread) {
	fmt.Fprintln(os.Stderr, "init process running as PID", proc.PID)
	<-ctx.Done()
}
