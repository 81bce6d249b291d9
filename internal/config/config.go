// Package config loads the kernel's boot-time configuration from a gcfg-style
// ini file, with environment-variable fallbacks for the log level and energy
// mode (used only when the file leaves them empty) and a watcher for the
// handful of fields that are allowed to change without a reboot.
package config

import (
	"errors"
	"os"
	"strings"

	"github.com/gravwell/gcfg"
)

const (
	envEnergyMode string = "NYX_ENERGY_MODE"
	envLogLevel   string = "NYX_LOG_LEVEL"

	defaultCPUCount    = 0 // 0 means "use runtime.NumCPU()"
	defaultSQEntries   = 256
	defaultCQEntries   = 512
	defaultCSpaceSlots = 4096
	defaultLogLevel    = "INFO"
	defaultEnergyMode  = "BALANCED"
)

var (
	ErrInvalidLogLevel   = errors.New("invalid log level")
	ErrInvalidEnergyMode = errors.New("invalid energy mode")
	ErrInvalidRingSize   = errors.New("ring size must be a power of two")
)

// Kernel holds the [Kernel] section of a BootConfig file: everything the
// boot sequence needs before any subsystem exists.
type Kernel struct {
	CPU_Count         int
	Submission_Queue_Entries int
	Completion_Queue_Entries int
	CSpace_Slots      int
	Log_Level         string
	Log_File          string
	Energy_Mode       string
}

// BootConfig is the parsed form of the whole configuration file.
type BootConfig struct {
	Kernel Kernel
}

func (bc *BootConfig) loadDefaults() error {
	if bc.Kernel.CPU_Count == 0 {
		bc.Kernel.CPU_Count = defaultCPUCount
	}
	if bc.Kernel.Submission_Queue_Entries == 0 {
		bc.Kernel.Submission_Queue_Entries = defaultSQEntries
	}
	if bc.Kernel.Completion_Queue_Entries == 0 {
		bc.Kernel.Completion_Queue_Entries = defaultCQEntries
	}
	if bc.Kernel.CSpace_Slots == 0 {
		bc.Kernel.CSpace_Slots = defaultCSpaceSlots
	}
	if err := LoadEnvVar(&bc.Kernel.Log_Level, envLogLevel, defaultLogLevel); err != nil {
		return err
	}
	if err := LoadEnvVar(&bc.Kernel.Energy_Mode, envEnergyMode, defaultEnergyMode); err != nil {
		return err
	}
	return nil
}

// Verify normalizes and validates the configuration, filling in defaults.
func (bc *BootConfig) Verify() error {
	if err := bc.loadDefaults(); err != nil {
		return err
	}
	bc.Kernel.Log_Level = strings.ToUpper(strings.TrimSpace(bc.Kernel.Log_Level))
	switch bc.Kernel.Log_Level {
	case "OFF", "CRITICAL", "ERROR", "WARN", "INFO", "DEBUG":
	default:
		return ErrInvalidLogLevel
	}

	bc.Kernel.Energy_Mode = strings.ToUpper(strings.TrimSpace(bc.Kernel.Energy_Mode))
	switch bc.Kernel.Energy_Mode {
	case "PERFORMANCE", "BALANCED", "POWERSAVER":
	default:
		return ErrInvalidEnergyMode
	}

	if !isPowerOfTwo(bc.Kernel.Submission_Queue_Entries) || !isPowerOfTwo(bc.Kernel.Completion_Queue_Entries) {
		return ErrInvalidRingSize
	}
	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// LoadConfigFile reads a gcfg-format file at path into v.
func LoadConfigFile(v interface{}, path string) error {
	return gcfg.ReadFileInto(v, path)
}

// LoadEnvVar reads envName into *cnd if *cnd is currently empty, falling
// back to defVal when the environment variable is unset.
func LoadEnvVar(cnd *string, envName, defVal string) error {
	if cnd == nil {
		return errors.New("invalid argument")
	}
	if len(*cnd) > 0 {
		return nil
	}
	if v := os.Getenv(envName); v != "" {
		*cnd = v
		return nil
	}
	*cnd = defVal
	return nil
}
