package abi

// MemoryRegionType classifies a range in the boot memory map. The set
// mirrors what a real firmware memory map distinguishes between.
type MemoryRegionType int

const (
	MemoryUsable MemoryRegionType = iota
	MemoryReserved
	MemoryAcpiReclaimable
	MemoryAcpiNvs
	MemoryBadMemory
	MemoryKernelAndModules
	MemoryFramebuffer
	MemoryBootloaderReclaimable
)

// MemoryRegion describes one contiguous range in the boot memory map.
type MemoryRegion struct {
	Base   uint64
	Length uint64
	Type   MemoryRegionType
}

// FramebufferInfo describes an optional linear framebuffer handed to the
// kernel at boot; nil when no framebuffer is present.
type FramebufferInfo struct {
	Address uint64
	Width   uint32
	Height  uint32
	Pitch   uint32
	Bpp     uint8
}

// BootInfo describes the boot environment handed to the kernel. Nothing in
// this tree constructs or consumes one: internal/kernel.Boot takes only a
// context and the init thread's entry point.
type BootInfo struct {
	MemoryMap   []MemoryRegion
	Initrd      []byte
	Cmdline     string
	AcpiRsdp    uint64
	Framebuffer *FramebufferInfo
	CPUCount    int
}
