// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: hal.go — collaborator contracts consumed by the front-end
//
// Purpose:
//   - Memory allocator: device memory nodes that can be pinned for device
//     access and mapped for host access.
//   - Register transport: 32-bit MMIO reads and writes.
//   - Delay primitive: bounded back-off used by the admission loop.
//
// Notes:
//   - Implementations are assumed individually thread-safe or externally
//     serialized. The front-end adds no locking of its own.
// ─────────────────────────────────────────────────────────────────────────────

package hal

import "time"

// Handle identifies one device memory node owned by an Allocator.
type Handle uint64

// NoHandle is the zero handle; never returned by a successful Allocate.
const NoHandle Handle = 0

// AllocFlags modify an allocation request.
type AllocFlags uint32

const (
	// AllocCacheable requests CPU-cacheable memory. Writes to it must be
	// cleaned with CleanCache before the device may observe them.
	AllocCacheable AllocFlags = 1 << iota

	// AllocContiguous requests physically contiguous memory.
	AllocContiguous
)

// Allocator is the device memory collaborator.
type Allocator interface {
	// Allocate reserves size bytes aligned to align.
	Allocate(size, align int, flags AllocFlags) (Handle, error)
	// Lock pins the node for device access and returns its device address
	// (translated through the MMU when translation is active).
	Lock(h Handle) (uint64, error)
	// LockHost maps the node for CPU access.
	LockHost(h Handle) ([]byte, error)
	// PhysicalAddress returns the device-physical address of the node.
	PhysicalAddress(h Handle) (uint64, error)
	// CleanCache writes back [offset, offset+size) of a cacheable node.
	CleanCache(h Handle, offset, size int) error
	// UnlockHost drops the CPU mapping.
	UnlockHost(h Handle) error
	// Release drops the node.
	Release(h Handle) error
}

// Registers is the register transport collaborator.
type Registers interface {
	Read32(offset uint32) uint32
	Write32(offset, value uint32)
}

// Delayer performs a bounded delay of the given number of units.
type Delayer interface {
	Delay(units uint32)
}

// DelayFunc adapts a plain function to Delayer.
type DelayFunc func(units uint32)

// Delay calls f(units).
func (f DelayFunc) Delay(units uint32) { f(units) }

// Milliseconds is the default delay primitive: one unit is one millisecond.
var Milliseconds Delayer = DelayFunc(func(units uint32) {
	time.Sleep(time.Duration(units) * time.Millisecond)
})
