// ring.go
//
// Descriptor ring shared between the CPU producer and the front-end fetch
// engine.  The producer owns writeIdx; the hardware owns the read pointer
// register and readIdx is only a cached copy of it.  Depth is fixed at
// 2^9 slots so every index computation is a single mask.
//
// Publish protocol:
//   Stage   – descriptor bytes land in slot writeIdx (invisible to hardware)
//   Clean   – cache write-back when the node is cacheable
//   Publish – writeIdx advances and is written to the write-pointer register;
//             this register write is the only commit point.

package ring

import (
	"encoding/binary"
	"errors"
	"fmt"

	"mcfe/constants"
	"mcfe/debug"
	"mcfe/hal"
	"mcfe/utils"
)

// Ring is one descriptor ring buffer backed by device memory.
type Ring struct {
	handle hal.Handle
	host   []byte // CPU mapping, RingBytes long

	gpuAddress uint64 // address through the MMU
	physical   uint64 // device-physical address
	address    uint64 // address programmed into the base register
	cacheable  bool

	// readIdx is a possibly stale snapshot of the hardware read pointer.
	// Staleness only ever makes the ring look fuller than it is, and the
	// admission loop refreshes it before trusting a full verdict.
	readIdx  uint32
	writeIdx uint32

	regRead    uint32 // read-pointer register of the programmed slot
	regWrite   uint32 // write-pointer register of the programmed slot
	programmed bool
}

// NextIndex is the ring's only indexing primitive: (i + 1) mod depth.
//
//go:nosplit
//go:inline
func NextIndex(i uint32) uint32 {
	return (i + 1) & constants.RingMask
}

// Allocate reserves and maps the ring memory. On any failure the partially
// acquired node is released again and the ring stays unallocated, so a
// later call may retry.
func (r *Ring) Allocate(mem hal.Allocator, flags hal.AllocFlags) error {
	if r.handle != hal.NoHandle {
		return nil
	}

	h, err := mem.Allocate(constants.RingBytes, constants.RingAlignment, flags)
	if err != nil {
		return wrap(hal.ErrAllocation, "ring: allocate", err)
	}
	r.handle = h
	r.cacheable = flags&hal.AllocCacheable != 0

	if r.gpuAddress, err = mem.Lock(h); err != nil {
		r.abandon(mem, false)
		return wrap(hal.ErrMapping, "ring: lock for device", err)
	}
	if r.host, err = mem.LockHost(h); err != nil {
		r.abandon(mem, false)
		return wrap(hal.ErrMapping, "ring: lock for host", err)
	}
	if len(r.host) < constants.RingBytes {
		r.abandon(mem, true)
		return fmt.Errorf("%w: ring: host mapping is %d bytes, need %d",
			hal.ErrMapping, len(r.host), constants.RingBytes)
	}
	if r.physical, err = mem.PhysicalAddress(h); err != nil {
		r.abandon(mem, true)
		return wrap(hal.ErrMapping, "ring: physical address", err)
	}

	if r.physical > constants.Physical32Limit {
		debug.DropMessage("MCFE", "ring buffer physical over 4G: "+utils.Hex64(r.physical))
	}

	// Default to physical until Program picks the address space.
	r.address = r.physical
	return nil
}

// abandon undoes a partial Allocate.
func (r *Ring) abandon(mem hal.Allocator, hostLocked bool) {
	if hostLocked {
		_ = mem.UnlockHost(r.handle)
	}
	_ = mem.Release(r.handle)
	r.handle, r.host = hal.NoHandle, nil
	r.gpuAddress, r.physical, r.address = 0, 0, 0
}

// Program writes base address and depth for channel index into the bank's
// registers, then adopts the hardware read pointer as both local indices:
// after programming no descriptor is pending, whatever the memory holds.
func (r *Ring) Program(regs hal.Registers, index uint32, priority, translation bool) error {
	if r.handle == hal.NoHandle {
		return fmt.Errorf("%w: ring: program before allocate", hal.ErrInvalidArgument)
	}
	if index >= constants.MaxChannels {
		return fmt.Errorf("%w: ring: channel index %d", hal.ErrInvalidArgument, index)
	}

	b := BankFor(priority)
	if translation {
		r.address = r.gpuAddress
	} else {
		r.address = r.physical
	}

	regs.Write32(b.RingBase(index), uint32(r.address))
	regs.Write32(b.DepthExp(index), constants.RingDepthExp)

	r.regRead = b.ReadPtr(index)
	r.regWrite = b.WritePtr(index)
	rd := regs.Read32(r.regRead) & constants.RingMask
	r.readIdx, r.writeIdx = rd, rd
	r.programmed = true
	return nil
}

// IsFull reports fullness against the cached read index.
//
//go:nosplit
//go:inline
func (r *Ring) IsFull() bool {
	return NextIndex(r.writeIdx) == r.readIdx
}

// IsEmpty reports emptiness against the cached read index.
func (r *Ring) IsEmpty() bool {
	return r.writeIdx == r.readIdx
}

// RefreshReadIndex re-reads the hardware read pointer into the cache.
func (r *Ring) RefreshReadIndex(regs hal.Registers) uint32 {
	r.readIdx = regs.Read32(r.regRead) & constants.RingMask
	return r.readIdx
}

// HardwareReadIndex reads the hardware read pointer without touching the cache.
func (r *Ring) HardwareReadIndex(regs hal.Registers) uint32 {
	return regs.Read32(r.regRead) & constants.RingMask
}

// Stage writes {start, end} into slot writeIdx and returns the slot.
// Hardware cannot observe it until Publish.
func (r *Ring) Stage(start, end uint32) uint32 {
	slot := r.writeIdx
	off := int(slot) * constants.DescriptorSize
	binary.LittleEndian.PutUint32(r.host[off:off+4], start)
	binary.LittleEndian.PutUint32(r.host[off+4:off+8], end)
	return slot
}

// Clean writes back the staged slot when the node is cacheable.
func (r *Ring) Clean(mem hal.Allocator, slot uint32) error {
	if !r.cacheable {
		return nil
	}
	off := int(slot) * constants.DescriptorSize
	if err := mem.CleanCache(r.handle, off, constants.DescriptorSize); err != nil {
		return fmt.Errorf("ring: clean descriptor %d: %w", slot, err)
	}
	return nil
}

// Publish advances writeIdx and commits it to the write-pointer register.
func (r *Ring) Publish(regs hal.Registers) uint32 {
	r.writeIdx = NextIndex(r.writeIdx)
	regs.Write32(r.regWrite, r.writeIdx)
	return r.writeIdx
}

// Release unmaps and frees the ring memory. Safe on a never-allocated or
// already released ring.
func (r *Ring) Release(mem hal.Allocator) {
	if r.handle == hal.NoHandle {
		return
	}
	if err := mem.UnlockHost(r.handle); err != nil {
		debug.DropError("MCFE ring unlock", err)
	}
	if err := mem.Release(r.handle); err != nil {
		debug.DropError("MCFE ring release", err)
	}
	r.handle, r.host = hal.NoHandle, nil
	r.programmed = false
}

// ───────────────────────────── Accessors ──────────────────────────────────

func (r *Ring) Allocated() bool { return r.handle != hal.NoHandle }
func (r *Ring) Programmed() bool { return r.programmed && r.handle != hal.NoHandle }
func (r *Ring) Handle() hal.Handle { return r.handle }
func (r *Ring) ReadIndex() uint32 { return r.readIdx }
func (r *Ring) WriteIndex() uint32 { return r.writeIdx }
func (r *Ring) Address() uint64 { return r.address }
func (r *Ring) Physical() uint64 { return r.physical }
func (r *Ring) GPUAddress() uint64 { return r.gpuAddress }
func (r *Ring) Cacheable() bool { return r.cacheable }
func (r *Ring) WritePtrReg() uint32 { return r.regWrite }
func (r *Ring) ReadPtrReg() uint32 { return r.regRead }

// SlotAddress is the device address of slot as the hardware sees it.
func (r *Ring) SlotAddress(slot uint32) uint64 {
	return r.address + uint64(slot&constants.RingMask)*constants.DescriptorSize
}

// Descriptor decodes slot from ring memory.
func (r *Ring) Descriptor(slot uint32) (start, end uint32) {
	off := int(slot&constants.RingMask) * constants.DescriptorSize
	return binary.LittleEndian.Uint32(r.host[off : off+4]),
		binary.LittleEndian.Uint32(r.host[off+4 : off+8])
}

// Image returns a copy of the ring memory, nil when unallocated.
func (r *Ring) Image() []byte {
	if r.host == nil {
		return nil
	}
	img := make([]byte, constants.RingBytes)
	copy(img, r.host)
	return img
}

func wrap(kind error, what string, err error) error {
	if errors.Is(err, kind) {
		return fmt.Errorf("%s: %w", what, err)
	}
	return fmt.Errorf("%s: %w: %w", what, kind, err)
}
