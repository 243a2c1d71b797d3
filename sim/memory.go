package sim

import (
	"fmt"
	"sync"

	"mcfe/hal"
)

const pageSize = 4096

// MemoryConfig places the two address windows of the simulated device.
// The device decodes only 32-bit addresses, so the low 32 bits of the
// windows must not overlap over [base, base+Limit).
type MemoryConfig struct {
	PhysicalBase uint64 // first device-physical address
	GPUBase      uint64 // first MMU-translated address
	Limit        int    // total bytes; 0 means DefaultMemoryLimit
}

const (
	DefaultPhysicalBase = 0x0100_0000
	DefaultGPUBase      = 0x8000_0000
	DefaultMemoryLimit  = 64 << 20
)

type node struct {
	host       []byte
	size       int
	phys, gpu  uint64
	hostLocked bool
	devLocked  bool
	cacheable  bool
}

// Memory is a hal.Allocator over host pages. Nodes are backed by anonymous
// mappings where the platform has them.
type Memory struct {
	mu    sync.Mutex
	cfg   MemoryConfig
	nodes map[hal.Handle]*node
	next  hal.Handle
	used  int

	nextPhys, nextGPU uint64

	failLock, failLockHost bool

	allocs, releases, cleans int
}

// NewMemory returns an empty allocator.
func NewMemory(cfg MemoryConfig) *Memory {
	if cfg.PhysicalBase == 0 {
		cfg.PhysicalBase = DefaultPhysicalBase
	}
	if cfg.GPUBase == 0 {
		cfg.GPUBase = DefaultGPUBase
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultMemoryLimit
	}
	return &Memory{
		cfg:      cfg,
		nodes:    make(map[hal.Handle]*node),
		nextPhys: cfg.PhysicalBase,
		nextGPU:  cfg.GPUBase,
	}
}

// FailMapping makes subsequent device (Lock) or host (LockHost) pinning fail.
func (m *Memory) FailMapping(device, host bool) {
	m.mu.Lock()
	m.failLock, m.failLockHost = device, host
	m.mu.Unlock()
}

func alignUp(v, a uint64) uint64 {
	return (v + a - 1) &^ (a - 1)
}

// Allocate implements hal.Allocator.
func (m *Memory) Allocate(size, align int, flags hal.AllocFlags) (hal.Handle, error) {
	if size <= 0 {
		return hal.NoHandle, fmt.Errorf("%w: allocation size %d", hal.ErrInvalidArgument, size)
	}
	if align < pageSize {
		align = pageSize
	}
	if align&(align-1) != 0 {
		return hal.NoHandle, fmt.Errorf("%w: alignment %d", hal.ErrInvalidArgument, align)
	}
	span := int(alignUp(uint64(size), pageSize))

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.used+span > m.cfg.Limit {
		return hal.NoHandle, fmt.Errorf("%w: %d bytes requested, %d of %d in use",
			hal.ErrAllocation, size, m.used, m.cfg.Limit)
	}
	host, err := mapHost(span)
	if err != nil {
		return hal.NoHandle, fmt.Errorf("%w: %w", hal.ErrAllocation, err)
	}

	n := &node{
		host:      host,
		size:      size,
		phys:      alignUp(m.nextPhys, uint64(align)),
		gpu:       alignUp(m.nextGPU, uint64(align)),
		cacheable: flags&hal.AllocCacheable != 0,
	}
	m.nextPhys = n.phys + uint64(span)
	m.nextGPU = n.gpu + uint64(span)
	m.used += span
	m.allocs++
	m.next++
	m.nodes[m.next] = n
	return m.next, nil
}

func (m *Memory) lookup(h hal.Handle) (*node, error) {
	n, ok := m.nodes[h]
	if !ok {
		return nil, fmt.Errorf("%w: unknown memory handle %d", hal.ErrInvalidArgument, h)
	}
	return n, nil
}

// Lock implements hal.Allocator.
func (m *Memory) Lock(h hal.Handle) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookup(h)
	if err != nil {
		return 0, err
	}
	if m.failLock {
		return 0, fmt.Errorf("%w: device lock of handle %d", hal.ErrMapping, h)
	}
	n.devLocked = true
	return n.gpu, nil
}

// LockHost implements hal.Allocator.
func (m *Memory) LockHost(h hal.Handle) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookup(h)
	if err != nil {
		return nil, err
	}
	if m.failLockHost {
		return nil, fmt.Errorf("%w: host lock of handle %d", hal.ErrMapping, h)
	}
	n.hostLocked = true
	return n.host[:n.size:n.size], nil
}

// PhysicalAddress implements hal.Allocator.
func (m *Memory) PhysicalAddress(h hal.Handle) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookup(h)
	if err != nil {
		return 0, err
	}
	return n.phys, nil
}

// CleanCache implements hal.Allocator. Host pages are coherent with the
// simulated device, so this only validates and counts.
func (m *Memory) CleanCache(h hal.Handle, offset, size int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookup(h)
	if err != nil {
		return err
	}
	if offset < 0 || size < 0 || offset+size > n.size {
		return fmt.Errorf("%w: clean [%d,+%d) of %d-byte node", hal.ErrInvalidArgument, offset, size, n.size)
	}
	m.cleans++
	return nil
}

// UnlockHost implements hal.Allocator.
func (m *Memory) UnlockHost(h hal.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookup(h)
	if err != nil {
		return err
	}
	n.hostLocked = false
	return nil
}

// Release implements hal.Allocator.
func (m *Memory) Release(h hal.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.lookup(h)
	if err != nil {
		return err
	}
	delete(m.nodes, h)
	m.used -= len(n.host)
	m.releases++
	return unmapHost(n.host)
}

// Resolve returns the host bytes behind a 32-bit device address in either
// window, or false when no live node covers [addr, addr+size).
func (m *Memory) Resolve(addr uint32, size int) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.nodes {
		for _, base := range [2]uint32{uint32(n.phys), uint32(n.gpu)} {
			off := int64(addr) - int64(base)
			if off >= 0 && off+int64(size) <= int64(n.size) {
				return n.host[off : off+int64(size)], true
			}
		}
	}
	return nil, false
}

// Live is the number of nodes not yet released.
func (m *Memory) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nodes)
}

// Allocations is the number of successful Allocate calls.
func (m *Memory) Allocations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocs
}

// Releases is the number of successful Release calls.
func (m *Memory) Releases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releases
}

// Cleans is the number of CleanCache calls.
func (m *Memory) Cleans() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleans
}
