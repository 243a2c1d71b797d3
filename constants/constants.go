// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: constants.go — MCFE ring geometry, register map & opcode table
//
// Purpose:
//   - Fixed geometry of the descriptor rings fed to the multi-channel front-end.
//   - Register offsets exactly as the hardware decodes them.
//   - Opcode / sub-opcode values of the fixed micro-commands.
//
// Notes:
//   - Opcode values are hardware configuration, not universal truths. A port to
//     another front-end revision changes this file and nothing else.
//
// ⚠️ No runtime logic here — all values must be compile-time resolvable
// ─────────────────────────────────────────────────────────────────────────────

package constants

// ───────────────────────────── Ring Geometry ──────────────────────────────

const (
	// RingDepthExp is the depth exponent programmed into the depth register.
	RingDepthExp = 9

	// RingDepth is the number of descriptor slots per ring (2^9 = 512).
	RingDepth = 1 << RingDepthExp

	// RingMask is used for wrap arithmetic on ring indices.
	RingMask = RingDepth - 1

	// DescriptorSize is the fixed size of one descriptor: start + end as u32.
	DescriptorSize = 8

	// RingBytes is the backing memory of one ring (512 * 8 = 4 KiB).
	RingBytes = RingDepth * DescriptorSize

	// RingAlignment is the alignment requested from the allocator.
	RingAlignment = 64
)

// ─────────────────────────── Register Map (MMIO) ───────────────────────────
//
// Per-channel registers use a 4-byte stride: reg + channel<<2.

const (
	RegPipeIdle    = 0x00004 // global pipeline idle bits
	RegEventEnable = 0x00014 // written all-ones at initialization

	RegStdRingBase  = 0x02400
	RegStdDepthExp  = 0x02500
	RegStdWritePtr  = 0x02600
	RegStdReadPtr   = 0x02700
	RegPriRingBase  = 0x02800
	RegPriDepthExp  = 0x02900
	RegPriWritePtr  = 0x02A00
	RegPriReadPtr   = 0x02B00
	RegChannelShift = 2

	// RegSpaceEnd bounds the register file of the simulated device.
	RegSpaceEnd = 0x02C00

	// MaxChannels is the number of per-channel register slots in one bank.
	MaxChannels = (RegStdDepthExp - RegStdRingBase) >> RegChannelShift
)

const (
	// PipeIdleAll is the pipe idle value when every unit is idle.
	PipeIdleAll = 0x7FFFFFFF

	// PipeIdleDontCare is ignored by the idle check.
	PipeIdleDontCare = 1 << 14

	// EventEnableAll enables every event source.
	EventEnableAll = 0xFFFFFFFF
)

// ─────────────────────────── Micro-command Opcodes ─────────────────────────

const (
	OpcodeNop = 0x03 // bits 31:27
	OpcodeFE  = 0x16 // front-end sync family, bits 31:27

	SubOpcodeSemaphoreSend = 0x002 // bits 25:16
	SubOpcodeSemaphoreWait = 0x003
	SubOpcodeEvent         = 0x006

	// CommandSize is the size of every fixed micro-command (two words).
	CommandSize = 8

	// MaxEventID bounds event ids (exclusive).
	MaxEventID = 32

	// MaxSemaphoreID bounds semaphore ids (exclusive).
	MaxSemaphoreID = 0xFFFF
)

// ───────────────────────────── Tunables ───────────────────────────────────

const (
	// FullRingDelay is how long (delay units, milliseconds by default) the
	// producer backs off when a ring stays full after a read-pointer refresh.
	FullRingDelay = 100

	// DefaultEventQueueCount is the number of event slots tracked by statistics.
	DefaultEventQueueCount = 30

	// Physical32Limit marks addresses that no longer fit 32-bit register fields.
	Physical32Limit = 0xFFFFFFFF
)
