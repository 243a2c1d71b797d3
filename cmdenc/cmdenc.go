// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: cmdenc.go — fixed 8-byte front-end micro-commands
//
// Purpose:
//   - NOP, EVENT, SEMAPHORE SEND and SEMAPHORE WAIT encoders writing two
//     little-endian words into a caller buffer.
//   - Size query mode: a nil buffer reports the required size and writes
//     nothing.
//
// Layout (word 0):
//   31:27 opcode | 25:16 sub-opcode | payload (event 4:0, semaphore 15:0)
// Word 1 is always a no-op word.
// ─────────────────────────────────────────────────────────────────────────────

package cmdenc

import (
	"encoding/binary"
	"fmt"

	"mcfe/constants"
	"mcfe/hal"
)

// Source names where an event is emitted from. Carried for callers; the
// encoding does not depend on it.
type Source uint8

const (
	FromCommand Source = iota // command queue
	FromPixel                 // pixel engine
)

// Encoder builds micro-commands. The zero value is a working encoder with
// event statistics disabled.
type Encoder struct {
	pending    *PendingEvents
	queueCount uint32
}

// New returns an encoder that marks events below queueCount in pending.
// A nil pending disables statistics.
func New(pending *PendingEvents, queueCount uint32) *Encoder {
	return &Encoder{pending: pending, queueCount: queueCount}
}

// Nop writes a two-word no-op.
func (e *Encoder) Nop(buf []byte) (int, error) {
	if err := fits(buf); err != nil {
		return constants.CommandSize, err
	}
	if buf != nil {
		put(buf, nopWord, nopWord)
	}
	return constants.CommandSize, nil
}

// Event writes EVENT(id). id must be below 32. The source is ignored: this
// front-end raises every event from the same place.
func (e *Encoder) Event(buf []byte, id uint8, _ Source) (int, error) {
	if id >= constants.MaxEventID {
		return constants.CommandSize, fmt.Errorf("%w: event id %d", hal.ErrInvalidArgument, id)
	}
	if err := fits(buf); err != nil {
		return constants.CommandSize, err
	}
	if buf != nil {
		put(buf, syncWord(constants.SubOpcodeEvent, fieldEventID, uint32(id)), nopWord)
		if e.pending != nil && uint32(id) < e.queueCount {
			e.pending.Mark(id)
		}
	}
	return constants.CommandSize, nil
}

// SemaphoreSend writes SEND_SEMAPHORE(id). id must be below 0xFFFF.
func (e *Encoder) SemaphoreSend(buf []byte, id uint32) (int, error) {
	return e.semaphore(buf, constants.SubOpcodeSemaphoreSend, id)
}

// SemaphoreWait writes WAIT_SEMAPHORE(id). id must be below 0xFFFF.
func (e *Encoder) SemaphoreWait(buf []byte, id uint32) (int, error) {
	return e.semaphore(buf, constants.SubOpcodeSemaphoreWait, id)
}

func (e *Encoder) semaphore(buf []byte, sub, id uint32) (int, error) {
	if id >= constants.MaxSemaphoreID {
		return constants.CommandSize, fmt.Errorf("%w: semaphore id %#x", hal.ErrInvalidArgument, id)
	}
	if err := fits(buf); err != nil {
		return constants.CommandSize, err
	}
	if buf != nil {
		put(buf, syncWord(sub, fieldSemaID, id), nopWord)
	}
	return constants.CommandSize, nil
}

// fits rejects non-nil buffers shorter than one command.
func fits(buf []byte) error {
	if buf != nil && len(buf) < constants.CommandSize {
		return fmt.Errorf("%w: have %d bytes, need %d", hal.ErrBufferTooSmall, len(buf), constants.CommandSize)
	}
	return nil
}

func put(buf []byte, w0, w1 uint32) {
	binary.LittleEndian.PutUint32(buf[0:4], w0)
	binary.LittleEndian.PutUint32(buf[4:8], w1)
}
