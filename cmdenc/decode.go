package cmdenc

import (
	"encoding/binary"
	"fmt"

	"mcfe/constants"
	"mcfe/hal"
)

// Kind identifies a decoded micro-command.
type Kind uint8

const (
	KindNop Kind = iota
	KindEvent
	KindSemaphoreSend
	KindSemaphoreWait
)

func (k Kind) String() string {
	switch k {
	case KindNop:
		return "NOP"
	case KindEvent:
		return "EVENT"
	case KindSemaphoreSend:
		return "SEND_SEMAPHORE"
	case KindSemaphoreWait:
		return "WAIT_SEMAPHORE"
	}
	return "UNKNOWN"
}

// Command is one decoded 8-byte micro-command.
type Command struct {
	Kind Kind
	ID   uint32 // event or semaphore id; 0 for NOP
}

// Decode parses the command at the start of buf.
func Decode(buf []byte) (Command, error) {
	if len(buf) < constants.CommandSize {
		return Command{}, fmt.Errorf("%w: decode needs %d bytes", hal.ErrBufferTooSmall, constants.CommandSize)
	}
	w0 := binary.LittleEndian.Uint32(buf[0:4])
	w1 := binary.LittleEndian.Uint32(buf[4:8])
	if fieldOpcode.get(w1) != constants.OpcodeNop {
		return Command{}, fmt.Errorf("%w: second word %#08x is not a no-op", hal.ErrInvalidArgument, w1)
	}

	switch fieldOpcode.get(w0) {
	case constants.OpcodeNop:
		return Command{Kind: KindNop}, nil
	case constants.OpcodeFE:
		switch fieldSubOpcode.get(w0) {
		case constants.SubOpcodeEvent:
			return Command{Kind: KindEvent, ID: fieldEventID.get(w0)}, nil
		case constants.SubOpcodeSemaphoreSend:
			return Command{Kind: KindSemaphoreSend, ID: fieldSemaID.get(w0)}, nil
		case constants.SubOpcodeSemaphoreWait:
			return Command{Kind: KindSemaphoreWait, ID: fieldSemaID.get(w0)}, nil
		}
	}
	return Command{}, fmt.Errorf("%w: unknown command word %#08x", hal.ErrInvalidArgument, w0)
}

// DecodeAll parses a buffer made only of fixed micro-commands.
func DecodeAll(buf []byte) ([]Command, error) {
	if len(buf)%constants.CommandSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of commands", hal.ErrInvalidArgument, len(buf))
	}
	cmds := make([]Command, 0, len(buf)/constants.CommandSize)
	for off := 0; off < len(buf); off += constants.CommandSize {
		c, err := Decode(buf[off:])
		if err != nil {
			return cmds, fmt.Errorf("offset %d: %w", off, err)
		}
		cmds = append(cmds, c)
	}
	return cmds, nil
}
