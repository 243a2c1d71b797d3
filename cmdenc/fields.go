package cmdenc

import "mcfe/constants"

// field is an inclusive hi:lo bit range inside one 32-bit command word.
type field struct {
	hi, lo uint8
}

var (
	fieldOpcode    = field{31, 27}
	fieldSubOpcode = field{25, 16}
	fieldEventID   = field{4, 0}
	fieldSemaID    = field{15, 0}
)

func (f field) mask() uint32 {
	w := f.hi - f.lo + 1
	if w == 32 {
		return ^uint32(0)
	}
	return (uint32(1) << w) - 1
}

// set returns word with f replaced by v (v truncated to the field width).
func (f field) set(word, v uint32) uint32 {
	m := f.mask() << f.lo
	return (word &^ m) | ((v << f.lo) & m)
}

// get extracts f from word.
func (f field) get(word uint32) uint32 {
	return (word >> f.lo) & f.mask()
}

type fieldValue struct {
	f field
	v uint32
}

// pack builds one word from field/value pairs on a zero base.
func pack(fvs ...fieldValue) uint32 {
	var w uint32
	for _, fv := range fvs {
		w = fv.f.set(w, fv.v)
	}
	return w
}

// nopWord is a single no-op word; it also pads every two-word command.
var nopWord = pack(fieldValue{fieldOpcode, constants.OpcodeNop})

// syncWord builds the first word of an event/semaphore command.
func syncWord(sub uint32, id field, v uint32) uint32 {
	return pack(
		fieldValue{fieldOpcode, constants.OpcodeFE},
		fieldValue{fieldSubOpcode, sub},
		fieldValue{id, v},
	)
}
