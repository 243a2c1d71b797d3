package utils

import (
	"syscall"
	"unsafe"
)

///////////////////////////////////////////////////////////////////////////////
// Diagnostics Output — Raw stderr
///////////////////////////////////////////////////////////////////////////////

// PrintWarning writes msg straight to file descriptor 2.
// No formatting, no buffering, no allocation.
//
//go:nosplit
func PrintWarning(msg string) {
	if len(msg) == 0 {
		return
	}
	_, _ = syscall.Write(2, unsafe.Slice(unsafe.StringData(msg), len(msg)))
}

///////////////////////////////////////////////////////////////////////////////
// Number Formatting — Decimal & Hex
///////////////////////////////////////////////////////////////////////////////

const hexDigits = "0123456789abcdef"

// Itoa converts an int to its decimal representation without fmt.
func Itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	neg := n < 0
	u := uint64(n)
	if neg {
		u = uint64(-n)
	}
	for u > 0 {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Hex32 renders v as a fixed-width "0x%08x" string.
func Hex32(v uint32) string {
	var buf [10]byte
	buf[0], buf[1] = '0', 'x'
	for i := 9; i >= 2; i-- {
		buf[i] = hexDigits[v&0xF]
		v >>= 4
	}
	return string(buf[:])
}

// Hex64 renders v as "0x" followed by the minimal number of nibbles.
func Hex64(v uint64) string {
	if v == 0 {
		return "0x0"
	}
	var buf [18]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = hexDigits[v&0xF]
		v >>= 4
	}
	i--
	buf[i] = 'x'
	i--
	buf[i] = '0'
	return string(buf[i:])
}

///////////////////////////////////////////////////////////////////////////////
// Hex Decoders — No Allocation, Early Exit on Malformed Input
///////////////////////////////////////////////////////////////////////////////

// ParseHexU64 parses a 64-bit uint from a (0x-optional) ASCII hex string.
// Stops at first non-nibble.
//
//go:nosplit
//go:inline
func ParseHexU64(b []byte) uint64 {
	j := 0
	if len(b) >= 2 && b[0] == '0' && (b[1]|0x20) == 'x' {
		j = 2
	}
	var u uint64
	for end := j + 16; j < len(b) && j < end; j++ {
		c := b[j] | 0x20
		if c < '0' || c > 'f' || (c > '9' && c < 'a') {
			break
		}
		v := uint64(c - '0')
		if c > '9' {
			v -= 39 // a/A -> 10
		}
		u = (u << 4) | v
	}
	return u
}

// IsHex reports whether b is a non-empty (0x-optional) run of hex digits.
func IsHex(b []byte) bool {
	if len(b) >= 2 && b[0] == '0' && (b[1]|0x20) == 'x' {
		b = b[2:]
	}
	if len(b) == 0 || len(b) > 16 {
		return false
	}
	for _, c := range b {
		c |= 0x20
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
