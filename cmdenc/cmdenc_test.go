package cmdenc

import (
	"encoding/binary"
	"errors"
	"testing"

	"mcfe/hal"
)

func words(buf []byte) (uint32, uint32) {
	return binary.LittleEndian.Uint32(buf[0:4]), binary.LittleEndian.Uint32(buf[4:8])
}

func TestFieldPack(t *testing.T) {
	if got := fieldOpcode.set(0, 0x16); got != 0xB0000000 {
		t.Fatalf("opcode 0x16 = %#08x", got)
	}
	if got := fieldSubOpcode.set(0, 0x006); got != 0x00060000 {
		t.Fatalf("sub 0x006 = %#08x", got)
	}
	if got := fieldOpcode.get(0xB0060005); got != 0x16 {
		t.Fatalf("get opcode = %#x", got)
	}
	if (field{31, 0}).mask() != 0xFFFFFFFF {
		t.Fatal("full-width mask")
	}
	// values wider than the field are truncated
	if got := fieldEventID.set(0, 0xFF); got != 0x1F {
		t.Fatalf("truncation = %#x", got)
	}
}

func TestNopSizeQuery(t *testing.T) {
	var e Encoder
	n, err := e.Nop(nil)
	if err != nil || n != 8 {
		t.Fatalf("Nop(nil) = %d, %v", n, err)
	}
}

func TestNopEncoding(t *testing.T) {
	var e Encoder
	buf := make([]byte, 8)
	if n, err := e.Nop(buf); err != nil || n != 8 {
		t.Fatalf("Nop = %d, %v", n, err)
	}
	w0, w1 := words(buf)
	if w0 != 0x18000000 || w1 != 0x18000000 {
		t.Fatalf("NOP words %#08x %#08x", w0, w1)
	}
}

func TestEncodeErrors(t *testing.T) {
	var e Encoder
	tests := []struct {
		name string
		run  func() (int, error)
		want error
	}{
		{"nop short", func() (int, error) { return e.Nop(make([]byte, 7)) }, hal.ErrBufferTooSmall},
		{"event short", func() (int, error) { return e.Event(make([]byte, 4), 5, FromCommand) }, hal.ErrBufferTooSmall},
		{"event id 32", func() (int, error) { return e.Event(make([]byte, 8), 32, FromCommand) }, hal.ErrInvalidArgument},
		{"send id 0xFFFF", func() (int, error) { return e.SemaphoreSend(make([]byte, 8), 0xFFFF) }, hal.ErrInvalidArgument},
		{"wait id 0xFFFF", func() (int, error) { return e.SemaphoreWait(make([]byte, 8), 0xFFFF) }, hal.ErrInvalidArgument},
		{"send short", func() (int, error) { return e.SemaphoreSend(make([]byte, 0), 1) }, hal.ErrBufferTooSmall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := tt.run()
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if n != 8 {
				t.Fatalf("size = %d, want 8", n)
			}
		})
	}
}

func TestSizeQueryNeverTooSmall(t *testing.T) {
	var e Encoder
	for _, run := range []func() (int, error){
		func() (int, error) { return e.Event(nil, 31, FromPixel) },
		func() (int, error) { return e.SemaphoreSend(nil, 0xFFFE) },
		func() (int, error) { return e.SemaphoreWait(nil, 0) },
	} {
		if n, err := run(); err != nil || n != 8 {
			t.Fatalf("size query = %d, %v", n, err)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	var e Encoder
	tests := []struct {
		name string
		enc  func([]byte) (int, error)
		want Command
		w0   uint32
	}{
		{"nop", e.Nop, Command{Kind: KindNop}, 0x18000000},
		{"event", func(b []byte) (int, error) { return e.Event(b, 5, FromCommand) }, Command{KindEvent, 5}, 0xB0060005},
		{"send", func(b []byte) (int, error) { return e.SemaphoreSend(b, 0x1234) }, Command{KindSemaphoreSend, 0x1234}, 0xB0021234},
		{"wait", func(b []byte) (int, error) { return e.SemaphoreWait(b, 0xFFFE) }, Command{KindSemaphoreWait, 0xFFFE}, 0xB003FFFE},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, 8)
			if _, err := tt.enc(buf); err != nil {
				t.Fatal(err)
			}
			w0, w1 := words(buf)
			if w0 != tt.w0 || w1 != nopWord {
				t.Fatalf("words %#08x %#08x, want %#08x %#08x", w0, w1, tt.w0, nopWord)
			}
			got, err := Decode(buf)
			if err != nil || got != tt.want {
				t.Fatalf("Decode = %+v, %v; want %+v", got, err, tt.want)
			}
		})
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], 0xFFFFFFFF)
	binary.LittleEndian.PutUint32(buf[4:8], nopWord)
	if _, err := Decode(buf); !errors.Is(err, hal.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
	if _, err := Decode(buf[:4]); !errors.Is(err, hal.ErrBufferTooSmall) {
		t.Fatalf("want ErrBufferTooSmall, got %v", err)
	}
	if _, err := DecodeAll(make([]byte, 12)); !errors.Is(err, hal.ErrInvalidArgument) {
		t.Fatalf("partial command must be rejected, got %v", err)
	}
}

func TestDecodeAll(t *testing.T) {
	var e Encoder
	buf := make([]byte, 24)
	_, _ = e.Event(buf[0:], 3, FromCommand)
	_, _ = e.SemaphoreWait(buf[8:], 9)
	_, _ = e.Nop(buf[16:])
	cmds, err := DecodeAll(buf)
	if err != nil || len(cmds) != 3 {
		t.Fatalf("DecodeAll = %v, %v", cmds, err)
	}
	if cmds[0].Kind != KindEvent || cmds[1].Kind != KindSemaphoreWait || cmds[2].Kind != KindNop {
		t.Fatalf("kinds %v %v %v", cmds[0].Kind, cmds[1].Kind, cmds[2].Kind)
	}
}

func TestEventStatistics(t *testing.T) {
	pending := &PendingEvents{}
	e := New(pending, 30)
	buf := make([]byte, 8)

	if _, err := e.Event(nil, 4, FromCommand); err != nil {
		t.Fatal(err)
	}
	if pending.Load() != 0 {
		t.Fatal("size query must not mark events")
	}
	if _, err := e.Event(buf, 4, FromCommand); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Event(buf, 30, FromCommand); err != nil {
		t.Fatal(err)
	}
	if pending.Load() != 1<<4 {
		t.Fatalf("pending = %#x, want only bit 4 (30 is beyond the queue count)", pending.Load())
	}
	pending.Clear(4)
	if pending.IsPending(4) {
		t.Fatal("Clear must drop the bit")
	}
}

func TestKindString(t *testing.T) {
	if KindEvent.String() != "EVENT" || Kind(99).String() != "UNKNOWN" {
		t.Fatal("Kind.String")
	}
}
