package elf

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/appsworld/go-elf/types"
)

// TestHeaderRoundTrip exercises the fixed ELF64 header vector from the
// "header round trip" testable property: writing a header and reading
// it back must reproduce every field exactly.
func TestHeaderRoundTrip(t *testing.T) {
	h := &Header{
		Class:     Class64,
		Order:     binary.LittleEndian,
		OSABI:     types.OSABI(0),
		Kind:      types.FileKindExec,
		Machine:   types.MachineX86_64,
		Entry:     0x401000,
		PHOff:     0x40,
		PHEntSize: 56,
		PHNum:     9,
		SHOff:     0x1000,
		SHEntSize: 64,
		SHNum:     20,
		SHStrNdx:  19,
		EHSize:    HeaderSize64,
	}

	ms := &memSeeker{}
	w := NewWriter(ms, Class64, binary.LittleEndian)
	if err := h.Write(w); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(ms.buf) != HeaderSize64 {
		t.Fatalf("wrote %d bytes, want %d", len(ms.buf), HeaderSize64)
	}

	got, _, err := ReadHeader(&sliceRS{buf: ms.buf})
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if got.Class != h.Class || got.Order != binary.LittleEndian {
		t.Fatalf("class/order mismatch: %v %v", got.Class, got.Order)
	}
	if got.Kind != h.Kind || got.Machine != h.Machine {
		t.Fatalf("kind/machine mismatch: %v %v", got.Kind, got.Machine)
	}
	if got.Entry != h.Entry || got.PHOff != h.PHOff || got.SHOff != h.SHOff {
		t.Fatalf("offsets mismatch: entry=%#x phoff=%#x shoff=%#x", got.Entry, got.PHOff, got.SHOff)
	}
	if got.PHEntSize != h.PHEntSize || got.PHNum != h.PHNum {
		t.Fatalf("phentsize/phnum mismatch: %d %d", got.PHEntSize, got.PHNum)
	}
	if got.SHEntSize != h.SHEntSize || got.SHNum != h.SHNum || got.SHStrNdx != h.SHStrNdx {
		t.Fatalf("shentsize/shnum/shstrndx mismatch: %d %d %d", got.SHEntSize, got.SHNum, got.SHStrNdx)
	}
}

func TestReadHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, HeaderSize64)
	copy(buf, []byte{0x00, 'E', 'L', 'F'})
	if _, _, err := ReadHeader(&sliceRS{buf: buf}); err != ErrNotElf {
		t.Fatalf("got %v, want ErrNotElf", err)
	}
}

// sliceRS is a minimal io.ReadSeeker over a fixed byte slice.
type sliceRS struct {
	buf []byte
	pos int64
}

func (s *sliceRS) Read(p []byte) (int, error) {
	if s.pos >= int64(len(s.buf)) {
		return 0, io.EOF
	}
	n := copy(p, s.buf[s.pos:])
	s.pos += int64(n)
	return n, nil
}

func (s *sliceRS) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case 0:
		base = 0
	case 1:
		base = s.pos
	case 2:
		base = int64(len(s.buf))
	}
	s.pos = base + offset
	return s.pos, nil
}
