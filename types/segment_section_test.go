package types_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	elf "github.com/appsworld/go-elf"
	"github.com/appsworld/go-elf/types"
)

func TestSegmentRoundTrip64(t *testing.T) {
	s := &types.Segment{
		Kind:     types.SegmentKindLoad,
		Flags:    types.SegmentFlagRead | types.SegmentFlagExec,
		Offset:   0,
		VAddr:    0x400000,
		PAddr:    0x400000,
		FileSize: 0x1000,
		MemSize:  0x1000,
		Align:    0x1000,
	}
	var buf bytes.Buffer
	w := elf.NewWriter(seekWriter{&buf}, elf.Class64, binary.LittleEndian)
	if err := s.Write(w, 2); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.Len() != types.SegmentSize64 {
		t.Fatalf("wrote %d bytes, want %d", buf.Len(), types.SegmentSize64)
	}
	r := elf.NewReader(bytes.NewReader(buf.Bytes()), elf.Class64, binary.LittleEndian)
	got, err := types.ReadSegment(r, 2)
	if err != nil {
		t.Fatalf("ReadSegment: %v", err)
	}
	if *got != *s {
		t.Fatalf("got %+v, want %+v", got, s)
	}
}

func TestSegmentRoundTrip32(t *testing.T) {
	s := &types.Segment{
		Kind:     types.SegmentKindDynamic,
		Flags:    types.SegmentFlagRead | types.SegmentFlagWrite,
		Offset:   0x100,
		VAddr:    0x8100,
		PAddr:    0x8100,
		FileSize: 0x50,
		MemSize:  0x50,
		Align:    4,
	}
	var buf bytes.Buffer
	w := elf.NewWriter(seekWriter{&buf}, elf.Class32, binary.LittleEndian)
	if err := s.Write(w, 1); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.Len() != types.SegmentSize32 {
		t.Fatalf("wrote %d bytes, want %d", buf.Len(), types.SegmentSize32)
	}
	r := elf.NewReader(bytes.NewReader(buf.Bytes()), elf.Class32, binary.LittleEndian)
	got, err := types.ReadSegment(r, 1)
	if err != nil {
		t.Fatalf("ReadSegment: %v", err)
	}
	if *got != *s {
		t.Fatalf("got %+v, want %+v", got, s)
	}
}

func TestSectionRoundTrip64(t *testing.T) {
	s := &types.Section{
		NameOffset: 1,
		Kind:       types.SectionKindProgBits,
		Flags:      types.SectionFlagAlloc | types.SectionFlagExecInstr,
		Addr:       0x401000,
		Offset:     0x1000,
		Size:       0x200,
		Link:       0,
		Info:       0,
		AddrAlign:  16,
		EntSize:    0,
	}
	var buf bytes.Buffer
	w := elf.NewWriter(seekWriter{&buf}, elf.Class64, binary.LittleEndian)
	if err := s.Write(w, 2); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.Len() != types.SectionSize64 {
		t.Fatalf("wrote %d bytes, want %d", buf.Len(), types.SectionSize64)
	}
	r := elf.NewReader(bytes.NewReader(buf.Bytes()), elf.Class64, binary.LittleEndian)
	got, err := types.ReadSection(r, 2)
	if err != nil {
		t.Fatalf("ReadSection: %v", err)
	}
	got.Name = s.Name // Name is resolved out-of-band, not by the codec
	if *got != *s {
		t.Fatalf("got %+v, want %+v", got, s)
	}
}

func TestSectionEndAndVEnd(t *testing.T) {
	s := &types.Section{Addr: 0x2000, Offset: 0x100, Size: 0x50}
	if s.End() != 0x150 {
		t.Fatalf("End() = %#x, want 0x150", s.End())
	}
	if s.VEnd() != 0x2050 {
		t.Fatalf("VEnd() = %#x, want 0x2050", s.VEnd())
	}
}
