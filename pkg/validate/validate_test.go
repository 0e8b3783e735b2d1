package validate

import (
	"errors"
	"testing"

	elf "github.com/appsworld/go-elf"
	"github.com/appsworld/go-elf/types"
)

// validFile builds a minimal, self-consistent ELF64 model: one RX LOAD
// segment covering file/vaddr [0, 0x1000), a NULL section followed by
// one ALLOC PROGBITS section fully inside it, and an entry point inside
// the LOAD segment's range.
func validFile() *elf.File {
	return &elf.File{
		Header: elf.Header{
			Class: elf.Class64, Entry: 0x400080,
			PHOff: 64, PHEntSize: types.SegmentSize64, PHNum: 1,
			SHOff: 256, SHEntSize: types.SectionSize64, SHNum: 2,
			EHSize: elf.HeaderSize64,
		},
		Segments: []types.Segment{
			{
				Kind: types.SegmentKindLoad, Flags: types.SegmentFlagRead | types.SegmentFlagExec,
				Offset: 0, VAddr: 0x400000, PAddr: 0x400000,
				FileSize: 0x1000, MemSize: 0x1000, Align: 0x1000,
			},
		},
		Sections: []types.Section{
			{Kind: types.SectionKindNull},
			{
				Name: ".text", Kind: types.SectionKindProgBits,
				Flags: types.SectionFlagAlloc | types.SectionFlagExecInstr,
				Addr:  0x400080, Offset: 0x80, Size: 0x40, AddrAlign: 16,
			},
		},
	}
}

func kindOf(t *testing.T, err error) elf.ErrorKind {
	t.Helper()
	var ee *elf.Error
	if !errors.As(err, &ee) {
		t.Fatalf("error %v is not *elf.Error", err)
	}
	return ee.Kind
}

func TestValidateAcceptsMinimalValidFile(t *testing.T) {
	if err := Validate(validFile()); err != nil {
		t.Fatalf("Validate rejected a valid file: %v", err)
	}
}

func TestValidateDetectsUnsortedLoadSegments(t *testing.T) {
	f := validFile()
	f.Segments = append(f.Segments, types.Segment{
		Kind: types.SegmentKindLoad, Flags: types.SegmentFlagRead,
		Offset: 0x1000, VAddr: 0x300000, PAddr: 0x300000,
		FileSize: 0x1000, MemSize: 0x1000, Align: 0x1000,
	})
	err := Validate(f)
	if err == nil {
		t.Fatal("expected error for unsorted LOAD segments")
	}
	if got := kindOf(t, err); got != elf.KindSegmentsNotSorted {
		t.Fatalf("got %v, want KindSegmentsNotSorted", got)
	}
}

func TestValidateDetectsOverlappingLoadSegments(t *testing.T) {
	f := validFile()
	f.Segments = append(f.Segments, types.Segment{
		Kind: types.SegmentKindLoad, Flags: types.SegmentFlagRead,
		Offset: 0x800, VAddr: 0x400800, PAddr: 0x400800,
		FileSize: 0x1000, MemSize: 0x1000, Align: 0x1000,
	})
	err := Validate(f)
	if err == nil {
		t.Fatal("expected error for overlapping LOAD segments")
	}
	if got := kindOf(t, err); got != elf.KindSegmentsOverlap {
		t.Fatalf("got %v, want KindSegmentsOverlap", got)
	}
}

func TestValidateDetectsUncoveredAllocSection(t *testing.T) {
	f := validFile()
	f.Sections = append(f.Sections, types.Section{
		Name: ".data", Kind: types.SectionKindProgBits,
		Flags: types.SectionFlagAlloc | types.SectionFlagWrite,
		Addr:  0x500000, Offset: 0x2000, Size: 0x100, AddrAlign: 8,
	})
	err := Validate(f)
	if err == nil {
		t.Fatal("expected error for uncovered ALLOC section")
	}
	if got := kindOf(t, err); got != elf.KindSectionNotCovered {
		t.Fatalf("got %v, want KindSectionNotCovered", got)
	}
}

func TestValidateDetectsMisalignedSection(t *testing.T) {
	f := validFile()
	f.Sections[1].AddrAlign = 16
	f.Sections[1].Addr = 0x400081 // not a multiple of 16
	err := Validate(f)
	if err == nil {
		t.Fatal("expected error for misaligned section")
	}
	if got := kindOf(t, err); got != elf.KindMisalignedSection {
		t.Fatalf("got %v, want KindMisalignedSection", got)
	}
}

func TestValidateDetectsEntryPointOutsideAnyLoadSegment(t *testing.T) {
	f := validFile()
	f.Header.Entry = 0x999999
	err := Validate(f)
	if err == nil {
		t.Fatal("expected error for out-of-range entry point")
	}
	if got := kindOf(t, err); got != elf.KindInvalidEntryPoint {
		t.Fatalf("got %v, want KindInvalidEntryPoint", got)
	}
}

func TestValidateDetectsFirstSectionNotNull(t *testing.T) {
	f := validFile()
	f.Sections[0].Kind = types.SectionKindProgBits
	err := Validate(f)
	if err == nil {
		t.Fatal("expected error when section 0 is not NULL")
	}
	if got := kindOf(t, err); got != elf.KindInvalidFirstSectionKind {
		t.Fatalf("got %v, want KindInvalidFirstSectionKind", got)
	}
}

func TestValidateDetectsPhdrNotCoveredByLoad(t *testing.T) {
	f := validFile()
	f.Segments = append([]types.Segment{{
		Kind: types.SegmentKindPhdr, Flags: types.SegmentFlagRead,
		Offset: 64, VAddr: 0x1000, PAddr: 0x1000,
		FileSize: uint64(types.SegmentSize64), MemSize: uint64(types.SegmentSize64), Align: 8,
	}}, f.Segments...)
	err := Validate(f)
	if err == nil {
		t.Fatal("expected error for PHDR not covered by any LOAD segment")
	}
	if got := kindOf(t, err); got != elf.KindInvalidProgramHeaderSegment {
		t.Fatalf("got %v, want KindInvalidProgramHeaderSegment", got)
	}
}
