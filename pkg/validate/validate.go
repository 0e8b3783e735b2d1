// Package validate implements the cross-entity invariant checks that
// keep a parsed ELF model internally consistent. Every check but the
// dynamic-table one runs purely over the in-memory model; checking the
// dynamic table against .dynstr requires reading both sections through
// the file's backing reader, the same way File.Symbols does.
package validate

import (
	"fmt"
	"sort"

	elf "github.com/appsworld/go-elf"
	"github.com/appsworld/go-elf/types"
)

// Validate checks every layout invariant in order, returning the first
// violation found.
func Validate(f *elf.File) error {
	if err := checkEntrySizes(f); err != nil {
		return err
	}
	if err := checkHeaderSectionOverlap(f); err != nil {
		return err
	}
	if err := checkFirstSectionNull(f); err != nil {
		return err
	}
	if err := checkLoadSegmentsSortedAndNonOverlapping(f); err != nil {
		return err
	}
	if err := checkSectionsCovered(f); err != nil {
		return err
	}
	if err := checkSegmentAlignment(f); err != nil {
		return err
	}
	if err := checkSectionAlignment(f); err != nil {
		return err
	}
	if err := checkEntryPoint(f); err != nil {
		return err
	}
	if err := checkPhdrPlacement(f); err != nil {
		return err
	}
	if err := checkDynamicTable(f); err != nil {
		return err
	}
	if f.Header.Class == elf.Class32 {
		if err := checkClassFits32(f); err != nil {
			return err
		}
	}
	return nil
}

// errKind constructs a *elf.Error with the given kind and message; a
// thin local helper so each check reads as one line.
func errKind(kind elf.ErrorKind, msg string) error {
	return &elf.Error{Kind: kind, Msg: msg}
}

// checkEntrySizes is invariant 1: header size, segment entry size,
// section entry size match the class.
func checkEntrySizes(f *elf.File) error {
	wantEH := uint16(elf.HeaderSize32)
	wantPH := uint16(types.SegmentSize32)
	wantSH := uint16(types.SectionSize32)
	if f.Header.Class == elf.Class64 {
		wantEH = elf.HeaderSize64
		wantPH = types.SegmentSize64
		wantSH = types.SectionSize64
	}
	if f.Header.EHSize != wantEH {
		return errKind(elf.KindInvalidHeaderLen, "")
	}
	if len(f.Segments) > 0 && f.Header.PHEntSize != wantPH {
		return errKind(elf.KindInvalidSegmentLen, "")
	}
	if len(f.Sections) > 0 && f.Header.SHEntSize != wantSH {
		return errKind(elf.KindInvalidSectionLen, "")
	}
	return nil
}

// checkHeaderSectionOverlap checks that the program-header range and
// the section-header range do not overlap.
func checkHeaderSectionOverlap(f *elf.File) error {
	phStart := f.Header.PHOff
	phEnd := phStart + uint64(len(f.Segments))*uint64(f.Header.PHEntSize)
	shStart := f.Header.SHOff
	shEnd := shStart + uint64(len(f.Sections))*uint64(f.Header.SHEntSize)
	if phEnd == phStart || shEnd == shStart {
		return nil
	}
	if phStart < shEnd && shStart < phEnd {
		return errKind(elf.KindOverlap, "program header and section header overlap")
	}
	return nil
}

// checkFirstSectionNull is invariant 3.
func checkFirstSectionNull(f *elf.File) error {
	if len(f.Sections) == 0 {
		return nil
	}
	if f.Sections[0].Kind != types.SectionKindNull {
		return errKind(elf.KindInvalidFirstSectionKind, "")
	}
	return nil
}

// checkLoadSegmentsSortedAndNonOverlapping is invariant 5: LOAD
// segments sorted by virtual address and, after page expansion, do not
// overlap in memory; their file ranges do not overlap either.
func checkLoadSegmentsSortedAndNonOverlapping(f *elf.File) error {
	var loads []*types.Segment
	for i := range f.Segments {
		if f.Segments[i].Kind == types.SegmentKindLoad {
			loads = append(loads, &f.Segments[i])
		}
	}
	for i := 1; i < len(loads); i++ {
		if loads[i].VAddr < loads[i-1].VAddr {
			return errKind(elf.KindSegmentsNotSorted, "")
		}
	}
	sorted := append([]*types.Segment(nil), loads...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].VAddr < sorted[j].VAddr })
	pageSize := uint64(elf.DefaultPageSize)
	for i := 1; i < len(sorted); i++ {
		_, prevEnd := elf.ExpandedRange(sorted[i-1], pageSize)
		curStart, _ := elf.ExpandedRange(sorted[i], pageSize)
		if curStart < prevEnd {
			return errKind(elf.KindSegmentsOverlap, "memory ranges overlap")
		}
		if sorted[i].FileSize > 0 && sorted[i-1].FileSize > 0 {
			if sorted[i].Offset < sorted[i-1].FileEnd() {
				return errKind(elf.KindSegmentsOverlap, "file ranges overlap")
			}
		}
	}
	return nil
}

// checkSectionsCovered is invariant 4: every ALLOC, non-NOBITS section
// is wholly contained in some LOAD segment's (expanded) virtual range.
func checkSectionsCovered(f *elf.File) error {
	pageSize := uint64(elf.DefaultPageSize)
	loads := f.LoadSegments()
	for i := range f.Sections {
		sec := &f.Sections[i]
		if !sec.Flags.Alloc() || sec.Kind == types.SectionKindNobits {
			continue
		}
		covered := false
		for _, seg := range loads {
			segStart, segEnd := elf.ExpandedRange(seg, pageSize)
			if sec.Addr >= segStart && sec.VEnd() <= segEnd {
				covered = true
				break
			}
		}
		if !covered {
			return errKind(elf.KindSectionNotCovered, fmt.Sprintf("section %q", sec.Name))
		}
	}
	return nil
}

// checkSegmentAlignment is invariant 6.
func checkSegmentAlignment(f *elf.File) error {
	for i := range f.Segments {
		seg := &f.Segments[i]
		if seg.Kind != types.SegmentKindLoad {
			continue
		}
		if !isValidAlign(seg.Align) {
			return errKind(elf.KindInvalidAlign, "segment align must be 0, 1, or a power of two")
		}
		align := seg.Align
		if align == 0 {
			align = 1
		}
		if seg.Offset%align != seg.VAddr%align {
			return errKind(elf.KindMisalignedSegment, "")
		}
	}
	return nil
}

// checkSectionAlignment is invariant 7.
func checkSectionAlignment(f *elf.File) error {
	for i := range f.Sections {
		sec := &f.Sections[i]
		if !sec.Flags.Alloc() {
			continue
		}
		align := sec.AddrAlign
		if align == 0 {
			align = 1
		}
		if sec.Addr%align != 0 {
			return errKind(elf.KindMisalignedSection, fmt.Sprintf("section %q", sec.Name))
		}
	}
	return nil
}

func isValidAlign(align uint64) bool {
	if align == 0 || align == 1 {
		return true
	}
	return align&(align-1) == 0
}

// checkEntryPoint is invariant 8.
func checkEntryPoint(f *elf.File) error {
	if f.Header.Entry == 0 {
		return nil
	}
	pageSize := uint64(elf.DefaultPageSize)
	for _, seg := range f.LoadSegments() {
		start, end := elf.ExpandedRange(seg, pageSize)
		if f.Header.Entry >= start && f.Header.Entry < end {
			return nil
		}
	}
	return errKind(elf.KindInvalidEntryPoint, "")
}

// checkPhdrPlacement is invariant 9.
func checkPhdrPlacement(f *elf.File) error {
	var phdrs []int
	for i := range f.Segments {
		if f.Segments[i].Kind == types.SegmentKindPhdr {
			phdrs = append(phdrs, i)
		}
	}
	if len(phdrs) == 0 {
		return nil
	}
	if len(phdrs) > 1 {
		return errKind(elf.KindMultipleSegments, "multiple PHDR segments")
	}
	phdr := &f.Segments[phdrs[0]]
	precedesLoad := false
	coveredByLoad := false
	for i := range f.Segments {
		if f.Segments[i].Kind == types.SegmentKindLoad {
			if i > phdrs[0] {
				precedesLoad = true
			}
			if phdr.VAddr >= f.Segments[i].VAddr && phdr.VEnd() <= f.Segments[i].VEnd() {
				coveredByLoad = true
			}
		}
	}
	if !precedesLoad {
		return errKind(elf.KindNotPreceedingLoadSegment, "")
	}
	if !coveredByLoad {
		return errKind(elf.KindInvalidProgramHeaderSegment, "PHDR not covered by any LOAD segment")
	}
	return nil
}

// checkDynamicTable is invariant 10: at most one DYNAMIC segment,
// DT_STRTAB/DT_STRSZ point at the actual .dynstr section, RPATH and
// RUNPATH do not both exist, and the table is NULL-terminated.
func checkDynamicTable(f *elf.File) error {
	dynSeg := f.SegmentsByKind(types.SegmentKindDynamic)
	if len(dynSeg) == 0 {
		return nil
	}
	if len(dynSeg) > 1 {
		return errKind(elf.KindMultipleSegments, "multiple DYNAMIC segments")
	}

	dyn, _, err := f.DynamicTable()
	if err != nil {
		return err
	}
	if dyn == nil {
		return nil
	}

	if len(dyn.Entries) == 0 || dyn.Entries[len(dyn.Entries)-1].Tag != types.DTNull {
		return errKind(elf.KindInvalidDynamicTable, "dynamic table missing terminating NULL entry")
	}

	if _, hasRpath := dyn.Get(types.DTRpath); hasRpath {
		if _, hasRunpath := dyn.Get(types.DTRunpath); hasRunpath {
			return errKind(elf.KindInvalidDynamicTable, "RPATH and RUNPATH are mutually exclusive")
		}
	}

	if strtabAddr, ok := dyn.Get(types.DTStrtab); ok {
		dynstrSec := f.SectionByName(".dynstr")
		if dynstrSec == nil {
			return errKind(elf.KindInvalidDynamicTable, "DT_STRTAB present but no .dynstr section")
		}
		if strtabAddr != dynstrSec.Addr {
			return errKind(elf.KindInvalidDynamicTable, "DT_STRTAB does not match .dynstr address")
		}
		if strsz, ok := dyn.Get(types.DTStrSz); ok && strsz != dynstrSec.Size {
			return errKind(elf.KindInvalidDynamicTable, "DT_STRSZ does not match .dynstr size")
		}
	}

	return nil
}

// checkClassFits32 is invariant 11: on 32-bit class, numeric fields
// must fit 2^32-1. Offsets/sizes are already uint64 in memory, so we
// check them explicitly here rather than relying on narrowing writes
// to catch it silently.
func checkClassFits32(f *elf.File) error {
	max32 := uint64(1<<32 - 1)
	for i := range f.Segments {
		seg := &f.Segments[i]
		for _, v := range []uint64{seg.Offset, seg.VAddr, seg.PAddr, seg.FileSize, seg.MemSize, seg.Align} {
			if v > max32 {
				return errKind(elf.KindTooBig, "segment field exceeds 32-bit class")
			}
		}
	}
	for i := range f.Sections {
		sec := &f.Sections[i]
		for _, v := range []uint64{sec.Addr, sec.Offset, sec.Size, sec.AddrAlign, sec.EntSize} {
			if v > max32 {
				return errKind(elf.KindTooBig, "section field exceeds 32-bit class")
			}
		}
	}
	return nil
}
