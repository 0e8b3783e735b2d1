// Package alloc implements the space allocator: finding free in-file
// and in-memory ranges for new sections and segments without
// disturbing the layout invariants of surrounding entities. It is a
// self-contained algorithm package operating on the parsed model.
package alloc

import (
	"fmt"
	"sort"

	elf "github.com/appsworld/go-elf"
	"github.com/appsworld/go-elf/types"
)

// eventKind orders events at equal offsets so brackets nest correctly:
// LOAD brackets enclose other segments, which enclose sections, which
// enclose nothing.
type eventKind int

const (
	evLoadStart eventKind = iota
	evSegStart
	evSectionStart
	evSectionEnd
	evNobitsSectionEnd
	evSegEnd
	evLoadEnd
)

type event struct {
	offset uint64
	kind   eventKind
}

// FileRange is an extra in-file byte range the allocator must treat as
// occupied even though it is not modeled as a Segment or Section entry
// — the ELF header itself and the current program/section-header
// tables are real bytes in the file but, unlike every other entity in
// §3.1, are never covered by a section record, so the event timelines
// built from Segments/Sections alone would otherwise consider them
// free space.
type FileRange struct {
	Start, End uint64
}

// Allocator builds file and memory timelines from the current
// sections and segments and places new entities into the gaps between
// events.
type Allocator struct {
	Segments *[]types.Segment
	Sections *[]types.Section
	PageSize uint64

	// Reserved lists file ranges outside Segments/Sections that must
	// never be chosen as a placement gap (header, program header
	// table, section header table).
	Reserved []FileRange
}

// New constructs an allocator over the given (mutable) segment and
// section slices.
func New(segments *[]types.Segment, sections *[]types.Section, pageSize uint64) *Allocator {
	if pageSize == 0 {
		pageSize = elf.DefaultPageSize
	}
	return &Allocator{Segments: segments, Sections: sections, PageSize: pageSize}
}

// AlignDown/AlignUp delegate to the root package so allocator, patcher,
// and validator share one page-expansion implementation.
func AlignDown(x, p uint64) uint64 { return elf.AlignDown(x, p) }
func AlignUp(x, p uint64) uint64   { return elf.AlignUp(x, p) }

func normalizeAlign(align uint64) uint64 {
	if align == 0 {
		return 1
	}
	return align
}

// fileTimeline returns file-offset events from the current segments
// and sections. NOBITS sections contribute only a start event (they
// never consume file space); zero-length segments contribute empty
// brackets.
func (a *Allocator) fileTimeline() []event {
	var evs []event
	for _, seg := range *a.Segments {
		if seg.Kind == types.SegmentKindLoad {
			evs = append(evs, event{seg.Offset, evLoadStart}, event{seg.FileEnd(), evLoadEnd})
		} else {
			evs = append(evs, event{seg.Offset, evSegStart}, event{seg.FileEnd(), evSegEnd})
		}
	}
	for _, sec := range *a.Sections {
		if sec.Kind == types.SectionKindNobits {
			evs = append(evs, event{sec.Offset, evSectionStart})
			continue
		}
		evs = append(evs, event{sec.Offset, evSectionStart}, event{sec.End(), evSectionEnd})
	}
	for _, rr := range a.Reserved {
		if rr.End > rr.Start {
			evs = append(evs, event{rr.Start, evSegStart}, event{rr.End, evSegEnd})
		}
	}
	sortEvents(evs)
	return evs
}

// memoryTimeline returns virtual-address events restricted to ALLOC
// sections and LOAD segments, with LOAD ranges expanded to page
// boundaries.
func (a *Allocator) memoryTimeline() []event {
	var evs []event
	for _, seg := range *a.Segments {
		if seg.Kind != types.SegmentKindLoad {
			continue
		}
		start, end := elf.ExpandedRange(&seg, a.PageSize)
		evs = append(evs, event{start, evLoadStart}, event{end, evLoadEnd})
	}
	for _, sec := range *a.Sections {
		if !sec.Flags.Alloc() {
			continue
		}
		kind := evSectionEnd
		if sec.Kind == types.SectionKindNobits {
			kind = evNobitsSectionEnd
		}
		evs = append(evs, event{sec.Addr, evSectionStart}, event{sec.VEnd(), kind})
	}
	sortEvents(evs)
	return evs
}

func sortEvents(evs []event) {
	sort.Slice(evs, func(i, j int) bool {
		if evs[i].offset != evs[j].offset {
			return evs[i].offset < evs[j].offset
		}
		return evs[i].kind < evs[j].kind
	})
}

func lastOffset(evs []event) uint64 {
	var max uint64
	for _, e := range evs {
		if e.offset > max {
			max = e.offset
		}
	}
	return max
}

// gap is a candidate placement: [start, start+avail) of genuinely free
// space, not merely the span between two consecutive events.
type gap struct {
	start, avail uint64
}

// interval is an occupied byte/address range; intervals feeding
// gapsInWindow must already be sorted by start and non-overlapping
// (mergeIntervals produces this).
type interval struct {
	start, end uint64
}

func mergeIntervals(ivs []interval) []interval {
	if len(ivs) == 0 {
		return nil
	}
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].start < ivs[j].start })
	out := []interval{ivs[0]}
	for _, iv := range ivs[1:] {
		last := &out[len(out)-1]
		if iv.start <= last.end {
			if iv.end > last.end {
				last.end = iv.end
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// occupiedFileIntervals returns the merged file-offset ranges a new
// section's file placement must avoid: existing sections, non-LOAD
// segments (DYNAMIC/INTERP/NOTE bookkeeping entries not mirrored by a
// section), and reserved ranges (header, program/section header
// tables). LOAD segments themselves are containers, not obstacles —
// new sections are placed inside their free space, not around them.
func (a *Allocator) occupiedFileIntervals() []interval {
	var ivs []interval
	for _, seg := range *a.Segments {
		if seg.Kind == types.SegmentKindLoad {
			continue
		}
		if seg.FileEnd() > seg.Offset {
			ivs = append(ivs, interval{seg.Offset, seg.FileEnd()})
		}
	}
	for _, sec := range *a.Sections {
		if sec.Kind == types.SectionKindNobits {
			continue
		}
		if sec.End() > sec.Offset {
			ivs = append(ivs, interval{sec.Offset, sec.End()})
		}
	}
	for _, rr := range a.Reserved {
		if rr.End > rr.Start {
			ivs = append(ivs, interval{rr.Start, rr.End})
		}
	}
	return mergeIntervals(ivs)
}

// occupiedMemIntervals returns the merged virtual-address ranges
// occupied by existing ALLOC sections, the obstacles a new section's
// address placement must avoid within a LOAD segment's expanded
// range.
func (a *Allocator) occupiedMemIntervals() []interval {
	var ivs []interval
	for _, sec := range *a.Sections {
		if !sec.Flags.Alloc() {
			continue
		}
		if sec.VEnd() > sec.Addr {
			ivs = append(ivs, interval{sec.Addr, sec.VEnd()})
		}
	}
	return mergeIntervals(ivs)
}

// gapsInWindow returns the free sub-ranges of [lo, hi) not covered by
// any interval in occupied (sorted, non-overlapping, per
// mergeIntervals). Unlike a raw event-to-event diff, the interior of
// an occupied interval is never reported as a gap.
func gapsInWindow(occupied []interval, lo, hi uint64) []gap {
	var gaps []gap
	prev := lo
	for _, iv := range occupied {
		if iv.end <= lo {
			continue
		}
		if iv.start >= hi {
			break
		}
		start := iv.start
		if start < lo {
			start = lo
		}
		if start > prev {
			gaps = append(gaps, gap{prev, start - prev})
		}
		end := iv.end
		if end > hi {
			end = hi
		}
		if end > prev {
			prev = end
		}
	}
	if hi > prev {
		gaps = append(gaps, gap{prev, hi - prev})
	}
	return gaps
}

// placeInGap tries to fit size (with align padding) somewhere in g,
// preferring to start right at g.start: when the needed gap's start is
// not aligned to align, it first pads forward, and if the padded size
// no longer fits the gap, it moves on. base is added to g.start before
// aligning, so
// callers can align against an absolute coordinate (a file offset or a
// vaddr) while g itself is expressed relative to some origin.
func placeInGap(g gap, base, size, align uint64) (uint64, bool) {
	absStart := base + g.start
	aligned := AlignUp(absStart, align)
	if aligned < absStart { // overflow guard
		return 0, false
	}
	pad := aligned - absStart
	if pad+size > g.avail {
		return 0, false
	}
	return g.start + pad, true
}

// AllocateSection finds room for a new ALLOC section of the given
// size/align/flags. It returns the virtual
// address and file offset chosen. If no existing LOAD segment has a
// compatible gap, a new LOAD segment is created.
//
// A placement must be free in both the file and the address-space
// timelines at once, and those two timelines don't share a unit: the
// ELF/program/section header tables occupy file bytes with no virtual
// memory counterpart at all. To search both at once, everything is
// projected onto a single "rel" axis measured from seg.Offset / seg.VAddr
// (the two coincide up to a constant thanks to invariant 6), gaps are
// found once against the merged occupancy in that shared space, and the
// result is translated back to an absolute file offset and vaddr.
func (a *Allocator) AllocateSection(size, align uint64, flags types.SectionFlags) (addr, offset uint64, err error) {
	align = normalizeAlign(align)
	if align&(align-1) != 0 {
		return 0, 0, &elf.Error{Kind: elf.KindInvalidAlign, Msg: "align must be a power of two"}
	}

	fileOcc := a.occupiedFileIntervals()
	memOcc := a.occupiedMemIntervals()
	wantWrite := flags.Write()

	for si := range *a.Segments {
		seg := &(*a.Segments)[si]
		if seg.Kind != types.SegmentKindLoad {
			continue
		}
		if seg.Flags.Write() != wantWrite {
			continue
		}
		_, vEnd := elf.ExpandedRange(seg, a.PageSize)

		lo := uint64(0)
		hi := seg.FileSize
		if memHi := satSub(vEnd, seg.VAddr); memHi < hi {
			hi = memHi
		}

		var rel []interval
		for _, iv := range fileOcc {
			if iv.end <= seg.Offset || iv.start >= seg.FileEnd() {
				continue
			}
			s, e := iv.start, iv.end
			if s < seg.Offset {
				s = seg.Offset
			}
			if e > seg.FileEnd() {
				e = seg.FileEnd()
			}
			rel = append(rel, interval{s - seg.Offset, e - seg.Offset})
		}
		for _, iv := range memOcc {
			if iv.end <= seg.VAddr || iv.start >= seg.VEnd() {
				continue
			}
			s, e := iv.start, iv.end
			if s < seg.VAddr {
				s = seg.VAddr
			}
			if e > seg.VEnd() {
				e = seg.VEnd()
			}
			rel = append(rel, interval{s - seg.VAddr, e - seg.VAddr})
		}
		merged := mergeIntervals(rel)

		for _, g := range gapsInWindow(merged, lo, hi) {
			// Align against the absolute file offset: since align always
			// divides the segment's own page alignment here, a file-offset-
			// aligned placement is automatically vaddr-aligned too.
			relStart, ok := placeInGap(g, seg.Offset, size, align)
			if !ok {
				continue
			}
			return seg.VAddr + relStart, seg.Offset + relStart, nil
		}
	}

	// No compatible LOAD segment had room: create a new one.
	newSeg, err := a.AllocateSegment(types.SegmentKindLoad, sectionFlagsToSegmentFlags(flags), size, align)
	if err != nil {
		return 0, 0, err
	}
	return newSeg.VAddr, newSeg.Offset, nil
}

// satSub returns a-b, or 0 if that would underflow.
func satSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}

func sectionFlagsToSegmentFlags(flags types.SectionFlags) types.SegmentFlags {
	segFlags := types.SegmentFlagRead
	if flags.Write() {
		segFlags |= types.SegmentFlagWrite
	}
	if flags.Exec() {
		segFlags |= types.SegmentFlagExec
	}
	return segFlags
}

// AllocateSegment always appends a new LOAD segment with the requested
// flags and alignment, placed immediately after the last existing file
// and memory event, page-aligned.
func (a *Allocator) AllocateSegment(kind types.SegmentKind, flags types.SegmentFlags, size, align uint64) (*types.Segment, error) {
	align = normalizeAlign(align)
	fileEvs := a.fileTimeline()
	memEvs := a.memoryTimeline()

	fileStart := AlignUp(lastOffset(fileEvs), a.PageSize)
	memStart := AlignUp(lastOffset(memEvs), a.PageSize)
	// Segments require offset mod align == vaddr mod align (invariant
	// 6); page-aligning both independently already satisfies this when
	// align divides PageSize, which holds for every size we allocate.
	if fileStart%a.PageSize != memStart%a.PageSize {
		memStart = fileStart
	}

	seg := types.Segment{
		Kind:     types.SegmentKindLoad,
		Flags:    flags,
		Offset:   fileStart,
		VAddr:    memStart,
		PAddr:    memStart,
		FileSize: size,
		MemSize:  size,
		Align:    a.PageSize,
	}
	*a.Segments = append(*a.Segments, seg)
	newSeg := &(*a.Segments)[len(*a.Segments)-1]

	if kind != types.SegmentKindLoad {
		// The caller also records the non-LOAD kind separately: a second
		// bookkeeping segment with the identical offset/address/size
		// describing the logical INTERP/DYNAMIC/PHDR entity housed
		// inside this fresh LOAD.
		logical := types.Segment{
			Kind:     kind,
			Flags:    flags,
			Offset:   fileStart,
			VAddr:    memStart,
			PAddr:    memStart,
			FileSize: size,
			MemSize:  size,
			Align:    align,
		}
		*a.Segments = append(*a.Segments, logical)
	}

	return newSeg, nil
}

// AllocateFileSpace returns the lowest offset aligned to align at or
// after the last file-timeline event, used for the section-header
// table at the end of the file.
func (a *Allocator) AllocateFileSpace(size, align uint64) (uint64, error) {
	align = normalizeAlign(align)
	evs := a.fileTimeline()
	last := lastOffset(evs)
	off := AlignUp(last, align)
	if off < last {
		return 0, &elf.Error{Kind: elf.KindFileSpaceAlloc, Msg: fmt.Sprintf("overflow aligning %d to %d", last, align)}
	}
	return off, nil
}
