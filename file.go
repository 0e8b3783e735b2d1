package elf

import (
	"io"
	"os"
	"sort"

	"github.com/appsworld/go-elf/types"
)

const pageAlign = 12 // 4096 = 1 << 12, the default page size on most targets

// DefaultPageSize is the fallback page size used when the host's
// actual page size is not supplied by the caller; the CLI fills in the
// real host value via golang.org/x/sys/unix.Getpagesize, this is the
// library-level default for callers that don't care.
const DefaultPageSize = 1 << pageAlign

// File is the in-memory ELF model the patcher and validator operate
// on, splitting "parsed data" from "the backing handle".
type File struct {
	Header   Header
	Segments []types.Segment
	Sections []types.Section

	shstrtab *types.StringTable

	closer io.Closer
	reader io.ReaderAt
}

// Open reads and parses the ELF file at path without validating it;
// callers run Validate separately when they want invariant checks.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, wrapErr(KindIO, "open", err)
	}
	elfFile, err := NewFile(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	elfFile.closer = f
	elfFile.reader = f
	return elfFile, nil
}

// NewFile parses an ELF file from an already-open stream. The caller
// retains ownership of closing r unless it also implements io.Closer
// and was obtained via Open.
func NewFile(r io.ReadSeeker) (*File, error) {
	hdr, br, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	f := &File{Header: *hdr}
	if ra, ok := r.(io.ReaderAt); ok {
		f.reader = ra
	}

	if hdr.PHNum > 0 {
		if err := br.Seek(int64(hdr.PHOff)); err != nil {
			return nil, err
		}
		for i := uint16(0); i < hdr.PHNum; i++ {
			seg, err := types.ReadSegment(br, uint8(hdr.Class))
			if err != nil {
				return nil, err
			}
			f.Segments = append(f.Segments, *seg)
		}
	}

	if hdr.SHNum > 0 {
		if err := br.Seek(int64(hdr.SHOff)); err != nil {
			return nil, err
		}
		for i := uint16(0); i < hdr.SHNum; i++ {
			sec, err := types.ReadSection(br, uint8(hdr.Class))
			if err != nil {
				return nil, err
			}
			f.Sections = append(f.Sections, *sec)
		}
		if err := f.resolveSectionNames(br); err != nil {
			return nil, err
		}
	}

	return f, nil
}

func (f *File) resolveSectionNames(br *Reader) error {
	if int(f.Header.SHStrNdx) >= len(f.Sections) {
		return nil
	}
	strSec := f.Sections[f.Header.SHStrNdx]
	if strSec.Size == 0 {
		return nil
	}
	if err := br.Seek(int64(strSec.Offset)); err != nil {
		return err
	}
	raw, err := br.ReadRaw(int(strSec.Size))
	if err != nil {
		return err
	}
	tab := types.ReadStringTable(raw)
	f.shstrtab = tab
	for i := range f.Sections {
		name, err := tab.GetString(f.Sections[i].NameOffset)
		if err == nil {
			f.Sections[i].Name = name
		}
	}
	return nil
}

// Close releases the underlying file handle, if Open opened one.
func (f *File) Close() error {
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}

// SectionByName returns the first section with the given name.
func (f *File) SectionByName(name string) *types.Section {
	for i := range f.Sections {
		if f.Sections[i].Name == name {
			return &f.Sections[i]
		}
	}
	return nil
}

// SegmentsByKind returns every segment of the given kind.
func (f *File) SegmentsByKind(kind types.SegmentKind) []*types.Segment {
	var out []*types.Segment
	for i := range f.Segments {
		if f.Segments[i].Kind == kind {
			out = append(out, &f.Segments[i])
		}
	}
	return out
}

// LoadSegments returns every LOAD segment, sorted by virtual address.
func (f *File) LoadSegments() []*types.Segment {
	var out []*types.Segment
	for i := range f.Segments {
		if f.Segments[i].Kind == types.SegmentKindLoad {
			out = append(out, &f.Segments[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VAddr < out[j].VAddr })
	return out
}

// ExpandedRange rounds a LOAD segment's virtual range down/up to page
// boundaries, matching the way the system loader maps it.
func ExpandedRange(seg *types.Segment, pageSize uint64) (start, end uint64) {
	return AlignDown(seg.VAddr, pageSize), AlignUp(seg.VEnd(), pageSize)
}

// AlignDown rounds x down to the nearest multiple of p (a power of
// two), saturating instead of wrapping on overflow.
func AlignDown(x, p uint64) uint64 {
	if p <= 1 {
		return x
	}
	return x &^ (p - 1)
}

// AlignUp rounds x up to the nearest multiple of p (a power of two),
// saturating instead of wrapping on overflow.
func AlignUp(x, p uint64) uint64 {
	if p <= 1 {
		return x
	}
	down := AlignDown(x, p)
	if down == x {
		return x
	}
	up := down + p
	if up < down { // overflow
		return ^uint64(0)
	}
	return up
}
