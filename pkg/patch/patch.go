// Package patch implements the patcher: the only part of this module
// that owns a writable (Elf, File) pair and mutates it, following the
// same handle-ownership model as the read-only File, generalized to
// read-write.
package patch

import (
	"os"
	"path/filepath"

	elf "github.com/appsworld/go-elf"
	"github.com/appsworld/go-elf/pkg/alloc"
	"github.com/appsworld/go-elf/types"
)

// Patcher owns the in-memory ELF model and the backing file handle
// for the duration of every public operation. Every write lands on a
// side-file copy of the original; the original is only ever replaced,
// atomically, once Finish completes every write successfully.
type Patcher struct {
	file    *elf.File
	path    string
	tmpPath string
	f       *os.File

	shstrtab *types.StringTable
}

// Open parses path for in-place patching. It copies path onto
// SideFilePath(path) and parses and edits that copy from here on; the
// original file is never opened for writing, so a caller that abandons
// the Patcher before Finish, or whose Finish fails partway through,
// leaves the original exactly as it was.
func Open(path string) (*Patcher, error) {
	tmpPath := SideFilePath(path)
	info, err := os.Stat(path)
	if err != nil {
		return nil, &elf.Error{Kind: elf.KindIO, Err: err}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &elf.Error{Kind: elf.KindIO, Err: err}
	}
	if err := os.WriteFile(tmpPath, data, info.Mode().Perm()); err != nil {
		return nil, &elf.Error{Kind: elf.KindIO, Err: err}
	}
	f, err := os.OpenFile(tmpPath, os.O_RDWR, 0)
	if err != nil {
		os.Remove(tmpPath)
		return nil, &elf.Error{Kind: elf.KindIO, Err: err}
	}
	file, err := elf.NewFile(f)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, err
	}
	return &Patcher{file: file, path: path, tmpPath: tmpPath, f: f}, nil
}

// Abort discards the side-file without touching the original, for
// callers that decide not to call Finish after Open.
func (p *Patcher) Abort() error {
	p.f.Close()
	return os.Remove(p.tmpPath)
}

// File exposes the underlying parsed model for read-only inspection.
func (p *Patcher) File() *elf.File { return p.file }

// allocator builds a fresh Allocator over the current model, reserving
// the ELF header, the existing program-header table, and the existing
// section-header table as occupied file space: none of the three is
// ever covered by a Section record, so without this the event
// timelines would treat them as free gaps.
func (p *Patcher) allocator() *alloc.Allocator {
	a := alloc.New(&p.file.Segments, &p.file.Sections, elf.DefaultPageSize)
	h := &p.file.Header
	a.Reserved = append(a.Reserved, alloc.FileRange{Start: 0, End: uint64(h.EHSize)})
	if h.PHNum > 0 {
		a.Reserved = append(a.Reserved, alloc.FileRange{
			Start: h.PHOff,
			End:   h.PHOff + uint64(h.PHNum)*uint64(h.PHEntSize),
		})
	}
	if h.SHNum > 0 {
		a.Reserved = append(a.Reserved, alloc.FileRange{
			Start: h.SHOff,
			End:   h.SHOff + uint64(h.SHNum)*uint64(h.SHEntSize),
		})
	}
	return a
}

// shstrtabTable lazily reads .shstrtab into the patcher's cached
// in-memory string table; callers needing to add section names mutate
// this cache, and Finish moves the grown table to fresh file space and
// repoints the .shstrtab section at it.
func (p *Patcher) shstrtabTable() *types.StringTable {
	if p.shstrtab != nil {
		return p.shstrtab
	}
	sec := p.file.SectionByName(".shstrtab")
	if sec == nil {
		p.shstrtab = types.NewStringTable()
		return p.shstrtab
	}
	p.shstrtab = types.ReadStringTable(p.readSectionBytes(sec))
	return p.shstrtab
}

func (p *Patcher) readSectionBytes(sec *types.Section) []byte {
	buf := make([]byte, sec.Size)
	if sec.Kind == types.SectionKindNobits {
		return buf
	}
	if _, err := p.f.ReadAt(buf, int64(sec.Offset)); err != nil {
		return buf
	}
	return buf
}

// freeSection zeroes a section's file content and replaces its slot
// with a NULL sentinel so later allocations can reuse the slot without
// shifting indices.
func (p *Patcher) freeSection(idx int) {
	sec := &p.file.Sections[idx]
	if sec.Kind != types.SectionKindNobits && sec.Size > 0 {
		zero := make([]byte, sec.Size)
		p.f.WriteAt(zero, int64(sec.Offset))
	}
	p.file.Sections[idx] = types.Section{Kind: types.SectionKindNull}
}

// reuseOrAppendSection returns the index of the first NULL sentinel
// slot after index 0, or appends a new slot.
func (p *Patcher) reuseOrAppendSection(sec types.Section) int {
	for i := 1; i < len(p.file.Sections); i++ {
		if p.file.Sections[i].Kind == types.SectionKindNull {
			p.file.Sections[i] = sec
			return i
		}
	}
	p.file.Sections = append(p.file.Sections, sec)
	return len(p.file.Sections) - 1
}

// removeSegmentsOfKind removes segments of kind outright.
func (p *Patcher) removeSegmentsOfKind(kind types.SegmentKind) {
	out := p.file.Segments[:0:0]
	for _, seg := range p.file.Segments {
		if seg.Kind != kind {
			out = append(out, seg)
		}
	}
	p.file.Segments = out
}

func (p *Patcher) writeAt(off int64, b []byte) error {
	if _, err := p.f.WriteAt(b, off); err != nil {
		return &elf.Error{Kind: elf.KindIO, Msg: "write", Err: err}
	}
	return nil
}

// SetInterpreter removes any existing .interp section / INTERP
// segment, writes a fresh one sized len(path)+1.
func (p *Patcher) SetInterpreter(path string) error {
	p.RemoveInterpreter()

	cstr := append([]byte(path), 0)
	size := uint64(len(cstr))

	a := p.allocator()
	addr, offset, err := a.AllocateSection(size, 1, types.SectionFlagAlloc)
	if err != nil {
		return err
	}
	if err := p.writeAt(int64(offset), cstr); err != nil {
		return err
	}

	nameOff := p.shstrtabTable().Insert(".interp")
	sec := types.Section{
		NameOffset: nameOff,
		Name:       ".interp",
		Kind:       types.SectionKindProgBits,
		Flags:      types.SectionFlagAlloc,
		Addr:       addr,
		Offset:     offset,
		Size:       size,
		AddrAlign:  1,
	}
	p.reuseOrAppendSection(sec)

	p.file.Segments = append(p.file.Segments, types.Segment{
		Kind:     types.SegmentKindInterp,
		Flags:    types.SegmentFlagRead,
		Offset:   offset,
		VAddr:    addr,
		PAddr:    addr,
		FileSize: size,
		MemSize:  size,
		Align:    1,
	})
	return nil
}

// RemoveInterpreter removes all .interp sections and INTERP segments,
// zeroing their file ranges.
func (p *Patcher) RemoveInterpreter() error {
	for i := range p.file.Sections {
		if p.file.Sections[i].Name == ".interp" {
			p.freeSection(i)
		}
	}
	p.removeSegmentsOfKind(types.SegmentKindInterp)
	return nil
}

// ReadInterpreter returns the current interpreter path, if any.
func (p *Patcher) ReadInterpreter() (string, error) {
	segs := p.file.SegmentsByKind(types.SegmentKindInterp)
	if len(segs) == 0 {
		return "", &elf.Error{Kind: elf.KindIO, Msg: "no INTERP segment"}
	}
	seg := segs[0]
	buf := make([]byte, seg.FileSize)
	if _, err := p.f.ReadAt(buf, int64(seg.Offset)); err != nil {
		return "", &elf.Error{Kind: elf.KindIO, Err: err}
	}
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), nil
		}
	}
	return string(buf), nil
}

// ReadDynamicTable parses the current DYNAMIC section into memory.
func (p *Patcher) ReadDynamicTable() (*types.DynamicTable, error) {
	sec := p.dynamicSection()
	if sec == nil {
		return &types.DynamicTable{Entries: []types.DynamicEntry{{Tag: types.DTNull}}}, nil
	}
	buf := p.readSectionBytes(sec)
	r := elf.NewReader(newByteReadSeeker(buf), p.file.Header.Class, p.file.Header.Order)
	return types.ReadDynamicTable(r, uint8(p.file.Header.Class))
}

// ReadDynamicStringTable parses .dynstr into memory.
func (p *Patcher) ReadDynamicStringTable() (*types.StringTable, error) {
	sec := p.file.SectionByName(".dynstr")
	if sec == nil {
		return types.NewStringTable(), nil
	}
	return types.ReadStringTable(p.readSectionBytes(sec)), nil
}

// ReadSection exposes a section's raw bytes by name.
func (p *Patcher) ReadSection(name string) (*types.Section, []byte, error) {
	sec := p.file.SectionByName(name)
	if sec == nil {
		return nil, nil, &elf.Error{Kind: elf.KindIO, Msg: "section not found: " + name}
	}
	return sec, p.readSectionBytes(sec), nil
}

func (p *Patcher) dynamicSection() *types.Section {
	return p.file.SectionByName(".dynamic")
}

// SetLibrarySearchPath rewrites RPATH/RUNPATH to value, reallocating
// .dynstr and .dynamic as needed. tag must be DTRpath or DTRunpath.
func (p *Patcher) SetLibrarySearchPath(tag types.DynamicTag, value string) error {
	dyn, err := p.ReadDynamicTable()
	if err != nil {
		return err
	}
	dynstr, err := p.ReadDynamicStringTable()
	if err != nil {
		return err
	}

	dyn.Remove(types.DTRpath)
	dyn.Remove(types.DTRunpath)

	strOff := dynstr.Insert(value)

	// Relocate .dynstr to a fresh address: writing in place could
	// overlap another section.
	dynstrBytes := dynstr.Bytes()
	a := p.allocator()
	strAddr, strFileOff, err := a.AllocateSection(uint64(len(dynstrBytes)), 1, types.SectionFlagAlloc)
	if err != nil {
		return err
	}
	if err := p.writeAt(int64(strFileOff), dynstrBytes); err != nil {
		return err
	}
	if oldSec := p.file.SectionByName(".dynstr"); oldSec != nil {
		for i := range p.file.Sections {
			if p.file.Sections[i].Name == ".dynstr" {
				p.freeSection(i)
			}
		}
	}
	nameOff := p.shstrtabTable().Insert(".dynstr")
	p.reuseOrAppendSection(types.Section{
		NameOffset: nameOff,
		Name:       ".dynstr",
		Kind:       types.SectionKindStrtab,
		Flags:      types.SectionFlagAlloc,
		Addr:       strAddr,
		Offset:     strFileOff,
		Size:       uint64(len(dynstrBytes)),
		AddrAlign:  1,
	})

	dyn.Set(types.DTStrtab, strAddr)
	dyn.Set(types.DTStrSz, uint64(len(dynstrBytes)))
	dyn.Set(tag, uint64(strOff))

	oldDynAddr := uint64(0)
	if oldDyn := p.dynamicSection(); oldDyn != nil {
		oldDynAddr = oldDyn.Addr
	}

	dynBuf := newByteWriteSeeker()
	w := elf.NewWriter(dynBuf, p.file.Header.Class, p.file.Header.Order)
	if err := dyn.Write(w, uint8(p.file.Header.Class)); err != nil {
		return err
	}
	dynBytes := dynBuf.Bytes()

	dynAddr, dynFileOff, err := a.AllocateSection(uint64(len(dynBytes)), 8, types.SectionFlagAlloc|types.SectionFlagWrite)
	if err != nil {
		return err
	}
	if err := p.writeAt(int64(dynFileOff), dynBytes); err != nil {
		return err
	}
	for i := range p.file.Sections {
		if p.file.Sections[i].Name == ".dynamic" {
			p.freeSection(i)
		}
	}
	dynNameOff := p.shstrtabTable().Insert(".dynamic")
	p.reuseOrAppendSection(types.Section{
		NameOffset: dynNameOff,
		Name:       ".dynamic",
		Kind:       types.SectionKindDynamic,
		Flags:      types.SectionFlagAlloc | types.SectionFlagWrite,
		Addr:       dynAddr,
		Offset:     dynFileOff,
		Size:       uint64(len(dynBytes)),
		Link:       uint32(sectionIndex(p.file, ".dynstr")),
		AddrAlign:  8,
		EntSize:    uint64(types.DynamicEntrySize64),
	})

	p.removeSegmentsOfKind(types.SegmentKindDynamic)
	p.file.Segments = append(p.file.Segments, types.Segment{
		Kind:     types.SegmentKindDynamic,
		Flags:    types.SegmentFlagRead | types.SegmentFlagWrite,
		Offset:   dynFileOff,
		VAddr:    dynAddr,
		PAddr:    dynAddr,
		FileSize: uint64(len(dynBytes)),
		MemSize:  uint64(len(dynBytes)),
		Align:    8,
	})

	// Because the dynamic table's virtual address may change, every
	// symbol table is scanned and any symbol whose address equals the
	// old dynamic-table address is updated (the "_DYNAMIC" symbol in
	// most toolchains).
	if oldDynAddr != 0 && oldDynAddr != dynAddr {
		p.retargetDynamicSymbol(oldDynAddr, dynAddr)
	}

	return nil
}

func (p *Patcher) retargetDynamicSymbol(oldAddr, newAddr uint64) {
	for _, name := range []string{".symtab", ".dynsym"} {
		sec := p.file.SectionByName(name)
		if sec == nil {
			continue
		}
		buf := p.readSectionBytes(sec)
		entSize := types.SymbolSize64
		if p.file.Header.Class == elf.Class32 {
			entSize = types.SymbolSize32
		}
		if entSize == 0 || int(sec.Size)%entSize != 0 {
			continue
		}
		changed := false
		count := int(sec.Size) / entSize
		rbuf := newByteReadSeeker(buf)
		r := elf.NewReader(rbuf, p.file.Header.Class, p.file.Header.Order)
		out := newByteWriteSeeker()
		w := elf.NewWriter(out, p.file.Header.Class, p.file.Header.Order)
		for i := 0; i < count; i++ {
			sym, err := types.ReadSymbol(r, uint8(p.file.Header.Class))
			if err != nil {
				return
			}
			if sym.Value == oldAddr {
				sym.Value = newAddr
				changed = true
			}
			if err := sym.Write(w, uint8(p.file.Header.Class)); err != nil {
				return
			}
		}
		if changed {
			p.writeAt(int64(sec.Offset), out.Bytes())
		}
	}
}

func sectionIndex(f *elf.File, name string) int {
	for i := range f.Sections {
		if f.Sections[i].Name == name {
			return i
		}
	}
	return 0
}

// RemoveDynamicTag strips every entry with tag from the dynamic table
// and rewrites the DYNAMIC section/segment in place, shrinking the
// in-file size while preserving surrounding layout.
func (p *Patcher) RemoveDynamicTag(tag types.DynamicTag) error {
	dyn, err := p.ReadDynamicTable()
	if err != nil {
		return err
	}
	dyn.Remove(tag)

	sec := p.dynamicSection()
	if sec == nil {
		return nil
	}
	buf := newByteWriteSeeker()
	w := elf.NewWriter(buf, p.file.Header.Class, p.file.Header.Order)
	if err := dyn.Write(w, uint8(p.file.Header.Class)); err != nil {
		return err
	}
	data := buf.Bytes()
	if err := p.writeAt(int64(sec.Offset), data); err != nil {
		return err
	}
	for i := range p.file.Sections {
		if p.file.Sections[i].Name == ".dynamic" {
			p.file.Sections[i].Size = uint64(len(data))
		}
	}
	for i := range p.file.Segments {
		if p.file.Segments[i].Kind == types.SegmentKindDynamic {
			p.file.Segments[i].FileSize = uint64(len(data))
			p.file.Segments[i].MemSize = uint64(len(data))
		}
	}
	return nil
}

// Finish rewrites the section header, then the program header, then the
// file header, against the side-file opened by Open, then renames
// it over the original path so the replacement is atomic: the original
// is left untouched unless every write above succeeds. It removes any
// existing PHDR segment and allocates a fresh one, sorts segments so
// PHDR comes first then by virtual address, and applies the overflow
// convention for >65535 segments or >=65280 sections before returning.
// On any error, the side-file is removed and the original is
// untouched.
func (p *Patcher) Finish() (out *os.File, err error) {
	defer func() {
		if err != nil {
			p.f.Close()
			os.Remove(p.tmpPath)
		}
	}()

	p.removeSegmentsOfKind(types.SegmentKindPhdr)

	if sec := p.file.SectionByName(".shstrtab"); sec != nil && p.shstrtab != nil && uint64(p.shstrtab.Len()) != sec.Size {
		off, err := p.allocator().AllocateFileSpace(uint64(p.shstrtab.Len()), 1)
		if err != nil {
			return nil, err
		}
		if err := p.writeAt(int64(off), p.shstrtab.Bytes()); err != nil {
			return nil, err
		}
		sec.Offset, sec.Size = off, uint64(p.shstrtab.Len())
	}

	entSize := types.SegmentSize64
	if p.file.Header.Class == elf.Class32 {
		entSize = types.SegmentSize32
	}
	// Reserve room for every existing segment plus the new LOAD that
	// will cover the table plus the PHDR entry itself.
	phdrSize := uint64(len(p.file.Segments)+2) * uint64(entSize)

	a := p.allocator()
	// AllocateSegment(kind != LOAD, ...) appends both the new LOAD that
	// carries the bytes and the logical PHDR bookkeeping entry.
	newLoad, err := a.AllocateSegment(types.SegmentKindPhdr, types.SegmentFlagRead, phdrSize, 8)
	if err != nil {
		return nil, err
	}
	phdrFileOff := newLoad.Offset

	sortSegmentsPhdrFirst(p.file.Segments)

	secEntSize := types.SectionSize64
	if p.file.Header.Class == elf.Class32 {
		secEntSize = types.SectionSize32
	}
	shOff, err := a.AllocateFileSpace(uint64(len(p.file.Sections))*uint64(secEntSize), 8)
	if err != nil {
		return nil, err
	}

	numSegments := len(p.file.Segments)
	numSections := len(p.file.Sections)
	shstrndx := sectionIndex(p.file, ".shstrtab")

	p.file.Header.PHOff = phdrFileOff
	p.file.Header.SHOff = shOff
	if numSegments > 0xffff {
		p.file.Header.PHNum = 0xffff
		if len(p.file.Sections) > 0 {
			p.file.Sections[0].Info = uint32(numSegments)
		}
	} else {
		p.file.Header.PHNum = uint16(numSegments)
	}
	if numSections >= 0xff00 {
		p.file.Header.SHNum = 0
		if len(p.file.Sections) > 0 {
			p.file.Sections[0].Size = uint64(numSections)
		}
	} else {
		p.file.Header.SHNum = uint16(numSections)
	}
	p.file.Header.SHStrNdx = uint16(shstrndx)

	// Write data sections (already written during edits), then section
	// header, then program header, then the ELF header.
	if len(p.file.Sections) > 0 {
		secBuf := newByteWriteSeeker()
		sw := elf.NewWriter(secBuf, p.file.Header.Class, p.file.Header.Order)
		for i := range p.file.Sections {
			if err := p.file.Sections[i].Write(sw, uint8(p.file.Header.Class)); err != nil {
				return nil, err
			}
		}
		if err := p.writeAt(int64(shOff), secBuf.Bytes()); err != nil {
			return nil, err
		}
	}

	phBuf := newByteWriteSeeker()
	pw := elf.NewWriter(phBuf, p.file.Header.Class, p.file.Header.Order)
	for i := range p.file.Segments {
		if err := p.file.Segments[i].Write(pw, uint8(p.file.Header.Class)); err != nil {
			return nil, err
		}
	}
	if err := p.writeAt(int64(phdrFileOff), phBuf.Bytes()); err != nil {
		return nil, err
	}

	hdrBuf := newByteWriteSeeker()
	hw := elf.NewWriter(hdrBuf, p.file.Header.Class, p.file.Header.Order)
	if err := p.file.Header.Write(hw); err != nil {
		return nil, err
	}
	if err := p.writeAt(0, hdrBuf.Bytes()); err != nil {
		return nil, err
	}

	if cerr := p.f.Close(); cerr != nil {
		return nil, &elf.Error{Kind: elf.KindIO, Err: cerr}
	}
	if rerr := os.Rename(p.tmpPath, p.path); rerr != nil {
		return nil, &elf.Error{Kind: elf.KindIO, Err: rerr}
	}
	final, oerr := os.OpenFile(p.path, os.O_RDWR, 0)
	if oerr != nil {
		return nil, &elf.Error{Kind: elf.KindIO, Err: oerr}
	}
	return final, nil
}

func sortSegmentsPhdrFirst(segs []types.Segment) {
	less := func(a, b *types.Segment) bool {
		if (a.Kind == types.SegmentKindPhdr) != (b.Kind == types.SegmentKindPhdr) {
			return a.Kind == types.SegmentKindPhdr
		}
		return a.VAddr < b.VAddr
	}
	for i := 1; i < len(segs); i++ {
		for j := i; j > 0 && less(&segs[j], &segs[j-1]); j-- {
			segs[j], segs[j-1] = segs[j-1], segs[j]
		}
	}
}

// SideFilePath returns the atomic-write side-file path for path: a
// dotfile named ".<name>.tmp" next to it.
func SideFilePath(path string) string {
	dir, name := filepath.Split(path)
	return filepath.Join(dir, "."+name+".tmp")
}
