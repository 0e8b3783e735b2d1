package types

import "fmt"

// SegmentKind is the program-header p_type field: a closed set of
// recognized values plus an "other" variant carrying the raw number.
type SegmentKind uint32

const (
	SegmentKindNull        SegmentKind = 0
	SegmentKindLoad        SegmentKind = 1
	SegmentKindDynamic     SegmentKind = 2
	SegmentKindInterp      SegmentKind = 3
	SegmentKindNote        SegmentKind = 4
	SegmentKindShlib       SegmentKind = 5
	SegmentKindPhdr        SegmentKind = 6
	SegmentKindTLS         SegmentKind = 7
	SegmentKindGNUEHFrame  SegmentKind = 0x6474e550
	SegmentKindGNUStack    SegmentKind = 0x6474e551
	SegmentKindGNURelro    SegmentKind = 0x6474e552
	SegmentKindGNUProperty SegmentKind = 0x6474e553
)

var segmentKindNames = []intName{
	{uint32(SegmentKindNull), "NULL"},
	{uint32(SegmentKindLoad), "LOAD"},
	{uint32(SegmentKindDynamic), "DYNAMIC"},
	{uint32(SegmentKindInterp), "INTERP"},
	{uint32(SegmentKindNote), "NOTE"},
	{uint32(SegmentKindShlib), "SHLIB"},
	{uint32(SegmentKindPhdr), "PHDR"},
	{uint32(SegmentKindTLS), "TLS"},
	{uint32(SegmentKindGNUEHFrame), "GNU_EH_FRAME"},
	{uint32(SegmentKindGNUStack), "GNU_STACK"},
	{uint32(SegmentKindGNURelro), "GNU_RELRO"},
	{uint32(SegmentKindGNUProperty), "GNU_PROPERTY"},
}

func (k SegmentKind) String() string { return stringName(uint32(k), segmentKindNames, false) }

// Recognized reports whether k is one of the standard kinds.
func (k SegmentKind) Recognized() bool {
	for _, n := range segmentKindNames {
		if n.I == uint32(k) {
			return true
		}
	}
	return false
}

// Segment is a program-header entry.
type Segment struct {
	Kind     SegmentKind
	Flags    SegmentFlags
	Offset   uint64
	VAddr    uint64
	PAddr    uint64
	FileSize uint64
	MemSize  uint64
	Align    uint64
}

const (
	SegmentSize32 = 32
	SegmentSize64 = 56
)

// ReadSegment decodes one program-header entry. Field order on disk
// differs between ELF32 (type,offset,vaddr,paddr,filesz,memsz,flags,
// align) and ELF64 (type,flags,offset,vaddr,paddr,filesz,memsz,align).
func ReadSegment(r WordReader, class uint8) (*Segment, error) {
	s := &Segment{}
	kind, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	s.Kind = SegmentKind(kind)

	if class == 1 { // ELF32
		if s.Offset, err = r.ReadWord(); err != nil {
			return nil, err
		}
		if s.VAddr, err = r.ReadWord(); err != nil {
			return nil, err
		}
		if s.PAddr, err = r.ReadWord(); err != nil {
			return nil, err
		}
		if s.FileSize, err = r.ReadWord(); err != nil {
			return nil, err
		}
		if s.MemSize, err = r.ReadWord(); err != nil {
			return nil, err
		}
		flags, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		s.Flags = SegmentFlags(flags)
		if s.Align, err = r.ReadWord(); err != nil {
			return nil, err
		}
		return s, nil
	}

	flags, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	s.Flags = SegmentFlags(flags)
	if s.Offset, err = r.ReadWord(); err != nil {
		return nil, err
	}
	if s.VAddr, err = r.ReadWord(); err != nil {
		return nil, err
	}
	if s.PAddr, err = r.ReadWord(); err != nil {
		return nil, err
	}
	if s.FileSize, err = r.ReadWord(); err != nil {
		return nil, err
	}
	if s.MemSize, err = r.ReadWord(); err != nil {
		return nil, err
	}
	if s.Align, err = r.ReadWord(); err != nil {
		return nil, err
	}
	return s, nil
}

// Write encodes the segment in the layout matching class.
func (s *Segment) Write(w WordWriter, class uint8) error {
	if err := w.WriteU32(uint32(s.Kind)); err != nil {
		return err
	}
	if class == 1 {
		if err := w.WriteWord(s.Offset); err != nil {
			return err
		}
		if err := w.WriteWord(s.VAddr); err != nil {
			return err
		}
		if err := w.WriteWord(s.PAddr); err != nil {
			return err
		}
		if err := w.WriteWord(s.FileSize); err != nil {
			return err
		}
		if err := w.WriteWord(s.MemSize); err != nil {
			return err
		}
		if err := w.WriteU32(uint32(s.Flags)); err != nil {
			return err
		}
		return w.WriteWord(s.Align)
	}

	if err := w.WriteU32(uint32(s.Flags)); err != nil {
		return err
	}
	if err := w.WriteWord(s.Offset); err != nil {
		return err
	}
	if err := w.WriteWord(s.VAddr); err != nil {
		return err
	}
	if err := w.WriteWord(s.PAddr); err != nil {
		return err
	}
	if err := w.WriteWord(s.FileSize); err != nil {
		return err
	}
	if err := w.WriteWord(s.MemSize); err != nil {
		return err
	}
	return w.WriteWord(s.Align)
}

// VEnd returns the exclusive end of the segment's virtual range.
func (s *Segment) VEnd() uint64 { return s.VAddr + s.MemSize }

// FileEnd returns the exclusive end of the segment's in-file range.
func (s *Segment) FileEnd() uint64 { return s.Offset + s.FileSize }

func (s *Segment) String() string {
	return fmt.Sprintf("%-8s %s off=0x%x vaddr=0x%x filesz=0x%x memsz=0x%x align=0x%x",
		s.Kind, s.Flags, s.Offset, s.VAddr, s.FileSize, s.MemSize, s.Align)
}
