package types

// RelocInfo packs a symbol table index and relocation type, the same
// bitfield-with-accessors shape as SymbolInfo.
type RelocInfo uint64

func NewRelocInfo32(sym uint32, typ uint8) RelocInfo {
	return RelocInfo(uint64(sym)<<8 | uint64(typ))
}

func NewRelocInfo64(sym uint32, typ uint32) RelocInfo {
	return RelocInfo(uint64(sym)<<32 | uint64(typ))
}

func (i RelocInfo) Sym32() uint32 { return uint32(i >> 8) }
func (i RelocInfo) Type32() uint8 { return uint8(i) }
func (i RelocInfo) Sym64() uint32 { return uint32(i >> 32) }
func (i RelocInfo) Type64() uint32 { return uint32(i) }

// Rel is a relocation entry without an explicit addend.
type Rel struct {
	Offset uint64
	Info   RelocInfo
}

const (
	RelSize32 = 8
	RelSize64 = 16
)

func ReadRel(r WordReader, class uint8) (*Rel, error) {
	rel := &Rel{}
	var err error
	if rel.Offset, err = r.ReadWord(); err != nil {
		return nil, err
	}
	if class == 1 {
		v, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		rel.Info = RelocInfo(v)
		return rel, nil
	}
	v, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	rel.Info = RelocInfo(v)
	return rel, nil
}

func (rel *Rel) Write(w WordWriter, class uint8) error {
	if err := w.WriteWord(rel.Offset); err != nil {
		return err
	}
	if class == 1 {
		return w.WriteU32(uint32(rel.Info))
	}
	return w.WriteU64(uint64(rel.Info))
}

// Rela is a relocation entry with an explicit addend.
type Rela struct {
	Offset uint64
	Info   RelocInfo
	Addend int64
}

const (
	RelaSize32 = 12
	RelaSize64 = 24
)

func ReadRela(r WordReader, class uint8) (*Rela, error) {
	rela := &Rela{}
	var err error
	if rela.Offset, err = r.ReadWord(); err != nil {
		return nil, err
	}
	if class == 1 {
		v, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		rela.Info = RelocInfo(v)
	} else {
		v, err := r.ReadU64()
		if err != nil {
			return nil, err
		}
		rela.Info = RelocInfo(v)
	}
	if class == 1 {
		v, err := r.ReadI32()
		if err != nil {
			return nil, err
		}
		rela.Addend = int64(v)
	} else {
		if rela.Addend, err = r.ReadI64(); err != nil {
			return nil, err
		}
	}
	return rela, nil
}

func (rela *Rela) Write(w WordWriter, class uint8) error {
	if err := w.WriteWord(rela.Offset); err != nil {
		return err
	}
	if class == 1 {
		if err := w.WriteU32(uint32(rela.Info)); err != nil {
			return err
		}
		return w.WriteI32(int32(rela.Addend))
	}
	if err := w.WriteU64(uint64(rela.Info)); err != nil {
		return err
	}
	return w.WriteI64(rela.Addend)
}
