package types

import "fmt"

// SymbolBinding is the high nibble of the symbol st_info byte.
type SymbolBinding uint8

const (
	BindLocal  SymbolBinding = 0
	BindGlobal SymbolBinding = 1
	BindWeak   SymbolBinding = 2
)

func (b SymbolBinding) String() string {
	switch b {
	case BindLocal:
		return "LOCAL"
	case BindGlobal:
		return "GLOBAL"
	case BindWeak:
		return "WEAK"
	default:
		return fmt.Sprintf("0x%x", uint8(b))
	}
}

// SymbolType is the low nibble of the symbol st_info byte.
type SymbolType uint8

const (
	SymNoType   SymbolType = 0
	SymObject   SymbolType = 1
	SymFunc     SymbolType = 2
	SymSection  SymbolType = 3
	SymFile     SymbolType = 4
	SymCommon   SymbolType = 5
	SymTLS      SymbolType = 6
	SymGNUIFunc SymbolType = 10
)

func (t SymbolType) String() string {
	switch t {
	case SymNoType:
		return "NOTYPE"
	case SymObject:
		return "OBJECT"
	case SymFunc:
		return "FUNC"
	case SymSection:
		return "SECTION"
	case SymFile:
		return "FILE"
	case SymCommon:
		return "COMMON"
	case SymTLS:
		return "TLS"
	case SymGNUIFunc:
		return "GNU_IFUNC"
	default:
		return fmt.Sprintf("0x%x", uint8(t))
	}
}

// SymbolInfo packs binding (high nibble) and type (low nibble), exactly
// as ELF32_ST_BIND/ELF32_ST_TYPE, exposed through accessor methods
// rather than bit-twiddling at call sites.
type SymbolInfo uint8

func NewSymbolInfo(bind SymbolBinding, typ SymbolType) SymbolInfo {
	return SymbolInfo(uint8(bind)<<4 | uint8(typ)&0xf)
}

func (i SymbolInfo) Binding() SymbolBinding { return SymbolBinding(i >> 4) }
func (i SymbolInfo) Type() SymbolType       { return SymbolType(i & 0xf) }

func (i SymbolInfo) String() string {
	return fmt.Sprintf("%s %s", i.Binding(), i.Type())
}

// SymbolVisibility is the low 2 bits of the st_other byte.
type SymbolVisibility uint8

const (
	VisibilityDefault   SymbolVisibility = 0
	VisibilityInternal  SymbolVisibility = 1
	VisibilityHidden    SymbolVisibility = 2
	VisibilityProtected SymbolVisibility = 3
)

func (v SymbolVisibility) String() string {
	switch v & 0x3 {
	case VisibilityDefault:
		return "DEFAULT"
	case VisibilityInternal:
		return "INTERNAL"
	case VisibilityHidden:
		return "HIDDEN"
	case VisibilityProtected:
		return "PROTECTED"
	}
	return "?"
}

// Symbol is one symbol-table entry.
type Symbol struct {
	NameOffset   uint32
	Name         string
	Info         SymbolInfo
	Other        SymbolVisibility
	SectionIndex uint16
	Value        uint64
	Size         uint64
}

const (
	SymbolSize32 = 16
	SymbolSize64 = 24
)

// ReadSymbol decodes one symbol-table entry. ELF32 orders
// (name,value,size,info,other,shndx); ELF64 orders
// (name,info,other,shndx,value,size).
func ReadSymbol(r WordReader, class uint8) (*Symbol, error) {
	s := &Symbol{}
	var err error
	if s.NameOffset, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if class == 1 {
		v, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		s.Value = uint64(v)
		sz, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		s.Size = uint64(sz)
		info, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		s.Info = SymbolInfo(info)
		other, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		s.Other = SymbolVisibility(other)
		if s.SectionIndex, err = r.ReadU16(); err != nil {
			return nil, err
		}
		return s, nil
	}

	info, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	s.Info = SymbolInfo(info)
	other, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	s.Other = SymbolVisibility(other)
	if s.SectionIndex, err = r.ReadU16(); err != nil {
		return nil, err
	}
	if s.Value, err = r.ReadU64(); err != nil {
		return nil, err
	}
	if s.Size, err = r.ReadU64(); err != nil {
		return nil, err
	}
	return s, nil
}

// Write encodes the symbol in the layout matching class.
func (s *Symbol) Write(w WordWriter, class uint8) error {
	if err := w.WriteU32(s.NameOffset); err != nil {
		return err
	}
	if class == 1 {
		if err := w.WriteU32(uint32(s.Value)); err != nil {
			return err
		}
		if err := w.WriteU32(uint32(s.Size)); err != nil {
			return err
		}
		if err := w.WriteU8(uint8(s.Info)); err != nil {
			return err
		}
		if err := w.WriteU8(uint8(s.Other)); err != nil {
			return err
		}
		return w.WriteU16(s.SectionIndex)
	}
	if err := w.WriteU8(uint8(s.Info)); err != nil {
		return err
	}
	if err := w.WriteU8(uint8(s.Other)); err != nil {
		return err
	}
	if err := w.WriteU16(s.SectionIndex); err != nil {
		return err
	}
	if err := w.WriteU64(s.Value); err != nil {
		return err
	}
	return w.WriteU64(s.Size)
}
