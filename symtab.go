package elf

import (
	"bytes"

	"github.com/appsworld/go-elf/types"
)

// Symbols decodes the file's static symbol table (.symtab/.strtab),
// falling back to the dynamic one (.dynsym/.dynstr) for stripped
// binaries, returning nil with no error if neither is present (spec
// §3.1, §6.1 "show -t symbols").
func (f *File) Symbols() ([]types.Symbol, error) {
	if f.reader == nil {
		return nil, &Error{Kind: KindIO, Msg: "file has no backing reader"}
	}
	symSec := f.SectionByName(".symtab")
	strSec := f.SectionByName(".strtab")
	if symSec == nil {
		symSec = f.SectionByName(".dynsym")
		strSec = f.SectionByName(".dynstr")
	}
	if symSec == nil || symSec.Size == 0 {
		return nil, nil
	}

	var strtab *types.StringTable
	if strSec != nil && strSec.Size > 0 {
		raw := make([]byte, strSec.Size)
		if _, err := f.reader.ReadAt(raw, int64(strSec.Offset)); err != nil {
			return nil, wrapErr(KindIO, "read string table", err)
		}
		strtab = types.ReadStringTable(raw)
	} else {
		strtab = types.NewStringTable()
	}

	raw := make([]byte, symSec.Size)
	if _, err := f.reader.ReadAt(raw, int64(symSec.Offset)); err != nil {
		return nil, wrapErr(KindIO, "read symbol table", err)
	}

	br := NewReader(bytes.NewReader(raw), f.Header.Class, f.Header.Order)
	entSize := int(types.SymbolSize32)
	if f.Header.Class == Class64 {
		entSize = types.SymbolSize64
	}
	count := len(raw) / entSize

	syms := make([]types.Symbol, 0, count)
	for i := 0; i < count; i++ {
		sym, err := types.ReadSymbol(br, uint8(f.Header.Class))
		if err != nil {
			return nil, err
		}
		if name, err := strtab.GetString(sym.NameOffset); err == nil {
			sym.Name = name
		}
		syms = append(syms, *sym)
	}
	return syms, nil
}
