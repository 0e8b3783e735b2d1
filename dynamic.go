package elf

import (
	"bytes"

	"github.com/appsworld/go-elf/types"
)

// DynamicTable decodes the file's .dynamic section and its companion
// .dynstr, returning (nil, nil, nil) when the file carries no dynamic
// section at all. Like Symbols, this reads through the backing reader
// rather than anything captured at parse time, so it requires a File
// obtained from Open or NewFile over a seekable, readable stream.
func (f *File) DynamicTable() (*types.DynamicTable, *types.StringTable, error) {
	dynSec := f.SectionByName(".dynamic")
	if dynSec == nil || dynSec.Size == 0 {
		return nil, nil, nil
	}
	if f.reader == nil {
		return nil, nil, &Error{Kind: KindIO, Msg: "file has no backing reader"}
	}

	raw := make([]byte, dynSec.Size)
	if _, err := f.reader.ReadAt(raw, int64(dynSec.Offset)); err != nil {
		return nil, nil, wrapErr(KindIO, "read dynamic table", err)
	}
	br := NewReader(bytes.NewReader(raw), f.Header.Class, f.Header.Order)
	dyn, err := types.ReadDynamicTable(br, uint8(f.Header.Class))
	if err != nil {
		return nil, nil, err
	}

	strtab := types.NewStringTable()
	if strSec := f.SectionByName(".dynstr"); strSec != nil && strSec.Size > 0 {
		sraw := make([]byte, strSec.Size)
		if _, err := f.reader.ReadAt(sraw, int64(strSec.Offset)); err != nil {
			return nil, nil, wrapErr(KindIO, "read dynamic string table", err)
		}
		strtab = types.ReadStringTable(sraw)
	}

	return dyn, strtab, nil
}
