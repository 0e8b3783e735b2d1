package types_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	elf "github.com/appsworld/go-elf"
	"github.com/appsworld/go-elf/types"
)

func TestSymbolRoundTrip64(t *testing.T) {
	s := &types.Symbol{
		NameOffset:   5,
		Info:         types.NewSymbolInfo(types.BindGlobal, types.SymFunc),
		Other:        types.VisibilityDefault,
		SectionIndex: 1,
		Value:        0x401050,
		Size:         64,
	}
	var buf bytes.Buffer
	w := elf.NewWriter(seekWriter{&buf}, elf.Class64, binary.LittleEndian)
	if err := s.Write(w, 2); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.Len() != types.SymbolSize64 {
		t.Fatalf("wrote %d bytes, want %d", buf.Len(), types.SymbolSize64)
	}
	r := elf.NewReader(bytes.NewReader(buf.Bytes()), elf.Class64, binary.LittleEndian)
	got, err := types.ReadSymbol(r, 2)
	if err != nil {
		t.Fatalf("ReadSymbol: %v", err)
	}
	got.Name = s.Name
	if *got != *s {
		t.Fatalf("got %+v, want %+v", got, s)
	}
	if got.Info.Binding() != types.BindGlobal || got.Info.Type() != types.SymFunc {
		t.Fatalf("binding/type not preserved: %s", got.Info)
	}
}

func TestSymbolRoundTrip32(t *testing.T) {
	s := &types.Symbol{
		NameOffset:   1,
		Info:         types.NewSymbolInfo(types.BindLocal, types.SymObject),
		Other:        types.VisibilityHidden,
		SectionIndex: 3,
		Value:        0x8100,
		Size:         4,
	}
	var buf bytes.Buffer
	w := elf.NewWriter(seekWriter{&buf}, elf.Class32, binary.LittleEndian)
	if err := s.Write(w, 1); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.Len() != types.SymbolSize32 {
		t.Fatalf("wrote %d bytes, want %d", buf.Len(), types.SymbolSize32)
	}
	r := elf.NewReader(bytes.NewReader(buf.Bytes()), elf.Class32, binary.LittleEndian)
	got, err := types.ReadSymbol(r, 1)
	if err != nil {
		t.Fatalf("ReadSymbol: %v", err)
	}
	got.Name = s.Name
	if *got != *s {
		t.Fatalf("got %+v, want %+v", got, s)
	}
}

func TestRelRoundTrip(t *testing.T) {
	rel := &types.Rel{Offset: 0x2000, Info: types.NewRelocInfo64(7, 8)}
	var buf bytes.Buffer
	w := elf.NewWriter(seekWriter{&buf}, elf.Class64, binary.LittleEndian)
	if err := rel.Write(w, 2); err != nil {
		t.Fatalf("Write: %v", err)
	}
	r := elf.NewReader(bytes.NewReader(buf.Bytes()), elf.Class64, binary.LittleEndian)
	got, err := types.ReadRel(r, 2)
	if err != nil {
		t.Fatalf("ReadRel: %v", err)
	}
	if *got != *rel {
		t.Fatalf("got %+v, want %+v", got, rel)
	}
	if got.Info.Sym64() != 7 || got.Info.Type64() != 8 {
		t.Fatalf("sym/type not preserved: sym=%d type=%d", got.Info.Sym64(), got.Info.Type64())
	}
}

func TestRelaRoundTripWithNegativeAddend(t *testing.T) {
	rela := &types.Rela{Offset: 0x3000, Info: types.NewRelocInfo64(2, 1), Addend: -8}
	var buf bytes.Buffer
	w := elf.NewWriter(seekWriter{&buf}, elf.Class64, binary.LittleEndian)
	if err := rela.Write(w, 2); err != nil {
		t.Fatalf("Write: %v", err)
	}
	r := elf.NewReader(bytes.NewReader(buf.Bytes()), elf.Class64, binary.LittleEndian)
	got, err := types.ReadRela(r, 2)
	if err != nil {
		t.Fatalf("ReadRela: %v", err)
	}
	if *got != *rela {
		t.Fatalf("got %+v, want %+v", got, rela)
	}
}

func TestRelaRoundTrip32(t *testing.T) {
	rela := &types.Rela{Offset: 0x1234, Info: types.NewRelocInfo32(3, 1), Addend: 16}
	var buf bytes.Buffer
	w := elf.NewWriter(seekWriter{&buf}, elf.Class32, binary.LittleEndian)
	if err := rela.Write(w, 1); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.Len() != types.RelaSize32 {
		t.Fatalf("wrote %d bytes, want %d", buf.Len(), types.RelaSize32)
	}
	r := elf.NewReader(bytes.NewReader(buf.Bytes()), elf.Class32, binary.LittleEndian)
	got, err := types.ReadRela(r, 1)
	if err != nil {
		t.Fatalf("ReadRela: %v", err)
	}
	if *got != *rela {
		t.Fatalf("got %+v, want %+v", got, rela)
	}
}
