package types_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	elf "github.com/appsworld/go-elf"
	"github.com/appsworld/go-elf/types"
)

func TestDynamicTableRoundTrip(t *testing.T) {
	dt := &types.DynamicTable{Entries: []types.DynamicEntry{
		{Tag: types.DTNeeded, Value: 1},
		{Tag: types.DTNeeded, Value: 20},
		{Tag: types.DTStrtab, Value: 0x1000},
		{Tag: types.DTNull, Value: 0},
	}}

	var buf bytes.Buffer
	w := elf.NewWriter(seekWriter{&buf}, elf.Class64, binary.LittleEndian)
	if err := dt.Write(w, 2); err != nil {
		t.Fatalf("Write: %v", err)
	}

	r := elf.NewReader(bytes.NewReader(buf.Bytes()), elf.Class64, binary.LittleEndian)
	got, err := types.ReadDynamicTable(r, 2)
	if err != nil {
		t.Fatalf("ReadDynamicTable: %v", err)
	}
	if len(got.Entries) != 4 {
		t.Fatalf("got %d entries, want 4", len(got.Entries))
	}
	needed := got.GetAll(types.DTNeeded)
	if len(needed) != 2 || needed[0] != 1 || needed[1] != 20 {
		t.Fatalf("GetAll(DTNeeded) = %v", needed)
	}
}

func TestDynamicTableSetPreservesPosition(t *testing.T) {
	dt := &types.DynamicTable{Entries: []types.DynamicEntry{
		{Tag: types.DTNeeded, Value: 1},
		{Tag: types.DTRpath, Value: 2},
		{Tag: types.DTNeeded, Value: 3},
		{Tag: types.DTNull},
	}}
	dt.Set(types.DTRpath, 99)
	if len(dt.Entries) != 4 {
		t.Fatalf("got %d entries, want 4 (duplicates collapsed)", len(dt.Entries))
	}
	if dt.Entries[1].Tag != types.DTRpath || dt.Entries[1].Value != 99 {
		t.Fatalf("RPATH entry not updated in place: %+v", dt.Entries[1])
	}

	v, ok := dt.Get(types.DTRpath)
	if !ok || v != 99 {
		t.Fatalf("Get(DTRpath) = %d, %v", v, ok)
	}
}

func TestDynamicTableSetInsertsBeforeNull(t *testing.T) {
	dt := &types.DynamicTable{Entries: []types.DynamicEntry{
		{Tag: types.DTNeeded, Value: 1},
		{Tag: types.DTNull},
	}}
	dt.Set(types.DTRunpath, 5)
	if len(dt.Entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(dt.Entries))
	}
	if dt.Entries[len(dt.Entries)-1].Tag != types.DTNull {
		t.Fatalf("NULL entry no longer last: %+v", dt.Entries)
	}
}

func TestDynamicTableRemove(t *testing.T) {
	dt := &types.DynamicTable{Entries: []types.DynamicEntry{
		{Tag: types.DTRpath, Value: 1},
		{Tag: types.DTNeeded, Value: 2},
		{Tag: types.DTNull},
	}}
	dt.Remove(types.DTRpath)
	if _, ok := dt.Get(types.DTRpath); ok {
		t.Fatal("DTRpath still present after Remove")
	}
	if len(dt.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(dt.Entries))
	}
}

// seekWriter adapts a *bytes.Buffer (append-only) to io.WriteSeeker for
// straight-line sequential writes, which is all these codec tests do.
type seekWriter struct{ buf *bytes.Buffer }

func (s seekWriter) Write(p []byte) (int, error) { return s.buf.Write(p) }
func (s seekWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(s.buf.Len()), nil
}
