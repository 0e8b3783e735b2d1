package types

import (
	"bytes"
	"strings"
)

// StringTable is a NUL-terminated-entries byte buffer: always begins
// and ends with a NUL; substring sharing is exploited on insertion
// when a suffix match exists.
type StringTable struct {
	buf []byte
}

// NewStringTable returns an empty table containing just the leading NUL.
func NewStringTable() *StringTable {
	return &StringTable{buf: []byte{0}}
}

// ReadStringTable wraps raw bytes read from a .strtab/.dynstr/.shstrtab
// section, normalizing so the buffer starts and ends with NUL while
// otherwise preserving the bytes verbatim.
func ReadStringTable(raw []byte) *StringTable {
	buf := append([]byte(nil), raw...)
	if len(buf) == 0 || buf[0] != 0 {
		buf = append([]byte{0}, buf...)
	}
	if buf[len(buf)-1] != 0 {
		buf = append(buf, 0)
	}
	return &StringTable{buf: buf}
}

// Bytes returns the raw buffer.
func (t *StringTable) Bytes() []byte { return t.buf }

// Len returns the buffer length.
func (t *StringTable) Len() int { return len(t.buf) }

// GetString reads the NUL-terminated string starting at off.
func (t *StringTable) GetString(off uint32) (string, error) {
	if int(off) >= len(t.buf) {
		return "", newErrCStr()
	}
	end := bytes.IndexByte(t.buf[off:], 0)
	if end == -1 {
		return "", newErrCStr()
	}
	return string(t.buf[off : int(off)+end]), nil
}

// GetOffset returns the offset of s if it already appears as a
// NUL-terminated entry (or suffix of one), and whether it was found.
func (t *StringTable) GetOffset(s string) (uint32, bool) {
	return t.findSuffixMatch(s)
}

// findSuffixMatch looks for s terminated by a NUL anywhere in the
// buffer: a whole entry, or the tail of a longer entry that happens to
// end in s. The preceding byte need not be a NUL — "so.6" reuses the
// tail of an already-present "libc.so.6" entry.
func (t *StringTable) findSuffixMatch(s string) (uint32, bool) {
	needle := []byte(s + "\x00")
	pos := bytes.Index(t.buf, needle)
	if pos == -1 {
		return 0, false
	}
	return uint32(pos), true
}

// Insert returns the offset of s, reusing an existing matching
// substring if present; otherwise it appends s plus a NUL and returns
// the new offset.
func (t *StringTable) Insert(s string) uint32 {
	if off, ok := t.findSuffixMatch(s); ok {
		return off
	}
	off := uint32(len(t.buf))
	t.buf = append(t.buf, []byte(s)...)
	t.buf = append(t.buf, 0)
	return off
}

// Strings returns every NUL-terminated entry in the table, in order,
// skipping the leading sentinel NUL.
func (t *StringTable) Strings() []string {
	var out []string
	parts := strings.Split(string(t.buf), "\x00")
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

type cstrError struct{}

func (cstrError) Error() string { return "missing NUL terminator" }

func newErrCStr() error { return cstrError{} }
