package elf

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/appsworld/go-elf/types"
)

var elfMagic = [4]byte{0x7f, 'E', 'L', 'F'}

const (
	HeaderSize32 = 52
	HeaderSize64 = 64
)

// Header is the fixed-size ELF file header prefix.
type Header struct {
	Class      Class
	Order      ByteOrder
	OSABI      types.OSABI
	ABIVersion uint8
	Kind       types.FileKind
	Machine    types.Machine
	Flags      uint32
	Entry      uint64
	PHOff      uint64
	PHEntSize  uint16
	PHNum      uint16
	SHOff      uint64
	SHEntSize  uint16
	SHNum      uint16
	SHStrNdx   uint16
	EHSize     uint16
}

// ReadHeader decodes the ELF header from the start of stream, validating
// magic, class, byte order, and version before trusting any later field.
// It returns the decoded header and a *Reader
// positioned right after the header, ready to read program/section
// header tables.
func ReadHeader(stream io.ReadSeeker) (*Header, *Reader, error) {
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return nil, nil, wrapErr(KindIO, "seek", err)
	}
	bootstrap := NewReader(stream, Class64, binary.LittleEndian)
	ident, err := bootstrap.ReadRaw(16)
	if err != nil {
		return nil, nil, wrapErr(KindUnexpectedEOF, "reading e_ident", err)
	}
	if !bytes.Equal(ident[0:4], elfMagic[:]) {
		return nil, nil, ErrNotElf
	}

	var class Class
	switch ident[4] {
	case 1:
		class = Class32
	case 2:
		class = Class64
	default:
		return nil, nil, newErr(KindInvalidClass, "unrecognized EI_CLASS")
	}

	var order ByteOrder
	switch ident[5] {
	case 1:
		order = binary.LittleEndian
	case 2:
		order = binary.BigEndian
	default:
		return nil, nil, newErr(KindInvalidByteOrder, "unrecognized EI_DATA")
	}

	if ident[6] != 1 {
		return nil, nil, newErr(KindInvalidVersion, "unrecognized EI_VERSION")
	}

	r := NewReader(stream, class, order)
	if err := r.Seek(16); err != nil {
		return nil, nil, err
	}

	h := &Header{Class: class, Order: order, OSABI: types.OSABI(ident[7]), ABIVersion: ident[8]}

	kind, err := r.ReadU16()
	if err != nil {
		return nil, nil, err
	}
	h.Kind = types.FileKind(kind)

	machine, err := r.ReadU16()
	if err != nil {
		return nil, nil, err
	}
	h.Machine = types.Machine(machine)

	if _, err := r.ReadU32(); err != nil { // e_version, redundant with EI_VERSION
		return nil, nil, err
	}

	if h.Entry, err = r.ReadWord(); err != nil {
		return nil, nil, err
	}
	if h.PHOff, err = r.ReadWord(); err != nil {
		return nil, nil, err
	}
	if h.SHOff, err = r.ReadWord(); err != nil {
		return nil, nil, err
	}
	if h.Flags, err = r.ReadU32(); err != nil {
		return nil, nil, err
	}
	if h.EHSize, err = r.ReadU16(); err != nil {
		return nil, nil, err
	}
	if h.PHEntSize, err = r.ReadU16(); err != nil {
		return nil, nil, err
	}
	if h.PHNum, err = r.ReadU16(); err != nil {
		return nil, nil, err
	}
	if h.SHEntSize, err = r.ReadU16(); err != nil {
		return nil, nil, err
	}
	if h.SHNum, err = r.ReadU16(); err != nil {
		return nil, nil, err
	}
	if h.SHStrNdx, err = r.ReadU16(); err != nil {
		return nil, nil, err
	}

	wantEHSize := uint16(HeaderSize32)
	wantPHEntSize := uint16(32)
	wantSHEntSize := uint16(40)
	if class == Class64 {
		wantEHSize = HeaderSize64
		wantPHEntSize = 56
		wantSHEntSize = 64
	}
	if h.EHSize != wantEHSize {
		return nil, nil, newErr(KindInvalidHeaderLen, "")
	}
	if h.PHNum > 0 && h.PHEntSize != wantPHEntSize {
		return nil, nil, newErr(KindInvalidSegmentLen, "")
	}
	if h.SHNum > 0 && h.SHEntSize != wantSHEntSize {
		return nil, nil, newErr(KindInvalidSectionLen, "")
	}

	return h, r, nil
}

// Write encodes the header, including e_ident, to w.
func (h *Header) Write(w *Writer) error {
	ident := make([]byte, 16)
	copy(ident[0:4], elfMagic[:])
	if h.Class == Class32 {
		ident[4] = 1
	} else {
		ident[4] = 2
	}
	if h.Order == binary.BigEndian {
		ident[5] = 2
	} else {
		ident[5] = 1
	}
	ident[6] = 1
	ident[7] = byte(h.OSABI)
	ident[8] = h.ABIVersion

	if err := w.WriteRaw(ident); err != nil {
		return err
	}
	if err := w.WriteU16(uint16(h.Kind)); err != nil {
		return err
	}
	if err := w.WriteU16(uint16(h.Machine)); err != nil {
		return err
	}
	if err := w.WriteU32(1); err != nil { // e_version
		return err
	}
	if err := w.WriteWord(h.Entry); err != nil {
		return err
	}
	if err := w.WriteWord(h.PHOff); err != nil {
		return err
	}
	if err := w.WriteWord(h.SHOff); err != nil {
		return err
	}
	if err := w.WriteU32(h.Flags); err != nil {
		return err
	}
	ehsize := uint16(HeaderSize32)
	phentsize := uint16(32)
	shentsize := uint16(40)
	if h.Class == Class64 {
		ehsize = HeaderSize64
		phentsize = 56
		shentsize = 64
	}
	if err := w.WriteU16(ehsize); err != nil {
		return err
	}
	if err := w.WriteU16(phentsize); err != nil {
		return err
	}
	if err := w.WriteU16(h.PHNum); err != nil {
		return err
	}
	if err := w.WriteU16(shentsize); err != nil {
		return err
	}
	if err := w.WriteU16(h.SHNum); err != nil {
		return err
	}
	return w.WriteU16(h.SHStrNdx)
}
