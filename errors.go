package elf

import (
	"errors"
	"fmt"
)

// ErrorKind is a closed taxonomy of failure modes distinguishable by
// callers, mirroring the way types.IntName gives a closed enum a
// human string with a numeric fallback.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotElf
	KindInvalidClass
	KindInvalidByteOrder
	KindInvalidVersion
	KindInvalidHeaderLen
	KindInvalidSegmentLen
	KindInvalidSectionLen
	KindInvalidFileKind
	KindInvalidSegmentKind
	KindInvalidSectionKind
	KindInvalidDynamicEntryKind
	KindInvalidFirstSectionKind
	KindTooManySections
	KindInvalidEntryPoint
	KindInvalidProgramHeaderSegment
	KindMultipleSegments
	KindNotPreceedingLoadSegment
	KindMisalignedSegment
	KindMisalignedSection
	KindInvalidAlign
	KindSegmentsOverlap
	KindSegmentsNotSorted
	KindSectionNotCovered
	KindTooBig
	KindTooBigWord
	KindTooBigSignedWord
	KindOverlap
	KindSectionAlloc
	KindSegmentAlloc
	KindFileSpaceAlloc
	KindCStr
	KindUnexpectedEOF
	KindIO
	KindFailedToResolve
	KindInvalidDynamicTable
)

var errorKindNames = map[ErrorKind]string{
	KindUnknown:                     "unknown",
	KindNotElf:                      "not an ELF file",
	KindInvalidClass:                "invalid class",
	KindInvalidByteOrder:            "invalid byte order",
	KindInvalidVersion:              "invalid version",
	KindInvalidHeaderLen:            "invalid header length",
	KindInvalidSegmentLen:           "invalid segment entry length",
	KindInvalidSectionLen:           "invalid section entry length",
	KindInvalidFileKind:             "invalid file kind",
	KindInvalidSegmentKind:          "invalid segment kind",
	KindInvalidSectionKind:          "invalid section kind",
	KindInvalidDynamicEntryKind:     "invalid dynamic entry kind",
	KindInvalidFirstSectionKind:     "first section is not NULL",
	KindTooManySections:             "too many sections",
	KindInvalidEntryPoint:           "entry point not covered by any LOAD segment",
	KindInvalidProgramHeaderSegment: "invalid PHDR segment",
	KindMultipleSegments:            "multiple segments of a kind that permits only one",
	KindNotPreceedingLoadSegment:    "PHDR segment does not precede a LOAD segment",
	KindMisalignedSegment:           "misaligned segment",
	KindMisalignedSection:           "misaligned section",
	KindInvalidAlign:                "invalid alignment",
	KindSegmentsOverlap:             "segments overlap",
	KindSegmentsNotSorted:           "segments are not sorted by virtual address",
	KindSectionNotCovered:           "ALLOC section not covered by any LOAD segment",
	KindTooBig:                      "value too big for class",
	KindTooBigWord:                  "word value too big for class",
	KindTooBigSignedWord:            "signed word value too big for class",
	KindOverlap:                     "program header and section header overlap",
	KindSectionAlloc:                "could not allocate section",
	KindSegmentAlloc:                "could not allocate segment",
	KindFileSpaceAlloc:              "could not allocate file space",
	KindCStr:                        "missing NUL terminator",
	KindUnexpectedEOF:               "unexpected end of file",
	KindIO:                          "io error",
	KindFailedToResolve:             "failed to resolve dependency",
	KindInvalidDynamicTable:         "invalid dynamic table",
}

func (k ErrorKind) String() string {
	if s, ok := errorKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is the error type returned by every decoding, validation, and
// patching operation in this module. It carries a closed Kind so
// callers (notably the resolver, which must silently skip NotElf
// candidates) can branch on failure mode without string matching.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Kind, e.Err)
		}
		return e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target shares the same Kind, so callers can write
// errors.Is(err, &elf.Error{Kind: elf.KindNotElf}).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

func newErr(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func wrapErr(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// ErrNotElf is the sentinel the resolver checks for to silently skip
// candidate files whose magic bytes don't match.
var ErrNotElf = &Error{Kind: KindNotElf}

// FailedToResolve is the fatal error carrying the unresolved NEEDED
// name and the dependent file that required it.
type FailedToResolve struct {
	Name      string
	Dependent string
}

func (e *FailedToResolve) Error() string {
	return fmt.Sprintf("failed to resolve %q needed by %q", e.Name, e.Dependent)
}
