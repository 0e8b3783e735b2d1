// Package resolve implements the dependency resolver: turning one ELF
// file's DT_NEEDED/DT_RPATH/DT_RUNPATH entries into the ordered list of
// search directories and resolved paths the dynamic loader would have
// used.
package resolve

import (
	"encoding/binary"
	"os"
	"path/filepath"

	elf "github.com/appsworld/go-elf"
	"github.com/appsworld/go-elf/internal/elflog"
	"github.com/appsworld/go-elf/types"
)

// Dependencies is the result of resolving one file's dynamic section.
type Dependencies struct {
	Needed      []string
	Interpreter string
	// SearchDirs is the dependent's own RUNPATH-then-RPATH directory
	// list, tokens already interpolated against its own directory. It
	// takes precedence over any externally-supplied search directories.
	SearchDirs []string
}

// Resolver walks NEEDED entries against a fixed list of search
// directories, honoring a file's own RPATH/RUNPATH first.
type Resolver struct {
	SearchDirs []string
	LibHint    string
	Platform   string
	Root       string
}

// Resolve reads path's dynamic section and interpreter, returning the
// NEEDED list and the file's own RUNPATH-then-RPATH search directories,
// with tokens interpolated against path's directory.
func (r *Resolver) Resolve(path string) (*Dependencies, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &elf.Error{Kind: elf.KindIO, Err: err}
	}
	defer f.Close()

	ef, err := elf.NewFile(f)
	if err != nil {
		return nil, err
	}

	deps := &Dependencies{}

	if interp := ef.SegmentsByKind(types.SegmentKindInterp); len(interp) > 0 {
		buf := make([]byte, interp[0].FileSize)
		if _, err := f.ReadAt(buf, int64(interp[0].Offset)); err == nil {
			deps.Interpreter = cstr(buf)
		}
	}

	dynSec := ef.SectionByName(".dynamic")
	if dynSec == nil {
		return deps, nil
	}
	dynBuf := make([]byte, dynSec.Size)
	if _, err := f.ReadAt(dynBuf, int64(dynSec.Offset)); err != nil {
		return nil, &elf.Error{Kind: elf.KindIO, Err: err}
	}
	dynReader := elf.NewReader(newSliceReader(dynBuf), ef.Header.Class, ef.Header.Order)
	dyn, err := types.ReadDynamicTable(dynReader, uint8(ef.Header.Class))
	if err != nil {
		return nil, err
	}

	strSec := ef.SectionByName(".dynstr")
	var strtab *types.StringTable
	if strSec != nil {
		strBuf := make([]byte, strSec.Size)
		if _, err := f.ReadAt(strBuf, int64(strSec.Offset)); err == nil {
			strtab = types.ReadStringTable(strBuf)
		}
	}
	if strtab == nil {
		strtab = types.NewStringTable()
	}

	for _, off := range dyn.GetAll(types.DTNeeded) {
		if name, err := strtab.GetString(uint32(off)); err == nil {
			deps.Needed = append(deps.Needed, name)
		}
	}

	if _, hasRpath := dyn.Get(types.DTRpath); hasRpath {
		if _, hasRunpath := dyn.Get(types.DTRunpath); hasRunpath {
			elflog.Debug("both RPATH and RUNPATH present, using RUNPATH then RPATH search order",
				"file", path)
		}
	}

	deps.SearchDirs = SearchOrder(dyn, strtab, filepath.Dir(path), ef.Header.Class, ef.Header.Machine)

	return deps, nil
}

// ClosureEntry describes one file reached while walking a dependency
// closure: its own NEEDED list and interpreter, without any copying or
// patching — the "deps" subcommand's read-only view of what "relocate"
// would otherwise copy.
type ClosureEntry struct {
	Path        string
	Interpreter string
	Needed      []string
}

// Closure walks the transitive NEEDED graph of roots using dirs as the
// search path, returning one entry per unique file reached in
// breadth-first order starting with the roots themselves.
func (r *Resolver) Closure(roots, dirs []string) ([]ClosureEntry, error) {
	seen := map[string]bool{}
	queue := append([]string{}, roots...)
	var entries []ClosureEntry

	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]
		if seen[path] {
			continue
		}
		seen[path] = true

		deps, err := r.Resolve(path)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ClosureEntry{Path: path, Interpreter: deps.Interpreter, Needed: deps.Needed})

		f, err := os.Open(path)
		if err != nil {
			return nil, &elf.Error{Kind: elf.KindIO, Err: err}
		}
		ef, err := elf.NewFile(f)
		f.Close()
		if err != nil {
			return nil, err
		}

		searchDirs := append(append([]string{}, deps.SearchDirs...), dirs...)
		for _, name := range deps.Needed {
			target, err := FindNeeded(name, searchDirs, ef.Header.Class, ef.Header.Order, ef.Header.Machine)
			if err != nil {
				return nil, &elf.FailedToResolve{Name: name, Dependent: path}
			}
			queue = append(queue, target)
		}
	}
	return entries, nil
}

// SearchOrder returns the ordered RUNPATH-then-RPATH directory list for
// a dependent, tokens already interpolated against dependentDir. When
// both are present, RUNPATH entries come first and RPATH entries are
// still appended; real dynamic loaders ignore RPATH when RUNPATH is
// present, so this ordering departs from them.
func SearchOrder(dyn *types.DynamicTable, strtab *types.StringTable, dependentDir string, class elf.Class, machine types.Machine) []string {
	var dirs []string
	if off, ok := dyn.Get(types.DTRunpath); ok {
		if raw, err := strtab.GetString(uint32(off)); err == nil {
			for _, d := range SplitPathList(raw) {
				dirs = append(dirs, InterpolateTokens(d, dependentDir, class, machine))
			}
		}
	}
	if off, ok := dyn.Get(types.DTRpath); ok {
		if raw, err := strtab.GetString(uint32(off)); err == nil {
			for _, d := range SplitPathList(raw) {
				dirs = append(dirs, InterpolateTokens(d, dependentDir, class, machine))
			}
		}
	}
	return dirs
}

// FindNeeded walks dirs in order looking for a regular file named name
// that parses as an ELF file of the matching class/order/machine,
// silently skipping entries that don't exist, aren't readable, or
// aren't ELF at all.
func FindNeeded(name string, dirs []string, class elf.Class, order binary.ByteOrder, machine types.Machine) (string, error) {
	for _, dir := range dirs {
		candidate := filepath.Join(dir, name)
		f, err := os.Open(candidate)
		if err != nil {
			continue
		}
		ef, err := elf.NewFile(f)
		f.Close()
		if err != nil {
			continue
		}
		if ef.Header.Class != class || ef.Header.Order != order || ef.Header.Machine != machine {
			continue
		}
		return candidate, nil
	}
	return "", &elf.FailedToResolve{Name: name}
}

func cstr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
