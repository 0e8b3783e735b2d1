// Package relocate copies an executable and its transitive
// shared-library closure into a content-addressed directory
// (outDir/objects/<hash>) and patches each copy: an executable's
// interpreter is rewritten to the path it already names, and every
// non-static copy gets a RUNPATH of "$ORIGIN". Copies are named by hash
// only; no links by file name are created.
package relocate

import (
	"os"
	"path/filepath"

	elf "github.com/appsworld/go-elf"
	"github.com/appsworld/go-elf/internal/elflog"
	"github.com/appsworld/go-elf/pkg/patch"
	"github.com/appsworld/go-elf/pkg/resolve"
	"github.com/appsworld/go-elf/types"
)

// FileKind classifies a relocated file's role, driving which patch
// operations apply to it.
type FileKind int

const (
	// KindStatic has no interpreter and no .dynamic section.
	KindStatic FileKind = iota
	// KindLibrary has a .dynamic section but no interpreter.
	KindLibrary
	// KindExecutable has an interpreter.
	KindExecutable
)

func (k FileKind) String() string {
	switch k {
	case KindLibrary:
		return "library"
	case KindExecutable:
		return "executable"
	default:
		return "static"
	}
}

// ClassifyKind applies the classification rule: has an INTERP segment
// -> executable; else has a .dynamic section -> library; else
// statically linked. NEEDED entries are not read, so a file with a
// .dynamic section and no NEEDED entries is classed as a library.
func ClassifyKind(f *elf.File) FileKind {
	if len(f.SegmentsByKind(types.SegmentKindInterp)) > 0 {
		return KindExecutable
	}
	if f.SectionByName(".dynamic") != nil {
		return KindLibrary
	}
	return KindStatic
}

// Entry is one file placed into the relocated tree.
type Entry struct {
	SourcePath string
	Hash       string
	Kind       FileKind
	RelPath    string // path within outDir, e.g. "objects/<hash>"
}

// Manifest records every entry copied and the symlink plan built
// around them, returned to the CLI for --names-only and tree/table
// rendering.
type Manifest struct {
	Entries  []Entry
	Symlinks map[string]string // link path (within outDir) -> target
}

// Relocator drives the whole closure-resolve-copy-patch pipeline.
type Relocator struct {
	Resolver *resolve.Resolver
	PageSize uint64
}

// Relocate resolves the transitive dependency closure of rootFiles,
// copies each file into outDir/objects/<hash>, patches copies in
// place, and records a bin/<name> link for each executable or static
// file in Manifest.Symlinks. No per-dependency links are planned, and
// no link is created on disk.
func (r *Relocator) Relocate(rootFiles []string, outDir string) (*Manifest, error) {
	objectsDir := filepath.Join(outDir, "objects")
	if err := os.MkdirAll(objectsDir, 0o755); err != nil {
		return nil, &elf.Error{Kind: elf.KindIO, Err: err}
	}

	m := &Manifest{Symlinks: map[string]string{}}
	seen := map[string]string{} // source path -> hash, to avoid re-copying

	var queue []string
	queue = append(queue, rootFiles...)

	for len(queue) > 0 {
		src := queue[0]
		queue = queue[1:]
		if _, ok := seen[src]; ok {
			continue
		}

		data, err := os.ReadFile(src)
		if err != nil {
			return nil, &elf.Error{Kind: elf.KindIO, Err: err}
		}
		hash := Hash32(data)
		seen[src] = hash

		dstPath := filepath.Join(objectsDir, hash)
		if err := atomicCopy(dstPath, data); err != nil {
			return nil, err
		}

		ef, err := elf.Open(dstPath)
		if err != nil {
			return nil, err
		}
		kind := ClassifyKind(ef)
		class, order, machine := ef.Header.Class, ef.Header.Order, ef.Header.Machine
		ef.Close()

		entry := Entry{SourcePath: src, Hash: hash, Kind: kind, RelPath: filepath.Join("objects", hash)}
		m.Entries = append(m.Entries, entry)

		deps, err := r.Resolver.Resolve(src)
		if err != nil {
			return nil, err
		}

		p, err := patch.Open(dstPath)
		if err != nil {
			return nil, err
		}
		switch kind {
		case KindLibrary:
			if err := p.RemoveInterpreter(); err != nil {
				return nil, err
			}
		case KindExecutable:
			if deps.Interpreter != "" {
				if err := p.SetInterpreter(deps.Interpreter); err != nil {
					return nil, err
				}
			}
		}
		if kind != KindStatic {
			if err := p.SetLibrarySearchPath(types.DTRunpath, "$ORIGIN"); err != nil {
				return nil, err
			}
		}
		f, err := p.Finish()
		if err != nil {
			return nil, err
		}
		f.Close()

		if kind == KindExecutable || kind == KindStatic {
			linkPath := filepath.Join("bin", filepath.Base(src))
			m.Symlinks[linkPath] = entry.RelPath
		}

		searchDirs := append(append([]string{}, deps.SearchDirs...), r.Resolver.SearchDirs...)
		for _, name := range deps.Needed {
			target, err := resolve.FindNeeded(name, searchDirs, class, order, machine)
			if err != nil {
				elflog.Warn("dependency not resolved", "name", name, "dependent", src)
				return nil, &elf.FailedToResolve{Name: name, Dependent: src}
			}
			queue = append(queue, target)
		}

		elflog.Debug("relocated file", "src", src, "hash", hash, "kind", kind.String())
	}

	return m, nil
}

// atomicCopy writes data to a side-file next to dst, then renames it
// into place, matching the patcher's own write-then-rename discipline.
func atomicCopy(dst string, data []byte) error {
	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return &elf.Error{Kind: elf.KindIO, Err: err}
	}
	if _, err := out.Write(data); err != nil {
		out.Close()
		os.Remove(tmp)
		return &elf.Error{Kind: elf.KindIO, Err: err}
	}
	if err := out.Close(); err != nil {
		return &elf.Error{Kind: elf.KindIO, Err: err}
	}
	if err := os.Rename(tmp, dst); err != nil {
		return &elf.Error{Kind: elf.KindIO, Err: err}
	}
	return nil
}
