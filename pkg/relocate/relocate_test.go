package relocate

import (
	"os"
	"path/filepath"
	"testing"

	elf "github.com/appsworld/go-elf"
	"github.com/appsworld/go-elf/types"
)

func TestClassifyKindExecutable(t *testing.T) {
	f := &elf.File{
		Segments: []types.Segment{{Kind: types.SegmentKindInterp}},
		Sections: []types.Section{{Name: ".dynamic", Kind: types.SectionKindDynamic}},
	}
	if got := ClassifyKind(f); got != KindExecutable {
		t.Fatalf("got %v, want KindExecutable", got)
	}
}

func TestClassifyKindLibrary(t *testing.T) {
	f := &elf.File{
		Sections: []types.Section{{Name: ".dynamic", Kind: types.SectionKindDynamic}},
	}
	if got := ClassifyKind(f); got != KindLibrary {
		t.Fatalf("got %v, want KindLibrary", got)
	}
}

func TestClassifyKindStatic(t *testing.T) {
	f := &elf.File{}
	if got := ClassifyKind(f); got != KindStatic {
		t.Fatalf("got %v, want KindStatic", got)
	}
}

func TestFileKindString(t *testing.T) {
	cases := map[FileKind]string{
		KindStatic:     "static",
		KindLibrary:    "library",
		KindExecutable: "executable",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", kind, got, want)
		}
	}
}

func TestAtomicCopyWritesAndRenamesIntoPlace(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "out")
	data := []byte("payload bytes")

	if err := atomicCopy(dst, data); err != nil {
		t.Fatalf("atomicCopy: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("got %q, want %q", got, data)
	}
	if _, err := os.Stat(dst + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("side file %q.tmp still exists after rename", dst)
	}
}

func TestAtomicCopyOverwritesExistingDestination(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "out")
	if err := os.WriteFile(dst, []byte("stale"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := atomicCopy(dst, []byte("fresh")); err != nil {
		t.Fatalf("atomicCopy: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "fresh" {
		t.Fatalf("got %q, want %q", got, "fresh")
	}
}
