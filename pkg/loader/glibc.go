package loader

import (
	"bufio"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	elf "github.com/appsworld/go-elf"
)

// maxIncludeDepth bounds ld.so.conf "include" recursion, matching the
// defensive cap the original glibc/musl resolver sources carry against
// a malformed or cyclic config (original_source/dl/src/glibc.rs).
const maxIncludeDepth = 64

// GlibcProvider models glibc's ld.so.conf-driven search path (spec
// §4.F/§6.2).
type GlibcProvider struct {
	Root                string
	HardCodedSearchDirs bool
}

var diagnosticsLine = regexp.MustCompile(`^\s*path\.system_dirs\[\d+\]="([^"]*)"`)

// SearchDirs returns glibc's default directories, ld.so.conf entries,
// and (optionally) the dynamic linker's own hard-coded search dirs.
func (p *GlibcProvider) SearchDirs(root string) ([]string, error) {
	dirs := []string{
		filepath.Join(root, "lib"),
		filepath.Join(root, "usr", "local", "lib"),
		filepath.Join(root, "usr", "lib"),
	}

	confDirs, err := readLdSoConf(root, filepath.Join(root, "etc", "ld.so.conf"), map[string]bool{}, 0)
	if err != nil {
		return nil, err
	}
	dirs = append(dirs, confDirs...)

	if p.HardCodedSearchDirs {
		hc, err := hardCodedSearchDirs(root)
		if err == nil {
			dirs = append(dirs, hc...)
		}
	}
	return dirs, nil
}

func readLdSoConf(root, path string, visited map[string]bool, depth int) ([]string, error) {
	if depth > maxIncludeDepth {
		return nil, &elf.Error{Kind: elf.KindIO, Msg: "ld.so.conf include recursion too deep"}
	}
	abs, err := filepath.Abs(path)
	if err == nil {
		if visited[abs] {
			return nil, nil
		}
		visited[abs] = true
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil // missing ld.so.conf is not an error
	}
	defer f.Close()

	var dirs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "include "); ok {
			pattern := strings.TrimSpace(rest)
			if !filepath.IsAbs(pattern) {
				pattern = filepath.Join(filepath.Dir(path), pattern)
			}
			matches, err := filepath.Glob(pattern)
			if err != nil {
				continue
			}
			for _, m := range matches {
				sub, err := readLdSoConf(root, m, visited, depth+1)
				if err != nil {
					return nil, err
				}
				dirs = append(dirs, sub...)
			}
			continue
		}
		if filepath.IsAbs(line) {
			dirs = append(dirs, filepath.Join(root, line))
		} else {
			dirs = append(dirs, line)
		}
	}
	return dirs, scanner.Err()
}

func hardCodedSearchDirs(root string) ([]string, error) {
	ldso := filepath.Join(root, "bin", "ld.so")
	out, err := exec.Command(ldso, "--list-diagnostics").Output()
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, line := range strings.Split(string(out), "\n") {
		if m := diagnosticsLine.FindStringSubmatch(line); m != nil {
			dirs = append(dirs, m[1])
		}
	}
	return dirs, nil
}
