package loader

import (
	"os"
	"path/filepath"
	"strings"
)

// MuslProvider models musl's single ld-musl-<arch>.path search-path
// file.
type MuslProvider struct {
	Root string
	Arch string
}

// SearchDirs reads <root>/etc/ld-musl-<arch>.path, splitting on both
// ':' and newlines as musl itself does.
func (p *MuslProvider) SearchDirs(root string) ([]string, error) {
	path := filepath.Join(root, "etc", "ld-musl-"+p.Arch+".path")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil // absent file means "no extra search dirs"
	}
	var dirs []string
	for _, line := range strings.Split(string(data), "\n") {
		for _, dir := range strings.Split(line, ":") {
			dir = strings.TrimSpace(dir)
			if dir != "" {
				dirs = append(dirs, dir)
			}
		}
	}
	return dirs, nil
}
