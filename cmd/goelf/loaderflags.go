package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/appsworld/go-elf/pkg/loader"
	"github.com/appsworld/go-elf/pkg/resolve"
)

// loaderFlags bundles the library-search-path flags shared by the deps
// and relocate subcommands: a sysroot, a target libc whose on-disk
// search-path convention to emulate, extra directories, and the
// hard-coded-search-dirs escape hatch.
type loaderFlags struct {
	root                string
	arch                string
	libc                string
	extraDirs           string
	hardCodedSearchDirs bool
}

func (lf *loaderFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&lf.root, "root", "/", "sysroot to resolve library search paths under")
	cmd.Flags().StringVar(&lf.arch, "arch", "x86_64", "target architecture, used for musl's ld-musl-<arch>.path")
	cmd.Flags().StringVarP(&lf.extraDirs, "search-dir", "L", "", "colon-separated extra library search directories")
	cmd.Flags().StringVar(&lf.libc, "libc", "glibc", "target libc search-path convention: glibc|musl")
	cmd.Flags().BoolVar(&lf.hardCodedSearchDirs, "hard-coded-search-dirs", false, "also query <root>/bin/ld.so --list-diagnostics for its built-in search dirs (glibc only)")
}

// searchDirs runs the configured Provider and layers extra -L
// directories and LD_LIBRARY_PATH on top, highest precedence applied
// last.
func (lf *loaderFlags) searchDirs() ([]string, error) {
	var provider loader.Provider
	switch lf.libc {
	case "glibc":
		provider = &loader.GlibcProvider{Root: lf.root, HardCodedSearchDirs: lf.hardCodedSearchDirs}
	case "musl":
		provider = &loader.MuslProvider{Root: lf.root, Arch: lf.arch}
	default:
		return nil, fmt.Errorf("unknown --libc %q, want glibc or musl", lf.libc)
	}

	dirs, err := provider.SearchDirs(lf.root)
	if err != nil {
		return nil, err
	}
	if lf.extraDirs != "" {
		dirs = append(resolve.SplitPathList(lf.extraDirs), dirs...)
	}
	return loader.EnvOverride(dirs), nil
}
