// Command goelf inspects, patches, and relocates ELF binaries, using
// cobra for flag parsing and subcommand dispatch.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/appsworld/go-elf/internal/elflog"
)

var (
	verbose  bool
	pageSize uint64
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "goelf",
		Short:         "inspect, patch, and relocate ELF binaries",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			elflog.SetVerbose(verbose)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().Uint64Var(&pageSize, "page-size", uint64(unix.Getpagesize()), "page size used for LOAD segment expansion")

	root.AddCommand(newShowCmd())
	root.AddCommand(newDepsCmd())
	root.AddCommand(newPatchCmd())
	root.AddCommand(newRelocateCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
