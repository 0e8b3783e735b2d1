package main

import (
	"github.com/spf13/cobra"

	"github.com/appsworld/go-elf/pkg/format"
	"github.com/appsworld/go-elf/pkg/relocate"
	"github.com/appsworld/go-elf/pkg/resolve"
)

func newRelocateCmd() *cobra.Command {
	var lf loaderFlags
	var (
		outDir    string
		namesOnly bool
	)
	cmd := &cobra.Command{
		Use:   "relocate <file> [file...]",
		Short: "copy one or more ELF files and their dependency closure into a content-addressed tree",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dirs, err := lf.searchDirs()
			if err != nil {
				return err
			}
			r := &relocate.Relocator{
				Resolver: &resolve.Resolver{SearchDirs: dirs},
				PageSize: pageSize,
			}
			m, err := r.Relocate(args, outDir)
			if err != nil {
				return err
			}
			if namesOnly {
				var names []string
				for _, e := range m.Entries {
					names = append(names, e.Hash)
				}
				cmd.Println(format.RenderList(names))
				return nil
			}
			for _, root := range args {
				cmd.Println(format.RenderDependencyTree(root, m))
			}
			return nil
		},
	}
	lf.register(cmd)
	cmd.Flags().StringVarP(&outDir, "out", "t", "", "output directory for the relocated tree")
	cmd.Flags().BoolVar(&namesOnly, "names-only", false, "print only the content hashes of relocated files")
	cmd.MarkFlagRequired("out")
	return cmd
}
