package main

import (
	"fmt"

	"github.com/spf13/cobra"

	elf "github.com/appsworld/go-elf"
	"github.com/appsworld/go-elf/pkg/format"
	"github.com/appsworld/go-elf/pkg/validate"
)

// showTargets enumerates the accepted -t values.
var showTargets = map[string]bool{
	"all": true, "header": true, "sections": true, "segments": true, "symbols": true,
}

func newShowCmd() *cobra.Command {
	var (
		target     string
		doValidate bool
	)
	cmd := &cobra.Command{
		Use:   "show <file>",
		Short: "print an ELF file's header, segments, sections, or symbols",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !showTargets[target] {
				return fmt.Errorf("show: unknown -t target %q, want one of all|header|sections|segments|symbols", target)
			}

			f, err := elf.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			if target == "all" || target == "header" {
				cmd.Println(format.HeaderSummary(&f.Header))
				if doValidate {
					if err := validate.Validate(f); err != nil {
						cmd.Println(format.StatusFail(err.Error()))
					} else {
						cmd.Println(format.StatusOK("no invariant violations"))
					}
				}
			}
			if target == "all" || target == "segments" {
				cmd.Println(format.SegmentTable(f.Segments))
			}
			if target == "all" || target == "sections" {
				cmd.Println(format.SectionTable(f.Sections))
			}
			if target == "all" || target == "symbols" {
				syms, err := f.Symbols()
				if err != nil {
					return err
				}
				cmd.Println(format.SymbolTable(syms))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&target, "target", "t", "all", "what to print: all|header|sections|segments|symbols")
	cmd.Flags().BoolVar(&doValidate, "validate", false, "run the invariant validator and report the result")
	return cmd
}
