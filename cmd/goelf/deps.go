package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"

	"github.com/appsworld/go-elf/pkg/format"
	"github.com/appsworld/go-elf/pkg/resolve"
)

var depsFormats = map[string]bool{"list": true, "tree": true, "table-tree": true}
var depsStyles = map[string]bool{"ascii": true, "rounded": true}

func newDepsCmd() *cobra.Command {
	var lf loaderFlags
	var (
		outFormat string
		style     string
		namesOnly bool
	)
	cmd := &cobra.Command{
		Use:   "deps <file>...",
		Short: "walk the dependency closure of one or more ELF files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !depsFormats[outFormat] {
				return fmt.Errorf("deps: unknown --format %q, want list|tree|table-tree", outFormat)
			}
			if !depsStyles[style] {
				return fmt.Errorf("deps: unknown --style %q, want ascii|rounded", style)
			}

			dirs, err := lf.searchDirs()
			if err != nil {
				return err
			}
			r := &resolve.Resolver{SearchDirs: dirs}
			entries, err := r.Closure(args, dirs)
			if err != nil {
				return err
			}

			if namesOnly {
				var names []string
				for _, e := range entries {
					names = append(names, e.Path)
				}
				cmd.Print(format.RenderList(names))
				return nil
			}

			switch outFormat {
			case "list":
				for _, e := range entries {
					line := e.Path
					if e.Interpreter != "" {
						line += " (interpreter: " + e.Interpreter + ")"
					}
					cmd.Println(line)
					for _, n := range e.Needed {
						cmd.Println("  " + n)
					}
				}
			case "tree":
				for _, root := range args {
					cmd.Println(renderClosureTree(root, entries))
				}
			case "table-tree":
				var rows [][]string
				for _, e := range entries {
					rows = append(rows, []string{e.Path, e.Interpreter, fmt.Sprint(len(e.Needed))})
				}
				cmd.Println(format.RenderTable([]string{"PATH", "INTERPRETER", "NEEDED"}, rows))
			}
			return nil
		},
	}
	lf.register(cmd)
	cmd.Flags().StringVar(&outFormat, "format", "list", "output format: list|tree|table-tree")
	cmd.Flags().StringVar(&style, "style", "ascii", "tree-drawing style: ascii|rounded (cosmetic)")
	cmd.Flags().BoolVar(&namesOnly, "names-only", false, "print only the resolved file paths")
	return cmd
}

// renderClosureTree renders root's direct NEEDED names as one-level
// children. style is presently cosmetic: treeprint draws its own
// connectors regardless of the requested style.
func renderClosureTree(root string, entries []resolve.ClosureEntry) string {
	tree := treeprint.New()
	tree.SetValue(root)
	for _, e := range entries {
		if e.Path != root {
			continue
		}
		for _, n := range e.Needed {
			tree.AddNode(n)
		}
	}
	return tree.String()
}
