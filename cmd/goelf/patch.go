package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/appsworld/go-elf/pkg/patch"
	"github.com/appsworld/go-elf/types"
)

// parseDynamicTag maps a TAG spelling to its DynamicTag, restricted to
// the two tags patch is allowed to touch: RPATH and RUNPATH.
func parseDynamicTag(tag string) (types.DynamicTag, error) {
	switch strings.ToUpper(tag) {
	case "RPATH":
		return types.DTRpath, nil
	case "RUNPATH":
		return types.DTRunpath, nil
	default:
		return 0, fmt.Errorf("patch: unknown dynamic tag %q, want RPATH or RUNPATH", tag)
	}
}

func newPatchCmd() *cobra.Command {
	var (
		interp       string
		removeInterp bool
		setDynamic   []string
		removeDyn    []string
	)
	cmd := &cobra.Command{
		Use:   "patch <file>",
		Short: "rewrite an ELF file's interpreter and RPATH/RUNPATH in place",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := patch.Open(args[0])
			if err != nil {
				return err
			}

			if removeInterp {
				if err := p.RemoveInterpreter(); err != nil {
					return err
				}
			} else if interp != "" {
				if err := p.SetInterpreter(interp); err != nil {
					return err
				}
			}

			for _, raw := range removeDyn {
				tag, err := parseDynamicTag(raw)
				if err != nil {
					return err
				}
				if err := p.RemoveDynamicTag(tag); err != nil {
					return err
				}
			}

			for _, raw := range setDynamic {
				name, value, ok := strings.Cut(raw, "=")
				if !ok {
					return fmt.Errorf("patch: --set-dynamic wants TAG=VALUE, got %q", raw)
				}
				tag, err := parseDynamicTag(name)
				if err != nil {
					return err
				}
				if err := p.SetLibrarySearchPath(tag, value); err != nil {
					return err
				}
			}

			f, err := p.Finish()
			if err != nil {
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVar(&interp, "set-interpreter", "", "set the PT_INTERP path")
	cmd.Flags().BoolVar(&removeInterp, "remove-interpreter", false, "remove the PT_INTERP segment and .interp section")
	cmd.Flags().StringArrayVar(&setDynamic, "set-dynamic", nil, "set a dynamic tag, as TAG=VALUE (repeatable; TAG is RPATH or RUNPATH)")
	cmd.Flags().StringArrayVar(&removeDyn, "remove-dynamic", nil, "remove a dynamic tag by name (repeatable; TAG is RPATH or RUNPATH)")
	return cmd
}
