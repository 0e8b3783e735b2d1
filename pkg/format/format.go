// Package format renders parsed ELF metadata and dependency/relocation
// results for the CLI: trees via treeprint, tables via tablewriter,
// colorized status text via fatih/color. The library's own debug
// String() methods on Header/Segment/Section remain separate and
// unrouted through this package.
package format

import (
	"bytes"
	"fmt"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/xlab/treeprint"

	elf "github.com/appsworld/go-elf"
	"github.com/appsworld/go-elf/pkg/relocate"
	"github.com/appsworld/go-elf/types"
)

// RenderTable renders headers/rows as an aligned ASCII table.
func RenderTable(headers []string, rows [][]string) string {
	var buf bytes.Buffer
	tw := tablewriter.NewWriter(&buf)
	tw.SetHeader(headers)
	tw.SetAutoWrapText(false)
	tw.SetBorder(false)
	tw.AppendBulk(rows)
	tw.Render()
	return buf.String()
}

// RenderList joins names one per line, a plain listing style for
// simple enumerations.
func RenderList(names []string) string {
	var buf bytes.Buffer
	for _, n := range names {
		fmt.Fprintln(&buf, n)
	}
	return buf.String()
}

// RenderDependencyTree renders a manifest as a tree rooted at root,
// with one flat child node per entry other than root, labelled with
// the entry's source path, kind and hash.
func RenderDependencyTree(root string, m *relocate.Manifest) string {
	tree := treeprint.New()
	tree.SetValue(root)
	for _, e := range m.Entries {
		if e.SourcePath == root {
			continue
		}
		tree.AddNode(fmt.Sprintf("%s [%s] %s", e.SourcePath, e.Kind, e.Hash))
	}
	return tree.String()
}

// SegmentTable renders a file's program headers as a table, the
// routed-through-tablewriter counterpart to Segment.String() (spec's
// "show" subcommand).
func SegmentTable(segs []types.Segment) string {
	var rows [][]string
	for _, s := range segs {
		rows = append(rows, []string{
			s.Kind.String(),
			s.Flags.String(),
			fmt.Sprintf("0x%x", s.Offset),
			fmt.Sprintf("0x%x", s.VAddr),
			fmt.Sprintf("0x%x", s.FileSize),
			fmt.Sprintf("0x%x", s.MemSize),
			fmt.Sprintf("0x%x", s.Align),
		})
	}
	return RenderTable([]string{"TYPE", "FLAGS", "OFFSET", "VADDR", "FILESZ", "MEMSZ", "ALIGN"}, rows)
}

// SectionTable renders a file's sections as a table.
func SectionTable(secs []types.Section) string {
	var rows [][]string
	for _, s := range secs {
		rows = append(rows, []string{
			s.Name,
			s.Kind.String(),
			s.Flags.String(),
			fmt.Sprintf("0x%x", s.Addr),
			fmt.Sprintf("0x%x", s.Offset),
			fmt.Sprintf("0x%x", s.Size),
		})
	}
	return RenderTable([]string{"NAME", "TYPE", "FLAGS", "ADDR", "OFFSET", "SIZE"}, rows)
}

// SymbolTable renders a file's symbol table as a table.
func SymbolTable(syms []types.Symbol) string {
	var rows [][]string
	for _, s := range syms {
		rows = append(rows, []string{
			s.Name,
			s.Info.Binding().String(),
			s.Info.Type().String(),
			s.Other.String(),
			fmt.Sprintf("0x%x", s.Value),
			fmt.Sprintf("0x%x", s.Size),
		})
	}
	return RenderTable([]string{"NAME", "BIND", "TYPE", "VIS", "VALUE", "SIZE"}, rows)
}

// StatusOK/StatusFail colorize a one-line pass/fail message the way the
// CLI reports validation results.
func StatusOK(msg string) string   { return color.GreenString("ok") + "  " + msg }
func StatusFail(msg string) string { return color.RedString("fail") + "  " + msg }

// HeaderSummary formats the ELF header's salient fields on one line,
// as the show subcommand prints them.
func HeaderSummary(h *elf.Header) string {
	return fmt.Sprintf("%s %s %s %s entry=0x%x", h.Class, h.Order, h.Kind, h.Machine, h.Entry)
}
