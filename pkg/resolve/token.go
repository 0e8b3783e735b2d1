package resolve

import (
	"strings"

	elf "github.com/appsworld/go-elf"
	"github.com/appsworld/go-elf/types"
)

// InterpolateTokens substitutes $ORIGIN, $LIB, and $PLATFORM (and their
// braced forms) in a raw RPATH/RUNPATH entry, the same way the dynamic
// loader does before treating the result as a search directory (spec
// §4.F). Only the canonical $PLATFORM spelling is recognized; the
// ${PLATFOMR} typo some binaries carry is left untouched.
func InterpolateTokens(raw, dependentDir string, class elf.Class, machine types.Machine) string {
	s := raw
	s = replaceToken(s, "ORIGIN", dependentDir)
	s = replaceToken(s, "LIB", types.Lib(uint8(class)))
	if plat, ok := machine.Platform(); ok {
		s = replaceToken(s, "PLATFORM", plat)
	}
	return s
}

// replaceToken substitutes both $NAME and ${NAME} spellings of token.
func replaceToken(s, token, value string) string {
	s = strings.ReplaceAll(s, "${"+token+"}", value)
	s = strings.ReplaceAll(s, "$"+token, value)
	return s
}

// SplitPathList splits a colon-separated RPATH/RUNPATH entry into its
// component directories, skipping empty fields (a leading/trailing/
// doubled colon means "the current directory" in most loaders; this
// implementation treats it as noise to be dropped rather than
// substituted).
func SplitPathList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ":") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
