package proxy

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"aheadlib/pkg/pe"
)

// Prefix of every generated trampoline symbol. The resolved pointer for a
// trampoline is the same name prefixed with "pfn".
const SymbolPrefix = "AheadLibEx_"

// PreparedExport is the render-ready view of one export.
type PreparedExport struct {
	RawName   string
	Ordinal   uint16
	Forwarder string
	// Label is the public export name: RawName, or Noname<ordinal> for
	// ordinal-only exports.
	Label string
	// Stub is a C and assembler safe identifier, unique within one table.
	Stub string
	// Aliases are further public names bound to the same trampoline.
	Aliases []string
}

func (p PreparedExport) IsNoname() bool {
	return strings.HasPrefix(p.RawName, "#")
}

// Symbol is the trampoline the linker exports under Label.
func (p PreparedExport) Symbol() string {
	return SymbolPrefix + p.Stub
}

// Pointer is the variable holding the address resolved from the original
// module.
func (p PreparedExport) Pointer() string {
	return "pfn" + SymbolPrefix + p.Stub
}

// PrepareExports sorts entries by (ordinal, name) and derives labels and
// collision-free stubs. The input slice is not modified.
func PrepareExports(entries []pe.ExportEntry) []PreparedExport {
	sorted := make([]pe.ExportEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Ordinal != sorted[j].Ordinal {
			return sorted[i].Ordinal < sorted[j].Ordinal
		}
		return sorted[i].Name < sorted[j].Name
	})

	used := make(map[string]bool, len(sorted))
	prepared := make([]PreparedExport, 0, len(sorted))
	for _, e := range sorted {
		label := e.Name
		stub := ""
		if e.IsNoname() {
			label = fmt.Sprintf("Noname%d", e.Ordinal)
			stub = fmt.Sprintf("Unnamed%d", e.Ordinal)
		} else {
			stub = SanitizeIdentifier(e.Name)
		}

		// Duplicate ordinals in a malformed table can still collide after the
		// first suffix, so keep suffixing until the stub is free.
		for used[stub] {
			stub += "_" + strconv.Itoa(int(e.Ordinal))
		}
		used[stub] = true

		prepared = append(prepared, PreparedExport{
			RawName:   e.Name,
			Ordinal:   e.Ordinal,
			Forwarder: e.Forwarder,
			Label:     label,
			Stub:      stub,
			Aliases:   e.Aliases,
		})
	}

	return prepared
}

// SanitizeIdentifier replaces every character outside [A-Za-z0-9_] with an
// underscore. The result is never empty.
func SanitizeIdentifier(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, ch := range raw {
		if ch < 0x80 && (ch == '_' || ch >= '0' && ch <= '9' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z') {
			b.WriteRune(ch)
		} else {
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

// ExportsMacro is the <PROJECT>_EXPORTS preprocessor symbol Visual Studio
// defines for a DLL project.
func ExportsMacro(projectName string) string {
	macro := strings.ToUpper(SanitizeIdentifier(projectName))
	if strings.HasSuffix(macro, "_EXPORTS") {
		return macro
	}
	return macro + "_EXPORTS"
}
