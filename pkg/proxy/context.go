package proxy

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"aheadlib/pkg/pe"
)

type Arch int

const (
	X86 Arch = iota
	X64
)

func (a Arch) String() string {
	switch a {
	case X86:
		return "x86"
	case X64:
		return "x64"
	}
	return fmt.Sprintf("Arch(%d)", int(a))
}

// ParseArch accepts the architecture tags produced by pe.ReadExports.
func ParseArch(s string) (Arch, error) {
	switch strings.ToLower(s) {
	case "x86", "i386", "win32":
		return X86, nil
	case "x64", "amd64", "x86_64":
		return X64, nil
	}
	return 0, errors.Errorf("unknown architecture %q", s)
}

// Dialect selects the assembler syntax of a trampoline file.
type Dialect int

const (
	MASM Dialect = iota
	GAS
)

func (d Dialect) String() string {
	switch d {
	case MASM:
		return "masm"
	case GAS:
		return "gas"
	}
	return fmt.Sprintf("Dialect(%d)", int(d))
}

// Ext is the file extension of the dialect, including the dot.
func (d Dialect) Ext() string {
	if d == GAS {
		return ".S"
	}
	return ".asm"
}

// ParseDialects reads a comma separated list such as "masm,gas". Duplicates
// are dropped and the order is preserved.
func ParseDialects(list string) ([]Dialect, error) {
	var dialects []Dialect
	seen := map[Dialect]bool{}
	for _, field := range strings.Split(list, ",") {
		var d Dialect
		switch strings.ToLower(strings.TrimSpace(field)) {
		case "":
			continue
		case "masm", "ml", "asm":
			d = MASM
		case "gas", "gnu", "s":
			d = GAS
		default:
			return nil, errors.Errorf("unknown assembler dialect %q", field)
		}
		if !seen[d] {
			seen[d] = true
			dialects = append(dialects, d)
		}
	}
	return dialects, nil
}

// DefaultDialects is what a source build emits for arch when no dialect is
// requested: both for x86, MASM only for x64.
func DefaultDialects(arch Arch) []Dialect {
	if arch == X86 {
		return []Dialect{MASM, GAS}
	}
	return []Dialect{MASM}
}

// Studio is a Visual Studio generation.
type Studio int

const (
	VS2022 Studio = iota
	VS2026
)

func (s Studio) String() string {
	if s == VS2026 {
		return "vs2026"
	}
	return "vs2022"
}

// Toolset is the MSBuild platform toolset of the generation.
func (s Studio) Toolset() string {
	if s == VS2026 {
		return "v145"
	}
	return "v143"
}

// OriginLoadMode decides how the generated proxy finds the original DLL at
// run time. It is one of SystemDir, SameDir or CustomPath.
type OriginLoadMode interface {
	originLoadMode()
	String() string
}

// SystemDir loads the original from the system directory under its own name.
type SystemDir struct{}

// SameDir loads a renamed copy of the original that sits next to the proxy.
type SameDir struct {
	OriginalName string
}

// CustomPath loads the original from a fixed path. Relative paths are
// resolved against the proxy's directory.
type CustomPath struct {
	Path string
}

func (SystemDir) originLoadMode()  {}
func (SameDir) originLoadMode()    {}
func (CustomPath) originLoadMode() {}

func (SystemDir) String() string    { return "system" }
func (m SameDir) String() string    { return "samedir:" + m.OriginalName }
func (m CustomPath) String() string { return "custom:" + m.Path }

// Guids are the identity tokens cross-referenced by solution, project and
// filter files.
type Guids struct {
	Solution       pe.GUID
	Project        pe.GUID
	FilterSource   pe.GUID
	FilterHeader   pe.GUID
	FilterResource pe.GUID
}

// NewGuids returns five fresh random GUIDs.
func NewGuids() Guids {
	return Guids{
		Solution:       pe.NewGUID(),
		Project:        pe.NewGUID(),
		FilterSource:   pe.NewGUID(),
		FilterHeader:   pe.NewGUID(),
		FilterResource: pe.NewGUID(),
	}
}

// TemplateContext is everything a renderer needs.
type TemplateContext struct {
	ProjectName string
	// DllName is the file name of the original DLL, e.g. "version.dll".
	DllName string
	// BaseName is the stem used for generated file names, e.g. "version".
	BaseName string
	Origin   OriginLoadMode
	Exports  []pe.ExportEntry
	Guids    Guids
}

func (c *TemplateContext) origin() OriginLoadMode {
	if c.Origin == nil {
		return SystemDir{}
	}
	return c.Origin
}

// CFileName is the name of the C source for arch, e.g. "version_x64.c".
func CFileName(base string, arch Arch) string {
	return base + "_" + arch.String() + ".c"
}

// AsmFileName is the name of the trampoline file, e.g. "version_x64_jump.asm".
func AsmFileName(base string, arch Arch, dialect Dialect) string {
	return base + "_" + arch.String() + "_jump" + dialect.Ext()
}

func DefFileName(base string) string {
	return base + ".def"
}
