package pe

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	ErrOpenFailed    = errors.New("failed to open DLL")
	ErrParseFailed   = errors.New("failed to parse PE")
	ErrNoExportTable = errors.New("DLL missing export table")
)

// ExportError is returned by ReadExports. Kind is one of ErrOpenFailed,
// ErrParseFailed or ErrNoExportTable and can be matched with errors.Is.
type ExportError struct {
	Kind error
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Path)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Path, e.Err)
}

func (e *ExportError) Is(target error) bool {
	return target == e.Kind
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// ExportEntry is one exported symbol. Ordinal-only exports are named
// "#<ordinal>". Forwarder is "<lib>!<name>" or "<lib>!#<ordinal>" for
// exports that re-export another module's symbol, empty otherwise.
type ExportEntry struct {
	Name      string
	Ordinal   uint16
	Forwarder string
	// Aliases are further names of the same function slot. They share the
	// ordinal, so they are exported by name only.
	Aliases []string
}

// IsNoname reports whether the export has no name in the export table.
func (e ExportEntry) IsNoname() bool {
	return strings.HasPrefix(e.Name, "#")
}

func (e ExportEntry) HasForwarder() bool {
	return e.Forwarder != ""
}

// DllExports is the export table of one binary in directory order.
type DllExports struct {
	Arch    string // "x86" or "x64"
	Exports []ExportEntry
}

// SortedByOrdinal returns a copy of the exports ordered by ordinal, then name.
func (d *DllExports) SortedByOrdinal() []ExportEntry {
	sorted := make([]ExportEntry, len(d.Exports))
	copy(sorted, d.Exports)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Ordinal != sorted[j].Ordinal {
			return sorted[i].Ordinal < sorted[j].Ordinal
		}
		return sorted[i].Name < sorted[j].Name
	})
	return sorted
}

// Arch returns "x64" for PE32+ images and "x86" otherwise.
func (p *PEFile) Arch() string {
	if p.Is64() {
		return "x64"
	}
	return "x86"
}

// ReadExports maps the binary at path and returns its architecture and
// export table. Entries are not sorted.
func ReadExports(path string) (*DllExports, error) {
	file, err := PE(path)
	if err != nil {
		var mapErr errMapFailed
		if errors.As(err, &mapErr) {
			return nil, &ExportError{Kind: ErrOpenFailed, Path: path, Err: mapErr.error}
		}
		return nil, &ExportError{Kind: ErrParseFailed, Path: path, Err: err}
	}
	defer func() {
		if err := file.Close(); err != nil {
			log.Printf("unmapping %s: %v", path, err)
		}
	}()

	dir := file.DataDirectory("IMAGE_DIRECTORY_ENTRY_EXPORT")
	if dir == nil || dir.VirtualAddress == 0 || file.ExportDirectory == nil {
		return nil, &ExportError{Kind: ErrNoExportTable, Path: path}
	}

	if machine, ok := MachineTypes[file.FileHeader.Machine]; ok {
		log.Debugf("%s: machine %s, %d export slots", path, machine, file.ExportDirectory.NumberOfFunctions)
	}

	result := &DllExports{
		Arch:    file.Arch(),
		Exports: make([]ExportEntry, 0, len(file.ExportDirectory.Exports)),
	}

	// The mapping goes away on return, so every byte slice is copied into a
	// string here.
	for _, sym := range file.ExportDirectory.Exports {
		entry := ExportEntry{
			Name:    string(sym.Name),
			Ordinal: sym.Ordinal,
		}
		if entry.Name == "" {
			entry.Name = fmt.Sprintf("#%d", sym.Ordinal)
		}
		if len(sym.Forwarder) > 0 {
			entry.Forwarder = formatForwarder(string(sym.Forwarder))
		}
		for _, alias := range sym.Aliases {
			entry.Aliases = append(entry.Aliases, string(alias))
		}
		result.Exports = append(result.Exports, entry)
	}

	return result, nil
}

// formatForwarder turns the loader's "LIB.Name" or "LIB.#12" into
// "LIB!Name" or "LIB!#12".
func formatForwarder(raw string) string {
	i := strings.LastIndexByte(raw, '.')
	if i < 0 {
		return raw
	}
	return raw[:i] + "!" + raw[i+1:]
}
