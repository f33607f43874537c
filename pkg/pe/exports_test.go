package pe_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	bpe "github.com/Binject/debug/pe"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aheadlib/internal/petest"
	"aheadlib/pkg/pe"
)

func TestReadExportsX86(t *testing.T) {
	path := petest.Write(t, t.TempDir(), "Foo.dll", petest.Options{
		Exports: []petest.Export{
			{Name: "Zeta", Ordinal: 1},
			{Name: "Alpha", Ordinal: 2},
			{Name: "?Func@@YAXH@Z", Ordinal: 3},
		},
	})

	exports, err := pe.ReadExports(path)
	require.NoError(t, err)
	assert.Equal(t, "x86", exports.Arch)
	assert.Equal(t, []pe.ExportEntry{
		{Name: "Zeta", Ordinal: 1},
		{Name: "Alpha", Ordinal: 2},
		{Name: "?Func@@YAXH@Z", Ordinal: 3},
	}, exports.Exports)
}

func TestReadExportsX64(t *testing.T) {
	path := petest.Write(t, t.TempDir(), "Bar.dll", petest.Options{
		Is64:    true,
		Exports: []petest.Export{{Name: "Bar", Ordinal: 1}},
	})

	exports, err := pe.ReadExports(path)
	require.NoError(t, err)
	assert.Equal(t, "x64", exports.Arch)
	require.Len(t, exports.Exports, 1)
	assert.Equal(t, "Bar", exports.Exports[0].Name)
	assert.Equal(t, uint16(1), exports.Exports[0].Ordinal)
	assert.False(t, exports.Exports[0].HasForwarder())
}

func TestReadExportsOrdinalBase(t *testing.T) {
	path := petest.Write(t, t.TempDir(), "Base.dll", petest.Options{
		Base: 10,
		Exports: []petest.Export{
			{Name: "First", Ordinal: 10},
			{Name: "Third", Ordinal: 12},
		},
	})

	exports, err := pe.ReadExports(path)
	require.NoError(t, err)
	// Slot 11 is empty and must not show up.
	assert.Equal(t, []pe.ExportEntry{
		{Name: "First", Ordinal: 10},
		{Name: "Third", Ordinal: 12},
	}, exports.Exports)
}

func TestReadExportsNoname(t *testing.T) {
	path := petest.Write(t, t.TempDir(), "Ord.dll", petest.Options{
		Exports: []petest.Export{
			{Name: "Named", Ordinal: 1},
			{Ordinal: 345},
		},
	})

	exports, err := pe.ReadExports(path)
	require.NoError(t, err)
	require.Len(t, exports.Exports, 2)
	assert.Equal(t, "#345", exports.Exports[1].Name)
	assert.Equal(t, uint16(345), exports.Exports[1].Ordinal)
	assert.True(t, exports.Exports[1].IsNoname())
	assert.False(t, exports.Exports[0].IsNoname())
}

func TestReadExportsForwarders(t *testing.T) {
	path := petest.Write(t, t.TempDir(), "Fwd.dll", petest.Options{
		Is64: true,
		Exports: []petest.Export{
			{Name: "HeapAlloc", Ordinal: 1, Forwarder: "NTDLL.RtlAllocateHeap"},
			{Name: "ByOrdinal", Ordinal: 2, Forwarder: "KERNEL32.#12"},
			{Name: "Local", Ordinal: 3},
		},
	})

	exports, err := pe.ReadExports(path)
	require.NoError(t, err)
	require.Len(t, exports.Exports, 3)
	assert.Equal(t, "NTDLL!RtlAllocateHeap", exports.Exports[0].Forwarder)
	assert.Equal(t, "KERNEL32!#12", exports.Exports[1].Forwarder)
	assert.Empty(t, exports.Exports[2].Forwarder)
}

func TestReadExportsAliases(t *testing.T) {
	path := petest.Write(t, t.TempDir(), "Alias.dll", petest.Options{
		Exports: []petest.Export{
			{Name: "Gamma", Ordinal: 1},
			{Name: "Beta", Ordinal: 1},
			{Name: "Alpha", Ordinal: 1},
			{Name: "Solo", Ordinal: 2},
		},
	})

	exports, err := pe.ReadExports(path)
	require.NoError(t, err)
	// Names are stored sorted, so Alpha comes first in the name table.
	assert.Equal(t, []pe.ExportEntry{
		{Name: "Alpha", Ordinal: 1, Aliases: []string{"Beta", "Gamma"}},
		{Name: "Solo", Ordinal: 2},
	}, exports.Exports)
}

func TestReadExportsClampsOrdinal(t *testing.T) {
	path := petest.Write(t, t.TempDir(), "Wide.dll", petest.Options{
		Base: 0xFFFF,
		Exports: []petest.Export{
			{Name: "Last", Ordinal: 0xFFFF},
			{Name: "Overflow", Ordinal: 0x10000},
		},
	})

	exports, err := pe.ReadExports(path)
	require.NoError(t, err)
	require.Len(t, exports.Exports, 2)
	assert.Equal(t, uint16(0xFFFF), exports.Exports[0].Ordinal)
	assert.Equal(t, uint16(0xFFFF), exports.Exports[1].Ordinal)
}

func TestReadExportsEmptyTable(t *testing.T) {
	path := petest.Write(t, t.TempDir(), "Empty.dll", petest.Options{})

	exports, err := pe.ReadExports(path)
	require.NoError(t, err)
	assert.Equal(t, "x86", exports.Arch)
	assert.Empty(t, exports.Exports)
}

func TestReadExportsErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := pe.ReadExports(filepath.Join(dir, "missing.dll"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, pe.ErrOpenFailed))
	assert.Contains(t, err.Error(), "missing.dll")

	noExports := petest.Write(t, dir, "NoExports.dll", petest.Options{NoExportTable: true})
	_, err = pe.ReadExports(noExports)
	assert.True(t, errors.Is(err, pe.ErrNoExportTable))

	garbage := filepath.Join(dir, "garbage.dll")
	require.NoError(t, os.WriteFile(garbage, []byte("this is not a portable executable"), 0644))
	_, err = pe.ReadExports(garbage)
	assert.True(t, errors.Is(err, pe.ErrParseFailed))

	empty := filepath.Join(dir, "empty.dll")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	_, err = pe.ReadExports(empty)
	assert.True(t, errors.Is(err, pe.ErrParseFailed))

	var exportErr *pe.ExportError
	require.True(t, errors.As(err, &exportErr))
	assert.Equal(t, empty, exportErr.Path)
}

func TestReadExportsTruncatedHeaders(t *testing.T) {
	img := petest.Build(petest.Options{Exports: []petest.Export{{Name: "A", Ordinal: 1}}})
	path := filepath.Join(t.TempDir(), "short.dll")
	require.NoError(t, os.WriteFile(path, img[:0x50], 0644))

	_, err := pe.ReadExports(path)
	assert.True(t, errors.Is(err, pe.ErrParseFailed))
}

func TestSortedByOrdinal(t *testing.T) {
	exports := &pe.DllExports{Exports: []pe.ExportEntry{
		{Name: "c", Ordinal: 3},
		{Name: "b", Ordinal: 1},
		{Name: "a", Ordinal: 2},
	}}

	sorted := exports.SortedByOrdinal()
	assert.Equal(t, []uint16{1, 2, 3}, []uint16{sorted[0].Ordinal, sorted[1].Ordinal, sorted[2].Ordinal})
	assert.Equal(t, "c", exports.Exports[0].Name, "input must not be reordered")
}

func TestFixtureCrossCheck(t *testing.T) {
	for _, is64 := range []bool{false, true} {
		img := petest.Build(petest.Options{
			Is64:    is64,
			Exports: []petest.Export{{Name: "Bar", Ordinal: 1}},
		})

		f, err := bpe.NewFile(bytes.NewReader(img))
		require.NoError(t, err)

		_, isOpt64 := f.OptionalHeader.(*bpe.OptionalHeader64)
		assert.Equal(t, is64, isOpt64)
		if is64 {
			assert.Equal(t, uint16(bpe.IMAGE_FILE_MACHINE_AMD64), f.FileHeader.Machine)
		} else {
			assert.Equal(t, uint16(bpe.IMAGE_FILE_MACHINE_I386), f.FileHeader.Machine)
		}
		require.Len(t, f.Sections, 1)
		assert.Equal(t, ".text", f.Sections[0].Name)
	}
}

func TestParsedHeaders(t *testing.T) {
	path := petest.Write(t, t.TempDir(), "Hdr.dll", petest.Options{
		DllName: "Hdr.dll",
		Exports: []petest.Export{{Name: "Bar", Ordinal: 1}},
	})

	file, err := pe.PE(path)
	require.NoError(t, err)
	defer file.Close()

	assert.False(t, file.Is64())
	assert.True(t, file.FileHeader.HasFlag("IMAGE_FILE_DLL"))
	require.NotNil(t, file.ExportDirectory)
	assert.Equal(t, "Hdr.dll", string(file.ExportDirectory.ModuleName))
	assert.Contains(t, file.DosHeader.String(), "E_lfanew")
	assert.Contains(t, file.FileHeader.String(), "IMAGE_FILE_DLL")
}

func TestReadExportsTracesHeaders(t *testing.T) {
	hook := logtest.NewGlobal()
	level := log.GetLevel()
	log.SetLevel(log.TraceLevel)
	defer func() {
		log.SetLevel(level)
		log.StandardLogger().ReplaceHooks(make(log.LevelHooks))
	}()

	path := petest.Write(t, t.TempDir(), "Trace.dll", petest.Options{
		Is64:    true,
		Exports: []petest.Export{{Name: "Bar", Ordinal: 1}},
	})
	_, err := pe.ReadExports(path)
	require.NoError(t, err)

	var messages strings.Builder
	for _, entry := range hook.AllEntries() {
		messages.WriteString(entry.Message)
	}
	for _, header := range []string{
		"[IMAGE_DOS_HEADER]",
		"[IMAGE_NT_HEADER]",
		"[IMAGE_FILE_HEADER]",
		"[OPTIONAL_HEADER64]",
		"[DATA_DIRECTORY]",
		"[SECTION_HEADER]",
		"[EXPORT_DIRECTORY]",
		"[Export Data]",
	} {
		assert.Contains(t, messages.String(), header)
	}
	assert.Contains(t, messages.String(), "IMAGE_FILE_DLL")
}
