package generate

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aheadlib/internal/petest"
	"aheadlib/pkg/pe"
	"aheadlib/pkg/proxy"
)

func baseNames(paths []string) []string {
	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	sort.Strings(names)
	return names
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestGenerateSourceX64EndToEnd(t *testing.T) {
	dll := petest.Write(t, t.TempDir(), "B.dll", petest.Options{
		Is64:    true,
		Exports: []petest.Export{{Name: "Bar", Ordinal: 1}},
	})
	out := filepath.Join(t.TempDir(), "out")

	res, err := Generate(Request{Target: SourceTarget{}, DllPath: dll, OutputDir: out})
	require.NoError(t, err)

	assert.Equal(t, proxy.X64, res.Arch)
	assert.Equal(t, []pe.ExportEntry{{Name: "Bar", Ordinal: 1}}, res.Exports.Exports)
	assert.Equal(t, []string{"B.def", "B_x64.c", "B_x64_jump.asm"}, baseNames(res.Written))
	assert.Equal(t, []string{"B.def", "B_x64.c", "B_x64_jump.asm"}, dirNames(t, out))

	def := readFile(t, filepath.Join(out, "B.def"))
	lines := strings.Split(strings.TrimSpace(def), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "EXPORTS", lines[1])
	assert.Equal(t, "Bar=AheadLibEx_Bar @1", strings.TrimSpace(lines[2]))

	c := readFile(t, filepath.Join(out, "B_x64.c"))
	assert.Contains(t, c, "GetSystemDirectory(")
	assert.Contains(t, c, `TEXT("B.dll")`)
}

func TestGenerateSourceX86(t *testing.T) {
	dll := petest.Write(t, t.TempDir(), "B.dll", petest.Options{
		Exports: []petest.Export{{Name: "Bar", Ordinal: 1}},
	})
	out := t.TempDir()

	res, err := Generate(Request{Target: SourceTarget{}, DllPath: dll, OutputDir: out})
	require.NoError(t, err)

	assert.Equal(t, proxy.X86, res.Arch)
	assert.Equal(t, []string{"B.def", "B_x86.c", "B_x86_jump.S", "B_x86_jump.asm"}, baseNames(res.Written))
	for _, name := range res.Written {
		assert.NotContains(t, filepath.Base(name), "x64")
	}
}

func TestGenerateDialectOverride(t *testing.T) {
	dll := petest.Write(t, t.TempDir(), "B.dll", petest.Options{
		Exports: []petest.Export{{Name: "Bar", Ordinal: 1}},
	})

	res, err := Generate(Request{
		Target:    SourceTarget{},
		DllPath:   dll,
		OutputDir: t.TempDir(),
		Dialects:  []proxy.Dialect{proxy.GAS},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"B.def", "B_x86.c", "B_x86_jump.S"}, baseNames(res.Written))
}

func TestGenerateEmptyExportTable(t *testing.T) {
	dll := petest.Write(t, t.TempDir(), "Empty.dll", petest.Options{Is64: true})
	out := t.TempDir()

	res, err := Generate(Request{Target: SourceTarget{}, DllPath: dll, OutputDir: out})
	require.NoError(t, err)
	require.NotEmpty(t, res.Written)

	def := readFile(t, filepath.Join(out, "Empty.def"))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(def), "EXPORTS"))

	asm := readFile(t, filepath.Join(out, "Empty_x64_jump.asm"))
	assert.NotContains(t, asm, "PROC")

	c := readFile(t, filepath.Join(out, "Empty_x64.c"))
	assert.NotContains(t, c, "get_address(\"")
	assert.Contains(t, c, "DllMain")
}

func TestGenerateVisualStudio(t *testing.T) {
	dll := petest.Write(t, t.TempDir(), "version.dll", petest.Options{
		Is64:    true,
		Exports: []petest.Export{{Name: "GetFileVersionInfoW", Ordinal: 1}},
	})

	out := t.TempDir()
	res, err := Generate(Request{
		Target:    StudioTarget{Studio: proxy.VS2022},
		DllPath:   dll,
		OutputDir: out,
		Dialects:  []proxy.Dialect{proxy.GAS},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"AheadLib_version.sln",
		"version.def",
		"version.vcxproj",
		"version.vcxproj.filters",
		"version.vcxproj.user",
		"version_x64.c",
		"version_x64_jump.S",
		"version_x64_jump.asm",
	}, baseNames(res.Written))

	// Project files come first.
	assert.Equal(t, "AheadLib_version.sln", filepath.Base(res.Written[0]))

	sln := readFile(t, filepath.Join(out, "AheadLib_version.sln"))
	vcxproj := readFile(t, filepath.Join(out, "version.vcxproj"))
	assert.Contains(t, vcxproj, "<PlatformToolset>v143</PlatformToolset>")

	// The solution and the project agree on the project GUID.
	start := strings.Index(vcxproj, "<ProjectGuid>") + len("<ProjectGuid>")
	end := strings.Index(vcxproj, "</ProjectGuid>")
	require.True(t, start > 0 && end > start)
	assert.Contains(t, sln, vcxproj[start:end])

	out = t.TempDir()
	res, err = Generate(Request{Target: StudioTarget{Studio: proxy.VS2026}, DllPath: dll, OutputDir: out})
	require.NoError(t, err)
	assert.Contains(t, baseNames(res.Written), "AheadLib_version.slnx")
	assert.Contains(t, readFile(t, filepath.Join(out, "version.vcxproj")), "<PlatformToolset>v145</PlatformToolset>")
}

func TestGenerateCMake(t *testing.T) {
	dll := petest.Write(t, t.TempDir(), "B.dll", petest.Options{
		Is64:    true,
		Exports: []petest.Export{{Name: "Bar", Ordinal: 1}},
	})

	res, err := Generate(Request{Target: CMakeTarget{}, DllPath: dll, OutputDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, []string{"B.def", "B_x64.c", "B_x64_jump.S", "B_x64_jump.asm", "CMakeLists.txt"}, baseNames(res.Written))
}

func TestGenerateOriginModes(t *testing.T) {
	dll := petest.Write(t, t.TempDir(), "Foo.dll", petest.Options{
		Is64:    true,
		Exports: []petest.Export{{Name: "Bar", Ordinal: 1}},
	})

	out := t.TempDir()
	_, err := Generate(Request{Target: SourceTarget{}, DllPath: dll, OutputDir: out, Origin: proxy.SameDir{}})
	require.NoError(t, err)
	c := readFile(t, filepath.Join(out, "Foo_x64.c"))
	assert.Contains(t, c, "GetModuleFileName(")
	assert.Contains(t, c, `TEXT("Foo_orig.dll")`)

	out = t.TempDir()
	_, err = Generate(Request{Target: SourceTarget{}, DllPath: dll, OutputDir: out, Origin: proxy.CustomPath{Path: `C:\path\to\Foo.dll`}})
	require.NoError(t, err)
	c = readFile(t, filepath.Join(out, "Foo_x64.c"))
	assert.Contains(t, c, `origin_cfg[] = TEXT("C:\\path\\to\\Foo.dll")`)
}

func TestGeneratePreconditions(t *testing.T) {
	dir := t.TempDir()
	dll := petest.Write(t, dir, "Foo.dll", petest.Options{Exports: []petest.Export{{Name: "Bar", Ordinal: 1}}})
	noExports := petest.Write(t, dir, "NoExports.dll", petest.Options{NoExportTable: true})
	out := filepath.Join(dir, "out")

	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"empty dll path", Request{Target: SourceTarget{}, OutputDir: out}, ErrMissingDllPath},
		{"blank output dir", Request{Target: SourceTarget{}, DllPath: dll, OutputDir: "  "}, ErrMissingOutputDir},
		{"no target", Request{DllPath: dll, OutputDir: out}, ErrUnknownTarget},
		{"missing dll", Request{Target: SourceTarget{}, DllPath: filepath.Join(dir, "nope.dll"), OutputDir: out}, ErrDllNotFound},
		{"dll is a directory", Request{Target: SourceTarget{}, DllPath: dir, OutputDir: out}, ErrDllNotFound},
		{"custom without path", Request{Target: SourceTarget{}, DllPath: dll, OutputDir: out, Origin: proxy.CustomPath{}}, ErrMissingOriginPath},
		{"no export table", Request{Target: SourceTarget{}, DllPath: noExports, OutputDir: out}, pe.ErrNoExportTable},
		{"bad stem", Request{Target: SourceTarget{}, DllPath: filepath.Join(dir, ".dll"), OutputDir: out}, ErrInvalidDllName},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Generate(tc.req)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)

			_, statErr := os.Stat(out)
			assert.True(t, os.IsNotExist(statErr), "nothing may be written")
		})
	}
}

func TestGenerateStopsAtFirstWriteError(t *testing.T) {
	dll := petest.Write(t, t.TempDir(), "B.dll", petest.Options{
		Is64:    true,
		Exports: []petest.Export{{Name: "Bar", Ordinal: 1}},
	})
	out := t.TempDir()
	// A directory where the C file should go makes that write fail.
	require.NoError(t, os.Mkdir(filepath.Join(out, "B_x64.c"), 0755))

	res, err := Generate(Request{Target: StudioTarget{Studio: proxy.VS2022}, DllPath: dll, OutputDir: out})
	require.Error(t, err)

	var writeErr *WriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, filepath.Join(out, "B_x64.c"), writeErr.Path)

	require.NotNil(t, res)
	assert.Len(t, res.Written, 4)
	for _, p := range res.Written {
		_, statErr := os.Stat(p)
		assert.NoError(t, statErr, "%s must be left in place", p)
	}
	_, statErr := os.Stat(filepath.Join(out, "B.def"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestGenerateOutputDirIsFile(t *testing.T) {
	dir := t.TempDir()
	dll := petest.Write(t, dir, "B.dll", petest.Options{Exports: []petest.Export{{Name: "Bar", Ordinal: 1}}})
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	_, err := Generate(Request{Target: SourceTarget{}, DllPath: dll, OutputDir: filepath.Join(file, "out")})
	var writeErr *WriteError
	require.True(t, errors.As(err, &writeErr))
}

func TestParseTarget(t *testing.T) {
	for name, want := range map[string]Target{
		"source": SourceTarget{},
		"SRC":    SourceTarget{},
		"c":      SourceTarget{},
		"vs2022": StudioTarget{Studio: proxy.VS2022},
		"2022":   StudioTarget{Studio: proxy.VS2022},
		"VS2026": StudioTarget{Studio: proxy.VS2026},
		"2026":   StudioTarget{Studio: proxy.VS2026},
		" cmake": CMakeTarget{},
	} {
		got, err := ParseTarget(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseTarget("xcode")
	assert.True(t, errors.Is(err, ErrUnknownTarget))
}

func TestParseOrigin(t *testing.T) {
	cases := []struct {
		mode, name, path string
		want             proxy.OriginLoadMode
	}{
		{"", "", "", proxy.SystemDir{}},
		{"system", "ignored", "ignored", proxy.SystemDir{}},
		{"samedir", "", "", proxy.SameDir{}},
		{"samedir", "real.dll", "", proxy.SameDir{OriginalName: "real.dll"}},
		{"samedir:inline.dll", "real.dll", "", proxy.SameDir{OriginalName: "inline.dll"}},
		{"custom", "", `C:\a\b.dll`, proxy.CustomPath{Path: `C:\a\b.dll`}},
		{`custom:\\server\share\b.dll`, "", "", proxy.CustomPath{Path: `\\server\share\b.dll`}},
		{"custom", "", "", proxy.CustomPath{}},
	}
	for _, tc := range cases {
		got, err := ParseOrigin(tc.mode, tc.name, tc.path)
		require.NoError(t, err, tc.mode)
		assert.Equal(t, tc.want, got, tc.mode)
	}

	_, err := ParseOrigin("registry", "", "")
	assert.Error(t, err)
}

func TestGenerateExportsAliases(t *testing.T) {
	dll := petest.Write(t, t.TempDir(), "B.dll", petest.Options{
		Is64: true,
		Exports: []petest.Export{
			{Name: "Bar", Ordinal: 1},
			{Name: "BarAlias", Ordinal: 1},
		},
	})
	out := t.TempDir()

	_, err := Generate(Request{Target: SourceTarget{}, DllPath: dll, OutputDir: out})
	require.NoError(t, err)

	def := readFile(t, filepath.Join(out, "B.def"))
	assert.Contains(t, def, "    Bar=AheadLibEx_Bar @1\n")
	assert.Contains(t, def, "    BarAlias=AheadLibEx_Bar\n")

	c := readFile(t, filepath.Join(out, "B_x64.c"))
	assert.Contains(t, c, `/EXPORT:\"BarAlias=AheadLibEx_Bar\"`)
}
