// Package generate turns a DLL into a proxy project on disk.
package generate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"aheadlib/pkg/pe"
	"aheadlib/pkg/proxy"
)

var (
	ErrMissingDllPath    = errors.New("DLL path is required")
	ErrMissingOutputDir  = errors.New("output directory is required")
	ErrDllNotFound       = errors.New("DLL not found")
	ErrMissingOriginPath = errors.New("custom origin mode requires a path")
	ErrInvalidDllName    = errors.New("DLL file name has no usable stem")
	ErrUnknownTarget     = errors.New("unknown target")
)

// WriteError reports the first output file that could not be written. Files
// written before it stay on disk.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %s", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

type Request struct {
	Target    Target
	DllPath   string
	OutputDir string
	// Origin defaults to SystemDir. An empty SameDir name becomes
	// <stem>_orig.dll.
	Origin proxy.OriginLoadMode
	// Dialects of the trampoline files. Empty means the architecture's
	// defaults. CMake always gets both dialects and x64 Visual Studio
	// projects always get MASM.
	Dialects []proxy.Dialect
}

type Result struct {
	Arch    proxy.Arch
	Exports *pe.DllExports
	// Written holds the full path of every file, in write order.
	Written []string
}

// artifact is one output file and how to render it.
type artifact struct {
	name   string
	render func() string
}

// Generate validates req, reads the DLL's exports and writes the proxy
// files. Nothing is written when validation or parsing fails.
func Generate(req Request) (*Result, error) {
	if strings.TrimSpace(req.DllPath) == "" {
		return nil, ErrMissingDllPath
	}
	if strings.TrimSpace(req.OutputDir) == "" {
		return nil, ErrMissingOutputDir
	}
	if req.Target == nil {
		return nil, ErrUnknownTarget
	}

	dllName := filepath.Base(req.DllPath)
	base := strings.TrimSuffix(dllName, filepath.Ext(dllName))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return nil, errors.Wrapf(ErrInvalidDllName, "%q", dllName)
	}

	origin, err := resolveOrigin(req.Origin, dllName, base)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(req.DllPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrDllNotFound, "%s", req.DllPath)
		}
		return nil, errors.Wrapf(err, "stat %s", req.DllPath)
	}
	if info.IsDir() {
		return nil, errors.Wrapf(ErrDllNotFound, "%s is a directory", req.DllPath)
	}

	exports, err := pe.ReadExports(req.DllPath)
	if err != nil {
		return nil, err
	}

	arch, err := proxy.ParseArch(exports.Arch)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"dll":     req.DllPath,
		"arch":    arch,
		"exports": len(exports.Exports),
		"target":  req.Target,
		"out":     req.OutputDir,
		"origin":  origin,
	}).Info("Generating proxy")

	ctx := &proxy.TemplateContext{
		ProjectName: base,
		DllName:     dllName,
		BaseName:    base,
		Origin:      origin,
		Exports:     exports.Exports,
		Guids:       proxy.NewGuids(),
	}

	artifacts := plan(req.Target, ctx, arch, req.Dialects)

	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return nil, &WriteError{Path: req.OutputDir, Err: err}
	}

	result := &Result{Arch: arch, Exports: exports}
	for _, a := range artifacts {
		path := filepath.Join(req.OutputDir, a.name)
		if err := os.WriteFile(path, []byte(a.render()), 0644); err != nil {
			return result, &WriteError{Path: path, Err: err}
		}
		log.Debugf("Wrote %s", path)
		result.Written = append(result.Written, path)
	}

	return result, nil
}

func resolveOrigin(mode proxy.OriginLoadMode, dllName, base string) (proxy.OriginLoadMode, error) {
	switch m := mode.(type) {
	case nil:
		return proxy.SystemDir{}, nil
	case proxy.SystemDir:
		return m, nil
	case proxy.SameDir:
		if m.OriginalName == "" {
			m.OriginalName = proxy.DefaultOriginalName(base)
		}
		if strings.EqualFold(m.OriginalName, dllName) {
			log.Warnf("original name %s equals the proxy name, the proxy would load itself", m.OriginalName)
		}
		return m, nil
	case proxy.CustomPath:
		if strings.TrimSpace(m.Path) == "" {
			return nil, ErrMissingOriginPath
		}
		return m, nil
	}
	panic(fmt.Sprintf("generate: unhandled origin load mode %T", mode))
}

// plan lists the files of target in write order: project files first, then
// the C source, the trampolines and the .def file.
func plan(target Target, ctx *proxy.TemplateContext, arch proxy.Arch, dialects []proxy.Dialect) []artifact {
	if len(dialects) == 0 {
		dialects = proxy.DefaultDialects(arch)
	}

	var project []artifact
	switch t := target.(type) {
	case SourceTarget:
	case StudioTarget:
		if arch == proxy.X64 && !hasDialect(dialects, proxy.MASM) {
			dialects = append([]proxy.Dialect{proxy.MASM}, dialects...)
		}
		solution := func() string { return proxy.RenderSolution(ctx, arch) }
		if t.Studio == proxy.VS2026 {
			solution = func() string { return proxy.RenderSlnx(ctx, arch) }
		}
		project = []artifact{
			{proxy.SolutionFileName(ctx.BaseName, t.Studio), solution},
			{proxy.ProjectFileName(ctx.BaseName), func() string { return proxy.RenderVcxproj(ctx, arch, t.Studio) }},
			{proxy.ProjectFileName(ctx.BaseName) + ".filters", func() string { return proxy.RenderFilters(ctx, arch) }},
			{proxy.ProjectFileName(ctx.BaseName) + ".user", proxy.RenderUser},
		}
	case CMakeTarget:
		dialects = []proxy.Dialect{proxy.MASM, proxy.GAS}
		project = []artifact{
			{"CMakeLists.txt", func() string { return proxy.RenderCMakeLists(ctx, arch) }},
		}
	default:
		panic(fmt.Sprintf("generate: unhandled target %T", target))
	}

	artifacts := append(project, artifact{
		proxy.CFileName(ctx.BaseName, arch),
		func() string { return proxy.RenderC(ctx, arch) },
	})
	for _, d := range dialects {
		d := d
		artifacts = append(artifacts, artifact{
			proxy.AsmFileName(ctx.BaseName, arch, d),
			func() string { return proxy.RenderAsm(ctx, arch, d) },
		})
	}
	artifacts = append(artifacts, artifact{
		proxy.DefFileName(ctx.BaseName),
		func() string { return proxy.RenderDef(ctx) },
	})

	return artifacts
}

func hasDialect(dialects []proxy.Dialect, want proxy.Dialect) bool {
	for _, d := range dialects {
		if d == want {
			return true
		}
	}
	return false
}
