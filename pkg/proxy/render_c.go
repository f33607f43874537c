package proxy

import (
	"fmt"
	"strings"

	"aheadlib/pkg/pe"
)

// RenderC renders the proxy C source for arch. x86 output carries naked
// trampolines; x64 output expects them from the assembly file.
func RenderC(ctx *TemplateContext, arch Arch) string {
	exports := PrepareExports(ctx.Exports)

	var pragmas, decls, inits, trampolines strings.Builder
	for _, exp := range exports {
		pragmas.WriteString(exportPragma(exp, arch))

		decls.WriteString("AHEADLIB_EXTERN PVOID " + exp.Pointer() + ";")
		if exp.Forwarder != "" {
			decls.WriteString(" /* forwarded to " + commentSafe(exp.Forwarder) + " */")
		}
		decls.WriteByte('\n')

		if exp.IsNoname() {
			fmt.Fprintf(&inits, "    %s = (PVOID)get_address(MAKEINTRESOURCEA(%d));", exp.Pointer(), exp.Ordinal)
			if name := pe.OrdLookup(ctx.DllName, uint64(exp.Ordinal), false); name != "" {
				inits.WriteString(" /* " + name + " */")
			}
			inits.WriteByte('\n')
		} else {
			fmt.Fprintf(&inits, "    %s = (PVOID)get_address(\"%s\");\n", exp.Pointer(), CString(exp.RawName))
		}

		if arch == X86 {
			fmt.Fprintf(&trampolines,
				"__declspec(naked) AHEADLIB_EXTERN void __cdecl %s(void) { __asm { jmp dword ptr [%s] } }\n",
				exp.Symbol(), exp.Pointer())
		}
	}

	template := "proxy_x64.c"
	if arch == X86 {
		template = "proxy_x86.c"
	}

	// Static fragments nest, so they are assembled first. Everything derived
	// from the binary or the request goes in with a single pass.
	source := Fill(tpl(template),
		Var{"C_PRELUDE", tpl("prelude.c")},
		Var{"C_RUNTIME", tpl("runtime.c")},
		Var{"C_DLLMAIN", tpl("dllmain.c")},
		Var{"ORIGIN_LOADER", originLoader(ctx.origin())},
	)
	return FillOnce(source,
		Var{"EXPORT_PRAGMAS", pragmas.String()},
		Var{"FORWARD_DECLS", decls.String()},
		Var{"INIT_FORWARDERS", inits.String()},
		Var{"X86_TRAMPOLINES", trampolines.String()},
		Var{"DLL_NAME", CString(ctx.DllName)},
		Var{"BASE_NAME", commentSafe(ctx.BaseName)},
		Var{"ORIGIN_NAME", originName(ctx)},
		Var{"ORIGIN_PATH", originPath(ctx.origin())},
	)
}

// exportPragma binds the public label, and any alias, to the trampoline. x86
// C symbols carry a leading underscore, x64 symbols do not. Aliases share the
// slot's ordinal, so they are exported by name only.
func exportPragma(exp PreparedExport, arch Arch) string {
	symbol := exp.Symbol()
	if arch == X86 {
		symbol = "_" + symbol
	}
	entry := fmt.Sprintf("%s=%s,@%d", CString(exp.Label), symbol, exp.Ordinal)
	if exp.IsNoname() {
		entry += ",NONAME"
	}
	pragmas := linkerExport(entry)
	for _, alias := range exp.Aliases {
		pragmas += linkerExport(CString(alias) + "=" + symbol)
	}
	return pragmas
}

func linkerExport(entry string) string {
	return fmt.Sprintf("#pragma comment(linker, \"/EXPORT:\\\"%s\\\"\")\n", entry)
}

func originLoader(mode OriginLoadMode) string {
	switch mode.(type) {
	case SystemDir:
		return tpl("origin_system.c")
	case SameDir:
		return tpl("origin_samedir.c")
	case CustomPath:
		return tpl("origin_custom.c")
	}
	panic(fmt.Sprintf("proxy: unhandled origin load mode %T", mode))
}

func originName(ctx *TemplateContext) string {
	if m, ok := ctx.origin().(SameDir); ok && m.OriginalName != "" {
		return CString(m.OriginalName)
	}
	return CString(DefaultOriginalName(ctx.BaseName))
}

func originPath(mode OriginLoadMode) string {
	if m, ok := mode.(CustomPath); ok {
		return CString(m.Path)
	}
	return ""
}

// DefaultOriginalName is the name SameDir mode expects when none is given,
// e.g. "version_orig.dll".
func DefaultOriginalName(base string) string {
	return base + "_orig.dll"
}

// commentSafe keeps a value from terminating the C comment it is placed in.
func commentSafe(s string) string {
	return strings.ReplaceAll(s, "*/", "* /")
}
