package proxy

import (
	"fmt"
	"strings"
)

// RenderDef renders the module-definition file. It is used by toolchains
// that ignore the linker pragmas in the C source.
func RenderDef(ctx *TemplateContext) string {
	var lines strings.Builder
	for _, exp := range PrepareExports(ctx.Exports) {
		fmt.Fprintf(&lines, "    %s=%s @%d", exp.Label, exp.Symbol(), exp.Ordinal)
		if exp.IsNoname() {
			lines.WriteString(" NONAME")
		}
		if exp.Forwarder != "" {
			lines.WriteString(" ; forwarded to " + exp.Forwarder)
		}
		lines.WriteByte('\n')
		for _, alias := range exp.Aliases {
			fmt.Fprintf(&lines, "    %s=%s\n", alias, exp.Symbol())
		}
	}

	return FillOnce(tpl("proxy.def"),
		Var{"DEF_EXPORTS", lines.String()},
		Var{"DLL_NAME", ctx.DllName},
	)
}
