package proxy

import (
	"fmt"
	"strings"
)

// RenderAsm renders the trampoline file for arch in the given dialect. Only
// sanitized stubs are used as symbols; raw export names may hold characters
// no assembler accepts.
func RenderAsm(ctx *TemplateContext, arch Arch, dialect Dialect) string {
	exports := PrepareExports(ctx.Exports)

	var externs, jumps strings.Builder
	for _, exp := range exports {
		switch dialect {
		case MASM:
			ptrType, jmpSize := "DWORD", "dword"
			if arch == X64 {
				ptrType, jmpSize = "QWORD", "qword"
			}
			fmt.Fprintf(&externs, "EXTERN %s:%s\n", exp.Pointer(), ptrType)
			fmt.Fprintf(&jumps, "%[1]s PROC\n    jmp %[3]s ptr [%[2]s]\n%[1]s ENDP\n\n", exp.Symbol(), exp.Pointer(), jmpSize)
		case GAS:
			symbol, pointer, target := exp.Symbol(), exp.Pointer(), ""
			if arch == X86 {
				symbol, pointer = "_"+symbol, "_"+pointer
				target = "*" + pointer
			} else {
				target = "*" + pointer + "(%rip)"
			}
			fmt.Fprintf(&externs, "    .extern %s\n", pointer)
			fmt.Fprintf(&jumps, "    .globl %[1]s\n    .p2align 4\n%[1]s:\n    jmp %[2]s\n\n", symbol, target)
		default:
			panic(fmt.Sprintf("proxy: unhandled assembler dialect %v", dialect))
		}
	}

	return FillOnce(tpl(fmt.Sprintf("jump_%s%s", arch, dialect.Ext())),
		Var{"ASM_EXTERNS", externs.String()},
		Var{"ASM_JUMPS", jumps.String()},
		Var{"DLL_NAME", ctx.DllName},
		Var{"BASE_NAME", ctx.BaseName},
	)
}
