package proxy

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Visual Studio names the 32-bit platform Win32 inside projects and x86 in
// solutions.
func vsPlatform(arch Arch) (project, solution string) {
	if arch == X64 {
		return "x64", "x64"
	}
	return "Win32", "x86"
}

func vcProjectVersion(studio Studio) string {
	switch studio {
	case VS2022:
		return "17.0"
	case VS2026:
		return "18.0"
	}
	panic(fmt.Sprintf("proxy: unhandled Visual Studio generation %v", studio))
}

// SolutionFileName is "AheadLib_<base>.sln" for VS2022 and ".slnx" for VS2026.
func SolutionFileName(base string, studio Studio) string {
	if studio == VS2026 {
		return "AheadLib_" + base + ".slnx"
	}
	return "AheadLib_" + base + ".sln"
}

func ProjectFileName(base string) string {
	return base + ".vcxproj"
}

// RenderSolution renders a classic .sln with a single project.
func RenderSolution(ctx *TemplateContext, arch Arch) string {
	platform, slnPlatform := vsPlatform(arch)
	return FillOnce(tpl("solution.sln"),
		Var{"PROJECT_NAME", ctx.ProjectName},
		Var{"BASE_NAME", ctx.BaseName},
		Var{"PROJECT_GUID", ctx.Guids.Project.Registry()},
		Var{"SOLUTION_GUID", ctx.Guids.Solution.Registry()},
		Var{"PLATFORM", platform},
		Var{"SLN_PLATFORM", slnPlatform},
	)
}

// RenderSlnx renders the XML solution format introduced with VS2026.
func RenderSlnx(ctx *TemplateContext, arch Arch) string {
	_, slnPlatform := vsPlatform(arch)
	return FillOnce(tpl("solution.slnx"),
		Var{"BASE_NAME", xmlText(ctx.BaseName)},
		Var{"PROJECT_ID", ctx.Guids.Project.String()},
		Var{"SLN_PLATFORM", slnPlatform},
	)
}

// RenderVcxproj renders the project. x64 projects assemble the MASM
// trampolines; x86 projects use the naked functions in the C file.
func RenderVcxproj(ctx *TemplateContext, arch Arch, studio Studio) string {
	platform, _ := vsPlatform(arch)
	defines := ""
	if arch == X86 {
		defines = "WIN32;"
	}

	var asmGroup, extSettings, extTargets string
	if arch == X64 {
		asmGroup = "  <ItemGroup>\n    <MASM Include=\"" + xmlText(AsmFileName(ctx.BaseName, arch, MASM)) + "\" />\n  </ItemGroup>\n"
		extSettings = "    <Import Project=\"$(VCTargetsPath)\\BuildCustomizations\\masm.props\" />\n"
		extTargets = "    <Import Project=\"$(VCTargetsPath)\\BuildCustomizations\\masm.targets\" />\n"
	}

	return FillOnce(tpl("project.vcxproj"),
		Var{"ASM_ITEM_GROUP", asmGroup},
		Var{"EXTENSION_SETTINGS", extSettings},
		Var{"EXTENSION_TARGETS", extTargets},
		Var{"PROJECT_NAME", xmlText(ctx.ProjectName)},
		Var{"BASE_NAME", xmlText(ctx.BaseName)},
		Var{"PROJECT_GUID", ctx.Guids.Project.Registry()},
		Var{"VC_PROJECT_VERSION", vcProjectVersion(studio)},
		Var{"TOOLSET", studio.Toolset()},
		Var{"PLATFORM", platform},
		Var{"PLATFORM_DEFINES", defines},
		Var{"EXPORTS_MACRO", ExportsMacro(ctx.ProjectName)},
		Var{"C_FILE", xmlText(CFileName(ctx.BaseName, arch))},
		Var{"DEF_FILE", xmlText(DefFileName(ctx.BaseName))},
	)
}

// RenderFilters renders the Solution Explorer grouping of the project files.
func RenderFilters(ctx *TemplateContext, arch Arch) string {
	var asmGroup string
	if arch == X64 {
		asmGroup = "  <ItemGroup>\n    <MASM Include=\"" + xmlText(AsmFileName(ctx.BaseName, arch, MASM)) + "\">\n" +
			"      <Filter>Source Files</Filter>\n    </MASM>\n  </ItemGroup>\n"
	}

	return FillOnce(tpl("project.vcxproj.filters"),
		Var{"ASM_FILTER_GROUP", asmGroup},
		Var{"GUID_SOURCE", ctx.Guids.FilterSource.Registry()},
		Var{"GUID_HEADER", ctx.Guids.FilterHeader.Registry()},
		Var{"GUID_RESOURCE", ctx.Guids.FilterResource.Registry()},
		Var{"C_FILE", xmlText(CFileName(ctx.BaseName, arch))},
		Var{"DEF_FILE", xmlText(DefFileName(ctx.BaseName))},
	)
}

func RenderUser() string {
	return tpl("project.vcxproj.user")
}

// RenderCMakeLists renders a list file that builds the proxy with MSVC
// (pragmas, plus MASM on x64) or a GNU toolchain (GAS trampolines and the
// .def file). The CMake target is a sanitized identifier; the DLL keeps the
// original stem through OUTPUT_NAME.
func RenderCMakeLists(ctx *TemplateContext, arch Arch) string {
	var msvc strings.Builder
	if arch == X64 {
		msvc.WriteString("  enable_language(ASM_MASM)\n")
		msvc.WriteString("  set(AHEADLIB_ASM \"" + cmakeString(AsmFileName(ctx.BaseName, arch, MASM)) + "\")\n")
	} else {
		msvc.WriteString("  set(AHEADLIB_ASM \"\")\n")
	}

	return FillOnce(tpl("CMakeLists.txt"),
		Var{"CMAKE_MSVC_SOURCES", msvc.String()},
		Var{"TARGET_NAME", SanitizeIdentifier(ctx.ProjectName)},
		Var{"DLL_NAME", ctx.DllName},
		Var{"BASE_NAME", cmakeString(ctx.BaseName)},
		Var{"ARCH", arch.String()},
		Var{"EXPORTS_MACRO", ExportsMacro(ctx.ProjectName)},
		Var{"C_FILE", cmakeString(CFileName(ctx.BaseName, arch))},
		Var{"ASM_GAS_FILE", cmakeString(AsmFileName(ctx.BaseName, arch, GAS))},
		Var{"DEF_FILE", cmakeString(DefFileName(ctx.BaseName))},
	)
}

// xmlText escapes s for XML character data and attribute values.
func xmlText(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

var cmakeEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`)

// cmakeString escapes s for a CMake quoted argument.
func cmakeString(s string) string {
	return cmakeEscaper.Replace(s)
}
