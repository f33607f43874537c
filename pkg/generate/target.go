package generate

import (
	"strings"

	"github.com/pkg/errors"

	"aheadlib/pkg/proxy"
)

// Target is the kind of output requested: SourceTarget, StudioTarget or
// CMakeTarget.
type Target interface {
	target()
	String() string
}

// SourceTarget writes only the C, assembly and .def files.
type SourceTarget struct{}

// StudioTarget adds a Visual Studio solution and project.
type StudioTarget struct {
	Studio proxy.Studio
}

// CMakeTarget adds a CMakeLists.txt.
type CMakeTarget struct{}

func (SourceTarget) target() {}
func (StudioTarget) target() {}
func (CMakeTarget) target()  {}

func (SourceTarget) String() string   { return "source" }
func (t StudioTarget) String() string { return t.Studio.String() }
func (CMakeTarget) String() string    { return "cmake" }

// ParseTarget maps a target name, case-insensitively, to a Target.
func ParseTarget(name string) (Target, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "source", "src", "c":
		return SourceTarget{}, nil
	case "vs2022", "2022":
		return StudioTarget{Studio: proxy.VS2022}, nil
	case "vs2026", "2026":
		return StudioTarget{Studio: proxy.VS2026}, nil
	case "cmake":
		return CMakeTarget{}, nil
	}
	return nil, errors.Wrapf(ErrUnknownTarget, "%q", name)
}

// ParseOrigin reads an origin load mode: "system", "samedir",
// "samedir:<name>" or "custom:<path>". name and path fill in the parts the
// mode string leaves out.
func ParseOrigin(mode, name, path string) (proxy.OriginLoadMode, error) {
	kind, arg := mode, ""
	if i := strings.IndexByte(mode, ':'); i >= 0 {
		kind, arg = mode[:i], mode[i+1:]
	}

	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "system", "systemdir", "sys":
		return proxy.SystemDir{}, nil
	case "samedir", "same":
		if arg == "" {
			arg = name
		}
		return proxy.SameDir{OriginalName: strings.TrimSpace(arg)}, nil
	case "custom", "path":
		if arg == "" {
			arg = path
		}
		return proxy.CustomPath{Path: strings.TrimSpace(arg)}, nil
	}
	return nil, errors.Errorf("unknown origin load mode %q", mode)
}
