package pe

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// GUID has the same layout as golang.org/x/sys/windows.GUID but builds on
// every platform. Visual Studio files reference projects and filter groups by
// GUID, so the type mostly exists to print them the way the IDE does.
type GUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

// NewGUID returns a random (version 4) GUID.
func NewGUID() GUID {
	return GuidFromArray(uuid.New())
}

// GuidFromArray constructs a GUID from a big-endian encoding array of 16 bytes.
func GuidFromArray(b [16]byte) GUID {
	var g GUID
	g.Data1 = binary.BigEndian.Uint32(b[0:4])
	g.Data2 = binary.BigEndian.Uint16(b[4:6])
	g.Data3 = binary.BigEndian.Uint16(b[6:8])
	copy(g.Data4[:], b[8:16])
	return g
}

// ToString formats the GUID. The format parameter can be "N" (32 digits),
// "D" (hyphenated), "B" (hyphenated in braces) or "P" (hyphenated in
// parentheses). If format is an empty string, "D" is used.
func (g GUID) ToString(format string) (string, error) {
	d := fmt.Sprintf(
		"%08x-%04x-%04x-%04x-%012x",
		g.Data1,
		g.Data2,
		g.Data3,
		g.Data4[:2],
		g.Data4[2:])

	switch format {
	case "", "D":
		return d, nil
	case "N":
		return strings.ReplaceAll(d, "-", ""), nil
	case "B":
		return "{" + d + "}", nil
	case "P":
		return "(" + d + ")", nil
	}

	return "", errors.Errorf("invalid GUID format %q", format)
}

// Registry returns the upper-case braced form used in solution and project
// files, e.g. {8BC9CEB8-8B4A-11D0-8D11-00A0C91BC942}.
func (g GUID) Registry() string {
	s, _ := g.ToString("B")
	return strings.ToUpper(s)
}

func (g GUID) String() string {
	guidStr, _ := g.ToString("")
	return guidStr
}
