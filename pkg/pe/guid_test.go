package pe

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuidFormats(t *testing.T) {
	g := GuidFromArray([16]byte{0x8b, 0xc9, 0xce, 0xb8, 0x8b, 0x4a, 0x11, 0xd0, 0x8d, 0x11, 0x00, 0xa0, 0xc9, 0x1b, 0xc9, 0x42})
	assert.Equal(t, uint32(0x8bc9ceb8), g.Data1)
	assert.Equal(t, uint16(0x11d0), g.Data3)

	n, err := g.ToString("N")
	require.NoError(t, err)
	assert.Equal(t, "8bc9ceb88b4a11d08d1100a0c91bc942", n)

	b, err := g.ToString("B")
	require.NoError(t, err)
	assert.Equal(t, "{8bc9ceb8-8b4a-11d0-8d11-00a0c91bc942}", b)

	p, err := g.ToString("P")
	require.NoError(t, err)
	assert.Equal(t, "(8bc9ceb8-8b4a-11d0-8d11-00a0c91bc942)", p)

	assert.Equal(t, "8bc9ceb8-8b4a-11d0-8d11-00a0c91bc942", g.String())
	assert.Equal(t, "{8BC9CEB8-8B4A-11D0-8D11-00A0C91BC942}", g.Registry())

	_, err = g.ToString("X")
	assert.Error(t, err)
}

func TestNewGUIDIsRandom(t *testing.T) {
	registry := regexp.MustCompile(`^\{[0-9A-F]{8}-[0-9A-F]{4}-4[0-9A-F]{3}-[89AB][0-9A-F]{3}-[0-9A-F]{12}\}$`)

	seen := map[GUID]bool{}
	for i := 0; i < 16; i++ {
		g := NewGUID()
		assert.Regexp(t, registry, g.Registry())
		assert.False(t, seen[g])
		seen[g] = true
	}
}

func TestOrdLookup(t *testing.T) {
	assert.Equal(t, "accept", OrdLookup("WS2_32.dll", 1, false))
	assert.Equal(t, "WSAStartup", OrdLookup(`C:\Windows\System32\wsock32.dll`, 115, false))
	assert.Equal(t, "SysAllocString", OrdLookup("oleaut32.dll", 2, true))
	assert.Equal(t, "", OrdLookup("oleaut32.dll", 9999, false))
	assert.Equal(t, "ord7", OrdLookup("user32.dll", 7, true))
}

func TestSanityHelpers(t *testing.T) {
	assert.True(t, validFuncName([]byte("?Func@@YAXH@Z")))
	assert.True(t, validFuncName([]byte("GetProcAddress")))
	assert.False(t, validFuncName([]byte("bad\x01name")))
	assert.True(t, validDosFilename([]byte("version.dll")))
	assert.True(t, PowerOfTwo(0x200))
	assert.False(t, PowerOfTwo(0x300))
	assert.Equal(t, uint32(0x2000), AlignUpUInt32(0x1001, 0x1000))
	assert.Equal(t, uint32(0x1000), AlignDownUInt32(0x1fff, 0x1000))
}
