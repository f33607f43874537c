package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv registers every variable with t.Setenv so the test restores it,
// then unsets it.
func clearEnv(t *testing.T) {
	for _, key := range []string{EnvOriginMode, EnvOriginName, EnvOriginPath, EnvAsm, EnvVerbose} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFiles(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Nil(t, cfg)

	cfg, err = fromEnv()
	require.NoError(t, err)
	assert.Equal(t, &Config{OriginMode: DefaultOriginMode}, cfg)
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvOriginMode, "samedir")
	t.Setenv(EnvOriginName, " version_orig.dll ")
	t.Setenv(EnvAsm, "gas")
	t.Setenv(EnvVerbose, "1")

	cfg, err := fromEnv()
	require.NoError(t, err)
	assert.Equal(t, "samedir", cfg.OriginMode)
	assert.Equal(t, "version_orig.dll", cfg.OriginName)
	assert.Equal(t, "gas", cfg.Asm)
	assert.True(t, cfg.Verbose)
}

func TestLoadInvalidVerbose(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvVerbose, "loud")

	_, err := fromEnv()
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"AHEADLIB_ORIGIN_MODE=custom\n"+
			"AHEADLIB_ORIGIN_PATH=C:\\proxy\\real.dll\n"+
			"AHEADLIB_VERBOSE=false\n"), 0644))

	// The environment wins over the file.
	t.Setenv(EnvOriginMode, "system")

	cfg, err := LoadFiles(path)
	require.NoError(t, err)
	assert.Equal(t, "system", cfg.OriginMode)
	assert.Equal(t, `C:\proxy\real.dll`, cfg.OriginPath)
	assert.False(t, cfg.Verbose)
}
