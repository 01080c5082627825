package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen = ":7001"
data_dir = "/tmp/docmesh-test"
auth_tokens = ["t"]
`), 0o600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":7001", cfg.Listen)
	assert.Equal(t, "/tmp/docmesh-test", cfg.DataDir)
}

func TestLoadConfigEnvOnly(t *testing.T) {
	t.Setenv("DOCMESH_DATA_DIR", "/tmp/docmesh-env")
	t.Setenv("DOCMESH_AUTH_TOKENS", "t")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/docmesh-env", cfg.DataDir)
}

func TestLoadConfigIncomplete(t *testing.T) {
	// No data dir or tokens anywhere.
	t.Setenv("DOCMESH_DATA_DIR", "")
	t.Setenv("DOCMESH_AUTH_TOKENS", "")
	_, err := loadConfig("")
	assert.Error(t, err)
}
