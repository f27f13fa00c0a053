package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reccd/reccd/internal/config"
)

func TestParseAddressSchemes(t *testing.T) {
	cases := []struct {
		in      string
		network string
		target  string
	}{
		{"dns:example.com:7600", "tcp", "example.com:7600"},
		{"unix:/tmp/reccd.sock", "unix", "/tmp/reccd.sock"},
		{"unix-abstract:reccd", "unix", "@reccd"},
		{"127.0.0.1:7600", "tcp", "127.0.0.1:7600"},
	}
	for _, tc := range cases {
		network, target := config.ParseAddress(tc.in)
		assert.Equal(t, tc.network, network, tc.in)
		assert.Equal(t, tc.target, target, tc.in)
	}
}

func TestIsUDS(t *testing.T) {
	assert.True(t, config.IsUDS("unix:/tmp/x.sock"))
	assert.True(t, config.IsUDS("unix-abstract:x"))
	assert.False(t, config.IsUDS("dns:example.com:80"))
}

func TestLoadFromYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reccd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("address: \"127.0.0.1:9000\"\nmodule_name: demo\n"), 0o600))

	t.Setenv("RECCD_MODULE_NAME", "override")

	desc, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", desc.Address)
	assert.Equal(t, "override", desc.ModuleName)
	assert.Nil(t, desc.TLS)
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	desc, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultServerAddress, desc.Address)
}
