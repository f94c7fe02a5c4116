package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	require.Equal(t, "cell-local", cfg.CellID)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestFlags_DefaultOff(t *testing.T) {
	flags := NewFlags()
	for _, f := range allFeatures {
		require.False(t, flags.Enabled(f))
	}
	flags.Set(FeatureArbitration, true)
	require.True(t, flags.Enabled(FeatureArbitration))
	require.False(t, flags.Enabled(FeatureContainment))
}

func TestLoadFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cell.yaml")
	content := []byte("cell_id: cell-a\ntenant_id: tenant-a\nfeatures:\n  arbitration: true\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "cell-a", cfg.CellID)
	require.Equal(t, "tenant-a", cfg.TenantID)

	flags := cfg.FlagRegistry()
	require.True(t, flags.Enabled(FeatureArbitration))
	require.False(t, flags.Enabled(FeatureContainment))
}
