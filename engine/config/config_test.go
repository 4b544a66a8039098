package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weft.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
tex_size = 1024
tex_rows = 16
tex_per_batch = 4
batch_size = 512
bg_color = [0.0, 0.0, 0.0]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.TexSize)
	assert.Equal(t, 16, cfg.TexRows)
	assert.Equal(t, 4, cfg.TexPerBatch)
	assert.Equal(t, 512, cfg.BatchSize)
	assert.Equal(t, [3]float64{0, 0, 0}, cfg.BGColor)
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weft.toml")
	require.NoError(t, os.WriteFile(path, []byte("batch_size = 64\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.BatchSize)
	assert.Equal(t, Default().TexSize, cfg.TexSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero tex size", func(c *Config) { c.TexSize = 0 }},
		{"zero rows", func(c *Config) { c.TexRows = 0 }},
		{"indivisible rows", func(c *Config) { c.TexRows = 7 }},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }},
		{"zero tex per batch", func(c *Config) { c.TexPerBatch = 0 }},
		{"color out of range", func(c *Config) { c.BGColor[1] = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}
