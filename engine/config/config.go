package config

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config is the renderer configuration. Load starts from Default and layers
// a TOML file on top, so keys absent from the file keep their defaults.
type Config struct {
	// TexSize is the square atlas edge in pixels.
	TexSize int `toml:"tex_size"`
	// TexRows is the number of equal-height atlas rows.
	TexRows int `toml:"tex_rows"`
	// TexPerBatch caps the atlases one draw call may reference.
	TexPerBatch int `toml:"tex_per_batch"`
	// BatchSize caps the instances one draw call may contain.
	BatchSize int `toml:"batch_size"`
	// BGColor is the normalized opaque canvas background; translucent
	// arrowheads blend against it.
	BGColor [3]float64 `toml:"bg_color"`
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		TexSize:     4096,
		TexRows:     16,
		TexPerBatch: 8,
		BatchSize:   2048,
		BGColor:     [3]float64{1, 1, 1},
	}
}

// Load reads a TOML file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "load config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Validate rejects configurations the renderer cannot honor.
func (c Config) Validate() error {
	if c.TexSize <= 0 {
		return errors.New("tex_size must be positive")
	}
	if c.TexRows <= 0 {
		return errors.New("tex_rows must be positive")
	}
	if c.TexSize%c.TexRows != 0 {
		return errors.Errorf("tex_size %d must be divisible by tex_rows %d", c.TexSize, c.TexRows)
	}
	if c.TexPerBatch < 1 {
		return errors.New("tex_per_batch must be at least 1")
	}
	if c.BatchSize < 1 {
		return errors.New("batch_size must be at least 1")
	}
	for _, v := range c.BGColor {
		if v < 0 || v > 1 {
			return errors.Errorf("bg_color component %v outside [0,1]", v)
		}
	}
	return nil
}
