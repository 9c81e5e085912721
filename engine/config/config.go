// Package config loads the engine configuration from a TOML file.
package config

import (
	"bytes"
	"os"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/prism/engine/renderer/descriptor"
)

type Config struct {
	Application Application `toml:"application"`
	Renderer    Renderer    `toml:"renderer"`
	Bindless    Bindless    `toml:"bindless"`
	Log         Log         `toml:"log"`
}

type Application struct {
	Name   string `toml:"name"`
	PosX   uint32 `toml:"pos_x"`
	PosY   uint32 `toml:"pos_y"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type Renderer struct {
	Validation bool       `toml:"validation"`
	VSync      bool       `toml:"vsync"`
	ClearColor [4]float32 `toml:"clear_color"`
	Exposure   float32    `toml:"exposure"`
}

type Bindless struct {
	MaxSampledImages uint32 `toml:"max_sampled_images"`
	MaxStorageImages uint32 `toml:"max_storage_images"`
	MaxBuffers       uint32 `toml:"max_buffers"`
	UniformBuffers   bool   `toml:"uniform_buffers"`
}

type Log struct {
	Level string `toml:"level"`
}

func Default() *Config {
	return &Config{
		Application: Application{
			Name:   "Prism",
			PosX:   100,
			PosY:   100,
			Width:  1280,
			Height: 720,
		},
		Renderer: Renderer{
			Validation: true,
			VSync:      true,
			ClearColor: [4]float32{0.05, 0.05, 0.08, 1},
			Exposure:   1,
		},
		Bindless: Bindless{
			MaxSampledImages: 4096,
			MaxStorageImages: 1024,
			MaxBuffers:       4096,
			UniformBuffers:   true,
		},
		Log: Log{
			Level: "debug",
		},
	}
}

// Load reads path on top of the defaults. A missing file yields the defaults,
// unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := Decode(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

// Decode parses data into cfg and validates the result.
func Decode(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	return cfg.Validate()
}

func (c *Config) Validate() error {
	if c.Application.Width == 0 || c.Application.Height == 0 {
		return errors.Newf("window size %dx%d has no area", c.Application.Width, c.Application.Height)
	}
	for _, b := range []struct {
		name     string
		capacity uint32
	}{
		{"max_sampled_images", c.Bindless.MaxSampledImages},
		{"max_storage_images", c.Bindless.MaxStorageImages},
		{"max_buffers", c.Bindless.MaxBuffers},
	} {
		name, capacity := b.name, b.capacity
		if capacity == 0 || capacity > descriptor.MaxCapacity {
			return errors.Newf("bindless %s must be in [1, %d], got %d", name, descriptor.MaxCapacity, capacity)
		}
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log level")
	}
	return nil
}

// DescriptorConfig sizes the bindless descriptor set.
func (c *Config) DescriptorConfig() descriptor.Config {
	return descriptor.Config{
		MaxSampledImages: c.Bindless.MaxSampledImages,
		MaxStorageImages: c.Bindless.MaxStorageImages,
		MaxBuffers:       c.Bindless.MaxBuffers,
		UniformBuffers:   c.Bindless.UniformBuffers,
	}
}
