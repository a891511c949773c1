package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// FileOverlay is the optional TOML file read by the command line tool.
// Zero values leave the environment configuration untouched.
type FileOverlay struct {
	FFmpegPath       string `toml:"ffmpeg_path"`
	FFprobePath      string `toml:"ffprobe_path"`
	CleanupOnFailure *bool  `toml:"cleanup_on_failure"`
	DefaultWidth     int    `toml:"default_width"`
	DefaultHeight    int    `toml:"default_height"`
	LogLevel         string `toml:"log_level"`
}

// DefaultFilePath returns $XDG_CONFIG_HOME/cutstudio/config.toml, falling
// back to ~/.config.
func DefaultFilePath() (string, error) {
	if base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); base != "" {
		return filepath.Join(base, "cutstudio", "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "cutstudio", "config.toml"), nil
}

// LoadWithFile loads the environment configuration and overlays the TOML file
// at path. A missing file at the default location is not an error; a missing
// explicit path is.
func LoadWithFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	explicit := path != ""
	if !explicit {
		if path, err = DefaultFilePath(); err != nil {
			return cfg, nil
		}
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var overlay FileOverlay
	if err := toml.NewDecoder(file).Decode(&overlay); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	overlay.apply(cfg)
	return cfg, nil
}

func (o FileOverlay) apply(cfg *Config) {
	if o.FFmpegPath != "" {
		cfg.FFmpegPath = o.FFmpegPath
	}
	if o.FFprobePath != "" {
		cfg.FFprobePath = o.FFprobePath
	}
	if o.CleanupOnFailure != nil {
		cfg.CleanupOnFailure = *o.CleanupOnFailure
	}
	if o.DefaultWidth > 0 {
		cfg.DefaultWidth = o.DefaultWidth
	}
	if o.DefaultHeight > 0 {
		cfg.DefaultHeight = o.DefaultHeight
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
}
