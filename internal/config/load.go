package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the per-project workflow config file.
const FileName = "config.toml"

// ConfigDir is the directory under a project root holding workflow-managed
// files (config, hooks), matching spec.md §6's `.workflow/` layout.
const ConfigDir = ".workflow"

// FindConfigFile walks up from startDir looking for .workflow/config.toml,
// returning "" if none is found before the filesystem root. Grounded on
// Raven's FindConfigFile.
func FindConfigFile(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ConfigDir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Load resolves and decodes the project's config.toml, starting from
// Default() and overlaying whatever keys the file sets. A missing file is
// not an error: the caller gets pure defaults.
func Load(projectDir string) (Config, error) {
	cfg := Default()

	path, err := FindConfigFile(projectDir)
	if err != nil {
		return cfg, err
	}
	if path == "" {
		return cfg, nil
	}
	return LoadFromFile(path)
}

// LoadFromFile decodes the TOML file at path on top of Default(), so a
// config that only sets a handful of keys still gets sane values for the
// rest.
func LoadFromFile(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}
