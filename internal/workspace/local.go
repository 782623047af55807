// internal/workspace/local.go
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"circuitvc/internal/config"
)

const (
	// Dir holds a workspace's database and config.
	Dir        = ".circuitvc"
	ConfigFile = "config.yaml"
)

var ErrNotFound = errors.New("not inside a circuitvc workspace")

// FindRoot searches startDir and its parents for the workspace directory.
func FindRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if info, err := os.Stat(filepath.Join(dir, Dir)); err == nil && info.IsDir() {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", ErrNotFound
}

// Initialize creates the workspace directory under root and writes a
// default config unless one is already there.
func Initialize(root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("getting absolute path for root %s: %w", root, err)
	}

	dir := filepath.Join(absRoot, Dir)
	if err := os.MkdirAll(filepath.Join(dir, "db"), 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, ConfigFile)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return config.Default().Save(path)
}

// Load reads the workspace config at root. The database always lives
// inside the workspace directory.
func Load(root string) (*config.Config, error) {
	dir := filepath.Join(root, Dir)

	cfg, err := config.Load(filepath.Join(dir, ConfigFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg = config.Default()
	case err != nil:
		return nil, err
	}
	cfg.Database.Path = dir
	cfg.Database.InMemory = false
	return cfg, nil
}
