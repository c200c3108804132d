package bootstrap

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/chromatrack/chromatrack/pkg/config"
)

// SeedScenarioFile writes the stock scenario to path when no file exists
// there, giving a first run an editable starting point. Returns true when
// it wrote the file. An existing file is left untouched.
func SeedScenarioFile(path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	data, err := yaml.Marshal(config.DefaultScenario())
	if err != nil {
		return false, err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return false, err
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return false, err
	}
	return true, nil
}

// SeedRenderDir creates the snapshot output directory when configured
func SeedRenderDir(dir string) error {
	if dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}
