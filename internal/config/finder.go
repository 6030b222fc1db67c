package config

import (
	"os"
	"path/filepath"
)

// FindProjectFile finds the project file by walking up directories
func FindProjectFile(dir string) string {
	for {
		path := filepath.Join(dir, ProjectFile)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}

// FindGlobalConfig returns the user-wide config file if one exists
func FindGlobalConfig() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}

	path := filepath.Join(dir, "nxbuild", "config.toml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}

	return path
}
