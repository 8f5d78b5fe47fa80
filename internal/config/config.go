// Package config loads per-workspace settings for tree building and emission.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// FileName is the optional config file read from the workspace root.
const FileName = ".xmlpatch.yaml"

// StateDir holds debug logs and is never part of the workspace tree.
const StateDir = ".xmlpatch"

// Settings holds the tunables shared by the tree builder and the emitter.
type Settings struct {
	IgnoreFile   string   `yaml:"ignore_file"`
	ExcludeDirs  []string `yaml:"exclude_dirs"`
	MaxFileSize  int64    `yaml:"max_file_size"`
	MaxTotalSize int64    `yaml:"max_total_size"`
	BatchSize    int      `yaml:"batch_size"`
	BiggestFiles int      `yaml:"biggest_files"`
	// BinaryExtensions extend the built-in denylist.
	BinaryExtensions []string `yaml:"binary_extensions"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		IgnoreFile: ".gitignore",
		ExcludeDirs: []string{
			"node_modules", ".git", "vendor", ".venv", "__pycache__",
			"bower_components", ".yarn", ".pnpm-store", StateDir,
		},
		MaxFileSize:  1 << 20,
		MaxTotalSize: 0,
		BatchSize:    50,
		BiggestFiles: 10,
	}
}

// Load reads FileName from root and overlays it on the defaults. A missing
// file is not an error.
func Load(root string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(filepath.Join(root, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("failed to read %s: %w", FileName, err)
	}

	var fileSettings Settings
	if err := yaml.Unmarshal(data, &fileSettings); err != nil {
		return s, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}
	s.merge(fileSettings)
	return s, nil
}

func (s *Settings) merge(o Settings) {
	if o.IgnoreFile != "" {
		s.IgnoreFile = o.IgnoreFile
	}
	if len(o.ExcludeDirs) > 0 {
		s.ExcludeDirs = o.ExcludeDirs
		if !slices.Contains(s.ExcludeDirs, StateDir) {
			s.ExcludeDirs = append(s.ExcludeDirs, StateDir)
		}
	}
	if o.MaxFileSize > 0 {
		s.MaxFileSize = o.MaxFileSize
	}
	if o.MaxTotalSize > 0 {
		s.MaxTotalSize = o.MaxTotalSize
	}
	if o.BatchSize > 0 {
		s.BatchSize = o.BatchSize
	}
	if o.BiggestFiles > 0 {
		s.BiggestFiles = o.BiggestFiles
	}
	s.BinaryExtensions = append(s.BinaryExtensions, o.BinaryExtensions...)
}
