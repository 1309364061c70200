// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package env loads process environment overrides before configuration is
// read: KEY=VALUE pairs from .env files and one-value-per-file entries from a
// secrets directory. Values already present in the environment always win.
package env

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotenv loads each existing file in paths with godotenv. Missing files
// are skipped. It returns the files that were loaded.
func LoadDotenv(paths ...string) ([]string, error) {
	var loaded []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("checking %s: %w", p, err)
		}
		if err := godotenv.Load(p); err != nil {
			return loaded, fmt.Errorf("loading %s: %w", p, err)
		}
		loaded = append(loaded, p)
	}
	return loaded, nil
}

// LoadDir reads all files in dir and returns a map of filename to trimmed
// contents. A missing directory is not an error. Dotfiles, subdirectories
// and empty files are skipped.
func LoadDir(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	values := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading secret %s: %w", name, err)
		}
		if v := strings.TrimSpace(string(data)); v != "" {
			values[name] = v
		}
	}
	return values, nil
}

// VarName maps a file name such as "lint-command" to PREFIX_LINT_COMMAND.
func VarName(prefix, name string) string {
	key := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
	if prefix == "" {
		return key
	}
	return strings.ToUpper(prefix) + "_" + key
}

// Export sets VarName(prefix, name) for each entry of values that is not
// already set and returns the variable names it set, sorted.
func Export(prefix string, values map[string]string) ([]string, error) {
	var set []string
	for name, v := range values {
		key := VarName(prefix, name)
		if _, ok := os.LookupEnv(key); ok {
			continue
		}
		if err := os.Setenv(key, v); err != nil {
			return set, fmt.Errorf("setting %s: %w", key, err)
		}
		set = append(set, key)
	}
	sort.Strings(set)
	return set, nil
}
