// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/pdiddy/docweaver/pkg/types"
)

// setDefaults registers every config key so environment variables are seen
// by AutomaticEnv even when no config file mentions the key.
func setDefaults(v *viper.Viper) {
	d := types.DefaultConfig()
	v.SetDefault("session.docs_base_path", d.Session.DocsBasePath)
	v.SetDefault("session.sessions_dir", d.Session.SessionsDir)
	v.SetDefault("session.archive_dir", d.Session.ArchiveDir)
	v.SetDefault("input.allowed_extensions", d.Input.AllowedExtensions)
	v.SetDefault("input.max_file_size", d.Input.MaxFileSize)
	v.SetDefault("input.include", []string{})
	v.SetDefault("input.exclude", []string{})
	v.SetDefault("lint.command", d.Lint.Command)
	v.SetDefault("lint.args", d.Lint.Args)
	v.SetDefault("lint.timeout", d.Lint.Timeout)
	v.SetDefault("ledger.enabled", d.Ledger.Enabled)
	v.SetDefault("ledger.path", d.Ledger.Path)
	v.SetDefault("log.level", d.Log.Level)
}

// loadConfig resolves a Config from v.
func loadConfig(v *viper.Viper) (types.Config, error) {
	setDefaults(v)

	c := types.Config{
		Session: types.SessionConfig{
			DocsBasePath: v.GetString("session.docs_base_path"),
			SessionsDir:  v.GetString("session.sessions_dir"),
			ArchiveDir:   v.GetString("session.archive_dir"),
		},
		Input: types.InputConfig{
			AllowedExtensions: v.GetStringSlice("input.allowed_extensions"),
			MaxFileSize:       v.GetInt64("input.max_file_size"),
			Include:           nonEmpty(v.GetStringSlice("input.include")),
			Exclude:           nonEmpty(v.GetStringSlice("input.exclude")),
		},
		Lint: types.LintConfig{
			Command: v.GetString("lint.command"),
			Args:    v.GetStringSlice("lint.args"),
			Timeout: v.GetDuration("lint.timeout"),
		},
		Ledger: types.LedgerConfig{
			Enabled: v.GetBool("ledger.enabled"),
			Path:    v.GetString("ledger.path"),
		},
		Log: types.LogConfig{
			Level: v.GetString("log.level"),
		},
	}

	if c.Session.DocsBasePath == "" {
		return c, fmt.Errorf("session.docs_base_path must not be empty")
	}
	if c.Input.MaxFileSize < 0 {
		return c, fmt.Errorf("input.max_file_size must not be negative")
	}
	if c.Lint.Timeout < 0 {
		return c, fmt.Errorf("lint.timeout must not be negative")
	}
	return c, nil
}

func nonEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

// envKeyReplacer maps nested keys such as lint.command to LINT_COMMAND.
func envKeyReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_")
}
