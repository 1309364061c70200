// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the docweaver CLI.
// docweaver turns a set of markdown inputs into one validated document,
// chapter by chapter, inside an isolated session directory.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/docweaver/internal/env"
	"github.com/pdiddy/docweaver/internal/logging"
	"github.com/pdiddy/docweaver/internal/session"
	"github.com/pdiddy/docweaver/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

const envPrefix = "DOCWEAVER"

var (
	// cfg is resolved from defaults, config file, environment, and flags
	// before any subcommand runs.
	cfg = types.DefaultConfig()

	// logger writes human-readable records to stderr.
	logger = logging.Nop()
)

// rootCmd is the base command for the docweaver CLI.
var rootCmd = &cobra.Command{
	Use:   "docweaver",
	Short: "Assemble markdown inputs into one validated document",
	Long: `docweaver assembles markdown inputs into a single document. Each run
lives in a session directory holding copies of the inputs, localized image
assets, per-chapter checkpoints, and logs.

The run command drives the whole workflow; the other subcommands expose its
building blocks (sessions, reference scans, asset localization, checkpoints,
and validation) for inspection and recovery.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := env.LoadDotenv(".env")
		if err != nil {
			return err
		}
		for _, f := range loaded {
			fmt.Fprintln(os.Stderr, "Loaded environment from", f)
		}
		secretsDir, _ := cmd.Flags().GetString("secrets-dir")
		values, err := env.LoadDir(secretsDir)
		if err != nil {
			return err
		}
		if _, err := env.Export(envPrefix, values); err != nil {
			return err
		}

		c, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		cfg = c

		level, err := logging.ParseLevel(cfg.Log.Level)
		if err != nil {
			return err
		}
		logger = logging.NewConsole(os.Stderr, level)
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./docweaver.yaml or ~/.config/docweaver/config.yaml)")
	rootCmd.PersistentFlags().String("secrets-dir", ".secrets", "directory of one-value-per-file settings exported as DOCWEAVER_* variables")
	rootCmd.PersistentFlags().String("docs-base", "", "base directory for sessions and archives")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	viper.BindPFlag("session.docs_base_path", rootCmd.PersistentFlags().Lookup("docs-base"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("docweaver")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "docweaver"))
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(envKeyReplacer())
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// sessionManager returns a manager over the configured docs base.
func sessionManager(l *slog.Logger) *session.Manager {
	return session.NewManager(cfg.Session, session.WithLogger(l))
}

// sessionPath resolves an existing session root for id.
func sessionPath(id string) (string, error) {
	m := sessionManager(logger)
	ok, err := m.Exists(id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("session %s does not exist", id)
	}
	return m.Path(id)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
