// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/mudcore/internal/config"
	"github.com/ManuGH/mudcore/internal/version"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newConfigValidateCmd(), newConfigDumpCmd())
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load a configuration file and report validation errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(file)
			if _, err := config.NewLoader(path, version.Version).Load(); err != nil {
				return fmt.Errorf("configuration error in %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "path to YAML configuration file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newConfigDumpCmd() *cobra.Command {
	var file, format string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the effective configuration with secrets masked",
		Long: `Prints the configuration after defaults, file and environment
overrides are applied. Without --file only defaults and environment apply.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader(strings.TrimSpace(file), version.Version).Load()
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			// Secrets never leave the process.
			if cfg.Redis.Password != "" {
				cfg.Redis.Password = "***"
			}
			return encodeConfig(cmd.OutOrStdout(), cfg, format)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "path to YAML configuration file")
	cmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml or json")
	return cmd
}

func encodeConfig(w io.Writer, cfg config.AppConfig, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
