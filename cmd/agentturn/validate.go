package main

import (
	"fmt"

	"github.com/agentturn/core/internal/config"
	"github.com/spf13/cobra"
)

func buildValidateConfigCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate a configuration file, printing every problem found",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "agentturn.yaml", "Path to YAML configuration file")
	return cmd
}
