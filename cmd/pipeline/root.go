package main

import (
	"github.com/spf13/cobra"

	"shorts_pipeline/internal/config"
)

func newRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "pipeline",
		Short:         "Turn popular Reddit posts into narrated short videos",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Configuration file path")

	load := func() (*config.Config, error) {
		return config.Load(configPath)
	}

	rootCmd.AddCommand(newRunCommand(load))
	rootCmd.AddCommand(newShowCommand(load))

	return rootCmd
}
