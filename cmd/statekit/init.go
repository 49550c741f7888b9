package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vango-dev/statekit/internal/config"
	"github.com/vango-dev/statekit/internal/errors"
)

func initCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a statekit.yaml",
		Long: `Write a statekit.yaml with default settings and an example param.

Pass a path ending in .json to write JSON instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ConfigFileName
			if len(args) == 1 {
				path = args[0]
				if filepath.Ext(path) == "" {
					path = filepath.Join(path, config.ConfigFileName)
				}
			}

			if _, err := os.Stat(path); err == nil && !force {
				return errors.New(errors.CodeConfigInvalid).
					WithDetail(path + " already exists").
					WithSuggestion("Use --force to overwrite it")
			}

			if err := starterConfig().SaveTo(path); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Created %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	return cmd
}

func starterConfig() *config.Config {
	cfg := config.New()
	cfg.Name = "statekit"
	cfg.StateCSS = []string{"view"}
	cfg.Params["view"] = config.ParamConfig{
		OneOf:   []string{"grid", "list"},
		Default: "grid",
	}
	return cfg
}
