package main

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"slices"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/vango-dev/statekit/pkg/server"
	"github.com/vango-dev/statekit/pkg/state"
	"github.com/vango-dev/statekit/pkg/urlsync"
	"github.com/vango-dev/statekit/pkg/validate"
)

func checkCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "check <url>",
		Short: "Validate the state carried by a URL",
		Long: `Run the state of a URL, with configured defaults filled in, through
the validation rules of statekit.yaml.

On success the canonical URL is printed. On rejection every invalid key
is listed and the command exits with status 1.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			return runCheck(cmd.Context(), cmd.OutOrStdout(), storeFactory(cfg, logger), cfg.Codec(), args[0], logger)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./statekit.yaml)")

	return cmd
}

func runCheck(ctx context.Context, w io.Writer, factory server.StoreFactory, codec urlsync.Codec, href string, logger *slog.Logger) error {
	store, _ := factory()
	loc := urlsync.NewMemoryLocation(href)
	syncer := urlsync.New(store, loc, urlsync.WithCodec(codec), urlsync.WithLogger(logger))

	res, err := syncer.Loaded(ctx)
	switch {
	case err == nil:
		success(w, "%s", loc.Href())
		return nil
	case res != nil && stderrors.Is(err, state.ErrValidation):
		keys := lo.Keys(res.InvalidParams)
		slices.Sort(keys)
		for _, key := range keys {
			warn(w, "%s: %s is not valid", key, validate.Stringify(res.InvalidParams[key]))
		}
		return errRejected
	default:
		return err
	}
}
