package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/statekit/internal/errors"
	"github.com/vango-dev/statekit/pkg/urlsync"
)

func encodeCmd() *cobra.Command {
	var base, delimiter string

	cmd := &cobra.Command{
		Use:   "encode [key=value...]",
		Short: "Encode state into a URL fragment",
		Long: `Encode key=value pairs into a URL fragment.

Values containing the delimiter are treated as sequences. Empty values
are omitted.

Examples:
  statekit encode brand=gmc year=2024
  statekit encode tags='a|b' --base '?' --delimiter ','`,
		RunE: func(cmd *cobra.Command, args []string) error {
			codec := urlsync.Codec{Base: base, Delimiter: delimiter}
			values, err := parsePairs(args, delimiter)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), codec.Encode(values))
			return nil
		},
	}

	cmd.Flags().StringVar(&base, "base", urlsync.DefaultBase, "Fragment base marker")
	cmd.Flags().StringVar(&delimiter, "delimiter", urlsync.DefaultDelimiter, "Sequence delimiter")

	return cmd
}

func decodeCmd() *cobra.Command {
	var base, delimiter string

	cmd := &cobra.Command{
		Use:   "decode <url>",
		Short: "Decode the state carried by a URL",
		Long: `Decode the fragment of a URL and print the state as JSON.

Examples:
  statekit decode 'https://example.com/build#brand=gmc&tags=a|b'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec := urlsync.Codec{Base: base, Delimiter: delimiter}
			values, err := codec.Decode(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(values)
		},
	}

	cmd.Flags().StringVar(&base, "base", urlsync.DefaultBase, "Fragment base marker")
	cmd.Flags().StringVar(&delimiter, "delimiter", urlsync.DefaultDelimiter, "Sequence delimiter")

	return cmd
}

func parsePairs(args []string, delimiter string) (map[string]any, error) {
	values := make(map[string]any, len(args))
	for _, arg := range args {
		key, val, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, errors.Newf(errors.CategoryCLI, "invalid pair %q, expected key=value", arg)
		}
		if delimiter != "" && strings.Contains(val, delimiter) {
			values[key] = strings.Split(val, delimiter)
			continue
		}
		values[key] = val
	}
	return values, nil
}
