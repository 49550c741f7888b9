package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/statekit/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// errRejected makes the process exit non-zero without printing an error;
// the command has already reported the rejected keys.
var errRejected = stderrors.New("state rejected")

var noColor bool

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !stderrors.Is(err, errRejected) {
			printError(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "statekit",
		Short: "Validated key/value state synchronised with the URL",
		Long: `statekit keeps a flat key/value state in step with the URL fragment.

Every change runs through a validation pipeline and is applied all or
nothing. The CLI encodes and decodes fragments, checks URLs against a
statekit.yaml, and serves the store over HTTP and WebSocket.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				errors.DisableColors()
			} else {
				errors.EnableColors()
			}
		},
	}
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored error output")

	rootCmd.AddCommand(
		encodeCmd(),
		decodeCmd(),
		checkCmd(),
		serveCmd(),
		initCmd(),
		explainCmd(),
		versionCmd(),
	)
	return rootCmd
}

func printError(w io.Writer, err error) {
	var e *errors.Error
	if stderrors.As(err, &e) {
		fmt.Fprintln(w, e.Format())
		return
	}
	fmt.Fprintf(w, "\033[31mError:\033[0m %s\n", err)
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
