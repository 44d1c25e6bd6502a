// Command turneval-cli evaluates conversation turns locally, without a server.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rolecraft/turneval/internal/evaluation"
)

// Exit codes.
const (
	exitOK        = 0
	exitBelowGate = 1
	exitError     = 2
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return exitOK
	}
	var gate *gateError
	if errors.As(err, &gate) {
		fmt.Fprintln(root.ErrOrStderr(), gate.Error())
		return exitBelowGate
	}
	fmt.Fprintln(root.ErrOrStderr(), "error:", err)
	return exitError
}

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "turneval-cli",
		Short:         "Evaluate agent conversation turns for quality issues",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log analyzer diagnostics to stderr")
	root.PersistentFlags().String("profile", "", "evaluation profile (YAML); defaults apply when empty")
	root.AddCommand(newEvaluateCmd(), newProfileCmd())
	return root
}

// loadConfig resolves the --profile flag into an evaluation config.
func loadConfig(cmd *cobra.Command) (evaluation.Config, error) {
	path, err := cmd.Flags().GetString("profile")
	if err != nil {
		return evaluation.Config{}, err
	}
	if path == "" {
		return evaluation.DefaultConfig(), nil
	}
	return evaluation.LoadProfile(path)
}
