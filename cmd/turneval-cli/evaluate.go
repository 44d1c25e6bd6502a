package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rolecraft/turneval/internal/evaluation"
	"github.com/rolecraft/turneval/internal/model"
)

// gateError reports a score below --fail-below. The report is still printed.
type gateError struct {
	score, gate float64
}

func (e *gateError) Error() string {
	return fmt.Sprintf("overall score %.1f is below %.1f", e.score, e.gate)
}

func newEvaluateCmd() *cobra.Command {
	var (
		contextPath string
		pretty      bool
		failBelow   float64
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate one turn and print the report as JSON",
		Long: `Reads an evaluation context (JSON) from --context, or stdin when the path
is "-", runs every enabled check, and prints the report.

With --fail-below, exits 1 when the overall score is under the gate.`,
		Example: `  turneval-cli evaluate --context turn.json --pretty
  cat turn.json | turneval-cli evaluate --context - --fail-below 70`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ec, err := readContext(cmd.InOrStdin(), contextPath)
			if err != nil {
				return err
			}
			ev, err := evaluation.New(cfg, evaluation.WithLogger(slog.Default()))
			if err != nil {
				return err
			}
			report, err := ev.Evaluate(cmd.Context(), ec)
			if err != nil {
				return fmt.Errorf("evaluate: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if pretty {
				enc.SetIndent("", "  ")
			}
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			if cmd.Flags().Changed("fail-below") && report.OverallScore < failBelow {
				return &gateError{score: report.OverallScore, gate: failBelow}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&contextPath, "context", "c", "", `evaluation context JSON file ("-" for stdin)`)
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent the JSON output")
	cmd.Flags().Float64Var(&failBelow, "fail-below", 0, "exit 1 when the overall score is below this value")
	_ = cmd.MarkFlagRequired("context")
	return cmd
}

func readContext(stdin io.Reader, path string) (model.EvaluationContext, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path) //nolint:gosec // path is an explicit CLI argument
		if err != nil {
			return model.EvaluationContext{}, fmt.Errorf("open context: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	var ec model.EvaluationContext
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ec); err != nil {
		return model.EvaluationContext{}, fmt.Errorf("decode context: %w", err)
	}
	if err := model.ValidateContext(ec); err != nil {
		return model.EvaluationContext{}, err
	}
	return ec, nil
}
