package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rolecraft/turneval/internal/evaluation"
)

func newProfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Print the effective evaluation profile as YAML",
		Long: `Prints the configuration evaluate would use: the --profile file merged
over the defaults. Pipe it to a file to start a new profile.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out, err := evaluation.MarshalProfile(cfg)
			if err != nil {
				return fmt.Errorf("marshal profile: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
