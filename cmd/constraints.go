package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"omop-lite/internal/engine"
)

// phaseCommand builds a command that connects and runs one applier phase.
func phaseCommand(use, short, done string, phase func(*engine.Applier, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if err := phase(s.applier, cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s in schema '%s'\n", done, s.cfg.Schema)
			return nil
		},
	}
}

func addAllConstraints(a *engine.Applier, ctx context.Context) error {
	if err := a.ApplyConstraints(ctx); err != nil {
		return err
	}
	return a.ApplyIndices(ctx)
}

func init() {
	RootCmd.AddCommand(
		phaseCommand("add-constraints", "Add primary keys, foreign keys and indices",
			"Constraints and indices added", addAllConstraints),
		phaseCommand("add-primary-keys", "Add only primary key constraints",
			"Primary keys added", (*engine.Applier).ApplyPrimaryKeys),
		phaseCommand("add-foreign-keys", "Add only foreign key constraints",
			"Foreign keys added", (*engine.Applier).ApplyForeignKeys),
		phaseCommand("add-indices", "Add only indices",
			"Indices added", (*engine.Applier).ApplyIndices),
	)
}
