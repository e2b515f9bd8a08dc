package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var createTablesCmd = &cobra.Command{
	Use:   "create-tables",
	Short: "Create the schema and the CDM tables only",
	Long: `Creates the target schema when it is missing and every OMOP CDM v5.4 table.
Existing tables are left as they are. With --fts-create the concept table also
gets its full-text search column and index.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.applier.ApplySchema(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Tables created in schema '%s'\n", s.cfg.Schema)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(createTablesCmd)
}
