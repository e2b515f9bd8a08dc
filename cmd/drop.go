package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"omop-lite/internal/engine"
)

var (
	tablesOnly  bool
	schemaOnly  bool
	skipConfirm bool
)

var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Drop tables and/or schema",
	Long: `Drops every table of the schema and then the schema itself.
The built-in schema (public, dbo) is never dropped; its tables are dropped instead.
This permanently deletes data.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if tablesOnly && schemaOnly {
			return fmt.Errorf("--tables-only and --schema-only are mutually exclusive")
		}
		mode := engine.DropAll
		switch {
		case tablesOnly:
			mode = engine.DropTablesOnly
		case schemaOnly:
			mode = engine.DropSchemaOnly
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if !skipConfirm && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), dropWarning(mode, s.cfg.Schema)) {
			fmt.Fprintln(cmd.OutOrStdout(), "Operation cancelled.")
			return nil
		}

		if err := s.applier.Drop(cmd.Context(), mode); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Dropped from schema '%s'\n", s.cfg.Schema)
		return nil
	},
}

func dropWarning(mode engine.DropMode, schemaName string) string {
	switch mode {
	case engine.DropTablesOnly:
		return fmt.Sprintf("This will drop ALL TABLES in schema '%s'.", schemaName)
	case engine.DropSchemaOnly:
		return fmt.Sprintf("This will drop SCHEMA '%s' and ALL ITS CONTENTS.", schemaName)
	}
	return fmt.Sprintf("This will drop ALL TABLES and SCHEMA '%s'.", schemaName)
}

// confirm asks a yes/no question, defaulting to no.
func confirm(in io.Reader, out io.Writer, warning string) bool {
	fmt.Fprintf(out, "WARNING: %s This action cannot be undone!\n", warning)
	fmt.Fprint(out, "Are you sure you want to continue? [y/N]: ")
	answer, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

func init() {
	RootCmd.AddCommand(dropCmd)

	dropCmd.Flags().BoolVar(&tablesOnly, "tables-only", false, "Drop only tables, keep the schema")
	dropCmd.Flags().BoolVar(&schemaOnly, "schema-only", false, "Drop the schema (tables instead for the built-in schema)")
	dropCmd.Flags().BoolVar(&skipConfirm, "confirm", false, "Skip confirmation prompt")
}
