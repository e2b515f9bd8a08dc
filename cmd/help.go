package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var commandUseCases = map[string]string{
	"test":             "Verify connection, troubleshoot",
	"create-tables":    "Step-by-step setup, custom workflows",
	"load-data":        "Reload data, update datasets",
	"add-constraints":  "Complete constraint setup",
	"add-primary-keys": "Granular constraint control",
	"add-foreign-keys": "Granular constraint control",
	"add-indices":      "Granular constraint control",
	"drop":             "Cleanup, reset database",
	"generate":         "Synthetic data for demos and tests",
	"help-commands":    "Discover available commands",
}

var helpCommandsCmd = &cobra.Command{
	Use:   "help-commands",
	Short: "Show this help table",
	Run: func(cmd *cobra.Command, args []string) {
		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.SetStyle(table.StyleLight)
		t.SetTitle("OMOP Lite Commands")
		t.AppendHeader(table.Row{"Command", "Description", "Use Case"})
		t.AppendRow(table.Row{"[default]", "Create complete OMOP database (tables + data + constraints)", "Quick start, development, Docker"})
		for _, c := range RootCmd.Commands() {
			useCase, ok := commandUseCases[c.Name()]
			if !ok {
				continue
			}
			t.AppendRow(table.Row{c.Name(), c.Short, useCase})
		}
		t.Render()

		fmt.Fprintln(cmd.OutOrStdout(), "\nTip: use 'omop-lite <command> --help' for detailed command options")
		fmt.Fprintln(cmd.OutOrStdout(), "Quick start: omop-lite --synthetic")
	},
}

func init() {
	RootCmd.AddCommand(helpCommandsCmd)
}
