package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"omop-lite/internal/cdm"
	"omop-lite/internal/dialect"
	"omop-lite/internal/engine"
	"omop-lite/internal/pipeline"
	"omop-lite/internal/schema"
)

var loadDataCmd = &cobra.Command{
	Use:   "load-data",
	Short: "Load data files into existing tables",
	Long: `Loads every <TABLE>.csv found in the data directory (or the synthetic
dataset with --synthetic) into its table. Tables without a file are skipped;
a failing file is reported and the remaining files are still loaded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		d, err := dialect.GetDialect(cfg.Dialect)
		if err != nil {
			return err
		}
		specs, err := schema.LoadSpecs(d, cfg.Schema)
		if err != nil {
			return err
		}
		cfg, cleanup, err := engine.PrepareSource(cfg, specs, logger)
		if err != nil {
			return err
		}
		defer cleanup()
		if err := cfg.CheckSource(); err != nil {
			return err
		}

		s, err := connect(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer s.Close()

		loader := engine.NewLoader(s.db, s.cfg, specs, s.logger)
		jobs, err := loader.Plan()
		if err != nil {
			return err
		}

		progress := newBarProgress(cmd.OutOrStdout())
		progress.Start(len(jobs))
		err = loader.Execute(cmd.Context(), jobs, progress.Step)
		progress.Stop()

		report := &pipeline.Report{State: pipeline.Success, Jobs: jobs}
		if err != nil {
			report.State = pipeline.Fatal
			report.Phase = "load"
			report.Err = err
		} else if failed := engine.Failures(jobs); len(failed) > 0 {
			report.State = pipeline.PartialFailure
			err = fmt.Errorf("%w: %d of %d files failed", cdm.ErrPartialLoad, len(failed), len(jobs))
		}
		fmt.Fprintln(cmd.OutOrStdout())
		pipeline.RenderReport(cmd.OutOrStdout(), report)
		return err
	},
}

func init() {
	RootCmd.AddCommand(loadDataCmd)
}
