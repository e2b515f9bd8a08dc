package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"omop-lite/internal/cdm"
	"omop-lite/internal/config"
	"omop-lite/internal/pipeline"
)

var cfgFile string

var RootCmd = &cobra.Command{
	Use:   "omop-lite",
	Short: "Get an OMOP CDM database running quickly",
	Long: `
  ___  __  __  ___  ___   _    _ _       
 / _ \|  \/  |/ _ \| _ \ | |  (_) |_ ___ 
| (_) | |\/| | (_) |  _/ | |__| |  _/ -_)
 \___/|_|  |_|\___/|_|   |____|_|\__\___|

OMOP Lite - OMOP CDM v5.4 schema and data bootstrap for PostgreSQL and SQL Server.

Without a subcommand the full pipeline runs: schema, tables, data load,
primary keys, foreign keys and indices.
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		o := pipeline.New(cfg, logger, pipeline.WithProgress(newBarProgress(cmd.OutOrStdout())))
		report, err := o.Run(cmd.Context())
		fmt.Fprintln(cmd.OutOrStdout())
		pipeline.RenderReport(cmd.OutOrStdout(), report)
		return err
	},
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return cdm.ExitCodeForError(err)
	}
	return cdm.ExitSuccess
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := RootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ./omop-lite.yaml)")

	// Connection
	pf.String("db-host", config.DefaultHost, "Database host")
	pf.IntP("db-port", "p", 0, "Database port (default 5432, 1433 for mssql)")
	pf.StringP("db-user", "u", config.DefaultUser, "Database user")
	pf.String("db-password", config.DefaultPassword, "Database password")
	pf.StringP("db-name", "d", config.DefaultName, "Database name")
	pf.String("dialect", config.DefaultDialect, "Database dialect (postgresql or mssql)")
	pf.String("schema-name", "", "Database schema name (default public, dbo for mssql)")
	pf.Duration("connect-timeout", config.DefaultConnectTimeout, "How long to wait for the database to answer")
	pf.String("log-level", config.DefaultLogLevel, "Logging level (DEBUG, INFO, WARN, ERROR)")

	// Data
	pf.String("data-dir", config.DefaultDataDir, "Directory holding the <TABLE>.csv files")
	pf.Bool("synthetic", false, "Load the bundled synthetic dataset instead of data-dir")
	pf.Int("synthetic-number", config.DefaultSyntheticNumber, "Synthetic dataset size (100 or 1000)")
	pf.String("synthetic-dir", config.DefaultSyntheticDir, "Directory holding external synthetic datasets (default: bundled)")
	pf.String("delimiter", config.DefaultDelimiter, "Field delimiter of the data files")
	pf.Int("batch-size", config.DefaultBatchSize, "Rows sent to the database per batch")
	pf.Bool("fts-create", false, "Add the full-text search column and index to concept (postgresql)")
	pf.Bool("skip-constraints-on-failure", false, "Skip constraints and indices when any file failed to load")

	for key, flag := range map[string]string{
		config.KeyHost:                     "db-host",
		config.KeyPort:                     "db-port",
		config.KeyUser:                     "db-user",
		config.KeyPassword:                 "db-password",
		config.KeyName:                     "db-name",
		config.KeyDialect:                  "dialect",
		config.KeySchema:                   "schema-name",
		config.KeyConnectTimeout:           "connect-timeout",
		config.KeyLogLevel:                 "log-level",
		config.KeyDataDir:                  "data-dir",
		config.KeySynthetic:                "synthetic",
		config.KeySyntheticNumber:          "synthetic-number",
		config.KeySyntheticDir:             "synthetic-dir",
		config.KeyDelimiter:                "delimiter",
		config.KeyBatchSize:                "batch-size",
		config.KeyFTSCreate:                "fts-create",
		config.KeySkipConstraintsOnFailure: "skip-constraints-on-failure",
	} {
		viper.BindPFlag(key, pf.Lookup(flag))
	}
}

// initConfig loads .env, the optional config file and environment variables.
func initConfig() {
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// 1. Executable Directory (Priority 1)
		if ex, err := os.Executable(); err == nil {
			viper.AddConfigPath(filepath.Dir(ex))
		}
		// 2. Current Directory (Priority 2)
		viper.AddConfigPath(".")

		viper.SetConfigName("omop-lite")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()
	viper.AllowEmptyEnv(true)

	if err := viper.ReadInConfig(); err == nil {
		slog.Debug("using config file", "path", viper.ConfigFileUsed())
	}
}
