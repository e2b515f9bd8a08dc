package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/viper"

	"omop-lite/internal/config"
	"omop-lite/internal/db"
	"omop-lite/internal/dialect"
	"omop-lite/internal/engine"
)

// loadConfig resolves the RunConfig for this invocation and installs the
// logger at its level.
func loadConfig() (*config.RunConfig, *slog.Logger, error) {
	cfg, err := config.Resolve(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// session bundles what the single-phase commands need.
type session struct {
	cfg     *config.RunConfig
	logger  *slog.Logger
	db      *db.Session
	applier *engine.Applier
}

func openSession(ctx context.Context) (*session, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return connect(ctx, cfg, logger)
}

func connect(ctx context.Context, cfg *config.RunConfig, logger *slog.Logger) (*session, error) {
	d, err := dialect.GetDialect(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(ctx, cfg, d, logger)
	if err != nil {
		return nil, err
	}
	return &session{
		cfg:     cfg,
		logger:  logger,
		db:      conn,
		applier: engine.NewApplier(conn, cfg, logger),
	}, nil
}

func (s *session) Close() {
	s.db.Close()
}
