package engine

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"omop-lite/internal/cdm"
	"omop-lite/internal/config"
	"omop-lite/internal/schema"
)

// SyntheticPersons is the number of persons in each bundled synthetic dataset.
var SyntheticPersons = map[int]int{
	100:  99,
	1000: 1130,
}

// PrepareSource returns the configuration the loader reads from. A bundled
// synthetic dataset is written to a temporary directory first, in the layout
// SourceDelimiter and SourceQuoted describe for its size; cleanup removes it.
// Any other source is returned unchanged with a no-op cleanup.
func PrepareSource(cfg *config.RunConfig, specs []*schema.Table, logger *slog.Logger) (*config.RunConfig, func(), error) {
	noop := func() {}
	if !cfg.BundledSynthetic() {
		return cfg, noop, nil
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	size := cfg.SyntheticNumber
	persons, ok := SyntheticPersons[size]
	if !ok {
		return nil, noop, fmt.Errorf("%w: %s: no bundled dataset of size %d", cdm.ErrConfig, config.KeySyntheticNumber, size)
	}

	dir, err := os.MkdirTemp("", fmt.Sprintf("omop-lite-synthetic-%d-", size))
	if err != nil {
		return nil, noop, fmt.Errorf("synthetic dataset %d: %w", size, err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	g := NewGenerator(specs, dir, persons, int64(size), cfg.SourceDelimiter(), logger)
	g.Quoted = cfg.SourceQuoted()
	if _, err := g.Generate(); err != nil {
		cleanup()
		return nil, noop, fmt.Errorf("synthetic dataset %d: %w", size, err)
	}

	logger.Info("prepared synthetic dataset", "size", size, "persons", persons, "dir", dir)
	return cfg.WithSourceDir(dir), cleanup, nil
}
