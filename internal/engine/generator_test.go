package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omop-lite/internal/dialect"
	"omop-lite/internal/schema"
)

func generate(t *testing.T, dir string, seed int64) []GeneratedFile {
	t.Helper()
	specs, err := schema.LoadSpecs(&dialect.PostgresDialect{}, "public")
	require.NoError(t, err)
	files, err := NewGenerator(specs, dir, 25, seed, '\t', nil).Generate()
	require.NoError(t, err)
	return files
}

func TestGenerator_Deterministic(t *testing.T) {
	a := generate(t, t.TempDir(), 7)
	b := generate(t, t.TempDir(), 7)
	require.Len(t, b, len(a))

	for i := range a {
		x, err := os.ReadFile(a[i].Path)
		require.NoError(t, err)
		y, err := os.ReadFile(b[i].Path)
		require.NoError(t, err)
		assert.Equal(t, string(x), string(y), a[i].Table)
	}
}

func TestGenerator_FilesLoadable(t *testing.T) {
	dir := t.TempDir()
	files := generate(t, dir, 42)
	require.Len(t, files, 11)

	specs, err := schema.LoadSpecs(&dialect.PostgresDialect{}, "public")
	require.NoError(t, err)

	for _, gf := range files {
		t.Run(gf.Table, func(t *testing.T) {
			assert.Equal(t, filepath.Join(dir, strings.ToUpper(gf.Table)+".csv"), gf.Path)

			f, err := os.Open(gf.Path)
			require.NoError(t, err)
			defer f.Close()

			spec, ok := schema.Find(specs, gf.Table)
			require.True(t, ok)

			records := readAll(t, newRecordReader(f, '\t', false))
			require.NotEmpty(t, records)
			cols, err := matchHeader(spec, normalizeHeader(records[0]))
			require.NoError(t, err)
			assert.Len(t, records[1:], gf.Rows)

			for _, rec := range records[1:] {
				require.Len(t, rec, len(cols))
				for i, v := range rec {
					col, _ := spec.Column(cols[i])
					if !col.IsNullable {
						assert.NotEmpty(t, v, "%s.%s is NOT NULL", spec.Name, col.Name)
					}
				}
			}
		})
	}
}

func TestGenerator_PersonsAndVisits(t *testing.T) {
	files := generate(t, t.TempDir(), 1)
	byTable := map[string]GeneratedFile{}
	for _, f := range files {
		byTable[f.Table] = f
	}
	assert.Equal(t, 25, byTable["person"].Rows)
	assert.Equal(t, 25, byTable["observation_period"].Rows)
	assert.GreaterOrEqual(t, byTable["visit_occurrence"].Rows, 25)
	assert.Equal(t, 1, byTable["cdm_source"].Rows)
	assert.Equal(t, len(Concepts), byTable["concept"].Rows)
}

func TestGenerator_RejectsNoPersons(t *testing.T) {
	_, err := NewGenerator(nil, t.TempDir(), 0, 1, '\t', nil).Generate()
	assert.Error(t, err)
}
