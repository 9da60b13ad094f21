package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/roach88/modplan/internal/engine"
	"github.com/roach88/modplan/internal/ir"
	"github.com/roach88/modplan/internal/testutil"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sqlite3", cfg.Store.Driver)
	assert.Equal(t, "contentId", cfg.Params.ContentID)
	assert.Equal(t, "insert", cfg.Discriminators.Insert)
	assert.Equal(t, ir.DefaultSystemColumns(), cfg.Columns)
	assert.Equal(t, engine.DefaultMaxRows, cfg.Engine.MaxRows)
	assert.Equal(t, zapcore.InfoLevel, cfg.LogLevel())
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseOverridesKeepDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
store:
  dsn: /tmp/x.db
params:
  content_id: id
discriminators:
  delete: remove
columns:
  revision: rev
engine:
  max_rows: 0
log:
  level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Store.Driver, "unset keys keep defaults")
	assert.Equal(t, "/tmp/x.db", cfg.Store.DSN)
	assert.Equal(t, "id", cfg.Params.ContentID)
	assert.Equal(t, "revision", cfg.Params.Revision)
	assert.Equal(t, "remove", cfg.Discriminators.Delete)
	assert.Equal(t, "insert", cfg.Discriminators.Insert)
	assert.Equal(t, "rev", cfg.Columns.Revision)
	assert.Equal(t, "content_id", cfg.Columns.ContentID)
	assert.Zero(t, cfg.Engine.MaxRows)
	assert.Equal(t, zapcore.DebugLevel, cfg.LogLevel())
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "stor:\n  dsn: x\n", "field stor not found"},
		{"bad driver", "store:\n  driver: mysql\n", "store.driver"},
		{"empty dsn", "store:\n  dsn: \"\"\n", "store.dsn is required"},
		{"negative rows", "engine:\n  max_rows: -1\n", "engine.max_rows"},
		{"bad level", "log:\n  level: loud\n", "log.level"},
		{"empty param", "params:\n  revision: \"\"\n", "params.revision is required"},
		{"shared param", "params:\n  child_id: contentId\n", `params.child_id and params.content_id are both "contentId"`},
		{"shared discriminator", "discriminators:\n  update: insert\n", "discriminators.insert and discriminators.update"},
		{"shared column", "columns:\n  row_order: revision\n", "columns.revision and columns.row_order"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modplan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  statement_cache: 8\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Store.StatementCache)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestOpenRuntime(t *testing.T) {
	cfg := Default()
	cfg.Store.DSN = filepath.Join(t.TempDir(), "rt.db")
	ctx := context.Background()

	rt, err := cfg.Open(ctx, []*ir.ContentType{testutil.ArticleType()}, zaptest.NewLogger(t),
		engine.WithTimeSource(testutil.FixedTime(testutil.Epoch)))
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, []string{"7", "3", "5", "9"}, rt.Plans.MappingIDs())

	res, err := rt.Engine.Execute(ctx, engine.Request{
		MappingID: "7",
		Operation: engine.OpInsert,
		Params:    engine.Params{"title": {"Hi"}, "img": {nil}, "attachment": {nil}},
		User:      "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, res.Keys["contentId"])
}

func TestOpenRuntimeCustomColumns(t *testing.T) {
	cfg := Default()
	cfg.Store.DSN = filepath.Join(t.TempDir(), "rt.db")
	cfg.Columns.Revision = "rev"
	cfg.Params.ContentID = "id"
	ctx := context.Background()

	rt, err := cfg.Open(ctx, []*ir.ContentType{testutil.FlatSectionsType()}, nil)
	require.NoError(t, err)
	defer rt.Close()

	res, err := rt.Engine.Execute(ctx, engine.Request{
		MappingID: "107",
		Operation: engine.OpInsert,
		Params:    engine.Params{"title": {"Memo"}},
		User:      "bob",
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, res.Keys["id"], "generated keys follow the configured parameter name")

	var rev int64
	require.NoError(t, rt.Store.DB().QueryRowContext(ctx, `SELECT rev FROM memo WHERE content_id = 1`).Scan(&rev))
	assert.Equal(t, int64(1), rev)
}

func TestOpenRuntimeBadDriver(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = "oracle"
	_, err := cfg.Open(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestPlansWithoutStore(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = "postgres"

	plans, datasets, err := cfg.Plans([]*ir.ContentType{testutil.ArticleType()}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"7", "3", "5", "9"}, plans.MappingIDs())

	ds, ok := datasets.Get("Revision7")
	require.True(t, ok)
	require.NotEmpty(t, ds.SQL())
	assert.Contains(t, ds.SQL()[0], "$1")

	cfg.Store.Driver = "oracle"
	_, _, err = cfg.Plans(nil, nil)
	assert.ErrorContains(t, err, "unsupported dialect")
}
