package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentor-hub/mentor-hub/config"
	"github.com/mentor-hub/mentor-hub/internal/domain/program"
)

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	cfg := config.DatabaseConfig{URL: "sqlite://" + filepath.Join(t.TempDir(), "mentor.db"), ConnectAttempts: 1}

	st, err := Open(ctx, cfg, Options{Migrate: true}, nil)
	require.NoError(t, err)
	defer st.Close()

	assert.Equal(t, "sqlite", st.Driver)
	require.NoError(t, st.Ping(ctx))

	require.NoError(t, st.Programs.Upsert(ctx, &program.Program{Key: "A1", Label: "Bachelor"}))
	n, err := st.Usage.Increment(ctx, "ana@school.fr", "2026-10")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	recs, err := st.Usage.Records(ctx, "2026-10")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestOpen_UnsupportedURL(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{URL: "mysql://db"}, Options{}, nil)
	assert.ErrorContains(t, err, "unsupported database URL")
}
