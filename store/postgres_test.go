package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// TestPostgres runs the repository contract against a throwaway schema in the
// database named by NUTRILOG_TEST_DATABASE_URL.
func TestPostgres(t *testing.T) {
	dsn := os.Getenv("NUTRILOG_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("NUTRILOG_TEST_DATABASE_URL not set")
	}

	repositoryContract(t, func(t *testing.T) Repository {
		ctx := context.Background()
		schemaName := fmt.Sprintf("nutrilog_test_%d", time.Now().UnixNano())

		conn, err := pgx.Connect(ctx, dsn)
		require.NoError(t, err)
		_, err = conn.Exec(ctx, "CREATE SCHEMA "+schemaName)
		require.NoError(t, err)
		t.Cleanup(func() {
			_, _ = conn.Exec(context.Background(), "DROP SCHEMA "+schemaName+" CASCADE")
			conn.Close(context.Background())
		})

		cfg, err := pgxpool.ParseConfig(dsn)
		require.NoError(t, err)
		cfg.ConnConfig.RuntimeParams["search_path"] = schemaName

		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		require.NoError(t, err)

		repo, err := NewPostgres(ctx, pool)
		require.NoError(t, err)
		t.Cleanup(repo.Close)
		return repo
	})
}
