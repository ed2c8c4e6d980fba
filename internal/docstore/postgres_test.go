package docstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Rawan10101/Carevo/internal/db"
)

// Runs only against a real database: TEST_POSTGRES_DSN=postgres://...
func TestPgStore(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.Migrate(ctx, pool))

	runStoreSuite(t, func(t *testing.T) Store {
		_, err := pool.Exec(context.Background(), `TRUNCATE documents`)
		require.NoError(t, err)
		return NewPgStore(pool)
	})
}
