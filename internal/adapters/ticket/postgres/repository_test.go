package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3tcapital/facturador/internal/core/ticket"
	ierr "github.com/3tcapital/facturador/internal/errors"
	"github.com/3tcapital/facturador/internal/infrastructure/database"
	"github.com/3tcapital/facturador/internal/testutil"
)

var _ ticket.Store = (*Repository)(nil)

func TestRepository_SaveAndGet(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" || testing.Short() {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := database.Open(ctx, url)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, database.RunMigrations(ctx, pool, testutil.NewNullLogger()))

	repo := NewRepository(pool)
	service := "svc" + time.Now().Format("150405.000000")

	_, err = repo.Get(ctx, "homologacion", service)
	assert.True(t, ierr.IsNotFound(err))

	issued := time.Now().UTC().Truncate(time.Second)
	tk := ticket.AccessTicket{
		Environment: "homologacion",
		Service:     service,
		Token:       "tok",
		Sign:        "sig",
		IssuedAt:    issued,
		ExpiresAt:   issued.Add(12 * time.Hour),
	}
	require.NoError(t, repo.Save(ctx, tk))

	tk.Token = "tok2"
	require.NoError(t, repo.Save(ctx, tk))

	got, err := repo.Get(ctx, "homologacion", service)
	require.NoError(t, err)
	assert.Equal(t, "tok2", got.Token)
	assert.True(t, got.ExpiresAt.Equal(tk.ExpiresAt))
}
