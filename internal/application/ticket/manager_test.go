package ticket

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3tcapital/facturador/internal/core/ticket"
	ierr "github.com/3tcapital/facturador/internal/errors"
	"github.com/3tcapital/facturador/internal/infrastructure/cache"
	"github.com/3tcapital/facturador/internal/testutil"
)

const env = "homologacion"

func testConfig() Config {
	return Config{
		Environment:   env,
		Service:       "wsfe",
		RenewalMargin: 10 * time.Minute,
		Lifetime:      12 * time.Hour,
		Retries:       2,
		RetryInterval: time.Millisecond,
	}
}

func freshLogin(_ context.Context, _ string) (*ticket.LoginResponse, error) {
	now := time.Now()
	return &ticket.LoginResponse{
		Token:          "new-token",
		Sign:           "new-sign",
		GenerationTime: now.Add(-10 * time.Minute),
		ExpirationTime: now.Add(12 * time.Hour),
	}, nil
}

func transportErr() error {
	return ierr.NewError("connection reset").Mark(ierr.ErrTransport)
}

type fixture struct {
	store  *testutil.InMemoryTicketStore
	auth   *testutil.MockAuthenticator
	signer *testutil.MockSigner
	mgr    *Manager
}

func newFixture(login func(ctx context.Context, cms string) (*ticket.LoginResponse, error)) *fixture {
	f := &fixture{
		store:  testutil.NewInMemoryTicketStore(),
		auth:   &testutil.MockAuthenticator{LoginFunc: login},
		signer: &testutil.MockSigner{},
	}
	f.mgr = NewManager(testConfig(), f.store, cache.NewTicketCache(time.Minute), f.signer, f.auth, testutil.NewNullLogger())
	return f
}

func (f *fixture) seed(t *testing.T, expiresIn time.Duration) ticket.AccessTicket {
	t.Helper()
	tk := ticket.AccessTicket{
		Environment: env,
		Service:     "wsfe",
		Token:       "old-token",
		Sign:        "old-sign",
		IssuedAt:    time.Now().Add(-time.Hour),
		ExpiresAt:   time.Now().Add(expiresIn),
	}
	require.NoError(t, f.store.Save(context.Background(), tk))
	return tk
}

func TestManager_RenewsWhenNoTicket(t *testing.T) {
	var cms string
	f := newFixture(func(ctx context.Context, c string) (*ticket.LoginResponse, error) {
		cms = c
		return freshLogin(ctx, c)
	})

	tk, err := f.mgr.GetValidTicket(context.Background(), env)
	require.NoError(t, err)

	assert.Equal(t, "new-token", tk.Token)
	assert.Equal(t, int32(1), f.auth.Calls.Load())

	// MockSigner echoes its input, so the CMS decodes back to the request.
	decoded, err := base64.StdEncoding.DecodeString(cms)
	require.NoError(t, err)
	assert.Contains(t, string(decoded), "<service>wsfe</service>")

	stored, err := f.store.Get(context.Background(), env, "wsfe")
	require.NoError(t, err)
	assert.Equal(t, "new-token", stored.Token)
}

func TestManager_UsableTicketMakesNoCall(t *testing.T) {
	f := newFixture(freshLogin)
	f.seed(t, 6*time.Hour)

	for i := 0; i < 3; i++ {
		tk, err := f.mgr.GetValidTicket(context.Background(), env)
		require.NoError(t, err)
		assert.Equal(t, "old-token", tk.Token)
	}
	assert.Equal(t, int32(0), f.auth.Calls.Load())
}

func TestManager_RenewsInsideMargin(t *testing.T) {
	f := newFixture(freshLogin)
	f.seed(t, 5*time.Minute)

	tk, err := f.mgr.GetValidTicket(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, "new-token", tk.Token)
	assert.Equal(t, int32(1), f.auth.Calls.Load())
}

func TestManager_ConcurrentCallersShareOneRenewal(t *testing.T) {
	f := newFixture(func(ctx context.Context, cms string) (*ticket.LoginResponse, error) {
		time.Sleep(20 * time.Millisecond)
		return freshLogin(ctx, cms)
	})

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.mgr.GetValidTicket(context.Background(), env)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.auth.Calls.Load(), "expected exactly one login")
}

func TestManager_AlreadyAuthenticated(t *testing.T) {
	already := func(context.Context, string) (*ticket.LoginResponse, error) {
		return nil, fmt.Errorf("%w: fault", ticket.ErrAlreadyAuthenticated)
	}

	t.Run("falls back to the unexpired ticket", func(t *testing.T) {
		f := newFixture(already)
		f.seed(t, 5*time.Minute)

		tk, err := f.mgr.GetValidTicket(context.Background(), env)
		require.NoError(t, err)
		assert.Equal(t, "old-token", tk.Token)
		assert.Equal(t, int32(1), f.auth.Calls.Load(), "not retried")
	})

	t.Run("fails without a usable fallback", func(t *testing.T) {
		f := newFixture(already)

		_, err := f.mgr.GetValidTicket(context.Background(), env)
		require.Error(t, err)
		assert.True(t, ierr.IsTicket(err))
	})

	t.Run("uses the ticket another instance persisted meanwhile", func(t *testing.T) {
		var f *fixture
		f = newFixture(func(ctx context.Context, _ string) (*ticket.LoginResponse, error) {
			now := time.Now()
			require.NoError(t, f.store.Save(ctx, ticket.AccessTicket{
				Environment: env,
				Service:     "wsfe",
				Token:       "other-token",
				Sign:        "other-sign",
				IssuedAt:    now,
				ExpiresAt:   now.Add(12 * time.Hour),
			}))
			return nil, fmt.Errorf("%w: fault", ticket.ErrAlreadyAuthenticated)
		})

		tk, err := f.mgr.GetValidTicket(context.Background(), env)
		require.NoError(t, err)
		assert.Equal(t, "other-token", tk.Token)

		again, err := f.mgr.GetValidTicket(context.Background(), env)
		require.NoError(t, err)
		assert.Equal(t, "other-token", again.Token)
		assert.Equal(t, int32(1), f.auth.Calls.Load(), "served from cache afterwards")
	})

	t.Run("expired fallback is not used", func(t *testing.T) {
		f := newFixture(already)
		f.seed(t, -time.Minute)

		_, err := f.mgr.GetValidTicket(context.Background(), env)
		require.Error(t, err)
		assert.True(t, ierr.IsTicket(err))
	})
}

func TestManager_RetriesTransportFailures(t *testing.T) {
	attempts := 0
	f := newFixture(func(ctx context.Context, cms string) (*ticket.LoginResponse, error) {
		attempts++
		if attempts < 3 {
			return nil, transportErr()
		}
		return freshLogin(ctx, cms)
	})

	tk, err := f.mgr.GetValidTicket(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, "new-token", tk.Token)
	assert.Equal(t, int32(3), f.auth.Calls.Load())
}

func TestManager_TransportExhausted(t *testing.T) {
	down := func(context.Context, string) (*ticket.LoginResponse, error) { return nil, transportErr() }

	t.Run("previous ticket inside margin is used", func(t *testing.T) {
		f := newFixture(down)
		f.seed(t, 5*time.Minute)

		tk, err := f.mgr.GetValidTicket(context.Background(), env)
		require.NoError(t, err)
		assert.Equal(t, "old-token", tk.Token)
		assert.Equal(t, int32(3), f.auth.Calls.Load(), "one call plus two retries")
	})

	t.Run("ticket persisted during retries is used", func(t *testing.T) {
		var f *fixture
		f = newFixture(func(ctx context.Context, _ string) (*ticket.LoginResponse, error) {
			if f.auth.Calls.Load() == 1 {
				now := time.Now()
				require.NoError(t, f.store.Save(ctx, ticket.AccessTicket{
					Environment: env, Service: "wsfe", Token: "other-token", Sign: "other-sign",
					IssuedAt: now, ExpiresAt: now.Add(12 * time.Hour),
				}))
			}
			return nil, transportErr()
		})

		tk, err := f.mgr.GetValidTicket(context.Background(), env)
		require.NoError(t, err)
		assert.Equal(t, "other-token", tk.Token)
	})

	t.Run("surfaces without previous ticket", func(t *testing.T) {
		f := newFixture(down)

		_, err := f.mgr.GetValidTicket(context.Background(), env)
		require.Error(t, err)
		assert.True(t, ierr.IsTransport(err))
	})
}

func TestManager_MalformedResponseIsFatal(t *testing.T) {
	f := newFixture(func(context.Context, string) (*ticket.LoginResponse, error) {
		return nil, ierr.NewError("ticket response is missing token or sign").Mark(ierr.ErrTicket)
	})
	f.seed(t, 5*time.Minute)

	_, err := f.mgr.GetValidTicket(context.Background(), env)
	require.Error(t, err)
	assert.True(t, ierr.IsTicket(err))
	assert.Equal(t, int32(1), f.auth.Calls.Load())
}

func TestManager_SigningFailureIsConfiguration(t *testing.T) {
	f := newFixture(freshLogin)
	f.signer.SignFunc = func(context.Context, []byte) ([]byte, error) {
		return nil, errors.New("key unreadable")
	}

	_, err := f.mgr.GetValidTicket(context.Background(), env)
	require.Error(t, err)
	assert.True(t, ierr.IsConfiguration(err))
	assert.Equal(t, int32(0), f.auth.Calls.Load())
}

func TestManager_UnknownEnvironment(t *testing.T) {
	f := newFixture(freshLogin)

	_, err := f.mgr.GetValidTicket(context.Background(), "produccion")
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
}

func TestManager_Status(t *testing.T) {
	t.Run("no ticket", func(t *testing.T) {
		f := newFixture(freshLogin)

		status, err := f.mgr.Status(context.Background(), env)
		require.NoError(t, err)
		assert.False(t, status.Present)
		assert.True(t, status.RenewalDue)
		assert.Nil(t, status.ExpiresAt)
	})

	t.Run("usable ticket", func(t *testing.T) {
		f := newFixture(freshLogin)
		seeded := f.seed(t, 6*time.Hour)

		status, err := f.mgr.Status(context.Background(), "")
		require.NoError(t, err)
		assert.True(t, status.Present)
		assert.False(t, status.RenewalDue)
		require.NotNil(t, status.ExpiresAt)
		assert.True(t, status.ExpiresAt.Equal(seeded.ExpiresAt))
		assert.InDelta(t, (6 * time.Hour).Seconds(), status.Remaining.Seconds(), 5)
		assert.Equal(t, int32(0), f.auth.Calls.Load(), "status never renews")
	})

	t.Run("inside margin", func(t *testing.T) {
		f := newFixture(freshLogin)
		f.seed(t, 5*time.Minute)

		status, err := f.mgr.Status(context.Background(), env)
		require.NoError(t, err)
		assert.True(t, status.RenewalDue)
	})
}
