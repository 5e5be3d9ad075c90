//go:build integration

package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/directory-auth/internal/apperror"
	"github.com/iliyamo/directory-auth/internal/config"
	"github.com/iliyamo/directory-auth/internal/database"
	"github.com/iliyamo/directory-auth/internal/model"
	"github.com/iliyamo/directory-auth/internal/repository"
	"github.com/iliyamo/directory-auth/internal/service"
	"github.com/iliyamo/directory-auth/internal/utils"
)

// startPostgres runs a throwaway PostgreSQL container and returns a migrated
// store on top of it.
func startPostgres(t *testing.T) *repository.SQLStore {
	t.Helper()
	if os.Getenv("SKIP_DOCKER") == "1" {
		t.Skip("SKIP_DOCKER=1 set; skipping integration test")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker not available: %v", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "15-alpine",
		Env: []string{
			"POSTGRES_USER=auth",
			"POSTGRES_PASSWORD=auth",
			"POSTGRES_DB=auth_test",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Purge(resource) })

	cfg := config.DBConfig{
		Driver:  config.DriverPostgres,
		Host:    "localhost",
		Name:    "auth_test",
		User:    "auth",
		Pass:    "auth",
		PoolMin: 2,
		PoolMax: 20,
	}
	var (
		db      *sql.DB
		dialect database.Dialect
	)
	pool.MaxWait = 2 * time.Minute
	err = pool.Retry(func() error {
		cfg.Port = resource.GetPort("5432/tcp")
		var err error
		db, dialect, err = database.Open(context.Background(), cfg)
		return err
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(db, dialect, zap.NewNop()))
	// a second run is a no-op
	require.NoError(t, database.Migrate(db, dialect, zap.NewNop()))
	return repository.NewSQLStore(db, dialect)
}

func newService(store repository.Store) *service.AuthService {
	return service.NewAuthService(store, utils.NewAccessTokenIssuer("0123456789abcdef0123456789abcdef", 15*time.Minute),
		service.Options{RefreshTTL: time.Hour, InviteTTL: time.Hour, BcryptCost: bcrypt.MinCost})
}

func TestPostgresIntegration(t *testing.T) {
	store := startPostgres(t)
	svc := newService(store)
	ctx := context.Background()

	inv, err := svc.CreateFromEvent(ctx, service.UserCreated{UserID: "u1", Email: "A@x.com", Role: model.RoleMember})
	require.NoError(t, err)
	_, err = svc.CreateFromEvent(ctx, service.UserCreated{UserID: "u1", Email: "a@x.com", Role: model.RoleMember})
	require.ErrorIs(t, err, repository.ErrDuplicate)

	t.Run("concurrent invite redemption", func(t *testing.T) {
		const n = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := svc.SetPassword(ctx, inv.Token, "Secret12"); err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, successes)
	})

	t.Run("concurrent refresh has one winner", func(t *testing.T) {
		pair, err := svc.Login(ctx, "a@x.com", "Secret12")
		require.NoError(t, err)

		const n = 16
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			wins     int
			rejected int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.Refresh(ctx, pair.RefreshToken)
				mu.Lock()
				defer mu.Unlock()
				var oe *apperror.OAuthError
				switch {
				case err == nil:
					wins++
				case errors.As(err, &oe) && oe.Code == apperror.InvalidGrant:
					rejected++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
		assert.Equal(t, n-1, rejected)
	})

	t.Run("stored hashes only", func(t *testing.T) {
		pair, err := svc.Login(ctx, "a@x.com", "Secret12")
		require.NoError(t, err)
		rows, err := store.Tokens().ListByUser(ctx, "u1")
		require.NoError(t, err)
		for _, r := range rows {
			assert.NotEqual(t, pair.RefreshToken, r.TokenHash)
		}
		_, err = store.Tokens().FindActiveByHash(ctx, utils.HashSecret(pair.RefreshToken), model.TokenRefresh, time.Now())
		assert.NoError(t, err)
	})

	t.Run("delete cascades", func(t *testing.T) {
		require.NoError(t, svc.DeleteFromEvent(ctx, "u1"))
		rows, err := store.Tokens().ListByUser(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, rows)
		require.NoError(t, svc.DeleteFromEvent(ctx, "u1"))
	})
}
