package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/directory-auth/internal/apperror"
	"github.com/iliyamo/directory-auth/internal/model"
	"github.com/iliyamo/directory-auth/internal/repository"
	"github.com/iliyamo/directory-auth/internal/utils"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc   *AuthService
	store *repository.MemoryStore
	clock *fakeClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	clock := &fakeClock{now: time.Now().UTC()}
	access := utils.NewAccessTokenIssuer("0123456789abcdef0123456789abcdef", 900*time.Second)
	access.Now = clock.Now
	store := repository.NewMemoryStore()
	svc := NewAuthService(store, access, Options{
		RefreshTTL: 7 * 24 * time.Hour,
		InviteTTL:  24 * time.Hour,
		BcryptCost: bcrypt.MinCost,
		Now:        clock.Now,
	})
	return fixture{svc: svc, store: store, clock: clock}
}

// activate creates a user through the event path and redeems its invite.
func (f fixture) activate(t *testing.T, userID, email, password string) {
	t.Helper()
	ctx := context.Background()
	inv, err := f.svc.CreateFromEvent(ctx, UserCreated{UserID: userID, Email: email, Role: model.RoleMember})
	require.NoError(t, err)
	require.NoError(t, f.svc.SetPassword(ctx, inv.Token, password))
}

func requireOAuth(t *testing.T, err error, code apperror.OAuthCode, desc string) {
	t.Helper()
	var oe *apperror.OAuthError
	require.True(t, errors.As(err, &oe), "want OAuthError, got %v", err)
	assert.Equal(t, code, oe.Code)
	assert.Equal(t, desc, oe.Description)
}

func requireApp(t *testing.T, err error, status int, msg string) {
	t.Helper()
	var ae *apperror.AppError
	require.True(t, errors.As(err, &ae), "want AppError, got %v", err)
	assert.Equal(t, status, ae.Status)
	assert.Equal(t, msg, ae.Message)
}

func TestLoginIssuesDistinctHashedRefreshTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.activate(t, "u1", "a@x.com", "Secret12")

	p1, err := f.svc.Login(ctx, "a@x.com", "Secret12")
	require.NoError(t, err)
	p2, err := f.svc.Login(ctx, " A@X.COM", "Secret12")
	require.NoError(t, err)

	assert.EqualValues(t, 900, p1.ExpiresIn)
	assert.Equal(t, "Bearer", p1.TokenType)
	assert.NotEqual(t, p1.RefreshToken, p2.RefreshToken)

	rows, err := f.store.Tokens().ListByUser(ctx, "u1")
	require.NoError(t, err)
	var refresh []model.Token
	for _, r := range rows {
		assert.NotEqual(t, p1.RefreshToken, r.TokenHash)
		assert.NotEqual(t, p2.RefreshToken, r.TokenHash)
		if r.Type == model.TokenRefresh {
			refresh = append(refresh, r)
		}
	}
	require.Len(t, refresh, 2)
	assert.NotEqual(t, refresh[0].TokenHash, refresh[1].TokenHash)

	claims, err := f.svc.access.Parse(p1.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, "member", claims.Role)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.activate(t, "u1", "a@x.com", "Secret12")
	_, err := f.svc.CreateFromEvent(ctx, UserCreated{UserID: "u2", Email: "pending@x.com", Role: model.RoleMember})
	require.NoError(t, err)

	for name, creds := range map[string][2]string{
		"unknown email":  {"nobody@x.com", "Secret12"},
		"no password":    {"pending@x.com", "Secret12"},
		"wrong password": {"a@x.com", "Secret13"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Login(ctx, creds[0], creds[1])
			requireOAuth(t, err, apperror.InvalidGrant, msgInvalidLogin)
		})
	}
}

func TestRefreshRotatesAndRejectsReuse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.activate(t, "u1", "a@x.com", "Secret12")

	first, err := f.svc.Login(ctx, "a@x.com", "Secret12")
	require.NoError(t, err)

	second, err := f.svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.EqualValues(t, 900, second.ExpiresIn)

	_, err = f.svc.Refresh(ctx, first.RefreshToken)
	requireOAuth(t, err, apperror.InvalidGrant, msgInvalidRefresh)

	_, err = f.svc.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshRejectsUnknownExpiredAndInviteSecrets(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	inv, err := f.svc.CreateFromEvent(ctx, UserCreated{UserID: "u1", Email: "a@x.com", Role: model.RoleMember})
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, "")
	requireOAuth(t, err, apperror.InvalidGrant, msgInvalidRefresh)
	_, err = f.svc.Refresh(ctx, "deadbeef")
	requireOAuth(t, err, apperror.InvalidGrant, msgInvalidRefresh)
	_, err = f.svc.Refresh(ctx, inv.Token)
	requireOAuth(t, err, apperror.InvalidGrant, msgInvalidRefresh)

	require.NoError(t, f.svc.SetPassword(ctx, inv.Token, "Secret12"))
	pair, err := f.svc.Login(ctx, "a@x.com", "Secret12")
	require.NoError(t, err)
	f.clock.Advance(7*24*time.Hour + time.Second)
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	requireOAuth(t, err, apperror.InvalidGrant, msgInvalidRefresh)
}

func TestConcurrentRefreshHasExactlyOneWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.activate(t, "u1", "a@x.com", "Secret12")
	pair, err := f.svc.Login(ctx, "a@x.com", "Secret12")
	require.NoError(t, err)

	const n = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		rejected int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.Refresh(ctx, pair.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			var oe *apperror.OAuthError
			switch {
			case err == nil:
				wins++
			case errors.As(err, &oe) && oe.Code == apperror.InvalidGrant:
				rejected++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, rejected)
}

func TestRevokeAlwaysSucceeds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.activate(t, "u1", "a@x.com", "Secret12")
	pair, err := f.svc.Login(ctx, "a@x.com", "Secret12")
	require.NoError(t, err)

	require.NoError(t, f.svc.Revoke(ctx, pair.RefreshToken))
	require.NoError(t, f.svc.Revoke(ctx, pair.RefreshToken))
	require.NoError(t, f.svc.Revoke(ctx, "unknown"))
	require.NoError(t, f.svc.Revoke(ctx, ""))

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	requireOAuth(t, err, apperror.InvalidGrant, msgInvalidRefresh)
}

func TestSetPassword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("redeems once", func(t *testing.T) {
		f := newFixture(t)
		inv, err := f.svc.CreateFromEvent(ctx, UserCreated{UserID: "u1", Email: "a@x.com", Role: model.RoleMember})
		require.NoError(t, err)

		require.NoError(t, f.svc.SetPassword(ctx, inv.Token, "Secret12"))
		err = f.svc.SetPassword(ctx, inv.Token, "Other123")
		requireApp(t, err, http.StatusBadRequest, msgInvalidInvite)

		_, err = f.svc.Login(ctx, "a@x.com", "Secret12")
		assert.NoError(t, err)
	})

	t.Run("second invite after password is already used", func(t *testing.T) {
		f := newFixture(t)
		f.activate(t, "u1", "a@x.com", "Secret12")
		inv, err := f.svc.ResendInviteFromEvent(ctx, "u1")
		require.NoError(t, err)

		err = f.svc.SetPassword(ctx, inv.Token, "Other123")
		requireApp(t, err, http.StatusBadRequest, msgInviteUsed)

		_, err = f.svc.Login(ctx, "a@x.com", "Secret12")
		assert.NoError(t, err, "password must be unchanged")
	})

	t.Run("expired invite", func(t *testing.T) {
		f := newFixture(t)
		inv, err := f.svc.CreateFromEvent(ctx, UserCreated{UserID: "u1", Email: "a@x.com", Role: model.RoleMember})
		require.NoError(t, err)
		f.clock.Advance(24 * time.Hour)

		err = f.svc.SetPassword(ctx, inv.Token, "Secret12")
		requireApp(t, err, http.StatusBadRequest, msgInvalidInvite)
	})

	t.Run("refresh secret is not an invite", func(t *testing.T) {
		f := newFixture(t)
		f.activate(t, "u1", "a@x.com", "Secret12")
		pair, err := f.svc.Login(ctx, "a@x.com", "Secret12")
		require.NoError(t, err)

		err = f.svc.SetPassword(ctx, pair.RefreshToken, "Other123")
		requireApp(t, err, http.StatusBadRequest, msgInvalidInvite)
	})
}

func TestConcurrentInviteRedemptionHasOneWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	inv, err := f.svc.CreateFromEvent(ctx, UserCreated{UserID: "u1", Email: "a@x.com", Role: model.RoleMember})
	require.NoError(t, err)

	const n = 8
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.svc.SetPassword(ctx, inv.Token, "Secret12")
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		requireApp(t, err, http.StatusBadRequest, msgInvalidInvite)
	}
	assert.Equal(t, 1, ok)
}

func TestChangePassword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.activate(t, "u1", "a@x.com", "Secret12")
	pair, err := f.svc.Login(ctx, "a@x.com", "Secret12")
	require.NoError(t, err)

	err = f.svc.ChangePassword(ctx, "u1", "wrong", "Newpass99")
	requireApp(t, err, http.StatusBadRequest, msgWrongPassword)
	err = f.svc.ChangePassword(ctx, "ghost", "Secret12", "Newpass99")
	requireApp(t, err, http.StatusNotFound, msgNoAccount)

	require.NoError(t, f.svc.ChangePassword(ctx, "u1", "Secret12", "Newpass99"))
	_, err = f.svc.Login(ctx, "a@x.com", "Secret12")
	requireOAuth(t, err, apperror.InvalidGrant, msgInvalidLogin)
	_, err = f.svc.Login(ctx, "a@x.com", "Newpass99")
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	assert.NoError(t, err, "existing sessions survive a password change")
}
