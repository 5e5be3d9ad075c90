package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/directory-auth/internal/model"
)

// MemoryStore is an in-process Store for local development and tests.
// Transactions run one at a time against a copy of the data which replaces
// the original on commit, so a unit of work is fully serialised and a failed
// one leaves no trace.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
}

type memData struct {
	creds  map[string]model.Credential // by user_id
	tokens map[string]model.Token      // by id
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: &memData{
		creds:  map[string]model.Credential{},
		tokens: map[string]model.Token{},
	}}
}

func (d *memData) clone() *memData {
	c := &memData{
		creds:  make(map[string]model.Credential, len(d.creds)),
		tokens: make(map[string]model.Token, len(d.tokens)),
	}
	for k, v := range d.creds {
		c.creds[k] = v
	}
	for k, v := range d.tokens {
		c.tokens[k] = v
	}
	return c
}

func (s *MemoryStore) Credentials() CredentialStore { return memCredentials{s: s} }
func (s *MemoryStore) Tokens() TokenStore           { return memTokens{s: s} }
func (s *MemoryStore) Ping(context.Context) error   { return nil }

// InTx runs fn against a private copy and publishes it when fn succeeds.
func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(memTx{d: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = work
	return nil
}

type memTx struct{ d *memData }

func (t memTx) Credentials() CredentialStore { return memCredentials{d: t.d} }
func (t memTx) Tokens() TokenStore           { return memTokens{d: t.d} }

// memView either points at transaction-private data or, outside a
// transaction, at the live data guarded by the store mutex.
type memView struct {
	s *MemoryStore
	d *memData
}

func (v memView) enter() (*memData, func()) {
	if v.d != nil {
		return v.d, func() {}
	}
	v.s.mu.Lock()
	return v.s.data, v.s.mu.Unlock
}

type memCredentials memView

func (m memCredentials) FindByEmail(_ context.Context, email string) (model.Credential, error) {
	d, done := memView(m).enter()
	defer done()
	email = model.NormalizeEmail(email)
	for _, c := range d.creds {
		if c.Email == email {
			return c, nil
		}
	}
	return model.Credential{}, ErrNotFound
}

func (m memCredentials) FindByUserID(_ context.Context, userID string) (model.Credential, error) {
	d, done := memView(m).enter()
	defer done()
	c, ok := d.creds[userID]
	if !ok {
		return model.Credential{}, ErrNotFound
	}
	return c, nil
}

func (m memCredentials) FindByUserIDForUpdate(ctx context.Context, userID string) (model.Credential, error) {
	return m.FindByUserID(ctx, userID)
}

func (m memCredentials) Insert(_ context.Context, c model.Credential) error {
	d, done := memView(m).enter()
	defer done()
	c.Email = model.NormalizeEmail(c.Email)
	if _, ok := d.creds[c.UserID]; ok {
		return fmt.Errorf("insert credential %s: %w", c.UserID, ErrDuplicate)
	}
	for _, other := range d.creds {
		if other.Email == c.Email {
			return fmt.Errorf("insert credential %s: %w", c.UserID, ErrDuplicate)
		}
	}
	d.creds[c.UserID] = c
	return nil
}

func (m memCredentials) UpdateRole(_ context.Context, userID string, role model.Role, now time.Time) (bool, error) {
	d, done := memView(m).enter()
	defer done()
	c, ok := d.creds[userID]
	if !ok {
		return false, nil
	}
	c.Role = role
	c.UpdatedAt = now
	d.creds[userID] = c
	return true, nil
}

func (m memCredentials) SetPasswordHash(_ context.Context, userID, hash string, now time.Time) error {
	d, done := memView(m).enter()
	defer done()
	c, ok := d.creds[userID]
	if !ok {
		return nil
	}
	c.PasswordHash = &hash
	c.UpdatedAt = now
	d.creds[userID] = c
	return nil
}

func (m memCredentials) Delete(_ context.Context, userID string) (bool, error) {
	d, done := memView(m).enter()
	defer done()
	if _, ok := d.creds[userID]; !ok {
		return false, nil
	}
	delete(d.creds, userID)
	for id, t := range d.tokens {
		if t.UserID == userID {
			delete(d.tokens, id)
		}
	}
	return true, nil
}

type memTokens memView

func (m memTokens) Insert(_ context.Context, t model.Token) error {
	d, done := memView(m).enter()
	defer done()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if _, ok := d.creds[t.UserID]; !ok {
		return fmt.Errorf("insert %s token: credential %s: %w", t.Type, t.UserID, ErrNotFound)
	}
	for _, other := range d.tokens {
		if other.TokenHash == t.TokenHash {
			return fmt.Errorf("insert %s token: %w", t.Type, ErrDuplicate)
		}
	}
	t.RevokedAt = nil
	d.tokens[t.ID] = t
	return nil
}

func (m memTokens) FindActiveByHash(_ context.Context, hash string, typ model.TokenType, now time.Time) (model.Token, error) {
	d, done := memView(m).enter()
	defer done()
	for _, t := range d.tokens {
		if t.TokenHash == hash && t.Type == typ && t.IsActive(now) {
			return t, nil
		}
	}
	return model.Token{}, ErrNotFound
}

func (m memTokens) FindActiveByHashForUpdate(ctx context.Context, hash string, typ model.TokenType, now time.Time) (model.Token, error) {
	return m.FindActiveByHash(ctx, hash, typ, now)
}

func (m memTokens) RevokeByID(_ context.Context, id string, now time.Time) error {
	d, done := memView(m).enter()
	defer done()
	if t, ok := d.tokens[id]; ok && !t.IsRevoked() {
		t.RevokedAt = &now
		d.tokens[id] = t
	}
	return nil
}

func (m memTokens) RevokeByHash(_ context.Context, hash string, now time.Time) (bool, error) {
	d, done := memView(m).enter()
	defer done()
	for id, t := range d.tokens {
		if t.TokenHash == hash && t.IsActive(now) {
			t.RevokedAt = &now
			d.tokens[id] = t
			return true, nil
		}
	}
	return false, nil
}

func (m memTokens) RevokeAllForUser(_ context.Context, userID string, typ model.TokenType, now time.Time) (int64, error) {
	d, done := memView(m).enter()
	defer done()
	var n int64
	for id, t := range d.tokens {
		if t.UserID == userID && t.Type == typ && !t.IsRevoked() {
			t.RevokedAt = &now
			d.tokens[id] = t
			n++
		}
	}
	return n, nil
}

func (m memTokens) ListByUser(_ context.Context, userID string) ([]model.Token, error) {
	d, done := memView(m).enter()
	defer done()
	var out []model.Token
	for _, t := range d.tokens {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
