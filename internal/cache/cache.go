package cache

import (
	"context"
	"sync"
	"time"

	"otsopos/backend/internal/domain"
)

// GrantStore holds single-use authorization grants. Take removes the grant
// it returns, so a token can be redeemed at most once.
type GrantStore interface {
	Put(ctx context.Context, grant domain.Grant, ttl time.Duration) error
	Take(ctx context.Context, token string) (*domain.Grant, bool, error)
}

type MemoryGrantStore struct {
	mu     sync.Mutex
	grants map[string]memoryGrant
	now    func() time.Time
}

type memoryGrant struct {
	grant     domain.Grant
	expiresAt time.Time
}

func NewMemoryGrantStore(now func() time.Time) *MemoryGrantStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryGrantStore{grants: make(map[string]memoryGrant), now: now}
}

func (s *MemoryGrantStore) Put(_ context.Context, grant domain.Grant, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for token, g := range s.grants {
		if !now.Before(g.expiresAt) {
			delete(s.grants, token)
		}
	}
	s.grants[grant.Token] = memoryGrant{grant: grant, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryGrantStore) Take(_ context.Context, token string) (*domain.Grant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.grants[token]
	if !ok {
		return nil, false, nil
	}
	delete(s.grants, token)
	if !s.now().Before(g.expiresAt) {
		return nil, false, nil
	}
	grant := g.grant
	return &grant, true, nil
}
