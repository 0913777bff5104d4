package cache

import (
	"context"
	"testing"
	"time"

	"otsopos/backend/internal/domain"
)

func TestMemoryGrantStoreTakeIsSingleUse(t *testing.T) {
	s := NewMemoryGrantStore(nil)
	ctx := context.Background()

	if err := s.Put(ctx, domain.Grant{Token: "tok", Action: "shift.close"}, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	grant, ok, err := s.Take(ctx, "tok")
	if err != nil || !ok || grant.Action != "shift.close" {
		t.Fatalf("expected grant, got %+v ok=%t err=%v", grant, ok, err)
	}
	if _, ok, _ := s.Take(ctx, "tok"); ok {
		t.Fatalf("expected second take to miss")
	}
}

func TestMemoryGrantStoreExpires(t *testing.T) {
	now := time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC)
	s := NewMemoryGrantStore(func() time.Time { return now })
	ctx := context.Background()

	_ = s.Put(ctx, domain.Grant{Token: "tok"}, 30*time.Second)
	now = now.Add(31 * time.Second)
	if _, ok, _ := s.Take(ctx, "tok"); ok {
		t.Fatalf("expected expired grant to miss")
	}
}
