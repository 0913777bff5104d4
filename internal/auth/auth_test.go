package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"otsopos/backend/internal/cache"
	"otsopos/backend/internal/domain"
	"otsopos/backend/internal/store/memory"
)

func newTestManager(t *testing.T, now func() time.Time) (*Manager, *memory.Store) {
	t.Helper()
	repo := memory.New()
	pinHash, _ := HashSecret("551204")
	pwHash, _ := HashSecret("manager-pass")
	if _, err := repo.CreateUser(context.Background(), domain.User{
		ID: "user-mgr", Name: "Mara", Email: "mara@shop.ph", Role: domain.RoleManager,
		PasswordHash: pwHash, PINHash: pinHash,
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	m := NewManager(Config{
		Secret:        strings.Repeat("s", 32),
		TokenTTL:      time.Hour,
		OwnerEmail:    "Owner",
		OwnerPassword: "owner-pass",
		OwnerPIN:      "907531",
		GrantTTL:      time.Minute,
		Now:           now,
	}, repo, repo, cache.NewMemoryGrantStore(now))
	return m, repo
}

func TestAuthenticateOwnerAndUsers(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	owner, err := m.Authenticate(ctx, domain.LoginRequest{Email: "OWNER", Password: "owner-pass"})
	if err != nil || !owner.IsOwner() {
		t.Fatalf("expected owner login, got %+v err=%v", owner, err)
	}
	user, err := m.Authenticate(ctx, domain.LoginRequest{Email: "Mara@Shop.ph", Password: "manager-pass"})
	if err != nil || user.ID != "user-mgr" || user.Role != domain.RoleManager {
		t.Fatalf("expected manager login, got %+v err=%v", user, err)
	}
	if _, err := m.Authenticate(ctx, domain.LoginRequest{Email: "mara@shop.ph", Password: "wrong"}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := m.Authenticate(ctx, domain.LoginRequest{Email: "ghost@shop.ph", Password: "x"}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestTokenRoundTripCarriesSession(t *testing.T) {
	m, _ := newTestManager(t, nil)
	op := domain.Operator{ID: "user-mgr", Name: "Mara", Email: "mara@shop.ph", Role: domain.RoleManager}

	token, _, err := m.IssueToken(op, "sess-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.SessionID != "sess-1" || claims.Operator != op {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, err := m.ParseToken(token + "x"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected tampered token to fail, got %v", err)
	}
}

func TestTokenExpires(t *testing.T) {
	now := time.Date(2026, time.April, 2, 8, 0, 0, 0, time.UTC)
	m, _ := newTestManager(t, func() time.Time { return now })
	token, _, _ := m.IssueToken(domain.Operator{ID: "u1", Role: domain.RoleCashier}, "sess")
	now = now.Add(2 * time.Hour)
	if _, err := m.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestCheckPINOwnerThenUsers(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	approver, ok, err := m.CheckPIN(ctx, "907531")
	if err != nil || !ok || !approver.IsOwner() {
		t.Fatalf("expected owner approval, got %+v ok=%t err=%v", approver, ok, err)
	}
	approver, ok, _ = m.CheckPIN(ctx, "551204")
	if !ok || approver.Name != "Mara" {
		t.Fatalf("expected Mara approval, got %+v ok=%t", approver, ok)
	}
	if _, ok, _ := m.CheckPIN(ctx, "000000"); ok {
		t.Fatalf("expected unknown PIN to be denied")
	}
}

func TestTwoPhaseAuthorization(t *testing.T) {
	m, repo := newTestManager(t, nil)
	ctx := context.Background()
	cashier := domain.Operator{ID: "user-cashier", Name: "Jun", Role: domain.RoleCashier}

	if _, err := m.RequestAuthorization(ctx, cashier, ActionShiftClose, "123456"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for bad PIN, got %v", err)
	}
	grant, err := m.RequestAuthorization(ctx, cashier, ActionShiftClose, "551204")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if grant.ApprovedBy != "Mara" || grant.Action != ActionShiftClose {
		t.Fatalf("unexpected grant %+v", grant)
	}

	if _, err := m.Execute(ctx, cashier, grant.Token, ActionUserManage); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected grant for another action to be rejected, got %v", err)
	}
	// The mismatched attempt consumed the grant.
	if _, err := m.Execute(ctx, cashier, grant.Token, ActionShiftClose); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected consumed grant to be rejected, got %v", err)
	}

	grant, _ = m.RequestAuthorization(ctx, cashier, ActionShiftClose, "907531")
	if _, err := m.Execute(ctx, cashier, grant.Token, ActionShiftClose); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, err := m.Execute(ctx, cashier, grant.Token, ActionShiftClose); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected replay to be rejected, got %v", err)
	}

	logs, _ := repo.ListActivityLogs(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour), 10)
	var failed, approved int
	for _, entry := range logs {
		switch {
		case entry.Action == "PIN Failed":
			failed++
		case strings.HasPrefix(entry.Description, "PIN approved by"):
			approved++
		}
	}
	if failed != 1 || approved != 2 {
		t.Fatalf("expected 1 failed and 2 approved entries, got %d and %d", failed, approved)
	}
}

func TestGrantBoundToOperator(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()
	a := domain.Operator{ID: "a", Role: domain.RoleCashier}
	b := domain.Operator{ID: "b", Role: domain.RoleCashier}

	grant, err := m.RequestAuthorization(ctx, a, ActionCartVoid, "551204")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := m.Execute(ctx, b, grant.Token, ActionCartVoid); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected grant to be bound to requester, got %v", err)
	}
}

func TestUnknownActionRejected(t *testing.T) {
	m, _ := newTestManager(t, nil)
	if _, err := m.RequestAuthorization(context.Background(), domain.Operator{ID: "a"}, "drawer.open", "907531"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
