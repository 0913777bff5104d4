// Package auth signs operator sessions and runs the PIN gate that guards
// privileged actions through single-use authorization grants.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"otsopos/backend/internal/cache"
	"otsopos/backend/internal/domain"
	"otsopos/backend/internal/store"
)

// Gated actions. Each needs a grant obtained with a valid PIN.
const (
	ActionUserManage        = "user.manage"
	ActionInventoryOverride = "inventory.override"
	ActionShiftClose        = "shift.close"
	ActionActivityView      = "activity.view"
	ActionCatalogManage     = "catalog.manage"
	ActionExpenseManage     = "expense.manage"
	ActionCartVoid          = "cart.void"
	ActionSaleSuspend       = "sale.suspend"
)

var gatedActions = map[string]string{
	ActionUserManage:        "Manage Users",
	ActionInventoryOverride: "Inventory Override",
	ActionShiftClose:        "End Shift",
	ActionActivityView:      "View Activity Logs",
	ActionCatalogManage:     "Manage Catalog",
	ActionExpenseManage:     "Manage Expenses",
	ActionCartVoid:          "Void Cart Item",
	ActionSaleSuspend:       "Suspend Sale",
}

func IsGatedAction(action string) bool {
	_, ok := gatedActions[action]
	return ok
}

type Config struct {
	Secret        string
	TokenTTL      time.Duration
	OwnerEmail    string
	OwnerPassword string
	OwnerPIN      string
	GrantTTL      time.Duration
	Now           func() time.Time
}

type Manager struct {
	secret            []byte
	tokenTTL          time.Duration
	ownerEmail        string
	ownerPasswordHash string
	ownerPINHash      string
	grantTTL          time.Duration
	now               func() time.Time
	users             store.UserRepository
	audit             store.AuditRepository
	grants            cache.GrantStore
}

type Claims struct {
	Operator  domain.Operator
	SessionID string
	ExpiresAt time.Time
}

type posCustomClaims struct {
	jwtlib.RegisteredClaims
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"sid"`
}

// NewManager hashes the owner password and PIN once at start. An empty
// owner password disables owner login; an empty PIN disables the owner
// bypass.
func NewManager(cfg Config, users store.UserRepository, audit store.AuditRepository, grants cache.GrantStore) *Manager {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 8 * time.Hour
	}
	if cfg.GrantTTL <= 0 {
		cfg.GrantTTL = 2 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	m := &Manager{
		secret:     []byte(cfg.Secret),
		tokenTTL:   cfg.TokenTTL,
		ownerEmail: strings.ToLower(strings.TrimSpace(cfg.OwnerEmail)),
		grantTTL:   cfg.GrantTTL,
		now:        cfg.Now,
		users:      users,
		audit:      audit,
		grants:     grants,
	}
	if cfg.OwnerPassword != "" {
		if hash, err := HashSecret(cfg.OwnerPassword); err == nil {
			m.ownerPasswordHash = hash
		}
	}
	if pin := strings.TrimSpace(cfg.OwnerPIN); pin != "" {
		if hash, err := HashSecret(pin); err == nil {
			m.ownerPINHash = hash
		}
	}
	return m
}

func (m *Manager) ownerOperator() domain.Operator {
	return domain.Operator{Name: "Owner", Email: m.ownerEmail, Role: domain.RoleOwner}
}

// Authenticate resolves email and password to an operator. The configured
// owner account is checked before the users table.
func (m *Manager) Authenticate(ctx context.Context, req domain.LoginRequest) (domain.Operator, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return domain.Operator{}, domain.ErrInvalidCredentials
	}
	if m.ownerPasswordHash != "" && email == m.ownerEmail {
		if !VerifySecret(m.ownerPasswordHash, req.Password) {
			return domain.Operator{}, domain.ErrInvalidCredentials
		}
		return m.ownerOperator(), nil
	}

	user, err := m.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Operator{}, domain.ErrInvalidCredentials
		}
		return domain.Operator{}, err
	}
	if !VerifySecret(user.PasswordHash, req.Password) {
		return domain.Operator{}, domain.ErrInvalidCredentials
	}
	return user.Operator(), nil
}

// IssueToken signs a bearer token binding the operator to a session.
func (m *Manager) IssueToken(op domain.Operator, sessionID string) (string, time.Time, error) {
	now := m.now().UTC()
	expiresAt := now.Add(m.tokenTTL)
	subject := op.ID
	if subject == "" {
		subject = op.Email
	}
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "otsopos",
		},
		Name:      op.Name,
		Email:     op.Email,
		Role:      op.Role,
		SessionID: sessionID,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (m *Manager) ParseToken(tokenStr string) (Claims, error) {
	claims := &posCustomClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithTimeFunc(m.now))
	if err != nil || !token.Valid {
		return Claims{}, domain.ErrInvalidCredentials
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" || claims.SessionID == "" {
		return Claims{}, domain.ErrInvalidCredentials
	}

	op := domain.Operator{Name: claims.Name, Email: claims.Email, Role: claims.Role}
	if claims.Role != domain.RoleOwner {
		op.ID = sub
	}
	out := Claims{Operator: op, SessionID: claims.SessionID}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// CheckPIN compares candidate with the owner PIN, then with every user PIN.
// The approver is whoever the PIN belongs to.
func (m *Manager) CheckPIN(ctx context.Context, candidate string) (domain.Operator, bool, error) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return domain.Operator{}, false, nil
	}
	if m.ownerPINHash != "" && VerifySecret(m.ownerPINHash, candidate) {
		return m.ownerOperator(), true, nil
	}

	users, err := m.users.ListUsers(ctx)
	if err != nil {
		return domain.Operator{}, false, err
	}
	for _, u := range users {
		if u.PINHash != "" && VerifySecret(u.PINHash, candidate) {
			return u.Operator(), true, nil
		}
	}
	return domain.Operator{}, false, nil
}

// RequestAuthorization is the first phase of a gated action: it checks the
// PIN and stores a single-use grant for (operator, action).
func (m *Manager) RequestAuthorization(ctx context.Context, op domain.Operator, action string, pin string) (domain.Grant, error) {
	label, ok := gatedActions[action]
	if !ok {
		return domain.Grant{}, &domain.OpError{Action: "request authorization", Err: fmt.Errorf("%w: unknown action %q", domain.ErrInvalidInput, action)}
	}

	approver, allowed, err := m.CheckPIN(ctx, pin)
	if err != nil {
		return domain.Grant{}, domain.Fail("request authorization", err)
	}
	if !allowed {
		m.logAudit(ctx, op, "PIN Failed", fmt.Sprintf("Failed PIN attempt for %s", label))
		return domain.Grant{}, &domain.OpError{Action: label, Err: domain.ErrForbidden}
	}
	m.logAudit(ctx, op, label, "PIN approved by "+approver.DisplayName())

	grant := domain.Grant{
		Token:      uuid.NewString(),
		Action:     action,
		ApprovedBy: approver.DisplayName(),
		IssuedTo:   operatorKey(op),
		ExpiresAt:  m.now().UTC().Add(m.grantTTL),
	}
	if err := m.grants.Put(ctx, grant, m.grantTTL); err != nil {
		return domain.Grant{}, domain.Fail("request authorization", err)
	}
	return grant, nil
}

// Execute is the second phase: it consumes the grant, which must have been
// issued to op for exactly this action.
func (m *Manager) Execute(ctx context.Context, op domain.Operator, token string, action string) (domain.Grant, error) {
	label := gatedActions[action]
	if label == "" {
		label = action
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Grant{}, &domain.OpError{Action: label, Err: domain.ErrForbidden}
	}
	grant, found, err := m.grants.Take(ctx, token)
	if err != nil {
		return domain.Grant{}, domain.Fail(label, err)
	}
	if !found || grant.Action != action || grant.IssuedTo != operatorKey(op) || !m.now().Before(grant.ExpiresAt) {
		return domain.Grant{}, &domain.OpError{Action: label, Err: domain.ErrForbidden}
	}
	return *grant, nil
}

func (m *Manager) logAudit(ctx context.Context, op domain.Operator, action string, description string) {
	if m.audit == nil {
		return
	}
	err := m.audit.CreateActivityLog(ctx, domain.ActivityLog{
		OperatorID:   op.ID,
		OperatorName: op.DisplayName(),
		Action:       action,
		Description:  description,
		CreatedAt:    m.now().UTC(),
	})
	if err != nil {
		log.Printf("[audit] WARN: failed to write %q entry: %v", action, err)
	}
}

func operatorKey(op domain.Operator) string {
	if op.ID != "" {
		return op.ID
	}
	return "owner:" + op.Email
}

func VerifySecret(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func HashSecret(secret string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
