package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"otsopos/backend/internal/domain"
)

var validRoles = map[string]bool{
	domain.RoleAdmin:   true,
	domain.RoleCashier: true,
	domain.RoleManager: true,
}

func validPIN(pin string) bool {
	if len(pin) < 4 || len(pin) > 6 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func hashSecret(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func normalizeUserRequest(action string, req *domain.UserRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Role = strings.TrimSpace(req.Role)
	req.PIN = strings.TrimSpace(req.PIN)
	if req.Name == "" || req.Email == "" {
		return invalid(action, domain.ErrInvalidInput, "name and email are required")
	}
	if !strings.Contains(req.Email, "@") {
		return invalid(action, domain.ErrInvalidInput, "email is not valid")
	}
	if !validRoles[req.Role] {
		return invalid(action, domain.ErrInvalidInput, "role must be Admin, Cashier or Manager")
	}
	if req.PIN != "" && !validPIN(req.PIN) {
		return invalid(action, domain.ErrInvalidInput, "PIN must be 4 to 6 digits")
	}
	return nil
}

// emailTaken reports a collision with any user other than exceptID.
func (s *Service) emailTaken(ctx context.Context, email string, exceptID string) (bool, error) {
	existing, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return existing.ID != exceptID, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, domain.Fail("List Users", err)
	}
	return users, nil
}

func (s *Service) CreateUser(ctx context.Context, op domain.Operator, req domain.UserRequest) (domain.User, error) {
	const action = "Add User"
	if err := normalizeUserRequest(action, &req); err != nil {
		return domain.User{}, err
	}
	if strings.TrimSpace(req.Password) == "" {
		return domain.User{}, invalid(action, domain.ErrInvalidInput, "password is required")
	}
	if taken, err := s.emailTaken(ctx, req.Email, ""); err != nil {
		return domain.User{}, domain.Fail(action, err)
	} else if taken {
		return domain.User{}, &domain.OpError{Action: action, Err: domain.ErrDuplicateEmail}
	}

	user := domain.User{Name: req.Name, Email: req.Email, Role: req.Role, CreatedAt: s.clock()}
	var err error
	if user.PasswordHash, err = hashSecret(req.Password); err != nil {
		return domain.User{}, domain.Fail(action, err)
	}
	if req.PIN != "" {
		if user.PINHash, err = hashSecret(req.PIN); err != nil {
			return domain.User{}, domain.Fail(action, err)
		}
	}

	created, err := s.repo.CreateUser(ctx, user)
	if err != nil {
		return domain.User{}, domain.Fail(action, err)
	}
	s.logAudit(ctx, op, action, fmt.Sprintf("Added %s (%s) as %s", created.Name, created.Email, created.Role))
	return *created, nil
}

// UpdateUser keeps the stored password and PIN when the request leaves
// them blank.
func (s *Service) UpdateUser(ctx context.Context, op domain.Operator, userID string, req domain.UserRequest) (domain.User, error) {
	const action = "Edit User"
	if err := normalizeUserRequest(action, &req); err != nil {
		return domain.User{}, err
	}
	current, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, domain.Fail(action, err)
	}
	if taken, err := s.emailTaken(ctx, req.Email, userID); err != nil {
		return domain.User{}, domain.Fail(action, err)
	} else if taken {
		return domain.User{}, &domain.OpError{Action: action, Err: domain.ErrDuplicateEmail}
	}

	next := *current
	next.Name, next.Email, next.Role = req.Name, req.Email, req.Role
	if strings.TrimSpace(req.Password) != "" {
		if next.PasswordHash, err = hashSecret(req.Password); err != nil {
			return domain.User{}, domain.Fail(action, err)
		}
	}
	if req.PIN != "" {
		if next.PINHash, err = hashSecret(req.PIN); err != nil {
			return domain.User{}, domain.Fail(action, err)
		}
	}

	updated, err := s.repo.UpdateUser(ctx, next)
	if err != nil {
		return domain.User{}, domain.Fail(action, err)
	}
	s.logAudit(ctx, op, action, fmt.Sprintf("Updated %s (%s)", updated.Name, updated.Role))
	return *updated, nil
}

func (s *Service) DeleteUser(ctx context.Context, op domain.Operator, userID string) error {
	const action = "Delete User"
	if op.ID != "" && op.ID == userID {
		return invalid(action, domain.ErrInvalidInput, "cannot delete the signed-in user")
	}
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return domain.Fail(action, err)
	}
	if err := s.repo.DeleteUser(ctx, userID); err != nil {
		return domain.Fail(action, err)
	}
	s.logAudit(ctx, op, action, fmt.Sprintf("Deleted %s (%s)", user.Name, user.Email))
	return nil
}
