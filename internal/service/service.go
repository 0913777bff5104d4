package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"otsopos/backend/internal/domain"
	"otsopos/backend/internal/receipt"
	"otsopos/backend/internal/store"
)

type Options struct {
	// Now is the clock; tests inject a fixed one.
	Now func() time.Time
	// Location defines the business day for transaction numbers and reports.
	Location           *time.Location
	StoreName          string
	AllowNegativeStock bool
	Printer            receipt.Printer
}

type Service struct {
	repo               store.Repository
	now                func() time.Time
	loc                *time.Location
	storeName          string
	allowNegativeStock bool
	printer            receipt.Printer
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if strings.TrimSpace(opts.StoreName) == "" {
		opts.StoreName = "Calle Otso"
	}
	if opts.Printer == nil {
		opts.Printer = receipt.LogPrinter{}
	}
	return &Service{
		repo:               repo,
		now:                opts.Now,
		loc:                opts.Location,
		storeName:          opts.StoreName,
		allowNegativeStock: opts.AllowNegativeStock,
		printer:            opts.Printer,
	}
}

func (s *Service) clock() time.Time {
	return s.now().In(s.loc)
}

// Audit appends an activity entry. A failed write is logged and otherwise
// ignored; the operation that triggered it has already happened.
func (s *Service) Audit(ctx context.Context, op domain.Operator, action string, description string) {
	s.logAudit(ctx, op, action, description)
}

func (s *Service) logAudit(ctx context.Context, op domain.Operator, action string, description string) {
	if err := s.repo.CreateActivityLog(ctx, domain.ActivityLog{
		OperatorID:   op.ID,
		OperatorName: op.DisplayName(),
		Action:       action,
		Description:  description,
		CreatedAt:    s.now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write activity log action=%s operator=%s: %v", action, op.DisplayName(), err)
	}
}

func invalid(action string, sentinel error, detail string) error {
	if detail == "" {
		return &domain.OpError{Action: action, Err: sentinel}
	}
	return &domain.OpError{Action: action, Err: fmt.Errorf("%w: %s", sentinel, detail)}
}

func peso(d decimal.Decimal) string {
	return "₱" + d.StringFixed(2)
}

// parseDay reads a YYYY-MM-DD date in the business location; empty means
// today.
func (s *Service) parseDay(action string, date string) (time.Time, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		now := s.clock()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc), nil
	}
	day, err := time.ParseInLocation("2006-01-02", date, s.loc)
	if err != nil {
		return time.Time{}, invalid(action, domain.ErrInvalidInput, "date must be YYYY-MM-DD")
	}
	return day, nil
}
