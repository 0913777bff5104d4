package service

import (
	"context"
	"time"

	"otsopos/backend/internal/domain"
	"otsopos/backend/internal/receipt"
	"otsopos/backend/internal/store"
)

const dashboardTopProducts = 5

// Dashboard summarises one business day; an empty date means today.
func (s *Service) Dashboard(ctx context.Context, date string) (domain.Dashboard, error) {
	const action = "Dashboard"
	day, err := s.parseDay(action, date)
	if err != nil {
		return domain.Dashboard{}, err
	}
	from, to := store.DayBounds(day)
	report, err := s.repo.GetDashboard(ctx, from, to, dashboardTopProducts)
	if err != nil {
		return domain.Dashboard{}, domain.Fail(action, err)
	}
	report.Date = day.Format("2006-01-02")
	if report.TopProducts == nil {
		report.TopProducts = []domain.ProductSales{}
	}
	return report, nil
}

// ListTransactions returns sales between two dates inclusive, newest first.
// Empty bounds default to today.
func (s *Service) ListTransactions(ctx context.Context, fromDate string, toDate string) ([]domain.Sale, error) {
	const action = "List Transactions"
	fromDay, err := s.parseDay(action, fromDate)
	if err != nil {
		return nil, err
	}
	toDay := fromDay
	if toDate != "" {
		if toDay, err = s.parseDay(action, toDate); err != nil {
			return nil, err
		}
	}
	if toDay.Before(fromDay) {
		return nil, invalid(action, domain.ErrInvalidInput, "from must not be after to")
	}
	from, _ := store.DayBounds(fromDay)
	_, to := store.DayBounds(toDay)
	sales, err := s.repo.ListSales(ctx, from, to)
	if err != nil {
		return nil, domain.Fail(action, err)
	}
	return sales, nil
}

func (s *Service) GetTransaction(ctx context.Context, saleID string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.Sale{}, domain.Fail("Get Transaction", err)
	}
	return *sale, nil
}

// Receipt re-renders a stored transaction.
func (s *Service) Receipt(ctx context.Context, saleID string) (receipt.Receipt, error) {
	sale, err := s.GetTransaction(ctx, saleID)
	if err != nil {
		return receipt.Receipt{}, err
	}
	return receipt.Build(sale, s.storeName), nil
}

// ActivityLogs lists one day's entries newest first.
func (s *Service) ActivityLogs(ctx context.Context, date string, limit int) ([]domain.ActivityLog, error) {
	const action = "View Activity Logs"
	day, err := s.parseDay(action, date)
	if err != nil {
		return nil, err
	}
	from, to := store.DayBounds(day)
	logs, err := s.repo.ListActivityLogs(ctx, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, domain.Fail(action, err)
	}
	return logs, nil
}

// StoreName is printed on receipts.
func (s *Service) StoreName() string {
	return s.storeName
}

// Now exposes the service clock in the business location.
func (s *Service) Now() time.Time {
	return s.clock()
}
