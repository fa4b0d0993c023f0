// Package inventory owns every mutation of the copy count and the issuance
// ledger. The two stores are only ever written together, inside one
// transaction, so the conservation property (copies + open ledger rows is
// constant per book) survives concurrent requests.
package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/OmRakhade/library-admin/internal/db"
	"github.com/OmRakhade/library-admin/internal/metrics"
	"github.com/OmRakhade/library-admin/internal/repo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNoCopiesAvailable is returned when a book exists but has no copies left
var ErrNoCopiesAvailable = errors.New("no copies available")

// Service executes issue and return requests against the catalog and the ledger
type Service struct {
	db      *db.DB
	ledger  *repo.LedgerRepository
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewService creates the inventory service
func NewService(database *db.DB, ledger *repo.LedgerRepository, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{
		db:      database,
		ledger:  ledger,
		metrics: m,
		log:     logger,
	}
}

// Issue lends one copy of a book to a user. The availability check and the
// decrement are a single conditional UPDATE, so of N concurrent calls against
// the same book at most copies-many can pass the guard; the ledger row is
// inserted in the same transaction and rolls back with it.
func (s *Service) Issue(ctx context.Context, userID string, bookID uint) (*db.IssuedBook, error) {
	var loan *db.IssuedBook

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&db.Book{}).
			Where("id = ? AND copies > 0", bookID).
			Updates(map[string]interface{}{
				// Both expressions see the pre-update copy count, so
				// available stays derived from the new value.
				"copies":    gorm.Expr("copies - 1"),
				"available": gorm.Expr("copies - 1 > 0"),
			})
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			// Guard failed: tell a missing book apart from an exhausted one.
			var count int64
			if err := tx.Model(&db.Book{}).Where("id = ?", bookID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return repo.ErrBookNotFound
			}
			return ErrNoCopiesAvailable
		}

		loan = &db.IssuedBook{
			UserID:   userID,
			BookID:   bookID,
			IssuedAt: time.Now().UTC(),
			Returned: false,
		}
		return tx.Create(loan).Error
	})

	switch {
	case err == nil:
		s.metrics.IssueOutcomes.WithLabelValues(metrics.OutcomeIssued).Inc()
		s.log.Info("Book issued",
			zap.Uint("book_id", bookID),
			zap.String("user_id", userID),
			zap.Uint("loan_id", loan.ID),
		)
		return loan, nil
	case errors.Is(err, repo.ErrBookNotFound):
		s.metrics.IssueOutcomes.WithLabelValues(metrics.OutcomeNotFound).Inc()
		return nil, err
	case errors.Is(err, ErrNoCopiesAvailable):
		s.metrics.IssueOutcomes.WithLabelValues(metrics.OutcomeNoCopies).Inc()
		return nil, err
	default:
		s.metrics.IssueOutcomes.WithLabelValues(metrics.OutcomeError).Inc()
		s.log.Error("Failed to issue book",
			zap.Uint("book_id", bookID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, err
	}
}

// Return closes a loan and gives the copy back to the catalog: the returned
// flag flips and the copy count increments in the same transaction. Only the
// borrowing user may return a loan; a second return of the same loan fails the
// conditional update and reports the loan as not found.
func (s *Service) Return(ctx context.Context, userID string, loanID uint) (*db.IssuedBook, error) {
	var loan db.IssuedBook

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		result := tx.Model(&db.IssuedBook{}).
			Where("id = ? AND user_id = ? AND returned = ?", loanID, userID, false).
			Updates(map[string]interface{}{
				"returned":    true,
				"returned_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return repo.ErrLoanNotFound
		}

		if err := tx.First(&loan, loanID).Error; err != nil {
			return err
		}

		return tx.Model(&db.Book{}).
			Where("id = ?", loan.BookID).
			Updates(map[string]interface{}{
				"copies":    gorm.Expr("copies + 1"),
				"available": true,
			}).Error
	})

	switch {
	case err == nil:
		s.metrics.ReturnOutcomes.WithLabelValues(metrics.OutcomeReturned).Inc()
		s.log.Info("Book returned",
			zap.Uint("loan_id", loanID),
			zap.Uint("book_id", loan.BookID),
			zap.String("user_id", userID),
		)
		return &loan, nil
	case errors.Is(err, repo.ErrLoanNotFound):
		s.metrics.ReturnOutcomes.WithLabelValues(metrics.OutcomeNotFound).Inc()
		return nil, err
	default:
		s.metrics.ReturnOutcomes.WithLabelValues(metrics.OutcomeError).Inc()
		s.log.Error("Failed to return book",
			zap.Uint("loan_id", loanID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, err
	}
}

// ListIssuedForUser returns the caller's outstanding loans with book details.
func (s *Service) ListIssuedForUser(ctx context.Context, userID string) ([]*db.IssuedBook, error) {
	return s.ledger.ListOpenForUser(ctx, userID)
}
