package repo

import (
	"context"
	"errors"

	"github.com/OmRakhade/library-admin/internal/db"
	"go.uber.org/zap"
)

// ErrLoanNotFound is returned when a ledger row id does not resolve for the caller
var ErrLoanNotFound = errors.New("issued book not found")

// LedgerRepository handles read access to the issuance ledger
type LedgerRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(database *db.DB, logger *zap.Logger) *LedgerRepository {
	return &LedgerRepository{
		db:  database,
		log: logger,
	}
}

// ListOpenForUser returns the user's outstanding loans with book details embedded.
func (r *LedgerRepository) ListOpenForUser(ctx context.Context, userID string) ([]*db.IssuedBook, error) {
	var loans []*db.IssuedBook
	err := r.db.WithContext(ctx).
		Preload("Book").
		Where("user_id = ? AND returned = ?", userID, false).
		Order("issued_at DESC, id DESC").
		Find(&loans).Error
	if err != nil {
		r.log.Error("Failed to list issued books", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	return loans, nil
}
