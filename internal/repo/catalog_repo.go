package repo

import (
	"context"
	"errors"

	"github.com/OmRakhade/library-admin/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrBookNotFound is returned when a book id does not resolve to a row
	ErrBookNotFound = errors.New("book not found")

	// ErrBookHasOpenLoans is returned when a delete is blocked by outstanding issuances
	ErrBookHasOpenLoans = errors.New("book has outstanding issued copies")
)

// CatalogRepository handles book catalog operations
type CatalogRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(database *db.DB, logger *zap.Logger) *CatalogRepository {
	return &CatalogRepository{
		db:  database,
		log: logger,
	}
}

// ListBooks returns a page of books ordered by creation time, newest first.
func (r *CatalogRepository) ListBooks(ctx context.Context, page, pageSize int) ([]*db.Book, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&db.Book{}).Count(&total).Error; err != nil {
		r.log.Error("Failed to count books", zap.Error(err))
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	var books []*db.Book
	if err := r.db.WithContext(ctx).
		Offset(offset).
		Limit(pageSize).
		Order("created_at DESC, id DESC").
		Find(&books).Error; err != nil {
		r.log.Error("Failed to list books", zap.Error(err))
		return nil, 0, err
	}

	return books, total, nil
}

// CreateBook inserts a new book. The caller has already validated required
// fields and normalized the copy count; Available is derived here so the two
// can never disagree on a fresh row.
func (r *CatalogRepository) CreateBook(ctx context.Context, book *db.Book) error {
	book.Available = book.Copies > 0

	if err := r.db.WithContext(ctx).Create(book).Error; err != nil {
		r.log.Error("Failed to create book", zap.String("title", book.Title), zap.Error(err))
		return err
	}

	r.log.Info("Book created", zap.Uint("book_id", book.ID), zap.String("title", book.Title))
	return nil
}

// DeleteBook removes a book and its ledger history. Deletion is blocked while
// any ledger row for the book is still open; the check, the history purge and
// the delete run in one transaction so a concurrent issuance cannot slip
// between them, and so the foreign key on issued_books holds at every point.
func (r *CatalogRepository) DeleteBook(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open int64
		if err := tx.Model(&db.IssuedBook{}).
			Where("book_id = ? AND returned = ?", id, false).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return ErrBookHasOpenLoans
		}

		// Only returned rows remain; they go with the book.
		if err := tx.Where("book_id = ?", id).Delete(&db.IssuedBook{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&db.Book{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrBookNotFound
		}
		return nil
	})

	switch {
	case err == nil:
		r.log.Info("Book deleted", zap.Uint("book_id", id))
		return nil
	case errors.Is(err, ErrBookNotFound), errors.Is(err, ErrBookHasOpenLoans):
		return err
	default:
		r.log.Error("Failed to delete book", zap.Uint("book_id", id), zap.Error(err))
		return err
	}
}
