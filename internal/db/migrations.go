package db

import (
	"gorm.io/gorm"
)

// RunMigrations runs all database migrations
func RunMigrations(db *DB) error {
	if err := db.AutoMigrate(&Book{}, &IssuedBook{}); err != nil {
		return err
	}

	return createIndexes(db.DB)
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// Open-loan lookups: delete-blocking check and the per-user issued list
		// both filter on returned = false.
		`CREATE INDEX IF NOT EXISTS idx_issued_books_book_open ON issued_books(book_id, returned)`,
		`CREATE INDEX IF NOT EXISTS idx_issued_books_user_open ON issued_books(user_id, returned)`,
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return err
		}
	}

	return nil
}
