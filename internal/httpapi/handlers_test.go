package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/OmRakhade/library-admin/internal/auth"
	"github.com/OmRakhade/library-admin/internal/db"
	"github.com/OmRakhade/library-admin/internal/inventory"
	"github.com/OmRakhade/library-admin/internal/metrics"
	"github.com/OmRakhade/library-admin/internal/repo"
	"github.com/OmRakhade/library-admin/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupServer(t *testing.T) (*gin.Engine, *db.DB) {
	// foreign_keys on, so the schema constraint layer is exercised like it
	// is on postgres.
	gormDB, err := gorm.Open(sqlite.Open("file::memory:?_fk=1"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	// In-memory sqlite lives on a single connection; a second pooled
	// connection would see an empty database.
	sqlDB.SetMaxOpenConns(1)

	database := &db.DB{DB: gormDB}
	require.NoError(t, db.RunMigrations(database))

	log := logger.NewLogger("test", "error")
	catalogRepo := repo.NewCatalogRepository(database, log)
	ledgerRepo := repo.NewLedgerRepository(database, log)
	m := metrics.New()
	inventoryService := inventory.NewService(database, ledgerRepo, m, log)
	gate := auth.NewGate(false, log)
	handlers := NewHandlers(database, catalogRepo, inventoryService, nil, log)

	return NewRouter(handlers, gate, m, log, 5*time.Second), database
}

func asAdmin(req *http.Request) {
	req.Header.Set(auth.HeaderUserID, "admin-1")
	req.Header.Set(auth.HeaderRole, string(auth.RoleAdmin))
}

func asPatron(req *http.Request, userID string) {
	req.Header.Set(auth.HeaderUserID, userID)
	req.Header.Set(auth.HeaderRole, string(auth.RolePatron))
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}, identity func(*http.Request)) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if identity != nil {
		identity(req)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createBookHTTP(t *testing.T, router *gin.Engine, copies int) *db.Book {
	w := doJSON(t, router, http.MethodPost, "/books", map[string]interface{}{
		"title":    "Clean Architecture",
		"author":   "Robert Martin",
		"category": "software",
		"copies":   copies,
	}, asAdmin)
	require.Equal(t, http.StatusCreated, w.Code)

	var book db.Book
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &book))
	return &book
}

func countBooks(t *testing.T, database *db.DB) int64 {
	var count int64
	require.NoError(t, database.Model(&db.Book{}).Count(&count).Error)
	return count
}

func TestCreateBook(t *testing.T) {
	router, database := setupServer(t)

	w := doJSON(t, router, http.MethodPost, "/books", map[string]interface{}{
		"title":           "Designing Data-Intensive Applications",
		"author":          "Martin Kleppmann",
		"category":        "databases",
		"publication":     "O'Reilly",
		"publicationdate": "2017-03-16",
		"copies":          4,
	}, asAdmin)

	require.Equal(t, http.StatusCreated, w.Code)

	var book db.Book
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &book))
	assert.NotZero(t, book.ID)
	assert.Equal(t, 4, book.Copies)
	assert.True(t, book.Available)
	require.NotNil(t, book.Publication)
	assert.Equal(t, "O'Reilly", *book.Publication)
	require.NotNil(t, book.PublicationDate)
	assert.False(t, book.CreatedAt.IsZero())

	assert.Equal(t, int64(1), countBooks(t, database))
}

func TestCreateBookDefaultsCopies(t *testing.T) {
	router, _ := setupServer(t)

	for _, body := range []map[string]interface{}{
		{"title": "A", "author": "B", "category": "C"},
		{"title": "A", "author": "B", "category": "C", "copies": 0},
		{"title": "A", "author": "B", "category": "C", "copies": -3},
	} {
		w := doJSON(t, router, http.MethodPost, "/books", body, asAdmin)
		require.Equal(t, http.StatusCreated, w.Code)

		var book db.Book
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &book))
		assert.Equal(t, 1, book.Copies)
		assert.True(t, book.Available)
		assert.Nil(t, book.Publication)
	}
}

func TestCreateBookValidation(t *testing.T) {
	router, database := setupServer(t)

	w := doJSON(t, router, http.MethodPost, "/books", map[string]interface{}{
		"title":    "",
		"author":   "Someone",
		"category": "fiction",
	}, asAdmin)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, int64(0), countBooks(t, database))
}

func TestCreateBookAuthorization(t *testing.T) {
	router, database := setupServer(t)

	body := map[string]interface{}{"title": "A", "author": "B", "category": "C"}

	w := doJSON(t, router, http.MethodPost, "/books", body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodPost, "/books", body, func(r *http.Request) { asPatron(r, "alice") })
	assert.Equal(t, http.StatusForbidden, w.Code)

	assert.Equal(t, int64(0), countBooks(t, database))
}

func TestListBooks(t *testing.T) {
	router, _ := setupServer(t)

	w := doJSON(t, router, http.MethodGet, "/books", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())

	createBookHTTP(t, router, 2)

	w = doJSON(t, router, http.MethodGet, "/books", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var books []db.Book
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &books))
	require.Len(t, books, 1)
	assert.Equal(t, "Clean Architecture", books[0].Title)
}

func TestDeleteBook(t *testing.T) {
	router, database := setupServer(t)
	book := createBookHTTP(t, router, 1)

	w := doJSON(t, router, http.MethodDelete, fmt.Sprintf("/books/%d", book.ID), nil, asAdmin)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(0), countBooks(t, database))
}

func TestDeleteBookInvalidID(t *testing.T) {
	router, _ := setupServer(t)

	w := doJSON(t, router, http.MethodDelete, "/books/abc", nil, asAdmin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteBookNotFound(t *testing.T) {
	router, _ := setupServer(t)

	w := doJSON(t, router, http.MethodDelete, "/books/9999", nil, asAdmin)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteBookForbiddenForPatron(t *testing.T) {
	router, database := setupServer(t)
	book := createBookHTTP(t, router, 1)

	w := doJSON(t, router, http.MethodDelete, fmt.Sprintf("/books/%d", book.ID), nil, func(r *http.Request) { asPatron(r, "alice") })
	assert.Equal(t, http.StatusForbidden, w.Code)

	// The refused delete had no side effect.
	assert.Equal(t, int64(1), countBooks(t, database))
}

func TestDeleteBookWithOpenLoanConflicts(t *testing.T) {
	router, database := setupServer(t)
	book := createBookHTTP(t, router, 2)

	w := doJSON(t, router, http.MethodPost, "/books/issue", map[string]interface{}{"bookId": book.ID},
		func(r *http.Request) { asPatron(r, "alice") })
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/books/%d", book.ID), nil, asAdmin)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, int64(1), countBooks(t, database))
}

func TestDeleteBookAfterReturn(t *testing.T) {
	router, database := setupServer(t)
	book := createBookHTTP(t, router, 1)

	w := doJSON(t, router, http.MethodPost, "/books/issue", map[string]interface{}{"bookId": book.ID},
		func(r *http.Request) { asPatron(r, "alice") })
	require.Equal(t, http.StatusOK, w.Code)

	var issueResp struct {
		IssuedBook db.IssuedBook `json:"issuedBook"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issueResp))

	w = doJSON(t, router, http.MethodPost, "/books/return", map[string]interface{}{"loanId": issueResp.IssuedBook.ID},
		func(r *http.Request) { asPatron(r, "alice") })
	require.Equal(t, http.StatusOK, w.Code)

	// With every copy back on the shelf the delete goes through, ledger
	// history included.
	w = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/books/%d", book.ID), nil, asAdmin)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(0), countBooks(t, database))

	var ledger int64
	require.NoError(t, database.Model(&db.IssuedBook{}).Where("book_id = ?", book.ID).Count(&ledger).Error)
	assert.Equal(t, int64(0), ledger)
}

func TestIssueBook(t *testing.T) {
	router, database := setupServer(t)
	book := createBookHTTP(t, router, 1)

	// User A gets the last copy.
	w := doJSON(t, router, http.MethodPost, "/books/issue", map[string]interface{}{"bookId": book.ID},
		func(r *http.Request) { asPatron(r, "user-a") })
	require.Equal(t, http.StatusOK, w.Code)

	var issueResp struct {
		Message    string        `json:"message"`
		IssuedBook db.IssuedBook `json:"issuedBook"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issueResp))
	assert.Equal(t, "Book issued", issueResp.Message)
	assert.Equal(t, "user-a", issueResp.IssuedBook.UserID)
	assert.Equal(t, book.ID, issueResp.IssuedBook.BookID)

	var after db.Book
	require.NoError(t, database.First(&after, book.ID).Error)
	assert.Equal(t, 0, after.Copies)
	assert.False(t, after.Available)

	// User B is refused: no copies left.
	w = doJSON(t, router, http.MethodPost, "/books/issue", map[string]interface{}{"bookId": book.ID},
		func(r *http.Request) { asPatron(r, "user-b") })
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "No copies available")
}

func TestIssueBookNotFound(t *testing.T) {
	router, _ := setupServer(t)

	w := doJSON(t, router, http.MethodPost, "/books/issue", map[string]interface{}{"bookId": 9999},
		func(r *http.Request) { asPatron(r, "alice") })
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIssueBookUnauthenticated(t *testing.T) {
	router, _ := setupServer(t)

	w := doJSON(t, router, http.MethodPost, "/books/issue", map[string]interface{}{"bookId": 1}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIssueBookBadBody(t *testing.T) {
	router, _ := setupServer(t)

	w := doJSON(t, router, http.MethodPost, "/books/issue", map[string]interface{}{},
		func(r *http.Request) { asPatron(r, "alice") })
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListIssued(t *testing.T) {
	router, _ := setupServer(t)
	book := createBookHTTP(t, router, 3)

	for _, user := range []string{"alice", "bob"} {
		w := doJSON(t, router, http.MethodPost, "/books/issue", map[string]interface{}{"bookId": book.ID},
			func(r *http.Request) { asPatron(r, user) })
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := doJSON(t, router, http.MethodGet, "/books/issued", nil, func(r *http.Request) { asPatron(r, "alice") })
	require.Equal(t, http.StatusOK, w.Code)

	var loans []db.IssuedBook
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loans))
	require.Len(t, loans, 1)
	assert.Equal(t, "alice", loans[0].UserID)
	require.NotNil(t, loans[0].Book)
	assert.Equal(t, book.ID, loans[0].Book.ID)
}

func TestListIssuedUnauthenticated(t *testing.T) {
	router, _ := setupServer(t)

	w := doJSON(t, router, http.MethodGet, "/books/issued", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReturnBook(t *testing.T) {
	router, database := setupServer(t)
	book := createBookHTTP(t, router, 1)

	w := doJSON(t, router, http.MethodPost, "/books/issue", map[string]interface{}{"bookId": book.ID},
		func(r *http.Request) { asPatron(r, "alice") })
	require.Equal(t, http.StatusOK, w.Code)

	var issueResp struct {
		IssuedBook db.IssuedBook `json:"issuedBook"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issueResp))

	w = doJSON(t, router, http.MethodPost, "/books/return", map[string]interface{}{"loanId": issueResp.IssuedBook.ID},
		func(r *http.Request) { asPatron(r, "alice") })
	require.Equal(t, http.StatusOK, w.Code)

	var after db.Book
	require.NoError(t, database.First(&after, book.ID).Error)
	assert.Equal(t, 1, after.Copies)
	assert.True(t, after.Available)

	// The loan is closed; returning it again is a 404.
	w = doJSON(t, router, http.MethodPost, "/books/return", map[string]interface{}{"loanId": issueResp.IssuedBook.ID},
		func(r *http.Request) { asPatron(r, "alice") })
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReturnBookWrongUser(t *testing.T) {
	router, _ := setupServer(t)
	book := createBookHTTP(t, router, 1)

	w := doJSON(t, router, http.MethodPost, "/books/issue", map[string]interface{}{"bookId": book.ID},
		func(r *http.Request) { asPatron(r, "alice") })
	require.Equal(t, http.StatusOK, w.Code)

	var issueResp struct {
		IssuedBook db.IssuedBook `json:"issuedBook"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issueResp))

	w = doJSON(t, router, http.MethodPost, "/books/return", map[string]interface{}{"loanId": issueResp.IssuedBook.ID},
		func(r *http.Request) { asPatron(r, "bob") })
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthz(t *testing.T) {
	router, _ := setupServer(t)

	w := doJSON(t, router, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := setupServer(t)

	// Generate one observed request first.
	doJSON(t, router, http.MethodGet, "/books", nil, nil)

	w := doJSON(t, router, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "library_http_request_duration_seconds")
}
