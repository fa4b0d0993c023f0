package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/OmRakhade/library-admin/internal/auth"
	"github.com/OmRakhade/library-admin/internal/db"
	"github.com/OmRakhade/library-admin/internal/events"
	"github.com/OmRakhade/library-admin/internal/inventory"
	"github.com/OmRakhade/library-admin/internal/repo"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 100
	maxPageSize     = 100

	publishTimeout = 10 * time.Second
)

// EventPublisher is the slice of the events publisher the handlers need.
// Nil when the broker is unavailable; the API works without it.
type EventPublisher interface {
	PublishBookCreated(ctx context.Context, book *db.Book) error
	PublishBookDeleted(ctx context.Context, bookID uint) error
	PublishBookIssued(ctx context.Context, loan *db.IssuedBook) error
	PublishBookReturned(ctx context.Context, loan *db.IssuedBook) error
}

// Handlers holds the HTTP handlers and their collaborators
type Handlers struct {
	database  *db.DB
	catalog   *repo.CatalogRepository
	inventory *inventory.Service
	events    EventPublisher
	log       *zap.Logger
}

// NewHandlers creates the HTTP handlers
func NewHandlers(database *db.DB, catalog *repo.CatalogRepository, inv *inventory.Service, publisher EventPublisher, logger *zap.Logger) *Handlers {
	return &Handlers{
		database:  database,
		catalog:   catalog,
		inventory: inv,
		events:    publisher,
		log:       logger,
	}
}

type createBookRequest struct {
	Title           string `json:"title"`
	Author          string `json:"author"`
	Category        string `json:"category"`
	Publication     string `json:"publication"`
	PublicationDate string `json:"publicationdate"`
	Copies          *int   `json:"copies"`
}

type issueBookRequest struct {
	BookID uint `json:"bookId"`
}

type returnBookRequest struct {
	LoanID uint `json:"loanId"`
}

// ListBooks returns the catalog, newest first.
func (h *Handlers) ListBooks(c *gin.Context) {
	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := queryInt(c, "page_size", defaultPageSize)
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	books, _, err := h.catalog.ListBooks(c.Request.Context(), page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch books"})
		return
	}

	if books == nil {
		books = []*db.Book{}
	}
	c.JSON(http.StatusOK, books)
}

// CreateBook validates and inserts a new catalog entry.
func (h *Handlers) CreateBook(c *gin.Context) {
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Author = strings.TrimSpace(req.Author)
	req.Category = strings.TrimSpace(req.Category)
	if req.Title == "" || req.Author == "" || req.Category == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	copies := 1
	if req.Copies != nil && *req.Copies > 0 {
		copies = *req.Copies
	}

	book := &db.Book{
		Title:    req.Title,
		Author:   req.Author,
		Category: req.Category,
		Copies:   copies,
	}

	if req.Publication != "" {
		book.Publication = &req.Publication
	}
	if req.PublicationDate != "" {
		date, err := parseDate(req.PublicationDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid publication date"})
			return
		}
		book.PublicationDate = &date
	}

	if err := h.catalog.CreateBook(c.Request.Context(), book); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create book"})
		return
	}

	h.publishAsync(RequestIDFrom(c), events.EventTypeBookCreated, func(ctx context.Context) error {
		return h.events.PublishBookCreated(ctx, book)
	})

	c.JSON(http.StatusCreated, book)
}

// DeleteBook removes a catalog entry unless copies are still out on loan.
func (h *Handlers) DeleteBook(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid book id"})
		return
	}
	bookID := uint(id)

	switch err := h.catalog.DeleteBook(c.Request.Context(), bookID); {
	case err == nil:
	case errors.Is(err, repo.ErrBookNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
		return
	case errors.Is(err, repo.ErrBookHasOpenLoans):
		c.JSON(http.StatusConflict, gin.H{"error": "Book has issued copies outstanding"})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete book"})
		return
	}

	h.publishAsync(RequestIDFrom(c), events.EventTypeBookDeleted, func(ctx context.Context) error {
		return h.events.PublishBookDeleted(ctx, bookID)
	})

	c.JSON(http.StatusOK, gin.H{"message": "Book deleted"})
}

// IssueBook lends one copy of a book to the caller.
func (h *Handlers) IssueBook(c *gin.Context) {
	identity, ok := auth.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req issueBookRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.BookID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	loan, err := h.inventory.Issue(c.Request.Context(), identity.UserID, req.BookID)
	switch {
	case err == nil:
	case errors.Is(err, repo.ErrBookNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
		return
	case errors.Is(err, inventory.ErrNoCopiesAvailable):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No copies available"})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
		return
	}

	h.publishAsync(RequestIDFrom(c), events.EventTypeBookIssued, func(ctx context.Context) error {
		return h.events.PublishBookIssued(ctx, loan)
	})

	c.JSON(http.StatusOK, gin.H{"message": "Book issued", "issuedBook": loan})
}

// ReturnBook closes one of the caller's loans and restores the copy.
func (h *Handlers) ReturnBook(c *gin.Context) {
	identity, ok := auth.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req returnBookRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.LoanID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	loan, err := h.inventory.Return(c.Request.Context(), identity.UserID, req.LoanID)
	switch {
	case err == nil:
	case errors.Is(err, repo.ErrLoanNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Issued book not found"})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
		return
	}

	h.publishAsync(RequestIDFrom(c), events.EventTypeBookReturned, func(ctx context.Context) error {
		return h.events.PublishBookReturned(ctx, loan)
	})

	c.JSON(http.StatusOK, gin.H{"message": "Book returned", "issuedBook": loan})
}

// ListIssued returns the caller's outstanding loans with book details.
func (h *Handlers) ListIssued(c *gin.Context) {
	identity, ok := auth.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	loans, err := h.inventory.ListIssuedForUser(c.Request.Context(), identity.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
		return
	}

	if loans == nil {
		loans = []*db.IssuedBook{}
	}
	c.JSON(http.StatusOK, loans)
}

// Health reports readiness of the database and, when configured, the broker.
func (h *Handlers) Health(c *gin.Context) {
	if err := h.database.Ping(); err != nil {
		h.log.Error("Database health check failed", zap.Error(err))
		c.String(http.StatusServiceUnavailable, "unhealthy: database connection failed")
		return
	}

	if p, ok := h.events.(interface{ IsHealthy() bool }); ok && !p.IsHealthy() {
		h.log.Error("RabbitMQ health check failed")
		c.String(http.StatusServiceUnavailable, "unhealthy: rabbitmq connection failed")
		return
	}

	c.String(http.StatusOK, "healthy")
}

// publishAsync fires an event off the request path: publish failures are
// logged, never surfaced to the caller, since the mutation already committed.
func (h *Handlers) publishAsync(requestID, eventType string, publish func(context.Context) error) {
	if h.events == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		ctx = events.WithCorrelationID(ctx, requestID)

		if err := publish(ctx); err != nil {
			h.log.Error("Failed to publish event",
				zap.String("event_type", eventType),
				zap.String("request_id", requestID),
				zap.Error(err),
			)
		}
	}()
}

func queryInt(c *gin.Context, key string, fallback int) int {
	value := c.Query(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}
