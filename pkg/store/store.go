package store

import (
	"errors"

	"reviewshelf/pkg/domain"
)

// Sentinel errors surfaced by store implementations. Uniqueness violations are
// reported from the storage constraint, not a pre-check, so concurrent
// identical writes cannot slip past.
var (
	ErrDuplicateEmail  = errors.New("email already registered")
	ErrDuplicateReview = errors.New("review already exists for this book and user")
)

// ListParams bounds list queries.
type ListParams struct {
	Limit  int
	Offset int
}

// RatedUser pairs a user with the average rating across reviews of all books
// the user owns.
type RatedUser struct {
	User      domain.User
	AvgRating float64
}

// RatedBook pairs a book with the average of its reviews' ratings.
type RatedBook struct {
	Book      domain.Book
	AvgRating float64
}

// Store defines persistence operations for users, books, and reviews.
type Store interface {
	// users
	CreateUser(domain.User) error
	UpdateUser(domain.User) error
	DeleteUser(id string) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	ListUsers(p ListParams) ([]domain.User, int64, error)
	// ListGoodAuthors returns users whose average rating across reviews of
	// their non-deleted books is at least minAvg, books attached. Users with
	// no reviews are excluded.
	ListGoodAuthors(minAvg float64) ([]RatedUser, error)

	// books
	CreateBook(book domain.Book, ownerID string) error
	UpdateBook(domain.Book) error
	SoftDeleteBook(id string) error
	GetBook(id string) (domain.Book, bool, error)
	ListBooksByOwner(ownerID string, p ListParams) ([]domain.Book, int64, error)
	// ListGreatBooks returns non-deleted books with review average at least
	// minAvg, reviews attached. Unreviewed books are excluded.
	ListGreatBooks(minAvg float64) ([]RatedBook, error)

	// reviews
	CreateReview(domain.Review) error
	UpdateReview(domain.Review) error
	DeleteReview(id string) error
	GetReview(id string) (domain.Review, bool, error)
	ListReviews(p ListParams) ([]domain.Review, int64, error)
	HasReview(bookID, ownerID string) (bool, error)

	// audit
	RecordAudit(domain.AuditEntry) error
}
