package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"reviewshelf/pkg/domain"
	"reviewshelf/pkg/store"
)

// CreateBookInput carries the book creation form. The owner set always starts
// as the requester alone.
type CreateBookInput struct {
	Title       string
	Description string
}

// UpdateBookInput carries a partial book update. Nil fields are untouched.
type UpdateBookInput struct {
	Title       *string
	Description *string
}

// CreateBook registers a new book owned by the requester. Only authors and
// publishers may own books.
func (a *App) CreateBook(requester domain.User, in CreateBookInput) (domain.Book, error) {
	if !requester.Role.CanPublish() {
		return domain.Book{}, ErrRoleCannotOwn
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Book{}, ErrTitleRequired
	}
	now := time.Now().UTC()
	book := domain.Book{
		ID:            uuid.NewString(),
		Title:         title,
		Description:   strings.TrimSpace(in.Description),
		PublishedDate: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := a.store.CreateBook(book, requester.ID); err != nil {
		return domain.Book{}, fmt.Errorf("create book: %w", err)
	}
	a.audit(requester.ID, "create", "book", book.ID, map[string]string{"title": title})
	return a.GetBook(book.ID)
}

// GetBook returns one book by ID. Soft-deleted books are reported as missing.
func (a *App) GetBook(id string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	return book, nil
}

// GetOwnedBook is the detail read behind GET /books/{id}. Book queries are
// scoped to the requester's shelf, so a book outside the requester's owner
// set is reported as missing rather than forbidden.
func (a *App) GetOwnedBook(requester domain.User, id string) (domain.Book, error) {
	book, err := a.GetBook(id)
	if err != nil {
		return domain.Book{}, err
	}
	if !book.OwnedBy(requester.ID) {
		return domain.Book{}, ErrBookNotFound
	}
	return book, nil
}

// ListBooks returns a page of the requester's books plus the total count.
func (a *App) ListBooks(requester domain.User, p store.ListParams) ([]domain.Book, int64, error) {
	return a.store.ListBooksByOwner(requester.ID, p)
}

// UpdateBook applies a partial update. Only an owner may mutate the book.
func (a *App) UpdateBook(requester domain.User, id string, in UpdateBookInput) (domain.Book, error) {
	book, err := a.GetBook(id)
	if err != nil {
		return domain.Book{}, err
	}
	if !book.OwnedBy(requester.ID) {
		return domain.Book{}, ErrForbidden
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return domain.Book{}, ErrTitleRequired
		}
		book.Title = title
	}
	if in.Description != nil {
		book.Description = strings.TrimSpace(*in.Description)
	}
	if err := a.store.UpdateBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("update book: %w", err)
	}
	a.audit(requester.ID, "update", "book", id, nil)
	return a.GetBook(id)
}

// DeleteBook soft-deletes the book. The row stays behind for audit history
// but disappears from every read path, aggregates included.
func (a *App) DeleteBook(requester domain.User, id string) error {
	book, err := a.GetBook(id)
	if err != nil {
		return err
	}
	if !book.OwnedBy(requester.ID) {
		return ErrForbidden
	}
	if err := a.store.SoftDeleteBook(id); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	a.audit(requester.ID, "delete", "book", id, nil)
	return nil
}

// GreatBooks lists books whose review average is at least 3, reviews
// attached. Unreviewed books are excluded.
func (a *App) GreatBooks() ([]store.RatedBook, error) {
	return a.store.ListGreatBooks(goodRatingThreshold)
}
