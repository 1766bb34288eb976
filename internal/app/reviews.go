package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"reviewshelf/pkg/domain"
	"reviewshelf/pkg/store"
)

// CreateReviewInput carries the review form. The review owner is always the
// requester, regardless of what the client sent.
type CreateReviewInput struct {
	BookID  string
	Rating  int
	Comment string
}

// UpdateReviewInput carries a partial review update. Nil fields are untouched.
type UpdateReviewInput struct {
	Rating  *int
	Comment *string
}

// CreateReview records the requester's review of a book. A user may review a
// given book at most once.
func (a *App) CreateReview(requester domain.User, in CreateReviewInput) (domain.Review, error) {
	if _, err := a.GetBook(in.BookID); err != nil {
		return domain.Review{}, err
	}
	if in.Rating < 1 || in.Rating > 5 {
		return domain.Review{}, ErrRatingOutOfRange
	}
	exists, err := a.store.HasReview(in.BookID, requester.ID)
	if err != nil {
		return domain.Review{}, fmt.Errorf("check review: %w", err)
	}
	if exists {
		return domain.Review{}, ErrDuplicateReview
	}
	now := time.Now().UTC()
	review := domain.Review{
		ID:        uuid.NewString(),
		BookID:    in.BookID,
		Owner:     requester,
		Rating:    in.Rating,
		Comment:   strings.TrimSpace(in.Comment),
		CreatedAt: now,
	}
	if err := a.store.CreateReview(review); err != nil {
		// The (book, owner) unique index backstops the pre-check.
		if errors.Is(err, store.ErrDuplicateReview) {
			return domain.Review{}, ErrDuplicateReview
		}
		return domain.Review{}, fmt.Errorf("create review: %w", err)
	}
	a.audit(requester.ID, "create", "review", review.ID, map[string]string{"book_id": in.BookID})
	return a.GetReview(review.ID)
}

// GetReview returns one review by ID.
func (a *App) GetReview(id string) (domain.Review, error) {
	review, ok, err := a.store.GetReview(id)
	if err != nil {
		return domain.Review{}, fmt.Errorf("fetch review: %w", err)
	}
	if !ok {
		return domain.Review{}, ErrReviewNotFound
	}
	return review, nil
}

// ListReviews returns a page of reviews plus the total count.
func (a *App) ListReviews(p store.ListParams) ([]domain.Review, int64, error) {
	return a.store.ListReviews(p)
}

// UpdateReview applies a partial update. Only the review's author may mutate
// it.
func (a *App) UpdateReview(requester domain.User, id string, in UpdateReviewInput) (domain.Review, error) {
	review, err := a.GetReview(id)
	if err != nil {
		return domain.Review{}, err
	}
	if !review.OwnedBy(requester.ID) {
		return domain.Review{}, ErrForbidden
	}
	if in.Rating != nil {
		if *in.Rating < 1 || *in.Rating > 5 {
			return domain.Review{}, ErrRatingOutOfRange
		}
		review.Rating = *in.Rating
	}
	if in.Comment != nil {
		review.Comment = strings.TrimSpace(*in.Comment)
	}
	if err := a.store.UpdateReview(review); err != nil {
		return domain.Review{}, fmt.Errorf("update review: %w", err)
	}
	return a.GetReview(id)
}

// DeleteReview removes the review, freeing the requester to review the book
// again.
func (a *App) DeleteReview(requester domain.User, id string) error {
	review, err := a.GetReview(id)
	if err != nil {
		return err
	}
	if !review.OwnedBy(requester.ID) {
		return ErrForbidden
	}
	if err := a.store.DeleteReview(id); err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	a.audit(requester.ID, "delete", "review", id, map[string]string{"book_id": review.BookID})
	return nil
}
