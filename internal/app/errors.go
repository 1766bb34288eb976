package app

import "errors"

var (
	// ErrInvalidCredentials is returned when the supplied credentials do not match.
	// This message is intended to be shown to end users and should not enable account enumeration.
	ErrInvalidCredentials = errors.New("incorrect email address or password")

	ErrMissingFields   = errors.New("email, password, first name, last name, role and country are required")
	ErrInvalidRole     = errors.New("role must be one of author, publisher, reader")
	ErrEmailTaken      = errors.New("email already registered")
	ErrUserNotFound    = errors.New("user not found")
	ErrBookNotFound    = errors.New("book not found")
	ErrReviewNotFound  = errors.New("review not found")
	ErrForbidden       = errors.New("forbidden")
	ErrRoleCannotOwn   = errors.New("you need to register as an author or publisher to create a new book")
	ErrTitleRequired   = errors.New("title is required")
	ErrRatingOutOfRange = errors.New("please rate the book within 1-5 stars")
	ErrDuplicateReview  = errors.New("you have already reviewed this book; delete the previous review to add a new one")
)

// ValidationError wraps an input error so transport layers can map it to a
// client error status while preserving the message.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }
