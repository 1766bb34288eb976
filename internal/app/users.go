package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"reviewshelf/pkg/auth"
	"reviewshelf/pkg/domain"
	"reviewshelf/pkg/store"
)

// RegisterInput carries the registration form.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
	Country   string
	Bio       string
}

// UpdateUserInput carries a partial user update. Nil fields are untouched.
type UpdateUserInput struct {
	FirstName *string
	LastName  *string
	Role      *string
	Country   *string
	Bio       *string
}

// Register creates a user account. The username is assigned equal to the
// email and the password is hashed before persistence.
func (a *App) Register(in RegisterInput) (domain.User, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || in.Password == "" ||
		strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" ||
		strings.TrimSpace(in.Role) == "" || strings.TrimSpace(in.Country) == "" {
		return domain.User{}, ErrMissingFields
	}
	role, ok := domain.ParseRole(in.Role)
	if !ok {
		return domain.User{}, ErrInvalidRole
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return domain.User{}, &ValidationError{Err: err}
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, ErrEmailTaken
	}
	passwordHash, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         role,
		Country:      strings.TrimSpace(in.Country),
		Bio:          strings.TrimSpace(in.Bio),
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.CreateUser(user); err != nil {
		// The unique index backstops the pre-check under concurrent signups.
		if errors.Is(err, store.ErrDuplicateEmail) {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	a.audit(user.ID, "register", "user", user.ID, map[string]string{"role": string(role)})
	return user, nil
}

// Login validates credentials and issues a bearer token.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.tokens.Issue(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// GetUser returns one user by ID.
func (a *App) GetUser(id string) (domain.User, error) {
	user, ok, err := a.store.GetUserByID(id)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}

// ListUsers returns a page of users plus the total count.
func (a *App) ListUsers(p store.ListParams) ([]domain.User, int64, error) {
	return a.store.ListUsers(p)
}

// UpdateUser applies a partial update. Only the matching identity may mutate
// the user resource.
func (a *App) UpdateUser(requester domain.User, id string, in UpdateUserInput) (domain.User, error) {
	target, err := a.GetUser(id)
	if err != nil {
		return domain.User{}, err
	}
	if !domain.IsUserOwner(requester.ID, target) {
		return domain.User{}, ErrForbidden
	}
	if in.FirstName != nil {
		target.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		target.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Role != nil {
		role, ok := domain.ParseRole(*in.Role)
		if !ok {
			return domain.User{}, ErrInvalidRole
		}
		target.Role = role
	}
	if in.Country != nil {
		target.Country = strings.TrimSpace(*in.Country)
	}
	if in.Bio != nil {
		target.Bio = strings.TrimSpace(*in.Bio)
	}
	if err := a.store.UpdateUser(target); err != nil {
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}
	return a.GetUser(id)
}

// DeleteUser removes the account and, with it, its reviews.
func (a *App) DeleteUser(requester domain.User, id string) error {
	target, err := a.GetUser(id)
	if err != nil {
		return err
	}
	if !domain.IsUserOwner(requester.ID, target) {
		return ErrForbidden
	}
	if err := a.store.DeleteUser(id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	a.audit(requester.ID, "delete", "user", id, nil)
	return nil
}

// GoodAuthors lists users whose aggregate average rating is at least 3,
// owned books attached. Users with no reviews are excluded.
func (a *App) GoodAuthors() ([]store.RatedUser, error) {
	return a.store.ListGoodAuthors(goodRatingThreshold)
}
