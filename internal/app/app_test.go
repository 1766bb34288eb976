package app

import (
	"testing"
	"time"

	"reviewshelf/pkg/auth"
	"reviewshelf/pkg/domain"
	"reviewshelf/pkg/store"
)

const testPassword = "Str0ng#Password!"

func newTestApp(t *testing.T) (*App, *store.MemoryStore) {
	t.Helper()
	tokens, err := auth.NewTokenManager("test-secret", 15*time.Minute, auth.TokenOptions{})
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	mem := store.NewMemoryStore()
	a, err := New(Config{Store: mem, Tokens: tokens})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, mem
}

func registerUser(t *testing.T, a *App, email string, role domain.Role) domain.User {
	t.Helper()
	user, err := a.Register(RegisterInput{
		Email:     email,
		Password:  testPassword,
		FirstName: "Test",
		LastName:  "User",
		Role:      string(role),
		Country:   "NZ",
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return user
}

func createBook(t *testing.T, a *App, owner domain.User, title string) domain.Book {
	t.Helper()
	book, err := a.CreateBook(owner, CreateBookInput{Title: title})
	if err != nil {
		t.Fatalf("create book %q: %v", title, err)
	}
	return book
}
