package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"reviewshelf/internal/app"
	"reviewshelf/internal/ratelimit"
	"reviewshelf/pkg/auth"
	"reviewshelf/pkg/store"
)

const testPassword = "Str0ng#Password!"

func newTestServer(t *testing.T, authLimiter, reviewLimiter ratelimit.Limiter) *httptest.Server {
	t.Helper()
	tokens, err := auth.NewTokenManager("test-secret", 15*time.Minute, auth.TokenOptions{})
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	a, err := app.New(app.Config{Store: store.NewMemoryStore(), Tokens: tokens})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv := httptest.NewServer(New(Config{
		App:           a,
		AuthLimiter:   authLimiter,
		ReviewLimiter: reviewLimiter,
	}).Router())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}

func signup(t *testing.T, srv *httptest.Server, email, role string) (id, token string) {
	t.Helper()
	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/users", "", map[string]any{
		"email":     email,
		"password":  testPassword,
		"firstName": "Test",
		"lastName":  "User",
		"role":      role,
		"country":   "NZ",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup %s expected 201, got %d (%v)", email, resp.StatusCode, payload)
	}
	id, _ = payload["id"].(string)

	resp, payload = doJSON(t, http.MethodPost, srv.URL+"/auth/login", "", map[string]any{
		"email":    email,
		"password": testPassword,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s expected 200, got %d (%v)", email, resp.StatusCode, payload)
	}
	token, _ = payload["token"].(string)
	if id == "" || token == "" {
		t.Fatalf("missing id or token for %s", email)
	}
	return id, token
}

func createBookHTTP(t *testing.T, srv *httptest.Server, token, title string) string {
	t.Helper()
	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/books", token, map[string]any{"title": title})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create book expected 201, got %d (%v)", resp.StatusCode, payload)
	}
	id, _ := payload["id"].(string)
	return id
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	resp, payload := doJSON(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	if resp.StatusCode != http.StatusOK || payload["status"] != "ok" {
		t.Fatalf("healthz: %d %v", resp.StatusCode, payload)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	signup(t, srv, "u@example.com", "reader")

	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/auth/login", "", map[string]any{
		"email":    "u@example.com",
		"password": "wrong-password",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if payload["code"] != "AUTH_INVALID_CREDENTIALS" {
		t.Fatalf("code = %v", payload["code"])
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	for _, path := range []string{"/books", "/reviews", "/users/someone"} {
		resp, _ := doJSON(t, http.MethodGet, srv.URL+path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("GET %s without token expected 401, got %d", path, resp.StatusCode)
		}
		resp, _ = doJSON(t, http.MethodGet, srv.URL+path, "not-a-token", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("GET %s with bad token expected 401, got %d", path, resp.StatusCode)
		}
	}
}

func TestBookCreationRoles(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	_, readerTok := signup(t, srv, "reader@example.com", "reader")
	authorID, authorTok := signup(t, srv, "author@example.com", "author")

	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/books", readerTok, map[string]any{"title": "Nope"})
	if resp.StatusCode != http.StatusBadRequest || payload["code"] != "BOOK_ROLE_CANNOT_OWN" {
		t.Fatalf("reader create: %d %v", resp.StatusCode, payload)
	}

	resp, payload = doJSON(t, http.MethodPost, srv.URL+"/books", authorTok, map[string]any{"title": "Mine"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("author create: %d %v", resp.StatusCode, payload)
	}
	owners, _ := payload["owners"].([]any)
	if len(owners) != 1 {
		t.Fatalf("owners = %v", payload["owners"])
	}
	owner, _ := owners[0].(map[string]any)
	if owner["id"] != authorID || owner["role"] != "author" {
		t.Fatalf("owner view = %v", owner)
	}
	if _, leaked := owner["email"]; leaked {
		t.Fatalf("owner view leaks email: %v", owner)
	}
}

func TestBookMutationOwnership(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	_, ownerTok := signup(t, srv, "owner@example.com", "author")
	_, otherTok := signup(t, srv, "other@example.com", "author")
	bookID := createBookHTTP(t, srv, ownerTok, "Guarded")

	resp, payload := doJSON(t, http.MethodPatch, srv.URL+"/books/"+bookID, otherTok, map[string]any{"title": "Stolen"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-owner patch: %d %v", resp.StatusCode, payload)
	}

	resp, payload = doJSON(t, http.MethodPatch, srv.URL+"/books/"+bookID, ownerTok, map[string]any{"title": "Renamed"})
	if resp.StatusCode != http.StatusOK || payload["title"] != "Renamed" {
		t.Fatalf("owner patch: %d %v", resp.StatusCode, payload)
	}

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/books/"+bookID, ownerTok, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	resp, payload = doJSON(t, http.MethodGet, srv.URL+"/books/"+bookID, ownerTok, nil)
	if resp.StatusCode != http.StatusNotFound || payload["code"] != "BOOK_NOT_FOUND" {
		t.Fatalf("deleted book read: %d %v", resp.StatusCode, payload)
	}
}

func TestBookDetailScopedToOwner(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	_, ownerTok := signup(t, srv, "owner@example.com", "author")
	_, readerTok := signup(t, srv, "reader@example.com", "reader")
	bookID := createBookHTTP(t, srv, ownerTok, "Private Shelf")

	resp, payload := doJSON(t, http.MethodGet, srv.URL+"/books/"+bookID, readerTok, nil)
	if resp.StatusCode != http.StatusNotFound || payload["code"] != "BOOK_NOT_FOUND" {
		t.Fatalf("non-owner detail read: %d %v", resp.StatusCode, payload)
	}
	resp, payload = doJSON(t, http.MethodGet, srv.URL+"/books/"+bookID, ownerTok, nil)
	if resp.StatusCode != http.StatusOK || payload["id"] != bookID {
		t.Fatalf("owner detail read: %d %v", resp.StatusCode, payload)
	}
	// the reader may still review the book it cannot browse to
	resp, payload = doJSON(t, http.MethodPost, srv.URL+"/reviews", readerTok, map[string]any{
		"bookId": bookID, "rating": 4,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("reader review of unowned book: %d %v", resp.StatusCode, payload)
	}
}

func TestReviewEndpointRules(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	_, authorTok := signup(t, srv, "author@example.com", "author")
	readerID, readerTok := signup(t, srv, "reader@example.com", "reader")
	bookID := createBookHTTP(t, srv, authorTok, "Reviewed")

	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/reviews", readerTok, map[string]any{
		"bookId": bookID, "rating": 6,
	})
	if resp.StatusCode != http.StatusBadRequest || payload["code"] != "REVIEW_RATING_OUT_OF_RANGE" {
		t.Fatalf("rating 6: %d %v", resp.StatusCode, payload)
	}

	resp, payload = doJSON(t, http.MethodPost, srv.URL+"/reviews", readerTok, map[string]any{
		"bookId": bookID, "rating": 4, "comment": "solid",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create review: %d %v", resp.StatusCode, payload)
	}
	owner, _ := payload["owner"].(map[string]any)
	if owner["id"] != readerID {
		t.Fatalf("review owner = %v, want %s", owner, readerID)
	}

	resp, payload = doJSON(t, http.MethodPost, srv.URL+"/reviews", readerTok, map[string]any{
		"bookId": bookID, "rating": 5,
	})
	if resp.StatusCode != http.StatusBadRequest || payload["code"] != "REVIEW_DUPLICATE" {
		t.Fatalf("duplicate review: %d %v", resp.StatusCode, payload)
	}
}

func TestAggregateEndpoints(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	authorID, authorTok := signup(t, srv, "author@example.com", "author")
	_, weakTok := signup(t, srv, "weak@example.com", "author")
	_, r1Tok := signup(t, srv, "r1@example.com", "reader")
	_, r2Tok := signup(t, srv, "r2@example.com", "reader")

	goodBook := createBookHTTP(t, srv, authorTok, "Great")
	weakBook := createBookHTTP(t, srv, weakTok, "Weak")

	for _, rv := range []struct {
		tok  string
		book string
		rate int
	}{
		{r1Tok, goodBook, 4},
		{r2Tok, goodBook, 2},
		{r1Tok, weakBook, 2},
	} {
		resp, payload := doJSON(t, http.MethodPost, srv.URL+"/reviews", rv.tok, map[string]any{
			"bookId": rv.book, "rating": rv.rate,
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("seed review: %d %v", resp.StatusCode, payload)
		}
	}

	resp, payload := doJSON(t, http.MethodGet, srv.URL+"/users/good_authors", authorTok, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("good_authors: %d %v", resp.StatusCode, payload)
	}
	items, _ := payload["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("good_authors items = %v", items)
	}
	got, _ := items[0].(map[string]any)
	if got["id"] != authorID || got["avgBookRating"] != 3.0 {
		t.Fatalf("good author = %v", got)
	}

	resp, payload = doJSON(t, http.MethodGet, srv.URL+"/books/great_books", authorTok, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("great_books: %d %v", resp.StatusCode, payload)
	}
	items, _ = payload["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("great_books items = %v", items)
	}
	book, _ := items[0].(map[string]any)
	if book["id"] != goodBook {
		t.Fatalf("great book = %v", book)
	}
	reviews, _ := book["reviews"].([]any)
	if len(reviews) != 2 {
		t.Fatalf("great book reviews = %v", book["reviews"])
	}
}

func TestUserListPagination(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	var token string
	for i := 0; i < 5; i++ {
		_, token = signup(t, srv, fmt.Sprintf("u%d@example.com", i), "reader")
	}

	resp, payload := doJSON(t, http.MethodGet, srv.URL+"/users?page=2&page_size=2", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list users: %d %v", resp.StatusCode, payload)
	}
	items, _ := payload["items"].([]any)
	if len(items) != 2 || payload["total"] != 5.0 || payload["page"] != 2.0 || payload["pageSize"] != 2.0 {
		t.Fatalf("page 2: %v", payload)
	}

	resp, payload = doJSON(t, http.MethodGet, srv.URL+"/users?page=9", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("out-of-range page: %d", resp.StatusCode)
	}
	items, _ = payload["items"].([]any)
	if len(items) != 0 || payload["total"] != 5.0 {
		t.Fatalf("out-of-range page: %v", payload)
	}

	resp, payload = doJSON(t, http.MethodGet, srv.URL+"/users?page=zero", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad page value: %d %v", resp.StatusCode, payload)
	}
}

func TestLoginRateLimit(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(redis.Addr(), "", "reviewshelf:test:auth", 1, time.Minute)
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}
	srv := newTestServer(t, limiter, nil)
	resp0, payload0 := doJSON(t, http.MethodPost, srv.URL+"/users", "", map[string]any{
		"email": "u@example.com", "password": testPassword,
		"firstName": "Test", "lastName": "User", "role": "reader", "country": "NZ",
	})
	if resp0.StatusCode != http.StatusCreated {
		t.Fatalf("signup: %d %v", resp0.StatusCode, payload0)
	}

	body := map[string]any{"email": "u@example.com", "password": testPassword}
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/auth/login", "", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first login expected 200, got %d", resp.StatusCode)
	}
	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/auth/login", "", body)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second login expected 429, got %d (%v)", resp.StatusCode, payload)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
}

func TestReviewRateLimit(t *testing.T) {
	limiter, err := ratelimit.NewTokenBucketLimiter(1, time.Minute)
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}
	t.Cleanup(limiter.Stop)
	srv := newTestServer(t, nil, limiter)
	_, authorTok := signup(t, srv, "author@example.com", "author")
	_, readerTok := signup(t, srv, "reader@example.com", "reader")
	b1 := createBookHTTP(t, srv, authorTok, "One")
	b2 := createBookHTTP(t, srv, authorTok, "Two")

	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/reviews", readerTok, map[string]any{"bookId": b1, "rating": 4})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first review: %d %v", resp.StatusCode, payload)
	}
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/reviews", readerTok, map[string]any{"bookId": b2, "rating": 4})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second review expected 429, got %d", resp.StatusCode)
	}
	// the author has a separate budget
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/reviews", authorTok, map[string]any{"bookId": b2, "rating": 5})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("other account review expected 201, got %d", resp.StatusCode)
	}
}
