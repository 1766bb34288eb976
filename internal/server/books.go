package server

import (
	"net/http"
	"strings"

	"reviewshelf/internal/app"
	"reviewshelf/pkg/domain"
)

type createBookRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type updateBookRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		var req createBookRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "REQUEST_INVALID", "invalid JSON body")
			return
		}
		book, err := s.app.CreateBook(user, app.CreateBookInput{
			Title:       req.Title,
			Description: req.Description,
		})
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, viewBook(book))
	case http.MethodGet:
		q, err := parsePageQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "REQUEST_INVALID", err.Error())
			return
		}
		books, total, err := s.app.ListBooks(user, q.listParams())
		if err != nil {
			writeAppError(w, err)
			return
		}
		views := viewBooks(books)
		writePage(w, q, views, len(views), total)
	default:
		methodNotAllowed(w)
	}
}

// /books/{id} or /books/great_books
func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/books/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" || len(parts) == 2 {
		notFound(w)
		return
	}
	if id == "great_books" {
		s.handleGreatBooks(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		book, err := s.app.GetOwnedBook(user, id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewBook(book))
	case http.MethodPatch, http.MethodPut:
		var req updateBookRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "REQUEST_INVALID", "invalid JSON body")
			return
		}
		book, err := s.app.UpdateBook(user, id, app.UpdateBookInput{
			Title:       req.Title,
			Description: req.Description,
		})
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewBook(book))
	case http.MethodDelete:
		if err := s.app.DeleteBook(user, id); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleGreatBooks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	rated, err := s.app.GreatBooks()
	if err != nil {
		writeAppError(w, err)
		return
	}
	views := viewRatedBooks(rated)
	writeJSON(w, http.StatusOK, map[string]any{
		"items": views,
		"count": len(views),
	})
}
