package server

import (
	"net/http"
	"strings"

	"reviewshelf/internal/app"
	"reviewshelf/pkg/domain"
)

type createReviewRequest struct {
	BookID  string `json:"bookId"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type updateReviewRequest struct {
	Rating  *int    `json:"rating"`
	Comment *string `json:"comment"`
}

func (s *Server) handleReviews(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		// review churn is limited per account, not per address
		if !s.allowRate(w, s.reviewLimiter, "review|"+user.ID, "too many reviews, try again later") {
			return
		}
		var req createReviewRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "REQUEST_INVALID", "invalid JSON body")
			return
		}
		review, err := s.app.CreateReview(user, app.CreateReviewInput{
			BookID:  req.BookID,
			Rating:  req.Rating,
			Comment: req.Comment,
		})
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, viewReview(review))
	case http.MethodGet:
		q, err := parsePageQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "REQUEST_INVALID", err.Error())
			return
		}
		reviews, total, err := s.app.ListReviews(q.listParams())
		if err != nil {
			writeAppError(w, err)
			return
		}
		views := viewReviews(reviews)
		writePage(w, q, views, len(views), total)
	default:
		methodNotAllowed(w)
	}
}

// /reviews/{id}
func (s *Server) handleReviewByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/reviews/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" || len(parts) == 2 {
		notFound(w)
		return
	}
	switch r.Method {
	case http.MethodGet:
		review, err := s.app.GetReview(id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewReview(review))
	case http.MethodPatch, http.MethodPut:
		var req updateReviewRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "REQUEST_INVALID", "invalid JSON body")
			return
		}
		review, err := s.app.UpdateReview(user, id, app.UpdateReviewInput{
			Rating:  req.Rating,
			Comment: req.Comment,
		})
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewReview(review))
	case http.MethodDelete:
		if err := s.app.DeleteReview(user, id); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}
