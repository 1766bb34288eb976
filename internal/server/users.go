package server

import (
	"net/http"
	"strings"

	"reviewshelf/internal/app"
	"reviewshelf/pkg/domain"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string   `json:"token"`
	User  userView `json:"user"`
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
	Country   string `json:"country"`
	Bio       string `json:"bio"`
}

type updateUserRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Role      *string `json:"role"`
	Country   *string `json:"country"`
	Bio       *string `json:"bio"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, s.authLimiter, "login|"+s.clientIP(r), "too many login attempts, try again later") {
		return
	}
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "REQUEST_INVALID", "invalid JSON body")
		return
	}
	user, token, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: viewUser(user)})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleRegister(w, r)
	case http.MethodGet:
		user, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "AUTH_INVALID_TOKEN", "unauthorized")
			return
		}
		s.handleListUsers(w, r, user)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, s.authLimiter, "register|"+s.clientIP(r), "too many signup attempts, try again later") {
		return
	}
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "REQUEST_INVALID", "invalid JSON body")
		return
	}
	user, err := s.app.Register(app.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
		Country:   req.Country,
		Bio:       req.Bio,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewUser(user))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, _ domain.User) {
	q, err := parsePageQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "REQUEST_INVALID", err.Error())
		return
	}
	users, total, err := s.app.ListUsers(q.listParams())
	if err != nil {
		writeAppError(w, err)
		return
	}
	views := viewUsers(users)
	writePage(w, q, views, len(views), total)
}

// /users/{id} or /users/good_authors
func (s *Server) handleUserByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/users/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" || len(parts) == 2 {
		notFound(w)
		return
	}
	if id == "good_authors" {
		s.handleGoodAuthors(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		target, err := s.app.GetUser(id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewUser(target))
	case http.MethodPatch, http.MethodPut:
		var req updateUserRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "REQUEST_INVALID", "invalid JSON body")
			return
		}
		updated, err := s.app.UpdateUser(user, id, app.UpdateUserInput{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Role:      req.Role,
			Country:   req.Country,
			Bio:       req.Bio,
		})
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewUser(updated))
	case http.MethodDelete:
		if err := s.app.DeleteUser(user, id); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleGoodAuthors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	rated, err := s.app.GoodAuthors()
	if err != nil {
		writeAppError(w, err)
		return
	}
	views := viewRatedUsers(rated)
	writeJSON(w, http.StatusOK, map[string]any{
		"items": views,
		"count": len(views),
	})
}
