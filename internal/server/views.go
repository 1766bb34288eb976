package server

import (
	"time"

	"reviewshelf/pkg/domain"
	"reviewshelf/pkg/store"
)

// View types shape API responses. Owner references are always rendered as a
// compact identity and never include credentials or contact details.

type ownerView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type userView struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Username      string     `json:"username"`
	Name          string     `json:"name"`
	Role          string     `json:"role"`
	Country       string     `json:"country"`
	Bio           string     `json:"bio,omitempty"`
	Books         []bookView `json:"books,omitempty"`
	AvgBookRating *float64   `json:"avgBookRating,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

type bookView struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Description   string       `json:"description,omitempty"`
	PublishedDate time.Time    `json:"publishedDate"`
	Owners        []ownerView  `json:"owners"`
	Reviews       []reviewView `json:"reviews,omitempty"`
	AvgRating     *float64     `json:"avgRating,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

type reviewView struct {
	ID        string    `json:"id"`
	BookID    string    `json:"bookId"`
	Owner     ownerView `json:"owner"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func viewOwner(u domain.User) ownerView {
	return ownerView{ID: u.ID, Name: u.DisplayName(), Role: string(u.Role)}
}

func viewOwners(users []domain.User) []ownerView {
	out := make([]ownerView, 0, len(users))
	for _, u := range users {
		out = append(out, viewOwner(u))
	}
	return out
}

func viewUser(u domain.User) userView {
	v := userView{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Name:      u.DisplayName(),
		Role:      string(u.Role),
		Country:   u.Country,
		Bio:       u.Bio,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	for _, b := range u.Books {
		v.Books = append(v.Books, viewBook(b))
	}
	return v
}

func viewUsers(users []domain.User) []userView {
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, viewUser(u))
	}
	return out
}

func viewBook(b domain.Book) bookView {
	v := bookView{
		ID:            b.ID,
		Title:         b.Title,
		Description:   b.Description,
		PublishedDate: b.PublishedDate,
		Owners:        viewOwners(b.Owners),
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
	for _, r := range b.Reviews {
		v.Reviews = append(v.Reviews, viewReview(r))
	}
	return v
}

func viewBooks(books []domain.Book) []bookView {
	out := make([]bookView, 0, len(books))
	for _, b := range books {
		out = append(out, viewBook(b))
	}
	return out
}

func viewReview(r domain.Review) reviewView {
	return reviewView{
		ID:        r.ID,
		BookID:    r.BookID,
		Owner:     viewOwner(r.Owner),
		Rating:    r.Rating,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
	}
}

func viewReviews(reviews []domain.Review) []reviewView {
	out := make([]reviewView, 0, len(reviews))
	for _, r := range reviews {
		out = append(out, viewReview(r))
	}
	return out
}

func viewRatedUsers(rated []store.RatedUser) []userView {
	out := make([]userView, 0, len(rated))
	for _, r := range rated {
		avg := r.AvgRating
		v := viewUser(r.User)
		v.AvgBookRating = &avg
		out = append(out, v)
	}
	return out
}

func viewRatedBooks(rated []store.RatedBook) []bookView {
	out := make([]bookView, 0, len(rated))
	for _, r := range rated {
		avg := r.AvgRating
		v := viewBook(r.Book)
		v.AvgRating = &avg
		out = append(out, v)
	}
	return out
}
