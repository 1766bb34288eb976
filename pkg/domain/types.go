package domain

import (
	"strings"
	"time"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleAuthor    Role = "author"
	RolePublisher Role = "publisher"
	RoleReader    Role = "reader"
)

// ParseRole maps a raw string onto a known role.
func ParseRole(raw string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(RoleAuthor):
		return RoleAuthor, true
	case string(RolePublisher):
		return RolePublisher, true
	case string(RoleReader):
		return RoleReader, true
	default:
		return "", false
	}
}

// CanPublish reports whether the role is allowed to create books.
func (r Role) CanPublish() bool {
	return r == RoleAuthor || r == RolePublisher
}

type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	FirstName     string    `json:"-"`
	LastName      string    `json:"-"`
	Role          Role      `json:"role"`
	Country       string    `json:"country"`
	Bio           string    `json:"bio,omitempty"`
	PasswordHash  string    `json:"-"`
	AvgBookRating *float64  `json:"avgBookRating,omitempty"`
	Books         []Book    `json:"books,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// DisplayName is the name shown in owner expansions.
func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type Book struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Owners        []User    `json:"owners,omitempty"`
	PublishedDate time.Time `json:"publishedDate"`
	IsDeleted     bool      `json:"-"`
	AvgRating     *float64  `json:"avgRating,omitempty"`
	Reviews       []Review  `json:"reviews,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type Review struct {
	ID        string    `json:"id"`
	BookID    string    `json:"bookId"`
	Owner     User      `json:"owner"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// AuditEntry records a mutation for the audit trail.
type AuditEntry struct {
	ID        string            `json:"id"`
	ActorID   string            `json:"actorId"`
	Action    string            `json:"action"`
	Entity    string            `json:"entity"`
	EntityID  string            `json:"entityId"`
	Details   map[string]string `json:"details,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}
