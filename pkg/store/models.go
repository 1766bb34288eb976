package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	Username     string `gorm:"not null"`
	FirstName    string
	LastName     string
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null"`
	Country      string
	Bio          string      `gorm:"type:text"`
	Books        []BookModel `gorm:"many2many:book_owners;joinForeignKey:user_id;joinReferences:book_id"`
	CreatedAt    time.Time   `gorm:"not null"`
	UpdatedAt    time.Time
}

type BookModel struct {
	ID            string `gorm:"primaryKey"`
	Title         string `gorm:"not null"`
	Description   string `gorm:"type:text"`
	PublishedDate time.Time
	IsDeleted     bool          `gorm:"not null;default:false"`
	Owners        []UserModel   `gorm:"many2many:book_owners;joinForeignKey:book_id;joinReferences:user_id"`
	Reviews       []ReviewModel `gorm:"foreignKey:BookID"`
	CreatedAt     time.Time     `gorm:"not null"`
	UpdatedAt     time.Time     `gorm:"not null"`
}

type ReviewModel struct {
	ID        string    `gorm:"primaryKey"`
	BookID    string    `gorm:"not null;index;uniqueIndex:idx_reviews_book_owner"`
	OwnerID   string    `gorm:"not null;index;uniqueIndex:idx_reviews_book_owner"`
	Book      BookModel `gorm:"foreignKey:BookID;constraint:OnDelete:CASCADE"`
	Owner     UserModel `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"`
	Rating    int       `gorm:"not null;check:rating >= 1 AND rating <= 5"`
	Comment   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null;index"`
}

type AuditModel struct {
	ID        string `gorm:"primaryKey"`
	ActorID   string `gorm:"index"`
	Action    string `gorm:"not null"`
	Entity    string `gorm:"not null"`
	EntityID  string `gorm:"index"`
	Details   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null;index"`
}
