package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"reviewshelf/pkg/domain"
)

const migrateLockID int64 = 82157433

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &BookModel{}, &ReviewModel{}, &AuditModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				DELETE FROM book_owners bo
				WHERE NOT EXISTS (SELECT 1 FROM book_models b WHERE b.id = bo.book_id)
				   OR NOT EXISTS (SELECT 1 FROM user_models u WHERE u.id = bo.user_id);
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'book_owners'
					AND constraint_name = 'book_owners_book_id_fkey'
				) THEN
					ALTER TABLE book_owners
					ADD CONSTRAINT book_owners_book_id_fkey
					FOREIGN KEY (book_id) REFERENCES book_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'book_owners'
					AND constraint_name = 'book_owners_user_id_fkey'
				) THEN
					ALTER TABLE book_owners
					ADD CONSTRAINT book_owners_user_id_fkey
					FOREIGN KEY (user_id) REFERENCES user_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure ownership foreign keys: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateUser persists a new user. Duplicate emails surface as
// ErrDuplicateEmail from the unique index.
func (s *GormStore) CreateUser(u domain.User) error {
	model := userToModel(u)
	if err := s.db.Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// UpdateUser updates mutable user fields.
func (s *GormStore) UpdateUser(u domain.User) error {
	return s.db.Model(&UserModel{}).
		Where("id = ?", u.ID).
		Updates(map[string]any{
			"first_name": u.FirstName,
			"last_name":  u.LastName,
			"role":       string(u.Role),
			"country":    u.Country,
			"bio":        u.Bio,
			"updated_at": time.Now().UTC(),
		}).Error
}

// DeleteUser removes the user, their reviews and ownership rows.
func (s *GormStore) DeleteUser(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ReviewModel{}, "owner_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM book_owners WHERE user_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&UserModel{}, "id = ?", id).Error
	})
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ListUsers returns a page of users ordered by created_at plus the total count.
func (s *GormStore) ListUsers(p ListParams) ([]domain.User, int64, error) {
	var total int64
	if err := s.db.Model(&UserModel{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []UserModel
	if err := applyListParams(s.db.Order("created_at ASC"), p).Find(&models).Error; err != nil {
		return nil, 0, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, total, nil
}

// ListGoodAuthors computes, per user, the average rating across reviews of all
// non-deleted books the user owns and returns users at or above minAvg with
// their books attached. SQL AVG over an empty set is NULL, so unreviewed users
// never pass the HAVING predicate.
func (s *GormStore) ListGoodAuthors(minAvg float64) ([]RatedUser, error) {
	type row struct {
		UserID    string
		AvgRating float64
	}
	var rows []row
	if err := s.db.Raw(`
		SELECT bo.user_id AS user_id, AVG(r.rating) AS avg_rating
		FROM review_models r
		JOIN book_models b ON b.id = r.book_id AND b.is_deleted = FALSE
		JOIN book_owners bo ON bo.book_id = r.book_id
		GROUP BY bo.user_id
		HAVING AVG(r.rating) >= ?
		ORDER BY avg_rating DESC
	`, minAvg).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []RatedUser{}, nil
	}
	ids := make([]string, 0, len(rows))
	avg := make(map[string]float64, len(rows))
	for _, r := range rows {
		ids = append(ids, r.UserID)
		avg[r.UserID] = r.AvgRating
	}
	var models []UserModel
	if err := s.db.
		Preload("Books", "is_deleted = FALSE").
		Where("id IN ?", ids).
		Find(&models).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]UserModel, len(models))
	for _, m := range models {
		byID[m.ID] = m
	}
	res := make([]RatedUser, 0, len(rows))
	for _, r := range rows {
		m, ok := byID[r.UserID]
		if !ok {
			continue
		}
		res = append(res, RatedUser{User: userFromModel(m), AvgRating: r.AvgRating})
	}
	return res, nil
}

// CreateBook stores the book and adds the creating user to its owner set.
func (s *GormStore) CreateBook(b domain.Book, ownerID string) error {
	model := bookToModel(b)
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Owners", "Reviews").Create(&model).Error; err != nil {
			return err
		}
		return tx.Exec(
			"INSERT INTO book_owners (book_id, user_id) VALUES (?, ?)",
			model.ID, ownerID,
		).Error
	})
}

// UpdateBook updates mutable book fields. PublishedDate is immutable.
func (s *GormStore) UpdateBook(b domain.Book) error {
	return s.db.Model(&BookModel{}).
		Where("id = ?", b.ID).
		Updates(map[string]any{
			"title":       b.Title,
			"description": b.Description,
			"updated_at":  time.Now().UTC(),
		}).Error
}

// SoftDeleteBook flips the soft-delete flag; the row and its reviews are kept.
func (s *GormStore) SoftDeleteBook(id string) error {
	return s.db.Model(&BookModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_deleted": true,
			"updated_at": time.Now().UTC(),
		}).Error
}

// GetBook retrieves a non-deleted book with its owner set eagerly loaded.
func (s *GormStore) GetBook(id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.Preload("Owners").
		First(&model, "id = ? AND is_deleted = FALSE", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// ListBooksByOwner returns a page of the user's non-deleted books, owners
// eagerly loaded, plus the total count.
func (s *GormStore) ListBooksByOwner(ownerID string, p ListParams) ([]domain.Book, int64, error) {
	base := s.db.Model(&BookModel{}).
		Joins("JOIN book_owners bo ON bo.book_id = book_models.id").
		Where("bo.user_id = ? AND book_models.is_deleted = FALSE", ownerID).
		Session(&gorm.Session{})
	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []BookModel
	if err := applyListParams(base.Preload("Owners").Order("book_models.created_at ASC"), p).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, total, nil
}

// ListGreatBooks returns non-deleted books with review average at or above
// minAvg, reviews and owners eagerly attached. Unreviewed books fall out via
// the NULL average.
func (s *GormStore) ListGreatBooks(minAvg float64) ([]RatedBook, error) {
	type row struct {
		BookID    string
		AvgRating float64
	}
	var rows []row
	if err := s.db.Raw(`
		SELECT r.book_id AS book_id, AVG(r.rating) AS avg_rating
		FROM review_models r
		JOIN book_models b ON b.id = r.book_id AND b.is_deleted = FALSE
		GROUP BY r.book_id
		HAVING AVG(r.rating) >= ?
		ORDER BY avg_rating DESC
	`, minAvg).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []RatedBook{}, nil
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.BookID)
	}
	var models []BookModel
	if err := s.db.
		Preload("Owners").
		Preload("Reviews").
		Preload("Reviews.Owner").
		Where("id IN ?", ids).
		Find(&models).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]BookModel, len(models))
	for _, m := range models {
		byID[m.ID] = m
	}
	res := make([]RatedBook, 0, len(rows))
	for _, r := range rows {
		m, ok := byID[r.BookID]
		if !ok {
			continue
		}
		res = append(res, RatedBook{Book: bookFromModel(m), AvgRating: r.AvgRating})
	}
	return res, nil
}

// CreateReview persists a review. The unique index on (book_id, owner_id)
// surfaces concurrent duplicates as ErrDuplicateReview.
func (s *GormStore) CreateReview(r domain.Review) error {
	model := reviewToModel(r)
	if err := s.db.Omit("Book", "Owner").Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateReview
		}
		return err
	}
	return nil
}

// UpdateReview updates rating and comment. Book, owner and created_at are
// immutable.
func (s *GormStore) UpdateReview(r domain.Review) error {
	return s.db.Model(&ReviewModel{}).
		Where("id = ?", r.ID).
		Updates(map[string]any{
			"rating":  r.Rating,
			"comment": r.Comment,
		}).Error
}

// DeleteReview removes a review.
func (s *GormStore) DeleteReview(id string) error {
	return s.db.Delete(&ReviewModel{}, "id = ?", id).Error
}

// GetReview retrieves a review with its owner eagerly loaded.
func (s *GormStore) GetReview(id string) (domain.Review, bool, error) {
	var model ReviewModel
	if err := s.db.Preload("Owner").First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Review{}, false, nil
		}
		return domain.Review{}, false, err
	}
	return reviewFromModel(model), true, nil
}

// ListReviews returns a page of reviews ordered by created_at plus the total
// count, owners eagerly loaded.
func (s *GormStore) ListReviews(p ListParams) ([]domain.Review, int64, error) {
	var total int64
	if err := s.db.Model(&ReviewModel{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []ReviewModel
	if err := applyListParams(s.db.Preload("Owner").Order("created_at ASC"), p).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}
	res := make([]domain.Review, 0, len(models))
	for _, m := range models {
		res = append(res, reviewFromModel(m))
	}
	return res, total, nil
}

// HasReview checks whether a (book, owner) review exists.
func (s *GormStore) HasReview(bookID, ownerID string) (bool, error) {
	var count int64
	if err := s.db.Model(&ReviewModel{}).
		Where("book_id = ? AND owner_id = ?", bookID, ownerID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// RecordAudit appends an entry to the audit trail.
func (s *GormStore) RecordAudit(entry domain.AuditEntry) error {
	model, err := auditToModel(entry)
	if err != nil {
		return err
	}
	return s.db.Create(&model).Error
}

func applyListParams(tx *gorm.DB, p ListParams) *gorm.DB {
	if p.Limit > 0 {
		tx = tx.Limit(p.Limit)
	}
	if p.Offset > 0 {
		tx = tx.Offset(p.Offset)
	}
	return tx
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		Username:     u.Username,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		Country:      u.Country,
		Bio:          u.Bio,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	user := domain.User{
		ID:           m.ID,
		Email:        m.Email,
		Username:     m.Username,
		FirstName:    m.FirstName,
		LastName:     m.LastName,
		Role:         domain.Role(m.Role),
		Country:      m.Country,
		Bio:          m.Bio,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	for _, b := range m.Books {
		user.Books = append(user.Books, bookFromModel(b))
	}
	return user
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:            b.ID,
		Title:         b.Title,
		Description:   b.Description,
		PublishedDate: b.PublishedDate,
		IsDeleted:     b.IsDeleted,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

func bookFromModel(m BookModel) domain.Book {
	book := domain.Book{
		ID:            m.ID,
		Title:         m.Title,
		Description:   m.Description,
		PublishedDate: m.PublishedDate,
		IsDeleted:     m.IsDeleted,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	for _, o := range m.Owners {
		book.Owners = append(book.Owners, userFromModel(o))
	}
	for _, r := range m.Reviews {
		book.Reviews = append(book.Reviews, reviewFromModel(r))
	}
	return book
}

func reviewToModel(r domain.Review) ReviewModel {
	return ReviewModel{
		ID:        r.ID,
		BookID:    r.BookID,
		OwnerID:   r.Owner.ID,
		Rating:    r.Rating,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
	}
}

func reviewFromModel(m ReviewModel) domain.Review {
	owner := userFromModel(m.Owner)
	if owner.ID == "" {
		owner.ID = m.OwnerID
	}
	return domain.Review{
		ID:        m.ID,
		BookID:    m.BookID,
		Owner:     owner,
		Rating:    m.Rating,
		Comment:   m.Comment,
		CreatedAt: m.CreatedAt,
	}
}

func auditToModel(entry domain.AuditEntry) (AuditModel, error) {
	var details datatypes.JSON
	if len(entry.Details) > 0 {
		raw, err := json.Marshal(entry.Details)
		if err != nil {
			return AuditModel{}, fmt.Errorf("marshal audit details: %w", err)
		}
		details = raw
	}
	return AuditModel{
		ID:        entry.ID,
		ActorID:   entry.ActorID,
		Action:    entry.Action,
		Entity:    entry.Entity,
		EntityID:  entry.EntityID,
		Details:   details,
		CreatedAt: entry.CreatedAt,
	}, nil
}
