package store

import (
	"sort"
	"sync"
	"time"

	"reviewshelf/pkg/domain"
)

// MemoryStore keeps all rows in-process. It mirrors GormStore semantics,
// including the (book, owner) review uniqueness and the soft-delete read
// filter, and backs the application and server tests.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]domain.User
	email       map[string]string // email -> user ID
	books       map[string]domain.Book
	owners      map[string][]string // book ID -> owner user IDs
	reviews     map[string]domain.Review
	audits      []domain.AuditEntry
	userOrder   []string
	bookOrder   []string
	reviewOrder []string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]domain.User),
		email:   make(map[string]string),
		books:   make(map[string]domain.Book),
		owners:  make(map[string][]string),
		reviews: make(map[string]domain.Review),
	}
}

func (m *MemoryStore) CreateUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.email[u.Email]; taken {
		return ErrDuplicateEmail
	}
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	m.userOrder = append(m.userOrder, u.ID)
	return nil
}

func (m *MemoryStore) UpdateUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.users[u.ID]
	if !ok {
		return nil
	}
	current.FirstName = u.FirstName
	current.LastName = u.LastName
	current.Role = u.Role
	current.Country = u.Country
	current.Bio = u.Bio
	current.UpdatedAt = time.Now().UTC()
	m.users[u.ID] = current
	return nil
}

func (m *MemoryStore) DeleteUser(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil
	}
	delete(m.users, id)
	delete(m.email, user.Email)
	for rid, r := range m.reviews {
		if r.Owner.ID == id {
			delete(m.reviews, rid)
		}
	}
	for bid, ids := range m.owners {
		kept := ids[:0]
		for _, oid := range ids {
			if oid != id {
				kept = append(kept, oid)
			}
		}
		m.owners[bid] = kept
	}
	return nil
}

func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) ListUsers(p ListParams) ([]domain.User, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]domain.User, 0, len(m.userOrder))
	for _, id := range m.userOrder {
		if u, ok := m.users[id]; ok {
			all = append(all, u)
		}
	}
	total := int64(len(all))
	return pageOf(all, p), total, nil
}

func (m *MemoryStore) ListGoodAuthors(minAvg float64) ([]RatedUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum := make(map[string]int)
	count := make(map[string]int)
	for _, r := range m.reviews {
		book, ok := m.books[r.BookID]
		if !ok || book.IsDeleted {
			continue
		}
		for _, ownerID := range m.owners[r.BookID] {
			sum[ownerID] += r.Rating
			count[ownerID]++
		}
	}
	res := make([]RatedUser, 0)
	for userID, n := range count {
		if n == 0 {
			continue
		}
		avg := float64(sum[userID]) / float64(n)
		if avg < minAvg {
			continue
		}
		user, ok := m.users[userID]
		if !ok {
			continue
		}
		user.Books = m.booksOwnedByLocked(userID)
		res = append(res, RatedUser{User: user, AvgRating: avg})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].AvgRating > res[j].AvgRating })
	return res, nil
}

func (m *MemoryStore) CreateBook(b domain.Book, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.Owners = nil
	b.Reviews = nil
	m.books[b.ID] = b
	m.owners[b.ID] = append(m.owners[b.ID], ownerID)
	m.bookOrder = append(m.bookOrder, b.ID)
	return nil
}

func (m *MemoryStore) UpdateBook(b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.books[b.ID]
	if !ok {
		return nil
	}
	current.Title = b.Title
	current.Description = b.Description
	current.UpdatedAt = time.Now().UTC()
	m.books[b.ID] = current
	return nil
}

func (m *MemoryStore) SoftDeleteBook(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	book, ok := m.books[id]
	if !ok {
		return nil
	}
	book.IsDeleted = true
	book.UpdatedAt = time.Now().UTC()
	m.books[id] = book
	return nil
}

func (m *MemoryStore) GetBook(id string) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	book, ok := m.books[id]
	if !ok || book.IsDeleted {
		return domain.Book{}, false, nil
	}
	book.Owners = m.ownersOfLocked(id)
	return book, true, nil
}

func (m *MemoryStore) ListBooksByOwner(ownerID string, p ListParams) ([]domain.Book, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.booksOwnedByLocked(ownerID)
	total := int64(len(all))
	return pageOf(all, p), total, nil
}

func (m *MemoryStore) ListGreatBooks(minAvg float64) ([]RatedBook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum := make(map[string]int)
	count := make(map[string]int)
	for _, r := range m.reviews {
		sum[r.BookID] += r.Rating
		count[r.BookID]++
	}
	res := make([]RatedBook, 0)
	for _, id := range m.bookOrder {
		book, ok := m.books[id]
		if !ok || book.IsDeleted || count[id] == 0 {
			continue
		}
		avg := float64(sum[id]) / float64(count[id])
		if avg < minAvg {
			continue
		}
		book.Owners = m.ownersOfLocked(id)
		book.Reviews = m.reviewsOfLocked(id)
		res = append(res, RatedBook{Book: book, AvgRating: avg})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].AvgRating > res[j].AvgRating })
	return res, nil
}

func (m *MemoryStore) CreateReview(r domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.reviews {
		if existing.BookID == r.BookID && existing.Owner.ID == r.Owner.ID {
			return ErrDuplicateReview
		}
	}
	if owner, ok := m.users[r.Owner.ID]; ok {
		r.Owner = owner
	}
	m.reviews[r.ID] = r
	m.reviewOrder = append(m.reviewOrder, r.ID)
	return nil
}

func (m *MemoryStore) UpdateReview(r domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.reviews[r.ID]
	if !ok {
		return nil
	}
	current.Rating = r.Rating
	current.Comment = r.Comment
	m.reviews[r.ID] = current
	return nil
}

func (m *MemoryStore) DeleteReview(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reviews, id)
	return nil
}

func (m *MemoryStore) GetReview(id string) (domain.Review, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reviews[id]
	if !ok {
		return domain.Review{}, false, nil
	}
	if owner, found := m.users[r.Owner.ID]; found {
		r.Owner = owner
	}
	return r, true, nil
}

func (m *MemoryStore) ListReviews(p ListParams) ([]domain.Review, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]domain.Review, 0, len(m.reviewOrder))
	for _, id := range m.reviewOrder {
		if r, ok := m.reviews[id]; ok {
			if owner, found := m.users[r.Owner.ID]; found {
				r.Owner = owner
			}
			all = append(all, r)
		}
	}
	total := int64(len(all))
	return pageOf(all, p), total, nil
}

func (m *MemoryStore) HasReview(bookID, ownerID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.reviews {
		if r.BookID == bookID && r.Owner.ID == ownerID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) RecordAudit(entry domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, entry)
	return nil
}

// AuditEntries returns a copy of the audit trail, for tests.
func (m *MemoryStore) AuditEntries() []domain.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.AuditEntry, len(m.audits))
	copy(out, m.audits)
	return out
}

func (m *MemoryStore) ownersOfLocked(bookID string) []domain.User {
	ids := m.owners[bookID]
	res := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			res = append(res, u)
		}
	}
	return res
}

func (m *MemoryStore) reviewsOfLocked(bookID string) []domain.Review {
	res := make([]domain.Review, 0)
	for _, id := range m.reviewOrder {
		r, ok := m.reviews[id]
		if !ok || r.BookID != bookID {
			continue
		}
		if owner, found := m.users[r.Owner.ID]; found {
			r.Owner = owner
		}
		res = append(res, r)
	}
	return res
}

func (m *MemoryStore) booksOwnedByLocked(ownerID string) []domain.Book {
	res := make([]domain.Book, 0)
	for _, id := range m.bookOrder {
		book, ok := m.books[id]
		if !ok || book.IsDeleted {
			continue
		}
		owned := false
		for _, oid := range m.owners[id] {
			if oid == ownerID {
				owned = true
				break
			}
		}
		if !owned {
			continue
		}
		book.Owners = m.ownersOfLocked(id)
		res = append(res, book)
	}
	return res
}

func pageOf[T any](all []T, p ListParams) []T {
	if p.Offset > 0 {
		if p.Offset >= len(all) {
			return []T{}
		}
		all = all[p.Offset:]
	}
	if p.Limit > 0 && p.Limit < len(all) {
		all = all[:p.Limit]
	}
	out := make([]T, len(all))
	copy(out, all)
	return out
}
