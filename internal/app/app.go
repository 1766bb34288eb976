package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"reviewshelf/pkg/auth"
	"reviewshelf/pkg/domain"
	"reviewshelf/pkg/store"
)

// goodRatingThreshold is the minimum aggregate average for the good-authors
// and great-books listings.
const goodRatingThreshold = 3.0

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	Tokens      *auth.TokenManager
	Store       store.Store
}

// App is the core application service wiring together storage, auth and the
// domain rules.
type App struct {
	store  store.Store
	tokens *auth.TokenManager
}

// New constructs the application with database storage and token issuance.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token manager required")
	}
	return &App{
		store:  dataStore,
		tokens: cfg.Tokens,
	}, nil
}

// UserFromToken resolves the bearer token to the stored user.
func (a *App) UserFromToken(token string) (domain.User, bool) {
	userID, err := a.tokens.VerifySubject(token)
	if err != nil {
		return domain.User{}, false
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil || !ok {
		return domain.User{}, false
	}
	return user, true
}

// audit appends a best-effort audit record. Failures are logged, never
// propagated to the caller.
func (a *App) audit(actorID, action, entity, entityID string, details map[string]string) {
	entry := domain.AuditEntry{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.RecordAudit(entry); err != nil {
		slog.Warn("audit record failed", "action", action, "entity", entity, "err", err)
	}
}
