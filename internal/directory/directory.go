// Package directory is the user identity store: registration and lookup of
// the accounts every other service refers to by opaque ID.
package directory

import (
	"context"
	"strings"
	"time"

	"palaver/internal/content"
	"palaver/internal/models"

	"github.com/c-pro/geche"
	"github.com/google/uuid"
)

type Store interface {
	UpsertUser(user models.User) error
	GetUser(id string) (models.User, error)
	ListUsers() ([]models.User, error)
}

type Directory struct {
	store Store
	cache geche.Geche[string, models.User]
}

// New creates a directory over the given store. Lookups are cached with the
// given TTL; the cache janitor stops when ctx is cancelled.
func New(ctx context.Context, store Store, cacheTTL time.Duration) *Directory {
	return &Directory{
		store: store,
		cache: geche.NewMapTTLCache[string, models.User](ctx, cacheTTL, time.Minute),
	}
}

// Register creates a new user. Names are trimmed and sanitized before they
// are stored, so a name that is all markup comes out empty and is rejected.
func (d *Directory) Register(userName, displayName string) (models.User, error) {
	userName = strings.TrimSpace(content.Sanitize(userName))
	displayName = strings.TrimSpace(content.Sanitize(displayName))
	if userName == "" {
		return models.User{}, models.BadInput("user name must not be empty")
	}
	if displayName == "" {
		displayName = userName
	}

	user := models.User{
		ID:          uuid.NewString(),
		UserName:    userName,
		DisplayName: displayName,
		CreatedAt:   time.Now(),
	}
	if err := d.store.UpsertUser(user); err != nil {
		return models.User{}, err
	}
	d.cache.Set(user.ID, user)

	return user, nil
}

// Get returns the user with the given ID, from cache when fresh.
func (d *Directory) Get(id string) (models.User, error) {
	if user, err := d.cache.Get(id); err == nil {
		return user, nil
	}

	user, err := d.store.GetUser(id)
	if err != nil {
		return models.User{}, err
	}
	d.cache.Set(id, user)

	return user, nil
}

// List returns every registered user, bypassing the cache.
func (d *Directory) List() ([]models.User, error) {
	return d.store.ListUsers()
}

// DisplayName resolves id to a display name, falling back to the raw ID for
// unknown users so callers never render an empty sender.
func (d *Directory) DisplayName(id string) string {
	user, err := d.Get(id)
	if err != nil {
		return id
	}
	return user.DisplayName
}
