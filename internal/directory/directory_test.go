package directory

import (
	"context"
	"testing"
	"time"

	"palaver/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	users map[string]models.User
	gets  int
}

func newMemStore() *memStore {
	return &memStore{users: map[string]models.User{}}
}

func (s *memStore) UpsertUser(user models.User) error {
	s.users[user.ID] = user
	return nil
}

func (s *memStore) GetUser(id string) (models.User, error) {
	s.gets++
	user, ok := s.users[id]
	if !ok {
		return models.User{}, models.NotFound("user %s not found", id)
	}
	return user, nil
}

func (s *memStore) ListUsers() ([]models.User, error) {
	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	return users, nil
}

func TestRegister(t *testing.T) {
	d := New(context.Background(), newMemStore(), time.Minute)

	user, err := d.Register("alice", "Alice A.")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice", user.UserName)
	assert.Equal(t, "Alice A.", user.DisplayName)
	assert.False(t, user.CreatedAt.IsZero())

	// Display name falls back to the user name.
	user, err = d.Register("bob", "  ")
	require.NoError(t, err)
	assert.Equal(t, "bob", user.DisplayName)

	// Unsafe markup is stripped before validation.
	user, err = d.Register("carol", "Carol<script>alert(1)</script>")
	require.NoError(t, err)
	assert.Equal(t, "Carol", user.DisplayName)

	_, err = d.Register("  ", "Someone")
	assert.True(t, models.IsKind(err, models.KindBadInput))

	_, err = d.Register("<script>alert(1)</script>", "Someone")
	assert.True(t, models.IsKind(err, models.KindBadInput))
}

func TestGetCaches(t *testing.T) {
	store := newMemStore()
	d := New(context.Background(), store, time.Minute)

	user, err := d.Register("alice", "Alice")
	require.NoError(t, err)

	for range 3 {
		got, err := d.Get(user.ID)
		require.NoError(t, err)
		assert.Equal(t, "Alice", got.DisplayName)
	}
	// Register primed the cache, so the store was never hit.
	assert.Equal(t, 0, store.gets)

	_, err = d.Get("ghost")
	assert.True(t, models.IsKind(err, models.KindNotFound))
}

func TestDisplayName(t *testing.T) {
	d := New(context.Background(), newMemStore(), time.Minute)

	user, err := d.Register("alice", "Alice")
	require.NoError(t, err)

	assert.Equal(t, "Alice", d.DisplayName(user.ID))
	assert.Equal(t, "ghost", d.DisplayName("ghost"))
}
