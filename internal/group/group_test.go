package group

import (
	"path/filepath"
	"sync"
	"testing"

	"palaver/internal/models"
	"palaver/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthority(t *testing.T) *Authority {
	t.Helper()
	store, err := storage.NewBboltStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewAuthority(store)
}

func TestEnsureGroupExists(t *testing.T) {
	a := newAuthority(t)

	group, created, err := a.EnsureGroupExists("u1", "  team-x  ")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "team-x", group.Name, "name is trimmed")
	assert.Equal(t, "u1", group.OwnerID)

	// First-writer-wins: a second caller gets the same group back.
	again, created, err := a.EnsureGroupExists("u2", "team-x")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, group.ID, again.ID)
	assert.Equal(t, "u1", again.OwnerID)

	_, _, err = a.EnsureGroupExists("u1", "   ")
	assert.True(t, models.IsKind(err, models.KindBadInput))

	// The owner is recorded as a member.
	member, err := a.IsMember("u1", "team-x")
	require.NoError(t, err)
	assert.True(t, member)
}

func TestEnsureGroupExistsRace(t *testing.T) {
	a := newAuthority(t)

	const racers = 8
	groups := make([]models.Group, racers)
	var wg sync.WaitGroup
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, _, err := a.EnsureGroupExists("u1", "team-x")
			assert.NoError(t, err)
			groups[i] = g
		}()
	}
	wg.Wait()

	// Every racer observes the same winner.
	for _, g := range groups[1:] {
		assert.Equal(t, groups[0].ID, g.ID)
	}
}

func TestJoinGroup(t *testing.T) {
	a := newAuthority(t)

	// Joining a missing group creates it; the first joiner owns it.
	m, joined, err := a.JoinGroup("u1", "chatter")
	require.NoError(t, err)
	assert.True(t, joined)
	assert.Equal(t, models.RoleOwner, m.Role)

	// Rejoining is idempotent.
	m2, joined, err := a.JoinGroup("u1", "chatter")
	require.NoError(t, err)
	assert.False(t, joined)
	assert.Equal(t, m.ID, m2.ID)

	m3, joined, err := a.JoinGroup("u2", "chatter")
	require.NoError(t, err)
	assert.True(t, joined)
	assert.Equal(t, models.RoleMember, m3.Role)

	groups, err := a.ListGroupsForUser("u2")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "chatter", groups[0].Name)
}

func TestLeaveGroup(t *testing.T) {
	a := newAuthority(t)

	_, _, err := a.JoinGroup("u1", "chatter")
	require.NoError(t, err)
	_, _, err = a.JoinGroup("u2", "chatter")
	require.NoError(t, err)

	require.NoError(t, a.LeaveGroup("u2", "chatter"))

	member, err := a.IsMember("u2", "chatter")
	require.NoError(t, err)
	assert.False(t, member)

	err = a.LeaveGroup("u2", "chatter")
	assert.True(t, models.IsKind(err, models.KindNotFound), "leaving twice is not found")

	err = a.LeaveGroup("u2", "nope")
	assert.True(t, models.IsKind(err, models.KindNotFound), "leaving a missing group is not found")
}

func TestIsMemberMissingGroup(t *testing.T) {
	a := newAuthority(t)

	_, err := a.IsMember("u1", "nope")
	assert.True(t, models.IsKind(err, models.KindNotFound))
}
