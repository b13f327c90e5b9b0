// Package group owns group existence and membership.
package group

import (
	"log/slog"
	"strings"

	"palaver/internal/models"
)

type Store interface {
	EnsureGroup(ownerID, name string) (models.Group, bool, error)
	GetGroupByName(name string) (models.Group, error)
	AddMembership(groupID, userID string, role models.GroupRole) (models.GroupMembership, bool, error)
	RemoveMembership(groupID, userID string) error
	IsMember(groupID, userID string) (bool, error)
	ListGroupsForUser(userID string) ([]models.Group, error)
}

type Authority struct {
	store Store
}

func NewAuthority(store Store) *Authority {
	return &Authority{store: store}
}

// EnsureGroupExists returns the group with the given name, creating it with
// the caller as owner when absent. Name matching is case-sensitive and
// first-writer-wins: an existing group is returned unchanged regardless of
// who asks. A storage-level uniqueness conflict from a racing creator is
// treated as "already exists" and resolved by re-reading the winner.
func (a *Authority) EnsureGroupExists(ownerID, name string) (models.Group, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Group{}, false, models.BadInput("group name must not be empty")
	}

	group, created, err := a.store.EnsureGroup(ownerID, name)
	if models.IsKind(err, models.KindConflict) {
		group, err = a.store.GetGroupByName(name)
		return group, false, err
	}
	if err != nil {
		return models.Group{}, false, err
	}

	if created {
		slog.Info("group created", "group", name, "owner", ownerID)
	}
	return group, created, nil
}

// JoinGroup adds userID to the named group, creating the group first when it
// does not exist yet (the first joiner becomes its owner). Joining a group
// the user is already in succeeds without a duplicate row.
func (a *Authority) JoinGroup(userID, name string) (models.GroupMembership, bool, error) {
	group, created, err := a.EnsureGroupExists(userID, name)
	if err != nil {
		return models.GroupMembership{}, false, err
	}

	membership, joined, err := a.store.AddMembership(group.ID, userID, models.RoleMember)
	if err != nil {
		return models.GroupMembership{}, false, err
	}
	return membership, created || joined, nil
}

// LeaveGroup removes userID from the named group. Leaving a group the user
// is not in, or one that does not exist, is NotFound.
func (a *Authority) LeaveGroup(userID, name string) error {
	group, err := a.store.GetGroupByName(strings.TrimSpace(name))
	if err != nil {
		return err
	}
	return a.store.RemoveMembership(group.ID, userID)
}

// Group returns the group with the given name.
func (a *Authority) Group(name string) (models.Group, error) {
	return a.store.GetGroupByName(strings.TrimSpace(name))
}

// IsMember reports whether userID belongs to the named group. A missing
// group is NotFound, not false.
func (a *Authority) IsMember(userID, name string) (bool, error) {
	group, err := a.store.GetGroupByName(strings.TrimSpace(name))
	if err != nil {
		return false, err
	}
	return a.store.IsMember(group.ID, userID)
}

// ListGroupsForUser returns the groups userID belongs to.
func (a *Authority) ListGroupsForUser(userID string) ([]models.Group, error) {
	return a.store.ListGroupsForUser(userID)
}
