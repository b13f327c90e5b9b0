// Package friends implements the friend-request workflow and the symmetric
// friendship graph built from accepted requests.
package friends

import (
	"log/slog"

	"palaver/internal/models"

	"github.com/samber/lo"
)

type Store interface {
	CreateFriendRequest(senderID, receiverID string) (models.FriendRequest, error)
	HasPendingRequest(senderID, receiverID string) (bool, error)
	ResolveFriendRequest(requestID, receiverID string, accept bool) (models.FriendRequest, error)
	ListPendingRequests(receiverID string) ([]models.FriendRequest, error)
	HasFriendship(a, b string) (bool, error)
	ListFriendships(userID string) ([]models.Friendship, error)
}

// Resolver looks up users in the identity store.
type Resolver interface {
	Get(id string) (models.User, error)
}

type Graph struct {
	store     Store
	directory Resolver
}

func NewGraph(store Store, directory Resolver) *Graph {
	return &Graph{store: store, directory: directory}
}

// SendRequest files a friend request from senderID to receiverID. It
// reports false, without error, when the request is pointless: self-request,
// unresolvable receiver, an existing friendship, or a request already
// pending between the pair in either direction.
func (g *Graph) SendRequest(senderID, receiverID string) (bool, error) {
	if senderID == receiverID {
		return false, nil
	}

	if _, err := g.directory.Get(receiverID); err != nil {
		if models.IsKind(err, models.KindNotFound) {
			return false, nil
		}
		return false, err
	}

	friends, err := g.store.HasFriendship(senderID, receiverID)
	if err != nil {
		return false, err
	}
	if friends {
		return false, nil
	}

	for _, pair := range [][2]string{{senderID, receiverID}, {receiverID, senderID}} {
		pending, err := g.store.HasPendingRequest(pair[0], pair[1])
		if err != nil {
			return false, err
		}
		if pending {
			return false, nil
		}
	}

	if _, err := g.store.CreateFriendRequest(senderID, receiverID); err != nil {
		// A racing duplicate lost to the pending-pair constraint.
		if models.IsKind(err, models.KindConflict) {
			return false, nil
		}
		return false, err
	}

	slog.Info("friend request sent", "sender", senderID, "receiver", receiverID)
	return true, nil
}

// Accept resolves a pending request addressed to receiverID and creates the
// friendship. A request that is missing, already resolved, or addressed to
// someone else is NotFound.
func (g *Graph) Accept(receiverID, requestID string) (models.FriendRequest, error) {
	return g.store.ResolveFriendRequest(requestID, receiverID, true)
}

// Reject resolves a pending request addressed to receiverID without
// creating a friendship.
func (g *Graph) Reject(receiverID, requestID string) (models.FriendRequest, error) {
	return g.store.ResolveFriendRequest(requestID, receiverID, false)
}

// ListFriends resolves every friendship touching userID to the friend's
// user record. Friends whose identity no longer resolves are skipped.
func (g *Graph) ListFriends(userID string) ([]models.User, error) {
	friendships, err := g.store.ListFriendships(userID)
	if err != nil {
		return nil, err
	}

	friends := lo.FilterMap(friendships, func(f models.Friendship, _ int) (models.User, bool) {
		user, err := g.directory.Get(f.Other(userID))
		return user, err == nil
	})
	return friends, nil
}

// ListPendingRequests returns pending requests addressed to userID, newest
// first.
func (g *Graph) ListPendingRequests(userID string) ([]models.FriendRequest, error) {
	return g.store.ListPendingRequests(userID)
}
