package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"palaver/internal/models"
)

func TestStorage(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "storage_test")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	dbPath := filepath.Join(tmpDir, "test.db")
	store, err := NewBboltStorage(dbPath)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer func() { _ = store.Close() }()

	t.Run("Users", func(t *testing.T) {
		user := models.User{
			ID:          "user1",
			UserName:    "alice",
			DisplayName: "Alice",
			CreatedAt:   time.Now(),
		}

		if err := store.UpsertUser(user); err != nil {
			t.Fatalf("UpsertUser failed: %v", err)
		}

		got, err := store.GetUser("user1")
		if err != nil {
			t.Fatalf("GetUser failed: %v", err)
		}
		if got.UserName != "alice" || got.DisplayName != "Alice" {
			t.Errorf("unexpected user %+v", got)
		}

		if _, err := store.GetUser("ghost"); !models.IsKind(err, models.KindNotFound) {
			t.Errorf("expected not_found for missing user, got %v", err)
		}

		if err := store.UpsertUser(models.User{ID: "user2", UserName: "bob", DisplayName: "Bob", CreatedAt: time.Now()}); err != nil {
			t.Fatalf("UpsertUser failed: %v", err)
		}
		users, err := store.ListUsers()
		if err != nil {
			t.Fatalf("ListUsers failed: %v", err)
		}
		if len(users) != 2 {
			t.Errorf("expected 2 users, got %d", len(users))
		}
	})

	t.Run("Groups", func(t *testing.T) {
		group, created, err := store.EnsureGroup("user1", "gophers")
		if err != nil {
			t.Fatalf("EnsureGroup failed: %v", err)
		}
		if !created {
			t.Error("expected first EnsureGroup to create")
		}
		if group.OwnerID != "user1" {
			t.Errorf("expected owner user1, got %s", group.OwnerID)
		}

		// Creator becomes a member with the owner role.
		member, err := store.IsMember(group.ID, "user1")
		if err != nil {
			t.Fatalf("IsMember failed: %v", err)
		}
		if !member {
			t.Error("expected owner to be a member")
		}

		again, created, err := store.EnsureGroup("user2", "gophers")
		if err != nil {
			t.Fatalf("EnsureGroup failed: %v", err)
		}
		if created {
			t.Error("expected second EnsureGroup to find the existing group")
		}
		if again.ID != group.ID || again.OwnerID != "user1" {
			t.Errorf("expected the original group back, got %+v", again)
		}

		byName, err := store.GetGroupByName("gophers")
		if err != nil {
			t.Fatalf("GetGroupByName failed: %v", err)
		}
		if byName.ID != group.ID {
			t.Errorf("expected group %s, got %s", group.ID, byName.ID)
		}
		if _, err := store.GetGroupByName("nope"); !models.IsKind(err, models.KindNotFound) {
			t.Errorf("expected not_found for missing group, got %v", err)
		}
	})

	t.Run("Memberships", func(t *testing.T) {
		group, _, err := store.EnsureGroup("user1", "members")
		if err != nil {
			t.Fatalf("EnsureGroup failed: %v", err)
		}

		m, created, err := store.AddMembership(group.ID, "user2", models.RoleMember)
		if err != nil {
			t.Fatalf("AddMembership failed: %v", err)
		}
		if !created || m.Role != models.RoleMember {
			t.Errorf("expected fresh member membership, got created=%v %+v", created, m)
		}

		// Joining twice keeps the original row.
		m2, created, err := store.AddMembership(group.ID, "user2", models.RoleAdmin)
		if err != nil {
			t.Fatalf("AddMembership failed: %v", err)
		}
		if created {
			t.Error("expected repeat join to be a no-op")
		}
		if m2.ID != m.ID || m2.Role != models.RoleMember {
			t.Errorf("expected original membership back, got %+v", m2)
		}

		groups, err := store.ListGroupsForUser("user2")
		if err != nil {
			t.Fatalf("ListGroupsForUser failed: %v", err)
		}
		if len(groups) != 1 || groups[0].Name != "members" {
			t.Errorf("unexpected groups %+v", groups)
		}

		if err := store.RemoveMembership(group.ID, "user2"); err != nil {
			t.Fatalf("RemoveMembership failed: %v", err)
		}
		if err := store.RemoveMembership(group.ID, "user2"); !models.IsKind(err, models.KindNotFound) {
			t.Errorf("expected not_found for repeat removal, got %v", err)
		}
		member, err := store.IsMember(group.ID, "user2")
		if err != nil {
			t.Fatalf("IsMember failed: %v", err)
		}
		if member {
			t.Error("expected user2 to be gone")
		}
	})

	t.Run("Messages", func(t *testing.T) {
		ch := models.GroupChannel("members")
		for i, body := range []string{"first", "second", "third"} {
			msg := &models.Message{
				ID:         "msg" + string(rune('a'+i)),
				AuthorID:   "user1",
				AuthorName: "Alice",
				Body:       body,
				Type:       models.MessageTypeText,
				GroupName:  "members",
			}
			if err := store.AppendMessage(msg); err != nil {
				t.Fatalf("AppendMessage failed: %v", err)
			}
			if msg.CreatedAt.IsZero() {
				t.Error("expected AppendMessage to stamp CreatedAt")
			}
		}

		got, err := store.GetMessage("msga")
		if err != nil {
			t.Fatalf("GetMessage failed: %v", err)
		}
		if got.Body != "first" || got.GroupName != "members" {
			t.Errorf("unexpected message %+v", got)
		}

		if _, err := store.GetMessage("ghost"); !models.IsKind(err, models.KindNotFound) {
			t.Errorf("expected not_found for missing message, got %v", err)
		}

		items, total, err := store.MessagePage(ch, 0, 2)
		if err != nil {
			t.Fatalf("MessagePage failed: %v", err)
		}
		if total != 3 {
			t.Errorf("expected total 3, got %d", total)
		}
		if len(items) != 2 || items[0].Body != "third" || items[1].Body != "second" {
			t.Errorf("expected newest-first page, got %+v", items)
		}

		// Timestamps assigned in append order are strictly increasing.
		if !items[0].CreatedAt.After(items[1].CreatedAt) {
			t.Error("expected strictly increasing timestamps")
		}

		// Tombstone the middle message and watch it vanish from pages.
		mid, err := store.GetMessage("msgb")
		if err != nil {
			t.Fatalf("GetMessage failed: %v", err)
		}
		mid.IsDeleted = true
		if err := store.UpdateMessage(mid); err != nil {
			t.Fatalf("UpdateMessage failed: %v", err)
		}

		items, total, err = store.MessagePage(ch, 0, 10)
		if err != nil {
			t.Fatalf("MessagePage failed: %v", err)
		}
		if total != 2 || len(items) != 2 {
			t.Errorf("expected 2 live messages, got total=%d len=%d", total, len(items))
		}
		for _, m := range items {
			if m.Body == "second" {
				t.Error("tombstoned message leaked into page")
			}
		}

		// Skipping past the end returns an empty page with the right total.
		items, total, err = store.MessagePage(ch, 10, 10)
		if err != nil {
			t.Fatalf("MessagePage failed: %v", err)
		}
		if total != 2 || len(items) != 0 {
			t.Errorf("expected empty page with total 2, got total=%d len=%d", total, len(items))
		}
	})

	t.Run("Reactions", func(t *testing.T) {
		r1, err := store.UpsertReaction("msga", "user2", "Bob", "👍")
		if err != nil {
			t.Fatalf("UpsertReaction failed: %v", err)
		}

		// Re-reacting replaces the symbol but keeps the row identity.
		r2, err := store.UpsertReaction("msga", "user2", "Bob", "❤️")
		if err != nil {
			t.Fatalf("UpsertReaction failed: %v", err)
		}
		if r2.ID != r1.ID || r2.Symbol != "❤️" {
			t.Errorf("expected upsert to keep ID and replace symbol, got %+v", r2)
		}

		msg, err := store.GetMessage("msga")
		if err != nil {
			t.Fatalf("GetMessage failed: %v", err)
		}
		if len(msg.Reactions) != 1 || msg.Reactions[0].Symbol != "❤️" {
			t.Errorf("unexpected reactions %+v", msg.Reactions)
		}

		if _, err := store.UpsertReaction("ghost", "user2", "Bob", "👍"); !models.IsKind(err, models.KindNotFound) {
			t.Errorf("expected not_found for reaction on missing message, got %v", err)
		}

		if err := store.DeleteReaction("msga", "user2"); err != nil {
			t.Fatalf("DeleteReaction failed: %v", err)
		}
		if err := store.DeleteReaction("msga", "user2"); !models.IsKind(err, models.KindNotFound) {
			t.Errorf("expected not_found for repeat delete, got %v", err)
		}
	})

	t.Run("FriendRequests", func(t *testing.T) {
		req, err := store.CreateFriendRequest("user1", "user2")
		if err != nil {
			t.Fatalf("CreateFriendRequest failed: %v", err)
		}
		if req.Status != models.RequestPending {
			t.Errorf("expected pending status, got %s", req.Status)
		}

		if _, err := store.CreateFriendRequest("user1", "user2"); !models.IsKind(err, models.KindConflict) {
			t.Errorf("expected conflict for duplicate pending request, got %v", err)
		}

		pending, err := store.HasPendingRequest("user1", "user2")
		if err != nil {
			t.Fatalf("HasPendingRequest failed: %v", err)
		}
		if !pending {
			t.Error("expected a pending request")
		}

		list, err := store.ListPendingRequests("user2")
		if err != nil {
			t.Fatalf("ListPendingRequests failed: %v", err)
		}
		if len(list) != 1 || list[0].ID != req.ID {
			t.Errorf("unexpected pending list %+v", list)
		}

		// Only the addressee can resolve.
		if _, err := store.ResolveFriendRequest(req.ID, "user1", true); !models.IsKind(err, models.KindNotFound) {
			t.Errorf("expected not_found when resolver is not the receiver, got %v", err)
		}

		resolved, err := store.ResolveFriendRequest(req.ID, "user2", true)
		if err != nil {
			t.Fatalf("ResolveFriendRequest failed: %v", err)
		}
		if resolved.Status != models.RequestAccepted {
			t.Errorf("expected accepted status, got %s", resolved.Status)
		}

		// Resolving twice fails; the request is no longer pending.
		if _, err := store.ResolveFriendRequest(req.ID, "user2", true); !models.IsKind(err, models.KindNotFound) {
			t.Errorf("expected not_found for repeat resolve, got %v", err)
		}

		friends, err := store.HasFriendship("user2", "user1")
		if err != nil {
			t.Fatalf("HasFriendship failed: %v", err)
		}
		if !friends {
			t.Error("expected friendship after accept")
		}

		// The pair is free for a new request once resolved.
		pending, err = store.HasPendingRequest("user1", "user2")
		if err != nil {
			t.Fatalf("HasPendingRequest failed: %v", err)
		}
		if pending {
			t.Error("expected pending index to be cleared")
		}

		friendships, err := store.ListFriendships("user1")
		if err != nil {
			t.Fatalf("ListFriendships failed: %v", err)
		}
		if len(friendships) != 1 || friendships[0].Other("user1") != "user2" {
			t.Errorf("unexpected friendships %+v", friendships)
		}
	})

	t.Run("RejectedRequest", func(t *testing.T) {
		req, err := store.CreateFriendRequest("user2", "user1")
		if err != nil {
			t.Fatalf("CreateFriendRequest failed: %v", err)
		}
		resolved, err := store.ResolveFriendRequest(req.ID, "user1", false)
		if err != nil {
			t.Fatalf("ResolveFriendRequest failed: %v", err)
		}
		if resolved.Status != models.RequestRejected {
			t.Errorf("expected rejected status, got %s", resolved.Status)
		}
	})
}

func TestStoragePersistence(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "storage_persist_test")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	dbPath := filepath.Join(tmpDir, "test.db")
	store, err := NewBboltStorage(dbPath)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	msg := &models.Message{ID: "m1", AuthorID: "u1", AuthorName: "Alice", Body: "hello", Type: models.MessageTypeText}
	if err := store.AppendMessage(msg); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	store, err = NewBboltStorage(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen storage: %v", err)
	}
	defer func() { _ = store.Close() }()

	got, err := store.GetMessage("m1")
	if err != nil {
		t.Fatalf("GetMessage after reopen failed: %v", err)
	}
	if got.Body != "hello" {
		t.Errorf("expected persisted body, got %+v", got)
	}

	items, total, err := store.MessagePage(models.GlobalChannel(), 0, 10)
	if err != nil {
		t.Fatalf("MessagePage failed: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Errorf("expected one global message, got total=%d len=%d", total, len(items))
	}
}
