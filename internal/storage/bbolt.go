package storage

import (
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"palaver/internal/models"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	bucketUsers           = []byte("users")
	bucketGroups          = []byte("groups")
	bucketGroupNames      = []byte("group_names")
	bucketGroupMembers    = []byte("group_members")
	bucketMessages        = []byte("messages")
	bucketMessageIndex    = []byte("message_index")
	bucketReactions       = []byte("reactions")
	bucketFriendRequests  = []byte("friend_requests")
	bucketPendingRequests = []byte("pending_requests")
	bucketFriendships     = []byte("friendships")
)

type BboltStorage struct {
	db *bbolt.DB

	// lastStamp keeps message timestamps strictly monotonic. It is only
	// touched inside update transactions, which bbolt serializes.
	lastStamp int64
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	buckets := [][]byte{
		bucketUsers,
		bucketGroups,
		bucketGroupNames,
		bucketGroupMembers,
		bucketMessages,
		bucketMessageIndex,
		bucketReactions,
		bucketFriendRequests,
		bucketPendingRequests,
		bucketFriendships,
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

func putRecord(b *bbolt.Bucket, rec Storeable) error {
	data, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	return b.Put(rec.Key(), data)
}

// stamp returns a server-assigned creation time that is strictly greater
// than every previously assigned one. Call only inside update transactions.
func (s *BboltStorage) stamp() time.Time {
	now := time.Now()
	if now.UnixNano() <= s.lastStamp {
		now = time.Unix(0, s.lastStamp+1)
	}
	s.lastStamp = now.UnixNano()
	return now
}

// UpsertUser stores a new or updated directory entry.
func (s *BboltStorage) UpsertUser(user models.User) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		dbUser := &DBUser{
			ID:          user.ID,
			UserName:    user.UserName,
			DisplayName: user.DisplayName,
			CreatedAt:   user.CreatedAt.UnixNano(),
		}
		return putRecord(tx.Bucket(bucketUsers), dbUser)
	})
}

func (s *BboltStorage) GetUser(id string) (models.User, error) {
	var user models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get([]byte(id))
		if data == nil {
			return models.NotFound("user %s not found", id)
		}
		var dbUser DBUser
		if err := dbUser.UnmarshalBinary(data); err != nil {
			return err
		}
		user = toModelUser(dbUser)
		return nil
	})
	return user, err
}

func (s *BboltStorage) ListUsers() ([]models.User, error) {
	var users []models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return err
			}
			users = append(users, toModelUser(dbUser))
			return nil
		})
	})
	return users, err
}

// EnsureGroup returns the group with the given name, creating it with
// ownerID as owner if absent. The name index inside the serialized update
// transaction is the arbiter for racing creators: the loser observes the
// winner's row and returns it as an existing group. On creation the owner
// is also recorded as an owner-role membership.
func (s *BboltStorage) EnsureGroup(ownerID, name string) (models.Group, bool, error) {
	var (
		group   models.Group
		created bool
	)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		names := tx.Bucket(bucketGroupNames)
		if idBytes := names.Get([]byte(name)); idBytes != nil {
			data := tx.Bucket(bucketGroups).Get(idBytes)
			if data == nil {
				return fmt.Errorf("group name index points to missing group %s", idBytes)
			}
			var dbGroup DBGroup
			if err := dbGroup.UnmarshalBinary(data); err != nil {
				return err
			}
			group = toModelGroup(dbGroup)
			return nil
		}

		now := s.stamp()
		dbGroup := &DBGroup{
			ID:        uuid.NewString(),
			Name:      name,
			OwnerID:   ownerID,
			CreatedAt: now.UnixNano(),
		}
		if err := putRecord(tx.Bucket(bucketGroups), dbGroup); err != nil {
			return err
		}
		if err := names.Put([]byte(name), []byte(dbGroup.ID)); err != nil {
			return err
		}

		members, err := tx.Bucket(bucketGroupMembers).CreateBucketIfNotExists([]byte(dbGroup.ID))
		if err != nil {
			return err
		}
		owner := &DBMembership{
			ID:       uuid.NewString(),
			GroupID:  dbGroup.ID,
			UserID:   ownerID,
			JoinedAt: now.UnixNano(),
			Role:     string(models.RoleOwner),
		}
		if err := putRecord(members, owner); err != nil {
			return err
		}

		group = toModelGroup(*dbGroup)
		created = true
		return nil
	})
	return group, created, err
}

func (s *BboltStorage) GetGroupByName(name string) (models.Group, error) {
	var group models.Group
	err := s.db.View(func(tx *bbolt.Tx) error {
		idBytes := tx.Bucket(bucketGroupNames).Get([]byte(name))
		if idBytes == nil {
			return models.NotFound("group %s not found", name)
		}
		data := tx.Bucket(bucketGroups).Get(idBytes)
		if data == nil {
			return fmt.Errorf("group name index points to missing group %s", idBytes)
		}
		var dbGroup DBGroup
		if err := dbGroup.UnmarshalBinary(data); err != nil {
			return err
		}
		group = toModelGroup(dbGroup)
		return nil
	})
	return group, err
}

// AddMembership joins userID to the group. Joining twice is a no-op that
// returns the existing row with created=false.
func (s *BboltStorage) AddMembership(groupID, userID string, role models.GroupRole) (models.GroupMembership, bool, error) {
	var (
		membership models.GroupMembership
		created    bool
	)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		members, err := tx.Bucket(bucketGroupMembers).CreateBucketIfNotExists([]byte(groupID))
		if err != nil {
			return err
		}

		if data := members.Get([]byte(userID)); data != nil {
			var existing DBMembership
			if err := existing.UnmarshalBinary(data); err != nil {
				return err
			}
			membership = toModelMembership(existing)
			return nil
		}

		row := &DBMembership{
			ID:       uuid.NewString(),
			GroupID:  groupID,
			UserID:   userID,
			JoinedAt: s.stamp().UnixNano(),
			Role:     string(role),
		}
		if err := putRecord(members, row); err != nil {
			return err
		}
		membership = toModelMembership(*row)
		created = true
		return nil
	})
	return membership, created, err
}

func (s *BboltStorage) RemoveMembership(groupID, userID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		members := tx.Bucket(bucketGroupMembers).Bucket([]byte(groupID))
		if members == nil || members.Get([]byte(userID)) == nil {
			return models.NotFound("user is not in this group")
		}
		return members.Delete([]byte(userID))
	})
}

func (s *BboltStorage) IsMember(groupID, userID string) (bool, error) {
	var member bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		members := tx.Bucket(bucketGroupMembers).Bucket([]byte(groupID))
		member = members != nil && members.Get([]byte(userID)) != nil
		return nil
	})
	return member, err
}

func (s *BboltStorage) ListGroupsForUser(userID string) ([]models.Group, error) {
	var groups []models.Group
	err := s.db.View(func(tx *bbolt.Tx) error {
		all := tx.Bucket(bucketGroupMembers)
		return all.ForEachBucket(func(groupID []byte) error {
			if all.Bucket(groupID).Get([]byte(userID)) == nil {
				return nil
			}
			data := tx.Bucket(bucketGroups).Get(groupID)
			if data == nil {
				return fmt.Errorf("membership points to missing group %s", groupID)
			}
			var dbGroup DBGroup
			if err := dbGroup.UnmarshalBinary(data); err != nil {
				return err
			}
			groups = append(groups, toModelGroup(dbGroup))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

// AppendMessage persists a new message, assigning its creation timestamp and
// per-channel sequence number. The caller sets everything else, including ID.
func (s *BboltStorage) AppendMessage(msg *models.Message) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		chKey := msg.Channel().Key()
		channel, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(chKey))
		if err != nil {
			return fmt.Errorf("failed to create channel bucket: %w", err)
		}

		seq, err := channel.NextSequence()
		if err != nil {
			return err
		}
		msg.CreatedAt = s.stamp()

		if err := putRecord(channel, toDBMessage(msg, seq)); err != nil {
			return fmt.Errorf("failed to put message: %w", err)
		}

		ref := &DBMessageRef{ChannelKey: chKey, Seq: seq}
		refData, err := ref.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMessageIndex).Put([]byte(msg.ID), refData)
	})
}

// GetMessage loads a message by ID with its reactions. Tombstoned rows are
// still returned here; hiding them is a history concern.
func (s *BboltStorage) GetMessage(id string) (models.Message, error) {
	var msg models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		dbMsg, err := findMessage(tx, id)
		if err != nil {
			return err
		}
		msg = toModelMessage(*dbMsg)
		msg.Reactions = readReactions(tx, id)
		return nil
	})
	return msg, err
}

// UpdateMessage rewrites an existing message row in place, preserving its
// channel position. Used for edit, soft-delete and read-flag mutations.
func (s *BboltStorage) UpdateMessage(msg models.Message) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		refData := tx.Bucket(bucketMessageIndex).Get([]byte(msg.ID))
		if refData == nil {
			return models.NotFound("message %s not found", msg.ID)
		}
		var ref DBMessageRef
		if err := ref.UnmarshalBinary(refData); err != nil {
			return err
		}
		channel := tx.Bucket(bucketMessages).Bucket([]byte(ref.ChannelKey))
		if channel == nil {
			return fmt.Errorf("message index points to missing channel %s", ref.ChannelKey)
		}
		return putRecord(channel, toDBMessage(&msg, ref.Seq))
	})
}

// MessagePage returns one page of a channel's history, newest first, plus
// the total count of live (non-tombstoned) messages in the channel.
func (s *BboltStorage) MessagePage(ch models.Channel, skip, take int) ([]models.Message, int, error) {
	var (
		items []models.Message
		total int
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		channel := tx.Bucket(bucketMessages).Bucket([]byte(ch.Key()))
		if channel == nil {
			return nil
		}

		c := channel.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			if dbMsg.IsDeleted {
				continue
			}
			total++
			if total > skip && len(items) < take {
				msg := toModelMessage(dbMsg)
				msg.Reactions = readReactions(tx, dbMsg.ID)
				items = append(items, msg)
			}
		}
		return nil
	})
	return items, total, err
}

// UpsertReaction records userID's reaction to a message. A repeated reaction
// from the same user replaces the symbol and timestamp but keeps the row's
// identity, never producing a second row for the pair.
func (s *BboltStorage) UpsertReaction(messageID, userID, userName, symbol string) (models.Reaction, error) {
	var reaction models.Reaction
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := findMessage(tx, messageID); err != nil {
			return err
		}

		perMessage, err := tx.Bucket(bucketReactions).CreateBucketIfNotExists([]byte(messageID))
		if err != nil {
			return err
		}

		id := uuid.NewString()
		if data := perMessage.Get([]byte(userID)); data != nil {
			var existing DBReaction
			if err := existing.UnmarshalBinary(data); err != nil {
				return err
			}
			id = existing.ID
		}

		row := &DBReaction{
			ID:        id,
			MessageID: messageID,
			UserID:    userID,
			UserName:  userName,
			Symbol:    symbol,
			CreatedAt: s.stamp().UnixNano(),
		}
		if err := putRecord(perMessage, row); err != nil {
			return err
		}
		reaction = toModelReaction(*row)
		return nil
	})
	return reaction, err
}

func (s *BboltStorage) DeleteReaction(messageID, userID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		perMessage := tx.Bucket(bucketReactions).Bucket([]byte(messageID))
		if perMessage == nil || perMessage.Get([]byte(userID)) == nil {
			return models.NotFound("reaction not found")
		}
		return perMessage.Delete([]byte(userID))
	})
}

// CreateFriendRequest stores a new pending request. A second pending request
// for the same ordered pair is a Conflict; the pending index is the arbiter.
func (s *BboltStorage) CreateFriendRequest(senderID, receiverID string) (models.FriendRequest, error) {
	var request models.FriendRequest
	err := s.db.Update(func(tx *bbolt.Tx) error {
		pending := tx.Bucket(bucketPendingRequests)
		pairKey := []byte(senderID + ":" + receiverID)
		if pending.Get(pairKey) != nil {
			return models.Conflict("friend request already pending")
		}

		row := &DBFriendRequest{
			ID:         uuid.NewString(),
			SenderID:   senderID,
			ReceiverID: receiverID,
			Status:     string(models.RequestPending),
			CreatedAt:  s.stamp().UnixNano(),
		}
		if err := putRecord(tx.Bucket(bucketFriendRequests), row); err != nil {
			return err
		}
		if err := pending.Put(pairKey, []byte(row.ID)); err != nil {
			return err
		}
		request = toModelFriendRequest(*row)
		return nil
	})
	return request, err
}

func (s *BboltStorage) HasPendingRequest(senderID, receiverID string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketPendingRequests).Get([]byte(senderID+":"+receiverID)) != nil
		return nil
	})
	return found, err
}

// ResolveFriendRequest transitions a pending request addressed to receiverID
// to accepted or rejected. A request that is missing, resolved, or addressed
// to someone else is NotFound: re-invoking accept on an already accepted
// request therefore fails. Accepting also writes the friendship row in the
// same transaction.
func (s *BboltStorage) ResolveFriendRequest(requestID, receiverID string, accept bool) (models.FriendRequest, error) {
	var request models.FriendRequest
	err := s.db.Update(func(tx *bbolt.Tx) error {
		requests := tx.Bucket(bucketFriendRequests)
		data := requests.Get([]byte(requestID))
		if data == nil {
			return models.NotFound("pending friend request %s not found", requestID)
		}
		var row DBFriendRequest
		if err := row.UnmarshalBinary(data); err != nil {
			return err
		}
		if row.ReceiverID != receiverID || row.Status != string(models.RequestPending) {
			return models.NotFound("pending friend request %s not found", requestID)
		}

		if accept {
			row.Status = string(models.RequestAccepted)
		} else {
			row.Status = string(models.RequestRejected)
		}
		if err := putRecord(requests, &row); err != nil {
			return err
		}
		if err := tx.Bucket(bucketPendingRequests).Delete([]byte(row.SenderID + ":" + row.ReceiverID)); err != nil {
			return err
		}

		if accept {
			a, b := row.SenderID, row.ReceiverID
			if b < a {
				a, b = b, a
			}
			friendship := &DBFriendship{
				User1ID:   a,
				User2ID:   b,
				CreatedAt: s.stamp().UnixNano(),
			}
			if err := putRecord(tx.Bucket(bucketFriendships), friendship); err != nil {
				return err
			}
		}

		request = toModelFriendRequest(row)
		return nil
	})
	return request, err
}

// ListPendingRequests returns pending requests addressed to receiverID,
// newest first.
func (s *BboltStorage) ListPendingRequests(receiverID string) ([]models.FriendRequest, error) {
	var requests []models.FriendRequest
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFriendRequests).ForEach(func(k, v []byte) error {
			var row DBFriendRequest
			if err := row.UnmarshalBinary(v); err != nil {
				return err
			}
			if row.ReceiverID == receiverID && row.Status == string(models.RequestPending) {
				requests = append(requests, toModelFriendRequest(row))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(requests, func(i, j int) bool { return requests[i].CreatedAt.After(requests[j].CreatedAt) })
	return requests, nil
}

func (s *BboltStorage) HasFriendship(a, b string) (bool, error) {
	if b < a {
		a, b = b, a
	}
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketFriendships).Get([]byte(a+":"+b)) != nil
		return nil
	})
	return found, err
}

// ListFriendships returns every friendship row touching userID, in either
// storage order.
func (s *BboltStorage) ListFriendships(userID string) ([]models.Friendship, error) {
	var friendships []models.Friendship
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFriendships).ForEach(func(k, v []byte) error {
			var row DBFriendship
			if err := row.UnmarshalBinary(v); err != nil {
				return err
			}
			if row.User1ID == userID || row.User2ID == userID {
				friendships = append(friendships, models.Friendship{
					User1ID:   row.User1ID,
					User2ID:   row.User2ID,
					CreatedAt: time.Unix(0, row.CreatedAt),
				})
			}
			return nil
		})
	})
	return friendships, err
}

func findMessage(tx *bbolt.Tx, id string) (*DBMessage, error) {
	refData := tx.Bucket(bucketMessageIndex).Get([]byte(id))
	if refData == nil {
		return nil, models.NotFound("message %s not found", id)
	}
	var ref DBMessageRef
	if err := ref.UnmarshalBinary(refData); err != nil {
		return nil, err
	}
	channel := tx.Bucket(bucketMessages).Bucket([]byte(ref.ChannelKey))
	if channel == nil {
		return nil, fmt.Errorf("message index points to missing channel %s", ref.ChannelKey)
	}
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, ref.Seq)
	data := channel.Get(key)
	if data == nil {
		return nil, models.NotFound("message %s not found", id)
	}
	var dbMsg DBMessage
	if err := dbMsg.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &dbMsg, nil
}

func readReactions(tx *bbolt.Tx, messageID string) []models.Reaction {
	perMessage := tx.Bucket(bucketReactions).Bucket([]byte(messageID))
	if perMessage == nil {
		return nil
	}
	var reactions []models.Reaction
	_ = perMessage.ForEach(func(k, v []byte) error {
		var row DBReaction
		if err := row.UnmarshalBinary(v); err != nil {
			return nil
		}
		reactions = append(reactions, toModelReaction(row))
		return nil
	})
	sort.Slice(reactions, func(i, j int) bool { return reactions[i].CreatedAt.Before(reactions[j].CreatedAt) })
	return reactions
}

func toModelUser(u DBUser) models.User {
	return models.User{
		ID:          u.ID,
		UserName:    u.UserName,
		DisplayName: u.DisplayName,
		CreatedAt:   time.Unix(0, u.CreatedAt),
	}
}

func toModelGroup(g DBGroup) models.Group {
	return models.Group{
		ID:        g.ID,
		Name:      g.Name,
		OwnerID:   g.OwnerID,
		CreatedAt: time.Unix(0, g.CreatedAt),
	}
}

func toModelMembership(m DBMembership) models.GroupMembership {
	return models.GroupMembership{
		ID:       m.ID,
		GroupID:  m.GroupID,
		UserID:   m.UserID,
		JoinedAt: time.Unix(0, m.JoinedAt),
		Role:     models.GroupRole(m.Role),
	}
}

func toModelReaction(r DBReaction) models.Reaction {
	return models.Reaction{
		ID:        r.ID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		UserName:  r.UserName,
		Symbol:    r.Symbol,
		CreatedAt: time.Unix(0, r.CreatedAt),
	}
}

func toModelFriendRequest(r DBFriendRequest) models.FriendRequest {
	return models.FriendRequest{
		ID:         r.ID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Status:     models.FriendRequestStatus(r.Status),
		CreatedAt:  time.Unix(0, r.CreatedAt),
	}
}

func toDBMessage(msg *models.Message, seq uint64) *DBMessage {
	dbMsg := &DBMessage{
		ID:         msg.ID,
		Seq:        seq,
		AuthorID:   msg.AuthorID,
		AuthorName: msg.AuthorName,
		Body:       msg.Body,
		Type:       string(msg.Type),
		FileURL:    msg.FileURL,
		FileName:   msg.FileName,
		CreatedAt:  msg.CreatedAt.UnixNano(),
		GroupName:  msg.GroupName,
		ReceiverID: msg.ReceiverID,
		IsPrivate:  msg.IsPrivate,
		IsEdited:   msg.IsEdited,
		IsDeleted:  msg.IsDeleted,
		IsRead:     msg.IsRead,
	}
	if msg.EditedAt != nil {
		dbMsg.EditedAt = msg.EditedAt.UnixNano()
	}
	if msg.ReadAt != nil {
		dbMsg.ReadAt = msg.ReadAt.UnixNano()
	}
	return dbMsg
}

func toModelMessage(m DBMessage) models.Message {
	msg := models.Message{
		ID:         m.ID,
		AuthorID:   m.AuthorID,
		AuthorName: m.AuthorName,
		Body:       m.Body,
		Type:       models.MessageType(m.Type),
		FileURL:    m.FileURL,
		FileName:   m.FileName,
		CreatedAt:  time.Unix(0, m.CreatedAt),
		GroupName:  m.GroupName,
		ReceiverID: m.ReceiverID,
		IsPrivate:  m.IsPrivate,
		IsEdited:   m.IsEdited,
		IsDeleted:  m.IsDeleted,
		IsRead:     m.IsRead,
	}
	if m.EditedAt != 0 {
		t := time.Unix(0, m.EditedAt)
		msg.EditedAt = &t
	}
	if m.ReadAt != 0 {
		t := time.Unix(0, m.ReadAt)
		msg.ReadAt = &t
	}
	return msg
}
