package models

import (
	"sort"
	"time"
)

// User is the identity-store view of an account: an opaque stable ID
// plus the names shown to other participants.
type User struct {
	ID          string    `json:"id"`
	UserName    string    `json:"userName"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
}

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

// Message is a chat message in any channel. Exactly one of GroupName and
// ReceiverID may be set; both empty means the global channel.
type Message struct {
	ID         string      `json:"id"`
	AuthorID   string      `json:"authorId"`
	AuthorName string      `json:"authorName"`
	Body       string      `json:"body"`
	Type       MessageType `json:"type"`
	FileURL    string      `json:"fileUrl,omitempty"`
	FileName   string      `json:"fileName,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	GroupName  string      `json:"groupName,omitempty"`
	ReceiverID string      `json:"receiverId,omitempty"`
	IsPrivate  bool        `json:"isPrivate"`
	IsEdited   bool        `json:"isEdited"`
	EditedAt   *time.Time  `json:"editedAt,omitempty"`
	IsDeleted  bool        `json:"isDeleted"`
	IsRead     bool        `json:"isRead"`
	ReadAt     *time.Time  `json:"readAt,omitempty"`
	Reactions  []Reaction  `json:"reactions,omitempty"`
}

// Channel returns the tagged channel variant this message belongs to.
func (m *Message) Channel() Channel {
	switch {
	case m.IsPrivate:
		return PrivateChannel(m.AuthorID, m.ReceiverID)
	case m.GroupName != "":
		return GroupChannel(m.GroupName)
	default:
		return GlobalChannel()
	}
}

// Reaction is a single user's reaction to a message. At most one reaction
// exists per (message, reactor) pair; a repeat reaction replaces it.
type Reaction struct {
	ID        string    `json:"id"`
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Symbol    string    `json:"symbol"`
	CreatedAt time.Time `json:"createdAt"`
}

type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
}

type GroupRole string

const (
	RoleMember GroupRole = "member"
	RoleAdmin  GroupRole = "admin"
	RoleOwner  GroupRole = "owner"
)

type GroupMembership struct {
	ID       string    `json:"id"`
	GroupID  string    `json:"groupId"`
	UserID   string    `json:"userId"`
	JoinedAt time.Time `json:"joinedAt"`
	Role     GroupRole `json:"role"`
}

type FriendRequestStatus string

const (
	RequestPending  FriendRequestStatus = "pending"
	RequestAccepted FriendRequestStatus = "accepted"
	RequestRejected FriendRequestStatus = "rejected"
)

type FriendRequest struct {
	ID         string              `json:"id"`
	SenderID   string              `json:"senderId"`
	ReceiverID string              `json:"receiverId"`
	Status     FriendRequestStatus `json:"status"`
	CreatedAt  time.Time           `json:"createdAt"`
}

// Friendship links an unordered pair of users. The pair is stored sorted so
// that one row exists per pair regardless of who initiated it.
type Friendship struct {
	User1ID   string    `json:"user1Id"`
	User2ID   string    `json:"user2Id"`
	CreatedAt time.Time `json:"createdAt"`
}

// Other returns the friend of userID within this friendship.
func (f Friendship) Other(userID string) string {
	if f.User1ID == userID {
		return f.User2ID
	}
	return f.User1ID
}

type ChannelKind int

const (
	KindGlobal ChannelKind = iota
	KindGroup
	KindPrivate
)

// Channel identifies the scope a message is addressed to: the global room,
// a named group, or a private pair.
type Channel struct {
	Kind  ChannelKind
	Group string
	PeerA string
	PeerB string
}

func GlobalChannel() Channel {
	return Channel{Kind: KindGlobal}
}

func GroupChannel(name string) Channel {
	return Channel{Kind: KindGroup, Group: name}
}

// PrivateChannel normalizes the pair so both orders map to the same channel.
func PrivateChannel(a, b string) Channel {
	pair := []string{a, b}
	sort.Strings(pair)
	return Channel{Kind: KindPrivate, PeerA: pair[0], PeerB: pair[1]}
}

// Key returns the storage key prefix for the channel.
func (c Channel) Key() string {
	switch c.Kind {
	case KindGroup:
		return "group:" + c.Group
	case KindPrivate:
		return "dm:" + c.PeerA + ":" + c.PeerB
	default:
		return "global"
	}
}
