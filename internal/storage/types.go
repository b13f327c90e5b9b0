package storage

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBUser struct {
	ID          string `msgpack:"id"`
	UserName    string `msgpack:"userName"`
	DisplayName string `msgpack:"displayName"`
	CreatedAt   int64  `msgpack:"createdAt"`
}

func (u *DBUser) Key() []byte {
	return []byte(u.ID)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

type DBGroup struct {
	ID        string `msgpack:"id"`
	Name      string `msgpack:"name"`
	OwnerID   string `msgpack:"ownerId"`
	CreatedAt int64  `msgpack:"createdAt"`
}

func (g *DBGroup) Key() []byte {
	return []byte(g.ID)
}

func (g *DBGroup) MarshalBinary() (data []byte, err error) {
	type alias DBGroup
	return msgpack.Marshal((*alias)(g))
}

func (g *DBGroup) UnmarshalBinary(data []byte) error {
	type alias DBGroup
	return msgpack.Unmarshal(data, (*alias)(g))
}

// DBMembership lives in a per-group sub-bucket keyed by member ID, which is
// what makes the (group, member) pair naturally unique.
type DBMembership struct {
	ID       string `msgpack:"id"`
	GroupID  string `msgpack:"groupId"`
	UserID   string `msgpack:"userId"`
	JoinedAt int64  `msgpack:"joinedAt"`
	Role     string `msgpack:"role"`
}

func (m *DBMembership) Key() []byte {
	return []byte(m.UserID)
}

func (m *DBMembership) MarshalBinary() (data []byte, err error) {
	type alias DBMembership
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMembership) UnmarshalBinary(data []byte) error {
	type alias DBMembership
	return msgpack.Unmarshal(data, (*alias)(m))
}

// DBMessage lives in a per-channel sub-bucket keyed by its channel sequence
// number, so a cursor walk yields creation order.
type DBMessage struct {
	ID         string `msgpack:"id"`
	Seq        uint64 `msgpack:"seq"`
	AuthorID   string `msgpack:"authorId"`
	AuthorName string `msgpack:"authorName"`
	Body       string `msgpack:"body"`
	Type       string `msgpack:"type"`
	FileURL    string `msgpack:"fileUrl"`
	FileName   string `msgpack:"fileName"`
	CreatedAt  int64  `msgpack:"createdAt"`
	GroupName  string `msgpack:"groupName"`
	ReceiverID string `msgpack:"receiverId"`
	IsPrivate  bool   `msgpack:"isPrivate"`
	IsEdited   bool   `msgpack:"isEdited"`
	EditedAt   int64  `msgpack:"editedAt"`
	IsDeleted  bool   `msgpack:"isDeleted"`
	IsRead     bool   `msgpack:"isRead"`
	ReadAt     int64  `msgpack:"readAt"`
}

func (m *DBMessage) Key() []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, m.Seq)
	return key
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

// DBMessageRef locates a message row from its ID.
type DBMessageRef struct {
	ChannelKey string `msgpack:"channelKey"`
	Seq        uint64 `msgpack:"seq"`
}

func (r *DBMessageRef) MarshalBinary() (data []byte, err error) {
	type alias DBMessageRef
	return msgpack.Marshal((*alias)(r))
}

func (r *DBMessageRef) UnmarshalBinary(data []byte) error {
	type alias DBMessageRef
	return msgpack.Unmarshal(data, (*alias)(r))
}

// DBReaction lives in a per-message sub-bucket keyed by the reactor ID:
// writing the same key again is the upsert.
type DBReaction struct {
	ID        string `msgpack:"id"`
	MessageID string `msgpack:"messageId"`
	UserID    string `msgpack:"userId"`
	UserName  string `msgpack:"userName"`
	Symbol    string `msgpack:"symbol"`
	CreatedAt int64  `msgpack:"createdAt"`
}

func (r *DBReaction) Key() []byte {
	return []byte(r.UserID)
}

func (r *DBReaction) MarshalBinary() (data []byte, err error) {
	type alias DBReaction
	return msgpack.Marshal((*alias)(r))
}

func (r *DBReaction) UnmarshalBinary(data []byte) error {
	type alias DBReaction
	return msgpack.Unmarshal(data, (*alias)(r))
}

type DBFriendRequest struct {
	ID         string `msgpack:"id"`
	SenderID   string `msgpack:"senderId"`
	ReceiverID string `msgpack:"receiverId"`
	Status     string `msgpack:"status"`
	CreatedAt  int64  `msgpack:"createdAt"`
}

func (r *DBFriendRequest) Key() []byte {
	return []byte(r.ID)
}

func (r *DBFriendRequest) MarshalBinary() (data []byte, err error) {
	type alias DBFriendRequest
	return msgpack.Marshal((*alias)(r))
}

func (r *DBFriendRequest) UnmarshalBinary(data []byte) error {
	type alias DBFriendRequest
	return msgpack.Unmarshal(data, (*alias)(r))
}

// DBFriendship is keyed by the sorted user pair, one row per unordered pair.
type DBFriendship struct {
	User1ID   string `msgpack:"user1Id"`
	User2ID   string `msgpack:"user2Id"`
	CreatedAt int64  `msgpack:"createdAt"`
}

func (f *DBFriendship) Key() []byte {
	return []byte(f.User1ID + ":" + f.User2ID)
}

func (f *DBFriendship) MarshalBinary() (data []byte, err error) {
	type alias DBFriendship
	return msgpack.Marshal((*alias)(f))
}

func (f *DBFriendship) UnmarshalBinary(data []byte) error {
	type alias DBFriendship
	return msgpack.Unmarshal(data, (*alias)(f))
}
