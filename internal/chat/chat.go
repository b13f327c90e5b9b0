// Package chat is the message store service: sending, history, and the
// message lifecycle (edit, soft delete, reactions, read receipts).
package chat

import (
	"strings"
	"time"

	"palaver/internal/content"
	"palaver/internal/models"

	"github.com/google/uuid"
)

type Store interface {
	AppendMessage(msg *models.Message) error
	GetMessage(id string) (models.Message, error)
	UpdateMessage(msg models.Message) error
	MessagePage(ch models.Channel, skip, take int) ([]models.Message, int, error)
	UpsertReaction(messageID, userID, userName, symbol string) (models.Reaction, error)
	DeleteReaction(messageID, userID string) error
}

// Membership answers group authorization questions for group sends.
type Membership interface {
	Group(name string) (models.Group, error)
	IsMember(userID, name string) (bool, error)
}

// Resolver looks up users in the identity store.
type Resolver interface {
	Get(id string) (models.User, error)
}

type Service struct {
	store     Store
	groups    Membership
	directory Resolver
	now       func() time.Time
}

func NewService(store Store, groups Membership, directory Resolver) *Service {
	return &Service{
		store:     store,
		groups:    groups,
		directory: directory,
		now:       time.Now,
	}
}

// Draft carries the author-supplied parts of an outgoing message.
type Draft struct {
	Body     string
	Type     models.MessageType
	FileURL  string
	FileName string
}

func (s *Service) newMessage(authorID string, d Draft) (models.Message, error) {
	body := strings.TrimSpace(content.Sanitize(d.Body))
	if body == "" {
		return models.Message{}, models.BadInput("message body must not be empty")
	}

	author, err := s.directory.Get(authorID)
	if err != nil {
		return models.Message{}, err
	}

	typ := d.Type
	if typ == "" {
		typ = models.MessageTypeText
	}

	return models.Message{
		ID:         uuid.NewString(),
		AuthorID:   author.ID,
		AuthorName: author.DisplayName,
		Body:       body,
		Type:       typ,
		FileURL:    d.FileURL,
		FileName:   d.FileName,
	}, nil
}

// SendGlobal persists a message on the global channel.
func (s *Service) SendGlobal(authorID string, d Draft) (models.Message, error) {
	msg, err := s.newMessage(authorID, d)
	if err != nil {
		return models.Message{}, err
	}
	if err := s.store.AppendMessage(&msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// SendToGroup persists a message on a group channel. The group must exist
// and the author must be a member.
func (s *Service) SendToGroup(authorID, groupName string, d Draft) (models.Message, error) {
	msg, err := s.newMessage(authorID, d)
	if err != nil {
		return models.Message{}, err
	}

	group, err := s.groups.Group(groupName)
	if err != nil {
		return models.Message{}, err
	}
	member, err := s.groups.IsMember(authorID, group.Name)
	if err != nil {
		return models.Message{}, err
	}
	if !member {
		return models.Message{}, models.Forbidden("not a member of group %s", group.Name)
	}

	msg.GroupName = group.Name
	if err := s.store.AppendMessage(&msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// SendPrivate persists a 1:1 message. The receiver must resolve.
func (s *Service) SendPrivate(authorID, receiverID string, d Draft) (models.Message, error) {
	msg, err := s.newMessage(authorID, d)
	if err != nil {
		return models.Message{}, err
	}

	receiver, err := s.directory.Get(receiverID)
	if err != nil {
		return models.Message{}, err
	}

	msg.ReceiverID = receiver.ID
	msg.IsPrivate = true
	if err := s.store.AppendMessage(&msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// History returns one page of a channel's history in chronological order.
// Tombstoned messages are excluded from both the items and the total.
// Bodies are rendered from markdown to sanitized HTML.
func (s *Service) History(ch models.Channel, page models.PageRequest) (models.Page[models.Message], error) {
	page = models.NewPageRequest(page.Number, page.Size)

	items, total, err := s.store.MessagePage(ch, page.Skip(), page.Size)
	if err != nil {
		return models.Page[models.Message]{}, err
	}

	// The store hands back the page newest first; flip it so callers see
	// chronological order within the page.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	for i := range items {
		items[i].Body = content.Render(items[i].Body)
	}

	return models.Page[models.Message]{
		Items:      items,
		TotalCount: total,
		Number:     page.Number,
		Size:       page.Size,
	}, nil
}

// GlobalHistory pages the global channel.
func (s *Service) GlobalHistory(page models.PageRequest) (models.Page[models.Message], error) {
	return s.History(models.GlobalChannel(), page)
}

// GroupHistory pages a group channel. The group must exist.
func (s *Service) GroupHistory(groupName string, page models.PageRequest) (models.Page[models.Message], error) {
	group, err := s.groups.Group(groupName)
	if err != nil {
		return models.Page[models.Message]{}, err
	}
	return s.History(models.GroupChannel(group.Name), page)
}

// PrivateHistory pages the conversation between two users, in either order.
func (s *Service) PrivateHistory(userID, peerID string, page models.PageRequest) (models.Page[models.Message], error) {
	return s.History(models.PrivateChannel(userID, peerID), page)
}

// Edit replaces a message body. Only the author may edit, a tombstoned
// message cannot be edited, and the creation timestamp is untouched.
// Concurrent edits are last-write-wins.
func (s *Service) Edit(messageID, actorID, newBody string) (models.Message, error) {
	msg, err := s.store.GetMessage(messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.AuthorID != actorID {
		return models.Message{}, models.Forbidden("only the author can edit a message")
	}
	if msg.IsDeleted {
		return models.Message{}, models.BadInput("cannot edit a deleted message")
	}

	body := strings.TrimSpace(content.Sanitize(newBody))
	if body == "" {
		return models.Message{}, models.BadInput("message body must not be empty")
	}

	now := s.now()
	msg.Body = body
	msg.IsEdited = true
	msg.EditedAt = &now
	if err := s.store.UpdateMessage(msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// SoftDelete tombstones a message. Only the author may delete; the row is
// kept and only hidden from history. Deleting twice is a no-op.
func (s *Service) SoftDelete(messageID, actorID string) (models.Message, error) {
	msg, err := s.store.GetMessage(messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.AuthorID != actorID {
		return models.Message{}, models.Forbidden("only the author can delete a message")
	}
	if msg.IsDeleted {
		return msg, nil
	}

	msg.IsDeleted = true
	if err := s.store.UpdateMessage(msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// React records actorID's reaction to a message, replacing any prior
// reaction from the same user.
func (s *Service) React(messageID, actorID, symbol string) (models.Reaction, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return models.Reaction{}, models.BadInput("reaction symbol must not be empty")
	}

	actor, err := s.directory.Get(actorID)
	if err != nil {
		return models.Reaction{}, err
	}
	return s.store.UpsertReaction(messageID, actor.ID, actor.DisplayName, symbol)
}

// Unreact removes actorID's reaction from a message.
func (s *Service) Unreact(messageID, actorID string) error {
	return s.store.DeleteReaction(messageID, actorID)
}

// MarkRead flags a private message as read by its receiver. Marking an
// already-read message again is a no-op, not an error.
func (s *Service) MarkRead(messageID, actorID string) (models.Message, error) {
	msg, err := s.store.GetMessage(messageID)
	if err != nil {
		return models.Message{}, err
	}
	if !msg.IsPrivate || msg.ReceiverID != actorID {
		return models.Message{}, models.Forbidden("only the receiver can mark a message read")
	}
	if msg.IsRead {
		return msg, nil
	}

	now := s.now()
	msg.IsRead = true
	msg.ReadAt = &now
	if err := s.store.UpdateMessage(msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// Message returns a single message by ID with its reactions.
func (s *Service) Message(messageID string) (models.Message, error) {
	return s.store.GetMessage(messageID)
}
