package models

import "time"

// EventName identifies an outbound real-time event. The names and payloads
// form the wire contract with connected clients and must not change.
type EventName string

const (
	EventReceiveMessage        EventName = "ReceiveMessage"
	EventReceiveGroupMessage   EventName = "ReceiveGroupMessage"
	EventReceivePrivateMessage EventName = "ReceivePrivateMessage"
	EventSystemMessage         EventName = "SystemMessage"
	EventUserOnline            EventName = "UserOnline"
	EventUserOffline           EventName = "UserOffline"
	EventUserTyping            EventName = "UserTyping"
	EventUserStoppedTyping     EventName = "UserStoppedTyping"
	EventMessageEdited         EventName = "MessageEdited"
	EventMessageDeleted        EventName = "MessageDeleted"
	EventMessageReaction       EventName = "MessageReaction"
	EventMessageRead           EventName = "MessageRead"

	// EventError is delivered only to the connection whose request failed.
	EventError EventName = "Error"
)

// ServerEvent is a message pushed to a client. Fields are populated per
// event; unused ones are omitted from the JSON.
type ServerEvent struct {
	Event         EventName  `json:"event"`
	SenderName    string     `json:"senderName,omitempty"`
	Body          string     `json:"body,omitempty"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
	GroupName     string     `json:"groupName,omitempty"`
	CounterpartID string     `json:"counterpartId,omitempty"`
	UserID        string     `json:"userId,omitempty"`
	DisplayName   string     `json:"displayName,omitempty"`
	MessageID     string     `json:"messageId,omitempty"`
	Text          string     `json:"text,omitempty"`
	Reaction      *Reaction  `json:"reaction,omitempty"`
}

// ClientMessageType tags an inbound real-time request from a client.
type ClientMessageType string

const (
	ClientSend        ClientMessageType = "send"
	ClientSendGroup   ClientMessageType = "send_group"
	ClientSendPrivate ClientMessageType = "send_private"
	ClientJoinGroup   ClientMessageType = "join_group"
	ClientLeaveGroup  ClientMessageType = "leave_group"
	ClientTyping      ClientMessageType = "typing"
	ClientStopTyping  ClientMessageType = "stop_typing"
	ClientEdit        ClientMessageType = "edit"
	ClientDelete      ClientMessageType = "delete"
	ClientReact       ClientMessageType = "react"
	ClientUnreact     ClientMessageType = "unreact"
	ClientMarkRead    ClientMessageType = "mark_read"
)

// ClientMessage is an inbound real-time request.
type ClientMessage struct {
	Type        ClientMessageType `json:"type"`
	Body        string            `json:"body,omitempty"`
	MessageType MessageType       `json:"messageType,omitempty"`
	FileURL     string            `json:"fileUrl,omitempty"`
	FileName    string            `json:"fileName,omitempty"`
	GroupName   string            `json:"groupName,omitempty"`
	ToUserID    string            `json:"toUserId,omitempty"`
	MessageID   string            `json:"messageId,omitempty"`
	Symbol      string            `json:"symbol,omitempty"`
}
