package repo

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrMalformedNotification = errors.New("malformed chat notification")

// MessageStatus tracks whether a thread entry has been acknowledged by the
// gateway. Pending entries carry a client-generated local key only; the
// gateway assigns every confirmed message its id.
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "PENDING"
	MessageStatusConfirmed MessageStatus = "CONFIRMED"
)

// Participant is one side of a two-party conversation.
type Participant struct {
	PeerID string `json:"peerId"`
	Handle string `json:"handle"`
}

// ChatPreview is the denormalized last-message summary carried on each
// conversation in the directory listing.
type ChatPreview struct {
	Message   string   `json:"message"`
	SenderID  string   `json:"senderId"`
	Timestamp *APITime `json:"timestamp"`
}

// ChatConversation is a two-party thread as returned by the gateway. The
// participant pair is fixed for the life of the conversation.
type ChatConversation struct {
	ConversationID string         `json:"conversationId"`
	Participants   [2]Participant `json:"participants"`
	Last           ChatPreview    `json:"lastMessage"`
	UpdatedAt      *APITime       `json:"updatedAt"`
	Unread         int            `json:"unread,omitempty"`
}

// EffectiveTimestamp is the instant used to order the conversation
// directory: the later of the last message time and the conversation's
// own update time.
func (c ChatConversation) EffectiveTimestamp() time.Time {
	var last, updated time.Time
	if c.Last.Timestamp != nil {
		last = c.Last.Timestamp.Time
	}
	if c.UpdatedAt != nil {
		updated = c.UpdatedAt.Time
	}
	if last.After(updated) {
		return last
	}
	return updated
}

// OtherParticipant resolves the counterparty for the given local peer. The
// result is recomputed on demand and never stored.
func (c ChatConversation) OtherParticipant(selfID string) Participant {
	if c.Participants[0].PeerID == selfID {
		return c.Participants[1]
	}
	return c.Participants[0]
}

// ChatMessage is a gateway-confirmed message. MessageID is globally unique,
// assigned server side, and is the deduplication key within a thread.
type ChatMessage struct {
	MessageID      string   `json:"messageId"`
	ConversationID string   `json:"conversationId"`
	SenderID       string   `json:"senderId"`
	Message        string   `json:"message"`
	Timestamp      *APITime `json:"timestamp"`
}

// ThreadEntry is one row of a rendered thread: either a confirmed message or
// an optimistic pending message awaiting gateway acknowledgment. Exactly one
// of MessageID and LocalKey is set, depending on Status.
type ThreadEntry struct {
	Status   MessageStatus `json:"status"`
	LocalKey string        `json:"localKey,omitempty"`
	Message  ChatMessage   `json:"message"`
}

func NewPendingEntry(localKey, senderID, content string, at time.Time) ThreadEntry {
	return ThreadEntry{
		Status:   MessageStatusPending,
		LocalKey: localKey,
		Message: ChatMessage{
			SenderID:  senderID,
			Message:   content,
			Timestamp: NewAPITime(at),
		},
	}
}

func NewConfirmedEntry(msg ChatMessage) ThreadEntry {
	return ThreadEntry{Status: MessageStatusConfirmed, Message: msg}
}

// Before orders confirmed entries by (timestamp, messageId). Message ids are
// assumed monotonic with gateway insertion order, which breaks timestamp
// collisions deterministically. Pending entries sort after every confirmed
// entry and retain their append order relative to each other.
func (e ThreadEntry) Before(other ThreadEntry) bool {
	if e.Status != other.Status {
		return e.Status == MessageStatusConfirmed
	}
	if e.Status == MessageStatusPending {
		return false
	}
	a, b := e.Message, other.Message
	at, bt := time.Time{}, time.Time{}
	if a.Timestamp != nil {
		at = a.Timestamp.Time
	}
	if b.Timestamp != nil {
		bt = b.Timestamp.Time
	}
	if !at.Equal(bt) {
		return at.Before(bt)
	}
	return strings.Compare(a.MessageID, b.MessageID) < 0
}

// ChatMessageNotification is the push payload delivered over the live event
// channel for every message created in a joined conversation.
type ChatMessageNotification struct {
	Message        ChatMessage `json:"message"`
	ConversationID string      `json:"conversationId"`
}

// DecodeChatMessageNotification converts the socket layer's decoded JSON
// argument back into a typed notification. The socket library hands handlers
// an untyped value, so the payload takes a round trip through the encoder.
func DecodeChatMessageNotification(args interface{}) (*ChatMessageNotification, error) {
	b, err := json.Marshal(args)
	if err != nil {
		return nil, ErrMalformedNotification
	}
	n := new(ChatMessageNotification)
	if err := json.Unmarshal(b, n); err != nil {
		return nil, ErrMalformedNotification
	}
	if n.Message.MessageID == "" || n.ConversationID == "" {
		return nil, ErrMalformedNotification
	}
	return n, nil
}
