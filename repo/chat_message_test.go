package repo

import (
	"encoding/json"
	"testing"
	"time"
)

func TestChatConversation_EffectiveTimestamp(t *testing.T) {
	older := time.Unix(100, 0).UTC()
	newer := time.Unix(200, 0).UTC()

	c := ChatConversation{
		Last:      ChatPreview{Timestamp: NewAPITime(newer)},
		UpdatedAt: NewAPITime(older),
	}
	if !c.EffectiveTimestamp().Equal(newer) {
		t.Errorf("Expected %s got %s", newer, c.EffectiveTimestamp())
	}

	c = ChatConversation{
		Last:      ChatPreview{Timestamp: NewAPITime(older)},
		UpdatedAt: NewAPITime(newer),
	}
	if !c.EffectiveTimestamp().Equal(newer) {
		t.Errorf("Expected %s got %s", newer, c.EffectiveTimestamp())
	}

	c = ChatConversation{}
	if !c.EffectiveTimestamp().IsZero() {
		t.Error("Expected zero time for empty conversation")
	}
}

func TestChatConversation_OtherParticipant(t *testing.T) {
	c := ChatConversation{
		Participants: [2]Participant{
			{PeerID: "investor1", Handle: "Avery"},
			{PeerID: "founder9", Handle: "Jordan"},
		},
	}
	if p := c.OtherParticipant("investor1"); p.PeerID != "founder9" {
		t.Errorf("Expected founder9 got %s", p.PeerID)
	}
	if p := c.OtherParticipant("founder9"); p.PeerID != "investor1" {
		t.Errorf("Expected investor1 got %s", p.PeerID)
	}
}

func TestThreadEntry_Before(t *testing.T) {
	t1 := time.Unix(10, 0).UTC()
	t2 := time.Unix(20, 0).UTC()

	a := NewConfirmedEntry(ChatMessage{MessageID: "a", Timestamp: NewAPITime(t1)})
	b := NewConfirmedEntry(ChatMessage{MessageID: "b", Timestamp: NewAPITime(t2)})
	if !a.Before(b) {
		t.Error("Expected earlier timestamp to sort first")
	}
	if b.Before(a) {
		t.Error("Expected later timestamp to sort last")
	}

	// Identical timestamps fall back to message id ordering.
	c := NewConfirmedEntry(ChatMessage{MessageID: "c", Timestamp: NewAPITime(t1)})
	if !a.Before(c) {
		t.Error("Expected id tie-break to order a before c")
	}
	if c.Before(a) {
		t.Error("Expected id tie-break to order c after a")
	}

	// Pending entries always sort after confirmed ones, regardless of time.
	p := NewPendingEntry("local1", "me", "hi", time.Unix(1, 0))
	if p.Before(b) {
		t.Error("Expected pending entry to sort after confirmed entries")
	}
	if !b.Before(p) {
		t.Error("Expected confirmed entry to sort before pending entries")
	}

	// Pending entries retain their append order.
	p2 := NewPendingEntry("local2", "me", "again", time.Unix(2, 0))
	if p.Before(p2) || p2.Before(p) {
		t.Error("Expected pending entries to be order-neutral")
	}
}

func TestDecodeChatMessageNotification(t *testing.T) {
	// The socket layer decodes JSON into untyped maps before dispatch.
	raw := map[string]interface{}{
		"conversationId": "conv1",
		"message": map[string]interface{}{
			"messageId":      "msg1",
			"conversationId": "conv1",
			"senderId":       "investor1",
			"message":        "hello",
			"timestamp":      time.Unix(50, 0).UTC().Format(time.RFC3339),
		},
	}
	n, err := DecodeChatMessageNotification(raw)
	if err != nil {
		t.Fatal(err)
	}
	if n.ConversationID != "conv1" {
		t.Errorf(`Expected "conv1" got %s`, n.ConversationID)
	}
	if n.Message.MessageID != "msg1" {
		t.Errorf(`Expected "msg1" got %s`, n.Message.MessageID)
	}
	if n.Message.Message != "hello" {
		t.Errorf(`Expected "hello" got %s`, n.Message.Message)
	}

	if _, err := DecodeChatMessageNotification(map[string]interface{}{"conversationId": "conv1"}); err == nil {
		t.Error("Expected error for notification without message id")
	}
	if _, err := DecodeChatMessageNotification(json.RawMessage(`{`)); err == nil {
		t.Error("Expected error for undecodable payload")
	}
}
