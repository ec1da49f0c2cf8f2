package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/op/go-logging"

	"github.com/bahaa-mustafa/SharkStage-sub000/repo"
)

var log = logging.MustGetLogger("core")

// ConversationLister is the gateway surface the directory consumes.
type ConversationLister interface {
	Conversations() ([]repo.ChatConversation, error)
}

// ConversationDirectory holds the ordered conversation list for the current
// user: newest effective timestamp first, previews refreshed from both
// directory reloads and live pushed messages. One instance exists per
// session; thread stores are independent of it.
type ConversationDirectory struct {
	selfID string
	api    ConversationLister

	mu            sync.RWMutex
	conversations []repo.ChatConversation
}

func NewConversationDirectory(selfID string, api ConversationLister) *ConversationDirectory {
	return &ConversationDirectory{selfID: selfID, api: api}
}

// Load fetches the full conversation list and replaces the directory state
// in one step; readers never observe a partially applied result.
func (d *ConversationDirectory) Load() error {
	conversations, err := d.api.Conversations()
	if err != nil {
		return fmt.Errorf("fetching conversations: %s", err)
	}
	sortConversations(conversations)
	d.mu.Lock()
	d.conversations = conversations
	d.mu.Unlock()
	return nil
}

// Equal effective timestamps keep their relative order.
func sortConversations(conversations []repo.ChatConversation) {
	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].EffectiveTimestamp().After(conversations[j].EffectiveTimestamp())
	})
}

// ApplyIncomingMessage refreshes the matching conversation's preview and
// re-sorts the list. Messages for conversations the directory has never
// seen are ignored; brand-new conversations are only discovered by a
// subsequent Load.
func (d *ConversationDirectory) ApplyIncomingMessage(msg repo.ChatMessage, conversationID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.conversations {
		if d.conversations[i].ConversationID != conversationID {
			continue
		}
		d.conversations[i].Last = repo.ChatPreview{
			Message:   msg.Message,
			SenderID:  msg.SenderID,
			Timestamp: msg.Timestamp,
		}
		if msg.Timestamp != nil {
			d.conversations[i].UpdatedAt = msg.Timestamp
		}
		if msg.SenderID != d.selfID {
			d.conversations[i].Unread++
		}
		sortConversations(d.conversations)
		return
	}
	log.Debugf("directory: ignoring message for unknown conversation %s", conversationID)
}

// MarkRead clears the unread counter of one conversation.
func (d *ConversationDirectory) MarkRead(conversationID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.conversations {
		if d.conversations[i].ConversationID == conversationID {
			d.conversations[i].Unread = 0
			return
		}
	}
}

// Conversations returns a copy of the current ordered directory state.
func (d *ConversationDirectory) Conversations() []repo.ChatConversation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]repo.ChatConversation{}, d.conversations...)
}

// Conversation looks one entry up by id.
func (d *ConversationDirectory) Conversation(conversationID string) (repo.ChatConversation, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, c := range d.conversations {
		if c.ConversationID == conversationID {
			return c, true
		}
	}
	return repo.ChatConversation{}, false
}

// Filter returns the conversations whose counterparty handle contains the
// query, case-insensitively. It is a pure projection of current state.
func (d *ConversationDirectory) Filter(query string) []repo.ChatConversation {
	query = strings.ToLower(strings.TrimSpace(query))
	d.mu.RLock()
	defer d.mu.RUnlock()
	if query == "" {
		return append([]repo.ChatConversation{}, d.conversations...)
	}
	var matches []repo.ChatConversation
	for _, c := range d.conversations {
		handle := strings.ToLower(c.OtherParticipant(d.selfID).Handle)
		if strings.Contains(handle, query) {
			matches = append(matches, c)
		}
	}
	return matches
}
