package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pborman/uuid"

	"github.com/bahaa-mustafa/SharkStage-sub000/repo"
)

var ErrThreadClosed = errors.New("message thread is closed")

// HistoryLoader is the gateway surface the thread store consumes.
type HistoryLoader interface {
	Messages(conversationID string) ([]repo.ChatMessage, error)
}

const incomingBuffer = 64

// MessageThread owns the ordered message list of one open conversation. Two
// sources feed it: request/response history loads and live pushed messages,
// which can arrive in any interleaving and may overlap. Entries are unique
// by message id and kept sorted by (timestamp, id); optimistic pending
// entries sit at the tail until the gateway acknowledges or rejects them.
//
// The entry slice holds a sorted confirmed block followed by pending
// entries in append order. Every mutation preserves that shape.
type MessageThread struct {
	conversationID string
	selfID         string
	api            HistoryLoader

	incoming chan repo.ChatMessage
	quit     chan struct{}

	mu      sync.Mutex
	entries []repo.ThreadEntry
	loadSeq uint64
	closed  bool
}

func NewMessageThread(conversationID, selfID string, api HistoryLoader) *MessageThread {
	t := &MessageThread{
		conversationID: conversationID,
		selfID:         selfID,
		api:            api,
		incoming:       make(chan repo.ChatMessage, incomingBuffer),
		quit:           make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *MessageThread) ConversationID() string {
	return t.conversationID
}

// run decouples event arrival from store mutation: the socket dispatcher
// only ever enqueues, it never blocks on the store's lock.
func (t *MessageThread) run() {
	for {
		select {
		case msg := <-t.incoming:
			t.Receive(msg)
		case <-t.quit:
			return
		}
	}
}

// Deliver routes a live pushed message into the thread without blocking the
// caller. If the buffer is full the message is dropped; the directory
// preview still updates through its own subscription and a later history
// load restores the thread.
func (t *MessageThread) Deliver(msg repo.ChatMessage) {
	select {
	case t.incoming <- msg:
	default:
		log.Warningf("thread %s: event buffer full, dropping message %s", t.conversationID, msg.MessageID)
	}
}

// LoadHistory fetches the conversation's message history and replaces the
// confirmed entries. Pending optimistic entries survive a reload. A load
// superseded by a newer one while its response was in flight is discarded,
// so a slow response can never clobber fresher state.
func (t *MessageThread) LoadHistory() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrThreadClosed
	}
	t.loadSeq++
	seq := t.loadSeq
	t.mu.Unlock()

	history, err := t.api.Messages(t.conversationID)
	if err != nil {
		return fmt.Errorf("loading history for %s: %s", t.conversationID, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrThreadClosed
	}
	if seq != t.loadSeq {
		log.Debugf("thread %s: dropping stale history response", t.conversationID)
		return nil
	}

	seen := make(map[string]struct{}, len(history))
	entries := make([]repo.ThreadEntry, 0, len(history))
	for _, msg := range history {
		if msg.MessageID == "" {
			continue
		}
		if _, ok := seen[msg.MessageID]; ok {
			continue
		}
		seen[msg.MessageID] = struct{}{}
		entries = append(entries, repo.NewConfirmedEntry(msg))
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Before(entries[j]) })
	for _, e := range t.entries {
		if e.Status == repo.MessageStatusPending {
			entries = append(entries, e)
		}
	}
	t.entries = entries
	return nil
}

// Receive inserts a live pushed message. Redelivery of an id already present
// is a no-op, and a pushed copy of the user's own message replaces its
// optimistic placeholder, whichever of the push and the send response
// arrives first.
func (t *MessageThread) Receive(msg repo.ChatMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || msg.MessageID == "" {
		return
	}
	t.mergeConfirmed(msg)
}

func (t *MessageThread) mergeConfirmed(msg repo.ChatMessage) {
	for _, e := range t.entries {
		if e.Status == repo.MessageStatusConfirmed && e.Message.MessageID == msg.MessageID {
			return
		}
	}
	if msg.SenderID == t.selfID {
		for i, e := range t.entries {
			if e.Status == repo.MessageStatusPending && e.Message.Message == msg.Message {
				t.entries = append(t.entries[:i], t.entries[i+1:]...)
				break
			}
		}
	}
	t.insertConfirmed(repo.NewConfirmedEntry(msg))
}

func (t *MessageThread) insertConfirmed(entry repo.ThreadEntry) {
	n := 0
	for n < len(t.entries) && t.entries[n].Status == repo.MessageStatusConfirmed {
		n++
	}
	i := sort.Search(n, func(i int) bool { return entry.Before(t.entries[i]) })
	t.entries = append(t.entries, repo.ThreadEntry{})
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = entry
}

// AppendPending adds an optimistic entry for a locally sent message and
// returns its temporary local key. Pending entries are always rendered
// after confirmed ones: from the sender's perspective their own unsent
// message is chronologically last.
func (t *MessageThread) AppendPending(content string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return "", ErrThreadClosed
	}
	localKey := uuid.New()
	t.entries = append(t.entries, repo.NewPendingEntry(localKey, t.selfID, content, time.Now()))
	return localKey, nil
}

// ConfirmPending resolves an optimistic entry after a successful send. The
// placeholder is dropped and the acknowledged message inserted unless the
// live push already delivered it.
func (t *MessageThread) ConfirmPending(localKey string, msg *repo.ChatMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.removePending(localKey)
	if msg != nil && msg.MessageID != "" {
		t.mergeConfirmed(*msg)
	}
}

// RejectPending drops an optimistic entry after a failed send and hands the
// original text back so the user can retry without retyping.
func (t *MessageThread) RejectPending(localKey string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.Status == repo.MessageStatusPending && e.LocalKey == localKey {
			content := e.Message.Message
			t.removePending(localKey)
			return content, true
		}
	}
	return "", false
}

func (t *MessageThread) removePending(localKey string) {
	for i, e := range t.entries {
		if e.Status == repo.MessageStatusPending && e.LocalKey == localKey {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

// Snapshot returns a copy of the thread in render order.
func (t *MessageThread) Snapshot() []repo.ThreadEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]repo.ThreadEntry{}, t.entries...)
}

// Close destroys the store. Events still in flight for this conversation
// are dropped; the directory keeps its preview updated through its own
// subscription.
func (t *MessageThread) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()
	close(t.quit)
}
