package core

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/bahaa-mustafa/SharkStage-sub000/net"
	"github.com/bahaa-mustafa/SharkStage-sub000/repo"
)

// ReceiveMessageEvent is the gateway push event carrying every message
// created in a joined conversation.
const ReceiveMessageEvent = "receive_message"

var ErrUnknownConversation = errors.New("conversation not present in directory")

// Gateway is the full REST surface the messenger consumes.
type Gateway interface {
	ConversationLister
	HistoryLoader
	MessageSender
}

// ViewState tracks one open conversation through its lifecycle. Live is the
// only state in which both history results and pushed events feed the same
// store; Failed marks a history load that can be retried by reopening.
type ViewState int

const (
	ViewClosed ViewState = iota
	ViewLoading
	ViewJoining
	ViewLive
	ViewFailed
)

func (s ViewState) String() string {
	switch s {
	case ViewLoading:
		return "LOADING"
	case ViewJoining:
		return "JOINING"
	case ViewLive:
		return "LIVE"
	case ViewFailed:
		return "FAILED"
	default:
		return "CLOSED"
	}
}

type threadView struct {
	thread   *MessageThread
	composer *Composer
	state    ViewState
}

// Messenger wires the messaging subsystem together: the shared socket
// session, the REST gateway, the conversation directory, room membership,
// and one thread store per open conversation. It supports both the
// single-thread surface and the split list+thread surface; several threads
// may be open at once and at most one is the selected ("active") one.
type Messenger struct {
	selfID  string
	session *net.Session
	api     Gateway

	directory *ConversationDirectory
	rooms     *RoomManager

	mu      sync.Mutex
	views   map[string]*threadView
	active  string
	sub     *net.Subscription
	started bool
}

func NewMessenger(selfID string, session *net.Session, gateway Gateway) *Messenger {
	return &Messenger{
		selfID:    selfID,
		session:   session,
		api:       gateway,
		directory: NewConversationDirectory(selfID, gateway),
		rooms:     NewRoomManager(session),
		views:     make(map[string]*threadView),
	}
}

// Start subscribes to live message delivery, begins connecting the socket,
// and performs the initial directory load. Directory updates flow for every
// conversation from here on, whether or not a thread is open.
func (m *Messenger) Start() error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.sub = m.session.Subscribe(ReceiveMessageEvent, m.handleReceiveMessage)
	m.mu.Unlock()

	m.session.Start()
	if err := m.directory.Load(); err != nil {
		return fmt.Errorf("loading conversation directory: %s", err)
	}
	return nil
}

// RefreshDirectory re-fetches the conversation list; this is also how
// conversations created since Start are discovered.
func (m *Messenger) RefreshDirectory() error {
	return m.directory.Load()
}

func (m *Messenger) handleReceiveMessage(args interface{}) {
	n, err := repo.DecodeChatMessageNotification(args)
	if err != nil {
		log.Warningf("dropping malformed %s event: %s", ReceiveMessageEvent, err)
		return
	}
	// The directory preview updates for every conversation, open or not.
	m.directory.ApplyIncomingMessage(n.Message, n.ConversationID)

	m.mu.Lock()
	view := m.views[n.ConversationID]
	active := m.active == n.ConversationID
	m.mu.Unlock()

	if view != nil {
		view.thread.Deliver(n.Message)
	}
	if active {
		m.directory.MarkRead(n.ConversationID)
	}
}

// OpenThread opens (or re-selects) a conversation: load history, join its
// room, go live. Reopening an already open conversation only re-selects it.
// Reopening one whose history load failed retries the load.
func (m *Messenger) OpenThread(conversationID string) (*MessageThread, error) {
	m.mu.Lock()
	if view, ok := m.views[conversationID]; ok {
		m.active = conversationID
		state := view.state
		m.mu.Unlock()
		m.directory.MarkRead(conversationID)
		if state == ViewFailed {
			return view.thread, m.loadAndJoin(conversationID, view)
		}
		return view.thread, nil
	}
	m.mu.Unlock()

	conversation, ok := m.directory.Conversation(conversationID)
	if !ok {
		return nil, ErrUnknownConversation
	}
	receiverID := conversation.OtherParticipant(m.selfID).PeerID

	thread := NewMessageThread(conversationID, m.selfID, m.api)
	view := &threadView{
		thread:   thread,
		composer: NewComposer(receiverID, thread, m.api),
		state:    ViewLoading,
	}

	m.mu.Lock()
	if existing, ok := m.views[conversationID]; ok {
		// Lost a race with a concurrent open of the same conversation.
		m.active = conversationID
		m.mu.Unlock()
		thread.Close()
		return existing.thread, nil
	}
	m.views[conversationID] = view
	m.active = conversationID
	m.mu.Unlock()

	m.directory.MarkRead(conversationID)
	return thread, m.loadAndJoin(conversationID, view)
}

func (m *Messenger) loadAndJoin(conversationID string, view *threadView) error {
	m.setViewState(conversationID, ViewLoading)
	if err := view.thread.LoadHistory(); err != nil {
		m.setViewState(conversationID, ViewFailed)
		return err
	}
	m.setViewState(conversationID, ViewJoining)
	m.rooms.Enter(conversationID, func() {
		m.setViewState(conversationID, ViewLive)
	})
	return nil
}

func (m *Messenger) setViewState(conversationID string, state ViewState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if view, ok := m.views[conversationID]; ok {
		view.state = state
	}
}

// CloseThread tears one conversation view down. The room leave fires
// whatever sub-state the view was in; late events for the destroyed store
// are dropped by design.
func (m *Messenger) CloseThread(conversationID string) {
	m.mu.Lock()
	view, ok := m.views[conversationID]
	delete(m.views, conversationID)
	if m.active == conversationID {
		m.active = ""
	}
	m.mu.Unlock()

	if err := m.rooms.Leave(conversationID); err != nil {
		log.Debugf("best-effort leave of %s: %s", conversationID, err)
	}
	if ok {
		view.thread.Close()
	}
}

// Active returns the selected conversation id, or "" when none is selected.
func (m *Messenger) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// OpenThreads lists the conversations currently held open, for the split
// list+thread surface.
func (m *Messenger) OpenThreads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.views))
	for id := range m.views {
		ids = append(ids, id)
	}
	return ids
}

// ThreadState reports the lifecycle state of one conversation view.
func (m *Messenger) ThreadState(conversationID string) ViewState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if view, ok := m.views[conversationID]; ok {
		return view.state
	}
	return ViewClosed
}

// ThreadSnapshot projects the rendered entry list of one open thread.
func (m *Messenger) ThreadSnapshot(conversationID string) ([]repo.ThreadEntry, bool) {
	m.mu.Lock()
	view, ok := m.views[conversationID]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	return view.thread.Snapshot(), true
}

// Composer returns the composer of one open thread.
func (m *Messenger) Composer(conversationID string) (*Composer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	view, ok := m.views[conversationID]
	if !ok {
		return nil, false
	}
	return view.composer, true
}

// Directory exposes the read-only conversation list projections.
func (m *Messenger) Directory() *ConversationDirectory {
	return m.directory
}

// OtherParticipant resolves the counterparty identity of one conversation.
func (m *Messenger) OtherParticipant(conversationID string) (repo.Participant, bool) {
	conversation, ok := m.directory.Conversation(conversationID)
	if !ok {
		return repo.Participant{}, false
	}
	return conversation.OtherParticipant(m.selfID), true
}

// Close tears the whole subsystem down: every open view is closed with its
// room left, the live subscription cancelled, and the socket session shut.
func (m *Messenger) Close() error {
	m.mu.Lock()
	views := m.views
	m.views = make(map[string]*threadView)
	m.active = ""
	sub := m.sub
	m.sub = nil
	m.mu.Unlock()

	var result *multierror.Error
	for id, view := range views {
		if err := m.rooms.Leave(id); err != nil {
			result = multierror.Append(result, fmt.Errorf("leaving %s: %s", id, err))
		}
		view.thread.Close()
	}
	if sub != nil {
		sub.Cancel()
	}
	if err := m.session.Close(); err != nil && err != net.ErrSessionClosed {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
