package core

import (
	"sort"
	"sync"
)

// Events exchanged with the gateway to scope push delivery to the
// conversations the user is actually viewing.
const (
	joinConversationEvent  = "join_conversation"
	leaveConversationEvent = "leave_conversation"
)

type roomState int

const (
	roomJoining roomState = iota + 1
	roomJoined
)

// transportSession is the slice of the socket session the room manager uses.
type transportSession interface {
	OnceConnected(func())
	OnConnect(func())
	Emit(event string, args ...interface{}) error
}

// RoomManager tracks which conversation rooms the client is a member of.
// Joins issued before the socket is ready are queued through OnceConnected,
// and every tracked room is rejoined after each reconnect, so a dropped
// transport never silently stops push delivery.
type RoomManager struct {
	session transportSession

	mu    sync.Mutex
	rooms map[string]roomState
}

func NewRoomManager(session transportSession) *RoomManager {
	m := &RoomManager{
		session: session,
		rooms:   make(map[string]roomState),
	}
	session.OnConnect(m.rejoinActive)
	return m
}

// Enter joins the conversation's room, deferring until the socket is
// connected if necessary. Entering a room that is already joined or mid-join
// is a no-op; the joined callback fires once per logical join.
func (m *RoomManager) Enter(conversationID string, joined func()) {
	m.mu.Lock()
	switch m.rooms[conversationID] {
	case roomJoined:
		m.mu.Unlock()
		if joined != nil {
			joined()
		}
		return
	case roomJoining:
		m.mu.Unlock()
		return
	}
	m.rooms[conversationID] = roomJoining
	m.mu.Unlock()

	m.session.OnceConnected(func() {
		m.mu.Lock()
		state, ok := m.rooms[conversationID]
		if !ok {
			// Left again before the socket came up.
			m.mu.Unlock()
			return
		}
		if state == roomJoined {
			// rejoinActive already joined it on this connection.
			m.mu.Unlock()
			if joined != nil {
				joined()
			}
			return
		}
		m.mu.Unlock()
		if err := m.session.Emit(joinConversationEvent, conversationID); err != nil {
			// Still tracked as joining; the next reconnect retries.
			log.Warningf("joining conversation %s: %s", conversationID, err)
			return
		}
		m.mu.Lock()
		if _, ok := m.rooms[conversationID]; ok {
			m.rooms[conversationID] = roomJoined
		}
		m.mu.Unlock()
		if joined != nil {
			joined()
		}
	})
}

// Leave stops tracking the room and tells the gateway, best effort. A leave
// that cannot be delivered is not an error: at worst the client keeps
// receiving events for a room it no longer displays, which the stores
// tolerate.
func (m *RoomManager) Leave(conversationID string) error {
	m.mu.Lock()
	_, tracked := m.rooms[conversationID]
	delete(m.rooms, conversationID)
	m.mu.Unlock()
	if !tracked {
		return nil
	}
	if err := m.session.Emit(leaveConversationEvent, conversationID); err != nil {
		log.Debugf("leaving conversation %s: %s", conversationID, err)
		return err
	}
	return nil
}

// State reports the membership state of one room; false means untracked.
func (m *RoomManager) State(conversationID string) (joined bool, tracked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.rooms[conversationID]
	return state == roomJoined, ok
}

// ActiveRooms lists the tracked rooms in a stable order.
func (m *RoomManager) ActiveRooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// rejoinActive runs on every successful (re)connection and re-issues a join
// for every tracked room, not just those joined on a previous connection.
func (m *RoomManager) rejoinActive() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.session.Emit(joinConversationEvent, id); err != nil {
			log.Warningf("rejoining conversation %s: %s", id, err)
			continue
		}
		m.mu.Lock()
		if _, ok := m.rooms[id]; ok {
			m.rooms[id] = roomJoined
		}
		m.mu.Unlock()
	}
}
