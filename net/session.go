package net

import (
	"errors"
	"net/http"
	"sync"
	"time"

	gosocketio "github.com/OpenBazaar/golang-socketio"
	"github.com/cenkalti/backoff"
	"github.com/op/go-logging"
	"golang.org/x/net/proxy"
)

var log = logging.MustGetLogger("net")

var (
	ErrNotConnected  = errors.New("chat session is not connected")
	ErrSessionClosed = errors.New("chat session is closed")
)

const handshakeTimeout = 10 * time.Second

// SocketClient mirrors the surface of the socket.io client the session
// depends on, so tests can stand in a fake without a live gateway.
type SocketClient interface {
	On(method string, callback interface{}) error
	Emit(method string, args []interface{}) error
	Close()
}

// Dialer produces a connected socket client. The default dialer blocks until
// the socket.io handshake completes or times out.
type Dialer func() (SocketClient, error)

// SocketDialer dials the gateway's socket.io endpoint over websocket,
// optionally through a SOCKS proxy, and waits for the handshake to finish
// before handing the client back.
func SocketDialer(host string, port int, secure bool, proxyDialer proxy.Dialer, header http.Header) Dialer {
	return func() (SocketClient, error) {
		client, err := gosocketio.Dial(
			gosocketio.GetUrl(host, port, secure),
			NewWebsocketTransport(proxyDialer, header),
		)
		if err != nil {
			return nil, err
		}
		ready := make(chan struct{})
		client.On(gosocketio.OnConnection, func(h *gosocketio.Channel, args interface{}) {
			close(ready)
		})
		select {
		case <-ready:
		case <-time.After(handshakeTimeout):
			client.Close()
			return nil, errors.New("timeout waiting for socket.io handshake")
		}
		return client, nil
	}
}

// EventHandler receives the decoded JSON argument of a push event. The
// socket library delivers untyped values; see repo.DecodeChatMessageNotification.
type EventHandler func(args interface{})

// Subscription is a handle for one registered event handler.
type Subscription struct {
	event string
	id    int
	s     *Session
}

// Cancel removes the handler. Events already in flight may still be
// delivered to it.
func (sub *Subscription) Cancel() {
	sub.s.mu.Lock()
	defer sub.s.mu.Unlock()
	if handlers, ok := sub.s.handlers[sub.event]; ok {
		delete(handlers, sub.id)
		if len(handlers) == 0 {
			delete(sub.s.handlers, sub.event)
		}
	}
}

// Session is the process-wide connection to the messaging gateway. It owns
// the socket client lifecycle: the first Start dials asynchronously, a
// dropped connection is redialed with exponential backoff, and every event
// handler is re-registered on the fresh client after a redial. Consumers
// that need the socket before it is ready queue work through OnceConnected.
type Session struct {
	dial       Dialer
	newBackOff func() backoff.BackOff

	mu               sync.Mutex
	client           SocketClient
	connected        bool
	connecting       bool
	closed           bool
	nextSubID        int
	handlers         map[string]map[int]EventHandler
	onceConnected    []func()
	connectListeners []func()
}

func NewSession(dial Dialer) *Session {
	return &Session{
		dial:       dial,
		newBackOff: defaultBackOff,
		handlers:   make(map[string]map[int]EventHandler),
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 5 * time.Minute
	return b
}

// Start begins connecting in the background. It is idempotent: calling it
// while connected or mid-dial is a no-op.
func (s *Session) Start() {
	s.mu.Lock()
	if s.connected || s.connecting || s.closed {
		s.mu.Unlock()
		return
	}
	s.connecting = true
	s.mu.Unlock()
	go s.connectLoop()
}

func (s *Session) connectLoop() {
	var client SocketClient
	op := func() error {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil
		}
		c, err := s.dial()
		if err != nil {
			log.Warningf("chat socket dial: %s", err)
			return err
		}
		client = c
		return nil
	}
	if err := backoff.Retry(op, s.newBackOff()); err != nil {
		log.Errorf("chat socket connection attempts exhausted: %s", err)
		s.mu.Lock()
		s.connecting = false
		s.mu.Unlock()
		return
	}
	if client == nil {
		return
	}
	s.attach(client)
}

func (s *Session) attach(client SocketClient) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		client.Close()
		return
	}
	s.client = client
	s.connected = true
	s.connecting = false
	events := make([]string, 0, len(s.handlers))
	for event := range s.handlers {
		events = append(events, event)
	}
	queued := s.onceConnected
	s.onceConnected = nil
	listeners := append([]func(){}, s.connectListeners...)
	s.mu.Unlock()

	client.On(gosocketio.OnDisconnection, func(h *gosocketio.Channel, args interface{}) {
		s.handleDisconnect(client)
	})
	client.On(gosocketio.OnError, func(h *gosocketio.Channel, args interface{}) {
		log.Warningf("chat socket error: %+v", args)
	})
	for _, event := range events {
		s.register(client, event)
	}
	log.Info("chat socket connected")
	for _, fn := range listeners {
		fn()
	}
	for _, fn := range queued {
		fn()
	}
}

func (s *Session) handleDisconnect(client SocketClient) {
	s.mu.Lock()
	// A client replaced by a later redial can still deliver a trailing
	// disconnection event; only the current client may trigger a redial.
	if s.client != client || s.closed {
		s.mu.Unlock()
		return
	}
	s.client = nil
	s.connected = false
	s.connecting = true
	s.mu.Unlock()

	log.Warning("chat socket disconnected, scheduling reconnect")
	client.Close()
	go s.connectLoop()
}

func (s *Session) register(client SocketClient, event string) {
	client.On(event, func(h *gosocketio.Channel, args interface{}) {
		s.dispatch(event, args)
	})
}

func (s *Session) dispatch(event string, args interface{}) {
	s.mu.Lock()
	handlers := make([]EventHandler, 0, len(s.handlers[event]))
	for _, fn := range s.handlers[event] {
		handlers = append(handlers, fn)
	}
	s.mu.Unlock()
	for _, fn := range handlers {
		fn(args)
	}
}

// IsConnected reports whether the socket is currently usable.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// OnceConnected runs fn immediately if the socket is up, otherwise defers it
// until the next successful connection. Work queued this way survives a dial
// still in progress, so a room join issued before the transport is ready is
// never dropped.
func (s *Session) OnceConnected(fn func()) {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		fn()
		return
	}
	s.onceConnected = append(s.onceConnected, fn)
	s.mu.Unlock()
}

// OnConnect registers fn to run after every successful connection,
// including reconnects.
func (s *Session) OnConnect(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectListeners = append(s.connectListeners, fn)
}

// Emit sends a client event to the gateway.
func (s *Session) Emit(event string, args ...interface{}) error {
	s.mu.Lock()
	client := s.client
	connected := s.connected
	s.mu.Unlock()
	if !connected || client == nil {
		return ErrNotConnected
	}
	return client.Emit(event, args)
}

// Subscribe registers a handler for a gateway push event.
func (s *Session) Subscribe(event string, fn EventHandler) *Subscription {
	s.mu.Lock()
	firstForEvent := s.handlers[event] == nil
	if firstForEvent {
		s.handlers[event] = make(map[int]EventHandler)
	}
	s.nextSubID++
	id := s.nextSubID
	s.handlers[event][id] = fn
	client := s.client
	connected := s.connected
	s.mu.Unlock()

	if firstForEvent && connected && client != nil {
		s.register(client, event)
	}
	return &Subscription{event: event, id: id, s: s}
}

// Close tears the session down permanently. A closed session cannot be
// restarted.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.closed = true
	client := s.client
	s.client = nil
	s.connected = false
	s.onceConnected = nil
	s.mu.Unlock()
	if client != nil {
		client.Close()
	}
	return nil
}
