package net

import (
	"errors"
	"io/ioutil"
	gonet "net"
	"net/http"
	"time"

	tp "github.com/OpenBazaar/golang-socketio/transport"
	"github.com/gorilla/websocket"
	"golang.org/x/net/proxy"
)

const (
	wsDefaultPingInterval   = 30 * time.Second
	wsDefaultPingTimeout    = 60 * time.Second
	wsDefaultReceiveTimeout = 60 * time.Second
	wsDefaultSendTimeout    = 60 * time.Second
)

var (
	ErrBinaryMessage    = errors.New("binary messages are not supported")
	ErrBadBuffer        = errors.New("buffer error")
	ErrEmptyPacket      = errors.New("empty packet")
	ErrServerTransport  = errors.New("server side transport is not supported")
)

type websocketConnection struct {
	socket    *websocket.Conn
	transport *websocketTransport
}

func (wsc *websocketConnection) GetMessage() (string, error) {
	wsc.socket.SetReadDeadline(time.Now().Add(wsc.transport.receiveTimeout))
	msgType, reader, err := wsc.socket.NextReader()
	if err != nil {
		return "", err
	}
	if msgType != websocket.TextMessage {
		return "", ErrBinaryMessage
	}
	data, err := ioutil.ReadAll(reader)
	if err != nil {
		return "", ErrBadBuffer
	}
	if len(data) == 0 {
		return "", ErrEmptyPacket
	}
	return string(data), nil
}

func (wsc *websocketConnection) WriteMessage(message string) error {
	wsc.socket.SetWriteDeadline(time.Now().Add(wsc.transport.sendTimeout))
	writer, err := wsc.socket.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	if _, err := writer.Write([]byte(message)); err != nil {
		return err
	}
	return writer.Close()
}

func (wsc *websocketConnection) Close() {
	wsc.socket.Close()
}

func (wsc *websocketConnection) PingParams() (interval, timeout time.Duration) {
	return wsc.transport.pingInterval, wsc.transport.pingTimeout
}

// websocketTransport is the client half of a socket.io transport. The
// gateway never dials us, so the server-side factory methods are stubbed.
type websocketTransport struct {
	pingInterval   time.Duration
	pingTimeout    time.Duration
	receiveTimeout time.Duration
	sendTimeout    time.Duration

	requestHeader http.Header
	proxyDialer   proxy.Dialer
}

func (wst *websocketTransport) Connect(url string) (tp.Connection, error) {
	dial := gonet.Dial
	if wst.proxyDialer != nil {
		dial = wst.proxyDialer.Dial
	}
	dialer := websocket.Dialer{NetDial: dial}
	socket, _, err := dialer.Dial(url, wst.requestHeader)
	if err != nil {
		return nil, err
	}
	return &websocketConnection{socket, wst}, nil
}

func (wst *websocketTransport) HandleConnection(w http.ResponseWriter, r *http.Request) (tp.Connection, error) {
	return nil, ErrServerTransport
}

func (wst *websocketTransport) Serve(w http.ResponseWriter, r *http.Request) {}

// NewWebsocketTransport returns a client websocket transport with default
// ping and timeout parameters, optionally dialing through a SOCKS proxy.
func NewWebsocketTransport(proxyDialer proxy.Dialer, header http.Header) tp.Transport {
	return &websocketTransport{
		pingInterval:   wsDefaultPingInterval,
		pingTimeout:    wsDefaultPingTimeout,
		receiveTimeout: wsDefaultReceiveTimeout,
		sendTimeout:    wsDefaultSendTimeout,
		requestHeader:  header,
		proxyDialer:    proxyDialer,
	}
}
