package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	gonet "net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/op/go-logging"
	"golang.org/x/net/proxy"

	"github.com/bahaa-mustafa/SharkStage-sub000/repo"
)

var log = logging.MustGetLogger("api")

const clientTimeout = time.Second * 30

// GatewayClient talks to the marketplace gateway's chat surface over
// request/response. Live delivery of the same messages arrives separately
// through the socket session; callers reconcile the two.
type GatewayClient struct {
	httpClient http.Client
	apiUrl     url.URL
	authToken  string
}

func NewGatewayClient(apiUrl, authToken string, proxyDialer proxy.Dialer) (*GatewayClient, error) {
	u, err := url.Parse(apiUrl)
	if err != nil {
		return nil, err
	}
	if err := validateScheme(u); err != nil {
		return nil, err
	}
	dial := gonet.Dial
	if proxyDialer != nil {
		dial = proxyDialer.Dial
	}
	return &GatewayClient{
		httpClient: http.Client{
			Timeout:   clientTimeout,
			Transport: &http.Transport{Dial: dial},
		},
		apiUrl:    *u,
		authToken: authToken,
	}, nil
}

func validateScheme(target *url.URL) error {
	switch target.Scheme {
	case "https", "http":
		return nil
	}
	return fmt.Errorf("unsupported scheme: %s", target.Scheme)
}

func (g *GatewayClient) doRequest(endpoint, method string, body []byte) (*http.Response, error) {
	requestUrl := g.apiUrl
	requestUrl.Path = path.Join(g.apiUrl.Path, endpoint)
	req, err := http.NewRequest(method, requestUrl.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %s", err)
	}
	log.Debugf("gateway request: %s %s", method, requestUrl.String())
	req.Header.Add("Content-Type", "application/json")
	if g.authToken != "" {
		req.Header.Add("Authorization", "Bearer "+g.authToken)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		resp.Body.Close()
		return nil, fmt.Errorf("status not ok: %s", resp.Status)
	}
	return resp, nil
}

// Conversations fetches every conversation the authenticated user is a
// participant of.
func (g *GatewayClient) Conversations() ([]repo.ChatConversation, error) {
	resp, err := g.doRequest("chat/conversations", http.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var conversations []repo.ChatConversation
	if err := json.NewDecoder(resp.Body).Decode(&conversations); err != nil {
		return nil, fmt.Errorf("error decoding conversations: %s", err)
	}
	return conversations, nil
}

// Messages fetches the ordered message history of one conversation.
func (g *GatewayClient) Messages(conversationID string) ([]repo.ChatMessage, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, fmt.Errorf("conversation id is empty")
	}
	resp, err := g.doRequest("chat/"+conversationID, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var messages []repo.ChatMessage
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return nil, fmt.Errorf("error decoding messages: %s", err)
	}
	return messages, nil
}

type sendRequest struct {
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

// Send submits a new message addressed to the counterparty. The gateway
// responds with the created message carrying its assigned id; the same
// message is also pushed to both participants over the socket.
func (g *GatewayClient) Send(receiverID, content string) (*repo.ChatMessage, error) {
	body, err := json.Marshal(sendRequest{ReceiverID: receiverID, Content: content})
	if err != nil {
		return nil, err
	}
	resp, err := g.doRequest("chat/send", http.MethodPost, body)
	if err != nil {
		return nil, fmt.Errorf("sending chat message: %s", err)
	}
	defer resp.Body.Close()
	message := new(repo.ChatMessage)
	if err := json.NewDecoder(resp.Body).Decode(message); err != nil {
		return nil, fmt.Errorf("error decoding sent message: %s", err)
	}
	if message.MessageID == "" {
		return nil, fmt.Errorf("gateway returned message without id")
	}
	return message, nil
}
