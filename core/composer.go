package core

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bahaa-mustafa/SharkStage-sub000/repo"
)

var ErrEmptyMessage = errors.New("message text is empty")

// MessageSender is the gateway surface the composer consumes.
type MessageSender interface {
	Send(receiverID, content string) (*repo.ChatMessage, error)
}

// Composer captures outgoing text for one conversation and coordinates the
// optimistic send: the input clears before the request starts so the field
// is immediately free for the next message, and a failed send restores the
// original text for retry.
type Composer struct {
	receiverID string
	thread     *MessageThread
	api        MessageSender

	mu   sync.Mutex
	text string
}

func NewComposer(receiverID string, thread *MessageThread, api MessageSender) *Composer {
	return &Composer{receiverID: receiverID, thread: thread, api: api}
}

func (c *Composer) SetText(text string) {
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()
}

func (c *Composer) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// Submit sends the current input. Whitespace-only input is rejected without
// side effects. The input is cleared synchronously before the network call
// starts; on failure the optimistic placeholder is rolled back and the text
// restored only after the call settles.
func (c *Composer) Submit() error {
	c.mu.Lock()
	original := c.text
	if strings.TrimSpace(original) == "" {
		c.mu.Unlock()
		return ErrEmptyMessage
	}
	c.text = ""
	c.mu.Unlock()

	localKey, err := c.thread.AppendPending(original)
	if err != nil {
		c.restore(original)
		return err
	}
	confirmed, err := c.api.Send(c.receiverID, original)
	if err != nil {
		if content, ok := c.thread.RejectPending(localKey); ok {
			c.restore(content)
		} else {
			c.restore(original)
		}
		return fmt.Errorf("sending message: %s", err)
	}
	c.thread.ConfirmPending(localKey, confirmed)
	return nil
}

func (c *Composer) restore(text string) {
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()
}
