package core

import (
	"errors"
	"sync"
	"testing"

	"github.com/bahaa-mustafa/SharkStage-sub000/repo"
)

type fakeSender struct {
	mu        sync.Mutex
	result    *repo.ChatMessage
	err       error
	sent      []string
	receivers []string
	observed  func()
}

func (f *fakeSender) Send(receiverID, content string) (*repo.ChatMessage, error) {
	f.mu.Lock()
	f.sent = append(f.sent, content)
	f.receivers = append(f.receivers, receiverID)
	observed := f.observed
	f.mu.Unlock()
	if observed != nil {
		observed()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestComposer(sender *fakeSender) (*Composer, *MessageThread) {
	thread := NewMessageThread("conv1", "me", new(fakeHistory))
	return NewComposer("alice", thread, sender), thread
}

func TestComposer_RejectsEmptyInput(t *testing.T) {
	sender := new(fakeSender)
	c, thread := newTestComposer(sender)
	defer thread.Close()

	for _, text := range []string{"", "   ", "\n\t"} {
		c.SetText(text)
		if err := c.Submit(); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("Expected ErrEmptyMessage for %q got %v", text, err)
		}
	}
	if len(sender.sent) != 0 {
		t.Error("Expected no send attempts")
	}
	if len(thread.Snapshot()) != 0 {
		t.Error("Expected no pending entries")
	}
}

func TestComposer_SuccessfulSubmit(t *testing.T) {
	confirmed := confirmedMessage("m1", "me", "hi", 10)
	sender := &fakeSender{result: &confirmed}
	c, thread := newTestComposer(sender)
	defer thread.Close()

	c.SetText("hi")
	if err := c.Submit(); err != nil {
		t.Fatal(err)
	}
	if c.Text() != "" {
		t.Errorf("Expected cleared input got %q", c.Text())
	}
	entries := thread.Snapshot()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry got %d", len(entries))
	}
	if entries[0].Status != repo.MessageStatusConfirmed || entries[0].Message.MessageID != "m1" {
		t.Errorf("Expected confirmed m1 got %+v", entries[0])
	}
	if len(sender.sent) != 1 || sender.sent[0] != "hi" {
		t.Errorf(`Expected send of "hi" got %v`, sender.sent)
	}
}

func TestComposer_InputClearsBeforeSend(t *testing.T) {
	confirmed := confirmedMessage("m1", "me", "hi", 10)
	sender := &fakeSender{result: &confirmed}
	c, thread := newTestComposer(sender)
	defer thread.Close()

	var textDuringSend string
	var pendingDuringSend int
	sender.observed = func() {
		textDuringSend = c.Text()
		pendingDuringSend = len(thread.Snapshot())
	}

	c.SetText("hi")
	if err := c.Submit(); err != nil {
		t.Fatal(err)
	}
	if textDuringSend != "" {
		t.Errorf("Expected input cleared before the request, got %q", textDuringSend)
	}
	if pendingDuringSend != 1 {
		t.Errorf("Expected optimistic entry visible during the request, got %d entries", pendingDuringSend)
	}
}

func TestComposer_FailedSubmitRollsBack(t *testing.T) {
	sender := &fakeSender{err: errors.New("gateway down")}
	c, thread := newTestComposer(sender)
	defer thread.Close()

	c.SetText("hi")
	if err := c.Submit(); err == nil {
		t.Fatal("Expected error")
	}
	if len(thread.Snapshot()) != 0 {
		t.Error("Expected pending entry to be rolled back")
	}
	if c.Text() != "hi" {
		t.Errorf(`Expected restored text "hi" got %q`, c.Text())
	}

	// Sending again after the failure works as normal.
	confirmed := confirmedMessage("m1", "me", "hi", 10)
	sender.mu.Lock()
	sender.err = nil
	sender.result = &confirmed
	sender.mu.Unlock()
	if err := c.Submit(); err != nil {
		t.Fatal(err)
	}
	if len(thread.Snapshot()) != 1 {
		t.Errorf("Expected 1 entry got %d", len(thread.Snapshot()))
	}
}

func TestComposer_SubmitOnClosedThreadRestoresText(t *testing.T) {
	sender := new(fakeSender)
	c, thread := newTestComposer(sender)
	thread.Close()

	c.SetText("hi")
	if err := c.Submit(); !errors.Is(err, ErrThreadClosed) {
		t.Fatalf("Expected ErrThreadClosed got %v", err)
	}
	if c.Text() != "hi" {
		t.Errorf(`Expected restored text "hi" got %q`, c.Text())
	}
	if len(sender.sent) != 0 {
		t.Error("Expected no send attempts")
	}
}
