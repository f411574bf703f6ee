package testsupport

import (
	"context"
	"fmt"
	"sync"

	"librarian/internal/chat"
	"librarian/internal/notifications"
)

// Notice is a delivered chat notice.
type Notice struct {
	To      chat.Recipient
	Message string
}

// FakeMessenger records prompts and notices. Handles are "msg-<n>".
type FakeMessenger struct {
	mu        sync.Mutex
	prompts   []chat.Prompt
	notices   []Notice
	promptErr error
	noticeErr error
}

// NewFakeMessenger returns an empty messenger.
func NewFakeMessenger() *FakeMessenger {
	return &FakeMessenger{}
}

// FailPrompts makes RenderApprovalPrompt return err until cleared with nil.
func (m *FakeMessenger) FailPrompts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptErr = err
}

// FailNotices makes Notify return err until cleared with nil.
func (m *FakeMessenger) FailNotices(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.noticeErr = err
}

func (m *FakeMessenger) RenderApprovalPrompt(_ context.Context, prompt chat.Prompt) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.promptErr != nil {
		return "", m.promptErr
	}
	m.prompts = append(m.prompts, prompt)
	return fmt.Sprintf("msg-%d", len(m.prompts)), nil
}

func (m *FakeMessenger) Notify(_ context.Context, to chat.Recipient, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.noticeErr != nil {
		return m.noticeErr
	}
	m.notices = append(m.notices, Notice{To: to, Message: message})
	return nil
}

// Prompts returns the rendered prompts in order.
func (m *FakeMessenger) Prompts() []chat.Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]chat.Prompt(nil), m.prompts...)
}

// Notices returns the delivered notices in order.
func (m *FakeMessenger) Notices() []Notice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notice(nil), m.notices...)
}

// Published is a recorded notification.
type Published struct {
	Event   notifications.Event
	Payload notifications.Payload
}

// FakeNotifier records published notifications.
type FakeNotifier struct {
	mu     sync.Mutex
	events []Published
}

func (n *FakeNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, Published{Event: event, Payload: payload})
	return nil
}

// Events returns the recorded event names in order.
func (n *FakeNotifier) Events() []notifications.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notifications.Event, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Event)
	}
	return out
}

// Has reports whether event was published.
func (n *FakeNotifier) Has(event notifications.Event) bool {
	for _, e := range n.Events() {
		if e == event {
			return true
		}
	}
	return false
}

// FakeScanner counts library scans.
type FakeScanner struct {
	mu    sync.Mutex
	scans int
	err   error
}

// Fail makes Scan return err.
func (s *FakeScanner) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *FakeScanner) Scan(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans++
	return s.err
}

// Scans returns the number of Scan calls.
func (s *FakeScanner) Scans() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scans
}
