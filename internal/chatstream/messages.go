package chatstream

import (
	"sync"

	"github.com/andrewdmason/undercurrent-sub000/internal/domain/models/chat"
)

// MessageList is the host-visible message list of the active chat.
//
// Every write names the chat it belongs to; writes for any other chat are
// stale and ignored, so a slow load for an abandoned chat cannot clobber the
// active one.
type MessageList struct {
	mu       sync.RWMutex
	chatID   string
	messages []chat.Message
	onChange func([]chat.Message)
}

// NewMessageList creates an empty list with no active chat.
func NewMessageList() *MessageList {
	return &MessageList{}
}

// OnChange registers fn to receive a copy of the list after every change.
func (l *MessageList) OnChange(fn func([]chat.Message)) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// ChatID returns the active chat.
func (l *MessageList) ChatID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.chatID
}

// Activate makes chatID the active chat. Switching chats empties the list.
func (l *MessageList) Activate(chatID string) {
	l.mu.Lock()
	if l.chatID == chatID {
		l.mu.Unlock()
		return
	}
	l.chatID = chatID
	l.messages = nil
	l.notifyLocked()
}

// Adopt activates chatID if no chat is active yet. It reports whether
// chatID is the active chat afterwards.
func (l *MessageList) Adopt(chatID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.chatID == "" {
		l.chatID = chatID
	}
	return l.chatID == chatID
}

// Replace swaps in an authoritative list. Returns false if chatID is stale.
func (l *MessageList) Replace(chatID string, messages []chat.Message) bool {
	l.mu.Lock()
	if chatID != l.chatID {
		l.mu.Unlock()
		return false
	}
	l.messages = append([]chat.Message(nil), messages...)
	l.notifyLocked()
	return true
}

// Append adds a message to the active chat. Returns false if chatID is stale.
func (l *MessageList) Append(chatID string, msg chat.Message) bool {
	l.mu.Lock()
	if chatID != l.chatID {
		l.mu.Unlock()
		return false
	}
	l.messages = append(l.messages, msg)
	l.notifyLocked()
	return true
}

// Remove deletes the message with id. Returns false if it was not present.
func (l *MessageList) Remove(id string) bool {
	l.mu.Lock()
	for i := range l.messages {
		if l.messages[i].ID == id {
			l.messages = append(l.messages[:i:i], l.messages[i+1:]...)
			l.notifyLocked()
			return true
		}
	}
	l.mu.Unlock()
	return false
}

// Snapshot returns a copy of the messages.
func (l *MessageList) Snapshot() []chat.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]chat.Message(nil), l.messages...)
}

// Len returns the number of messages.
func (l *MessageList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// TotalTokens sums the token counts of the listed messages.
func (l *MessageList) TotalTokens() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return chat.SumTokens(l.messages)
}

// notifyLocked releases the lock and then calls onChange outside it.
func (l *MessageList) notifyLocked() {
	fn := l.onChange
	snapshot := append([]chat.Message(nil), l.messages...)
	l.mu.Unlock()
	if fn != nil {
		fn(snapshot)
	}
}
