package chatstream

import "sync"

// InitGuard makes sure at most one init turn is sent, even when the host
// constructs its session twice in quick succession.
//
// The latch is set before the init request starts and is only cleared by
// Reset, which the host calls when the user clears the chat. The guard also
// remembers which chat the host is currently loading so late responses for
// an older chat can be recognised and dropped.
type InitGuard struct {
	mu     sync.Mutex
	sent   bool
	chatID string
}

// NewInitGuard creates an unlatched guard.
func NewInitGuard() *InitGuard {
	return &InitGuard{}
}

// Target remembers chatID as the chat the host is working on.
func (g *InitGuard) Target(chatID string) {
	g.mu.Lock()
	g.chatID = chatID
	g.mu.Unlock()
}

// TryBegin sets the latch for chatID. It returns false if an init turn was
// already started by this guard.
func (g *InitGuard) TryBegin(chatID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sent {
		return false
	}
	g.sent = true
	g.chatID = chatID
	return true
}

// IsCurrent reports whether a load for chatID is still wanted.
func (g *InitGuard) IsCurrent(chatID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.chatID == chatID
}

// Reset clears the latch and targets the replacement chat.
func (g *InitGuard) Reset(newChatID string) {
	g.mu.Lock()
	g.sent = false
	g.chatID = newChatID
	g.mu.Unlock()
}
