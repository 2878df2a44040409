package chatstream

// Hooks are the notifications a session sends to its host. Every field is
// optional. Hooks run synchronously on the goroutine driving the turn, so
// they must return quickly.
type Hooks struct {
	OnToolCallStart  func(name string)
	OnToolCallEnd    func(name string)
	OnScriptUpdate   func(content string)
	OnIdeaRegenerate func()

	// OnDataRefresh asks the host to reload everything it shows after an
	// idea was regenerated.
	OnDataRefresh func()

	// OnText receives each assistant text delta as it arrives.
	OnText func(delta string)

	// OnError receives fatal turn errors, for a user-visible notification.
	OnError func(err error)
}

func (h *Hooks) toolCallStart(name string) {
	if h.OnToolCallStart != nil {
		h.OnToolCallStart(name)
	}
}

func (h *Hooks) toolCallEnd(name string) {
	if h.OnToolCallEnd != nil {
		h.OnToolCallEnd(name)
	}
}

func (h *Hooks) scriptUpdate(content string) {
	if h.OnScriptUpdate != nil {
		h.OnScriptUpdate(content)
	}
}

func (h *Hooks) ideaRegenerate() {
	if h.OnIdeaRegenerate != nil {
		h.OnIdeaRegenerate()
	}
}

func (h *Hooks) dataRefresh() {
	if h.OnDataRefresh != nil {
		h.OnDataRefresh()
	}
}

func (h *Hooks) text(delta string) {
	if h.OnText != nil {
		h.OnText(delta)
	}
}

func (h *Hooks) fail(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}
