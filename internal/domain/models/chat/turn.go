package chat

// ScriptQuestion is an onboarding question/answer pair forwarded with a turn
// so the assistant can tailor a script.
type ScriptQuestion struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// TurnRequest is the body of one POST to the completion endpoint.
// Message is nil for init turns.
type TurnRequest struct {
	ChatID          string           `json:"chatId"`
	Message         *string          `json:"message,omitempty"`
	IsInit          bool             `json:"isInit,omitempty"`
	Model           string           `json:"model"`
	ScriptQuestions []ScriptQuestion `json:"scriptQuestions,omitempty"`
}

// Text returns the user message, or "" for init turns.
func (r *TurnRequest) Text() string {
	if r.Message == nil {
		return ""
	}
	return *r.Message
}
