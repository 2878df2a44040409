package responder

import (
	"context"
	"fmt"
	"strings"
	"time"

	loremgen "github.com/bozaro/golorem"
	"github.com/jonboulle/clockwork"

	"github.com/andrewdmason/undercurrent-sub000/internal/domain/models/chat"
)

// Tool names the responder can invoke
const (
	ToolUpdateScript   = "update_script"
	ToolGenerateScript = "generate_script"
	ToolRegenerateIdea = "regenerate_idea"
)

// Request is one turn handed to a Responder.
type Request struct {
	ChatID          string
	Model           string
	Message         string // Empty for init turns
	IsInit          bool
	ScriptQuestions []chat.ScriptQuestion
	History         []chat.Message
}

// Responder produces the events of one assistant turn. The channel is closed
// after the last event. A failure is delivered as an error event.
type Responder interface {
	Stream(ctx context.Context, req *Request) (<-chan chat.StreamEvent, error)
}

// Config tunes the scripted responder.
type Config struct {
	// WordDelay overrides the per-model pace between text deltas when > 0.
	WordDelay time.Duration
	// ToolLatency is how long a tool "runs" before its result is sent.
	ToolLatency time.Duration
	Clock       clockwork.Clock
}

// Scripted is a development responder that streams lorem ipsum text and
// invokes the script tools when the user message asks for them.
//
// Model names steer it:
//   - "*slow*": 2 words/second
//   - "*fast*": 30 words/second
//   - "*instant*": no delay
//   - "*error*": fails after the first words
type Scripted struct {
	generator *loremgen.Lorem
	cfg       Config
}

// NewScripted creates a scripted responder.
func NewScripted(cfg Config) *Scripted {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Scripted{
		generator: loremgen.New(),
		cfg:       cfg,
	}
}

var _ Responder = (*Scripted)(nil)

// wordDelay returns the delay between words based on the model name.
func (s *Scripted) wordDelay(model string) time.Duration {
	if s.cfg.WordDelay > 0 {
		return s.cfg.WordDelay
	}
	switch {
	case strings.Contains(model, "instant"):
		return 0
	case strings.Contains(model, "slow"):
		return 500 * time.Millisecond
	case strings.Contains(model, "fast"):
		return 33 * time.Millisecond
	default:
		return 100 * time.Millisecond
	}
}

func (s *Scripted) toolLatency(model string) time.Duration {
	if strings.Contains(model, "instant") {
		return 0
	}
	return s.cfg.ToolLatency
}

// Stream starts the turn. Events stop early when ctx is cancelled.
func (s *Scripted) Stream(ctx context.Context, req *Request) (<-chan chat.StreamEvent, error) {
	if req == nil {
		return nil, fmt.Errorf("responder: nil request")
	}
	if !req.IsInit && strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("responder: empty message")
	}

	plan, err := s.plan(req)
	if err != nil {
		return nil, err
	}

	eventChan := make(chan chat.StreamEvent, 10)
	go func() {
		defer close(eventChan)
		s.run(ctx, req.Model, plan, eventChan)
	}()
	return eventChan, nil
}

// step is one unit of a planned turn: either text streamed word by word or a
// tool call followed by its result.
type step struct {
	text   string
	call   *chat.StreamEvent
	result *chat.StreamEvent
}

func (s *Scripted) plan(req *Request) ([]step, error) {
	if req.IsInit {
		return []step{{text: welcomeText(req.ScriptQuestions)}}, nil
	}

	msg := strings.ToLower(req.Message)
	var steps []step
	failing := strings.Contains(msg, "fail")

	switch {
	case strings.Contains(msg, "regenerate") && strings.Contains(msg, "idea"):
		call, err := chat.NewToolCallEvent(ToolRegenerateIdea, map[string]interface{}{"reason": req.Message})
		if err != nil {
			return nil, err
		}
		result, err := toolResult(ToolRegenerateIdea, !failing, "Idea regenerated", nil)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step{text: "Let me rethink this idea.", call: &call, result: &result})

	case strings.Contains(msg, "new script") || (strings.Contains(msg, "generate") && strings.Contains(msg, "script")):
		script := s.script()
		call, err := chat.NewToolCallEvent(ToolGenerateScript, map[string]interface{}{"topic": req.Message})
		if err != nil {
			return nil, err
		}
		result, err := toolResult(ToolGenerateScript, !failing, "Script generated", map[string]interface{}{"script": script})
		if err != nil {
			return nil, err
		}
		steps = append(steps, step{text: "Drafting a fresh script.", call: &call, result: &result})

	case strings.Contains(msg, "script"):
		script := s.script()
		call, err := chat.NewToolCallEvent(ToolUpdateScript, map[string]interface{}{"script": script})
		if err != nil {
			return nil, err
		}
		result, err := toolResult(ToolUpdateScript, !failing, "Script updated", nil)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step{text: "Updating your script now.", call: &call, result: &result})
	}

	steps = append(steps, step{text: s.generator.Sentence(5, 15) + " " + s.generator.Sentence(5, 15)})
	return steps, nil
}

func toolResult(name string, success bool, message string, extra map[string]interface{}) (chat.StreamEvent, error) {
	if success {
		return chat.NewToolResultEvent(name, true, message, "", extra)
	}
	return chat.NewToolResultEvent(name, false, "", name+" failed", nil)
}

func (s *Scripted) script() string {
	var sb strings.Builder
	for i := 0; i < 3; i++ {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(s.generator.Paragraph(2, 4))
	}
	return sb.String()
}

func welcomeText(questions []chat.ScriptQuestion) string {
	if len(questions) == 0 {
		return "Welcome to Undercurrent! Tell me about your video idea and I will help you shape the script."
	}
	return fmt.Sprintf("Welcome to Undercurrent! Thanks for answering %d questions. Ask me to update the script whenever you are ready.", len(questions))
}

func (s *Scripted) run(ctx context.Context, model string, plan []step, out chan<- chat.StreamEvent) {
	delay := s.wordDelay(model)
	failAfterWords := -1
	if strings.Contains(model, "error") {
		failAfterWords = 3
	}

	sent := 0
	for _, st := range plan {
		for _, word := range strings.Fields(st.text) {
			if failAfterWords >= 0 && sent >= failAfterWords {
				s.send(ctx, out, chat.NewErrorEvent("responder failed mid-stream"))
				return
			}
			if !s.send(ctx, out, chat.NewTextEvent(word+" ")) {
				return
			}
			sent++
			if !s.sleep(ctx, delay) {
				return
			}
		}

		if st.call != nil {
			if !s.send(ctx, out, *st.call) {
				return
			}
			if !s.sleep(ctx, s.toolLatency(model)) {
				return
			}
			if !s.send(ctx, out, *st.result) {
				return
			}
		}
	}
	s.send(ctx, out, chat.NewDoneEvent())
}

func (s *Scripted) send(ctx context.Context, out chan<- chat.StreamEvent, ev chat.StreamEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Scripted) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-s.cfg.Clock.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
