package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/andrewdmason/undercurrent-sub000/internal/chatstream"
	"github.com/andrewdmason/undercurrent-sub000/internal/domain"
	"github.com/andrewdmason/undercurrent-sub000/internal/domain/models/chat"
)

var (
	chatModel     string
	chatNew       bool
	chatQuestions []string
)

func GetChatCommand() *cobra.Command {
	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Open an interactive chat",
		Long: `Opens your most recent chat, or creates one, and starts a prompt.
An empty chat is greeted with a welcome message.

Commands inside the chat:
  /clear          start over in a new chat
  /model <id>     switch the model of this chat
  /tokens         show the running token total
  /quit           leave

Press Ctrl-C while a reply is streaming to cancel it.`,
		Args: cobra.NoArgs,
		RunE: runChat,
	}

	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "Model for chats created by this session (defaults to DEFAULT_MODEL)")
	chatCmd.Flags().BoolVar(&chatNew, "new", false, "Start in a new chat instead of the most recent one")
	chatCmd.Flags().StringArrayVarP(&chatQuestions, "qa", "q", nil, `Onboarding answer sent with the welcome turn, as "question=answer" (repeatable)`)
	return chatCmd
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	questions, err := parseScriptQuestions(chatQuestions)
	if err != nil {
		return err
	}
	model := chatModel
	if model == "" {
		model = a.cfg.DefaultModel
	}

	r := newRenderer(os.Stdout)
	session, err := chatstream.NewSession(chatstream.SessionConfig{
		Transport:  chatstream.NewHTTPTransport(a.cfg.APIBaseURL, a.cfg.OwnerID, a.streamClient(), a.logger),
		Loader:     a.client,
		Hooks:      r.hooks(),
		MinPending: a.cfg.ToolMinPending,
		Logger:     a.logger,
	})
	if err != nil {
		return err
	}

	conv, err := chatstream.NewConversation(chatstream.ConversationConfig{
		Store:           a.client,
		Session:         session,
		OwnerID:         a.cfg.OwnerID,
		Model:           model,
		ScriptQuestions: questions,
		Logger:          a.logger,
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if chatNew {
		err = conv.Clear(ctx)
	} else {
		err = conv.Open(ctx)
	}
	r.endTurn()
	if err != nil {
		return fmt.Errorf("open chat: %w", err)
	}

	return runREPL(ctx, conv, r, os.Stdin)
}

// parseScriptQuestions reads "question=answer" pairs.
func parseScriptQuestions(pairs []string) ([]chat.ScriptQuestion, error) {
	questions := make([]chat.ScriptQuestion, 0, len(pairs))
	for _, pair := range pairs {
		q, a, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(q) == "" {
			return nil, fmt.Errorf("invalid --qa value %q, want question=answer", pair)
		}
		questions = append(questions, chat.ScriptQuestion{
			Question: strings.TrimSpace(q),
			Answer:   strings.TrimSpace(a),
		})
	}
	return questions, nil
}

// runREPL reads user lines from in until /quit or EOF.
func runREPL(ctx context.Context, conv *chatstream.Conversation, r *renderer, in io.Reader) error {
	r.header(conv)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	for {
		r.prompt()
		if !scanner.Scan() {
			r.println("")
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := runCommand(ctx, conv, r, line)
			if err != nil {
				r.failure(err)
			}
			if quit {
				return nil
			}
			continue
		}

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt)
		turnCtx, stop := interruptible(ctx, conv.InFlight, r, sigs)
		_, err := conv.Send(turnCtx, line)
		signal.Stop(sigs)
		stop()
		r.endTurn()

		switch {
		case err == nil:
			r.tokens(conv.TotalTokens())
		case errors.Is(err, context.Canceled):
			r.notice("reply cancelled")
		case domain.IsFatalStreamError(err):
			// already reported through OnError
		default:
			r.failure(err)
		}
	}
}

// interruptible derives a turn context that is cancelled on the first value
// from sigs. A turn still streaming at that point is summarised first.
func interruptible(
	ctx context.Context,
	inFlight func() (chatstream.TransientSnapshot, bool),
	r *renderer,
	sigs <-chan os.Signal,
) (context.Context, context.CancelFunc) {
	turnCtx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-sigs:
			if snap, ok := inFlight(); ok {
				r.interrupted(snap)
			}
			cancel()
		case <-turnCtx.Done():
		}
	}()
	return turnCtx, cancel
}

// runCommand handles a slash command. It reports whether the REPL should end.
func runCommand(ctx context.Context, conv *chatstream.Conversation, r *renderer, line string) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true, nil

	case "/clear":
		err := conv.Clear(ctx)
		r.endTurn()
		if err != nil {
			return false, err
		}
		r.header(conv)

	case "/model":
		if arg == "" {
			r.notice("model: " + conv.Model())
			return false, nil
		}
		if err := conv.SwitchModel(ctx, arg); err != nil {
			return false, err
		}
		r.success("now using " + arg)

	case "/tokens":
		r.tokens(conv.TotalTokens())

	case "/help":
		r.println("/clear  /model <id>  /tokens  /quit")

	default:
		r.notice("unknown command " + name + ", try /help")
	}
	return false, nil
}

// renderer prints the conversation and the session hooks to the terminal.
type renderer struct {
	mu      sync.Mutex
	out     io.Writer
	midLine bool
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out}
}

func (r *renderer) hooks() chatstream.Hooks {
	return chatstream.Hooks{
		OnText: func(delta string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			if !r.midLine {
				fmt.Fprint(r.out, color.MagentaString("assistant › "))
				r.midLine = true
			}
			fmt.Fprint(r.out, delta)
		},
		OnToolCallStart: func(name string) {
			r.line(color.YellowString("⋯ %s running", name))
		},
		OnToolCallEnd: func(name string) {
			r.line(color.GreenString("✓ %s finished", name))
		},
		OnScriptUpdate: func(content string) {
			r.line(color.CyanString("── script updated ──") + "\n" + content + "\n" + color.CyanString("────────────────────"))
		},
		OnIdeaRegenerate: func() {
			r.line(color.CyanString("✦ idea regenerated"))
		},
		OnDataRefresh: func() {
			r.line(color.New(color.Faint).Sprint("(data refreshed)"))
		},
		OnError: func(err error) {
			r.line(color.RedString("✗ %v", err))
		},
	}
}

// line prints text on a line of its own.
func (r *renderer) line(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.midLine {
		fmt.Fprintln(r.out)
		r.midLine = false
	}
	fmt.Fprintln(r.out, text)
}

func (r *renderer) println(text string) {
	r.line(text)
}

func (r *renderer) endTurn() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.midLine {
		fmt.Fprintln(r.out)
		r.midLine = false
	}
}

func (r *renderer) prompt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprint(r.out, color.BlueString("you › "))
}

func (r *renderer) header(conv *chatstream.Conversation) {
	c := conv.Chat()
	if c == nil {
		return
	}
	r.line(color.New(color.Faint).Sprintf("chat %s · model %s · %d tokens", c.ID, conv.Model(), conv.TotalTokens()))
}

func (r *renderer) tokens(n int) {
	r.line(color.New(color.Faint).Sprintf("[%d tokens]", n))
}

func (r *renderer) notice(text string) {
	r.line(color.YellowString("%s", text))
}

func (r *renderer) interrupted(snap chatstream.TransientSnapshot) {
	pending := len(snap.ToolCalls)
	for _, res := range snap.ToolResults {
		if res.Matched {
			pending--
		}
	}
	r.line(color.YellowString("interrupted after %d characters, %d tool call(s) still pending",
		utf8.RuneCountInString(snap.Text), max(pending, 0)))
}

func (r *renderer) success(text string) {
	r.line(color.GreenString("✓ %s", text))
}

func (r *renderer) failure(err error) {
	r.line(color.RedString("✗ %v", err))
}
