package chatstream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewdmason/undercurrent-sub000/internal/domain"
	"github.com/andrewdmason/undercurrent-sub000/internal/domain/models/chat"
)

// fakeTransport records turn requests and hands out bodies from open.
// A request is recorded after open returns, so once requests() reports it
// the body is ready to be written to.
type fakeTransport struct {
	mu   sync.Mutex
	reqs []chat.TurnRequest
	open func(ctx context.Context, req chat.TurnRequest) (io.ReadCloser, error)
}

func (f *fakeTransport) OpenStream(ctx context.Context, req chat.TurnRequest) (io.ReadCloser, error) {
	body, err := f.open(ctx, req)
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return body, err
}

func (f *fakeTransport) requests() []chat.TurnRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chat.TurnRequest(nil), f.reqs...)
}

func staticStream(frames ...string) func(context.Context, chat.TurnRequest) (io.ReadCloser, error) {
	return func(context.Context, chat.TurnRequest) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(strings.Join(frames, ""))), nil
	}
}

// pipeStream returns a body the test writes to. The body fails with the
// context error once ctx is done, like an HTTP response body.
func pipeStream(w **io.PipeWriter) func(context.Context, chat.TurnRequest) (io.ReadCloser, error) {
	return func(ctx context.Context, _ chat.TurnRequest) (io.ReadCloser, error) {
		pr, pw := io.Pipe()
		*w = pw
		go func() {
			<-ctx.Done()
			pw.CloseWithError(ctx.Err())
		}()
		return pr, nil
	}
}

// fakeLoader serves messages and counts reloads.
type fakeLoader struct {
	mu       sync.Mutex
	messages map[string][]chat.Message
	err      error
	calls    int
}

func (f *fakeLoader) GetMessages(ctx context.Context, chatID string) ([]chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.messages[chatID], nil
}

func (f *fakeLoader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestSession(t *testing.T, transport Transport, loader MessageLoader, hooks Hooks, clock clockwork.Clock) *Session {
	t.Helper()
	if clock == nil {
		clock = clockwork.NewFakeClock()
	}
	s, err := NewSession(SessionConfig{
		Transport: transport,
		Loader:    loader,
		Catalog:   testCatalog(t),
		Hooks:     hooks,
		Clock:     clock,
		Logger:    testLogger(),
	})
	require.NoError(t, err)
	return s
}

func persisted(id, role, content string) chat.Message {
	return chat.Message{ID: id, ChatID: "chat-1", Role: role, Content: content}
}

func TestSubmitTurn_TextDeltasAndSingleReload(t *testing.T) {
	loader := &fakeLoader{messages: map[string][]chat.Message{
		"chat-1": {
			persisted("m1", chat.RoleUser, "Hello"),
			persisted("m2", chat.RoleAssistant, "Hi there"),
		},
	}}

	var s *Session
	var sawOptimistic bool
	transport := &fakeTransport{}
	transport.open = func(ctx context.Context, req chat.TurnRequest) (io.ReadCloser, error) {
		for _, m := range s.Messages().Snapshot() {
			if m.IsTemporary() && m.Content == "Hello" {
				sawOptimistic = true
			}
		}
		return staticStream(
			frame(t, chat.NewTextEvent("Hi")),
			frame(t, chat.NewTextEvent(" there")),
			frame(t, chat.NewDoneEvent()),
		)(ctx, req)
	}

	var deltas []string
	s = newTestSession(t, transport, loader, Hooks{OnText: func(d string) { deltas = append(deltas, d) }}, nil)
	s.Messages().Activate("chat-1")

	result, err := s.SubmitTurn(context.Background(), TurnInput{ChatID: "chat-1", Text: "  Hello ", Model: "m1"})
	require.NoError(t, err)

	assert.True(t, sawOptimistic, "optimistic message must be visible before the stream opens")
	assert.Equal(t, "Hi there", result.Text)
	assert.Equal(t, []string{"Hi", " there"}, deltas)
	assert.True(t, result.Completed)
	assert.Equal(t, 1, loader.callCount())

	reqs := transport.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Hello", reqs[0].Text())
	assert.False(t, reqs[0].IsInit)
	assert.Equal(t, "m1", reqs[0].Model)

	// Reconciled list replaces the optimistic message
	messages := s.Messages().Snapshot()
	require.Len(t, messages, 2)
	assert.Equal(t, "m1", messages[0].ID)

	assert.Equal(t, StateIdle, s.State())
	_, streaming := s.Transient()
	assert.False(t, streaming)
}

func TestSubmitTurn_UnactivatedListAdoptsChat(t *testing.T) {
	reply := []chat.Message{
		persisted("m1", chat.RoleUser, "Hello"),
		persisted("m2", chat.RoleAssistant, "Hi"),
	}

	tests := []struct {
		name        string
		frames      []string
		wantErr     bool
		wantReloads int
		wantFinal   []string
	}{
		{
			name:        "success reconciles",
			frames:      []string{frame(t, chat.NewTextEvent("Hi")), frame(t, chat.NewDoneEvent())},
			wantReloads: 1,
			wantFinal:   []string{"m1", "m2"},
		},
		{
			name:      "error rolls back",
			frames:    []string{frame(t, chat.NewErrorEvent("boom"))},
			wantErr:   true,
			wantFinal: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := &fakeLoader{messages: map[string][]chat.Message{"chat-1": reply}}
			transport := &fakeTransport{open: staticStream(tt.frames...)}
			s := newTestSession(t, transport, loader, Hooks{}, nil)

			var changes [][]chat.Message
			s.Messages().OnChange(func(m []chat.Message) { changes = append(changes, m) })

			_, err := s.SubmitTurn(context.Background(), TurnInput{ChatID: "chat-1", Text: "Hello"})
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			require.NotEmpty(t, changes)
			require.Len(t, changes[0], 1)
			assert.True(t, changes[0][0].IsTemporary(), "optimistic message shown first")

			assert.Equal(t, "chat-1", s.Messages().ChatID())
			assert.Equal(t, tt.wantReloads, loader.callCount())

			ids := []string{}
			for _, m := range s.Messages().Snapshot() {
				ids = append(ids, m.ID)
			}
			assert.Equal(t, tt.wantFinal, ids)
		})
	}
}

func TestSubmitTurn_InitAdoptsChatAfterEmptyCheck(t *testing.T) {
	welcome := []chat.Message{persisted("m1", chat.RoleAssistant, "Welcome!")}
	loader := &fakeLoader{messages: map[string][]chat.Message{}}
	transport := &fakeTransport{}
	transport.open = func(ctx context.Context, req chat.TurnRequest) (io.ReadCloser, error) {
		loader.mu.Lock()
		loader.messages["chat-1"] = welcome
		loader.mu.Unlock()
		return staticStream(frame(t, chat.NewTextEvent("Welcome!")), frame(t, chat.NewDoneEvent()))(ctx, req)
	}
	s := newTestSession(t, transport, loader, Hooks{}, nil)

	_, err := s.SubmitTurn(context.Background(), TurnInput{ChatID: "chat-1", Init: true})
	require.NoError(t, err)

	// One load for the empty check, one reload after the stream
	assert.Equal(t, 2, loader.callCount())
	assert.Equal(t, welcome, s.Messages().Snapshot())
}

func TestSubmitTurn_ErrorEventRollsBack(t *testing.T) {
	loader := &fakeLoader{}
	transport := &fakeTransport{open: staticStream(
		frame(t, chat.NewTextEvent("partial")),
		frame(t, chat.NewErrorEvent("model overloaded")),
		frame(t, chat.NewTextEvent("never seen")),
	)}

	var notified []error
	s := newTestSession(t, transport, loader, Hooks{OnError: func(err error) { notified = append(notified, err) }}, nil)
	s.Messages().Activate("chat-1")
	s.Messages().Replace("chat-1", []chat.Message{persisted("m1", chat.RoleUser, "earlier")})

	result, err := s.SubmitTurn(context.Background(), TurnInput{ChatID: "chat-1", Text: "Shorten the hook"})
	assert.Nil(t, result)

	var protocolErr *domain.ProtocolError
	require.ErrorAs(t, err, &protocolErr)
	assert.Equal(t, "model overloaded", protocolErr.Message)

	messages := s.Messages().Snapshot()
	require.Len(t, messages, 1)
	assert.Equal(t, "m1", messages[0].ID)

	assert.Zero(t, loader.callCount())
	assert.Len(t, notified, 1)
	assert.Equal(t, StateIdle, s.State())
}

func TestSubmitTurn_TransportErrorRollsBack(t *testing.T) {
	loader := &fakeLoader{}
	transport := &fakeTransport{open: func(context.Context, chat.TurnRequest) (io.ReadCloser, error) {
		return nil, &domain.TransportError{Status: 503, Message: "unavailable"}
	}}

	s := newTestSession(t, transport, loader, Hooks{}, nil)
	s.Messages().Activate("chat-1")

	_, err := s.SubmitTurn(context.Background(), TurnInput{ChatID: "chat-1", Text: "hi"})

	var transportErr *domain.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, 503, transportErr.StatusCode())
	assert.True(t, domain.IsFatalStreamError(err))
	assert.Zero(t, s.Messages().Len())
	assert.Zero(t, loader.callCount())
	assert.Len(t, transport.requests(), 1, "no retry")
}

func TestSubmitTurn_ReadErrorIsTransportError(t *testing.T) {
	boom := errors.New("connection reset by peer")
	transport := &fakeTransport{open: func(context.Context, chat.TurnRequest) (io.ReadCloser, error) {
		return io.NopCloser(io.MultiReader(
			strings.NewReader(frame(t, chat.NewTextEvent("Hi"))),
			&failingReader{err: boom},
		)), nil
	}}

	s := newTestSession(t, transport, &fakeLoader{}, Hooks{}, nil)
	s.Messages().Activate("chat-1")

	_, err := s.SubmitTurn(context.Background(), TurnInput{ChatID: "chat-1", Text: "hi"})

	var transportErr *domain.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, s.Messages().Len())
}

type failingReader struct{ err error }

func (r *failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestSubmitTurn_MalformedAndUnknownFramesAreSkipped(t *testing.T) {
	loader := &fakeLoader{}
	transport := &fakeTransport{open: staticStream(
		frame(t, chat.NewTextEvent("a")),
		"data: {\"type\":\"text\",\"content\":\"trunc\n\n",
		"data: {\"type\":\"unknown_future_type\"}\n\n",
		": keepalive\n\n",
		frame(t, chat.NewTextEvent("b")),
		frame(t, chat.NewDoneEvent()),
	)}

	s := newTestSession(t, transport, loader, Hooks{}, nil)
	s.Messages().Activate("chat-1")

	result, err := s.SubmitTurn(context.Background(), TurnInput{ChatID: "chat-1", Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ab", result.Text)
	assert.Equal(t, 1, result.SkippedFrames)
	assert.Equal(t, 1, loader.callCount())
}

func TestSubmitTurn_StreamEndingWithoutDoneStillReconciles(t *testing.T) {
	loader := &fakeLoader{}
	transport := &fakeTransport{open: staticStream(
		frame(t, chat.NewTextEvent("cut")),
		"data: {\"type\":\"text\",\"content\":\"dangling",
	)}

	s := newTestSession(t, transport, loader, Hooks{}, nil)
	s.Messages().Activate("chat-1")

	result, err := s.SubmitTurn(context.Background(), TurnInput{ChatID: "chat-1", Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "cut", result.Text)
	assert.False(t, result.Completed)
	assert.Equal(t, 1, loader.callCount())
}

func TestSubmitTurn_ReloadFailureKeepsOptimisticMessage(t *testing.T) {
	loader := &fakeLoader{err: errors.New("storage down")}
	transport := &fakeTransport{open: staticStream(frame(t, chat.NewDoneEvent()))}

	s := newTestSession(t, transport, loader, Hooks{}, nil)
	s.Messages().Activate("chat-1")

	result, err := s.SubmitTurn(context.Background(), TurnInput{ChatID: "chat-1", Text: "hi"})
	require.Error(t, err)
	require.NotNil(t, result)

	messages := s.Messages().Snapshot()
	require.Len(t, messages, 1)
	assert.True(t, messages[0].IsTemporary())
	assert.Equal(t, StateIdle, s.State())
}

func TestSubmitTurn_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input TurnInput
	}{
		{name: "blank text", input: TurnInput{ChatID: "chat-1", Text: "   "}},
		{name: "missing chat", input: TurnInput{Text: "hi"}},
		{name: "too long", input: TurnInput{ChatID: "chat-1", Text: strings.Repeat("x", 20001)}},
		{name: "model too long", input: TurnInput{ChatID: "chat-1", Text: "hi", Model: strings.Repeat("m", 256)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &fakeTransport{open: staticStream(frame(t, chat.NewDoneEvent()))}
			s := newTestSession(t, transport, &fakeLoader{}, Hooks{}, nil)

			_, err := s.SubmitTurn(context.Background(), tt.input)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Empty(t, transport.requests())
		})
	}
}

func TestSubmitTurn_RejectsWhileStreaming(t *testing.T) {
	var w *io.PipeWriter
	transport := &fakeTransport{open: pipeStream(&w)}
	loader := &fakeLoader{}
	s := newTestSession(t, transport, loader, Hooks{}, nil)
	s.Messages().Activate("chat-1")

	done := make(chan error, 1)
	go func() {
		_, err := s.SubmitTurn(context.Background(), TurnInput{ChatID: "chat-1", Text: "first"})
		done <- err
	}()

	require.Eventually(t, func() bool { return len(transport.requests()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, StateStreaming, s.State())

	_, err := s.SubmitTurn(context.Background(), TurnInput{ChatID: "chat-1", Text: "second"})
	assert.ErrorIs(t, err, domain.ErrTurnInFlight)

	_, err = w.Write([]byte(frame(t, chat.NewTextEvent("streaming"))))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		snap, ok := s.Transient()
		return ok && snap.Text == "streaming"
	}, time.Second, time.Millisecond)

	_, err = w.Write([]byte(frame(t, chat.NewDoneEvent())))
	require.NoError(t, err)
	require.NoError(t, <-done)

	assert.Len(t, transport.requests(), 1)
	assert.Equal(t, StateIdle, s.State())
}

func TestSubmitTurn_Cancellation(t *testing.T) {
	var w *io.PipeWriter
	transport := &fakeTransport{open: pipeStream(&w)}
	loader := &fakeLoader{}

	var notified int
	s := newTestSession(t, transport, loader, Hooks{OnError: func(error) { notified++ }}, nil)
	s.Messages().Activate("chat-1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.SubmitTurn(ctx, TurnInput{ChatID: "chat-1", Text: "hi"})
		done <- err
	}()

	require.Eventually(t, func() bool { return len(transport.requests()) == 1 }, time.Second, time.Millisecond)
	_, err := w.Write([]byte(frame(t, chat.NewTextEvent("half"))))
	require.NoError(t, err)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Zero(t, notified)
	assert.Zero(t, s.Messages().Len())
	assert.Zero(t, loader.callCount())
	assert.Equal(t, StateIdle, s.State())
}

func TestSubmitTurn_UpdateScriptScenario(t *testing.T) {
	fc := clockwork.NewFakeClock()
	var w *io.PipeWriter
	transport := &fakeTransport{open: pipeStream(&w)}

	rec := &recorder{}
	hooks := rec.hooks()
	started := make(chan struct{}, 1)
	onStart := hooks.OnToolCallStart
	hooks.OnToolCallStart = func(name string) {
		onStart(name)
		started <- struct{}{}
	}

	s := newTestSession(t, transport, &fakeLoader{}, hooks, fc)
	s.Messages().Activate("chat-1")

	done := make(chan *TurnResult, 1)
	go func() {
		result, err := s.SubmitTurn(context.Background(), TurnInput{ChatID: "chat-1", Text: "Shorten the hook"})
		assert.NoError(t, err)
		done <- result
	}()

	require.Eventually(t, func() bool { return len(transport.requests()) == 1 }, time.Second, time.Millisecond)

	call, err := chat.NewToolCallEvent("update_script", map[string]string{"script": "Stop scrolling. Watch this."})
	require.NoError(t, err)
	_, err = w.Write([]byte(frame(t, call)))
	require.NoError(t, err)

	<-started
	assert.Equal(t, []string{"start:update_script"}, rec.calls)

	fc.Advance(1200 * time.Millisecond)

	result, err := chat.NewToolResultEvent("update_script", true, "Script updated", "", nil)
	require.NoError(t, err)
	_, err = w.Write([]byte(frame(t, result) + frame(t, chat.NewDoneEvent())))
	require.NoError(t, err)

	turn := <-done
	require.NotNil(t, turn)
	assert.Equal(t, []string{"start:update_script", "end:update_script", "script"}, rec.calls)
	assert.Equal(t, []string{"Stop scrolling. Watch this."}, rec.scripts)

	require.Len(t, turn.ToolResults, 1)
	assert.Equal(t, 1200*time.Millisecond, turn.ToolResults[0].DeliveredAt.Sub(turn.ToolCalls[0].PendingSince))
}

func TestSubmitTurn_InitTurnSentOnce(t *testing.T) {
	var w *io.PipeWriter
	transport := &fakeTransport{open: pipeStream(&w)}
	s := newTestSession(t, transport, &fakeLoader{}, Hooks{}, nil)
	s.Messages().Activate("chat-1")

	first := make(chan error, 1)
	go func() {
		_, err := s.SubmitTurn(context.Background(), TurnInput{ChatID: "chat-1", Init: true})
		first <- err
	}()
	require.Eventually(t, func() bool { return len(transport.requests()) == 1 }, time.Second, time.Millisecond)

	// Duplicate construction racing the first init
	_, err := s.SubmitTurn(context.Background(), TurnInput{ChatID: "chat-1", Init: true})
	assert.Error(t, err)

	_, err = w.Write([]byte(frame(t, chat.NewTextEvent("Welcome!")) + frame(t, chat.NewDoneEvent())))
	require.NoError(t, err)
	require.NoError(t, <-first)

	_, err = s.SubmitTurn(context.Background(), TurnInput{ChatID: "chat-1", Init: true})
	assert.ErrorIs(t, err, domain.ErrInitAlreadySent)

	reqs := transport.requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].IsInit)
	assert.Nil(t, reqs[0].Message)
	assert.Zero(t, s.Messages().Len(), "init turns add no optimistic message")
}

func TestSubmitTurn_InitRequiresEmptyChat(t *testing.T) {
	transport := &fakeTransport{open: staticStream(frame(t, chat.NewDoneEvent()))}

	t.Run("from the visible list", func(t *testing.T) {
		s := newTestSession(t, transport, &fakeLoader{}, Hooks{}, nil)
		s.Messages().Activate("chat-1")
		s.Messages().Replace("chat-1", []chat.Message{persisted("m1", chat.RoleAssistant, "Welcome")})

		_, err := s.SubmitTurn(context.Background(), TurnInput{ChatID: "chat-1", Init: true})
		assert.ErrorIs(t, err, ErrChatNotEmpty)
	})

	t.Run("from storage", func(t *testing.T) {
		loader := &fakeLoader{messages: map[string][]chat.Message{
			"chat-1": {persisted("m1", chat.RoleAssistant, "Welcome")},
		}}
		s := newTestSession(t, transport, loader, Hooks{}, nil)

		_, err := s.SubmitTurn(context.Background(), TurnInput{ChatID: "chat-1", Init: true})
		assert.ErrorIs(t, err, ErrChatNotEmpty)
		assert.Equal(t, 1, loader.callCount())
	})

	assert.Empty(t, transport.requests())
}

func TestTurnRun_UnknownEventLeavesStateUntouched(t *testing.T) {
	transient := newTransientTurn()
	transient.appendText("so far")
	rec := &recorder{}
	hooks := rec.hooks()
	run := &turnRun{
		transient: transient,
		tools:     newToolCallController(clockwork.NewFakeClock(), DefaultMinPending, testCatalog(t), &hooks, transient, testLogger()),
		hooks:     &hooks,
		logger:    testLogger(),
	}

	before := transient.snapshot()
	require.NoError(t, run.handleFrame(context.Background(), `data: {"type":"unknown_future_type"}`))
	assert.Equal(t, before, transient.snapshot())
	assert.Empty(t, rec.calls)
	assert.Zero(t, run.skipped)
}

func TestNewSession_Requires(t *testing.T) {
	_, err := NewSession(SessionConfig{Loader: &fakeLoader{}, Logger: testLogger()})
	assert.Error(t, err)

	_, err = NewSession(SessionConfig{Transport: &fakeTransport{}, Logger: testLogger()})
	assert.Error(t, err)

	_, err = NewSession(SessionConfig{Transport: &fakeTransport{}, Loader: &fakeLoader{}, Logger: testLogger(), MinPending: -time.Second})
	assert.Error(t, err)

	s, err := NewSession(SessionConfig{Transport: &fakeTransport{}, Loader: &fakeLoader{}, Logger: testLogger()})
	require.NoError(t, err)
	assert.Equal(t, DefaultMinPending, s.minPending)
}
