package chatstream

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/andrewdmason/undercurrent-sub000/internal/domain/models/chat"
)

// DefaultMinPending is how long every tool call stays visibly pending.
const DefaultMinPending = 800 * time.Millisecond

// toolCallController drives the tool-call lifecycle of one turn:
// Announced -> Resolving -> Resolved.
//
// Results are matched to calls by name. Calls sharing a name are kept in
// announcement order and a result resolves the oldest pending one, so side
// effects always read the arguments of the call the result belongs to.
type toolCallController struct {
	clock      clockwork.Clock
	minPending time.Duration
	catalog    *EffectCatalog
	hooks      *Hooks
	transient  *transientTurn
	logger     *slog.Logger

	pending   map[string][]ToolCallRecord
	announced map[string]int
}

func newToolCallController(clock clockwork.Clock, minPending time.Duration, catalog *EffectCatalog, hooks *Hooks, transient *transientTurn, logger *slog.Logger) *toolCallController {
	return &toolCallController{
		clock:      clock,
		minPending: minPending,
		catalog:    catalog,
		hooks:      hooks,
		transient:  transient,
		logger:     logger,
		pending:    make(map[string][]ToolCallRecord),
		announced:  make(map[string]int),
	}
}

// announce records a tool_call and fires OnToolCallStart.
func (c *toolCallController) announce(ev chat.StreamEvent) {
	rec := ToolCallRecord{
		Name:         ev.Name,
		Ordinal:      c.announced[ev.Name],
		Arguments:    ev.Arguments,
		PendingSince: c.clock.Now(),
	}
	c.announced[ev.Name]++
	c.pending[ev.Name] = append(c.pending[ev.Name], rec)

	c.transient.addToolCall(rec)
	c.logger.Debug("tool call announced", "tool", rec.Name, "ordinal", rec.Ordinal)
	c.hooks.toolCallStart(rec.Name)
}

// resolve delivers a tool_result. It blocks until the matching call has been
// pending for at least minPending, then appends the result, fires
// OnToolCallEnd and applies the tool's side effect.
//
// A result with no pending call of that name is recorded and logged, but no
// hook or side effect runs for it. Only ctx cancellation returns an error.
func (c *toolCallController) resolve(ctx context.Context, ev chat.StreamEvent) error {
	result := chat.ToolResult{}
	if ev.Result != nil {
		result = *ev.Result
	}

	queue := c.pending[ev.Name]
	if len(queue) == 0 {
		c.logger.Warn("tool result without matching tool call", "tool", ev.Name)
		c.transient.addToolResult(ToolResultRecord{
			Name:        ev.Name,
			Ordinal:     -1,
			Result:      result,
			DeliveredAt: c.clock.Now(),
		})
		return nil
	}

	call := queue[0]
	if len(queue) == 1 {
		delete(c.pending, ev.Name)
	} else {
		c.pending[ev.Name] = queue[1:]
	}

	if wait := c.minPending - c.clock.Since(call.PendingSince); wait > 0 {
		c.logger.Debug("holding tool result", "tool", call.Name, "wait", wait)
		select {
		case <-c.clock.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.transient.addToolResult(ToolResultRecord{
		Name:        call.Name,
		Ordinal:     call.Ordinal,
		Result:      result,
		Matched:     true,
		DeliveredAt: c.clock.Now(),
	})
	c.hooks.toolCallEnd(call.Name)

	c.applyEffect(call, &result)
	return nil
}

// pendingCount returns the number of announced but unresolved calls.
func (c *toolCallController) pendingCount() int {
	n := 0
	for _, queue := range c.pending {
		n += len(queue)
	}
	return n
}

// applyEffect runs the catalog side effect of a resolved call. Failures are
// logged and never abort the turn.
func (c *toolCallController) applyEffect(call ToolCallRecord, result *chat.ToolResult) {
	if c.catalog == nil {
		return
	}
	effect, ok := c.catalog.Lookup(call.Name)
	if !ok {
		return
	}
	if !effect.Applies(result) {
		c.logger.Debug("tool effect skipped", "tool", call.Name, "success", result.Success)
		return
	}

	switch effect.Effect {
	case EffectScriptUpdate:
		content, err := effect.ScriptContent(call.Arguments, result)
		if err != nil {
			c.logger.Warn("failed to apply tool effect",
				"tool", call.Name,
				"ordinal", call.Ordinal,
				"error", err,
			)
			return
		}
		c.hooks.scriptUpdate(content)
	case EffectIdeaRegenerate:
		c.hooks.ideaRegenerate()
		c.hooks.dataRefresh()
	}
}
