// Package runtime implements the flow engine: the state machine that walks a
// conversation through a flow graph, one customer message at a time.
//
// A turn is one call to HandleMessage. The engine resolves (or starts) the
// session for the conversation, applies node effects in sequence and follows
// edges until it reaches a hard step that must wait for customer input, or a
// terminal node, or the end of the graph. Everything the customer sees is
// pushed through the turn's stream.Emitter.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stackmint/botflow/internal/logging"
	"github.com/stackmint/botflow/internal/metrics"
	"github.com/stackmint/botflow/pkg/domain"
	"github.com/stackmint/botflow/pkg/ports"
	"github.com/stackmint/botflow/pkg/stream"
	"github.com/stackmint/botflow/pkg/template"
	"github.com/stackmint/botflow/pkg/toolexec"
)

// maxStepsPerTurn caps graph traversal within a single turn. A flow wired
// into a cycle of soft steps would otherwise never yield.
const maxStepsPerTurn = 64

// Engine drives flow sessions.
type Engine struct {
	flows    ports.FlowStore
	sessions ports.SessionStore
	tools    ports.ToolStore
	executor *toolexec.Executor
	attrs    ports.AttributeStore
	convs    ports.ConversationStore

	logger  *slog.Logger
	metrics *metrics.Metrics
	newID   func() string
	now     func() time.Time
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics wires the prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithIDGenerator overrides session ID generation (tests).
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine bound to its stores and the tool executor.
func NewEngine(
	flows ports.FlowStore,
	sessions ports.SessionStore,
	tools ports.ToolStore,
	executor *toolexec.Executor,
	attrs ports.AttributeStore,
	convs ports.ConversationStore,
	opts ...Option,
) *Engine {
	e := &Engine{
		flows:    flows,
		sessions: sessions,
		tools:    tools,
		executor: executor,
		attrs:    attrs,
		convs:    convs,
		logger:   logging.NewNop(),
		metrics:  metrics.NewNop(),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleMessage runs one conversation turn: it routes the inbound text to the
// session for the conversation (starting one via intent matching if none is
// active), advances the flow and emits the turn's events. The emitter is
// always terminated with endStream, whatever path the turn takes.
func (e *Engine) HandleMessage(ctx context.Context, conversationID, userID, text string, em *stream.Emitter) error {
	started := e.now()
	defer func() {
		e.metrics.TurnDuration.Observe(e.now().Sub(started).Seconds())
		em.End()
	}()

	sess, err := e.sessions.Load(ctx, conversationID)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		sess = nil
	case err != nil:
		return fmt.Errorf("failed to load session for conversation %s: %w", conversationID, err)
	case sess.Status == domain.SessionEnded:
		sess = nil
	}

	if sess == nil {
		return e.startSession(ctx, conversationID, userID, text, em)
	}
	return e.resumeSession(ctx, sess, text, em)
}

// startSession matches the inbound text against flow trigger phrases and, on
// a hit, roots a fresh session at the flow's start node.
func (e *Engine) startSession(ctx context.Context, conversationID, userID, text string, em *stream.Emitter) error {
	flow, err := e.matchIntent(ctx, text)
	if err != nil {
		return err
	}
	if flow == nil {
		e.logger.Debug("no flow matched inbound message", "conversation_id", conversationID)
		em.Emit(stream.Debug("noFlowMatched", map[string]any{"conversation_id": conversationID}))
		return nil
	}

	start, ok := flow.Start()
	if !ok {
		e.logger.Warn("matched flow has no start node", "flow_id", flow.ID)
		return nil
	}

	if err := e.flows.IncrementActivations(ctx, flow.ID); err != nil {
		e.logger.Warn("failed to increment flow activations", "flow_id", flow.ID, "err", err)
	}
	e.metrics.SessionsStarted.Inc()

	sess := domain.NewSession(userID, conversationID, flow.ID, start.ID)
	sess.ID = e.newID()

	e.logger.Info("session started", "session_id", sess.ID, "flow_id", flow.ID, "conversation_id", conversationID)
	em.Emit(stream.ConversationCreated(map[string]any{
		"conversation_id": conversationID,
		"session_id":      sess.ID,
		"flow_id":         flow.ID,
	}))

	return e.run(ctx, sess, flow, start, text, em)
}

// resumeSession feeds inbound text to a session suspended at a hard step. A
// session whose active node no longer exists ends quietly.
func (e *Engine) resumeSession(ctx context.Context, sess *domain.Session, text string, em *stream.Emitter) error {
	flow, err := e.flows.Get(ctx, sess.ActiveFlowID)
	if errors.Is(err, domain.ErrFlowNotFound) {
		e.logger.Info("active flow removed, ending session", "session_id", sess.ID, "flow_id", sess.ActiveFlowID)
		return e.endSession(ctx, sess)
	}
	if err != nil {
		return fmt.Errorf("failed to load flow %s: %w", sess.ActiveFlowID, err)
	}

	node, ok := flow.Node(sess.ActiveNodeID)
	if !ok {
		e.logger.Info("active node removed, ending session", "session_id", sess.ID, "node_id", sess.ActiveNodeID)
		return e.endSession(ctx, sess)
	}

	if node.Type != domain.NodeTypeCollectDetails {
		// A session only suspends at a hard step; anything else means the
		// graph changed underneath it.
		e.logger.Warn("session parked at non-collecting node, ending", "session_id", sess.ID, "node_type", node.Type)
		return e.endSession(ctx, sess)
	}

	return e.resumeCollect(ctx, sess, flow, node, text, em)
}

// matchIntent returns the first enabled flow with a trigger phrase contained
// (case-insensitively) in the inbound text.
func (e *Engine) matchIntent(ctx context.Context, text string) (*domain.Flow, error) {
	flows, err := e.flows.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, flow := range flows {
		if !flow.Enabled {
			continue
		}
		for _, phrase := range flow.TriggerPhrases {
			phrase = strings.ToLower(strings.TrimSpace(phrase))
			if phrase == "" {
				continue
			}
			if strings.Contains(normalized, phrase) {
				return flow, nil
			}
		}
	}
	return nil, nil
}

// run walks the graph from the given node until the turn suspends or ends.
// input is the inbound text that started or resumed the turn.
func (e *Engine) run(ctx context.Context, sess *domain.Session, flow *domain.Flow, node domain.Node, input string, em *stream.Emitter) error {
	for steps := 0; steps < maxStepsPerTurn; steps++ {
		sess.ActiveNodeID = node.ID

		next, outcome, err := e.applyNode(ctx, sess, flow, node, input, em)
		if err != nil {
			e.logger.Warn("node effect failed, ending session", "session_id", sess.ID, "node_id", node.ID, "err", err)
			return e.endSession(ctx, sess)
		}

		switch outcome {
		case outcomeSuspend:
			return e.sessions.Save(ctx, sess)
		case outcomeEnd:
			return e.endSession(ctx, sess)
		case outcomeSwitchFlow:
			switched, err := e.flows.Get(ctx, next.flowID)
			if err != nil {
				e.logger.Info("goToFlow target missing, ending session", "session_id", sess.ID, "flow_id", next.flowID)
				return e.endSession(ctx, sess)
			}
			start, ok := switched.Start()
			if !ok {
				return e.endSession(ctx, sess)
			}
			if err := e.flows.IncrementActivations(ctx, switched.ID); err != nil {
				e.logger.Warn("failed to increment flow activations", "flow_id", switched.ID, "err", err)
			}
			sess.ActiveFlowID = switched.ID
			flow = switched
			node = start
			continue
		}

		if next.nodeID == "" {
			// Graph exhausted: the flow completed.
			return e.endSession(ctx, sess)
		}
		target, ok := flow.Node(next.nodeID)
		if !ok {
			e.logger.Info("edge target missing, ending session", "session_id", sess.ID, "node_id", next.nodeID)
			return e.endSession(ctx, sess)
		}
		node = target
	}

	e.logger.Warn("step limit reached, ending session", "session_id", sess.ID, "flow_id", flow.ID)
	return e.endSession(ctx, sess)
}

// endSession marks the session ended and persists it.
func (e *Engine) endSession(ctx context.Context, sess *domain.Session) error {
	sess.End()
	e.metrics.SessionsEnded.Inc()
	if err := e.sessions.Save(ctx, sess); err != nil {
		return fmt.Errorf("failed to persist ended session %s: %w", sess.ID, err)
	}
	return nil
}

// replacerData assembles the variable resolution sources for one node: the
// session context (collected values and tool outputs) first, conversation
// attributes second. The turn's raw inbound text is layered on top as the
// ephemeral "input" variable; it never reaches the persisted context.
func (e *Engine) replacerData(ctx context.Context, sess *domain.Session, input string) template.Data {
	data := template.Data{Collected: sess.Context, Attributes: e.attributes(ctx, sess)}
	if input = strings.TrimSpace(input); input != "" {
		data = data.Merge(map[string]string{"input": input})
	}
	return data
}

// attributes snapshots the conversation's attribute store. Read failures
// degrade to an empty set rather than failing the turn.
func (e *Engine) attributes(ctx context.Context, sess *domain.Session) map[string]string {
	attrs, err := e.attrs.Attributes(ctx, sess.ConversationID)
	if err != nil {
		e.logger.Warn("failed to load conversation attributes", "conversation_id", sess.ConversationID, "err", err)
		return map[string]string{}
	}
	return attrs
}
