package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/stackmint/botflow/pkg/domain"
	"github.com/stackmint/botflow/pkg/stream"
	"github.com/stackmint/botflow/pkg/template"
	"github.com/stackmint/botflow/pkg/toolexec"
)

// stepOutcome tells the run loop what to do after a node effect.
type stepOutcome int

const (
	// outcomeContinue follows the edge in nextStep.nodeID.
	outcomeContinue stepOutcome = iota
	// outcomeSuspend persists the session at the current node and yields the
	// turn; the next customer message resumes here.
	outcomeSuspend
	// outcomeEnd terminates the session.
	outcomeEnd
	// outcomeSwitchFlow re-roots the session at nextStep.flowID's start node.
	outcomeSwitchFlow
)

// nextStep addresses where control goes after a node.
type nextStep struct {
	nodeID string
	flowID string
}

func childOf(flow *domain.Flow, node domain.Node) nextStep {
	if child, ok := flow.ChildOf(node.ID); ok {
		return nextStep{nodeID: child.ID}
	}
	return nextStep{}
}

// applyNode applies one node's effect and resolves the outgoing edge.
func (e *Engine) applyNode(ctx context.Context, sess *domain.Session, flow *domain.Flow, node domain.Node, input string, em *stream.Emitter) (nextStep, stepOutcome, error) {
	switch node.Type {
	case domain.NodeTypeStart:
		return childOf(flow, node), outcomeContinue, nil

	case domain.NodeTypeMessage, domain.NodeTypeButtons, domain.NodeTypeCards:
		payload, err := domain.DecodePayload[domain.MessagePayload](node)
		if err != nil {
			return nextStep{}, outcomeEnd, err
		}
		if err := e.emitMessage(ctx, sess, payload, input, em); err != nil {
			return nextStep{}, outcomeEnd, err
		}
		return childOf(flow, node), outcomeContinue, nil

	case domain.NodeTypeTool:
		return e.applyTool(ctx, sess, flow, node, input, em)

	case domain.NodeTypeBranch:
		payload, err := domain.DecodePayload[domain.BranchPayload](node)
		if err != nil {
			return nextStep{}, outcomeEnd, err
		}
		attrs := e.attributes(ctx, sess)
		if target := evaluateBranch(payload, sess.Context, attrs); target != "" {
			return nextStep{nodeID: target}, outcomeContinue, nil
		}
		return nextStep{}, outcomeEnd, nil

	case domain.NodeTypeCollectDetails:
		return e.applyCollect(ctx, sess, flow, node, input, em)

	case domain.NodeTypeSetAttribute:
		payload, err := domain.DecodePayload[domain.SetAttributePayload](node)
		if err != nil {
			return nextStep{}, outcomeEnd, err
		}
		value := template.Replace(payload.Value, e.replacerData(ctx, sess, input))
		if err := e.attrs.SetAttribute(ctx, sess.ConversationID, payload.Key, value); err != nil {
			e.logger.Warn("failed to set attribute", "conversation_id", sess.ConversationID, "key", payload.Key, "err", err)
		}
		return childOf(flow, node), outcomeContinue, nil

	case domain.NodeTypeAddTags:
		payload, err := domain.DecodePayload[domain.AddTagsPayload](node)
		if err != nil {
			return nextStep{}, outcomeEnd, err
		}
		if err := e.attrs.AddTags(ctx, sess.ConversationID, payload.Tags); err != nil {
			e.logger.Warn("failed to add tags", "conversation_id", sess.ConversationID, "err", err)
		}
		return childOf(flow, node), outcomeContinue, nil

	case domain.NodeTypeTransfer:
		payload, err := domain.DecodePayload[domain.TransferPayload](node)
		if err != nil {
			return nextStep{}, outcomeEnd, err
		}
		if payload.Message != "" {
			if err := e.emitMessage(ctx, sess, domain.MessagePayload{Content: payload.Message}, input, em); err != nil {
				return nextStep{}, outcomeEnd, err
			}
		}
		em.Emit(stream.Debug("transfer", map[string]any{"team_id": payload.TeamID}))
		return nextStep{}, outcomeEnd, nil

	case domain.NodeTypeCloseConversation:
		return nextStep{}, outcomeEnd, nil

	case domain.NodeTypeGoToStep:
		payload, err := domain.DecodePayload[domain.GoToStepPayload](node)
		if err != nil {
			return nextStep{}, outcomeEnd, err
		}
		return nextStep{nodeID: payload.TargetID}, outcomeContinue, nil

	case domain.NodeTypeGoToFlow:
		payload, err := domain.DecodePayload[domain.GoToFlowPayload](node)
		if err != nil {
			return nextStep{}, outcomeEnd, err
		}
		return nextStep{flowID: payload.FlowID}, outcomeSwitchFlow, nil

	default:
		return nextStep{}, outcomeEnd, fmt.Errorf("unknown node type %q on node %s", node.Type, node.ID)
	}
}

// applyTool runs the node's tool and merges the response into session
// context. Failures are never fatal: control moves to the configured error
// target, or past the node with a structured error payload in context.
func (e *Engine) applyTool(ctx context.Context, sess *domain.Session, flow *domain.Flow, node domain.Node, input string, em *stream.Emitter) (nextStep, stepOutcome, error) {
	payload, err := domain.DecodePayload[domain.ToolPayload](node)
	if err != nil {
		return nextStep{}, outcomeEnd, err
	}

	prefix := domain.ContextNamespaceTool + "." + payload.ToolID + "."

	tool, err := e.tools.Get(ctx, payload.ToolID)
	if err != nil {
		e.logger.Warn("tool node references missing tool", "node_id", node.ID, "tool_id", payload.ToolID, "err", err)
		return e.toolFailure(sess, flow, node, payload, prefix, http.StatusNotFound, err.Error()), outcomeContinue, nil
	}

	resp, err := e.executor.Execute(ctx, tool, e.replacerData(ctx, sess, input), true)
	if err != nil {
		code := http.StatusBadGateway
		var callErr *toolexec.CallError
		if errors.As(err, &callErr) && callErr.StatusCode != 0 {
			code = callErr.StatusCode
		}
		em.Emit(stream.Debug("toolError", map[string]any{"tool_id": payload.ToolID, "code": code}))
		return e.toolFailure(sess, flow, node, payload, prefix, code, err.Error()), outcomeContinue, nil
	}

	sess.Set(prefix+"response", resp.Body)
	mergeSchemaProperties(sess, prefix, tool.Schema, resp.Body)
	return childOf(flow, node), outcomeContinue, nil
}

// toolFailure records the structured error payload in context and resolves
// where control continues: the node's error target if configured, otherwise
// the ordinary downstream edge.
func (e *Engine) toolFailure(sess *domain.Session, flow *domain.Flow, node domain.Node, payload domain.ToolPayload, prefix string, code int, message string) nextStep {
	sess.Set(prefix+"response", toolexec.ErrorBody(code, message))
	sess.Set(prefix+"status", "error")
	if payload.ErrorTargetID != "" {
		return nextStep{nodeID: payload.ErrorTargetID}
	}
	return childOf(flow, node)
}

// mergeSchemaProperties projects the response body onto the tool's inferred
// schema: each property's first concrete instance lands in session context
// under the tool's namespace, keyed by the schema path.
func mergeSchemaProperties(sess *domain.Session, prefix string, schema *domain.ResponseSchema, body string) {
	if schema == nil {
		return
	}
	for _, prop := range schema.Properties {
		value := gjson.Get(body, gjsonPath(prop.Path))
		if !value.Exists() {
			continue
		}
		sess.Set(prefix+prop.Path, value.String())
	}
}

// gjsonPath converts a schema property path into a gjson lookup addressing
// the first element of every array stride.
func gjsonPath(path string) string {
	path = strings.ReplaceAll(path, "[root]", "")
	path = strings.ReplaceAll(path, ".[*]", ".0")
	return strings.TrimPrefix(path, ".")
}

// applyCollect requests the first still-missing field and suspends, or passes
// through once every field has been collected.
func (e *Engine) applyCollect(ctx context.Context, sess *domain.Session, flow *domain.Flow, node domain.Node, input string, em *stream.Emitter) (nextStep, stepOutcome, error) {
	payload, err := domain.DecodePayload[domain.CollectDetailsPayload](node)
	if err != nil {
		return nextStep{}, outcomeEnd, err
	}

	field, pending := pendingField(payload, sess)
	if !pending {
		return childOf(flow, node), outcomeContinue, nil
	}

	if err := e.emitMessage(ctx, sess, domain.MessagePayload{Content: field.Prompt}, input, em); err != nil {
		return nextStep{}, outcomeEnd, err
	}
	return nextStep{}, outcomeSuspend, nil
}

// resumeCollect stores the inbound text as the pending field's value, then
// either prompts for the next field or advances past the node.
func (e *Engine) resumeCollect(ctx context.Context, sess *domain.Session, flow *domain.Flow, node domain.Node, text string, em *stream.Emitter) error {
	payload, err := domain.DecodePayload[domain.CollectDetailsPayload](node)
	if err != nil {
		return e.endSession(ctx, sess)
	}

	if field, pending := pendingField(payload, sess); pending {
		sess.Set(domain.ContextNamespaceCollected+"."+field.Name, strings.TrimSpace(text))
	}

	if field, pending := pendingField(payload, sess); pending {
		if err := e.emitMessage(ctx, sess, domain.MessagePayload{Content: field.Prompt}, text, em); err != nil {
			return e.endSession(ctx, sess)
		}
		return e.sessions.Save(ctx, sess)
	}

	next := childOf(flow, node)
	if next.nodeID == "" {
		return e.endSession(ctx, sess)
	}
	target, ok := flow.Node(next.nodeID)
	if !ok {
		return e.endSession(ctx, sess)
	}
	return e.run(ctx, sess, flow, target, text, em)
}

// pendingField returns the first field of the node not yet present in the
// collected namespace.
func pendingField(payload domain.CollectDetailsPayload, sess *domain.Session) (domain.CollectField, bool) {
	for _, field := range payload.Fields {
		if _, ok := sess.Get(domain.ContextNamespaceCollected + "." + field.Name); !ok {
			return field, true
		}
	}
	return domain.CollectField{}, false
}

// evaluateBranch returns the target of the first matching condition, the
// default target when none match, or "" to end the session.
func evaluateBranch(payload domain.BranchPayload, context, attributes map[string]string) string {
	for _, cond := range payload.Conditions {
		value, ok := context[cond.Variable]
		if !ok {
			value, ok = attributes[cond.Variable]
		}
		if conditionHolds(cond, value, ok) {
			return cond.TargetID
		}
	}
	return payload.DefaultTargetID
}

func conditionHolds(cond domain.BranchCondition, value string, present bool) bool {
	switch cond.Operator {
	case domain.OpExists:
		return present && value != ""
	case domain.OpEquals:
		return present && strings.EqualFold(value, cond.Value)
	case domain.OpNotEquals:
		return !present || !strings.EqualFold(value, cond.Value)
	case domain.OpContains:
		return present && strings.Contains(strings.ToLower(value), strings.ToLower(cond.Value))
	case domain.OpGreaterThan:
		got, want, ok := numericPair(value, cond.Value, present)
		return ok && got > want
	case domain.OpLessThan:
		got, want, ok := numericPair(value, cond.Value, present)
		return ok && got < want
	default:
		return false
	}
}

func numericPair(value, want string, present bool) (float64, float64, bool) {
	if !present {
		return 0, 0, false
	}
	got, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, 0, false
	}
	target, err := strconv.ParseFloat(strings.TrimSpace(want), 64)
	if err != nil {
		return 0, 0, false
	}
	return got, target, true
}
