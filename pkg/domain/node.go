package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// NodeType constants define the control flow behavior of a node.
const (
	// NodeTypeStart is the entry point of a flow. It carries no payload.
	NodeTypeStart = "start"
	// NodeTypeMessage emits content to the customer and continues (soft step).
	NodeTypeMessage = "message"
	// NodeTypeButtons emits content plus quick-reply buttons.
	NodeTypeButtons = "buttons"
	// NodeTypeCards emits a card carousel.
	NodeTypeCards = "cards"
	// NodeTypeTool executes an external HTTP call and merges the result into
	// session context before the next step.
	NodeTypeTool = "tool"
	// NodeTypeBranch fans out to multiple children guarded by conditions.
	NodeTypeBranch = "branch"
	// NodeTypeCollectDetails halts the session until the customer supplies
	// the requested fields (hard step).
	NodeTypeCollectDetails = "collectDetails"
	// NodeTypeSetAttribute writes a conversation attribute.
	NodeTypeSetAttribute = "setAttribute"
	// NodeTypeAddTags appends tags to the conversation.
	NodeTypeAddTags = "addTags"
	// NodeTypeTransfer hands the conversation to a human team and ends
	// automated progression.
	NodeTypeTransfer = "transfer"
	// NodeTypeCloseConversation closes the conversation and ends the session.
	NodeTypeCloseConversation = "closeConversation"
	// NodeTypeGoToStep jumps to another node inside the active flow.
	NodeTypeGoToStep = "goToStep"
	// NodeTypeGoToFlow re-roots the session at the start of another flow.
	NodeTypeGoToFlow = "goToFlow"
)

// Node represents one step in a flow graph.
//
// The graph shape is implied by ParentID: every node has a single upstream
// edge, except Branch children which are addressed explicitly by the branch
// payload. Data holds the type-specific payload and is decoded on demand via
// DecodePayload, keeping Node itself a flat, storable record.
type Node struct {
	ID       string         `json:"id" yaml:"id"`
	ParentID string         `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Name     string         `json:"name,omitempty" yaml:"name,omitempty"`
	Type     string         `json:"type" yaml:"type"`
	Data     map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// DecodePayload decodes the node's Data blob into a typed payload struct.
func DecodePayload[T any](n Node) (T, error) {
	var payload T
	if err := mapstructure.Decode(n.Data, &payload); err != nil {
		return payload, fmt.Errorf("failed to decode %s payload for node %s: %w", n.Type, n.ID, err)
	}
	return payload, nil
}

// MessagePayload is shared by message, buttons and cards nodes.
type MessagePayload struct {
	Content     string       `mapstructure:"content"`
	Attachments []Attachment `mapstructure:"attachments"`
	Buttons     []Button     `mapstructure:"buttons"`
	Cards       []Card       `mapstructure:"cards"`
}

// Attachment is a file or image attached to an outbound message.
type Attachment struct {
	Kind string `mapstructure:"kind" json:"kind"`
	URL  string `mapstructure:"url" json:"url"`
}

// Button is a quick-reply option presented to the customer.
type Button struct {
	Label string `mapstructure:"label" json:"label"`
	Value string `mapstructure:"value" json:"value"`
}

// Card is one pane of a card carousel.
type Card struct {
	Title    string   `mapstructure:"title" json:"title"`
	Subtitle string   `mapstructure:"subtitle" json:"subtitle"`
	ImageURL string   `mapstructure:"image_url" json:"image_url"`
	Buttons  []Button `mapstructure:"buttons" json:"buttons"`
}

// ToolPayload configures a tool node.
type ToolPayload struct {
	ToolID string `mapstructure:"tool_id"`
	// ErrorTargetID, when set, receives control if the call fails. Without it
	// the flow continues past the node with an empty result.
	ErrorTargetID string `mapstructure:"error_target_id"`
}

// Branch condition operators.
const (
	OpEquals      = "equals"
	OpNotEquals   = "notEquals"
	OpContains    = "contains"
	OpExists      = "exists"
	OpGreaterThan = "greaterThan"
	OpLessThan    = "lessThan"
)

// BranchCondition guards one outgoing edge of a branch node. Conditions are
// evaluated in configured order; the first match wins.
type BranchCondition struct {
	Variable string `mapstructure:"variable"`
	Operator string `mapstructure:"operator"`
	Value    string `mapstructure:"value"`
	TargetID string `mapstructure:"target_id"`
}

// BranchPayload configures a branch node.
type BranchPayload struct {
	Conditions []BranchCondition `mapstructure:"conditions"`
	// DefaultTargetID receives control when no condition matches. Empty means
	// the session ends.
	DefaultTargetID string `mapstructure:"default_target_id"`
}

// CollectField is one field requested by a collectDetails node.
type CollectField struct {
	Name   string `mapstructure:"name"`
	Prompt string `mapstructure:"prompt"`
}

// CollectDetailsPayload configures a collectDetails node. Fields are
// requested one at a time, in order.
type CollectDetailsPayload struct {
	Fields []CollectField `mapstructure:"fields"`
}

// SetAttributePayload configures a setAttribute node. Value may contain
// variable markers.
type SetAttributePayload struct {
	Key   string `mapstructure:"key"`
	Value string `mapstructure:"value"`
}

// AddTagsPayload configures an addTags node.
type AddTagsPayload struct {
	Tags []string `mapstructure:"tags"`
}

// TransferPayload configures a transfer node.
type TransferPayload struct {
	TeamID  string `mapstructure:"team_id"`
	Message string `mapstructure:"message"`
}

// GoToStepPayload configures a goToStep node.
type GoToStepPayload struct {
	TargetID string `mapstructure:"target_id"`
}

// GoToFlowPayload configures a goToFlow node.
type GoToFlowPayload struct {
	FlowID string `mapstructure:"flow_id"`
}
