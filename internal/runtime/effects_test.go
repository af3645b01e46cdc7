package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stackmint/botflow/pkg/domain"
)

func TestEvaluateBranch(t *testing.T) {
	payload := domain.BranchPayload{
		Conditions: []domain.BranchCondition{
			{Variable: "tool.track_order.status", Operator: domain.OpEquals, Value: "shipped", TargetID: "shipped"},
			{Variable: "tool.track_order.items", Operator: domain.OpGreaterThan, Value: "3", TargetID: "bulk"},
			{Variable: "tier", Operator: domain.OpExists, TargetID: "member"},
		},
		DefaultTargetID: "fallback",
	}

	tests := []struct {
		name    string
		context map[string]string
		attrs   map[string]string
		want    string
	}{
		{"first match wins", map[string]string{"tool.track_order.status": "SHIPPED", "tier": "gold"}, nil, "shipped"},
		{"numeric comparison", map[string]string{"tool.track_order.items": "5"}, nil, "bulk"},
		{"non-numeric value never compares", map[string]string{"tool.track_order.items": "lots"}, nil, "fallback"},
		{"attribute lookup", nil, map[string]string{"tier": "silver"}, "member"},
		{"empty value does not exist", map[string]string{"tier": ""}, nil, "fallback"},
		{"no match takes default", map[string]string{"unrelated": "x"}, nil, "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evaluateBranch(payload, tt.context, tt.attrs))
		})
	}
}

func TestEvaluateBranch_NoDefaultMeansEnd(t *testing.T) {
	payload := domain.BranchPayload{
		Conditions: []domain.BranchCondition{
			{Variable: "x", Operator: domain.OpEquals, Value: "1", TargetID: "t"},
		},
	}
	assert.Equal(t, "", evaluateBranch(payload, nil, nil))
}

func TestConditionHolds(t *testing.T) {
	tests := []struct {
		name     string
		operator string
		value    string
		present  bool
		against  string
		want     bool
	}{
		{"equals ignores case", domain.OpEquals, "Shipped", true, "shipped", true},
		{"equals absent", domain.OpEquals, "", false, "shipped", false},
		{"notEquals on absent key holds", domain.OpNotEquals, "", false, "shipped", true},
		{"notEquals on different value", domain.OpNotEquals, "pending", true, "shipped", true},
		{"contains ignores case", domain.OpContains, "Out for Delivery", true, "delivery", true},
		{"greaterThan", domain.OpGreaterThan, "10", true, "9.5", true},
		{"lessThan", domain.OpLessThan, "3", true, "4", true},
		{"lessThan equal is false", domain.OpLessThan, "4", true, "4", false},
		{"unknown operator", "matches", "x", true, "x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := domain.BranchCondition{Operator: tt.operator, Value: tt.against}
			assert.Equal(t, tt.want, conditionHolds(cond, tt.value, tt.present))
		})
	}
}

func TestGJSONPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"status", "status"},
		{"items.[*].name", "items.0.name"},
		{"[root].[*].id", "0.id"},
		{"data.items.[*].parts.[*].sku", "data.items.0.parts.0.sku"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, gjsonPath(tt.in), "path %s", tt.in)
	}
}

func TestSplitDeltas(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"one", []string{"one"}},
		{"two words", []string{"two ", "words"}},
		{"trailing space ", []string{"trailing ", "space "}},
		{"a  b", []string{"a  ", "b"}},
		{"line\nbreak", []string{"line\n", "break"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, splitDeltas(tt.in), "input %q", tt.in)
	}
}

func TestSplitDeltas_Reassembles(t *testing.T) {
	input := "Your order **ORD-7** is out for delivery.\nTrack it [here](https://example.com)."
	var joined string
	for _, d := range splitDeltas(input) {
		joined += d
	}
	assert.Equal(t, input, joined)
}

func TestRenderHTML(t *testing.T) {
	html := renderHTML("Hello **world**, see [docs](https://example.com)")
	assert.Contains(t, html, "<strong>world</strong>")
	assert.Contains(t, html, `href="https://example.com"`)

	assert.NotContains(t, renderHTML(`<script>alert(1)</script> hi`), "<script>")
}

func TestPendingField(t *testing.T) {
	payload := domain.CollectDetailsPayload{
		Fields: []domain.CollectField{
			{Name: "order_number", Prompt: "Order number?"},
			{Name: "reason", Prompt: "Reason?"},
		},
	}

	sess := domain.NewSession("u", "c", "f", "n")
	field, pending := pendingField(payload, sess)
	assert.True(t, pending)
	assert.Equal(t, "order_number", field.Name)

	sess.Set("collected.order_number", "ORD-1")
	field, pending = pendingField(payload, sess)
	assert.True(t, pending)
	assert.Equal(t, "reason", field.Name)

	sess.Set("collected.reason", "broken")
	_, pending = pendingField(payload, sess)
	assert.False(t, pending)
}
