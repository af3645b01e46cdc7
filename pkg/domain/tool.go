package domain

import "time"

// Body content types accepted by tool request templates.
const (
	BodyTypeJSON = "application/json"
	BodyTypeText = "text/plain"
)

// Header is one templated request header pair. Headers are stored as a list
// to preserve configuration order; the executor flattens them before
// templating and hashing.
type Header struct {
	Key   string `json:"key" yaml:"key" mapstructure:"key"`
	Value string `json:"value" yaml:"value" mapstructure:"value"`
}

// RequestTemplate describes the HTTP call a tool performs. URL, header
// values and Body may contain variable markers.
type RequestTemplate struct {
	Method   string   `json:"method" yaml:"method"`
	URL      string   `json:"url" yaml:"url"`
	Headers  []Header `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body     string   `json:"body,omitempty" yaml:"body,omitempty"`
	BodyType string   `json:"body_type,omitempty" yaml:"body_type,omitempty"`
}

// Tool is a configured external HTTP integration callable from a flow.
type Tool struct {
	ID          string `json:"id" yaml:"id"`
	AgentID     string `json:"agent_id,omitempty" yaml:"agent_id,omitempty"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Active      bool   `json:"active" yaml:"active"`

	// Activations counts invocation attempts, successful or not.
	Activations int64 `json:"activations" yaml:"activations"`

	Request RequestTemplate `json:"request" yaml:"request"`

	// Schema is the inferred shape of the tool's response, used to map
	// response values into session context.
	Schema *ResponseSchema `json:"schema,omitempty" yaml:"schema,omitempty"`

	// DirectUse marks tools the generator may call outside any flow.
	DirectUse bool `json:"direct_use" yaml:"direct_use"`
}

// ToolResponse cache row types.
const (
	ToolResponseLive = "live"
	ToolResponseTest = "test"
)

// ToolResponse is one cached response row, keyed by the hash of the
// canonicalized request. Rows are only ever upserted by RequestKey; staleness
// is enforced at read time, old rows are ignored rather than deleted.
type ToolResponse struct {
	RequestKey string    `json:"request_key"`
	Type       string    `json:"type"`
	ToolID     string    `json:"tool_id"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// Fresh reports whether the row is still trusted at the given instant.
func (r *ToolResponse) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.CreatedAt) < ttl
}

// ResponseSchema is the flat property schema inferred from a sample
// response. See pkg/schema for the inference rules.
type ResponseSchema struct {
	Arrays     []SchemaArray    `json:"arrays" yaml:"arrays"`
	Properties []SchemaProperty `json:"properties" yaml:"properties"`
}

// SchemaArray describes one array discovered in the sample.
type SchemaArray struct {
	Name string `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
}

// SchemaProperty describes one scalar leaf discovered in the sample. Path
// uses ".[*]" for array strides, so one property stands for every element of
// an array.
type SchemaProperty struct {
	ID     string `json:"id" yaml:"id"`
	Path   string `json:"path" yaml:"path"`
	Value  string `json:"value" yaml:"value"`
	Format string `json:"format" yaml:"format"`
}
