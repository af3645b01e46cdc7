// Package schema infers a flat property schema from a sample JSON response.
//
// The inference is a single-sample approximation: for every array only the
// first element is walked as representative, so sibling elements of a
// differing shape are invisible to the result. Array index segments are
// normalized to ".[*]" strides, making the schema type-level (one shape per
// array) rather than per-element.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/stackmint/botflow/pkg/domain"
)

// Property formats produced by the classifier.
const (
	FormatNull    = "null"
	FormatBoolean = "boolean"
	FormatNumber  = "number"
	FormatString  = "string"
	FormatDate    = "date"
)

// RootPath is the synthetic path segment standing for a root-level array.
const RootPath = "[root]"

// stride is the path segment standing for "every element of the array".
const stride = "[*]"

// dateLayouts are tried in order by the format classifier. Parse failures
// are swallowed; the value simply classifies as a string.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02/01/2006",
}

// Generator walks one sample and accumulates the inferred schema. The
// generated-array-name counter is instance state: two generations over the
// same sample always produce identical names.
type Generator struct {
	unnamedArrays int
}

// NewGenerator returns a Generator ready for a single Generate call.
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate infers the schema for a sample JSON document.
func Generate(sample []byte) (*domain.ResponseSchema, error) {
	return NewGenerator().Generate(sample)
}

// Generate infers the schema for a sample JSON document. Numbers are decoded
// as json.Number so large integers keep their textual form.
func (g *Generator) Generate(sample []byte) (*domain.ResponseSchema, error) {
	dec := json.NewDecoder(bytes.NewReader(sample))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("failed to parse sample: %w", err)
	}

	out := &domain.ResponseSchema{
		Arrays:     []domain.SchemaArray{},
		Properties: []domain.SchemaProperty{},
	}
	g.walk(value, "", "", out)
	return out, nil
}

// walk recurses depth-first. path is the normalized path so far ("" at the
// root); owner is the object key the value hangs off, used to name arrays.
func (g *Generator) walk(value any, path, owner string, out *domain.ResponseSchema) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			g.walk(v[k], joinPath(path, k), k, out)
		}

	case []any:
		arrayPath := path
		if arrayPath == "" {
			arrayPath = RootPath
		}
		out.Arrays = append(out.Arrays, domain.SchemaArray{
			Name: g.arrayName(owner),
			Path: arrayPath,
		})
		// Only the first element is representative.
		if len(v) > 0 {
			g.walk(v[0], joinPath(arrayPath, stride), "", out)
		}

	default:
		out.Properties = append(out.Properties, domain.SchemaProperty{
			ID:     uuid.NewString(),
			Path:   path,
			Value:  scalarValue(v),
			Format: Classify(v),
		})
	}
}

// arrayName returns the owning key, or a generated "items", "items1", ...
// name for anonymous arrays.
func (g *Generator) arrayName(owner string) string {
	if owner != "" {
		return owner
	}
	name := "items"
	if g.unnamedArrays > 0 {
		name = fmt.Sprintf("items%d", g.unnamedArrays)
	}
	g.unnamedArrays++
	return name
}

// Classify maps a decoded JSON scalar to its schema format. Classification
// is deterministic for identical input.
func Classify(value any) string {
	switch v := value.(type) {
	case nil:
		return FormatNull
	case bool:
		return FormatBoolean
	case json.Number, float64:
		return FormatNumber
	case string:
		for _, layout := range dateLayouts {
			if _, err := time.Parse(layout, v); err == nil {
				return FormatDate
			}
		}
		return FormatString
	default:
		return FormatString
	}
}

func scalarValue(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func joinPath(path, segment string) string {
	if path == "" {
		return segment
	}
	return path + "." + segment
}
