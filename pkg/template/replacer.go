// Package template implements the variable replacer: substitution of
// structured markers against layered value sources.
//
// Markers have the form {{name|type|fallback}}; type and fallback are
// optional. Resolution order per marker: ad hoc collected data for this
// call, then the conversation attribute store, then the literal fallback,
// then empty string. Replace never fails: templated URLs, headers and
// bodies stay well-formed (if incomplete) under partial data.
package template

import (
	"regexp"
	"strings"
)

// marker matches {{name}}, {{name|type}} and {{name|type|fallback}}.
// Malformed markers (empty name, stray braces) do not match and pass
// through untouched.
var marker = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*(?:\|\s*([A-Za-z0-9_-]*)\s*)?(?:\|\s*([^{}|]*?)\s*)?\}\}`)

// Data carries the value sources for one templating call. It is ephemeral
// and never persisted.
type Data struct {
	// Collected holds ad hoc pairs gathered during this conversation turn.
	// Highest priority.
	Collected map[string]string

	// Attributes holds the conversation/customer attribute store snapshot.
	Attributes map[string]string
}

// Merge returns a Data with the given pairs layered on top of the existing
// collected values.
func (d Data) Merge(pairs map[string]string) Data {
	merged := Data{
		Collected:  make(map[string]string, len(d.Collected)+len(pairs)),
		Attributes: d.Attributes,
	}
	for k, v := range d.Collected {
		merged.Collected[k] = v
	}
	for k, v := range pairs {
		merged.Collected[k] = v
	}
	return merged
}

// Replace substitutes every marker in the template. It never returns an
// error; unresolved markers without a fallback become empty strings.
func Replace(template string, data Data) string {
	if !strings.Contains(template, "{{") {
		return template
	}
	return marker.ReplaceAllStringFunc(template, func(m string) string {
		groups := marker.FindStringSubmatch(m)
		name, fallback := groups[1], groups[3]

		if v, ok := data.Collected[name]; ok {
			return v
		}
		if v, ok := data.Attributes[name]; ok {
			return v
		}
		return fallback
	})
}

// ReplaceAll applies Replace to every element of a string map in place
// (header values, form fields).
func ReplaceAll(fields map[string]string, data Data) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = Replace(v, data)
	}
	return out
}
