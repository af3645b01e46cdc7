package toolexec

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/stackmint/botflow/pkg/domain"
)

// descriptor is the canonical form of a fully-templated request. Marshaling
// sorts the header map keys, so two requests differing only in header order
// canonicalize identically, while any changed value yields a new key.
type descriptor struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// RequestKey hashes the canonicalized request. It is the cache identity: at
// most one trusted live response exists per key within the TTL.
func RequestKey(method, url string, headers map[string]string, body string) string {
	canonical, _ := json.Marshal(descriptor{
		Method:  method,
		URL:     url,
		Headers: headers,
		Body:    body,
	})
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// FlattenHeaders normalizes the configured header pair list into a flat map.
// Later pairs win on duplicate keys.
func FlattenHeaders(headers []domain.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for _, h := range headers {
		if h.Key == "" {
			continue
		}
		flat[h.Key] = h.Value
	}
	return flat
}
