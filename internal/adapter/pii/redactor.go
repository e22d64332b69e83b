// Package pii scrubs credential-bearing headers from events before they are
// persisted. The retained header block is audit data; session cookies and API
// keys must never reach the store.
package pii

import (
	"net/http"

	"github.com/trafficlens/trafficlens/internal/domain"
)

const RedactedPlaceholder = "[REDACTED]"

// defaultHeaders are always scrubbed regardless of configuration.
var defaultHeaders = []string{
	"Cookie",
	"Set-Cookie",
	"Authorization",
	"Proxy-Authorization",
	"X-Api-Key",
	"X-Auth-Token",
}

// Redactor replaces the values of sensitive headers with a placeholder.
type Redactor struct {
	headers []string
}

// NewRedactor creates a redactor covering the default header set plus any
// extra names from configuration.
func NewRedactor(extra []string) *Redactor {
	headers := make([]string, 0, len(defaultHeaders)+len(extra))
	seen := make(map[string]struct{}, len(defaultHeaders)+len(extra))
	for _, name := range append(append([]string{}, defaultHeaders...), extra...) {
		canonical := http.CanonicalHeaderKey(name)
		if _, ok := seen[canonical]; ok {
			continue
		}
		seen[canonical] = struct{}{}
		headers = append(headers, canonical)
	}
	return &Redactor{headers: headers}
}

// Scrub replaces sensitive header values on the event in place. The header
// presence itself is kept so the audit trail still shows a credential was
// sent.
func (r *Redactor) Scrub(ev *domain.NormalizedEvent) {
	if r == nil || len(ev.Headers) == 0 {
		return
	}
	for _, name := range r.headers {
		if _, ok := ev.Headers[name]; ok {
			ev.Headers.Set(name, RedactedPlaceholder)
		}
	}
}
