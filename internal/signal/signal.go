// Package signal derives header- and path-based signals from a normalized
// event. Extraction is pure; the extractor only fills the signal fields.
package signal

import (
	"net/http"
	"strings"

	"github.com/trafficlens/trafficlens/internal/classify"
	"github.com/trafficlens/trafficlens/internal/domain"
)

// fetchMetadataHeaders is the header family modern browsers attach to
// navigations. Presence of any member is the primary real-browser signal.
var fetchMetadataHeaders = []string{
	"Sec-Fetch-Site",
	"Sec-Fetch-Mode",
	"Sec-Fetch-Dest",
	"Sec-Fetch-User",
}

// clientHintHeaders is the UA client-hints family.
var clientHintHeaders = []string{
	"Sec-Ch-Ua",
	"Sec-Ch-Ua-Mobile",
	"Sec-Ch-Ua-Platform",
}

// Extractor fills the signal fields of a NormalizedEvent. The webshell token
// list mirrors the classifier's so the exploit-surface flag and the attack
// stage never disagree.
type Extractor struct {
	webshellTokens []string
}

func NewExtractor(webshellTokens []string) *Extractor {
	return &Extractor{webshellTokens: webshellTokens}
}

// Enrich populates the header/path signal fields in place.
func (x *Extractor) Enrich(ev *domain.NormalizedEvent) {
	ev.HasSecFetchHeaders = HasSecFetchHeaders(ev.Headers)
	ev.HasClientHints = HasClientHints(ev.Headers)
	ev.IsMobile = IsMobile(ev.Headers)
	ev.BotSenderEmail = ev.Headers.Get("From")
	ev.BotSignatureAgent = strings.Trim(ev.Headers.Get("Signature-Agent"), `"`)
	ev.HasProxyWorkerHeader, ev.ProxyWorkerDomain = ProxyWorker(ev.Headers)
	_, ev.IsExploitPath = classify.MatchAttack(ev.Path, x.webshellTokens)
}

// HasSecFetchHeaders reports whether any fetch-metadata header is present.
func HasSecFetchHeaders(h http.Header) bool {
	for _, name := range fetchMetadataHeaders {
		if h.Get(name) != "" {
			return true
		}
	}
	return false
}

// HasClientHints reports whether any UA client-hint header is present.
func HasClientHints(h http.Header) bool {
	for _, name := range clientHintHeaders {
		if h.Get(name) != "" {
			return true
		}
	}
	return false
}

// IsMobile reports the Sec-Ch-Ua-Mobile structured-boolean value.
func IsMobile(h http.Header) bool {
	return h.Get("Sec-Ch-Ua-Mobile") == "?1"
}

// ProxyWorker reports the edge-worker marker and the worker domain, when the
// request was proxied through one (for example a Cloudflare Worker).
func ProxyWorker(h http.Header) (bool, string) {
	if worker := h.Get("Cf-Worker"); worker != "" {
		return true, worker
	}
	return false, ""
}
