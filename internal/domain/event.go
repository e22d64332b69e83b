package domain

import (
	"net/http"
	"net/netip"
	"net/url"
	"time"
)

// Category is the traffic category vocabulary. The set is closed: downstream
// consumers match on the literal strings, so adding a value is a breaking
// change for them.
type Category string

const (
	CategoryHuman           Category = "human"
	CategoryAIOfficial      Category = "ai_official"
	CategoryAIStealth       Category = "ai_stealth"
	CategoryWebCrawler      Category = "web_crawler"
	CategoryMonitoring      Category = "monitoring_service"
	CategoryUndetermined    Category = "bot_undetermined"
	CategoryAttackWordpress Category = "attack_wordpress_scanner"
	CategoryAttackWebshell  Category = "attack_webshell_scanner"
	CategoryAttackConfig    Category = "attack_config_scanner"
	CategoryAttackExploit   Category = "attack_exploit_attempt"
)

// RawLogRecord is one HTTP access-log line as captured by the web server.
// It is immutable once read; everything downstream derives from it.
type RawLogRecord struct {
	ID            string        `json:"id"`
	Timestamp     time.Time     `json:"timestamp"`
	Duration      time.Duration `json:"duration"`
	Method        string        `json:"method"`
	URI           string        `json:"uri"`
	Host          string        `json:"host"`
	Status        int           `json:"status"`
	ResponseSize  int64         `json:"response_size"`
	ClientAddress string        `json:"client_address"`
	Headers       http.Header   `json:"headers"`
}

// UserAgent returns the first User-Agent header value, or "".
func (r RawLogRecord) UserAgent() string {
	return r.Headers.Get("User-Agent")
}

// ClassificationResult is the verdict of the classification waterfall.
// IdentityName is empty unless a specific bot identity was resolved;
// DetectionTier is 0 for human traffic.
type ClassificationResult struct {
	IsBot         bool     `json:"is_bot"`
	Category      Category `json:"category"`
	IdentityName  string   `json:"identity_name,omitempty"`
	DetectionTier int      `json:"detection_tier,omitempty"`
	Reason        string   `json:"reason"`
}

// SessionAggregate is a trailing-window request count for one client address.
// It is derived by the caller, never stored, and only feeds rate-based rules.
type SessionAggregate struct {
	RequestCount  int
	WindowSeconds float64
}

// Rate returns sustained requests per second over the window.
func (s SessionAggregate) Rate() float64 {
	if s.WindowSeconds <= 0 {
		return float64(s.RequestCount)
	}
	return float64(s.RequestCount) / s.WindowSeconds
}

// NormalizedEvent is the canonical unit the pipeline operates on. Fields are
// populated incrementally: base fields at construction, then geo, network and
// signal fields by the enrichment stages, then the classification fields,
// exactly once, after all enrichment is done. An event is never persisted
// half-enriched.
type NormalizedEvent struct {
	Timestamp     time.Time   `json:"timestamp"`
	ClientAddress string      `json:"client_address"`
	SubnetKey     string      `json:"subnet_key"`
	Site          string      `json:"site"`
	Method        string      `json:"method"`
	Path          string      `json:"path"`
	QueryString   string      `json:"query_string,omitempty"`
	Status        int         `json:"status"`
	ResponseSize  int64       `json:"response_size"`
	UserAgent     string      `json:"user_agent"`
	Headers       http.Header `json:"headers"` // raw headers, retained for audit

	// Geo enrichment. Zero values mean the lookup did not resolve.
	Country   string  `json:"country,omitempty"`
	City      string  `json:"city,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`

	// Network-origin enrichment. ASN 0 / empty strings mean unresolved.
	ASN                uint   `json:"asn,omitempty"`
	ASNOrg             string `json:"asn_org,omitempty"`
	DatacenterProvider string `json:"datacenter_provider,omitempty"`

	// Header/path signals.
	HasSecFetchHeaders bool   `json:"has_sec_fetch_headers"`
	HasClientHints     bool   `json:"has_client_hints"`
	IsMobile           bool   `json:"is_mobile"`
	BotSenderEmail     string `json:"bot_sender_email,omitempty"`
	BotSignatureAgent  string `json:"bot_signature_agent,omitempty"`

	// Security signals.
	HasProxyWorkerHeader bool   `json:"has_proxy_worker_header"`
	ProxyWorkerDomain    string `json:"proxy_worker_domain,omitempty"`
	IsExploitPath        bool   `json:"is_exploit_path"`

	// Classification verdict, set once by the engine.
	IsBot         bool     `json:"is_bot"`
	Category      Category `json:"category"`
	IdentityName  string   `json:"identity_name,omitempty"`
	DetectionTier int      `json:"detection_tier,omitempty"`
	Reason        string   `json:"reason"`
}

// ApplyClassification copies the verdict onto the event.
func (e *NormalizedEvent) ApplyClassification(res ClassificationResult) {
	e.IsBot = res.IsBot
	e.Category = res.Category
	e.IdentityName = res.IdentityName
	e.DetectionTier = res.DetectionTier
	e.Reason = res.Reason
}

// NewNormalizedEvent builds the base event from a raw record: URI split into
// path and query, site taken from the Host, subnet key truncated to /24
// (IPv4) or /64 (IPv6).
func NewNormalizedEvent(raw RawLogRecord) NormalizedEvent {
	path := raw.URI
	query := ""
	if u, err := url.Parse(raw.URI); err == nil {
		path = u.Path
		query = u.RawQuery
	}
	if path == "" {
		path = "/"
	}

	return NormalizedEvent{
		Timestamp:     raw.Timestamp,
		ClientAddress: raw.ClientAddress,
		SubnetKey:     SubnetKey(raw.ClientAddress),
		Site:          raw.Host,
		Method:        raw.Method,
		Path:          path,
		QueryString:   query,
		Status:        raw.Status,
		ResponseSize:  raw.ResponseSize,
		UserAgent:     raw.UserAgent(),
		Headers:       raw.Headers,
	}
}

// SubnetKey truncates an address to its clustering prefix: /24 for IPv4,
// /64 for IPv6. Returns "" for unparseable addresses.
func SubnetKey(address string) string {
	addr, err := netip.ParseAddr(address)
	if err != nil {
		return ""
	}
	addr = addr.Unmap()
	bits := 24
	if addr.Is6() {
		bits = 64
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return ""
	}
	return prefix.String()
}

// IngestionCursor marks how much of the log feed has been durably processed.
// One row is appended per successful run; the most recent row by CreatedAt is
// authoritative for resuming. A failed run appends nothing.
type IngestionCursor struct {
	LastProcessedTimestamp time.Time
	LastRecordID           string
	RecordsProcessed       int
	DurationMs             int64
	CreatedAt              time.Time
}
