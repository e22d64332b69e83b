// Package classify implements the deterministic traffic-classification
// waterfall: ordered stages evaluated until the first match, so an earlier
// stage's verdict always wins even when a later pattern would also match.
package classify

import (
	"fmt"
	"strings"

	"github.com/trafficlens/trafficlens/internal/domain"
)

const (
	// TierDeclared marks a declared-signature match.
	TierDeclared = 1
	// TierHeuristic marks an origin/heuristic match.
	TierHeuristic = 2
	// TierFallback marks the behavioral/fallback verdict.
	TierFallback = 3

	// defaultHumanRateLimit is the sustained request rate above which the
	// human gate fails, in requests per second.
	defaultHumanRateLimit = 0.5

	// shortUAMax is the longest user-agent still treated as absent-or-short
	// by the datacenter systematic-crawler rule.
	shortUAMax = 50
)

// Config tunes the engine. The zero value is usable; New fills defaults.
type Config struct {
	// WebshellTokens overrides the suspicious-token allow-list guarding the
	// webshell rule. Nil keeps DefaultWebshellTokens.
	WebshellTokens []string

	// HumanRateLimit overrides the sustained-rate ceiling of the human gate.
	// Zero keeps the default of 0.5 req/s.
	HumanRateLimit float64
}

// stage is one rung of the waterfall. A stage either produces a final verdict
// or passes the event on to the next rung.
type stage struct {
	name string
	eval func(ev *domain.NormalizedEvent, agg *domain.SessionAggregate) (domain.ClassificationResult, bool)
}

// Engine is the classification waterfall. It is pure and safe for concurrent
// use: Classify never mutates the event and never performs I/O.
type Engine struct {
	cfg    Config
	stages []stage
}

// New builds an engine with the stage order fixed as data: human gate, attack
// patterns, bot-type categorization, then the undetermined fallback.
func New(cfg Config) *Engine {
	if cfg.HumanRateLimit == 0 {
		cfg.HumanRateLimit = defaultHumanRateLimit
	}
	if cfg.WebshellTokens == nil {
		cfg.WebshellTokens = DefaultWebshellTokens
	}

	e := &Engine{cfg: cfg}
	e.stages = []stage{
		{name: "human_gate", eval: e.humanGate},
		{name: "attack_patterns", eval: e.attackStage},
		{name: "bot_type", eval: e.botTypeStage},
	}
	return e
}

// Classify runs the waterfall over a fully-enriched event. The session
// aggregate is optional; pass nil when no behavioral history is available.
// Classify is total: every well-formed event maps to a category.
func (e *Engine) Classify(ev domain.NormalizedEvent, agg *domain.SessionAggregate) domain.ClassificationResult {
	for _, s := range e.stages {
		if res, ok := s.eval(&ev, agg); ok {
			return res
		}
	}
	return e.fallback(&ev)
}

// humanGate passes an event as human only when every browser-verification
// condition holds. Any single failure routes to the later stages.
func (e *Engine) humanGate(ev *domain.NormalizedEvent, agg *domain.SessionAggregate) (domain.ClassificationResult, bool) {
	if !ev.HasSecFetchHeaders {
		return domain.ClassificationResult{}, false
	}
	if !ev.HasClientHints && !acceptsHTML(ev) {
		return domain.ClassificationResult{}, false
	}
	if ev.DatacenterProvider != "" {
		return domain.ClassificationResult{}, false
	}
	if _, headless := isHeadlessUA(ev.UserAgent); headless {
		return domain.ClassificationResult{}, false
	}
	if agg != nil && agg.Rate() > e.cfg.HumanRateLimit {
		return domain.ClassificationResult{}, false
	}

	return domain.ClassificationResult{
		IsBot:    false,
		Category: domain.CategoryHuman,
		Reason:   "passed browser verification checks",
	}, true
}

// attackStage tests the request path against the ordered attack sub-rules.
func (e *Engine) attackStage(ev *domain.NormalizedEvent, _ *domain.SessionAggregate) (domain.ClassificationResult, bool) {
	match, ok := MatchAttack(ev.Path, e.cfg.WebshellTokens)
	if !ok {
		return domain.ClassificationResult{}, false
	}
	return domain.ClassificationResult{
		IsBot:         true,
		Category:      match.Category,
		IdentityName:  match.Identity,
		DetectionTier: TierDeclared,
		Reason:        match.Reason,
	}, true
}

// botTypeStage tries the bot categories in fixed priority order: declared AI,
// traditional crawler, monitoring service, datacenter systematic crawler,
// stealth AI. Most specific first, so a declared bot that also looks
// browser-like never lands in the stealth bucket.
func (e *Engine) botTypeStage(ev *domain.NormalizedEvent, _ *domain.SessionAggregate) (domain.ClassificationResult, bool) {
	if name, ok := matchSignature(aiBotSignatures, ev.UserAgent); ok {
		return domain.ClassificationResult{
			IsBot:         true,
			Category:      domain.CategoryAIOfficial,
			IdentityName:  name,
			DetectionTier: TierDeclared,
			Reason:        fmt.Sprintf("declared AI crawler signature %q", name),
		}, true
	}

	if name, ok := matchSignature(crawlerSignatures, ev.UserAgent); ok {
		return crawlerResult(name, fmt.Sprintf("known crawler signature %q", name)), true
	}
	if name, ok := isHeadlessUA(ev.UserAgent); ok {
		return crawlerResult(name, fmt.Sprintf("headless/automation marker %q", name)), true
	}

	// Monitoring signatures outrank the generic keyword: most of them
	// ("UptimeRobot") contain "bot" and would be swallowed by it.
	if name, ok := matchSignature(monitoringSignatures, ev.UserAgent); ok {
		return monitoringResult(name, fmt.Sprintf("uptime/health-check signature %q", name)), true
	}
	if ev.UserAgent != "" && genericBotPattern.MatchString(ev.UserAgent) {
		return crawlerResult("", "generic bot keyword in user-agent"), true
	}
	if isVerificationPath(ev.Path) {
		return monitoringResult("", "well-known verification-challenge path"), true
	}
	if ev.DatacenterProvider != "" && ev.UserAgent == "" && isSimpleRootPath(ev.Path) {
		return monitoringResult("", "datacenter origin probing a site-root path without a user-agent"), true
	}

	if ev.DatacenterProvider != "" && len(ev.UserAgent) <= shortUAMax && !isSimpleRootPath(ev.Path) {
		return domain.ClassificationResult{
			IsBot:         true,
			Category:      domain.CategoryAIStealth,
			IdentityName:  providerIdentity(ev.DatacenterProvider, "Crawler"),
			DetectionTier: TierHeuristic,
			Reason:        "datacenter origin crawling content paths without a browser user-agent",
		}, true
	}

	if ev.DatacenterProvider != "" && isBrowserLikeUA(ev.UserAgent) && !ev.HasSecFetchHeaders {
		return domain.ClassificationResult{
			IsBot:         true,
			Category:      domain.CategoryAIStealth,
			IdentityName:  providerIdentity(ev.DatacenterProvider, "Stealth-AI"),
			DetectionTier: TierHeuristic,
			Reason:        "browser-like user-agent from a datacenter without fetch-intent headers",
		}, true
	}

	return domain.ClassificationResult{}, false
}

// fallback is the terminal rung: undetermined bot, with a reason built from
// whichever broad signals applied. When none of the three checks apply the
// reason stays generic; the human gate has conditions (the rate limit) that
// this diagnostic deliberately does not mirror.
func (e *Engine) fallback(ev *domain.NormalizedEvent) domain.ClassificationResult {
	var parts []string
	if ev.UserAgent == "" {
		parts = append(parts, "no user-agent")
	}
	if ev.DatacenterProvider != "" {
		parts = append(parts, "known datacenter origin")
	}
	if !ev.HasSecFetchHeaders {
		parts = append(parts, "missing fetch-intent headers")
	}

	reason := "failed human verification checks"
	if len(parts) > 0 {
		reason = strings.Join(parts, "; ")
	}

	return domain.ClassificationResult{
		IsBot:         true,
		Category:      domain.CategoryUndetermined,
		IdentityName:  "Undetermined-Bot",
		DetectionTier: TierFallback,
		Reason:        reason,
	}
}

func crawlerResult(identity, reason string) domain.ClassificationResult {
	return domain.ClassificationResult{
		IsBot:         true,
		Category:      domain.CategoryWebCrawler,
		IdentityName:  identity,
		DetectionTier: TierDeclared,
		Reason:        reason,
	}
}

func monitoringResult(identity, reason string) domain.ClassificationResult {
	return domain.ClassificationResult{
		IsBot:         true,
		Category:      domain.CategoryMonitoring,
		IdentityName:  identity,
		DetectionTier: TierHeuristic,
		Reason:        reason,
	}
}

func providerIdentity(provider, suffix string) string {
	return strings.ToUpper(provider) + "-" + suffix
}

func acceptsHTML(ev *domain.NormalizedEvent) bool {
	accept := strings.ToLower(ev.Headers.Get("Accept"))
	return strings.Contains(accept, "text/html") || strings.Contains(accept, "application/xhtml+xml")
}
