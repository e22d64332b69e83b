package classify_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficlens/trafficlens/internal/classify"
	"github.com/trafficlens/trafficlens/internal/domain"
	"github.com/trafficlens/trafficlens/internal/signal"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// browserEvent builds an event that passes every human-gate condition.
func browserEvent() domain.NormalizedEvent {
	headers := http.Header{}
	headers.Set("User-Agent", chromeUA)
	headers.Set("Accept", "text/html,application/xhtml+xml")
	headers.Set("Sec-Fetch-Site", "none")
	headers.Set("Sec-Fetch-Mode", "navigate")
	headers.Set("Sec-Ch-Ua", `"Chromium";v="124", "Google Chrome";v="124"`)

	ev := domain.NormalizedEvent{
		ClientAddress: "203.0.113.7",
		Path:          "/articles/42",
		UserAgent:     chromeUA,
		Headers:       headers,
	}
	signal.NewExtractor(nil).Enrich(&ev)
	return ev
}

func TestClassify_HumanGate(t *testing.T) {
	engine := classify.New(classify.Config{})

	t.Run("standard desktop browser is human", func(t *testing.T) {
		res := engine.Classify(browserEvent(), nil)

		assert.False(t, res.IsBot)
		assert.Equal(t, domain.CategoryHuman, res.Category)
		assert.Empty(t, res.IdentityName)
		assert.Zero(t, res.DetectionTier)
	})

	t.Run("client hints satisfy the accept condition without an Accept header", func(t *testing.T) {
		ev := browserEvent()
		ev.Headers.Del("Accept")
		signal.NewExtractor(nil).Enrich(&ev)

		res := engine.Classify(ev, nil)
		assert.Equal(t, domain.CategoryHuman, res.Category)
	})

	t.Run("modest rate keeps the gate open", func(t *testing.T) {
		agg := domain.SessionAggregate{RequestCount: 12, WindowSeconds: 60}
		res := engine.Classify(browserEvent(), &agg)
		assert.Equal(t, domain.CategoryHuman, res.Category)
	})

	// Removing any single gate condition must change the category away from
	// human.
	mutations := []struct {
		name   string
		mutate func(ev *domain.NormalizedEvent) *domain.SessionAggregate
	}{
		{"no fetch-intent headers", func(ev *domain.NormalizedEvent) *domain.SessionAggregate {
			ev.HasSecFetchHeaders = false
			return nil
		}},
		{"no client hints and no html accept", func(ev *domain.NormalizedEvent) *domain.SessionAggregate {
			ev.HasClientHints = false
			ev.Headers.Set("Accept", "*/*")
			return nil
		}},
		{"datacenter origin", func(ev *domain.NormalizedEvent) *domain.SessionAggregate {
			ev.DatacenterProvider = "aws"
			return nil
		}},
		{"headless marker in user-agent", func(ev *domain.NormalizedEvent) *domain.SessionAggregate {
			ev.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) HeadlessChrome/123.0 Safari/537.36"
			return nil
		}},
		{"sustained rate above the ceiling", func(ev *domain.NormalizedEvent) *domain.SessionAggregate {
			return &domain.SessionAggregate{RequestCount: 120, WindowSeconds: 60}
		}},
	}
	for _, tc := range mutations {
		t.Run("fails when "+tc.name, func(t *testing.T) {
			ev := browserEvent()
			agg := tc.mutate(&ev)

			res := engine.Classify(ev, agg)
			assert.NotEqual(t, domain.CategoryHuman, res.Category)
			assert.True(t, res.IsBot)
		})
	}
}

func TestClassify_AttackStage(t *testing.T) {
	engine := classify.New(classify.Config{})

	tests := []struct {
		name     string
		path     string
		category domain.Category
		identity string
	}{
		{"wordpress admin", "/wp-admin/admin.php", domain.CategoryAttackWordpress, "WordPress-Scanner"},
		{"wordpress login", "/wp-login.php", domain.CategoryAttackWordpress, "WordPress-Scanner"},
		{"xmlrpc", "/xmlrpc.php", domain.CategoryAttackWordpress, "WordPress-Scanner"},
		{"webshell probe", "/uploads/shell.php", domain.CategoryAttackWebshell, "Webshell-Scanner"},
		{"c99 shell", "/images/c99.php", domain.CategoryAttackWebshell, "Webshell-Scanner"},
		{"env file", "/.env", domain.CategoryAttackConfig, "Config-Scanner"},
		{"git metadata", "/.git/config", domain.CategoryAttackConfig, "Config-Scanner"},
		{"phpmyadmin", "/phpmyadmin/index.html", domain.CategoryAttackConfig, "Config-Scanner"},
		{"traversal", "/static/../../etc/passwd", domain.CategoryAttackExploit, "Exploit-Attempt"},
		{"sql union", "/search/union select 1,2,3", domain.CategoryAttackExploit, "Exploit-Attempt"},
		{"inline script", "/page/<script>alert(1)</script>", domain.CategoryAttackExploit, "Exploit-Attempt"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev := domain.NormalizedEvent{Path: tc.path, UserAgent: chromeUA, Headers: http.Header{}}
			res := engine.Classify(ev, nil)

			assert.Equal(t, tc.category, res.Category)
			assert.Equal(t, tc.identity, res.IdentityName)
			assert.Equal(t, classify.TierDeclared, res.DetectionTier)
			assert.True(t, res.IsBot)
		})
	}

	t.Run("legitimate php asset is not a webshell", func(t *testing.T) {
		ev := domain.NormalizedEvent{Path: "/gallery/photo.php", UserAgent: chromeUA, Headers: http.Header{}}
		res := engine.Classify(ev, nil)
		assert.NotEqual(t, domain.CategoryAttackWebshell, res.Category)
	})

	t.Run("webshell token list is configurable", func(t *testing.T) {
		custom := classify.New(classify.Config{WebshellTokens: []string{"gallery"}})
		ev := domain.NormalizedEvent{Path: "/gallery.php", Headers: http.Header{}}
		res := custom.Classify(ev, nil)
		assert.Equal(t, domain.CategoryAttackWebshell, res.Category)
	})

	t.Run("attack verdict beats declared AI signature", func(t *testing.T) {
		ev := domain.NormalizedEvent{
			Path:      "/wp-admin/admin.php",
			UserAgent: "Mozilla/5.0 (compatible; GPTBot/1.2; +https://openai.com/gptbot)",
			Headers:   http.Header{},
		}
		res := engine.Classify(ev, nil)
		assert.Equal(t, domain.CategoryAttackWordpress, res.Category)
	})
}

func TestClassify_BotTypes(t *testing.T) {
	engine := classify.New(classify.Config{})

	t.Run("declared AI bot regardless of datacenter status", func(t *testing.T) {
		for _, provider := range []string{"", "aws"} {
			ev := domain.NormalizedEvent{
				Path:               "/articles/1",
				UserAgent:          "Mozilla/5.0 (compatible; GPTBot/1.2; +https://openai.com/gptbot)",
				DatacenterProvider: provider,
				Headers:            http.Header{},
			}
			res := engine.Classify(ev, nil)

			require.Equal(t, domain.CategoryAIOfficial, res.Category)
			assert.Equal(t, "GPTBot", res.IdentityName)
			assert.Equal(t, classify.TierDeclared, res.DetectionTier)
		}
	})

	t.Run("extended AI signature wins over its crawler prefix", func(t *testing.T) {
		ev := domain.NormalizedEvent{
			Path:      "/",
			UserAgent: "Mozilla/5.0 (compatible; Applebot-Extended/1.0)",
			Headers:   http.Header{},
		}
		res := engine.Classify(ev, nil)

		assert.Equal(t, domain.CategoryAIOfficial, res.Category)
		assert.Equal(t, "Applebot-Extended", res.IdentityName)
	})

	t.Run("search crawler", func(t *testing.T) {
		ev := domain.NormalizedEvent{
			Path:      "/sitemap.xml",
			UserAgent: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			Headers:   http.Header{},
		}
		res := engine.Classify(ev, nil)

		assert.Equal(t, domain.CategoryWebCrawler, res.Category)
		assert.Equal(t, "Googlebot", res.IdentityName)
	})

	t.Run("headless client with fetch headers is a crawler, not human", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("Sec-Fetch-Site", "none")
		ev := domain.NormalizedEvent{
			Path:               "/pricing",
			UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) HeadlessChrome/123.0 Safari/537.36",
			HasSecFetchHeaders: true,
			Headers:            headers,
		}
		res := engine.Classify(ev, nil)

		assert.Equal(t, domain.CategoryWebCrawler, res.Category)
		assert.Equal(t, "HeadlessChrome", res.IdentityName)
	})

	t.Run("generic automation keyword", func(t *testing.T) {
		ev := domain.NormalizedEvent{Path: "/feed", UserAgent: "curl/8.5.0", Headers: http.Header{}}
		res := engine.Classify(ev, nil)

		assert.Equal(t, domain.CategoryWebCrawler, res.Category)
		assert.Empty(t, res.IdentityName)
	})

	t.Run("uptime service", func(t *testing.T) {
		ev := domain.NormalizedEvent{
			Path:      "/",
			UserAgent: "Mozilla/5.0+(compatible; UptimeRobot/2.0; http://www.uptimerobot.com/)",
			Headers:   http.Header{},
		}
		res := engine.Classify(ev, nil)

		assert.Equal(t, domain.CategoryMonitoring, res.Category)
		assert.Equal(t, "UptimeRobot", res.IdentityName)
		assert.Equal(t, classify.TierHeuristic, res.DetectionTier)
	})

	t.Run("acme challenge path", func(t *testing.T) {
		ev := domain.NormalizedEvent{Path: "/.well-known/acme-challenge/token123", Headers: http.Header{}}
		res := engine.Classify(ev, nil)
		assert.Equal(t, domain.CategoryMonitoring, res.Category)
	})

	t.Run("datacenter probe of simple root vs content path", func(t *testing.T) {
		root := domain.NormalizedEvent{Path: "/", DatacenterProvider: "azure", Headers: http.Header{}}
		res := engine.Classify(root, nil)
		assert.Equal(t, domain.CategoryMonitoring, res.Category)

		content := domain.NormalizedEvent{Path: "/articles/42", DatacenterProvider: "azure", Headers: http.Header{}}
		res = engine.Classify(content, nil)
		assert.Equal(t, domain.CategoryAIStealth, res.Category)
		assert.Equal(t, "AZURE-Crawler", res.IdentityName)
		assert.Equal(t, classify.TierHeuristic, res.DetectionTier)
	})

	t.Run("stealth AI with browser-like user-agent", func(t *testing.T) {
		ev := domain.NormalizedEvent{
			Path:               "/blog/post-7",
			UserAgent:          chromeUA,
			DatacenterProvider: "azure",
			Headers:            http.Header{},
		}
		res := engine.Classify(ev, nil)

		assert.Equal(t, domain.CategoryAIStealth, res.Category)
		assert.Equal(t, "AZURE-Stealth-AI", res.IdentityName)
	})
}

func TestClassify_Fallback(t *testing.T) {
	engine := classify.New(classify.Config{})

	t.Run("undetermined reason names the applicable signals", func(t *testing.T) {
		ev := domain.NormalizedEvent{
			Path:      "/contact",
			UserAgent: "SomethingUnrecognizable/1.0",
			Headers:   http.Header{},
		}
		res := engine.Classify(ev, nil)

		require.Equal(t, domain.CategoryUndetermined, res.Category)
		assert.Equal(t, "Undetermined-Bot", res.IdentityName)
		assert.Equal(t, classify.TierFallback, res.DetectionTier)
		assert.Contains(t, res.Reason, "missing fetch-intent headers")
	})

	t.Run("generic reason when no fallback signal applies", func(t *testing.T) {
		// Fetch headers present, residential, plain UA, but the rate check
		// failed: none of the fallback's three conditions hold.
		ev := browserEvent()
		agg := domain.SessionAggregate{RequestCount: 600, WindowSeconds: 60}
		res := engine.Classify(ev, &agg)

		require.Equal(t, domain.CategoryUndetermined, res.Category)
		assert.Equal(t, "failed human verification checks", res.Reason)
	})
}

func TestClassify_Properties(t *testing.T) {
	engine := classify.New(classify.Config{})

	t.Run("deterministic on repeated calls", func(t *testing.T) {
		ev := browserEvent()
		agg := domain.SessionAggregate{RequestCount: 3, WindowSeconds: 60}
		first := engine.Classify(ev, &agg)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, engine.Classify(ev, &agg))
		}
	})

	t.Run("total and never human from a datacenter", func(t *testing.T) {
		valid := map[domain.Category]struct{}{
			domain.CategoryHuman: {}, domain.CategoryAIOfficial: {},
			domain.CategoryAIStealth: {}, domain.CategoryWebCrawler: {},
			domain.CategoryMonitoring: {}, domain.CategoryUndetermined: {},
			domain.CategoryAttackWordpress: {}, domain.CategoryAttackWebshell: {},
			domain.CategoryAttackConfig: {}, domain.CategoryAttackExploit: {},
		}

		uas := []string{"", chromeUA, "curl/8.5.0", "GPTBot/1.2", "weird \x00 bytes"}
		paths := []string{"/", "/wp-admin", "/articles/1", "/.env", "/a?b=c"}
		providers := []string{"", "aws", "hosting"}
		for _, ua := range uas {
			for _, p := range paths {
				for _, provider := range providers {
					ev := domain.NormalizedEvent{
						Path: p, UserAgent: ua,
						DatacenterProvider: provider,
						Headers:            http.Header{},
					}
					res := engine.Classify(ev, nil)

					_, ok := valid[res.Category]
					require.True(t, ok, "category %q not in vocabulary", res.Category)
					if provider != "" {
						require.NotEqual(t, domain.CategoryHuman, res.Category)
					}
					require.Equal(t, res.IsBot, res.Category != domain.CategoryHuman)
				}
			}
		}
	})
}
