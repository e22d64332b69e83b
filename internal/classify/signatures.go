package classify

import (
	"regexp"
	"strings"
)

// signature is one user-agent signature: a stable identity name plus the
// lowercase token matched as a substring. Tables are ordered; the first
// matching entry wins, so more specific tokens are listed before the generic
// ones they contain (Applebot-Extended is caught by the AI table before the
// crawler table ever sees Applebot).
type signature struct {
	name  string
	token string
}

func (s signature) matches(loweredUA string) bool {
	return strings.Contains(loweredUA, s.token)
}

func matchSignature(table []signature, ua string) (string, bool) {
	lowered := strings.ToLower(ua)
	for _, s := range table {
		if s.matches(lowered) {
			return s.name, true
		}
	}
	return "", false
}

// aiBotSignatures are organization-declared AI crawler identities.
var aiBotSignatures = []signature{
	{"GPTBot", "gptbot"},
	{"ChatGPT-User", "chatgpt-user"},
	{"OAI-SearchBot", "oai-searchbot"},
	{"ClaudeBot", "claudebot"},
	{"Claude-User", "claude-user"},
	{"Claude-Web", "claude-web"},
	{"Anthropic-AI", "anthropic-ai"},
	{"PerplexityBot", "perplexitybot"},
	{"Perplexity-User", "perplexity-user"},
	{"Google-Extended", "google-extended"},
	{"Applebot-Extended", "applebot-extended"},
	{"Meta-ExternalAgent", "meta-externalagent"},
	{"Meta-ExternalFetcher", "meta-externalfetcher"},
	{"FacebookBot", "facebookbot"},
	{"Bytespider", "bytespider"},
	{"CCBot", "ccbot"},
	{"Cohere-AI", "cohere-ai"},
	{"Amazonbot", "amazonbot"},
	{"AI2Bot", "ai2bot"},
	{"Diffbot", "diffbot"},
	{"DuckAssistBot", "duckassistbot"},
	{"MistralAI-User", "mistralai-user"},
	{"YouBot", "youbot"},
	{"ImagesiftBot", "imagesiftbot"},
	{"Omgilibot", "omgilibot"},
	{"Timpibot", "timpibot"},
	{"iaskspider", "iaskspider"},
	{"Kangaroo-Bot", "kangaroo bot"},
	{"img2dataset", "img2dataset"},
}

// crawlerSignatures are search, social and SEO crawlers.
var crawlerSignatures = []signature{
	{"Googlebot", "googlebot"},
	{"Bingbot", "bingbot"},
	{"Slurp", "slurp"},
	{"DuckDuckBot", "duckduckbot"},
	{"Baiduspider", "baiduspider"},
	{"YandexBot", "yandexbot"},
	{"Sogou", "sogou"},
	{"SeznamBot", "seznambot"},
	{"Applebot", "applebot"},
	{"PetalBot", "petalbot"},
	{"facebookexternalhit", "facebookexternalhit"},
	{"Twitterbot", "twitterbot"},
	{"LinkedInBot", "linkedinbot"},
	{"Pinterestbot", "pinterestbot"},
	{"WhatsApp", "whatsapp"},
	{"TelegramBot", "telegrambot"},
	{"Discordbot", "discordbot"},
	{"AhrefsBot", "ahrefsbot"},
	{"SemrushBot", "semrushbot"},
	{"MJ12bot", "mj12bot"},
	{"DotBot", "dotbot"},
	{"BLEXBot", "blexbot"},
	{"DataForSeoBot", "dataforseobot"},
	{"Screaming-Frog", "screaming frog"},
	{"magpie-crawler", "magpie-crawler"},
	{"Scrapy", "scrapy"},
}

// headlessSignatures are headless-browser, automation-framework and
// remote-debugging markers. Matching one fails the human gate; outside an
// attack context the client is treated as generic automation.
var headlessSignatures = []signature{
	{"HeadlessChrome", "headlesschrome"},
	{"PhantomJS", "phantomjs"},
	{"SlimerJS", "slimerjs"},
	{"Selenium", "selenium"},
	{"WebDriver", "webdriver"},
	{"ChromeDriver", "chromedriver"},
	{"Playwright", "playwright"},
	{"Puppeteer", "puppeteer"},
	{"Cypress", "cypress"},
	{"Electron", "electron"},
	{"Remote-Debugging", "remote-debugging"},
}

// monitoringSignatures are uptime and health-check services.
var monitoringSignatures = []signature{
	{"UptimeRobot", "uptimerobot"},
	{"Pingdom", "pingdom"},
	{"StatusCake", "statuscake"},
	{"Site24x7", "site24x7"},
	{"Uptime-Kuma", "uptime-kuma"},
	{"BetterUptime", "betteruptime"},
	{"Checkly", "checkly"},
	{"Freshping", "freshping"},
	{"Zabbix", "zabbix"},
	{"Nagios", "check_http"},
	{"Datadog", "datadog"},
	{"NewRelicPinger", "newrelicpinger"},
	{"StackdriverMonitoring", "googlestackdrivermonitoring"},
	{"AmazonCloudWatch", "amazon cloudwatch"},
	{"HetznerMonitoring", "hetzner system monitoring"},
}

// genericBotPattern catches self-identifying automation that no table names.
var genericBotPattern = regexp.MustCompile(`(?i)(bot|crawler|spider|scraper|curl|wget|python-requests|python-urllib|go-http-client|libwww|httpclient|okhttp|node-fetch|axios|java/)`)

// verificationPaths are well-known challenge paths requested by certificate
// and domain-ownership validators.
var verificationPaths = []string{
	"/.well-known/acme-challenge/",
	"/.well-known/pki-validation/",
}

// simpleRootPaths are the pages infrastructure probes hit when checking a
// site is alive. A datacenter client with no user-agent touching only these
// is monitoring, not crawling.
var simpleRootPaths = map[string]struct{}{
	"/":            {},
	"/robots.txt":  {},
	"/favicon.ico": {},
	"/index.html":  {},
	"/sitemap.xml": {},
}

func isHeadlessUA(ua string) (string, bool) {
	return matchSignature(headlessSignatures, ua)
}

func isBrowserLikeUA(ua string) bool {
	lowered := strings.ToLower(ua)
	if !strings.Contains(lowered, "mozilla") {
		return false
	}
	for _, engine := range []string{"chrome", "safari", "firefox", "edg"} {
		if strings.Contains(lowered, engine) {
			return true
		}
	}
	return false
}

func isVerificationPath(path string) bool {
	for _, prefix := range verificationPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func isSimpleRootPath(path string) bool {
	_, ok := simpleRootPaths[strings.ToLower(path)]
	return ok
}
