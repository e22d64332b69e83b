package classify

import (
	"path"
	"strings"

	"github.com/trafficlens/trafficlens/internal/domain"
)

// AttackMatch is the verdict of the attack-path rules. Identity is a fixed
// label per sub-rule, not a resolved client identity.
type AttackMatch struct {
	Category domain.Category
	Identity string
	Reason   string
}

// DefaultWebshellTokens guards the webshell rule: a script path is flagged
// only when its filename also carries one of these tokens, which keeps
// legitimate .php assets out of the attack bucket. Override via
// Config.WebshellTokens.
var DefaultWebshellTokens = []string{
	"shell", "cmd", "eval", "exec", "backdoor", "bypass", "hack",
	"c99", "r57", "wso", "alfa", "b374k", "mini", "filemanager", "adminer",
}

// wordpressPatterns cover the CMS admin and exploit surface.
var wordpressPatterns = []string{
	"/wp-admin", "/wp-login", "/wp-content/plugins", "/wp-includes",
	"/wp-config", "/xmlrpc.php", "/wordpress/",
}

// scriptExtensions are the executable extensions the webshell rule considers.
var scriptExtensions = []string{".php", ".php5", ".php7", ".phtml", ".asp", ".aspx", ".jsp"}

// configPatterns cover secret files, VCS metadata and DB admin consoles.
var configPatterns = []string{
	"/.env", "/.git", "/.svn", "/.aws", "/.ssh", "id_rsa", ".htpasswd",
	"/phpmyadmin", "/pma/", "/phpinfo", "/dbadmin", "/mysqladmin",
	"web.config", "appsettings.json", "/config.json", "/settings.py",
	"/application.yml", "backup.sql", "dump.sql",
}

// exploitTokens are traversal, inline-script, SQL-union and code-exec
// fragments matched anywhere in the path.
var exploitTokens = []string{
	"../", "..%2f", "..%5c", "%2e%2e",
	"<script", "%3cscript",
	"union select", "union+select", "union%20select", "union all select",
	"base64_decode", "eval(", "system(", "exec(", "passthru(",
	"/etc/passwd", "${", "%24%7b", "{{",
}

// MatchAttack runs the ordered attack sub-rules against a request path.
// The first matching sub-rule wins. The same matcher backs both pipeline
// enrichment and on-demand classification so the two never disagree.
func MatchAttack(requestPath string, webshellTokens []string) (AttackMatch, bool) {
	if webshellTokens == nil {
		webshellTokens = DefaultWebshellTokens
	}
	lowered := strings.ToLower(requestPath)

	for _, p := range wordpressPatterns {
		if strings.Contains(lowered, p) {
			return AttackMatch{
				Category: domain.CategoryAttackWordpress,
				Identity: "WordPress-Scanner",
				Reason:   "request path targets the WordPress admin/exploit surface",
			}, true
		}
	}

	if isWebshellPath(lowered, webshellTokens) {
		return AttackMatch{
			Category: domain.CategoryAttackWebshell,
			Identity: "Webshell-Scanner",
			Reason:   "request path probes for a web shell or backdoor script",
		}, true
	}

	for _, p := range configPatterns {
		if strings.Contains(lowered, p) {
			return AttackMatch{
				Category: domain.CategoryAttackConfig,
				Identity: "Config-Scanner",
				Reason:   "request path probes for secrets, config files or DB admin consoles",
			}, true
		}
	}

	for _, tok := range exploitTokens {
		if strings.Contains(lowered, tok) {
			return AttackMatch{
				Category: domain.CategoryAttackExploit,
				Identity: "Exploit-Attempt",
				Reason:   "request path carries a traversal, injection or code-execution payload",
			}, true
		}
	}

	return AttackMatch{}, false
}

func isWebshellPath(loweredPath string, tokens []string) bool {
	base := path.Base(loweredPath)
	scripted := false
	for _, ext := range scriptExtensions {
		if strings.HasSuffix(base, ext) {
			scripted = true
			break
		}
	}
	if !scripted {
		return false
	}
	for _, tok := range tokens {
		if strings.Contains(base, tok) {
			return true
		}
	}
	return false
}
