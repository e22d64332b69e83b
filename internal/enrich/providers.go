package enrich

import "strings"

// hostingKeywords trigger the generic "hosting" label when found in an
// organization name and no explicit ASN entry exists.
var hostingKeywords = []string{
	"cloud", "hosting", "server", "datacenter", "data center", "dedicated",
	"vps", "compute", "infrastructure", "colo", "colocation", "idc", "cdn",
}

// GenericHostingLabel is returned for organizations matched only by keyword.
const GenericHostingLabel = "hosting"

// ProviderTable decides whether an autonomous network is a hosting/cloud
// datacenter. Explicit ASN entries always take precedence over the keyword
// fallback; an explicit empty label excludes an organization whose name would
// otherwise trigger a keyword. The table is immutable: WithProvider copies.
type ProviderTable struct {
	explicit map[uint]string
}

// defaultASNProviders maps well-known cloud and hosting networks to their
// provider label.
var defaultASNProviders = map[uint]string{
	16509:  "aws",
	14618:  "aws",
	8987:   "aws",
	15169:  "gcp",
	396982: "gcp",
	8075:   "azure",
	14061:  "digitalocean",
	24940:  "hetzner",
	213230: "hetzner",
	16276:  "ovh",
	63949:  "linode",
	20473:  "vultr",
	51167:  "contabo",
	12876:  "scaleway",
	45102:  "alibaba",
	31898:  "oracle",
	132203: "tencent",
	13335:  "cloudflare",
	54113:  "fastly",
}

// DefaultProviderTable returns the built-in table.
func DefaultProviderTable() ProviderTable {
	explicit := make(map[uint]string, len(defaultASNProviders))
	for asn, label := range defaultASNProviders {
		explicit[asn] = label
	}
	return ProviderTable{explicit: explicit}
}

// WithProvider returns a copy of the table with asn mapped to label. An empty
// label is an explicit exclusion. The receiver is unchanged.
func (t ProviderTable) WithProvider(asn uint, label string) ProviderTable {
	explicit := make(map[uint]string, len(t.explicit)+1)
	for k, v := range t.explicit {
		explicit[k] = v
	}
	explicit[asn] = label
	return ProviderTable{explicit: explicit}
}

// Classify returns the provider label for an autonomous network, or "" when
// the network is not a recognized hosting origin.
func (t ProviderTable) Classify(asn uint, org string) string {
	if label, ok := t.explicit[asn]; ok {
		return label
	}
	lowered := strings.ToLower(org)
	for _, kw := range hostingKeywords {
		if strings.Contains(lowered, kw) {
			return GenericHostingLabel
		}
	}
	return ""
}
