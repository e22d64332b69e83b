package enrich

import (
	"net"

	"github.com/oschwald/maxminddb-golang"

	"github.com/trafficlens/trafficlens/internal/domain"
)

// NetworkOrigin is the result of a network-origin lookup. ASN 0 and empty
// strings mean the address did not resolve; DatacenterProvider is empty for
// residential/unknown origins.
type NetworkOrigin struct {
	ASN                uint
	Org                string
	DatacenterProvider string
}

// NetOriginResolver maps client addresses to an autonomous network and,
// heuristically, to a hosting/cloud provider label. The provider table is
// immutable; WithProvider derives a new resolver instead of mutating shared
// state. The zero value is a valid, permanently-null resolver.
type NetOriginResolver struct {
	db        *maxminddb.Reader
	providers ProviderTable
}

// OpenNetOriginResolver loads the ASN dataset at path. On error the caller
// should log a warning and fall back to the zero-value resolver.
func OpenNetOriginResolver(path string, providers ProviderTable) (*NetOriginResolver, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, err
	}
	return &NetOriginResolver{db: db, providers: providers}, nil
}

// WithProvider returns a resolver whose table additionally maps asn to label.
// An empty label is an explicit exclusion: it suppresses the keyword fallback
// for organizations whose name contains a trigger word but are not hosting
// networks. The receiver is unchanged.
func (r *NetOriginResolver) WithProvider(asn uint, label string) *NetOriginResolver {
	derived := &NetOriginResolver{providers: r.providerTable().WithProvider(asn, label)}
	if r != nil {
		derived.db = r.db
	}
	return derived
}

// Close releases the underlying dataset.
func (r *NetOriginResolver) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *NetOriginResolver) providerTable() ProviderTable {
	if r == nil {
		return DefaultProviderTable()
	}
	return r.providers
}

type asnRecord struct {
	Number uint   `maxminddb:"autonomous_system_number"`
	Org    string `maxminddb:"autonomous_system_organization"`
}

// Resolve looks up an address. Unresolvable, private or malformed addresses
// return the zero NetworkOrigin; that is the expected residential/unknown
// case, not an error.
func (r *NetOriginResolver) Resolve(address string) NetworkOrigin {
	if r == nil || r.db == nil {
		return NetworkOrigin{}
	}
	ip := net.ParseIP(address)
	if ip == nil {
		return NetworkOrigin{}
	}

	var rec asnRecord
	if err := r.db.Lookup(ip, &rec); err != nil || rec.Number == 0 {
		return NetworkOrigin{}
	}
	return NetworkOrigin{
		ASN:                rec.Number,
		Org:                rec.Org,
		DatacenterProvider: r.providers.Classify(rec.Number, rec.Org),
	}
}

// Enrich fills the network fields of the event in place.
func (r *NetOriginResolver) Enrich(ev *domain.NormalizedEvent) {
	origin := r.Resolve(ev.ClientAddress)
	ev.ASN = origin.ASN
	ev.ASNOrg = origin.Org
	ev.DatacenterProvider = origin.DatacenterProvider
}
