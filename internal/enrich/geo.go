// Package enrich provides the read-only address-enrichment lookups: coarse
// geography and network origin. Datasets are memory-mapped MMDB files loaded
// once at startup; lookups are in-memory and side-effect free. A resolver
// built without its dataset degrades to null lookups instead of failing —
// traffic volume matters more than geo precision.
package enrich

import (
	"net"

	"github.com/oschwald/maxminddb-golang"

	"github.com/trafficlens/trafficlens/internal/domain"
)

// GeoInfo is the result of a geographic lookup. The zero value means the
// address did not resolve (private, malformed or not in the dataset).
type GeoInfo struct {
	Country   string
	City      string
	Latitude  float64
	Longitude float64
}

// GeoResolver maps client addresses to coarse geography via a GeoLite2-City
// style dataset. The zero value is a valid, permanently-null resolver.
type GeoResolver struct {
	db *maxminddb.Reader
}

// OpenGeoResolver loads the city dataset at path. On error the caller should
// log a warning and fall back to the zero-value resolver.
func OpenGeoResolver(path string) (*GeoResolver, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, err
	}
	return &GeoResolver{db: db}, nil
}

// Close releases the underlying dataset.
func (r *GeoResolver) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

type cityRecord struct {
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	Location struct {
		Latitude  float64 `maxminddb:"latitude"`
		Longitude float64 `maxminddb:"longitude"`
	} `maxminddb:"location"`
}

// Resolve looks up an address. Unresolvable addresses return the zero
// GeoInfo; that is the expected residential/unknown case, not an error.
func (r *GeoResolver) Resolve(address string) GeoInfo {
	if r == nil || r.db == nil {
		return GeoInfo{}
	}
	ip := net.ParseIP(address)
	if ip == nil {
		return GeoInfo{}
	}

	var rec cityRecord
	if err := r.db.Lookup(ip, &rec); err != nil {
		return GeoInfo{}
	}
	return GeoInfo{
		Country:   rec.Country.ISOCode,
		City:      rec.City.Names["en"],
		Latitude:  rec.Location.Latitude,
		Longitude: rec.Location.Longitude,
	}
}

// Enrich fills the geo fields of the event in place.
func (r *GeoResolver) Enrich(ev *domain.NormalizedEvent) {
	info := r.Resolve(ev.ClientAddress)
	ev.Country = info.Country
	ev.City = info.City
	ev.Latitude = info.Latitude
	ev.Longitude = info.Longitude
}
