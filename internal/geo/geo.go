package geo

import (
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Locator tags query logs with the client's country. It never feeds the
// failover decision; a nil Locator is valid and answers nothing.
type Locator struct {
	db *geoip2.Reader
}

// Open loads a GeoIP2 database. An empty path yields a nil Locator.
func Open(path string) (*Locator, error) {
	if path == "" {
		return nil, nil
	}
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &Locator{db: db}, nil
}

// Country returns the ISO country code for ip, or "" when unknown.
func (l *Locator) Country(ip net.IP) string {
	if l == nil || ip == nil {
		return ""
	}
	rec, err := l.db.Country(ip)
	if err != nil {
		return ""
	}
	return rec.Country.IsoCode
}

// Close releases the underlying database.
func (l *Locator) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}
