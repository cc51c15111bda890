package iplocate

import (
	"errors"
	"fmt"
	"log"
	"net"

	"github.com/oschwald/geoip2-golang"
)

var (
	ErrDisabled   = errors.New("ip geolocation is not configured")
	ErrInvalidIP  = errors.New("invalid ip address")
	ErrNoLocation = errors.New("no location for ip address")
)

// Location is the approximate position of an IP address.
type Location struct {
	IP             string  `json:"ip"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	AccuracyKm     int     `json:"accuracy_km"`
	CountryISOCode string  `json:"country_iso_code,omitempty"`
}

// Locator looks addresses up in a MaxMind City database. A nil *Locator is
// valid and always returns ErrDisabled.
type Locator struct {
	db *geoip2.Reader
}

// Open returns (nil, nil) when path is empty so the feature can stay off.
func Open(path string) (*Locator, error) {
	if path == "" {
		return nil, nil
	}
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %s: %w", path, err)
	}
	log.Printf("[iplocate] Opened GeoIP database %s", path)
	return &Locator{db: db}, nil
}

func (l *Locator) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}

func (l *Locator) Lookup(ip string) (Location, error) {
	if l == nil {
		return Location{}, ErrDisabled
	}
	addr := net.ParseIP(ip)
	if addr == nil {
		return Location{}, fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}
	rec, err := l.db.City(addr)
	if err != nil {
		return Location{}, fmt.Errorf("geoip lookup %s: %w", ip, err)
	}
	if rec.Location.Latitude == 0 && rec.Location.Longitude == 0 {
		return Location{}, ErrNoLocation
	}
	return Location{
		IP:             addr.String(),
		Latitude:       rec.Location.Latitude,
		Longitude:      rec.Location.Longitude,
		AccuracyKm:     int(rec.Location.AccuracyRadius),
		CountryISOCode: rec.Country.IsoCode,
	}, nil
}
