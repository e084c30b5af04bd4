package services

import (
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"netsentry/models"
	"netsentry/system"
)

// GeoIPService resolves source addresses to a geographic location using a
// local GeoLite2 database. A missing database disables enrichment; lookups
// then return Unknown defaults rather than failing the pipeline.
type GeoIPService struct {
	mu     sync.RWMutex
	reader *geoip2.Reader
}

func NewGeoIPService(dbPath string) *GeoIPService {
	svc := &GeoIPService{}

	if dbPath == "" {
		system.Warn("No GeoIP database configured, location enrichment disabled")
		return svc
	}

	reader, err := geoip2.Open(dbPath)
	if err != nil {
		system.Warn("GeoIP database %s not available, location enrichment disabled: %v", dbPath, err)
		return svc
	}

	svc.reader = reader
	system.Info("GeoIP database loaded: %s", dbPath)
	return svc
}

// Locate returns the location of an address, or Unknown defaults when the
// database is absent or the address cannot be resolved.
func (g *GeoIPService) Locate(ipStr string) models.GeoLocation {
	if g == nil {
		return models.UnknownLocation()
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.reader == nil {
		return models.UnknownLocation()
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return models.UnknownLocation()
	}

	record, err := g.reader.City(ip)
	if err != nil {
		return models.UnknownLocation()
	}

	loc := models.GeoLocation{
		Country:   record.Country.Names["en"],
		City:      record.City.Names["en"],
		Latitude:  record.Location.Latitude,
		Longitude: record.Location.Longitude,
	}
	if loc.Country == "" {
		loc.Country = "Unknown"
	}
	if loc.City == "" {
		loc.City = "Unknown"
	}
	return loc
}

// Close releases the underlying database handle.
func (g *GeoIPService) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.reader != nil {
		g.reader.Close()
		g.reader = nil
	}
}
