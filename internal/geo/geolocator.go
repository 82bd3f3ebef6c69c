// Package geo определяет грубую геолокацию клиентского адреса по локальной
// базе GeoLite2. Работает строго best-effort: любой сбой превращается
// в "unknown" и никогда не ломает визит.
package geo

import (
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

const Unknown = "unknown"

type Location struct {
	Country   string
	StateCode string
}

var unknownLocation = Location{Country: Unknown, StateCode: Unknown}

type Locator interface {
	Locate(ip string) Location
	Close() error
}

type locator struct {
	reader *geoip2.Reader
}

// NewLocator открывает базу городов GeoLite2 по пути path. Пустой путь
// допустим и даёт локатор, который всегда отвечает unknown.
func NewLocator(path string) (Locator, error) {
	if path == "" {
		return &locator{}, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoLite2 database: %w", err)
	}
	return &locator{reader: reader}, nil
}

func (l *locator) Locate(ip string) Location {
	// Кампусные адреса не попадают в GeoLite2, определяем их сами
	if strings.HasPrefix(ip, "172.") {
		return Location{Country: "United States", StateCode: "NJ"}
	}

	if l.reader == nil {
		return unknownLocation
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return unknownLocation
	}

	record, err := l.reader.City(parsed)
	if err != nil {
		return unknownLocation
	}

	loc := unknownLocation
	if record.Country.Names["en"] != "" {
		loc.Country = record.Country.Names["en"]
	}
	if len(record.Subdivisions) > 0 && record.Subdivisions[0].IsoCode != "" {
		loc.StateCode = record.Subdivisions[0].IsoCode
	}
	return loc
}

func (l *locator) Close() error {
	if l.reader == nil {
		return nil
	}
	return l.reader.Close()
}
