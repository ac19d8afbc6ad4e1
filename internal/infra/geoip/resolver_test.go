package geoip

import (
	"errors"
	"net"
	"testing"

	"github.com/oschwald/geoip2-golang"
)

type fakeCityReader struct {
	city *geoip2.City
	err  error
	seen net.IP
}

func (f *fakeCityReader) City(ip net.IP) (*geoip2.City, error) {
	f.seen = ip
	return f.city, f.err
}

func (f *fakeCityReader) Close() error { return nil }

func TestLocate(t *testing.T) {
	city := &geoip2.City{}
	city.Location.Latitude = 23.7
	city.Location.Longitude = 90.4
	reader := &fakeCityReader{city: city}
	r := &Resolver{reader: reader}

	p, err := r.Locate(" 203.0.113.9 ")
	if err != nil {
		t.Fatalf("Locate error: %v", err)
	}
	if p.Lat != 23.7 || p.Lng != 90.4 {
		t.Fatalf("unexpected point %+v", p)
	}
	if reader.seen.String() != "203.0.113.9" {
		t.Fatalf("reader saw %v", reader.seen)
	}
}

func TestLocateErrors(t *testing.T) {
	var nilResolver *Resolver
	if _, err := nilResolver.Locate("203.0.113.9"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("nil resolver err = %v", err)
	}

	r := &Resolver{reader: &fakeCityReader{city: &geoip2.City{}}}
	if _, err := r.Locate("not-an-ip"); err == nil {
		t.Fatal("expected invalid ip error")
	}
	if _, err := r.Locate("203.0.113.9"); !errors.Is(err, ErrNoLocation) {
		t.Fatalf("zero location err = %v", err)
	}

	r = &Resolver{reader: &fakeCityReader{err: errors.New("boom")}}
	if _, err := r.Locate("203.0.113.9"); err == nil {
		t.Fatal("expected lookup error")
	}
}

func TestNewResolverEmptyPath(t *testing.T) {
	r, err := NewResolver("  ")
	if err != nil || r != nil {
		t.Fatalf("NewResolver(empty) = %v, %v", r, err)
	}
}
