package domain

import (
	"math"
	"testing"
)

func TestParsePoint(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Point
		wantErr bool
	}{
		{name: "longitude first", raw: "POINT(90.4125 23.8103)", want: Point{Lat: 23.8103, Lng: 90.4125}},
		{name: "negative values", raw: "POINT(-73.9857 -40.7484)", want: Point{Lat: -40.7484, Lng: -73.9857}},
		{name: "surrounding space", raw: "  POINT(1 2) ", want: Point{Lat: 2, Lng: 1}},
		{name: "nan", raw: "POINT(NaN 10)", wantErr: true},
		{name: "not a number", raw: "POINT(abc 10)", wantErr: true},
		{name: "lat out of range", raw: "POINT(10 95)", wantErr: true},
		{name: "lng out of range", raw: "POINT(181 10)", wantErr: true},
		{name: "comma separated", raw: "POINT(10,20)", wantErr: true},
		{name: "missing prefix", raw: "(10 20)", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
		{name: "three values", raw: "POINT(1 2 3)", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParsePoint(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParsePoint(%q) = %+v, want error", tc.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePoint(%q) error: %v", tc.raw, err)
			}
			if got != tc.want {
				t.Fatalf("ParsePoint(%q) = %+v, want %+v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestPointStringRoundTrip(t *testing.T) {
	p := Point{Lat: 23.8103, Lng: 90.4125}
	if got := p.String(); got != "POINT(90.4125 23.8103)" {
		t.Fatalf("String() = %q", got)
	}
	back, err := ParsePoint(p.String())
	if err != nil {
		t.Fatalf("ParsePoint: %v", err)
	}
	if back != p {
		t.Fatalf("round trip mismatch: %+v != %+v", back, p)
	}
}

func TestDistanceKm(t *testing.T) {
	dhaka := Point{Lat: 23.8103, Lng: 90.4125}
	chittagong := Point{Lat: 22.3569, Lng: 91.7832}
	d := DistanceKm(dhaka, chittagong)
	if math.Abs(d-216) > 5 {
		t.Fatalf("DistanceKm = %.1f, want about 216", d)
	}
	if DistanceKm(dhaka, dhaka) != 0 {
		t.Fatal("distance to self should be zero")
	}
}
