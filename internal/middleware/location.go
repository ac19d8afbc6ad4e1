package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"

	"pulsethread/internal/domain"
	"pulsethread/internal/infra/geoip"
)

type locationContextKey struct{}

// ViewerLocation attaches the viewer's approximate position to the request context. An
// explicit "X-Viewer-Location: <lat>,<lng>" header wins; otherwise the client IP is looked up
// when a locator is configured.
func ViewerLocation(locator geoip.Locator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p, ok := ResolveLocation(r, locator); ok {
				r = r.WithContext(context.WithValue(r.Context(), locationContextKey{}, p))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ResolveLocation returns the best-effort viewer position for r.
func ResolveLocation(r *http.Request, locator geoip.Locator) (domain.Point, bool) {
	if r == nil {
		return domain.Point{}, false
	}
	if p, ok := parseLatLng(r.Header.Get("X-Viewer-Location")); ok {
		return p, true
	}
	if locator == nil {
		return domain.Point{}, false
	}
	ip := ClientIP(r)
	if ip == "" {
		return domain.Point{}, false
	}
	p, err := locator.Locate(ip)
	if err != nil {
		return domain.Point{}, false
	}
	return p, true
}

// LocationFromContext returns the position stored by ViewerLocation.
func LocationFromContext(ctx context.Context) (domain.Point, bool) {
	p, ok := ctx.Value(locationContextKey{}).(domain.Point)
	return p, ok
}

func parseLatLng(raw string) (domain.Point, bool) {
	latRaw, lngRaw, ok := strings.Cut(raw, ",")
	if !ok {
		return domain.Point{}, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latRaw), 64)
	if err != nil {
		return domain.Point{}, false
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngRaw), 64)
	if err != nil {
		return domain.Point{}, false
	}
	p := domain.Point{Lat: lat, Lng: lng}
	if p.Validate() != nil {
		return domain.Point{}, false
	}
	return p, true
}

// ClientIP returns the best-effort client IP address for the request.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
