// Package matching decides which open requests a prospective donor may see.
package matching

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync/atomic"

	"github.com/rs/zerolog"

	"pulsethread/internal/domain"
	"pulsethread/internal/metrics"
)

// ErrFeedConsumed is yielded when a feed is ranged over a second time.
var ErrFeedConsumed = errors.New("matching: feed already consumed")

// Listing is one request offered to a donor.
type Listing struct {
	domain.Request
	ActiveResponses int
	Point           domain.Point
	// DistanceKm is set when the viewer location is known.
	DistanceKm *float64
}

// Engine builds the matching feed.
type Engine struct {
	requests domain.RequestRepository
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

func NewEngine(requests domain.RequestRepository, logger zerolog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		requests: requests,
		logger:   logger.With().Str("component", "matching").Logger(),
		metrics:  m,
	}
}

// ListOpenRequests returns the feed for viewerID, newest first. Nothing is read until the
// sequence is ranged over, and it can be ranged over once; call again for fresh state.
//
// Requests whose stored location cannot be parsed are skipped and yielded as a
// *domain.DataIntegrityWarning error; iteration continues after a warning. Any other error
// ends the sequence.
func (e *Engine) ListOpenRequests(ctx context.Context, viewerID string, viewerLocation *domain.Point) iter.Seq2[Listing, error] {
	var used atomic.Bool
	return func(yield func(Listing, error) bool) {
		if used.Swap(true) {
			yield(Listing{}, ErrFeedConsumed)
			return
		}
		rows, err := e.requests.ListOpen(ctx, viewerID)
		if err != nil {
			yield(Listing{}, err)
			return
		}
		for _, row := range rows {
			if !eligible(row, viewerID) {
				continue
			}
			point, err := domain.ParsePoint(row.Location)
			if err != nil {
				w := &domain.DataIntegrityWarning{RequestID: row.ID, Field: "location", Value: row.Location, Err: err}
				e.metrics.IntegrityWarning()
				e.logger.Warn().Err(err).Str("request_id", row.ID).Str("location", row.Location).Msg("skipping request with malformed location")
				if !yield(Listing{}, w) {
					return
				}
				continue
			}
			l := Listing{Request: row.Request, ActiveResponses: row.ActiveResponses, Point: point}
			if viewerLocation != nil {
				d := domain.DistanceKm(*viewerLocation, point)
				l.DistanceKm = &d
			}
			if !yield(l, nil) {
				return
			}
		}
	}
}

// eligible applies the feed rules in order: PENDING only, never the viewer's own request,
// and only while a unit remains.
func eligible(row domain.RequestWithCount, viewerID string) bool {
	if row.Status != domain.RequestPending {
		return false
	}
	if row.RequesterID == viewerID {
		return false
	}
	return row.ActiveResponses < row.UnitsNeeded
}

// Collect drains a feed. Warnings are returned separately; the first other error aborts.
func Collect(feed iter.Seq2[Listing, error]) ([]Listing, []*domain.DataIntegrityWarning, error) {
	var (
		items    []Listing
		warnings []*domain.DataIntegrityWarning
	)
	for l, err := range feed {
		if err != nil {
			var w *domain.DataIntegrityWarning
			if errors.As(err, &w) {
				warnings = append(warnings, w)
				continue
			}
			return nil, warnings, err
		}
		items = append(items, l)
	}
	return items, warnings, nil
}

// SortByProximity returns a copy of items ordered nearest first. Ties keep feed order.
func SortByProximity(items []Listing, origin domain.Point) []Listing {
	out := make([]Listing, len(items))
	for i, l := range items {
		d := domain.DistanceKm(origin, l.Point)
		l.DistanceKm = &d
		out[i] = l
	}
	slices.SortStableFunc(out, func(a, b Listing) int {
		switch {
		case *a.DistanceKm < *b.DistanceKm:
			return -1
		case *a.DistanceKm > *b.DistanceKm:
			return 1
		}
		return 0
	})
	return out
}
