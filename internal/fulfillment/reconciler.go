// Package fulfillment closes requests once enough units have been donated.
package fulfillment

import (
	"context"

	"github.com/rs/zerolog"

	"pulsethread/internal/domain"
	"pulsethread/internal/lifecycle"
	"pulsethread/internal/metrics"
)

// Reconciler compares DONATED counts with units needed.
type Reconciler struct {
	requests  domain.RequestRepository
	donations domain.DonationRepository
	lifecycle *lifecycle.Requests
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

func NewReconciler(requests domain.RequestRepository, donations domain.DonationRepository, lc *lifecycle.Requests, logger zerolog.Logger, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		requests:  requests,
		donations: donations,
		lifecycle: lc,
		logger:    logger.With().Str("component", "reconciler").Logger(),
		metrics:   m,
	}
}

// Reconcile marks the request FULFILLED when at least one donation is DONATED and the DONATED
// count reaches units needed. It reports whether this call closed the request. The count and
// the write are separate steps; repeating the call is harmless.
func (r *Reconciler) Reconcile(ctx context.Context, requestID string) (bool, error) {
	req, err := r.requests.GetByID(ctx, requestID)
	if err != nil {
		r.metrics.Reconciled("error")
		return false, err
	}
	if req.Status.IsTerminal() {
		r.metrics.Reconciled("closed")
		return false, nil
	}
	donated, err := r.donations.CountByStatus(ctx, requestID, domain.DonationDonated)
	if err != nil {
		r.metrics.Reconciled("error")
		return false, err
	}
	if donated == 0 || donated < req.UnitsNeeded {
		r.metrics.Reconciled("short")
		r.logger.Debug().Str("request_id", requestID).Int("donated", donated).Int("units", req.UnitsNeeded).Msg("request still short")
		return false, nil
	}
	changed, err := r.lifecycle.MarkFulfilled(ctx, requestID)
	if err != nil {
		r.metrics.Reconciled("error")
		return false, err
	}
	if changed {
		r.metrics.Reconciled("fulfilled")
	} else {
		r.metrics.Reconciled("closed")
	}
	return changed, nil
}

// Sweep reconciles up to limit open requests that already have enough DONATED units. It
// returns how many it closed. Individual failures are logged and skipped.
func (r *Reconciler) Sweep(ctx context.Context, limit int) (int, error) {
	ids, err := r.requests.ListReconcilable(ctx, limit)
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return closed, ctx.Err()
		}
		changed, err := r.Reconcile(ctx, id)
		if err != nil {
			r.logger.Error().Err(err).Str("request_id", id).Msg("sweep reconcile failed")
			continue
		}
		if changed {
			closed++
		}
	}
	if closed > 0 {
		r.logger.Info().Int("closed", closed).Int("candidates", len(ids)).Msg("sweep closed requests")
	}
	return closed, nil
}
