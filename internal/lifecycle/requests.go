// Package lifecycle owns the request and donation state machines.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pulsethread/internal/domain"
	"pulsethread/internal/metrics"
)

// Requests manages request creation and status transitions.
type Requests struct {
	repo      domain.RequestRepository
	donations domain.DonationRepository
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	newID     func() string
}

// NewRequests wires the request manager. m may be nil.
func NewRequests(repo domain.RequestRepository, donations domain.DonationRepository, logger zerolog.Logger, m *metrics.Metrics) *Requests {
	return &Requests{
		repo:      repo,
		donations: donations,
		logger:    logger.With().Str("component", "requests").Logger(),
		metrics:   m,
		newID:     uuid.NewString,
	}
}

// CreateRequest validates the input and persists a PENDING request.
func (m *Requests) CreateRequest(ctx context.Context, in domain.NewRequestInput) (*domain.Request, error) {
	if strings.TrimSpace(in.RequesterID) == "" {
		return nil, domain.Validationf("requester is required")
	}
	bloodType, err := domain.ParseBloodType(in.BloodType)
	if err != nil {
		return nil, err
	}
	component, err := domain.ParseComponentType(in.ComponentType)
	if err != nil {
		return nil, err
	}
	urgency, err := domain.ParseUrgency(in.Urgency)
	if err != nil {
		return nil, err
	}
	if in.UnitsNeeded < 1 {
		return nil, domain.Validationf("units needed must be at least 1, got %d", in.UnitsNeeded)
	}
	hospital := strings.TrimSpace(in.HospitalLabel)
	if hospital == "" {
		return nil, domain.Validationf("hospital is required")
	}
	if in.Location == nil {
		return nil, domain.Validationf("location is required")
	}
	if err := in.Location.Validate(); err != nil {
		return nil, domain.Validationf("location: %v", err)
	}

	req := &domain.Request{
		ID:            m.newID(),
		RequesterID:   in.RequesterID,
		BloodType:     bloodType,
		ComponentType: component,
		UnitsNeeded:   in.UnitsNeeded,
		Urgency:       urgency,
		HospitalLabel: hospital,
		Location:      in.Location.String(),
		Status:        domain.RequestPending,
	}
	if note := strings.TrimSpace(in.Note); note != "" {
		req.Note = &note
	}
	if err := m.repo.Create(ctx, req); err != nil {
		return nil, err
	}
	m.logger.Info().
		Str("request_id", req.ID).
		Str("blood_type", string(req.BloodType)).
		Int("units", req.UnitsNeeded).
		Msg("request created")
	return req, nil
}

// CancelRequest closes a request on behalf of its owner.
func (m *Requests) CancelRequest(ctx context.Context, requestID, by string) (*domain.Request, error) {
	req, err := m.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != by {
		return nil, fmt.Errorf("%w: only the requester may cancel", domain.ErrAuthorization)
	}
	if req.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: request is already %s", domain.ErrInvalidState, req.Status)
	}
	ok, err := m.repo.UpdateStatus(ctx, requestID, []domain.RequestStatus{domain.RequestPending, domain.RequestAccepted}, domain.RequestCancelled)
	if err != nil {
		return nil, err
	}
	if !ok {
		// closed by someone else between read and write
		return nil, fmt.Errorf("%w: request closed concurrently", domain.ErrInvalidState)
	}
	m.metrics.RequestTransition(string(domain.RequestCancelled))
	m.logger.Info().Str("request_id", requestID).Str("from", string(req.Status)).Msg("request cancelled")
	return m.repo.GetByID(ctx, requestID)
}

// MarkAccepted moves PENDING to ACCEPTED. Repeated calls are no-ops.
func (m *Requests) MarkAccepted(ctx context.Context, requestID string) error {
	ok, err := m.repo.UpdateStatus(ctx, requestID, []domain.RequestStatus{domain.RequestPending}, domain.RequestAccepted)
	if err != nil {
		return err
	}
	if ok {
		m.metrics.RequestTransition(string(domain.RequestAccepted))
		m.logger.Debug().Str("request_id", requestID).Msg("request accepted")
	}
	return nil
}

// MarkFulfilled closes an open request. It reports whether this call performed the change.
func (m *Requests) MarkFulfilled(ctx context.Context, requestID string) (bool, error) {
	ok, err := m.repo.UpdateStatus(ctx, requestID, []domain.RequestStatus{domain.RequestPending, domain.RequestAccepted}, domain.RequestFulfilled)
	if err != nil {
		return false, err
	}
	if ok {
		m.metrics.RequestTransition(string(domain.RequestFulfilled))
		m.logger.Info().Str("request_id", requestID).Msg("request fulfilled")
	}
	return ok, nil
}

// ReleaseIfIdle returns an ACCEPTED request to PENDING once it has no active donation,
// which puts it back in the matching feed.
func (m *Requests) ReleaseIfIdle(ctx context.Context, requestID string) error {
	active, err := m.donations.CountActive(ctx, requestID)
	if err != nil {
		return err
	}
	if active > 0 {
		return nil
	}
	ok, err := m.repo.UpdateStatus(ctx, requestID, []domain.RequestStatus{domain.RequestAccepted}, domain.RequestPending)
	if err != nil {
		return err
	}
	if ok {
		m.metrics.RequestTransition(string(domain.RequestPending))
		m.logger.Info().Str("request_id", requestID).Msg("request released back to the feed")
	}
	return nil
}

func (m *Requests) GetRequest(ctx context.Context, requestID string) (*domain.Request, error) {
	return m.repo.GetByID(ctx, requestID)
}

// ListRequesterHistory returns every request the user posted, newest first.
func (m *Requests) ListRequesterHistory(ctx context.Context, requesterID string) ([]domain.RequestWithCount, error) {
	return m.repo.ListByRequester(ctx, requesterID)
}

// ActiveRequests returns the user's requests that are still open.
func (m *Requests) ActiveRequests(ctx context.Context, requesterID string) ([]domain.RequestWithCount, error) {
	return m.repo.ListByRequester(ctx, requesterID, domain.RequestPending, domain.RequestAccepted)
}

// Responses lists donations against a request. The owner sees all of them, anyone else
// sees only their own.
func (m *Requests) Responses(ctx context.Context, requestID, by string) ([]domain.Donation, error) {
	req, err := m.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	all, err := m.donations.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID == by {
		return all, nil
	}
	own := make([]domain.Donation, 0, 1)
	for _, d := range all {
		if d.DonorID == by {
			own = append(own, d)
		}
	}
	return own, nil
}

// IsOwner reports whether by posted the request.
func (m *Requests) IsOwner(ctx context.Context, requestID, by string) (bool, error) {
	req, err := m.repo.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return req.RequesterID == by, nil
}
