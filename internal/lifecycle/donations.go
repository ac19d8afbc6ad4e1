package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pulsethread/internal/domain"
	"pulsethread/internal/metrics"
)

// AcceptMode selects how AcceptRequest guards request capacity.
type AcceptMode string

const (
	// AcceptAtomic inserts under a lock on the request row. Active donations never exceed
	// units needed and a donor holds at most one active donation per request.
	AcceptAtomic AcceptMode = "atomic"
	// AcceptRelaxed counts and then inserts without isolation. Concurrent accepts may
	// overbook a request by up to racers-1 donations.
	AcceptRelaxed AcceptMode = "relaxed"
)

// ParseAcceptMode maps a config value to a mode. Empty means atomic.
func ParseAcceptMode(raw string) (AcceptMode, error) {
	switch AcceptMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", AcceptAtomic:
		return AcceptAtomic, nil
	case AcceptRelaxed:
		return AcceptRelaxed, nil
	}
	return "", fmt.Errorf("unknown accept mode %q", raw)
}

// Donations manages donation creation and cancellation.
type Donations struct {
	repo     domain.DonationRepository
	requests domain.RequestRepository
	reqs     *Requests
	mode     AcceptMode
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	newID    func() string
}

// NewDonations wires the donation manager. m may be nil.
func NewDonations(repo domain.DonationRepository, requests *Requests, mode AcceptMode, logger zerolog.Logger, m *metrics.Metrics) *Donations {
	if mode == "" {
		mode = AcceptAtomic
	}
	return &Donations{
		repo:     repo,
		requests: requests.repo,
		reqs:     requests,
		mode:     mode,
		logger:   logger.With().Str("component", "donations").Logger(),
		metrics:  m,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Mode reports the configured accept mode.
func (m *Donations) Mode() AcceptMode { return m.mode }

// AcceptRequest records donorID's response to a request and marks the request ACCEPTED.
func (m *Donations) AcceptRequest(ctx context.Context, requestID, donorID string) (*domain.Donation, error) {
	if strings.TrimSpace(donorID) == "" {
		return nil, domain.Validationf("donor is required")
	}
	req, err := m.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID == donorID {
		m.metrics.AcceptRejected("self")
		return nil, fmt.Errorf("%w: requesters cannot respond to their own request", domain.ErrAuthorization)
	}

	now := m.now()
	d := &domain.Donation{
		ID:        m.newID(),
		RequestID: requestID,
		DonorID:   donorID,
		Status:    domain.DonationEnRoute,
		Timeline:  domain.Timeline{domain.NewTimelineEntry(domain.DonationEnRoute, now)},
	}

	switch m.mode {
	case AcceptRelaxed:
		active, err := m.repo.CountActive(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if !req.HasCapacity(active) {
			return nil, m.rejected(req, active)
		}
		if err := m.repo.Create(ctx, d); err != nil {
			return nil, err
		}
	default:
		if err := m.repo.CreateGuarded(ctx, d); err != nil {
			if reason := rejectReason(err); reason != "" {
				m.metrics.AcceptRejected(reason)
			}
			return nil, err
		}
	}

	m.metrics.DonationTransition("", string(domain.DonationEnRoute))
	m.logger.Info().
		Str("request_id", requestID).
		Str("donation_id", d.ID).
		Str("mode", string(m.mode)).
		Msg("request accepted by donor")

	// the donation stands even if the informational status update fails
	if err := m.reqs.MarkAccepted(ctx, requestID); err != nil {
		m.logger.Error().Err(err).Str("request_id", requestID).Msg("mark accepted failed")
	}
	return d, nil
}

func (m *Donations) rejected(req *domain.Request, active int) error {
	if !req.Status.Open() {
		m.metrics.AcceptRejected("closed")
		return fmt.Errorf("%w (%s)", domain.ErrRequestClosed, req.Status)
	}
	m.metrics.AcceptRejected("full")
	return fmt.Errorf("%w (%d of %d taken)", domain.ErrRequestFull, active, req.UnitsNeeded)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrRequestClosed):
		return "closed"
	case errors.Is(err, domain.ErrAlreadyResponding):
		return "duplicate"
	case errors.Is(err, domain.ErrIneligibleRequest):
		return "full"
	}
	return ""
}

// CancelDonation withdraws a donor's response and frees the unit it held.
func (m *Donations) CancelDonation(ctx context.Context, donationID, by, reason string) (*domain.Donation, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.Validationf("cancellation reason is required")
	}
	d, err := m.repo.GetByID(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if d.DonorID != by {
		return nil, fmt.Errorf("%w: only the donor may cancel", domain.ErrAuthorization)
	}
	if d.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: donation is already %s", domain.ErrInvalidState, d.Status)
	}
	updated, err := m.Transition(ctx, d, domain.DonationCancelled, &reason)
	if errors.Is(err, domain.ErrInvalidTransition) {
		return nil, fmt.Errorf("%w: donation changed concurrently", domain.ErrInvalidState)
	}
	return updated, err
}

// Transition appends an entry and moves d to status `to`, provided d's stored status has
// not moved since it was read. A lost race is reported as ErrInvalidTransition.
func (m *Donations) Transition(ctx context.Context, d *domain.Donation, to domain.DonationStatus, reason *string) (*domain.Donation, error) {
	entry := domain.NewTimelineEntry(to, m.now())
	ok, err := m.repo.ApplyTransition(ctx, domain.Transition{
		DonationID: d.ID,
		From:       d.Status,
		To:         to,
		Entry:      entry,
		Reason:     reason,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: donation is no longer %s", domain.ErrInvalidTransition, d.Status)
	}

	m.metrics.DonationTransition(string(d.Status), string(to))
	ev := m.logger.Info().
		Str("donation_id", d.ID).
		Str("request_id", d.RequestID).
		Str("from", string(d.Status)).
		Str("to", string(to))
	if reason != nil {
		ev = ev.Str("reason", *reason)
	}
	ev.Msg("donation transition")

	if to == domain.DonationCancelled {
		if err := m.reqs.ReleaseIfIdle(ctx, d.RequestID); err != nil {
			m.logger.Error().Err(err).Str("request_id", d.RequestID).Msg("release request failed")
		}
	}

	out := *d
	out.Status = to
	out.Timeline = d.Timeline.Append(entry)
	if reason != nil {
		out.CancellationReason = reason
	}
	return &out, nil
}

func (m *Donations) GetDonation(ctx context.Context, donationID string) (*domain.Donation, error) {
	return m.repo.GetByID(ctx, donationID)
}

// ViewDonation returns a donation to its donor or to the owner of its request.
func (m *Donations) ViewDonation(ctx context.Context, donationID, viewer string) (*domain.Donation, error) {
	d, err := m.repo.GetByID(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if d.DonorID == viewer {
		return d, nil
	}
	owner, err := m.reqs.IsOwner(ctx, d.RequestID, viewer)
	if err != nil {
		return nil, err
	}
	if !owner {
		return nil, fmt.Errorf("%w: donation belongs to another donor", domain.ErrAuthorization)
	}
	return d, nil
}

// ListDonorHistory returns every donation by the donor, newest first.
func (m *Donations) ListDonorHistory(ctx context.Context, donorID string) ([]domain.Donation, error) {
	return m.repo.ListByDonor(ctx, donorID)
}

// ActiveDonation returns the donor's most recent in-progress donation.
func (m *Donations) ActiveDonation(ctx context.Context, donorID string) (*domain.Donation, error) {
	items, err := m.repo.ListByDonor(ctx, donorID, domain.DonationEnRoute, domain.DonationArrived, domain.DonationMatched)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.ErrNotFound
	}
	return &items[0], nil
}

// LatestForRequest returns the newest donation against a request.
func (m *Donations) LatestForRequest(ctx context.Context, requestID string) (*domain.Donation, error) {
	items, err := m.repo.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.ErrNotFound
	}
	return &items[0], nil
}
