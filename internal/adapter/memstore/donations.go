package memstore

import (
	"context"
	"fmt"
	"slices"

	"pulsethread/internal/domain"
)

// Donations implements domain.DonationRepository over a Store.
type Donations struct {
	s *Store
}

func (r *Donations) Create(_ context.Context, d *domain.Donation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.insertLocked(d)
}

// CreateGuarded checks capacity and inserts under the store mutex, so concurrent callers
// are serialised exactly like the row lock in PostgreSQL.
func (r *Donations) CreateGuarded(_ context.Context, d *domain.Donation) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[d.RequestID]
	if !ok {
		return domain.ErrNotFound
	}
	if !req.req.Status.Open() {
		return fmt.Errorf("%w (%s)", domain.ErrRequestClosed, req.req.Status)
	}
	if s.activeLocked(d.RequestID) >= req.req.UnitsNeeded {
		return fmt.Errorf("%w (%d units)", domain.ErrRequestFull, req.req.UnitsNeeded)
	}
	for _, rec := range s.donations {
		if rec.d.RequestID == d.RequestID && rec.d.DonorID == d.DonorID && rec.d.Status.Active() {
			return domain.ErrAlreadyResponding
		}
	}
	return r.insertLocked(d)
}

func (r *Donations) insertLocked(d *domain.Donation) error {
	s := r.s
	if _, exists := s.donations[d.ID]; exists {
		return fmt.Errorf("donation %s already exists", d.ID)
	}
	now := s.now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	s.donations[d.ID] = &donationRecord{d: copyDonation(*d), seq: s.nextSeq()}
	return nil
}

func (r *Donations) GetByID(_ context.Context, id string) (*domain.Donation, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.donations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := copyDonation(rec.d)
	return &out, nil
}

func (r *Donations) ListByRequest(_ context.Context, requestID string) ([]domain.Donation, error) {
	return r.list(func(d *domain.Donation) bool { return d.RequestID == requestID }), nil
}

func (r *Donations) ListByDonor(_ context.Context, donorID string, statuses ...domain.DonationStatus) ([]domain.Donation, error) {
	return r.list(func(d *domain.Donation) bool {
		if d.DonorID != donorID {
			return false
		}
		return len(statuses) == 0 || slices.Contains(statuses, d.Status)
	}), nil
}

func (r *Donations) CountActive(_ context.Context, requestID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.activeLocked(requestID), nil
}

func (r *Donations) CountByStatus(_ context.Context, requestID string, status domain.DonationStatus) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.countLocked(requestID, status), nil
}

func (r *Donations) ApplyTransition(_ context.Context, t domain.Transition) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.donations[t.DonationID]
	if !ok || rec.d.Status != t.From {
		return false, nil
	}
	rec.d.Status = t.To
	rec.d.Timeline = rec.d.Timeline.Append(t.Entry)
	if t.Reason != nil {
		reason := *t.Reason
		rec.d.CancellationReason = &reason
	}
	rec.d.UpdatedAt = s.now().UTC()
	return true, nil
}

func (r *Donations) list(keep func(*domain.Donation) bool) []domain.Donation {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var recs []*donationRecord
	for _, rec := range s.donations {
		if keep(&rec.d) {
			recs = append(recs, rec)
		}
	}
	sortDonationsNewestFirst(recs)

	out := make([]domain.Donation, 0, len(recs))
	for _, rec := range recs {
		out = append(out, copyDonation(rec.d))
	}
	return out
}

var _ domain.DonationRepository = (*Donations)(nil)
