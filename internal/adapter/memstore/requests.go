package memstore

import (
	"context"
	"fmt"
	"slices"

	"pulsethread/internal/domain"
)

// Requests implements domain.RequestRepository over a Store.
type Requests struct {
	s *Store
}

func (r *Requests) Create(_ context.Context, req *domain.Request) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[req.ID]; exists {
		return fmt.Errorf("request %s already exists", req.ID)
	}
	now := s.now().UTC()
	req.CreatedAt, req.UpdatedAt = now, now
	s.requests[req.ID] = &requestRecord{req: copyRequest(*req), seq: s.nextSeq()}
	return nil
}

func (r *Requests) GetByID(_ context.Context, id string) (*domain.Request, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := copyRequest(rec.req)
	return &out, nil
}

func (r *Requests) ListOpen(_ context.Context, excludeRequesterID string) ([]domain.RequestWithCount, error) {
	return r.list(func(req *domain.Request) bool {
		return req.Status == domain.RequestPending && req.RequesterID != excludeRequesterID
	}), nil
}

func (r *Requests) ListByRequester(_ context.Context, requesterID string, statuses ...domain.RequestStatus) ([]domain.RequestWithCount, error) {
	return r.list(func(req *domain.Request) bool {
		if req.RequesterID != requesterID {
			return false
		}
		return len(statuses) == 0 || slices.Contains(statuses, req.Status)
	}), nil
}

func (r *Requests) UpdateStatus(_ context.Context, id string, from []domain.RequestStatus, to domain.RequestStatus) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.requests[id]
	if !ok || !slices.Contains(from, rec.req.Status) {
		return false, nil
	}
	rec.req.Status = to
	rec.req.UpdatedAt = s.now().UTC()
	return true, nil
}

func (r *Requests) ListReconcilable(_ context.Context, limit int) ([]string, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var recs []*requestRecord
	for _, rec := range s.requests {
		if !rec.req.Status.Open() {
			continue
		}
		donated := s.countLocked(rec.req.ID, domain.DonationDonated)
		if donated > 0 && donated >= rec.req.UnitsNeeded {
			recs = append(recs, rec)
		}
	}
	// oldest first, matching the SQL sweep
	slices.SortFunc(recs, func(a, b *requestRecord) int { return int(a.seq - b.seq) })
	var ids []string
	for _, rec := range recs {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, rec.req.ID)
	}
	return ids, nil
}

func (r *Requests) list(keep func(*domain.Request) bool) []domain.RequestWithCount {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var recs []*requestRecord
	for _, rec := range s.requests {
		if keep(&rec.req) {
			recs = append(recs, rec)
		}
	}
	sortRequestsNewestFirst(recs)

	items := make([]domain.RequestWithCount, 0, len(recs))
	for _, rec := range recs {
		items = append(items, domain.RequestWithCount{
			Request:         copyRequest(rec.req),
			ActiveResponses: s.activeLocked(rec.req.ID),
		})
	}
	return items
}

var _ domain.RequestRepository = (*Requests)(nil)
