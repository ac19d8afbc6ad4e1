// Package memstore keeps requests and donations in process memory. It honours the same
// repository contracts as the PostgreSQL adapter and is used for local runs and tests.
package memstore

import (
	"sort"
	"sync"
	"time"

	"pulsethread/internal/domain"
)

type requestRecord struct {
	req domain.Request
	seq int64
}

type donationRecord struct {
	d   domain.Donation
	seq int64
}

// Store holds both tables behind one mutex.
type Store struct {
	mu        sync.Mutex
	seq       int64
	requests  map[string]*requestRecord
	donations map[string]*donationRecord

	now func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		requests:  map[string]*requestRecord{},
		donations: map[string]*donationRecord{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Requests returns the request table view.
func (s *Store) Requests() *Requests { return &Requests{s: s} }

// Donations returns the donation table view.
func (s *Store) Donations() *Donations { return &Donations{s: s} }

// activeLocked counts non-cancelled donations for a request. Caller holds mu.
func (s *Store) activeLocked(requestID string) int {
	n := 0
	for _, rec := range s.donations {
		if rec.d.RequestID == requestID && rec.d.Status.Active() {
			n++
		}
	}
	return n
}

func (s *Store) countLocked(requestID string, status domain.DonationStatus) int {
	n := 0
	for _, rec := range s.donations {
		if rec.d.RequestID == requestID && rec.d.Status == status {
			n++
		}
	}
	return n
}

func (s *Store) nextSeq() int64 {
	s.seq++
	return s.seq
}

func copyDonation(d domain.Donation) domain.Donation {
	d.Timeline = append(domain.Timeline(nil), d.Timeline...)
	if d.CancellationReason != nil {
		reason := *d.CancellationReason
		d.CancellationReason = &reason
	}
	return d
}

func copyRequest(r domain.Request) domain.Request {
	if r.Note != nil {
		note := *r.Note
		r.Note = &note
	}
	return r
}

func sortRequestsNewestFirst(recs []*requestRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq > recs[j].seq })
}

func sortDonationsNewestFirst(recs []*donationRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq > recs[j].seq })
}
