package domain

import "time"

// DonationStatus enumerates the donation lifecycle.
type DonationStatus string

const (
	DonationEnRoute   DonationStatus = "EN_ROUTE"
	DonationArrived   DonationStatus = "ARRIVED"
	DonationMatched   DonationStatus = "MATCHED"
	DonationDonated   DonationStatus = "DONATED"
	DonationCancelled DonationStatus = "CANCELLED"
)

// ReasonCrossMatchFailed is stored when the requester reports a mismatch.
const ReasonCrossMatchFailed = "Cross-match Failed"

// IsTerminal reports whether the donation can no longer change.
func (s DonationStatus) IsTerminal() bool {
	return s == DonationDonated || s == DonationCancelled
}

// Active reports whether the donation counts against a request's units.
func (s DonationStatus) Active() bool {
	return s != DonationCancelled
}

// TimelineEntry is one audit record appended per transition.
type TimelineEntry struct {
	Status    DonationStatus `json:"status"`
	Timestamp string         `json:"timestamp"`
}

// NewTimelineEntry stamps status with t in RFC3339 (UTC).
func NewTimelineEntry(status DonationStatus, t time.Time) TimelineEntry {
	return TimelineEntry{Status: status, Timestamp: t.UTC().Format(time.RFC3339Nano)}
}

// Timeline is append-only: Append returns a new slice and never mutates the receiver.
type Timeline []TimelineEntry

func (t Timeline) Append(e TimelineEntry) Timeline {
	out := make(Timeline, len(t), len(t)+1)
	copy(out, t)
	return append(out, e)
}

// Donation is one donor's response against a request.
type Donation struct {
	ID                 string
	RequestID          string
	DonorID            string
	Status             DonationStatus
	CancellationReason *string
	Timeline           Timeline
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Transition describes a guarded status change on a donation.
// The write only lands if the stored status still equals From.
type Transition struct {
	DonationID string
	From       DonationStatus
	To         DonationStatus
	Entry      TimelineEntry
	Reason     *string
}
