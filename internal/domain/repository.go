package domain

import "context"

// RequestRepository defines persistence for requests.
type RequestRepository interface {
	Create(ctx context.Context, req *Request) error
	GetByID(ctx context.Context, id string) (*Request, error)
	// ListOpen returns PENDING requests not authored by excludeRequesterID, newest first.
	ListOpen(ctx context.Context, excludeRequesterID string) ([]RequestWithCount, error)
	// ListByRequester returns the requester's requests, newest first, optionally filtered by status.
	ListByRequester(ctx context.Context, requesterID string, statuses ...RequestStatus) ([]RequestWithCount, error)
	// UpdateStatus sets status to `to` only when the current status is one of `from`.
	UpdateStatus(ctx context.Context, id string, from []RequestStatus, to RequestStatus) (bool, error)
	// ListReconcilable returns ids of open requests whose donated count already meets units needed.
	ListReconcilable(ctx context.Context, limit int) ([]string, error)
}

// DonationRepository defines persistence for donations.
type DonationRepository interface {
	Create(ctx context.Context, donation *Donation) error
	// CreateGuarded inserts the donation under a lock on the parent request. It fails with
	// ErrIneligibleRequest when the request is terminal, full, or already has an active
	// donation from the same donor.
	CreateGuarded(ctx context.Context, donation *Donation) error
	GetByID(ctx context.Context, id string) (*Donation, error)
	ListByRequest(ctx context.Context, requestID string) ([]Donation, error)
	ListByDonor(ctx context.Context, donorID string, statuses ...DonationStatus) ([]Donation, error)
	CountActive(ctx context.Context, requestID string) (int, error)
	CountByStatus(ctx context.Context, requestID string, status DonationStatus) (int, error)
	// ApplyTransition is a compare-and-set on status; false means the row moved on.
	ApplyTransition(ctx context.Context, t Transition) (bool, error)
}

// ChangePublisher announces entity changes to the synchronization layer.
type ChangePublisher interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}

// ChangeEvent is a normalised "entity changed" notification. Its payload is a hint only;
// consumers re-read the entity.
type ChangeEvent struct {
	Table       string `json:"table"`
	Op          string `json:"op"`
	ID          string `json:"id"`
	RequestID   string `json:"request_id,omitempty"`
	DonorID     string `json:"donor_id,omitempty"`
	RequesterID string `json:"requester_id,omitempty"`
}

const (
	TableRequests  = "requests"
	TableDonations = "donations"

	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
)

// RequestChanged builds the event for a request row.
func RequestChanged(op string, r *Request) ChangeEvent {
	return ChangeEvent{Table: TableRequests, Op: op, ID: r.ID, RequestID: r.ID, RequesterID: r.RequesterID}
}

// DonationChanged builds the event for a donation row.
func DonationChanged(op string, d *Donation) ChangeEvent {
	return ChangeEvent{Table: TableDonations, Op: op, ID: d.ID, RequestID: d.RequestID, DonorID: d.DonorID}
}
