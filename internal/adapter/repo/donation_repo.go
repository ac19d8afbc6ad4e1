package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"pulsethread/internal/domain"
	"pulsethread/internal/infra"
	"pulsethread/internal/sqlinline"
)

// DonationRepositoryPG implements domain.DonationRepository using PostgreSQL.
type DonationRepositoryPG struct {
	sql infra.Transactor
}

// NewDonationRepository creates a new donation repo.
func NewDonationRepository(sql infra.Transactor) *DonationRepositoryPG {
	return &DonationRepositoryPG{sql: sql}
}

// Create inserts a donation without any capacity guard.
func (r *DonationRepositoryPG) Create(ctx context.Context, donation *domain.Donation) error {
	return insertDonation(ctx, r.sql, donation)
}

// CreateGuarded locks the parent request row, re-counts active donations and inserts only
// when capacity remains. Concurrent callers serialize on the row lock, and each statement in
// the transaction sees rows committed by the previous holder.
func (r *DonationRepositoryPG) CreateGuarded(ctx context.Context, donation *domain.Donation) error {
	return r.sql.InTx(ctx, func(tx infra.SQLExecutor) error {
		var status string
		var units int
		if err := tx.QueryRow(ctx, sqlinline.QLockRequestForAccept, donation.RequestID).Scan(&status, &units); err != nil {
			if infra.IsNoRows(err) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("lock request: %w", err)
		}
		if !domain.RequestStatus(status).Open() {
			return fmt.Errorf("%w (%s)", domain.ErrRequestClosed, status)
		}

		var active int
		if err := tx.QueryRow(ctx, sqlinline.QCountActiveDonations, donation.RequestID).Scan(&active); err != nil {
			return fmt.Errorf("count active donations: %w", err)
		}
		if active >= units {
			return fmt.Errorf("%w (%d units)", domain.ErrRequestFull, units)
		}

		var mine int
		if err := tx.QueryRow(ctx, sqlinline.QCountActiveDonationsForDonor, donation.RequestID, donation.DonorID).Scan(&mine); err != nil {
			return fmt.Errorf("count donor responses: %w", err)
		}
		if mine > 0 {
			return domain.ErrAlreadyResponding
		}

		return insertDonation(ctx, tx, donation)
	})
}

// GetByID fetches a donation by id.
func (r *DonationRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Donation, error) {
	var d domain.Donation
	if err := scanDonation(r.sql.QueryRow(ctx, sqlinline.QGetDonation, id), &d); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// ListByRequest returns all donations for a request, newest first.
func (r *DonationRepositoryPG) ListByRequest(ctx context.Context, requestID string) ([]domain.Donation, error) {
	return r.list(ctx, sqlinline.QListDonationsByRequest, requestID)
}

// ListByDonor returns a donor's donations, newest first, optionally filtered by status.
func (r *DonationRepositoryPG) ListByDonor(ctx context.Context, donorID string, statuses ...domain.DonationStatus) ([]domain.Donation, error) {
	filter := make([]string, 0, len(statuses))
	for _, s := range statuses {
		filter = append(filter, string(s))
	}
	return r.list(ctx, sqlinline.QListDonationsByDonor, donorID, filter)
}

// CountActive counts non-cancelled donations for a request.
func (r *DonationRepositoryPG) CountActive(ctx context.Context, requestID string) (int, error) {
	var n int
	if err := r.sql.QueryRow(ctx, sqlinline.QCountActiveDonations, requestID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountByStatus counts a request's donations in one status.
func (r *DonationRepositoryPG) CountByStatus(ctx context.Context, requestID string, status domain.DonationStatus) (int, error) {
	var n int
	if err := r.sql.QueryRow(ctx, sqlinline.QCountDonationsByStatus, requestID, string(status)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ApplyTransition appends the timeline entry and moves the status only if it still equals t.From.
func (r *DonationRepositoryPG) ApplyTransition(ctx context.Context, t domain.Transition) (bool, error) {
	entry, err := json.Marshal(domain.Timeline{t.Entry})
	if err != nil {
		return false, err
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QTransitionDonation, t.DonationID, string(t.From), string(t.To), entry, t.Reason)
	if err != nil {
		return false, fmt.Errorf("transition donation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *DonationRepositoryPG) list(ctx context.Context, query string, args ...any) ([]domain.Donation, error) {
	rows, err := r.sql.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.Donation
	for rows.Next() {
		var d domain.Donation
		if err := scanDonation(rows, &d); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func insertDonation(ctx context.Context, sql infra.SQLExecutor, d *domain.Donation) error {
	timeline, err := json.Marshal(d.Timeline)
	if err != nil {
		return err
	}
	row := sql.QueryRow(ctx, sqlinline.QInsertDonation, d.ID, d.RequestID, d.DonorID, string(d.Status), timeline)
	if err := row.Scan(&d.CreatedAt, &d.UpdatedAt); err != nil {
		return fmt.Errorf("insert donation: %w", err)
	}
	return nil
}

func scanDonation(row scanner, d *domain.Donation) error {
	var status string
	var timeline []byte
	if err := row.Scan(&d.ID, &d.RequestID, &d.DonorID, &status, &d.CancellationReason, &timeline, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return err
	}
	d.Status = domain.DonationStatus(status)
	d.Timeline = nil
	if len(timeline) > 0 {
		if err := json.Unmarshal(timeline, &d.Timeline); err != nil {
			return fmt.Errorf("decode timeline for donation %s: %w", d.ID, err)
		}
	}
	return nil
}

var _ domain.DonationRepository = (*DonationRepositoryPG)(nil)
