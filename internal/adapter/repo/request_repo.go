package repo

import (
	"context"
	"fmt"

	"pulsethread/internal/domain"
	"pulsethread/internal/infra"
	"pulsethread/internal/sqlinline"
)

// RequestRepositoryPG implements domain.RequestRepository using PostgreSQL.
type RequestRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewRequestRepository creates a new request repository.
func NewRequestRepository(sql infra.SQLExecutor) *RequestRepositoryPG {
	return &RequestRepositoryPG{sql: sql}
}

// Create inserts a new request and fills its timestamps.
func (r *RequestRepositoryPG) Create(ctx context.Context, req *domain.Request) error {
	note := ""
	if req.Note != nil {
		note = *req.Note
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertRequest,
		req.ID,
		req.RequesterID,
		string(req.BloodType),
		string(req.ComponentType),
		req.UnitsNeeded,
		string(req.Urgency),
		req.HospitalLabel,
		req.Location,
		note,
		string(req.Status),
	)
	if err := row.Scan(&req.CreatedAt, &req.UpdatedAt); err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// GetByID fetches a request by its identifier.
func (r *RequestRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Request, error) {
	var req domain.Request
	if err := scanRequest(r.sql.QueryRow(ctx, sqlinline.QGetRequest, id), &req); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

// ListOpen returns PENDING requests by other requesters with their active response counts.
func (r *RequestRepositoryPG) ListOpen(ctx context.Context, excludeRequesterID string) ([]domain.RequestWithCount, error) {
	return r.listWithCounts(ctx, sqlinline.QListOpenRequests, excludeRequesterID)
}

// ListByRequester returns the requester's own requests, newest first.
func (r *RequestRepositoryPG) ListByRequester(ctx context.Context, requesterID string, statuses ...domain.RequestStatus) ([]domain.RequestWithCount, error) {
	filter := make([]string, 0, len(statuses))
	for _, s := range statuses {
		filter = append(filter, string(s))
	}
	return r.listWithCounts(ctx, sqlinline.QListRequestsByRequester, requesterID, filter)
}

// UpdateStatus applies a guarded status change.
func (r *RequestRepositoryPG) UpdateStatus(ctx context.Context, id string, from []domain.RequestStatus, to domain.RequestStatus) (bool, error) {
	allowed := make([]string, 0, len(from))
	for _, s := range from {
		allowed = append(allowed, string(s))
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateRequestStatus, id, allowed, string(to))
	if err != nil {
		return false, fmt.Errorf("update request status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListReconcilable returns open requests whose donated units already satisfy the requirement.
func (r *RequestRepositoryPG) ListReconcilable(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListReconcilableRequests, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *RequestRepositoryPG) listWithCounts(ctx context.Context, query string, args ...any) ([]domain.RequestWithCount, error) {
	rows, err := r.sql.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.RequestWithCount
	for rows.Next() {
		var item domain.RequestWithCount
		if err := scanRequest(rows, &item.Request, &item.ActiveResponses); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner, req *domain.Request, extra ...any) error {
	var bloodType, component, urgency, status string
	dest := []any{
		&req.ID,
		&req.RequesterID,
		&bloodType,
		&component,
		&req.UnitsNeeded,
		&urgency,
		&req.HospitalLabel,
		&req.Location,
		&req.Note,
		&status,
		&req.CreatedAt,
		&req.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	req.BloodType = domain.BloodType(bloodType)
	req.ComponentType = domain.ComponentType(component)
	req.Urgency = domain.Urgency(urgency)
	req.Status = domain.RequestStatus(status)
	return nil
}

var _ domain.RequestRepository = (*RequestRepositoryPG)(nil)
