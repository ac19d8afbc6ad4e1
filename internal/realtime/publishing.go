package realtime

import (
	"context"

	"github.com/rs/zerolog"

	"pulsethread/internal/domain"
)

// PublishingRequests announces request writes. It stands in for the database triggers when
// the store or the feed is not PostgreSQL.
type PublishingRequests struct {
	domain.RequestRepository
	pub    domain.ChangePublisher
	logger zerolog.Logger
}

func NewPublishingRequests(repo domain.RequestRepository, pub domain.ChangePublisher, logger zerolog.Logger) *PublishingRequests {
	return &PublishingRequests{RequestRepository: repo, pub: pub, logger: logger}
}

func (r *PublishingRequests) Create(ctx context.Context, req *domain.Request) error {
	if err := r.RequestRepository.Create(ctx, req); err != nil {
		return err
	}
	publish(ctx, r.pub, r.logger, domain.RequestChanged(domain.OpInsert, req))
	return nil
}

func (r *PublishingRequests) UpdateStatus(ctx context.Context, id string, from []domain.RequestStatus, to domain.RequestStatus) (bool, error) {
	ok, err := r.RequestRepository.UpdateStatus(ctx, id, from, to)
	if err != nil || !ok {
		return ok, err
	}
	ev := domain.ChangeEvent{Table: domain.TableRequests, Op: domain.OpUpdate, ID: id, RequestID: id}
	if req, err := r.RequestRepository.GetByID(ctx, id); err == nil {
		ev = domain.RequestChanged(domain.OpUpdate, req)
	}
	publish(ctx, r.pub, r.logger, ev)
	return true, nil
}

// PublishingDonations announces donation writes.
type PublishingDonations struct {
	domain.DonationRepository
	pub    domain.ChangePublisher
	logger zerolog.Logger
}

func NewPublishingDonations(repo domain.DonationRepository, pub domain.ChangePublisher, logger zerolog.Logger) *PublishingDonations {
	return &PublishingDonations{DonationRepository: repo, pub: pub, logger: logger}
}

func (r *PublishingDonations) Create(ctx context.Context, d *domain.Donation) error {
	if err := r.DonationRepository.Create(ctx, d); err != nil {
		return err
	}
	publish(ctx, r.pub, r.logger, domain.DonationChanged(domain.OpInsert, d))
	return nil
}

func (r *PublishingDonations) CreateGuarded(ctx context.Context, d *domain.Donation) error {
	if err := r.DonationRepository.CreateGuarded(ctx, d); err != nil {
		return err
	}
	publish(ctx, r.pub, r.logger, domain.DonationChanged(domain.OpInsert, d))
	return nil
}

func (r *PublishingDonations) ApplyTransition(ctx context.Context, t domain.Transition) (bool, error) {
	ok, err := r.DonationRepository.ApplyTransition(ctx, t)
	if err != nil || !ok {
		return ok, err
	}
	ev := domain.ChangeEvent{Table: domain.TableDonations, Op: domain.OpUpdate, ID: t.DonationID}
	if d, err := r.DonationRepository.GetByID(ctx, t.DonationID); err == nil {
		ev = domain.DonationChanged(domain.OpUpdate, d)
	}
	publish(ctx, r.pub, r.logger, ev)
	return true, nil
}

func publish(ctx context.Context, pub domain.ChangePublisher, logger zerolog.Logger, ev domain.ChangeEvent) {
	if err := pub.Publish(ctx, ev); err != nil {
		logger.Warn().Err(err).Str("table", ev.Table).Str("id", ev.ID).Msg("publish change failed")
	}
}

var (
	_ domain.RequestRepository  = (*PublishingRequests)(nil)
	_ domain.DonationRepository = (*PublishingDonations)(nil)
)
