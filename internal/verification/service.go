package verification

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	qrcode "github.com/skip2/go-qrcode"

	"pulsethread/internal/domain"
	"pulsethread/internal/lifecycle"
)

// Reconciler closes a request once enough units are donated.
type Reconciler interface {
	Reconcile(ctx context.Context, requestID string) (bool, error)
}

// Result is the outcome of an accepted checkpoint.
type Result struct {
	Donation *domain.Donation
	// RequestFulfilled is true when this checkpoint closed the request.
	RequestFulfilled bool
}

// Service issues and redeems checkpoint tokens.
type Service struct {
	donations    *lifecycle.Donations
	requests     *lifecycle.Requests
	reconciler   Reconciler
	rejectClosed bool
	logger       zerolog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithRejectClosedRequests makes Submit refuse checkpoints once the request is cancelled.
// By default verification continues on a cancelled request.
func WithRejectClosedRequests(reject bool) Option {
	return func(s *Service) { s.rejectClosed = reject }
}

func NewService(donations *lifecycle.Donations, requests *lifecycle.Requests, reconciler Reconciler, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		donations:  donations,
		requests:   requests,
		reconciler: reconciler,
		logger:     logger.With().Str("component", "verification").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueToken returns the token the requester displays for the donation's next checkpoint.
// Only the owner of the request may issue one, and only for an action legal right now.
func (s *Service) IssueToken(ctx context.Context, donationID, by string, action Action) (Token, error) {
	d, err := s.donations.GetDonation(ctx, donationID)
	if err != nil {
		return Token{}, err
	}
	owner, err := s.requests.IsOwner(ctx, d.RequestID, by)
	if err != nil {
		return Token{}, err
	}
	if !owner {
		return Token{}, fmt.Errorf("%w: only the requester issues checkpoints", domain.ErrAuthorization)
	}
	if _, _, err := Next(d.Status, action); err != nil {
		return Token{}, err
	}
	if err := s.checkRequestOpen(ctx, d.RequestID); err != nil {
		return Token{}, err
	}
	return Token{Action: action, DonationID: d.ID}, nil
}

// ExpectedActions is the set of checkpoints legal for status.
func (s *Service) ExpectedActions(status domain.DonationStatus) []Action {
	return ExpectedActions(status)
}

// Submit redeems a scanned token against donationID on behalf of the donor. A failed
// submission leaves the donation unchanged.
func (s *Service) Submit(ctx context.Context, donationID, by, rawToken string) (*Result, error) {
	token, err := ParseToken(rawToken)
	if err != nil {
		return nil, err
	}
	if token.DonationID != donationID {
		return nil, fmt.Errorf("%w: token is for donation %s", domain.ErrTokenMismatch, token.DonationID)
	}
	d, err := s.donations.GetDonation(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if d.DonorID != by {
		return nil, fmt.Errorf("%w: only the donor submits checkpoints", domain.ErrAuthorization)
	}
	next, reason, err := Next(d.Status, token.Action)
	if err != nil {
		return nil, err
	}
	if err := s.checkRequestOpen(ctx, d.RequestID); err != nil {
		return nil, err
	}

	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	updated, err := s.donations.Transition(ctx, d, next, reasonPtr)
	if err != nil {
		return nil, err
	}

	res := &Result{Donation: updated}
	if next == domain.DonationDonated && s.reconciler != nil {
		// the donation is already recorded; closing the request is retried by the sweep
		fulfilled, err := s.reconciler.Reconcile(ctx, d.RequestID)
		if err != nil {
			s.logger.Error().Err(err).
				Str("request_id", d.RequestID).
				Str("donation_id", d.ID).
				Msg("reconcile after donation failed")
		}
		res.RequestFulfilled = fulfilled
	}
	return res, nil
}

func (s *Service) checkRequestOpen(ctx context.Context, requestID string) error {
	if !s.rejectClosed {
		return nil
	}
	req, err := s.requests.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status == domain.RequestCancelled {
		return fmt.Errorf("%w: request was cancelled", domain.ErrInvalidState)
	}
	return nil
}

// RenderQR encodes the token as a PNG of size×size pixels.
func RenderQR(token Token, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(token.String(), qrcode.Medium, size)
}
