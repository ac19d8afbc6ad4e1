package handlers

import (
	"context"
	"errors"
	"net/http"

	"pulsethread/internal/domain"
)

func (a *App) MeRequests(w http.ResponseWriter, r *http.Request) {
	items, err := a.Requests.ListRequesterHistory(r.Context(), a.currentUserID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": toRequestDTOs(items)})
}

func (a *App) MeDonations(w http.ResponseWriter, r *http.Request) {
	items, err := a.Donations.ListDonorHistory(r.Context(), a.currentUserID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": toDonationDTOs(items)})
}

// MeActive returns what the user is currently involved in: open requests they posted and
// the donation they are travelling with, if any.
func (a *App) MeActive(w http.ResponseWriter, r *http.Request) {
	view, err := a.activeView(r.Context(), a.currentUserID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, view)
}

type activeSnapshot struct {
	Requests []requestDTO `json:"requests"`
	Donation *donationDTO `json:"donation"`
}

func (a *App) activeView(ctx context.Context, userID string) (activeSnapshot, error) {
	requests, err := a.Requests.ActiveRequests(ctx, userID)
	if err != nil {
		return activeSnapshot{}, err
	}
	view := activeSnapshot{Requests: toRequestDTOs(requests)}
	d, err := a.Donations.ActiveDonation(ctx, userID)
	switch {
	case err == nil:
		dto := toDonationDTO(d)
		view.Donation = &dto
	case !errors.Is(err, domain.ErrNotFound):
		return activeSnapshot{}, err
	}
	return view, nil
}
