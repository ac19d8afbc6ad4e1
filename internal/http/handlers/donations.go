package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"pulsethread/internal/domain"
	"pulsethread/internal/verification"
)

type cancelDonationBody struct {
	Reason string `json:"reason"`
}

type verifyBody struct {
	Token string `json:"token"`
}

func (a *App) DonationsGet(w http.ResponseWriter, r *http.Request) {
	d, err := a.Donations.ViewDonation(r.Context(), chi.URLParam(r, "id"), a.currentUserID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"donation":         toDonationDTO(d),
		"expected_actions": a.Verification.ExpectedActions(d.Status),
	})
}

func (a *App) DonationsCancel(w http.ResponseWriter, r *http.Request) {
	var body cancelDonationBody
	if !a.decode(w, r, &body) {
		return
	}
	d, err := a.Donations.CancelDonation(r.Context(), chi.URLParam(r, "id"), a.currentUserID(r), body.Reason)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toDonationDTO(d))
}

// DonationsVerify redeems a scanned checkpoint token on behalf of the donor.
func (a *App) DonationsVerify(w http.ResponseWriter, r *http.Request) {
	var body verifyBody
	if !a.decode(w, r, &body) {
		return
	}
	res, err := a.Verification.Submit(r.Context(), chi.URLParam(r, "id"), a.currentUserID(r), body.Token)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"donation":          toDonationDTO(res.Donation),
		"request_fulfilled": res.RequestFulfilled,
	})
}

// DonationsCheckpoint issues the token the requester shows for the next step. format=png
// (default) returns the QR image, format=json the raw token.
func (a *App) DonationsCheckpoint(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	action, err := verification.ParseAction(q.Get("action"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	token, err := a.Verification.IssueToken(r.Context(), chi.URLParam(r, "id"), a.currentUserID(r), action)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	switch q.Get("format") {
	case "json":
		a.json(w, http.StatusOK, map[string]string{"token": token.String(), "action": string(token.Action)})
	case "", "png":
		size := 256
		if raw := q.Get("size"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 64 || n > 1024 {
				a.fail(w, r, domain.Validationf("size must be between 64 and 1024"))
				return
			}
			size = n
		}
		png, err := verification.RenderQR(token, size)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(png)
	default:
		a.fail(w, r, domain.Validationf("unsupported format %q", q.Get("format")))
	}
}
