package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"pulsethread/internal/domain"
	"pulsethread/internal/matching"
	"pulsethread/internal/middleware"
)

type createRequestBody struct {
	BloodType     string   `json:"blood_type"`
	ComponentType string   `json:"component_type"`
	UnitsNeeded   int      `json:"units_needed"`
	Urgency       string   `json:"urgency"`
	HospitalLabel string   `json:"hospital_label"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	Note          string   `json:"note"`
}

func (a *App) RequestsCreate(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if !a.decode(w, r, &body) {
		return
	}
	in := domain.NewRequestInput{
		RequesterID:   a.currentUserID(r),
		BloodType:     body.BloodType,
		ComponentType: body.ComponentType,
		UnitsNeeded:   body.UnitsNeeded,
		Urgency:       body.Urgency,
		HospitalLabel: body.HospitalLabel,
		Note:          body.Note,
	}
	if body.Latitude != nil && body.Longitude != nil {
		in.Location = &domain.Point{Lat: *body.Latitude, Lng: *body.Longitude}
	}
	req, err := a.Requests.CreateRequest(r.Context(), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, toRequestDTO(req))
}

// RequestsOpen serves the donor feed. The viewer position comes from lat/lng query params,
// falling back to whatever the location middleware resolved. sort=nearest orders by distance.
func (a *App) RequestsOpen(w http.ResponseWriter, r *http.Request) {
	viewer, err := viewerPoint(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	feed := a.Matching.ListOpenRequests(r.Context(), a.currentUserID(r), viewer)
	items, warnings, err := matching.Collect(feed)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if viewer != nil && r.URL.Query().Get("sort") == "nearest" {
		items = matching.SortByProximity(items, *viewer)
	}
	if len(warnings) > 0 {
		w.Header().Set("X-Data-Warnings", strconv.Itoa(len(warnings)))
	}
	a.json(w, http.StatusOK, map[string]any{"items": toListingDTOs(items)})
}

func viewerPoint(r *http.Request) (*domain.Point, error) {
	q := r.URL.Query()
	latRaw, lngRaw := strings.TrimSpace(q.Get("lat")), strings.TrimSpace(q.Get("lng"))
	if latRaw == "" && lngRaw == "" {
		if p, ok := middleware.LocationFromContext(r.Context()); ok {
			return &p, nil
		}
		return nil, nil
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return nil, domain.Validationf("lat must be a number")
	}
	lng, err := strconv.ParseFloat(lngRaw, 64)
	if err != nil {
		return nil, domain.Validationf("lng must be a number")
	}
	p := domain.Point{Lat: lat, Lng: lng}
	if err := p.Validate(); err != nil {
		return nil, domain.Validationf("viewer location: %v", err)
	}
	return &p, nil
}

func (a *App) RequestsGet(w http.ResponseWriter, r *http.Request) {
	req, err := a.Requests.GetRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toRequestDTO(req))
}

func (a *App) RequestsCancel(w http.ResponseWriter, r *http.Request) {
	req, err := a.Requests.CancelRequest(r.Context(), chi.URLParam(r, "id"), a.currentUserID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toRequestDTO(req))
}

func (a *App) RequestsResponses(w http.ResponseWriter, r *http.Request) {
	items, err := a.Requests.Responses(r.Context(), chi.URLParam(r, "id"), a.currentUserID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": toDonationDTOs(items)})
}

func (a *App) RequestsAccept(w http.ResponseWriter, r *http.Request) {
	d, err := a.Donations.AcceptRequest(r.Context(), chi.URLParam(r, "id"), a.currentUserID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, toDonationDTO(d))
}
