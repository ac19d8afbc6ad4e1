package handlers

import (
	"time"

	"pulsethread/internal/domain"
	"pulsethread/internal/matching"
)

type requestDTO struct {
	ID              string    `json:"id"`
	RequesterID     string    `json:"requester_id"`
	BloodType       string    `json:"blood_type"`
	ComponentType   string    `json:"component_type"`
	UnitsNeeded     int       `json:"units_needed"`
	Urgency         string    `json:"urgency"`
	HospitalLabel   string    `json:"hospital_label"`
	Location        string    `json:"location"`
	Note            *string   `json:"note,omitempty"`
	Status          string    `json:"status"`
	ActiveResponses *int      `json:"active_responses,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toRequestDTO(r *domain.Request) requestDTO {
	return requestDTO{
		ID:            r.ID,
		RequesterID:   r.RequesterID,
		BloodType:     string(r.BloodType),
		ComponentType: string(r.ComponentType),
		UnitsNeeded:   r.UnitsNeeded,
		Urgency:       string(r.Urgency),
		HospitalLabel: r.HospitalLabel,
		Location:      r.Location,
		Note:          r.Note,
		Status:        string(r.Status),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func toRequestDTOs(rows []domain.RequestWithCount) []requestDTO {
	out := make([]requestDTO, 0, len(rows))
	for i := range rows {
		dto := toRequestDTO(&rows[i].Request)
		active := rows[i].ActiveResponses
		dto.ActiveResponses = &active
		out = append(out, dto)
	}
	return out
}

type listingDTO struct {
	requestDTO
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

func toListingDTOs(items []matching.Listing) []listingDTO {
	out := make([]listingDTO, 0, len(items))
	for i := range items {
		dto := toRequestDTO(&items[i].Request)
		active := items[i].ActiveResponses
		dto.ActiveResponses = &active
		out = append(out, listingDTO{
			requestDTO: dto,
			Latitude:   items[i].Point.Lat,
			Longitude:  items[i].Point.Lng,
			DistanceKm: items[i].DistanceKm,
		})
	}
	return out
}

type donationDTO struct {
	ID                 string                 `json:"id"`
	RequestID          string                 `json:"request_id"`
	DonorID            string                 `json:"donor_id"`
	Status             string                 `json:"status"`
	CancellationReason *string                `json:"cancellation_reason,omitempty"`
	Timeline           []domain.TimelineEntry `json:"timeline"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

func toDonationDTO(d *domain.Donation) donationDTO {
	timeline := []domain.TimelineEntry(d.Timeline)
	if timeline == nil {
		timeline = []domain.TimelineEntry{}
	}
	return donationDTO{
		ID:                 d.ID,
		RequestID:          d.RequestID,
		DonorID:            d.DonorID,
		Status:             string(d.Status),
		CancellationReason: d.CancellationReason,
		Timeline:           timeline,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

func toDonationDTOs(items []domain.Donation) []donationDTO {
	out := make([]donationDTO, 0, len(items))
	for i := range items {
		out = append(out, toDonationDTO(&items[i]))
	}
	return out
}
