package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseBloodType(t *testing.T) {
	for _, raw := range []string{"A+", "a-", " ab+ ", "O-"} {
		if _, err := ParseBloodType(raw); err != nil {
			t.Fatalf("ParseBloodType(%q) error: %v", raw, err)
		}
	}
	for _, raw := range []string{"", "C+", "A"} {
		_, err := ParseBloodType(raw)
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("ParseBloodType(%q) err = %v, want ErrValidation", raw, err)
		}
	}
}

func TestParseComponentType(t *testing.T) {
	tests := map[string]ComponentType{
		"":                ComponentWholeBlood,
		"whole   blood":   ComponentWholeBlood,
		"prbc":            ComponentPRBC,
		"PLATELETS":       ComponentPlatelets,
		"Plasma":          ComponentPlasma,
		"cryoprecipitate": ComponentCryoprecipitate,
	}
	for raw, want := range tests {
		got, err := ParseComponentType(raw)
		if err != nil {
			t.Fatalf("ParseComponentType(%q) error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseComponentType(%q) = %q, want %q", raw, got, want)
		}
	}
	if _, err := ParseComponentType("serum"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseUrgency(t *testing.T) {
	tests := map[string]Urgency{
		"":         UrgencyStandard,
		"critical": UrgencyCritical,
		"URGENT":   UrgencyUrgent,
		"Standard": UrgencyStandard,
	}
	for raw, want := range tests {
		got, err := ParseUrgency(raw)
		if err != nil || got != want {
			t.Fatalf("ParseUrgency(%q) = %q, %v; want %q", raw, got, err, want)
		}
	}
	if _, err := ParseUrgency("whenever"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRequestHasCapacity(t *testing.T) {
	r := &Request{Status: RequestPending, UnitsNeeded: 2}
	if !r.HasCapacity(1) {
		t.Fatal("one of two units taken should leave capacity")
	}
	if r.HasCapacity(2) {
		t.Fatal("full request reported capacity")
	}
	r.Status = RequestCancelled
	if r.HasCapacity(0) {
		t.Fatal("cancelled request reported capacity")
	}
}

func TestTimelineAppendDoesNotMutate(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	base := Timeline{NewTimelineEntry(DonationEnRoute, now)}
	next := base.Append(NewTimelineEntry(DonationArrived, now.Add(time.Minute)))

	if len(base) != 1 {
		t.Fatalf("base timeline mutated: %v", base)
	}
	if len(next) != 2 || next[0].Status != DonationEnRoute || next[1].Status != DonationArrived {
		t.Fatalf("unexpected timeline: %v", next)
	}
	if next[1].Timestamp != "2025-03-01T10:01:00Z" {
		t.Fatalf("timestamp = %q", next[1].Timestamp)
	}
}
