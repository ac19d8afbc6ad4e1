package verification

import (
	"errors"
	"testing"

	"pulsethread/internal/domain"
)

func TestParseToken(t *testing.T) {
	tok, err := ParseToken(" VERIFY_MATCH:9b2f-1 ")
	if err != nil {
		t.Fatalf("ParseToken error: %v", err)
	}
	if tok.Action != ActionMatch || tok.DonationID != "9b2f-1" {
		t.Fatalf("unexpected token %+v", tok)
	}
	if tok.String() != "VERIFY_MATCH:9b2f-1" {
		t.Fatalf("String() = %q", tok.String())
	}

	for _, raw := range []string{"", "VERIFY_MATCH", "VERIFY_MATCH:", "verify_match:abc", "SHIP:abc"} {
		if _, err := ParseToken(raw); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("ParseToken(%q) err = %v", raw, err)
		}
	}
}

func TestNextIsTotal(t *testing.T) {
	statuses := []domain.DonationStatus{
		domain.DonationEnRoute, domain.DonationArrived, domain.DonationMatched,
		domain.DonationDonated, domain.DonationCancelled,
	}
	legal := map[domain.DonationStatus]map[Action]domain.DonationStatus{
		domain.DonationEnRoute: {ActionArrival: domain.DonationArrived},
		domain.DonationArrived: {ActionMatch: domain.DonationMatched, ActionMismatch: domain.DonationCancelled},
		domain.DonationMatched: {ActionDonation: domain.DonationDonated},
	}
	for _, s := range statuses {
		for _, a := range Actions {
			next, reason, err := Next(s, a)
			want, ok := legal[s][a]
			if !ok {
				if !errors.Is(err, domain.ErrInvalidTransition) || next != s {
					t.Fatalf("Next(%s, %s) = %s, %v; want invalid transition", s, a, next, err)
				}
				continue
			}
			if err != nil || next != want {
				t.Fatalf("Next(%s, %s) = %s, %v; want %s", s, a, next, err, want)
			}
			if a == ActionMismatch && reason != domain.ReasonCrossMatchFailed {
				t.Fatalf("mismatch reason = %q", reason)
			}
		}
	}
}

func TestExpectedActions(t *testing.T) {
	got := ExpectedActions(domain.DonationArrived)
	if len(got) != 2 || got[0] != ActionMatch || got[1] != ActionMismatch {
		t.Fatalf("ExpectedActions(ARRIVED) = %v", got)
	}
	if len(ExpectedActions(domain.DonationDonated)) != 0 {
		t.Fatal("terminal status has no actions")
	}
}
