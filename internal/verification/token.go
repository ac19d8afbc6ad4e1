// Package verification implements the QR checkpoint protocol that moves a donation through
// its physical milestones.
package verification

import (
	"fmt"
	"strings"

	"pulsethread/internal/domain"
)

// Action is the checkpoint a token authorises.
type Action string

const (
	ActionArrival  Action = "VERIFY_ARRIVAL"
	ActionMatch    Action = "VERIFY_MATCH"
	ActionMismatch Action = "VERIFY_MISMATCH"
	ActionDonation Action = "VERIFY_DONATION"
)

// Actions lists every action in checkpoint order.
var Actions = []Action{ActionArrival, ActionMatch, ActionMismatch, ActionDonation}

// ParseAction accepts only the exact wire names.
func ParseAction(raw string) (Action, error) {
	for _, a := range Actions {
		if string(a) == raw {
			return a, nil
		}
	}
	return "", domain.Validationf("unknown checkpoint action %q", raw)
}

type edge struct {
	from   domain.DonationStatus
	action Action
}

type outcome struct {
	to     domain.DonationStatus
	reason string
}

// transitions is the complete table. Every pairing absent from it is illegal.
var transitions = map[edge]outcome{
	{domain.DonationEnRoute, ActionArrival}:  {to: domain.DonationArrived},
	{domain.DonationArrived, ActionMatch}:    {to: domain.DonationMatched},
	{domain.DonationArrived, ActionMismatch}: {to: domain.DonationCancelled, reason: domain.ReasonCrossMatchFailed},
	{domain.DonationMatched, ActionDonation}: {to: domain.DonationDonated},
}

// Next returns the status that action moves current to, and the cancellation reason the
// move records, if any. It is defined for every (status, action) pair.
func Next(current domain.DonationStatus, action Action) (domain.DonationStatus, string, error) {
	out, ok := transitions[edge{current, action}]
	if !ok {
		return current, "", fmt.Errorf("%w: %s is not valid while %s", domain.ErrInvalidTransition, action, current)
	}
	return out.to, out.reason, nil
}

// ExpectedActions returns the actions legal for a status, in checkpoint order.
func ExpectedActions(status domain.DonationStatus) []Action {
	out := []Action{}
	for _, a := range Actions {
		if _, ok := transitions[edge{status, a}]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Token is the content of a checkpoint QR code: "<ACTION>:<donationId>".
type Token struct {
	Action     Action
	DonationID string
}

func (t Token) String() string {
	return string(t.Action) + ":" + t.DonationID
}

// ParseToken decodes the wire form. The action must be one of the four literals and the
// donation id must be non-empty.
func ParseToken(raw string) (Token, error) {
	action, id, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return Token{}, domain.Validationf("malformed checkpoint token")
	}
	a, err := ParseAction(action)
	if err != nil {
		return Token{}, err
	}
	if id == "" {
		return Token{}, domain.Validationf("checkpoint token has no donation id")
	}
	return Token{Action: a, DonationID: id}, nil
}
