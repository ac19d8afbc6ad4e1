package domain

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// BloodType enumerates ABO/Rh groups.
type BloodType string

const (
	BloodTypeAPos  BloodType = "A+"
	BloodTypeANeg  BloodType = "A-"
	BloodTypeBPos  BloodType = "B+"
	BloodTypeBNeg  BloodType = "B-"
	BloodTypeABPos BloodType = "AB+"
	BloodTypeABNeg BloodType = "AB-"
	BloodTypeOPos  BloodType = "O+"
	BloodTypeONeg  BloodType = "O-"
)

var bloodTypes = map[BloodType]struct{}{
	BloodTypeAPos: {}, BloodTypeANeg: {}, BloodTypeBPos: {}, BloodTypeBNeg: {},
	BloodTypeABPos: {}, BloodTypeABNeg: {}, BloodTypeOPos: {}, BloodTypeONeg: {},
}

// ParseBloodType accepts any casing and surrounding whitespace.
func ParseBloodType(raw string) (BloodType, error) {
	bt := BloodType(strings.ToUpper(strings.TrimSpace(raw)))
	if bt == "" {
		return "", Validationf("blood type is required")
	}
	if _, ok := bloodTypes[bt]; !ok {
		return "", Validationf("unknown blood type %q", raw)
	}
	return bt, nil
}

// ComponentType enumerates the blood product being requested.
type ComponentType string

const (
	ComponentWholeBlood      ComponentType = "Whole Blood"
	ComponentPRBC            ComponentType = "PRBC"
	ComponentPlatelets       ComponentType = "Platelets"
	ComponentPlasma          ComponentType = "Plasma"
	ComponentCryoprecipitate ComponentType = "Cryoprecipitate"
)

var (
	foldCase   = cases.Fold()
	titleCase  = cases.Title(language.English)
	components = []ComponentType{ComponentWholeBlood, ComponentPRBC, ComponentPlatelets, ComponentPlasma, ComponentCryoprecipitate}
)

// ParseComponentType matches case-insensitively; empty input means whole blood.
func ParseComponentType(raw string) (ComponentType, error) {
	key := foldCase.String(strings.Join(strings.Fields(raw), " "))
	if key == "" {
		return ComponentWholeBlood, nil
	}
	for _, c := range components {
		if foldCase.String(string(c)) == key {
			return c, nil
		}
	}
	return "", Validationf("unknown component type %q", raw)
}

// Urgency enumerates request priority.
type Urgency string

const (
	UrgencyStandard Urgency = "Standard"
	UrgencyUrgent   Urgency = "Urgent"
	UrgencyCritical Urgency = "Critical"
)

// ParseUrgency normalises casing; empty input means standard.
func ParseUrgency(raw string) (Urgency, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UrgencyStandard, nil
	}
	switch u := Urgency(titleCase.String(strings.ToLower(trimmed))); u {
	case UrgencyStandard, UrgencyUrgent, UrgencyCritical:
		return u, nil
	}
	return "", Validationf("unknown urgency %q", raw)
}

// RequestStatus enumerates the request lifecycle.
type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestAccepted  RequestStatus = "ACCEPTED"
	RequestFulfilled RequestStatus = "FULFILLED"
	RequestCancelled RequestStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is allowed.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestFulfilled || s == RequestCancelled
}

// Open reports whether the request may still take donations.
func (s RequestStatus) Open() bool {
	return s == RequestPending || s == RequestAccepted
}

// Request is a posted need for blood.
type Request struct {
	ID            string
	RequesterID   string
	BloodType     BloodType
	ComponentType ComponentType
	UnitsNeeded   int
	Urgency       Urgency
	HospitalLabel string
	Location      string
	Note          *string
	Status        RequestStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Point parses the stored location.
func (r *Request) Point() (Point, error) {
	return ParsePoint(r.Location)
}

// HasCapacity reports whether another active response fits.
func (r *Request) HasCapacity(activeResponses int) bool {
	return r.Status.Open() && activeResponses < r.UnitsNeeded
}

// RequestWithCount pairs a request with its active response count.
type RequestWithCount struct {
	Request
	ActiveResponses int
}

// NewRequestInput carries the raw fields of a new request.
type NewRequestInput struct {
	RequesterID   string
	BloodType     string
	ComponentType string
	UnitsNeeded   int
	Urgency       string
	HospitalLabel string
	Location      *Point
	Note          string
}
