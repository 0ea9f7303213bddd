package database

import (
	"time"
)

// CaseState is the lifecycle state of a case.
type CaseState string

const (
	StateOpen  CaseState = "OPEN"
	StateFound CaseState = "FOUND"
)

// Gender is the enumerated gender of a missing person.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

// Valid reports whether g is one of the enumerated genders.
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// Coordinates is a WGS84 position.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Profile describes the missing person.
type Profile struct {
	Name   string
	Age    int
	Gender Gender
	Notes  string
}

// Contact describes the person to reach about a case.
// NationalID is stored in full and must be masked before it leaves the process.
type Contact struct {
	Name       string
	Number     string
	Relation   string
	Address    string
	NationalID string
}

// Case is a stored missing-person record. Apart from State and ResolvedAt
// a case never changes after it is inserted.
type Case struct {
	ID             string
	OwnerID        string
	Profile        Profile
	Location       string
	Coordinates    *Coordinates // nil when geocoding found nothing
	SightingDate   time.Time
	Contact        Contact
	PhotoReference string
	Embedding      []float32
	RelatedLinks   []string
	State          CaseState
	CreatedAt      time.Time
	ResolvedAt     *time.Time
}

// Clone returns a deep copy so callers can never alias stored slices.
func (c *Case) Clone() *Case {
	out := *c
	if c.Coordinates != nil {
		coords := *c.Coordinates
		out.Coordinates = &coords
	}
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		out.ResolvedAt = &t
	}
	out.Embedding = append([]float32(nil), c.Embedding...)
	out.RelatedLinks = append([]string(nil), c.RelatedLinks...)
	return &out
}
