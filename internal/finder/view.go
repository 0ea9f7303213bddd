package finder

import (
	"time"

	"github.com/kozaktomas/missing-finder/internal/database"
	"github.com/kozaktomas/missing-finder/internal/logging"
)

// ContactView is a contact with the national ID masked.
type ContactView struct {
	Name       string `json:"name"`
	Number     string `json:"number"`
	Relation   string `json:"relation,omitempty"`
	Address    string `json:"address,omitempty"`
	NationalID string `json:"national_id,omitempty"`
}

// CaseView is the external representation of a case. It has no embedding.
type CaseView struct {
	ID             string                `json:"id"`
	OwnerID        string                `json:"owner_id"`
	Name           string                `json:"name"`
	Age            int                   `json:"age"`
	Gender         database.Gender       `json:"gender"`
	Notes          string                `json:"notes,omitempty"`
	Location       string                `json:"location"`
	Coordinates    *database.Coordinates `json:"coordinates,omitempty"`
	SightingDate   string                `json:"sighting_date"`
	Contact        ContactView           `json:"contact"`
	PhotoReference string                `json:"photo_reference"`
	RelatedLinks   []string              `json:"related_links"`
	State          database.CaseState    `json:"state"`
	CreatedAt      time.Time             `json:"created_at"`
	ResolvedAt     *time.Time            `json:"resolved_at,omitempty"`
}

// NewCaseView builds a masked view of c.
func NewCaseView(c *database.Case) CaseView {
	v := CaseView{
		ID:           c.ID,
		OwnerID:      c.OwnerID,
		Name:         c.Profile.Name,
		Age:          c.Profile.Age,
		Gender:       c.Profile.Gender,
		Notes:        c.Profile.Notes,
		Location:     c.Location,
		SightingDate: c.SightingDate.Format(time.DateOnly),
		Contact: ContactView{
			Name:       c.Contact.Name,
			Number:     c.Contact.Number,
			Relation:   c.Contact.Relation,
			Address:    c.Contact.Address,
			NationalID: logging.MaskNationalID(c.Contact.NationalID),
		},
		PhotoReference: c.PhotoReference,
		RelatedLinks:   append([]string{}, c.RelatedLinks...),
		State:          c.State,
		CreatedAt:      c.CreatedAt,
	}
	if c.Coordinates != nil {
		coords := *c.Coordinates
		v.Coordinates = &coords
	}
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		v.ResolvedAt = &t
	}
	return v
}

func newCaseViews(cases []database.Case) []CaseView {
	views := make([]CaseView, len(cases))
	for i := range cases {
		views[i] = NewCaseView(&cases[i])
	}
	return views
}
