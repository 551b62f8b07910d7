package models

import "time"

// PresenceRecord is a user's opt-in location sharing state, keyed by email.
type PresenceRecord struct {
	Email      string    `bson:"email" json:"email"`
	Name       string    `bson:"name" json:"name"`
	InDALI     bool      `bson:"in_dali" json:"inDALI"`
	Shared     bool      `bson:"shared" json:"shared"`
	LastUpdate time.Time `bson:"last_update" json:"-"`
}

// Listable reports whether the record may appear in a "who's here" listing.
func (p PresenceRecord) Listable() bool {
	return p.Shared && p.InDALI && p.Email != "" && p.Name != ""
}

// Zone names accepted by the special tracker.
const (
	ZoneDALI   = "DALI"
	ZoneOffice = "OFFICE"
)

// SpecialTracker is the singleton location record for one designated person.
type SpecialTracker struct {
	InDALI   bool `bson:"in_dali" json:"inDALI"`
	InOffice bool `bson:"in_office" json:"inOffice"`
}
