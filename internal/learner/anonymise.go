// SPDX-License-Identifier: MIT

// Package learner owns the set of learner records, hands out exclusive
// per-learner handles, and coordinates anonymisation so no outbound
// artefact reveals an individual beyond a bucket of size five or more.
package learner

import (
	"strings"

	"github.com/vrlearn/adaptd/internal/privacy"
)

// Age bands for k-anonymity generalisation.
const (
	AgeBandUnder18 = "<18"
	AgeBand18to24  = "18-24"
	AgeBand25to34  = "25-34"
	AgeBand35to49  = "35-49"
	AgeBand50Plus  = "50+"
	AgeBandUnknown = "unknown"
)

// Institution tiers replacing specific institution names.
const (
	TierPrimary    = "primary"
	TierSecondary  = "secondary"
	TierHigherEd   = "higher_ed"
	TierVocational = "vocational"
	TierCorporate  = "corporate"
	TierOther      = "other"
)

// RawProfile is what clients send before anonymisation. Direct
// identifiers never leave this package in the clear.
type RawProfile struct {
	Age         int               `json:"age,omitempty"`
	Location    string            `json:"location,omitempty"`
	Institution string            `json:"institution,omitempty"`
	Email       string            `json:"email,omitempty"`
	Phone       string            `json:"phone,omitempty"`
	LegalName   string            `json:"legal_name,omitempty"`
	Address     string            `json:"address,omitempty"`
	Preferences map[string]string `json:"preferences,omitempty"`
}

// StaticProfile is the generalised, storable form of a profile. Direct
// identifiers are replaced by keyed 16-hex tokens; demographics are
// bucketed equivalence classes.
type StaticProfile struct {
	AgeBand     string            `json:"age_band"`
	Region      string            `json:"region"`
	Tier        string            `json:"tier"`
	ContactRef  string            `json:"contact_ref,omitempty"`
	IdentityRef string            `json:"identity_ref,omitempty"`
	Preferences map[string]string `json:"preferences,omitempty"`
}

// AgeBand buckets an exact age.
func AgeBand(age int) string {
	switch {
	case age <= 0:
		return AgeBandUnknown
	case age < 18:
		return AgeBandUnder18
	case age <= 24:
		return AgeBand18to24
	case age <= 34:
		return AgeBand25to34
	case age <= 49:
		return AgeBand35to49
	default:
		return AgeBand50Plus
	}
}

// Region generalises a specific location to its coarsest component:
// "Cambridge, MA, US" becomes "us". Unknown locations map to "unknown".
func Region(location string) string {
	location = strings.TrimSpace(location)
	if location == "" {
		return "unknown"
	}
	parts := strings.Split(location, ",")
	last := strings.TrimSpace(parts[len(parts)-1])
	if last == "" {
		return "unknown"
	}
	return strings.ToLower(last)
}

// Tier maps an institution name onto a tier label. The match is keyword
// based; anything unrecognised lands in "other" rather than leaking the
// name.
func Tier(institution string) string {
	inst := strings.ToLower(institution)
	switch {
	case inst == "":
		return TierOther
	case strings.Contains(inst, "elementary"), strings.Contains(inst, "primary"):
		return TierPrimary
	case strings.Contains(inst, "high school"), strings.Contains(inst, "secondary"), strings.Contains(inst, "gymnasium"):
		return TierSecondary
	case strings.Contains(inst, "university"), strings.Contains(inst, "college"), strings.Contains(inst, "institute"):
		return TierHigherEd
	case strings.Contains(inst, "vocational"), strings.Contains(inst, "trade"), strings.Contains(inst, "apprentice"):
		return TierVocational
	case strings.Contains(inst, "corp"), strings.Contains(inst, "gmbh"), strings.Contains(inst, "inc"), strings.Contains(inst, "llc"):
		return TierCorporate
	default:
		return TierOther
	}
}

// Generalise converts a raw profile into its k-anonymous static form.
// Contact and identity fields collapse into keyed hashes so correlation
// stays possible without the originals.
func Generalise(raw RawProfile, hasher *privacy.Hasher) StaticProfile {
	sp := StaticProfile{
		AgeBand:     AgeBand(raw.Age),
		Region:      Region(raw.Location),
		Tier:        Tier(raw.Institution),
		Preferences: raw.Preferences,
	}
	if raw.Email != "" || raw.Phone != "" {
		sp.ContactRef = hasher.Token(raw.Email + "|" + raw.Phone)
	}
	if raw.LegalName != "" || raw.Address != "" {
		sp.IdentityRef = hasher.Token(raw.LegalName + "|" + raw.Address)
	}
	return sp
}
