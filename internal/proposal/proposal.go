// Package proposal implements the proposal record: its lifecycle, the
// sanitizing store over a realtime backend, and the links shared between
// the creator and the respondent.
package proposal

import (
	"encoding/json"
	"math"
	"time"

	"github.com/NithishSaravananRss/valentine-proposal-app/internal/sanitize"
	"github.com/NithishSaravananRss/valentine-proposal-app/internal/store"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// ParseGender coerces any input to a Gender. Only the exact string
// "female" selects GenderFemale.
func ParseGender(v any) Gender {
	if s, ok := v.(string); ok && s == string(GenderFemale) {
		return GenderFemale
	}
	return GenderMale
}

// Subject is the capitalised subject pronoun, e.g. "She said YES!".
func (g Gender) Subject() string {
	if g == GenderFemale {
		return "She"
	}
	return "He"
}

// Object is the object pronoun, e.g. "Waiting for her to open".
func (g Gender) Object() string {
	if g == GenderFemale {
		return "her"
	}
	return "him"
}

// Proposal is the sanitized view of a stored record. Timestamps are epoch
// milliseconds.
type Proposal struct {
	ID             string `json:"id"`
	ProposerName   string `json:"proposerName"`
	ProposerGender Gender `json:"proposerGender"`
	PartnerName    string `json:"partnerName"`
	PartnerGender  Gender `json:"partnerGender"`
	Status         Status `json:"status"`
	CreatedAt      int64  `json:"createdAt"`
	OpenedAt       *int64 `json:"openedAt"`
	AcceptedAt     *int64 `json:"acceptedAt"`
}

// Fields are the creator-supplied values of a new proposal, unsanitized.
type Fields struct {
	ProposerName   string `json:"proposerName"`
	ProposerGender string `json:"proposerGender"`
	PartnerName    string `json:"partnerName"`
	PartnerGender  string `json:"partnerGender"`
}

// Update is a loosely typed status change, as it may arrive from a caller.
// UpdateStatus keeps only the keys it recognises.
type Update map[string]any

// Opened is the update sent when the respondent first views a proposal.
func Opened(at time.Time) Update {
	return Update{"status": string(StatusOpened), "openedAt": at.UnixMilli()}
}

// Accepted is the update sent when the respondent says yes.
func Accepted(at time.Time) Update {
	return Update{"status": string(StatusAccepted), "acceptedAt": at.UnixMilli()}
}

// fromRecord normalizes whatever is stored, so malformed external data
// never reaches a caller.
func fromRecord(id string, record store.Record, now time.Time) *Proposal {
	p := &Proposal{
		ID:             id,
		ProposerName:   sanitize.Value(record["proposerName"], sanitize.MaxNameLength),
		ProposerGender: ParseGender(record["proposerGender"]),
		PartnerName:    sanitize.Value(record["partnerName"], sanitize.MaxNameLength),
		PartnerGender:  ParseGender(record["partnerGender"]),
		Status:         ParseStatus(record["status"]),
		CreatedAt:      now.UnixMilli(),
	}
	if createdAt, ok := millis(record["createdAt"]); ok {
		p.CreatedAt = createdAt
	}
	if openedAt, ok := millis(record["openedAt"]); ok {
		p.OpenedAt = &openedAt
	}
	if acceptedAt, ok := millis(record["acceptedAt"]); ok {
		p.AcceptedAt = &acceptedAt
	}
	return p
}

// millis accepts only numeric values.
func millis(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return int64(f), true
	default:
		return 0, false
	}
}
