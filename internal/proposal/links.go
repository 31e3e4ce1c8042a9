package proposal

import (
	"net/url"
	"strings"

	"github.com/NithishSaravananRss/valentine-proposal-app/internal/sanitize"
)

// Links builds the page URLs shared with the respondent and the creator.
type Links struct {
	Base string
}

// NewLinks normalizes base to end with a slash.
func NewLinks(base string) Links {
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return Links{Base: base}
}

func (l Links) Home() string {
	return l.Base + "index.html"
}

// Respond is the link sent to the partner.
func (l Links) Respond(id string) string {
	return l.page("proposal.html", id)
}

// Track is the link the creator keeps to watch progress.
func (l Links) Track(id string) string {
	return l.page("tracking.html", id)
}

func (l Links) Celebrate(id string) string {
	return l.page("celebration.html", id)
}

func (l Links) page(name, id string) string {
	if !sanitize.IsValidID(id) {
		return l.Base
	}
	return l.Base + name + "?id=" + url.QueryEscape(id)
}

// IDFromQuery extracts the id query parameter when it is a valid id.
func IDFromQuery(values url.Values) (string, bool) {
	id := values.Get("id")
	if !sanitize.IsValidID(id) {
		return "", false
	}
	return id, true
}
