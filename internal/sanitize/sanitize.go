// Package sanitize cleans untrusted free text and proposal identifiers
// before they are persisted or rendered.
package sanitize

import (
	"html"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxNameLength bounds every persisted name field.
const MaxNameLength = 30

// IDPrefix starts every proposal identifier.
const IDPrefix = "val_"

var (
	scriptBlockPattern  = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	tagPattern          = regexp.MustCompile(`<[^>]*>`)
	eventHandlerPattern = regexp.MustCompile(`(?i)on\w+\s*=`)
	jsURIPattern        = regexp.MustCompile(`(?i)javascript:`)
	idPattern           = regexp.MustCompile(`^val_[a-zA-Z0-9_-]+$`)

	entityDecoder = strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&amp;", "&",
		"&quot;", `"`,
		"&#039;", "'",
	)
)

// Text strips markup, script blocks, inline event handlers and javascript:
// URIs from input, decodes the common HTML entities, trims it and truncates
// it to maxLength runes.
//
// Cleaning runs until nothing changes, so markup hidden behind entities is
// removed too and Text(Text(s, n), n) == Text(s, n).
func Text(input string, maxLength int) string {
	if maxLength < 0 {
		maxLength = 0
	}
	s := strings.ToValidUTF8(input, "")
	for {
		next := clean(s)
		if next == s {
			break
		}
		s = next
	}
	return strings.TrimSpace(truncate(s, maxLength))
}

// Value is Text for schemaless input: anything that is not a string
// sanitizes to the empty string.
func Value(v any, maxLength int) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return Text(s, maxLength)
}

// every step only removes or shortens, so repeated application terminates
func clean(s string) string {
	s = scriptBlockPattern.ReplaceAllString(s, "")
	s = tagPattern.ReplaceAllString(s, "")
	s = entityDecoder.Replace(s)
	s = eventHandlerPattern.ReplaceAllString(s, "")
	s = jsURIPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func truncate(s string, maxLength int) string {
	if utf8.RuneCountInString(s) <= maxLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLength])
}

// IsValidID reports whether id has the val_ prefix, only URL-safe
// characters and at least ten characters overall.
func IsValidID(id string) bool {
	if len(id) < 10 {
		return false
	}
	return idPattern.MatchString(id)
}

// GenerateID returns a fresh proposal identifier derived from a random
// UUID. When the system entropy source fails it falls back to a
// timestamp plus a pseudo-random suffix.
func GenerateID() string {
	id, err := uuid.NewRandom()
	if err == nil {
		return IDPrefix + id.String()
	}
	return fallbackID(time.Now())
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

func fallbackID(now time.Time) string {
	suffix := make([]byte, 8)
	for i := range suffix {
		suffix[i] = base36[rand.Intn(len(base36))]
	}
	return IDPrefix + strconv.FormatInt(now.UnixMilli(), 36) + "_" + string(suffix)
}

// EscapeForDisplay entity-escapes text for insertion into markup. Prefer
// text-only rendering where possible; it needs no escaping at all.
func EscapeForDisplay(text string) string {
	return html.EscapeString(text)
}
