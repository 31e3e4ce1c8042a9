// Package export renders the celebration keepsake card and captures it as
// a PNG screenshot or a PDF.
package export

import (
	"errors"
	"time"
)

// Format represents the keepsake output format
type Format string

const (
	FormatPNG Format = "png"
	FormatPDF Format = "pdf"
)

// ParseFormat maps an empty value to PNG.
func ParseFormat(v string) (Format, error) {
	switch Format(v) {
	case "", FormatPNG:
		return FormatPNG, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

func (f Format) MimeType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "image/png"
}

// Card is the content of the keepsake. Names are already sanitized.
type Card struct {
	ProposalID   string
	ProposerName string
	PartnerName  string
	AcceptedAt   time.Time
}

// Result contains the captured keepsake
type Result struct {
	Data     []byte
	Filename string
	MimeType string
	// URL is a presigned download link when the keepsake was archived.
	URL string
}

var (
	// ErrCaptureDependencyMissing indicates no headless Chromium is installed.
	ErrCaptureDependencyMissing = errors.New("keepsake capture dependency missing")
	ErrUnsupportedFormat        = errors.New("unsupported keepsake format")
)
