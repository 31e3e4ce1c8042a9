package export

import (
	"context"
	"fmt"
	"path"

	"go.uber.org/zap"
)

// Service provides keepsake capture
type Service struct {
	capturer Capturer
	archive  Archive
	logger   *zap.Logger
}

// NewService creates a keepsake service. archive may be nil, in which case
// results are only returned inline.
func NewService(capturer Capturer, archive Archive, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{capturer: capturer, archive: archive, logger: logger}
}

// Keepsake renders the card and captures it in the requested format. When
// an archive is configured the result also carries a download link; an
// archive failure is logged and the bytes are still returned.
func (s *Service) Keepsake(ctx context.Context, card Card, format Format) (*Result, error) {
	if format != FormatPNG && format != FormatPDF {
		return nil, ErrUnsupportedFormat
	}

	html, err := RenderCardHTML(card)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	data, err := s.capturer.Capture(ctx, html, format)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Data:     data,
		Filename: keepsakeFilename(card.ProposalID, format),
		MimeType: format.MimeType(),
	}

	if s.archive != nil {
		key := path.Join("keepsakes", card.ProposalID, result.Filename)
		link, err := s.archive.Put(ctx, key, data, result.MimeType)
		if err != nil {
			s.logger.Warn("keepsake archive failed", zap.String("proposal_id", card.ProposalID), zap.Error(err))
		} else {
			result.URL = link
		}
	}
	return result, nil
}
