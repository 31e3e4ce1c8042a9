package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/NithishSaravananRss/valentine-proposal-app/internal/export"
	"github.com/NithishSaravananRss/valentine-proposal-app/internal/presentation"
	"github.com/NithishSaravananRss/valentine-proposal-app/internal/proposal"
)

type CelebrationView struct {
	ProposerName string `json:"proposerName"`
	PartnerName  string `json:"partnerName"`
	AcceptedAt   *int64 `json:"acceptedAt"`
	Date         string `json:"date"`
}

func (s *Service) acceptedProposal(ctx context.Context, id string) (proposal.Proposal, error) {
	current, ok := s.proposals.Get(ctx, id)
	if !ok {
		return proposal.Proposal{}, errNotFound
	}
	if current.Status != proposal.StatusAccepted {
		return proposal.Proposal{}, errNotAccepted
	}
	return current, nil
}

func (s *Service) acceptedTime(p proposal.Proposal) time.Time {
	if p.AcceptedAt != nil {
		return time.UnixMilli(*p.AcceptedAt)
	}
	return s.now()
}

// CelebrateProposal serves the page shown after a yes. Anything other than
// an accepted proposal is an error.
func (s *Service) CelebrateProposal(ctx context.Context, id string, p presentation.Presenter) (CelebrationView, error) {
	current, err := s.acceptedProposal(ctx, id)
	if err != nil {
		return CelebrationView{}, err
	}

	presentation.Play(ctx, p,
		presentation.Event{Cue: presentation.CueAmbientParticles, Params: map[string]any{"theme": "celebration"}},
		presentation.Music(presentation.TrackCelebration),
		presentation.SFX(presentation.SFXConfetti),
		presentation.Confetti(200, false),
		presentation.Confetti(0, true),
	)
	return CelebrationView{
		ProposerName: current.ProposerName,
		PartnerName:  current.PartnerName,
		AcceptedAt:   current.AcceptedAt,
		Date:         export.CelebrationDate(s.acceptedTime(current)),
	}, nil
}

// Keepsake captures the celebration card of an accepted proposal.
func (s *Service) Keepsake(ctx context.Context, id string, format export.Format) (*export.Result, error) {
	if s.keepsakes == nil {
		return nil, domainError(http.StatusServiceUnavailable, "KEEPSAKE_UNAVAILABLE", MsgKeepsake, nil)
	}
	current, err := s.acceptedProposal(ctx, id)
	if err != nil {
		return nil, err
	}
	result, err := s.keepsakes.Keepsake(ctx, export.Card{
		ProposalID:   id,
		ProposerName: current.ProposerName,
		PartnerName:  current.PartnerName,
		AcceptedAt:   s.acceptedTime(current),
	}, format)
	switch {
	case errors.Is(err, export.ErrUnsupportedFormat):
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be png or pdf", nil)
	case err != nil:
		s.logger.Error("keepsake capture failed", zap.String("proposal_id", id), zap.Error(err))
		return nil, domainError(http.StatusServiceUnavailable, "KEEPSAKE_UNAVAILABLE", MsgKeepsake, nil)
	}
	return result, nil
}
