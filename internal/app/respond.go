package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/NithishSaravananRss/valentine-proposal-app/internal/presentation"
	"github.com/NithishSaravananRss/valentine-proposal-app/internal/proposal"
	"github.com/NithishSaravananRss/valentine-proposal-app/internal/sanitize"
	"github.com/NithishSaravananRss/valentine-proposal-app/internal/session"
)

// RespondView is what the respondent's page shows. When Redirect is set the
// page navigates there instead.
type RespondView struct {
	Proposal proposal.Proposal `json:"proposal"`
	From     string            `json:"from"`
	Theme    string            `json:"theme"`
	Redirect string            `json:"redirect,omitempty"`
}

type AcceptResult struct {
	Redirect string `json:"redirect"`
	// Confirmed is false when the write failed; the page redirects anyway.
	Confirmed bool `json:"confirmed"`
}

// OpenProposal runs when the respondent loads the page. A pending proposal
// is marked opened.
func (s *Service) OpenProposal(ctx context.Context, id string, p presentation.Presenter) (RespondView, error) {
	current, ok := s.proposals.Get(ctx, id)
	if !ok {
		presentation.Play(ctx, p, presentation.Event{Cue: presentation.CueAmbientParticles, Params: map[string]any{"theme": "ambient"}})
		return RespondView{}, errNotFound
	}

	if current.Status == proposal.StatusPending {
		if !s.proposals.UpdateStatus(ctx, id, proposal.Opened(s.now())) {
			s.logger.Warn("mark proposal opened failed", zap.String("proposal_id", id))
		}
		current.Status = proposal.StatusOpened
	}

	if current.Status == proposal.StatusAccepted {
		return RespondView{Proposal: current, Redirect: s.links.Celebrate(id)}, nil
	}

	theme, particles, track := "female", "stars", presentation.TrackRomanticFemale
	if current.ProposerGender == proposal.GenderMale {
		theme, particles, track = "male", "hearts", presentation.TrackRomanticMale
	}
	presentation.Play(ctx, p,
		presentation.Event{Cue: presentation.CueAmbientParticles, Params: map[string]any{"theme": particles}},
		presentation.Event{Cue: presentation.CueRevealCard, Params: map[string]any{"card": "proposal"}},
		presentation.Music(track),
		presentation.Event{Cue: presentation.CueHeartbeat},
		presentation.SFX(presentation.SFXHeartbeat),
	)
	return RespondView{
		Proposal: current,
		From:     "From " + current.ProposerName,
		Theme:    theme,
	}, nil
}

// AcceptProposal records the yes. The proposal must exist; an accepted one
// only gets the redirect, so acceptedAt is written once. A pending proposal
// is marked opened in the same write. The redirect to the celebration page is
// returned even when the write fails: the accept may still have landed.
func (s *Service) AcceptProposal(ctx context.Context, id string, p presentation.Presenter) (AcceptResult, error) {
	if !sanitize.IsValidID(id) {
		return AcceptResult{}, errNotFound
	}

	release, err := s.guard.Begin(ctx, session.AcceptScope(id), 0)
	switch {
	case errors.Is(err, session.ErrInFlight), errors.Is(err, session.ErrCooldown):
		return AcceptResult{}, errAcceptBusy
	case err != nil:
		// the guard only deduplicates clicks
		s.logger.Warn("accept guard failed", zap.String("proposal_id", id), zap.Error(err))
	default:
		defer release()
	}

	current, ok := s.proposals.Get(ctx, id)
	if !ok {
		return AcceptResult{}, errNotFound
	}
	redirect := s.links.Celebrate(id)
	if current.Status == proposal.StatusAccepted {
		presentation.Play(ctx, p, presentation.Redirect(redirect))
		return AcceptResult{Redirect: redirect, Confirmed: true}, nil
	}

	presentation.Play(ctx, p,
		presentation.SFX(presentation.SFXSuccess),
		presentation.Confetti(150, false),
	)

	now := s.now()
	update := proposal.Accepted(now)
	if current.OpenedAt == nil {
		update["openedAt"] = now.UnixMilli()
	}
	confirmed := s.proposals.UpdateStatus(ctx, id, update)
	if !confirmed {
		s.logger.Warn("accept not confirmed", zap.String("proposal_id", id))
	}
	presentation.Play(ctx, p, presentation.Redirect(redirect))
	return AcceptResult{Redirect: redirect, Confirmed: confirmed}, nil
}
