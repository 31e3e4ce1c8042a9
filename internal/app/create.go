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

type CreateInput struct {
	ProposerName   string `json:"proposerName"`
	ProposerGender string `json:"proposerGender"`
	PartnerName    string `json:"partnerName"`
	PartnerGender  string `json:"partnerGender"`
}

type CreateResult struct {
	ProposalID  string `json:"proposalId"`
	RespondLink string `json:"proposalLink"`
	TrackLink   string `json:"trackingLink"`
}

func genderSelected(v string) bool {
	return v == string(proposal.GenderMale) || v == string(proposal.GenderFemale)
}

// CreateProposal validates the form and stores a new proposal. The
// cooldown starts with the attempt, so a rejected form also waits.
func (s *Service) CreateProposal(ctx context.Context, clientID string, input CreateInput, p presentation.Presenter) (CreateResult, error) {
	release, err := s.guard.Begin(ctx, session.CreateScope(clientID), s.cfg.CreateCooldown)
	switch {
	case errors.Is(err, session.ErrCooldown), errors.Is(err, session.ErrInFlight):
		presentation.Play(ctx, p, presentation.Toast("error", MsgCooldown))
		return CreateResult{}, errRateLimited
	case err != nil:
		s.logger.Error("submission guard failed", zap.Error(err))
		presentation.Play(ctx, p, presentation.Toast("error", MsgCreateFailed))
		return CreateResult{}, errCreateFailed
	}
	defer release()

	fields := proposal.Fields{
		ProposerName:   sanitize.Text(input.ProposerName, sanitize.MaxNameLength),
		ProposerGender: input.ProposerGender,
		PartnerName:    sanitize.Text(input.PartnerName, sanitize.MaxNameLength),
		PartnerGender:  input.PartnerGender,
	}
	if fields.ProposerName == "" || fields.PartnerName == "" {
		presentation.Play(ctx, p, presentation.Toast("error", MsgNamesRequired))
		return CreateResult{}, errNamesRequired
	}
	if !genderSelected(fields.ProposerGender) || !genderSelected(fields.PartnerGender) {
		presentation.Play(ctx, p, presentation.Toast("error", MsgGenderMissing))
		return CreateResult{}, errGenderMissing
	}

	id := s.newID()
	err = s.proposals.Create(ctx, id, fields)
	if errors.Is(err, proposal.ErrAlreadyExists) {
		// fresh identifier, not a retry of the same write
		id = s.newID()
		err = s.proposals.Create(ctx, id, fields)
	}
	if err != nil {
		if errors.Is(err, proposal.ErrEmptyName) {
			presentation.Play(ctx, p, presentation.Toast("error", MsgNamesRequired))
			return CreateResult{}, errNamesRequired
		}
		s.logger.Error("create proposal failed", zap.String("proposal_id", id), zap.Error(err))
		presentation.Play(ctx, p, presentation.Toast("error", MsgCreateFailed))
		return CreateResult{}, errCreateFailed
	}

	presentation.Play(ctx, p, presentation.Event{Cue: presentation.CueRevealCard, Params: map[string]any{"card": "success"}})
	return CreateResult{
		ProposalID:  id,
		RespondLink: s.links.Respond(id),
		TrackLink:   s.links.Track(id),
	}, nil
}
