package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/NithishSaravananRss/valentine-proposal-app/internal/presentation"
	"github.com/NithishSaravananRss/valentine-proposal-app/internal/proposal"
)

// TrackProposal follows a proposal for its creator. onUpdate receives the
// timeline whenever the displayed state changes. Once the proposal is
// accepted the celebration cues play, and after AcceptedRedirectDelay a
// redirect cue ends the stream. Cancelling ctx ends tracking early. The
// subscription is closed on every return path.
func (s *Service) TrackProposal(ctx context.Context, id string, p presentation.Presenter, onUpdate func(proposal.TimelineView)) error {
	initial, ok := s.proposals.Get(ctx, id)
	if !ok {
		return errNotFound
	}

	var timeline proposal.Timeline
	timeline.Apply(&initial)
	onUpdate(timeline.View())
	presentation.Play(ctx, p, presentation.Event{Cue: presentation.CueRevealCard, Params: map[string]any{"card": "tracking"}})

	updates := make(chan *proposal.Proposal, 8)
	done := make(chan struct{})
	defer close(done)

	sub := s.proposals.Subscribe(ctx, id, func(changed *proposal.Proposal) {
		select {
		case updates <- changed:
		case <-done:
		}
	})
	defer sub.Close()

	if initial.Status == proposal.StatusAccepted {
		return s.celebrateAccepted(ctx, id, initial, sub, p)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case changed := <-updates:
			if changed == nil {
				continue
			}
			if !timeline.Apply(changed) {
				continue
			}
			onUpdate(timeline.View())
			if changed.Status == proposal.StatusAccepted {
				return s.celebrateAccepted(ctx, id, *changed, sub, p)
			}
		}
	}
}

func (s *Service) celebrateAccepted(ctx context.Context, id string, accepted proposal.Proposal, sub *proposal.Subscription, p presentation.Presenter) error {
	s.logger.Info("proposal accepted", zap.String("proposal_id", id))
	presentation.Play(ctx, p,
		presentation.SFX(presentation.SFXConfetti),
		presentation.Confetti(200, true),
		presentation.Event{Cue: presentation.CueStatusChange, Params: map[string]any{
			"stage":   "accepted",
			"message": accepted.PartnerGender.Subject() + " Said Yes! 💕",
		}},
	)
	if err := sleepContext(ctx, s.cfg.AcceptedRedirectDelay); err != nil {
		return nil
	}
	sub.Close()
	presentation.Play(ctx, p, presentation.Redirect(s.links.Celebrate(id)))
	return nil
}
