package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/NithishSaravananRss/valentine-proposal-app/internal/config"
	"github.com/NithishSaravananRss/valentine-proposal-app/internal/export"
	"github.com/NithishSaravananRss/valentine-proposal-app/internal/proposal"
	"github.com/NithishSaravananRss/valentine-proposal-app/internal/sanitize"
	"github.com/NithishSaravananRss/valentine-proposal-app/internal/session"
)

type proposalStore interface {
	Create(ctx context.Context, id string, fields proposal.Fields) error
	Get(ctx context.Context, id string) (proposal.Proposal, bool)
	UpdateStatus(ctx context.Context, id string, update proposal.Update) bool
	Subscribe(ctx context.Context, id string, onChange func(*proposal.Proposal)) *proposal.Subscription
	Ping(ctx context.Context) error
}

type keepsakeService interface {
	Keepsake(ctx context.Context, card export.Card, format export.Format) (*export.Result, error)
}

// Service holds the page controllers: create, respond, track and
// celebrate.
type Service struct {
	cfg       config.Config
	proposals proposalStore
	guard     session.Guard
	keepsakes keepsakeService
	links     proposal.Links
	logger    *zap.Logger
	newID     func() string
	now       func() time.Time
}

// New wires the controllers. keepsakes may be nil when capture is disabled.
func New(cfg config.Config, proposals proposalStore, guard session.Guard, keepsakes keepsakeService, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:       cfg,
		proposals: proposals,
		guard:     guard,
		keepsakes: keepsakes,
		links:     proposal.NewLinks(cfg.PublicBaseURL),
		logger:    logger,
		newID:     sanitize.GenerateID,
		now:       time.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.proposals.Ping(ctx)
}

// GetProposal returns the sanitized record, or proposal.ErrNotFound.
func (s *Service) GetProposal(ctx context.Context, id string) (proposal.Proposal, error) {
	current, ok := s.proposals.Get(ctx, id)
	if !ok {
		return proposal.Proposal{}, proposal.ErrNotFound
	}
	return current, nil
}

func (s *Service) Links() proposal.Links {
	return s.links
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
