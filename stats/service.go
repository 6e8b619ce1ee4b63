package stats

import (
	"context"

	"golang.org/x/sync/errgroup"

	"gasopper/access"
	"gasopper/lead"
	"gasopper/opportunity"
)

// Dashboard combines the lead funnel and the opportunity pipeline for one
// actor's visibility.
type Dashboard struct {
	Leads         lead.Stats
	Opportunities opportunity.Stats
}

// LeadStats and OpportunityStats are the two aggregation sources.
type LeadStats interface {
	Stats(ctx context.Context, actor access.Actor) (lead.Stats, error)
}

type OpportunityStats interface {
	Stats(ctx context.Context, actor access.Actor) (opportunity.Stats, error)
}

// Service fans the dashboard aggregation out to both pipelines.
type Service struct {
	leads LeadStats
	opps  OpportunityStats
}

func NewService(leads LeadStats, opps OpportunityStats) *Service {
	return &Service{leads: leads, opps: opps}
}

// Dashboard computes both stat blocks concurrently. Either failure fails the
// whole call.
func (s *Service) Dashboard(ctx context.Context, actor access.Actor) (Dashboard, error) {
	var d Dashboard

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stats, err := s.leads.Stats(ctx, actor)
		if err != nil {
			return err
		}
		d.Leads = stats
		return nil
	})
	g.Go(func() error {
		stats, err := s.opps.Stats(ctx, actor)
		if err != nil {
			return err
		}
		d.Opportunities = stats
		return nil
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}
