package opportunity

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"

	"gasopper/access"
	"gasopper/station"
)

// ErrInvalidStatus signals a status value outside the two-state machine.
var ErrInvalidStatus = errors.New("opportunity: invalid status value")

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service owns the opportunity lifecycle, including the stations beneath it.
// Station mutations and the derived status recomputation they trigger share
// one transaction.
type Service struct {
	pool     TxBeginner
	repo     Repository
	stations station.Repository
	policy   access.Policy
}

func NewService(pool TxBeginner, repo Repository, stations station.Repository, policy access.Policy) *Service {
	return &Service{pool: pool, repo: repo, stations: stations, policy: policy}
}

// Get returns an opportunity the actor may see, hydrated with its lead
// contact, non-deleted stations, and completion figures.
func (s *Service) Get(ctx context.Context, actor access.Actor, id int) (*Detail, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanAccess(ctx, actor, o.AssignedTo) {
		return nil, ErrNotFound
	}
	return s.detail(ctx, o)
}

// List returns the opportunities within the actor's visibility, newest change
// first, each with station counts and completion percentage.
func (s *Service) List(ctx context.Context, actor access.Actor, includeDeleted bool) ([]Summary, error) {
	ownerIDs, unrestricted := s.policy.VisibleOwnerSet(ctx, actor)
	if unrestricted {
		ownerIDs = nil
	}
	opps, err := s.repo.List(ctx, ListFilters{OwnerIDs: ownerIDs, IncludeDeleted: includeDeleted})
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, opps)
}

// Update replaces the owner fields wholesale. An assignment change is honored
// for Admin unconditionally and for Manager when the assignee is on their
// team; otherwise the assignment part of the request is silently dropped.
func (s *Service) Update(ctx context.Context, actor access.Actor, id int, params UpdateParams) (*Detail, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("opportunity: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	o, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanAccess(ctx, actor, o.AssignedTo) {
		return nil, ErrNotFound
	}

	o.OwnerName = params.OwnerName
	o.OwnerAddress = params.OwnerAddress

	if params.AssignedTo != nil && (actor.Role == access.RoleAdmin || actor.Role == access.RoleManager) {
		if s.policy.CanAssign(ctx, actor, *params.AssignedTo) {
			o.AssignedTo = *params.AssignedTo
		}
	}

	saved, err := s.repo.Save(ctx, tx, o)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("opportunity: commit update: %w", err)
	}
	return s.detail(ctx, saved)
}

// UpdateStatus sets the status manually. Only the two machine values are
// accepted; anything else is rejected without mutation. A later station
// recomputation may overwrite a manual value: last write wins.
func (s *Service) UpdateStatus(ctx context.Context, actor access.Actor, id int, status Status) (*Detail, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("opportunity: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	o, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanAccess(ctx, actor, o.AssignedTo) {
		return nil, ErrNotFound
	}

	o.StatusID = status
	saved, err := s.repo.Save(ctx, tx, o)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("opportunity: commit status: %w", err)
	}
	return s.detail(ctx, saved)
}

// Assign reassigns the opportunity while preserving its current owner
// fields. It re-reads the row and reissues the full update with the existing
// owner name and address.
func (s *Service) Assign(ctx context.Context, actor access.Actor, id int, assignee int) (*Detail, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Update(ctx, actor, id, UpdateParams{
		OwnerName:    o.OwnerName,
		OwnerAddress: o.OwnerAddress,
		AssignedTo:   &assignee,
	})
}

// Recompute derives the status from the current non-deleted stations: no
// stations or any incomplete station means Active, all complete means
// Complete. The read and the write share one transaction, so each call
// reflects station state at call time; the operation is idempotent.
func (s *Service) Recompute(ctx context.Context, id int) (Status, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("opportunity: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	o, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return 0, err
	}

	status, err := s.recomputeTx(ctx, tx, &o)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("opportunity: commit recompute: %w", err)
	}
	return status, nil
}

func (s *Service) recomputeTx(ctx context.Context, tx pgx.Tx, o *Opportunity) (Status, error) {
	stations, err := s.stations.ListByOpportunityTx(ctx, tx, o.ID)
	if err != nil {
		return 0, err
	}

	status := deriveStatus(stations)
	if status == o.StatusID {
		return status, nil
	}

	o.StatusID = status
	saved, err := s.repo.Save(ctx, tx, *o)
	if err != nil {
		return 0, err
	}
	*o = saved
	return status, nil
}

func deriveStatus(stations []station.Station) Status {
	if len(stations) == 0 {
		return StatusActive
	}
	for _, st := range stations {
		if !station.IsComplete(st) {
			return StatusActive
		}
	}
	return StatusComplete
}

// My lists the opportunities assigned to one user.
func (s *Service) My(ctx context.Context, userID int) ([]Summary, error) {
	opps, err := s.repo.List(ctx, ListFilters{OwnerIDs: []int{userID}})
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, opps)
}

// Team lists the opportunities of a manager and their active team.
func (s *Service) Team(ctx context.Context, managerID int) ([]Summary, error) {
	ownerIDs, _ := s.policy.VisibleOwnerSet(ctx, access.Actor{ID: managerID, Role: access.RoleManager})
	opps, err := s.repo.List(ctx, ListFilters{OwnerIDs: ownerIDs})
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, opps)
}

// Stats summarizes the actor's visible, non-deleted opportunities and their
// stations. Rates are percentages rounded to one decimal; days-to-complete
// averages whole days with integer truncation over Complete opportunities.
func (s *Service) Stats(ctx context.Context, actor access.Actor) (Stats, error) {
	ownerIDs, unrestricted := s.policy.VisibleOwnerSet(ctx, actor)
	if unrestricted {
		ownerIDs = nil
	}

	total, active, complete, err := s.repo.StatusCounts(ctx, ownerIDs)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		TotalOpportunities:    total,
		ActiveOpportunities:   active,
		CompleteOpportunities: complete,
		StatusBreakdown: map[string]int{
			StatusActive.String():   active,
			StatusComplete.String(): complete,
		},
	}
	if total > 0 {
		stats.CompletionRate = round1(float64(complete) / float64(total) * 100)
	}

	opps, err := s.repo.List(ctx, ListFilters{OwnerIDs: ownerIDs})
	if err != nil {
		return Stats{}, err
	}
	if len(opps) > 0 {
		ids := make([]int, len(opps))
		for i, o := range opps {
			ids[i] = o.ID
		}
		byOpp, err := s.stations.ListByOpportunities(ctx, ids)
		if err != nil {
			return Stats{}, err
		}
		for _, group := range byOpp {
			for _, st := range group {
				stats.TotalStations++
				if station.IsComplete(st) {
					stats.CompleteStations++
				}
			}
		}
	}
	if stats.TotalStations > 0 {
		stats.StationCompletionRate = round1(float64(stats.CompleteStations) / float64(stats.TotalStations) * 100)
	}
	if total > 0 {
		stats.AverageStationsPerOpportunity = round1(float64(stats.TotalStations) / float64(total))
	}

	intervals, err := s.repo.CompletionIntervals(ctx, ownerIDs)
	if err != nil {
		return Stats{}, err
	}
	if len(intervals) > 0 {
		totalDays := 0
		for _, iv := range intervals {
			totalDays += int(iv.UpdatedAt.Sub(iv.CreatedAt).Hours() / 24)
		}
		stats.AverageDaysToComplete = totalDays / len(intervals)
	}

	return stats, nil
}

// Statuses lists the opportunity status reference rows.
func (s *Service) Statuses(ctx context.Context) ([]StatusInfo, error) {
	return s.repo.ListStatuses(ctx)
}

func (s *Service) detail(ctx context.Context, o Opportunity) (*Detail, error) {
	contact, err := s.repo.LeadContact(ctx, o.LeadID)
	if err != nil {
		return nil, err
	}

	byOpp, err := s.stations.ListByOpportunities(ctx, []int{o.ID})
	if err != nil {
		return nil, err
	}
	group := byOpp[o.ID]

	d := &Detail{
		Opportunity: o,
		LeadName:    contact.Name,
		LeadEmail:   contact.Email,
		LeadPhone:   contact.Phone,
		Stations:    make([]station.Detail, 0, len(group)),
	}
	for _, st := range group {
		sd := station.Describe(st)
		d.Stations = append(d.Stations, sd)
		d.TotalStations++
		if sd.Complete {
			d.CompleteStations++
		}
	}
	d.IncompleteStations = d.TotalStations - d.CompleteStations
	if d.TotalStations > 0 {
		d.CompletionPercentage = round1(float64(d.CompleteStations) / float64(d.TotalStations) * 100)
	}
	return d, nil
}

func (s *Service) summarize(ctx context.Context, opps []Opportunity) ([]Summary, error) {
	summaries := make([]Summary, 0, len(opps))
	if len(opps) == 0 {
		return summaries, nil
	}

	oppIDs := make([]int, len(opps))
	leadIDs := make([]int, len(opps))
	for i, o := range opps {
		oppIDs[i] = o.ID
		leadIDs[i] = o.LeadID
	}

	byOpp, err := s.stations.ListByOpportunities(ctx, oppIDs)
	if err != nil {
		return nil, err
	}
	leadNames, err := s.repo.LeadNames(ctx, leadIDs)
	if err != nil {
		return nil, err
	}

	for _, o := range opps {
		sum := Summary{Opportunity: o, LeadName: leadNames[o.LeadID]}
		for _, st := range byOpp[o.ID] {
			sum.TotalStations++
			if station.IsComplete(st) {
				sum.CompleteStations++
			}
		}
		if sum.TotalStations > 0 {
			sum.CompletionPercentage = round1(float64(sum.CompleteStations) / float64(sum.TotalStations) * 100)
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
