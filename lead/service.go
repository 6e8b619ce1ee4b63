package lead

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"

	"gasopper/access"
)

var (
	// ErrInvalidStatus signals a status value outside the two-state machine.
	ErrInvalidStatus = errors.New("lead: invalid status value")
	// ErrAssignmentDenied signals the actor may not assign the lead to the
	// requested user. Creation and conversion fail whole on this.
	ErrAssignmentDenied = errors.New("lead: assignment not permitted")
	// ErrAlreadyConverted signals a conversion attempt on a lead that
	// already has an opportunity.
	ErrAlreadyConverted = errors.New("lead: already converted")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OpportunityCreator inserts the opportunity half of a lead conversion inside
// the conversion transaction. Implemented by the opportunity repository.
type OpportunityCreator interface {
	CreateForLead(ctx context.Context, tx pgx.Tx, leadID int, ownerName, ownerAddress string, assignedTo, createdBy int) (int, error)
}

// Service owns the lead lifecycle. Every operation consults the access
// policy before touching data; denial and absence are reported identically.
type Service struct {
	pool   TxBeginner
	repo   Repository
	opps   OpportunityCreator
	policy access.Policy
}

func NewService(pool TxBeginner, repo Repository, opps OpportunityCreator, policy access.Policy) *Service {
	return &Service{pool: pool, repo: repo, opps: opps, policy: policy}
}

// Create adds a lead assigned to the creator by default. An explicit
// assignment to someone else must pass the assignment rule; a violation fails
// the whole create and nothing is persisted.
func (s *Service) Create(ctx context.Context, actor access.Actor, params CreateParams) (*Lead, error) {
	if params.Name == "" || params.PhoneNumber == "" || params.Email == "" || params.Address == "" {
		return nil, fmt.Errorf("lead: name, phone, email, and address are required")
	}

	assignedTo := actor.ID
	if params.AssignedTo != nil {
		if !s.policy.CanAssign(ctx, actor, *params.AssignedTo) {
			return nil, ErrAssignmentDenied
		}
		assignedTo = *params.AssignedTo
	}

	l, err := s.repo.Create(ctx, actor.ID, assignedTo, params)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Get returns a lead the actor is allowed to see, soft-deleted or not.
func (s *Service) Get(ctx context.Context, actor access.Actor, id int) (*Lead, error) {
	l, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanAccess(ctx, actor, l.AssignedTo) {
		return nil, ErrNotFound
	}
	return &l, nil
}

// List returns the leads within the actor's visibility, newest change first.
// Soft-deleted rows are excluded unless includeDeleted is set.
func (s *Service) List(ctx context.Context, actor access.Actor, includeDeleted bool) ([]Lead, error) {
	ownerIDs, unrestricted := s.policy.VisibleOwnerSet(ctx, actor)
	if unrestricted {
		ownerIDs = nil
	}
	return s.repo.List(ctx, ListFilters{OwnerIDs: ownerIDs, IncludeDeleted: includeDeleted})
}

// Update applies a field-level patch inside one transaction. A reassignment
// request from a Salesperson is silently ignored while the rest of the patch
// still applies; Admin and Manager reassignments go through the assignment
// rule.
func (s *Service) Update(ctx context.Context, actor access.Actor, id int, params UpdateParams) (*Lead, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("lead: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	l, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanAccess(ctx, actor, l.AssignedTo) {
		return nil, ErrNotFound
	}

	applyPatch(&l, params)

	if params.AssignedTo != nil && (actor.Role == access.RoleAdmin || actor.Role == access.RoleManager) {
		if s.policy.CanAssign(ctx, actor, *params.AssignedTo) {
			l.AssignedTo = *params.AssignedTo
		}
	}

	saved, err := s.repo.Save(ctx, tx, l)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("lead: commit update: %w", err)
	}
	return &saved, nil
}

// Delete soft-deletes a lead. The row is never physically removed.
func (s *Service) Delete(ctx context.Context, actor access.Actor, id int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("lead: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	l, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if !s.policy.CanAccess(ctx, actor, l.AssignedTo) {
		return ErrNotFound
	}

	l.Deleted = true
	if _, err := s.repo.Save(ctx, tx, l); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("lead: commit delete: %w", err)
	}
	return nil
}

// UpdateStatus sets the lead status explicitly. Only the two machine values
// are accepted; anything else is rejected without mutation.
func (s *Service) UpdateStatus(ctx context.Context, actor access.Actor, id int, status Status) (*Lead, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("lead: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	l, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanAccess(ctx, actor, l.AssignedTo) {
		return nil, ErrNotFound
	}

	l.StatusID = status
	saved, err := s.repo.Save(ctx, tx, l)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("lead: commit status: %w", err)
	}
	return &saved, nil
}

// Convert turns a lead into an opportunity: the opportunity insert and the
// lead's move to Converted commit or fail together. A lead that already has
// an opportunity conflicts; the assignment rule is enforced the same way as
// creation (hard fail).
func (s *Service) Convert(ctx context.Context, actor access.Actor, id int, params ConvertParams) (*Lead, error) {
	if params.OwnerName == "" || params.OwnerAddress == "" {
		return nil, fmt.Errorf("lead: owner name and address are required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("lead: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	l, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanAccess(ctx, actor, l.AssignedTo) {
		return nil, ErrNotFound
	}
	if l.OpportunityID != nil {
		return nil, ErrAlreadyConverted
	}

	assignedTo := actor.ID
	if params.AssignedTo != nil {
		if !s.policy.CanAssign(ctx, actor, *params.AssignedTo) {
			return nil, ErrAssignmentDenied
		}
		assignedTo = *params.AssignedTo
	}

	oppID, err := s.opps.CreateForLead(ctx, tx, l.ID, params.OwnerName, params.OwnerAddress, assignedTo, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("lead: create opportunity: %w", err)
	}

	l.StatusID = StatusConverted
	saved, err := s.repo.Save(ctx, tx, l)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("lead: commit conversion: %w", err)
	}

	saved.OpportunityID = &oppID
	return &saved, nil
}

// My lists the leads assigned to one user.
func (s *Service) My(ctx context.Context, userID int) ([]Lead, error) {
	return s.repo.List(ctx, ListFilters{OwnerIDs: []int{userID}})
}

// Team lists the leads of a manager and their active team.
func (s *Service) Team(ctx context.Context, managerID int) ([]Lead, error) {
	ownerIDs, _ := s.policy.VisibleOwnerSet(ctx, access.Actor{ID: managerID, Role: access.RoleManager})
	return s.repo.List(ctx, ListFilters{OwnerIDs: ownerIDs})
}

// Stats summarizes the actor's visible, non-deleted leads. The conversion
// rate is a percentage rounded to one decimal; days-to-convert averages whole
// days with integer truncation, over converted leads only.
func (s *Service) Stats(ctx context.Context, actor access.Actor) (Stats, error) {
	ownerIDs, unrestricted := s.policy.VisibleOwnerSet(ctx, actor)
	if unrestricted {
		ownerIDs = nil
	}

	total, newCount, converted, err := s.repo.StatusCounts(ctx, ownerIDs)
	if err != nil {
		return Stats{}, err
	}

	rate := 0.0
	if total > 0 {
		rate = math.Round(float64(converted)/float64(total)*1000) / 10
	}

	avgDays := 0
	intervals, err := s.repo.ConversionIntervals(ctx, ownerIDs)
	if err != nil {
		return Stats{}, err
	}
	if len(intervals) > 0 {
		totalDays := 0
		for _, iv := range intervals {
			totalDays += int(iv.OpportunityCreatedAt.Sub(iv.LeadCreatedAt).Hours() / 24)
		}
		avgDays = totalDays / len(intervals)
	}

	return Stats{
		TotalLeads:           total,
		NewLeads:             newCount,
		ConvertedLeads:       converted,
		ConversionRate:       rate,
		AverageDaysToConvert: avgDays,
		StatusBreakdown: map[string]int{
			StatusNew.String():       newCount,
			StatusConverted.String(): converted,
		},
	}, nil
}

// Statuses lists the lead status reference rows.
func (s *Service) Statuses(ctx context.Context) ([]StatusInfo, error) {
	return s.repo.ListStatuses(ctx)
}

func applyPatch(l *Lead, params UpdateParams) {
	if params.Name != nil && *params.Name != "" {
		l.Name = *params.Name
	}
	if params.PhoneNumber != nil && *params.PhoneNumber != "" {
		l.PhoneNumber = *params.PhoneNumber
	}
	if params.Email != nil && *params.Email != "" {
		l.Email = *params.Email
	}
	if params.Address != nil && *params.Address != "" {
		l.Address = *params.Address
	}
	if params.ExpectedStations != nil {
		l.ExpectedStations = *params.ExpectedStations
	}
	if params.ReferralName != nil {
		l.ReferralName = params.ReferralName
	}
	if params.ReferralEmail != nil {
		l.ReferralEmail = params.ReferralEmail
	}
	if params.ReferralPhone != nil {
		l.ReferralPhone = params.ReferralPhone
	}
	if params.ReferralAddress != nil {
		l.ReferralAddress = params.ReferralAddress
	}
}
