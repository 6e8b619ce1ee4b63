package opportunity

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"gasopper/access"
	"gasopper/station"
)

// Station operations live on the opportunity service because every mutation
// must lock the owning opportunity and recompute its status in the same
// transaction.

// CreateStation adds a station under an opportunity the actor may see and
// recomputes the opportunity status.
func (s *Service) CreateStation(ctx context.Context, actor access.Actor, opportunityID int, params station.CreateParams) (*station.Detail, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("opportunity: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	o, err := s.repo.GetForUpdate(ctx, tx, opportunityID)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanAccess(ctx, actor, o.AssignedTo) {
		return nil, ErrNotFound
	}

	created, err := s.stations.Create(ctx, tx, o.ID, actor.ID, params)
	if err != nil {
		return nil, err
	}
	if _, err := s.recomputeTx(ctx, tx, &o); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("opportunity: commit station create: %w", err)
	}

	detail := station.Describe(created)
	return &detail, nil
}

// UpdateStation patches a station and recomputes the owning opportunity's
// status. Nil fields are untouched; name and address also ignore empty
// strings.
func (s *Service) UpdateStation(ctx context.Context, actor access.Actor, stationID int, params station.UpdateParams) (*station.Detail, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("opportunity: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	st, o, err := s.lockStation(ctx, tx, actor, stationID)
	if err != nil {
		return nil, err
	}

	applyStationPatch(&st, params)
	saved, err := s.stations.Save(ctx, tx, st)
	if err != nil {
		return nil, err
	}
	if _, err := s.recomputeTx(ctx, tx, &o); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("opportunity: commit station update: %w", err)
	}

	detail := station.Describe(saved)
	return &detail, nil
}

// DeleteStation soft-deletes a station; the opportunity status no longer
// counts it after the recomputation.
func (s *Service) DeleteStation(ctx context.Context, actor access.Actor, stationID int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("opportunity: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	st, o, err := s.lockStation(ctx, tx, actor, stationID)
	if err != nil {
		return err
	}

	st.Deleted = true
	if _, err := s.stations.Save(ctx, tx, st); err != nil {
		return err
	}
	if _, err := s.recomputeTx(ctx, tx, &o); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("opportunity: commit station delete: %w", err)
	}
	return nil
}

// StationTypes lists the station type reference rows.
func (s *Service) StationTypes(ctx context.Context) ([]station.TypeInfo, error) {
	return s.stations.ListTypes(ctx)
}

// lockStation locks a station and its owning opportunity and enforces
// visibility through the opportunity's assignee.
func (s *Service) lockStation(ctx context.Context, tx pgx.Tx, actor access.Actor, stationID int) (station.Station, Opportunity, error) {
	st, err := s.stations.GetForUpdate(ctx, tx, stationID)
	if err != nil {
		return station.Station{}, Opportunity{}, err
	}
	if st.Deleted {
		return station.Station{}, Opportunity{}, station.ErrNotFound
	}

	o, err := s.repo.GetForUpdate(ctx, tx, st.OpportunityID)
	if err != nil {
		return station.Station{}, Opportunity{}, err
	}
	if !s.policy.CanAccess(ctx, actor, o.AssignedTo) {
		return station.Station{}, Opportunity{}, station.ErrNotFound
	}
	return st, o, nil
}

func applyStationPatch(st *station.Station, params station.UpdateParams) {
	if params.Name != nil && *params.Name != "" {
		st.Name = *params.Name
	}
	if params.Address != nil && *params.Address != "" {
		st.Address = *params.Address
	}
	if params.POCName != nil {
		st.POCName = params.POCName
	}
	if params.POCPhone != nil {
		st.POCPhone = params.POCPhone
	}
	if params.POCEmail != nil {
		st.POCEmail = params.POCEmail
	}
	if params.Pumps != nil {
		st.Pumps = params.Pumps
	}
	if params.Employees != nil {
		st.Employees = params.Employees
	}
	if params.TypeID != nil {
		st.TypeID = params.TypeID
	}
	if params.Notes != nil {
		st.Notes = params.Notes
	}
}
