package lead

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the lead is absent or outside the actor's visibility;
// the two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("lead: not found")

// ConversionInterval pairs a lead's creation time with its opportunity's,
// for the days-to-convert statistic.
type ConversionInterval struct {
	LeadCreatedAt        time.Time
	OpportunityCreatedAt time.Time
}

// Repository handles data access for leads. Read-then-write operations go
// through GetForUpdate/Save inside a service-owned transaction.
type Repository interface {
	Create(ctx context.Context, createdBy int, assignedTo int, params CreateParams) (Lead, error)
	Get(ctx context.Context, id int) (Lead, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int) (Lead, error)
	Save(ctx context.Context, tx pgx.Tx, l Lead) (Lead, error)
	List(ctx context.Context, filters ListFilters) ([]Lead, error)
	StatusCounts(ctx context.Context, ownerIDs []int) (total, newCount, converted int, err error)
	ConversionIntervals(ctx context.Context, ownerIDs []int) ([]ConversionInterval, error)
	ListStatuses(ctx context.Context) ([]StatusInfo, error)
}

const leadColumns = `l.lead_id, l.name, l.phone_number, l.email, l.address, l.expected_stations,
		l.referral_name, l.referral_email, l.referral_phone, l.referral_address,
		l.status_id, l.assigned_to, l.created_by, o.opportunity_id, l.is_deleted, l.created_at, l.last_updated`

const leadFrom = ` FROM leads l LEFT JOIN opportunities o ON o.lead_id = l.lead_id`

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Create(ctx context.Context, createdBy int, assignedTo int, params CreateParams) (Lead, error) {
	const query = `
		INSERT INTO leads (name, phone_number, email, address, expected_stations,
			referral_name, referral_email, referral_phone, referral_address,
			status_id, assigned_to, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING lead_id`

	var id int
	err := r.pool.QueryRow(ctx, query,
		params.Name,
		params.PhoneNumber,
		params.Email,
		params.Address,
		params.ExpectedStations,
		params.ReferralName,
		params.ReferralEmail,
		params.ReferralPhone,
		params.ReferralAddress,
		StatusNew,
		assignedTo,
		createdBy,
	).Scan(&id)
	if err != nil {
		return Lead{}, fmt.Errorf("lead: insert: %w", err)
	}

	return r.Get(ctx, id)
}

func (r *PGRepository) Get(ctx context.Context, id int) (Lead, error) {
	query := `SELECT ` + leadColumns + leadFrom + ` WHERE l.lead_id = $1`

	l, err := scanLead(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, fmt.Errorf("lead: get: %w", err)
	}
	return l, nil
}

// GetForUpdate locks the lead row for the duration of the transaction. The
// opportunity link is resolved with a separate read after the lock so the
// join does not widen the lock footprint.
func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int) (Lead, error) {
	const query = `
		SELECT lead_id, name, phone_number, email, address, expected_stations,
			referral_name, referral_email, referral_phone, referral_address,
			status_id, assigned_to, created_by, is_deleted, created_at, last_updated
		FROM leads WHERE lead_id = $1 FOR UPDATE`

	var l Lead
	err := tx.QueryRow(ctx, query, id).Scan(
		&l.ID, &l.Name, &l.PhoneNumber, &l.Email, &l.Address, &l.ExpectedStations,
		&l.ReferralName, &l.ReferralEmail, &l.ReferralPhone, &l.ReferralAddress,
		&l.StatusID, &l.AssignedTo, &l.CreatedBy, &l.Deleted, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, fmt.Errorf("lead: get for update: %w", err)
	}

	var oppID *int
	err = tx.QueryRow(ctx, `SELECT opportunity_id FROM opportunities WHERE lead_id = $1`, id).Scan(&oppID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, fmt.Errorf("lead: opportunity link: %w", err)
	}
	l.OpportunityID = oppID
	return l, nil
}

func (r *PGRepository) Save(ctx context.Context, tx pgx.Tx, l Lead) (Lead, error) {
	const query = `
		UPDATE leads
		SET name = $2, phone_number = $3, email = $4, address = $5, expected_stations = $6,
		    referral_name = $7, referral_email = $8, referral_phone = $9, referral_address = $10,
		    status_id = $11, assigned_to = $12, is_deleted = $13, last_updated = NOW()
		WHERE lead_id = $1
		RETURNING last_updated`

	err := tx.QueryRow(ctx, query,
		l.ID, l.Name, l.PhoneNumber, l.Email, l.Address, l.ExpectedStations,
		l.ReferralName, l.ReferralEmail, l.ReferralPhone, l.ReferralAddress,
		l.StatusID, l.AssignedTo, l.Deleted,
	).Scan(&l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, fmt.Errorf("lead: save: %w", err)
	}
	return l, nil
}

func (r *PGRepository) List(ctx context.Context, filters ListFilters) ([]Lead, error) {
	query := `SELECT ` + leadColumns + leadFrom
	where := []string{}
	args := []any{}

	if filters.OwnerIDs != nil {
		args = append(args, filters.OwnerIDs)
		where = append(where, fmt.Sprintf("l.assigned_to = ANY($%d)", len(args)))
	}
	if !filters.IncludeDeleted {
		where = append(where, "NOT l.is_deleted")
	}
	for i, cond := range where {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += ` ORDER BY l.last_updated DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lead: list: %w", err)
	}
	defer rows.Close()

	leads := []Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("lead: scan: %w", err)
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lead: iterate: %w", err)
	}
	return leads, nil
}

func (r *PGRepository) StatusCounts(ctx context.Context, ownerIDs []int) (total, newCount, converted int, err error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status_id = $1),
		       COUNT(*) FILTER (WHERE status_id = $2)
		FROM leads
		WHERE NOT is_deleted`
	args := []any{StatusNew, StatusConverted}
	if ownerIDs != nil {
		query += ` AND assigned_to = ANY($3)`
		args = append(args, ownerIDs)
	}

	if err = r.pool.QueryRow(ctx, query, args...).Scan(&total, &newCount, &converted); err != nil {
		return 0, 0, 0, fmt.Errorf("lead: status counts: %w", err)
	}
	return total, newCount, converted, nil
}

func (r *PGRepository) ConversionIntervals(ctx context.Context, ownerIDs []int) ([]ConversionInterval, error) {
	query := `
		SELECT l.created_at, o.created_at
		FROM leads l
		JOIN opportunities o ON o.lead_id = l.lead_id
		WHERE NOT l.is_deleted AND l.status_id = $1`
	args := []any{StatusConverted}
	if ownerIDs != nil {
		query += ` AND l.assigned_to = ANY($2)`
		args = append(args, ownerIDs)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lead: conversion intervals: %w", err)
	}
	defer rows.Close()

	intervals := []ConversionInterval{}
	for rows.Next() {
		var iv ConversionInterval
		if err := rows.Scan(&iv.LeadCreatedAt, &iv.OpportunityCreatedAt); err != nil {
			return nil, fmt.Errorf("lead: scan interval: %w", err)
		}
		intervals = append(intervals, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lead: iterate intervals: %w", err)
	}
	return intervals, nil
}

func (r *PGRepository) ListStatuses(ctx context.Context) ([]StatusInfo, error) {
	rows, err := r.pool.Query(ctx, `SELECT status_id, status_name, description FROM lead_statuses ORDER BY status_id`)
	if err != nil {
		return nil, fmt.Errorf("lead: list statuses: %w", err)
	}
	defer rows.Close()

	statuses := []StatusInfo{}
	for rows.Next() {
		var info StatusInfo
		if err := rows.Scan(&info.ID, &info.Name, &info.Description); err != nil {
			return nil, fmt.Errorf("lead: scan status: %w", err)
		}
		statuses = append(statuses, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lead: iterate statuses: %w", err)
	}
	return statuses, nil
}

func scanLead(row pgx.Row) (Lead, error) {
	var l Lead
	err := row.Scan(
		&l.ID,
		&l.Name,
		&l.PhoneNumber,
		&l.Email,
		&l.Address,
		&l.ExpectedStations,
		&l.ReferralName,
		&l.ReferralEmail,
		&l.ReferralPhone,
		&l.ReferralAddress,
		&l.StatusID,
		&l.AssignedTo,
		&l.CreatedBy,
		&l.OpportunityID,
		&l.Deleted,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return Lead{}, err
	}
	return l, nil
}
