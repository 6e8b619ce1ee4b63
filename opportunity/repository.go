package opportunity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the opportunity is absent, soft-deleted, or outside
// the actor's visibility; the cases are deliberately indistinguishable.
var ErrNotFound = errors.New("opportunity: not found")

// LeadContact is the slice of lead data surfaced on an opportunity detail.
type LeadContact struct {
	Name  string
	Email string
	Phone string
}

// Repository handles data access for opportunities.
type Repository interface {
	CreateForLead(ctx context.Context, tx pgx.Tx, leadID int, ownerName, ownerAddress string, assignedTo, createdBy int) (int, error)
	Get(ctx context.Context, id int) (Opportunity, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int) (Opportunity, error)
	Save(ctx context.Context, tx pgx.Tx, o Opportunity) (Opportunity, error)
	List(ctx context.Context, filters ListFilters) ([]Opportunity, error)
	LeadContact(ctx context.Context, leadID int) (LeadContact, error)
	LeadNames(ctx context.Context, leadIDs []int) (map[int]string, error)
	StatusCounts(ctx context.Context, ownerIDs []int) (total, active, complete int, err error)
	CompletionIntervals(ctx context.Context, ownerIDs []int) ([]CompletionInterval, error)
	ListStatuses(ctx context.Context) ([]StatusInfo, error)
}

const oppColumns = `opportunity_id, lead_id, owner_name, owner_address, status_id,
		assigned_to, created_by, is_deleted, created_at, last_updated`

// PGRepository implements Repository backed by PostgreSQL. It also satisfies
// the lead package's OpportunityCreator for the conversion transaction.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CreateForLead inserts the opportunity half of a lead conversion inside the
// caller's transaction. New opportunities always start Active. The unique
// constraint on lead_id backstops the 1:1 rule.
func (r *PGRepository) CreateForLead(ctx context.Context, tx pgx.Tx, leadID int, ownerName, ownerAddress string, assignedTo, createdBy int) (int, error) {
	const query = `
		INSERT INTO opportunities (lead_id, owner_name, owner_address, status_id, assigned_to, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING opportunity_id`

	var id int
	err := tx.QueryRow(ctx, query, leadID, ownerName, ownerAddress, StatusActive, assignedTo, createdBy).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("opportunity: create for lead: %w", err)
	}
	return id, nil
}

// Get returns a non-deleted opportunity.
func (r *PGRepository) Get(ctx context.Context, id int) (Opportunity, error) {
	const query = `SELECT ` + oppColumns + ` FROM opportunities WHERE opportunity_id = $1 AND NOT is_deleted`

	o, err := scanOpportunity(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Opportunity{}, ErrNotFound
		}
		return Opportunity{}, fmt.Errorf("opportunity: get: %w", err)
	}
	return o, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int) (Opportunity, error) {
	const query = `SELECT ` + oppColumns + ` FROM opportunities WHERE opportunity_id = $1 AND NOT is_deleted FOR UPDATE`

	o, err := scanOpportunity(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Opportunity{}, ErrNotFound
		}
		return Opportunity{}, fmt.Errorf("opportunity: get for update: %w", err)
	}
	return o, nil
}

func (r *PGRepository) Save(ctx context.Context, tx pgx.Tx, o Opportunity) (Opportunity, error) {
	const query = `
		UPDATE opportunities
		SET owner_name = $2, owner_address = $3, status_id = $4, assigned_to = $5,
		    is_deleted = $6, last_updated = NOW()
		WHERE opportunity_id = $1
		RETURNING last_updated`

	err := tx.QueryRow(ctx, query,
		o.ID, o.OwnerName, o.OwnerAddress, o.StatusID, o.AssignedTo, o.Deleted,
	).Scan(&o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Opportunity{}, ErrNotFound
		}
		return Opportunity{}, fmt.Errorf("opportunity: save: %w", err)
	}
	return o, nil
}

func (r *PGRepository) List(ctx context.Context, filters ListFilters) ([]Opportunity, error) {
	query := `SELECT ` + oppColumns + ` FROM opportunities`
	where := []string{}
	args := []any{}

	if filters.OwnerIDs != nil {
		args = append(args, filters.OwnerIDs)
		where = append(where, fmt.Sprintf("assigned_to = ANY($%d)", len(args)))
	}
	if !filters.IncludeDeleted {
		where = append(where, "NOT is_deleted")
	}
	for i, cond := range where {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += ` ORDER BY last_updated DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("opportunity: list: %w", err)
	}
	defer rows.Close()

	opps := []Opportunity{}
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("opportunity: scan: %w", err)
		}
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("opportunity: iterate: %w", err)
	}
	return opps, nil
}

func (r *PGRepository) LeadContact(ctx context.Context, leadID int) (LeadContact, error) {
	var c LeadContact
	err := r.pool.QueryRow(ctx,
		`SELECT name, email, phone_number FROM leads WHERE lead_id = $1`, leadID).
		Scan(&c.Name, &c.Email, &c.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LeadContact{}, nil
		}
		return LeadContact{}, fmt.Errorf("opportunity: lead contact: %w", err)
	}
	return c, nil
}

func (r *PGRepository) LeadNames(ctx context.Context, leadIDs []int) (map[int]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT lead_id, name FROM leads WHERE lead_id = ANY($1)`, leadIDs)
	if err != nil {
		return nil, fmt.Errorf("opportunity: lead names: %w", err)
	}
	defer rows.Close()

	names := make(map[int]string, len(leadIDs))
	for rows.Next() {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("opportunity: scan lead name: %w", err)
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("opportunity: iterate lead names: %w", err)
	}
	return names, nil
}

func (r *PGRepository) StatusCounts(ctx context.Context, ownerIDs []int) (total, active, complete int, err error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status_id = $1),
		       COUNT(*) FILTER (WHERE status_id = $2)
		FROM opportunities
		WHERE NOT is_deleted`
	args := []any{StatusActive, StatusComplete}
	if ownerIDs != nil {
		query += ` AND assigned_to = ANY($3)`
		args = append(args, ownerIDs)
	}

	if err = r.pool.QueryRow(ctx, query, args...).Scan(&total, &active, &complete); err != nil {
		return 0, 0, 0, fmt.Errorf("opportunity: status counts: %w", err)
	}
	return total, active, complete, nil
}

func (r *PGRepository) CompletionIntervals(ctx context.Context, ownerIDs []int) ([]CompletionInterval, error) {
	query := `
		SELECT created_at, last_updated
		FROM opportunities
		WHERE NOT is_deleted AND status_id = $1`
	args := []any{StatusComplete}
	if ownerIDs != nil {
		query += ` AND assigned_to = ANY($2)`
		args = append(args, ownerIDs)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("opportunity: completion intervals: %w", err)
	}
	defer rows.Close()

	intervals := []CompletionInterval{}
	for rows.Next() {
		var iv CompletionInterval
		if err := rows.Scan(&iv.CreatedAt, &iv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("opportunity: scan interval: %w", err)
		}
		intervals = append(intervals, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("opportunity: iterate intervals: %w", err)
	}
	return intervals, nil
}

func (r *PGRepository) ListStatuses(ctx context.Context) ([]StatusInfo, error) {
	rows, err := r.pool.Query(ctx, `SELECT status_id, status_name, description FROM opportunity_statuses ORDER BY status_id`)
	if err != nil {
		return nil, fmt.Errorf("opportunity: list statuses: %w", err)
	}
	defer rows.Close()

	statuses := []StatusInfo{}
	for rows.Next() {
		var info StatusInfo
		if err := rows.Scan(&info.ID, &info.Name, &info.Description); err != nil {
			return nil, fmt.Errorf("opportunity: scan status: %w", err)
		}
		statuses = append(statuses, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("opportunity: iterate statuses: %w", err)
	}
	return statuses, nil
}

func scanOpportunity(row pgx.Row) (Opportunity, error) {
	var o Opportunity
	err := row.Scan(
		&o.ID,
		&o.LeadID,
		&o.OwnerName,
		&o.OwnerAddress,
		&o.StatusID,
		&o.AssignedTo,
		&o.CreatedBy,
		&o.Deleted,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return Opportunity{}, err
	}
	return o, nil
}
