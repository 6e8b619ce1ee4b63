package station

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the station is absent (or soft-deleted).
var ErrNotFound = errors.New("station: not found")

// Repository handles data access for gas stations. Mutations run inside the
// caller's transaction so the owning opportunity can recompute its status in
// the same atomic unit.
type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, opportunityID, createdBy int, params CreateParams) (Station, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int) (Station, error)
	Save(ctx context.Context, tx pgx.Tx, s Station) (Station, error)
	ListByOpportunityTx(ctx context.Context, tx pgx.Tx, opportunityID int) ([]Station, error)
	ListByOpportunities(ctx context.Context, opportunityIDs []int) (map[int][]Station, error)
	ListTypes(ctx context.Context) ([]TypeInfo, error)
}

const stationColumns = `station_id, opportunity_id, station_name, address, poc_name, poc_phone, poc_email,
		number_of_pumps, number_of_employees, station_type_id, notes, created_by, is_deleted, created_at, last_updated`

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Create(ctx context.Context, tx pgx.Tx, opportunityID, createdBy int, params CreateParams) (Station, error) {
	const query = `
		INSERT INTO gas_stations (opportunity_id, station_name, address, poc_name, poc_phone, poc_email,
			number_of_pumps, number_of_employees, station_type_id, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + stationColumns

	s, err := scanStation(tx.QueryRow(ctx, query,
		opportunityID,
		params.Name,
		params.Address,
		params.POCName,
		params.POCPhone,
		params.POCEmail,
		params.Pumps,
		params.Employees,
		params.TypeID,
		params.Notes,
		createdBy,
	))
	if err != nil {
		return Station{}, fmt.Errorf("station: create: %w", err)
	}
	return s, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int) (Station, error) {
	const query = `SELECT ` + stationColumns + ` FROM gas_stations WHERE station_id = $1 FOR UPDATE`

	s, err := scanStation(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Station{}, ErrNotFound
		}
		return Station{}, fmt.Errorf("station: get for update: %w", err)
	}
	return s, nil
}

func (r *PGRepository) Save(ctx context.Context, tx pgx.Tx, s Station) (Station, error) {
	const query = `
		UPDATE gas_stations
		SET station_name = $2, address = $3, poc_name = $4, poc_phone = $5, poc_email = $6,
		    number_of_pumps = $7, number_of_employees = $8, station_type_id = $9, notes = $10,
		    is_deleted = $11, last_updated = NOW()
		WHERE station_id = $1
		RETURNING ` + stationColumns

	saved, err := scanStation(tx.QueryRow(ctx, query,
		s.ID,
		s.Name,
		s.Address,
		s.POCName,
		s.POCPhone,
		s.POCEmail,
		s.Pumps,
		s.Employees,
		s.TypeID,
		s.Notes,
		s.Deleted,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Station{}, ErrNotFound
		}
		return Station{}, fmt.Errorf("station: save: %w", err)
	}
	return saved, nil
}

// ListByOpportunityTx returns the non-deleted stations of an opportunity
// inside the caller's transaction, for status recomputation.
func (r *PGRepository) ListByOpportunityTx(ctx context.Context, tx pgx.Tx, opportunityID int) ([]Station, error) {
	const query = `SELECT ` + stationColumns + `
		FROM gas_stations
		WHERE opportunity_id = $1 AND NOT is_deleted
		ORDER BY station_id`

	rows, err := tx.Query(ctx, query, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("station: list by opportunity: %w", err)
	}
	defer rows.Close()

	return collectStations(rows)
}

// ListByOpportunities returns the non-deleted stations for a batch of
// opportunities keyed by opportunity id. A nil id slice loads all.
func (r *PGRepository) ListByOpportunities(ctx context.Context, opportunityIDs []int) (map[int][]Station, error) {
	query := `SELECT ` + stationColumns + ` FROM gas_stations WHERE NOT is_deleted`
	args := []any{}
	if opportunityIDs != nil {
		query += ` AND opportunity_id = ANY($1)`
		args = append(args, opportunityIDs)
	}
	query += ` ORDER BY station_id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("station: list batch: %w", err)
	}
	defer rows.Close()

	stations, err := collectStations(rows)
	if err != nil {
		return nil, err
	}

	byOpp := make(map[int][]Station, len(opportunityIDs))
	for _, s := range stations {
		byOpp[s.OpportunityID] = append(byOpp[s.OpportunityID], s)
	}
	return byOpp, nil
}

func (r *PGRepository) ListTypes(ctx context.Context) ([]TypeInfo, error) {
	rows, err := r.pool.Query(ctx, `SELECT station_type_id, type_name FROM station_types ORDER BY station_type_id`)
	if err != nil {
		return nil, fmt.Errorf("station: list types: %w", err)
	}
	defer rows.Close()

	types := []TypeInfo{}
	for rows.Next() {
		var info TypeInfo
		if err := rows.Scan(&info.ID, &info.Name); err != nil {
			return nil, fmt.Errorf("station: scan type: %w", err)
		}
		types = append(types, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("station: iterate types: %w", err)
	}
	return types, nil
}

func collectStations(rows pgx.Rows) ([]Station, error) {
	stations := []Station{}
	for rows.Next() {
		s, err := scanStation(rows)
		if err != nil {
			return nil, fmt.Errorf("station: scan: %w", err)
		}
		stations = append(stations, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("station: iterate: %w", err)
	}
	return stations, nil
}

func scanStation(row pgx.Row) (Station, error) {
	var s Station
	err := row.Scan(
		&s.ID,
		&s.OpportunityID,
		&s.Name,
		&s.Address,
		&s.POCName,
		&s.POCPhone,
		&s.POCEmail,
		&s.Pumps,
		&s.Employees,
		&s.TypeID,
		&s.Notes,
		&s.CreatedBy,
		&s.Deleted,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return Station{}, err
	}
	return s, nil
}
