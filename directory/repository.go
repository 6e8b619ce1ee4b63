package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the user is absent or outside the caller's
	// visibility. The two cases are deliberately indistinguishable.
	ErrNotFound = errors.New("directory: user not found")
	// ErrDuplicateUser signals the email or employee id is already taken.
	ErrDuplicateUser = errors.New("directory: email or employee id already exists")
)

// Repository handles data access for the identity directory.
type Repository interface {
	Create(ctx context.Context, params CreateUserParams, passwordHash string) (User, error)
	Get(ctx context.Context, id int) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	List(ctx context.Context, ownerIDs []int) ([]User, error)
	Save(ctx context.Context, user User) (User, error)
	SetActive(ctx context.Context, id int, active bool) error
	SetPasswordHash(ctx context.Context, id int, hash string) error
	TouchLogin(ctx context.Context, id int) error
	ListTeam(ctx context.Context, managerID int) ([]User, error)
	ListRoles(ctx context.Context) ([]RoleInfo, error)
	ManagerID(ctx context.Context, userID int) (*int, error)
	ActiveTeamIDs(ctx context.Context, managerID int) ([]int, error)
}

const userColumns = `user_id, employee_id, email, phone_number, address, first_name, last_name,
		role_id, manager_id, password_hash, is_active, last_login, created_at, last_updated`

// PGRepository implements Repository backed by PostgreSQL. It also satisfies
// the access policy's Directory interface.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Create(ctx context.Context, params CreateUserParams, passwordHash string) (User, error) {
	const insertSQL = `
		INSERT INTO users (employee_id, email, phone_number, address, first_name, last_name,
			role_id, manager_id, password_hash, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE)
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, insertSQL,
		params.EmployeeID,
		params.Email,
		params.PhoneNumber,
		params.Address,
		params.FirstName,
		params.LastName,
		params.RoleID,
		params.ManagerID,
		passwordHash,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrDuplicateUser
		}
		return User{}, fmt.Errorf("directory: create user: %w", err)
	}
	return user, nil
}

func (r *PGRepository) Get(ctx context.Context, id int) (User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("directory: get user: %w", err)
	}
	return user, nil
}

func (r *PGRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("directory: get user by email: %w", err)
	}
	return user, nil
}

// List returns users ordered by creation time. A nil ownerIDs slice means no
// visibility filter (Admin callers).
func (r *PGRepository) List(ctx context.Context, ownerIDs []int) ([]User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	args := []any{}
	if ownerIDs != nil {
		query += ` WHERE user_id = ANY($1)`
		args = append(args, ownerIDs)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("directory: list users: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

func (r *PGRepository) Save(ctx context.Context, user User) (User, error) {
	const query = `
		UPDATE users
		SET employee_id = $2, email = $3, phone_number = $4, address = $5,
		    first_name = $6, last_name = $7, role_id = $8, manager_id = $9,
		    is_active = $10, last_updated = NOW()
		WHERE user_id = $1
		RETURNING ` + userColumns

	saved, err := scanUser(r.pool.QueryRow(ctx, query,
		user.ID,
		user.EmployeeID,
		user.Email,
		user.PhoneNumber,
		user.Address,
		user.FirstName,
		user.LastName,
		user.RoleID,
		user.ManagerID,
		user.Active,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrDuplicateUser
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("directory: save user: %w", err)
	}
	return saved, nil
}

func (r *PGRepository) SetActive(ctx context.Context, id int, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET is_active = $2, last_updated = NOW() WHERE user_id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("directory: set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) SetPasswordHash(ctx context.Context, id int, hash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, last_updated = NOW() WHERE user_id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("directory: set password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLogin stamps the user's last login time.
func (r *PGRepository) TouchLogin(ctx context.Context, id int) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET last_login = NOW() WHERE user_id = $1`, id)
	if err != nil {
		return fmt.Errorf("directory: touch login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) ListTeam(ctx context.Context, managerID int) ([]User, error) {
	const query = `SELECT ` + userColumns + `
		FROM users
		WHERE manager_id = $1 AND is_active
		ORDER BY first_name ASC`

	rows, err := r.pool.Query(ctx, query, managerID)
	if err != nil {
		return nil, fmt.Errorf("directory: list team: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

func (r *PGRepository) ListRoles(ctx context.Context) ([]RoleInfo, error) {
	rows, err := r.pool.Query(ctx, `SELECT role_id, role_name FROM roles ORDER BY role_id`)
	if err != nil {
		return nil, fmt.Errorf("directory: list roles: %w", err)
	}
	defer rows.Close()

	roles := []RoleInfo{}
	for rows.Next() {
		var info RoleInfo
		if err := rows.Scan(&info.ID, &info.Name); err != nil {
			return nil, fmt.Errorf("directory: scan role: %w", err)
		}
		roles = append(roles, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: iterate roles: %w", err)
	}
	return roles, nil
}

// ManagerID resolves a user's manager for the access policy. A missing user
// resolves to nil rather than an error so policy checks degrade to denial.
func (r *PGRepository) ManagerID(ctx context.Context, userID int) (*int, error) {
	var managerID *int
	err := r.pool.QueryRow(ctx, `SELECT manager_id FROM users WHERE user_id = $1`, userID).Scan(&managerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("directory: manager lookup: %w", err)
	}
	return managerID, nil
}

func (r *PGRepository) ActiveTeamIDs(ctx context.Context, managerID int) ([]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM users WHERE manager_id = $1 AND is_active`, managerID)
	if err != nil {
		return nil, fmt.Errorf("directory: team ids: %w", err)
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("directory: scan team id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: iterate team ids: %w", err)
	}
	return ids, nil
}

func collectUsers(rows pgx.Rows) ([]User, error) {
	users := []User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("directory: scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: iterate users: %w", err)
	}
	return users, nil
}

func scanUser(row pgx.Row) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.EmployeeID,
		&user.Email,
		&user.PhoneNumber,
		&user.Address,
		&user.FirstName,
		&user.LastName,
		&user.RoleID,
		&user.ManagerID,
		&user.PasswordHash,
		&user.Active,
		&user.LastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	return user, nil
}
