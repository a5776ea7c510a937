package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned when the normalized email is already registered.
	ErrDuplicateEmail = errors.New("email already in use")
	// ErrVersionConflict is returned when the record changed since it was read.
	ErrVersionConflict = errors.New("user was modified concurrently")
)

// Repository persists users. Update is a compare-and-swap on Version: it only
// writes when the stored version equals user.Version and returns the record
// with the incremented version.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByID(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	List(ctx context.Context) ([]User, error)
	SearchByEmail(ctx context.Context, email string) ([]User, error)
	Update(ctx context.Context, user User) (User, error)
}

const uniqueViolation = "23505"

const userColumns = `id, name, email, phone, country, password, pin, status, plan, approved_steps, version, created_at, updated_at`

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the users table when it does not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS users (
        id UUID PRIMARY KEY,
        name TEXT NOT NULL,
        email TEXT NOT NULL UNIQUE,
        phone TEXT NOT NULL DEFAULT '',
        country TEXT NOT NULL DEFAULT '',
        password TEXT NOT NULL,
        pin TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL DEFAULT 'step1',
        plan TEXT NOT NULL DEFAULT '',
        approved_steps TEXT[] NOT NULL DEFAULT '{}',
        version INTEGER NOT NULL DEFAULT 0,
        created_at TIMESTAMPTZ NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL
    )`)
	return err
}

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (`+userColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		userID, user.Name, user.Email, user.Phone, user.Country, user.PasswordHash, user.PIN,
		string(user.Status), user.Plan, stepsToStrings(user.ApprovedSteps), user.Version,
		user.CreatedAt.UTC(), user.UpdatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateEmail
	}
	return err
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrUserNotFound
	}
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
}

// FindByEmail fetches a user by normalized email.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, NormalizeEmail(email)))
}

// List returns every user ordered by registration time.
func (r *PostgresRepository) List(ctx context.Context) ([]User, error) {
	return r.query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
}

// SearchByEmail returns users whose email equals the normalized input.
func (r *PostgresRepository) SearchByEmail(ctx context.Context, email string) ([]User, error) {
	return r.query(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 ORDER BY created_at`, NormalizeEmail(email))
}

// Update writes the mutable fields when the stored version still matches.
func (r *PostgresRepository) Update(ctx context.Context, user User) (User, error) {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return User{}, ErrUserNotFound
	}
	updated := cloneUser(user)
	updated.Version = user.Version + 1
	updated.UpdatedAt = time.Now().UTC()

	cmd, err := r.db.Exec(ctx, `UPDATE users
        SET password = $1, pin = $2, status = $3, plan = $4, approved_steps = $5, version = $6, updated_at = $7
        WHERE id = $8 AND version = $9`,
		updated.PasswordHash, updated.PIN, string(updated.Status), updated.Plan,
		stepsToStrings(updated.ApprovedSteps), updated.Version, updated.UpdatedAt, userID, user.Version)
	if err != nil {
		return User{}, err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, user.ID); err != nil {
			return User{}, err
		}
		return User{}, ErrVersionConflict
	}
	return updated, nil
}

func (r *PostgresRepository) query(ctx context.Context, sql string, args ...any) ([]User, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanUser(row pgx.Row) (User, error) {
	var (
		id        uuid.UUID
		status    string
		steps     []string
		createdAt time.Time
		updatedAt time.Time
		user      User
	)
	err := row.Scan(&id, &user.Name, &user.Email, &user.Phone, &user.Country, &user.PasswordHash, &user.PIN,
		&status, &user.Plan, &steps, &user.Version, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	parsed, err := ParseStatus(status)
	if err != nil {
		return User{}, fmt.Errorf("user %s: %w", id, err)
	}
	user.ID = id.String()
	user.Status = parsed
	user.ApprovedSteps = stringsToSteps(steps)
	user.CreatedAt = createdAt.UTC()
	user.UpdatedAt = updatedAt.UTC()
	return user, nil
}

func stepsToStrings(steps []Step) []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		out = append(out, string(s))
	}
	return out
}

func stringsToSteps(raw []string) []Step {
	out := make([]Step, 0, len(raw))
	for _, s := range raw {
		out = append(out, Step(s))
	}
	return out
}
