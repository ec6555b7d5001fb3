package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"accounts/internal/users/models"
	id "accounts/pkg/domain"
	"accounts/pkg/platform/sentinel"
)

//go:embed schema.sql
var schema string

const (
	uniqueViolation = "23505"

	emailConstraint    = "users_email_lower_key"
	usernameConstraint = "users_username_lower_key"
)

const userColumns = `id, username, first_name, last_name, password_hash, is_active, is_staff,
	is_superuser, date_joined, last_login, email, is_verified, address, city, postcode,
	mobile, profile_picture`

// PostgresStore persists users in PostgreSQL. Uniqueness is enforced by the
// unique indexes on lower(email) and lower(username), so a single INSERT is
// both the check and the write.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the users table and its indexes if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure users schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(user.ID),
		user.Username,
		user.FirstName,
		user.LastName,
		user.PasswordHash,
		user.Active,
		user.Staff,
		user.Superuser,
		user.DateJoined,
		user.LastLogin,
		user.Email,
		user.Verified,
		nullable(user.Address),
		nullable(user.City),
		nullable(user.Postcode),
		nullable(user.Mobile),
		nullable(user.ProfilePicture),
	)
	if err != nil {
		if conflict := uniqueConflict(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, uuid.UUID(userID))
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = $1`, models.NormalizeKey(email))
}

func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(username) = $1`, models.NormalizeKey(username))
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		u                                            models.User
		rawID                                        uuid.UUID
		lastLogin                                    sql.NullTime
		address, city, postcode, mobile, profilePict sql.NullString
	)
	err := row.Scan(
		&rawID,
		&u.Username,
		&u.FirstName,
		&u.LastName,
		&u.PasswordHash,
		&u.Active,
		&u.Staff,
		&u.Superuser,
		&u.DateJoined,
		&lastLogin,
		&u.Email,
		&u.Verified,
		&address,
		&city,
		&postcode,
		&mobile,
		&profilePict,
	)
	if err != nil {
		return nil, err
	}
	u.ID = id.UserID(rawID)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	u.Address = address.String
	u.City = city.String
	u.Postcode = postcode.String
	u.Mobile = mobile.String
	u.ProfilePicture = profilePict.String
	return &u, nil
}

// uniqueConflict maps a unique-index violation to the model error naming the
// taken field. Returns nil for any other error.
func uniqueConflict(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return nil
	}
	switch pqErr.Constraint {
	case emailConstraint:
		return models.ErrEmailTaken
	case usernameConstraint:
		return models.ErrUsernameTaken
	default:
		return fmt.Errorf("create user: %w: %s", sentinel.ErrAlreadyUsed, pqErr.Constraint)
	}
}

// nullable stores absent optional strings as NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
