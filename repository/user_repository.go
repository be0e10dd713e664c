package repository

import (
	"context"
	"fmt"

	"aidflow-backend/apperr"
	"aidflow-backend/models"

	"github.com/google/uuid"
)

// UserRepository handles database operations for applicant accounts
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new user repository
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, name, profile, prove_of_identity,
			prove_of_income, additional_document, created_at, updated_at`

func scanUser(row interface{ Scan(dest ...any) error }) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&user.Profile,
		&user.ProveOfIdentity,
		&user.ProveOfIncome,
		&user.AdditionalDocument,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Create inserts a user and fills in ID and timestamps.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, password_hash, name, profile)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	return r.db.QueryRow(
		ctx, query,
		user.Email,
		user.PasswordHash,
		user.Name,
		user.Profile,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "user "+id.String())
	}
	return user, nil
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		return nil, notFound(err, "user "+email)
	}
	return user, nil
}

// AppendDocument records a stored document URI on the user's profile.
// Identity documents and profile images are appended to prove_of_identity,
// a pay slip replaces prove_of_income and anything else is appended to
// additional_document.
func (r *UserRepository) AppendDocument(ctx context.Context, userID uuid.UUID, kind models.DocumentKind, uri string) error {
	var query string
	switch kind {
	case models.DocumentIDCard, models.DocumentProfileImage:
		query = `
			UPDATE users SET
				prove_of_identity = array_append(COALESCE(prove_of_identity, '{}'), $2),
				updated_at = NOW()
			WHERE id = $1`
	case models.DocumentPaySlip:
		query = `
			UPDATE users SET
				prove_of_income = $2,
				updated_at = NOW()
			WHERE id = $1`
	case models.DocumentAdditional:
		query = `
			UPDATE users SET
				additional_document = array_append(COALESCE(additional_document, '{}'), $2),
				updated_at = NOW()
			WHERE id = $1`
	default:
		return fmt.Errorf("unknown document kind %q: %w", kind, apperr.ErrInvalidInput)
	}

	tag, err := r.db.Exec(ctx, query, userID, uri)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, apperr.ErrNotFound)
	}
	return nil
}
