// internal/repository/postgres/user_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/rgavrysh/renovator-app-sub001/internal/domain/auth"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail retrieves a user by email, case-insensitively. Absence is not
// an error: returns nil, nil.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	query := `
		SELECT id, external_id, email, given_name, family_name, created_at, updated_at
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`

	var user auth.User
	err := r.db.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.ExternalID, &user.Email,
		&user.GivenName, &user.FamilyName, &user.CreatedAt, &user.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return &user, nil
}

// FindByID retrieves a user by primary key.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	query := `
		SELECT id, external_id, email, given_name, family_name, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user auth.User
	err := r.db.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.ExternalID, &user.Email,
		&user.GivenName, &user.FamilyName, &user.CreatedAt, &user.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return &user, nil
}

// Create inserts a new user record from provider user-info.
func (r *UserRepository) Create(ctx context.Context, info *auth.UserInfo) (*auth.User, error) {
	query := `
		INSERT INTO users (external_id, email, given_name, family_name)
		VALUES ($1, $2, $3, $4)
		RETURNING id, external_id, email, given_name, family_name, created_at, updated_at
	`

	var user auth.User
	err := r.db.QueryRow(ctx, query,
		info.ExternalID, info.Email, info.GivenName, info.FamilyName,
	).Scan(
		&user.ID, &user.ExternalID, &user.Email,
		&user.GivenName, &user.FamilyName, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return &user, nil
}

// Update overwrites name fields and external id with the latest values from
// the provider.
func (r *UserRepository) Update(ctx context.Context, id int64, info *auth.UserInfo) (*auth.User, error) {
	query := `
		UPDATE users
		SET external_id = $2, given_name = $3, family_name = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING id, external_id, email, given_name, family_name, created_at, updated_at
	`

	var user auth.User
	err := r.db.QueryRow(ctx, query,
		id, info.ExternalID, info.GivenName, info.FamilyName,
	).Scan(
		&user.ID, &user.ExternalID, &user.Email,
		&user.GivenName, &user.FamilyName, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	return &user, nil
}
