// internal/repository/postgres/session_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rgavrysh/renovator-app-sub001/internal/domain/auth"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// SessionRepository persists issued sessions. It owns persistence only; all
// business rules live in the auth service.
type SessionRepository struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db, now: time.Now}
}

// ========== Create / Read ==========

// Create persists a new session for the given user. The expiry is derived
// from the token set's relative expires_in at insertion time.
func (r *SessionRepository) Create(ctx context.Context, userID int64, ts *auth.TokenSet) (*auth.Session, error) {
	if ts.AccessToken == "" || ts.RefreshToken == "" {
		return nil, fmt.Errorf("refusing to create session with empty tokens")
	}

	now := r.now()
	session := &auth.Session{
		ID:           ulid.Make().String(),
		UserID:       userID,
		AccessToken:  ts.AccessToken,
		RefreshToken: ts.RefreshToken,
		ExpiresAt:    now.Add(time.Duration(ts.ExpiresIn) * time.Second),
		CreatedAt:    now,
	}

	query := `
		INSERT INTO auth_sessions (id, user_id, access_token, refresh_token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.Exec(ctx, query,
		session.ID, session.UserID, session.AccessToken,
		session.RefreshToken, session.ExpiresAt, session.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// GetByID retrieves a session by id. Absence is not an error: returns nil, nil.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*auth.Session, error) {
	return r.getByColumn(ctx, "id", id)
}

// GetByAccessToken retrieves the session holding the given access token.
func (r *SessionRepository) GetByAccessToken(ctx context.Context, token string) (*auth.Session, error) {
	return r.getByColumn(ctx, "access_token", token)
}

// GetByRefreshToken retrieves the session holding the given refresh token.
func (r *SessionRepository) GetByRefreshToken(ctx context.Context, token string) (*auth.Session, error) {
	return r.getByColumn(ctx, "refresh_token", token)
}

func (r *SessionRepository) getByColumn(ctx context.Context, column, value string) (*auth.Session, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, access_token, refresh_token, expires_at, created_at
		FROM auth_sessions
		WHERE %s = $1
	`, column)

	var session auth.Session
	err := r.db.QueryRow(ctx, query, value).Scan(
		&session.ID, &session.UserID, &session.AccessToken,
		&session.RefreshToken, &session.ExpiresAt, &session.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return &session, nil
}

// ========== Update / Delete ==========

// Update overwrites the token fields of an existing session and recomputes
// its expiry. Returns nil, nil when the session no longer exists; callers
// treat that as a benign no-op.
func (r *SessionRepository) Update(ctx context.Context, id string, ts *auth.TokenSet) (*auth.Session, error) {
	query := `
		UPDATE auth_sessions
		SET access_token = $2, refresh_token = $3, expires_at = $4
		WHERE id = $1
		RETURNING id, user_id, access_token, refresh_token, expires_at, created_at
	`

	expiresAt := r.now().Add(time.Duration(ts.ExpiresIn) * time.Second)

	var session auth.Session
	err := r.db.QueryRow(ctx, query, id, ts.AccessToken, ts.RefreshToken, expiresAt).Scan(
		&session.ID, &session.UserID, &session.AccessToken,
		&session.RefreshToken, &session.ExpiresAt, &session.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	return &session, nil
}

// Delete removes a session. Deleting a non-existent id is not an error.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM auth_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteAllForUser removes every session owned by the given user.
func (r *SessionRepository) DeleteAllForUser(ctx context.Context, userID int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM auth_sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// DeleteExpired bulk-removes sessions past their expiry. Runs out-of-band
// from the request path (see the server's sweeper goroutine).
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM auth_sessions WHERE expires_at < $1`, r.now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// IsExpired reports whether the session's access token is past its expiry.
func (r *SessionRepository) IsExpired(session *auth.Session) bool {
	return session.ExpiresAt.Before(r.now())
}
