// internal/pkg/state/store.go
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rgavrysh/renovator-app-sub001/internal/domain/auth"
	xerrors "github.com/rgavrysh/renovator-app-sub001/internal/pkg/errors"

	"github.com/redis/go-redis/v9"
)

// Store keeps login-state records in Redis for the window between the login
// redirect and the provider callback. Records are single-use: Consume removes
// the key atomically so a replayed state value cannot pass twice.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) key(state string) string {
	return fmt.Sprintf("auth:state:%s", state)
}

// Issue persists a login-state record under its state value.
func (s *Store) Issue(ctx context.Context, ls *auth.LoginState) error {
	data, err := json.Marshal(ls)
	if err != nil {
		return fmt.Errorf("failed to marshal login state: %w", err)
	}

	if err := s.client.Set(ctx, s.key(ls.State), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store login state: %w", err)
	}
	return nil
}

// Consume fetches and deletes a login-state record in one round trip.
// A missing or expired state yields ErrNotFound.
func (s *Store) Consume(ctx context.Context, state string) (*auth.LoginState, error) {
	data, err := s.client.GetDel(ctx, s.key(state)).Bytes()
	if err == redis.Nil {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume login state: %w", err)
	}

	var ls auth.LoginState
	if err := json.Unmarshal(data, &ls); err != nil {
		return nil, fmt.Errorf("failed to unmarshal login state: %w", err)
	}

	return &ls, nil
}
