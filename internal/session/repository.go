package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "prism:session:" // hash per session: prism:session:{id}
	fieldToken       = "token"
	fieldUserID      = "user_id"
	defaultTTL       = 24 * time.Hour
)

// Repository persists sessions in Redis. Reads slide the expiry forward.
type Repository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRepository creates a Repository. A non-positive ttl falls back to 24h.
func NewRepository(client *redis.Client, ttl time.Duration) *Repository {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Repository{client: client, ttl: ttl}
}

// Create stores a new session and returns it with its generated id.
func (r *Repository) Create(ctx context.Context, token, userID string) (Session, error) {
	s := Session{ID: uuid.NewString(), Token: token, UserID: userID}
	if err := r.Save(ctx, s); err != nil {
		return Session{}, err
	}
	return s, nil
}

// Save overwrites the stored token and user scope of s.
func (r *Repository) Save(ctx context.Context, s Session) error {
	if s.ID == "" {
		return fmt.Errorf("save session: id is required")
	}
	key := r.key(s.ID)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, fieldToken, s.Token, fieldUserID, s.UserID)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Get loads a session by id.
func (r *Repository) Get(ctx context.Context, id string) (Session, error) {
	key := r.key(id)

	vals, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return Session{}, fmt.Errorf("failed to get session: %w", err)
	}
	if len(vals) == 0 {
		return Session{}, ErrSessionNotFound
	}

	if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
		return Session{}, fmt.Errorf("failed to refresh session ttl: %w", err)
	}

	return Session{ID: id, Token: vals[fieldToken], UserID: vals[fieldUserID]}, nil
}

// Delete removes a session. Deleting an unknown id is not an error.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *Repository) key(id string) string {
	return fmt.Sprintf("%s%s", sessionKeyPrefix, id)
}
