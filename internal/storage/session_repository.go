package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const activeSessionsKey = "active:sessions"

func sessionKey(handle string) string { return fmt.Sprintf("session:%s", handle) }

// SessionRepository persists session records in Redis hashes.
type SessionRepository struct {
	redis *RedisClient
	ttl   time.Duration
}

// NewSessionRepository creates a repository whose records expire after ttl
// without activity.
func NewSessionRepository(redisClient *RedisClient, ttl time.Duration) *SessionRepository {
	return &SessionRepository{
		redis: redisClient,
		ttl:   ttl,
	}
}

// SaveSession reserves the record's name, then writes and indexes it. A
// name held by another handle yields ErrNameTaken and nothing is written.
func (r *SessionRepository) SaveSession(ctx context.Context, rec *SessionRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid session record: %w", err)
	}
	rec.EnsureName()

	if rec.Owner != "" {
		if err := r.ReserveSessionName(ctx, rec.Owner, rec.Name, rec.Handle); err != nil {
			return err
		}
	}

	key := sessionKey(rec.Handle)
	fields := map[string]interface{}{
		"handle":            rec.Handle,
		"name":              rec.Name,
		"owner":             rec.Owner,
		"endpoint":          rec.Endpoint,
		"remote_session_id": rec.RemoteSessionID,
		"dialect":           rec.Dialect,
		"created_at":        rec.CreatedAt.Format(time.RFC3339),
		"last_activity":     rec.LastActivity.Format(time.RFC3339),
		"status":            rec.Status,
	}

	client := r.redis.client
	if err := client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	if err := client.Expire(ctx, key, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set TTL: %w", err)
	}

	if err := client.SAdd(ctx, activeSessionsKey, rec.Handle).Err(); err != nil {
		slog.Warn("failed to add to active sessions set", "error", err)
	}

	if rec.Owner != "" {
		if err := client.SAdd(ctx, ownerSessionsKey(rec.Owner), rec.Handle).Err(); err != nil {
			slog.Warn("failed to add session to owner set", "error", err)
		}
	}

	if err := r.SaveCapabilities(ctx, rec.Handle, rec.Capabilities); err != nil {
		slog.Warn("failed to save capabilities", "error", err)
	}

	slog.Debug("session saved to Redis", "handle", rec.Handle)
	return nil
}

// GetSession loads a record. A missing record yields ErrNotFound.
func (r *SessionRepository) GetSession(ctx context.Context, handle string) (*SessionRecord, error) {
	data, err := r.redis.client.HGetAll(ctx, sessionKey(handle)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, handle)
	}

	rec := &SessionRecord{
		Handle:          data["handle"],
		Name:            data["name"],
		Owner:           data["owner"],
		Endpoint:        data["endpoint"],
		RemoteSessionID: data["remote_session_id"],
		Dialect:         data["dialect"],
		Status:          data["status"],
	}
	if createdAt, err := time.Parse(time.RFC3339, data["created_at"]); err == nil {
		rec.CreatedAt = createdAt
	}
	if lastActivity, err := time.Parse(time.RFC3339, data["last_activity"]); err == nil {
		rec.LastActivity = lastActivity
	}

	caps, err := r.GetCapabilities(ctx, handle)
	if err != nil {
		slog.Warn("failed to load capabilities", "handle", handle, "error", err)
	}
	rec.Capabilities = caps

	return rec, nil
}

// ListActiveSessions returns every persisted handle.
func (r *SessionRepository) ListActiveSessions(ctx context.Context) ([]string, error) {
	handles, err := r.redis.client.SMembers(ctx, activeSessionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	return handles, nil
}

// DeleteSession removes a record together with its name reservation and
// index entries.
func (r *SessionRepository) DeleteSession(ctx context.Context, handle string) error {
	client := r.redis.client
	key := sessionKey(handle)

	data, err := client.HGetAll(ctx, key).Result()
	if err == nil && len(data) > 0 {
		owner, name := data["owner"], data["name"]
		if err := r.ReleaseSessionName(ctx, owner, name); err != nil {
			slog.Warn("failed to release session name", "error", err)
		}
		if owner != "" {
			client.SRem(ctx, ownerSessionsKey(owner), handle)
		}
	}

	if err := client.Del(ctx, key, capabilitiesKey(handle)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	client.SRem(ctx, activeSessionsKey, handle)

	slog.Debug("session deleted from Redis", "handle", handle)
	return nil
}
