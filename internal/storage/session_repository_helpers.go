package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

func capabilitiesKey(handle string) string { return fmt.Sprintf("session:%s:capabilities", handle) }

func ownerSessionsKey(owner string) string { return fmt.Sprintf("owner:%s:sessions", owner) }

func ownerNamesKey(owner string) string { return fmt.Sprintf("owner:%s:session_names", owner) }

// UpdateLastActivity stamps the record and refreshes its TTL.
func (r *SessionRepository) UpdateLastActivity(ctx context.Context, handle string) error {
	key := sessionKey(handle)

	err := r.redis.client.HSet(ctx, key, "last_activity", time.Now().Format(time.RFC3339)).Err()
	if err != nil {
		return fmt.Errorf("failed to update last activity: %w", err)
	}

	if err := r.redis.client.Expire(ctx, key, r.ttl).Err(); err != nil {
		slog.Warn("failed to refresh TTL", "error", err)
	}
	if err := r.redis.client.Expire(ctx, capabilitiesKey(handle), r.ttl).Err(); err != nil {
		slog.Warn("failed to refresh capabilities TTL", "error", err)
	}
	return nil
}

// SaveCapabilities stores the negotiated capabilities as a JSON string.
func (r *SessionRepository) SaveCapabilities(ctx context.Context, handle string, caps map[string]any) error {
	if len(caps) == 0 {
		return nil
	}

	data, err := json.Marshal(caps)
	if err != nil {
		return fmt.Errorf("failed to marshal capabilities: %w", err)
	}
	if err := r.redis.client.Set(ctx, capabilitiesKey(handle), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save capabilities: %w", err)
	}
	return nil
}

// GetCapabilities loads the capabilities of a record. None stored is not an
// error.
func (r *SessionRepository) GetCapabilities(ctx context.Context, handle string) (map[string]any, error) {
	data, err := r.redis.client.Get(ctx, capabilitiesKey(handle)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get capabilities: %w", err)
	}

	var caps map[string]any
	if err := json.Unmarshal([]byte(data), &caps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal capabilities: %w", err)
	}
	return caps, nil
}

// GetSessionByName resolves an owner's session name to its handle.
func (r *SessionRepository) GetSessionByName(ctx context.Context, owner, name string) (string, error) {
	handle, err := r.redis.client.HGet(ctx, ownerNamesKey(owner), name).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: name %q", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up session name %q: %w", name, err)
	}
	return handle, nil
}

// CheckSessionNameExists reports whether owner already uses name.
func (r *SessionRepository) CheckSessionNameExists(ctx context.Context, owner, name string) (bool, error) {
	exists, err := r.redis.client.HExists(ctx, ownerNamesKey(owner), name).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session name: %w", err)
	}
	return exists, nil
}

// ReserveSessionName maps name to handle for owner. HSETNX keeps the check
// and the write atomic.
func (r *SessionRepository) ReserveSessionName(ctx context.Context, owner, name, handle string) error {
	key := ownerNamesKey(owner)

	ok, err := r.redis.client.HSetNX(ctx, key, name, handle).Result()
	if err != nil {
		return fmt.Errorf("failed to reserve session name: %w", err)
	}
	if !ok {
		current, err := r.redis.client.HGet(ctx, key, name).Result()
		if err != nil || current != handle {
			return fmt.Errorf("%w: '%s' for owner '%s'", ErrNameTaken, name, owner)
		}
	}

	if err := r.redis.client.Expire(ctx, key, r.ttl).Err(); err != nil {
		slog.Warn("failed to set TTL on session names", "error", err)
	}
	return nil
}

// ReleaseSessionName removes the name mapping.
func (r *SessionRepository) ReleaseSessionName(ctx context.Context, owner, name string) error {
	if name == "" || owner == "" {
		return nil
	}
	return r.redis.client.HDel(ctx, ownerNamesKey(owner), name).Err()
}

// RenameSession moves the name reservation and updates the record.
func (r *SessionRepository) RenameSession(ctx context.Context, handle, owner, oldName, newName string) error {
	exists, err := r.CheckSessionNameExists(ctx, owner, newName)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: '%s'", ErrNameTaken, newName)
	}

	if err := r.ReleaseSessionName(ctx, owner, oldName); err != nil {
		slog.Warn("failed to release old session name", "error", err)
	}
	if err := r.ReserveSessionName(ctx, owner, newName, handle); err != nil {
		return err
	}

	if err := r.redis.client.HSet(ctx, sessionKey(handle), "name", newName).Err(); err != nil {
		return fmt.Errorf("failed to update session name: %w", err)
	}

	slog.Info("session renamed",
		"handle", handle,
		"old_name", oldName,
		"new_name", newName)
	return nil
}

// CountOwnerSessions returns how many sessions owner has persisted.
func (r *SessionRepository) CountOwnerSessions(ctx context.Context, owner string) (int, error) {
	count, err := r.redis.client.SCard(ctx, ownerSessionsKey(owner)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count owner sessions: %w", err)
	}
	return int(count), nil
}

// ListOwnerSessions loads every record of owner. Records that fail to load
// are skipped.
func (r *SessionRepository) ListOwnerSessions(ctx context.Context, owner string) ([]*SessionRecord, error) {
	handles, err := r.redis.client.SMembers(ctx, ownerSessionsKey(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list owner sessions: %w", err)
	}

	records := make([]*SessionRecord, 0, len(handles))
	for _, handle := range handles {
		rec, err := r.GetSession(ctx, handle)
		if err != nil {
			slog.Warn("failed to load session",
				"handle", handle,
				"error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
