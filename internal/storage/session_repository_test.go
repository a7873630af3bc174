package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRepository connects to REDIS_ADDR and skips when nothing answers.
func newTestRepository(t *testing.T) *SessionRepository {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := NewRedisClient(ctx, addr, os.Getenv("REDIS_PASSWORD"), 15)
	if err != nil {
		t.Skipf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionRepository(client, time.Minute)
}

func newRecord(owner string) *SessionRecord {
	now := time.Now().Truncate(time.Second)
	return &SessionRecord{
		Handle:          "sess_" + uuid.NewString(),
		Owner:           owner,
		Endpoint:        "http://localhost:4444/wd/hub",
		RemoteSessionID: "abc",
		Dialect:         "w3c",
		Capabilities:    map[string]any{"browserName": "chrome", "se:cdp": "ws://localhost:9222/devtools/browser/x"},
		CreatedAt:       now,
		LastActivity:    now,
		Status:          "active",
	}
}

func TestValidate(t *testing.T) {
	rec := newRecord("")
	require.NoError(t, rec.Validate())

	rec.RemoteSessionID = ""
	assert.Error(t, rec.Validate())
}

func TestEnsureName(t *testing.T) {
	rec := &SessionRecord{Handle: "sess_0123456789abcdef", CreatedAt: time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC)}
	rec.EnsureName()
	assert.Equal(t, "session-2026-02-08-89abcdef", rec.Name)

	rec.Name = "kept"
	rec.EnsureName()
	assert.Equal(t, "kept", rec.Name)
}

func TestSaveGetDelete(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	owner := "owner-" + uuid.NewString()

	rec := newRecord(owner)
	rec.Name = "checkout"
	require.NoError(t, repo.SaveSession(ctx, rec))
	t.Cleanup(func() { _ = repo.DeleteSession(context.Background(), rec.Handle) })

	got, err := repo.GetSession(ctx, rec.Handle)
	require.NoError(t, err)
	assert.Equal(t, rec.RemoteSessionID, got.RemoteSessionID)
	assert.Equal(t, rec.Endpoint, got.Endpoint)
	assert.Equal(t, "w3c", got.Dialect)
	assert.Equal(t, rec.Capabilities, got.Capabilities)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))

	handle, err := repo.GetSessionByName(ctx, owner, "checkout")
	require.NoError(t, err)
	assert.Equal(t, rec.Handle, handle)

	count, err := repo.CountOwnerSessions(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, repo.DeleteSession(ctx, rec.Handle))
	_, err = repo.GetSession(ctx, rec.Handle)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.GetSessionByName(ctx, owner, "checkout")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReserveSessionNameConflict(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	owner := "owner-" + uuid.NewString()

	require.NoError(t, repo.ReserveSessionName(ctx, owner, "a", "h1"))
	require.NoError(t, repo.ReserveSessionName(ctx, owner, "a", "h1"))
	assert.ErrorIs(t, repo.ReserveSessionName(ctx, owner, "a", "h2"), ErrNameTaken)
	require.NoError(t, repo.ReleaseSessionName(ctx, owner, "a"))
}

func TestSaveSessionNameTaken(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	owner := "owner-" + uuid.NewString()

	first := newRecord(owner)
	first.Name = "checkout"
	require.NoError(t, repo.SaveSession(ctx, first))
	t.Cleanup(func() { _ = repo.DeleteSession(context.Background(), first.Handle) })

	second := newRecord(owner)
	second.Name = "checkout"
	assert.ErrorIs(t, repo.SaveSession(ctx, second), ErrNameTaken)

	_, err := repo.GetSession(ctx, second.Handle)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRenameSession(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	owner := "owner-" + uuid.NewString()

	rec := newRecord(owner)
	rec.Name = "old"
	require.NoError(t, repo.SaveSession(ctx, rec))
	t.Cleanup(func() { _ = repo.DeleteSession(context.Background(), rec.Handle) })

	require.NoError(t, repo.RenameSession(ctx, rec.Handle, owner, "old", "new"))

	exists, err := repo.CheckSessionNameExists(ctx, owner, "old")
	require.NoError(t, err)
	assert.False(t, exists)

	got, err := repo.GetSession(ctx, rec.Handle)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Name)

	records, err := repo.ListOwnerSessions(ctx, owner)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rec.Handle, records[0].Handle)
}
