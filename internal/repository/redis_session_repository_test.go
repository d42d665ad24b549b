package repository

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cyoa-server/internal/models"
)

func newRedisRepo(t *testing.T) (SessionRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisSessionRepository(client, 0, zap.NewNop()), mr
}

func TestRedisSessionRepository_SaveAndGet(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()

	session := newTestSession(t)
	require.NoError(t, repo.Save(ctx, session))

	loaded, err := repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, loaded.ID)
	assert.Equal(t, session.CurrentNodeID, loaded.CurrentNodeID)
	require.Len(t, loaded.History, 1)
	assert.Equal(t, "choice_1", loaded.History[0].ChoiceID)
}

func TestRedisSessionRepository_KeyFormat(t *testing.T) {
	repo, mr := newRedisRepo(t)
	session := newTestSession(t)
	require.NoError(t, repo.Save(context.Background(), session))

	assert.True(t, mr.Exists("session:"+session.ID.String()))
}

func TestRedisSessionRepository_GetMissing(t *testing.T) {
	repo, _ := newRedisRepo(t)

	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRedisSessionRepository_CorruptSnapshot(t *testing.T) {
	repo, mr := newRedisRepo(t)

	id := uuid.New()
	require.NoError(t, mr.Set("session:"+id.String(), "{not json"))

	_, err := repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, models.ErrCorruptSnapshot)
}
