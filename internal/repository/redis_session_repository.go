package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cyoa-server/internal/models"
)

// redisSessionRepository хранит снимки сессий в Redis под ключом
// "session:<uuid>". SET в Redis атомарен, так что отдельного
// temp+rename протокола не нужно.
type redisSessionRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisSessionRepository создает Redis-репозиторий сессий.
// ttl == 0 означает хранение без срока действия.
func NewRedisSessionRepository(client *redis.Client, ttl time.Duration, logger *zap.Logger) SessionRepository {
	return &redisSessionRepository{
		client: client,
		ttl:    ttl,
		logger: logger.Named("RedisSessionRepo"),
	}
}

func sessionKey(id uuid.UUID) string {
	return "session:" + id.String()
}

// Save сериализует сессию и записывает ее одним SET.
func (r *redisSessionRepository) Save(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", session.ID, err)
	}
	if err := r.client.Set(ctx, sessionKey(session.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("saving session %s to redis: %w", session.ID, err)
	}
	r.logger.Debug("Session snapshot saved",
		zap.String("sessionID", session.ID.String()),
		zap.Int("historyLen", len(session.History)),
	)
	return nil
}

// GetByID читает и декодирует снимок сессии из Redis.
func (r *redisSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("session %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("reading session %s from redis: %w", id, err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("%w: session %s: %v", models.ErrCorruptSnapshot, id, err)
	}
	return &session, nil
}
