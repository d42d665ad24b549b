package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cyoa-server/internal/models"
)

// fileSessionRepository хранит сессии на диске:
// <dataDir>/sessions/<session_id>/state.json.
// Запись идет через временный файл с последующим rename, поэтому
// читатель видит либо старый снимок целиком, либо новый целиком.
type fileSessionRepository struct {
	dataDir string
	logger  *zap.Logger
}

// NewFileSessionRepository создает файловый репозиторий сессий.
func NewFileSessionRepository(dataDir string, logger *zap.Logger) SessionRepository {
	return &fileSessionRepository{
		dataDir: dataDir,
		logger:  logger.Named("FileSessionRepo"),
	}
}

func (r *fileSessionRepository) sessionDir(id uuid.UUID) string {
	return filepath.Join(r.dataDir, "sessions", id.String())
}

func (r *fileSessionRepository) statePath(id uuid.UUID) string {
	return filepath.Join(r.sessionDir(id), "state.json")
}

// Save сериализует сессию и атомарно подменяет state.json.
func (r *fileSessionRepository) Save(ctx context.Context, session *models.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := r.sessionDir(session.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", session.ID, err)
	}

	// Временный файл в том же каталоге, чтобы rename остался в пределах
	// одной файловой системы.
	tmp, err := os.CreateTemp(dir, "state-*.json.tmp")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, r.statePath(session.ID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing snapshot: %w", err)
	}

	r.logger.Debug("Session snapshot saved",
		zap.String("sessionID", session.ID.String()),
		zap.Int("historyLen", len(session.History)),
	)
	return nil
}

// GetByID читает и декодирует снимок сессии.
func (r *fileSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(r.statePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("reading session %s: %w", id, err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("%w: session %s: %v", models.ErrCorruptSnapshot, id, err)
	}
	return &session, nil
}
