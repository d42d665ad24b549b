package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ChoiceRecord - одна запись в истории выборов игрока.
// Лог только дополняется: одна запись на каждый примененный выбор.
type ChoiceRecord struct {
	ChoiceID     string    `json:"choice_id"`
	ChoiceText   string    `json:"choice_text"`
	TargetNodeID string    `json:"target_node_id"`
	Timestamp    time.Time `json:"timestamp"`
}

// TimelineEvent - событие для отображения "что произошло" в UI.
type TimelineEvent struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// Session представляет прохождение истории одним игроком: текущая
// позиция, история выборов и атрибуты игрока. Мутируется только
// движком обхода (ApplyChoice); никогда не удаляется, только
// вытесняется новой сессией.
type Session struct {
	ID               uuid.UUID              `json:"session_id"`
	StoryID          string                 `json:"story_id"`
	CurrentNodeID    string                 `json:"current_node_id"`
	PlayerAttributes map[string]interface{} `json:"player_attributes"`
	History          []ChoiceRecord         `json:"choice_history"`
	Timeline         []TimelineEvent        `json:"timeline"`
	StartedAt        time.Time              `json:"game_started"`
	LastActivityAt   time.Time              `json:"last_activity_at"`
}

// NewSession создает свежую сессию: новый ID, указатель на стартовый
// узел, пустая история и затравочное событие таймлайна.
func NewSession(storyID, startNodeID string, now time.Time) *Session {
	return &Session{
		ID:               uuid.New(),
		StoryID:          storyID,
		CurrentNodeID:    startNodeID,
		PlayerAttributes: make(map[string]interface{}),
		History:          make([]ChoiceRecord, 0),
		Timeline: []TimelineEvent{
			{Title: "Game Start", Description: "Beginning of the journey", Timestamp: now},
		},
		StartedAt:      now,
		LastActivityAt: now,
	}
}

// RecordChoice добавляет запись в историю и таймлайн.
// Нумерация событий таймлайна ("Choice N") идет по длине истории.
func (s *Session) RecordChoice(c *Choice, now time.Time) {
	s.History = append(s.History, ChoiceRecord{
		ChoiceID:     c.ID,
		ChoiceText:   c.Text,
		TargetNodeID: c.TargetNodeID,
		Timestamp:    now,
	})
	s.Timeline = append(s.Timeline, TimelineEvent{
		Title:       fmt.Sprintf("Choice %d", len(s.History)),
		Description: c.Text,
		Timestamp:   now,
	})
	s.LastActivityAt = now
}
