package models

import (
	"reflect"
	"strings"
	"time"
)

// NodeType определяет тип сюжетного узла.
// Совпадает со значениями поля "type" в конфигурации истории.
type NodeType string

const (
	NodeTypeStart  NodeType = "story_start"  // Стартовый узел (ровно один на граф).
	NodeTypeBranch NodeType = "story_branch" // Обычный узел с вариантами выбора.
	NodeTypeEnd    NodeType = "story_end"    // Концовка, исходящих выборов нет.
)

// IsValid проверяет, что тип узла известен.
func (t NodeType) IsValid() bool {
	switch t {
	case NodeTypeStart, NodeTypeBranch, NodeTypeEnd:
		return true
	}
	return false
}

// Choice представляет направленное ребро графа: вариант выбора,
// ведущий из одного узла в другой.
type Choice struct {
	ID           string                 `json:"id"`                     // Уникален в пределах своего узла
	Text         string                 `json:"text"`                   // Текст, который видит игрок; уникален в пределах узла
	TargetNodeID string                 `json:"target_node_id"`         // ID целевого узла; пустой = выбор еще не "подключен" генератором
	Requirements map[string]interface{} `json:"requirements,omitempty"` // Требования к атрибутам игрока
	Effects      map[string]interface{} `json:"effects,omitempty"`      // Атрибуты, выставляемые при применении выбора
}

// IsWired сообщает, подключен ли выбор к целевому узлу.
// Генератор контента может создавать узлы с "висячими" выборами,
// которые подключаются позже (см. internal/generator).
func (c *Choice) IsWired() bool {
	return c.TargetNodeID != ""
}

// IsAvailable проверяет доступность выбора для игрока: каждый ключ из
// Requirements должен присутствовать в атрибутах игрока и совпадать по
// значению. Отсутствующий атрибут означает недоступность. Пустые
// требования - выбор доступен всегда.
func (c *Choice) IsAvailable(playerAttributes map[string]interface{}) bool {
	for attr, required := range c.Requirements {
		actual, ok := playerAttributes[attr]
		if !ok {
			return false
		}
		if !valuesEqual(required, actual) {
			return false
		}
	}
	return true
}

// valuesEqual сравнивает значения требования и атрибута.
// После декодирования JSON все числа становятся float64, но атрибуты,
// выставленные кодом игры, могут быть int - приводим числа к float64.
func valuesEqual(a, b interface{}) bool {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// StoryNode представляет один сюжетный "бит": фрагмент повествования
// с исходящими вариантами выбора.
type StoryNode struct {
	ID          string                 `json:"id"`
	Type        NodeType               `json:"type"`
	Title       string                 `json:"title"`
	Content     string                 `json:"content"`
	Choices     []Choice               `json:"choices"`            // Порядок вставки = порядок отображения
	Metadata    map[string]interface{} `json:"metadata,omitempty"` // Произвольные авторские аннотации
	Visits      int                    `json:"visits"`             // Монотонно растущий счетчик посещений
	LastVisited *time.Time             `json:"last_visited,omitempty"`
}

// Visit отмечает посещение узла: инкремент счетчика и отметка времени.
func (n *StoryNode) Visit(now time.Time) {
	n.Visits++
	n.LastVisited = &now
}

// FindChoiceByText ищет выбор по тексту. Сравнение точное (с учетом
// регистра) после обрезки окружающих пробелов с обеих сторон.
func (n *StoryNode) FindChoiceByText(text string) *Choice {
	trimmed := strings.TrimSpace(text)
	for i := range n.Choices {
		if strings.TrimSpace(n.Choices[i].Text) == trimmed {
			return &n.Choices[i]
		}
	}
	return nil
}

// FindChoiceByID ищет выбор по его ID.
func (n *StoryNode) FindChoiceByID(id string) *Choice {
	for i := range n.Choices {
		if n.Choices[i].ID == id {
			return &n.Choices[i]
		}
	}
	return nil
}

// AvailableChoices возвращает тексты доступных игроку выборов,
// сохраняя авторский порядок. Неподключенные выборы недоступны.
func (n *StoryNode) AvailableChoices(playerAttributes map[string]interface{}) []string {
	texts := make([]string, 0, len(n.Choices))
	for i := range n.Choices {
		c := &n.Choices[i]
		if c.IsWired() && c.IsAvailable(playerAttributes) {
			texts = append(texts, c.Text)
		}
	}
	return texts
}
