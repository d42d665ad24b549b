package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"cyoa-server/internal/models"
	"cyoa-server/internal/story"
)

const expandSystemPrompt = `You are a narrative engine for a choose-your-own-adventure game.
Continue the story for the choice the player is about to take.
Respond with a single JSON object and nothing else:
{
  "type": "story_branch" | "story_end",
  "title": "short scene title",
  "content": "2-4 paragraphs of narration",
  "choices": [{"text": "choice the player can take next"}]
}
Use "story_end" with an empty choices array when the scene concludes the story.`

// generatedNode - формат ответа модели.
type generatedNode struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

// Expander достраивает граф истории: генерирует узел-продолжение для
// неподключенного выбора и подключает его. После каждого расширения
// граф проходит повторную валидацию, невалидный результат полностью
// откатывается.
type Expander struct {
	ai     AIClient
	cfg    Config
	logger *zap.Logger
}

// NewExpander создает генератор продолжений.
func NewExpander(ai AIClient, cfg Config, logger *zap.Logger) *Expander {
	return &Expander{
		ai:     ai,
		cfg:    cfg,
		logger: logger.Named("Expander"),
	}
}

// ExpandChoice генерирует узел для неподключенного выбора узла node и
// подключает его к графу. narrative - повествовательный контекст пути
// игрока, он обрезается до бюджета токенов с конца, свежие сцены важнее
// ранних.
func (e *Expander) ExpandChoice(
	ctx context.Context,
	graph *models.StoryGraph,
	node *models.StoryNode,
	choiceText string,
	narrative string,
) (*models.StoryNode, error) {
	choice := node.FindChoiceByText(choiceText)
	if choice == nil {
		return nil, fmt.Errorf("node %q has no choice %q: %w", node.ID, strings.TrimSpace(choiceText), models.ErrNotFound)
	}
	if choice.IsWired() {
		return nil, fmt.Errorf("%w: choice %q is already wired to %q", models.ErrBadRequest, choice.ID, choice.TargetNodeID)
	}

	userInput := e.buildUserInput(graph, node, choice, narrative)
	raw, usage, err := e.ai.GenerateText(ctx, expandSystemPrompt, userInput)
	if err != nil {
		return nil, err
	}

	payload, err := parseGeneratedNode(raw)
	if err != nil {
		return nil, err
	}

	newNode := &models.StoryNode{
		ID:      uuid.NewString(),
		Type:    models.NodeType(payload.Type),
		Title:   payload.Title,
		Content: payload.Content,
		Choices: make([]models.Choice, 0, len(payload.Choices)),
	}
	for _, c := range payload.Choices {
		// Новые выборы остаются неподключенными до следующего расширения.
		newNode.Choices = append(newNode.Choices, models.Choice{
			ID:   uuid.NewString(),
			Text: strings.TrimSpace(c.Text),
		})
	}

	// Подключаем и перепроверяем весь граф. Невалидное расширение
	// откатывается целиком.
	graph.AddNode(newNode)
	choice.TargetNodeID = newNode.ID
	if err := story.ValidateGraph(graph); err != nil {
		delete(graph.Nodes, newNode.ID)
		choice.TargetNodeID = ""
		return nil, fmt.Errorf("generated node rejected: %w", err)
	}

	e.logger.Info("Story graph expanded",
		zap.String("storyID", graph.StoryID),
		zap.String("fromNode", node.ID),
		zap.String("choiceID", choice.ID),
		zap.String("newNode", newNode.ID),
		zap.String("newNodeType", string(newNode.Type)),
		zap.Int("totalTokens", usage.TotalTokens),
	)
	return newNode, nil
}

func (e *Expander) buildUserInput(graph *models.StoryGraph, node *models.StoryNode, choice *models.Choice, narrative string) string {
	var b strings.Builder
	b.WriteString("Story: ")
	b.WriteString(graph.Title)
	b.WriteString("\n\n")
	if trimmed := e.truncateToTokenBudget(narrative); trimmed != "" {
		b.WriteString("Story so far:\n")
		b.WriteString(trimmed)
		b.WriteString("\n\n")
	}
	b.WriteString("Current scene:\n")
	b.WriteString(node.Content)
	b.WriteString("\n\nThe player chooses: ")
	b.WriteString(choice.Text)
	return b.String()
}

// truncateToTokenBudget обрезает текст до бюджета токенов, сохраняя
// хвост. Без бюджета или без токенизатора текст возвращается как есть.
func (e *Expander) truncateToTokenBudget(text string) string {
	if e.cfg.MaxContextTokens <= 0 || text == "" {
		return text
	}
	tke, err := tiktoken.EncodingForModel(e.cfg.Model)
	if err != nil {
		tke, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			e.logger.Warn("No tokenizer available, sending narrative untruncated", zap.Error(err))
			return text
		}
	}
	tokens := tke.Encode(text, nil, nil)
	if len(tokens) <= e.cfg.MaxContextTokens {
		return text
	}
	return tke.Decode(tokens[len(tokens)-e.cfg.MaxContextTokens:])
}

// parseGeneratedNode разбирает ответ модели. Модели любят заворачивать
// JSON в markdown-ограждения, поэтому вырезаем все до первой '{' и
// после последней '}'.
func parseGeneratedNode(raw string) (*generatedNode, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: ответ не содержит JSON-объекта", ErrAIGenerationFailed)
	}

	var payload generatedNode
	if err := json.Unmarshal([]byte(raw[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("%w: разбор JSON: %v", ErrAIGenerationFailed, err)
	}

	if payload.Type == "" {
		payload.Type = string(models.NodeTypeBranch)
	}
	if payload.Type != string(models.NodeTypeBranch) && payload.Type != string(models.NodeTypeEnd) {
		return nil, fmt.Errorf("%w: недопустимый тип узла %q", ErrAIGenerationFailed, payload.Type)
	}
	if strings.TrimSpace(payload.Title) == "" || strings.TrimSpace(payload.Content) == "" {
		return nil, fmt.Errorf("%w: пустой title или content", ErrAIGenerationFailed)
	}
	if payload.Type == string(models.NodeTypeEnd) && len(payload.Choices) > 0 {
		return nil, fmt.Errorf("%w: концовка не может иметь выборов", ErrAIGenerationFailed)
	}
	return &payload, nil
}
