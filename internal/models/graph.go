package models

// StoryGraph - владеющая коллекция узлов истории с выделенным стартовым
// узлом. Строится один раз при загрузке (или дополняется генератором до
// "заморозки" для игры). Циклы допустимы.
type StoryGraph struct {
	StoryID     string
	Version     string
	Title       string
	Author      string
	StartNodeID string
	Nodes       map[string]*StoryNode
}

// Node возвращает узел по ID.
func (g *StoryGraph) Node(id string) (*StoryNode, bool) {
	n, ok := g.Nodes[id]
	return n, ok
}

// StartNode возвращает стартовый узел графа.
func (g *StoryGraph) StartNode() (*StoryNode, bool) {
	return g.Node(g.StartNodeID)
}

// AddNode добавляет узел в граф. Перезапись существующего ID не
// допускается - вызывающий обязан проверить уникальность заранее
// (валидация графа это ловит).
func (g *StoryGraph) AddNode(n *StoryNode) {
	if g.Nodes == nil {
		g.Nodes = make(map[string]*StoryNode)
	}
	g.Nodes[n.ID] = n
}

// NodeSummary - краткая сводка по узлу для "карты истории".
type NodeSummary struct {
	ID          string   `json:"id"`
	Type        NodeType `json:"type"`
	Title       string   `json:"title"`
	Visits      int      `json:"visits"`
	LastVisited *string  `json:"last_visited,omitempty"`
	Choices     []Choice `json:"choices"`
}
