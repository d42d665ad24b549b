package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"cyoa-server/internal/models"
)

// VisitStatsRepository - мок repository.VisitStatsRepository.
type VisitStatsRepository struct {
	mock.Mock
}

func (m *VisitStatsRepository) Save(ctx context.Context, graph *models.StoryGraph) error {
	args := m.Called(ctx, graph)
	return args.Error(0)
}

func (m *VisitStatsRepository) Apply(ctx context.Context, graph *models.StoryGraph) error {
	args := m.Called(ctx, graph)
	return args.Error(0)
}
