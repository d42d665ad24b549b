package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.uber.org/zap"

	"cyoa-server/internal/repository"
	"cyoa-server/internal/service"
	"cyoa-server/internal/story"
)

// cliConfig - конфигурация терминального плеера.
// Читается из config.yaml, переменные окружения имеют приоритет.
type cliConfig struct {
	StoriesDir string `yaml:"stories_dir" env:"STORIES_DIR" env-default:"./stories"`
	DataDir    string `yaml:"data_dir" env:"DATA_DIR" env-default:"./data"`
	Story      string `yaml:"story" env:"STORY" env-default:""`
	LogLevel   string `yaml:"log_level" env:"LOG_LEVEL" env-default:"warn"`
}

func loadCLIConfig() (*cliConfig, error) {
	var cfg cliConfig
	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", &cfg); err != nil {
			return nil, fmt.Errorf("reading config.yaml: %w", err)
		}
		return &cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	return &cfg, nil
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := loadCLIConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err == nil {
		log = log.Level(level)
	}

	library := story.NewLibrary(cfg.StoriesDir, zap.NewNop())
	if err := library.LoadAll(); err != nil {
		log.Fatal().Err(err).Msg("failed to load stories")
	}

	sessions := repository.NewFileSessionRepository(cfg.DataDir, zap.NewNop())
	stats := repository.NewFileVisitStatsRepository(cfg.DataDir, zap.NewNop())
	svc := service.NewGameService(library, sessions, stats,
		service.NewMetrics(prometheus.NewRegistry()), zap.NewNop())

	reader := bufio.NewReader(os.Stdin)
	storyID := cfg.Story
	if storyID == "" {
		storyID = pickStory(reader, library)
	}
	if storyID == "" {
		log.Fatal().Msg("no story selected")
	}

	ctx := context.Background()
	display, err := svc.StartGame(ctx, storyID)
	if err != nil {
		log.Fatal().Err(err).Str("story", storyID).Msg("failed to start game")
	}
	log.Info().Str("session", display.SessionID.String()).Msg("game started")

	fmt.Println("Commands: a number picks a choice, 'history', 'map', 'quit'.")
	for {
		printDisplay(display)
		if display.IsEnding {
			fmt.Println("\n*** THE END ***")
			return
		}

		fmt.Print("\n> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		input := strings.TrimSpace(line)

		switch strings.ToLower(input) {
		case "quit", "exit", "q":
			fmt.Println("Session saved:", display.SessionID)
			return
		case "history":
			printHistory(ctx, svc, display)
			continue
		case "map":
			printMap(ctx, svc, display)
			continue
		case "":
			continue
		}

		// Число выбирает вариант по порядку, любой другой ввод
		// трактуется как текст выбора.
		choiceText := input
		if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(display.Choices) {
			choiceText = display.Choices[n-1]
		}

		next, err := svc.ApplyChoice(ctx, display.SessionID, choiceText)
		if err != nil {
			log.Error().Err(err).Msg("failed to apply choice")
			continue
		}
		if next.Rejected {
			fmt.Println("That is not an option here.")
			continue
		}
		display = next
	}
}

func pickStory(reader *bufio.Reader, library *story.Library) string {
	ids := library.StoryIDs()
	if len(ids) == 0 {
		return ""
	}
	if len(ids) == 1 {
		return ids[0]
	}

	fmt.Println("Available stories:")
	for i, id := range ids {
		graph, err := library.Graph(id)
		if err != nil {
			continue
		}
		fmt.Printf("  %d. %s (%s)\n", i+1, graph.Title, id)
	}
	fmt.Print("Pick a story: ")
	line, err := reader.ReadString('\n')
	if err != nil {
		return ""
	}
	if n, err := strconv.Atoi(strings.TrimSpace(line)); err == nil && n >= 1 && n <= len(ids) {
		return ids[n-1]
	}
	return strings.TrimSpace(line)
}

func printDisplay(d *service.Display) {
	fmt.Println("\n==", d.Title, "==")
	fmt.Println(d.Content)
	for i, choice := range d.Choices {
		fmt.Printf("  %d. %s\n", i+1, choice)
	}
}

func printHistory(ctx context.Context, svc *service.GameService, d *service.Display) {
	view, err := svc.History(ctx, d.SessionID)
	if err != nil {
		fmt.Println("history unavailable:", err)
		return
	}
	for _, event := range view.Timeline {
		fmt.Printf("  [%s] %s: %s\n", event.Timestamp.Format("15:04:05"), event.Title, event.Description)
	}
}

func printMap(ctx context.Context, svc *service.GameService, d *service.Display) {
	summaries, err := svc.StoryMap(ctx, d.SessionID)
	if err != nil {
		fmt.Println("map unavailable:", err)
		return
	}
	for _, s := range summaries {
		marker := " "
		if s.ID == d.NodeID {
			marker = "*"
		}
		fmt.Printf("  %s %-12s %-28s visits=%d\n", marker, s.Type, s.ID, s.Visits)
	}
}
