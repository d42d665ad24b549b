package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	rateli "github.com/JGLTechnologies/gin-rate-limit"
	ginprometheus "github.com/zsais/go-gin-prometheus"

	"cyoa-server/internal/config"
	"cyoa-server/internal/generator"
	"cyoa-server/internal/handler"
	"cyoa-server/internal/logger"
	"cyoa-server/internal/middleware"
	"cyoa-server/internal/repository"
	"cyoa-server/internal/service"
	"cyoa-server/internal/story"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Setup ---
	log, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	zap.ReplaceGlobals(log)
	zap.L().Info("Logger initialized successfully", zap.String("logLevel", cfg.LogLevel))
	cfg.LogSummary(log)

	// --- Story Library ---
	library := story.NewLibrary(cfg.StoriesDir, log)
	if err := library.LoadAll(); err != nil {
		// Сломанный граф не допускается к игре, сервер не стартует.
		zap.L().Fatal("Failed to load story library", zap.Error(err))
	}

	// --- Session Store ---
	var redisClient *redis.Client
	var sessions repository.SessionRepository
	switch strings.ToLower(cfg.SessionStore) {
	case "redis":
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			zap.L().Fatal("Failed to connect to Redis", zap.Error(err))
		}
		cancel()
		defer redisClient.Close()
		zap.L().Info("Connected to Redis")
		sessions = repository.NewRedisSessionRepository(redisClient, cfg.SessionTTL, log)
	case "file":
		sessions = repository.NewFileSessionRepository(cfg.DataDir, log)
	default:
		zap.L().Fatal("Unknown session store", zap.String("sessionStore", cfg.SessionStore))
	}

	stats := repository.NewFileVisitStatsRepository(cfg.DataDir, log)
	restoreVisitStats(library, stats, log)

	// --- Dependency Injection ---
	metrics := service.NewMetrics(prometheus.DefaultRegisterer)
	gameSvc := service.NewGameService(library, sessions, stats, metrics, log)

	if cfg.AIEnabled {
		aiClient, err := generator.NewAIClient(generator.Config{
			ClientType:       cfg.AIClientType,
			BaseURL:          cfg.AIBaseURL,
			APIKey:           cfg.AIAPIKey,
			Model:            cfg.AIModel,
			Timeout:          cfg.AITimeout,
			Temperature:      cfg.AITemperature,
			MaxContextTokens: cfg.AIMaxContextTokens,
		}, log.Named("AIClient"))
		if err != nil {
			zap.L().Fatal("Failed to create AI client", zap.Error(err))
		}
		gameSvc.SetExpander(generator.NewExpander(aiClient, generator.Config{
			Model:            cfg.AIModel,
			MaxContextTokens: cfg.AIMaxContextTokens,
		}, log))
		zap.L().Info("Story expansion enabled", zap.String("aiClientType", cfg.AIClientType))
	}

	gameHandler := handler.NewGameHandler(gameSvc, log)

	// <<< Rate Limiter Middleware Setup >>>
	var rateLimitStore rateli.Store
	if redisClient != nil {
		rateLimitStore = rateli.RedisStore(&rateli.RedisOptions{
			RedisClient: redisClient,
			Rate:        time.Second,
			Limit:       cfg.RateLimitPerSecond,
		})
	} else {
		rateLimitStore = rateli.InMemoryStore(&rateli.InMemoryOptions{
			Rate:  time.Second,
			Limit: cfg.RateLimitPerSecond,
		})
	}
	rateLimitMiddleware := rateli.RateLimiter(rateLimitStore, &rateli.Options{
		ErrorHandler: func(c *gin.Context, info rateli.Info) {
			zap.L().Warn("Rate limit exceeded",
				zap.String("clientIP", c.ClientIP()),
				zap.Time("resetTime", info.ResetTime),
				zap.String("path", c.Request.URL.Path),
			)
			c.String(http.StatusTooManyRequests, "Too many requests. Try again in "+time.Until(info.ResetTime).String())
		},
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	})
	zap.L().Info("Rate limiter middleware initialized")

	// --- HTTP Server Setup (Gin) ---
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.RedirectTrailingSlash = true
	router.Use(middleware.GinZapLogger(log))
	router.Use(gin.Recovery())
	router.Use(rateLimitMiddleware)

	p := ginprometheus.NewPrometheus("gin")

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "stories": len(library.StoryIDs())})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	gameHandler.RegisterRoutes(router)

	// Prometheus middleware применяется после регистрации роутов.
	p.Use(router)

	// --- Start HTTP Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	zap.L().Info("Starting HTTP server", zap.String("port", cfg.Port))
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("HTTP Server listen error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("HTTP Server forced to shutdown", zap.Error(err))
	}
	zap.L().Info("Server exited")
}

// restoreVisitStats накладывает сохраненные счетчики посещений на все
// загруженные графы.
func restoreVisitStats(library *story.Library, stats repository.VisitStatsRepository, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, id := range library.StoryIDs() {
		graph, err := library.Graph(id)
		if err != nil {
			continue
		}
		if err := stats.Apply(ctx, graph); err != nil {
			log.Warn("Failed to restore visit stats", zap.String("storyID", id), zap.Error(err))
		}
	}
}
