package bootstrap

import (
	"context"
	"fmt"
	"time"

	"deep-research-agent/internal/config"
	"deep-research-agent/internal/constant"
	"deep-research-agent/internal/controller"
	"deep-research-agent/internal/pkg/logger"
	"deep-research-agent/internal/repository/contract"
	"deep-research-agent/internal/repository/implementation"
	"deep-research-agent/internal/repository/memory"
	"deep-research-agent/internal/service"
	"deep-research-agent/pkg/database"
	"deep-research-agent/pkg/llm/factory"
	pktNats "deep-research-agent/pkg/nats"
	"deep-research-agent/pkg/research"
	"deep-research-agent/pkg/validation"

	"github.com/redis/go-redis/v9"
)

type Container struct {
	Logger    logger.ILogger
	Validator *validation.Validator

	// Services
	SessionService  service.ISessionService
	ResearchService service.IResearchService
	ProgressService service.IProgressService

	// Controllers
	ResearchController controller.IResearchController

	closers []func()
}

// NewContainer builds every component from cfg. Infrastructure that is
// optional (NATS) only logs a warning when it is unreachable; the selected
// session backend must be reachable.
func NewContainer(cfg *config.Config, sysLogger logger.ILogger) (*Container, error) {
	sysLogger = logger.OrNop(sysLogger)
	c := &Container{Logger: sysLogger}

	// 1. Validation + storage
	c.Validator = validation.New(validation.Limits{MaxStages: cfg.Research.MaxStages})

	backend, err := c.newSessionBackend(cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.SessionService = service.NewSessionService(backend, c.Validator, sysLogger, service.SessionServiceConfig{
		ReportsDir: cfg.Storage.ReportsDir,
		ListLimit:  cfg.Storage.ListLimit,
	})

	// 2. Generation
	llmProvider, err := factory.NewLLMProvider(factory.ProviderConfig{
		Provider:           cfg.Ai.LLMProvider,
		Model:              cfg.Ai.LLMModel,
		OllamaBaseURL:      cfg.Ai.OllamaBaseURL,
		HuggingFaceAPIKey:  cfg.Keys.HuggingFace,
		HuggingFaceBaseURL: cfg.Ai.HuggingFaceBaseURL,
		GeminiAPIKey:       cfg.Keys.GoogleGemini,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize LLM provider: %w", err)
	}
	sysLogger.Info(constant.LogModuleBoot, "LLM provider ready", map[string]interface{}{
		"provider": cfg.Ai.LLMProvider,
		"model":    cfg.Ai.LLMModel,
	})

	client := research.NewClient(llmProvider, research.RetryConfig{
		MaxRetries:  cfg.Ai.MaxRetries,
		BaseDelay:   cfg.Ai.RetryDelay,
		BackoffBase: cfg.Ai.BackoffBase,
	},
		research.WithSystemPrompt(constant.ResearchSystemPromptV1),
		research.WithClientLogger(sysLogger),
	)

	// 3. Progress fan-out
	var natsPub service.EventPublisher
	if cfg.App.NatsURL != "" {
		pub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Warn(constant.LogModuleBoot, "Failed to connect to NATS publisher, progress stays local", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			natsPub = pub
			c.closers = append(c.closers, pub.Close)
		}
	}
	c.ProgressService = service.NewProgressService(service.NewProgressBus(), natsPub, sysLogger)
	c.closers = append(c.closers, func() { _ = c.ProgressService.Close() })

	// 4. Engine + orchestration
	engine := research.NewEngine(research.DefaultStages(client), c.SessionService, research.EngineConfig{
		MaxStages:      cfg.Research.MaxStages,
		RateLimitDelay: cfg.Research.RateLimitDelay,
		MinConfidence:  cfg.Research.MinConfidence,
	},
		research.WithProgressListener(c.ProgressService),
		research.WithEngineLogger(sysLogger),
	)
	c.ResearchService = service.NewResearchService(c.SessionService, engine, c.ProgressService, sysLogger)

	// 5. Controllers
	c.ResearchController = controller.NewResearchController(c.ResearchService, c.SessionService, cfg.Storage.RetentionDays)

	return c, nil
}

func (c *Container) newSessionBackend(cfg *config.Config) (contract.SessionBackend, error) {
	details := map[string]interface{}{"backend": cfg.Storage.Backend}
	defer c.Logger.Info(constant.LogModuleBoot, "Session backend selected", details)

	switch cfg.Storage.Backend {
	case "memory":
		return memory.NewSessionRepository(), nil

	case "redis":
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			c.Logger.Warn(constant.LogModuleBoot, "Failed to parse Redis URL, using it as address", map[string]interface{}{
				"error": err.Error(),
			})
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb := redis.NewClient(opt)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		c.closers = append(c.closers, func() { _ = rdb.Close() })
		return implementation.NewRedisSessionBackend(rdb), nil

	case "postgres":
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
		if err != nil {
			return nil, fmt.Errorf("unable to connect to GORM DB: %w", err)
		}
		if err := database.Migrate(db); err != nil {
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			c.closers = append(c.closers, func() { _ = sqlDB.Close() })
		}
		return implementation.NewPostgresSessionBackend(db), nil

	default:
		details["sessions_dir"] = cfg.Storage.SessionsDir
		return implementation.NewFileSessionBackend(cfg.Storage.SessionsDir, cfg.Storage.FilePermissions)
	}
}

// Close releases infrastructure connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
