package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/urfave/cli/v2"

	"github.com/joegemini/internal/api"
	"github.com/joegemini/internal/config"
	"github.com/joegemini/internal/conversation"
	"github.com/joegemini/internal/database"
	"github.com/joegemini/internal/event"
	"github.com/joegemini/internal/gemini"
	"github.com/joegemini/internal/github"
	"github.com/joegemini/internal/jobqueue"
	"github.com/joegemini/internal/orchestrator"
)

// Version is reported by the CLI and the health endpoint.
const Version = "0.1.0"

// ServeCommand returns the CLI command for starting the webhook server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the joe-gemini webhook server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the webhook server",
				Value:   8000,
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from `FILE` before reading config",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	if envFile := c.String("env-file"); envFile != "" {
		if err := LoadEnvFile(envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx := context.Background()

	llm, err := gemini.New(ctx, gemini.Config{
		APIKey:        cfg.Gemini.APIKey,
		Model:         cfg.Gemini.Model,
		Temperature:   cfg.Gemini.Temperature,
		MaxTokens:     cfg.Gemini.MaxTokens,
		CodeMaxTokens: cfg.Gemini.CodeMaxTokens,
	})
	if err != nil {
		return fmt.Errorf("failed to create Gemini client: %w", err)
	}

	clients := github.NewFactory(github.AppConfig{
		AppID:      cfg.GitHub.AppID,
		PrivateKey: cfg.GitHub.PrivateKey,
		BaseURL:    cfg.GitHub.APIBaseURL,
	}, cfg.GitHub.CommitName, cfg.GitHub.CommitEmail)

	store, closeStore, err := newConversationStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	parser, err := event.NewParser(cfg.GitHub.WebhookSecret)
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(orchestrator.Config{
		BotUsername:  cfg.Bot.Username,
		BranchPrefix: cfg.Bot.BranchPrefix,
	}, orchestrator.Deps{
		Parser:  parser,
		Store:   store,
		LLM:     llm,
		Clients: clients,
	})
	if err != nil {
		return err
	}

	if cfg.QueueEnabled() {
		queue, err := jobqueue.NewJobQueue(cfg.Database.URL, orch)
		if err != nil {
			return fmt.Errorf("failed to create job queue: %w", err)
		}
		if err := queue.Start(ctx); err != nil {
			return fmt.Errorf("failed to start job queue: %w", err)
		}
		defer func() {
			if err := queue.Stop(context.Background()); err != nil {
				log.Printf("[WARN] Job queue shutdown: %v", err)
			}
		}()
		orch.UseQueue(queue)
	}

	fmt.Printf("Starting %s webhook server on port %d...\n", cfg.Bot.Username, cfg.Server.Port)

	server := api.NewServer(cfg.Server.Port, Version, orch)
	return server.Start()
}

// newConversationStore picks Postgres when a database is configured,
// otherwise an in-memory store that only lives for this process.
func newConversationStore(ctx context.Context, cfg *config.Config) (conversation.Store, func(), error) {
	if cfg.Database.URL == "" {
		log.Printf("[WARN] No database configured, conversation context will not survive restarts")
		return conversation.NewInMemoryStore(), func() {}, nil
	}

	db, err := database.NewDB(cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := conversation.NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	return store, func() { db.Close() }, nil
}
