package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/joegemini/internal/config"
	"github.com/joegemini/internal/conversation"
	"github.com/joegemini/internal/event"
	"github.com/joegemini/internal/gemini"
	"github.com/joegemini/internal/github"
	"github.com/joegemini/internal/orchestrator"
)

// ReplayCommand returns the CLI command for pushing one event through
// the processing pipeline without a webhook delivery. Conversation
// context is in-memory, so each replay starts a fresh thread.
func ReplayCommand() *cli.Command {
	return &cli.Command{
		Name:  "replay",
		Usage: "Run a single event through the processing pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "Load a normalized event from `FILE` (JSON)",
			},
			&cli.StringFlag{
				Name:  "body",
				Usage: "Comment body for the built-in sample event",
				Value: "@joe-gemini please fix the typo in README.md",
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"d"},
				Usage:   "Print repository actions instead of calling GitHub",
			},
		},
		Action: runReplay,
	}
}

func runReplay(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dryRun := c.Bool("dry-run")

	evt, err := loadReplayEvent(c)
	if err != nil {
		return err
	}

	if cfg.Gemini.APIKey == "" {
		return fmt.Errorf("gemini api_key is required (GEMINI_API_KEY)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

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

	var clients github.ClientFactory
	if dryRun {
		clients = dryRunFactory{}
	} else {
		if cfg.GitHub.AppID == "" || cfg.GitHub.PrivateKey == "" {
			return fmt.Errorf("github app credentials are required unless --dry-run is set")
		}
		clients = github.NewFactory(github.AppConfig{
			AppID:      cfg.GitHub.AppID,
			PrivateKey: cfg.GitHub.PrivateKey,
			BaseURL:    cfg.GitHub.APIBaseURL,
		}, cfg.GitHub.CommitName, cfg.GitHub.CommitEmail)
	}

	parser, err := event.NewParser(cfg.GitHub.WebhookSecret)
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(orchestrator.Config{
		BotUsername:  cfg.Bot.Username,
		BranchPrefix: cfg.Bot.BranchPrefix,
	}, orchestrator.Deps{
		Parser:  parser,
		Store:   conversation.NewInMemoryStore(),
		LLM:     llm,
		Clients: clients,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Replaying %s event for %s (scenario: %s, dry-run: %v)\n",
		evt.Type, evt.ThreadID(), orch.Scenario(&evt), dryRun)

	if err := orch.ProcessEvent(ctx, evt); err != nil {
		return fmt.Errorf("processing failed: %w", err)
	}

	fmt.Println("Event processed")
	return nil
}

func loadReplayEvent(c *cli.Context) (event.Event, error) {
	if file := c.String("file"); file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return event.Event{}, fmt.Errorf("failed to read event file: %w", err)
		}
		var evt event.Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			return event.Event{}, fmt.Errorf("failed to parse event file: %w", err)
		}
		if evt.Repo.FullName == "" || evt.Number == 0 {
			return event.Event{}, fmt.Errorf("event file must carry repo.full_name and number")
		}
		if evt.Type == "" {
			evt.Type = event.TypeIssueComment
		}
		return evt, nil
	}

	return event.Event{
		DeliveryID: "replay-sample",
		Type:       event.TypeIssueComment,
		Action:     "created",
		Repo: event.Repo{
			Owner:         "octocat",
			Name:          "hello-world",
			FullName:      "octocat/hello-world",
			DefaultBranch: "main",
		},
		Author:     event.User{ID: 583231, Login: "octocat", Type: "User"},
		Body:       c.String("body"),
		Number:     42,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

type dryRunFactory struct{}

func (dryRunFactory) InstallationClient(ctx context.Context, installationID int64) (github.Actions, error) {
	return &dryRunActions{}, nil
}

// dryRunActions prints repository calls instead of performing them.
type dryRunActions struct{}

func (a *dryRunActions) PostComment(ctx context.Context, repo event.Repo, number int, body string) error {
	fmt.Printf("\n--- would comment on %s#%d ---\n%s\n", repo.FullName, number, body)
	return nil
}

func (a *dryRunActions) PullRequestContext(ctx context.Context, repo event.Repo, number int) (string, error) {
	return "", fmt.Errorf("no pull request context in dry-run")
}

func (a *dryRunActions) ReadFile(ctx context.Context, repo event.Repo, path string) (string, error) {
	return "", fmt.Errorf("no repository content in dry-run")
}

func (a *dryRunActions) CreateBranch(ctx context.Context, repo event.Repo, branch string) error {
	fmt.Printf("\n--- would create branch %s in %s ---\n", branch, repo.FullName)
	return nil
}

func (a *dryRunActions) CommitFiles(ctx context.Context, repo event.Repo, branch, message string, files map[string]string, author event.User) error {
	fmt.Printf("\n--- would commit %d file(s) to %s: %s ---\n", len(files), branch, message)
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		fmt.Printf("  %s (%d bytes)\n", path, len(files[path]))
	}
	return nil
}

func (a *dryRunActions) OpenPullRequest(ctx context.Context, repo event.Repo, title, head, base, body string) (string, error) {
	fmt.Printf("\n--- would open pull request %q (%s -> %s) ---\n", title, head, base)
	return "(dry-run)", nil
}
