package github

import (
	"context"
	"fmt"
	"time"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/joegemini/internal/event"
)

// Actions is the repository surface the event pipeline drives. Client
// implements it against the live API; pipeline tests substitute
// recorders.
type Actions interface {
	PostComment(ctx context.Context, repo event.Repo, number int, body string) error
	PullRequestContext(ctx context.Context, repo event.Repo, number int) (string, error)
	ReadFile(ctx context.Context, repo event.Repo, path string) (string, error)
	CreateBranch(ctx context.Context, repo event.Repo, branch string) error
	CommitFiles(ctx context.Context, repo event.Repo, branch, message string, files map[string]string, author event.User) error
	OpenPullRequest(ctx context.Context, repo event.Repo, title, head, base, body string) (string, error)
}

// ClientFactory builds installation-scoped clients from App
// credentials. Webhook deliveries name their installation, so every
// event gets a client bound to exactly the repositories that
// installation covers.
type ClientFactory interface {
	InstallationClient(ctx context.Context, installationID int64) (Actions, error)
}

// Factory is the production ClientFactory.
type Factory struct {
	auth        *AppAuth
	baseURL     string
	commitName  string
	commitEmail string
}

// NewFactory creates a Factory. commitName and commitEmail are optional
// overrides for the commit identity derived from the event author.
func NewFactory(cfg AppConfig, commitName, commitEmail string) *Factory {
	return &Factory{
		auth:        NewAppAuth(cfg),
		baseURL:     normalizeBaseURL(cfg.BaseURL),
		commitName:  commitName,
		commitEmail: commitEmail,
	}
}

// InstallationClient exchanges App credentials for an installation
// token and wraps it in an SDK client.
func (f *Factory) InstallationClient(ctx context.Context, installationID int64) (Actions, error) {
	token, err := f.auth.InstallationToken(ctx, installationID)
	if err != nil {
		return nil, err
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(ctx, ts)

	var sdk *gh.Client
	if f.baseURL != defaultBaseURL {
		sdk, err = gh.NewEnterpriseClient(f.baseURL, f.baseURL, httpClient)
		if err != nil {
			return nil, fmt.Errorf("github client for %s: %w", f.baseURL, err)
		}
	} else {
		sdk = gh.NewClient(httpClient)
	}

	return newClient(sdk, f.commitName, f.commitEmail), nil
}

// Client wraps the GitHub SDK for one installation. Writes pass a
// shared limiter so a burst of file commits stays under abuse limits.
type Client struct {
	gh          *gh.Client
	limiter     *rate.Limiter
	commitName  string
	commitEmail string
}

func newClient(sdk *gh.Client, commitName, commitEmail string) *Client {
	return &Client{
		gh:          sdk,
		limiter:     rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		commitName:  commitName,
		commitEmail: commitEmail,
	}
}

func (c *Client) waitWrite(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

// commitAuthor derives the identity recorded on commits. Configured
// overrides win; otherwise commits attribute to the requesting user via
// their noreply address.
func (c *Client) commitAuthor(author event.User) *gh.CommitAuthor {
	name := c.commitName
	email := c.commitEmail
	if name == "" {
		name = author.Login
	}
	if email == "" && author.Login != "" {
		email = fmt.Sprintf("%d+%s@users.noreply.github.com", author.ID, author.Login)
	}
	if name == "" || email == "" {
		// The SDK falls back to the authenticated bot identity.
		return nil
	}
	return &gh.CommitAuthor{Name: gh.String(name), Email: gh.String(email)}
}
