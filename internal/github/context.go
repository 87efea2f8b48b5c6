package github

import (
	"context"
	"fmt"
	"strings"

	gh "github.com/google/go-github/v57/github"

	"github.com/joegemini/internal/event"
)

// Prompt context stays bounded no matter how large the pull request or
// repository is.
const (
	maxContextFiles  = 10
	maxPatchChars    = 2000
	maxContextChars  = 3000
	maxFileReadChars = 5000
)

// PullRequestContext serializes a compact view of a pull request for
// prompting: title, description, and changed files with truncated
// patches.
func (c *Client) PullRequestContext(ctx context.Context, repo event.Repo, number int) (string, error) {
	pr, _, err := c.gh.PullRequests.Get(ctx, repo.Owner, repo.Name, number)
	if err != nil {
		return "", fmt.Errorf("get pull request %s#%d: %w", repo.FullName, number, err)
	}

	files, _, err := c.gh.PullRequests.ListFiles(ctx, repo.Owner, repo.Name, number,
		&gh.ListOptions{PerPage: maxContextFiles})
	if err != nil {
		return "", fmt.Errorf("list files for %s#%d: %w", repo.FullName, number, err)
	}
	if len(files) > maxContextFiles {
		files = files[:maxContextFiles]
	}

	var changed strings.Builder
	for _, f := range files {
		fmt.Fprintf(&changed, "- %s (%s, +%d/-%d)\n",
			f.GetFilename(), f.GetStatus(), f.GetAdditions(), f.GetDeletions())
		if patch := f.GetPatch(); patch != "" {
			changed.WriteString(truncate(patch, maxPatchChars))
			changed.WriteString("\n")
		}
	}

	var out strings.Builder
	fmt.Fprintf(&out, "PR Title: %s\n", pr.GetTitle())
	fmt.Fprintf(&out, "PR Description: %s\n", pr.GetBody())
	out.WriteString("Files Changed:\n")
	out.WriteString(truncate(changed.String(), maxContextChars))
	return out.String(), nil
}

// ReadFile fetches one file's content from the repository's default
// branch, truncated to keep prompts bounded.
func (c *Client) ReadFile(ctx context.Context, repo event.Repo, path string) (string, error) {
	content, _, _, err := c.gh.Repositories.GetContents(ctx, repo.Owner, repo.Name, path, nil)
	if err != nil {
		return "", fmt.Errorf("read %s from %s: %w", path, repo.FullName, err)
	}
	if content == nil {
		return "", fmt.Errorf("read %s from %s: not a file", path, repo.FullName)
	}

	text, err := content.GetContent()
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}
	return truncate(text, maxFileReadChars), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
