package github

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	gh "github.com/google/go-github/v57/github"

	"github.com/joegemini/internal/event"
)

// PostComment posts one comment on an issue or pull request thread.
func (c *Client) PostComment(ctx context.Context, repo event.Repo, number int, body string) error {
	if err := c.waitWrite(ctx); err != nil {
		return err
	}

	comment := &gh.IssueComment{Body: gh.String(body)}
	_, _, err := c.gh.Issues.CreateComment(ctx, repo.Owner, repo.Name, number, comment)
	if err != nil {
		return fmt.Errorf("post comment on %s#%d: %w", repo.FullName, number, err)
	}
	return nil
}

// CreateBranch points a new branch at the current head of the default
// branch.
func (c *Client) CreateBranch(ctx context.Context, repo event.Repo, branch string) error {
	base := repo.DefaultBranch
	if base == "" {
		base = "main"
	}

	baseRef, _, err := c.gh.Git.GetRef(ctx, repo.Owner, repo.Name, "heads/"+base)
	if err != nil {
		return fmt.Errorf("resolve %s head: %w", base, err)
	}

	if err := c.waitWrite(ctx); err != nil {
		return err
	}
	newRef := &gh.Reference{
		Ref:    gh.String("refs/heads/" + branch),
		Object: &gh.GitObject{SHA: baseRef.Object.SHA},
	}
	if _, _, err := c.gh.Git.CreateRef(ctx, repo.Owner, repo.Name, newRef); err != nil {
		return fmt.Errorf("create branch %s: %w", branch, err)
	}
	return nil
}

// CommitFiles writes each file to the branch through the contents API.
// Every write carries the same message and the author derived from the
// event. Paths commit in sorted order so runs are reproducible.
func (c *Client) CommitFiles(ctx context.Context, repo event.Repo, branch, message string, files map[string]string, author event.User) error {
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	commitAuthor := c.commitAuthor(author)

	for _, path := range paths {
		opts := &gh.RepositoryContentFileOptions{
			Message:   gh.String(message),
			Content:   []byte(files[path]),
			Branch:    gh.String(branch),
			Author:    commitAuthor,
			Committer: commitAuthor,
		}

		// The contents API needs the blob SHA to update an existing
		// file but rejects it on create.
		existing, _, resp, err := c.gh.Repositories.GetContents(ctx, repo.Owner, repo.Name, path,
			&gh.RepositoryContentGetOptions{Ref: branch})
		if err != nil {
			if resp == nil || resp.StatusCode != http.StatusNotFound {
				return fmt.Errorf("probe %s on %s: %w", path, branch, err)
			}
		} else if existing != nil {
			opts.SHA = existing.SHA
		}

		if err := c.waitWrite(ctx); err != nil {
			return err
		}
		if opts.SHA != nil {
			if _, _, err := c.gh.Repositories.UpdateFile(ctx, repo.Owner, repo.Name, path, opts); err != nil {
				return fmt.Errorf("update %s on %s: %w", path, branch, err)
			}
		} else {
			if _, _, err := c.gh.Repositories.CreateFile(ctx, repo.Owner, repo.Name, path, opts); err != nil {
				return fmt.Errorf("create %s on %s: %w", path, branch, err)
			}
		}
	}
	return nil
}

// OpenPullRequest opens a pull request and returns its HTML URL.
func (c *Client) OpenPullRequest(ctx context.Context, repo event.Repo, title, head, base, body string) (string, error) {
	if err := c.waitWrite(ctx); err != nil {
		return "", err
	}

	pr, _, err := c.gh.PullRequests.Create(ctx, repo.Owner, repo.Name, &gh.NewPullRequest{
		Title: gh.String(title),
		Head:  gh.String(head),
		Base:  gh.String(base),
		Body:  gh.String(body),
	})
	if err != nil {
		return "", fmt.Errorf("open pull request %s -> %s: %w", head, base, err)
	}
	return pr.GetHTMLURL(), nil
}
