package event

import (
	"fmt"
	"time"
)

// Type names for the webhook events the bot understands.
const (
	TypeIssueComment = "issue_comment"
	TypePullRequest  = "pull_request"
	TypePing         = "ping"
)

// Event is one inbound webhook notification, normalized from the GitHub
// payload. It is read-only after conversion and carries everything the
// processing pipeline needs, so it can be serialized into a job queue.
type Event struct {
	DeliveryID     string    `json:"delivery_id"`
	Type           string    `json:"type"`
	Action         string    `json:"action"`
	Repo           Repo      `json:"repo"`
	Author         User      `json:"author"`
	Body           string    `json:"body"`
	Number         int       `json:"number"`
	IsPullRequest  bool      `json:"is_pull_request"`
	CommentID      int64     `json:"comment_id,omitempty"`
	HTMLURL        string    `json:"html_url,omitempty"`
	InstallationID int64     `json:"installation_id"`
	ReceivedAt     time.Time `json:"received_at"`
}

// Repo identifies the repository an event belongs to.
type Repo struct {
	ID            int64  `json:"id"`
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
}

// User is the comment or event author.
type User struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Type  string `json:"type,omitempty"`
}

// IsBot reports whether the user is a GitHub App actor or matches the
// configured bot username. Used to keep the bot from replying to itself.
func (u User) IsBot(botUsername string) bool {
	if u.Type == "Bot" {
		return true
	}
	login := u.Login
	if login == botUsername || login == botUsername+"[bot]" {
		return true
	}
	return false
}

// ThreadID returns the conversation key for the issue or pull request
// this event belongs to, in the form "owner/repo#number".
func (e *Event) ThreadID() string {
	return fmt.Sprintf("%s#%d", e.Repo.FullName, e.Number)
}
