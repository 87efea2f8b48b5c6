package event

// Wire structs for the GitHub webhook payload fields the bot reads.
// Conversion works from the raw body so the full payload shape stays in
// one place regardless of how the event was routed.

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Type  string `json:"type"`
}

type githubRepository struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	FullName      string     `json:"full_name"`
	DefaultBranch string     `json:"default_branch"`
	Owner         githubUser `json:"owner"`
}

type githubInstallation struct {
	ID int64 `json:"id"`
}

type githubComment struct {
	ID      int64      `json:"id"`
	HTMLURL string     `json:"html_url"`
	User    githubUser `json:"user"`
	Body    string     `json:"body"`
}

type githubIssue struct {
	ID      int64      `json:"id"`
	Number  int        `json:"number"`
	Title   string     `json:"title"`
	HTMLURL string     `json:"html_url"`
	User    githubUser `json:"user"`
	// Present only when the issue is actually a pull request.
	PullRequest *struct {
		URL string `json:"url"`
	} `json:"pull_request"`
}

type githubPullRequest struct {
	ID      int64      `json:"id"`
	Number  int        `json:"number"`
	Title   string     `json:"title"`
	Body    string     `json:"body"`
	HTMLURL string     `json:"html_url"`
	User    githubUser `json:"user"`
	Base    struct {
		Ref string `json:"ref"`
	} `json:"base"`
	Head struct {
		Ref string `json:"ref"`
	} `json:"head"`
}

type githubIssueCommentPayload struct {
	Action       string             `json:"action"`
	Issue        githubIssue        `json:"issue"`
	Comment      githubComment      `json:"comment"`
	Repository   githubRepository   `json:"repository"`
	Sender       githubUser         `json:"sender"`
	Installation githubInstallation `json:"installation"`
}

type githubPullRequestPayload struct {
	Action       string             `json:"action"`
	Number       int                `json:"number"`
	PullRequest  githubPullRequest  `json:"pull_request"`
	Repository   githubRepository   `json:"repository"`
	Sender       githubUser         `json:"sender"`
	Installation githubInstallation `json:"installation"`
}
