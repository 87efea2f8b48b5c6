package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	gh "github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/joegemini/internal/event"
)

func testRepo() event.Repo {
	return event.Repo{
		ID:            1296269,
		Owner:         "octocat",
		Name:          "hello-world",
		FullName:      "octocat/hello-world",
		DefaultBranch: "main",
	}
}

// newTestClient wires a Client to a local fake of the GitHub REST API.
func newTestClient(t *testing.T, commitName, commitEmail string) (*Client, *http.ServeMux) {
	t.Helper()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	sdk := gh.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	sdk.BaseURL = base
	sdk.UploadURL = base

	client := newClient(sdk, commitName, commitEmail)
	client.limiter = rate.NewLimiter(rate.Inf, 0)
	return client, mux
}

type fileWrite struct {
	Message   string `json:"message"`
	Content   string `json:"content"`
	Branch    string `json:"branch"`
	SHA       string `json:"sha"`
	Author    *gh.CommitAuthor
	Committer *gh.CommitAuthor
}

func TestPostComment(t *testing.T) {
	client, mux := newTestClient(t, "", "")

	var posted string
	mux.HandleFunc("/repos/octocat/hello-world/issues/42/comments", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var body struct {
			Body string `json:"body"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		posted = body.Body

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": 1}`))
	})

	err := client.PostComment(context.Background(), testRepo(), 42, "Happy to help.")
	require.NoError(t, err)
	assert.Equal(t, "Happy to help.", posted)
}

func TestCreateBranch(t *testing.T) {
	client, mux := newTestClient(t, "", "")

	mux.HandleFunc("/repos/octocat/hello-world/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte(`{"ref": "refs/heads/main", "object": {"sha": "abc123", "type": "commit"}}`))
	})

	var created struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	}
	mux.HandleFunc("/repos/octocat/hello-world/git/refs", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&created))

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ref": "` + created.Ref + `", "object": {"sha": "abc123"}}`))
	})

	err := client.CreateBranch(context.Background(), testRepo(), "joe-gemini/fix-42-1712000000")
	require.NoError(t, err)

	assert.Equal(t, "refs/heads/joe-gemini/fix-42-1712000000", created.Ref)
	assert.Equal(t, "abc123", created.SHA)
}

func TestCommitFiles(t *testing.T) {
	client, mux := newTestClient(t, "", "")

	var order []string
	writes := map[string]fileWrite{}

	handleContents := func(path, getResponse string, getStatus int) {
		mux.HandleFunc("/repos/octocat/hello-world/contents/"+path, func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				assert.Equal(t, "work-branch", r.URL.Query().Get("ref"))
				w.WriteHeader(getStatus)
				w.Write([]byte(getResponse))
			case http.MethodPut:
				var write fileWrite
				require.NoError(t, json.NewDecoder(r.Body).Decode(&write))
				order = append(order, path)
				writes[path] = write
				w.Write([]byte(`{"content": {"sha": "newsha"}}`))
			default:
				t.Fatalf("unexpected method %s for %s", r.Method, path)
			}
		})
	}

	handleContents("README.md", `{"type": "file", "name": "README.md", "path": "README.md", "sha": "oldsha"}`, http.StatusOK)
	handleContents("docs/new.md", `{"message": "Not Found"}`, http.StatusNotFound)

	files := map[string]string{
		"docs/new.md": "brand new\n",
		"README.md":   "# Hello World\n",
	}
	author := event.User{ID: 583231, Login: "octocat"}

	err := client.CommitFiles(context.Background(), testRepo(), "work-branch", "[joe-gemini] Fix the typo", files, author)
	require.NoError(t, err)

	require.Equal(t, []string{"README.md", "docs/new.md"}, order)

	readme := writes["README.md"]
	assert.Equal(t, "[joe-gemini] Fix the typo", readme.Message)
	assert.Equal(t, "work-branch", readme.Branch)
	assert.Equal(t, "oldsha", readme.SHA, "existing file update needs the blob SHA")

	decoded, err := base64.StdEncoding.DecodeString(readme.Content)
	require.NoError(t, err)
	assert.Equal(t, "# Hello World\n", string(decoded))

	require.NotNil(t, readme.Author)
	assert.Equal(t, "octocat", readme.Author.GetName())
	assert.Equal(t, "583231+octocat@users.noreply.github.com", readme.Author.GetEmail())

	assert.Empty(t, writes["docs/new.md"].SHA, "new file create must not send a SHA")
}

func TestCommitFiles_ConfiguredIdentity(t *testing.T) {
	client, mux := newTestClient(t, "Release Bot", "bots@example.com")

	var write fileWrite
	mux.HandleFunc("/repos/octocat/hello-world/contents/a.txt", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message": "Not Found"}`))
		case http.MethodPut:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&write))
			w.Write([]byte(`{"content": {"sha": "newsha"}}`))
		}
	})

	err := client.CommitFiles(context.Background(), testRepo(), "work-branch", "msg",
		map[string]string{"a.txt": "a"}, event.User{ID: 583231, Login: "octocat"})
	require.NoError(t, err)

	require.NotNil(t, write.Author)
	assert.Equal(t, "Release Bot", write.Author.GetName())
	assert.Equal(t, "bots@example.com", write.Author.GetEmail())
}

func TestOpenPullRequest(t *testing.T) {
	client, mux := newTestClient(t, "", "")

	var created struct {
		Title string `json:"title"`
		Head  string `json:"head"`
		Base  string `json:"base"`
		Body  string `json:"body"`
	}
	mux.HandleFunc("/repos/octocat/hello-world/pulls", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&created))

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"number": 7, "html_url": "https://github.com/octocat/hello-world/pull/7"}`))
	})

	prURL, err := client.OpenPullRequest(context.Background(), testRepo(),
		"[joe-gemini] Fix the typo", "work-branch", "main", "Automated change")
	require.NoError(t, err)

	assert.Equal(t, "https://github.com/octocat/hello-world/pull/7", prURL)
	assert.Equal(t, "[joe-gemini] Fix the typo", created.Title)
	assert.Equal(t, "work-branch", created.Head)
	assert.Equal(t, "main", created.Base)
	assert.Equal(t, "Automated change", created.Body)
}
