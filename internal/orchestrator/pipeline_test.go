package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joegemini/internal/event"
)

func makeEvent(body string, isPR bool) event.Event {
	return event.Event{
		DeliveryID: "delivery-1",
		Type:       event.TypeIssueComment,
		Action:     "created",
		Repo: event.Repo{
			ID:            1296269,
			Owner:         "octocat",
			Name:          "hello-world",
			FullName:      "octocat/hello-world",
			DefaultBranch: "main",
		},
		Author:         event.User{ID: 583231, Login: "octocat", Type: "User"},
		Body:           body,
		Number:         42,
		IsPullRequest:  isPR,
		InstallationID: 55443322,
		ReceivedAt:     time.Now().UTC(),
	}
}

func TestProcessEvent_ReplyFlow(t *testing.T) {
	h := newHarness(t)
	h.llm.replies = []string{"The parser verifies signatures and normalizes payloads."}

	evt := makeEvent("@joe-gemini what does the parser do?", false)
	err := h.orch.ProcessEvent(context.Background(), evt)
	require.NoError(t, err)

	assert.Equal(t, 1, h.llm.replyCalls)
	assert.Zero(t, h.llm.codeCalls)

	require.Len(t, h.actions.comments, 1)
	assert.Equal(t, "The parser verifies signatures and normalizes payloads.", h.actions.comments[0])
	assert.Empty(t, h.actions.branches)
	assert.Empty(t, h.actions.pulls)

	prompt := h.llm.replyPrompts[0]
	assert.Contains(t, prompt, "## Conversation so far")
	assert.Contains(t, prompt, "[human] octocat: @joe-gemini what does the parser do?")
	assert.Contains(t, prompt, "which is an issue")

	thread, err := h.store.Get(context.Background(), "octocat/hello-world#42")
	require.NoError(t, err)
	require.Len(t, thread.Messages, 2)
	assert.Equal(t, "octocat", thread.Messages[0].Author)
	assert.Equal(t, "joe-gemini", thread.Messages[1].Author)
	assert.Equal(t, h.actions.comments[0], thread.Messages[1].Body)

	assert.Equal(t, int64(1), h.orch.StatsSnapshot().Processed)
}

func TestProcessEvent_CodeChangeFlow(t *testing.T) {
	h := newHarness(t)
	h.actions.repoFiles["README.md"] = "# Helo World\n"
	h.llm.replies = []string{"1. Correct the heading in README.md\n2. Keep everything else unchanged"}
	h.llm.codes = []string{"```json\n{\"explanation\": \"Fix the README typo\", \"files\": {\"README.md\": \"# Hello World\\n\"}}\n```"}

	evt := makeEvent("@joe-gemini please fix the typo in README.md", false)
	err := h.orch.ProcessEvent(context.Background(), evt)
	require.NoError(t, err)

	// One plan call, one code call.
	assert.Equal(t, 1, h.llm.replyCalls)
	assert.Equal(t, 1, h.llm.codeCalls)

	require.Len(t, h.actions.comments, 2)
	assert.True(t, strings.HasPrefix(h.actions.comments[0], "🤖 **Agent Plan:**\n\n"))
	assert.Contains(t, h.actions.comments[0], "Correct the heading in README.md")

	require.Len(t, h.actions.branches, 1)
	branch := h.actions.branches[0]
	assert.Equal(t, "joe-gemini/fix-42-1712000000", branch)

	require.Len(t, h.actions.commits, 1)
	commit := h.actions.commits[0]
	assert.Equal(t, branch, commit.branch)
	assert.Equal(t, "[joe-gemini] Fix the README typo", commit.message)
	assert.Equal(t, map[string]string{"README.md": "# Hello World\n"}, commit.files)
	assert.Equal(t, "octocat", commit.author.Login)

	require.Len(t, h.actions.pulls, 1)
	pull := h.actions.pulls[0]
	assert.Equal(t, "[joe-gemini] Fix the README typo", pull.title)
	assert.Equal(t, branch, pull.head)
	assert.Equal(t, "main", pull.base)
	assert.Contains(t, pull.body, "Requested by @octocat in #42")

	success := h.actions.comments[1]
	assert.True(t, strings.HasPrefix(success, "✅ Opened [a pull request]"))
	assert.Contains(t, success, "https://github.com/octocat/hello-world/pull/99")
	assert.Contains(t, success, "`"+branch+"`")
	assert.Contains(t, success, "Fix the README typo")

	// The code prompt carries the plan and the real file content.
	codePrompt := h.llm.codePrompts[0]
	assert.Contains(t, codePrompt, "## Your plan")
	assert.Contains(t, codePrompt, "### README.md")
	assert.Contains(t, codePrompt, "# Helo World")

	thread, err := h.store.Get(context.Background(), "octocat/hello-world#42")
	require.NoError(t, err)
	assert.Len(t, thread.Messages, 3)
}

func TestProcessEvent_UnparseableCodeFallsBack(t *testing.T) {
	h := newHarness(t)
	h.llm.replies = []string{"1. Look at the settings module"}
	h.llm.codes = []string{"I would suggest restructuring the settings module first."}

	evt := makeEvent("@joe-gemini please refactor the settings module", false)
	err := h.orch.ProcessEvent(context.Background(), evt)
	require.NoError(t, err)

	require.Len(t, h.actions.comments, 2)
	analysis := h.actions.comments[1]
	assert.True(t, strings.HasPrefix(analysis, "💡 **Analysis:**\n\n"))
	assert.Contains(t, analysis, "restructuring the settings module")

	// No repository write path ran.
	assert.Empty(t, h.actions.branches)
	assert.Empty(t, h.actions.commits)
	assert.Empty(t, h.actions.pulls)

	assert.Equal(t, int64(1), h.orch.StatsSnapshot().Processed)
}

func TestProcessEvent_CommitFailurePostsWarning(t *testing.T) {
	h := newHarness(t)
	h.actions.commitErr = errors.New("422 validation failed")
	h.llm.replies = []string{"1. Update the version constant"}
	h.llm.codes = []string{"{\"explanation\": \"Bump version\", \"files\": {\"version.go\": \"package main\\n\"}}"}

	evt := makeEvent("@joe-gemini update the version number", false)
	err := h.orch.ProcessEvent(context.Background(), evt)
	require.NoError(t, err)

	require.Len(t, h.actions.comments, 2)
	warning := h.actions.comments[1]
	assert.True(t, strings.HasPrefix(warning, "⚠️ Generated changes but failed to commit."))
	assert.Contains(t, warning, "Bump version")

	require.Len(t, h.actions.branches, 1)
	assert.Empty(t, h.actions.commits)
	assert.Empty(t, h.actions.pulls)
}

func TestProcessEvent_GenerationFailurePostsError(t *testing.T) {
	h := newHarness(t)
	h.llm.replyErr = errors.New("429 resource exhausted")

	evt := makeEvent("@joe-gemini what is the release cadence?", false)
	err := h.orch.ProcessEvent(context.Background(), evt)
	require.Error(t, err)

	require.Len(t, h.actions.comments, 1)
	assert.Equal(t, "❌ Sorry, I couldn't process your request. Please try again.", h.actions.comments[0])
	assert.Equal(t, int64(1), h.orch.StatsSnapshot().Failed)
}

func TestProcessEvent_PullRequestThreadGetsDiffContext(t *testing.T) {
	h := newHarness(t)
	h.actions.prContext = "PR Title: Add response caching\nPR Description: speeds up hot paths\nFiles Changed:\n- cache.go (added, +120/-0)"
	h.llm.replies = []string{"The cache keys on request URL plus headers."}

	// "change" reads as a code keyword, but pull request threads always
	// get the reply flow.
	evt := makeEvent("@joe-gemini can you explain this change?", true)
	err := h.orch.ProcessEvent(context.Background(), evt)
	require.NoError(t, err)

	assert.Equal(t, 1, h.llm.replyCalls)
	assert.Zero(t, h.llm.codeCalls)
	assert.Empty(t, h.actions.branches)

	prompt := h.llm.replyPrompts[0]
	assert.Contains(t, prompt, "which is a pull request")
	assert.Contains(t, prompt, "## Pull request changes")
	assert.Contains(t, prompt, "PR Title: Add response caching")
}

func TestProcessEvent_DiffFetchFailureTolerated(t *testing.T) {
	h := newHarness(t)
	h.actions.prContextErr = errors.New("502 bad gateway")
	h.llm.replies = []string{"Hard to say without the diff."}

	evt := makeEvent("@joe-gemini thoughts on this?", true)
	err := h.orch.ProcessEvent(context.Background(), evt)
	require.NoError(t, err)

	require.Len(t, h.actions.comments, 1)
	assert.NotContains(t, h.llm.replyPrompts[0], "## Pull request changes")
}

func TestProcessEvent_ContextGrowsAcrossEvents(t *testing.T) {
	h := newHarness(t)
	h.llm.replies = []string{"Start with the parser.", "Then wire the store."}

	first := makeEvent("@joe-gemini how should we approach this?", false)
	require.NoError(t, h.orch.ProcessEvent(context.Background(), first))

	thread, err := h.store.Get(context.Background(), "octocat/hello-world#42")
	require.NoError(t, err)
	assert.Len(t, thread.Messages, 2)

	second := makeEvent("thanks, and after that?", false)
	require.NoError(t, h.orch.ProcessEvent(context.Background(), second))

	thread, err = h.store.Get(context.Background(), "octocat/hello-world#42")
	require.NoError(t, err)
	assert.Len(t, thread.Messages, 4)
	for i, msg := range thread.Messages {
		assert.Equal(t, i+1, msg.Seq)
	}

	// The second generation sees the whole first exchange.
	secondPrompt := h.llm.replyPrompts[1]
	assert.Contains(t, secondPrompt, "how should we approach this?")
	assert.Contains(t, secondPrompt, "Start with the parser.")
	assert.Contains(t, secondPrompt, "thanks, and after that?")
}

func TestProcessEvent_InstallationAuthFailure(t *testing.T) {
	h := newHarness(t)
	h.factory.err = errors.New("401 bad credentials")

	evt := makeEvent("@joe-gemini hello?", false)
	err := h.orch.ProcessEvent(context.Background(), evt)
	require.Error(t, err)

	assert.Zero(t, h.llm.replyCalls)
	assert.Zero(t, h.llm.codeCalls)
	assert.Empty(t, h.actions.comments)
	assert.Equal(t, int64(1), h.orch.StatsSnapshot().Failed)
}

func TestFetchReferencedFiles(t *testing.T) {
	h := newHarness(t)
	h.actions.repoFiles = map[string]string{
		"src/main.go":   "package main\n",
		"docs/guide.md": "# Guide\n",
	}

	evt := makeEvent("irrelevant", false)
	text := "Update `src/main.go` and docs/guide.md, drop missing.txt. See https://example.com/shot.png for context."
	files := h.orch.fetchReferencedFiles(context.Background(), h.actions, &evt, text)

	assert.Equal(t, map[string]string{
		"src/main.go":   "package main\n",
		"docs/guide.md": "# Guide\n",
	}, files)
	assert.Contains(t, h.actions.readCalls, "missing.txt")
}

func TestFetchReferencedFiles_CapsAtLimit(t *testing.T) {
	h := newHarness(t)
	var text strings.Builder
	for i := 1; i <= 8; i++ {
		name := fmt.Sprintf("pkg/file%d.go", i)
		h.actions.repoFiles[name] = "package pkg\n"
		fmt.Fprintf(&text, "Touch %s. ", name)
	}

	evt := makeEvent("irrelevant", false)
	files := h.orch.fetchReferencedFiles(context.Background(), h.actions, &evt, text.String())

	assert.Len(t, files, maxPromptFiles)
}

func TestTruncateBody(t *testing.T) {
	long := strings.Repeat("x", maxFallbackChars+500)
	assert.Len(t, truncateBody(long, maxFallbackChars), maxFallbackChars)
	assert.Equal(t, "short", truncateBody("short", maxFallbackChars))
}
