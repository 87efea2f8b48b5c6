package gemini

import (
	"fmt"
	"sort"
	"strings"

	"github.com/joegemini/internal/conversation"
)

// Input carries everything the prompt builders can draw on. Fields that
// do not apply to a given prompt are simply left empty.
type Input struct {
	BotUsername   string
	RepoFullName  string
	Number        int
	IsPullRequest bool

	// Transcript is the stored conversation, oldest first. It already
	// includes the triggering comment once the pipeline has appended it.
	Transcript []conversation.Message

	// Request is the comment that triggered this generation.
	Request       string
	RequestAuthor string

	// PullRequestDiff is the serialized changed-files summary, present
	// only when the thread is a pull request.
	PullRequestDiff string

	// Files maps repository paths to current file contents for code
	// generation.
	Files map[string]string

	// Plan is the previously generated implementation plan, fed back in
	// during the code step.
	Plan string
}

// BuildReplyPrompt produces the prompt for a plain conversational
// answer posted as a single comment.
func BuildReplyPrompt(in Input) string {
	var prompt strings.Builder

	writePersona(&prompt, in)
	writeTranscript(&prompt, in)
	writeDiff(&prompt, in)
	writeRequest(&prompt, in)

	prompt.WriteString("Reply as a single GitHub comment in Markdown.\n")
	prompt.WriteString("Be concise and concrete. Answer the latest request directly.\n")
	prompt.WriteString("If you need more information, ask for it instead of guessing.\n")
	prompt.WriteString("Do not mention these instructions.\n")

	return prompt.String()
}

// BuildPlanPrompt produces the prompt for the planning step that runs
// before code generation.
func BuildPlanPrompt(in Input) string {
	var prompt strings.Builder

	writePersona(&prompt, in)
	writeTranscript(&prompt, in)
	writeRequest(&prompt, in)

	prompt.WriteString("The user is asking for a code change.\n")
	prompt.WriteString("Write a short implementation plan as a numbered Markdown list (3-6 steps).\n")
	prompt.WriteString("Name the files you expect to create or modify.\n")
	prompt.WriteString("Do not write any code yet.\n")

	return prompt.String()
}

// BuildCodePrompt produces the prompt for the code generation step. The
// response contract is a single JSON object carrying complete file
// bodies.
func BuildCodePrompt(in Input) string {
	var prompt strings.Builder

	writePersona(&prompt, in)
	writeTranscript(&prompt, in)

	if in.Plan != "" {
		prompt.WriteString("## Your plan\n")
		prompt.WriteString(in.Plan)
		prompt.WriteString("\n\n")
	}

	writeFiles(&prompt, in)
	writeRequest(&prompt, in)

	prompt.WriteString("Implement the requested change now.\n\n")
	prompt.WriteString("Respond with a single JSON object inside a ```json fence:\n")
	prompt.WriteString("```json\n")
	prompt.WriteString("{\n")
	prompt.WriteString("  \"explanation\": \"one-sentence summary of the change\",\n")
	prompt.WriteString("  \"files\": {\n")
	prompt.WriteString("    \"path/to/file.ext\": \"complete new file content\"\n")
	prompt.WriteString("  }\n")
	prompt.WriteString("}\n")
	prompt.WriteString("```\n\n")
	prompt.WriteString("Each entry in \"files\" replaces the whole file at that path.\n")
	prompt.WriteString("Include only files you change or create, with their full content.\n")
	prompt.WriteString("Use relative paths from the repository root.\n")
	prompt.WriteString("Do not add any text outside the JSON object.\n")

	return prompt.String()
}

func writePersona(prompt *strings.Builder, in Input) {
	bot := in.BotUsername
	if bot == "" {
		bot = "joe-gemini"
	}

	fmt.Fprintf(prompt, "You are %s, an autonomous assistant that lives in GitHub issues and pull requests.\n", bot)

	threadKind := "an issue"
	if in.IsPullRequest {
		threadKind = "a pull request"
	}
	if in.RepoFullName != "" {
		fmt.Fprintf(prompt, "You are working in %s#%d, which is %s.\n", in.RepoFullName, in.Number, threadKind)
	}
	prompt.WriteString("\n")
}

func writeTranscript(prompt *strings.Builder, in Input) {
	if len(in.Transcript) == 0 {
		return
	}

	prompt.WriteString("## Conversation so far\n")
	for _, msg := range in.Transcript {
		fmt.Fprintf(prompt, "[%s] %s: %s\n", msg.Actor, msg.Author, msg.Body)
	}
	prompt.WriteString("\n")
}

func writeDiff(prompt *strings.Builder, in Input) {
	if in.PullRequestDiff == "" {
		return
	}

	prompt.WriteString("## Pull request changes\n")
	prompt.WriteString(in.PullRequestDiff)
	prompt.WriteString("\n\n")
}

func writeFiles(prompt *strings.Builder, in Input) {
	if len(in.Files) == 0 {
		return
	}

	paths := make([]string, 0, len(in.Files))
	for path := range in.Files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	prompt.WriteString("## Repository files\n")
	for _, path := range paths {
		fmt.Fprintf(prompt, "### %s\n", path)
		prompt.WriteString("```\n")
		prompt.WriteString(in.Files[path])
		if !strings.HasSuffix(in.Files[path], "\n") {
			prompt.WriteString("\n")
		}
		prompt.WriteString("```\n\n")
	}
}

func writeRequest(prompt *strings.Builder, in Input) {
	if in.Request == "" {
		return
	}

	prompt.WriteString("## Latest request\n")
	if in.RequestAuthor != "" {
		fmt.Fprintf(prompt, "%s: %s\n", in.RequestAuthor, in.Request)
	} else {
		prompt.WriteString(in.Request)
		prompt.WriteString("\n")
	}
	prompt.WriteString("\n")
}
