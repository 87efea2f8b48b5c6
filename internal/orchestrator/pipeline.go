package orchestrator

import (
	"context"
	"fmt"
	"log"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/joegemini/internal/conversation"
	"github.com/joegemini/internal/event"
	"github.com/joegemini/internal/gemini"
	"github.com/joegemini/internal/github"
)

const (
	planHeader         = "🤖 **Agent Plan:**\n\n"
	analysisHeader     = "💡 **Analysis:**\n\n"
	commitFailedHeader = "⚠️ Generated changes but failed to commit. Here's what I planned:\n\n"
	failureComment     = "❌ Sorry, I couldn't process your request. Please try again."

	// maxFallbackChars bounds how much raw model output a fallback
	// comment carries.
	maxFallbackChars = 2000

	// maxPromptFiles caps how many repository files get loaded into a
	// code generation prompt.
	maxPromptFiles = 5
)

// ProcessEvent runs the full pipeline for one relevant event: record
// the inbound message, build the prompt context, generate, and dispatch
// the outcome. It satisfies the job queue's Processor interface.
func (o *Orchestrator) ProcessEvent(ctx context.Context, evt event.Event) error {
	start := time.Now()
	threadID := evt.ThreadID()
	log.Printf("[INFO] Processing event %s: %s comment by %s", evt.DeliveryID, threadID, evt.Author.Login)

	if err := o.store.Append(ctx, threadID, &conversation.Message{
		Actor:  conversation.ActorHuman,
		Author: evt.Author.Login,
		Body:   evt.Body,
	}); err != nil {
		o.stats.RecordFailed()
		return fmt.Errorf("failed to record inbound message for %s: %w", threadID, err)
	}

	gh, err := o.clients.InstallationClient(ctx, evt.InstallationID)
	if err != nil {
		o.stats.RecordFailed()
		return fmt.Errorf("failed to authenticate installation %d: %w", evt.InstallationID, err)
	}

	thread, err := o.store.Get(ctx, threadID)
	if err != nil {
		o.stats.RecordFailed()
		return fmt.Errorf("failed to load conversation %s: %w", threadID, err)
	}

	in := gemini.Input{
		BotUsername:   o.cfg.BotUsername,
		RepoFullName:  evt.Repo.FullName,
		Number:        evt.Number,
		IsPullRequest: evt.IsPullRequest,
		Transcript:    thread.Messages,
		Request:       evt.Body,
		RequestAuthor: evt.Author.Login,
	}

	if evt.IsPullRequest {
		diff, err := gh.PullRequestContext(ctx, evt.Repo, evt.Number)
		if err != nil {
			log.Printf("[WARN] Failed to fetch PR context for %s, continuing without it: %v", threadID, err)
		} else {
			in.PullRequestDiff = diff
		}
	}

	var flowErr error
	if o.Scenario(&evt) == ScenarioCodeChange {
		flowErr = o.runCodeChangeFlow(ctx, gh, &evt, in)
	} else {
		flowErr = o.runReplyFlow(ctx, gh, &evt, in)
	}
	if flowErr != nil {
		o.stats.RecordFailed()
		o.postFailureComment(ctx, gh, &evt)
		return flowErr
	}

	o.stats.RecordProcessed()
	log.Printf("[INFO] Event %s processed in %.2fs", evt.DeliveryID, time.Since(start).Seconds())
	return nil
}

// runReplyFlow generates one conversational answer and posts it as a
// comment. Exactly one generation call.
func (o *Orchestrator) runReplyFlow(ctx context.Context, gh github.Actions, evt *event.Event, in gemini.Input) error {
	reply, err := o.llm.GenerateReply(ctx, gemini.BuildReplyPrompt(in))
	if err != nil {
		return fmt.Errorf("reply generation failed: %w", err)
	}

	if err := gh.PostComment(ctx, evt.Repo, evt.Number, reply); err != nil {
		return fmt.Errorf("failed to post reply: %w", err)
	}

	o.recordBotMessage(ctx, evt, reply)
	return nil
}

// runCodeChangeFlow runs plan-then-code: a plan is generated and posted
// first, then the change set is generated against real file contents
// and applied as branch, commits, and pull request. Unparseable model
// output degrades to an analysis comment and commit failures to a
// warning comment, so at most one repository write path runs.
func (o *Orchestrator) runCodeChangeFlow(ctx context.Context, gh github.Actions, evt *event.Event, in gemini.Input) error {
	plan, err := o.llm.GenerateReply(ctx, gemini.BuildPlanPrompt(in))
	if err != nil {
		return fmt.Errorf("plan generation failed: %w", err)
	}

	planComment := planHeader + plan
	if err := gh.PostComment(ctx, evt.Repo, evt.Number, planComment); err != nil {
		return fmt.Errorf("failed to post plan: %w", err)
	}
	o.recordBotMessage(ctx, evt, planComment)

	in.Plan = plan
	in.Files = o.fetchReferencedFiles(ctx, gh, evt, plan+"\n"+evt.Body)

	raw, err := o.llm.GenerateCode(ctx, gemini.BuildCodePrompt(in))
	if err != nil {
		return fmt.Errorf("code generation failed: %w", err)
	}

	intent, err := gemini.ParseCodeChange(raw)
	if err != nil {
		log.Printf("[WARN] Could not parse change set for %s: %v", evt.ThreadID(), err)
		analysis := analysisHeader + truncateBody(raw, maxFallbackChars)
		if err := gh.PostComment(ctx, evt.Repo, evt.Number, analysis); err != nil {
			return fmt.Errorf("failed to post analysis comment: %w", err)
		}
		o.recordBotMessage(ctx, evt, analysis)
		return nil
	}

	branch := o.branchName(evt)
	prURL, err := o.applyChange(ctx, gh, evt, branch, intent)
	if err != nil {
		log.Printf("[ERROR] Failed to apply change set for %s: %v", evt.ThreadID(), err)
		warning := commitFailedHeader + truncateBody(raw, maxFallbackChars)
		if postErr := gh.PostComment(ctx, evt.Repo, evt.Number, warning); postErr != nil {
			return fmt.Errorf("failed to post commit-failure comment: %w", postErr)
		}
		o.recordBotMessage(ctx, evt, warning)
		return nil
	}

	success := fmt.Sprintf("✅ Opened [a pull request](%s) from `%s`\n\n**Changes:**\n%s",
		prURL, branch, intent.Explanation)
	if err := gh.PostComment(ctx, evt.Repo, evt.Number, success); err != nil {
		return fmt.Errorf("failed to post success comment: %w", err)
	}
	o.recordBotMessage(ctx, evt, success)
	return nil
}

// applyChange executes the repository write path: branch from the
// default branch head, commit every file, open the pull request.
func (o *Orchestrator) applyChange(ctx context.Context, gh github.Actions, evt *event.Event, branch string, intent gemini.Intent) (string, error) {
	if err := gh.CreateBranch(ctx, evt.Repo, branch); err != nil {
		return "", fmt.Errorf("failed to create branch %s: %w", branch, err)
	}

	message := fmt.Sprintf("[%s] %s", o.cfg.BotUsername, intent.Explanation)
	if err := gh.CommitFiles(ctx, evt.Repo, branch, message, intent.Files, evt.Author); err != nil {
		return "", fmt.Errorf("failed to commit files to %s: %w", branch, err)
	}

	base := evt.Repo.DefaultBranch
	if base == "" {
		base = "main"
	}
	title := fmt.Sprintf("[%s] %s", o.cfg.BotUsername, intent.Explanation)
	body := fmt.Sprintf("%s\n\nRequested by @%s in #%d.", intent.Explanation, evt.Author.Login, evt.Number)

	prURL, err := gh.OpenPullRequest(ctx, evt.Repo, title, branch, base, body)
	if err != nil {
		return "", fmt.Errorf("failed to open pull request from %s: %w", branch, err)
	}
	return prURL, nil
}

func (o *Orchestrator) branchName(evt *event.Event) string {
	return fmt.Sprintf("%s-%d-%d", o.cfg.BranchPrefix, evt.Number, o.now().Unix())
}

// recordBotMessage appends the bot's own output to the thread. The
// comment is already posted at this point, so a store failure only
// logs.
func (o *Orchestrator) recordBotMessage(ctx context.Context, evt *event.Event, body string) {
	err := o.store.Append(ctx, evt.ThreadID(), &conversation.Message{
		Actor:  conversation.ActorAI,
		Author: o.cfg.BotUsername,
		Body:   body,
	})
	if err != nil {
		log.Printf("[WARN] Failed to record bot message for %s: %v", evt.ThreadID(), err)
	}
}

// postFailureComment tells the thread that processing failed. Best
// effort, since posting can fail for the same reason processing did.
func (o *Orchestrator) postFailureComment(ctx context.Context, gh github.Actions, evt *event.Event) {
	if err := gh.PostComment(ctx, evt.Repo, evt.Number, failureComment); err != nil {
		log.Printf("[ERROR] Failed to post failure comment for %s: %v", evt.ThreadID(), err)
	}
}

var filePathPattern = regexp.MustCompile(`[A-Za-z0-9_\-/.]*[A-Za-z0-9_\-]\.[A-Za-z0-9]{1,12}`)

// fetchReferencedFiles loads current content for repository paths the
// plan or the request names, so the code prompt edits real files
// instead of inventing them. Unreadable paths are skipped.
func (o *Orchestrator) fetchReferencedFiles(ctx context.Context, gh github.Actions, evt *event.Event, text string) map[string]string {
	files := make(map[string]string)
	seen := make(map[string]bool)

	for _, token := range filePathPattern.FindAllString(text, -1) {
		if len(files) >= maxPromptFiles {
			break
		}

		clean := path.Clean(strings.TrimPrefix(token, "./"))
		if clean == "." || strings.HasPrefix(clean, "/") || strings.HasPrefix(clean, "..") {
			continue
		}
		if seen[clean] {
			continue
		}
		seen[clean] = true

		content, err := gh.ReadFile(ctx, evt.Repo, clean)
		if err != nil {
			log.Printf("[DEBUG] Skipping unreadable file %s: %v", clean, err)
			continue
		}
		files[clean] = content
	}

	return files
}

func truncateBody(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
