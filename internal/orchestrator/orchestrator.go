// Package orchestrator coordinates the webhook intake with the
// per-event processing pipeline: it decides whether an event deserves
// a response, hands relevant events off for asynchronous processing,
// and answers the delivery immediately.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/joegemini/internal/conversation"
	"github.com/joegemini/internal/event"
	"github.com/joegemini/internal/gemini"
	"github.com/joegemini/internal/github"
)

// Scenario names for the two processing flows.
const (
	ScenarioReply      = "reply"
	ScenarioCodeChange = "code_change"
)

const defaultProcessTimeout = 3 * time.Minute

// Dispatcher hands an event off for durable asynchronous processing.
// The job queue implements it; without one, events run on a goroutine.
type Dispatcher interface {
	EnqueueEvent(ctx context.Context, evt event.Event) error
}

// Config carries the orchestrator's behavioral settings.
type Config struct {
	// BotUsername is the account the bot acts as. Mentions of it make
	// an event relevant; comments authored by it are ignored.
	BotUsername string

	// BranchPrefix heads every branch the bot pushes, typically
	// "joe-gemini/fix".
	BranchPrefix string

	// ProcessTimeout bounds one processing run when events are handled
	// inline instead of through the job queue.
	ProcessTimeout time.Duration
}

// Deps are the collaborators the orchestrator drives.
type Deps struct {
	Parser  *event.Parser
	Store   conversation.Store
	LLM     gemini.Generator
	Clients github.ClientFactory
}

// Orchestrator ties webhook intake to the processing pipeline.
type Orchestrator struct {
	cfg     Config
	parser  *event.Parser
	store   conversation.Store
	llm     gemini.Generator
	clients github.ClientFactory
	queue   Dispatcher
	stats   *Stats
	now     func() time.Time
	wg      sync.WaitGroup
}

// New creates an Orchestrator. The job queue is attached separately
// with UseQueue because the queue itself needs the orchestrator as its
// worker.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Parser == nil {
		return nil, fmt.Errorf("orchestrator: parser is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("orchestrator: conversation store is required")
	}
	if deps.LLM == nil {
		return nil, fmt.Errorf("orchestrator: generator is required")
	}
	if deps.Clients == nil {
		return nil, fmt.Errorf("orchestrator: client factory is required")
	}

	if cfg.BotUsername == "" {
		cfg.BotUsername = "joe-gemini"
	}
	if cfg.BranchPrefix == "" {
		cfg.BranchPrefix = cfg.BotUsername + "/fix"
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = defaultProcessTimeout
	}

	return &Orchestrator{
		cfg:     cfg,
		parser:  deps.Parser,
		store:   deps.Store,
		llm:     deps.LLM,
		clients: deps.Clients,
		stats:   &Stats{},
		now:     time.Now,
	}, nil
}

// UseQueue routes dispatch through a durable job queue instead of
// inline goroutines.
func (o *Orchestrator) UseQueue(queue Dispatcher) {
	o.queue = queue
	log.Printf("[INFO] Orchestrator dispatching through job queue")
}

// Ack is the immediate JSON response to a webhook delivery. Processing
// of accepted events continues after it is sent.
type Ack struct {
	Status         string  `json:"status"`
	Event          string  `json:"event,omitempty"`
	Scenario       string  `json:"scenario,omitempty"`
	Reason         string  `json:"reason,omitempty"`
	ResponseTimeMS float64 `json:"response_time_ms"`
}

// HandleWebhook runs the synchronous half of webhook handling: verify
// and parse the delivery, check whether it warrants a response, and
// dispatch it. Signature and payload errors are returned for the HTTP
// layer to map; everything else is acknowledged.
func (o *Orchestrator) HandleWebhook(r *http.Request) (*Ack, error) {
	start := time.Now()

	evt, err := o.parser.Parse(r)
	if err != nil {
		if errors.Is(err, event.ErrIgnored) {
			log.Printf("[DEBUG] Webhook filtered during conversion: %v", err)
			o.stats.RecordIgnored()
			return o.ack(start, &Ack{Status: "ignored", Reason: "filtered_during_conversion"}), nil
		}
		return nil, err
	}

	switch evt.Type {
	case event.TypePing:
		log.Printf("[INFO] Webhook ping received")
		return o.ack(start, &Ack{Status: "ok", Event: event.TypePing}), nil
	case event.TypePullRequest:
		log.Printf("[INFO] Acknowledging pull_request %s for %s#%d", evt.Action, evt.Repo.FullName, evt.Number)
		o.stats.RecordIgnored()
		return o.ack(start, &Ack{Status: "acknowledged", Event: evt.Type, Reason: "not_processed"}), nil
	}

	if evt.Author.IsBot(o.cfg.BotUsername) {
		log.Printf("[DEBUG] Ignoring comment authored by bot account %s", evt.Author.Login)
		o.stats.RecordIgnored()
		return o.ack(start, &Ack{Status: "ignored", Event: evt.Type, Reason: "bot_author"}), nil
	}

	if !o.warrantsResponse(r.Context(), evt) {
		log.Printf("[DEBUG] Event does not warrant a response: %s", evt.ThreadID())
		o.stats.RecordIgnored()
		return o.ack(start, &Ack{Status: "ignored", Event: evt.Type, Reason: "no_response_warrant"}), nil
	}

	scenario := o.Scenario(evt)
	log.Printf("[INFO] Response warranted for %s: scenario=%s", evt.ThreadID(), scenario)

	o.dispatch(r.Context(), evt)
	o.stats.RecordAccepted()

	return o.ack(start, &Ack{Status: "accepted", Event: evt.Type, Scenario: scenario}), nil
}

// warrantsResponse reports whether an issue_comment deserves
// processing: either the body mentions the bot or the thread is
// already part of a tracked conversation.
func (o *Orchestrator) warrantsResponse(ctx context.Context, evt *event.Event) bool {
	if event.Mentioned(evt.Body, o.cfg.BotUsername) {
		return true
	}

	tracked, err := o.store.Tracked(ctx, evt.ThreadID())
	if err != nil {
		// Degrade to mention-only behavior when the store is down.
		log.Printf("[WARN] Tracked lookup failed for %s: %v", evt.ThreadID(), err)
		return false
	}
	return tracked
}

// Scenario classifies the processing flow for an event: comments that
// ask for code work on an issue get the plan-then-code flow, everything
// else a conversational reply.
func (o *Orchestrator) Scenario(evt *event.Event) string {
	if !evt.IsPullRequest && event.WantsCodeChange(evt.Body) {
		return ScenarioCodeChange
	}
	return ScenarioReply
}

// dispatch hands the event off for processing. Queue insertion happens
// while the delivery is still open; inline processing runs detached
// with its own timeout.
func (o *Orchestrator) dispatch(ctx context.Context, evt *event.Event) {
	if o.queue != nil {
		err := o.queue.EnqueueEvent(ctx, *evt)
		if err == nil {
			return
		}
		log.Printf("[WARN] Failed to enqueue event %s, processing inline: %v", evt.DeliveryID, err)
	}

	o.wg.Add(1)
	go func(evt event.Event) {
		defer o.wg.Done()
		procCtx, cancel := context.WithTimeout(context.Background(), o.cfg.ProcessTimeout)
		defer cancel()
		if err := o.ProcessEvent(procCtx, evt); err != nil {
			log.Printf("[ERROR] Processing failed for %s: %v", evt.ThreadID(), err)
		}
	}(*evt)
}

// Wait blocks until all inline processing goroutines finish. Called
// during graceful shutdown so accepted events are not abandoned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) ack(start time.Time, ack *Ack) *Ack {
	ack.ResponseTimeMS = float64(time.Since(start).Nanoseconds()) / 1e6
	return ack
}
