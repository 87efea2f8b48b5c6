package event

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	ghwebhooks "github.com/go-playground/webhooks/v6/github"
)

// Parser verifies and normalizes inbound GitHub webhook requests.
type Parser struct {
	hook     *ghwebhooks.Webhook
	unsigned *ghwebhooks.Webhook
	secret   string
}

var parsedEvents = []ghwebhooks.Event{
	ghwebhooks.IssueCommentEvent,
	ghwebhooks.PullRequestEvent,
	ghwebhooks.PingEvent,
}

// NewParser returns a Parser that validates payloads against secret.
func NewParser(secret string) (*Parser, error) {
	hook, err := ghwebhooks.New(ghwebhooks.Options.Secret(secret))
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook parser: %w", err)
	}
	unsigned, err := ghwebhooks.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create fallback webhook parser: %w", err)
	}
	return &Parser{hook: hook, unsigned: unsigned, secret: secret}, nil
}

// Parse reads the request, verifies its signature, and converts the
// payload into an Event. Returns ErrBadSignature for verification
// failures and ErrIgnored (wrapped) for event types and actions the bot
// does not act on.
func (p *Parser) Parse(r *http.Request) (*Event, error) {
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewReader(rawBody))

	payload, err := p.hook.Parse(r, parsedEvents...)
	if err != nil {
		// Some delivery paths strip X-Hub-Signature-256 and forward only
		// the legacy sha1 header. Accept those when the sha1 checks out.
		if errors.Is(err, ghwebhooks.ErrMissingHubSignatureHeader) && p.secret != "" {
			legacy := r.Header.Get("X-Hub-Signature")
			if legacy != "" && verifyLegacySHA1(p.secret, rawBody, legacy) {
				r.Body = io.NopCloser(bytes.NewReader(rawBody))
				payload, err = p.unsigned.Parse(r, parsedEvents...)
			}
		}
		if err != nil {
			return nil, mapParseError(err)
		}
	}

	deliveryID := r.Header.Get("X-GitHub-Delivery")

	switch payload.(type) {
	case ghwebhooks.PingPayload:
		return &Event{
			DeliveryID: deliveryID,
			Type:       TypePing,
			ReceivedAt: time.Now().UTC(),
		}, nil
	case ghwebhooks.IssueCommentPayload:
		return ConvertIssueComment(rawBody, deliveryID)
	case ghwebhooks.PullRequestPayload:
		return ConvertPullRequest(rawBody, deliveryID)
	}

	return nil, fmt.Errorf("%w: unhandled event type %q", ErrIgnored, r.Header.Get("X-GitHub-Event"))
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, ghwebhooks.ErrHMACVerificationFailed),
		errors.Is(err, ghwebhooks.ErrMissingHubSignatureHeader):
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	case errors.Is(err, ghwebhooks.ErrEventNotFound),
		errors.Is(err, ghwebhooks.ErrEventNotSpecifiedToParse):
		return fmt.Errorf("%w: %v", ErrIgnored, err)
	}
	return fmt.Errorf("failed to parse webhook: %w", err)
}
