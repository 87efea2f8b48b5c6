package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrIgnored marks an event the bot deliberately does not process:
// uninteresting actions, unsupported event types, bot-authored noise.
// Handlers acknowledge these with a success response and no side effects.
var ErrIgnored = errors.New("event ignored")

// ErrBadSignature marks a webhook whose signature did not verify against
// the shared secret. Nothing from such a payload is trusted or stored.
var ErrBadSignature = errors.New("webhook signature verification failed")

// ConvertIssueComment transforms a GitHub issue_comment payload into a
// normalized Event. Only the "created" action is processed; edits and
// deletions are ignored.
func ConvertIssueComment(body []byte, deliveryID string) (*Event, error) {
	var payload githubIssueCommentPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse issue_comment payload: %w", err)
	}

	if payload.Action != "created" {
		log.Printf("[DEBUG] Ignoring issue_comment action: %s", payload.Action)
		return nil, fmt.Errorf("%w: issue_comment action=%s", ErrIgnored, payload.Action)
	}

	if payload.Repository.FullName == "" || payload.Issue.Number == 0 {
		return nil, fmt.Errorf("malformed issue_comment payload: missing repository or issue number")
	}

	return &Event{
		DeliveryID: deliveryID,
		Type:       TypeIssueComment,
		Action:     payload.Action,
		Repo: Repo{
			ID:            payload.Repository.ID,
			Owner:         payload.Repository.Owner.Login,
			Name:          payload.Repository.Name,
			FullName:      payload.Repository.FullName,
			DefaultBranch: payload.Repository.DefaultBranch,
		},
		Author: User{
			ID:    payload.Comment.User.ID,
			Login: payload.Comment.User.Login,
			Type:  payload.Comment.User.Type,
		},
		Body:           payload.Comment.Body,
		Number:         payload.Issue.Number,
		IsPullRequest:  payload.Issue.PullRequest != nil,
		CommentID:      payload.Comment.ID,
		HTMLURL:        payload.Comment.HTMLURL,
		InstallationID: payload.Installation.ID,
		ReceivedAt:     time.Now().UTC(),
	}, nil
}

// ConvertPullRequest transforms a GitHub pull_request payload into a
// normalized Event. Opened/edited/synchronize actions are surfaced so
// the pipeline can acknowledge them; everything else is ignored.
func ConvertPullRequest(body []byte, deliveryID string) (*Event, error) {
	var payload githubPullRequestPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse pull_request payload: %w", err)
	}

	switch payload.Action {
	case "opened", "edited", "synchronize":
	default:
		log.Printf("[DEBUG] Ignoring pull_request action: %s", payload.Action)
		return nil, fmt.Errorf("%w: pull_request action=%s", ErrIgnored, payload.Action)
	}

	number := payload.PullRequest.Number
	if number == 0 {
		number = payload.Number
	}
	if payload.Repository.FullName == "" || number == 0 {
		return nil, fmt.Errorf("malformed pull_request payload: missing repository or number")
	}

	return &Event{
		DeliveryID: deliveryID,
		Type:       TypePullRequest,
		Action:     payload.Action,
		Repo: Repo{
			ID:            payload.Repository.ID,
			Owner:         payload.Repository.Owner.Login,
			Name:          payload.Repository.Name,
			FullName:      payload.Repository.FullName,
			DefaultBranch: payload.Repository.DefaultBranch,
		},
		Author: User{
			ID:    payload.PullRequest.User.ID,
			Login: payload.PullRequest.User.Login,
			Type:  payload.PullRequest.User.Type,
		},
		Body:           payload.PullRequest.Body,
		Number:         number,
		IsPullRequest:  true,
		HTMLURL:        payload.PullRequest.HTMLURL,
		InstallationID: payload.Installation.ID,
		ReceivedAt:     time.Now().UTC(),
	}, nil
}
