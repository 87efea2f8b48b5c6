package event

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "hunter2-webhook-secret"

func legacySHA1Header(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestSignAndVerify(t *testing.T) {
	body := []byte(`{"action":"created"}`)

	sig := Sign(testSecret, body)
	assert.True(t, len(sig) > len("sha256="))
	assert.True(t, VerifySignature(testSecret, body, sig))

	assert.False(t, VerifySignature(testSecret, body, "sha256=deadbeef"))
	assert.False(t, VerifySignature("wrong-secret", body, sig))
	assert.False(t, VerifySignature(testSecret, []byte(`{"action":"edited"}`), sig))
	assert.False(t, VerifySignature(testSecret, nil, sig))
	assert.False(t, VerifySignature(testSecret, body, ""))
}

func TestParser_SignedIssueComment(t *testing.T) {
	parser, err := NewParser(testSecret)
	require.NoError(t, err)

	body := loadFixture(t, "issue_comment_created.json")
	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "issue_comment")
	req.Header.Set("X-GitHub-Delivery", "72d3162e-cc78-11e3-81ab-4c9367dc0958")
	req.Header.Set("X-Hub-Signature-256", Sign(testSecret, body))

	ev, err := parser.Parse(req)
	require.NoError(t, err)
	assert.Equal(t, TypeIssueComment, ev.Type)
	assert.Equal(t, "72d3162e-cc78-11e3-81ab-4c9367dc0958", ev.DeliveryID)
	assert.Equal(t, "octocat/hello-world#42", ev.ThreadID())
}

func TestParser_BadSignature(t *testing.T) {
	parser, err := NewParser(testSecret)
	require.NoError(t, err)

	body := loadFixture(t, "issue_comment_created.json")
	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "issue_comment")
	req.Header.Set("X-Hub-Signature-256", Sign("not-the-secret", body))

	ev, err := parser.Parse(req)
	assert.Nil(t, ev)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadSignature))
}

func TestParser_MissingSignature(t *testing.T) {
	parser, err := NewParser(testSecret)
	require.NoError(t, err)

	body := loadFixture(t, "issue_comment_created.json")
	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "issue_comment")

	ev, err := parser.Parse(req)
	assert.Nil(t, ev)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadSignature))
}

func TestParser_LegacySHA1Fallback(t *testing.T) {
	parser, err := NewParser(testSecret)
	require.NoError(t, err)

	body := loadFixture(t, "issue_comment_created.json")
	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "issue_comment")
	req.Header.Set("X-GitHub-Delivery", "legacy-delivery")
	req.Header.Set("X-Hub-Signature", legacySHA1Header(testSecret, body))

	ev, err := parser.Parse(req)
	require.NoError(t, err)
	assert.Equal(t, TypeIssueComment, ev.Type)
	assert.Equal(t, "legacy-delivery", ev.DeliveryID)
}

func TestParser_Ping(t *testing.T) {
	parser, err := NewParser(testSecret)
	require.NoError(t, err)

	body := []byte(`{"zen": "Keep it logically awesome.", "hook_id": 30, "hook": {"type": "App", "id": 30, "events": ["issue_comment"]}}`)
	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "ping")
	req.Header.Set("X-GitHub-Delivery", "ping-delivery")
	req.Header.Set("X-Hub-Signature-256", Sign(testSecret, body))

	ev, err := parser.Parse(req)
	require.NoError(t, err)
	assert.Equal(t, TypePing, ev.Type)
}

func TestParser_UnhandledEventType(t *testing.T) {
	parser, err := NewParser(testSecret)
	require.NoError(t, err)

	body := []byte(`{"action": "started", "repository": {"full_name": "octocat/hello-world"}}`)
	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "watch")
	req.Header.Set("X-Hub-Signature-256", Sign(testSecret, body))

	ev, err := parser.Parse(req)
	assert.Nil(t, ev)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIgnored))
}
