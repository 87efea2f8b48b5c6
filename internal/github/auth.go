package github

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultBaseURL = "https://api.github.com"

// AuthError marks credential failures against the GitHub API. The
// pipeline treats these as fatal instead of transient.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("github auth: %s: %v", e.Op, e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// AppConfig contains GitHub App authentication settings.
type AppConfig struct {
	AppID      string
	PrivateKey string
	BaseURL    string
}

// AppAuth signs App JWTs and exchanges them for installation tokens.
type AppAuth struct {
	appID   string
	pemData []byte
	baseURL string
	client  *http.Client

	keyOnce sync.Once
	key     *rsa.PrivateKey
	keyErr  error
}

// NewAppAuth creates an authenticator from App credentials. The private
// key is the PEM text itself, not a file path.
func NewAppAuth(cfg AppConfig) *AppAuth {
	return &AppAuth{
		appID:   cfg.AppID,
		pemData: []byte(cfg.PrivateKey),
		baseURL: normalizeBaseURL(cfg.BaseURL),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// AppJWT returns a short-lived RS256 token identifying the App itself.
// Issuance is backdated 30 seconds because GitHub rejects clock skew.
func (a *AppAuth) AppJWT() (string, error) {
	key, err := a.privateKey()
	if err != nil {
		return "", &AuthError{Op: "load private key", Err: err}
	}

	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-30 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
		Issuer:    a.appID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", &AuthError{Op: "sign app jwt", Err: err}
	}
	return signed, nil
}

// InstallationToken exchanges the App JWT for an installation-scoped
// access token.
func (a *AppAuth) InstallationToken(ctx context.Context, installationID int64) (string, error) {
	if installationID == 0 {
		return "", &AuthError{Op: "installation token", Err: errors.New("installation id is required")}
	}

	appJWT, err := a.AppJWT()
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/app/installations/%d/access_tokens", a.baseURL, installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("github token exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		statusErr := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return "", &AuthError{Op: "installation token", Err: statusErr}
		}
		return "", fmt.Errorf("github token exchange failed: %w", statusErr)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("github token exchange decode: %w", err)
	}
	if out.Token == "" {
		return "", &AuthError{Op: "installation token", Err: errors.New("token missing from response")}
	}
	return out.Token, nil
}

// privateKey parses the configured PEM once. App keys download from
// GitHub as PKCS#1 but often get re-encoded as PKCS#8 by other tooling,
// so both forms load.
func (a *AppAuth) privateKey() (*rsa.PrivateKey, error) {
	a.keyOnce.Do(func() {
		block, _ := pem.Decode(a.pemData)
		if block == nil {
			a.keyErr = errors.New("private key PEM decode failed")
			return
		}
		if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
			a.key = key
			return
		}
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			a.keyErr = err
			return
		}
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			a.keyErr = errors.New("private key is not RSA")
			return
		}
		a.key = rsaKey
	})
	if a.keyErr != nil {
		return nil, a.keyErr
	}
	if a.key == nil {
		return nil, errors.New("private key not loaded")
	}
	return a.key, nil
}

func normalizeBaseURL(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return defaultBaseURL
	}
	return strings.TrimRight(base, "/")
}
