// Package push delivers notifications through the FCM HTTP v1 API.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnregistered reports that the device token is no longer valid and
// should be pruned from storage.
var ErrUnregistered = errors.New("push token unregistered")

// Sender delivers one notification to one device token.
type Sender interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) error
}

// ServiceAccount is the Firebase service account used to mint OAuth
// access tokens.
type ServiceAccount struct {
	ProjectID   string `json:"project_id"`
	PrivateKey  string `json:"private_key"`
	ClientEmail string `json:"client_email"`
	TokenURI    string `json:"token_uri"`
}

// ParseServiceAccount decodes a service account JSON blob.
func ParseServiceAccount(raw []byte) (ServiceAccount, error) {
	var account ServiceAccount
	if err := json.Unmarshal(raw, &account); err != nil {
		return ServiceAccount{}, fmt.Errorf("parse service account: %w", err)
	}
	if account.ProjectID == "" || account.PrivateKey == "" || account.ClientEmail == "" {
		return ServiceAccount{}, errors.New("service account missing required fields")
	}
	if account.TokenURI == "" {
		account.TokenURI = "https://oauth2.googleapis.com/token"
	}
	return account, nil
}

// FCMClient implements Sender against the FCM HTTP v1 API. The OAuth
// access token is cached process-wide until shortly before expiry;
// concurrent refreshes race benignly because the minted token is
// idempotent within its validity window (last write wins).
type FCMClient struct {
	account    ServiceAccount
	httpClient *http.Client
	sendURL    string
	now        func() time.Time

	mu          sync.Mutex
	cachedToken string
	tokenExpiry time.Time
}

// NewFCMClient builds a sender for the given service account.
func NewFCMClient(account ServiceAccount) *FCMClient {
	return &FCMClient{
		account:    account,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		sendURL:    fmt.Sprintf("https://fcm.googleapis.com/v1/projects/%s/messages:send", account.ProjectID),
		now:        time.Now,
	}
}

// Send delivers one message. UNREGISTERED and unknown-token responses are
// reported as ErrUnregistered so callers can clean up the token row.
func (c *FCMClient) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("device token required")
	}
	accessToken, err := c.accessToken(ctx)
	if err != nil {
		return fmt.Errorf("fcm access token: %w", err)
	}

	payload := fcmSendRequest{}
	payload.Message.Token = token
	payload.Message.Notification.Title = title
	payload.Message.Notification.Body = body
	payload.Message.Data = data

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sendURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 400 {
		return nil
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode == http.StatusNotFound || strings.Contains(string(respBody), "UNREGISTERED") {
		return fmt.Errorf("%w: %s", ErrUnregistered, resp.Status)
	}
	return fmt.Errorf("fcm send failed: %s: %s", resp.Status, string(respBody))
}

// accessToken returns a cached OAuth token, minting a new one when the
// cached value expires within the next minute. The mutex guards only the
// cache fields, never the token exchange itself.
func (c *FCMClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.cachedToken != "" && c.tokenExpiry.After(c.now().Add(time.Minute)) {
		token := c.cachedToken
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	token, expiresIn, err := c.exchangeToken(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.cachedToken = token
	c.tokenExpiry = c.now().Add(time.Duration(expiresIn) * time.Second)
	c.mu.Unlock()
	return token, nil
}

func (c *FCMClient) exchangeToken(ctx context.Context) (string, int, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(c.account.PrivateKey))
	if err != nil {
		return "", 0, fmt.Errorf("parse private key: %w", err)
	}
	now := c.now()
	claims := jwt.MapClaims{
		"iss":   c.account.ClientEmail,
		"sub":   c.account.ClientEmail,
		"aud":   "https://oauth2.googleapis.com/token",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"scope": "https://www.googleapis.com/auth/firebase.messaging",
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", 0, fmt.Errorf("sign assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.account.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return "", 0, fmt.Errorf("token exchange failed: %s: %s", resp.Status, string(respBody))
	}
	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", 0, fmt.Errorf("token decode: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", 0, errors.New("token exchange returned empty token")
	}
	if tokenResp.ExpiresIn <= 0 {
		tokenResp.ExpiresIn = 3600
	}
	return tokenResp.AccessToken, tokenResp.ExpiresIn, nil
}

type fcmSendRequest struct {
	Message struct {
		Token        string `json:"token"`
		Notification struct {
			Title string `json:"title"`
			Body  string `json:"body"`
		} `json:"notification"`
		Data map[string]string `json:"data,omitempty"`
	} `json:"message"`
}
