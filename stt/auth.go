package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/meeting-transcriber/types"
)

// DefaultTokenURL is the management endpoint that issues real-time tokens.
const DefaultTokenURL = "https://mp.speechmatics.com/v1/api_keys"

// DefaultTokenTTL is how long an issued session token lives.
const DefaultTokenTTL = 60 * time.Second

// DefaultExpiryMargin is the least remaining lifetime a token must have to be
// handed to the dialer.
const DefaultExpiryMargin = 5 * time.Second

// TokenClient exchanges a long-lived API key for a short-lived session token.
type TokenClient struct {
	Endpoint string
	APIKey   string
	TTL      time.Duration
	// ExpiryMargin rejects tokens whose exp claim falls within it.
	ExpiryMargin time.Duration
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// NewTokenClient returns a TokenClient with defaults filled in.
func NewTokenClient(endpoint, apiKey string, ttl time.Duration, logger *slog.Logger) *TokenClient {
	if endpoint == "" {
		endpoint = DefaultTokenURL
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenClient{
		Endpoint:     endpoint,
		APIKey:       apiKey,
		TTL:          ttl,
		ExpiryMargin: DefaultExpiryMargin,
		HTTPClient:   &http.Client{Timeout: 15 * time.Second},
		Logger:       logger,
	}
}

type tokenRequest struct {
	TTL int `json:"ttl"`
}

type tokenResponse struct {
	KeyValue string `json:"key_value"`
}

// Token performs the exchange. Every failure is an auth error; there is no retry.
func (t *TokenClient) Token(ctx context.Context) (string, error) {
	if t.APIKey == "" {
		return "", types.Errorf(types.KindAuth, "create session token", "api key is empty")
	}

	endpoint, err := url.Parse(t.Endpoint)
	if err != nil {
		return "", types.E(types.KindAuth, "create session token", errors.Wrap(err, "parse token url"))
	}
	q := endpoint.Query()
	q.Set("type", "rt")
	endpoint.RawQuery = q.Encode()

	body, err := json.Marshal(tokenRequest{TTL: int(t.TTL / time.Second)})
	if err != nil {
		return "", types.E(types.KindAuth, "create session token", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return "", types.E(types.KindAuth, "create session token", errors.Wrap(err, "build request"))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.APIKey)

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return "", types.E(types.KindAuth, "create session token", errors.Wrap(err, "request failed"))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", types.E(types.KindAuth, "create session token", errors.Wrap(err, "read response"))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", types.E(types.KindAuth, "create session token",
			fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(respBody)))
	}

	var parsed tokenResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", types.E(types.KindAuth, "create session token", errors.Wrap(err, "parse response"))
	}
	if parsed.KeyValue == "" {
		return "", types.Errorf(types.KindAuth, "create session token", "token not found in response")
	}

	if exp, ok := TokenExpiry(parsed.KeyValue); ok {
		if remaining := time.Until(exp); remaining < t.ExpiryMargin {
			return "", types.Errorf(types.KindAuth, "create session token",
				"token expires at %s, %s remaining", exp.UTC().Format(time.RFC3339), remaining.Round(time.Second))
		}
		t.Logger.Debug("issued session token", "expires_at", exp)
	}
	return parsed.KeyValue, nil
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
// Opaque tokens report false.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	switch exp := claims["exp"].(type) {
	case float64:
		return time.Unix(int64(exp), 0), true
	case json.Number:
		v, err := exp.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(v, 0), true
	}
	return time.Time{}, false
}
