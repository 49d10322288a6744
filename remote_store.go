package trifleachievements

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
	"time"
)

// DefaultRemoteTimeout bounds every remote request.
const DefaultRemoteTimeout = 10 * time.Second

var errRequestTimeout = errors.New("request timeout")

// RemoteStore implements AsyncStore against a REST resource namespace:
//
//	GET/PUT /users/{userId}/achievements/metrics   {"metrics": {...}}
//	GET/PUT /users/{userId}/achievements/unlocked  {"unlocked": [...]}
//	DELETE  /users/{userId}/achievements
type RemoteStore struct {
	BaseURL    string
	UserID     string
	Headers    map[string]string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewRemoteStore validates cfg and creates a remote store.
func NewRemoteStore(cfg RemoteConfig) (*RemoteStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &RemoteStore{
		BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		UserID:     cfg.UserID,
		Headers:    cfg.Headers,
		Timeout:    timeout,
		HTTPClient: http.DefaultClient,
	}, nil
}

func (s *RemoteStore) Description() string {
	return fmt.Sprintf("RemoteStore(%s)", s.BaseURL)
}

type metricsEnvelope struct {
	Metrics json.RawMessage `json:"metrics"`
}

type unlockedEnvelope struct {
	Unlocked []string `json:"unlocked"`
}

// GetMetrics fetches the whole metrics object. Timestamps travel as RFC 3339
// strings and come back as time.Time.
func (s *RemoteStore) GetMetrics(ctx context.Context) (Metrics, error) {
	var body metricsEnvelope
	if err := s.do(ctx, http.MethodGet, "/achievements/metrics", nil, &body); err != nil {
		return nil, err
	}
	metrics, err := decodeMetrics(body.Metrics)
	if err != nil {
		return nil, NewSyncError("Invalid metrics response", 0, err)
	}
	return reviveTimestampStrings(metrics), nil
}

// SetMetrics replaces the whole metrics object.
func (s *RemoteStore) SetMetrics(ctx context.Context, metrics Metrics) error {
	payload := map[string]any{"metrics": CloneMetrics(metrics)}
	return s.do(ctx, http.MethodPut, "/achievements/metrics", payload, nil)
}

// GetUnlockedAchievements fetches the whole unlocked id array.
func (s *RemoteStore) GetUnlockedAchievements(ctx context.Context) ([]string, error) {
	var body unlockedEnvelope
	if err := s.do(ctx, http.MethodGet, "/achievements/unlocked", nil, &body); err != nil {
		return nil, err
	}
	return cloneIDs(body.Unlocked), nil
}

// SetUnlockedAchievements replaces the whole unlocked id array.
func (s *RemoteStore) SetUnlockedAchievements(ctx context.Context, ids []string) error {
	payload := map[string]any{"unlocked": cloneIDs(ids)}
	return s.do(ctx, http.MethodPut, "/achievements/unlocked", payload, nil)
}

// Clear deletes the user's achievements resource.
func (s *RemoteStore) Clear(ctx context.Context) error {
	return s.do(ctx, http.MethodDelete, "/achievements", nil, nil)
}

func (s *RemoteStore) resourceURL(path string) string {
	return strings.TrimRight(s.BaseURL, "/") + "/users/" + url.PathEscape(s.UserID) + path
}

func (s *RemoteStore) do(ctx context.Context, method, path string, payload any, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	reqCtx, cancel := context.WithTimeoutCause(ctx, timeout, errRequestTimeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return NewStorageError(fmt.Sprintf("%s %s: encode body", method, path), err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, s.resourceURL(path), body)
	if err != nil {
		return NewConfigurationError(fmt.Sprintf("invalid remote request %s %s: %v", method, path, err))
	}
	req.Header.Set("Content-Type", "application/json")
	for name, value := range s.Headers {
		req.Header.Set(name, value)
	}

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return s.transportError(reqCtx, method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, res.Body)
		return NewSyncError(
			fmt.Sprintf("HTTP error %d: %s", res.StatusCode, http.StatusText(res.StatusCode)),
			res.StatusCode,
			nil,
		)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return s.transportError(reqCtx, method, path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return NewSyncError(fmt.Sprintf("Invalid response body from %s %s", method, path), res.StatusCode, err)
	}
	return nil
}

// transportError classifies failures where no usable response arrived.
func (s *RemoteStore) transportError(reqCtx context.Context, method, path string, err error) error {
	if errors.Is(context.Cause(reqCtx), errRequestTimeout) {
		return NewSyncError("Request timeout", 0, err)
	}
	if classified, ok := AsError(err); ok {
		return classified
	}
	return NewStorageError(fmt.Sprintf("%s %s failed", method, path), err)
}
