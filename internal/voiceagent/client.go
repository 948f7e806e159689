package voiceagent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/brightline-clinics/voice-scheduler/pkg/logging"
)

// ErrExternalService marks any failure talking to the AI voice provider. The
// webhook layer maps it to the degraded apology response rather than a 5xx.
var ErrExternalService = errors.New("voice agent unavailable")

const (
	defaultTimeout   = 10 * time.Second
	defaultBackoff   = 250 * time.Millisecond
	defaultUserAgent = "voice-scheduler/0.1"
)

// Config controls how the voice agent client behaves.
type Config struct {
	BaseURL    string
	APIKey     string
	AgentID    string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
	UserAgent  string
}

// Client wraps the AI voice provider's session endpoints.
type Client struct {
	baseURL    string
	apiKey     string
	agentID    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *logging.Logger
	userAgent  string
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("voiceagent: base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("voiceagent: API key is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:     cfg.APIKey,
		agentID:    cfg.AgentID,
		httpClient: httpClient,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
		userAgent:  userAgent,
	}, nil
}

// CreateSessionRequest asks the provider to open a conversation for an
// inbound call.
type CreateSessionRequest struct {
	CallSID     string            `json:"call_sid"`
	CallerPhone string            `json:"caller_phone,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Session is an open conversation with the AI agent. StreamURL is where the
// telephony provider should fork the call audio.
type Session struct {
	SessionID string `json:"session_id"`
	StreamURL string `json:"stream_url"`
}

// CreateSession opens an agent conversation for a call and returns the media
// stream endpoint to hand to the telephony provider.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	if strings.TrimSpace(req.CallSID) == "" {
		return nil, errors.New("voiceagent: call sid required")
	}
	body, err := json.Marshal(struct {
		AgentID     string            `json:"agent_id,omitempty"`
		CallSID     string            `json:"call_sid"`
		CallerPhone string            `json:"caller_phone,omitempty"`
		Metadata    map[string]string `json:"metadata,omitempty"`
	}{
		AgentID:     c.agentID,
		CallSID:     req.CallSID,
		CallerPhone: req.CallerPhone,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("voiceagent: marshal session request: %w", err)
	}
	data, err := c.invoke(ctx, http.MethodPost, "/sessions", body)
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: decode session response: %v", ErrExternalService, err)
	}
	if sess.SessionID == "" || sess.StreamURL == "" {
		return nil, fmt.Errorf("%w: incomplete session response", ErrExternalService)
	}
	return &sess, nil
}

// EndSession tells the provider the call is over. Failures are surfaced but
// callers typically only log them.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("voiceagent: session id required")
	}
	_, err := c.invoke(ctx, http.MethodDelete, "/sessions/"+sessionID, nil)
	return err
}

func (c *Client) invoke(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	fullURL := c.baseURL + "/" + strings.TrimLeft(path, "/")
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("voiceagent: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("User-Agent", c.userAgent)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrExternalService, ctx.Err())
			}
			if !shouldRetry(0, err) || attempt == c.maxRetries {
				return nil, fmt.Errorf("%w: %v", ErrExternalService, err)
			}
			lastErr = err
			c.logRetry(path, attempt, 0, err)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, fmt.Errorf("%w: %v", ErrExternalService, sleepErr)
			}
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("%w: read response: %v", ErrExternalService, readErr)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}
		statusErr := fmt.Errorf("%w: http status %d", ErrExternalService, resp.StatusCode)
		if attempt < c.maxRetries && shouldRetry(resp.StatusCode, nil) {
			lastErr = statusErr
			c.logRetry(path, attempt, resp.StatusCode, statusErr)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, fmt.Errorf("%w: %v", ErrExternalService, sleepErr)
			}
			continue
		}
		return nil, statusErr
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalService, lastErr)
	}
	return nil, fmt.Errorf("%w: request failed without response", ErrExternalService)
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	delay := c.backoff * time.Duration(1<<attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(path string, attempt int, status int, err error) {
	c.logger.Warn("voice agent retry",
		"path", path,
		"attempt", attempt+1,
		"status", status,
		"error", err,
	)
}

func shouldRetry(status int, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return !errors.Is(err, context.Canceled)
	}
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500 && status <= 599
}
