package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/lbot-tgbot-go/internal/config"
	"github.com/sirupsen/logrus"
)

// HTTP queries a generic JSON intent endpoint.
//
// Request:  {"text": "...", "language_code": "en", "session": "<uuid>"}
// Response: {"action": "viewscoreboard", "confidence": 0.92}
type HTTP struct {
	endpoint      string
	apiKey        string
	maxRetries    int
	minConfidence float64
	backoff       time.Duration
	httpClient    *http.Client
	logger        *logrus.Logger
}

// NewHTTP creates an HTTP classifier. Labels below minConfidence count as no match.
func NewHTTP(cfg *config.HTTPClassifierConfig, minConfidence float64, logger *logrus.Logger) *HTTP {
	return &HTTP{
		endpoint:      cfg.Endpoint,
		apiKey:        cfg.APIKey,
		maxRetries:    cfg.MaxRetries,
		minConfidence: minConfidence,
		backoff:       100 * time.Millisecond,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

type detectRequest struct {
	Text         string `json:"text"`
	LanguageCode string `json:"language_code"`
	Session      string `json:"session"`
}

type detectResponse struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error"`
}

// errPermanent marks failures that a retry cannot fix
type errPermanent struct{ err error }

func (e errPermanent) Error() string { return e.err.Error() }
func (e errPermanent) Unwrap() error { return e.err }

// Detect retries server errors with exponential backoff until the attempts
// run out or ctx is done.
func (h *HTTP) Detect(ctx context.Context, text, language string) (string, error) {
	attempts := h.maxRetries + 1
	session := uuid.NewString()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		label, err := h.detectOnce(ctx, text, language, session)
		if err == nil {
			return label, nil
		}
		lastErr = err

		if _, permanent := err.(errPermanent); permanent {
			break
		}

		h.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err.Error(),
		}).Debug("Classifier request failed")

		if attempt < attempts {
			// 100ms, 200ms, 400ms...
			wait := h.backoff << uint(attempt-1)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	return "", fmt.Errorf("classifier request failed: %w", lastErr)
}

func (h *HTTP) detectOnce(ctx context.Context, text, language, session string) (string, error) {
	jsonData, err := json.Marshal(detectRequest{
		Text:         text,
		LanguageCode: language,
		Session:      session,
	})
	if err != nil {
		return "", errPermanent{fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", errPermanent{fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", errPermanent{ctx.Err()}
		}
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, string(body))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", errPermanent{err}
		}
		return "", err
	}

	var result detectResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", errPermanent{fmt.Errorf("failed to parse response: %w", err)}
	}
	if result.Error != "" {
		return "", errPermanent{fmt.Errorf("classifier error: %s", result.Error)}
	}

	if result.Confidence < h.minConfidence {
		return "", nil
	}
	return result.Action, nil
}

func (h *HTTP) Close() error {
	h.httpClient.CloseIdleConnections()
	return nil
}
