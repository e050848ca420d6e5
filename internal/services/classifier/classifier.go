// Package classifier maps free-form chat text to a command label using an
// external intent detection backend.
package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/lbot-tgbot-go/internal/config"
	"github.com/lbot-tgbot-go/internal/services/cache"
	"github.com/sirupsen/logrus"
)

// Service detects the intent of a text. An empty label with a nil error means
// the backend found no match; errors are transport or backend failures.
type Service interface {
	Detect(ctx context.Context, text, language string) (string, error)
	Close() error
}

// Recorder receives one observation per backend call
type Recorder interface {
	RecordClassifier(backend, status string, duration time.Duration)
}

// New builds the configured classifier, wrapped with the label cache when one
// is given and with metrics when recorder is non-nil.
func New(ctx context.Context, cfg *config.ClassifierConfig, labels cache.Service, recorder Recorder, logger *logrus.Logger) (Service, error) {
	var (
		svc Service
		err error
	)
	switch cfg.Type {
	case config.ClassifierNone, "":
		return Noop{}, nil
	case config.ClassifierHTTP:
		svc = NewHTTP(&cfg.HTTP, cfg.MinConfidence, logger)
	case config.ClassifierDialogflow:
		svc, err = NewDialogflow(ctx, &cfg.Dialogflow, cfg.MinConfidence, logger)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported classifier type: %s", cfg.Type)
	}

	if recorder != nil {
		svc = Instrument(svc, cfg.Type, recorder)
	}
	if labels != nil {
		svc = NewCached(svc, labels, logger)
	}

	logger.WithFields(logrus.Fields{
		"type":     cfg.Type,
		"timeout":  cfg.Timeout,
		"language": cfg.Language,
	}).Info("Classifier initialized")

	return svc, nil
}

// Noop never matches. It is used when no backend is configured.
type Noop struct{}

func (Noop) Detect(context.Context, string, string) (string, error) { return "", nil }
func (Noop) Close() error                                           { return nil }

type instrumented struct {
	Service
	backend  string
	recorder Recorder
}

// Instrument reports the outcome and latency of every Detect call
func Instrument(svc Service, backend string, recorder Recorder) Service {
	return &instrumented{Service: svc, backend: backend, recorder: recorder}
}

func (i *instrumented) Detect(ctx context.Context, text, language string) (string, error) {
	start := time.Now()
	label, err := i.Service.Detect(ctx, text, language)

	status := "match"
	switch {
	case err != nil:
		status = "error"
	case label == "":
		status = "no_match"
	}
	i.recorder.RecordClassifier(i.backend, status, time.Since(start))

	return label, err
}

// Cached answers repeated texts from a label cache. Negative results are
// cached as well; failures are not.
type Cached struct {
	next   Service
	labels cache.Service
	logger *logrus.Logger
}

func NewCached(next Service, labels cache.Service, logger *logrus.Logger) *Cached {
	return &Cached{next: next, labels: labels, logger: logger}
}

func (c *Cached) Detect(ctx context.Context, text, language string) (string, error) {
	if label, ok := c.labels.Get(ctx, language, text); ok {
		return label, nil
	}

	label, err := c.next.Detect(ctx, text, language)
	if err != nil {
		return "", err
	}

	if err := c.labels.Set(ctx, language, text, label); err != nil {
		c.logger.WithError(err).Warn("Failed to cache classifier label")
	}
	return label, nil
}

func (c *Cached) Close() error {
	return c.next.Close()
}
