package storage

import (
	"context"
	"sync"
	"time"

	"github.com/lbot-tgbot-go/internal/config"
	"github.com/lbot-tgbot-go/internal/models"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Storage interface defines storage operations
type Storage interface {
	// Scoreboard operations
	Scoreboard(ctx context.Context) ([]models.MemberStat, error)
	AwardL(ctx context.Context, memberID string) (int, error)

	// Phrase operations
	LearnPhrase(ctx context.Context, authorID, content, response string) (bool, error)
	Responses(ctx context.Context, content string) ([]string, error)

	Counts(ctx context.Context) (Counts, error)
	Close() error
}

// Counts is a row count snapshot of the store
type Counts struct {
	Members   int64
	Stats     int64
	Phrases   int64
	Responses int64
}

// Recorder receives storage and cache observations
type Recorder interface {
	RecordStorageOperation(operation, status string, duration time.Duration)
	RecordCacheHit()
	RecordCacheMiss()
}

type nopRecorder struct{}

func (nopRecorder) RecordStorageOperation(string, string, time.Duration) {}
func (nopRecorder) RecordCacheHit()                                       {}
func (nopRecorder) RecordCacheMiss()                                      {}

// Manager fronts a Storage with a phrase lookup cache and operation metrics
type Manager struct {
	storage  Storage
	phrases  *cache.Cache
	logger   *logrus.Logger
	recorder Recorder

	// generation is bumped by every learn; a lookup only fills the cache
	// when no learn happened while it was reading.
	mu         sync.Mutex
	generation uint64
}

// NewManager opens the configured database and wraps it in a Manager
func NewManager(cfg *config.Config, logger *logrus.Logger, recorder Recorder) (*Manager, error) {
	store, err := Open(&cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	return NewManagerWithStorage(store, &cfg.PhraseCache, logger, recorder), nil
}

// NewManagerWithStorage wraps an existing Storage
func NewManagerWithStorage(storage Storage, cfg *config.PhraseCacheConfig, logger *logrus.Logger, recorder Recorder) *Manager {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	m := &Manager{
		storage:  storage,
		logger:   logger,
		recorder: recorder,
	}
	if cfg != nil && cfg.Enabled {
		m.phrases = cache.New(cfg.TTL, cfg.TTL*2)
	}
	return m
}

func (m *Manager) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.recorder.RecordStorageOperation(operation, status, time.Since(start))
}

func (m *Manager) Scoreboard(ctx context.Context) (stats []models.MemberStat, err error) {
	defer func(start time.Time) { m.observe("scoreboard", start, err) }(time.Now())
	return m.storage.Scoreboard(ctx)
}

func (m *Manager) AwardL(ctx context.Context, memberID string) (ls int, err error) {
	defer func(start time.Time) { m.observe("award_l", start, err) }(time.Now())
	return m.storage.AwardL(ctx, memberID)
}

// LearnPhrase stores the response and drops any cached lookup for content
func (m *Manager) LearnPhrase(ctx context.Context, authorID, content, response string) (created bool, err error) {
	defer func(start time.Time) { m.observe("learn_phrase", start, err) }(time.Now())

	created, err = m.storage.LearnPhrase(ctx, authorID, content, response)
	if err != nil {
		return false, err
	}
	if m.phrases != nil {
		m.mu.Lock()
		m.generation++
		m.phrases.Delete(content)
		m.mu.Unlock()
	}

	m.logger.WithFields(logrus.Fields{
		"author_id": authorID,
		"phrase":    content,
		"created":   created,
	}).Debug("Phrase learned")

	return created, nil
}

// Responses returns the responses of a phrase, served from cache when possible.
// Misses are cached too; learning the phrase invalidates the entry.
func (m *Manager) Responses(ctx context.Context, content string) ([]string, error) {
	var generation uint64
	if m.phrases != nil {
		if val, found := m.phrases.Get(content); found {
			m.recorder.RecordCacheHit()
			return append([]string(nil), val.([]string)...), nil
		}
		m.recorder.RecordCacheMiss()

		m.mu.Lock()
		generation = m.generation
		m.mu.Unlock()
	}

	start := time.Now()
	responses, err := m.storage.Responses(ctx, content)
	m.observe("responses", start, err)
	if err != nil {
		return nil, err
	}

	if m.phrases != nil {
		m.mu.Lock()
		if m.generation == generation {
			m.phrases.SetDefault(content, append([]string(nil), responses...))
		}
		m.mu.Unlock()
	}
	return responses, nil
}

func (m *Manager) Counts(ctx context.Context) (Counts, error) {
	return m.storage.Counts(ctx)
}

func (m *Manager) Close() error {
	if m.phrases != nil {
		m.phrases.Flush()
	}
	return m.storage.Close()
}
