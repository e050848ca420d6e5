package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lbot-tgbot-go/internal/config"
	"github.com/lbot-tgbot-go/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// SQLStore implements Storage on a relational database through gorm.
//
// Concurrent writers are reconciled with upserts rather than application
// locks: member creation is ON CONFLICT DO NOTHING, awarding an L is
// ON CONFLICT DO UPDATE ls = ls + 1, and phrase creation falls back to the
// existing row when a concurrent learn wins the unique index on content.
type SQLStore struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// Open connects to the configured database and migrates the schema
func Open(cfg *config.StorageConfig, logger *logrus.Logger) (*SQLStore, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case config.DriverSQLite:
		if err := ensureSQLiteDir(cfg.DSN); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(sqliteDSN(cfg.DSN))
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(logger, cfg.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	return NewSQLStore(db, logger)
}

// NewSQLStore wraps an open gorm handle and migrates the schema
func NewSQLStore(db *gorm.DB, logger *logrus.Logger) (*SQLStore, error) {
	if err := db.AutoMigrate(&models.Member{}, &models.Stat{}, &models.Phrase{}, &models.Response{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &SQLStore{db: db, logger: logger}, nil
}

func ensureSQLiteDir(dsn string) error {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}

// sqliteParams are added to a sqlite DSN unless it sets them itself.
// _txlock=immediate takes the write lock at BEGIN, so a transaction that
// reads before it writes waits on _busy_timeout instead of failing with
// "database is locked" when another writer commits first.
var sqliteParams = []struct{ key, value string }{
	{"_foreign_keys", "on"},
	{"_busy_timeout", "5000"},
	{"_journal_mode", "WAL"},
	{"_txlock", "immediate"},
}

func sqliteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	for _, p := range sqliteParams {
		if strings.Contains(dsn, p.key+"=") {
			continue
		}
		dsn += sep + p.key + "=" + p.value
		sep = "&"
	}
	return dsn
}

func newGormLogger(logger *logrus.Logger, level string) gormlogger.Interface {
	var lvl gormlogger.LogLevel
	switch strings.ToLower(level) {
	case "info":
		lvl = gormlogger.Info
	case "warn":
		lvl = gormlogger.Warn
	case "error":
		lvl = gormlogger.Error
	default:
		lvl = gormlogger.Silent
	}
	return gormlogger.New(logger, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  lvl,
		IgnoreRecordNotFoundError: true,
	})
}

// Close releases the underlying connection pool
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func ensureMember(tx *gorm.DB, memberID string) error {
	member := models.Member{ID: memberID}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error; err != nil {
		return fmt.Errorf("failed to create member %s: %w", memberID, err)
	}
	return nil
}

// Scoreboard lists every member with its L count. Members without a stat row
// are reported with zero.
func (s *SQLStore) Scoreboard(ctx context.Context) ([]models.MemberStat, error) {
	var rows []models.MemberStat
	err := s.db.WithContext(ctx).
		Model(&models.Member{}).
		Select("members.id AS member_id, COALESCE(stats.ls, 0) AS ls").
		Joins("LEFT JOIN stats ON stats.member_id = members.id").
		Order("members.created_at ASC, members.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read scoreboard: %w", err)
	}
	return rows, nil
}

// AwardL increments the member's L count, creating member and stat on first
// award, and returns the new count.
func (s *SQLStore) AwardL(ctx context.Context, memberID string) (int, error) {
	var stat models.Stat
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureMember(tx, memberID); err != nil {
			return err
		}

		award := models.Stat{MemberID: memberID, Ls: 1}
		err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "member_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"ls":         gorm.Expr("stats.ls + 1"),
				"updated_at": time.Now(),
			}),
		}).Create(&award).Error
		if err != nil {
			return fmt.Errorf("failed to award L: %w", err)
		}

		return tx.Where("member_id = ?", memberID).Take(&stat).Error
	})
	if err != nil {
		return 0, err
	}
	return stat.Ls, nil
}

// LearnPhrase attaches response to the phrase with the given content,
// creating the phrase (and its author) when it does not exist yet. It
// reports whether a new phrase was created.
func (s *SQLStore) LearnPhrase(ctx context.Context, authorID, content, response string) (bool, error) {
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var phrase models.Phrase
		err := tx.Where("content = ?", content).Take(&phrase).Error
		switch {
		case err == nil:
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := ensureMember(tx, authorID); err != nil {
				return err
			}
			phrase = models.Phrase{AuthorID: authorID, Content: content}
			res := tx.Omit(clause.Associations).
				Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "content"}}, DoNothing: true}).
				Create(&phrase)
			if res.Error != nil {
				return fmt.Errorf("failed to create phrase: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				// lost the race to a concurrent learn of the same phrase
				if err := tx.Where("content = ?", content).Take(&phrase).Error; err != nil {
					return fmt.Errorf("failed to reload phrase: %w", err)
				}
			} else {
				created = true
			}
		default:
			return fmt.Errorf("failed to look up phrase: %w", err)
		}

		if err := tx.Create(&models.Response{PhraseID: phrase.ID, Content: response}).Error; err != nil {
			return fmt.Errorf("failed to add response: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// Responses returns the responses learned for the phrase with exactly the
// given content, oldest first. A missing phrase yields an empty slice.
func (s *SQLStore) Responses(ctx context.Context, content string) ([]string, error) {
	var out []string
	err := s.db.WithContext(ctx).
		Model(&models.Response{}).
		Joins("JOIN phrases ON phrases.id = responses.phrase_id").
		Where("phrases.content = ?", content).
		Order("responses.id ASC").
		Pluck("responses.content", &out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to look up responses: %w", err)
	}
	return out, nil
}

// Counts returns the number of rows per entity
func (s *SQLStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	db := s.db.WithContext(ctx)
	for _, q := range []struct {
		model interface{}
		dst   *int64
	}{
		{&models.Member{}, &c.Members},
		{&models.Stat{}, &c.Stats},
		{&models.Phrase{}, &c.Phrases},
		{&models.Response{}, &c.Responses},
	} {
		if err := db.Model(q.model).Count(q.dst).Error; err != nil {
			return Counts{}, fmt.Errorf("failed to count rows: %w", err)
		}
	}
	return c, nil
}
