package kv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Entry is one stored value.
type Entry struct {
	Namespace string `gorm:"primaryKey"`
	Key       string `gorm:"primaryKey;column:entry_key"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName pins the table name regardless of gorm's naming strategy.
func (Entry) TableName() string {
	return "kv_entries"
}

// SQLiteStore persists values in a SQLite database through gorm.
type SQLiteStore struct {
	db        *gorm.DB
	namespace string
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path and migrates
// the entries table. Use ":memory:" or a "file::memory:" DSN for tests.
func OpenSQLite(path, namespace string) (*SQLiteStore, error) {
	if err := createDBDirectory(path); err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLogger()})
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to open token database")
		return nil, err
	}

	return NewSQLiteStore(db, namespace)
}

// NewSQLiteStore wraps an existing gorm handle.
func NewSQLiteStore(db *gorm.DB, namespace string) (*SQLiteStore, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		log.Error().Err(err).Msg("Failed to auto-migrate token database")
		return nil, err
	}
	return &SQLiteStore{db: db, namespace: namespace}, nil
}

func (s *SQLiteStore) Get(key string) (string, error) {
	var entry Entry
	err := s.db.Where("namespace = ? AND entry_key = ?", s.namespace, key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %q: %w", key, err)
	}
	return entry.Value, nil
}

func (s *SQLiteStore) Set(key, value string) error {
	entry := Entry{Namespace: s.namespace, Key: key, Value: value}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(key string) error {
	err := s.db.Where("namespace = ? AND entry_key = ?", s.namespace, key).Delete(&Entry{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying connection.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func createDBDirectory(path string) error {
	if path == ":memory:" || strings.HasPrefix(path, "file:") || filepath.Dir(path) == "." {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		log.Error().Err(err).Msg("Failed to create database directory")
		return err
	}
	return nil
}

// gormLogger stays silent unless debug logging is on.
func gormLogger() logger.Interface {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		return logger.Default.LogMode(logger.Info)
	}
	return logger.Default.LogMode(logger.Silent)
}
