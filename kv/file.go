package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// fileContents is the on-disk layout. Values are grouped by namespace so
// several client ids can share one token file.
type fileContents struct {
	Namespaces map[string]map[string]string `json:"namespaces"`
}

var errCorruptFile = errors.New("token file is not valid JSON")

// FileStore persists values for one namespace in a JSON file.
type FileStore struct {
	path      string
	namespace string
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store backed by path. The file is created on the
// first Set.
func NewFileStore(path, namespace string) *FileStore {
	return &FileStore{path: path, namespace: namespace}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(key string) (string, error) {
	contents, err := s.read()
	if err != nil {
		return "", err
	}
	v, ok := contents.Namespaces[s.namespace][key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *FileStore) Set(key, value string) error {
	return s.update(func(values map[string]string) {
		values[key] = value
	})
}

func (s *FileStore) Delete(key string) error {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return s.update(func(values map[string]string) {
		delete(values, key)
	})
}

// read loads the file. A missing file reads as empty.
func (s *FileStore) read() (*fileContents, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &fileContents{}, nil
	}
	if err != nil {
		return nil, err
	}

	var contents fileContents
	if err := json.Unmarshal(data, &contents); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w: %w", errCorruptFile, err)
	}
	return &contents, nil
}

// update applies fn to this namespace's values under the file lock and
// writes the result atomically. Other namespaces are preserved.
func (s *FileStore) update(fn func(values map[string]string)) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create token directory: %w", err)
		}
	}

	lock, err := acquireFileLock(s.path)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if releaseErr := lock.release(); releaseErr != nil {
			log.Error().Err(releaseErr).Str("path", s.path).Msg("Failed to release lock")
		}
	}()

	// Reload inside the lock. A file that does not parse is moved aside,
	// never overwritten, since it may hold other namespaces.
	contents, err := s.read()
	switch {
	case errors.Is(err, errCorruptFile):
		backup := s.path + ".corrupt-" + time.Now().UTC().Format("20060102T150405")
		if renameErr := os.Rename(s.path, backup); renameErr != nil {
			return fmt.Errorf("failed to move aside unreadable token file: %w", renameErr)
		}
		log.Warn().Err(err).Str("path", s.path).Str("backup", backup).
			Msg("Moved unreadable token file aside")
		contents = &fileContents{}
	case err != nil:
		return err
	}
	if contents.Namespaces == nil {
		contents.Namespaces = make(map[string]map[string]string)
	}
	values := contents.Namespaces[s.namespace]
	if values == nil {
		values = make(map[string]string)
	}

	fn(values)

	if len(values) == 0 {
		delete(contents.Namespaces, s.namespace)
	} else {
		contents.Namespaces[s.namespace] = values
	}

	data, err := json.MarshalIndent(contents, "", "  ")
	if err != nil {
		return err
	}

	tempFile := s.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, s.path); err != nil {
		if removeErr := os.Remove(tempFile); removeErr != nil {
			return fmt.Errorf(
				"failed to rename temp file: %v; additionally failed to remove temp file: %w",
				err,
				removeErr,
			)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
