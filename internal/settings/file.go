package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/therealutkarshpriyadarshi/hdmsp/internal/logging"
	"github.com/therealutkarshpriyadarshi/hdmsp/pkg/models"
)

const (
	configDirName   = "HDMSP"
	defaultFileName = "settings.json"
)

// DefaultPath returns <user config dir>/HDMSP/settings.json.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config dir: %w", err)
	}
	return filepath.Join(dir, configDirName, defaultFileName), nil
}

// FileStore keeps the record in a JSON key/value file.
type FileStore struct {
	path   string
	logger *logging.Logger
}

// NewFileStore creates a store backed by path
func NewFileStore(path string, logger *logging.Logger) *FileStore {
	if logger == nil {
		logger = logging.Nop()
	}
	return &FileStore{path: path, logger: logger}
}

// Path returns the backing file.
func (f *FileStore) Path() string {
	return f.path
}

// Load returns the stored record merged over the defaults. A missing or
// corrupt file yields the defaults.
func (f *FileStore) Load(ctx context.Context) (models.AppearanceSettings, error) {
	doc, err := f.read()
	if err != nil {
		f.logger.WithError(err).WithField("path", f.path).Warn("Ignoring unreadable settings file")
		return models.DefaultAppearanceSettings(), nil
	}

	s, err := Merge(doc[Key])
	if err != nil {
		f.logger.WithError(err).WithField("path", f.path).Warn("Ignoring corrupt appearance settings")
	}
	return s, nil
}

// Save writes the record under Key, leaving other keys in the file intact.
func (f *FileStore) Save(ctx context.Context, s models.AppearanceSettings) error {
	doc, err := f.read()
	if err != nil {
		doc = make(map[string]json.RawMessage)
	}

	data, err := json.Marshal(Normalize(s))
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	doc[Key] = data

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".settings-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}

func (f *FileStore) read() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, err
	}

	doc := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode settings file: %w", err)
	}
	return doc, nil
}
