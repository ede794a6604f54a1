package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/resilientkernel/kernel/platform"
)

// FileStore persists one JSON file per fingerprint under Dir. Writes use
// write-temp-then-rename semantics so a partial write never leaves a
// corrupt record readable as the current value.
type FileStore struct {
	Dir    string
	Logger platform.Logger
}

// NewFileStore builds a FileStore rooted at dir, creating it on first use.
func NewFileStore(dir string, logger platform.Logger) *FileStore {
	if logger == nil {
		logger = platform.NoOpLogger{}
	}
	return &FileStore{Dir: dir, Logger: logger}
}

func (s *FileStore) pathFor(key string) string {
	return filepath.Join(s.Dir, key+".json")
}

func (s *FileStore) ensureDir() error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return platform.NewKernelError("ledger.FileStore", "storage_failure", fmt.Errorf("%w: %v", platform.ErrStorageFailure, err))
	}
	return nil
}

// Save atomically writes rec to its file.
func (s *FileStore) Save(rec *Record) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return platform.NewKernelError("ledger.FileStore.Save", "invalid_input", fmt.Errorf("%w: %v", platform.ErrInvalidInput, err))
	}

	final := s.pathFor(rec.Key)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return platform.NewKernelError("ledger.FileStore.Save", "storage_failure", fmt.Errorf("%w: %v", platform.ErrStorageFailure, err))
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return platform.NewKernelError("ledger.FileStore.Save", "storage_failure", fmt.Errorf("%w: %v", platform.ErrStorageFailure, err))
	}
	return nil
}

// Load reads the record for key. A missing file returns (nil, nil). A
// corrupt file is logged and treated as absent, per the contract.
func (s *FileStore) Load(key string) (*Record, error) {
	data, err := os.ReadFile(s.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, platform.NewKernelError("ledger.FileStore.Load", "storage_failure", fmt.Errorf("%w: %v", platform.ErrStorageFailure, err))
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.Logger.Warn("ledger record is corrupt, treating as absent", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil, nil
	}
	return &rec, nil
}

// Delete removes the file for key, if present.
func (s *FileStore) Delete(key string) error {
	if err := os.Remove(s.pathFor(key)); err != nil && !os.IsNotExist(err) {
		return platform.NewKernelError("ledger.FileStore.Delete", "storage_failure", fmt.Errorf("%w: %v", platform.ErrStorageFailure, err))
	}
	return nil
}

// List returns every fingerprint with a record file on disk. Files that
// don't look like ledger records (wrong suffix) are ignored.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, platform.NewKernelError("ledger.FileStore.List", "storage_failure", fmt.Errorf("%w: %v", platform.ErrStorageFailure, err))
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".json") {
			keys = append(keys, strings.TrimSuffix(name, ".json"))
		}
	}
	return keys, nil
}
