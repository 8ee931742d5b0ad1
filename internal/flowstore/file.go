package flowstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"webauth/internal/authflow"
	"webauth/pkg/logging"
)

// DefaultStorageDir is the default directory for suspended flows, relative
// to the user's home directory.
const DefaultStorageDir = ".config/webauth/flows"

const subsystem = "FlowStore"

type fileEntry struct {
	Flow      *authflow.Flow `json:"flow"`
	StoredAt  time.Time      `json:"stored_at"`
	ExpiresAt time.Time      `json:"expires_at,omitempty"`
}

// FileStore keeps suspended flows as JSON files.
//
// SECURITY: files are created with 0600 permissions inside a 0700 directory
// and are named after the SHA-256 of the correlation token.
type FileStore struct {
	dir string
	ttl time.Duration
}

// NewFileStore creates the storage directory if needed. An empty dir means
// DefaultStorageDir under the home directory. A positive ttl rejects flows
// older than ttl on Take.
func NewFileStore(dir string, ttl time.Duration) (*FileStore, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, DefaultStorageDir)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create flow storage directory: %w", err)
	}
	return &FileStore{dir: dir, ttl: ttl}, nil
}

// Dir returns the storage directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(token string) string {
	sum := sha256.Sum256([]byte(token))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".json")
}

// Put implements authflow.FlowStore.
func (s *FileStore) Put(_ context.Context, token string, flow *authflow.Flow) error {
	entry := fileEntry{Flow: flow, StoredAt: time.Now()}
	if s.ttl > 0 {
		entry.ExpiresAt = entry.StoredAt.Add(s.ttl)
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode flow: %w", err)
	}

	// Write to a temporary file first so a concurrent Take never reads a
	// partial entry.
	tmp, err := os.CreateTemp(s.dir, ".put-*")
	if err != nil {
		return fmt.Errorf("failed to create flow file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict flow file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write flow file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write flow file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(token)); err != nil {
		return fmt.Errorf("failed to store flow file: %w", err)
	}

	logging.Audit(subsystem, "flow_stored",
		slog.String("backend", "file"),
		slog.String("flow_id", flow.ID.String()),
	)
	return nil
}

// Take implements authflow.FlowStore. The entry is renamed away before it is
// read, so only one caller can take it.
func (s *FileStore) Take(_ context.Context, token string) (*authflow.Flow, error) {
	path := s.path(token)
	claimed := path + ".taken-" + fmt.Sprint(time.Now().UnixNano())
	if err := os.Rename(path, claimed); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, authflow.ErrFlowNotFound
		}
		return nil, fmt.Errorf("failed to claim flow file: %w", err)
	}
	defer os.Remove(claimed)

	data, err := os.ReadFile(claimed)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow file: %w", err)
	}
	var entry fileEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode flow file: %w", err)
	}
	if entry.Flow == nil {
		return nil, authflow.ErrFlowNotFound
	}
	if !entry.ExpiresAt.IsZero() && time.Now().After(entry.ExpiresAt) {
		logging.Info(subsystem, "Discarding expired flow %s", entry.Flow.ID)
		return nil, authflow.ErrFlowNotFound
	}

	logging.Audit(subsystem, "flow_taken",
		slog.String("backend", "file"),
		slog.String("flow_id", entry.Flow.ID.String()),
	)
	return entry.Flow, nil
}
