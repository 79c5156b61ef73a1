package config

// ============================================================================
// Tuning artifact
//
// 1. Persist the tuned thread count as YAML
// 2. Atomic write (temp file + rename) so readers never see a partial file
// 3. Check the schema version on load
// 4. A missing file means "not tuned yet"
// ============================================================================

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ArtifactSchemaVersion is the only schema this build reads and writes.
const ArtifactSchemaVersion = 1

var (
	ErrCorruptedArtifact   = errors.New("tuning artifact is corrupted")
	ErrIncompatibleVersion = errors.New("tuning artifact schema version is incompatible")
)

// Artifact is the persisted result of a tuning run.
type Artifact struct {
	SchemaVer   int       `yaml:"schema_ver"`
	ThreadCount int       `yaml:"thread_count"`
	Throughput  float64   `yaml:"throughput"`
	MaxThreads  int       `yaml:"max_threads"`
	TunedAt     time.Time `yaml:"tuned_at"`
}

// ArtifactStore reads and writes one artifact file.
type ArtifactStore struct {
	path string
	mu   sync.Mutex
}

func NewArtifactStore(path string) *ArtifactStore {
	return &ArtifactStore{path: path}
}

// Path returns the artifact file path.
func (s *ArtifactStore) Path() string {
	return s.path
}

// Write stores a atomically, stamping the schema version.
func (s *ArtifactStore) Write(a Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.SchemaVer = ArtifactSchemaVersion
	if a.ThreadCount < 1 {
		return fmt.Errorf("%w: thread_count %d", ErrCorruptedArtifact, a.ThreadCount)
	}

	data, err := yaml.Marshal(&a)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create artifact directory: %w", err)
		}
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp artifact: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename artifact: %w", err)
	}
	return nil
}

// Load reads the artifact. ok is false when the file does not exist.
func (s *ArtifactStore) Load() (a Artifact, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Artifact{}, false, nil
		}
		return Artifact{}, false, fmt.Errorf("failed to read artifact: %w", err)
	}

	if err := yaml.Unmarshal(data, &a); err != nil {
		return Artifact{}, false, fmt.Errorf("%w: %v", ErrCorruptedArtifact, err)
	}
	if a.SchemaVer != ArtifactSchemaVersion {
		return Artifact{}, false, fmt.Errorf("%w: got %d, want %d", ErrIncompatibleVersion, a.SchemaVer, ArtifactSchemaVersion)
	}
	if a.ThreadCount < 1 {
		return Artifact{}, false, fmt.Errorf("%w: thread_count %d", ErrCorruptedArtifact, a.ThreadCount)
	}
	return a, true, nil
}

// Exists reports whether the artifact file is present.
func (s *ArtifactStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}
