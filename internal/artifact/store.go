// Package artifact persists per-run JSON artifacts under a runs root.
//
// Every artifact is written exactly once per run via write-temp + rename in
// the same directory, so readers either see the previous file or the complete
// new one, never a torn write. Run IDs double as directory names and are
// validated before any path is built.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"
)

// validRunID matches timestamp IDs (20250101_120000), API IDs
// (api_speedy_20250101_120000), and other URL-safe identifiers.
var validRunID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// BadRunIDError reports a run ID that failed validation or escaped the runs root.
type BadRunIDError struct {
	RunID string
}

func (e *BadRunIDError) Error() string {
	return fmt.Sprintf("bad run id: %q", e.RunID)
}

// NotFoundError reports a missing artifact file.
type NotFoundError struct {
	RunID string
	Name  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("artifact not found: %s/%s", e.RunID, e.Name)
}

// CorruptError reports an artifact that exists but does not parse as JSON.
type CorruptError struct {
	RunID string
	Name  string
	Err   error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt artifact %s/%s: %v", e.RunID, e.Name, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Store reads and writes run artifacts under a single root directory.
type Store struct {
	root string
}

// NewStore creates a store rooted at dir. The directory is created lazily on
// the first write.
func NewStore(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = "runs"
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute runs root.
func (s *Store) Root() string { return s.root }

// BuildDir validates runID and returns the run directory path. The resolved
// path must stay under the runs root.
func (s *Store) BuildDir(runID string) (string, error) {
	if !validRunID.MatchString(runID) {
		return "", &BadRunIDError{RunID: runID}
	}
	dir := filepath.Join(s.root, runID)
	// Defense in depth: the regex already forbids separators, but verify the
	// joined path never escapes the root.
	if dir != s.root && !strings.HasPrefix(dir, s.root+string(filepath.Separator)) {
		return "", &BadRunIDError{RunID: runID}
	}
	return dir, nil
}

// EnsureDir creates the run directory, validating the run ID first.
func (s *Store) EnsureDir(runID string) (string, error) {
	dir, err := s.BuildDir(runID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Write serializes v as indented JSON and atomically replaces
// runs/<runID>/<name>. A failure mid-write leaves either no file or the
// previous file intact.
func (s *Store) Write(runID, name string, v any) error {
	dir, err := s.EnsureDir(runID)
	if err != nil {
		return err
	}
	if err := validateArtifactName(name); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	// Temp file lives in the same directory so the rename is atomic; the ULID
	// suffix keeps concurrent writers of distinct artifacts from colliding.
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%s", name, ulid.Make().String()))
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Read unmarshals runs/<runID>/<name> into out. Returns *NotFoundError when
// the file is absent and *CorruptError when it does not parse.
func (s *Store) Read(runID, name string, out any) error {
	dir, err := s.BuildDir(runID)
	if err != nil {
		return err
	}
	if err := validateArtifactName(name); err != nil {
		return err
	}
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &NotFoundError{RunID: runID, Name: name}
		}
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return &CorruptError{RunID: runID, Name: name, Err: err}
	}
	return nil
}

// ReadRaw returns the raw bytes of an artifact without parsing.
func (s *Store) ReadRaw(runID, name string) ([]byte, error) {
	dir, err := s.BuildDir(runID)
	if err != nil {
		return nil, err
	}
	if err := validateArtifactName(name); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{RunID: runID, Name: name}
		}
		return nil, err
	}
	return b, nil
}

// Exists reports whether the artifact file is present.
func (s *Store) Exists(runID, name string) bool {
	dir, err := s.BuildDir(runID)
	if err != nil {
		return false
	}
	if err := validateArtifactName(name); err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(dir, name))
	return err == nil
}

// List returns the sorted artifact filenames present in the run directory,
// skipping in-flight temp files.
func (s *Store) List(runID string) ([]string, error) {
	dir, err := s.BuildDir(runID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{RunID: runID, Name: ""}
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Size returns the byte size of an artifact file.
func (s *Store) Size(runID, name string) (int64, error) {
	dir, err := s.BuildDir(runID)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(filepath.Join(dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, &NotFoundError{RunID: runID, Name: name}
		}
		return 0, err
	}
	return info.Size(), nil
}

func validateArtifactName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid artifact name: %q", name)
	}
	return nil
}

// IsNotFound reports whether err is an artifact NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
