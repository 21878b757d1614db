package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"chorusd/internal/logging"
)

// Scope names one of the three directories an identifier can own files in.
type Scope string

const (
	// ScopeIntake holds uploaded source files awaiting or undergoing
	// extraction.
	ScopeIntake Scope = "intake"
	// ScopeOutput holds finished chorus clips ready for download.
	ScopeOutput Scope = "output"
	// ScopeTransient holds working files produced during extraction. They
	// never outlive the request that created them.
	ScopeTransient Scope = "transient"
)

// Scopes lists all scopes in cleanup order.
func Scopes() []Scope {
	return []Scope{ScopeIntake, ScopeOutput, ScopeTransient}
}

// Manager owns every file the service writes. Files are named by identifier
// so that a directory listing alone can answer what exists; the in-memory
// registry only accelerates cleanup and never decides existence.
type Manager struct {
	dirs   map[Scope]string
	logger *slog.Logger

	mu    sync.Mutex
	owned map[string]map[string]struct{}
}

// NewManager builds a manager over the three scope directories.
func NewManager(intakeDir, outputDir, transientDir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		dirs: map[Scope]string{
			ScopeIntake:    intakeDir,
			ScopeOutput:    outputDir,
			ScopeTransient: transientDir,
		},
		logger: logging.WithComponent(logger, "storage"),
		owned:  make(map[string]map[string]struct{}),
	}
}

// Dir returns the directory backing a scope.
func (m *Manager) Dir(scope Scope) string {
	return m.dirs[scope]
}

// Allocate reserves a path for identifier in the given scope and records it
// for later cleanup. The suffix includes any extension, for example
// "_normalized.wav" or ".mp3". Nothing is written to disk.
func (m *Manager) Allocate(scope Scope, identifier, suffix string) string {
	path := filepath.Join(m.dirs[scope], identifier+suffix)
	m.register(identifier, path)
	return path
}

// Save streams r to a newly allocated file for identifier in scope and
// returns the path and byte count. The destination directory is created on
// demand. A partial file is removed on error.
func (m *Manager) Save(scope Scope, identifier, suffix string, r io.Reader) (string, int64, error) {
	dir := m.dirs[scope]
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create %s dir: %w", scope, err)
	}

	path := m.Allocate(scope, identifier, suffix)
	file, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create file: %w", err)
	}

	written, err := io.Copy(file, r)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("write file: %w", err)
	}

	m.logger.Debug("saved file",
		logging.String(logging.FieldIdentifier, identifier),
		logging.String(logging.FieldScope, string(scope)),
		logging.String("path", path),
		logging.Int64("bytes", written),
	)
	return path, written, nil
}

// Resolve finds the file owned by identifier in scope by listing the
// directory. It returns an error wrapping os.ErrNotExist when no file
// matches. When multiple files match the lexically first wins.
func (m *Manager) Resolve(scope Scope, identifier string) (string, error) {
	matches, err := m.scan(scope, identifier)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no %s file for %s: %w", scope, identifier, os.ErrNotExist)
	}
	sort.Strings(matches)
	return matches[0], nil
}

// Exists reports whether identifier owns at least one file in scope.
func (m *Manager) Exists(scope Scope, identifier string) bool {
	matches, err := m.scan(scope, identifier)
	return err == nil && len(matches) > 0
}

// Cleanup removes every file owned by identifier across all scopes. The set
// of targets is the union of the registry and a fresh prefix scan of each
// scope directory, so files created by earlier runs are found too. It is
// idempotent and returns the number of files actually removed.
func (m *Manager) Cleanup(identifier string) (int, error) {
	targets := make(map[string]struct{})

	m.mu.Lock()
	for path := range m.owned[identifier] {
		targets[path] = struct{}{}
	}
	delete(m.owned, identifier)
	m.mu.Unlock()

	var errs []error
	for _, scope := range Scopes() {
		matches, err := m.scan(scope, identifier)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, path := range matches {
			targets[path] = struct{}{}
		}
	}

	removed := 0
	for path := range targets {
		err := os.Remove(path)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, os.ErrNotExist):
			// already gone, cleanup stays idempotent
		default:
			errs = append(errs, err)
		}
	}

	if removed > 0 {
		m.logger.Info("cleaned up identifier files",
			logging.String(logging.FieldIdentifier, identifier),
			logging.Int("removed", removed),
		)
	}
	return removed, errors.Join(errs...)
}

// CleanupScope removes only the files identifier owns in a single scope.
func (m *Manager) CleanupScope(scope Scope, identifier string) (int, error) {
	matches, err := m.scan(scope, identifier)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	for path := range m.owned[identifier] {
		if filepath.Dir(path) == m.dirs[scope] {
			matches = append(matches, path)
			delete(m.owned[identifier], path)
		}
	}
	if len(m.owned[identifier]) == 0 {
		delete(m.owned, identifier)
	}
	m.mu.Unlock()

	removed := 0
	var errs []error
	seen := make(map[string]struct{}, len(matches))
	for _, path := range matches {
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		err := os.Remove(path)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, os.ErrNotExist):
		default:
			errs = append(errs, err)
		}
	}
	return removed, errors.Join(errs...)
}

func (m *Manager) register(identifier, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths, ok := m.owned[identifier]
	if !ok {
		paths = make(map[string]struct{})
		m.owned[identifier] = paths
	}
	paths[path] = struct{}{}
}

// scan lists scope's directory for files owned by identifier. Ownership is a
// name prefix match where the identifier is followed by nothing, a dot, or
// an underscore, so one identifier can never claim another's files.
func (m *Manager) scan(scope Scope, identifier string) ([]string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, errors.New("identifier required")
	}

	dir := m.dirs[scope]
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s dir: %w", scope, err)
	}

	var matches []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !ownedName(name, identifier) {
			continue
		}
		matches = append(matches, filepath.Join(dir, name))
	}
	return matches, nil
}

func ownedName(name, identifier string) bool {
	if !strings.HasPrefix(name, identifier) {
		return false
	}
	rest := name[len(identifier):]
	return rest == "" || rest[0] == '.' || rest[0] == '_'
}
