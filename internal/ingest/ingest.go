package ingest

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"chorusd/internal/faults"
	"chorusd/internal/logging"
	"chorusd/internal/storage"
)

// Receipt describes an accepted upload.
type Receipt struct {
	Identifier string `json:"identifier"`
	Filename   string `json:"filename"`
	Extension  string `json:"extension"`
	SizeBytes  int64  `json:"size_bytes"`
	Path       string `json:"-"`
}

// Intake admits uploads into the intake scope. It owns the format allowlist
// and the size cap; anything it rejects never reaches disk or reaches disk
// only briefly before being removed.
type Intake struct {
	store      *storage.Manager
	allowed    []string
	maxBytes   int64
	logger     *slog.Logger
	identifier func() string
}

// NewIntake builds an intake gate. Allowed extensions must be lowercase and
// dot-prefixed, as config normalization guarantees.
func NewIntake(store *storage.Manager, allowedExtensions []string, maxBytes int64, logger *slog.Logger) *Intake {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Intake{
		store:      store,
		allowed:    append([]string(nil), allowedExtensions...),
		maxBytes:   maxBytes,
		logger:     logging.WithComponent(logger, "ingest"),
		identifier: func() string { return uuid.NewString() },
	}
}

// AllowedExtensions returns the accepted extensions.
func (in *Intake) AllowedExtensions() []string {
	return append([]string(nil), in.allowed...)
}

// Admit validates the upload and, when acceptable, streams it into the
// intake scope under a fresh identifier. declaredSize may be negative when
// the transport does not know the size up front; the cap is enforced while
// streaming either way.
func (in *Intake) Admit(filename string, declaredSize int64, r io.Reader) (Receipt, error) {
	name := normalizeFilename(filename)
	ext := strings.ToLower(filepath.Ext(name))
	if !in.extensionAllowed(ext) {
		return Receipt{}, faults.UnsupportedFormat(ext, in.allowed)
	}
	if declaredSize > in.maxBytes {
		return Receipt{}, faults.FileTooLarge(declaredSize, in.maxBytes)
	}

	identifier := in.identifier()

	// Read one byte past the cap so an at-limit file passes and an
	// over-limit file is caught without trusting the declared size.
	limited := io.LimitReader(r, in.maxBytes+1)
	path, written, err := in.store.Save(storage.ScopeIntake, identifier, ext, limited)
	if err != nil {
		return Receipt{}, fmt.Errorf("admit upload: %w", err)
	}
	if written > in.maxBytes {
		if _, cleanupErr := in.store.Cleanup(identifier); cleanupErr != nil {
			in.logger.Warn("failed to remove oversized upload",
				logging.String(logging.FieldIdentifier, identifier),
				logging.Error(cleanupErr),
			)
		}
		return Receipt{}, faults.FileTooLarge(written, in.maxBytes)
	}

	in.logger.Info("upload admitted",
		logging.String(logging.FieldIdentifier, identifier),
		logging.String("filename", name),
		logging.Int64("bytes", written),
	)
	return Receipt{
		Identifier: identifier,
		Filename:   name,
		Extension:  ext,
		SizeBytes:  written,
		Path:       path,
	}, nil
}

func (in *Intake) extensionAllowed(ext string) bool {
	if ext == "" {
		return false
	}
	for _, allowed := range in.allowed {
		if ext == allowed {
			return true
		}
	}
	return false
}

// normalizeFilename strips any path components and applies Unicode NFC so
// the same name always hashes and logs identically regardless of the
// client's composition form.
func normalizeFilename(filename string) string {
	base := filepath.Base(strings.TrimSpace(filename))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return norm.NFC.String(base)
}
