package reindex

import (
	"context"
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"

	helperrors "github.com/onec-help/onechelp/internal/errors"
	"github.com/onec-help/onechelp/internal/hbk"
)

// Stream yields parsed entries one at a time.
type Stream interface {
	Next() (*hbk.Entry, bool)
	Skipped() int
}

// Source supplies the documentation entries for a rebuild.
type Source interface {
	// Path identifies the source for the job record.
	Path() string
	// Fingerprint returns a content hash used to detect an unchanged
	// source between rebuilds.
	Fingerprint(ctx context.Context) (string, error)
	// Open starts a parse pass.
	Open(ctx context.Context) (Stream, error)
}

// ArchiveSource reads entries from an .hbk archive on disk.
type ArchiveSource struct {
	path   string
	parser *hbk.Parser
}

// NewArchiveSource creates a source over the archive at path.
func NewArchiveSource(path string, parser *hbk.Parser) *ArchiveSource {
	if parser == nil {
		parser = hbk.NewParser()
	}
	return &ArchiveSource{path: path, parser: parser}
}

func (a *ArchiveSource) Path() string { return a.path }

func (a *ArchiveSource) Fingerprint(ctx context.Context) (string, error) {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return "", helperrors.New(helperrors.ErrCodeArchiveNotFound, "cannot read archive", err).
			WithDetail("path", a.path)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data)), nil
}

func (a *ArchiveSource) Open(ctx context.Context) (Stream, error) {
	return a.parser.ParseFile(a.path)
}
