package hbk

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	helperrors "github.com/onec-help/onechelp/internal/errors"
)

// DefaultMaxArchiveSize bounds the archive size in bytes.
const DefaultMaxArchiveSize = 50 * 1024 * 1024

// versionPattern matches platform version markers inside
// __categories__ metadata files, e.g. "8.3.24".
var versionPattern = regexp.MustCompile(`8\.\d+\.\d+`)

// Parser decodes .hbk archives into a stream of entries.
type Parser struct {
	maxSize int64
	logger  *slog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithMaxSize overrides the archive size limit.
func WithMaxSize(n int64) Option {
	return func(p *Parser) { p.maxSize = n }
}

// WithLogger sets the logger used for skip warnings.
func WithLogger(l *slog.Logger) Option {
	return func(p *Parser) { p.logger = l }
}

// NewParser creates a Parser with default limits.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		maxSize: DefaultMaxArchiveSize,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseFile reads and parses an archive from disk.
func (p *Parser) ParseFile(filePath string) (*Scan, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, helperrors.New(helperrors.ErrCodeArchiveNotFound,
			fmt.Sprintf("archive not found: %s", filePath), err)
	}
	if info.Size() > p.maxSize {
		return nil, helperrors.New(helperrors.ErrCodeArchiveTooLarge,
			fmt.Sprintf("archive is %d bytes, limit is %d", info.Size(), p.maxSize), nil)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, helperrors.New(helperrors.ErrCodeArchiveNotFound,
			fmt.Sprintf("cannot read archive: %s", filePath), err)
	}
	return p.Parse(data)
}

// Parse opens raw archive bytes and prepares a scan over its entries.
// The scan is lazy, single-pass and forward-only: object type
// declarations are collected up front so that member pages can resolve
// their owners, then member pages are decoded one at a time.
//
// An unrecognized container or top-level structure is fatal. Malformed
// individual pages are logged and skipped during the scan.
func (p *Parser) Parse(data []byte) (*Scan, error) {
	if int64(len(data)) > p.maxSize {
		return nil, helperrors.New(helperrors.ErrCodeArchiveTooLarge,
			fmt.Sprintf("archive is %d bytes, limit is %d", len(data), p.maxSize), nil)
	}

	reader, err := openContainer(data)
	if err != nil {
		return nil, err
	}

	scan := &Scan{
		parser:   p,
		owners:   make(map[string]*Entry),
		versions: make(map[string]string),
		seen:     make(map[string]struct{}),
	}

	// Metadata first: section versions must be known before any page
	// is decoded.
	for _, f := range reader.File {
		if !f.FileInfo().IsDir() && classifyPath(f.Name) == pageCategories {
			scan.readCategories(f)
		}
	}

	var memberFiles []*zip.File
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		switch classifyPath(f.Name) {
		case pageObject:
			scan.collectObject(f)
		case pageGlobal, pageMethod, pageProperty, pageEvent:
			memberFiles = append(memberFiles, f)
		}
	}

	// Deterministic yield order for the collected object types.
	sort.Slice(scan.objects, func(i, j int) bool {
		return scan.objects[i].Name < scan.objects[j].Name
	})
	scan.files = memberFiles

	return scan, nil
}

// pageClass classifies a path inside the archive.
type pageClass int

const (
	pageSkip pageClass = iota
	pageCategories
	pageObject
	pageGlobal
	pageMethod
	pageProperty
	pageEvent
)

// classifyPath maps an archive path to its page class. Object pages
// live under objects/, their members one level deeper under methods/,
// properties/ or events/; global functions live under the
// "Global context" area. Templates (.st) and anything unrecognized are
// skipped.
func classifyPath(name string) pageClass {
	normalized := strings.ReplaceAll(name, "\\", "/")

	if path.Base(normalized) == "__categories__" {
		return pageCategories
	}
	if !strings.HasSuffix(strings.ToLower(normalized), ".html") {
		return pageSkip
	}

	global := strings.HasPrefix(normalized, "Global context/")
	switch {
	case global && strings.Contains(normalized, "/methods/"):
		return pageGlobal
	case strings.HasPrefix(normalized, "objects/") && strings.Contains(normalized, "/methods/"):
		return pageMethod
	case strings.HasPrefix(normalized, "objects/") && strings.Contains(normalized, "/properties/"):
		return pageProperty
	case strings.HasPrefix(normalized, "objects/") && strings.Contains(normalized, "/events/"):
		return pageEvent
	case strings.HasPrefix(normalized, "objects/"):
		return pageObject
	}
	return pageSkip
}

// kindForClass maps member page classes to entry kinds.
func kindForClass(c pageClass) Kind {
	switch c {
	case pageGlobal:
		return KindGlobalFunction
	case pageMethod:
		return KindMethod
	case pageProperty:
		return KindProperty
	case pageEvent:
		return KindEvent
	default:
		return KindObjectType
	}
}

// Scan is a lazy, single-pass iterator over archive entries. It is not
// restartable: the archive is read exactly once, forward-only.
type Scan struct {
	parser   *Parser
	objects  []*Entry
	owners   map[string]*Entry
	versions map[string]string
	files    []*zip.File

	objPos  int
	filePos int
	seen    map[string]struct{}

	skipped int
}

// Next returns the next entry, or false when the scan is exhausted.
// Object types are yielded before members so that a consumer observes
// owners ahead of the entries that reference them.
func (s *Scan) Next() (*Entry, bool) {
	if s.objPos < len(s.objects) {
		e := s.objects[s.objPos]
		s.objPos++
		return e, true
	}

	for s.filePos < len(s.files) {
		f := s.files[s.filePos]
		s.filePos++

		entry, ok := s.decodeMember(f)
		if !ok {
			s.skipped++
			continue
		}
		return entry, true
	}
	return nil, false
}

// Skipped reports how many member pages were dropped during the scan.
func (s *Scan) Skipped() int {
	return s.skipped
}

// collectObject parses an object type page during the declaration
// phase. Malformed object pages are dropped with a warning.
func (s *Scan) collectObject(f *zip.File) {
	pg, err := readPage(f)
	if err != nil {
		s.parser.logger.Warn("skipping malformed object page",
			slog.String("path", f.Name),
			slog.String("error", err.Error()))
		return
	}
	if pg.OwnerName != "" {
		s.parser.logger.Warn("skipping nested object page",
			slog.String("path", f.Name))
		return
	}

	entry := s.entryFromPage(pg, KindObjectType, "", f)
	if entry == nil {
		return
	}

	s.objects = append(s.objects, entry)
	s.owners[ownerKey(pg.Name)] = entry
	if pg.Alias != "" {
		s.owners[ownerKey(pg.Alias)] = entry
	}
}

// decodeMember parses one member or global-function page, resolving
// its owner against the declarations collected up front.
func (s *Scan) decodeMember(f *zip.File) (*Entry, bool) {
	class := classifyPath(f.Name)
	kind := kindForClass(class)

	pg, err := readPage(f)
	if err != nil {
		s.parser.logger.Warn("skipping malformed page",
			slog.String("path", f.Name),
			slog.String("error", err.Error()))
		return nil, false
	}

	owner := ""
	if kind != KindGlobalFunction {
		resolved, ok := s.owners[ownerKey(pg.OwnerName)]
		if !ok && pg.OwnerAlias != "" {
			resolved, ok = s.owners[ownerKey(pg.OwnerAlias)]
		}
		if !ok {
			s.parser.logger.Warn("dropping entry with unresolved owner",
				slog.String("path", f.Name),
				slog.String("owner", pg.OwnerName))
			return nil, false
		}
		owner = resolved.Name
	}

	entry := s.entryFromPage(pg, kind, owner, f)
	if entry == nil {
		return nil, false
	}
	return entry, true
}

// entryFromPage builds an Entry and enforces (kind, owner, name)
// uniqueness across the pass.
func (s *Scan) entryFromPage(pg *page, kind Kind, owner string, f *zip.File) *Entry {
	key := string(kind) + "|" + ownerKey(owner) + "|" + ownerKey(pg.Name)
	if _, dup := s.seen[key]; dup {
		s.parser.logger.Warn("skipping duplicate entry",
			slog.String("path", f.Name),
			slog.String("name", pg.Name))
		return nil
	}
	s.seen[key] = struct{}{}

	offset, _ := f.DataOffset()

	var aliases []string
	if pg.Alias != "" {
		aliases = []string{pg.Alias}
	}

	return &Entry{
		Kind:         kind,
		Name:         pg.Name,
		Aliases:      aliases,
		Owner:        owner,
		Signature:    pg.Signature,
		Parameters:   pg.Parameters,
		ReturnType:   pg.ReturnType,
		Description:  pg.Description,
		Example:      pg.Example,
		Version:      s.versions[topSegment(f.Name)],
		SourcePath:   f.Name,
		SourceOffset: offset,
	}
}

// readCategories extracts the platform version marker from a
// __categories__ metadata file for the section it lives in.
func (s *Scan) readCategories(f *zip.File) {
	raw, err := readFile(f)
	if err != nil {
		return
	}
	content, err := decodePage(raw)
	if err != nil {
		return
	}

	if m := versionPattern.FindString(content); m != "" {
		s.versions[topSegment(f.Name)] = m
	}
}

// topSegment returns the first path segment of an archive path.
func topSegment(name string) string {
	normalized := strings.ReplaceAll(name, "\\", "/")
	if i := strings.Index(normalized, "/"); i > 0 {
		return normalized[:i]
	}
	return normalized
}

// ownerKey normalizes a name for owner-map lookups.
func ownerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func readPage(f *zip.File) (*page, error) {
	raw, err := readFile(f)
	if err != nil {
		return nil, err
	}
	return parsePage(raw)
}

func readFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", f.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
