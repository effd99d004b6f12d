package bill

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/bill-extractor/internal/reconcile"
	"github.com/zombor/bill-extractor/internal/scanning"
)

// MaxDocumentSize is the largest document accepted by upload or download
const MaxDocumentSize = 32 << 20

// PageSplitter turns a document into one image per page
type PageSplitter interface {
	Pages(data []byte, contentType string) ([]scanning.Page, error)
}

// IDGenerator generates unique IDs for extractions
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Options tunes how documents are processed
type Options struct {
	// Workers bounds how many pages are processed at once
	Workers int
	// CallTimeout bounds each model call
	CallTimeout time.Duration
	Metrics     *Metrics
	HTTPClient  *http.Client
}

// DefaultOptions returns the default processing options
func DefaultOptions() Options {
	return Options{
		Workers:     16,
		CallTimeout: 60 * time.Second,
	}
}

// Service handles bill extraction operations
type Service struct {
	db           DB
	storage      Storage
	splitter     PageSplitter
	orchestrator *Orchestrator
	opts         Options
	idGenerator  IDGenerator
	timeSource   TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, extractor scanning.Extractor, storage Storage, splitter PageSplitter, cfg reconcile.Config, opts Options) *Service {
	return NewServiceWithDeps(db, extractor, storage, splitter, cfg, opts, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, extractor scanning.Extractor, storage Storage, splitter PageSplitter, cfg reconcile.Config, opts Options, idGen IDGenerator, timeSrc TimeSource) *Service {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Service{
		db:           db,
		storage:      storage,
		splitter:     splitter,
		orchestrator: NewOrchestrator(extractor, cfg, opts.CallTimeout, opts.Metrics),
		opts:         opts,
		idGenerator:  idGen,
		timeSource:   timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	if base == "" {
		base = "bill"
	}

	return base + unsafeFilenameChars.ReplaceAllString(ext, "")
}

// Extract stores a document, extracts line items from every page and saves
// the result. Page failures are reported per page; an error is returned only
// when the document itself cannot be stored, split or saved.
func (s *Service) Extract(ctx context.Context, filename string, data []byte, contentType string) (*Extraction, error) {
	return s.extract(ctx, filename, data, contentType, "")
}

func (s *Service) extract(ctx context.Context, filename string, data []byte, contentType, source string) (*Extraction, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	pages, err := s.splitter.Pages(data, contentType)
	if err != nil {
		slog.Error("Failed to split document",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("splitting document: %w", err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("document has no pages")
	}

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	extraction := &Extraction{
		ID:          id,
		Filename:    savedPath,
		ContentType: contentType,
		Source:      source,
		Pages:       s.processPages(ctx, pages),
		CreatedAt:   now,
	}
	extraction.aggregate()

	if err := s.db.SaveExtraction(extraction); err != nil {
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("saving extraction to database: %w", err)
	}

	slog.Info("Extracted document",
		"id", id,
		"pages", len(extraction.Pages),
		"items", extraction.TotalItemCount,
		"reconciled", extraction.Reconciled(),
		"total_tokens", extraction.TokenUsage.TotalTokens,
	)
	return extraction, nil
}

// processPages runs every page through the orchestrator with bounded
// parallelism. Results keep page order.
func (s *Service) processPages(ctx context.Context, pages []scanning.Page) []PageResult {
	results := make([]PageResult, len(pages))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, page := range pages {
		g.Go(func() error {
			start := time.Now()
			session := s.orchestrator.Run(ctx, page.Image, page.Number)
			s.opts.Metrics.observePage(session, time.Since(start))
			results[i] = newPageResult(session)
			return nil
		})
	}
	g.Wait()

	return results
}

// ExtractURL downloads a document and extracts it
func (s *Service) ExtractURL(ctx context.Context, documentURL string) (*Extraction, error) {
	u, err := url.Parse(documentURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid document url %q", documentURL)
	}

	data, contentType, err := s.download(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("downloading document: %w", err)
	}

	filename := path.Base(u.Path)
	if filename == "/" || filename == "." {
		filename = "document"
	}

	return s.extract(ctx, filename, data, contentType, documentURL)
}

func (s *Service) download(ctx context.Context, documentURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, documentURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := s.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetching document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDocumentSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading document: %w", err)
	}
	if len(data) > MaxDocumentSize {
		return nil, "", fmt.Errorf("document exceeds %d bytes", MaxDocumentSize)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

// GetExtraction retrieves an extraction by ID
func (s *Service) GetExtraction(id string) (*Extraction, error) {
	extraction, err := s.db.GetExtraction(id)
	if err != nil {
		return nil, fmt.Errorf("getting extraction: %w", err)
	}
	return extraction, nil
}

// ListExtractions returns all extractions
func (s *Service) ListExtractions() ([]*Extraction, error) {
	extractions, err := s.db.ListExtractions()
	if err != nil {
		return nil, fmt.Errorf("listing extractions: %w", err)
	}
	return extractions, nil
}

// DeleteExtraction removes an extraction and its file
func (s *Service) DeleteExtraction(id string) error {
	extraction, err := s.db.GetExtraction(id)
	if err != nil {
		return fmt.Errorf("getting extraction for deletion: %w", err)
	}

	if err := s.storage.Delete(extraction.Filename); err != nil {
		slog.Warn("Failed to delete file", "filename", extraction.Filename, "error", err)
	}

	if err := s.db.DeleteExtraction(id); err != nil {
		return fmt.Errorf("deleting extraction from database: %w", err)
	}
	return nil
}

// GetExtractionFile retrieves the original document for an extraction
func (s *Service) GetExtractionFile(id string) ([]byte, string, error) {
	extraction, err := s.db.GetExtraction(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting extraction: %w", err)
	}

	data, err := s.storage.Get(extraction.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting extraction file: %w", err)
	}

	return data, extraction.ContentType, nil
}

// ExportExtraction renders an extraction as an XLSX workbook
func (s *Service) ExportExtraction(id string) ([]byte, error) {
	extraction, err := s.db.GetExtraction(id)
	if err != nil {
		return nil, fmt.Errorf("getting extraction: %w", err)
	}

	data, err := Export(extraction)
	if err != nil {
		return nil, fmt.Errorf("exporting extraction: %w", err)
	}
	return data, nil
}
