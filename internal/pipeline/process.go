package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"facturas/internal"
	"facturas/internal/catalog"
	"facturas/internal/config"
	"facturas/internal/storage"
	"facturas/internal/util"
)

// TextAcquirer turns a document on disk into raw text. Implementations never
// fail; an unreadable document yields "".
type TextAcquirer interface {
	Acquire(ctx context.Context, path string) string
}

// Extract runs the field extractors and the line-item parser over rawText and
// attaches catalog matches.
func Extract(rawText string, matcher *Matcher) internal.ExtractionResult {
	if matcher == nil {
		matcher = NewMatcher(nil)
	}
	res := internal.ExtractionResult{
		RawText:       rawText,
		Items:         ParseItems(rawText),
		Date:          ExtractDate(rawText),
		InvoiceNumber: ExtractInvoiceNumber(rawText),
		Total:         ExtractTotal(rawText),
	}
	for i := range res.Items {
		if entry, ok := matcher.Match(res.Items[i].RawName); ok {
			res.Items[i].MatchedProduct = entry
			res.Items[i].MatchConfidence = true
		}
	}
	return res
}

type ProcessingService struct {
	db       *storage.DB
	cfg      config.Config
	acquirer TextAcquirer
	logger   *zap.Logger
}

func NewProcessingService(db *storage.DB, cfg config.Config, acquirer TextAcquirer, logger *zap.Logger) *ProcessingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessingService{db: db, cfg: cfg, acquirer: acquirer, logger: logger.Named("pipeline")}
}

type ProcessResult struct {
	InvoiceID int
	TraceID   string
	Items     int
	Matched   int
	Total     *int64
}

// document is a source file read into memory with its extracted text.
type document struct {
	path string
	kind internal.DocumentKind
	hash string
	text string
}

// ProcessFile extracts and stores one invoice. E-mail files are routed to
// ProcessEmail.
func (s *ProcessingService) ProcessFile(ctx context.Context, path string) (ProcessResult, error) {
	kind, err := DocumentKindOf(path)
	if err != nil {
		return ProcessResult{}, err
	}
	if kind == internal.DocumentEmail {
		return s.ProcessEmail(ctx, path)
	}

	start := time.Now()
	doc, err := s.readDocument(ctx, path, kind)
	if err != nil {
		return ProcessResult{}, err
	}
	return s.store(doc, start)
}

// ProcessEmail extracts and stores an invoice delivered as an .eml message.
func (s *ProcessingService) ProcessEmail(ctx context.Context, emlPath string) (ProcessResult, error) {
	start := time.Now()
	doc, err := s.readDocument(ctx, emlPath, internal.DocumentEmail)
	if err != nil {
		return ProcessResult{}, err
	}
	return s.store(doc, start)
}

func (s *ProcessingService) readDocument(ctx context.Context, path string, kind internal.DocumentKind) (document, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return document{}, fmt.Errorf("read %s: %w", path, err)
	}
	sum := sha256.Sum256(blob)
	doc := document{path: path, kind: kind, hash: hex.EncodeToString(sum[:])}

	switch kind {
	case internal.DocumentText:
		doc.text = string(blob)
	case internal.DocumentEmail:
		doc.text, err = s.emailText(ctx, blob)
		if err != nil {
			return document{}, fmt.Errorf("read email %s: %w", path, err)
		}
	default:
		doc.text = s.acquire(ctx, path)
	}
	// a local OCR timeout degrades to less text; a canceled caller stores nothing
	if err := ctx.Err(); err != nil {
		return document{}, fmt.Errorf("read %s: %w", path, err)
	}
	return doc, nil
}

// acquire bounds one OCR invocation by the configured timeout.
func (s *ProcessingService) acquire(ctx context.Context, path string) string {
	if s.acquirer == nil {
		s.logger.Warn("no text acquirer configured", zap.String("path", path))
		return ""
	}
	timeout := time.Duration(s.cfg.OCRTimeoutSec) * time.Second
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.acquirer.Acquire(ctx, path)
}

func (s *ProcessingService) matcher() (*Matcher, error) {
	entries, err := s.db.ListCatalog()
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return NewMatcher(catalog.BuildIndex(entries)), nil
}

// alternatives lists runner-up catalog entries per item for the review sheet.
func (s *ProcessingService) alternatives(m *Matcher, items []internal.CandidateLineItem) [][]internal.MatchCandidate {
	out := make([][]internal.MatchCandidate, len(items))
	for i, item := range items {
		for _, alt := range m.Alternatives(item.RawName, item.MatchedProduct, s.cfg.MatchAlternatives) {
			out[i] = append(out[i], internal.MatchCandidate{ProductID: alt.Entry.ID, Name: alt.Entry.DisplayName, Score: alt.Score})
		}
	}
	return out
}

func (s *ProcessingService) store(doc document, start time.Time) (ProcessResult, error) {
	traceID := uuid.NewString()
	acquiredAt := time.Now()

	m, err := s.matcher()
	if err != nil {
		return ProcessResult{}, err
	}
	res := Extract(doc.text, m)
	alts := s.alternatives(m, res.Items)

	in := storage.InvoiceInput{
		SourcePath:    doc.path,
		Kind:          doc.kind,
		Hash:          doc.hash,
		InvoiceNumber: res.InvoiceNumber,
		Total:         res.Total,
		RawText:       doc.text,
	}
	if res.Date != nil {
		in.IssuedAt = util.StringPtr(res.Date.Format(time.DateOnly))
	}
	invoice, err := s.db.UpsertInvoice(in)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("store invoice: %w", err)
	}
	if err := s.db.ReplaceItems(invoice.ID, res.Items, alts); err != nil {
		return ProcessResult{}, fmt.Errorf("store items: %w", err)
	}

	status := "processed"
	if len(res.Items) == 0 {
		status = "empty"
	}
	if err := s.db.UpdateInvoiceStatus(invoice.ID, status); err != nil {
		return ProcessResult{}, err
	}

	matched := 0
	for _, item := range res.Items {
		if item.MatchConfidence {
			matched++
		}
	}

	timings := map[string]float64{
		"acquireMs": float64(acquiredAt.Sub(start).Milliseconds()),
		"totalMs":   float64(time.Since(start).Milliseconds()),
	}
	counts := map[string]int{"items": len(res.Items), "matched": matched, "unmatched": len(res.Items) - matched, "chars": len(doc.text)}
	if err := s.db.InsertRun(traceID, &invoice.ID, timings, counts); err != nil {
		s.logger.Warn("run not recorded", zap.String("trace_id", traceID), zap.Error(err))
	}

	s.logger.Info("invoice processed",
		zap.String("trace_id", traceID),
		zap.Int("invoice_id", invoice.ID),
		zap.String("path", doc.path),
		zap.String("kind", string(doc.kind)),
		zap.Int("items", len(res.Items)),
		zap.Int("matched", matched),
		zap.Float64("total_ms", timings["totalMs"]),
	)
	return ProcessResult{InvoiceID: invoice.ID, TraceID: traceID, Items: len(res.Items), Matched: matched, Total: res.Total}, nil
}

// DocumentKindOf classifies a file by extension.
func DocumentKindOf(path string) (internal.DocumentKind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return internal.DocumentPDF, nil
	case ".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp", ".gif":
		return internal.DocumentImage, nil
	case ".eml":
		return internal.DocumentEmail, nil
	case ".txt":
		return internal.DocumentText, nil
	default:
		return "", fmt.Errorf("unsupported document type: %s", filepath.Base(path))
	}
}
