package listener

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"facturas/internal/config"
	"facturas/internal/connectors"
	"facturas/internal/pipeline"
	"facturas/internal/storage"
)

const (
	processedDir = "processed"
	failedDir    = "failed"
)

// DocumentProcessor extracts and stores one invoice file.
type DocumentProcessor interface {
	ProcessFile(ctx context.Context, path string) (pipeline.ProcessResult, error)
}

// MailFetcher drops new supplier mails into the inbox directory.
type MailFetcher interface {
	FetchAndStore(ctx context.Context, label string, max int) (connectors.FetchResult, error)
}

// Service watches the inbox directory. Each cycle optionally pulls new mails
// into the inbox, processes every supported file concurrently and moves it
// to processed/ or failed/.
type Service struct {
	processor DocumentProcessor
	fetcher   MailFetcher
	db        *storage.DB
	cfg       config.Config
	logger    *zap.Logger
}

// NewService builds the watcher. fetcher may be nil when no mailbox is
// configured.
func NewService(processor DocumentProcessor, fetcher MailFetcher, db *storage.DB, cfg config.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{processor: processor, fetcher: fetcher, db: db, cfg: cfg, logger: logger.Named("listener")}
}

type CycleResult struct {
	Fetched   int
	Stored    int
	Processed int
	Failed    int
	Exported  int
}

func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(max(s.cfg.InboxIntervalSec, 1)) * time.Second
	for {
		res, err := s.RunCycle(ctx)
		if err != nil {
			s.logger.Error("cycle failed", zap.Error(err))
		} else {
			s.logger.Info("cycle done",
				zap.Int("fetched", res.Fetched),
				zap.Int("stored", res.Stored),
				zap.Int("processed", res.Processed),
				zap.Int("failed", res.Failed),
				zap.Int("exported", res.Exported),
			)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// RunCycle performs one pass over the inbox. A failing document never stops
// the others; the returned error covers listing and cancellation only.
func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult
	if s.fetcher != nil {
		fr, err := s.fetcher.FetchAndStore(ctx, s.cfg.MailLabel, s.cfg.MailFetchMax)
		if err != nil {
			// a mailbox outage must not block files already in the inbox
			s.logger.Warn("mail fetch failed", zap.Error(err))
		}
		res.Fetched, res.Stored = fr.Fetched, fr.Stored
	}

	files, err := s.pendingFiles()
	if err != nil {
		return res, err
	}

	var processed, failed, exported atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.cfg.InboxWorkers, 1))
	for _, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			status, didExport := s.handle(gctx, path)
			switch status {
			case outcomeProcessed:
				processed.Add(1)
			case outcomeFailed:
				failed.Add(1)
			}
			if didExport {
				exported.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	res.Processed = int(processed.Load())
	res.Failed = int(failed.Load())
	res.Exported = int(exported.Load())
	return res, err
}

// pendingFiles lists supported documents directly under the inbox, sorted by
// name. Dot files are partial writes and are skipped.
func (s *Service) pendingFiles() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.InboxDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if _, err := pipeline.DocumentKindOf(e.Name()); err != nil {
			continue
		}
		out = append(out, filepath.Join(s.cfg.InboxDir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeFailed
	// interrupted documents stay in the inbox for the next run
	outcomeInterrupted
)

func (s *Service) handle(ctx context.Context, path string) (outcome, bool) {
	logger := s.logger.With(zap.String("path", path))

	result, err := s.processor.ProcessFile(ctx, path)
	if err != nil && ctx.Err() != nil {
		logger.Info("document interrupted, left in inbox", zap.Error(err))
		return outcomeInterrupted, false
	}
	if err != nil {
		logger.Error("document failed", zap.Error(err))
		if _, mvErr := moveTo(filepath.Join(s.cfg.InboxDir, failedDir), path); mvErr != nil {
			logger.Error("move to failed", zap.Error(mvErr))
		}
		return outcomeFailed, false
	}

	if _, err := moveTo(filepath.Join(s.cfg.InboxDir, processedDir), path); err != nil {
		logger.Error("move to processed", zap.Error(err))
	}

	if !s.cfg.InboxAutoExport || result.Items == 0 {
		return outcomeProcessed, false
	}
	out, err := s.export(result.InvoiceID, path)
	if err != nil {
		logger.Error("export failed", zap.Int("invoice_id", result.InvoiceID), zap.Error(err))
		return outcomeProcessed, false
	}
	logger.Info("review exported", zap.Int("invoice_id", result.InvoiceID), zap.String("output", out))
	return outcomeProcessed, true
}

// export writes the review workbook of an invoice and marks it exported.
func (s *Service) export(invoiceID int, source string) (string, error) {
	invoice, err := s.db.MustInvoice(invoiceID)
	if err != nil {
		return "", err
	}
	rows, err := s.db.GetReviewRows(invoiceID)
	if err != nil {
		return "", err
	}
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	out := filepath.Join(s.cfg.OutputDir, "inbox", fmt.Sprintf("%d_%s.xlsx", invoiceID, sanitizeName(base)))
	if err := pipeline.ExportReviewXLSX(&invoice, rows, out); err != nil {
		return "", err
	}
	return out, s.db.UpdateInvoiceStatus(invoiceID, "exported")
}

// moveTo moves path into dir, suffixing the name when it is taken.
func moveTo(dir, path string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	target := filepath.Join(dir, base)
	for n := 1; ; n++ {
		if _, err := os.Stat(target); os.IsNotExist(err) {
			break
		}
		target = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, n, ext))
	}
	return target, os.Rename(path, target)
}

func sanitizeName(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_")
	out := repl.Replace(input)
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
