package listener

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"

	"facturas/internal"
	"facturas/internal/config"
	"facturas/internal/connectors"
	"facturas/internal/pipeline"
	"facturas/internal/storage"
)

const invoiceText = `FACTURA ELECTRONICA N° 9001
FECHA EMISION: 02/04/2024
CODIGO DESCRIPCION CANTIDAD PRECIO
123456 COCA COLA 500ML 6 1.200
TOTAL $ 7.200
`

type noAcquirer struct{}

func (noAcquirer) Acquire(context.Context, string) string { return "" }

// failingProcessor rejects files whose name contains "roto" and passes the
// rest to the real pipeline.
type failingProcessor struct {
	next *pipeline.ProcessingService
	mu   sync.Mutex
	seen []string
}

func (p *failingProcessor) ProcessFile(ctx context.Context, path string) (pipeline.ProcessResult, error) {
	p.mu.Lock()
	p.seen = append(p.seen, filepath.Base(path))
	p.mu.Unlock()
	if strings.Contains(filepath.Base(path), "roto") {
		return pipeline.ProcessResult{}, errors.New("corrupt document")
	}
	return p.next.ProcessFile(ctx, path)
}

type stubFetcher struct {
	inbox string
	err   error
}

func (f stubFetcher) FetchAndStore(ctx context.Context, label string, max int) (connectors.FetchResult, error) {
	if f.err != nil {
		return connectors.FetchResult{}, f.err
	}
	path := filepath.Join(f.inbox, "mail_0001.txt")
	if err := os.WriteFile(path, []byte(strings.ReplaceAll(invoiceText, "9001", "9002")), 0o644); err != nil {
		return connectors.FetchResult{}, err
	}
	return connectors.FetchResult{Fetched: 1, Stored: 1}, nil
}

func setup(t *testing.T, autoExport bool) (config.Config, *storage.DB, *failingProcessor) {
	t.Helper()
	root := t.TempDir()
	cfg := config.Config{
		InboxDir:          filepath.Join(root, "inbox"),
		OutputDir:         filepath.Join(root, "out"),
		InboxWorkers:      2,
		InboxAutoExport:   autoExport,
		MatchAlternatives: 3,
		OCRTimeoutSec:     5,
		MailLabel:         "INBOX",
		MailFetchMax:      5,
	}
	if err := os.MkdirAll(cfg.InboxDir, 0o755); err != nil {
		t.Fatal(err)
	}
	db, err := storage.Open(filepath.Join(root, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.UpsertProducts([]internal.ProductRecord{{ID: 1, Name: "Coca Cola 500ml"}}); err != nil {
		t.Fatal(err)
	}
	proc := &failingProcessor{next: pipeline.NewProcessingService(db, cfg, noAcquirer{}, zaptest.NewLogger(t))}
	return cfg, db, proc
}

func writeInbox(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestRunCycleMovesFiles(t *testing.T) {
	cfg, db, proc := setup(t, true)
	writeInbox(t, cfg.InboxDir, "a.txt", invoiceText)
	writeInbox(t, cfg.InboxDir, "roto.txt", invoiceText)
	writeInbox(t, cfg.InboxDir, "notas.docx", "ignored")
	writeInbox(t, cfg.InboxDir, ".mail-123.part", "partial")

	svc := NewService(proc, nil, db, cfg, zaptest.NewLogger(t))
	res, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(CycleResult{Processed: 1, Failed: 1, Exported: 1}, res); diff != "" {
		t.Fatalf("cycle result mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{".mail-123.part", "failed", "notas.docx", "processed"}, listDir(t, cfg.InboxDir)); diff != "" {
		t.Fatalf("inbox mismatch (-want +got):\n%s", diff)
	}
	if got := listDir(t, filepath.Join(cfg.InboxDir, processedDir)); !cmp.Equal(got, []string{"a.txt"}) {
		t.Fatalf("processed=%v", got)
	}
	if got := listDir(t, filepath.Join(cfg.InboxDir, failedDir)); !cmp.Equal(got, []string{"roto.txt"}) {
		t.Fatalf("failed=%v", got)
	}

	exported, err := db.ListInvoicesByStatus("exported", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(exported) != 1 || exported[0].ItemCount != 1 {
		t.Fatalf("exported invoices=%+v", exported)
	}

	out := filepath.Join(cfg.OutputDir, "inbox", listDir(t, filepath.Join(cfg.OutputDir, "inbox"))[0])
	if !strings.HasSuffix(out, "_a.xlsx") {
		t.Fatalf("unexpected export name %s", out)
	}
	f, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header and one item, got %d rows", len(rows))
	}
}

func TestRunCycleEmptyInboxAndSecondPass(t *testing.T) {
	cfg, db, proc := setup(t, false)
	svc := NewService(proc, nil, db, cfg, zaptest.NewLogger(t))

	res, err := svc.RunCycle(context.Background())
	if err != nil || res != (CycleResult{}) {
		t.Fatalf("empty inbox: res=%+v err=%v", res, err)
	}

	writeInbox(t, cfg.InboxDir, "a.txt", invoiceText)
	if _, err := svc.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	// same name arrives again
	writeInbox(t, cfg.InboxDir, "a.txt", invoiceText)
	res, err = svc.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 1 || res.Exported != 0 {
		t.Fatalf("second pass=%+v", res)
	}
	if got := listDir(t, filepath.Join(cfg.InboxDir, processedDir)); !cmp.Equal(got, []string{"a-1.txt", "a.txt"}) {
		t.Fatalf("processed=%v", got)
	}

	// identical content is one invoice
	processed, err := db.ListInvoicesByStatus("processed", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(processed) != 1 {
		t.Fatalf("expected one invoice, got %d", len(processed))
	}
}

func TestRunCycleFetchesMail(t *testing.T) {
	cfg, db, proc := setup(t, false)
	svc := NewService(proc, stubFetcher{inbox: cfg.InboxDir}, db, cfg, zaptest.NewLogger(t))

	res, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(CycleResult{Fetched: 1, Stored: 1, Processed: 1}, res); diff != "" {
		t.Fatalf("cycle result mismatch (-want +got):\n%s", diff)
	}
}

func TestRunCycleMailOutageStillProcessesInbox(t *testing.T) {
	cfg, db, proc := setup(t, false)
	writeInbox(t, cfg.InboxDir, "a.txt", invoiceText)
	svc := NewService(proc, stubFetcher{err: errors.New("imap down")}, db, cfg, zaptest.NewLogger(t))

	res, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 1 {
		t.Fatalf("res=%+v", res)
	}
}

func TestRunCycleCanceled(t *testing.T) {
	cfg, db, proc := setup(t, false)
	writeInbox(t, cfg.InboxDir, "a.txt", invoiceText)
	svc := NewService(proc, nil, db, cfg, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.RunCycle(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(proc.seen) != 0 {
		t.Fatalf("processed after cancel: %v", proc.seen)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg, db, proc := setup(t, false)
	svc := NewService(proc, nil, db, cfg, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Run(ctx); err != nil {
		t.Fatal(err)
	}
}

// cancelingAcquirer stops the watcher while a scan is being read.
type cancelingAcquirer struct {
	cancel context.CancelFunc
}

func (a cancelingAcquirer) Acquire(ctx context.Context, path string) string {
	a.cancel()
	<-ctx.Done()
	return ""
}

func TestRunCycleCanceledMidDocumentKeepsFile(t *testing.T) {
	cfg, db, _ := setup(t, true)
	writeInbox(t, cfg.InboxDir, "scan.png", "not decoded by the stub")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	proc := pipeline.NewProcessingService(db, cfg, cancelingAcquirer{cancel: cancel}, zaptest.NewLogger(t))
	svc := NewService(proc, nil, db, cfg, zaptest.NewLogger(t))

	res, err := svc.RunCycle(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.Processed != 0 || res.Failed != 0 {
		t.Fatalf("res=%+v", res)
	}
	if diff := cmp.Diff([]string{"scan.png"}, listDir(t, cfg.InboxDir)); diff != "" {
		t.Fatalf("inbox mismatch (-want +got):\n%s", diff)
	}
	for _, status := range []string{"pending", "empty", "processed", "exported"} {
		rows, err := db.ListInvoicesByStatus(status, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != 0 {
			t.Fatalf("interrupted document stored as %s: %+v", status, rows)
		}
	}
}
