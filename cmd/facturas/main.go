package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"facturas/internal/catalog"
	"facturas/internal/config"
	"facturas/internal/connectors"
	"facturas/internal/listener"
	"facturas/internal/logging"
	"facturas/internal/ocr"
	"facturas/internal/pipeline"
	"facturas/internal/storage"
	"facturas/internal/util"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger, err := logging.New(cfg.AppEnv)
	must(err)
	defer logger.Sync()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := os.Args[1]
	switch cmd {
	case "catalog:sync":
		svc := catalog.NewSyncService(db, cfg, logger)
		count, err := svc.Sync(ctx)
		must(err)
		fmt.Printf("catalog sync complete: %d products\n", count)
	case "catalog:import":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		path := fs.String("xlsx", "", "catalog workbook path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*path) == "" {
			must(fmt.Errorf("--xlsx is required"))
		}
		svc := catalog.NewSyncService(db, cfg, logger)
		count, err := svc.Import(*path)
		must(err)
		fmt.Printf("catalog import complete: %d products\n", count)
	case "invoice:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		path := fs.String("file", "", "invoice pdf, image or text file")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*path) == "" {
			must(fmt.Errorf("--file is required"))
		}
		res, err := newProcessor(db, cfg, logger).ProcessFile(ctx, *path)
		must(err)
		printResult(res)
	case "invoice:process-email":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		path := fs.String("eml", "", "raw .eml message path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*path) == "" {
			must(fmt.Errorf("--eml is required"))
		}
		res, err := newProcessor(db, cfg, logger).ProcessEmail(ctx, *path)
		must(err)
		printResult(res)
	case "invoice:export":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		invoiceID := fs.Int("invoiceId", 0, "internal invoice id")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if *invoiceID == 0 || strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--invoiceId and --out are required"))
		}
		invoice, err := db.MustInvoice(*invoiceID)
		must(err)
		rows, err := db.GetReviewRows(*invoiceID)
		must(err)
		if len(rows) == 0 {
			must(fmt.Errorf("no items for invoiceId=%d", *invoiceID))
		}
		must(pipeline.ExportReviewXLSX(&invoice, rows, *out))
		must(db.UpdateInvoiceStatus(*invoiceID, "exported"))
		fmt.Printf("exported %d rows to %s\n", len(rows), *out)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailProvider, "gmail|imap")
		label := fs.String("label", cfg.MailLabel, "mailbox/label")
		max := fs.Int("max", cfg.MailFetchMax, "max messages")
		_ = fs.Parse(os.Args[2:])
		conn, err := connectors.NewMailConnector(ctx, strings.ToLower(strings.TrimSpace(*provider)), cfg)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.InboxDir, conn, logger)
		result, err := fetch.FetchAndStore(ctx, *label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d\n", *provider, result.Fetched, result.Stored)
	case "inbox:watch":
		var fetcher listener.MailFetcher
		if cfg.MailProvider != "" {
			conn, err := connectors.NewMailConnector(ctx, cfg.MailProvider, cfg)
			must(err)
			fetcher = connectors.NewFetchService(db, cfg.InboxDir, conn, logger)
		}
		s := listener.NewService(newProcessor(db, cfg, logger), fetcher, db, cfg, logger)
		must(s.Run(ctx))
	case "run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "invoice file path")
		output := fs.String("output", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if *input == "" || *output == "" {
			must(fmt.Errorf("--input --output are required"))
		}
		res, err := newProcessor(db, cfg, logger).RunOnce(ctx, *input, *output)
		must(err)
		matched := 0
		for _, item := range res.Items {
			if item.MatchConfidence {
				matched++
			}
		}
		fmt.Printf("run done items=%d matched=%d total=%s output=%s\n", len(res.Items), matched, formatTotal(res.Total), *output)
	default:
		usage()
		os.Exit(1)
	}
}

func newProcessor(db *storage.DB, cfg config.Config, logger *zap.Logger) *pipeline.ProcessingService {
	ocrCfg := cfg.OCR()
	acquirer := ocr.NewAcquirer(ocrCfg, ocr.NewDefaultEngine(ocrCfg, logger), ocr.NewDefaultRasterizer(ocrCfg, logger), logger)
	return pipeline.NewProcessingService(db, cfg, acquirer, logger)
}

func printResult(res pipeline.ProcessResult) {
	fmt.Printf("processed invoice id=%d items=%d matched=%d total=%s trace=%s\n",
		res.InvoiceID, res.Items, res.Matched, formatTotal(res.Total), res.TraceID)
}

func formatTotal(total *int64) string {
	if total == nil {
		return "-"
	}
	return util.FormatAmount(*total)
}

func usage() {
	fmt.Println("usage: facturas <command>")
	fmt.Println("commands:")
	fmt.Println("  catalog:sync")
	fmt.Println("  catalog:import --xlsx=./catalogo.xlsx")
	fmt.Println("  invoice:process --file=./factura.pdf")
	fmt.Println("  invoice:process-email --eml=./factura.eml")
	fmt.Println("  invoice:export --invoiceId=1 --out=./out/factura.xlsx")
	fmt.Println("  mail:fetch [--provider=gmail|imap] [--label=INBOX] [--max=20]")
	fmt.Println("  inbox:watch")
	fmt.Println("  run --input=./factura.jpg --output=./out/factura.xlsx")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
