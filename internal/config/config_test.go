package config

import "testing"

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("OCR_DPI", "200")
	t.Setenv("OCR_PDF_TEXT_LAYER", "no")
	t.Setenv("OCR_MIN_ALNUM_RATIO", "0.4")
	t.Setenv("INBOX_WORKERS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OCRDPI != 200 || cfg.OCRPDFTextLayer || cfg.OCRMinAlnum != 0.4 {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.InboxWorkers != 2 {
		t.Fatalf("bad int should fall back, got %d", cfg.InboxWorkers)
	}

	o := cfg.OCR()
	if o.DPI != 200 || !o.DisablePDFTextLayer || o.PrimaryPSM != 0 {
		t.Fatalf("ocr projection: %+v", o)
	}
	if o.Language != "spa" {
		t.Fatalf("lang=%q", o.Language)
	}
}

func TestMailSettings(t *testing.T) {
	t.Setenv("MAIL_PROVIDER", " IMAP ")
	t.Setenv("IMAP_SECURE", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MailProvider != "imap" || cfg.IMAPSecure {
		t.Fatalf("provider=%q secure=%v", cfg.MailProvider, cfg.IMAPSecure)
	}
	if cfg.IMAPPort != 993 || cfg.MailLabel != "INBOX" || cfg.MailQuery != "has:attachment" || cfg.MailSinceDays != 14 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestRequire(t *testing.T) {
	var cfg Config
	if err := cfg.Require("CATALOG_API_TOKEN", " "); err == nil {
		t.Fatalf("expected error")
	}
	if err := cfg.Require("CATALOG_API_TOKEN", "abc"); err != nil {
		t.Fatal(err)
	}
}
