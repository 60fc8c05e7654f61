package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"facturas/internal/ocr"
)

type Config struct {
	AppEnv    string
	DBPath    string
	InboxDir  string
	OutputDir string

	CatalogAPIBaseURL   string
	CatalogAPIToken     string
	CatalogRateLimitRPS int
	CatalogTimeoutMs    int
	CatalogPageSize     int

	TesseractPath   string
	PdftoppmPath    string
	OCRLanguage     string
	TessdataDir     string
	OCRDPI          int
	OCRMaxPages     int
	OCRMaxImageEdge int
	OCREarlyExit    int
	OCRMinAlnum     float64
	OCRPDFTextLayer bool
	OCRTimeoutSec   int

	MatchAlternatives int

	InboxIntervalSec int
	InboxWorkers     int
	InboxAutoExport  bool

	MailProvider  string
	MailLabel     string
	MailFetchMax  int
	MailQuery     string
	MailSinceDays int

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		DBPath:    getEnv("DB_PATH", filepath.Join(cwd, "data", "facturas.db")),
		InboxDir:  getEnv("INBOX_DIR", filepath.Join(cwd, "data", "inbox")),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		CatalogAPIBaseURL:   getEnv("CATALOG_API_BASE_URL", "http://localhost:8000/api"),
		CatalogAPIToken:     getEnv("CATALOG_API_TOKEN", ""),
		CatalogRateLimitRPS: getEnvInt("CATALOG_RATE_LIMIT_RPS", 5),
		CatalogTimeoutMs:    getEnvInt("CATALOG_TIMEOUT_MS", 30000),
		CatalogPageSize:     getEnvInt("CATALOG_PAGE_SIZE", 100),

		TesseractPath:   getEnv("TESSERACT_PATH", "tesseract"),
		PdftoppmPath:    getEnv("PDFTOPPM_PATH", "pdftoppm"),
		OCRLanguage:     getEnv("OCR_LANG", "spa"),
		TessdataDir:     getEnv("TESSDATA_PREFIX", ""),
		OCRDPI:          getEnvInt("OCR_DPI", 300),
		OCRMaxPages:     getEnvInt("OCR_MAX_PAGES", 3),
		OCRMaxImageEdge: getEnvInt("OCR_MAX_IMAGE_EDGE", 2000),
		OCREarlyExit:    getEnvInt("OCR_EARLY_EXIT_CHARS", 200),
		OCRMinAlnum:     getEnvFloat("OCR_MIN_ALNUM_RATIO", 0.30),
		OCRPDFTextLayer: getEnvBool("OCR_PDF_TEXT_LAYER", true),
		OCRTimeoutSec:   getEnvInt("OCR_TIMEOUT_SEC", 120),

		MatchAlternatives: getEnvInt("MATCH_ALTERNATIVES", 3),

		InboxIntervalSec: getEnvInt("INBOX_INTERVAL_SEC", 30),
		InboxWorkers:     getEnvInt("INBOX_WORKERS", 2),
		InboxAutoExport:  getEnvBool("INBOX_AUTO_EXPORT", true),

		MailProvider:  strings.ToLower(strings.TrimSpace(getEnv("MAIL_PROVIDER", ""))),
		MailLabel:     getEnv("MAIL_LABEL", "INBOX"),
		MailFetchMax:  getEnvInt("MAIL_FETCH_MAX", 20),
		MailQuery:     getEnv("MAIL_QUERY", "has:attachment"),
		MailSinceDays: getEnvInt("MAIL_SINCE_DAYS", 14),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),
	}

	return cfg, nil
}

// OCR projects the acquisition settings.
func (c Config) OCR() ocr.Config {
	return ocr.Config{
		TesseractPath:       c.TesseractPath,
		PdftoppmPath:        c.PdftoppmPath,
		Language:            c.OCRLanguage,
		TessdataDir:         c.TessdataDir,
		DPI:                 c.OCRDPI,
		MaxPages:            c.OCRMaxPages,
		MaxImageEdge:        c.OCRMaxImageEdge,
		EarlyExitChars:      c.OCREarlyExit,
		MinAlnumRatio:       c.OCRMinAlnum,
		DisablePDFTextLayer: !c.OCRPDFTextLayer,
	}
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	switch value {
	case "1", "true", "yes", "on", "si":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}
