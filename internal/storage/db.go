package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"facturas/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := conn.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS products (
  id INTEGER PRIMARY KEY,
  sku TEXT,
  name TEXT NOT NULL,
  category TEXT,
  price INTEGER,
  purchasePrice INTEGER,
  stock INTEGER,
  raw_json TEXT NOT NULL,
  lastSeenAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_products_name ON products(name);
CREATE INDEX IF NOT EXISTS idx_products_sku ON products(sku);

CREATE TABLE IF NOT EXISTS invoices (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  sourcePath TEXT NOT NULL,
  kind TEXT NOT NULL,
  hash TEXT NOT NULL UNIQUE,
  invoiceNumber TEXT,
  issuedAt TEXT,
  total INTEGER,
  itemCount INTEGER NOT NULL DEFAULT 0,
  rawText TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'pending',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS invoice_items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  invoiceId INTEGER NOT NULL,
  lineNo INTEGER NOT NULL,
  method TEXT NOT NULL,
  rawLine TEXT NOT NULL,
  rawName TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unitPrice INTEGER NOT NULL,
  subtotal INTEGER NOT NULL,
  inTable INTEGER NOT NULL DEFAULT 0,
  matched INTEGER NOT NULL DEFAULT 0,
  productId INTEGER,
  alternativesJson TEXT NOT NULL DEFAULT '[]',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(invoiceId, lineNo, rawLine),
  FOREIGN KEY(invoiceId) REFERENCES invoices(id)
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  invoiceId INTEGER,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(invoiceId) REFERENCES invoices(id)
);

CREATE TABLE IF NOT EXISTS mail_messages (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT NOT NULL,
  hash TEXT NOT NULL,
  rawPath TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) UpsertProducts(products []internal.ProductRecord) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO products (id, sku, name, category, price, purchasePrice, stock, raw_json, lastSeenAt)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(id) DO UPDATE SET
  sku=excluded.sku,
  name=excluded.name,
  category=excluded.category,
  price=excluded.price,
  purchasePrice=excluded.purchasePrice,
  stock=excluded.stock,
  raw_json=excluded.raw_json,
  lastSeenAt=CURRENT_TIMESTAMP
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range products {
		raw := p.RawJSON
		if raw == "" {
			raw = "{}"
		}
		if _, err := stmt.Exec(p.ID, p.SKU, p.Name, p.Category, p.Price, p.PurchasePrice, p.Stock, raw); err != nil {
			return fmt.Errorf("upsert product %d: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

func (d *DB) ListProducts() ([]internal.ProductRecord, error) {
	rows, err := d.conn.Query(`
SELECT id, sku, name, category, price, purchasePrice, stock, raw_json
FROM products ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ProductRecord
	for rows.Next() {
		var p internal.ProductRecord
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.Price, &p.PurchasePrice, &p.Stock, &p.RawJSON); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListCatalog returns the matcher snapshot ordered by id, so ties between
// equally scored entries resolve the same way on every run.
func (d *DB) ListCatalog() ([]internal.CatalogEntry, error) {
	products, err := d.ListProducts()
	if err != nil {
		return nil, err
	}
	out := make([]internal.CatalogEntry, 0, len(products))
	for _, p := range products {
		out = append(out, p.Entry())
	}
	return out, nil
}

// InvoiceInput is what a processing run knows about one document.
type InvoiceInput struct {
	SourcePath    string
	Kind          internal.DocumentKind
	Hash          string
	InvoiceNumber *string
	IssuedAt      *string
	Total         *int64
	RawText       string
}

// UpsertInvoice stores the invoice header keyed by content hash and returns
// its row. Reprocessing the same document updates the existing row.
func (d *DB) UpsertInvoice(in InvoiceInput) (internal.InvoiceRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO invoices (sourcePath, kind, hash, invoiceNumber, issuedAt, total, rawText, status)
VALUES (?, ?, ?, ?, ?, ?, ?, 'pending')
ON CONFLICT(hash) DO UPDATE SET
  sourcePath=excluded.sourcePath,
  kind=excluded.kind,
  invoiceNumber=excluded.invoiceNumber,
  issuedAt=excluded.issuedAt,
  total=excluded.total,
  rawText=excluded.rawText,
  updatedAt=CURRENT_TIMESTAMP
`, in.SourcePath, string(in.Kind), in.Hash, in.InvoiceNumber, in.IssuedAt, in.Total, in.RawText)
	if err != nil {
		return internal.InvoiceRow{}, err
	}

	var id int
	if err := d.conn.QueryRow(`SELECT id FROM invoices WHERE hash = ?`, in.Hash).Scan(&id); err != nil {
		return internal.InvoiceRow{}, err
	}
	row, err := d.GetInvoice(id)
	if err != nil {
		return internal.InvoiceRow{}, err
	}
	if row == nil {
		return internal.InvoiceRow{}, errors.New("failed to upsert invoice")
	}
	return *row, nil
}

const invoiceColumns = `id, sourcePath, kind, invoiceNumber, issuedAt, total, itemCount, status, createdAt`

func scanInvoice(scan func(dest ...any) error) (internal.InvoiceRow, error) {
	var row internal.InvoiceRow
	var kind string
	err := scan(&row.ID, &row.SourcePath, &kind, &row.InvoiceNumber, &row.IssuedAt, &row.Total, &row.ItemCount, &row.Status, &row.CreatedAt)
	row.Kind = internal.DocumentKind(kind)
	return row, err
}

func (d *DB) GetInvoice(id int) (*internal.InvoiceRow, error) {
	row, err := scanInvoice(d.conn.QueryRow(`SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) MustInvoice(id int) (internal.InvoiceRow, error) {
	row, err := d.GetInvoice(id)
	if err != nil {
		return internal.InvoiceRow{}, err
	}
	if row == nil {
		return internal.InvoiceRow{}, fmt.Errorf("invoice not found: id=%d", id)
	}
	return *row, nil
}

func (d *DB) ListInvoicesByStatus(status string, limit int) ([]internal.InvoiceRow, error) {
	rows, err := d.conn.Query(`SELECT `+invoiceColumns+` FROM invoices WHERE status = ? ORDER BY id ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.InvoiceRow
	for rows.Next() {
		row, err := scanInvoice(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateInvoiceStatus(invoiceID int, status string) error {
	_, err := d.conn.Exec(`UPDATE invoices SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, invoiceID)
	return err
}

// ReplaceItems swaps the stored line items of an invoice in one transaction.
// alternatives is indexed like items and may be shorter.
func (d *DB) ReplaceItems(invoiceID int, items []internal.CandidateLineItem, alternatives [][]internal.MatchCandidate) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM invoice_items WHERE invoiceId = ?`, invoiceID); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
INSERT INTO invoice_items (invoiceId, lineNo, method, rawLine, rawName, quantity, unitPrice, subtotal, inTable, matched, productId, alternativesJson)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(invoiceId, lineNo, rawLine) DO NOTHING
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, item := range items {
		var productID *int
		if item.MatchedProduct != nil {
			productID = &item.MatchedProduct.ID
		}
		alts := []internal.MatchCandidate{}
		if i < len(alternatives) && alternatives[i] != nil {
			alts = alternatives[i]
		}
		altsJSON, _ := json.Marshal(alts)
		if _, err := stmt.Exec(
			invoiceID, item.LineNo, string(item.Method), item.RawLine, item.RawName,
			item.Quantity, item.UnitPrice, item.Subtotal(), item.InTable, item.MatchConfidence,
			productID, string(altsJSON),
		); err != nil {
			return fmt.Errorf("insert item line %d: %w", item.LineNo, err)
		}
	}

	if _, err := tx.Exec(`UPDATE invoices SET itemCount = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, len(items), invoiceID); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *DB) InsertRun(traceID string, invoiceID *int, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, invoiceId, timingsJson, countsJson) VALUES (?, ?, ?, ?)`, traceID, invoiceID, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) CountRuns(invoiceID int) (int, error) {
	var n int
	err := d.conn.QueryRow(`SELECT COUNT(*) FROM runs WHERE invoiceId = ?`, invoiceID).Scan(&n)
	return n, err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

// GetReviewRows lists the items of an invoice for human review: unmatched
// lines first, then by line number.
func (d *DB) GetReviewRows(invoiceID int) ([]internal.ReviewRow, error) {
	rows, err := d.conn.Query(`
SELECT
  i.lineNo,
  i.method,
  i.rawLine,
  i.rawName,
  i.quantity,
  i.unitPrice,
  i.subtotal,
  i.matched,
  p.id,
  p.name,
  p.sku,
  i.alternativesJson
FROM invoice_items i
LEFT JOIN products p ON p.id = i.productId
WHERE i.invoiceId = ?
ORDER BY i.matched ASC, i.lineNo ASC
`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ReviewRow
	for rows.Next() {
		var row internal.ReviewRow
		var altsJSON string
		if err := rows.Scan(
			&row.LineNo,
			&row.Method,
			&row.RawLine,
			&row.Name,
			&row.Quantity,
			&row.UnitPrice,
			&row.Subtotal,
			&row.Matched,
			&row.ProductID,
			&row.ProductName,
			&row.ProductSKU,
			&altsJSON,
		); err != nil {
			return nil, err
		}

		var alts []internal.MatchCandidate
		_ = json.Unmarshal([]byte(altsJSON), &alts)
		if len(alts) > 0 {
			row.AlternativeName = &alts[0].Name
			row.AlternativeScore = &alts[0].Score
		}
		out = append(out, row)
	}

	return out, rows.Err()
}

// RecordMailMessage logs a fetched supplier mail. It reports false when the
// provider already delivered the same message id.
func (d *DB) RecordMailMessage(msg internal.FetchedMailMessage, hash, rawPath string) (bool, error) {
	res, err := d.conn.Exec(`
INSERT INTO mail_messages (provider, messageId, subject, sender, receivedAt, hash, rawPath)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO NOTHING
`, msg.Provider, msg.MessageID, msg.Subject, msg.From, msg.ReceivedAt, hash, rawPath)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *DB) CountMailMessages(provider string) (int, error) {
	var n int
	err := d.conn.QueryRow(`SELECT COUNT(*) FROM mail_messages WHERE provider = ?`, provider).Scan(&n)
	return n, err
}
