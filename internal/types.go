package internal

import "time"

type ItemMethod string

const (
	MethodCodePrefix ItemMethod = "code_prefix"
	MethodPriceLine  ItemMethod = "price_line"
	MethodTabular    ItemMethod = "tabular"
)

type DocumentKind string

const (
	DocumentImage DocumentKind = "image"
	DocumentPDF   DocumentKind = "pdf"
	DocumentEmail DocumentKind = "email"
	DocumentText  DocumentKind = "text"
)

// CatalogEntry is a read-only product reference supplied by the caller.
type CatalogEntry struct {
	ID          int     `json:"id"`
	DisplayName string  `json:"name"`
	SKU         *string `json:"sku,omitempty"`
}

// CandidateLineItem is one product row detected in an invoice. Quantity is
// always >= 1 and UnitPrice >= 0; MatchConfidence is true iff MatchedProduct is set.
type CandidateLineItem struct {
	LineNo          int
	RawLine         string
	RawName         string
	Quantity        int
	UnitPrice       int64
	MatchedProduct  *CatalogEntry
	MatchConfidence bool
	Method          ItemMethod
	InTable         bool
}

func (c CandidateLineItem) Subtotal() int64 {
	return int64(c.Quantity) * c.UnitPrice
}

type ExtractionResult struct {
	RawText       string
	Items         []CandidateLineItem
	Date          *time.Time
	InvoiceNumber *string
	Total         *int64
}

type InvoiceRow struct {
	ID            int
	SourcePath    string
	Kind          DocumentKind
	InvoiceNumber *string
	IssuedAt      *string
	Total         *int64
	ItemCount     int
	Status        string
	CreatedAt     string
}

type ReviewRow struct {
	LineNo           int
	Method           string
	RawLine          string
	Name             string
	Quantity         int
	UnitPrice        int64
	Subtotal         int64
	Matched          bool
	ProductID        *int
	ProductName      *string
	ProductSKU       *string
	AlternativeName  *string
	AlternativeScore *int
}

// ProductRecord is a catalog product as synced from the retail application.
type ProductRecord struct {
	ID            int
	Name          string
	SKU           *string
	Category      *string
	Price         *int64
	PurchasePrice *int64
	Stock         *int
	RawJSON       string
}

func (p ProductRecord) Entry() CatalogEntry {
	return CatalogEntry{ID: p.ID, DisplayName: p.Name, SKU: p.SKU}
}

// MatchCandidate is a runner-up catalog entry kept for human review.
type MatchCandidate struct {
	ProductID int    `json:"productId"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
}

// FetchedMailMessage is a raw supplier mail pulled from a mailbox.
type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
