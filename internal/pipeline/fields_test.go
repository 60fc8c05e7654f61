package pipeline

import (
	"testing"
	"time"
)

func TestExtractDate(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"FECHA EMISION: 15/03/2024", "2024-03-15"},
		{"Fecha 5-1-2023 Folio 88", "2023-01-05"},
		{"emitida 07/11/24", "2024-11-07"},
		{"2024-02-29 vencimiento", "2024-02-29"},
	}
	for _, tt := range tests {
		got := ExtractDate(tt.text)
		if got == nil || got.Format(time.DateOnly) != tt.want {
			t.Fatalf("%q: got %v want %s", tt.text, got, tt.want)
		}
	}
	for _, text := range []string{"sin fecha", "31/02/2024", ""} {
		if got := ExtractDate(text); got != nil {
			t.Fatalf("%q: expected nil, got %v", text, got)
		}
	}
}

func TestExtractInvoiceNumber(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"FACTURA ELECTRONICA N° 004587", "004587"},
		{"Factura Nº: 77", "77"},
		{"Documento N° 123456", "123456"},
		{"Folio 99881 del dia", "99881"},
	}
	for _, tt := range tests {
		got := ExtractInvoiceNumber(tt.text)
		if got == nil || *got != tt.want {
			t.Fatalf("%q: got %v want %s", tt.text, got, tt.want)
		}
	}
	if got := ExtractInvoiceNumber("N 12 sin folio"); got != nil {
		t.Fatalf("expected nil, got %q", *got)
	}
}

func TestExtractTotal(t *testing.T) {
	tests := []struct {
		text string
		want int64
	}{
		{"TOTAL: 150000", 150000},
		{"Total $ 119.000", 119000},
		{"SUBTOTAL 50.000\nTOTAL $119.000", 119000},
		{"total 1.234,56", 1234},
	}
	for _, tt := range tests {
		got := ExtractTotal(tt.text)
		if got == nil || *got != tt.want {
			t.Fatalf("%q: got %v want %d", tt.text, got, tt.want)
		}
	}
	for _, text := range []string{"sin monto", "TOTAL: 99999999999999999999999"} {
		if got := ExtractTotal(text); got != nil {
			t.Fatalf("%q: expected nil, got %d", text, *got)
		}
	}
}
