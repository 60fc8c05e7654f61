package pipeline

import (
	"strings"

	"facturas/internal/util"
)

// tableState tracks where a line sits relative to the item table of an invoice.
type tableState int

const (
	stateBeforeTable tableState = iota
	stateInTable
	stateAfterTable
)

func (s tableState) String() string {
	switch s {
	case stateInTable:
		return "in_table"
	case stateAfterTable:
		return "after_table"
	default:
		return "before_table"
	}
}

const tableEndMinAmount = 50000

var headerKeywords = map[string]struct{}{
	"codigo": {}, "cod": {}, "descripcion": {}, "detalle": {}, "producto": {}, "articulo": {},
	"cantidad": {}, "cant": {}, "precio": {}, "unitario": {}, "valor": {}, "item": {}, "um": {},
}

var totalKeywords = map[string]struct{}{
	"total": {}, "subtotal": {}, "neto": {}, "monto": {},
}

var noiseKeywords = map[string]struct{}{
	"rut": {}, "total": {}, "subtotal": {}, "neto": {}, "iva": {}, "fecha": {}, "factura": {},
	"giro": {}, "direccion": {}, "telefono": {}, "fono": {}, "email": {}, "vendedor": {},
	"cliente": {}, "comuna": {}, "ciudad": {}, "pagina": {}, "timbre": {}, "sii": {},
	"boleta": {}, "exento": {}, "vencimiento": {}, "pago": {}, "folio": {},
}

// nextState applies the table transitions for one line: a column header
// enters the table from any state, a total line carrying a large amount
// closes it.
func nextState(s tableState, line string) tableState {
	if isHeaderLine(line) {
		return stateInTable
	}
	if s == stateInTable && isTableEnd(line) {
		return stateAfterTable
	}
	return s
}

func isHeaderLine(line string) bool {
	hits := 0
	for _, w := range strings.Fields(util.NormalizeName(line)) {
		if _, ok := headerKeywords[w]; ok {
			hits++
		}
	}
	return hits >= 2
}

func isTableEnd(line string) bool {
	if !hasKeyword(line, totalKeywords) {
		return false
	}
	for _, tok := range numericTokens(line, nil) {
		if tok.value > tableEndMinAmount {
			return true
		}
	}
	return false
}

// isNoiseLine reports header/footer lines (tax id, totals, dates, addresses)
// that never describe a product.
func isNoiseLine(line string) bool {
	return hasKeyword(line, noiseKeywords)
}

func hasKeyword(line string, keywords map[string]struct{}) bool {
	for _, w := range strings.Fields(util.NormalizeName(line)) {
		if _, ok := keywords[w]; ok {
			return true
		}
	}
	return false
}
