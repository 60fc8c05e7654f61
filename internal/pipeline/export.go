package pipeline

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/xuri/excelize/v2"

	"facturas/internal"
	"facturas/internal/util"
)

const summarySheet = "factura"

// ExportReviewXLSX writes the review sheet of extracted items. When invoice is
// non-nil a second sheet carries the invoice header fields.
func ExportReviewXLSX(invoice *internal.InvoiceRow, rows []internal.ReviewRow, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	headers := []string{
		"line_no", "method", "raw_line", "name", "quantity", "unit_price", "subtotal",
		"matched", "product_id", "product_name", "product_sku",
		"alternative_name", "alternative_score",
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	var sum int64
	for i, row := range rows {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, row.LineNo)
		set(2, row.Method)
		set(3, row.RawLine)
		set(4, row.Name)
		set(5, row.Quantity)
		set(6, row.UnitPrice)
		set(7, row.Subtotal)
		set(8, row.Matched)
		set(9, derefInt(row.ProductID))
		set(10, derefString(row.ProductName))
		set(11, derefString(row.ProductSKU))
		set(12, derefString(row.AlternativeName))
		set(13, derefInt(row.AlternativeScore))
		sum += row.Subtotal
	}

	if invoice != nil {
		if _, err := f.NewSheet(summarySheet); err != nil {
			return err
		}
		summary := [][]any{
			{"invoice_id", invoice.ID},
			{"source", invoice.SourcePath},
			{"kind", string(invoice.Kind)},
			{"invoice_number", derefString(invoice.InvoiceNumber)},
			{"issued_at", derefString(invoice.IssuedAt)},
			{"total", derefAmount(invoice.Total)},
			{"items", len(rows)},
			{"items_sum", util.FormatAmount(sum)},
		}
		for i, kv := range summary {
			for j, v := range kv {
				cell, _ := excelize.CoordinatesToCellName(j+1, i+1)
				_ = f.SetCellValue(summarySheet, cell, v)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

// reviewRows builds review rows in memory, ordered like storage returns them:
// unmatched first, then by line.
func reviewRows(items []internal.CandidateLineItem, alts [][]internal.MatchCandidate) []internal.ReviewRow {
	out := make([]internal.ReviewRow, 0, len(items))
	for i, item := range items {
		row := internal.ReviewRow{
			LineNo:    item.LineNo,
			Method:    string(item.Method),
			RawLine:   item.RawLine,
			Name:      item.RawName,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal(),
			Matched:   item.MatchConfidence,
		}
		if p := item.MatchedProduct; p != nil {
			row.ProductID = util.IntPtr(p.ID)
			row.ProductName = util.StringPtr(p.DisplayName)
			row.ProductSKU = p.SKU
		}
		if i < len(alts) && len(alts[i]) > 0 {
			row.AlternativeName = util.StringPtr(alts[i][0].Name)
			row.AlternativeScore = util.IntPtr(alts[i][0].Score)
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Matched != out[j].Matched {
			return !out[i].Matched
		}
		return out[i].LineNo < out[j].LineNo
	})
	return out
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefInt(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}

func derefAmount(v *int64) string {
	if v == nil {
		return ""
	}
	return util.FormatAmount(*v)
}
