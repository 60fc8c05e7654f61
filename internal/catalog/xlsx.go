package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"facturas/internal"
	"facturas/internal/util"
)

type xlsxColumns struct {
	id, name, sku, category, price, stock int
}

// LoadCatalogXLSX reads a product export from the first sheet. The first row
// must be a header naming at least the product name column; rows without an
// id column are numbered by their sheet row.
func LoadCatalogXLSX(path string) ([]internal.ProductRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("catalog xlsx has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols := inferColumns(rows[0])
	if cols.name < 0 {
		return nil, fmt.Errorf("catalog xlsx: no name column in header %v", rows[0])
	}

	out := make([]internal.ProductRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		name := util.CollapseSpaces(cell(row, cols.name))
		if name == "" {
			continue
		}
		id := i + 2
		if cols.id >= 0 {
			parsed, err := strconv.Atoi(strings.TrimSpace(cell(row, cols.id)))
			if err != nil {
				continue
			}
			id = parsed
		}

		p := internal.ProductRecord{ID: id, Name: name, RawJSON: "{}"}
		if v := strings.TrimSpace(cell(row, cols.sku)); v != "" {
			p.SKU = util.StringPtr(v)
		}
		if v := strings.TrimSpace(cell(row, cols.category)); v != "" {
			p.Category = util.StringPtr(v)
		}
		if v, ok := util.ParseAmount(cell(row, cols.price)); ok {
			p.Price = util.Int64Ptr(v)
		}
		if v, err := strconv.Atoi(strings.TrimSpace(cell(row, cols.stock))); err == nil {
			p.Stock = util.IntPtr(v)
		}
		out = append(out, p)
	}
	return out, nil
}

func inferColumns(header []string) xlsxColumns {
	cols := xlsxColumns{id: -1, name: -1, sku: -1, category: -1, price: -1, stock: -1}
	for i, h := range header {
		switch n := util.NormalizeName(h); {
		case n == "id":
			cols.id = setOnce(cols.id, i)
		case n == "sku" || strings.Contains(n, "codigo") || strings.Contains(n, "barra"):
			cols.sku = setOnce(cols.sku, i)
		case strings.Contains(n, "nombre") || strings.Contains(n, "producto") || strings.Contains(n, "descripcion"):
			cols.name = setOnce(cols.name, i)
		case strings.Contains(n, "categoria"):
			cols.category = setOnce(cols.category, i)
		case strings.Contains(n, "precio") && !strings.Contains(n, "compra"):
			cols.price = setOnce(cols.price, i)
		case strings.Contains(n, "stock"):
			cols.stock = setOnce(cols.stock, i)
		}
	}
	return cols
}

func setOnce(current, i int) int {
	if current >= 0 {
		return current
	}
	return i
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
