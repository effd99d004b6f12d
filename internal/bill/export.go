package bill

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	itemsSheet = "Line Items"
	pagesSheet = "Pages"

	// builtin "0.00" number format
	moneyFormat = 2
)

// Export renders an extraction as an XLSX workbook with one row per line
// item and a per page reconciliation summary
func Export(e *Extraction) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	for _, sheet := range []string{itemsSheet, pagesSheet} {
		if index, _ := f.GetSheetIndex(sheet); index == -1 {
			if _, err := f.NewSheet(sheet); err != nil {
				return nil, fmt.Errorf("creating sheet %s: %w", sheet, err)
			}
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("removing default sheet: %w", err)
	}
	activeIndex, _ := f.GetSheetIndex(itemsSheet)
	f.SetActiveSheet(activeIndex)

	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: moneyFormat})
	if err != nil {
		return nil, fmt.Errorf("creating money style: %w", err)
	}

	if err := writeRow(f, itemsSheet, 1, "Page", "Item", "Quantity", "Rate", "Amount", "Confidence", "Notes"); err != nil {
		return nil, err
	}
	row := 2
	for _, p := range e.Pages {
		for _, item := range p.Items {
			var rate any
			if item.HasRate() {
				rate = *item.Rate
			}
			if err := writeRow(f, itemsSheet, row,
				p.PageNo,
				item.Name,
				item.Quantity.InexactFloat64(),
				rate,
				item.Amount,
				item.Confidence,
				strings.Join(item.Notes, "; "),
			); err != nil {
				return nil, err
			}
			row++
		}
	}
	if err := styleRange(f, itemsSheet, "D", "E", row-1, moneyStyle); err != nil {
		return nil, err
	}

	if err := writeRow(f, pagesSheet, 1, "Page", "Type", "Items", "Calculated", "Declared", "Discrepancy %", "Status", "State", "Retries"); err != nil {
		return nil, err
	}
	for i, p := range e.Pages {
		var declared any
		if p.Reconciliation.DeclaredTotal != nil {
			declared = *p.Reconciliation.DeclaredTotal
		}
		if err := writeRow(f, pagesSheet, i+2,
			p.PageNo,
			p.PageType,
			len(p.Items),
			p.Reconciliation.CalculatedTotal,
			declared,
			p.Reconciliation.DiscrepancyPercent,
			string(p.ReconciliationStatus),
			string(p.State),
			p.RetryCount,
		); err != nil {
			return nil, err
		}
	}
	if err := styleRange(f, pagesSheet, "D", "E", len(e.Pages)+1, moneyStyle); err != nil {
		return nil, err
	}

	for _, w := range []struct {
		sheet, from, to string
		width           float64
	}{
		{itemsSheet, "A", "A", 6},  // page
		{itemsSheet, "B", "B", 40}, // item
		{itemsSheet, "C", "F", 12}, // numbers
		{itemsSheet, "G", "G", 60}, // notes
		{pagesSheet, "B", "B", 18},
		{pagesSheet, "D", "I", 16},
	} {
		if err := f.SetColWidth(w.sheet, w.from, w.to, w.width); err != nil {
			return nil, fmt.Errorf("setting column width on %s: %w", w.sheet, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// writeRow writes values from column A onwards. Nil values leave the cell
// empty; decimals are written with exactly two places.
func writeRow(f *excelize.File, sheet string, row int, values ...any) error {
	for i, v := range values {
		if v == nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return fmt.Errorf("addressing %s row %d: %w", sheet, row, err)
		}
		if d, ok := v.(decimal.Decimal); ok {
			err = f.SetCellFloat(sheet, cell, d.Round(2).InexactFloat64(), 2, 64)
		} else {
			err = f.SetCellValue(sheet, cell, v)
		}
		if err != nil {
			return fmt.Errorf("writing %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

func styleRange(f *excelize.File, sheet, fromCol, toCol string, lastRow, style int) error {
	if lastRow < 2 {
		return nil
	}
	if err := f.SetCellStyle(sheet, fmt.Sprintf("%s2", fromCol), fmt.Sprintf("%s%d", toCol, lastRow), style); err != nil {
		return fmt.Errorf("styling %s: %w", sheet, err)
	}
	return nil
}
