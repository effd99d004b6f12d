package bill

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/zombor/bill-extractor/internal/reconcile"
)

var _ = Describe("Export", func() {
	var (
		extraction *Extraction
		workbook   *excelize.File
	)

	BeforeEach(func() {
		rate := decimal.RequireFromString("50")
		declared := decimal.RequireFromString("200")
		extraction = &Extraction{
			ID: "abc",
			Pages: []PageResult{
				{
					PageNo:   1,
					PageType: "Pharmacy",
					Items: []reconcile.LineItem{
						{Name: "Item A", Quantity: decimal.NewFromInt(2), Rate: &rate, Amount: decimal.RequireFromString("100"), Confidence: 0.95},
						{Name: "Item B", Quantity: decimal.NewFromInt(1), Amount: decimal.RequireFromString("80.50"), Confidence: 0.75, Notes: []string{"first", "second"}},
					},
					ReconciliationStatus: reconcile.StatusMismatch,
					Reconciliation: reconcile.Result{
						CalculatedTotal:    decimal.RequireFromString("180.50"),
						DeclaredTotal:      &declared,
						DiscrepancyPercent: 9.75,
						Status:             reconcile.StatusMismatch,
					},
					State:      StateExhausted,
					RetryCount: 3,
				},
			},
		}
	})

	JustBeforeEach(func() {
		data, err := Export(extraction)
		Expect(err).NotTo(HaveOccurred())
		workbook, err = excelize.OpenReader(bytes.NewReader(data))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if workbook != nil {
			workbook.Close()
		}
	})

	It("writes only the line item and page sheets", func() {
		Expect(workbook.GetSheetList()).To(Equal([]string{itemsSheet, pagesSheet}))
	})

	It("writes one row per line item", func() {
		rows, err := workbook.GetRows(itemsSheet)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(3))
		Expect(rows[0][1]).To(Equal("Item"))
		Expect(rows[1][1]).To(Equal("Item A"))
		Expect(rows[2][4]).To(Equal("80.50"))
		Expect(rows[2][6]).To(Equal("first; second"))
	})

	It("writes money with exactly two decimal places", func() {
		raw, err := workbook.GetCellValue(itemsSheet, "E3", excelize.Options{RawCellValue: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(raw).To(Equal("80.50"))

		rate, err := workbook.GetCellValue(itemsSheet, "D2")
		Expect(err).NotTo(HaveOccurred())
		Expect(rate).To(Equal("50.00"))
	})

	When("an amount carries more than two decimal places", func() {
		BeforeEach(func() {
			extraction.Pages[0].Items[1].Amount = decimal.RequireFromString("80.505")
		})

		It("rounds it to cents", func() {
			raw, err := workbook.GetCellValue(itemsSheet, "E3", excelize.Options{RawCellValue: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(raw).To(Equal("80.51"))
		})
	})

	It("leaves the rate empty for amount-only items", func() {
		rate, err := workbook.GetCellValue(itemsSheet, "D3")
		Expect(err).NotTo(HaveOccurred())
		Expect(rate).To(BeEmpty())
	})

	It("summarizes each page", func() {
		rows, err := workbook.GetRows(pagesSheet)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(2))
		Expect(rows[1][1]).To(Equal("Pharmacy"))
		Expect(rows[1][3]).To(Equal("180.50"))
		Expect(rows[1][4]).To(Equal("200.00"))
		Expect(rows[1][6]).To(Equal("mismatch"))
		Expect(rows[1][7]).To(Equal("exhausted"))
		Expect(rows[1][8]).To(Equal("3"))
	})
})
