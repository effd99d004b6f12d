package bill

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/bill-extractor/internal/reconcile"
	"github.com/zombor/bill-extractor/internal/scanning"
)

var _ = Describe("Pipeline", func() {
	var pipeline *Pipeline

	BeforeEach(func() {
		pipeline = NewPipeline(reconcile.DefaultConfig())
	})

	Describe("Normalize", func() {
		var (
			rawItems []scanning.RawItem
			items    []reconcile.LineItem
			removed  []reconcile.Removal
			warnings []string
		)

		JustBeforeEach(func() {
			items, removed, warnings = pipeline.Normalize(rawItems, 2)
		})

		When("every field is readable", func() {
			BeforeEach(func() {
				rawItems = []scanning.RawItem{raw("  Paracetamol 500mg  ", "2", "Rs. 12.50", "25.00")}
			})

			It("parses the fields and cleans the name", func() {
				Expect(items).To(HaveLen(1))
				Expect(items[0].Name).To(Equal("Paracetamol 500mg"))
				Expect(items[0].Quantity.String()).To(Equal("2"))
				Expect(items[0].Rate.String()).To(Equal("12.5"))
				Expect(items[0].Amount.String()).To(Equal("25"))
				Expect(items[0].Page).To(Equal("2"))
				Expect(removed).To(BeEmpty())
				Expect(warnings).To(BeEmpty())
			})
		})

		When("the quantity is missing", func() {
			BeforeEach(func() {
				rawItems = []scanning.RawItem{raw("Room Rent", "", "", "1,500")}
			})

			It("defaults the quantity to 1 and keeps the item amount-only", func() {
				Expect(items).To(HaveLen(1))
				Expect(items[0].Quantity.Equal(decimal.NewFromInt(1))).To(BeTrue())
				Expect(items[0].HasRate()).To(BeFalse())
				Expect(items[0].Amount.String()).To(Equal("1500"))
			})
		})

		When("the quantity or rate cannot be read", func() {
			BeforeEach(func() {
				rawItems = []scanning.RawItem{raw("Gauze", "two", "n/a", "40")}
			})

			It("keeps the item with defaults and warns", func() {
				Expect(items).To(HaveLen(1))
				Expect(items[0].Quantity.String()).To(Equal("1"))
				Expect(items[0].HasRate()).To(BeFalse())
				Expect(warnings).To(HaveLen(2))
				Expect(warnings[0]).To(ContainSubstring("unreadable quantity"))
				Expect(warnings[1]).To(ContainSubstring("unreadable rate"))
			})
		})

		When("the amount is missing", func() {
			BeforeEach(func() {
				rawItems = []scanning.RawItem{raw("Header row", "", "", "")}
			})

			It("drops the item as invalid", func() {
				Expect(items).To(BeEmpty())
				Expect(removed).To(HaveLen(1))
				Expect(removed[0].Kind).To(Equal(reconcile.RemovalInvalid))
				Expect(removed[0].Reason).To(Equal("missing amount"))
			})
		})

		When("the amount is negative", func() {
			BeforeEach(func() {
				rawItems = []scanning.RawItem{raw("Discount", "", "", "(50.00)")}
			})

			It("drops the item as invalid", func() {
				Expect(items).To(BeEmpty())
				Expect(removed).To(HaveLen(1))
				Expect(removed[0].Item.Amount.String()).To(Equal("-50"))
			})
		})

		When("the amount has OCR digit confusion", func() {
			BeforeEach(func() {
				rawItems = []scanning.RawItem{raw("X-Ray", "1", "", "1O5")}
			})

			It("repairs the amount", func() {
				Expect(items[0].Amount.String()).To(Equal("105"))
			})
		})
	})

	Describe("Run", func() {
		var (
			items    []reconcile.LineItem
			declared *decimal.Decimal
			stage    Stage
		)

		lineItem := func(name, amount string) reconcile.LineItem {
			return reconcile.LineItem{
				Name:     name,
				Quantity: decimal.NewFromInt(1),
				Amount:   decimal.RequireFromString(amount),
			}
		}

		BeforeEach(func() {
			items = []reconcile.LineItem{
				lineItem("• Consultation Fee", "500"),
				lineItem("Blood Test", "300"),
				lineItem("Sub Total", "800"),
				lineItem("CGST @ 9%", "72"),
			}
			d := decimal.RequireFromString("800")
			declared = &d
		})

		JustBeforeEach(func() {
			stage = pipeline.Run(items, declared)
		})

		It("cleans names before guarding", func() {
			Expect(stage.Items[0].Name).To(Equal("Consultation Fee"))
		})

		It("removes summary and tax rows", func() {
			Expect(stage.Items).To(HaveLen(2))
			Expect(stage.Removed).To(HaveLen(2))
		})

		It("reconciles the kept items", func() {
			Expect(stage.Result.Status).To(Equal(reconcile.StatusExactMatch))
		})

		It("validates the kept items", func() {
			for _, item := range stage.Items {
				Expect(item.Confidence).To(Equal(0.95))
			}
		})

		It("does not modify its input", func() {
			Expect(items[0].Name).To(Equal("• Consultation Fee"))
			Expect(items).To(HaveLen(4))
		})
	})
})
