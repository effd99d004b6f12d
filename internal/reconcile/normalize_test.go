package reconcile

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ParseAmount", func() {
	DescribeTable("well-formed and noisy amounts",
		func(raw, expected string) {
			d, err := ParseAmount(raw)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Equal(dec(expected))).To(BeTrue(), "got %s", d.String())
		},
		Entry("plain", "120.50", "120.50"),
		Entry("dollar sign", "$42.75", "42.75"),
		Entry("rupee with spaces", "₹ 1,234.00", "1234"),
		Entry("indian grouping", "1,00,000", "100000"),
		Entry("rs prefix", "Rs. 350/-", "350"),
		Entry("currency code", "INR 99", "99"),
		Entry("euro suffix", "15,00 €", "1500"),
		Entry("lowercase l next to digit", "l20", "120"),
		Entry("capital O next to digit", "1O0.5O", "100.50"),
		Entry("run of lookalikes", "5OOO", "5000"),
		Entry("parentheses negative", "(25.00)", "-25"),
		Entry("leading minus", "-3", "-3"),
		Entry("leading dot", ".75", "0.75"),
		Entry("trailing dot", "12.", "12"),
	)

	DescribeTable("strings with no numeric content",
		func(raw string) {
			_, err := ParseAmount(raw)
			Expect(err).To(HaveOccurred())
			var parseErr *ParseError
			Expect(errors.As(err, &parseErr)).To(BeTrue())
			Expect(parseErr.Input).To(Equal(raw))
		},
		Entry("empty", ""),
		Entry("whitespace", "   "),
		Entry("letters only", "Nil"),
		Entry("lookalikes with no digit", "lOO"),
		Entry("currency only", "$"),
		Entry("two decimal points", "1.2.3"),
	)

	It("should not rewrite letters that are not next to a digit", func() {
		_, err := ParseAmount("Tol 5")
		Expect(err).To(HaveOccurred())
	})

	Describe("round trip with FormatAmount", func() {
		DescribeTable("format then parse yields the canonical value",
			func(value, symbol string) {
				d := dec(value)
				parsed, err := ParseAmount(FormatAmount(d, symbol))
				Expect(err).NotTo(HaveOccurred())
				Expect(parsed.Equal(d.Round(2))).To(BeTrue())
			},
			Entry("small", "0.5", ""),
			Entry("thousands", "1234.5", "$"),
			Entry("lakhs", "100000", "₹"),
			Entry("millions", "9876543.21", "€"),
			Entry("negative", "-1500.25", "£"),
			Entry("sub-cent", "10.005", ""),
		)

		It("should group thousands", func() {
			Expect(FormatAmount(dec("1234567.8"), "$")).To(Equal("$1,234,567.80"))
		})
	})
})
