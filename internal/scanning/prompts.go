package scanning

import (
	"fmt"
	"strings"
)

// systemPrompt is shared by every provider
const systemPrompt = `You are an expert financial document analyst specializing in bill and invoice processing.
Your task is to extract line item data from bill images with high accuracy and precision.

Rules:
1. Extract ONLY line items that represent products or services sold, never totals, taxes, discounts or fees
2. For each line item extract the item name, quantity, rate (unit price) and amount (quantity x rate)
3. Ignore rows such as "Total", "Subtotal", "VAT", "Tax", "GST", "SGST", "CGST", "IGST", "Amount Due", "Carry Forward"
4. Never guess numbers that are not clearly visible
5. Preserve the exact decimal places shown in the document
6. If a field is unclear or missing, use null`

// extractionPrompt asks for every line item on one page
const extractionPrompt = `Extract all line items from this bill page.

1. Locate the main line item table and read its column headers (item, quantity, rate, amount)
2. Go through every row. Extract each row that is not a total or subtotal, including rows in other sections.
   If the same item appears more than once, extract every occurrence.
3. Locate the final "TOTAL" or "GRAND TOTAL" of the page. Report it as bill_total, never as a line item.
4. Classify the page as "Bill Detail", "Final Bill" or "Pharmacy".

Return ONLY valid JSON in this exact format:
{
  "extraction_reasoning": "short explanation of what you found",
  "page_type": "Bill Detail",
  "line_items": [
    {"item_name": "exact name from the document", "quantity": 1, "rate": 0.00, "amount": 0.00, "confidence": 0.95}
  ],
  "bill_total": 0.00,
  "notes": "clarity issues or anything unusual"
}

Important:
- quantity, rate, amount and bill_total must be numbers or null
- use null for rate when the bill shows no unit price
- use null for bill_total when the page shows no total
- Do not include any text before or after the JSON`

// correctionPrompt renders the feedback for a correction request
func correctionPrompt(fb Feedback) string {
	var items strings.Builder
	for i, item := range fb.Items {
		rate := item.Rate
		if rate == "" {
			rate = "n/a"
		}
		fmt.Fprintf(&items, "%d. %s | quantity %s | rate %s | amount %s\n", i+1, item.Name, item.Quantity, rate, item.Amount)
	}

	return fmt.Sprintf(`I extracted %d line items from this bill page:

%s
The sum of the extracted items is %s but the page shows a total of %s.
Discrepancy: %s (%.2f%%)

Look at the image again and:
1. Verify each line item above is correct
2. Check for missed items, especially small amounts or rows formatted differently
3. Check for misread digits (1 vs l, 0 vs O, extra or missing digits)
4. Check whether any listed item is actually a subtotal, tax or total that should be removed

Return ONLY valid JSON in this exact format:
{
  "analysis": "what you found when re-examining the page",
  "corrections": [
    {"action": "add|remove|modify", "item_name": "item name", "quantity": 1, "rate": 0.00, "amount": 0.00, "reason": "why"}
  ]
}

For remove and modify, item_name must match an item listed above. For modify, only include the fields that change.
Return an empty corrections list if the extraction is already correct.`,
		fb.ItemCount, items.String(), fb.CalculatedTotal, fb.DeclaredTotal, fb.Discrepancy, fb.DiscrepancyPercent)
}
