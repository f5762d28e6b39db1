package pipeline

import (
	"fmt"
	"strings"

	"github.com/dvloznov/statement-extractor/internal/domain"
)

// DefaultCardLabel is used when the client does not name the card.
const DefaultCardLabel = "Credit Card"

const jsonShape = `{
  "transactions": [
    {
      "date": "2024-11-20",
      "amount": 150.50,
      "description": "Walmart Supercenter",
      "category": "Comida"
    }
  ]
}`

// buildSystemPrompt returns the instruction shared by every page of a statement.
func buildSystemPrompt(period domain.BillingPeriod) string {
	label := period.Label()

	categories := make([]string, len(domain.Categories))
	for i, c := range domain.Categories {
		categories[i] = string(c)
	}

	return "You extract credit card transactions from statement images.\n\n" +
		"Extract EVERY transaction that is visible. Do not filter by date at this stage.\n\n" +
		"The statement covers approximately: " + label + "\n" +
		"Use this only to infer the year when a date shows day and month alone. Never use it to drop transactions.\n\n" +
		"Fields for each transaction:\n" +
		"- \"date\": ISO date YYYY-MM-DD. Infer a missing year from the period above.\n" +
		"- \"amount\": positive number. Expenses are positive.\n" +
		"- \"description\": short merchant or service name with normalized casing (\"WALMART\" becomes \"Walmart\").\n" +
		"- \"category\": one of " + strings.Join(categories, ", ") + ".\n\n" +
		"Rules:\n" +
		"1. Include every transaction regardless of date.\n" +
		"2. Skip payments to the card, credits, interest, fees and balance transfers.\n" +
		"3. Installment purchases: emit each installment shown as its own transaction.\n" +
		"4. Read tables, lists and any formatted section carefully.\n" +
		"5. When nothing is found return an empty list in the same structure.\n\n" +
		"Return ONLY a JSON object shaped exactly like this:\n" + jsonShape + "\n\n" +
		"With no transactions return {\"transactions\": []}"
}

// buildPagePrompt returns the per-page instruction. The page position is only
// mentioned for multi-page statements.
func buildPagePrompt(cardLabel string, period domain.BillingPeriod, cutDay string, page, total int) string {
	if strings.TrimSpace(cardLabel) == "" {
		cardLabel = DefaultCardLabel
	}

	var b strings.Builder
	if total > 1 {
		fmt.Fprintf(&b, "Extract ALL transactions from page %d of %d of this credit card statement for %s.\n\n", page, total, cardLabel)
	} else {
		fmt.Fprintf(&b, "Extract ALL transactions from this credit card statement for %s.\n\n", cardLabel)
	}
	fmt.Fprintf(&b, "The statement covers approximately: %s\n", period.Label())
	b.WriteString("Use it only to infer missing years. Extract every transaction regardless of date.\n")
	if cutDay = strings.TrimSpace(cutDay); cutDay != "" {
		fmt.Fprintf(&b, "The card's cut date is %s.\n", cutDay)
	}
	if total > 1 {
		b.WriteString("\nLook carefully at this page and return every transaction it contains.\n")
	}
	b.WriteString("\nReturn a JSON object with this exact structure:\n")
	b.WriteString(jsonShape)
	return b.String()
}
