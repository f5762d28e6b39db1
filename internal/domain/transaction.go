package domain

import "fmt"

// Category is one of the fixed expense categories a transaction can carry.
type Category string

const (
	CategoryFood          Category = "Comida"
	CategoryEntertainment Category = "Entretenimiento"
	CategoryFamily        Category = "Familia"
	CategoryTransport     Category = "Transporte"
	CategoryHealth        Category = "Salud"
	CategoryEducation     Category = "Educación"
	CategoryClothing      Category = "Ropa"
	CategoryServices      Category = "Servicios"
	CategoryHousing       Category = "Vivienda"
	CategoryOther         Category = "Otros"
)

// Categories lists the closed category set in prompt order.
var Categories = []Category{
	CategoryFood,
	CategoryEntertainment,
	CategoryFamily,
	CategoryTransport,
	CategoryHealth,
	CategoryEducation,
	CategoryClothing,
	CategoryServices,
	CategoryHousing,
	CategoryOther,
}

// Valid reports whether c belongs to the closed set.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Transaction is one normalized statement line returned to the client.
// Date is always YYYY-MM-DD and Amount is always a non-negative magnitude.
type Transaction struct {
	Date        string   `json:"date"`
	Amount      float64  `json:"amount"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
}

// RawRecord is a single unvalidated transaction object as produced by the model.
type RawRecord map[string]any

// BillingPeriod is the caller-declared statement context. Month and year fields
// only feed the prompt; Start and End (YYYY-MM-DD) drive filtering.
type BillingPeriod struct {
	StartMonth string `json:"startMonth,omitempty"`
	StartYear  int    `json:"startYear,omitempty"`
	EndMonth   string `json:"endMonth,omitempty"`
	EndYear    int    `json:"endYear,omitempty"`
	Start      string `json:"start,omitempty"`
	End        string `json:"end,omitempty"`
}

// HasBounds reports whether both filter boundaries are present.
func (p BillingPeriod) HasBounds() bool {
	return p.Start != "" && p.End != ""
}

// Label renders the approximate period used to disambiguate partial dates.
func (p BillingPeriod) Label() string {
	startMonth := p.StartMonth
	if startMonth == "" {
		startMonth = "N/A"
	}
	endMonth := p.EndMonth
	if endMonth == "" {
		endMonth = "N/A"
	}
	if p.StartYear > 0 && p.EndYear > 0 {
		return fmt.Sprintf("%s %d a %s %d", startMonth, p.StartYear, endMonth, p.EndYear)
	}
	return fmt.Sprintf("%s a %s", startMonth, endMonth)
}
