package pipeline

import (
	"strings"

	"github.com/dvloznov/statement-extractor/internal/domain"
)

// categorySynonyms maps lowercase Spanish and English labels to categories.
var categorySynonyms = map[string]domain.Category{
	"comida":          domain.CategoryFood,
	"food":            domain.CategoryFood,
	"restaurant":      domain.CategoryFood,
	"entretenimiento": domain.CategoryEntertainment,
	"entertainment":   domain.CategoryEntertainment,
	"familia":         domain.CategoryFamily,
	"family":          domain.CategoryFamily,
	"transporte":      domain.CategoryTransport,
	"transport":       domain.CategoryTransport,
	"gasolina":        domain.CategoryTransport,
	"gas":             domain.CategoryTransport,
	"salud":           domain.CategoryHealth,
	"health":          domain.CategoryHealth,
	"farmacia":        domain.CategoryHealth,
	"educación":       domain.CategoryEducation,
	"education":       domain.CategoryEducation,
	"ropa":            domain.CategoryClothing,
	"clothing":        domain.CategoryClothing,
	"servicios":       domain.CategoryServices,
	"services":        domain.CategoryServices,
	"vivienda":        domain.CategoryHousing,
	"housing":         domain.CategoryHousing,
	"renta":           domain.CategoryHousing,
	"otros":           domain.CategoryOther,
	"other":           domain.CategoryOther,
}

// NormalizeCategory maps any model label onto the closed category set.
// Unknown and empty labels become domain.CategoryOther.
func NormalizeCategory(label string) domain.Category {
	if c, ok := categorySynonyms[normalizeCategory(label)]; ok {
		return c
	}
	return domain.CategoryOther
}

// normalizeCategory lowercases and trims a label for lookup.
func normalizeCategory(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
