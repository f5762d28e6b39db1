package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-extractor/internal/domain"
)

// MaxDescriptionLen bounds Transaction.Description, counted in runes.
const MaxDescriptionLen = 100

const isoDate = "2006-01-02"

// Exact layouts tried before the lenient parser, in order.
var dateLayouts = []string{
	"2006-1-2",
	"2/1/2006",
	"1/2/2006",
	"2-1-2006",
	"2006-1-2 15:04:05",
}

var requiredFields = []string{"date", "amount", "description"}

// DroppedRecord explains why a raw record did not become a Transaction.
type DroppedRecord struct {
	Index  int
	Reason string
}

// NormalizeResult holds the surviving transactions in input order.
type NormalizeResult struct {
	Transactions []domain.Transaction
	// Dropped lists records that failed validation.
	Dropped []DroppedRecord
	// Filtered counts valid records outside the billing period.
	Filtered int
}

// Normalize validates and canonicalizes raw records, then applies the
// billing-period filter when both bounds are present. Invalid records are
// dropped and never fail the batch.
func Normalize(records []domain.RawRecord, period domain.BillingPeriod, log zerolog.Logger) NormalizeResult {
	res := NormalizeResult{Transactions: make([]domain.Transaction, 0, len(records))}

	for i, rec := range records {
		tx, err := normalizeRecord(rec, period)
		if err != nil {
			log.Warn().Int("record", i+1).Err(err).Msg("dropping transaction")
			res.Dropped = append(res.Dropped, DroppedRecord{Index: i, Reason: err.Error()})
			continue
		}
		if period.HasBounds() && !inPeriod(tx.Date, period) {
			log.Debug().Int("record", i+1).Str("date", tx.Date).Msg("transaction outside billing period")
			res.Filtered++
			continue
		}
		res.Transactions = append(res.Transactions, tx)
	}
	return res
}

func normalizeRecord(rec domain.RawRecord, period domain.BillingPeriod) (domain.Transaction, error) {
	if rec == nil {
		return domain.Transaction{}, fmt.Errorf("record is not an object")
	}
	var missing []string
	for _, key := range requiredFields {
		if _, ok := rec[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return domain.Transaction{}, fmt.Errorf("missing keys %v", missing)
	}

	date, err := NormalizeDate(rec["date"], period)
	if err != nil {
		return domain.Transaction{}, err
	}
	amount, err := NormalizeAmount(rec["amount"])
	if err != nil {
		return domain.Transaction{}, err
	}

	category, _ := rec["category"].(string)
	return domain.Transaction{
		Date:        date,
		Amount:      amount,
		Description: NormalizeDescription(stringify(rec["description"])),
		Category:    NormalizeCategory(category),
	}, nil
}

// NormalizeDate converts a model date into YYYY-MM-DD. A date without a year
// takes it from period; with no period year it is rejected.
func NormalizeDate(v any, period domain.BillingPeriod) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("invalid date %v: want string, got %T", v, v)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("invalid date: empty")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(isoDate), nil
		}
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	if t.Year() == 0 {
		year := yearFor(t, period)
		if year == 0 {
			return "", fmt.Errorf("invalid date %q: no year", s)
		}
		t = time.Date(year, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return t.Format(isoDate), nil
}

// yearFor picks the period year for a yearless date. When the period spans
// two years, a day that would fall before the period start belongs to the
// end year.
func yearFor(t time.Time, p domain.BillingPeriod) int {
	year := p.StartYear
	if year == 0 {
		return p.EndYear
	}
	if p.EndYear > year && p.Start != "" {
		candidate := time.Date(year, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Format(isoDate)
		if candidate < p.Start {
			return p.EndYear
		}
	}
	return year
}

// NormalizeAmount coerces a number or numeric string into its magnitude.
func NormalizeAmount(v any) (float64, error) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q", t)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("invalid amount %v: got %T", v, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid amount %v", f)
	}
	return math.Abs(f), nil
}

// NormalizeDescription collapses whitespace and truncates to MaxDescriptionLen runes.
func NormalizeDescription(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > MaxDescriptionLen {
		s = string(r[:MaxDescriptionLen])
	}
	return s
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// inPeriod compares ISO dates as strings, which orders fixed-width dates correctly.
func inPeriod(date string, p domain.BillingPeriod) bool {
	return date >= p.Start && date <= p.End
}
