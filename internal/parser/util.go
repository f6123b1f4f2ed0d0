package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/palashjain21/calo-balance-sync-analyzer/internal/models"
)

// Layouts tried in order once the separator and fraction mark are normalized.
// Fractional seconds are accepted by time.Parse without being in the layout.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05", // naive, read as UTC
}

// parseTimestamp converts a matched timestamp to a UTC instant.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > 10 && s[10] == ' ' {
		s = s[:10] + "T" + s[11:]
	}
	s = strings.Replace(s, ",", ".", 1)

	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q: %w", s, lastErr)
}

// Transaction words that make an unsigned amount a debit. Everything else,
// including credit, payment and refund, is taken as written.
var debitWords = []string{"debit", "charge", "withdrawal", "purchase"}

// parseAmount converts a string like "$1,234.56" or "-10" to an exact decimal.
// An unsigned amount on a debit-type transaction is negated.
func parseAmount(s, txnType string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	negative := strings.Contains(s, "-")
	signed := negative || strings.Contains(s, "+")

	s = strings.NewReplacer("$", "", ",", "", "-", "", "+", "", " ", "").Replace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	if negative || (!signed && containsWord(debitWords, txnType)) {
		d = d.Neg()
	}
	return d, nil
}

func containsWord(words []string, w string) bool {
	w = strings.ToLower(w)
	for _, word := range words {
		if w == word {
			return true
		}
	}
	return false
}

// normalizeStatus maps the many spellings in the logs onto three values.
func normalizeStatus(s string) models.Status {
	switch strings.ToLower(s) {
	case "success", "successful", "successfully", "succeeded", "completed", "complete", "ok", "200":
		return models.StatusSuccess
	case "failed", "failure", "fail", "error", "declined", "rejected", "timeout":
		return models.StatusFailure
	default:
		return models.StatusUnknown
	}
}

// classifyOperation labels the business operation a line describes.
func classifyOperation(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "create subscription"):
		return "create_subscription"
	case strings.Contains(lower, "balance sync"):
		return "balance_sync"
	case strings.Contains(lower, "payment"):
		return "payment"
	case strings.Contains(lower, "refund"):
		return "refund"
	case strings.Contains(lower, "charge"):
		return "charge"
	default:
		return "unknown"
	}
}
