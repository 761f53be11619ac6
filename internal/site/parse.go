package site

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shehryarbajwa/giftcard-mini/pkg/models"
)

var (
	currencyRe  = regexp.MustCompile(`(?i)(?:AUD|\$)\s*\d{1,3}(?:,\d{3})*(?:\.\d{2})?`)
	cardRe      = regexp.MustCompile(`\b\d{15,19}\b`)
	monthYearRe = regexp.MustCompile(`^(\d{1,2})[/-](\d{2,4})$`)
	dayMonthRe  = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{2,4})$`)
	amountStrip = regexp.MustCompile(`[^0-9.\-]`)
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Mon, 2 Jan 2006",
	"Monday, 2 January 2006",
	"2 Jan 2006 15:04",
	"2 Jan 2006 3:04 PM",
	"2 Jan 2006 3:04PM",
	"02/01/2006 15:04",
	"02/01/2006 3:04 PM",
}

// ParseAmount reads a currency string such as "$1,234.50" or "(12.00)". A
// parenthesised value without a minus sign is negative.
func ParseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	negative := strings.Contains(s, "(") && strings.Contains(s, ")") && !strings.Contains(s, "-")

	n, err := strconv.ParseFloat(amountStrip.ReplaceAllString(s, ""), 64)
	if err != nil {
		return 0, false
	}
	if negative {
		n = -n
	}
	return n, true
}

// ParseDate normalizes a scraped date to RFC 3339 in UTC. "No expiry" is
// returned as models.NoExpiry. Numeric dates are read day first.
func ParseDate(s string) (string, bool) {
	s = collapse(s)
	if s == "" {
		return "", false
	}
	if strings.Contains(strings.ToLower(s), "no expiry") {
		return models.NoExpiry, true
	}

	if m := monthYearRe.FindStringSubmatch(s); m != nil {
		month, _ := strconv.Atoi(m[1])
		year := fullYear(m[2])
		if month < 1 || month > 12 {
			return "", false
		}
		return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339), true
	}

	if m := dayMonthRe.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year := fullYear(m[3])
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if month < 1 || month > 12 || t.Day() != day {
			return "", false
		}
		return t.Format(time.RFC3339), true
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(time.RFC3339), true
		}
	}
	return "", false
}

func fullYear(s string) int {
	year, _ := strconv.Atoi(s)
	if year < 100 {
		if year < 50 {
			return year + 2000
		}
		return year + 1900
	}
	return year
}

// AttachBalances writes running balances, newest transaction first. The
// first line carries the card balance and each older line adds the newer
// line's amount, since the balance pages list spending as positive amounts.
// A line after an unknown amount gets no balance and the walk carries on.
func AttachBalances(r *models.GiftCardResult) {
	if r == nil || r.Balance == nil || len(r.Transactions) == 0 {
		return
	}

	running := *r.Balance
	r.Transactions[0].Balance = ptr(running)
	for i := 1; i < len(r.Transactions); i++ {
		prev := r.Transactions[i-1].Amount
		if prev == nil {
			r.Transactions[i].Balance = nil
			continue
		}
		running = round2(running + *prev)
		r.Transactions[i].Balance = ptr(running)
	}
}

func round2(f float64) float64 {
	v, _ := strconv.ParseFloat(strconv.FormatFloat(f, 'f', 2, 64), 64)
	return v
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func amountPtr(s string) *float64 {
	if n, ok := ParseAmount(s); ok {
		return &n
	}
	return nil
}

func datePtr(s string) *string {
	if d, ok := ParseDate(s); ok {
		return &d
	}
	return nil
}

func textPtr(s string) *string {
	s = collapse(s)
	if s == "" {
		return nil
	}
	return &s
}

func ptr[T any](v T) *T {
	return &v
}
