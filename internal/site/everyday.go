package site

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shehryarbajwa/giftcard-mini/internal/browser"
	"github.com/shehryarbajwa/giftcard-mini/pkg/models"
)

var (
	everydayAriaCardRe  = regexp.MustCompile(`(?i)aria-label=["'][^"']*gift\s*card(?:\s*number)?[^"']*?(\d{15,19})`)
	everydayBoldExpRe   = regexp.MustCompile(`(?i)<b[^>]*>(No expiry|Expiry[:\s]*[^<]+|Expires?[:\s]*[^<]+|\d{1,2}[/-]\d{2,4})</b>`)
	everydayAnyExpRe    = regexp.MustCompile(`(?i)(?:No expiry|Expires?:\s*\d{1,2}/\d{2,4}|Expiry(?: date)?:\s*[^<\n\r]+)`)
	everydayAriaExpRe   = regexp.MustCompile(`(?i)aria-label=["'][^"']*expiry date[^"']*?(?:is|:)?\s*([^"']+)["']`)
	everydayExpLabelRe  = regexp.MustCompile(`(?i)Expiry date:?|Expiry:?|Expires?:?|\bis:?`)
)

// Everyday is the Woolworths Everyday gift card checker.
func Everyday() *Site {
	s := mustNew(
		"everyday",
		"Everyday Gift Card",
		"https://www.everyday.com.au/gift-cards/check-balance",
		"**/gift-cards/check-balance-result**",
		"",
		normalizeEveryday,
	)
	s.CardSelectors = []string{
		"#giftCardNumber",
		"#cardNumber",
		`input[name="cardNumber"]`,
		`input[name*="card"]`,
		`input[placeholder*="Card"]`,
		`input[placeholder*="card"]`,
	}
	s.PinSelectors = []string{"#access-code", "#access_code", "#accesscode", "#accessCode"}
	s.SubmitSelectors = []string{`button:has-text("Check balance")`, `button:has-text("Check Balance")`}
	return s
}

func normalizeEveryday(raw browser.RawExtraction) (*models.GiftCardResult, error) {
	html := raw.HTML
	doc, err := parseHTML(raw)
	if err != nil {
		return nil, err
	}

	result := &models.GiftCardResult{
		Currency:     "AUD",
		Transactions: []models.Transaction{},
	}

	if m := currencyRe.FindString(html); m != "" {
		result.Balance = amountPtr(m)
	}

	if m := cardRe.FindString(html); m != "" {
		result.CardNumber = ptr(m)
	} else if m := everydayAriaCardRe.FindStringSubmatch(html); m != nil {
		result.CardNumber = ptr(m[1])
	}

	result.ExpiryDate = datePtr(everydayExpiry(html))

	// Each item belongs to the nearest date heading above it.
	var date string
	doc.Find(".transactionDate, .transactionItem").Each(func(_ int, s *goquery.Selection) {
		if s.HasClass("transactionDate") {
			date = collapse(s.Text())
			return
		}
		desc := s.Find(".core-body").First().Text()
		amount := s.Find(".core-title").First().Text()
		if collapse(desc) == "" && collapse(amount) == "" {
			return
		}
		result.Transactions = append(result.Transactions, models.Transaction{
			TransactionTime: datePtr(date),
			Description:     textPtr(desc),
			Amount:          amountPtr(amount),
			Currency:        "AUD",
		})
	})

	result.Purchases = ptr(len(result.Transactions))

	AttachBalances(result)
	return result, nil
}

func everydayExpiry(html string) string {
	var exp string
	if m := everydayBoldExpRe.FindStringSubmatch(html); m != nil {
		exp = m[1]
	}
	if exp == "" {
		if m := everydayAnyExpRe.FindString(html); m != "" {
			exp = m
		}
	}
	if exp == "" {
		if m := everydayAriaExpRe.FindStringSubmatch(html); m != nil {
			exp = m[1]
		}
	}
	if strings.Contains(strings.ToLower(exp), "no expiry") {
		return models.NoExpiry
	}
	return strings.TrimSpace(everydayExpLabelRe.ReplaceAllString(exp, ""))
}
