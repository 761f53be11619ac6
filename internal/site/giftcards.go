package site

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shehryarbajwa/giftcard-mini/internal/browser"
	"github.com/shehryarbajwa/giftcard-mini/pkg/models"
)

// GiftCards is the giftcards.com.au checker. Its result page renders a
// summary table and a transaction history table.
func GiftCards() *Site {
	s := mustNew(
		"giftcards",
		"Gift Card",
		"https://www.giftcards.com.au/CheckBalance",
		"",
		"table.gift-card-summary__tableContent, .card-balance, .balance, .balance-amount",
		normalizeGiftCards,
	)
	s.CardSelectors = []string{"#cardNumber", "input[name*=card]", "input[placeholder*=Card]", "input[placeholder*=card]"}
	s.PinSelectors = []string{"#cardPIN", "#pin", "input[name*=pin]", "input[placeholder*=PIN]", "input[placeholder*=Pin]"}
	s.SubmitSelectors = []string{"button[type=submit]", "input[type=submit]", `button:has-text("Check balance")`, "button"}
	return s
}

func normalizeGiftCards(raw browser.RawExtraction) (*models.GiftCardResult, error) {
	doc, err := parseHTML(raw)
	if err != nil {
		return nil, err
	}

	result := &models.GiftCardResult{
		Currency:     "AUD",
		Transactions: []models.Transaction{},
	}

	doc.Find("table.gift-card-summary__tableContent tr").Each(func(_ int, row *goquery.Selection) {
		label := strings.ToLower(collapse(row.Find("th").First().Text()))
		value := row.Find("td").First().Text()
		switch {
		case strings.HasPrefix(label, "balance"):
			result.Balance = amountPtr(value)
		case strings.HasPrefix(label, "expiry date"):
			result.ExpiryDate = datePtr(value)
		}
	})

	doc.Find("#transaction-history tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 5 {
			return
		}
		result.Transactions = append(result.Transactions, models.Transaction{
			TransactionTime: datePtr(cellText(cells.Eq(0))),
			Description:     textPtr(cellText(cells.Eq(1))),
			Amount:          amountPtr(cellText(cells.Eq(3))),
			Balance:         amountPtr(cellText(cells.Eq(4))),
			Currency:        "AUD",
		})
	})

	if m := cardRe.FindString(raw.HTML); m != "" {
		result.CardNumber = ptr(m)
	}
	// The history table carries its own balance column.
	result.Purchases = ptr(len(result.Transactions))
	return result, nil
}

// cellText drops the stacked-table header that the responsive layout
// repeats inside each cell.
func cellText(cell *goquery.Selection) string {
	c := cell.Clone()
	c.Find(".table-responsive-stack-thead").Remove()
	return collapse(c.Text())
}
