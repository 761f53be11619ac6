package site

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/shehryarbajwa/giftcard-mini/internal/browser"
	"github.com/shehryarbajwa/giftcard-mini/pkg/models"
)

const goodGuysMarker = ".card-balance, .balance, .balance-amount, .result, .giftcard-balance"

var goodGuysBalanceRe = regexp.MustCompile(`(?i)(?:AUD|\$)\s?\d{1,3}(?:,\d{3})*(?:\.\d{2})?`)

// TheGoodGuys is the viisolutions checker used by The Good Guys. Only the
// balance is shown.
func TheGoodGuys() *Site {
	s := mustNew(
		"thegoodguys",
		"The Good Guys Gift Card",
		"https://thegoodguysgiftcards.viisolutions.com.au/",
		"",
		goodGuysMarker,
		normalizeGoodGuys,
	)
	s.CardSelectors = []string{"#CardNumber", "#cardNumber", "input[name*=card]", "input[placeholder*=Card]", "input[placeholder*=card]"}
	s.PinSelectors = []string{"#CardPIN", "#pin", "input[name*=pin]", "input[placeholder*=PIN]", "input[placeholder*=Pin]"}
	s.SubmitSelectors = []string{"button[type=submit]", "input[type=submit]", `button:has-text("Check balance")`, "button", "a.button"}
	return s
}

func normalizeGoodGuys(raw browser.RawExtraction) (*models.GiftCardResult, error) {
	doc, err := parseHTML(raw)
	if err != nil {
		return nil, err
	}

	result := &models.GiftCardResult{
		Currency:     "AUD",
		Transactions: []models.Transaction{},
	}

	// Prefer an amount inside the result block over the first one on the page.
	var balance string
	doc.Find(goodGuysMarker).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		balance = goodGuysBalanceRe.FindString(s.Text())
		return balance == ""
	})
	if balance == "" {
		balance = goodGuysBalanceRe.FindString(raw.HTML)
	}
	if balance != "" {
		result.Balance = amountPtr(balance)
	}
	return result, nil
}
