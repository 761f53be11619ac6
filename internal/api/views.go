package api

import (
	"strconv"

	"github.com/shehryarbajwa/giftcard-mini/internal/site"
	"github.com/shehryarbajwa/giftcard-mini/pkg/models"
)

const transactionCompleted = "completed"

// accountsOf presents a result as a single account named after the site.
func accountsOf(s *site.Site, r *models.GiftCardResult) []models.Account {
	var id string
	if r.CardNumber != nil {
		id = *r.CardNumber
	}
	name := s.DisplayName
	if name == "" {
		name = s.Name
	}
	return []models.Account{{
		ID:       id,
		Name:     name,
		Balance:  r.Balance,
		Currency: currencyOf(r.Currency, s.Currency),
	}}
}

// transactionsOf numbers the history lines as <card>-<index>, newest first.
func transactionsOf(r *models.GiftCardResult) []models.TransactionView {
	prefix := "txn"
	if r.CardNumber != nil && *r.CardNumber != "" {
		prefix = *r.CardNumber
	}

	out := make([]models.TransactionView, 0, len(r.Transactions))
	for i, tx := range r.Transactions {
		out = append(out, models.TransactionView{
			TransactionID:   prefix + "-" + strconv.Itoa(i),
			TransactionTime: tx.TransactionTime,
			Amount:          tx.Amount,
			Currency:        currencyOf(tx.Currency, r.Currency),
			Description:     tx.Description,
			Status:          transactionCompleted,
			Balance:         tx.Balance,
		})
	}
	return out
}

func currencyOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return "AUD"
}
