package models

// NoExpiry is the expiry value for cards that never expire.
const NoExpiry = "No expiry"

// Transaction is one line of a card's history
type Transaction struct {
	TransactionTime *string  `json:"transactionTime"`
	Description     *string  `json:"description"`
	Amount          *float64 `json:"amount"`
	Balance         *float64 `json:"balance"`
	Currency        string   `json:"currency"`
}

// GiftCardResult is the normalized outcome of a balance check
type GiftCardResult struct {
	Balance      *float64      `json:"balance"`
	Currency     string        `json:"currency"`
	CardNumber   *string       `json:"cardNumber"`
	ExpiryDate   *string       `json:"expiryDate"` // RFC 3339 or NoExpiry
	Purchases    *int          `json:"purchases"`
	Transactions []Transaction `json:"transactions"`
}

// HasData reports whether anything was scraped at all. Purchases is derived
// from the transactions and does not count.
func (r *GiftCardResult) HasData() bool {
	if r == nil {
		return false
	}
	return r.Balance != nil || r.ExpiryDate != nil || len(r.Transactions) > 0
}
