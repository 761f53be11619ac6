package models

// AuthStatus is the outcome reported to auth callers
type AuthStatus string

const (
	AuthSuccess AuthStatus = "success"
	AuthFail    AuthStatus = "fail"
	AuthError   AuthStatus = "error"
)

// AuthRequest is the payload for starting a session
type AuthRequest struct {
	CardNumber string `json:"cardNumber"`
	PIN        string `json:"pin"`
	Headless   *bool  `json:"headless,omitempty"`
}

// AuthResponse carries the session identifier on success
type AuthResponse struct {
	Status     AuthStatus `json:"status"`
	Identifier *string    `json:"identifier"`
}

// Account is the balance view of a session
type Account struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Balance  *float64 `json:"balance"`
	Currency string   `json:"currency"`
}

// TransactionView is one history line as served by the API
type TransactionView struct {
	TransactionID   string   `json:"transactionId"`
	TransactionTime *string  `json:"transactionTime"`
	Amount          *float64 `json:"amount"`
	Currency        string   `json:"currency"`
	Description     *string  `json:"description"`
	Status          string   `json:"status"`
	Balance         *float64 `json:"balance"`
}

// SessionView combines both queries over a single fetch
type SessionView struct {
	Account      []Account         `json:"account"`
	Transactions []TransactionView `json:"transactions"`
}
