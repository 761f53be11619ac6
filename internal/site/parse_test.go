package site

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/giftcard-mini/pkg/models"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"$45.50", 45.50, true},
		{"AUD 1,234.00", 1234, true},
		{"-$20.00", -20, true},
		{"($27.65)", -27.65, true},
		{"  $0.99 ", 0.99, true},
		{"", 0, false},
		{"n/a", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseAmount(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"No expiry", models.NoExpiry, true},
		{"  no EXPIRY date ", models.NoExpiry, true},
		{"05/27", "2027-05-01T00:00:00Z", true},
		{"5-2031", "2031-05-01T00:00:00Z", true},
		{"12/99", "1999-12-01T00:00:00Z", true},
		{"31/12/2026", "2026-12-31T00:00:00Z", true},
		{"15-03-2024", "2024-03-15T00:00:00Z", true},
		{"12 Mar 2024", "2024-03-12T00:00:00Z", true},
		{"March 4, 2025", "2025-03-04T00:00:00Z", true},
		{"2024-07-01", "2024-07-01T00:00:00Z", true},
		{"13/27", "", false},
		{"31/02/2024", "", false},
		{"soon", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAttachBalances(t *testing.T) {
	r := &models.GiftCardResult{
		Balance: ptr(50.0),
		Transactions: []models.Transaction{
			{Amount: ptr(10.0)},
			{Amount: ptr(5.0)},
			{Amount: ptr(35.0)},
		},
	}
	AttachBalances(r)

	want := []float64{50, 60, 65}
	for i, tx := range r.Transactions {
		require.NotNil(t, tx.Balance, "tx%d", i)
		assert.InDelta(t, want[i], *tx.Balance, 0.001, "tx%d", i)
	}
}

func TestAttachBalances_UnknownAmountBlanksOnlyTheNextLine(t *testing.T) {
	r := &models.GiftCardResult{
		Balance: ptr(10.0),
		Transactions: []models.Transaction{
			{Amount: nil},
			{Amount: ptr(5.0)},
			{Amount: ptr(2.5)},
		},
	}
	AttachBalances(r)

	require.NotNil(t, r.Transactions[0].Balance)
	assert.InDelta(t, 10.0, *r.Transactions[0].Balance, 0.001)
	assert.Nil(t, r.Transactions[1].Balance)
	require.NotNil(t, r.Transactions[2].Balance)
	assert.InDelta(t, 15.0, *r.Transactions[2].Balance, 0.001)
}

func TestAttachBalances_NeedsCardBalance(t *testing.T) {
	r := &models.GiftCardResult{Transactions: []models.Transaction{{Amount: ptr(1.0), Balance: ptr(9.0)}}}
	AttachBalances(r)
	assert.InDelta(t, 9.0, *r.Transactions[0].Balance, 0.001)

	AttachBalances(&models.GiftCardResult{Balance: ptr(1.0)})
	AttachBalances(nil)
}
