package core

import (
	"math"
	"testing"
)

func TestSettleTwoPeople(t *testing.T) {
	expenses := []Expense{
		{Who: "Ana", Amount: 120},
	}
	s := Settle(expenses, []string{"Ana", "Lucas"})

	if s.Total != 120 {
		t.Errorf("total = %v, want 120", s.Total)
	}
	if s.Share != 60 {
		t.Errorf("share = %v, want 60", s.Share)
	}
	if len(s.Transfers) != 1 {
		t.Fatalf("transfers = %+v, want exactly one", s.Transfers)
	}
	tr := s.Transfers[0]
	if tr.From != "Lucas" || tr.To != "Ana" || tr.Amount != 60 {
		t.Errorf("transfer = %+v, want Lucas -> Ana 60", tr)
	}
}

func TestSettleBalanced(t *testing.T) {
	expenses := []Expense{
		{Who: "Ana", Amount: 50},
		{Who: "Lucas", Amount: 50},
	}
	s := Settle(expenses, []string{"Ana", "Lucas"})
	if len(s.Transfers) != 0 {
		t.Errorf("balanced ledger produced transfers: %+v", s.Transfers)
	}
}

func TestSettleNoParticipants(t *testing.T) {
	s := Settle([]Expense{{Who: "Ana", Amount: 10}}, nil)
	if len(s.Balances) != 0 || len(s.Transfers) != 0 {
		t.Errorf("expected empty settlement, got %+v", s)
	}
	if s.Balances == nil || s.Transfers == nil {
		t.Error("expected non-nil empty slices for JSON encoding")
	}
}

func TestSettleProperties(t *testing.T) {
	tests := []struct {
		name         string
		expenses     []Expense
		participants []string
	}{
		{
			"three people uneven",
			[]Expense{
				{Who: "Ana", Amount: 90},
				{Who: "Lucas", Amount: 30},
				{Who: "Bia", Amount: 0.01},
			},
			[]string{"Ana", "Lucas", "Bia"},
		},
		{
			"payer not participating",
			[]Expense{
				{Who: "Ghost", Amount: 100},
				{Who: "Ana", Amount: 45},
			},
			[]string{"Ana", "Lucas"},
		},
		{
			"cent-level noise",
			[]Expense{
				{Who: "Ana", Amount: 0.10},
				{Who: "Lucas", Amount: 0.20},
				{Who: "Bia", Amount: 0.30},
			},
			[]string{"Ana", "Lucas", "Bia"},
		},
		{
			"four people one payer",
			[]Expense{{Who: "Ana", Amount: 200}},
			[]string{"Ana", "Lucas", "Bia", "Davi"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Settle(tt.expenses, tt.participants)

			if got, max := len(s.Transfers), len(tt.participants)-1; got > max {
				t.Errorf("%d transfers, want at most %d", got, max)
			}

			// Transfers must drain debtors into creditors and nothing else.
			net := make(map[string]float64)
			for _, b := range s.Balances {
				net[b.Person] = b.Delta
			}
			for _, tr := range s.Transfers {
				if tr.Amount <= 0 {
					t.Errorf("non-positive transfer: %+v", tr)
				}
				if tr.From == tr.To {
					t.Errorf("self transfer: %+v", tr)
				}
				net[tr.From] += tr.Amount
				net[tr.To] -= tr.Amount
			}
			for person, rest := range net {
				if math.Abs(rest) > 0.02 {
					t.Errorf("%s left with residual %v after transfers", person, rest)
				}
			}
		})
	}
}

func TestSettleFiltersUnknownPayers(t *testing.T) {
	expenses := []Expense{
		{Who: "Ghost", Amount: 100},
	}
	s := Settle(expenses, []string{"Ana", "Lucas"})
	// The total still counts, so both participants owe their share but
	// nobody is owed: no valid transfer can be emitted.
	if s.Total != 100 {
		t.Errorf("total = %v, want 100", s.Total)
	}
	for _, b := range s.Balances {
		if b.Paid != 0 {
			t.Errorf("%s paid = %v, want 0", b.Person, b.Paid)
		}
	}
	if len(s.Transfers) != 0 {
		t.Errorf("no creditor exists, transfers = %+v", s.Transfers)
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{33.333333, 33.33},
		{33.336, 33.34},
		{-0.016, -0.02},
		{0, 0},
	}
	for _, tt := range tests {
		if got := round2(tt.in); got != tt.want {
			t.Errorf("round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
