package core

import (
	"math"
	"sort"
)

// Epsilon absorbing floating point noise in currency math: balances within a
// cent of zero are settled.
const settleEpsilon = 0.01

type (
	// PersonBalance is one participant's position after equal splitting:
	// Delta > 0 means they are owed money, Delta < 0 means they owe.
	PersonBalance struct {
		Person string  `json:"person"`
		Paid   float64 `json:"paid"`
		Share  float64 `json:"share"`
		Delta  float64 `json:"delta"`
	}

	// Transfer is one point-to-point payment of the settlement plan.
	Transfer struct {
		From   string  `json:"from"`
		To     string  `json:"to"`
		Amount float64 `json:"amount"`
	}

	// Settlement is the derived, read-only view: per-person balances plus a
	// minimal transfer plan that zeroes them out.
	Settlement struct {
		Total     float64         `json:"total"`
		Share     float64         `json:"share"`
		Balances  []PersonBalance `json:"perPersonBalance"`
		Transfers []Transfer      `json:"transfers"`
	}
)

// Settle computes equal-split balances over the given expenses and a greedy
// minimum-cash-flow transfer plan. Running balances keep full float
// precision; only emitted amounts are rounded to two decimals. The plan has
// at most len(participants)-1 transfers, never emits a non-positive amount,
// and never pays a person from themselves.
//
// No participants means nothing to settle: empty balances, no transfers.
func Settle(expenses []Expense, participants []string) Settlement {
	if len(participants) == 0 {
		return Settlement{Balances: []PersonBalance{}, Transfers: []Transfer{}}
	}

	paid := make(map[string]float64, len(participants))
	for _, p := range participants {
		paid[p] = 0
	}
	total := 0.0
	for _, e := range expenses {
		total += e.Amount
		if _, ok := paid[e.Who]; ok {
			paid[e.Who] += e.Amount
		}
	}
	share := total / float64(len(participants))

	type position struct {
		person string
		delta  float64
	}
	balances := make([]PersonBalance, 0, len(participants))
	var creditors, debtors []position
	for _, p := range participants {
		delta := paid[p] - share
		balances = append(balances, PersonBalance{
			Person: p,
			Paid:   round2(paid[p]),
			Share:  round2(share),
			Delta:  round2(delta),
		})
		switch {
		case delta > settleEpsilon:
			creditors = append(creditors, position{p, delta})
		case delta < -settleEpsilon:
			debtors = append(debtors, position{p, delta})
		}
	}

	// Largest creditor against largest debtor first.
	sort.SliceStable(creditors, func(i, j int) bool { return creditors[i].delta > creditors[j].delta })
	sort.SliceStable(debtors, func(i, j int) bool { return debtors[i].delta < debtors[j].delta })

	transfers := []Transfer{}
	i, j := 0, 0
	for i < len(creditors) && j < len(debtors) {
		take := math.Min(creditors[i].delta, -debtors[j].delta)
		if take > settleEpsilon {
			transfers = append(transfers, Transfer{
				From:   debtors[j].person,
				To:     creditors[i].person,
				Amount: round2(take),
			})
		}
		creditors[i].delta -= take
		debtors[j].delta += take
		if creditors[i].delta < settleEpsilon {
			i++
		}
		if debtors[j].delta > -settleEpsilon {
			j++
		}
	}

	return Settlement{
		Total:     round2(total),
		Share:     round2(share),
		Balances:  balances,
		Transfers: transfers,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
