package core

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestGenerateInstallmentsExample(t *testing.T) {
	plan := InstallmentPlan{TotalAmount: decimal.NewFromInt(300), InstallmentCount: 3, StartMonth: 11, StartYear: 2024}
	got, err := GenerateInstallments(plan, "tx1", "g1", "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []struct{ seq, month, year int }{
		{1, 11, 2024},
		{2, 12, 2024},
		{3, 1, 2025},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d installments, got %d", len(want), len(got))
	}
	for i, w := range want {
		in := got[i]
		if in.SequenceNumber != w.seq || in.DueMonth != w.month || in.DueYear != w.year {
			t.Errorf("installment %d: got seq=%d %d/%d, want seq=%d %d/%d",
				i, in.SequenceNumber, in.DueMonth, in.DueYear, w.seq, w.month, w.year)
		}
		if !in.Amount.Equal(decimal.NewFromInt(100)) {
			t.Errorf("installment %d: amount %s, want 100", i, in.Amount)
		}
		if in.Paid || in.PaidAt != nil {
			t.Errorf("installment %d should start unpaid", i)
		}
		if in.TotalInstallments != 3 || in.TransactionID != "tx1" || in.GroupID != "g1" || in.CreatedBy != "u1" {
			t.Errorf("installment %d: unexpected ownership fields %+v", i, in)
		}
	}
}

func TestGenerateInstallmentsProperties(t *testing.T) {
	cent := decimal.New(1, -2)
	plans := []InstallmentPlan{
		{TotalAmount: decimal.NewFromInt(100), InstallmentCount: 3, StartMonth: 1, StartYear: 2025},
		{TotalAmount: decimal.RequireFromString("999.99"), InstallmentCount: 7, StartMonth: 8, StartYear: 2024},
		{TotalAmount: decimal.RequireFromString("0.05"), InstallmentCount: 12, StartMonth: 12, StartYear: 2023},
		{TotalAmount: decimal.NewFromInt(1200), InstallmentCount: 36, StartMonth: 6, StartYear: 2025},
		{TotalAmount: decimal.NewFromInt(50), InstallmentCount: 1, StartMonth: 12, StartYear: 2025},
	}
	for _, p := range plans {
		got, err := GenerateInstallments(p, "tx", "g", "u")
		if err != nil {
			t.Fatalf("plan %+v: %v", p, err)
		}
		if len(got) != p.InstallmentCount {
			t.Fatalf("plan %+v: length %d", p, len(got))
		}

		tolerance := cent.Mul(decimal.NewFromInt(int64(p.InstallmentCount)))
		sum := Sum(got, func(i Installment) decimal.Decimal { return i.Amount })
		if sum.Sub(p.TotalAmount).Abs().GreaterThan(tolerance) {
			t.Errorf("plan %+v: sum %s outside tolerance of %s", p, sum, p.TotalAmount)
		}

		if got[0].DueMonth != p.StartMonth || got[0].DueYear != p.StartYear {
			t.Errorf("plan %+v: first due %d/%d", p, got[0].DueMonth, got[0].DueYear)
		}
		for i := 0; i+1 < len(got); i++ {
			cur, next := got[i], got[i+1]
			if cur.DueMonth == 12 {
				if next.DueMonth != 1 || next.DueYear != cur.DueYear+1 {
					t.Errorf("plan %+v: bad year rollover after %d/%d", p, cur.DueMonth, cur.DueYear)
				}
				continue
			}
			if next.DueMonth != cur.DueMonth+1 || next.DueYear != cur.DueYear {
				t.Errorf("plan %+v: bad step %d/%d -> %d/%d", p, cur.DueMonth, cur.DueYear, next.DueMonth, next.DueYear)
			}
		}
	}
}

func TestGenerateInstallmentsRejectsInvalidPlans(t *testing.T) {
	cases := []struct {
		name string
		plan InstallmentPlan
		want error
	}{
		{"zero count", InstallmentPlan{TotalAmount: decimal.NewFromInt(10), InstallmentCount: 0, StartMonth: 1, StartYear: 2025}, ErrInvalidInstallmentCount},
		{"negative count", InstallmentPlan{TotalAmount: decimal.NewFromInt(10), InstallmentCount: -2, StartMonth: 1, StartYear: 2025}, ErrInvalidInstallmentCount},
		{"above maximum", InstallmentPlan{TotalAmount: decimal.NewFromInt(10), InstallmentCount: MaxInstallments + 1, StartMonth: 1, StartYear: 2025}, ErrInvalidInstallmentCount},
		{"huge count", InstallmentPlan{TotalAmount: decimal.NewFromInt(100), InstallmentCount: math.MaxInt32, StartMonth: 1, StartYear: 2025}, ErrInvalidInstallmentCount},
		{"month 13", InstallmentPlan{TotalAmount: decimal.NewFromInt(10), InstallmentCount: 2, StartMonth: 13, StartYear: 2025}, ErrInvalidMonth},
		{"zero total", InstallmentPlan{TotalAmount: decimal.Zero, InstallmentCount: 2, StartMonth: 1, StartYear: 2025}, ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := GenerateInstallments(tc.plan, "tx", "g", "u")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if got != nil {
				t.Fatalf("expected no installments, got %d", len(got))
			}
		})
	}
}
