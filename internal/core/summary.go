package core

import "github.com/shopspring/decimal"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// CardBill is the state of one card's bill for a month.
type CardBill struct {
	CardName string          `json:"card_name"`
	DueDate  Date            `json:"due_date"`
	Paid     bool            `json:"paid"`
	Amount   decimal.Decimal `json:"amount"`
	Expenses decimal.Decimal `json:"expenses"`
}

// MonthSummary is a compact summary of one group for a specific year+month.
type MonthSummary struct {
	GroupID          string           `json:"group_id"`
	Year             int              `json:"year"`
	Month            int              `json:"month"` // 1-12
	Income           decimal.Decimal  `json:"income"`
	ExpectedIncome   decimal.Decimal  `json:"expected_income"`
	Expenses         decimal.Decimal  `json:"expenses"`
	InstallmentsDue  decimal.Decimal  `json:"installments_due"`
	InstallmentsPaid decimal.Decimal  `json:"installments_paid"`
	ByCategory       []CategoryAmount `json:"by_category"`
	Cards            []CardBill       `json:"cards"`
	PendingTasks     int              `json:"pending_tasks"`
}

// Balance is income (received plus expected) minus expenses and installments.
func (s MonthSummary) Balance() decimal.Decimal {
	return s.Income.Add(s.ExpectedIncome).Sub(s.Expenses).Sub(s.InstallmentsDue)
}
