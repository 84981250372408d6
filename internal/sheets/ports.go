package sheets

import (
	"context"

	"cassa/internal/core"
)

// MonthReport is everything exported for one group and month.
type MonthReport struct {
	GroupName    string
	Summary      core.MonthSummary
	Income       []core.IncomeEntry
	Expenses     []core.Expense
	Installments []core.Installment
}

// Ports for outbound adapters.
type (
	// MonthWriter persists a month report and returns a reference to where
	// it was written (sheet range, synthetic key).
	MonthWriter interface {
		WriteMonth(ctx context.Context, r MonthReport) (ref string, err error)
	}
)
