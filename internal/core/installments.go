package core

import (
	"github.com/shopspring/decimal"
)

// GenerateInstallments expands a purchase into one unpaid installment per
// month starting at the plan's start month.
//
// Every installment carries total/count rounded to the cent. The remainder is
// not redistributed, so the sum may differ from the total by up to one cent
// per installment.
func GenerateInstallments(plan InstallmentPlan, transactionID, groupID, actorID string) ([]Installment, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	amount := plan.TotalAmount.DivRound(decimal.NewFromInt(int64(plan.InstallmentCount)), 2)
	start := YearMonth{Year: plan.StartYear, Month: plan.StartMonth}

	out := make([]Installment, 0, plan.InstallmentCount)
	for i := 0; i < plan.InstallmentCount; i++ {
		due := start.AddMonths(i)
		out = append(out, Installment{
			Meta:              Meta{GroupID: groupID, CreatedBy: actorID},
			TransactionID:     transactionID,
			SequenceNumber:    i + 1,
			TotalInstallments: plan.InstallmentCount,
			Amount:            amount,
			DueMonth:          due.Month,
			DueYear:           due.Year,
		})
	}
	return out, nil
}
