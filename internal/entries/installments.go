package entries

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"cassa/internal/core"
	"cassa/internal/gateway"
	"cassa/internal/log"
)

// InstallmentRepository mirrors installment rows ordered by due year, due
// month, then sequence number.
type InstallmentRepository struct {
	*Repository[core.Installment, *core.Installment]
}

func NewInstallmentRepository(gw gateway.Gateway, logger *log.Logger, opts ...Option) *InstallmentRepository {
	return &InstallmentRepository{newRepository[core.Installment, *core.Installment](gw, logger, spec[core.Installment]{
		table: gateway.TableInstallments,
		order: func(q gateway.Query) gateway.Query {
			return q.OrderBy("due_year").OrderBy("due_month").OrderBy("sequence_number")
		},
		less: func(a, b *core.Installment) bool {
			return lessBy(
				cmpInt(a.DueYear, b.DueYear),
				cmpInt(a.DueMonth, b.DueMonth),
				cmpInt(a.SequenceNumber, b.SequenceNumber),
				cmpTime(a.CreatedAt, b.CreatedAt),
			)
		},
	}, buildOptions(opts))}
}

// CreatePlan expands plan into installments and stores them in one batch.
// An empty transactionID gets a fresh one.
func (r *InstallmentRepository) CreatePlan(ctx context.Context, actor, transactionID string, plan core.InstallmentPlan) ([]core.Installment, error) {
	if actor == "" {
		return nil, core.ErrNotAuthenticated
	}
	if transactionID == "" {
		transactionID = r.newID()
	}
	items, err := core.GenerateInstallments(plan, transactionID, r.GroupID(), actor)
	if err != nil {
		return nil, err
	}
	return r.CreateMany(ctx, actor, items)
}

// MarkPaid marks one installment paid now.
func (r *InstallmentRepository) MarkPaid(ctx context.Context, actor, id string) (core.Installment, error) {
	return r.Update(ctx, actor, id, gateway.Row{"paid": true, "paid_at": r.now().UTC()})
}

func (r *InstallmentRepository) MarkUnpaid(ctx context.Context, actor, id string) (core.Installment, error) {
	return r.Update(ctx, actor, id, gateway.Row{"paid": false, "paid_at": nil})
}

// Upcoming returns unpaid installments due in now's month or later.
func (r *InstallmentRepository) Upcoming(now time.Time) []core.Installment {
	cur := core.YearMonthOf(now)
	return r.Filter(func(i core.Installment) bool {
		return !i.Paid && !i.Due().Before(cur)
	})
}

// Overdue returns unpaid installments due before now's month.
func (r *InstallmentRepository) Overdue(now time.Time) []core.Installment {
	cur := core.YearMonthOf(now)
	return r.Filter(func(i core.Installment) bool {
		return !i.Paid && i.Due().Before(cur)
	})
}

// DueIn returns every installment due in the given month, paid or not.
func (r *InstallmentRepository) DueIn(year, month int) []core.Installment {
	return r.Filter(func(i core.Installment) bool { return i.DueYear == year && i.DueMonth == month })
}

// ForTransaction returns the installments of one purchase in sequence order.
func (r *InstallmentRepository) ForTransaction(transactionID string) []core.Installment {
	return r.Filter(func(i core.Installment) bool { return i.TransactionID == transactionID })
}

// TotalDue sums the installments due in the given month.
func (r *InstallmentRepository) TotalDue(year, month int) decimal.Decimal {
	return core.Sum(r.DueIn(year, month), func(i core.Installment) decimal.Decimal { return i.Amount })
}

// PaidTotal sums the installments due in the given month that are paid.
func (r *InstallmentRepository) PaidTotal(year, month int) decimal.Decimal {
	paid := r.Filter(func(i core.Installment) bool { return i.Paid && i.DueYear == year && i.DueMonth == month })
	return core.Sum(paid, func(i core.Installment) decimal.Decimal { return i.Amount })
}

