package entries

import (
	"sort"

	"github.com/shopspring/decimal"

	"cassa/internal/core"
	"cassa/internal/gateway"
	"cassa/internal/log"
)

// ExpenseRepository mirrors shared expenses, newest first.
type ExpenseRepository struct {
	*Repository[core.Expense, *core.Expense]
}

func NewExpenseRepository(gw gateway.Gateway, logger *log.Logger, opts ...Option) *ExpenseRepository {
	return &ExpenseRepository{newRepository[core.Expense, *core.Expense](gw, logger, spec[core.Expense]{
		table: gateway.TableExpenses,
		order: func(q gateway.Query) gateway.Query {
			return q.OrderByDesc("date").OrderByDesc(gateway.ColCreatedAt)
		},
		less: func(a, b *core.Expense) bool {
			return lessBy(-cmpDate(a.Date, b.Date), -cmpTime(a.CreatedAt, b.CreatedAt))
		},
	}, buildOptions(opts))}
}

func (r *ExpenseRepository) InMonth(year, month int) []core.Expense {
	return r.Filter(func(e core.Expense) bool {
		return e.Date.Year() == year && e.Date.Month() == month
	})
}

func (r *ExpenseRepository) TotalFor(year, month int) decimal.Decimal {
	return core.Sum(r.InMonth(year, month), func(e core.Expense) decimal.Decimal { return e.Amount })
}

// ByCard returns the month's expenses charged to card.
func (r *ExpenseRepository) ByCard(card string, year, month int) []core.Expense {
	return r.Filter(func(e core.Expense) bool {
		return e.CardName != nil && *e.CardName == card &&
			e.Date.Year() == year && e.Date.Month() == month
	})
}

// ByCategory aggregates the month's expenses per category, largest first.
func (r *ExpenseRepository) ByCategory(year, month int) []core.CategoryAmount {
	totals := map[string]decimal.Decimal{}
	for _, e := range r.InMonth(year, month) {
		totals[e.Category] = totals[e.Category].Add(e.Amount)
	}
	out := make([]core.CategoryAmount, 0, len(totals))
	for name, amt := range totals {
		out = append(out, core.CategoryAmount{Name: name, Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}
