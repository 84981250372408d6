package entries

import (
	"github.com/shopspring/decimal"

	"cassa/internal/core"
	"cassa/internal/gateway"
	"cassa/internal/log"
)

// IncomeRepository mirrors one-off income entries, newest first.
type IncomeRepository struct {
	*Repository[core.IncomeEntry, *core.IncomeEntry]
}

func NewIncomeRepository(gw gateway.Gateway, logger *log.Logger, opts ...Option) *IncomeRepository {
	return &IncomeRepository{newRepository[core.IncomeEntry, *core.IncomeEntry](gw, logger, spec[core.IncomeEntry]{
		table: gateway.TableIncome,
		order: func(q gateway.Query) gateway.Query {
			return q.OrderByDesc("date").OrderByDesc(gateway.ColCreatedAt)
		},
		less: func(a, b *core.IncomeEntry) bool {
			return lessBy(-cmpDate(a.Date, b.Date), -cmpTime(a.CreatedAt, b.CreatedAt))
		},
	}, buildOptions(opts))}
}

// InMonth returns the entries dated in the given month.
func (r *IncomeRepository) InMonth(year, month int) []core.IncomeEntry {
	return r.Filter(func(e core.IncomeEntry) bool {
		return e.Date.Year() == year && e.Date.Month() == month
	})
}

// TotalFor sums the entries dated in the given month.
func (r *IncomeRepository) TotalFor(year, month int) decimal.Decimal {
	return core.Sum(r.InMonth(year, month), func(e core.IncomeEntry) decimal.Decimal { return e.Amount })
}
