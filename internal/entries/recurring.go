package entries

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"cassa/internal/core"
	"cassa/internal/gateway"
	"cassa/internal/log"
)

// RecurringIncomeRepository mirrors recurring income rules ordered by day of month.
type RecurringIncomeRepository struct {
	*Repository[core.RecurringIncome, *core.RecurringIncome]
}

// Occurrence is the next expected payout of a rule.
type Occurrence struct {
	Rule core.RecurringIncome `json:"rule"`
	Date core.Date            `json:"date"`
}

func NewRecurringIncomeRepository(gw gateway.Gateway, logger *log.Logger, opts ...Option) *RecurringIncomeRepository {
	return &RecurringIncomeRepository{newRepository[core.RecurringIncome, *core.RecurringIncome](gw, logger, spec[core.RecurringIncome]{
		table: gateway.TableRecurringIncome,
		order: func(q gateway.Query) gateway.Query {
			return q.OrderBy("day_of_month").OrderBy(gateway.ColCreatedAt)
		},
		less: func(a, b *core.RecurringIncome) bool {
			return lessBy(cmpInt(a.DayOfMonth, b.DayOfMonth), cmpTime(a.CreatedAt, b.CreatedAt))
		},
	}, buildOptions(opts))}
}

// SetActive switches a rule on or off.
func (r *RecurringIncomeRepository) SetActive(ctx context.Context, actor, id string, active bool) (core.RecurringIncome, error) {
	return r.Update(ctx, actor, id, gateway.Row{"active": active})
}

// Toggle flips the active flag of a mirrored rule.
func (r *RecurringIncomeRepository) Toggle(ctx context.Context, actor, id string) (core.RecurringIncome, error) {
	cur, ok := r.Find(id)
	if !ok {
		return core.RecurringIncome{}, fmt.Errorf("recurring income %s: %w", id, core.ErrNotFound)
	}
	return r.SetActive(ctx, actor, id, !cur.Active)
}

// Active returns the rules currently switched on.
func (r *RecurringIncomeRepository) Active() []core.RecurringIncome {
	return r.Filter(func(ri core.RecurringIncome) bool { return ri.Active })
}

// ExpectedTotal sums the rules expected to pay out in the given month.
func (r *RecurringIncomeRepository) ExpectedTotal(year, month int) decimal.Decimal {
	rules := r.Filter(func(ri core.RecurringIncome) bool { return ri.ExpectedIn(year, month) })
	return core.Sum(rules, func(ri core.RecurringIncome) decimal.Decimal { return ri.Amount })
}

// Upcoming lists the next payout of every active rule from now on, soonest first.
func (r *RecurringIncomeRepository) Upcoming(now time.Time) []Occurrence {
	var out []Occurrence
	for _, ri := range r.Active() {
		if d, ok := ri.NextOccurrence(now); ok {
			out = append(out, Occurrence{Rule: ri, Date: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out
}
