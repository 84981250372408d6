package entries

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"cassa/internal/core"
	"cassa/internal/gateway"
	"cassa/internal/log"
)

// billKey is the natural key of a bill payment within the table.
var billKey = []string{gateway.ColGroupID, "card_name", "month", "year"}

// BillPaymentRepository mirrors card bill payments, latest month first.
type BillPaymentRepository struct {
	*Repository[core.CardBillPayment, *core.CardBillPayment]
}

func NewBillPaymentRepository(gw gateway.Gateway, logger *log.Logger, opts ...Option) *BillPaymentRepository {
	return &BillPaymentRepository{newRepository[core.CardBillPayment, *core.CardBillPayment](gw, logger, spec[core.CardBillPayment]{
		table: gateway.TableCardBillPayments,
		order: func(q gateway.Query) gateway.Query {
			return q.OrderByDesc("year").OrderByDesc("month").OrderBy("card_name")
		},
		less: func(a, b *core.CardBillPayment) bool {
			return lessBy(-cmpInt(a.Year, b.Year), -cmpInt(a.Month, b.Month), strings.Compare(a.CardName, b.CardName))
		},
	}, buildOptions(opts))}
}

// MarkPaid records the card's bill for the month as paid by actor. Repeated
// calls for the same card and month overwrite the single stored record.
func (r *BillPaymentRepository) MarkPaid(ctx context.Context, actor, card string, month, year int, amount decimal.Decimal) (core.CardBillPayment, error) {
	paidAt := r.now().UTC()
	p := core.CardBillPayment{
		CardName: card,
		Month:    month,
		Year:     year,
		IsPaid:   true,
		PaidAt:   &paidAt,
		PaidBy:   &actor,
		Amount:   amount,
	}
	out, err := r.Upsert(ctx, actor, p, billKey)
	if err != nil {
		return core.CardBillPayment{}, err
	}
	r.logger.InfoContext(ctx, "Bill marked paid",
		log.FieldGroupID, out.GroupID,
		log.FieldCardName, card,
		log.FieldYear, year,
		log.FieldMonth, month,
		log.FieldOperation, log.OpMarkPaid)
	return out, nil
}

// MarkUnpaid clears the paid state of the card's bill for the month. The
// record itself is kept. When no record exists nothing is written and ok is
// false.
func (r *BillPaymentRepository) MarkUnpaid(ctx context.Context, actor, card string, month, year int) (p core.CardBillPayment, ok bool, err error) {
	if actor == "" {
		return p, false, core.ErrNotAuthenticated
	}
	cur, found := r.Lookup(card, month, year)
	if !found {
		return p, false, nil
	}
	out, err := r.Update(ctx, actor, cur.ID, gateway.Row{"is_paid": false, "paid_at": nil, "paid_by": nil})
	if err != nil {
		return p, false, err
	}
	return out, true, nil
}

// Lookup returns the mirrored record for the key whether paid or not.
func (r *BillPaymentRepository) Lookup(card string, month, year int) (core.CardBillPayment, bool) {
	found := r.Filter(func(p core.CardBillPayment) bool {
		return p.CardName == card && p.Month == month && p.Year == year
	})
	if len(found) == 0 {
		return core.CardBillPayment{}, false
	}
	return found[0], true
}

// StatusFor returns the paid record for the key, or false when the bill is
// not paid.
func (r *BillPaymentRepository) StatusFor(card string, month, year int) (core.CardBillPayment, bool) {
	p, ok := r.Lookup(card, month, year)
	if !ok || !p.IsPaid {
		return core.CardBillPayment{}, false
	}
	return p, true
}

// PaidIn returns the bills paid for the given month.
func (r *BillPaymentRepository) PaidIn(year, month int) []core.CardBillPayment {
	return r.Filter(func(p core.CardBillPayment) bool {
		return p.IsPaid && p.Year == year && p.Month == month
	})
}
