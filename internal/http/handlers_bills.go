package http

import (
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"cassa/internal/core"
	"cassa/internal/gateway"
	"cassa/internal/log"
)

type billStatus struct {
	core.CardBill
	Payment *core.CardBillPayment `json:"payment"`
}

// handleListBills reports every card's bill for the month with its
// payment record, if one was ever stored.
func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	mp, ok := s.month(w, r)
	if !ok {
		return
	}
	ws := workspaceFrom(r.Context())
	sum := ws.Summary(mp.Year, mp.Month)
	out := make([]billStatus, 0, len(sum.Cards))
	for _, b := range sum.Cards {
		st := billStatus{CardBill: b}
		if p, ok := ws.Bills.Lookup(b.CardName, mp.Month, mp.Year); ok {
			st.Payment = &p
		}
		out = append(out, st)
	}
	NewHTMXResponse().JSON(out).Write(w)
}

// billForm reads the card and billing month of a bill request. Year and
// month default to the current month.
func (s *Server) billForm(p *RequestBodyParser) (card string, month, year int, err error) {
	now := s.now()
	if card, err = p.Required("card_name"); err != nil {
		return
	}
	if month, err = p.Int("month", int(now.Month())); err != nil {
		return
	}
	if year, err = p.Int("year", now.Year()); err != nil {
		return
	}
	if !(core.YearMonth{Year: year, Month: month}).Valid() {
		err = core.ErrInvalidMonth
	}
	return
}

func (s *Server) handleMarkBillPaid(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	card, month, year, err := s.billForm(p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ws := workspaceFrom(r.Context())
	if _, ok := ws.Cards.ByName(card); !ok {
		s.writeError(w, r, fmt.Errorf("%w: unknown card %q", core.ErrValidation, card))
		return
	}

	// without an explicit amount the bill is the card's spending that month
	var amount decimal.Decimal
	if p.Get("amount") != "" {
		if amount, err = p.Amount("amount"); err != nil {
			s.writeError(w, r, err)
			return
		}
	} else {
		amount = core.Sum(ws.Expenses.ByCard(card, year, month), func(e core.Expense) decimal.Decimal { return e.Amount })
	}

	out, err := ws.Bills.MarkPaid(r.Context(), actorFrom(r).ID, card, month, year, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.changed(r, ws.GroupID(), gateway.TableCardBillPayments, log.OpUpsert, out.ID)
	mutated(w, http.StatusOK, "bills", ws.GroupID(), "Bill marked as paid", out)
}

func (s *Server) handleMarkBillUnpaid(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	card, month, year, err := s.billForm(p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ws := workspaceFrom(r.Context())
	out, found, err := ws.Bills.MarkUnpaid(r.Context(), actorFrom(r).ID, card, month, year)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !found {
		NewHTMXResponse().
			TriggerNotification(NotificationInfo, "Bill was not marked as paid", 3000).
			JSON(map[string]any{"card_name": card, "month": month, "year": year, "is_paid": false}).
			Write(w)
		return
	}
	s.changed(r, ws.GroupID(), gateway.TableCardBillPayments, log.OpUpdate, out.ID)
	mutated(w, http.StatusOK, "bills", ws.GroupID(), "Bill marked as unpaid", out)
}

// Installments

func (s *Server) handleListInstallments(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	q := r.URL.Query()
	var list []core.Installment
	switch {
	case q.Get("transaction_id") != "":
		list = ws.Installments.ForTransaction(q.Get("transaction_id"))
	case q.Has("year") || q.Has("month"):
		mp, ok := s.month(w, r)
		if !ok {
			return
		}
		list = ws.Installments.DueIn(mp.Year, mp.Month)
	default:
		list = ws.Installments.Items()
	}
	NewHTMXResponse().JSON(nonNil(list)).Write(w)
}

func (s *Server) handleUpcomingInstallments(w http.ResponseWriter, r *http.Request) {
	list := workspaceFrom(r.Context()).Installments.Upcoming(s.now())
	NewHTMXResponse().JSON(nonNil(list)).Write(w)
}

func (s *Server) handleOverdueInstallments(w http.ResponseWriter, r *http.Request) {
	list := workspaceFrom(r.Context()).Installments.Overdue(s.now())
	NewHTMXResponse().JSON(nonNil(list)).Write(w)
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	now := s.now()
	var plan core.InstallmentPlan
	var err error
	if plan.TotalAmount, err = p.Amount("total_amount"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if plan.InstallmentCount, err = p.Int("installment_count", 0); err != nil {
		s.writeError(w, r, err)
		return
	}
	if plan.StartMonth, err = p.Int("start_month", int(now.Month())); err != nil {
		s.writeError(w, r, err)
		return
	}
	if plan.StartYear, err = p.Int("start_year", now.Year()); err != nil {
		s.writeError(w, r, err)
		return
	}

	ws := workspaceFrom(r.Context())
	out, err := ws.Installments.CreatePlan(r.Context(), actorFrom(r).ID, p.Get("transaction_id"), plan)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	txID := ""
	if len(out) > 0 {
		txID = out[0].TransactionID
	}
	s.created(w, r, "installments", gateway.TableInstallments, "Installment plan", txID, out)
}

func (s *Server) handleMarkInstallmentPaid(w http.ResponseWriter, r *http.Request) {
	s.installmentTransition(w, r, true)
}

func (s *Server) handleMarkInstallmentUnpaid(w http.ResponseWriter, r *http.Request) {
	s.installmentTransition(w, r, false)
}

func (s *Server) installmentTransition(w http.ResponseWriter, r *http.Request, paid bool) {
	ws := workspaceFrom(r.Context())
	id, ok := entryTarget(w, r, has(ws.Installments.Find), "Installment")
	if !ok {
		return
	}
	apply, msg := ws.Installments.MarkUnpaid, "Installment marked as unpaid"
	if paid {
		apply, msg = ws.Installments.MarkPaid, "Installment marked as paid"
	}
	out, err := apply(r.Context(), actorFrom(r).ID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.changed(r, ws.GroupID(), gateway.TableInstallments, log.OpUpdate, id)
	mutated(w, http.StatusOK, "installments", ws.GroupID(), msg, out)
}

func (s *Server) handleDeleteInstallment(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r.Context())
	s.deleteEntry(w, r, "installments", gateway.TableInstallments, "Installment",
		has(ws.Installments.Find), ws.Installments.Delete)
}
