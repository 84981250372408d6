package entries

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"cassa/internal/core"
	"cassa/internal/gateway"
	"cassa/internal/log"
)

// Workspace bundles every repository of one group.
type Workspace struct {
	Members      *MemberRepository
	Expenses     *ExpenseRepository
	Income       *IncomeRepository
	Recurring    *RecurringIncomeRepository
	Tasks        *TaskRepository
	Cards        *CardConfigRepository
	Bills        *BillPaymentRepository
	Installments *InstallmentRepository

	logger *log.Logger
	now    Clock
}

// NewWorkspace builds unbound repositories sharing gw.
func NewWorkspace(gw gateway.Gateway, logger *log.Logger, opts ...Option) *Workspace {
	o := buildOptions(opts)
	return &Workspace{
		Members:      NewMemberRepository(gw, logger, opts...),
		Expenses:     NewExpenseRepository(gw, logger, opts...),
		Income:       NewIncomeRepository(gw, logger, opts...),
		Recurring:    NewRecurringIncomeRepository(gw, logger, opts...),
		Tasks:        NewTaskRepository(gw, logger, opts...),
		Cards:        NewCardConfigRepository(gw, logger, opts...),
		Bills:        NewBillPaymentRepository(gw, logger, opts...),
		Installments: NewInstallmentRepository(gw, logger, opts...),
		logger:       logger.WithComponent(log.ComponentEntries),
		now:          o.now,
	}
}

type reloader interface {
	Reload(ctx context.Context, groupID string) error
}

func (w *Workspace) repositories() []reloader {
	return []reloader{w.Members, w.Expenses, w.Income, w.Recurring, w.Tasks, w.Cards, w.Bills, w.Installments}
}

// Switch binds every repository to groupID and reloads them concurrently.
// The first failure is returned once all loads have finished; repositories
// that loaded keep their mirrors.
func (w *Workspace) Switch(ctx context.Context, groupID string) error {
	var g errgroup.Group
	for _, r := range w.repositories() {
		g.Go(func() error { return r.Reload(ctx, groupID) })
	}
	err := g.Wait()
	if err != nil && !errors.Is(err, ErrSuperseded) {
		w.logger.ErrorContext(ctx, "Workspace reload failed", log.FieldGroupID, groupID, log.FieldError, err)
	}
	return err
}

// Reload refreshes every repository for the current group.
func (w *Workspace) Reload(ctx context.Context) error {
	return w.Switch(ctx, w.GroupID())
}

func (w *Workspace) GroupID() string { return w.Members.GroupID() }

// Summary aggregates the mirrors for one month.
func (w *Workspace) Summary(year, month int) core.MonthSummary {
	ym := core.YearMonth{Year: year, Month: month}
	s := core.MonthSummary{
		GroupID:          w.GroupID(),
		Year:             year,
		Month:            month,
		Income:           w.Income.TotalFor(year, month),
		ExpectedIncome:   w.Recurring.ExpectedTotal(year, month),
		Expenses:         w.Expenses.TotalFor(year, month),
		InstallmentsDue:  w.Installments.TotalDue(year, month),
		InstallmentsPaid: w.Installments.PaidTotal(year, month),
		ByCategory:       w.Expenses.ByCategory(year, month),
		PendingTasks:     len(w.Tasks.Pending()),
	}
	for _, c := range w.Cards.Items() {
		bill := core.CardBill{
			CardName: c.CardName,
			DueDate:  ym.ClampDay(c.DueDay),
			Expenses: core.Sum(w.Expenses.ByCard(c.CardName, year, month), func(e core.Expense) decimal.Decimal { return e.Amount }),
		}
		if p, ok := w.Bills.StatusFor(c.CardName, month, year); ok {
			bill.Paid = true
			bill.Amount = p.Amount
		}
		s.Cards = append(s.Cards, bill)
	}
	sort.SliceStable(s.Cards, func(i, j int) bool { return s.Cards[i].DueDate.Before(s.Cards[j].DueDate.Time) })
	return s
}

// UnpaidBill is a card bill that is due and not yet marked paid.
type UnpaidBill struct {
	Card    core.CardConfig `json:"card"`
	DueDate core.Date       `json:"due_date"`
}

// UnpaidBillsDueBy lists the cards whose bill for the current or previous
// month is still unpaid and due on or before the given day.
func (w *Workspace) UnpaidBillsDueBy(day core.Date) []UnpaidBill {
	var out []UnpaidBill
	cur := day.YearMonth()
	for _, c := range w.Cards.Items() {
		for _, ym := range []core.YearMonth{cur.AddMonths(-1), cur} {
			due := ym.ClampDay(c.DueDay)
			if due.After(day.Time) {
				continue
			}
			if _, paid := w.Bills.StatusFor(c.CardName, ym.Month, ym.Year); paid {
				continue
			}
			out = append(out, UnpaidBill{Card: c, DueDate: due})
		}
	}
	return out
}
